package revalidate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shellcache/shellcache/internal/cache"
	"github.com/shellcache/shellcache/internal/control"
	"github.com/shellcache/shellcache/internal/strategy"
)

var testOrigin = &url.URL{Scheme: "http", Host: "origin.test"}

type gate struct{ active atomic.Bool }

func (g *gate) Controlling() bool { return g.active.Load() }

func activeGate() *gate {
	g := &gate{}
	g.active.Store(true)
	return g
}

func newShell(t *testing.T) *cache.BoundedStore {
	t.Helper()
	storage, err := cache.NewFileStorage(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })
	return cache.NewBoundedStore(storage, "meteo-1.0.0", 100, nil)
}

func TestRunOnceRefreshesWithNoCacheHeaders(t *testing.T) {
	shell := newShell(t)
	var mu sync.Mutex
	seen := map[string]http.Header{}
	fetcher := strategy.FetcherFunc(func(_ context.Context, req *strategy.Request) (*cache.Snapshot, error) {
		mu.Lock()
		seen[req.URL.Path] = req.Header.Clone()
		mu.Unlock()
		if req.URL.Path == "/style.css" {
			return nil, errors.New("unreachable")
		}
		return cache.NewSnapshot(http.StatusOK, http.Header{}, []byte("fresh "+req.URL.Path)), nil
	})
	hub := control.NewHub(nil)
	messages, cancel := hub.Subscribe(1)
	defer cancel()

	r, err := New(Options{
		Origin:      testOrigin,
		Fetcher:     fetcher,
		Shell:       shell,
		URLs:        []string{"/", "/app.js", "/style.css"},
		Gate:        activeGate(),
		Broadcaster: hub,
	})
	require.NoError(t, err)

	report, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"/", "/app.js"}, report.Refreshed)
	assert.Equal(t, []string{"/style.css"}, report.Failed)

	assert.Equal(t, "no-cache", seen["/"].Get("Cache-Control"))
	assert.Equal(t, "no-cache", seen["/"].Get("Pragma"))

	snap, ok := shell.Lookup(context.Background(), "GET /app.js")
	require.True(t, ok)
	assert.Equal(t, "fresh /app.js", string(snap.Body))

	var msg control.SyncComplete
	require.NoError(t, json.Unmarshal(<-messages, &msg))
	assert.Equal(t, control.TypeSyncComplete, msg.Type)
}

func TestRunOnceKeepsEntryOnNon200(t *testing.T) {
	shell := newShell(t)
	ctx := context.Background()
	require.NoError(t, shell.Put(ctx, "GET /", cache.NewSnapshot(http.StatusOK, http.Header{}, []byte("old"))))

	fetcher := strategy.FetcherFunc(func(context.Context, *strategy.Request) (*cache.Snapshot, error) {
		return cache.NewSnapshot(http.StatusNotFound, http.Header{}, []byte("gone")), nil
	})
	r, err := New(Options{Origin: testOrigin, Fetcher: fetcher, Shell: shell, URLs: []string{"/"}, Gate: activeGate()})
	require.NoError(t, err)

	report, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/"}, report.Failed)

	snap, ok := shell.Lookup(ctx, "GET /")
	require.True(t, ok)
	assert.Equal(t, "old", string(snap.Body))
}

func TestRunOnceSkippedWhenNotControlling(t *testing.T) {
	var calls atomic.Int32
	fetcher := strategy.FetcherFunc(func(context.Context, *strategy.Request) (*cache.Snapshot, error) {
		calls.Add(1)
		return cache.NewSnapshot(http.StatusOK, http.Header{}, nil), nil
	})
	r, err := New(Options{Origin: testOrigin, Fetcher: fetcher, Shell: newShell(t), URLs: []string{"/"}, Gate: &gate{}})
	require.NoError(t, err)

	report, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Zero(t, calls.Load())
}

func TestTriggersCoalesceWhilePassRuns(t *testing.T) {
	release := make(chan struct{})
	var first atomic.Bool
	started := make(chan struct{})
	fetcher := strategy.FetcherFunc(func(context.Context, *strategy.Request) (*cache.Snapshot, error) {
		if first.CompareAndSwap(false, true) {
			close(started)
			<-release
		}
		return cache.NewSnapshot(http.StatusOK, http.Header{}, []byte("ok")), nil
	})
	hub := control.NewHub(nil)
	messages, cancel := hub.Subscribe(8)
	defer cancel()

	r, err := New(Options{
		Origin:      testOrigin,
		Fetcher:     fetcher,
		Shell:       newShell(t),
		URLs:        []string{"/"},
		Gate:        activeGate(),
		Broadcaster: hub,
	})
	require.NoError(t, err)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	r.Trigger()
	<-started
	r.Trigger()
	r.Trigger()
	r.Trigger()
	close(release)

	for i := 0; i < 2; i++ {
		select {
		case <-messages:
		case <-time.After(2 * time.Second):
			t.Fatalf("pass %d did not complete", i+1)
		}
	}
	select {
	case extra := <-messages:
		t.Fatalf("unexpected extra pass: %s", extra)
	case <-time.After(100 * time.Millisecond):
	}

	stop()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRunTicksOnInterval(t *testing.T) {
	hub := control.NewHub(nil)
	messages, cancel := hub.Subscribe(8)
	defer cancel()
	fetcher := strategy.FetcherFunc(func(context.Context, *strategy.Request) (*cache.Snapshot, error) {
		return cache.NewSnapshot(http.StatusOK, http.Header{}, []byte("ok")), nil
	})
	r, err := New(Options{
		Origin:      testOrigin,
		Fetcher:     fetcher,
		Shell:       newShell(t),
		URLs:        []string{"/"},
		Interval:    10 * time.Millisecond,
		Gate:        activeGate(),
		Broadcaster: hub,
	})
	require.NoError(t, err)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go func() { _ = r.Run(ctx) }()

	select {
	case <-messages:
	case <-time.After(2 * time.Second):
		t.Fatal("interval pass did not run")
	}
}
