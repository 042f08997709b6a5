package strategy

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shellcache/shellcache/internal/cache"
)

var testOrigin = mustParseURL("http://origin.test")

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}

// stubOrigin is an in-memory Fetcher that records calls and can go offline.
type stubOrigin struct {
	mu        sync.Mutex
	calls     map[string]int
	responses map[string]*cache.Snapshot
	offline   bool
	delay     time.Duration
}

func newStubOrigin() *stubOrigin {
	return &stubOrigin{
		calls:     map[string]int{},
		responses: map[string]*cache.Snapshot{},
	}
}

func (s *stubOrigin) serve(uri, contentType, body string) {
	header := http.Header{}
	header.Set("Content-Type", contentType)
	s.mu.Lock()
	s.responses[uri] = cache.NewSnapshot(http.StatusOK, header, []byte(body))
	s.mu.Unlock()
}

func (s *stubOrigin) serveHeader(uri string, header http.Header, body string) {
	s.mu.Lock()
	s.responses[uri] = cache.NewSnapshot(http.StatusOK, header, []byte(body))
	s.mu.Unlock()
}

func (s *stubOrigin) setOffline(offline bool) {
	s.mu.Lock()
	s.offline = offline
	s.mu.Unlock()
}

func (s *stubOrigin) setDelay(delay time.Duration) {
	s.mu.Lock()
	s.delay = delay
	s.mu.Unlock()
}

func (s *stubOrigin) callCount(uri string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[uri]
}

func (s *stubOrigin) Fetch(ctx context.Context, req *Request) (*cache.Snapshot, error) {
	uri := req.URL.RequestURI()
	s.mu.Lock()
	s.calls[uri]++
	offline, delay, resp := s.offline, s.delay, s.responses[uri]
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if offline {
		return nil, networkError(errors.New("dial tcp: connection refused"), req)
	}
	if resp == nil {
		return cache.NewSnapshot(http.StatusNotFound, nil, []byte("not found")), nil
	}
	return resp.Clone(), nil
}

func newTestStore(t *testing.T, name string, maxEntries int) *cache.BoundedStore {
	t.Helper()
	storage, err := cache.NewFileStorage(t.TempDir())
	require.NoError(t, err)
	return cache.NewBoundedStore(storage, name, maxEntries, nil)
}

func navigationRequest(t *testing.T, uri string) *Request {
	t.Helper()
	req, err := NewRequest(testOrigin, uri)
	require.NoError(t, err)
	req.Mode = ModeNavigate
	req.Destination = DestDocument
	return req
}

func assetRequest(t *testing.T, uri string) *Request {
	t.Helper()
	req, err := NewRequest(testOrigin, uri)
	require.NoError(t, err)
	return req
}
