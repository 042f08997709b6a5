package strategy

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu   sync.Mutex
	errs []error
}

func (r *recordingObserver) ObserveFetch(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func TestHTTPFetcherReadsFullResponse(t *testing.T) {
	var sawConditional bool
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawConditional = r.Header.Get("If-None-Match") != ""
		w.Header().Set("Content-Type", "application/javascript")
		w.Header().Set("Connection", "keep-alive")
		_, _ = w.Write([]byte("console.log(1)"))
	}))
	defer origin.Close()

	observer := &recordingObserver{}
	fetcher := NewHTTPFetcher(origin.Client(), mustParseURL(origin.URL), observer)
	req, err := NewRequest(mustParseURL(origin.URL), "/app.js")
	require.NoError(t, err)
	req.Header.Set("If-None-Match", `"abc"`)

	snap, err := fetcher.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, snap.Status)
	assert.Equal(t, "console.log(1)", string(snap.Body))
	assert.Equal(t, "application/javascript", snap.Header.Get("Content-Type"))
	assert.Empty(t, snap.Header.Get("Connection"))
	assert.False(t, snap.Opaque)
	assert.False(t, sawConditional, "conditional headers must be stripped")
	require.Len(t, observer.errs, 1)
	assert.NoError(t, observer.errs[0])
}

func TestHTTPFetcherMarksCrossOriginRedirectOpaque(t *testing.T) {
	elsewhere := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("cdn"))
	}))
	defer elsewhere.Close()

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, elsewhere.URL+"/lib.js", http.StatusFound)
	}))
	defer origin.Close()

	fetcher := NewHTTPFetcher(origin.Client(), mustParseURL(origin.URL), nil)
	req, err := NewRequest(mustParseURL(origin.URL), "/lib.js")
	require.NoError(t, err)

	snap, err := fetcher.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, snap.Opaque)
	assert.False(t, snap.Cacheable())
}

func TestHTTPFetcherReportsNetworkError(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	observer := &recordingObserver{}
	originURL := mustParseURL("http://" + addr)
	fetcher := NewHTTPFetcher(http.DefaultClient, originURL, observer)
	req, err := NewRequest(originURL, "/")
	require.NoError(t, err)

	_, err = fetcher.Fetch(context.Background(), req)
	require.Error(t, err)
	assert.True(t, IsNetworkError(err))
	require.Len(t, observer.errs, 1)
	assert.Error(t, observer.errs[0])
}
