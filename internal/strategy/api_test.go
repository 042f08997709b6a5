package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shellcache/shellcache/internal/cache"
	"github.com/shellcache/shellcache/internal/logging"
)

func newTestAPI(t *testing.T, origin *stubOrigin, maxEntries int, timeout time.Duration) (*API, *cache.BoundedStore) {
	t.Helper()
	store := newTestStore(t, "journal-test-api", maxEntries)
	return NewAPI(origin, store, timeout, logging.NewDiscardLogger()), store
}

func TestAPIOnlineCachesResponse(t *testing.T) {
	origin := newStubOrigin()
	origin.serve("/api/records", "application/json", `[{"t":21}]`)
	api, store := newTestAPI(t, origin, 50, time.Second)

	res := api.Serve(context.Background(), assetRequest(t, "/api/records"))
	assert.Equal(t, SourceNetwork, res.Source)
	_, ok := store.Lookup(context.Background(), "GET /api/records")
	assert.True(t, ok)
}

func TestAPITimeoutServesLastKnownGood(t *testing.T) {
	origin := newStubOrigin()
	origin.serve("/api/records", "application/json", `[{"t":21}]`)
	api, _ := newTestAPI(t, origin, 50, 40*time.Millisecond)
	api.Serve(context.Background(), assetRequest(t, "/api/records"))

	origin.serve("/api/records", "application/json", `[{"t":25}]`)
	origin.setDelay(200 * time.Millisecond)
	res := api.Serve(context.Background(), assetRequest(t, "/api/records"))
	assert.Equal(t, SourceCache, res.Source)
	assert.JSONEq(t, `[{"t":21}]`, string(res.Snapshot.Body))
}

func TestAPIOfflineWithoutCacheReturnsOfflinePayload(t *testing.T) {
	origin := newStubOrigin()
	origin.setOffline(true)
	api, _ := newTestAPI(t, origin, 50, time.Second)

	res := api.Serve(context.Background(), assetRequest(t, "/api/records"))
	require.Equal(t, SourceFallback, res.Source)
	assert.Equal(t, http.StatusOK, res.Snapshot.Status)
	assert.Equal(t, "application/json; charset=utf-8", res.Snapshot.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", res.Snapshot.Header.Get("Cache-Control"))

	var payload map[string]string
	require.NoError(t, json.Unmarshal(res.Snapshot.Body, &payload))
	assert.Equal(t, "offline", payload["error"])
	assert.NotEmpty(t, payload["message"])
	_, err := time.Parse(time.RFC3339, payload["timestamp"])
	assert.NoError(t, err)
}

func TestAPIStoreStaysBounded(t *testing.T) {
	origin := newStubOrigin()
	api, store := newTestAPI(t, origin, 3, time.Second)
	for i := 0; i < 8; i++ {
		uri := fmt.Sprintf("/api/records/%d", i)
		origin.serve(uri, "application/json", fmt.Sprintf(`{"id":%d}`, i))
		api.Serve(context.Background(), assetRequest(t, uri))
	}

	count := 0
	for i := 0; i < 8; i++ {
		if _, ok := store.Lookup(context.Background(), fmt.Sprintf("GET /api/records/%d", i)); ok {
			count++
		}
	}
	assert.Equal(t, 3, count)
}

func TestAPIPrivateResponseIsNotSharedAcrossUsers(t *testing.T) {
	origin := newStubOrigin()
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Cache-Control", "private, no-store")
	header.Set("Set-Cookie", "session=alice-secret")
	origin.serveHeader("/api/records", header, `{"user":"alice"}`)
	api, store := newTestAPI(t, origin, 50, time.Second)

	alice := assetRequest(t, "/api/records")
	alice.Header.Set("Cookie", "session=alice")
	first := api.Serve(context.Background(), alice)
	require.Equal(t, SourceNetwork, first.Source)
	assert.Equal(t, "session=alice-secret", first.Snapshot.Header.Get("Set-Cookie"))

	_, ok := store.Lookup(context.Background(), "GET /api/records")
	assert.False(t, ok, "private responses must not be stored")

	origin.setOffline(true)
	bob := api.Serve(context.Background(), assetRequest(t, "/api/records"))
	assert.Equal(t, SourceFallback, bob.Source)
	assert.Empty(t, bob.Snapshot.Header.Get("Set-Cookie"))
	assert.NotContains(t, string(bob.Snapshot.Body), "alice")
}

func TestAPICachedCopyDropsSetCookie(t *testing.T) {
	origin := newStubOrigin()
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Set-Cookie", "session=alice-secret")
	origin.serveHeader("/api/records", header, `[{"t":21}]`)
	api, _ := newTestAPI(t, origin, 50, time.Second)
	api.Serve(context.Background(), assetRequest(t, "/api/records"))

	origin.setOffline(true)
	res := api.Serve(context.Background(), assetRequest(t, "/api/records"))
	require.Equal(t, SourceCache, res.Source)
	assert.Empty(t, res.Snapshot.Header.Values("Set-Cookie"))
	assert.JSONEq(t, `[{"t":21}]`, string(res.Snapshot.Body))
}

func TestNewAPIDefaultsLogger(t *testing.T) {
	origin := newStubOrigin()
	origin.setOffline(true)
	api := NewAPI(origin, newTestStore(t, "journal-test-api", 5), time.Second, nil)

	assert.NotPanics(t, func() {
		res := api.Serve(context.Background(), assetRequest(t, "/api/records"))
		assert.Equal(t, SourceFallback, res.Source)
	})
}
