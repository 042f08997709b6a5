package strategy

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T, origin *stubOrigin) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(Options{
		AppName:           "Journal",
		Classifier:        NewClassifier("/api/", []string{"browser-sync"}),
		Fetcher:           origin,
		Shell:             newTestStore(t, "journal-test", 100),
		API:               newTestStore(t, "journal-test-api", 50),
		NavigationTimeout: time.Second,
		APITimeout:        time.Second,
		StaticMaxAge:      24 * time.Hour,
		FallbackURIs:      []string{"/", "/index.html"},
	})
	require.NoError(t, err)
	return d
}

func TestDispatcherRoutesByClass(t *testing.T) {
	origin := newStubOrigin()
	origin.setOffline(true)
	d := newTestDispatcher(t, origin)
	ctx := context.Background()

	res, err := d.Serve(ctx, navigationRequest(t, "/report"))
	require.NoError(t, err)
	assert.Equal(t, ClassNavigate, res.Class)
	assert.Equal(t, "text/html; charset=utf-8", res.Snapshot.Header.Get("Content-Type"))

	res, err = d.Serve(ctx, assetRequest(t, "/api/records"))
	require.NoError(t, err)
	assert.Equal(t, ClassAPI, res.Class)
	assert.Contains(t, string(res.Snapshot.Body), `"offline"`)

	res, err = d.Serve(ctx, assetRequest(t, "/logo.svg"))
	require.NoError(t, err)
	assert.Equal(t, ClassStatic, res.Class)
	assert.Equal(t, "image/svg+xml", res.Snapshot.Header.Get("Content-Type"))
}

func TestDispatcherLeavesIgnoredRequestsAlone(t *testing.T) {
	origin := newStubOrigin()
	d := newTestDispatcher(t, origin)

	req := assetRequest(t, "/api/records")
	req.Method = http.MethodPost
	res, err := d.Serve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, ClassIgnored, res.Class)
	assert.Nil(t, res.Snapshot)
	assert.Zero(t, origin.callCount("/api/records"))
}

func TestDispatcherRequiresStores(t *testing.T) {
	_, err := NewDispatcher(Options{Fetcher: newStubOrigin()})
	assert.Error(t, err)
}
