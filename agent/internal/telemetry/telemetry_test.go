package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fleetpush/agent/internal/client"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSinkPostsDeviceEvent(t *testing.T) {
	got := make(chan client.Event, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/devices/dev-1/events", r.URL.Path)
		var ev client.Event
		_ = json.NewDecoder(r.Body).Decode(&ev)
		got <- ev
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(srv.Close)

	sink := HTTPSink{Client: client.New(srv.URL, "dev-1", func() string { return "" }, time.Second)}
	require.NoError(t, sink.Emit(context.Background(), Event{Name: InstallSuccess, ItemID: "i1", PackageName: "com.app.a", VersionCode: 7}))
	ev := <-got
	assert.Equal(t, InstallSuccess, ev.Event)
	assert.Equal(t, "com.app.a", ev.PackageName)
	assert.Contains(t, ev.Detail, "version=7")
}
