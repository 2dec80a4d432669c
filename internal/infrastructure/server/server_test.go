package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/kernel/internal/boot"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/diag"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/kernel"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/shared/types"
)

func newTestServer(t *testing.T, profile *boot.Profile) (*Server, *kernel.Kernel) {
	t.Helper()
	cfg := config.Default()
	cfg.Monitor.Host = "127.0.0.1"
	cfg.Monitor.Port = "0"
	cfg.RateLimit.Enabled = false
	cfg.Dump.Dir = t.TempDir()

	k, err := kernel.New(cfg, profile, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = k.Shutdown(ctx)
	})

	return New(cfg, k, nil, logging.NewNop()), k
}

func get(t *testing.T, srv *Server, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	body := make(map[string]interface{})
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestHealthEndpoint(t *testing.T) {
	srv, k := newTestServer(t, nil)

	w, body := get(t, srv, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, k.BootID(), body["boot_id"])
	assert.Contains(t, body, "stats")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestProcessEndpoints(t *testing.T) {
	srv, k := newTestServer(t, nil)

	release := make(chan struct{})
	var once sync.Once
	unlock := func() { once.Do(func() { close(release) }) }
	defer unlock()

	_, err := k.Register("idler", func(ctx *kernel.Context) { <-release })
	require.NoError(t, err)
	pid, err := k.Spawn("idler")
	require.NoError(t, err)

	w, body := get(t, srv, "/processes")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["count"])

	w, one := get(t, srv, "/processes/"+strconv.Itoa(int(pid)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "idler", one["name"])

	w, _ = get(t, srv, "/processes/9999")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = get(t, srv, "/processes/banana")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMemoryEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	w, body := get(t, srv, "/memory")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(4096), body["page_size"])
	assert.Equal(t, float64(16384), body["total_frames"])
}

func TestChannelAndDeviceEndpoints(t *testing.T) {
	profile := boot.Default()
	profile.Fifos = []string{"/monitor-test"}
	srv, _ := newTestServer(t, profile)

	w, body := get(t, srv, "/channels")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["count"])

	w, body = get(t, srv, "/devices")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), body["count"])
}

func TestSnapshotAndDump(t *testing.T) {
	srv, k := newTestServer(t, nil)

	w, body := get(t, srv, "/snapshot")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, k.BootID(), body["boot_id"])

	req := httptest.NewRequest("POST", "/dump", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var dumped struct {
		Success bool   `json:"success"`
		Path    string `json:"path"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dumped))
	require.True(t, dumped.Success)

	_, err := os.Stat(dumped.Path)
	require.NoError(t, err)

	snap, err := diag.Load(dumped.Path)
	require.NoError(t, err)
	assert.Equal(t, k.BootID(), snap.BootID)
}

func TestMetricsEndpointServesPrometheus(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestEventStreamOverWebSocket(t *testing.T) {
	srv, k := newTestServer(t, nil)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var welcome map[string]interface{}
	require.NoError(t, conn.ReadJSON(&welcome))
	assert.Equal(t, "system", welcome["type"])

	// The subscriber is attached once the welcome arrived.
	k.Events().Publish(types.EventChannelCreated, map[string]interface{}{"name": "/ws-test"})

	var evt types.Event
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, types.EventChannelCreated, evt.Type)
	assert.True(t, strings.HasPrefix(evt.ID, "evt_"), "event id %q", evt.ID)
	assert.Equal(t, "/ws-test", evt.Payload["name"])
}

func TestGracefulShutdown(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	errs := make(chan error, 1)
	go func() { errs <- srv.Run() }()

	// Give the listener a moment; a failed bind surfaces on errs.
	select {
	case err := <-errs:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case err := <-errs:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run never returned after Shutdown")
	}
}
