package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bvbrc/workflow-conductor/internal/config"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) (*Gateway, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	cfg := config.SchedulerConfig{URL: srv.URL, BaseURL: "https://www.bv-brc.org", TimeoutSeconds: 5}
	gw := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return gw, srv
}

func TestSubmitExtractsTaskIDFromArrayResult(t *testing.T) {
	gw, srv := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, contentType, r.Header.Get("Content-Type"))

		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "AppService.start_app2", req.Method)

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  []map[string]interface{}{{"id": "task-123", "state_code": "queued"}},
		}
		json.NewEncoder(w).Encode(resp)
	})
	defer srv.Close()

	taskID, err := gw.Submit(t.Context(), "tok", "Homology", map[string]interface{}{"db_source": "id_list"})
	require.NoError(t, err)
	assert.Equal(t, "task-123", taskID)
}

func TestSubmitExtractsTaskIDFromObjectResult(t *testing.T) {
	gw, srv := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  map[string]interface{}{"task_id": "task-456"},
		}
		json.NewEncoder(w).Encode(resp)
	})
	defer srv.Close()

	taskID, err := gw.Submit(t.Context(), "", "Homology", map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, "task-456", taskID)
}

func TestSubmitSurfacesRPCError(t *testing.T) {
	gw, srv := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]interface{}{"code": -32000, "message": "invalid app"},
		}
		json.NewEncoder(w).Encode(resp)
	})
	defer srv.Close()

	_, err := gw.Submit(t.Context(), "", "NotAnApp", map[string]interface{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid app")
}

func TestQueryAcceptsArrayAndObjectResults(t *testing.T) {
	gw, srv := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result": []map[string]interface{}{{
				"task-1": map[string]interface{}{"status": "completed", "elapsed_time": 12.5},
				"task-2": map[string]interface{}{"status": "running"},
			}},
		}
		json.NewEncoder(w).Encode(resp)
	})
	defer srv.Close()

	statuses, err := gw.Query(t.Context(), "tok", []string{"task-1", "task-2"})
	require.NoError(t, err)
	assert.Equal(t, "completed", statuses["task-1"].Status)
	assert.Equal(t, 12.5, statuses["task-1"].ElapsedTime)
	assert.Equal(t, "running", statuses["task-2"].Status)
}

func TestQueryEmptyTaskIDsSkipsCall(t *testing.T) {
	gw, srv := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not be called with no task ids")
	})
	defer srv.Close()

	statuses, err := gw.Query(t.Context(), "tok", nil)
	require.NoError(t, err)
	assert.Empty(t, statuses)
}

func TestNormalizeTokenStripsBearerPrefix(t *testing.T) {
	assert.Equal(t, "un=bob|tok", normalizeToken("Bearer un=bob|tok"))
	assert.Equal(t, "un=bob|tok", normalizeToken("un=bob|tok"))
	assert.Equal(t, "", normalizeToken("   "))
}

func TestPlaceholderModeSkipsNetworkCall(t *testing.T) {
	gw, srv := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not be called in placeholder mode")
	})
	defer srv.Close()
	gw.placeholder = true

	taskID, err := gw.Submit(t.Context(), "", "Homology", map[string]interface{}{})
	require.NoError(t, err)
	assert.Contains(t, taskID, "placeholder-")
}
