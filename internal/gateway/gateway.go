// Package gateway implements the Scheduler Gateway (spec §4.2): a JSON-RPC
// 2.0 client over HTTP for the external AppService scheduler, used to
// submit steps and poll their status.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/bvbrc/workflow-conductor/internal/config"
	"github.com/bvbrc/workflow-conductor/internal/wferrors"
)

const contentType = "application/jsonrpc+json"

// TaskStatus is one step's status as reported by query_tasks.
type TaskStatus struct {
	TaskID      string
	Status      string // "completed", "running", "failed"
	ElapsedTime float64
	Error       string
}

// Gateway submits steps to, and polls status from, the external AppService
// scheduler over JSON-RPC 2.0.
type Gateway struct {
	baseURL     string
	appServiceURL string
	httpClient  *http.Client
	limiter     *rate.Limiter
	placeholder bool
	logger      *slog.Logger
}

// New constructs a Gateway from cfg. logger is used for placeholder-mode
// warnings and RPC error logging.
func New(cfg config.SchedulerConfig, logger *slog.Logger) *Gateway {
	return &Gateway{
		baseURL:       cfg.BaseURL,
		appServiceURL: cfg.URL,
		httpClient:    &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		limiter:       rate.NewLimiter(rate.Limit(10), 20),
		placeholder:   cfg.Placeholder,
		logger:        logger,
	}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      string      `json:"id"`
}

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

type rpcResponse struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// normalizeToken strips a leading "Bearer " prefix, since BV-BRC/P3
// services expect the raw token string as Authorization, not an
// OAuth2-style bearer wrapper.
func normalizeToken(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	if len(token) >= 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token
}

// call performs one JSON-RPC 2.0 request, returning the raw "result" field.
func (g *Gateway) call(ctx context.Context, authToken, method string, params interface{}) (json.RawMessage, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, wferrors.Wrap(wferrors.TypeTransient, err, "rate limiter")
	}

	reqBody := rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      uuid.New().String(),
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, wferrors.Wrap(wferrors.TypeInternal, err, "marshal jsonrpc request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.appServiceURL, bytes.NewReader(payload))
	if err != nil {
		return nil, wferrors.Wrap(wferrors.TypeInternal, err, "build jsonrpc request")
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	if token := normalizeToken(authToken); token != "" {
		httpReq.Header.Set("Authorization", token)
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, wferrors.Wrap(wferrors.TypeTransient, err, fmt.Sprintf("jsonrpc call %s", method))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wferrors.Wrap(wferrors.TypeTransient, err, "read jsonrpc response")
	}

	var rpcResp rpcResponse
	if unmarshalErr := json.Unmarshal(body, &rpcResp); unmarshalErr != nil {
		if resp.StatusCode >= 500 {
			return nil, wferrors.Newf(wferrors.TypeTransient, "jsonrpc %s: http %d: %s", method, resp.StatusCode, string(body))
		}
		return nil, wferrors.Wrap(wferrors.TypeInternal, unmarshalErr, "decode jsonrpc response")
	}

	if rpcResp.Error != nil {
		g.logger.Error("jsonrpc error envelope", "method", method, "code", rpcResp.Error.Code, "message", rpcResp.Error.Message)
		return nil, wferrors.Newf(wferrors.TypeSubmission, "jsonrpc error from %s: code=%d message=%s", method, rpcResp.Error.Code, rpcResp.Error.Message)
	}

	return rpcResp.Result, nil
}

// Submit dispatches a step's params to app via AppService.start_app2 and
// returns the assigned task id. In placeholder mode (no auth token and
// configured placeholder=true) a local id is generated instead of calling
// the scheduler, for offline testing only (spec §4.2).
func (g *Gateway) Submit(ctx context.Context, authToken, app string, params map[string]interface{}) (string, error) {
	if g.placeholder && normalizeToken(authToken) == "" {
		taskID := "placeholder-" + uuid.New().String()
		g.logger.Warn("scheduler gateway in placeholder mode, generating local task id", "app", app, "task_id", taskID)
		return taskID, nil
	}

	rpcParams := []interface{}{app, params, map[string]string{"base_url": g.baseURL}}
	raw, err := g.call(ctx, authToken, "AppService.start_app2", rpcParams)
	if err != nil {
		return "", err
	}

	taskInfo, err := firstTaskInfo(raw)
	if err != nil {
		return "", wferrors.Wrap(wferrors.TypeSubmission, err, "parse start_app2 result")
	}

	taskID, _ := taskInfo["id"].(string)
	if taskID == "" {
		if tid, ok := taskInfo["task_id"].(string); ok {
			taskID = tid
		}
	}
	if taskID == "" {
		return "", wferrors.Newf(wferrors.TypeSubmission, "start_app2 response for app %s missing id/task_id", app)
	}
	return taskID, nil
}

// firstTaskInfo extracts a single task-info object from a start_app2
// result, which may be a one-element array or a bare object (spec §4.2).
func firstTaskInfo(raw json.RawMessage) (map[string]interface{}, error) {
	var asArray []map[string]interface{}
	if err := json.Unmarshal(raw, &asArray); err == nil {
		if len(asArray) == 0 {
			return nil, fmt.Errorf("empty result array")
		}
		return asArray[0], nil
	}

	var asObject map[string]interface{}
	if err := json.Unmarshal(raw, &asObject); err == nil {
		return asObject, nil
	}
	return nil, fmt.Errorf("result is neither an array nor an object: %s", string(raw))
}

// Query polls the scheduler for a batch of task ids via
// AppService.query_tasks and returns their current status, keyed by task
// id. Missing task ids are simply absent from the returned map.
func (g *Gateway) Query(ctx context.Context, authToken string, taskIDs []string) (map[string]TaskStatus, error) {
	if len(taskIDs) == 0 {
		return map[string]TaskStatus{}, nil
	}

	rpcParams := []interface{}{taskIDs}
	raw, err := g.call(ctx, authToken, "AppService.query_tasks", rpcParams)
	if err != nil {
		return nil, err
	}

	statusMap, err := extractStatusMap(raw)
	if err != nil {
		return nil, wferrors.Wrap(wferrors.TypeTransient, err, "parse query_tasks result")
	}

	out := make(map[string]TaskStatus, len(statusMap))
	for taskID, v := range statusMap {
		entry, _ := v.(map[string]interface{})
		if entry == nil {
			continue
		}
		status := TaskStatus{TaskID: taskID}
		if s, ok := entry["status"].(string); ok {
			status.Status = s
		}
		if e, ok := entry["elapsed_time"].(float64); ok {
			status.ElapsedTime = e
		}
		if e, ok := entry["error"].(string); ok {
			status.Error = e
		}
		out[taskID] = status
	}
	return out, nil
}

// extractStatusMap unwraps query_tasks's result, which may be a
// single-element array containing the status map or a bare map (spec
// §4.2).
func extractStatusMap(raw json.RawMessage) (map[string]interface{}, error) {
	var asArray []map[string]interface{}
	if err := json.Unmarshal(raw, &asArray); err == nil {
		if len(asArray) == 0 {
			return map[string]interface{}{}, nil
		}
		return asArray[0], nil
	}

	var asObject map[string]interface{}
	if err := json.Unmarshal(raw, &asObject); err == nil {
		return asObject, nil
	}
	return nil, fmt.Errorf("result is neither an array nor an object: %s", string(raw))
}
