// Package workspace implements the Workspace Probe (spec §4.3): a
// fail-open existence check against the user's workspace file service,
// used only by the Workflow Compiler's output-deconfliction pass.
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Prober checks whether a path already exists in a user's workspace.
type Prober interface {
	Exists(ctx context.Context, authToken, path string) bool
}

// HTTPProber is a Prober backed by the BV-BRC workspace file-metadata
// service. Any error talking to the workspace is logged and treated as
// "does not exist" — spec §4.3 requires the probe never block submission
// on a spurious collision check.
type HTTPProber struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPProber constructs a prober against the workspace service at
// baseURL (e.g. "https://www.bv-brc.org/api/workspace").
func NewHTTPProber(baseURL string, logger *slog.Logger) *HTTPProber {
	return &HTTPProber{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// Exists reports whether path, or its hidden-sibling form "<dir>/.<name>",
// already exists in the workspace. Any workspace error is fail-open: it is
// logged and treated as non-existent.
func (p *HTTPProber) Exists(ctx context.Context, authToken, path string) bool {
	dir, name := splitPath(path)
	hidden := joinPath(dir, "."+name)

	if p.probeOne(ctx, authToken, path) {
		return true
	}
	if p.probeOne(ctx, authToken, hidden) {
		return true
	}
	return false
}

func (p *HTTPProber) probeOne(ctx context.Context, authToken, path string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/file"+path, nil)
	if err != nil {
		p.logger.Warn("workspace probe: failed to build request", "path", path, "error", err)
		return false
	}
	if authToken != "" {
		req.Header.Set("Authorization", authToken)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Debug("workspace probe: request failed, treating as non-existent", "path", path, "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		p.logger.Warn("workspace probe: server error, treating as non-existent", "path", path, "status", resp.StatusCode)
		return false
	}

	return resp.StatusCode == http.StatusOK
}

// splitPath divides a "/dir/name" path into its directory and base name,
// matching the "<dir>/<file>".replace("//","/") normalization the source
// implementation performs.
func splitPath(path string) (dir, name string) {
	path = strings.TrimRight(path, "/")
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return "", path
	}
	return path[:idx], path[idx+1:]
}

func joinPath(dir, name string) string {
	if dir == "" {
		return "/" + name
	}
	return fmt.Sprintf("%s/%s", dir, name)
}

// NullProber always reports non-existence without making any network
// call — used when no workspace credential is configured, matching the
// source's "no client → every check skipped" fallback.
type NullProber struct{}

func (NullProber) Exists(context.Context, string, string) bool { return false }
