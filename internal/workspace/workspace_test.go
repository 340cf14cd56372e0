package workspace

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestProber(t *testing.T, handler http.HandlerFunc) (*HTTPProber, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	return NewHTTPProber(srv.URL, slog.New(slog.NewTextHandler(io.Discard, nil))), srv
}

func TestExistsReturnsTrueOnDirectHit(t *testing.T) {
	prober, srv := newTestProber(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/file/home/user/out/report" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	defer srv.Close()

	assert.True(t, prober.Exists(t.Context(), "tok", "/home/user/out/report"))
}

func TestExistsChecksHiddenSibling(t *testing.T) {
	prober, srv := newTestProber(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/file/home/user/out/.report" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	defer srv.Close()

	assert.True(t, prober.Exists(t.Context(), "tok", "/home/user/out/report"))
}

func TestExistsFalseWhenNeitherFormPresent(t *testing.T) {
	prober, srv := newTestProber(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	defer srv.Close()

	assert.False(t, prober.Exists(t.Context(), "tok", "/home/user/out/report"))
}

func TestExistsFailsOpenOnServerError(t *testing.T) {
	prober, srv := newTestProber(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer srv.Close()

	assert.False(t, prober.Exists(t.Context(), "tok", "/home/user/out/report"))
}

func TestNullProberAlwaysFalse(t *testing.T) {
	var p NullProber
	assert.False(t, p.Exists(t.Context(), "tok", "/anything"))
}

func TestSplitPath(t *testing.T) {
	dir, name := splitPath("/home/user/out/report")
	assert.Equal(t, "/home/user/out", dir)
	assert.Equal(t, "report", name)
}
