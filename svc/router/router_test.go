package router

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileMatchesAndExtracts(t *testing.T) {
	match, extract := Compile("api/test/:parameter")

	assert.True(t, match([]string{"api", "test", "my_value"}))
	assert.Equal(t, Params{"parameter": "my_value"}, extract([]string{"api", "test", "my_value"}))

	assert.False(t, match([]string{"api", "invalid", "my_value"}))
	assert.False(t, match([]string{"api", "test"}))
	assert.False(t, match([]string{"api", "test", "my_value", "extra"}))
}

func TestCompileLiteralCaseInsensitive(t *testing.T) {
	match, extract := Compile("api/paste/:id/file/:file")
	segs := []string{"API", "Paste", "abc", "FILE", "Notes.TXT"}
	require.True(t, match(segs))
	assert.Equal(t, Params{"id": "abc", "file": "Notes.TXT"}, extract(segs))
}

func TestSegments(t *testing.T) {
	assert.Equal(t, []string{"api", "paste", "x"}, Segments("/api/paste/x/"))
	assert.Equal(t, []string{"api", "paste"}, Segments("//api//paste"))
	assert.Empty(t, Segments("/"))
}

func newTestRouter(fallbackHits *int) *Router {
	return New(Routes{
		http.MethodGet: {
			{Path: "api/paste/:id", Handler: func(w http.ResponseWriter, r *http.Request, p Params) {
				w.Write([]byte("paste " + p["id"]))
			}},
			{Path: "api/paste/:id/file", Handler: func(w http.ResponseWriter, r *http.Request, p Params) {
				w.WriteHeader(http.StatusTeapot)
			}},
			{Path: "api/boom", Handler: func(w http.ResponseWriter, r *http.Request, p Params) {
				panic("kaboom")
			}},
		},
		http.MethodPost: {
			{Path: "api/paste", Handler: func(w http.ResponseWriter, r *http.Request, p Params) {
				w.WriteHeader(http.StatusCreated)
			}},
		},
		http.MethodPut: {},
	}, func(w http.ResponseWriter, r *http.Request, u *url.URL) {
		*fallbackHits++
		w.Write([]byte("fallback " + u.Path))
	})
}

func TestDispatch(t *testing.T) {
	hits := 0
	rt := newTestRouter(&hits)

	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/paste/abc/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "paste abc", rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET,HEAD,OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))

	rec = httptest.NewRecorder()
	rt.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/paste/abc/file", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	rt.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/paste", nil))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "POST,HEAD,OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Zero(t, hits)
}

func TestNoRoutesForMethod(t *testing.T) {
	hits := 0
	rt := newTestRouter(&hits)

	for _, method := range []string{http.MethodPut, http.MethodDelete, http.MethodOptions} {
		rec := httptest.NewRecorder()
		rt.ServeHTTP(rec, httptest.NewRequest(method, "/whatever", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, method)
		assert.Empty(t, rec.Body.String())
	}
	assert.Zero(t, hits)

	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/app.js", nil))
	assert.Equal(t, 1, hits)
	assert.Equal(t, "fallback /assets/app.js", rec.Body.String())
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestGetFallsBackWithoutRoutes(t *testing.T) {
	hits := 0
	rt := New(Routes{}, func(w http.ResponseWriter, r *http.Request, u *url.URL) {
		hits++
	})
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, 1, hits)
}

func TestPanicBecomesBare500(t *testing.T) {
	hits := 0
	rt := newTestRouter(&hits)
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
