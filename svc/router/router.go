// Package router dispatches requests against per-method tables of path
// templates such as "api/paste/:id/file/:file".
package router

import (
	"net/http"
	"net/url"
	"strings"

	"thoth/svc/util"
)

type Params map[string]string

type Handler func(w http.ResponseWriter, r *http.Request, params Params)

// Fallback receives every request that matched no route, except methods
// without any routes other than GET, which get a bare 404.
type Fallback func(w http.ResponseWriter, r *http.Request, u *url.URL)

type Route struct {
	Path    string
	Handler Handler
}

type Routes map[string][]Route

type compiled struct {
	template string
	match    func(segments []string) bool
	extract  func(segments []string) Params
	handler  Handler
}

type Router struct {
	routes   map[string][]compiled
	fallback Fallback
}

func New(routes Routes, fallback Fallback) *Router {
	r := &Router{
		routes:   make(map[string][]compiled, len(routes)),
		fallback: fallback,
	}
	for method, list := range routes {
		method = strings.ToUpper(method)
		for _, route := range list {
			match, extract := Compile(route.Path)
			r.routes[method] = append(r.routes[method], compiled{
				template: route.Path,
				match:    match,
				extract:  extract,
				handler:  route.Handler,
			})
		}
	}
	return r
}

func IsParam(segment string) bool {
	return len(segment) > 1 && segment[0] == ':'
}

// Segments strips one trailing slash and drops empty segments.
func Segments(path string) []string {
	path = strings.TrimSuffix(path, "/")
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Compile turns a template into a matcher and a parameter extractor. Literal
// segments compare case-insensitively; the segment count must be equal.
func Compile(template string) (func([]string) bool, func([]string) Params) {
	tmpl := Segments(template)
	match := func(segments []string) bool {
		if len(segments) != len(tmpl) {
			return false
		}
		for i, seg := range tmpl {
			if IsParam(seg) {
				if segments[i] == "" {
					return false
				}
				continue
			}
			if !strings.EqualFold(seg, segments[i]) {
				return false
			}
		}
		return true
	}
	extract := func(segments []string) Params {
		params := make(Params)
		for i, seg := range tmpl {
			if IsParam(seg) && i < len(segments) {
				params[seg[1:]] = segments[i]
			}
		}
		return params
	}
	return match, extract
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	segments := Segments(r.URL.Path)
	routes, ok := rt.routes[r.Method]
	if (!ok || len(routes) == 0) && r.Method != http.MethodGet {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	for _, route := range routes {
		if !route.match(segments) {
			continue
		}
		rt.invoke(w, r, route, segments)
		return
	}
	if rt.fallback == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	rt.fallback(w, r, r.URL)
}

func (rt *Router) invoke(w http.ResponseWriter, r *http.Request, route compiled, segments []string) {
	cw := &corsWriter{ResponseWriter: w, method: r.Method}
	defer func() {
		if rvr := recover(); rvr != nil {
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}
			util.Error().
				Interface("panic", rvr).
				Str("route", route.template).
				Str("request_id", util.GetRequestID(r.Context())).
				Msg("route handler panicked")
			if !cw.wroteHeader {
				w.Header().Del("Content-Type")
				w.WriteHeader(http.StatusInternalServerError)
			}
		}
	}()
	route.handler(cw, r, route.extract(segments))
	if !cw.wroteHeader {
		cw.WriteHeader(http.StatusOK)
	}
}

// corsWriter adds the CORS headers at the moment the handler commits its
// status line.
type corsWriter struct {
	http.ResponseWriter
	method      string
	wroteHeader bool
}

func (w *corsWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", w.method+",HEAD,OPTIONS")
	w.ResponseWriter.WriteHeader(status)
}
func (w *corsWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}
func (w *corsWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
