package api

import (
	"context"
	"net/http"
	"time"

	"thoth/cfg"
	"thoth/svc/db"
	"thoth/svc/files"
	"thoth/svc/router"
	"thoth/svc/svc"
	"thoth/svc/util"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/hlog"
)

type Server struct {
	router     *chi.Mux
	cfg        *cfg.Cfg
	db         *db.SQLite
	files      *files.Store
	rdb        *db.Redis
	httpServer *http.Server
}

// Routes is the public paste API. Templates are matched in order.
func Routes(h *Hdl) router.Routes {
	return router.Routes{
		http.MethodHead: {
			{Path: "api/paste/:id", Handler: h.HeadPaste},
		},
		http.MethodGet: {
			{Path: "api/schema", Handler: h.GetSchema},
			{Path: "api/paste/:id", Handler: h.GetPaste},
			{Path: "api/paste/:id/metadata", Handler: h.GetMetadata},
			{Path: "api/paste/:id/file", Handler: h.ListFiles},
			{Path: "api/paste/:id/file/:file", Handler: h.GetFile},
		},
		http.MethodPost: {
			{Path: "api/paste", Handler: h.CreatePaste},
		},
	}
}

// NewServer mounts health, readiness and metrics on chi and hands every
// other path to the paste router. rdb may be nil.
func NewServer(c *cfg.Cfg, p *svc.Paste, sqlDB *db.SQLite, fs *files.Store, rdb *db.Redis) (*Server, error) {
	hdl, err := NewHdl(p, c)
	if err != nil {
		return nil, err
	}
	static, err := NewStatic(c.PublicDir)
	if err != nil {
		return nil, err
	}
	s := &Server{cfg: c, db: sqlDB, files: fs, rdb: rdb}
	mw := NewMw(c)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(mw.Recoverer)
		r.Get("/health", s.Health)
		r.Get("/ready", s.Ready)
		r.Handle("/metrics", mw.BasicAuthMetrics(promhttp.Handler()))
	})
	if c.EnablePprof {
		r.Mount("/debug", mw.BasicAuthMetrics(middleware.Profiler()))
	}
	r.Group(func(r chi.Router) {
		r.Use(mw.Recoverer)
		r.Use(mw.RequestID)
		r.Use(hlog.NewHandler(util.GetLogger()))
		r.Use(hlog.AccessHandler(mw.AccessLog))
		if c.BehindProxy {
			r.Use(middleware.RealIP)
		}
		r.Use(mw.ContextTimeout)
		r.Use(mw.SecurityHeaders)
		r.Handle("/*", router.New(Routes(hdl), static.Fallback))
	})

	s.router = r
	s.httpServer = &http.Server{
		Addr:              ":" + c.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    64 * 1024,
	}
	return s, nil
}
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
func (s *Server) Start() error {
	util.Info().Str("port", s.cfg.Port).Msg("starting server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		util.Error().Err(err).Str("port", s.cfg.Port).Msg("server failed to start")
		return err
	}
	return nil
}
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
