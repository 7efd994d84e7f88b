package api

import (
	"encoding/json"
	"net/http"

	"thoth/cfg"
	"thoth/pkg/domain"
	"thoth/svc/router"
	"thoth/svc/svc"
	"thoth/svc/util"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"
)

type Hdl struct {
	paste    *svc.Paste
	cfg      *cfg.Cfg
	validate *validator.Validate
	schema   []byte
}

func NewHdl(p *svc.Paste, c *cfg.Cfg) (*Hdl, error) {
	schema, err := createSchema(c)
	if err != nil {
		return nil, errors.Wrap(err, "build request schema")
	}
	return &Hdl{paste: p, cfg: c, validate: newValidator(), schema: schema}, nil
}

type CreateResp struct {
	ID string `json:"id"`
}

func (h *Hdl) CreatePaste(w http.ResponseWriter, r *http.Request, _ router.Params) {
	log := hlog.FromRequest(r)
	params, err := h.readCreateRequest(w, r)
	if err != nil {
		log.Warn().Err(err).Msg("rejected paste")
		writeErr(w, r, err)
		return
	}
	paste, err := h.paste.Create(r.Context(), *params)
	if err != nil {
		if errors.Is(err, svc.ErrShuttingDown) {
			w.Header().Set("Retry-After", "5")
			writeJSON(w, http.StatusServiceUnavailable, domain.ErrResp{Error: "shutting_down"})
			return
		}
		writeErr(w, r, err)
		return
	}
	log.Info().
		Str("paste_id", paste.ID).
		Str("application", paste.Application.Name).
		Int("files", len(params.Files)).
		Int("custom_keys", len(params.Environment.Custom)).
		Msg("paste created")
	writeJSON(w, http.StatusCreated, CreateResp{ID: paste.ID})
}
func (h *Hdl) GetPaste(w http.ResponseWriter, r *http.Request, params router.Params) {
	paste, err := h.paste.Get(r.Context(), params["id"])
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paste)
}
func (h *Hdl) HeadPaste(w http.ResponseWriter, r *http.Request, params router.Params) {
	exists, err := h.paste.Exists(r.Context(), params["id"])
	switch {
	case err != nil:
		hlog.FromRequest(r).Error().Err(err).Msg("existence probe failed")
		w.WriteHeader(http.StatusInternalServerError)
	case exists:
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}
func (h *Hdl) GetMetadata(w http.ResponseWriter, r *http.Request, params router.Params) {
	env, err := h.paste.Environment(r.Context(), params["id"])
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}
func (h *Hdl) ListFiles(w http.ResponseWriter, r *http.Request, params router.Params) {
	list, err := h.paste.Files(r.Context(), params["id"])
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GetFile streams one attachment. Missing files get a bare 404.
func (h *Hdl) GetFile(w http.ResponseWriter, r *http.Request, params router.Params) {
	id := params["id"]
	handle := h.paste.File(id, params["file"])
	if !handle.Exists() {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	f, err := handle.Open()
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("paste_id", id).Msg("failed to open attachment")
		w.WriteHeader(http.StatusNotFound)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("paste_id", id).Msg("failed to stat attachment")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", handle.ContentType())
	if sum := h.paste.FileChecksum(r.Context(), id, handle.Name()); sum != "" {
		w.Header().Set("ETag", `"`+sum+`"`)
	}
	http.ServeContent(w, r, handle.Name(), info.ModTime(), f)
}
func (h *Hdl) GetSchema(w http.ResponseWriter, r *http.Request, _ router.Params) {
	w.Header().Set("Content-Type", "application/schema+json")
	w.WriteHeader(http.StatusOK)
	w.Write(h.schema)
}
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := domain.Status(err)
	if status >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().
			Err(err).
			Str("request_id", util.GetRequestID(r.Context())).
			Msg("request failed")
	}
	writeJSON(w, status, domain.ToResp(err))
}
