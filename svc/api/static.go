package api

import (
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"thoth/pkg/domain"
	"thoth/svc/util"

	"github.com/pkg/errors"
)

const defaultDocument = "index.html"

// Static serves the frontend bundle. The set of servable paths is fixed
// when the server starts.
type Static struct {
	index map[string]string
}

// NewStatic indexes every regular file below dir. A missing dir yields an
// empty index.
func NewStatic(dir string) (*Static, error) {
	s := &Static{index: make(map[string]string)}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		util.Warn().Str("dir", dir).Msg("public directory missing, serving no frontend")
		return s, nil
	}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		s.index[filepath.ToSlash(rel)] = path
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "index %s", dir)
	}
	util.Info().Str("dir", dir).Int("files", len(s.index)).Msg("indexed public directory")
	return s, nil
}
func (s *Static) Len() int {
	return len(s.index)
}

// Fallback serves an indexed file by path or else the default document.
func (s *Static) Fallback(w http.ResponseWriter, r *http.Request, u *url.URL) {
	path, ok := s.index[strings.TrimPrefix(u.Path, "/")]
	if !ok {
		path, ok = s.index[defaultDocument]
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, domain.ToResp(domain.ErrNotFound))
		return
	}
	f, err := os.Open(path)
	if err != nil {
		util.Error().Err(err).Str("path", path).Msg("failed to open static file")
		writeJSON(w, http.StatusNotFound, domain.ToResp(domain.ErrNotFound))
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		writeErr(w, r, domain.ErrServer.WithDetails("%s", err.Error()))
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
