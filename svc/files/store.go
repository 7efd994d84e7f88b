// Package files keeps paste attachments on disk under
// <root>/pastes/<pasteId>/<filename>.
package files

import (
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"thoth/pkg/domain"
	"thoth/svc/util"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/unicode/norm"
)

const pastesDir = "pastes"

var (
	ErrReserved      = errors.New("paste directory already exists")
	ErrInvalidID     = errors.New("invalid paste id")
	ErrInvalidName   = errors.New("invalid attachment filename")
	ErrDuplicateName = errors.New("duplicate attachment filename")
)

type Store struct {
	root string
}

func New(storageRoot string) (*Store, error) {
	root := filepath.Join(storageRoot, pastesDir)
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, errors.Wrap(err, "create paste storage")
	}
	return &Store{root: root}, nil
}
func (s *Store) Root() string {
	return s.root
}

// Ping reports whether the storage root is still a directory.
func (s *Store) Ping() error {
	info, err := os.Stat(s.root)
	if err != nil {
		return errors.Wrap(err, "stat paste storage")
	}
	if !info.IsDir() {
		return errors.Errorf("%s is not a directory", s.root)
	}
	return nil
}

// NormalizeName returns the NFC form of an attachment name, or
// ErrInvalidName if it cannot be used as a single path element.
func NormalizeName(name string) (string, error) {
	name = norm.NFC.String(name)
	switch {
	case name == "", name == ".", name == "..":
		return "", errors.Wrapf(ErrInvalidName, "%q", name)
	case !utf8.ValidString(name):
		return "", errors.Wrap(ErrInvalidName, "not utf-8")
	case utf8.RuneCountInString(name) > domain.MaxFilenameLen:
		return "", errors.Wrapf(ErrInvalidName, "longer than %d characters", domain.MaxFilenameLen)
	case strings.ContainsAny(name, "/\\\x00"):
		return "", errors.Wrapf(ErrInvalidName, "%q", name)
	}
	return name, nil
}

func (s *Store) dir(id string) (string, error) {
	if !util.IsID(id) {
		return "", errors.Wrapf(ErrInvalidID, "%q", id)
	}
	return filepath.Join(s.root, id), nil
}

// Reserve creates the paste directory exclusively. A second reservation of
// the same id fails with ErrReserved.
func (s *Store) Reserve(id string) error {
	dir, err := s.dir(id)
	if err != nil {
		return err
	}
	if err := os.Mkdir(dir, 0o750); err != nil {
		if os.IsExist(err) {
			return errors.Wrap(ErrReserved, id)
		}
		return errors.Wrap(err, "reserve paste directory")
	}
	return nil
}

// WriteAll writes the attachments one after another into a reserved
// directory and returns their rows in input order.
func (s *Store) WriteAll(id string, attachments []domain.Attachment) ([]domain.PasteFile, error) {
	dir, err := s.dir(id)
	if err != nil {
		return nil, err
	}
	out := make([]domain.PasteFile, 0, len(attachments))
	seen := make(map[string]struct{}, len(attachments))
	for _, a := range attachments {
		name, err := NormalizeName(a.Filename)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[name]; dup {
			return nil, errors.Wrapf(ErrDuplicateName, "%q", name)
		}
		seen[name] = struct{}{}
		sum, err := writeFile(filepath.Join(dir, name), a.Content)
		if err != nil {
			return nil, errors.Wrapf(err, "write %s", name)
		}
		out = append(out, domain.NewPasteFile(name, int64(len(a.Content)), sum))
	}
	return out, nil
}

func writeFile(path string, content []byte) (string, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", err
	}
	h, err := blake2b.New256(nil)
	if err != nil {
		f.Close()
		return "", err
	}
	if _, err := io.MultiWriter(f, h).Write(content); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (s *Store) Remove(id string) error {
	dir, err := s.dir(id)
	if err != nil {
		return err
	}
	return errors.Wrap(os.RemoveAll(dir), "remove paste directory")
}

// Entry is one directory under pastes/.
type Entry struct {
	ID      string
	ModTime time.Time
}

// List returns every paste directory. Entries that are not ids are skipped.
func (s *Store) List() ([]Entry, error) {
	des, err := os.ReadDir(s.root)
	if err != nil {
		return nil, errors.Wrap(err, "list paste directories")
	}
	out := make([]Entry, 0, len(des))
	for _, de := range des {
		if !de.IsDir() || !util.IsID(de.Name()) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{ID: de.Name(), ModTime: info.ModTime()})
	}
	return out, nil
}

// Handle is a lazy reference to one attachment. Nothing is checked until
// Exists or Open is called.
type Handle struct {
	path string
	ok   bool
}

func (s *Store) Handle(id, filename string) Handle {
	dir, err := s.dir(id)
	if err != nil {
		return Handle{}
	}
	name, err := NormalizeName(filename)
	if err != nil {
		return Handle{}
	}
	return Handle{path: filepath.Join(dir, name), ok: true}
}
func (h Handle) Exists() bool {
	if !h.ok {
		return false
	}
	info, err := os.Stat(h.path)
	return err == nil && info.Mode().IsRegular()
}
func (h Handle) Name() string {
	return filepath.Base(h.path)
}
func (h Handle) Open() (*os.File, error) {
	if !h.ok {
		return nil, os.ErrNotExist
	}
	return os.Open(h.path)
}

// ContentType sniffs the attachment contents; unreadable files are served
// as application/octet-stream.
func (h Handle) ContentType() string {
	mt, err := mimetype.DetectFile(h.path)
	if err != nil || mt == nil {
		return "application/octet-stream"
	}
	return mt.String()
}
