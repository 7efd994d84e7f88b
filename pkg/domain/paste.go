package domain

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"time"
)

const (
	IDLength        = 32
	MaxFilenameLen  = 128
	MaxCustomKeyLen = 64
	MaxArrayLength  = 2096
)

type Application struct {
	Name    string `json:"name" validate:"required,max=100"`
	Version string `json:"version" validate:"required,max=25"`
}

type Paste struct {
	ID          string
	CreatedAt   time.Time
	Application Application
}

type pasteJSON struct {
	ID          string      `json:"id"`
	CreatedAt   int64       `json:"createdAt"`
	Application Application `json:"application"`
}

func (p Paste) MarshalJSON() ([]byte, error) {
	return json.Marshal(pasteJSON{
		ID:          p.ID,
		CreatedAt:   p.CreatedAt.UnixMilli(),
		Application: p.Application,
	})
}

func (p *Paste) UnmarshalJSON(data []byte) error {
	var pj pasteJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return err
	}
	p.ID = pj.ID
	p.CreatedAt = time.UnixMilli(pj.CreatedAt).UTC()
	p.Application = pj.Application
	return nil
}

type PasteFile struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	Extension string `json:"extension"`
	Checksum  string `json:"-"`
}

func NewPasteFile(filename string, size int64, checksum string) PasteFile {
	return PasteFile{
		Filename:  filename,
		Size:      size,
		Extension: filepath.Ext(filename),
		Checksum:  checksum,
	}
}

// Attachment is an uploaded file before it is persisted.
type Attachment struct {
	Filename string
	Content  []byte
}

type CreateParams struct {
	Application Application  `json:"application"`
	Environment Environment  `json:"environment"`
	Files       []Attachment `json:"-"`
}

// Normalize trims every predefined string field.
func (p *CreateParams) Normalize() {
	p.Application.Name = strings.TrimSpace(p.Application.Name)
	p.Application.Version = strings.TrimSpace(p.Application.Version)
	os := &p.Environment.OperatingSystem
	os.Name = strings.TrimSpace(os.Name)
	os.Version = strings.TrimSpace(os.Version)
	os.Architecture = strings.TrimSpace(os.Architecture)
	if jvm := p.Environment.JavaVirtualMachine; jvm != nil {
		jvm.Name = strings.TrimSpace(jvm.Name)
		jvm.Version = strings.TrimSpace(jvm.Version)
		jvm.Vendor = strings.TrimSpace(jvm.Vendor)
	}
}
