package domain

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

var (
	ErrNotFound             = NewErr("not_found", http.StatusNotFound)
	ErrInvalidRequest       = NewErr("invalid_request", http.StatusBadRequest)
	ErrMissingContentHeader = NewErr("missing_content_header", http.StatusBadRequest)
	ErrInvalidContentType   = NewErr("invalid_content_type", http.StatusBadRequest)
	ErrMissingBody          = NewErr("missing_request_body", http.StatusBadRequest)
	ErrNoMultipartData      = NewErr("no_multipart_data", http.StatusBadRequest)
	ErrNoContentType        = NewErr("no_content_type", http.StatusBadRequest)
	ErrContentTooLarge      = NewErr("content_too_large", http.StatusRequestEntityTooLarge)
	ErrMalformedJSON        = NewErr("malformed_json", http.StatusBadRequest)
	ErrServer               = NewErr("server_error", http.StatusInternalServerError)
	ErrIDGenerationFailed   = NewErr("server_error", http.StatusInternalServerError)
)

// Err carries a stable client-facing code. Details are optional and never
// leave the process for 5xx statuses.
type Err struct {
	Code    string
	Details string
	Status  int
	base    *Err
}

func NewErr(code string, status int) *Err {
	return &Err{Code: code, Status: status}
}

func (e *Err) Error() string {
	if e.Details != "" {
		return e.Code + ": " + e.Details
	}
	return e.Code
}

func (e *Err) Unwrap() error {
	if e.base == nil {
		return nil
	}
	return e.base
}

func (e *Err) WithDetails(format string, args ...interface{}) *Err {
	base := e
	if e.base != nil {
		base = e.base
	}
	return &Err{
		Code:    e.Code,
		Details: fmt.Sprintf(format, args...),
		Status:  e.Status,
		base:    base,
	}
}

type ErrResp struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func ToResp(err error) ErrResp {
	var e *Err
	if errors.As(err, &e) {
		if e.Status >= http.StatusInternalServerError {
			return ErrResp{Error: e.Code}
		}
		return ErrResp{Error: e.Code, Details: e.Details}
	}
	return ErrResp{Error: ErrServer.Code}
}

func Status(err error) int {
	var e *Err
	if errors.As(err, &e) {
		return e.Status
	}
	return http.StatusInternalServerError
}
