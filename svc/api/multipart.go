package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"thoth/pkg/domain"
	"thoth/svc/files"

	"github.com/pkg/errors"
)

const multipartRelated = "multipart/related"

// readCreateRequest turns a multipart/related body (RFC 2387) into create
// parameters. Part 0 is the JSON document, every further part an
// attachment. Every failure is a *domain.Err.
func (h *Hdl) readCreateRequest(w http.ResponseWriter, r *http.Request) (*domain.CreateParams, error) {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		return nil, domain.ErrMissingContentHeader
	}
	mediaType, mtParams, err := mime.ParseMediaType(contentType)
	boundary := mtParams["boundary"]
	if err != nil || mediaType != multipartRelated || boundary == "" {
		return nil, domain.ErrInvalidContentType.WithDetails(
			"this api expects a request using the Content-Type multipart/related including a valid boundary (see RFC2387)")
	}
	if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
		return nil, domain.ErrMissingBody
	}
	// Part headers and boundaries come on top of the counted part bodies.
	r.Body = http.MaxBytesReader(w, r.Body, 2*h.cfg.MaxBodySize+64*1024)

	mr := multipart.NewReader(r.Body, boundary)
	var (
		params    *domain.CreateParams
		readBytes int64
		seen      = make(map[string]struct{})
	)
	for position := 0; ; position++ {
		part, err := mr.NextRawPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, h.partError(err, position)
		}
		partType := part.Header.Get("Content-Type")
		if partType == "" {
			return nil, domain.ErrNoContentType.WithDetails("missing Content-Type header in multipart at index %d", position)
		}
		partMedia, _, err := mime.ParseMediaType(partType)
		if err != nil {
			return nil, domain.ErrInvalidRequest.WithDetails("unparseable Content-Type for multipart at index %d", position)
		}
		remaining := h.cfg.MaxBodySize - readBytes
		body, err := io.ReadAll(io.LimitReader(part, remaining+1))
		if err != nil {
			return nil, h.partError(err, position)
		}
		readBytes += int64(len(body))
		if readBytes > h.cfg.MaxBodySize {
			return nil, domain.ErrContentTooLarge.WithDetails(
				"exceeded body size limit at multipart with index %d (more than %dB)", position, h.cfg.MaxBodySize)
		}

		if position == 0 {
			if partMedia != "application/json" {
				return nil, domain.ErrInvalidRequest.WithDetails(
					"first multipart entry must be general paste information (Content-Type application/json)")
			}
			params, err = h.decodeDocument(body)
			if err != nil {
				return nil, err
			}
			continue
		}

		if !h.allowed(partMedia) {
			return nil, domain.ErrInvalidRequest.WithDetails(
				"unsupported content type %s for multipart at index %d - Supported are: %s",
				partMedia, position, strings.Join(h.cfg.AllowedContentTypes, ", "))
		}
		disposition := part.Header.Get("Content-Disposition")
		if disposition == "" {
			return nil, domain.ErrInvalidRequest.WithDetails("missing Content-Disposition header for multipart at index %d", position)
		}
		_, dispParams, err := mime.ParseMediaType(disposition)
		if err != nil {
			return nil, domain.ErrInvalidRequest.WithDetails("malformed Content-Disposition header for multipart at index %d", position)
		}
		filename := dispParams["filename"]
		if filename == "" {
			filename = dispParams["name"]
		}
		if filename == "" {
			return nil, domain.ErrInvalidRequest.WithDetails(
				"missing 'filename' or 'name' parameter in Content-Disposition header for multipart at index %d", position)
		}
		filename, err = files.NormalizeName(filename)
		if err != nil {
			return nil, domain.ErrInvalidRequest.WithDetails("%s for multipart at index %d", err.Error(), position)
		}
		if _, dup := seen[filename]; dup {
			return nil, domain.ErrInvalidRequest.WithDetails("duplicate filename in attachments: %s", filename)
		}
		seen[filename] = struct{}{}
		params.Files = append(params.Files, domain.Attachment{Filename: filename, Content: body})
	}
	if params == nil {
		return nil, domain.ErrNoMultipartData.WithDetails("request contains no multipart entries")
	}
	return params, nil
}

func (h *Hdl) partError(err error, position int) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return domain.ErrContentTooLarge.WithDetails("request body exceeds %dB", maxErr.Limit)
	}
	return domain.ErrInvalidRequest.WithDetails("multipart could not be parsed at index %d - is it malformed?", position)
}

func (h *Hdl) decodeDocument(body []byte) (*domain.CreateParams, error) {
	if !json.Valid(body) {
		return nil, domain.ErrMalformedJSON
	}
	var params domain.CreateParams
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&params); err != nil {
		return nil, domain.ErrInvalidRequest.WithDetails("%s", err.Error())
	}
	params.Normalize()
	if err := validateCreate(h.validate, &params); err != nil {
		return nil, domain.ErrInvalidRequest.WithDetails("%s", err.Error())
	}
	return &params, nil
}

func (h *Hdl) allowed(mediaType string) bool {
	for _, ct := range h.cfg.AllowedContentTypes {
		if strings.EqualFold(ct, mediaType) {
			return true
		}
	}
	return false
}
