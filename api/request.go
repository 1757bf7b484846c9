package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

// Request describes one outbound call. Bodies are materialized once up front
// so the pipeline can replay the request after a credential refresh or a
// server-error retry.
type Request struct {
	Method string
	Path   string
	Query  url.Values

	// Body is JSON-marshalled when non-nil.
	Body any

	// Multipart, when set, takes precedence over Body. The explicit
	// ContentType is discarded so the multipart writer controls the
	// boundary.
	Multipart *MultipartPayload

	// ContentType overrides the default "application/json" for Body.
	ContentType string

	// Protected endpoints get a bearer credential attached (refreshing it
	// first when near expiry). Unprotected endpoints attach one only if it
	// is already available.
	Protected bool

	// Cacheable marks an idempotent read whose response may be served from
	// and stored into the response cache. Honored for GET only.
	Cacheable bool

	// Timeout overrides DefaultTimeout; used by long-running
	// inference-backed calls.
	Timeout time.Duration
}

// MultipartPayload is a single file upload plus optional form fields.
type MultipartPayload struct {
	FieldName string
	FileName  string
	Reader    io.Reader
	Fields    map[string]string
}

// materializeBody builds the request body bytes and the effective content
// type. Multipart payloads always use the writer-generated content type,
// regardless of any explicit ContentType on the request.
func (r *Request) materializeBody() ([]byte, string, error) {
	if r.Multipart != nil {
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)

		for field, value := range r.Multipart.Fields {
			if err := writer.WriteField(field, value); err != nil {
				return nil, "", errors.Wrap(err, "[Request.materializeBody] write field")
			}
		}
		part, err := writer.CreateFormFile(r.Multipart.FieldName, r.Multipart.FileName)
		if err != nil {
			return nil, "", errors.Wrap(err, "[Request.materializeBody] create form file")
		}
		if _, err := io.Copy(part, r.Multipart.Reader); err != nil {
			return nil, "", errors.Wrap(err, "[Request.materializeBody] copy file")
		}
		if err := writer.Close(); err != nil {
			return nil, "", errors.Wrap(err, "[Request.materializeBody] close writer")
		}
		return buf.Bytes(), writer.FormDataContentType(), nil
	}

	if r.Body == nil {
		return nil, "", nil
	}

	data, err := json.Marshal(r.Body)
	if err != nil {
		return nil, "", errors.Wrap(err, "[Request.materializeBody] marshal body")
	}
	contentType := r.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	return data, contentType, nil
}
