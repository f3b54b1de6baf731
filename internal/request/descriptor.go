package request

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Descriptor is a request as the application describes it. Body holds a
// structured value that is JSON encoded on the wire; []byte, string and
// json.RawMessage bodies are taken as already encoded.
type Descriptor struct {
	Method string
	URL    string
	Header http.Header
	Body   any
}

// Prepared is a descriptor with its body encoded once, so the first send and
// every replay carry byte-identical bodies.
type Prepared struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Prepare encodes the body. A reader body is drained into memory.
func (d Descriptor) Prepare() (*Prepared, error) {
	method := d.Method
	if method == "" {
		method = http.MethodGet
	}

	wire, err := Encode(d.Body)
	if err != nil {
		return nil, fmt.Errorf("could not encode %s %s body: %w", method, d.URL, err)
	}

	return &Prepared{
		Method: method,
		URL:    d.URL,
		Header: d.Header.Clone(),
		Body:   wire,
	}, nil
}

// Encode turns a structured body into wire bytes. Already encoded bodies are
// passed through, so they are never encoded twice.
func Encode(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return b, nil
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	case io.Reader:
		return io.ReadAll(b)
	default:
		return json.Marshal(b)
	}
}

// Build creates a fresh *http.Request. defaults are applied first, then the
// descriptor's own headers, then the bearer token when non-empty.
func (p *Prepared) Build(ctx context.Context, defaults http.Header, bearer string) (*http.Request, error) {
	var body io.Reader
	if p.Body != nil {
		body = bytes.NewReader(p.Body)
	}

	req, err := http.NewRequestWithContext(ctx, p.Method, p.URL, body)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}

	for k, vals := range defaults {
		req.Header[k] = append([]string(nil), vals...)
	}
	for k, vals := range p.Header {
		req.Header[k] = append([]string(nil), vals...)
	}
	if p.Body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return req, nil
}
