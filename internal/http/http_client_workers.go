//go:build js && wasm

package http

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/syumai/workers/cloudflare/fetch"
)

// WorkersHTTPClient implements HTTPClient for Cloudflare Workers
type WorkersHTTPClient struct {
	client  *fetch.Client
	timeout time.Duration
}

// NewHTTPClient creates a new HTTP client for Workers environment
func NewHTTPClient(timeout time.Duration) HTTPClient {
	return &WorkersHTTPClient{
		client:  fetch.NewClient(),
		timeout: timeout,
	}
}

// Do performs an HTTP request using Cloudflare Workers fetch
func (c *WorkersHTTPClient) Do(req *http.Request) (*http.Response, error) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(req.Context(), c.timeout)
	} else {
		ctx, cancel = context.WithCancel(req.Context())
	}

	fetchReq, err := fetch.NewRequest(ctx, req.Method, req.URL.String(), req.Body)
	if err != nil {
		cancel()
		return nil, err
	}
	for key, values := range req.Header {
		for _, value := range values {
			fetchReq.Header.Add(key, value)
		}
	}

	resp, err := c.client.Do(fetchReq, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelOnClose releases the request deadline once the body is consumed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	defer b.cancel()
	return b.ReadCloser.Close()
}
