package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dvcrn/gymapp-client/internal/apperror"
	"github.com/dvcrn/gymapp-client/internal/credentials"
	serverhttp "github.com/dvcrn/gymapp-client/internal/http"
	"github.com/dvcrn/gymapp-client/internal/logger"
	"github.com/dvcrn/gymapp-client/internal/refresh"
	"github.com/dvcrn/gymapp-client/internal/request"
	"github.com/google/uuid"
)

const (
	userAgent       = "gymapp-client/1.0"
	requestIDHeader = "X-Request-ID"
)

// Options configures a Client.
type Options struct {
	BaseURL string
	// RefreshPath is the backend's token refresh endpoint, relative to BaseURL.
	RefreshPath string
	// Headers are sent with every request.
	Headers http.Header
}

// Response is a fully buffered backend response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("could not unmarshal response body: %w", err)
	}
	return nil
}

type registration struct {
	id    uuid.UUID
	coord *refresh.Coordinator
}

// Client is the authenticated API client. Failed calls are classified and
// then offered to the registered interceptors in registration order.
type Client struct {
	httpClient serverhttp.HTTPClient
	store      credentials.Store
	refresher  refresh.Refresher
	baseURL    string

	mu      sync.RWMutex
	headers http.Header
	bearer  string

	regMu         sync.RWMutex
	registrations []*registration
}

// New creates a client. The refresh endpoint is called on httpClient directly.
func New(opts Options, httpClient serverhttp.HTTPClient, store credentials.Store) *Client {
	headers := opts.Headers.Clone()
	if headers == nil {
		headers = http.Header{}
	}
	if headers.Get("Accept") == "" {
		headers.Set("Accept", "application/json")
	}
	if headers.Get("User-Agent") == "" {
		headers.Set("User-Agent", userAgent)
	}

	c := &Client{
		httpClient: httpClient,
		store:      store,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		headers:    headers,
	}
	c.refresher = refresh.NewHTTPRefresher(httpClient, c.resolve(opts.RefreshPath))
	return c
}

// SetDefaultCredential sets the bearer token sent with every request. An
// empty token removes the Authorization header.
func (c *Client) SetDefaultCredential(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bearer = token
}

// Bearer returns the current default bearer token.
func (c *Client) Bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bearer
}

func (c *Client) defaultHeaders() http.Header {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.headers.Clone()
}

// Register installs a refresh interceptor that calls onSessionExpired when
// the session cannot be recovered. The returned function removes exactly
// this interceptor; calling it again does nothing.
func (c *Client) Register(onSessionExpired refresh.SessionExpiredFunc) (dispose func()) {
	reg := &registration{
		id:    uuid.New(),
		coord: refresh.NewCoordinator(c.store, c.refresher, c, onSessionExpired),
	}

	c.regMu.Lock()
	c.registrations = append(c.registrations, reg)
	c.regMu.Unlock()

	logger.Get().Debug().Str("interceptor", reg.id.String()).Msg("Registered refresh interceptor")

	var once sync.Once
	return func() {
		once.Do(func() {
			c.regMu.Lock()
			defer c.regMu.Unlock()
			for i, r := range c.registrations {
				if r.id == reg.id {
					c.registrations = append(c.registrations[:i:i], c.registrations[i+1:]...)
					break
				}
			}
			logger.Get().Debug().Str("interceptor", reg.id.String()).Msg("Removed refresh interceptor")
		})
	}
}

// Interceptors returns the number of registered interceptors.
func (c *Client) Interceptors() int {
	c.regMu.RLock()
	defer c.regMu.RUnlock()
	return len(c.registrations)
}

// Refreshing reports whether any interceptor has a refresh in flight.
func (c *Client) Refreshing() bool {
	for _, reg := range c.snapshot() {
		if refreshing, _ := reg.coord.State(); refreshing {
			return true
		}
	}
	return false
}

// Pending returns the number of requests waiting on an in-flight refresh.
func (c *Client) Pending() int {
	n := 0
	for _, reg := range c.snapshot() {
		_, pending := reg.coord.State()
		n += pending
	}
	return n
}

func (c *Client) snapshot() []*registration {
	c.regMu.RLock()
	defer c.regMu.RUnlock()
	return append([]*registration(nil), c.registrations...)
}

// Do sends the request with the current credential attached. A 2xx response
// is returned as is. Failures surface as *apperror.Error, except unknown
// failures which are returned unchanged.
func (c *Client) Do(ctx context.Context, d request.Descriptor) (*Response, error) {
	d.URL = c.resolve(d.URL)
	prepared, err := d.Prepare()
	if err != nil {
		return nil, err
	}

	reqID := uuid.NewString()
	used := c.Bearer()
	resp, cause := c.send(ctx, prepared, reqID, used)
	if cause == nil {
		return resp, nil
	}

	for _, reg := range c.snapshot() {
		out := reg.coord.Recover(ctx, used, cause)
		if out.Err != nil {
			cause = apperror.Classify(apperror.Failure{Err: out.Err})
			continue
		}

		logger.Get().Debug().Str("request_id", reqID).Int("position", out.Position).Msg("Replaying request with refreshed credential")
		used = out.Token
		resp, cause = c.send(ctx, prepared, reqID, used)
		if cause == nil {
			return resp, nil
		}
	}

	if cause.Kind == apperror.KindUnknown && cause.Err != nil {
		return nil, cause.Err
	}
	return nil, cause
}

// send performs one transport call. The returned error is nil only for 2xx.
func (c *Client) send(ctx context.Context, p *request.Prepared, reqID, bearer string) (*Response, *apperror.Error) {
	req, err := p.Build(ctx, c.defaultHeaders(), bearer)
	if err != nil {
		return nil, apperror.Classify(apperror.Failure{Err: err})
	}
	req.Header.Set(requestIDHeader, reqID)

	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Get().Debug().Err(err).Str("request_id", reqID).Str("method", p.Method).Str("url", p.URL).Msg("Request failed")
		return nil, apperror.Classify(apperror.FromTransport(nil, err))
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, apperror.Classify(apperror.FromTransport(nil, fmt.Errorf("could not read response body: %w", err)))
	}

	logger.Get().Debug().
		Str("request_id", reqID).
		Str("method", p.Method).
		Str("url", p.URL).
		Int("status_code", httpResp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Request complete")

	resp := &Response{Status: httpResp.StatusCode, Header: httpResp.Header, Body: body}
	if resp.Status >= 200 && resp.Status <= 299 {
		return resp, nil
	}
	return resp, apperror.Classify(apperror.FromTransport(&apperror.Response{Status: resp.Status, Body: body}, nil))
}

func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}
