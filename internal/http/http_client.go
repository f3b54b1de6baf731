package http

import "net/http"

// HTTPClient is the transport the API client sends requests through.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
