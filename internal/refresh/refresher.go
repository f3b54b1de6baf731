package refresh

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dvcrn/gymapp-client/internal/apperror"
	"github.com/dvcrn/gymapp-client/internal/credentials"
	serverhttp "github.com/dvcrn/gymapp-client/internal/http"
)

// HTTPRefresher calls the backend's refresh endpoint directly on the
// transport, outside the interceptor chain.
type HTTPRefresher struct {
	httpClient serverhttp.HTTPClient
	url        string
}

// NewHTTPRefresher creates a refresher posting to url.
func NewHTTPRefresher(httpClient serverhttp.HTTPClient, url string) *HTTPRefresher {
	return &HTTPRefresher{httpClient: httpClient, url: url}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh exchanges refreshToken for a new pair. Any non-2xx response is an
// error. When the backend does not rotate the refresh token the old one is kept.
func (r *HTTPRefresher) Refresh(ctx context.Context, refreshToken string) (credentials.Pair, error) {
	bodyBytes, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return credentials.Pair{}, fmt.Errorf("could not marshal refresh body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(bodyBytes))
	if err != nil {
		return credentials.Pair{}, fmt.Errorf("could not create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return credentials.Pair{}, apperror.Classify(apperror.FromTransport(nil, err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return credentials.Pair{}, fmt.Errorf("could not read refresh response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return credentials.Pair{}, apperror.Classify(apperror.Failure{
			Response: &apperror.Response{Status: resp.StatusCode, Body: respBody},
		})
	}

	var pair credentials.Pair
	if err := json.Unmarshal(respBody, &pair); err != nil {
		return credentials.Pair{}, fmt.Errorf("could not unmarshal refresh response: %w", err)
	}
	if pair.AccessToken == "" {
		return credentials.Pair{}, errors.New("refresh response carried no access token")
	}
	if pair.RefreshToken == "" {
		pair.RefreshToken = refreshToken
	}
	return pair, nil
}
