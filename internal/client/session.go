package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dvcrn/gymapp-client/internal/credentials"
	"github.com/dvcrn/gymapp-client/internal/logger"
	"github.com/dvcrn/gymapp-client/internal/request"
	"github.com/google/uuid"
)

const sessionsPath = "/sessions"

// Session is the backend's answer to a sign-in.
type Session struct {
	credentials.Pair
	User json.RawMessage `json:"user"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignIn exchanges e-mail and password for a credential pair, persists it and
// installs the access token. It bypasses the interceptors: a 401 here means
// wrong credentials, not an expired session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	prepared, err := request.Descriptor{
		Method: http.MethodPost,
		URL:    c.resolve(sessionsPath),
		Body:   signInRequest{Email: email, Password: password},
	}.Prepare()
	if err != nil {
		return nil, err
	}

	resp, cause := c.send(ctx, prepared, uuid.NewString(), "")
	if cause != nil {
		return nil, cause
	}

	var session Session
	if err := resp.JSON(&session); err != nil {
		return nil, err
	}
	if session.AccessToken == "" {
		return nil, errors.New("sign-in response carried no access token")
	}

	if err := c.store.Save(ctx, session.Pair); err != nil {
		return nil, fmt.Errorf("failed to save credentials: %w", err)
	}
	c.SetDefaultCredential(session.AccessToken)

	logger.Get().Info().Str("store", c.store.Name()).Msg("Signed in")
	return &session, nil
}

// SignOut forgets the stored credentials and the default bearer token.
func (c *Client) SignOut(ctx context.Context) error {
	c.SetDefaultCredential("")
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	logger.Get().Info().Msg("Signed out")
	return nil
}

// LoadStoredCredential installs the access token of a previously stored
// session. It reports false when nothing is stored.
func (c *Client) LoadStoredCredential(ctx context.Context) (bool, error) {
	pair, err := c.store.Get(ctx)
	if errors.Is(err, credentials.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	c.SetDefaultCredential(pair.AccessToken)

	ev := logger.Get().Info().Str("store", c.store.Name()).Bool("has_refresh_token", pair.RefreshToken != "")
	if exp, ok := pair.AccessExpiry(); ok {
		ev = ev.Time("expires_at", exp)
	}
	ev.Msg("Loaded stored credentials")
	return true, nil
}

// Store returns the credential store backing the client.
func (c *Client) Store() credentials.Store {
	return c.store
}
