package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvcrn/gymapp-client/internal/apperror"
	"github.com/dvcrn/gymapp-client/internal/credentials"
	serverhttp "github.com/dvcrn/gymapp-client/internal/http"
	"github.com/dvcrn/gymapp-client/internal/request"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seenRequest struct {
	path      string
	auth      string
	requestID string
	userAgent string
	body      []byte
}

// backend fakes the gym API. Only the current access token is accepted; the
// refresh endpoint rotates it to T2/R2.
type backend struct {
	refreshCalls  atomic.Int32
	refreshStatus int
	release       chan struct{}
	releaseOnce   sync.Once

	mu    sync.Mutex
	valid string
	seen  []seenRequest
}

// newBackend starts the fake. A non-zero refreshStatus makes every refresh
// fail with it; gated holds refresh responses until release is closed.
func newBackend(t *testing.T, refreshStatus int, gated bool) (*backend, *httptest.Server) {
	b := &backend{valid: "T2", refreshStatus: refreshStatus}
	if gated {
		b.release = make(chan struct{})
	}
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)
	if gated {
		t.Cleanup(b.open)
	}
	return b, srv
}

// open lets held refresh responses through.
func (b *backend) open() {
	b.releaseOnce.Do(func() { close(b.release) })
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")

	switch r.URL.Path {
	case "/sessions":
		var creds signInRequest
		_ = json.Unmarshal(body, &creds)
		if creds.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"status":"error","message":"Invalid e-mail or password."}`))
			return
		}
		_, _ = w.Write([]byte(`{"token":"T1","refresh_token":"R1","user":{"id":7,"email":"` + creds.Email + `"}}`))

	case "/sessions/refresh-token":
		b.refreshCalls.Add(1)
		if b.release != nil {
			<-b.release
		}
		if b.refreshStatus != 0 {
			w.WriteHeader(b.refreshStatus)
			_, _ = w.Write([]byte(`{"status":"error","message":"Internal server error"}`))
			return
		}
		_, _ = w.Write([]byte(`{"token":"T2","refresh_token":"R2"}`))

	case "/api/broken":
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"status":"error","message":"boom"}`))

	default:
		auth := r.Header.Get("Authorization")
		b.mu.Lock()
		b.seen = append(b.seen, seenRequest{
			path:      r.URL.Path,
			auth:      auth,
			requestID: r.Header.Get(requestIDHeader),
			userAgent: r.Header.Get("User-Agent"),
			body:      body,
		})
		valid := b.valid
		b.mu.Unlock()

		switch auth {
		case "Bearer " + valid:
			_, _ = w.Write([]byte(`{"ok":true}`))
		case "Bearer bad":
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"token.invalid"}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"token.expired"}`))
		}
	}
}

func (b *backend) requests() []seenRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]seenRequest(nil), b.seen...)
}

type hookCounter struct {
	n atomic.Int32
}

func (h *hookCounter) fn() func() {
	return func() { h.n.Add(1) }
}

func newTestClient(t *testing.T, srv *httptest.Server, pair *credentials.Pair) (*Client, *credentials.MemoryStore) {
	store := credentials.NewMemoryStore()
	if pair != nil {
		require.NoError(t, store.Save(context.Background(), *pair))
	}
	c := New(Options{
		BaseURL:     srv.URL,
		RefreshPath: "/sessions/refresh-token",
	}, serverhttp.NewHTTPClient(5*time.Second), store)
	if pair != nil {
		c.SetDefaultCredential(pair.AccessToken)
	}
	return c, store
}

func doConcurrently(c *Client, n int, d request.Descriptor) ([]*Response, []error, *sync.WaitGroup) {
	resps := make([]*Response, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resps[i], errs[i] = c.Do(context.Background(), d)
		}(i)
	}
	return resps, errs, &wg
}

func TestClient_ConcurrentExpiryRefreshesOnce(t *testing.T) {
	b, srv := newBackend(t, 0, true)
	c, store := newTestClient(t, srv, &credentials.Pair{AccessToken: "T1", RefreshToken: "R1"})

	var hook hookCounter
	dispose := c.Register(hook.fn())
	defer dispose()

	resps, errs, wg := doConcurrently(c, 3, request.Descriptor{URL: "/api/workouts"})

	require.Eventually(t, func() bool {
		return b.refreshCalls.Load() == 1 && c.Pending() == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, c.Refreshing())

	b.open()
	wg.Wait()

	for i := range resps {
		require.NoError(t, errs[i])
		assert.Equal(t, http.StatusOK, resps[i].Status)
		assert.JSONEq(t, `{"ok":true}`, string(resps[i].Body))
	}

	assert.Equal(t, int32(1), b.refreshCalls.Load())
	assert.Equal(t, int32(0), hook.n.Load())
	assert.False(t, c.Refreshing())
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, "T2", c.Bearer())

	pair, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, credentials.Pair{AccessToken: "T2", RefreshToken: "R2"}, *pair)

	replays := 0
	for _, r := range b.requests() {
		if r.auth == "Bearer T2" {
			replays++
		}
	}
	assert.Equal(t, 3, replays)
}

func TestClient_RefreshFailureRejectsAll(t *testing.T) {
	b, srv := newBackend(t, http.StatusInternalServerError, true)
	c, store := newTestClient(t, srv, &credentials.Pair{AccessToken: "T1", RefreshToken: "R1"})

	var hook hookCounter
	defer c.Register(hook.fn())()

	_, errs, wg := doConcurrently(c, 3, request.Descriptor{URL: "/api/workouts"})

	require.Eventually(t, func() bool {
		return b.refreshCalls.Load() == 1 && c.Pending() == 2
	}, 2*time.Second, 5*time.Millisecond)
	b.open()
	wg.Wait()

	for _, err := range errs {
		require.Error(t, err)
		assert.ErrorIs(t, err, apperror.ErrRefreshFailed)
	}
	assert.Equal(t, int32(1), b.refreshCalls.Load())
	assert.Equal(t, int32(1), hook.n.Load())
	assert.False(t, c.Refreshing())

	// The stored pair is left for the expiry hook to deal with.
	pair, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "R1", pair.RefreshToken)
}

func TestClient_InvalidCredentialEndsSession(t *testing.T) {
	b, srv := newBackend(t, 0, false)
	c, _ := newTestClient(t, srv, &credentials.Pair{AccessToken: "bad", RefreshToken: "R1"})

	var hook hookCounter
	defer c.Register(hook.fn())()

	_, err := c.Do(context.Background(), request.Descriptor{URL: "/api/workouts"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrCredentialInvalid)
	assert.Equal(t, int32(0), b.refreshCalls.Load())
	assert.Equal(t, int32(1), hook.n.Load())
}

func TestClient_MissingRefreshToken(t *testing.T) {
	b, srv := newBackend(t, 0, false)
	c, _ := newTestClient(t, srv, &credentials.Pair{AccessToken: "T1"})

	var hook hookCounter
	defer c.Register(hook.fn())()

	_, err := c.Do(context.Background(), request.Descriptor{URL: "/api/workouts"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrCredentialExpired)
	assert.Equal(t, int32(0), b.refreshCalls.Load())
	assert.Equal(t, int32(1), hook.n.Load())
}

func TestClient_OtherFailuresPassThrough(t *testing.T) {
	b, srv := newBackend(t, 0, false)
	c, _ := newTestClient(t, srv, &credentials.Pair{AccessToken: "T1", RefreshToken: "R1"})

	var hook hookCounter
	defer c.Register(hook.fn())()

	t.Run("http error", func(t *testing.T) {
		_, err := c.Do(context.Background(), request.Descriptor{URL: "/api/broken"})
		var appErr *apperror.Error
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, apperror.KindHTTPError, appErr.Kind)
		assert.Equal(t, "boom", appErr.Message)
		assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	})

	t.Run("unknown failure returned unchanged", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := c.Do(ctx, request.Descriptor{URL: "/api/workouts"})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, apperror.KindUnknown, apperror.KindOf(err))
	})

	t.Run("unencodable body", func(t *testing.T) {
		_, err := c.Do(context.Background(), request.Descriptor{
			Method: http.MethodPost,
			URL:    "/api/workouts",
			Body:   map[string]any{"bad": make(chan int)},
		})
		require.Error(t, err)
		assert.Equal(t, apperror.KindUnknown, apperror.KindOf(err))
	})

	assert.Equal(t, int32(0), b.refreshCalls.Load())
	assert.Equal(t, int32(0), hook.n.Load())
}

func TestClient_ReplayCarriesSameRequest(t *testing.T) {
	b, srv := newBackend(t, 0, false)
	c, _ := newTestClient(t, srv, &credentials.Pair{AccessToken: "T1", RefreshToken: "R1"})
	defer c.Register(nil)()

	resp, err := c.Do(context.Background(), request.Descriptor{
		Method: http.MethodPost,
		URL:    "/api/workouts/42/sets",
		Body:   map[string]any{"reps": 10, "weight": 62.5},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)

	seen := b.requests()
	require.Len(t, seen, 2)
	assert.Equal(t, "Bearer T1", seen[0].auth)
	assert.Equal(t, "Bearer T2", seen[1].auth)
	assert.Equal(t, seen[0].body, seen[1].body)
	assert.JSONEq(t, `{"reps":10,"weight":62.5}`, string(seen[1].body))
	assert.NotEmpty(t, seen[0].requestID)
	assert.Equal(t, seen[0].requestID, seen[1].requestID)
	assert.Equal(t, userAgent, seen[1].userAgent)
}

func TestClient_Registrations(t *testing.T) {
	t.Run("disposer is idempotent", func(t *testing.T) {
		_, srv := newBackend(t, 0, false)
		c, _ := newTestClient(t, srv, nil)

		first := c.Register(nil)
		second := c.Register(nil)
		assert.Equal(t, 2, c.Interceptors())

		first()
		first()
		assert.Equal(t, 1, c.Interceptors())

		second()
		assert.Equal(t, 0, c.Interceptors())
	})

	t.Run("no interceptor means no refresh", func(t *testing.T) {
		b, srv := newBackend(t, 0, false)
		c, _ := newTestClient(t, srv, &credentials.Pair{AccessToken: "T1", RefreshToken: "R1"})

		c.Register(nil)()

		_, err := c.Do(context.Background(), request.Descriptor{URL: "/api/workouts"})
		assert.ErrorIs(t, err, apperror.ErrCredentialExpired)
		assert.Equal(t, int32(0), b.refreshCalls.Load())
	})

	t.Run("failure from first interceptor flows to the next", func(t *testing.T) {
		b, srv := newBackend(t, http.StatusBadGateway, false)
		c, _ := newTestClient(t, srv, &credentials.Pair{AccessToken: "T1", RefreshToken: "R1"})

		var first, second hookCounter
		defer c.Register(first.fn())()
		defer c.Register(second.fn())()

		_, err := c.Do(context.Background(), request.Descriptor{URL: "/api/workouts"})
		assert.ErrorIs(t, err, apperror.ErrRefreshFailed)
		assert.Equal(t, int32(1), b.refreshCalls.Load())
		assert.Equal(t, int32(1), first.n.Load())
		assert.Equal(t, int32(0), second.n.Load())
	})

	t.Run("re-registering starts a fresh lifecycle", func(t *testing.T) {
		b, srv := newBackend(t, 0, false)
		c, _ := newTestClient(t, srv, &credentials.Pair{AccessToken: "T1", RefreshToken: "R1"})

		c.Register(nil)()
		defer c.Register(nil)()

		resp, err := c.Do(context.Background(), request.Descriptor{URL: "/api/workouts"})
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.Status)
		assert.Equal(t, int32(1), b.refreshCalls.Load())
	})
}

func TestClient_Session(t *testing.T) {
	_, srv := newBackend(t, 0, false)
	c, store := newTestClient(t, srv, nil)
	ctx := context.Background()

	loaded, err := c.LoadStoredCredential(ctx)
	require.NoError(t, err)
	assert.False(t, loaded)

	_, err = c.SignIn(ctx, "ana@example.com", "wrong")
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.KindCredentialInvalid, appErr.Kind)
	assert.Equal(t, "Invalid e-mail or password.", appErr.Message)
	_, err = store.Get(ctx)
	assert.ErrorIs(t, err, credentials.ErrNotFound)

	session, err := c.SignIn(ctx, "ana@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "T1", session.AccessToken)
	assert.JSONEq(t, `{"id":7,"email":"ana@example.com"}`, string(session.User))
	assert.Equal(t, "T1", c.Bearer())

	other := New(Options{BaseURL: srv.URL}, serverhttp.NewHTTPClient(time.Second), store)
	loaded, err = other.LoadStoredCredential(ctx)
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Equal(t, "T1", other.Bearer())

	require.NoError(t, c.SignOut(ctx))
	assert.Empty(t, c.Bearer())
	_, err = store.Get(ctx)
	assert.ErrorIs(t, err, credentials.ErrNotFound)
}
