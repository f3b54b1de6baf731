package refresh

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dvcrn/gymapp-client/internal/apperror"
	"github.com/dvcrn/gymapp-client/internal/credentials"
	"github.com/dvcrn/gymapp-client/internal/logger"
	"github.com/rs/zerolog"
)

// SessionExpiredFunc is called when the session cannot be recovered. It is
// expected to clear local session state and send the user back to sign-in.
type SessionExpiredFunc func()

// Refresher exchanges a refresh token for a new credential pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (credentials.Pair, error)
}

// TokenHolder owns the default bearer token attached to outgoing requests.
type TokenHolder interface {
	Bearer() string
	SetDefaultCredential(token string)
}

// Outcome is what a refresh episode hands to each request waiting on it.
// Exactly one of Token and Err is set.
type Outcome struct {
	Token string
	Err   error
	// Position is the 1-based place of the waiter in the drain order, zero
	// for the request that started the episode.
	Position int
}

// Coordinator collapses concurrent credential-expired failures onto a single
// refresh call and hands its outcome to every request that waited for it.
type Coordinator struct {
	store     credentials.Store
	refresher Refresher
	tokens    TokenHolder
	onExpired SessionExpiredFunc

	mu         sync.Mutex
	refreshing bool
	queue      []chan Outcome
	// ended and endedFor stop concurrent invalid-credential failures sent
	// with the same token from firing onExpired more than once. A new
	// episode clears them.
	ended    bool
	endedFor string
}

// NewCoordinator creates a coordinator. onExpired may be nil.
func NewCoordinator(store credentials.Store, refresher Refresher, tokens TokenHolder, onExpired SessionExpiredFunc) *Coordinator {
	return &Coordinator{
		store:     store,
		refresher: refresher,
		tokens:    tokens,
		onExpired: onExpired,
	}
}

// Recover handles a failed request that was sent with bearer token used. The
// outcome carries either the token the request should be replayed with or
// the error the caller should see. Only credential failures are acted upon; any other
// cause is returned unchanged.
//
// A request that arrives while a refresh is in flight blocks until that
// refresh settles. There is no way to cancel the wait; the transport's own
// timeout bounds the refresh call.
func (c *Coordinator) Recover(ctx context.Context, used string, cause *apperror.Error) Outcome {
	switch cause.Kind {
	case apperror.KindCredentialExpired:
	case apperror.KindCredentialInvalid:
		logger.Get().Warn().Str("code", cause.Code).Msg("Credential rejected by backend, ending session")
		c.endSession(used, false)
		return Outcome{Err: cause}
	default:
		return Outcome{Err: cause}
	}

	c.mu.Lock()
	if c.refreshing {
		ch := make(chan Outcome, 1)
		c.queue = append(c.queue, ch)
		pending := len(c.queue)
		c.mu.Unlock()

		logger.Get().Debug().Int("pending", pending).Msg("Refresh in flight, queued request")
		out := <-ch
		logger.Get().Debug().Int("position", out.Position).Bool("ok", out.Err == nil).Msg("Queued request released")
		return out
	}
	if current := c.tokens.Bearer(); current != "" && current != used {
		// A refresh settled after this request was sent.
		c.mu.Unlock()
		return Outcome{Token: current}
	}
	c.refreshing = true
	c.ended = false
	c.endedFor = ""
	c.mu.Unlock()

	start := time.Now()
	logger.Get().Info().Msg("Access token expired, refreshing")

	out, terminal := c.refresh(context.WithoutCancel(ctx), cause)
	drained := c.settle(out)

	var ev *zerolog.Event
	if out.Err != nil {
		ev = logger.Get().Warn().Err(out.Err)
	} else {
		ev = logger.Get().Info()
	}
	ev.Int("drained", drained).Dur("duration", time.Since(start)).Bool("ok", out.Err == nil).Msg("Refresh settled")

	if terminal {
		// Only the trigger gets here, so the hook runs once per episode.
		c.endSession(used, true)
	}
	return out
}

// refresh runs one episode. terminal reports whether the session is over.
func (c *Coordinator) refresh(ctx context.Context, cause *apperror.Error) (Outcome, bool) {
	pair, err := c.store.Get(ctx)
	if err != nil && !errors.Is(err, credentials.ErrNotFound) {
		return Outcome{Err: apperror.RefreshFailed(err)}, true
	}
	if pair == nil || pair.RefreshToken == "" {
		logger.Get().Warn().Str("store", c.store.Name()).Msg("No refresh token stored")
		return Outcome{Err: cause}, true
	}

	next, err := c.refresher.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		return Outcome{Err: apperror.RefreshFailed(err)}, true
	}

	if err := c.store.Save(ctx, next); err != nil {
		// The new token still works for this process.
		logger.Get().Warn().Err(err).Str("store", c.store.Name()).Msg("failed to save refreshed credentials")
	}
	c.tokens.SetDefaultCredential(next.AccessToken)

	if exp, ok := next.AccessExpiry(); ok {
		logger.Get().Debug().Time("expires_at", exp).Msg("Access token refreshed")
	}
	return Outcome{Token: next.AccessToken}, false
}

// settle flips back to idle and empties the queue in one critical section,
// then hands out the outcome in arrival order.
func (c *Coordinator) settle(out Outcome) int {
	c.mu.Lock()
	waiters := c.queue
	c.queue = nil
	c.refreshing = false
	c.mu.Unlock()

	for i, ch := range waiters {
		o := out
		o.Position = i + 1
		ch <- o
	}
	return len(waiters)
}

// endSession fires onExpired. Outside an episode it is skipped when the
// session already ended for the same token.
func (c *Coordinator) endSession(used string, episode bool) {
	c.mu.Lock()
	if !episode && c.ended && c.endedFor == used {
		c.mu.Unlock()
		return
	}
	c.ended = true
	c.endedFor = used
	c.mu.Unlock()

	logger.Get().Info().Msg("Session expired")
	if c.onExpired != nil {
		c.onExpired()
	}
}

// State reports whether a refresh is in flight and how many requests wait on it.
func (c *Coordinator) State() (refreshing bool, pending int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshing, len(c.queue)
}
