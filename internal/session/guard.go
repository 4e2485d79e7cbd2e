// Package session owns the web client's single authentication session. A Guard asks the
// identity provider whether the user is signed in and publishes Pending, Granted or
// Denied together with an API client that carries the token only when Granted.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"coffee-shop-demo/internal/apiclient"
	"coffee-shop-demo/internal/telemetry"
)

// ErrEmptyToken is returned when the provider reports a session but hands out no access token.
var ErrEmptyToken = errors.New("session: provider returned empty access token")

// Provider is the identity provider capability the guard depends on.
type Provider interface {
	CheckSession(ctx context.Context) (bool, error)
	Profile(ctx context.Context) (*UserProfile, error)
	Token(ctx context.Context) (string, error)
}

// Session is what views see: the current state and an API client matching it.
// The zero Session is Pending with no client.
type Session struct {
	State State
	API   *apiclient.Client
}

// Kind returns the state's kind; a nil State is Pending.
func (s Session) Kind() Kind {
	if s.State == nil {
		return KindPending
	}
	return s.State.Kind()
}

// Profile returns the signed-in user's profile, or nil unless Granted.
func (s Session) Profile() *UserProfile {
	if g, ok := s.State.(Granted); ok {
		return g.Profile
	}
	return nil
}

// Option configures a Guard.
type Option func(*Guard)

// WithEmitter sends a session_transition event for every published transition.
func WithEmitter(e telemetry.EventEmitter) Option {
	return func(g *Guard) { g.emitter = e }
}

// WithClientOptions passes opts to every apiclient.New call.
func WithClientOptions(opts ...apiclient.Option) Option {
	return func(g *Guard) { g.clientOpts = append(g.clientOpts, opts...) }
}

// Guard serializes session checks and publishes transitions.
type Guard struct {
	provider   Provider
	baseURL    string
	clientOpts []apiclient.Option
	emitter    telemetry.EventEmitter
	log        zerolog.Logger

	group singleflight.Group
	// checkMu serializes state computation so at most one provider round-trip runs at a time.
	checkMu sync.Mutex

	mu        sync.RWMutex
	current   Session
	currentID string
	observers []func(Session)
}

// NewGuard returns a Guard in the Pending state. baseURL is the resource server URL the
// published API clients talk to.
func NewGuard(provider Provider, baseURL string, log zerolog.Logger, opts ...Option) *Guard {
	g := &Guard{
		provider: provider,
		baseURL:  baseURL,
		log:      log,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.current = Session{State: Pending{}, API: apiclient.New(g.baseURL, "", g.clientOpts...)}
	return g
}

// Snapshot returns the current session.
func (g *Guard) Snapshot() Session {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.current
}

// Subscribe registers fn to be called after every published transition.
func (g *Guard) Subscribe(fn func(Session)) {
	if fn == nil {
		return
	}
	g.mu.Lock()
	g.observers = append(g.observers, fn)
	g.mu.Unlock()
}

// Check asks the provider for the current authentication status of the browser identified
// by IDFrom(ctx) and publishes a transition when the result differs from the current session.
// Concurrent callers for the same browser share one provider round-trip, which runs detached
// from any single caller's cancellation; each caller still returns when its own ctx is done.
// On error the state is left unchanged and the error is returned.
func (g *Guard) Check(ctx context.Context) (Session, error) {
	shared := context.WithoutCancel(ctx)
	ch := g.group.DoChan("check:"+IDFrom(ctx), func() (any, error) {
		return g.check(shared)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			g.log.Error().Err(res.Err).Msg("session: check failed")
			return g.Snapshot(), res.Err
		}
		return res.Val.(Session), nil
	case <-ctx.Done():
		err := fmt.Errorf("session: check: %w", ctx.Err())
		g.log.Warn().Err(err).Msg("session: check abandoned")
		return g.Snapshot(), err
	}
}

func (g *Guard) check(ctx context.Context) (Session, error) {
	g.checkMu.Lock()
	defer g.checkMu.Unlock()

	id := IDFrom(ctx)
	authenticated, err := g.provider.CheckSession(ctx)
	if err != nil {
		return Session{}, fmt.Errorf("session: check: %w", err)
	}

	cur := g.Snapshot()
	if !authenticated && cur.Kind() == KindDenied {
		return cur, nil
	}
	if authenticated && cur.Kind() == KindGranted && g.grantedID() == id {
		return cur, nil
	}

	if !authenticated {
		return g.publish(Denied{}, ""), nil
	}

	profile, err := g.provider.Profile(ctx)
	if err != nil {
		return Session{}, fmt.Errorf("session: check: profile: %w", err)
	}
	token, err := g.provider.Token(ctx)
	if err != nil {
		return Session{}, fmt.Errorf("session: check: token: %w", err)
	}
	if token == "" {
		return Session{}, fmt.Errorf("session: check: %w", ErrEmptyToken)
	}
	return g.publish(Granted{Profile: profile, Token: token}, id), nil
}

func (g *Guard) grantedID() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.currentID
}

// Reset moves the session to Denied, dropping the profile and token. Used on logout.
func (g *Guard) Reset() Session {
	g.checkMu.Lock()
	defer g.checkMu.Unlock()
	return g.publish(Denied{}, "")
}

// publish swaps in st with a fresh API client and notifies observers outside the lock.
// id is the browser the state belongs to; empty unless Granted.
func (g *Guard) publish(st State, id string) Session {
	token := ""
	if gr, ok := st.(Granted); ok {
		token = gr.Token
	}
	next := Session{State: st, API: apiclient.New(g.baseURL, token, g.clientOpts...)}

	g.mu.Lock()
	prev := g.current.Kind()
	g.current = next
	g.currentID = id
	observers := append([]func(Session){}, g.observers...)
	g.mu.Unlock()

	g.log.Info().Stringer("from", prev).Stringer("to", st.Kind()).Msg("session: transition")
	subject := ""
	if p := next.Profile(); p != nil {
		subject = p.Subject
	}
	telemetry.EmitAsync(g.emitter, g.log, &telemetry.Event{
		Type:    telemetry.EventSessionTransition,
		Source:  "client",
		Subject: subject,
		Reason:  prev.String() + "->" + st.Kind().String(),
	})

	for _, fn := range observers {
		fn(next)
	}
	return next
}
