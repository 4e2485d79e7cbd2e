// Package oidcprovider implements session.Provider on top of an OpenID Connect issuer using
// the authorization code flow with PKCE. It holds exactly one token set in memory, owned by
// the browser that completed the login; that browser is recognised by a signed session cookie.
package oidcprovider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"golang.org/x/oauth2"

	"coffee-shop-demo/internal/session"
)

// Errors returned by HandleCallback.
var (
	ErrStateMismatch = errors.New("oidcprovider: state mismatch")
	ErrMissingCode   = errors.New("oidcprovider: missing authorization code")
	ErrNoIDToken     = errors.New("oidcprovider: token response has no id_token")
	ErrNonceMismatch = errors.New("oidcprovider: nonce mismatch")
	ErrNoSession     = errors.New("oidcprovider: no session")
)

// loginCookie holds the per-login state between AuthCodeURL and HandleCallback.
const loginCookie = "oidc_login"

const loginCookieMaxAge = 10 * 60

// sessionCookie identifies the browser that owns the token set. It has no Max-Age, so the
// browser drops it when it closes.
const sessionCookie = "oidc_session"

// Config configures a Provider.
type Config struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	PKCE         bool
	// Scopes defaults to openid, profile and email.
	Scopes []string
	// HashKey authenticates the login cookie; BlockKey optionally encrypts it.
	// A random HashKey is generated when empty, which invalidates in-flight logins on restart.
	HashKey  []byte
	BlockKey []byte
	// SecureCookie sets the Secure attribute on the login cookie.
	SecureCookie bool
	// HTTPClient is used for discovery, token exchange and userinfo. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// loginState is what the login cookie carries.
type loginState struct {
	State    string
	Nonce    string
	Verifier string
}

// Provider talks to the issuer and keeps the signed-in user's tokens.
type Provider struct {
	issuer        *oidc.Provider
	oauth         oauth2.Config
	verifier      *oidc.IDTokenVerifier
	cookies       *securecookie.SecureCookie
	sessions      *securecookie.SecureCookie
	pkce          bool
	secure        bool
	httpClient    *http.Client
	endSessionURL string
	now           func() time.Time

	mu      sync.RWMutex
	sid     string
	token   *oauth2.Token
	rawID   string
	profile *session.UserProfile
}

// New discovers the issuer's metadata and returns a Provider.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Issuer == "" || cfg.ClientID == "" || cfg.RedirectURI == "" {
		return nil, errors.New("oidcprovider: issuer, client id and redirect uri are required")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	ctx = oidc.ClientContext(ctx, hc)
	issuer, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidcprovider: discovery for %s: %w", cfg.Issuer, err)
	}
	var meta struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := issuer.Claims(&meta); err != nil {
		return nil, fmt.Errorf("oidcprovider: discovery claims: %w", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}
	hashKey := cfg.HashKey
	if len(hashKey) == 0 {
		hashKey = securecookie.GenerateRandomKey(32)
	}
	var blockKey []byte
	if len(cfg.BlockKey) > 0 {
		blockKey = cfg.BlockKey
	}
	cookies := securecookie.New(hashKey, blockKey).MaxAge(loginCookieMaxAge)
	sessions := securecookie.New(hashKey, blockKey)

	return &Provider{
		issuer: issuer,
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint:     issuer.Endpoint(),
			Scopes:       scopes,
		},
		verifier:      issuer.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		cookies:       cookies,
		sessions:      sessions,
		pkce:          cfg.PKCE,
		secure:        cfg.SecureCookie,
		httpClient:    hc,
		endSessionURL: meta.EndSessionEndpoint,
		now:           time.Now,
	}, nil
}

// AuthCodeURL starts a login: it stores state, nonce and (with PKCE) the code verifier in a
// signed cookie and returns the issuer's authorization URL to redirect the browser to.
func (p *Provider) AuthCodeURL(w http.ResponseWriter, _ *http.Request) (string, error) {
	ls := loginState{
		State: oauth2.GenerateVerifier(),
		Nonce: oauth2.GenerateVerifier(),
	}
	opts := []oauth2.AuthCodeOption{oidc.Nonce(ls.Nonce)}
	if p.pkce {
		ls.Verifier = oauth2.GenerateVerifier()
		opts = append(opts, oauth2.S256ChallengeOption(ls.Verifier))
	}
	encoded, err := p.cookies.Encode(loginCookie, ls)
	if err != nil {
		return "", fmt.Errorf("oidcprovider: encode login cookie: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     loginCookie,
		Value:    encoded,
		Path:     "/",
		MaxAge:   loginCookieMaxAge,
		HttpOnly: true,
		Secure:   p.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return p.oauth.AuthCodeURL(ls.State, opts...), nil
}

// HandleCallback completes a login started by AuthCodeURL: it checks state, exchanges the
// code, verifies the ID token and stores the resulting token set.
func (p *Provider) HandleCallback(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		return fmt.Errorf("oidcprovider: authorization failed: %s: %s", e, q.Get("error_description"))
	}
	c, err := r.Cookie(loginCookie)
	if err != nil {
		return ErrStateMismatch
	}
	http.SetCookie(w, &http.Cookie{Name: loginCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true, Secure: p.secure})

	var ls loginState
	if err := p.cookies.Decode(loginCookie, c.Value, &ls); err != nil {
		return ErrStateMismatch
	}
	if ls.State == "" || q.Get("state") != ls.State {
		return ErrStateMismatch
	}
	code := q.Get("code")
	if code == "" {
		return ErrMissingCode
	}

	ctx := oidc.ClientContext(r.Context(), p.httpClient)
	var opts []oauth2.AuthCodeOption
	if ls.Verifier != "" {
		opts = append(opts, oauth2.VerifierOption(ls.Verifier))
	}
	tok, err := p.oauth.Exchange(ctx, code, opts...)
	if err != nil {
		return fmt.Errorf("oidcprovider: exchange: %w", err)
	}
	rawID, ok := tok.Extra("id_token").(string)
	if !ok || rawID == "" {
		return ErrNoIDToken
	}
	idTok, err := p.verifier.Verify(ctx, rawID)
	if err != nil {
		return fmt.Errorf("oidcprovider: verify id token: %w", err)
	}
	if idTok.Nonce != ls.Nonce {
		return ErrNonceMismatch
	}
	var prof session.UserProfile
	if err := idTok.Claims(&prof); err != nil {
		return fmt.Errorf("oidcprovider: id token claims: %w", err)
	}

	sid := uuid.NewString()
	encoded, err := p.sessions.Encode(sessionCookie, sid)
	if err != nil {
		return fmt.Errorf("oidcprovider: encode session cookie: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		Secure:   p.secure,
		SameSite: http.SameSiteLaxMode,
	})

	// A new login replaces whatever session was held before.
	p.mu.Lock()
	p.sid = sid
	p.token = tok
	p.rawID = rawID
	p.profile = &prof
	p.mu.Unlock()
	return nil
}

// LoadSession is middleware that puts the browser's session id, taken from the session
// cookie, on the request context (see session.WithID). Missing or forged cookies leave it empty.
func (p *Provider) LoadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie(sessionCookie); err == nil {
			var sid string
			if err := p.sessions.Decode(sessionCookie, c.Value, &sid); err == nil && sid != "" {
				r = r.WithContext(session.WithID(r.Context(), sid))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// ownsLocked reports whether ctx belongs to the browser holding the token set.
func (p *Provider) ownsLocked(ctx context.Context) bool {
	id := session.IDFrom(ctx)
	return id != "" && id == p.sid
}

// CheckSession reports whether ctx's browser owns a non-expired access token.
func (p *Provider) CheckSession(ctx context.Context) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ownsLocked(ctx) && p.validLocked(), nil
}

func (p *Provider) validLocked() bool {
	if p.token == nil || p.token.AccessToken == "" {
		return false
	}
	return p.token.Expiry.IsZero() || p.token.Expiry.After(p.now())
}

// Profile returns the ID token's profile claims, completed from the userinfo endpoint
// when the ID token carries no name or email.
func (p *Provider) Profile(ctx context.Context) (*session.UserProfile, error) {
	p.mu.RLock()
	owns := p.ownsLocked(ctx)
	prof, tok := p.profile, p.token
	p.mu.RUnlock()
	if !owns || prof == nil || tok == nil {
		return nil, ErrNoSession
	}
	if prof.Name != "" || prof.Email != "" {
		cp := *prof
		return &cp, nil
	}

	ctx = oidc.ClientContext(ctx, p.httpClient)
	info, err := p.issuer.UserInfo(ctx, oauth2.StaticTokenSource(tok))
	if err != nil {
		return nil, fmt.Errorf("oidcprovider: userinfo: %w", err)
	}
	var fromInfo session.UserProfile
	if err := info.Claims(&fromInfo); err != nil {
		return nil, fmt.Errorf("oidcprovider: userinfo claims: %w", err)
	}
	if fromInfo.Subject == "" {
		fromInfo.Subject = prof.Subject
	}
	return &fromInfo, nil
}

// Token returns the access token of ctx's browser.
func (p *Provider) Token(ctx context.Context) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.ownsLocked(ctx) || !p.validLocked() {
		return "", ErrNoSession
	}
	return p.token.AccessToken, nil
}

// Logout clears the browser's session cookie and returns where to send it next. When the
// request belongs to the session owner the token set is dropped and the issuer's end-session
// endpoint is returned if it advertises one; otherwise postLogoutURL.
func (p *Provider) Logout(w http.ResponseWriter, r *http.Request, postLogoutURL string) string {
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true, Secure: p.secure})

	p.mu.Lock()
	if !p.ownsLocked(r.Context()) {
		p.mu.Unlock()
		return postLogoutURL
	}
	rawID := p.rawID
	p.sid, p.token, p.rawID, p.profile = "", nil, "", nil
	p.mu.Unlock()

	if p.endSessionURL == "" {
		return postLogoutURL
	}
	u, err := url.Parse(p.endSessionURL)
	if err != nil {
		return postLogoutURL
	}
	q := u.Query()
	if rawID != "" {
		q.Set("id_token_hint", rawID)
	}
	if postLogoutURL != "" {
		q.Set("post_logout_redirect_uri", postLogoutURL)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
