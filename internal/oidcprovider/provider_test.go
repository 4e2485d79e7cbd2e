package oidcprovider

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"coffee-shop-demo/internal/session"
)

const testClientID = "0oa-test-client"

// fakeIssuer is a minimal OpenID provider: discovery, JWKS, token and userinfo endpoints.
type fakeIssuer struct {
	srv *httptest.Server
	key *ecdsa.PrivateKey

	mu            sync.Mutex
	nonce         string
	challenge     string
	gotVerifier   string
	idTokenClaims jwt.MapClaims
	endSession    bool
}

func newFakeIssuer(t *testing.T, endSession bool) *fakeIssuer {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	fi := &fakeIssuer{key: key, endSession: endSession}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		doc := map[string]any{
			"issuer":                                fi.srv.URL,
			"authorization_endpoint":                fi.srv.URL + "/authorize",
			"token_endpoint":                        fi.srv.URL + "/token",
			"jwks_uri":                              fi.srv.URL + "/keys",
			"userinfo_endpoint":                     fi.srv.URL + "/userinfo",
			"id_token_signing_alg_values_supported": []string{"ES256"},
		}
		if fi.endSession {
			doc["end_session_endpoint"] = fi.srv.URL + "/logout"
		}
		_ = json.NewEncoder(w).Encode(doc)
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, _ *http.Request) {
		enc := base64.RawURLEncoding
		x := make([]byte, 32)
		y := make([]byte, 32)
		fi.key.PublicKey.X.FillBytes(x)
		fi.key.PublicKey.Y.FillBytes(y)
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{{
			"kty": "EC", "crv": "P-256", "alg": "ES256", "use": "sig", "kid": "test",
			"x": enc.EncodeToString(x), "y": enc.EncodeToString(y),
		}}})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		fi.mu.Lock()
		fi.gotVerifier = r.PostForm.Get("code_verifier")
		claims := jwt.MapClaims{
			"iss":   fi.srv.URL,
			"aud":   testClientID,
			"sub":   "00u1",
			"nonce": fi.nonce,
			"iat":   time.Now().Unix(),
			"exp":   time.Now().Add(time.Hour).Unix(),
		}
		for k, v := range fi.idTokenClaims {
			claims[k] = v
		}
		fi.mu.Unlock()

		tok := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
		tok.Header["kid"] = "test"
		idToken, err := tok.SignedString(fi.key)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-123",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     idToken,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-123" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"sub": "00u1", "name": "From Userinfo", "email": "ui@example.com"})
	})
	fi.srv = httptest.NewServer(mux)
	t.Cleanup(fi.srv.Close)
	return fi
}

func (fi *fakeIssuer) setClaims(c jwt.MapClaims) {
	fi.mu.Lock()
	fi.idTokenClaims = c
	fi.mu.Unlock()
}

func newProvider(t *testing.T, fi *fakeIssuer, pkce bool) *Provider {
	t.Helper()
	p, err := New(context.Background(), Config{
		Issuer:      fi.srv.URL,
		ClientID:    testClientID,
		RedirectURI: "http://localhost:3000/callback",
		PKCE:        pkce,
		HashKey:     []byte("0123456789abcdef0123456789abcdef"),
		HTTPClient:  fi.srv.Client(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

// login runs AuthCodeURL then HandleCallback with the returned state and login cookie. It
// returns the cookies the callback set.
func login(t *testing.T, fi *fakeIssuer, p *Provider) ([]*http.Cookie, error) {
	t.Helper()
	rec := httptest.NewRecorder()
	authURL, err := p.AuthCodeURL(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	if err != nil {
		t.Fatalf("AuthCodeURL: %v", err)
	}
	u, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	q := u.Query()
	fi.mu.Lock()
	fi.nonce = q.Get("nonce")
	fi.challenge = q.Get("code_challenge")
	fi.mu.Unlock()

	cb := httptest.NewRequest(http.MethodGet, "/callback?code=abc&state="+url.QueryEscape(q.Get("state")), nil)
	for _, c := range rec.Result().Cookies() {
		cb.AddCookie(c)
	}
	cbRec := httptest.NewRecorder()
	err = p.HandleCallback(cbRec, cb)
	return cbRec.Result().Cookies(), err
}

// browserContext runs a request carrying cookies through LoadSession and returns its context.
func browserContext(p *Provider, cookies []*http.Cookie) context.Context {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		if c.MaxAge >= 0 {
			req.AddCookie(c)
		}
	}
	var ctx context.Context
	p.LoadSession(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ctx = r.Context()
	})).ServeHTTP(httptest.NewRecorder(), req)
	return ctx
}

func loggedIn(t *testing.T, fi *fakeIssuer, p *Provider) context.Context {
	t.Helper()
	cookies, err := login(t, fi, p)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return browserContext(p, cookies)
}

func TestNew_RequiresFields(t *testing.T) {
	if _, err := New(context.Background(), Config{Issuer: "https://issuer"}); err == nil {
		t.Fatal("New should fail without client id and redirect uri")
	}
}

func TestAuthCodeURL(t *testing.T) {
	fi := newFakeIssuer(t, false)
	p := newProvider(t, fi, true)

	rec := httptest.NewRecorder()
	authURL, err := p.AuthCodeURL(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	if err != nil {
		t.Fatalf("AuthCodeURL: %v", err)
	}
	u, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if u.Path != "/authorize" {
		t.Errorf("path = %q, want /authorize", u.Path)
	}
	q := u.Query()
	want := map[string]string{
		"client_id":             testClientID,
		"response_type":         "code",
		"scope":                 "openid profile email",
		"code_challenge_method": "S256",
	}
	for k, v := range want {
		if q.Get(k) != v {
			t.Errorf("%s = %q, want %q", k, q.Get(k), v)
		}
	}
	for _, k := range []string{"code_challenge", "state", "nonce"} {
		if q.Get(k) == "" {
			t.Errorf("%s missing", k)
		}
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != loginCookie || !cookies[0].HttpOnly {
		t.Errorf("cookies = %+v, want one HttpOnly %s", cookies, loginCookie)
	}
}

func TestAuthCodeURL_WithoutPKCE(t *testing.T) {
	fi := newFakeIssuer(t, false)
	p := newProvider(t, fi, false)

	authURL, err := p.AuthCodeURL(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/login", nil))
	if err != nil {
		t.Fatalf("AuthCodeURL: %v", err)
	}
	u, _ := url.Parse(authURL)
	if c := u.Query().Get("code_challenge"); c != "" {
		t.Errorf("code_challenge = %q, want none", c)
	}
}

func TestLoginFlow(t *testing.T) {
	fi := newFakeIssuer(t, false)
	fi.setClaims(jwt.MapClaims{"name": "Ada Lovelace", "email": "ada@example.com"})
	p := newProvider(t, fi, true)

	if ok, _ := p.CheckSession(context.Background()); ok {
		t.Fatal("CheckSession before login should be false")
	}
	if _, err := p.Token(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Token before login err = %v, want ErrNoSession", err)
	}

	cookies, err := login(t, fi, p)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	var sessionSet bool
	for _, c := range cookies {
		if c.Name == sessionCookie {
			sessionSet = true
			if !c.HttpOnly || c.MaxAge != 0 || c.Value == "" {
				t.Errorf("session cookie = %+v, want HttpOnly browser-session cookie", c)
			}
		}
	}
	if !sessionSet {
		t.Fatal("HandleCallback should set the session cookie")
	}

	fi.mu.Lock()
	if oauth2.S256ChallengeFromVerifier(fi.gotVerifier) != fi.challenge {
		t.Error("code_verifier does not match code_challenge")
	}
	fi.mu.Unlock()

	ctx := browserContext(p, cookies)
	if ok, err := p.CheckSession(ctx); err != nil || !ok {
		t.Fatalf("CheckSession = %v, %v; want true", ok, err)
	}
	token, err := p.Token(ctx)
	if err != nil || token != "access-123" {
		t.Fatalf("Token = %q, %v; want access-123", token, err)
	}
	prof, err := p.Profile(ctx)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if prof.Subject != "00u1" || prof.Name != "Ada Lovelace" || prof.Email != "ada@example.com" {
		t.Errorf("Profile = %+v", prof)
	}
}

func TestSession_OnlyOwningBrowser(t *testing.T) {
	fi := newFakeIssuer(t, false)
	p := newProvider(t, fi, true)
	loggedIn(t, fi, p)

	others := map[string]context.Context{
		"no cookie":     browserContext(p, nil),
		"forged cookie": browserContext(p, []*http.Cookie{{Name: sessionCookie, Value: "forged"}}),
		"unknown id":    session.WithID(context.Background(), "someone-else"),
	}
	for name, ctx := range others {
		if ok, _ := p.CheckSession(ctx); ok {
			t.Errorf("%s: CheckSession = true, want false", name)
		}
		if _, err := p.Token(ctx); !errors.Is(err, ErrNoSession) {
			t.Errorf("%s: Token err = %v, want ErrNoSession", name, err)
		}
		if _, err := p.Profile(ctx); !errors.Is(err, ErrNoSession) {
			t.Errorf("%s: Profile err = %v, want ErrNoSession", name, err)
		}
	}
}

func TestSession_NewLoginReplacesOld(t *testing.T) {
	fi := newFakeIssuer(t, false)
	p := newProvider(t, fi, true)
	first := loggedIn(t, fi, p)
	second := loggedIn(t, fi, p)

	if ok, _ := p.CheckSession(first); ok {
		t.Error("first browser should lose the session after a new login")
	}
	if ok, _ := p.CheckSession(second); !ok {
		t.Error("second browser should own the session")
	}
}

func TestProfile_FallsBackToUserinfo(t *testing.T) {
	fi := newFakeIssuer(t, false)
	p := newProvider(t, fi, true)
	ctx := loggedIn(t, fi, p)

	prof, err := p.Profile(ctx)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if prof.Name != "From Userinfo" || prof.Subject != "00u1" {
		t.Errorf("Profile = %+v", prof)
	}
}

func TestCheckSession_Expired(t *testing.T) {
	fi := newFakeIssuer(t, false)
	p := newProvider(t, fi, true)
	ctx := loggedIn(t, fi, p)

	p.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if ok, _ := p.CheckSession(ctx); ok {
		t.Error("CheckSession should be false after the access token expires")
	}
}

func TestHandleCallback_Rejects(t *testing.T) {
	fi := newFakeIssuer(t, false)
	p := newProvider(t, fi, true)

	t.Run("no cookie", func(t *testing.T) {
		err := p.HandleCallback(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/callback?code=a&state=b", nil))
		if !errors.Is(err, ErrStateMismatch) {
			t.Errorf("err = %v, want ErrStateMismatch", err)
		}
	})

	t.Run("wrong state", func(t *testing.T) {
		rec := httptest.NewRecorder()
		if _, err := p.AuthCodeURL(rec, httptest.NewRequest(http.MethodGet, "/login", nil)); err != nil {
			t.Fatalf("AuthCodeURL: %v", err)
		}
		cb := httptest.NewRequest(http.MethodGet, "/callback?code=a&state=forged", nil)
		for _, c := range rec.Result().Cookies() {
			cb.AddCookie(c)
		}
		if err := p.HandleCallback(httptest.NewRecorder(), cb); !errors.Is(err, ErrStateMismatch) {
			t.Errorf("err = %v, want ErrStateMismatch", err)
		}
	})

	t.Run("provider error", func(t *testing.T) {
		err := p.HandleCallback(httptest.NewRecorder(),
			httptest.NewRequest(http.MethodGet, "/callback?error=access_denied&error_description=nope", nil))
		if err == nil || !strings.Contains(err.Error(), "access_denied") {
			t.Errorf("err = %v, want access_denied", err)
		}
	})

	t.Run("nonce mismatch", func(t *testing.T) {
		fi.setClaims(jwt.MapClaims{"nonce": "other"})
		defer fi.setClaims(nil)
		if _, err := login(t, fi, p); !errors.Is(err, ErrNonceMismatch) {
			t.Errorf("err = %v, want ErrNonceMismatch", err)
		}
	})
}

func TestLogout(t *testing.T) {
	t.Run("owner with end session endpoint", func(t *testing.T) {
		fi := newFakeIssuer(t, true)
		p := newProvider(t, fi, true)
		ctx := loggedIn(t, fi, p)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/logout", nil).WithContext(ctx)
		target := p.Logout(rec, req, "http://localhost:3000/")

		u, err := url.Parse(target)
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if u.Path != "/logout" || u.Query().Get("id_token_hint") == "" {
			t.Errorf("logout target = %q", target)
		}
		if got := u.Query().Get("post_logout_redirect_uri"); got != "http://localhost:3000/" {
			t.Errorf("post_logout_redirect_uri = %q", got)
		}
		if ok, _ := p.CheckSession(ctx); ok {
			t.Error("session should be gone after logout")
		}
		cleared := false
		for _, c := range rec.Result().Cookies() {
			if c.Name == sessionCookie && c.MaxAge < 0 {
				cleared = true
			}
		}
		if !cleared {
			t.Error("Logout should clear the session cookie")
		}
	})

	t.Run("non-owner keeps owner's session", func(t *testing.T) {
		fi := newFakeIssuer(t, true)
		p := newProvider(t, fi, true)
		owner := loggedIn(t, fi, p)

		target := p.Logout(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/logout", nil), "http://localhost:3000/")
		if target != "http://localhost:3000/" {
			t.Errorf("target = %q, want post-logout URL", target)
		}
		if ok, _ := p.CheckSession(owner); !ok {
			t.Error("another browser's logout must not end the owner's session")
		}
	})

	t.Run("no end session endpoint", func(t *testing.T) {
		fi := newFakeIssuer(t, false)
		p := newProvider(t, fi, true)
		ctx := loggedIn(t, fi, p)
		req := httptest.NewRequest(http.MethodPost, "/logout", nil).WithContext(ctx)
		if got := p.Logout(httptest.NewRecorder(), req, "http://localhost:3000/"); got != "http://localhost:3000/" {
			t.Errorf("target = %q", got)
		}
	})
}

func TestLoginCookie_BlockKeyOptional(t *testing.T) {
	fi := newFakeIssuer(t, false)
	for name, key := range map[string][]byte{"empty": {}, "aes-256": []byte("abcdef0123456789abcdef0123456789")} {
		t.Run(name, func(t *testing.T) {
			p, err := New(context.Background(), Config{
				Issuer:      fi.srv.URL,
				ClientID:    testClientID,
				RedirectURI: "http://localhost:3000/callback",
				PKCE:        true,
				BlockKey:    key,
				HTTPClient:  fi.srv.Client(),
			})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			ctx := loggedIn(t, fi, p)
			if ok, _ := p.CheckSession(ctx); !ok {
				t.Error("CheckSession should be true after login")
			}
		})
	}
}
