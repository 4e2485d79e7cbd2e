// Package web is the browser-facing client: a chi router whose gate consults the session
// guard before any view renders.
//
// Routes:
//   - GET  /                          home (public)
//   - GET  /coffee-shops              list (Granted only)
//   - GET  /coffee-shops/{id}         edit form; id "new" starts a blank one (Granted only)
//   - POST /coffee-shops/{id}         save (Granted only)
//   - POST /coffee-shops/{id}/delete  delete (Granted only)
//   - GET  /login, /callback, GET|POST /logout, GET /healthz
package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"coffee-shop-demo/internal/logging"
	"coffee-shop-demo/internal/session"
)

// Authenticator drives the provider's browser redirects. *oidcprovider.Provider implements it.
// LoadSession puts the browser's session id on the request context (session.WithID) so the
// guard only grants the browser that logged in.
type Authenticator interface {
	AuthCodeURL(w http.ResponseWriter, r *http.Request) (string, error)
	HandleCallback(w http.ResponseWriter, r *http.Request) error
	LoadSession(next http.Handler) http.Handler
	Logout(w http.ResponseWriter, r *http.Request, postLogoutURL string) string
}

// Guard is the session guard as the web layer uses it. *session.Guard implements it.
type Guard interface {
	Check(ctx context.Context) (session.Session, error)
	Reset() session.Session
	Subscribe(fn func(session.Session))
}

// Deps holds the client's collaborators.
type Deps struct {
	Guard Guard
	Auth  Authenticator
	Log   zerolog.Logger
	// PublicURL is the client's externally visible origin, used as the post-logout target.
	PublicURL string
}

type contextKey struct{ name string }

var sessionKey = &contextKey{"session"}

func withSession(ctx context.Context, s session.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// sessionFrom returns the session the gate resolved for this request.
func sessionFrom(ctx context.Context) session.Session {
	s, _ := ctx.Value(sessionKey).(session.Session)
	return s
}

type app struct {
	guard     Guard
	auth      Authenticator
	log       zerolog.Logger
	views     views
	publicURL string
}

// NewRouter returns the client handler.
func NewRouter(d Deps) (http.Handler, error) {
	if d.Guard == nil || d.Auth == nil {
		return nil, errors.New("web: guard and authenticator are required")
	}
	v, err := parseViews()
	if err != nil {
		return nil, err
	}
	a := &app{guard: d.Guard, auth: d.Auth, log: d.Log, views: v, publicURL: d.PublicURL}
	d.Guard.Subscribe(func(s session.Session) {
		a.log.Debug().Stringer("state", s.Kind()).Msg("web: session changed")
	})

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(logging.RequestLogger(d.Log))
	r.Use(d.Auth.LoadSession)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/callback", a.callback)
	r.HandleFunc("/logout", a.logout)

	r.Group(func(r chi.Router) {
		r.Use(a.gate)
		r.Get("/", a.home)
		r.Get("/login", a.login)

		r.Group(func(r chi.Router) {
			r.Use(requireGranted)
			r.Get("/coffee-shops", a.listShops)
			r.Get("/coffee-shops/{id}", a.editShop)
			r.Post("/coffee-shops/{id}", a.saveShop)
			r.Post("/coffee-shops/{id}/delete", a.deleteShop)
		})
	})

	return otelhttp.NewHandler(r, "client"), nil
}

// gate resolves the session before any view. Pending renders nothing; guard errors go to the
// error boundary.
func (a *app) gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := a.guard.Check(r.Context())
		if err != nil {
			a.fail(w, r, err)
			return
		}
		if s.Kind() == session.KindPending {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), s)))
	})
}

// requireGranted sends anonymous users to the login entry point.
func requireGranted(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := sessionFrom(r.Context())
		if s.Kind() != session.KindGranted || s.API == nil {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// fail is the single error boundary: log and answer 500 without details.
func (a *app) fail(w http.ResponseWriter, r *http.Request, err error) {
	a.log.Error().Err(err).
		Str("path", r.URL.Path).
		Str("request_id", chimw.GetReqID(r.Context())).
		Msg("web: request failed")
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
