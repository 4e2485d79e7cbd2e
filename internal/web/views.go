package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"coffee-shop-demo/internal/apiclient"
	"coffee-shop-demo/internal/session"
	"coffee-shop-demo/internal/trialdetails/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

// navbar is passed to every view.
type navbar struct {
	IsAuthenticated bool
	LoginURL        string
	LogoutURL       string
}

// page is the view model shared by all templates; each view fills what it needs.
type page struct {
	Nav   navbar
	User  *session.UserProfile
	Error string
	Trial *domain.TrialDetails
	Shops []apiclient.CoffeeShop
	Shop  apiclient.CoffeeShop
}

func newPage(s session.Session) page {
	return page{
		Nav: navbar{
			IsAuthenticated: s.Kind() == session.KindGranted,
			LoginURL:        "/login",
			LogoutURL:       "/logout",
		},
		User: s.Profile(),
	}
}

type views map[string]*template.Template

func parseViews() (views, error) {
	v := make(views)
	for _, name := range []string{"home", "list", "edit"} {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("web: parse %s template: %w", name, err)
		}
		v[name] = t
	}
	return v, nil
}

// render executes into a buffer first so a template error still yields a clean 500.
func (v views) render(w http.ResponseWriter, code int, name string, p page) error {
	t, ok := v[name]
	if !ok {
		return fmt.Errorf("web: unknown view %q", name)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", p); err != nil {
		return fmt.Errorf("web: render %s: %w", name, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	_, err := buf.WriteTo(w)
	return err
}
