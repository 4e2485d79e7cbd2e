package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"coffee-shop-demo/internal/apiclient"
	"coffee-shop-demo/internal/session"
)

// newShopID is the path segment for an unsaved coffee shop.
const newShopID = "new"

func (a *app) home(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	p := newPage(s)
	if s.Kind() == session.KindGranted {
		td, err := s.API.TrialDetails(r.Context())
		if err != nil {
			a.log.Warn().Err(err).Msg("web: trial details unavailable")
			p.Error = apiErrorMessage(err)
		} else {
			p.Trial = td
		}
	}
	if err := a.views.render(w, http.StatusOK, "home", p); err != nil {
		a.fail(w, r, err)
	}
}

// login starts the provider redirect. It does nothing while the session is unresolved and
// sends already signed-in users home.
func (a *app) login(w http.ResponseWriter, r *http.Request) {
	if sessionFrom(r.Context()).Kind() != session.KindDenied {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	target, err := a.auth.AuthCodeURL(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (a *app) callback(w http.ResponseWriter, r *http.Request) {
	if err := a.auth.HandleCallback(w, r); err != nil {
		a.fail(w, r, err)
		return
	}
	// The session cookie was only just set; the gate on "/" resolves the new session.
	http.Redirect(w, r, "/", http.StatusFound)
}

func (a *app) logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	target := a.auth.Logout(w, r, a.publicURL+"/")
	a.guard.Reset()
	http.Redirect(w, r, target, http.StatusFound)
}

func (a *app) listShops(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	p := newPage(s)
	shops, err := s.API.ListCoffeeShops(r.Context())
	code := http.StatusOK
	if err != nil {
		a.log.Warn().Err(err).Msg("web: list coffee shops failed")
		p.Error = apiErrorMessage(err)
		code = http.StatusBadGateway
	}
	p.Shops = shops
	if err := a.views.render(w, code, "list", p); err != nil {
		a.fail(w, r, err)
	}
}

func (a *app) editShop(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	p := newPage(s)
	id := chi.URLParam(r, "id")
	code := http.StatusOK
	if id != newShopID {
		shop, err := s.API.GetCoffeeShop(r.Context(), id)
		if err != nil {
			a.log.Warn().Err(err).Str("id", id).Msg("web: get coffee shop failed")
			p.Error = apiErrorMessage(err)
			code = statusFor(err)
		} else {
			p.Shop = *shop
		}
	}
	if err := a.views.render(w, code, "edit", p); err != nil {
		a.fail(w, r, err)
	}
}

func (a *app) saveShop(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	p := newPage(s)
	shop, err := shopFromForm(r)
	if id := chi.URLParam(r, "id"); id != newShopID {
		shop.ID = id
	}
	p.Shop = shop
	if err != nil {
		p.Error = err.Error()
		if rerr := a.views.render(w, http.StatusBadRequest, "edit", p); rerr != nil {
			a.fail(w, r, rerr)
		}
		return
	}
	if _, err := s.API.SaveCoffeeShop(r.Context(), &shop); err != nil {
		a.log.Warn().Err(err).Str("id", shop.ID).Msg("web: save coffee shop failed")
		p.Error = apiErrorMessage(err)
		if rerr := a.views.render(w, statusFor(err), "edit", p); rerr != nil {
			a.fail(w, r, rerr)
		}
		return
	}
	http.Redirect(w, r, "/coffee-shops", http.StatusSeeOther)
}

func (a *app) deleteShop(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	id := chi.URLParam(r, "id")
	if err := s.API.DeleteCoffeeShop(r.Context(), id); err != nil {
		a.log.Warn().Err(err).Str("id", id).Msg("web: delete coffee shop failed")
		p := newPage(s)
		p.Error = apiErrorMessage(err)
		if rerr := a.views.render(w, statusFor(err), "list", p); rerr != nil {
			a.fail(w, r, rerr)
		}
		return
	}
	http.Redirect(w, r, "/coffee-shops", http.StatusSeeOther)
}

// shopFromForm reads the edit form. The returned shop holds whatever parsed even on error.
func shopFromForm(r *http.Request) (apiclient.CoffeeShop, error) {
	var shop apiclient.CoffeeShop
	if err := r.ParseForm(); err != nil {
		return shop, errors.New("invalid form")
	}
	shop.Name = strings.TrimSpace(r.PostForm.Get("name"))
	shop.Owner = strings.TrimSpace(r.PostForm.Get("owner"))
	shop.Address = strings.TrimSpace(r.PostForm.Get("address"))
	shop.Phone = strings.TrimSpace(r.PostForm.Get("phone"))
	shop.PowerAccessible = r.PostForm.Get("powerAccessible") != ""

	if v := strings.TrimSpace(r.PostForm.Get("priceOfCoffee")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return shop, errors.New("price of coffee must be a non-negative number")
		}
		shop.PriceOfCoffee = f
	}
	if v := strings.TrimSpace(r.PostForm.Get("internetReliability")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 5 {
			return shop, errors.New("internet reliability must be between 0 and 5")
		}
		shop.InternetReliability = n
	}
	if shop.Name == "" {
		return shop, errors.New("name is required")
	}
	return shop, nil
}

// statusFor passes 4xx from the resource server through; everything else is a bad gateway.
func statusFor(err error) int {
	var se *apiclient.StatusError
	if errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500 {
		return se.StatusCode
	}
	return http.StatusBadGateway
}

func apiErrorMessage(err error) string {
	var se *apiclient.StatusError
	if errors.As(err, &se) {
		return "The resource server answered " + strconv.Itoa(se.StatusCode) + " " + http.StatusText(se.StatusCode) + "."
	}
	return "The resource server is unreachable."
}
