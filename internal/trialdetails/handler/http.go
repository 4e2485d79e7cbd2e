package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"coffee-shop-demo/internal/trialdetails/domain"
)

// Sampler produces a fresh host snapshot per call (e.g. *hoststats.Sampler).
type Sampler interface {
	Sample(ctx context.Context) (*domain.TrialDetails, error)
}

// Handler serves GET /trialDetails. Authentication happens in middleware before it runs.
type Handler struct {
	sampler Sampler
	log     zerolog.Logger
}

// New returns a Handler reading from sampler.
func New(sampler Sampler, log zerolog.Logger) *Handler {
	return &Handler{sampler: sampler, log: log}
}

// ServeHTTP writes the current TrialDetails as JSON.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	td, err := h.sampler.Sample(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("trialdetails: sample failed")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if err := json.NewEncoder(w).Encode(td); err != nil {
		h.log.Warn().Err(err).Msg("trialdetails: write response")
	}
}
