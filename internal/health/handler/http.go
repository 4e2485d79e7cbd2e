package handler

import (
	"encoding/json"
	"net/http"

	"coffee-shop-demo/internal/health"
)

// Actuator serves /actuator/health and /actuator/info.
type Actuator struct {
	svc     *health.Service
	name    string
	version string
}

// NewActuator returns actuator handlers backed by svc.
func NewActuator(svc *health.Service, name, version string) *Actuator {
	return &Actuator{svc: svc, name: name, version: version}
}

// Health writes the aggregated report; 503 when DOWN so load balancers drop the instance.
func (a *Actuator) Health(w http.ResponseWriter, r *http.Request) {
	report := a.svc.Check(r.Context())
	code := http.StatusOK
	if report.Status != health.StatusUp {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, report)
}

// Info writes the application name and version.
func (a *Actuator) Info(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"app": map[string]string{"name": a.name, "version": a.version},
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
