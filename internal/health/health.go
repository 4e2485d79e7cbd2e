// Package health aggregates readiness checks for the actuator and gRPC health endpoints.
package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Status values follow Spring Boot actuator's vocabulary.
const (
	StatusUp   = "UP"
	StatusDown = "DOWN"
)

// checkTimeout bounds each component check.
const checkTimeout = 2 * time.Second

// Checker reports component health; nil error means healthy.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

// HealthCheck calls f.
func (f CheckerFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// Component is the result for one named checker.
type Component struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Report is the aggregated result; Status is DOWN if any component is DOWN.
type Report struct {
	Status     string               `json:"status"`
	Components map[string]Component `json:"components,omitempty"`
}

// Service runs the registered checkers.
type Service struct {
	mu       sync.RWMutex
	checkers map[string]Checker
}

// NewService returns an empty Service; with no checkers it always reports UP.
func NewService() *Service {
	return &Service{checkers: make(map[string]Checker)}
}

// Register adds a named checker. A nil checker is ignored.
func (s *Service) Register(name string, c Checker) {
	if c == nil {
		return
	}
	s.mu.Lock()
	s.checkers[name] = c
	s.mu.Unlock()
}

// Check runs every checker concurrently, each bounded by checkTimeout.
func (s *Service) Check(ctx context.Context) Report {
	s.mu.RLock()
	names := make([]string, 0, len(s.checkers))
	for name := range s.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	checkers := make([]Checker, len(names))
	for i, name := range names {
		checkers[i] = s.checkers[name]
	}
	s.mu.RUnlock()

	report := Report{Status: StatusUp}
	if len(names) == 0 {
		return report
	}
	results := make([]Component, len(names))
	var wg sync.WaitGroup
	for i := range checkers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			if err := checkers[i].HealthCheck(cctx); err != nil {
				results[i] = Component{Status: StatusDown, Error: err.Error()}
				return
			}
			results[i] = Component{Status: StatusUp}
		}(i)
	}
	wg.Wait()

	report.Components = make(map[string]Component, len(names))
	for i, name := range names {
		report.Components[name] = results[i]
		if results[i].Status == StatusDown {
			report.Status = StatusDown
		}
	}
	return report
}
