// Package hoststats samples OS identity, CPU load and physical memory of the host
// the resource server runs on.
package hoststats

import (
	"context"
	"runtime"
	"sync"

	"coffee-shop-demo/internal/trialdetails/domain"
)

// cpuTimes are cumulative CPU seconds across all cores.
type cpuTimes struct {
	busy  float64
	total float64
}

// memInfo is physical memory in bytes.
type memInfo struct {
	free  uint64
	total uint64
}

type source interface {
	cpu() (cpuTimes, error)
	memory() (memInfo, error)
	osVersion() string
}

// Sampler reads host statistics. CPU load is the busy share of CPU time since the
// previous Sample (since boot on the first call), so it keeps one previous reading.
type Sampler struct {
	src source

	mu   sync.Mutex
	prev *cpuTimes
}

// NewSampler returns a Sampler reading from the platform (procfs on Linux).
func NewSampler() (*Sampler, error) {
	src, err := newPlatformSource("")
	if err != nil {
		return nil, err
	}
	return &Sampler{src: src}, nil
}

// Sample returns a fresh TrialDetails snapshot. Unavailable CPU load is reported as -1.
func (s *Sampler) Sample(ctx context.Context) (*domain.TrialDetails, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mem, err := s.src.memory()
	if err != nil {
		return nil, err
	}
	return &domain.TrialDetails{
		OSName:                  OSName(runtime.GOOS),
		OSArchitecture:          Arch(runtime.GOARCH),
		OSVersion:               s.src.osVersion(),
		SystemCPULoad:           domain.NewDecimalFromFloat(s.cpuLoad()),
		FreePhysicalMemorySize:  domain.NewDecimalFromUint(mem.free),
		TotalPhysicalMemorySize: domain.NewDecimalFromUint(mem.total),
	}, nil
}

// HealthCheck reports whether host memory can be read.
func (s *Sampler) HealthCheck(context.Context) error {
	_, err := s.src.memory()
	return err
}

func (s *Sampler) cpuLoad() float64 {
	cur, err := s.src.cpu()
	if err != nil {
		return -1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	busy, total := cur.busy, cur.total
	if s.prev != nil && cur.total > s.prev.total {
		busy -= s.prev.busy
		total -= s.prev.total
	}
	s.prev = &cur
	if total <= 0 {
		return -1
	}
	load := busy / total
	switch {
	case load < 0:
		return 0
	case load > 1:
		return 1
	}
	return load
}

// OSName maps a GOOS value to the name the JVM reports in os.name.
func OSName(goos string) string {
	switch goos {
	case "linux":
		return "Linux"
	case "darwin":
		return "Mac OS X"
	case "windows":
		return "Windows"
	case "freebsd":
		return "FreeBSD"
	default:
		return goos
	}
}

// Arch maps a GOARCH value to the JVM's os.arch spelling.
func Arch(goarch string) string {
	switch goarch {
	case "arm64":
		return "aarch64"
	case "386":
		return "x86"
	default:
		return goarch
	}
}
