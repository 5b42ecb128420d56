// Package health probes the runtime dependencies of a revup process and
// reports which optional features are switched on.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/Devdesai111/RevUp-sub000/internal/config"
)

// Status represents feature or dependency status
type Status int

const (
	StatusOK Status = iota
	StatusWarning
	StatusError
	StatusDisabled
)

// Check represents a health check result
type Check struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Fix     string `json:"fix,omitempty"`
}

// FeatureStatus represents a feature with its availability
type FeatureStatus struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Status  Status `json:"status"`
	Note    string `json:"note,omitempty"`
}

// Report contains all health check results
type Report struct {
	Dependencies []Check         `json:"dependencies"`
	Features     []FeatureStatus `json:"features,omitempty"`
}

// Pinger is anything that can confirm it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Probe names a dependency to ping.
type Probe struct {
	Name   string
	Target Pinger
	Fix    string
}

// DefaultTimeout bounds each probe.
const DefaultTimeout = 3 * time.Second

// RunChecks pings every probe, each bounded by timeout.
func RunChecks(ctx context.Context, probes []Probe, timeout time.Duration) *Report {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	report := &Report{Dependencies: make([]Check, 0, len(probes))}
	for _, p := range probes {
		report.Dependencies = append(report.Dependencies, runProbe(ctx, p, timeout))
	}
	return report
}

func runProbe(ctx context.Context, p Probe, timeout time.Duration) Check {
	if p.Target == nil {
		return Check{Name: p.Name, Status: StatusDisabled, Message: "not configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if err := p.Target.Ping(ctx); err != nil {
		return Check{Name: p.Name, Status: StatusError, Message: err.Error(), Fix: p.Fix}
	}
	return Check{
		Name:    p.Name,
		Status:  StatusOK,
		Message: fmt.Sprintf("reachable in %s", time.Since(start).Round(time.Millisecond)),
	}
}

// CheckFeatures reports the optional features cfg turns on.
func CheckFeatures(cfg *config.Config) []FeatureStatus {
	features := []FeatureStatus{}

	sweepEnabled := cfg.Sweep != nil && cfg.Sweep.Enabled
	sweep := FeatureStatus{
		Name:    "Missed-day sweep",
		Enabled: sweepEnabled,
		Status:  boolToStatus(sweepEnabled),
	}
	if sweepEnabled {
		sweep.Note = cfg.Sweep.Schedule + " " + cfg.Sweep.Timezone
	}
	features = append(features, sweep)

	// Redis-backed locks are the only ones shared between processes.
	sharedLocks := cfg.KV != nil && cfg.KV.Driver == config.BackendRedis
	locks := FeatureStatus{
		Name:    "Shared locks",
		Enabled: sharedLocks,
		Status:  boolToStatus(sharedLocks),
	}
	if !sharedLocks {
		locks.Status = StatusWarning
		locks.Note = "in-process only"
	}
	features = append(features, locks)

	durable := cfg.Queue != nil && cfg.Queue.Driver == config.BackendRedis
	queue := FeatureStatus{
		Name:    "Durable queue",
		Enabled: durable,
		Status:  boolToStatus(durable),
	}
	if !durable {
		queue.Note = "jobs lost on restart"
	}
	features = append(features, queue)

	apiEnabled := cfg.API != nil && cfg.API.JWTSecret != ""
	apiStatus := FeatureStatus{
		Name:    "API auth",
		Enabled: apiEnabled,
		Status:  boolToStatus(apiEnabled),
	}
	if !apiEnabled {
		apiStatus.Status = StatusWarning
		apiStatus.Note = "set REVUP_JWT_SECRET"
	}
	features = append(features, apiStatus)

	return features
}

// HasErrors reports whether any dependency failed.
func (r *Report) HasErrors() bool {
	for _, c := range r.Dependencies {
		if c.Status == StatusError {
			return true
		}
	}
	return false
}

// Summary returns a one-line count of check outcomes.
func (r *Report) Summary() string {
	var ok, failed int
	for _, c := range r.Dependencies {
		switch c.Status {
		case StatusOK:
			ok++
		case StatusError:
			failed++
		}
	}
	if failed == 0 {
		return fmt.Sprintf("%d/%d dependencies healthy", ok, len(r.Dependencies))
	}
	return fmt.Sprintf("%d/%d dependencies healthy, %d failing", ok, len(r.Dependencies), failed)
}

// boolToStatus converts bool to Status
func boolToStatus(enabled bool) Status {
	if enabled {
		return StatusOK
	}
	return StatusDisabled
}

// Symbol returns the symbol for a status
func (s Status) Symbol() string {
	switch s {
	case StatusOK:
		return "✓"
	case StatusWarning:
		return "○"
	case StatusError:
		return "✗"
	case StatusDisabled:
		return "·"
	default:
		return "?"
	}
}

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusWarning:
		return "warning"
	case StatusError:
		return "error"
	case StatusDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
