package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"
)

const (
	healthStatusOK       = "ok"
	healthStatusDegraded = "degraded"

	readinessCheckTimeout = 5 * time.Second
)

// BuildInfo describes the running binary for health payloads.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// ReadinessCheck probes one dependency. A nil error marks the dependency ready.
type ReadinessCheck func(ctx context.Context) error

// HealthHandlers serves the liveness and readiness endpoints.
type HealthHandlers struct {
	info   BuildInfo
	clock  func() time.Time
	checks map[string]ReadinessCheck
}

// HealthOption customises the health handlers.
type HealthOption func(*HealthHandlers)

// WithHealthBuildInfo attaches build metadata to health payloads.
func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.info = info
	}
}

// WithHealthClock overrides the time source, primarily for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithHealthCheck registers a named readiness probe, replacing any existing
// probe with the same name.
func WithHealthCheck(name string, check ReadinessCheck) HealthOption {
	return func(h *HealthHandlers) {
		if name == "" || check == nil {
			return
		}
		h.checks[name] = check
	}
}

// NewHealthHandlers constructs health handlers with the supplied options.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		clock:  time.Now,
		checks: make(map[string]ReadinessCheck),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Healthz reports process liveness; it never consults dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock()

	payload := map[string]any{
		"status":    healthStatusOK,
		"timestamp": now.UTC().Format(time.RFC3339),
	}
	if h.info.Version != "" {
		payload["version"] = h.info.Version
	}
	if h.info.CommitSHA != "" {
		payload["commitSha"] = h.info.CommitSHA
	}
	if h.info.Environment != "" {
		payload["environment"] = h.info.Environment
	}
	if !h.info.StartedAt.IsZero() {
		payload["uptime"] = now.Sub(h.info.StartedAt).String()
	}

	writeJSONResponse(w, http.StatusOK, payload)
}

type readinessCheckResult struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Readyz runs the registered readiness probes and reports 503 when any fails.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	results := make(map[string]readinessCheckResult, len(h.checks))
	details := make([]string, 0)

	for name, check := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), readinessCheckTimeout)
		started := h.clock()
		err := check(ctx)
		latency := h.clock().Sub(started)
		cancel()

		if err != nil {
			results[name] = readinessCheckResult{Status: healthStatusDegraded, Error: err.Error()}
			details = append(details, name+": "+err.Error())
			continue
		}
		results[name] = readinessCheckResult{Status: healthStatusOK, Latency: latency.String()}
	}
	sort.Strings(details)

	status := healthStatusOK
	code := http.StatusOK
	if len(details) > 0 {
		status = healthStatusDegraded
		code = http.StatusServiceUnavailable
	}

	payload := map[string]any{
		"status":  status,
		"checks":  results,
		"details": details,
	}
	if h.info.Version != "" {
		payload["version"] = h.info.Version
	}

	writeJSONResponse(w, code, payload)
}
