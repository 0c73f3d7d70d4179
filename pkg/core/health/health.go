// ============================================================================
// Wiener - Robot Agent Control Middleware
// ============================================================================
//
// Package:     health
// Description: Health checks behind the /health endpoint
// Created:     2026-09-30
// License:     MIT
// ============================================================================

package health

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"
)

// Status of a component or of the whole process
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// rank orders statuses from best to worst; unknown counts as degraded
func (s Status) rank() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusUnhealthy:
		return 2
	default:
		return 1
	}
}

// CheckResult is the outcome of one check
type CheckResult struct {
	Name      string         `json:"name"`
	Status    Status         `json:"status"`
	Message   string         `json:"message,omitempty"`
	Duration  time.Duration  `json:"duration"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// Checker is a named health check
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

type funcChecker struct {
	name string
	fn   func(ctx context.Context) CheckResult
}

// NewChecker wraps fn as a Checker
func NewChecker(name string, fn func(ctx context.Context) CheckResult) Checker {
	return funcChecker{name: name, fn: fn}
}

func (c funcChecker) Name() string                          { return c.name }
func (c funcChecker) Check(ctx context.Context) CheckResult { return c.fn(ctx) }

// Registry runs the registered checks for the /health endpoint
type Registry struct {
	service string
	version string
	started time.Time

	// CheckTimeout bounds each single check
	CheckTimeout time.Duration

	mu     sync.RWMutex
	checks map[string]Checker
}

// NewRegistry creates an empty registry
func NewRegistry(service, version string) *Registry {
	return &Registry{
		service:      service,
		version:      version,
		started:      time.Now(),
		CheckTimeout: 5 * time.Second,
		checks:       make(map[string]Checker),
	}
}

// Register adds c, replacing a check of the same name
func (r *Registry) Register(c Checker) {
	r.mu.Lock()
	r.checks[c.Name()] = c
	r.mu.Unlock()
}

// RegisterFunc adds fn under name
func (r *Registry) RegisterFunc(name string, fn func(ctx context.Context) CheckResult) {
	r.Register(NewChecker(name, fn))
}

// Unregister removes the check called name
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	delete(r.checks, name)
	r.mu.Unlock()
}

// Check runs all checks concurrently. The report carries the worst status
// seen; results are ordered by name.
func (r *Registry) Check(ctx context.Context) *Report {
	r.mu.RLock()
	checks := make([]Checker, 0, len(r.checks))
	for _, c := range r.checks {
		checks = append(checks, c)
	}
	r.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	var wg sync.WaitGroup
	for i, c := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = r.run(ctx, c)
		}()
	}
	wg.Wait()
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	overall := StatusHealthy
	for _, res := range results {
		if res.Status.rank() > overall.rank() {
			overall = res.Status
		}
	}
	if overall == StatusUnknown {
		overall = StatusDegraded
	}
	return &Report{
		Service:   r.service,
		Version:   r.version,
		Status:    overall,
		Uptime:    time.Since(r.started),
		Timestamp: time.Now(),
		Checks:    results,
	}
}

func (r *Registry) run(ctx context.Context, c Checker) CheckResult {
	if r.CheckTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.CheckTimeout)
		defer cancel()
	}
	start := time.Now()
	res := c.Check(ctx)
	res.Duration = time.Since(start)
	res.Timestamp = time.Now()
	if res.Name == "" {
		res.Name = c.Name()
	}
	if res.Status == "" {
		res.Status = StatusUnknown
	}
	return res
}

// CheckWithTimeout runs Check under a fresh timeout
func (r *Registry) CheckWithTimeout(timeout time.Duration) *Report {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return r.Check(ctx)
}

// Report is the body of the /health endpoint
type Report struct {
	Service   string        `json:"service"`
	Version   string        `json:"version"`
	Status    Status        `json:"status"`
	Uptime    time.Duration `json:"uptime"`
	Timestamp time.Time     `json:"timestamp"`
	Checks    []CheckResult `json:"checks"`
}

func (r *Report) String() string {
	return fmt.Sprintf("%s %s: %s after %v (%d checks)", r.Service, r.Version, r.Status, r.Uptime.Round(time.Second), len(r.Checks))
}

// PingCheck is unhealthy while ping fails
func PingCheck(name string, ping func(ctx context.Context) error) Checker {
	return NewChecker(name, func(ctx context.Context) CheckResult {
		if err := ping(ctx); err != nil {
			return CheckResult{Status: StatusUnhealthy, Message: err.Error()}
		}
		return CheckResult{Status: StatusHealthy}
	})
}

// ListCheck is degraded while list returns anything, naming the entries
// with what, e.g. "3 operations without provider"
func ListCheck(name, what string, list func() []string) Checker {
	return NewChecker(name, func(ctx context.Context) CheckResult {
		items := list()
		if len(items) == 0 {
			return CheckResult{Status: StatusHealthy}
		}
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("%d %s", len(items), what),
			Details: map[string]any{"items": items},
		}
	})
}

// TCPCheck is unhealthy while address refuses connections
func TCPCheck(name, address string, timeout time.Duration) Checker {
	return NewChecker(name, func(ctx context.Context) CheckResult {
		res := CheckResult{Status: StatusHealthy, Details: map[string]any{"address": address}}
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, "tcp", address)
		if err != nil {
			res.Status = StatusUnhealthy
			res.Message = err.Error()
			return res
		}
		_ = conn.Close()
		return res
	})
}
