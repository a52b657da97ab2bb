// Package health aggregates component liveness checks and a host snapshot
// for the /health endpoint.
package health

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/shopforge/shopforge/internal/jobqueue"
	"github.com/shopforge/shopforge/pkg/logger"
)

// CheckFunc probes one component. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

// ComponentStatus is the outcome of one check.
type ComponentStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HostInfo is a point-in-time host snapshot.
type HostInfo struct {
	Hostname      string  `json:"hostname,omitempty"`
	UptimeSeconds uint64  `json:"uptime_seconds,omitempty"`
	CPUs          int     `json:"cpus"`
	MemoryUsedPct float64 `json:"memory_used_pct,omitempty"`
	GoVersion     string  `json:"go_version"`
	Goroutines    int     `json:"goroutines"`
}

// Report is the full health view.
type Report struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentStatus `json:"components"`
	Host       HostInfo                   `json:"host"`
	Timestamp  time.Time                  `json:"timestamp"`
}

const checkTimeout = 5 * time.Second

// Service runs registered checks on demand.
type Service struct {
	log *logger.Logger

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

// New creates an empty health service.
func New(log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("health")
	}
	return &Service{
		log:    log,
		checks: make(map[string]CheckFunc),
	}
}

// RegisterCheck adds or replaces a named component check.
func (s *Service) RegisterCheck(name string, check CheckFunc) {
	if name == "" || check == nil {
		return
	}
	s.mu.Lock()
	s.checks[name] = check
	s.mu.Unlock()
}

// Components lists the registered check names.
func (s *Service) Components() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Report runs every check and snapshots the host. The overall status is
// "degraded" if any component fails.
func (s *Service) Report(ctx context.Context) Report {
	s.mu.RLock()
	checks := make(map[string]CheckFunc, len(s.checks))
	for name, check := range s.checks {
		checks[name] = check
	}
	s.mu.RUnlock()

	report := Report{
		Status:     "ok",
		Components: make(map[string]ComponentStatus, len(checks)),
		Host:       hostSnapshot(ctx),
		Timestamp:  time.Now().UTC(),
	}

	for name, check := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := check(checkCtx)
		cancel()
		if err != nil {
			report.Status = "degraded"
			report.Components[name] = ComponentStatus{Status: "down", Error: err.Error()}
			s.log.WithError(err).WithField("component", name).Warn("health check failed")
			continue
		}
		report.Components[name] = ComponentStatus{Status: "up"}
	}
	return report
}

func hostSnapshot(ctx context.Context) HostInfo {
	info := HostInfo{
		GoVersion:  runtime.Version(),
		Goroutines: runtime.NumGoroutine(),
		CPUs:       runtime.NumCPU(),
	}
	if hi, err := host.InfoWithContext(ctx); err == nil {
		info.Hostname = hi.Hostname
		info.UptimeSeconds = hi.Uptime
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil && n > 0 {
		info.CPUs = n
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemoryUsedPct = vm.UsedPercent
	}
	return info
}

// DatabaseCheck probes the connection pool.
func DatabaseCheck(db *sqlx.DB) CheckFunc {
	return func(ctx context.Context) error {
		return db.PingContext(ctx)
	}
}

// QueueCheck asks the persistence strategy for stats, proving the backend
// is reachable.
func QueueCheck(strategy jobqueue.Strategy) CheckFunc {
	return func(ctx context.Context) error {
		_, err := strategy.Stats(ctx)
		return err
	}
}
