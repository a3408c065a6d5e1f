package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Maintenance defaults.
const (
	DefaultDedupRetention    = 72 * time.Hour
	DefaultDedupSchedule     = "@every 1h"
	DefaultSessionIdle       = 6 * time.Hour
	DefaultEvictionSchedule  = "@every 10m"
	DefaultMaintenanceBudget = 30 * time.Second
)

// InboundPruner deletes inbound dedup records older than a cutoff.
type InboundPruner interface {
	PruneInbound(ctx context.Context, cutoff time.Time) (int64, error)
}

// IdleEvictor drops sessions idle longer than a duration from the in-memory cache.
type IdleEvictor interface {
	EvictIdle(idle time.Duration) int
}

// MaintenanceOpts configures the housekeeping jobs.
type MaintenanceOpts struct {
	DedupRetention   time.Duration
	DedupSchedule    string
	SessionIdle      time.Duration
	EvictionSchedule string
	JobTimeout       time.Duration
	Now              func() time.Time
}

// MaintenanceOption configures the housekeeping jobs.
type MaintenanceOption func(*MaintenanceOpts)

// WithDedupRetention sets how long inbound message IDs are remembered.
func WithDedupRetention(d time.Duration) MaintenanceOption {
	return func(o *MaintenanceOpts) { o.DedupRetention = d }
}

// WithSessionIdle sets how long a session may sit idle before leaving the cache.
func WithSessionIdle(d time.Duration) MaintenanceOption {
	return func(o *MaintenanceOpts) { o.SessionIdle = d }
}

// WithSchedules overrides the cron expressions for the prune and eviction jobs.
func WithSchedules(dedup, eviction string) MaintenanceOption {
	return func(o *MaintenanceOpts) {
		o.DedupSchedule = dedup
		o.EvictionSchedule = eviction
	}
}

// WithMaintenanceClock overrides the clock used to compute prune cutoffs.
func WithMaintenanceClock(now func() time.Time) MaintenanceOption {
	return func(o *MaintenanceOpts) { o.Now = now }
}

// Maintenance holds the housekeeping tasks. Either dependency may be nil, which skips its job.
type Maintenance struct {
	pruner  InboundPruner
	evictor IdleEvictor
	opts    MaintenanceOpts
}

// NewMaintenance builds the housekeeping tasks.
func NewMaintenance(pruner InboundPruner, evictor IdleEvictor, opts ...MaintenanceOption) *Maintenance {
	cfg := MaintenanceOpts{
		DedupRetention:   DefaultDedupRetention,
		DedupSchedule:    DefaultDedupSchedule,
		SessionIdle:      DefaultSessionIdle,
		EvictionSchedule: DefaultEvictionSchedule,
		JobTimeout:       DefaultMaintenanceBudget,
		Now:              time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DedupSchedule == "" {
		cfg.DedupSchedule = DefaultDedupSchedule
	}
	if cfg.EvictionSchedule == "" {
		cfg.EvictionSchedule = DefaultEvictionSchedule
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultMaintenanceBudget
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Maintenance{pruner: pruner, evictor: evictor, opts: cfg}
}

// Register adds the housekeeping jobs to s. A non-positive retention or idle window
// disables the corresponding job.
func (m *Maintenance) Register(s *Scheduler) error {
	if m.pruner != nil && m.opts.DedupRetention > 0 {
		if err := s.AddJob("prune-dedup", m.opts.DedupSchedule, func() { m.PruneDedup(context.Background()) }); err != nil {
			return err
		}
	}
	if m.evictor != nil && m.opts.SessionIdle > 0 {
		if err := s.AddJob("evict-sessions", m.opts.EvictionSchedule, func() { m.EvictSessions() }); err != nil {
			return err
		}
	}
	return nil
}

// PruneDedup forgets inbound message IDs older than the retention window.
func (m *Maintenance) PruneDedup(ctx context.Context) int64 {
	if m.pruner == nil || m.opts.DedupRetention <= 0 {
		return 0
	}
	ctx, cancel := context.WithTimeout(ctx, m.opts.JobTimeout)
	defer cancel()
	cutoff := m.opts.Now().Add(-m.opts.DedupRetention)
	n, err := m.pruner.PruneInbound(ctx, cutoff)
	if err != nil {
		slog.Warn("Maintenance.PruneDedup: prune failed", "error", err, "cutoff", cutoff)
		return 0
	}
	if n > 0 {
		slog.Info("Maintenance.PruneDedup: pruned inbound dedup records", "count", n, "cutoff", cutoff)
	}
	return n
}

// EvictSessions drops idle sessions from the cache.
func (m *Maintenance) EvictSessions() int {
	if m.evictor == nil || m.opts.SessionIdle <= 0 {
		return 0
	}
	n := m.evictor.EvictIdle(m.opts.SessionIdle)
	if n > 0 {
		slog.Info("Maintenance.EvictSessions: evicted idle sessions", "count", n, "idle", m.opts.SessionIdle)
	}
	return n
}
