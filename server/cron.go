package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/petal-labs/algoviz/bus"
)

var standardCronParser = cron.NewParser(
	cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

func nextCronRunUTC(expr string, now time.Time) (time.Time, error) {
	schedule, err := parseCronExpressionUTC(expr)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(now.UTC()), nil
}

func parseCronExpressionUTC(expr string) (cron.Schedule, error) {
	clean := strings.TrimSpace(expr)
	if clean == "" {
		return nil, fmt.Errorf("cron expression is required")
	}

	upper := strings.ToUpper(clean)
	if strings.Contains(upper, "CRON_TZ=") || strings.Contains(upper, "TZ=") {
		return nil, fmt.Errorf("cron expression must be UTC-only (timezone prefixes are not allowed)")
	}

	schedule, err := standardCronParser.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule, nil
}

// SessionCleaner removes expired sessions.
type SessionCleaner interface {
	CleanExpiredSessions(ctx context.Context) (int64, error)
}

// MaintenanceConfig configures the periodic cleanup job.
type MaintenanceConfig struct {
	// Schedule is a UTC cron expression or descriptor such as "@every 1h".
	Schedule string

	Sessions SessionCleaner
	Events   bus.Pruner

	// Retention is how long run events are kept. Zero keeps them forever.
	Retention time.Duration

	Logger *slog.Logger
	Clock  func() time.Time
}

// MaintenanceReport is the outcome of one cleanup pass.
type MaintenanceReport struct {
	Sessions int64
	Events   int64
}

// Maintenance periodically drops expired sessions and old run events.
type Maintenance struct {
	cfg      MaintenanceConfig
	schedule cron.Schedule
	cron     *cron.Cron
	logger   *slog.Logger
	clock    func() time.Time
}

// NewMaintenance validates the schedule and builds an idle job.
func NewMaintenance(cfg MaintenanceConfig) (*Maintenance, error) {
	schedule, err := parseCronExpressionUTC(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Maintenance{
		cfg:      cfg,
		schedule: schedule,
		logger:   logger,
		clock:    clock,
	}, nil
}

// Next returns the next scheduled pass after now.
func (m *Maintenance) Next(now time.Time) time.Time {
	return m.schedule.Next(now.UTC())
}

// RunOnce performs a single cleanup pass. Both steps run even when the
// first fails.
func (m *Maintenance) RunOnce(ctx context.Context) (MaintenanceReport, error) {
	var report MaintenanceReport
	var errs []error

	if m.cfg.Sessions != nil {
		n, err := m.cfg.Sessions.CleanExpiredSessions(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("clean sessions: %w", err))
		}
		report.Sessions = n
	}
	if m.cfg.Events != nil && m.cfg.Retention > 0 {
		cutoff := m.clock().Add(-m.cfg.Retention)
		n, err := m.cfg.Events.PruneBefore(ctx, cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("prune events: %w", err))
		}
		report.Events = n
	}
	return report, errors.Join(errs...)
}

// Start schedules RunOnce. Overlapping passes are skipped.
func (m *Maintenance) Start() {
	m.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	m.cron.Schedule(m.schedule, cron.FuncJob(func() {
		report, err := m.RunOnce(context.Background())
		if err != nil {
			m.logger.Error("maintenance failed", "error", err)
			return
		}
		m.logger.Info("maintenance complete", "sessions", report.Sessions, "events", report.Events)
	}))
	m.cron.Start()
}

// Stop halts the schedule and waits for a running pass or ctx.
func (m *Maintenance) Stop(ctx context.Context) error {
	if m.cron == nil {
		return nil
	}
	select {
	case <-m.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
