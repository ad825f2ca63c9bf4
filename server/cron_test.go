package server

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestParseCronExpressionUTC_Valid(t *testing.T) {
	schedule, err := parseCronExpressionUTC("*/5 * * * *")
	if err != nil {
		t.Fatalf("parseCronExpressionUTC error: %v", err)
	}

	next := schedule.Next(time.Date(2026, 2, 20, 10, 2, 0, 0, time.UTC))
	want := time.Date(2026, 2, 20, 10, 5, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next=%s, want=%s", next.Format(time.RFC3339), want.Format(time.RFC3339))
	}
}

func TestParseCronExpressionUTC_Descriptor(t *testing.T) {
	now := time.Date(2026, 2, 20, 10, 2, 0, 0, time.UTC)
	next, err := nextCronRunUTC("@every 1h", now)
	if err != nil {
		t.Fatalf("nextCronRunUTC error: %v", err)
	}
	if want := now.Add(time.Hour); !next.Equal(want) {
		t.Fatalf("next=%s, want=%s", next.Format(time.RFC3339), want.Format(time.RFC3339))
	}
}

func TestParseCronExpressionUTC_RejectsTimezonePrefixes(t *testing.T) {
	for _, expr := range []string{
		"CRON_TZ=America/Los_Angeles * * * * *",
		"TZ=UTC * * * * *",
		"",
		"not a schedule",
	} {
		if _, err := parseCronExpressionUTC(expr); err == nil {
			t.Fatalf("parseCronExpressionUTC(%q) expected error", expr)
		}
	}
}

type fakeSessions struct {
	n   int64
	err error
}

func (f *fakeSessions) CleanExpiredSessions(context.Context) (int64, error) { return f.n, f.err }

type fakePruner struct {
	cutoff time.Time
	n      int64
}

func (f *fakePruner) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.n, nil
}

func TestMaintenance_RunOnce(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pruner := &fakePruner{n: 7}
	m, err := NewMaintenance(MaintenanceConfig{
		Schedule:  "@every 1h",
		Sessions:  &fakeSessions{n: 2},
		Events:    pruner,
		Retention: 24 * time.Hour,
		Clock:     func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewMaintenance: %v", err)
	}

	report, err := m.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if report.Sessions != 2 || report.Events != 7 {
		t.Fatalf("report = %+v", report)
	}
	if want := now.Add(-24 * time.Hour); !pruner.cutoff.Equal(want) {
		t.Fatalf("cutoff = %s, want %s", pruner.cutoff, want)
	}
}

func TestMaintenance_RunOnceContinuesAfterSessionError(t *testing.T) {
	boom := errors.New("boom")
	pruner := &fakePruner{n: 1}
	m, err := NewMaintenance(MaintenanceConfig{
		Schedule:  "0 * * * *",
		Sessions:  &fakeSessions{err: boom},
		Events:    pruner,
		Retention: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewMaintenance: %v", err)
	}

	report, err := m.RunOnce(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if report.Events != 1 {
		t.Fatalf("events = %d, want 1", report.Events)
	}
}

func TestMaintenance_ZeroRetentionSkipsPrune(t *testing.T) {
	pruner := &fakePruner{}
	m, err := NewMaintenance(MaintenanceConfig{Schedule: "@daily", Events: pruner})
	if err != nil {
		t.Fatalf("NewMaintenance: %v", err)
	}
	if _, err := m.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !pruner.cutoff.IsZero() {
		t.Fatal("prune should not run without retention")
	}
}

func TestMaintenance_StartStop(t *testing.T) {
	m, err := NewMaintenance(MaintenanceConfig{Schedule: "@every 1h"})
	if err != nil {
		t.Fatalf("NewMaintenance: %v", err)
	}
	m.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestNewMaintenance_InvalidSchedule(t *testing.T) {
	if _, err := NewMaintenance(MaintenanceConfig{Schedule: "every hour"}); err == nil {
		t.Fatal("expected error")
	}
}
