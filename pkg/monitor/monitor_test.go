package monitor_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/models"
	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/monitor"
	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/storage"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

type noopLogger struct{}

func (noopLogger) Infof(format string, args ...interface{})  {}
func (noopLogger) Errorf(format string, args ...interface{}) {}

type fakeEngine struct {
	mu        sync.Mutex
	escalated []int64
	warned    []int64
	failOn    map[int64]error
}

func (f *fakeEngine) Escalate(_ context.Context, stepID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failOn[stepID]; ok {
		return err
	}
	f.escalated = append(f.escalated, stepID)
	return nil
}

func (f *fakeEngine) RecordWarning(_ context.Context, stepID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failOn[stepID]; ok {
		return err
	}
	f.warned = append(f.warned, stepID)
	return nil
}

func pendingStep(store storage.Store, t *testing.T, startedAgo time.Duration, slaHours float64) models.StepInstance {
	t.Helper()
	if _, err := store.GetRequest("req-1"); errors.Is(err, storage.ErrNotFound) {
		assert.NoError(t, store.SaveRequest(models.RequestInstance{
			ID:                "req-1",
			DefinitionID:      1,
			DefinitionVersion: 1,
			RequesterID:       "requester",
			Status:            models.RunningRequestStatus,
		}))
	}
	step := models.StepInstance{
		RequestID: "req-1",
		NodeID:    "approve",
		Kind:      models.ApprovalNode,
		Status:    models.PendingStepStatus,
		SLAHours:  slaHours,
		StartedAt: time.Now().Add(-startedAgo),
	}
	id, err := store.SaveStep(step)
	assert.NoError(t, err)
	step.ID = id
	return step
}

func TestAssess_WarningAndEscalationThresholds(t *testing.T) {
	m := monitor.NewMonitor(storage.NewMockStore(), &fakeEngine{}, noopLogger{})
	now := time.Now()

	// 20 of 24 hours: 83% elapsed, not yet breached
	step := models.StepInstance{SLAHours: 24, StartedAt: now.Add(-20 * time.Hour), Status: models.PendingStepStatus}
	a := m.Assess(step, now)
	assert.True(t, a.NeedsWarning)
	assert.False(t, a.NeedsEscalation)

	// 25 of 24 hours: breached
	step.StartedAt = now.Add(-25 * time.Hour)
	a = m.Assess(step, now)
	assert.False(t, a.NeedsWarning)
	assert.True(t, a.NeedsEscalation)
	assert.Equal(t, models.LowSeverity, a.Severity)

	// far below the threshold
	step.StartedAt = now.Add(-2 * time.Hour)
	a = m.Assess(step, now)
	assert.False(t, a.NeedsWarning)
	assert.False(t, a.NeedsEscalation)
}

func TestAssess_SeverityBands(t *testing.T) {
	m := monitor.NewMonitor(storage.NewMockStore(), &fakeEngine{}, noopLogger{})
	now := time.Now()

	cases := []struct {
		overdue  time.Duration
		expected models.Severity
	}{
		{1 * time.Hour, models.LowSeverity},
		{6 * time.Hour, models.MediumSeverity},
		{18 * time.Hour, models.HighSeverity},
		{30 * time.Hour, models.CriticalSeverity},
	}
	for _, tc := range cases {
		step := models.StepInstance{SLAHours: 1, StartedAt: now.Add(-time.Hour - tc.overdue)}
		a := m.Assess(step, now)
		assert.True(t, a.NeedsEscalation)
		assert.Equal(t, tc.expected, a.Severity, "overdue %s", tc.overdue)
	}
}

func TestScan_WarnsAndEscalates(t *testing.T) {
	store := storage.NewMockStore()
	eng := &fakeEngine{}
	m := monitor.NewMonitor(store, eng, noopLogger{})

	warning := pendingStep(store, t, 20*time.Hour, 24)
	breached := pendingStep(store, t, 25*time.Hour, 24)
	healthy := pendingStep(store, t, 1*time.Hour, 24)

	errs := m.Scan(context.Background())
	assert.Empty(t, errs)

	assert.ElementsMatch(t, []int64{warning.ID}, eng.warned)
	assert.ElementsMatch(t, []int64{breached.ID}, eng.escalated)
	_ = healthy
}

func TestScan_WarningDedupedWithinSameDay(t *testing.T) {
	store := storage.NewMockStore()
	eng := &fakeEngine{}
	m := monitor.NewMonitor(store, eng, noopLogger{})

	step := pendingStep(store, t, 20*time.Hour, 24)
	earlier := time.Now().Add(-time.Hour)
	assert.NoError(t, store.UpdateStepWarning(step.ID, earlier))

	errs := m.Scan(context.Background())
	assert.Empty(t, errs)
	assert.Empty(t, eng.warned, "already warned today")

	// next day the warning fires again
	m = monitor.NewMonitor(store, eng, noopLogger{},
		monitor.WithClock(func() time.Time { return time.Now().Add(24 * time.Hour) }))
	errs = m.Scan(context.Background())
	assert.Empty(t, errs)
	assert.NotEmpty(t, eng.escalated, "a day later the step is breached")
}

func TestScan_PartialFailureIsolation(t *testing.T) {
	store := storage.NewMockStore()
	broken := pendingStep(store, t, 25*time.Hour, 24)
	fine := pendingStep(store, t, 26*time.Hour, 24)

	eng := &fakeEngine{failOn: map[int64]error{broken.ID: errors.New("notification dispatch failed")}}
	m := monitor.NewMonitor(store, eng, noopLogger{}, monitor.WithWorkers(2))

	errs := m.Scan(context.Background())
	assert.Len(t, errs, 1)
	assert.ElementsMatch(t, []int64{fine.ID}, eng.escalated, "other steps still processed")
}

func TestScan_SkipsStepsOfFinishedRequests(t *testing.T) {
	store := storage.NewMockStore()
	eng := &fakeEngine{}
	m := monitor.NewMonitor(store, eng, noopLogger{})

	pendingStep(store, t, 25*time.Hour, 24)
	assert.NoError(t, store.UpdateRequestStatus("req-1", models.CancelledRequestStatus))

	errs := m.Scan(context.Background())
	assert.Empty(t, errs)
	assert.Empty(t, eng.escalated, "a finished request is never escalated")
	assert.Empty(t, eng.warned)
}

func TestScan_EscalationSpacedByBackoff(t *testing.T) {
	store := storage.NewMockStore()
	eng := &fakeEngine{}
	m := monitor.NewMonitor(store, eng, noopLogger{})

	step := pendingStep(store, t, 25*time.Hour, 24)
	assert.NoError(t, store.UpdateStepEscalation(step.ID, 1, time.Now()))

	errs := m.Scan(context.Background())
	assert.Empty(t, errs)
	assert.Empty(t, eng.escalated, "just escalated, next level is not due yet")

	// once the backoff window has passed the next level fires
	m = monitor.NewMonitor(store, eng, noopLogger{},
		monitor.WithClock(func() time.Time { return time.Now().Add(5 * time.Hour) }))
	errs = m.Scan(context.Background())
	assert.Empty(t, errs)
	assert.ElementsMatch(t, []int64{step.ID}, eng.escalated)
}

func TestScan_CustomWarningThreshold(t *testing.T) {
	store := storage.NewMockStore()
	eng := &fakeEngine{}
	m := monitor.NewMonitor(store, eng, noopLogger{}, monitor.WithWarningThreshold(50))

	step := pendingStep(store, t, 13*time.Hour, 24) // 54%
	errs := m.Scan(context.Background())
	assert.Empty(t, errs)
	assert.ElementsMatch(t, []int64{step.ID}, eng.warned)
}

func TestBusinessElapsed(t *testing.T) {
	loc := time.UTC
	// Sunday 2026-08-23 is a business day (Sun-Thu week)
	sunday9 := time.Date(2026, 8, 23, 9, 0, 0, 0, loc)

	// same business day, 9:00 -> 11:30
	assert.Equal(t, 2*time.Hour+30*time.Minute, monitor.BusinessElapsed(sunday9, sunday9.Add(2*time.Hour+30*time.Minute)))

	// 9:00 -> 20:00 caps at the 17:00 window end
	assert.Equal(t, 8*time.Hour, monitor.BusinessElapsed(sunday9, sunday9.Add(11*time.Hour)))

	// spanning into Monday 10:00: 8h Sunday + 2h Monday
	monday10 := time.Date(2026, 8, 24, 10, 0, 0, 0, loc)
	assert.Equal(t, 10*time.Hour, monitor.BusinessElapsed(sunday9, monday10))

	// Friday and Saturday contribute nothing
	thursday16 := time.Date(2026, 8, 27, 16, 0, 0, 0, loc)
	nextSunday9 := time.Date(2026, 8, 30, 9, 0, 0, 0, loc)
	assert.Equal(t, 2*time.Hour, monitor.BusinessElapsed(thursday16, nextSunday9))

	// before the window opens
	sunday6 := time.Date(2026, 8, 23, 6, 0, 0, 0, loc)
	assert.Equal(t, time.Hour, monitor.BusinessElapsed(sunday6, sunday9))

	// end before start
	assert.Equal(t, time.Duration(0), monitor.BusinessElapsed(sunday9, sunday9))
}

func TestAssess_BusinessHoursRestricted(t *testing.T) {
	m := monitor.NewMonitor(storage.NewMockStore(), &fakeEngine{}, noopLogger{})

	// started Sunday 09:00, assessed Monday 09:00: 24 wall hours but only
	// 9 business hours elapsed against an 8h SLA
	start := time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC)
	now := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	step := models.StepInstance{SLAHours: 8, BusinessHours: true, StartedAt: start, Status: models.PendingStepStatus}

	a := m.Assess(step, now)
	assert.Equal(t, 9*time.Hour, a.Elapsed)
	assert.True(t, a.NeedsEscalation)
	assert.Equal(t, models.LowSeverity, a.Severity)
}
