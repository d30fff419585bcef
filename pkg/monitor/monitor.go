// Package monitor implements the periodic SLA scan over pending steps:
// warnings as a step approaches its SLA, escalations once it is breached.
// It only reads engine state; all writes go through the engine's public API.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/models"
	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/storage"
	"github.com/pkg/errors"
)

// Logger defines the logging interface for the Monitor.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// EngineAPI is the slice of the execution engine the monitor drives.
type EngineAPI interface {
	Escalate(ctx context.Context, stepID int64) error
	RecordWarning(ctx context.Context, stepID int64) error
}

const (
	DefaultInterval         = time.Minute
	DefaultWarningThreshold = 80.0 // percent of the SLA
	DefaultWorkers          = 4
	// DefaultEscalationBackoff spaces repeat escalations of the same breached
	// step, one per severity band rather than one per scan tick.
	DefaultEscalationBackoff = 4 * time.Hour
)

// Monitor runs the scan on a fixed interval with a bounded worker pool, so a
// slow escalation for one step never blocks the rest of the scan.
type Monitor struct {
	store             storage.Store
	engine            EngineAPI
	logger            Logger
	interval          time.Duration
	warningThreshold  float64
	workers           int
	escalationBackoff time.Duration
	now               func() time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

func WithInterval(d time.Duration) Option {
	return func(m *Monitor) { m.interval = d }
}

func WithWarningThreshold(pct float64) Option {
	return func(m *Monitor) { m.warningThreshold = pct }
}

func WithWorkers(n int) Option {
	return func(m *Monitor) { m.workers = n }
}

// WithEscalationBackoff sets the minimum spacing between two escalations of
// the same step.
func WithEscalationBackoff(d time.Duration) Option {
	return func(m *Monitor) { m.escalationBackoff = d }
}

// WithClock replaces the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

func NewMonitor(store storage.Store, engine EngineAPI, logger Logger, opts ...Option) *Monitor {
	m := &Monitor{
		store:             store,
		engine:            engine,
		logger:            logger,
		interval:          DefaultInterval,
		warningThreshold:  DefaultWarningThreshold,
		workers:           DefaultWorkers,
		escalationBackoff: DefaultEscalationBackoff,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Assessment is the monitor's verdict on one pending step.
type Assessment struct {
	Elapsed         time.Duration
	Overdue         time.Duration
	NeedsWarning    bool
	NeedsEscalation bool
	Severity        models.Severity
}

// Assess computes elapsed time (business-hour restricted when the node asked
// for it) against the step's SLA. Pure; dedupe against LastWarningAt happens
// in the scan.
func (m *Monitor) Assess(step models.StepInstance, now time.Time) Assessment {
	var a Assessment
	if step.SLAHours <= 0 {
		return a
	}
	if step.BusinessHours {
		a.Elapsed = BusinessElapsed(step.StartedAt, now)
	} else {
		a.Elapsed = now.Sub(step.StartedAt)
	}

	sla := time.Duration(step.SLAHours * float64(time.Hour))
	pct := float64(a.Elapsed) / float64(sla) * 100

	switch {
	case a.Elapsed >= sla:
		a.NeedsEscalation = true
		a.Overdue = a.Elapsed - sla
		a.Severity = classify(a.Overdue)
	case pct >= m.warningThreshold:
		a.NeedsWarning = true
	}
	return a
}

func classify(overdue time.Duration) models.Severity {
	switch {
	case overdue < 4*time.Hour:
		return models.LowSeverity
	case overdue < 12*time.Hour:
		return models.MediumSeverity
	case overdue < 24*time.Hour:
		return models.HighSeverity
	default:
		return models.CriticalSeverity
	}
}

// Start runs the periodic scan until the context is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	m.logger.Infof("SLA monitor started (interval %s, warn at %.0f%%)", m.interval, m.warningThreshold)
	for {
		select {
		case <-ctx.Done():
			m.logger.Infof("SLA monitor stopped: %v", ctx.Err())
			return
		case <-ticker.C:
			if errs := m.Scan(ctx); len(errs) > 0 {
				m.logger.Errorf("SLA scan finished with %d step errors", len(errs))
			}
		}
	}
}

// Scan assesses every pending step with an SLA. Per-step failures are
// collected and returned; they never abort the remaining steps.
func (m *Monitor) Scan(ctx context.Context) []error {
	steps, err := m.store.ListPendingSLASteps()
	if err != nil {
		return []error{errors.Wrap(err, "list pending steps")}
	}
	if len(steps) == 0 {
		return nil
	}

	jobs := make(chan models.StepInstance, len(steps))
	var (
		wg     sync.WaitGroup
		errsMu sync.Mutex
		errs   []error
	)
	workers := m.workers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for step := range jobs {
				if err := m.processStep(ctx, step); err != nil {
					m.logger.Errorf("SLA scan: step %d: %v", step.ID, err)
					errsMu.Lock()
					errs = append(errs, err)
					errsMu.Unlock()
				}
			}
		}()
	}
	for _, step := range steps {
		jobs <- step
	}
	close(jobs)
	wg.Wait()
	return errs
}

func (m *Monitor) processStep(ctx context.Context, step models.StepInstance) error {
	now := m.now()
	a := m.Assess(step, now)

	switch {
	case a.NeedsEscalation && m.escalationDue(step.LastEscalatedAt, now):
		m.logger.Infof("Step %d overdue by %s (%s), escalating", step.ID, a.Overdue, a.Severity)
		return m.engine.Escalate(ctx, step.ID)
	case a.NeedsWarning && !warnedToday(step.LastWarningAt, now):
		return m.engine.RecordWarning(ctx, step.ID)
	default:
		return nil
	}
}

// escalationDue spaces repeat escalations: a breached step climbs one level
// per backoff window, not one per scan tick.
func (m *Monitor) escalationDue(last *time.Time, now time.Time) bool {
	return last == nil || now.Sub(*last) >= m.escalationBackoff
}

// warnedToday suppresses repeated warnings for the same step within one day.
func warnedToday(last *time.Time, now time.Time) bool {
	if last == nil {
		return false
	}
	ly, lm, ld := last.Date()
	ny, nm, nd := now.Date()
	return ly == ny && lm == nm && ld == nd
}

// Business hours: 08:00-17:00, Sunday through Thursday.
const (
	businessDayStartHour = 8
	businessDayEndHour   = 17
)

// BusinessElapsed returns how much of [start, end] falls inside business
// windows. The final partial hour contributes its exact fraction.
func BusinessElapsed(start, end time.Time) time.Duration {
	if !end.After(start) {
		return 0
	}
	var total time.Duration
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	for day.Before(end) {
		wd := day.Weekday()
		if wd != time.Friday && wd != time.Saturday {
			winStart := day.Add(businessDayStartHour * time.Hour)
			winEnd := day.Add(businessDayEndHour * time.Hour)
			s, e := start, end
			if winStart.After(s) {
				s = winStart
			}
			if winEnd.Before(e) {
				e = winEnd
			}
			if e.After(s) {
				total += e.Sub(s)
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return total
}
