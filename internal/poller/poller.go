// Package poller periodically fetches the report snapshot, keeps the reports
// that are new and nearby, and notifies the user once per report.
//
// Tick: fetch → filter (seen-set, watermark, radius) → mark seen → persist →
// callback → notify → advance watermark.
//
// The engine is Idle until Start and Active until Stop. Ticks never overlap:
// timer ticks that find a tick in progress are skipped, manual checks wait.
// Stop only cancels the timer; a tick already running completes and its side
// effects (seen-set, notifications, watermark) still apply.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cerberusteck/sirse-watch/internal/geo"
	"github.com/cerberusteck/sirse-watch/internal/notify"
	"github.com/cerberusteck/sirse-watch/internal/report"
	"github.com/cerberusteck/sirse-watch/internal/seen"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	DefaultRadiusKm = 5.0

	// nearbyWindow bounds CheckOnce to recent activity.
	nearbyWindow = 24 * time.Hour
)

var (
	// ErrNoLocation is returned when a tick or Start has no user location.
	ErrNoLocation = errors.New("no location available")

	// ErrInvalidInterval is returned by Start for a non-positive interval.
	ErrInvalidInterval = errors.New("polling interval must be positive")
)

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Callback receives the reports a tick found new and nearby.
type Callback func([]report.Report)

// Options tunes the engine. Zero values fall back to defaults.
type Options struct {
	RadiusKm float64
	Filter   report.Filter
	Title    string
}

// Stats is a point-in-time view of the engine.
type Stats struct {
	Active      bool          `json:"active"`
	HasLocation bool          `json:"has_location"`
	SeenCount   int           `json:"seen_count"`
	Interval    time.Duration `json:"interval"`
	RadiusKm    float64       `json:"radius_km"`
	LastCheck   time.Time     `json:"last_check"`
	LastTick    time.Time     `json:"last_tick,omitempty"`
	LastError   string        `json:"last_error,omitempty"`
}

// Nearby is a report with its distance from the query point.
type Nearby struct {
	report.Report
	DistanceKm float64 `json:"distance_km"`
}

// Engine is the polling state machine. The zero value is not usable; call New.
type Engine struct {
	source report.Source
	seen   *seen.Store
	sink   notify.Sink
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	location  *geo.Point
	radiusKm  float64
	filter    report.Filter
	title     string
	interval  time.Duration
	cancel    context.CancelFunc // nil while Idle
	trigger   chan struct{}
	lastTick  time.Time
	lastError string

	// tickMu serializes ticks.
	tickMu sync.Mutex
}

// New creates an Idle engine.
func New(source report.Source, seenStore *seen.Store, sink notify.Sink, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.RadiusKm <= 0 {
		opts.RadiusKm = DefaultRadiusKm
	}
	return &Engine{
		source:   source,
		seen:     seenStore,
		sink:     sink,
		logger:   logger,
		now:      time.Now,
		radiusKm: opts.RadiusKm,
		filter:   opts.Filter,
		title:    opts.Title,
	}
}

// --------------------------------------------------------------------------
// State machine
// --------------------------------------------------------------------------

// Start moves the engine to Active: it performs one tick before returning and
// then ticks every interval until Stop. Starting an Active engine is a no-op.
// Only ctx's values are used; the timer lives until Stop.
func (e *Engine) Start(ctx context.Context, loc *geo.Point, onNew Callback, interval time.Duration) error {
	if loc == nil {
		e.logger.Info("Polling not started: no location")
		return ErrNoLocation
	}
	if interval <= 0 {
		return ErrInvalidInterval
	}

	e.mu.Lock()
	if e.cancel != nil {
		current := e.interval
		e.mu.Unlock()
		e.logger.Info("Polling already active", "interval", current)
		return nil
	}
	l := *loc
	e.location = &l
	e.interval = interval
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.cancel = cancel
	trigger := make(chan struct{}, 1)
	e.trigger = trigger
	e.mu.Unlock()

	e.logger.Info("Polling started", "interval", interval, "radius_km", e.RadiusKm())

	// First tick runs immediately so a fresh start does not wait a full interval.
	e.tickMu.Lock()
	_, err := e.check(context.WithoutCancel(runCtx), onNew)
	e.tickMu.Unlock()
	e.logTickError(err)

	go e.loop(runCtx, interval, trigger, onNew)
	return nil
}

// Stop cancels the timer. Idempotent; a tick in flight is allowed to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.trigger = nil
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	e.logger.Info("Polling stopped")
}

// Active reports whether the timer is running.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancel != nil
}

// Trigger requests an out-of-schedule tick. Ignored while Idle or when a
// trigger is already pending.
func (e *Engine) Trigger() {
	e.mu.Lock()
	trigger := e.trigger
	e.mu.Unlock()
	if trigger == nil {
		return
	}
	select {
	case trigger <- struct{}{}:
	default:
	}
}

func (e *Engine) loop(ctx context.Context, interval time.Duration, trigger <-chan struct{}, onNew Callback) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-trigger:
		case <-ctx.Done():
			return
		}
		// Stop may race the ticker; never start a tick after cancellation.
		if ctx.Err() != nil {
			return
		}
		e.timerTick(ctx, onNew)
	}
}

// timerTick runs a scheduled tick unless one is already in progress. Errors
// are logged only; the timer keeps running.
func (e *Engine) timerTick(ctx context.Context, onNew Callback) {
	if !e.tickMu.TryLock() {
		e.logger.Warn("Skipping tick: previous tick still running")
		return
	}
	_, err := e.check(context.WithoutCancel(ctx), onNew)
	e.tickMu.Unlock()
	e.logTickError(err)
}

func (e *Engine) logTickError(err error) {
	switch {
	case err == nil:
	case errors.Is(err, ErrNoLocation):
		e.logger.Info("Tick skipped: no location")
	default:
		e.logger.Error("Tick failed", "error", err)
	}
}

// --------------------------------------------------------------------------
// Tick
// --------------------------------------------------------------------------

// CheckForNewReports runs one tick outside the timer schedule, waiting for
// any tick already in progress. It returns the reports that were new.
func (e *Engine) CheckForNewReports(ctx context.Context, onNew Callback) ([]report.Report, error) {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	return e.check(ctx, onNew)
}

// Wait blocks until no tick is in progress or ctx is done.
func (e *Engine) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.tickMu.Lock()
		e.tickMu.Unlock()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) check(ctx context.Context, onNew Callback) ([]report.Report, error) {
	e.mu.Lock()
	loc := e.location
	radius := e.radiusKm
	filter := e.filter
	title := e.title
	e.mu.Unlock()

	if loc == nil {
		return nil, ErrNoLocation
	}

	// Another process may share the state store.
	e.refreshSeen(ctx)
	lastCheck := e.seen.LastCheck()
	started := e.now()

	all, err := e.source.GetAllReports(ctx, filter)
	if err != nil {
		e.recordTick(started, err)
		return nil, fmt.Errorf("fetch reports: %w", err)
	}
	e.refreshSeen(ctx)

	fresh := e.selectNew(all, *loc, radius, lastCheck)
	var reports []report.Report
	if len(fresh) > 0 {
		e.logger.Info("New nearby reports", "count", len(fresh), "snapshot", len(all))

		ids := make([]report.ID, len(fresh))
		reports = make([]report.Report, len(fresh))
		for i, n := range fresh {
			ids[i] = n.ID
			reports[i] = n.Report
		}
		e.seen.MarkSeen(ids...)
		_ = e.seen.Persist(ctx) // logged by the store; best effort

		if onNew != nil {
			onNew(reports)
		}
		e.dispatch(ctx, fresh, title)
	}

	// The watermark moves to when this tick fetched; the seen-set covers
	// reports created while the fetch was in flight.
	_ = e.seen.UpdateLastCheck(ctx, started)
	e.recordTick(started, nil)
	return reports, nil
}

func (e *Engine) refreshSeen(ctx context.Context) {
	if err := e.seen.Refresh(ctx); err != nil {
		e.logger.Warn("Failed to refresh seen reports", "error", err)
	}
}

// dispatch sends exactly one notification per report. A failed send is
// logged and does not stop the rest.
func (e *Engine) dispatch(ctx context.Context, fresh []Nearby, title string) {
	sent, failed := 0, 0
	for _, n := range fresh {
		msg := notify.ForReport(n.Report, n.DistanceKm, title)
		if err := e.sink.Notify(ctx, msg); err != nil {
			e.logger.Warn("Notification failed", "report_id", n.ID, "error", err)
			failed++
			continue
		}
		sent++
	}
	e.logger.Info("Notifications dispatched", "sent", sent, "failed", failed)
}

// selectNew keeps unseen reports newer than lastCheck within radius km.
func (e *Engine) selectNew(all []report.Report, loc geo.Point, radius float64, lastCheck time.Time) []Nearby {
	watermark := lastCheck.UnixMilli()
	var out []Nearby
	for _, r := range all {
		if e.seen.Has(r.ID) {
			continue
		}
		if r.ReportedAtTimestamp <= watermark {
			continue
		}
		d := geo.Distance(loc, r.Coordinates)
		if d > radius {
			continue
		}
		out = append(out, Nearby{Report: r, DistanceKm: d})
	}
	return out
}

func (e *Engine) recordTick(at time.Time, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastTick = at
	if err != nil {
		e.lastError = err.Error()
	} else {
		e.lastError = ""
	}
}

// CheckOnce lists reports from the last 24 hours within radiusKm of loc,
// nearest first. It does not touch the seen-set or send notifications.
func (e *Engine) CheckOnce(ctx context.Context, loc geo.Point, radiusKm float64) ([]Nearby, error) {
	if radiusKm <= 0 {
		radiusKm = e.RadiusKm()
	}
	e.mu.Lock()
	filter := e.filter
	e.mu.Unlock()

	all, err := e.source.GetAllReports(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("fetch reports: %w", err)
	}

	since := e.now().Add(-nearbyWindow).UnixMilli()
	out := []Nearby{}
	for _, r := range all {
		if r.ReportedAtTimestamp <= since {
			continue
		}
		if d := geo.Distance(loc, r.Coordinates); d <= radiusKm {
			out = append(out, Nearby{Report: r, DistanceKm: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	return out, nil
}

// --------------------------------------------------------------------------
// Accessors
// --------------------------------------------------------------------------

// UpdateLocation replaces the location used by subsequent ticks.
func (e *Engine) UpdateLocation(loc geo.Point) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.location = &loc
}

// Location returns the current location, or nil.
func (e *Engine) Location() *geo.Point {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.location == nil {
		return nil
	}
	l := *e.location
	return &l
}

// SetRadius changes the notification radius. Non-positive values are ignored.
func (e *Engine) SetRadius(km float64) {
	if km <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.radiusKm = km
}

// RadiusKm returns the notification radius.
func (e *Engine) RadiusKm() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.radiusKm
}

// Stats returns a snapshot of the engine state.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	st := Stats{
		Active:      e.cancel != nil,
		HasLocation: e.location != nil,
		Interval:    e.interval,
		RadiusKm:    e.radiusKm,
		LastTick:    e.lastTick,
		LastError:   e.lastError,
	}
	e.mu.Unlock()

	st.SeenCount = e.seen.Len()
	st.LastCheck = e.seen.LastCheck()
	return st
}
