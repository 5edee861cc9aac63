// Package lifecycle decides when the polling engine runs. It reacts to
// foreground/background transitions and to user changes of the persisted
// polling configuration, and exposes the manual "check now" operation.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cerberusteck/sirse-watch/internal/geo"
	"github.com/cerberusteck/sirse-watch/internal/kv"
	"github.com/cerberusteck/sirse-watch/internal/notify"
	"github.com/cerberusteck/sirse-watch/internal/poller"
	"github.com/cerberusteck/sirse-watch/internal/report"
	"github.com/cerberusteck/sirse-watch/internal/seen"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	enabledKey  = "sirse.polling_enabled"
	intervalKey = "sirse.polling_interval" // milliseconds

	DefaultInterval      = 2 * time.Minute
	DefaultCheckTimeout  = 10 * time.Second
	DefaultRestartSettle = 500 * time.Millisecond
)

// ErrCheckTimeout is returned by CheckNow when the check outlives its timeout.
var ErrCheckTimeout = errors.New("check timed out")

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Config is the user-facing polling configuration.
type Config struct {
	Enabled  bool          `json:"enabled"`
	Interval time.Duration `json:"interval"`
	RadiusKm float64       `json:"radius_km"`
}

// Options tunes the controller. Zero values fall back to defaults.
type Options struct {
	Defaults      Config
	CheckTimeout  time.Duration
	RestartSettle time.Duration
}

// Outcome classifies a manual check for the UI.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeTimeout
	OutcomeError
	OutcomeNoLocation
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeNoLocation:
		return "no_location"
	default:
		return "error"
	}
}

// MarshalText encodes the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// CheckResult is what CheckNow reports back.
type CheckResult struct {
	Outcome    Outcome         `json:"outcome"`
	NewReports []report.Report `json:"new_reports"`
	SeenCount  int             `json:"seen_count"`
}

// Status is the configuration surface shown to the UI.
type Status struct {
	Enabled         bool       `json:"enabled"`
	IntervalMinutes float64    `json:"interval_minutes"`
	RadiusKm        float64    `json:"radius_km"`
	Active          bool       `json:"active"`
	Foreground      bool       `json:"foreground"`
	HasLocation     bool       `json:"has_location"`
	Location        *geo.Point `json:"location,omitempty"`
	SeenCount       int        `json:"seen_count"`
	NewReportsCount int        `json:"new_reports_count"`
	LastUpdate      *time.Time `json:"last_update"`
	LastCheck       time.Time  `json:"last_check"`
	LastError       string     `json:"last_error,omitempty"`
}

// Controller owns the decision of when the engine runs.
type Controller struct {
	engine       *poller.Engine
	seen         *seen.Store
	kv           kv.Store
	perms        notify.Permissions
	logger       *slog.Logger
	checkTimeout time.Duration
	settle       time.Duration

	mu         sync.Mutex
	cfg        Config
	location   *geo.Point
	foreground bool
	newCount   int
	lastUpdate time.Time
	listener   poller.Callback
	restart    *time.Timer
}

// New creates a controller in the background state.
func New(engine *poller.Engine, seenStore *seen.Store, store kv.Store, perms notify.Permissions, opts Options, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if perms == nil {
		perms = notify.Static(true)
	}
	if opts.Defaults.Interval <= 0 {
		opts.Defaults.Interval = DefaultInterval
	}
	if opts.Defaults.RadiusKm <= 0 {
		opts.Defaults.RadiusKm = engine.RadiusKm()
	}
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = DefaultCheckTimeout
	}
	if opts.RestartSettle <= 0 {
		opts.RestartSettle = DefaultRestartSettle
	}
	engine.SetRadius(opts.Defaults.RadiusKm)
	return &Controller{
		engine:       engine,
		seen:         seenStore,
		kv:           store,
		perms:        perms,
		logger:       logger,
		checkTimeout: opts.CheckTimeout,
		settle:       opts.RestartSettle,
		cfg:          opts.Defaults,
	}
}

// SetListener registers a downstream receiver for new-report batches.
func (c *Controller) SetListener(cb poller.Callback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = cb
}

// Load reads the persisted configuration and seen-set. Absent or unreadable
// values keep the defaults.
func (c *Controller) Load(ctx context.Context) {
	var enabled bool
	enabledErr := kv.GetJSON(ctx, c.kv, enabledKey, &enabled)
	if enabledErr != nil && !errors.Is(enabledErr, kv.ErrNotFound) {
		c.logger.Warn("Failed to load polling flag", "error", enabledErr)
	}
	var intervalMs int64
	intervalErr := kv.GetJSON(ctx, c.kv, intervalKey, &intervalMs)
	if intervalErr != nil && !errors.Is(intervalErr, kv.ErrNotFound) {
		c.logger.Warn("Failed to load polling interval", "error", intervalErr)
	}

	c.mu.Lock()
	if enabledErr == nil {
		c.cfg.Enabled = enabled
	}
	if intervalErr == nil && intervalMs > 0 {
		c.cfg.Interval = time.Duration(intervalMs) * time.Millisecond
	}
	cfg := c.cfg
	c.mu.Unlock()

	c.seen.Load(ctx)
	c.logger.Info("Polling configuration loaded",
		"enabled", cfg.Enabled, "interval", cfg.Interval, "radius_km", cfg.RadiusKm)
}

// --------------------------------------------------------------------------
// Lifecycle transitions
// --------------------------------------------------------------------------

// Foreground (re)starts polling when it is enabled and a location is known.
func (c *Controller) Foreground(ctx context.Context) {
	c.mu.Lock()
	c.foreground = true
	c.mu.Unlock()
	c.logger.Info("App in foreground")
	c.startIfReady(ctx)
}

// Background stops polling unconditionally; nothing ticks in the background.
func (c *Controller) Background() {
	c.mu.Lock()
	c.foreground = false
	c.cancelRestartLocked()
	c.mu.Unlock()
	c.logger.Info("App in background, pausing polling")
	c.engine.Stop()
}

// UpdateLocation records a new user location and starts polling if it was
// only waiting for one.
func (c *Controller) UpdateLocation(ctx context.Context, loc geo.Point) error {
	if err := loc.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.location = &loc
	c.mu.Unlock()

	c.engine.UpdateLocation(loc)
	c.startIfReady(ctx)
	return nil
}

// SetEnabled persists the polling flag. Enabling requires notification
// permission first; a refusal leaves polling disabled and returns
// notify.ErrPermissionDenied.
func (c *Controller) SetEnabled(ctx context.Context, enabled bool) error {
	if !enabled {
		c.mu.Lock()
		c.cfg.Enabled = false
		c.cancelRestartLocked()
		c.mu.Unlock()
		c.engine.Stop()

		if err := kv.SetJSON(ctx, c.kv, enabledKey, false); err != nil {
			c.logger.Error("Failed to persist polling flag", "error", err)
			return fmt.Errorf("persist polling flag: %w", err)
		}
		c.logger.Info("Polling disabled")
		return nil
	}

	granted, err := c.perms.RequestPermission(ctx)
	if err != nil {
		return fmt.Errorf("request notification permission: %w", err)
	}
	if !granted {
		c.logger.Warn("Notification permission denied, polling stays disabled")
		return notify.ErrPermissionDenied
	}

	if err := kv.SetJSON(ctx, c.kv, enabledKey, true); err != nil {
		c.logger.Error("Failed to persist polling flag", "error", err)
		return fmt.Errorf("persist polling flag: %w", err)
	}
	c.mu.Lock()
	c.cfg.Enabled = true
	c.mu.Unlock()
	c.logger.Info("Polling enabled")

	c.startIfReady(ctx)
	return nil
}

// SetInterval persists a new polling interval. An Active engine is stopped
// and restarted with the new interval after the settle delay, rather than
// adjusting the running timer.
func (c *Controller) SetInterval(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return poller.ErrInvalidInterval
	}
	if err := kv.SetJSON(ctx, c.kv, intervalKey, d.Milliseconds()); err != nil {
		c.logger.Error("Failed to persist polling interval", "error", err)
		return fmt.Errorf("persist polling interval: %w", err)
	}

	c.mu.Lock()
	c.cfg.Interval = d
	c.mu.Unlock()
	c.logger.Info("Polling interval changed", "interval", d)

	if !c.engine.Active() {
		return nil
	}
	c.restartAfterSettle()
	return nil
}

// restartAfterSettle stops the engine and starts it again once the settle
// delay passes, unless something cancels or supersedes the restart first.
func (c *Controller) restartAfterSettle() {
	c.engine.Stop()

	c.mu.Lock()
	c.cancelRestartLocked()
	var t *time.Timer
	t = time.AfterFunc(c.settle, func() {
		c.mu.Lock()
		if c.restart != t {
			// Cancelled or superseded after it fired.
			c.mu.Unlock()
			return
		}
		c.restart = nil
		c.mu.Unlock()
		c.startIfReady(context.Background())
	})
	c.restart = t
	c.mu.Unlock()
}

// Reload re-reads the persisted polling flag and interval and applies any
// change made by another process sharing the state store. Enabling through
// Reload does not ask for permission again; the writer already did.
func (c *Controller) Reload(ctx context.Context) {
	var enabled bool
	enabledErr := kv.GetJSON(ctx, c.kv, enabledKey, &enabled)
	if enabledErr != nil && !errors.Is(enabledErr, kv.ErrNotFound) {
		c.logger.Warn("Failed to reload polling flag", "error", enabledErr)
	}
	var intervalMs int64
	intervalErr := kv.GetJSON(ctx, c.kv, intervalKey, &intervalMs)
	if intervalErr != nil && !errors.Is(intervalErr, kv.ErrNotFound) {
		c.logger.Warn("Failed to reload polling interval", "error", intervalErr)
	}

	c.mu.Lock()
	prev := c.cfg
	if enabledErr == nil {
		c.cfg.Enabled = enabled
	}
	if intervalErr == nil && intervalMs > 0 {
		c.cfg.Interval = time.Duration(intervalMs) * time.Millisecond
	}
	cfg := c.cfg
	if !cfg.Enabled {
		c.cancelRestartLocked()
	}
	c.mu.Unlock()

	if cfg == prev {
		return
	}
	c.logger.Info("Polling configuration reloaded", "enabled", cfg.Enabled, "interval", cfg.Interval)
	switch {
	case !cfg.Enabled:
		c.engine.Stop()
	case cfg.Interval != prev.Interval && c.engine.Active():
		c.restartAfterSettle()
	default:
		c.startIfReady(ctx)
	}
}

// startIfReady starts the engine when enabled, foregrounded and located, and
// no settle-delayed restart is pending.
func (c *Controller) startIfReady(ctx context.Context) {
	c.mu.Lock()
	ready := c.cfg.Enabled && c.foreground && c.location != nil && c.restart == nil
	var loc geo.Point
	if c.location != nil {
		loc = *c.location
	}
	interval := c.cfg.Interval
	c.mu.Unlock()

	if !ready {
		return
	}
	if err := c.engine.Start(ctx, &loc, c.handleNewReports, interval); err != nil {
		c.logger.Error("Failed to start polling", "error", err)
	}
}

func (c *Controller) cancelRestartLocked() {
	if c.restart != nil {
		c.restart.Stop()
		c.restart = nil
	}
}

// handleNewReports is the engine callback: it updates the counters and
// forwards the batch downstream.
func (c *Controller) handleNewReports(reports []report.Report) {
	c.mu.Lock()
	c.newCount += len(reports)
	c.lastUpdate = time.Now()
	listener := c.listener
	c.mu.Unlock()

	c.logger.Info("New reports detected", "count", len(reports))
	if listener != nil {
		listener(reports)
	}
}

// --------------------------------------------------------------------------
// Manual operations
// --------------------------------------------------------------------------

// CheckNow runs one tick outside the timer schedule and waits for it at most
// the check timeout. Losing the race does not cancel the tick: it keeps
// running and its seen-set updates and notifications still apply.
func (c *Controller) CheckNow(ctx context.Context) (CheckResult, error) {
	c.mu.Lock()
	hasLocation := c.location != nil
	c.mu.Unlock()
	if !hasLocation {
		return CheckResult{Outcome: OutcomeNoLocation}, poller.ErrNoLocation
	}

	c.logger.Info("Manual report check")

	type result struct {
		reports []report.Report
		err     error
	}
	done := make(chan result, 1)
	go func() {
		reports, err := c.engine.CheckForNewReports(context.WithoutCancel(ctx), c.handleNewReports)
		done <- result{reports, err}
	}()

	timer := time.NewTimer(c.checkTimeout)
	defer timer.Stop()

	select {
	case res := <-done:
		if res.err != nil {
			if errors.Is(res.err, poller.ErrNoLocation) {
				return CheckResult{Outcome: OutcomeNoLocation}, res.err
			}
			c.logger.Warn("Manual check failed", "error", res.err)
			return CheckResult{Outcome: OutcomeError}, res.err
		}
		return CheckResult{
			Outcome:    OutcomeSuccess,
			NewReports: res.reports,
			SeenCount:  c.seen.Len(),
		}, nil
	case <-timer.C:
		c.logger.Warn("Manual check timed out, continuing in background", "timeout", c.checkTimeout)
		return CheckResult{Outcome: OutcomeTimeout}, ErrCheckTimeout
	case <-ctx.Done():
		return CheckResult{Outcome: OutcomeError}, ctx.Err()
	}
}

// CheckOnce lists recent reports near the current location without
// touching any state.
func (c *Controller) CheckOnce(ctx context.Context, loc *geo.Point, radiusKm float64) ([]poller.Nearby, error) {
	if loc == nil {
		c.mu.Lock()
		loc = c.location
		c.mu.Unlock()
	}
	if loc == nil {
		return nil, poller.ErrNoLocation
	}
	return c.engine.CheckOnce(ctx, *loc, radiusKm)
}

// ResetSeen forgets every surfaced report and zeroes the new-report counter.
func (c *Controller) ResetSeen(ctx context.Context) error {
	if err := c.seen.Clear(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.newCount = 0
	c.mu.Unlock()
	return nil
}

// ClearNewReportsCount zeroes the new-report counter.
func (c *Controller) ClearNewReportsCount() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.newCount = 0
}

// NewReportsCount returns how many reports were surfaced since the last clear.
func (c *Controller) NewReportsCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.newCount
}

// Config returns the current polling configuration.
func (c *Controller) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Status returns the configuration and runtime state for display.
func (c *Controller) Status() Status {
	stats := c.engine.Stats()

	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		Enabled:         c.cfg.Enabled,
		IntervalMinutes: c.cfg.Interval.Minutes(),
		RadiusKm:        stats.RadiusKm,
		Active:          stats.Active,
		Foreground:      c.foreground,
		HasLocation:     c.location != nil,
		SeenCount:       stats.SeenCount,
		NewReportsCount: c.newCount,
		LastCheck:       stats.LastCheck,
		LastError:       stats.LastError,
	}
	if c.location != nil {
		loc := *c.location
		st.Location = &loc
	}
	if !c.lastUpdate.IsZero() {
		lu := c.lastUpdate
		st.LastUpdate = &lu
	}
	return st
}
