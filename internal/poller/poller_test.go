package poller

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cerberusteck/sirse-watch/internal/geo"
	"github.com/cerberusteck/sirse-watch/internal/kv"
	"github.com/cerberusteck/sirse-watch/internal/notify"
	"github.com/cerberusteck/sirse-watch/internal/report"
	"github.com/cerberusteck/sirse-watch/internal/seen"
)

type stubSource struct {
	mu        sync.Mutex
	reports   []report.Report
	err       error
	delay     time.Duration
	calls     int
	inFlight  int
	maxFlight int
}

func (s *stubSource) GetAllReports(ctx context.Context, f report.Filter) ([]report.Report, error) {
	s.mu.Lock()
	s.calls++
	s.inFlight++
	if s.inFlight > s.maxFlight {
		s.maxFlight = s.inFlight
	}
	delay, reports, err := s.delay, append([]report.Report(nil), s.reports...), s.err
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()
	return reports, err
}

func (s *stubSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubSink struct {
	mu   sync.Mutex
	sent []notify.Notification
	err  error
}

func (s *stubSink) Notify(ctx context.Context, n notify.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return s.err
}

func (s *stubSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

var home = geo.Point{Latitude: 20.1400, Longitude: -98.3390}

// One degree of latitude is ~111.195 km on the haversine sphere.
func northOf(p geo.Point, km float64) geo.Point {
	return geo.Point{Latitude: p.Latitude + km/111.195, Longitude: p.Longitude}
}

type fixture struct {
	source *stubSource
	sink   *stubSink
	seen   *seen.Store
	engine *Engine
	t0     time.Time
	a, b   report.Report
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	t0 := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
	store := seen.New(kv.NewMemoryStore(), nil)
	store.Load(ctx)
	if err := store.UpdateLastCheck(ctx, t0); err != nil {
		t.Fatalf("UpdateLastCheck: %v", err)
	}

	a := report.Report{
		ID: "A", Title: "Lámpara apagada", Category: "Luminarias",
		Coordinates:         northOf(home, 0.4),
		ReportedAtTimestamp: t0.UnixMilli() + 1000,
	}
	b := report.Report{
		ID: "B", Title: "Bache", Category: "Obras Públicas",
		Coordinates:         northOf(home, 12),
		ReportedAtTimestamp: t0.UnixMilli() + 2000,
	}

	source := &stubSource{reports: []report.Report{a, b}}
	sink := &stubSink{}
	engine := New(source, store, sink, Options{RadiusKm: 5}, nil)
	t.Cleanup(engine.Stop)

	return &fixture{source: source, sink: sink, seen: store, engine: engine, t0: t0, a: a, b: b}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestCheck_NotifiesOnlyNewNearbyReport(t *testing.T) {
	f := newFixture(t)
	f.engine.UpdateLocation(home)

	var got [][]report.Report
	onNew := func(r []report.Report) { got = append(got, r) }

	reports, err := f.engine.CheckForNewReports(context.Background(), onNew)
	if err != nil {
		t.Fatalf("CheckForNewReports: %v", err)
	}

	if len(reports) != 1 || reports[0].ID != "A" {
		t.Fatalf("expected only A, got %+v", reports)
	}
	if f.sink.count() != 1 {
		t.Fatalf("expected exactly one notification, got %d", f.sink.count())
	}
	if n := f.sink.sent[0]; n.Data["reportId"] != "A" || n.Body != "Luminarias: Lámpara apagada (400m)" {
		t.Fatalf("unexpected notification %+v", n)
	}
	if f.seen.Len() != 1 || !f.seen.Has("A") || f.seen.Has("B") {
		t.Fatalf("seen-set should grow by exactly {A}, got %v", f.seen.IDs())
	}
	if len(got) != 1 || len(got[0]) != 1 || got[0][0].ID != "A" {
		t.Fatalf("callback should receive [A] once, got %+v", got)
	}
}

func TestCheck_AlreadySeenReportIsSilent(t *testing.T) {
	f := newFixture(t)
	f.engine.UpdateLocation(home)
	f.seen.MarkSeen("A")

	called := false
	reports, err := f.engine.CheckForNewReports(context.Background(), func([]report.Report) { called = true })
	if err != nil {
		t.Fatalf("CheckForNewReports: %v", err)
	}
	if len(reports) != 0 || called {
		t.Fatalf("expected no new reports and no callback, got %+v called=%v", reports, called)
	}
	if f.sink.count() != 0 {
		t.Fatalf("expected zero notifications, got %d", f.sink.count())
	}
	if ids := f.seen.IDs(); len(ids) != 1 || ids[0] != "A" {
		t.Fatalf("seen-set should be unchanged, got %v", ids)
	}
}

func TestCheck_NoDuplicateAcrossTicks(t *testing.T) {
	f := newFixture(t)
	f.engine.UpdateLocation(home)
	ctx := context.Background()

	if _, err := f.engine.CheckForNewReports(ctx, nil); err != nil {
		t.Fatalf("first check: %v", err)
	}
	// Force the watermark back so recency alone would let A through again.
	if err := f.seen.UpdateLastCheck(ctx, f.t0); err != nil {
		t.Fatalf("UpdateLastCheck: %v", err)
	}
	if _, err := f.engine.CheckForNewReports(ctx, nil); err != nil {
		t.Fatalf("second check: %v", err)
	}
	if f.sink.count() != 1 {
		t.Fatalf("expected a single notification for A, got %d", f.sink.count())
	}
}

func TestCheck_ExcludesReportsAtOrBeforeWatermark(t *testing.T) {
	f := newFixture(t)
	f.engine.UpdateLocation(home)
	f.source.reports = []report.Report{
		{ID: "old", Coordinates: home, ReportedAtTimestamp: f.t0.UnixMilli()},
		{ID: "older", Coordinates: home, ReportedAtTimestamp: f.t0.UnixMilli() - 60_000},
	}

	reports, err := f.engine.CheckForNewReports(context.Background(), nil)
	if err != nil {
		t.Fatalf("CheckForNewReports: %v", err)
	}
	if len(reports) != 0 || f.sink.count() != 0 {
		t.Fatalf("stale reports must be excluded, got %+v", reports)
	}
}

func TestCheck_AdvancesWatermark(t *testing.T) {
	f := newFixture(t)
	f.engine.UpdateLocation(home)
	f.source.reports = nil

	before := time.Now()
	if _, err := f.engine.CheckForNewReports(context.Background(), nil); err != nil {
		t.Fatalf("CheckForNewReports: %v", err)
	}
	if f.seen.LastCheck().Before(before.Truncate(time.Millisecond)) {
		t.Fatalf("watermark not advanced: %v", f.seen.LastCheck())
	}
}

func TestCheck_FetchErrorKeepsWatermark(t *testing.T) {
	f := newFixture(t)
	f.engine.UpdateLocation(home)
	boom := errors.New("network down")
	f.source.err = boom

	_, err := f.engine.CheckForNewReports(context.Background(), nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if !f.seen.LastCheck().Equal(f.t0) {
		t.Fatalf("watermark should not move on failure, got %v", f.seen.LastCheck())
	}
	if st := f.engine.Stats(); st.LastError == "" {
		t.Fatal("stats should record the last error")
	}
}

func TestCheck_NotificationFailureStillMarksSeen(t *testing.T) {
	f := newFixture(t)
	f.engine.UpdateLocation(home)
	f.engine.SetRadius(50)
	f.sink.err = errors.New("sink offline")

	reports, err := f.engine.CheckForNewReports(context.Background(), nil)
	if err != nil {
		t.Fatalf("notification errors must not fail the tick: %v", err)
	}
	if len(reports) != 2 || f.sink.count() != 2 {
		t.Fatalf("expected both reports attempted, got %d reports %d sends", len(reports), f.sink.count())
	}
	if !f.seen.Has("A") || !f.seen.Has("B") {
		t.Fatal("reports must be marked seen even when delivery fails")
	}
}

func TestCheck_NoLocation(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.CheckForNewReports(context.Background(), nil); !errors.Is(err, ErrNoLocation) {
		t.Fatalf("expected ErrNoLocation, got %v", err)
	}
	if f.source.callCount() != 0 {
		t.Fatal("source must not be called without a location")
	}
}

func TestStart_RefusedWithoutLocation(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.Start(context.Background(), nil, nil, time.Minute); !errors.Is(err, ErrNoLocation) {
		t.Fatalf("expected ErrNoLocation, got %v", err)
	}
	if f.engine.Active() {
		t.Fatal("engine must stay Idle")
	}
}

func TestStart_RejectsNonPositiveInterval(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.Start(context.Background(), &home, nil, 0); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval, got %v", err)
	}
}

func TestStart_TicksImmediatelyThenOnSchedule(t *testing.T) {
	f := newFixture(t)
	loc := home

	if err := f.engine.Start(context.Background(), &loc, nil, 20*time.Millisecond); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if f.source.callCount() != 1 {
		t.Fatalf("expected one synchronous tick, got %d", f.source.callCount())
	}
	if f.sink.count() != 1 {
		t.Fatalf("first tick should already have notified, got %d", f.sink.count())
	}
	waitFor(t, "scheduled ticks", func() bool { return f.source.callCount() >= 3 })
	if f.sink.count() != 1 {
		t.Fatalf("scheduled ticks must not re-notify, got %d", f.sink.count())
	}
}

func TestStart_WhileActiveIsNoop(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.Start(context.Background(), &home, nil, time.Hour); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.engine.Start(context.Background(), &home, nil, time.Hour); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if f.source.callCount() != 1 {
		t.Fatalf("second Start must not tick, got %d calls", f.source.callCount())
	}
}

func TestStop_IdempotentAndHaltsTicks(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.Start(context.Background(), &home, nil, 10*time.Millisecond); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "a scheduled tick", func() bool { return f.source.callCount() >= 2 })

	f.engine.Stop()
	f.engine.Stop()
	if f.engine.Active() {
		t.Fatal("engine should be Idle after Stop")
	}

	time.Sleep(30 * time.Millisecond) // let a tick already past the guard finish
	calls := f.source.callCount()
	time.Sleep(50 * time.Millisecond)
	if f.source.callCount() != calls {
		t.Fatalf("ticks continued after Stop: %d -> %d", calls, f.source.callCount())
	}
}

func TestTimer_SurvivesFetchErrors(t *testing.T) {
	f := newFixture(t)
	f.source.err = errors.New("503")

	if err := f.engine.Start(context.Background(), &home, nil, 10*time.Millisecond); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "ticks after failures", func() bool { return f.source.callCount() >= 3 })
	if !f.engine.Active() {
		t.Fatal("engine must stay Active after failed ticks")
	}
}

func TestTicks_NeverOverlap(t *testing.T) {
	f := newFixture(t)
	f.source.delay = 15 * time.Millisecond

	if err := f.engine.Start(context.Background(), &home, nil, 2*time.Millisecond); err != nil {
		t.Fatalf("Start: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.engine.CheckForNewReports(context.Background(), nil)
		}()
	}
	wg.Wait()
	f.engine.Stop()

	f.source.mu.Lock()
	defer f.source.mu.Unlock()
	if f.source.maxFlight != 1 {
		t.Fatalf("ticks overlapped: %d concurrent fetches", f.source.maxFlight)
	}
}

func TestTrigger_RunsExtraTick(t *testing.T) {
	f := newFixture(t)
	f.engine.Trigger() // Idle: ignored

	if err := f.engine.Start(context.Background(), &home, nil, time.Hour); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.engine.Trigger()
	waitFor(t, "triggered tick", func() bool { return f.source.callCount() == 2 })
}

func TestCheckOnce_IsStateless(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	f.source.reports = []report.Report{
		{ID: "far", Coordinates: northOf(home, 3), ReportedAtTimestamp: now.Add(-time.Hour).UnixMilli()},
		{ID: "near", Coordinates: northOf(home, 1), ReportedAtTimestamp: now.Add(-2 * time.Hour).UnixMilli()},
		{ID: "stale", Coordinates: home, ReportedAtTimestamp: now.Add(-25 * time.Hour).UnixMilli()},
		{ID: "out", Coordinates: northOf(home, 20), ReportedAtTimestamp: now.UnixMilli()},
	}

	got, err := f.engine.CheckOnce(context.Background(), home, 5)
	if err != nil {
		t.Fatalf("CheckOnce: %v", err)
	}
	if len(got) != 2 || got[0].ID != "near" || got[1].ID != "far" {
		t.Fatalf("unexpected nearby list %+v", got)
	}
	if f.seen.Len() != 0 || f.sink.count() != 0 {
		t.Fatal("CheckOnce must not mutate state or notify")
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	if st := f.engine.Stats(); st.Active || st.HasLocation || st.RadiusKm != 5 {
		t.Fatalf("unexpected idle stats %+v", st)
	}
	if err := f.engine.Start(context.Background(), &home, nil, time.Hour); err != nil {
		t.Fatalf("Start: %v", err)
	}
	st := f.engine.Stats()
	if !st.Active || !st.HasLocation || st.SeenCount != 1 || st.Interval != time.Hour {
		t.Fatalf("unexpected active stats %+v", st)
	}
}

type sourceFunc func(ctx context.Context, f report.Filter) ([]report.Report, error)

func (fn sourceFunc) GetAllReports(ctx context.Context, f report.Filter) ([]report.Report, error) {
	return fn(ctx, f)
}

func TestCheck_WatermarkIsFetchStart(t *testing.T) {
	f := newFixture(t)
	f.engine.UpdateLocation(home)
	ctx := context.Background()

	fetchStart := f.t0.Add(10 * time.Second)
	tickEnd := fetchStart.Add(time.Second)
	calls := 0
	f.engine.now = func() time.Time {
		calls++
		if calls == 1 {
			return fetchStart
		}
		return tickEnd
	}

	// C is created while the first fetch is in flight, so the first
	// snapshot does not include it.
	c := report.Report{ID: "C", Coordinates: home, ReportedAtTimestamp: fetchStart.UnixMilli() + 500}
	fetches := 0
	f.engine.source = sourceFunc(func(context.Context, report.Filter) ([]report.Report, error) {
		fetches++
		if fetches == 1 {
			return nil, nil
		}
		return []report.Report{c}, nil
	})

	if _, err := f.engine.CheckForNewReports(ctx, nil); err != nil {
		t.Fatalf("first check: %v", err)
	}
	if !f.seen.LastCheck().Equal(fetchStart) {
		t.Fatalf("expected watermark at fetch start %v, got %v", fetchStart, f.seen.LastCheck())
	}

	reports, err := f.engine.CheckForNewReports(ctx, nil)
	if err != nil {
		t.Fatalf("second check: %v", err)
	}
	if len(reports) != 1 || reports[0].ID != "C" {
		t.Fatalf("report created during the previous fetch must surface, got %+v", reports)
	}
}

func TestCheck_SharedStateStoreSuppressesDuplicates(t *testing.T) {
	ctx := context.Background()
	file := kv.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	t0 := time.Now().Add(-time.Hour).Truncate(time.Millisecond)

	a := report.Report{ID: "A", Coordinates: northOf(home, 0.4), ReportedAtTimestamp: t0.UnixMilli() + 1000}
	source := &stubSource{reports: []report.Report{a}}

	newEngine := func() (*Engine, *stubSink, *seen.Store) {
		store := seen.New(file, nil)
		store.Load(ctx)
		sink := &stubSink{}
		e := New(source, store, sink, Options{RadiusKm: 5}, nil)
		e.UpdateLocation(home)
		t.Cleanup(e.Stop)
		return e, sink, store
	}

	daemon, daemonSink, daemonSeen := newEngine()
	if err := daemonSeen.UpdateLastCheck(ctx, t0); err != nil {
		t.Fatalf("UpdateLastCheck: %v", err)
	}
	cli, cliSink, _ := newEngine()

	if _, err := cli.CheckForNewReports(ctx, nil); err != nil {
		t.Fatalf("cli check: %v", err)
	}
	if cliSink.count() != 1 {
		t.Fatalf("expected the first process to notify A, got %d", cliSink.count())
	}
	// Pretend the watermark lags so only the shared seen-set can hold A back.
	if err := daemonSeen.UpdateLastCheck(ctx, t0); err != nil {
		t.Fatalf("UpdateLastCheck: %v", err)
	}
	if _, err := daemon.CheckForNewReports(ctx, nil); err != nil {
		t.Fatalf("daemon check: %v", err)
	}
	if daemonSink.count() != 0 {
		t.Fatalf("A was notified twice across processes")
	}

	other := seen.New(file, nil)
	other.Load(ctx)
	if err := other.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	c := report.Report{ID: "C", Coordinates: home, ReportedAtTimestamp: time.Now().Add(time.Minute).UnixMilli()}
	source.mu.Lock()
	source.reports = []report.Report{c}
	source.mu.Unlock()
	if _, err := daemon.CheckForNewReports(ctx, nil); err != nil {
		t.Fatalf("daemon check after clear: %v", err)
	}

	reloaded := seen.New(file, nil)
	reloaded.Load(ctx)
	if ids := reloaded.IDs(); len(ids) != 1 || ids[0] != "C" {
		t.Fatalf("expected [C] after clear, got %v", ids)
	}
}

func TestWait_ReturnsAfterTickInProgress(t *testing.T) {
	f := newFixture(t)
	f.engine.UpdateLocation(home)
	f.source.delay = 40 * time.Millisecond

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		f.engine.CheckForNewReports(context.Background(), nil)
	}()
	waitFor(t, "tick to start", func() bool { return f.source.callCount() == 1 })

	if err := f.engine.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if f.sink.count() != 1 {
		t.Fatalf("expected the in-flight tick to have finished, got %d notifications", f.sink.count())
	}
	<-finished
	if f.source.callCount() != 1 {
		t.Fatalf("Wait must not fetch, got %d calls", f.source.callCount())
	}
}

func TestWait_HonorsContext(t *testing.T) {
	f := newFixture(t)
	f.engine.UpdateLocation(home)
	f.source.delay = 200 * time.Millisecond

	go f.engine.CheckForNewReports(context.Background(), nil)
	waitFor(t, "tick to start", func() bool { return f.source.callCount() == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := f.engine.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
