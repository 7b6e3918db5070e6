package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"remindd/internal/model"
	"remindd/internal/store"
	logx "remindd/pkg/logx"
)

type fakeStore struct {
	mu      sync.Mutex
	recs    map[string]store.Record
	failAll bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{recs: map[string]store.Record{}}
}

func (s *fakeStore) Save(_ context.Context, rec store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errors.New("store down")
	}
	s.recs[rec.ID] = rec
	return nil
}

func (s *fakeStore) Pending(_ context.Context) ([]store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return nil, errors.New("store down")
	}
	var out []store.Record
	for _, r := range s.recs {
		if !r.Dismissed {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkShown(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errors.New("store down")
	}
	if r, ok := s.recs[id]; ok {
		r.Shown = true
		s.recs[id] = r
	}
	return nil
}

func (s *fakeStore) MarkDismissed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errors.New("store down")
	}
	if r, ok := s.recs[id]; ok {
		r.Dismissed = true
		s.recs[id] = r
	}
	return nil
}

func (s *fakeStore) IsDismissed(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return false, errors.New("store down")
	}
	r, ok := s.recs[id]
	return ok && r.Dismissed, nil
}

func (s *fakeStore) Cleanup(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) get(t *testing.T, id string) store.Record {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[id]
	if !ok {
		t.Fatalf("record %q not in store", id)
	}
	return r
}

type fakePresenter struct {
	mu      sync.Mutex
	shown   []string
	cleared []string
}

func (p *fakePresenter) Show(_ context.Context, n Active, _ int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shown = append(p.shown, n.ID)
	return nil
}

func (p *fakePresenter) Clear(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleared = append(p.cleared, id)
	return nil
}

func newTestEngine(st store.Store, pres Presenter) *Engine {
	return New(Config{}, st, pres, nil, logx.Nop())
}

func event(id string, start time.Time, important bool) model.Event {
	desc := "weekly sync"
	if important {
		desc = "quarterly review " + DefaultImportanceMarker
	}
	return model.Event{
		ID:          id,
		Title:       "Meeting " + id,
		Description: desc,
		Start:       start,
		End:         start.Add(time.Hour),
	}
}

func TestClassifyBoundaries(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		delta time.Duration
		want  timing
	}{
		{"one ms early", -time.Millisecond, timingFuture},
		{"exactly on time", 0, timingDue},
		{"mid window", 2 * time.Minute, timingDue},
		{"window edge", lateWindow, timingDue},
		{"one ms past window", lateWindow + time.Millisecond, timingMissed},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := classify(tc.delta); got != tc.want {
				t.Fatalf("classify(%v) = %v, want %v", tc.delta, got, tc.want)
			}
		})
	}
}

func TestDuePassDispatchesInsideWindow(t *testing.T) {
	t.Parallel()
	st := newFakeStore()
	pres := &fakePresenter{}
	e := newTestEngine(st, pres)
	ctx := context.Background()

	start := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	ev := event("standup", start, false)

	// List delivered well ahead of every tier: nothing fires.
	e.setEvents(ctx, []model.Event{ev}, start.Add(-62*time.Minute))
	if got := e.Snapshot(); got.Active != nil || got.Queued != 0 {
		t.Fatalf("fired with all tiers in the future: %+v", got)
	}

	// One minute past the 1-hour boundary: inside the window, fires.
	e.duePass(ctx, start.Add(-59*time.Minute))
	snap := e.Snapshot()
	if snap.Active == nil {
		t.Fatal("no active reminder inside due window")
	}
	if want := Key("standup", Tier{Offset: time.Hour}); snap.Active.ID != want {
		t.Fatalf("active = %q, want %q", snap.Active.ID, want)
	}
	e.clearActive(ctx, start.Add(-58*time.Minute), "dismissed")

	// One minute before the 30-minute boundary: nothing new.
	e.duePass(ctx, start.Add(-31*time.Minute))
	if got := e.Snapshot(); got.Active != nil {
		t.Fatalf("fired before the 30-minute boundary: %+v", got.Active)
	}

	// At the boundary the 30-minute tier is due.
	e.duePass(ctx, start.Add(-30*time.Minute))
	snap = e.Snapshot()
	if snap.Active == nil {
		t.Fatal("no active reminder at boundary")
	}
	if want := Key("standup", Tier{Offset: 30 * time.Minute}); snap.Active.ID != want {
		t.Fatalf("active = %q, want %q", snap.Active.ID, want)
	}

	// Subsequent ticks inside the window must not re-dispatch.
	e.duePass(ctx, start.Add(-29*time.Minute))
	e.duePass(ctx, start.Add(-28*time.Minute))
	if len(pres.shown) != 2 {
		t.Fatalf("shown %d times, want 2", len(pres.shown))
	}
}

func TestDuePassPersistsFutureReminders(t *testing.T) {
	t.Parallel()
	st := newFakeStore()
	e := newTestEngine(st, &fakePresenter{})
	ctx := context.Background()

	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	ev := event("planning", now.Add(2*time.Hour), false)
	e.setEvents(ctx, []model.Event{ev}, now)

	// 1-hour tier fires an hour from now, beyond the late window: record
	// written but nothing queued.
	key := Key("planning", Tier{Offset: time.Hour})
	rec := st.get(t, key)
	if rec.Shown || rec.Dismissed {
		t.Fatalf("future record prematurely flagged: %+v", rec)
	}
	if got := e.Snapshot(); got.Active != nil || got.Queued != 0 {
		t.Fatalf("future reminder queued: %+v", got)
	}

	// The write happens once per session, not every pass.
	st.mu.Lock()
	st.recs[key] = store.Record{ID: key, Dismissed: true}
	st.mu.Unlock()
	e.duePass(ctx, now.Add(time.Minute))
	if r := st.get(t, key); !r.Dismissed {
		t.Fatal("future pass re-saved an already persisted record")
	}
}

func TestMissedPassPicksLatestTier(t *testing.T) {
	t.Parallel()
	st := newFakeStore()
	pres := &fakePresenter{}
	e := newTestEngine(st, pres)
	ctx := context.Background()

	// Important event starting in 5 hours: the 1-month through 6-hour
	// tiers are all missed, the 3-hour tier is still in the future.
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	ev := event("launch", now.Add(5*time.Hour), true)
	e.setEvents(ctx, []model.Event{ev}, now)

	snap := e.Snapshot()
	if snap.Active == nil {
		t.Fatal("missed pass produced no reminder")
	}
	wantKey := Key("launch", Tier{Offset: 6 * time.Hour})
	if snap.Active.ID != wantKey {
		t.Fatalf("active = %q, want latest missed %q", snap.Active.ID, wantKey)
	}
	// Exactly one reminder for the whole missed backlog.
	if snap.Queued != 0 {
		t.Fatalf("queued = %d, want 0", snap.Queued)
	}
	if len(pres.shown) != 1 {
		t.Fatalf("shown %d reminders, want 1", len(pres.shown))
	}
}

func TestMissedPassSkipsDismissedFromPreviousRun(t *testing.T) {
	t.Parallel()
	st := newFakeStore()
	e := newTestEngine(st, &fakePresenter{})
	ctx := context.Background()

	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	ev := event("review", now.Add(20*time.Minute), false)

	// A previous process already delivered and dismissed the 30-minute tier.
	key := Key("review", Tier{Offset: 30 * time.Minute})
	st.recs[key] = store.Record{ID: key, EventID: "review", Shown: true, Dismissed: true}

	e.setEvents(ctx, []model.Event{ev}, now)
	if got := e.Snapshot(); got.Active != nil || got.Queued != 0 {
		t.Fatalf("dismissed reminder re-delivered: %+v", got)
	}
}

func TestDuePassSkipsDismissedFromPreviousRun(t *testing.T) {
	t.Parallel()
	st := newFakeStore()
	pres := &fakePresenter{}
	e := newTestEngine(st, pres)
	ctx := context.Background()

	// Restart scenario: the previous process delivered and dismissed the
	// 1-hour tier, then the user dismissed the 30-minute tier moments
	// before the process died. The 30-minute tier is still inside the due
	// window when the new process scans.
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	ev := event("review", now.Add(28*time.Minute), false)
	missedKey := Key("review", Tier{Offset: time.Hour})
	dueKey := Key("review", Tier{Offset: 30 * time.Minute})
	st.recs[missedKey] = store.Record{ID: missedKey, EventID: "review", Shown: true, Dismissed: true}
	st.recs[dueKey] = store.Record{ID: dueKey, EventID: "review", Shown: true, Dismissed: true}

	e.setEvents(ctx, []model.Event{ev}, now)

	if got := e.Snapshot(); got.Active != nil || got.Queued != 0 {
		t.Fatalf("dismissed reminder re-delivered: %+v", got)
	}
	if len(pres.shown) != 0 {
		t.Fatalf("shown %d times, want 0", len(pres.shown))
	}
	// The dispatch save must not have resurrected the record.
	if rec := st.get(t, dueKey); !rec.Dismissed {
		t.Fatal("due pass overwrote the dismissed flag")
	}
}

func TestMissedPassRunsOncePerDelivery(t *testing.T) {
	t.Parallel()
	st := newFakeStore()
	pres := &fakePresenter{}
	e := newTestEngine(st, pres)
	ctx := context.Background()

	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	ev := event("retro", now.Add(20*time.Minute), false)

	e.setEvents(ctx, []model.Event{ev}, now)
	e.clearActive(ctx, now, "dismissed")
	// Same list delivered again: the missed tier was already dispatched.
	e.setEvents(ctx, []model.Event{ev}, now.Add(time.Second))

	if got := e.Snapshot(); got.Active != nil || got.Queued != 0 {
		t.Fatalf("re-delivery re-promoted a missed reminder: %+v", got)
	}
	if len(pres.shown) != 1 {
		t.Fatalf("shown %d times, want 1", len(pres.shown))
	}
}

func TestQueueSingleActiveSlot(t *testing.T) {
	t.Parallel()
	st := newFakeStore()
	pres := &fakePresenter{}
	e := newTestEngine(st, pres)
	ctx := context.Background()

	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	events := make([]model.Event, 0, 5)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		events = append(events, event(id, now.Add(30*time.Minute), false))
	}
	// Feed the event list directly so only the due pass runs; the 1-hour
	// tier is already missed for every event and would dominate otherwise.
	e.smu.Lock()
	e.events = events
	e.duePassLocked(ctx, now)
	e.smu.Unlock()

	snap := e.Snapshot()
	if snap.Active == nil {
		t.Fatal("no active reminder")
	}
	if snap.Queued != 4 {
		t.Fatalf("queued = %d, want 4", snap.Queued)
	}

	// Clearing advances FIFO, persisting shown+dismissed for the head.
	first := snap.Active.ID
	e.clearActive(ctx, now, "dismissed")
	rec := st.get(t, first)
	if !rec.Shown || !rec.Dismissed {
		t.Fatalf("cleared record flags = shown %v dismissed %v", rec.Shown, rec.Dismissed)
	}
	snap = e.Snapshot()
	if snap.Active == nil || snap.Active.ID == first {
		t.Fatalf("queue did not advance past %q", first)
	}
	if snap.Queued != 3 {
		t.Fatalf("queued = %d after one dismissal, want 3", snap.Queued)
	}
}

func TestRehydratePrependsPending(t *testing.T) {
	t.Parallel()
	st := newFakeStore()
	pres := &fakePresenter{}
	e := newTestEngine(st, pres)
	ctx := context.Background()

	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	key := Key("carried", Tier{Offset: time.Hour})
	st.recs[key] = store.Record{
		ID:           key,
		EventID:      "carried",
		Title:        "Carried over",
		Start:        now.Add(45 * time.Minute),
		TierLabel:    "1 hour",
		TierOffsetMS: time.Hour.Milliseconds(),
		ScheduledAt:  now.Add(-15 * time.Minute),
		CreatedAt:    now.Add(-time.Hour),
	}

	e.rehydrate(ctx, now)

	snap := e.Snapshot()
	if snap.Active == nil || snap.Active.ID != key {
		t.Fatalf("rehydrated reminder not active: %+v", snap.Active)
	}
	if rec := st.get(t, key); !rec.Shown {
		t.Fatal("rehydrated record not marked shown")
	}
	// The live scan must not enqueue a duplicate for the same key.
	e.setEvents(ctx, []model.Event{event("carried", now.Add(45*time.Minute), false)}, now)
	if got := e.Snapshot(); got.Queued != 0 {
		t.Fatalf("scan duplicated a rehydrated reminder: queued = %d", got.Queued)
	}
}

func TestStoreFailureDegradesToNoop(t *testing.T) {
	t.Parallel()
	st := newFakeStore()
	st.failAll = true
	pres := &fakePresenter{}
	e := newTestEngine(st, pres)
	ctx := context.Background()

	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	ev := event("fragile", now.Add(30*time.Minute), false)
	e.setEvents(ctx, []model.Event{ev}, now)

	// Delivery proceeds despite a dead store.
	if got := e.Snapshot(); got.Active == nil {
		t.Fatal("store failure blocked delivery")
	}
	if len(pres.shown) != 1 {
		t.Fatalf("shown %d times, want 1", len(pres.shown))
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	e := newTestEngine(newFakeStore(), &fakePresenter{})
	ctx := context.Background()

	e.Start(ctx)
	e.Start(ctx) // idempotent
	e.OnEventsUpdated([]model.Event{event("x", time.Now().Add(30*time.Minute), false)})
	e.Tick()

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	e.Stop(waitCtx)
	e.Stop(waitCtx) // idempotent
}
