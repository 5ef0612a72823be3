package eventsdb

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/abhi-agg/glean-go/internal/config"
	"github.com/abhi-agg/glean-go/internal/errs"
	"github.com/abhi-agg/glean-go/internal/execcounter"
	"github.com/abhi-agg/glean-go/internal/store"
)

type recordedSubmission struct {
	ping   string
	reason string
}

// fakeSubmitter is called on whatever goroutine dispatchSubmit spawns,
// never the test goroutine, so calls needs its own lock.
type fakeSubmitter struct {
	mu    sync.Mutex
	calls []recordedSubmission
}

func (f *fakeSubmitter) Submit(_ context.Context, ping, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedSubmission{ping: ping, reason: reason})
}

func (f *fakeSubmitter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeSubmitter) snapshot() []recordedSubmission {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedSubmission, len(f.calls))
	copy(out, f.calls)
	return out
}

func newTestDB(t *testing.T, clock Clock, maxEvents int) (*DB, *fakeSubmitter, *errs.MemRecorder) {
	t.Helper()
	s := store.NewMemStore()
	counters := execcounter.NewStoreBacked(s)
	recorder := errs.NewMemRecorder()
	cfg, err := config.New(config.WithMaxEvents(maxEvents))
	if err != nil {
		t.Fatal(err)
	}
	db := New(s, counters, recorder, nil, nil, cfg, clock)
	sub := &fakeSubmitter{}
	db.SetSubmitter(sub)
	return db, sub, recorder
}

func TestRecordAndDrainSingleLifetime(t *testing.T) {
	clock := NewFakeClock(1000)
	db, _, _ := newTestDB(t, clock, 10)
	ctx := context.Background()

	db.Initialize(ctx)
	db.Record(ctx, RecordRequest{Category: "app", Name: "click", Timestamp: 0, SendInPings: []string{"events"}})
	db.Record(ctx, RecordRequest{Category: "app", Name: "click", Timestamp: 10, SendInPings: []string{"events"}})

	out, ok := db.GetPingEvents(ctx, "events", true)
	if !ok {
		t.Fatal("expected non-empty buffer")
	}
	if len(out) != 2 || out[0].Timestamp != 0 || out[1].Timestamp != 10 {
		t.Fatalf("unexpected payload: %+v", out)
	}

	if _, ok := db.GetPingEvents(ctx, "events", true); ok {
		t.Fatal("expected empty buffer after drain")
	}
}

func TestInitializeBridgesRestartAndSchedulesStartupSubmission(t *testing.T) {
	ctx := context.Background()

	clock1 := NewFakeClock(1_000_000)
	s := store.NewMemStore()
	counters := execcounter.NewStoreBacked(s)
	recorder := errs.NewMemRecorder()
	cfg, _ := config.New(config.WithMaxEvents(10))

	db1 := New(s, counters, recorder, nil, nil, cfg, clock1)
	sub1 := &fakeSubmitter{}
	db1.SetSubmitter(sub1)
	db1.Initialize(ctx)
	db1.Record(ctx, RecordRequest{Category: "app", Name: "click", Timestamp: 0, SendInPings: []string{"events"}})
	db1.Record(ctx, RecordRequest{Category: "app", Name: "click", Timestamp: 10, SendInPings: []string{"events"}})
	db1.WaitPending()
	if sub1.callCount() != 0 {
		t.Fatalf("first lifetime should not submit yet: %v", sub1.snapshot())
	}

	clock2 := NewFakeClock(1_000_000 + 3_600_000)
	db2 := New(s, counters, recorder, nil, nil, cfg, clock2)
	sub2 := &fakeSubmitter{}
	db2.SetSubmitter(sub2)
	db2.Initialize(ctx)
	db2.WaitPending()

	calls := sub2.snapshot()
	if len(calls) != 1 || calls[0].reason != "startup" || calls[0].ping != "events" {
		t.Fatalf("expected exactly one startup submission, got %v", calls)
	}

	db2.Record(ctx, RecordRequest{Category: "app", Name: "click", Timestamp: 10, SendInPings: []string{"events"}})
	db2.Record(ctx, RecordRequest{Category: "app", Name: "click", Timestamp: 40, SendInPings: []string{"events"}})

	out, ok := db2.GetPingEvents(ctx, "events", true)
	if !ok {
		t.Fatal("expected non-empty buffer")
	}
	want := []int64{0, 10, 3_600_000, 3_600_010, 3_600_040}
	if len(out) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(out), len(want), out)
	}
	for i, ts := range want {
		if out[i].Timestamp != ts {
			t.Errorf("event %d: got %d, want %d", i, out[i].Timestamp, ts)
		}
	}
}

func TestInitializeRecordsClockAnomalyWhenStartTimeStandsStill(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemStore()
	counters := execcounter.NewStoreBacked(s)
	recorder := errs.NewMemRecorder()
	cfg, _ := config.New(config.WithMaxEvents(100))

	const restarts = 10
	startWall := int64(500)
	for i := 0; i < restarts+1; i++ {
		clock := NewFakeClock(startWall)
		db := New(s, counters, recorder, nil, nil, cfg, clock)
		db.SetSubmitter(&fakeSubmitter{})
		db.Initialize(ctx)
		if i < restarts {
			db.Record(ctx, RecordRequest{Category: "app", Name: "click", Timestamp: 0, SendInPings: []string{"events"}})
		}
	}

	if got := recorder.Count("glean", "restarted", errs.InvalidValue); got != restarts {
		t.Fatalf("got %d InvalidValue errors, want %d", got, restarts)
	}
}

func TestRecordSchedulesMaxCapacitySubmission(t *testing.T) {
	clock := NewFakeClock(1)
	db, sub, _ := newTestDB(t, clock, 10)
	ctx := context.Background()
	db.Initialize(ctx)

	for i := 0; i < 15; i++ {
		db.Record(ctx, RecordRequest{Category: "app", Name: "click", Timestamp: int64(i), SendInPings: []string{"events"}})
	}
	db.WaitPending()

	calls := sub.snapshot()
	if len(calls) != 1 || calls[0].reason != "max_capacity" {
		t.Fatalf("expected exactly one max_capacity submission, got %v", calls)
	}

	out, ok := db.GetPingEvents(ctx, "events", true)
	if !ok {
		t.Fatal("expected non-empty buffer")
	}
	if len(out) != 15 {
		t.Fatalf("got %d events, want 15 (capacity triggers submission, caller drains separately)", len(out))
	}
}

func TestClearAllWipesBuffersAndCounters(t *testing.T) {
	clock := NewFakeClock(1)
	db, _, _ := newTestDB(t, clock, 10)
	ctx := context.Background()
	db.Initialize(ctx)
	db.Record(ctx, RecordRequest{Category: "app", Name: "click", Timestamp: 0, SendInPings: []string{"events"}})

	db.ClearAll()

	if _, ok := db.GetPingEvents(ctx, "events", false); ok {
		t.Fatal("expected empty buffer after ClearAll")
	}
	if _, ok := db.counters.Get("events"); ok {
		t.Fatal("expected execution counter cleared after ClearAll")
	}
}

// drainingSubmitter is a Submitter that actually calls back into the
// database it submits for, the contract every real Ping Assembler
// follows. Submit must never be invoked on the actor goroutine, or this
// callback deadlocks against the very actor.do call it's nested inside.
type drainingSubmitter struct {
	db     *DB
	result chan drainResult
}

type drainResult struct {
	reason    string
	numEvents int
}

func (d *drainingSubmitter) Submit(ctx context.Context, ping, reason string) {
	out, _ := d.db.DrainForSubmission(ctx, ping, reason)
	d.result <- drainResult{reason: reason, numEvents: len(out)}
}

func TestRecordDispatchesSubmitOffActorGoroutine(t *testing.T) {
	clock := NewFakeClock(1)
	s := store.NewMemStore()
	counters := execcounter.NewStoreBacked(s)
	recorder := errs.NewMemRecorder()
	cfg, _ := config.New(config.WithMaxEvents(2))
	db := New(s, counters, recorder, nil, nil, cfg, clock)

	sub := &drainingSubmitter{db: db, result: make(chan drainResult, 1)}
	db.SetSubmitter(sub)
	ctx := context.Background()
	db.Initialize(ctx)

	db.Record(ctx, RecordRequest{Category: "app", Name: "click", Timestamp: 0, SendInPings: []string{"events"}})
	db.Record(ctx, RecordRequest{Category: "app", Name: "click", Timestamp: 1, SendInPings: []string{"events"}})

	select {
	case got := <-sub.result:
		if got.reason != "max_capacity" || got.numEvents != 2 {
			t.Fatalf("got %+v, want {max_capacity 2}", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Submit callback never ran: actor deadlocked")
	}
}

func TestRecordDropsDisabledAndUploadDisabledEvents(t *testing.T) {
	clock := NewFakeClock(1)
	db, sub, _ := newTestDB(t, clock, 10)
	ctx := context.Background()
	db.Initialize(ctx)

	db.Record(ctx, RecordRequest{Category: "app", Name: "click", Timestamp: 0, SendInPings: []string{"events"}, Disabled: true})
	if _, ok := db.GetPingEvents(ctx, "events", false); ok {
		t.Fatal("disabled event should not be persisted")
	}

	db.cfg.SetUploadEnabled(false)
	db.Record(ctx, RecordRequest{Category: "app", Name: "click", Timestamp: 1, SendInPings: []string{"events"}})
	if _, ok := db.GetPingEvents(ctx, "events", false); ok {
		t.Fatal("event recorded while upload is disabled should not be persisted")
	}
	db.WaitPending()
	if sub.callCount() != 0 {
		t.Fatalf("unexpected submissions: %v", sub.snapshot())
	}
}
