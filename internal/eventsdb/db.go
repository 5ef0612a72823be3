// Package eventsdb implements the Events Database: the persisted,
// per-ping event buffer, its restart bookkeeping, and the normalization
// pipeline that turns a raw buffer into a submittable payload.
package eventsdb

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/abhi-agg/glean-go/internal/config"
	"github.com/abhi-agg/glean-go/internal/errs"
	"github.com/abhi-agg/glean-go/internal/eventlog"
	"github.com/abhi-agg/glean-go/internal/events"
	"github.com/abhi-agg/glean-go/internal/execcounter"
	"github.com/abhi-agg/glean-go/internal/obsmetrics"
	"github.com/abhi-agg/glean-go/internal/store"
)

// eventsPing is the one ping this subsystem buffers and submits on its
// own initiative; any other ping name a metric declares is buffered the
// same way but never triggers a capacity submission. A non-empty buffer
// of any ping at Initialize does trigger the startup submission of this
// ping.
const eventsPing = "events"

// genericErrorCategory/Name identify the error-ledger key used for
// malformed persisted entries, which cannot be attributed to a single
// user metric.
const (
	genericErrorCategory = "glean"
	genericErrorName     = "events_database"
)

var (
	eventsPathPrefix = store.Path{"events"}
	startTimePath    = store.Path{"events-meta", "start-time"}
)

// Submitter is the Ping Assembler collaborator: eventsdb never builds or
// uploads a ping itself, it only notifies the assembler that a named
// ping should be submitted for the given reason. The assembler then
// calls back into DrainForSubmission to drain it.
type Submitter interface {
	Submit(ctx context.Context, ping, reason string)
}

// RecordRequest is a single event-recording request posted to the
// database's serialization queue.
type RecordRequest struct {
	Category    string
	Name        string
	Timestamp   int64
	Extra       events.Extras
	SendInPings []string
	// Disabled mirrors "globally disabled or this metric disabled"; the
	// event metric type resolves this before calling Record, the
	// database just honors it as one more reason to drop silently.
	Disabled bool
}

// DB is the Events Database. All operations are posted onto a single
// actor goroutine, giving strict per-ping ordering of appends and
// drains without extra locking.
type DB struct {
	store     store.Store
	counters  execcounter.Database
	errs      errs.Recorder
	log       *eventlog.Logger
	metrics   *obsmetrics.Metrics
	cfg       *config.Configuration
	clock     Clock
	submitter Submitter
	actor     *actor
	pending   sync.WaitGroup
}

// New builds an Events Database over its collaborators. submitter may be
// set later via SetSubmitter if the assembler depends on the database
// being constructed first.
func New(s store.Store, counters execcounter.Database, recorder errs.Recorder, log *eventlog.Logger, metrics *obsmetrics.Metrics, cfg *config.Configuration, clock Clock) *DB {
	if recorder == nil {
		recorder = errs.Noop()
	}
	if log == nil {
		log = eventlog.Noop()
	}
	return &DB{
		store:    s,
		counters: counters,
		errs:     recorder,
		log:      log,
		metrics:  metrics,
		cfg:      cfg,
		clock:    clock,
		actor:    newActor(),
	}
}

// SetSubmitter wires the Ping Assembler collaborator after construction.
func (db *DB) SetSubmitter(s Submitter) {
	db.actor.do(func() { db.submitter = s })
}

// Close stops the database's serialization queue. Queued work completes
// first; afterward each operation runs directly on its caller's
// goroutine instead of the queue. Waits for any submissions
// dispatched by Initialize/Record to finish first, since those run off
// the actor goroutine.
func (db *DB) Close() {
	db.pending.Wait()
	db.actor.close()
}

// WaitPending blocks until every submission dispatched by Initialize or
// Record so far has returned. Tests that assert on a Submitter's
// side effects need this: those calls are deliberately dispatched off
// the actor goroutine (see dispatchSubmit) and are not otherwise
// synchronized with the Record/Initialize call that triggered them.
func (db *DB) WaitPending() {
	db.pending.Wait()
}

// dispatchSubmit notifies the submitter off the actor goroutine. Must be
// called from within an actor job. The submitter's contract (see
// Submitter) is to call back into DrainForSubmission, and that call
// goes through db.actor.do like every other operation; running Submit
// synchronously here, on the single goroutine already blocked executing
// this very job, would deadlock against that callback.
func (db *DB) dispatchSubmit(ctx context.Context, ping, reason string) {
	if db.submitter == nil {
		return
	}
	sub := db.submitter
	db.pending.Add(1)
	go func() {
		defer db.pending.Done()
		sub.Submit(ctx, ping, reason)
	}()
}

// Clock returns the monotonic clock collaborator this database was
// built with, so the Event Metric Type can stamp timestamps on the
// same clock the database uses to bridge restarts.
func (db *DB) Clock() Clock {
	return db.clock
}

// Initialize bridges a process restart: for every ping with a
// currently-persisted, non-empty event buffer, it increments that
// ping's execution counter and appends a restart marker whose raw
// timestamp bridges the wall-clock gap since the previous lifetime.
// If any buffer is non-empty once this completes, it schedules exactly
// one startup submission of the events ping.
func (db *DB) Initialize(ctx context.Context) {
	db.actor.do(func() {
		pings := db.listPingsWithBuffers()
		currentStart := db.clock.StartTimeMs()
		prevStart, hasPrev := db.readStartTime()

		for _, ping := range pings {
			counter := db.counters.Increment(ping)

			var raw int64
			switch {
			case hasPrev && currentStart > prevStart:
				raw = currentStart - prevStart
			case hasPrev:
				raw = 0
				db.errs.Record(events.RestartCategory, events.RestartName, errs.InvalidValue, "start time did not advance across restart")
				db.log.LogClockAnomaly(ping, currentStart, prevStart)
				if db.metrics != nil {
					db.metrics.RecordClockAnomaly(ctx, ping)
				}
			default:
				raw = 0
			}

			marker := events.New(events.RestartCategory, events.RestartName, raw, events.Extras{events.ExecutionCounterKey: counter})
			db.appendRaw(ping, marker)
			db.log.LogRestartInjected(ping, counter, raw)
		}

		db.writeStartTime(currentStart)

		if db.anyBufferNonEmpty() {
			db.log.LogStartupSubmission(pings)
			db.dispatchSubmit(ctx, eventsPing, "startup")
		}
	})
}

// Record appends an event to every ping it is configured to go into.
// Disabled events (globally or per-metric) are dropped silently; an
// events buffer that just reached capacity schedules a submission.
func (db *DB) Record(ctx context.Context, req RecordRequest) {
	db.actor.do(func() {
		if req.Disabled || !db.cfg.UploadEnabled() {
			return
		}

		for _, ping := range req.SendInPings {
			counter := db.counters.GetOrInit(ping)

			extra := req.Extra.Clone()
			if extra == nil {
				extra = events.Extras{}
			}
			extra[events.ExecutionCounterKey] = counter

			ev := events.New(req.Category, req.Name, req.Timestamp, extra)
			n := db.appendRaw(ping, ev)

			if ping == eventsPing && n == db.cfg.MaxEvents {
				db.log.LogCapacitySubmission(n, db.cfg.MaxEvents)
				db.dispatchSubmit(ctx, eventsPing, "max_capacity")
			}
		}
	})
}

// GetPingEvents drains (if clear) and normalizes the buffer for ping.
// It returns (nil, false) when the buffer is empty or absent. This is a
// plain read/drain: it never records a submission metric or debug-ping
// log, since a caller merely peeking at a buffer (Metric.TestGetValue)
// hasn't actually submitted anything. Callers delivering a ping for
// real use DrainForSubmission instead.
func (db *DB) GetPingEvents(ctx context.Context, ping string, clear bool) ([]events.Payload, bool) {
	return db.getPingEvents(ping, clear)
}

// DrainForSubmission drains and normalizes ping for actual delivery,
// recording the submission metric and (if enabled) the debug-ping log
// under reason, the real triggering reason ("startup"/"max_capacity")
// rather than a generic placeholder.
func (db *DB) DrainForSubmission(ctx context.Context, ping, reason string) ([]events.Payload, bool) {
	out, ok := db.getPingEvents(ping, true)
	if !ok {
		return out, ok
	}
	if db.metrics != nil {
		db.metrics.RecordSubmission(ctx, ping, reason, len(out))
	}
	if db.cfg != nil && db.cfg.LogPings {
		db.log.LogDebugPing(ping, reason, len(out))
	}
	return out, ok
}

func (db *DB) getPingEvents(ping string, clear bool) ([]events.Payload, bool) {
	var out []events.Payload
	var ok bool

	db.actor.do(func() {
		raws := db.readBuffer(ping)
		if len(raws) == 0 {
			return
		}
		ok = true
		out = normalize(raws)

		if clear {
			db.deleteBuffer(ping)
			db.counters.Clear(ping)
		}
	})

	return out, ok
}

// ClearAll deletes every persisted event buffer, execution counter, and
// the restart-bridging start-time record. Wired to SetUploadEnabled(false)
// by the top-level SDK glue.
func (db *DB) ClearAll() {
	db.actor.do(func() {
		if err := db.store.Delete(eventsPathPrefix); err != nil {
			db.log.LogStorageFailure("delete", "events", err)
		}
		if err := db.store.Delete(store.Path{"metrics", "user", "counter", execcounter.MetricName}); err != nil {
			db.log.LogStorageFailure("delete", "execution_counter", err)
		}
		if err := db.store.Delete(startTimePath); err != nil {
			db.log.LogStorageFailure("delete", "start_time", err)
		}
	})
}

// --- storage helpers (must only be called from the actor goroutine) ---

func (db *DB) readStartTime() (int64, bool) {
	data, ok, err := db.store.Get(startTimePath)
	if err != nil {
		db.log.LogStorageFailure("read", "start_time", err)
		return 0, false
	}
	if !ok {
		return 0, false
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		db.log.LogStorageFailure("read", "start_time", err)
		return 0, false
	}
	return v, true
}

func (db *DB) writeStartTime(ms int64) {
	err := db.store.Update(startTimePath, func(json.RawMessage) (json.RawMessage, error) {
		return json.Marshal(ms)
	})
	if err != nil {
		db.log.LogStorageFailure("write", "start_time", err)
	}
}

// listPingsWithBuffers returns every ping name with a currently
// non-empty persisted buffer, as of the moment this is called (before
// any restart markers from this Initialize call are appended).
func (db *DB) listPingsWithBuffers() []string {
	data, ok, err := db.store.Get(eventsPathPrefix)
	if err != nil {
		db.log.LogStorageFailure("read", "events", err)
		return nil
	}
	if !ok {
		return nil
	}
	var tree map[string][]events.Raw
	if err := json.Unmarshal(data, &tree); err != nil {
		db.log.LogStorageFailure("read", "events", err)
		return nil
	}
	var pings []string
	for ping, buf := range tree {
		if len(buf) > 0 {
			pings = append(pings, ping)
		}
	}
	return pings
}

func (db *DB) anyBufferNonEmpty() bool {
	return len(db.listPingsWithBuffers()) > 0
}

// readBuffer decodes the persisted buffer for ping, discarding any
// malformed entries: log, record a generic InvalidValue error, and
// continue with the rest of the buffer.
func (db *DB) readBuffer(ping string) []events.Raw {
	path := append(append(store.Path{}, eventsPathPrefix...), ping)
	data, ok, err := db.store.Get(path)
	if err != nil {
		db.log.LogStorageFailure("read", "events/"+ping, err)
		return nil
	}
	if !ok {
		return nil
	}

	var rawEntries []json.RawMessage
	if err := json.Unmarshal(data, &rawEntries); err != nil {
		db.log.LogStorageFailure("read", "events/"+ping, err)
		return nil
	}

	out := make([]events.Raw, 0, len(rawEntries))
	for _, entry := range rawEntries {
		var r events.Raw
		if err := json.Unmarshal(entry, &r); err != nil || !isWellFormed(r) {
			db.log.LogMalformedEntry(ping, "decode failure or missing required fields")
			db.errs.Record(genericErrorCategory, genericErrorName, errs.InvalidValue, "discarded malformed persisted event")
			continue
		}
		out = append(out, r)
	}
	return out
}

func isWellFormed(r events.Raw) bool {
	if r.Category == "" || r.Name == "" {
		return false
	}
	_, ok := events.FromRaw(r).ExecutionCounter()
	return ok
}

// appendRaw appends ev to ping's buffer and returns the buffer's new
// length. A write failure is logged and the event is dropped; it never
// propagates to the caller.
func (db *DB) appendRaw(ping string, ev events.Event) int {
	path := append(append(store.Path{}, eventsPathPrefix...), ping)
	newLen := 0

	err := db.store.Update(path, func(current json.RawMessage) (json.RawMessage, error) {
		var raws []events.Raw
		if current != nil {
			_ = json.Unmarshal(current, &raws)
		}
		raws = append(raws, ev.AsRaw())
		newLen = len(raws)
		return json.Marshal(raws)
	})
	if err != nil {
		db.log.LogStorageFailure("write", "events/"+ping, err)
		if db.metrics != nil {
			db.metrics.RecordStorageFailure(context.Background(), "append")
		}
		return 0
	}
	return newLen
}

func (db *DB) deleteBuffer(ping string) {
	path := append(append(store.Path{}, eventsPathPrefix...), ping)
	if err := db.store.Delete(path); err != nil {
		db.log.LogStorageFailure("delete", "events/"+ping, err)
	}
}
