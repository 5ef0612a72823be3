// Package errs implements the per-metric error-recording contract used
// throughout the events subsystem. Recording APIs never return an error
// to the caller; they call Recorder.Record and continue.
package errs

import "sync"

// Kind enumerates the error kinds surfaced via the per-metric error
// counter. InvalidLabel and InvalidState are declared for completeness;
// this subsystem never raises them.
type Kind string

const (
	InvalidValue    Kind = "invalid_value"
	InvalidType     Kind = "invalid_type"
	InvalidOverflow Kind = "invalid_overflow"
	InvalidLabel    Kind = "invalid_label"
	InvalidState    Kind = "invalid_state"
)

// Recorder accumulates error counts per (metric category/name, kind),
// mirroring the generic metrics database's per-metric error counters.
// The metrics database itself lives outside this subsystem; this is
// the narrow interface this subsystem needs from it.
type Recorder interface {
	Record(category, name string, kind Kind, message string)
}

// Entry is a single recorded error, retained by the in-memory recorder
// for test assertions and diagnostics.
type Entry struct {
	Category string
	Name     string
	Kind     Kind
	Message  string
}

// MemRecorder is an in-memory Recorder: it counts occurrences per
// (category, name, kind) and retains the full entry log for tests.
type MemRecorder struct {
	mu      sync.Mutex
	counts  map[string]int
	entries []Entry
}

// NewMemRecorder creates an empty in-memory error recorder.
func NewMemRecorder() *MemRecorder {
	return &MemRecorder{counts: make(map[string]int)}
}

func key(category, name string, kind Kind) string {
	return category + "\x00" + name + "\x00" + string(kind)
}

// Record increments the counter for (category, name, kind) and appends
// an entry to the log.
func (r *MemRecorder) Record(category, name string, kind Kind, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[key(category, name, kind)]++
	r.entries = append(r.entries, Entry{Category: category, Name: name, Kind: kind, Message: message})
}

// Count returns how many times (category, name, kind) was recorded.
func (r *MemRecorder) Count(category, name string, kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key(category, name, kind)]
}

// Entries returns a copy of every recorded entry, in recording order.
func (r *MemRecorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// noopRecorder discards every recorded error. Used as the default when no
// recorder collaborator is supplied.
type noopRecorder struct{}

func (noopRecorder) Record(string, string, Kind, string) {}

// Noop returns a Recorder that discards everything.
func Noop() Recorder { return noopRecorder{} }
