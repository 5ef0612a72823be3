// Package events defines the Recorded Event value object shared by the
// events database and the event metric type.
package events

import "regexp"

// ExecutionCounterKey is the reserved extra key used internally to tag
// which lifetime an event belongs to. It is never user-settable and is
// stripped from every public payload.
const ExecutionCounterKey = "#execution_counter"

// RestartCategory and RestartName identify the synthetic restart marker
// injected at the start of every lifetime that resumes a non-empty buffer.
const (
	RestartCategory = "glean"
	RestartName     = "restarted"
)

// identifierPattern matches valid metric category/name segments.
var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,29}$`)

// ValidIdentifier reports whether s is a valid category or name segment.
func ValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// Extras maps extra keys to values, each either a string or a number. Internally
// numbers are represented as int64 (the only numeric extra this subsystem
// produces, the reserved execution counter); user extras may carry other
// JSON number shapes when read back from storage, so the field holds the
// decoded value verbatim.
type Extras map[string]interface{}

// Clone returns a shallow copy of the extras map, or nil if e is empty.
func (e Extras) Clone() Extras {
	if len(e) == 0 {
		return nil
	}
	out := make(Extras, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Event is an immutable recorded occurrence: category, name, a timestamp
// in milliseconds relative to a per-lifetime anchor, and optional extras.
type Event struct {
	Category  string
	Name      string
	Timestamp int64
	Extra     Extras
}

// New constructs a Recorded Event. Category/name validity is the caller's
// responsibility (validated upstream by the event metric type).
func New(category, name string, timestamp int64, extra Extras) Event {
	return Event{
		Category:  category,
		Name:      name,
		Timestamp: timestamp,
		Extra:     extra,
	}
}

// IsRestartMarker reports whether e is the synthetic glean.restarted event.
func (e Event) IsRestartMarker() bool {
	return e.Category == RestartCategory && e.Name == RestartName
}

// ExecutionCounter extracts the reserved #execution_counter extra, if
// present and numeric. Persisted buffers always carry one; malformed
// entries without it are discarded before reaching this call.
func (e Event) ExecutionCounter() (int64, bool) {
	v, ok := e.Extra[ExecutionCounterKey]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// Payload is the public JSON shape of an event: reserved extras removed,
// extra omitted entirely when nothing user-visible remains.
type Payload struct {
	Category  string         `json:"category"`
	Name      string         `json:"name"`
	Timestamp int64          `json:"timestamp"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// AsPayload returns the public payload for e: reserved (#-prefixed)
// extras are removed, and the extra field is omitted when nothing
// user-visible remains.
func (e Event) AsPayload() Payload {
	p := Payload{Category: e.Category, Name: e.Name, Timestamp: e.Timestamp}
	if len(e.Extra) == 0 {
		return p
	}
	for k, v := range e.Extra {
		if len(k) > 0 && k[0] == '#' {
			continue
		}
		if p.Extra == nil {
			p.Extra = make(map[string]any, len(e.Extra))
		}
		p.Extra[k] = v
	}
	return p
}

// Raw is the full persisted JSON shape of an event, reserved extras
// included. Used only for storage and sorting.
type Raw struct {
	Category  string         `json:"category"`
	Name      string         `json:"name"`
	Timestamp int64          `json:"timestamp"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// AsRaw returns the full persisted representation of e, reserved extras
// included.
func (e Event) AsRaw() Raw {
	r := Raw{Category: e.Category, Name: e.Name, Timestamp: e.Timestamp}
	if len(e.Extra) > 0 {
		r.Extra = map[string]any(e.Extra)
	}
	return r
}

// FromRaw reconstructs an Event from its persisted representation.
func FromRaw(r Raw) Event {
	var extra Extras
	if len(r.Extra) > 0 {
		extra = Extras(r.Extra)
	}
	return Event{Category: r.Category, Name: r.Name, Timestamp: r.Timestamp, Extra: extra}
}
