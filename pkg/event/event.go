// Package event implements the Event Metric Type: the public surface an
// application uses to declare and record a single kind of event. It
// validates and stamps each record request, then forwards it to the
// Events Database.
package event

import (
	"context"
	"strings"

	"github.com/abhi-agg/glean-go/internal/errs"
	"github.com/abhi-agg/glean-go/internal/events"
	"github.com/abhi-agg/glean-go/internal/eventsdb"
)

const maxExtraValueLen = 500

// UploadEnabled reports whether data collection is currently enabled
// application-wide. The Event Metric Type consults it before every
// record() call, mirroring the Configuration contract's live switch.
type UploadEnabled interface {
	UploadEnabled() bool
}

// Metric is a declared event metric: a fixed category/name, the set of
// ping names it is sent in, its allowed extra keys, and whether it is
// individually disabled (e.g. by a remote kill switch).
type Metric struct {
	Category         string
	Name             string
	SendInPings      []string
	AllowedExtraKeys map[string]struct{}
	Disabled         bool

	db      *eventsdb.DB
	clock   eventsdb.Clock
	errs    errs.Recorder
	enabled UploadEnabled
}

// New declares a Metric. category and name must be valid identifiers;
// callers that accept these from external configuration should
// validate with events.ValidIdentifier first.
func New(category, name string, sendInPings []string, allowedExtraKeys []string, db *eventsdb.DB, clock eventsdb.Clock, recorder errs.Recorder, enabled UploadEnabled) *Metric {
	allowed := make(map[string]struct{}, len(allowedExtraKeys))
	for _, k := range allowedExtraKeys {
		allowed[k] = struct{}{}
	}
	if recorder == nil {
		recorder = errs.Noop()
	}
	return &Metric{
		Category:         category,
		Name:             name,
		SendInPings:      sendInPings,
		AllowedExtraKeys: allowed,
		db:               db,
		clock:            clock,
		errs:             recorder,
		enabled:          enabled,
	}
}

// Record validates extras, stamps a timestamp, and forwards to the
// Events Database. It never returns an error: invalid input is dropped
// and recorded against this metric's error ledger.
func (m *Metric) Record(ctx context.Context, extras map[string]any) {
	if m.Disabled || (m.enabled != nil && !m.enabled.UploadEnabled()) {
		return
	}

	clean := make(events.Extras, len(extras))
	for k, v := range extras {
		if strings.HasPrefix(k, "#") {
			m.errs.Record(m.Category, m.Name, errs.InvalidValue, "reserved extra key: "+k)
			return
		}
		if len(m.AllowedExtraKeys) > 0 {
			if _, ok := m.AllowedExtraKeys[k]; !ok {
				m.errs.Record(m.Category, m.Name, errs.InvalidValue, "undeclared extra key: "+k)
				return
			}
		}
		clean[k] = m.truncateIfNeeded(k, v)
	}

	m.db.Record(ctx, eventsdb.RecordRequest{
		Category:    m.Category,
		Name:        m.Name,
		Timestamp:   m.clock.NowMs(),
		Extra:       clean,
		SendInPings: m.SendInPings,
	})
}

func (m *Metric) truncateIfNeeded(key string, v any) any {
	s, ok := v.(string)
	if !ok || len(s) <= maxExtraValueLen {
		return v
	}
	m.errs.Record(m.Category, m.Name, errs.InvalidOverflow, "extra value truncated: "+key)
	return s[:maxExtraValueLen]
}

// TestGetValue returns the recorded public payloads for this metric in
// ping, for test assertions only.
func (m *Metric) TestGetValue(ctx context.Context, ping string) []events.Payload {
	all, ok := m.db.GetPingEvents(ctx, ping, false)
	if !ok {
		return nil
	}
	var out []events.Payload
	for _, p := range all {
		if p.Category == m.Category && p.Name == m.Name {
			out = append(out, p)
		}
	}
	return out
}
