package eventsdb

import (
	"sort"

	"github.com/abhi-agg/glean-go/internal/events"
)

// normalize implements the deterministic normalization pipeline for a
// raw event buffer: sort by execution counter (tie-broken by insertion
// order, which already coincides with timestamp order for every real
// same-lifetime sequence — the restart marker's raw timestamp is on a
// different clock domain, the inter-session wall-clock gap, so it is
// never comparable to the small monotonic timestamps of the events that
// follow it; it is kept first in its group by construction, since
// Initialize always appends it before any record of the new lifetime),
// trim a trailing restart marker, then rebase timestamps into a single
// sequence starting at 0. Each restart marker lands strictly after the
// event before it; within a lifetime events keep their relative offsets,
// so events with equal raw timestamps get equal output timestamps.
func normalize(raws []events.Raw) []events.Payload {
	if len(raws) == 0 {
		return nil
	}

	evs := make([]events.Event, len(raws))
	for i, r := range raws {
		evs[i] = events.FromRaw(r)
	}

	sort.SliceStable(evs, func(i, j int) bool {
		ci, _ := evs[i].ExecutionCounter()
		cj, _ := evs[j].ExecutionCounter()
		return ci < cj
	})

	if evs[len(evs)-1].IsRestartMarker() {
		evs = evs[:len(evs)-1]
	}
	if len(evs) == 0 {
		return []events.Payload{}
	}

	out := make([]events.Payload, 0, len(evs))
	var prevOutput, offset, prevCounter int64
	for i, ev := range evs {
		counter, _ := ev.ExecutionCounter()

		var output int64
		switch {
		case i == 0:
			output = 0
			offset = -ev.Timestamp
			prevCounter = counter
		case counter == prevCounter:
			output = ev.Timestamp + offset
		default:
			// Restart marker: bridge lifetimes with a strictly
			// increasing jump, then rebase the new lifetime's
			// already-zero-based timestamps onto it.
			output = maxInt64(prevOutput+1, ev.Timestamp)
			offset = output
			prevCounter = counter
		}

		prevOutput = output
		p := ev.AsPayload()
		p.Timestamp = output
		out = append(out, p)
	}

	return out
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
