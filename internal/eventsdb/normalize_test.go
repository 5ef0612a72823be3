package eventsdb

import (
	"testing"

	"github.com/abhi-agg/glean-go/internal/events"
)

func raw(category, name string, ts int64, counter int64) events.Raw {
	return events.Raw{
		Category:  category,
		Name:      name,
		Timestamp: ts,
		Extra:     map[string]any{events.ExecutionCounterKey: counter},
	}
}

func TestNormalizeCrossRestartStitching(t *testing.T) {
	buf := []events.Raw{
		raw("app", "click", 0, 1),
		raw("app", "click", 10, 1),
		raw(events.RestartCategory, events.RestartName, 3_600_000, 2),
		raw("app", "click", 10, 2),
		raw("app", "click", 40, 2),
	}

	got := normalize(buf)
	want := []int64{0, 10, 3_600_000, 3_600_010, 3_600_040}

	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d", len(got), len(want))
	}
	for i, ts := range want {
		if got[i].Timestamp != ts {
			t.Errorf("event %d: got timestamp %d, want %d", i, got[i].Timestamp, ts)
		}
	}
	if got[2].Category != events.RestartCategory || got[2].Name != events.RestartName {
		t.Errorf("event 2 should be the restart marker, got %+v", got[2])
	}
}

func TestNormalizeTrimsTrailingRestartMarker(t *testing.T) {
	buf := []events.Raw{
		raw("app", "click", 0, 1),
		raw(events.RestartCategory, events.RestartName, 500, 2),
	}

	got := normalize(buf)
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1 (trailing marker trimmed)", len(got))
	}
	if got[0].Category != "app" {
		t.Errorf("unexpected surviving event: %+v", got[0])
	}
}

func TestNormalizeStrictlyIncreasingAcrossStillClock(t *testing.T) {
	var buf []events.Raw
	counter := int64(1)
	buf = append(buf, raw("app", "click", 0, counter))
	for i := 0; i < 10; i++ {
		counter++
		buf = append(buf, raw(events.RestartCategory, events.RestartName, 0, counter))
	}
	buf = append(buf, raw("app", "click", 5, counter))

	got := normalize(buf)
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp <= got[i-1].Timestamp {
			t.Fatalf("non-increasing timestamps at %d: %d <= %d", i, got[i].Timestamp, got[i-1].Timestamp)
		}
	}
}

func TestNormalizeStripsReservedExtraAndOmitsEmptyExtra(t *testing.T) {
	buf := []events.Raw{raw("app", "click", 0, 1)}
	got := normalize(buf)
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	if got[0].Extra != nil {
		t.Errorf("expected extra omitted once execution counter stripped, got %v", got[0].Extra)
	}
}

func TestNormalizeEmptyBuffer(t *testing.T) {
	if got := normalize(nil); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
}
