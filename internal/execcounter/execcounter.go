// Package execcounter implements the Execution Counter: a per-ping
// lifetime counter persisted through the generic metrics database.
// That database lives outside this subsystem; Database is the narrow
// interface this subsystem actually needs from it.
package execcounter

import (
	"encoding/json"

	"github.com/abhi-agg/glean-go/internal/store"
)

// MetricName is the reserved counter metric this subsystem owns.
const MetricName = "glean.execution_counter"

var path = store.Path{"metrics", "user", "counter", MetricName}

// Database is the contract the events subsystem needs from the generic
// metrics database: read, initialize-on-first-use, increment-by-one at
// restart, and clear the execution counter for a single ping name.
type Database interface {
	// Get returns the current counter value for ping, or (0, false) if
	// it has never been set.
	Get(ping string) (int64, bool)
	// GetOrInit returns the current counter value for ping, setting it
	// to 1 first if it was unset. Used by record() on first event of a
	// fresh buffer — it never advances an already-set counter.
	GetOrInit(ping string) int64
	// Increment adds one to the counter for ping and returns the new
	// value. Used by initialize() when bridging a restart.
	Increment(ping string) int64
	// Clear resets the counter for ping to undefined.
	Clear(ping string)
}

// StoreBacked persists counters through a store.Store, under
// metrics/user/counter/glean.execution_counter.
type StoreBacked struct {
	s store.Store
}

// NewStoreBacked wraps s as a counter Database.
func NewStoreBacked(s store.Store) *StoreBacked {
	return &StoreBacked{s: s}
}

func (d *StoreBacked) readAll() map[string]int64 {
	data, ok, err := d.s.Get(path)
	if err != nil || !ok {
		return map[string]int64{}
	}
	var m map[string]int64
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]int64{}
	}
	return m
}

func (d *StoreBacked) Get(ping string) (int64, bool) {
	m := d.readAll()
	v, ok := m[ping]
	return v, ok
}

func (d *StoreBacked) GetOrInit(ping string) int64 {
	var result int64
	_ = d.s.Update(path, func(current json.RawMessage) (json.RawMessage, error) {
		m := map[string]int64{}
		if current != nil {
			_ = json.Unmarshal(current, &m)
		}
		if _, ok := m[ping]; !ok {
			m[ping] = 1
		}
		result = m[ping]
		return json.Marshal(m)
	})
	return result
}

func (d *StoreBacked) Increment(ping string) int64 {
	var result int64
	_ = d.s.Update(path, func(current json.RawMessage) (json.RawMessage, error) {
		m := map[string]int64{}
		if current != nil {
			_ = json.Unmarshal(current, &m)
		}
		m[ping]++
		result = m[ping]
		return json.Marshal(m)
	})
	return result
}

func (d *StoreBacked) Clear(ping string) {
	_ = d.s.Update(path, func(current json.RawMessage) (json.RawMessage, error) {
		m := map[string]int64{}
		if current != nil {
			_ = json.Unmarshal(current, &m)
		}
		delete(m, ping)
		return json.Marshal(m)
	})
}
