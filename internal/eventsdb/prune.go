package eventsdb

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/abhi-agg/glean-go/internal/events"
)

// Pruner periodically sweeps persisted event buffers for ping names no
// longer registered by any metric in the current process (e.g. after an
// app update drops a ping) and deletes them, since nothing else in the
// pipeline ever reclaims that storage. Adapted from retention.Manager's
// ticker/stop idiom.
type Pruner struct {
	db       *DB
	interval time.Duration
	known    func() map[string]struct{}

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewPruner creates a Pruner that sweeps db every interval, keeping only
// the ping names returned by known at sweep time.
func NewPruner(db *DB, interval time.Duration, known func() map[string]struct{}) *Pruner {
	return &Pruner{db: db, interval: interval, known: known}
}

// Start begins the background sweep goroutine. Calling Start twice is a
// no-op.
func (p *Pruner) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.stoppedCh = make(chan struct{})
	go p.run(p.stopCh, p.stoppedCh)
}

// Stop signals the sweep goroutine to stop and waits for it to exit.
func (p *Pruner) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	stopCh, stoppedCh := p.stopCh, p.stoppedCh
	p.mu.Unlock()

	close(stopCh)
	<-stoppedCh
}

func (p *Pruner) run(stopCh, stoppedCh chan struct{}) {
	defer close(stoppedCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.sweep()
		case <-stopCh:
			return
		}
	}
}

// sweep deletes every persisted buffer whose ping name is absent from
// p.known(). It runs on the database's actor goroutine so it never races
// with Record, Initialize, or a drain.
func (p *Pruner) sweep() {
	p.db.actor.do(func() {
		data, ok, err := p.db.store.Get(eventsPathPrefix)
		if err != nil {
			p.db.log.LogStorageFailure("read", "events", err)
			return
		}
		if !ok {
			return
		}
		var tree map[string][]events.Raw
		if err := json.Unmarshal(data, &tree); err != nil {
			p.db.log.LogStorageFailure("read", "events", err)
			return
		}

		known := p.known()
		for ping := range tree {
			if _, ok := known[ping]; ok {
				continue
			}
			p.db.deleteBuffer(ping)
			p.db.counters.Clear(ping)
		}
	})
}
