// Package sdk wires together the events subsystem's collaborators into
// a single runnable instance: storage, the execution counter, the error
// ledger, the events database, and a default Ping Assembler/uploader
// pairing that drains and submits pings over HTTP. A host application
// that wants a different storage driver or delivery mechanism can
// assemble the pieces in internal/eventsdb directly instead.
package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/abhi-agg/glean-go/internal/config"
	"github.com/abhi-agg/glean-go/internal/errs"
	"github.com/abhi-agg/glean-go/internal/eventlog"
	"github.com/abhi-agg/glean-go/internal/events"
	"github.com/abhi-agg/glean-go/internal/eventsdb"
	"github.com/abhi-agg/glean-go/internal/execcounter"
	"github.com/abhi-agg/glean-go/internal/obsmetrics"
	"github.com/abhi-agg/glean-go/internal/store"
	"github.com/abhi-agg/glean-go/internal/uploader"
	"github.com/abhi-agg/glean-go/pkg/event"
)

// Glean is the top-level events subsystem instance.
type Glean struct {
	cfg      *config.Configuration
	store    store.Store
	db       *eventsdb.DB
	uploader uploader.Uploader
	metrics  *obsmetrics.Metrics
	log      *eventlog.Logger
	errs     errs.Recorder
	pruner   *eventsdb.Pruner

	metricNames map[string]struct{}
}

// New constructs a Glean instance. s is the platform storage driver
// (use store.NewFileStore for on-disk persistence, store.NewMemStore
// for an in-process default); cfg is the validated Configuration; mcfg
// controls the subsystem's own OpenTelemetry self-observability.
func New(ctx context.Context, s store.Store, cfg *config.Configuration, mcfg obsmetrics.Config) (*Glean, error) {
	log := eventlog.New()
	eventlog.SetGlobal(log)

	m, err := obsmetrics.New(ctx, mcfg)
	if err != nil {
		return nil, fmt.Errorf("sdk: build metrics: %w", err)
	}

	counters := execcounter.NewStoreBacked(s)
	recorder := errs.NewMemRecorder()
	clock := eventsdb.NewSystemClock()

	db := eventsdb.New(s, counters, recorder, log, m, cfg, clock)

	up := cfg.HTTPClient
	if up == nil {
		up = uploader.NewHTTPUploader(0)
	}

	g := &Glean{
		cfg:         cfg,
		store:       s,
		db:          db,
		uploader:    up,
		metrics:     m,
		log:         log,
		errs:        recorder,
		metricNames: map[string]struct{}{"events": {}},
	}
	db.SetSubmitter(g)
	db.Initialize(ctx)

	return g, nil
}

// NewEventMetric declares an event metric bound to this instance. The
// ping names it is sent in are registered so orphaned-buffer pruning
// never reclaims a buffer still in active use.
func (g *Glean) NewEventMetric(category, name string, sendInPings []string, allowedExtraKeys []string) *event.Metric {
	for _, p := range sendInPings {
		g.metricNames[p] = struct{}{}
	}
	return event.New(category, name, sendInPings, allowedExtraKeys, g.db, g.db.Clock(), g.errs, g)
}

// UploadEnabled reports the current global data-collection switch.
// Satisfies event.UploadEnabled.
func (g *Glean) UploadEnabled() bool {
	return g.cfg.UploadEnabled()
}

// SetUploadEnabled flips the global switch and, when turning upload
// off, wipes every persisted event buffer and counter, matching Glean's
// behavior of clearing all pings on opt-out.
func (g *Glean) SetUploadEnabled(enabled bool) {
	g.cfg.SetUploadEnabled(enabled)
	if !enabled {
		g.db.ClearAll()
	}
}

// StartPruning begins a periodic sweep that deletes on-disk event
// buffers for ping names no longer registered by any declared metric.
func (g *Glean) StartPruning(interval time.Duration) {
	g.pruner = eventsdb.NewPruner(g.db, interval, g.knownPings)
	g.pruner.Start()
}

func (g *Glean) knownPings() map[string]struct{} {
	out := make(map[string]struct{}, len(g.metricNames))
	for p := range g.metricNames {
		out[p] = struct{}{}
	}
	return out
}

// Submit implements eventsdb.Submitter: it drains ping, assembles a
// minimal ping body, and posts it through the configured Uploader. Full
// ping schema assembly and upload retry/backoff are a separate
// collaborator's job; this is the thin default needed to exercise the
// uploader end to end.
func (g *Glean) Submit(ctx context.Context, ping, reason string) {
	payload, ok := g.db.DrainForSubmission(ctx, ping, reason)
	if !ok {
		return
	}

	body := pingBody{
		PingInfo: pingInfo{
			Reason:  reason,
			Seq:     0,
			Channel: g.cfg.Channel,
		},
		ClientInfo: clientInfo{
			AppBuild:          g.cfg.AppBuild,
			AppDisplayVersion: g.cfg.AppDisplayVersion,
			BuildDate:         g.cfg.BuildDate,
		},
		Events: payload,
	}

	data, err := json.Marshal(body)
	if err != nil {
		g.log.LogUploadFailure(ping, err)
		return
	}

	headers := map[string]string{}
	if g.cfg.DebugViewTag != "" {
		headers["X-Debug-ID"] = g.cfg.DebugViewTag
	}
	if len(g.cfg.SourceTags) > 0 {
		headers["X-Source-Tags"] = strings.Join(g.cfg.SourceTags, ",")
	}

	url := fmt.Sprintf("%s/submit/%s/%s", g.cfg.ServerEndpoint, ping, uuid.NewString())
	if _, err := g.uploader.Post(ctx, url, data, headers); err != nil {
		g.log.LogUploadFailure(ping, err)
	}
}

// WaitForDelivery blocks until every submission scheduled by a prior
// Record or Initialize call has been handed to the uploader. Submit is
// always dispatched off the database's actor goroutine (see
// eventsdb.DB.dispatchSubmit), so a caller that needs to observe its
// side effects synchronously — mainly tests — waits here instead of
// racing the background delivery.
func (g *Glean) WaitForDelivery() {
	g.db.WaitPending()
}

// Shutdown stops the pruning sweep (if started), the database's
// serialization queue, and flushes self-observability metrics.
func (g *Glean) Shutdown(ctx context.Context) error {
	if g.pruner != nil {
		g.pruner.Stop()
	}
	g.db.Close()
	return g.metrics.Shutdown(ctx)
}

type pingInfo struct {
	Reason  string `json:"reason"`
	Seq     int    `json:"seq"`
	Channel string `json:"channel,omitempty"`
}

type clientInfo struct {
	AppBuild          string `json:"app_build,omitempty"`
	AppDisplayVersion string `json:"app_display_version,omitempty"`
	BuildDate         string `json:"build_date,omitempty"`
}

type pingBody struct {
	PingInfo   pingInfo         `json:"ping_info"`
	ClientInfo clientInfo       `json:"client_info"`
	Events     []events.Payload `json:"events"`
}
