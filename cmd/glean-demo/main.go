// Command glean-demo exercises the events subsystem end to end: it
// declares a couple of event metrics, records some events, and lets the
// max_capacity/startup submission paths fire against a real (or
// test-mode) telemetry endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abhi-agg/glean-go/internal/config"
	"github.com/abhi-agg/glean-go/internal/obsmetrics"
	"github.com/abhi-agg/glean-go/internal/sdk"
	"github.com/abhi-agg/glean-go/internal/store"
)

func main() {
	endpoint := flag.String("endpoint", config.DefaultServerEndpoint, "Telemetry server endpoint")
	storagePath := flag.String("storage", "", "Path to the on-disk event store (empty = in-memory only)")
	maxEvents := flag.Int("max-events", 500, "Events-ping capacity before a max_capacity submission fires")
	testMode := flag.Bool("test-mode", false, "Allow a non-HTTPS endpoint (for local testing)")
	logPings := flag.Bool("log-pings", false, "Log each ping (name, reason, event count) about to be submitted")
	metricsExporter := flag.String("metrics-exporter", "none", "Self-observability exporter: none, stdout, otlp_http")
	pruneInterval := flag.Duration("prune-interval", time.Hour, "Orphaned event-buffer sweep interval")
	flag.Parse()

	cfg, err := config.New(
		config.WithServerEndpoint(*endpoint),
		config.WithMaxEvents(*maxEvents),
		config.WithTestMode(*testMode),
		config.WithLogPings(*logPings),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building configuration: %v\n", err)
		os.Exit(1)
	}

	var s store.Store
	if *storagePath != "" {
		s, err = store.NewFileStore(*storagePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening storage at %s: %v\n", *storagePath, err)
			os.Exit(1)
		}
	} else {
		s = store.NewMemStore()
	}

	mcfg := obsmetrics.DefaultConfig()
	if *metricsExporter != "none" {
		mcfg.Enabled = true
		mcfg.ExporterType = obsmetrics.ExporterType(*metricsExporter)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, err := sdk.New(ctx, s, cfg, mcfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting events subsystem: %v\n", err)
		os.Exit(1)
	}
	g.StartPruning(*pruneInterval)

	buttonTapped := g.NewEventMetric("app", "button_tapped", []string{"events"}, []string{"button_id"})
	appOpened := g.NewEventMetric("app", "opened", []string{"events"}, nil)

	appOpened.Record(ctx, nil)
	buttonTapped.Record(ctx, map[string]any{"button_id": "submit"})

	slog.Info("glean-demo recording events", "endpoint", *endpoint, "max_events", *maxEvents)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := g.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
	}
}
