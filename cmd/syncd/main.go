package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"dataengine/internal/cli"
	"dataengine/internal/config"
	"dataengine/internal/svc"
	enginesync "dataengine/internal/sync"
	"dataengine/pkg/datasource"
)

const (
	syncInterval    = 30 * time.Minute // Per-class synchronization interval
	runTimeout      = 20 * time.Minute // Budget for one full class run
	shutdownTimeout = 10 * time.Second // Grace period for shutdown
)

var configFile = flag.String("f", "etc/dataengine.yaml", "the config file")

func main() {
	flag.Parse()
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("[main] Starting sync daemon...")

	appCfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("[main] Failed to load config %s: %v", *configFile, err)
	}

	log.Printf("[main] Configuration loaded:")
	for _, line := range cli.ConfigSummaryLines(appCfg) {
		log.Printf("  - %s", line)
	}

	ctx := svc.NewServiceContext(*appCfg)
	log.Printf("  - Asset classes: %d", len(ctx.Engines))

	// Create context for graceful shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	for class, engine := range ctx.Engines {
		wg.Add(1)
		go func(class datasource.AssetClass, engine *enginesync.Engine) {
			defer wg.Done()
			runClassLoop(rootCtx, class, engine)
		}(class, engine)
	}

	log.Println("[main] Sync daemon started. Press Ctrl+C to stop.")

	<-rootCtx.Done()
	log.Println("[main] Shutdown signal received, stopping tasks...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("[main] All tasks stopped cleanly")
	case <-shutdownCtx.Done():
		log.Println("[main] Shutdown timeout exceeded, forcing exit")
	}

	log.Println("[main] Sync daemon stopped")
}

// runClassLoop keeps one asset class fresh on a schedule.
func runClassLoop(ctx context.Context, class datasource.AssetClass, engine *enginesync.Engine) {
	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()

	// Run once immediately on startup
	syncClass(ctx, class, engine)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[%s] Stopping sync loop", class)
			return
		case <-ticker.C:
			syncClass(ctx, class, engine)
		}
	}
}

// syncClass performs one bounded synchronization run and logs the outcome.
func syncClass(parentCtx context.Context, class datasource.AssetClass, engine *enginesync.Engine) {
	if parentCtx.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(parentCtx, runTimeout)
	defer cancel()

	start := time.Now()
	report, err := engine.EnsureFresh(ctx)
	elapsed := time.Since(start)

	if err != nil {
		log.Printf("[%s] [ERROR] %v, took %dms", class, err, elapsed.Milliseconds())
		return
	}
	if report == nil {
		log.Printf("[%s] [OK] already fresh, took %dms", class, elapsed.Milliseconds())
		return
	}

	status := "OK"
	if report.Degraded {
		status = "DEGRADED"
	}
	log.Printf("[%s] [%s] symbols=%d bars=%d failures=%d through=%s, took %dms",
		class, status,
		report.SymbolsSynced, report.BarsUpserted, len(report.Failures),
		reportThrough(report), elapsed.Milliseconds())

	for code, ferr := range report.Failures {
		log.Printf("  - %s: %v", code, ferr)
	}
}

func reportThrough(report *enginesync.Report) string {
	if report.Through.IsZero() {
		return "unchanged"
	}
	return report.Through.Format("2006-01-02")
}
