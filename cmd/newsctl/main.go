// Command newsctl runs the news aggregation pipeline: it wires the
// AppContext, starts the scheduler's tick loop, and optionally serves the
// monitoring/API HTTP surface, in the style of the teacher's
// cmd/dknews/main.go (ENABLE_HTTP_MONITORING toggle around a background
// http.ListenAndServe goroutine).
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/deusflow/newsagg/internal/appctx"
	"github.com/deusflow/newsagg/internal/config"
	"github.com/deusflow/newsagg/internal/httpapi"
	"github.com/deusflow/newsagg/internal/monitor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := appctx.New(ctx, cfg)
	if err != nil {
		log.Fatalf("building app context: %v", err)
	}
	defer app.Close()

	if os.Getenv("ENABLE_HTTP_MONITORING") == "true" {
		go serveHTTP(app)
	}

	app.Logger.Info("newsctl starting scheduler")
	app.Scheduler.Run(ctx)
	app.Logger.Info("newsctl shutting down")
}

func serveHTTP(app *appctx.AppContext) {
	port := os.Getenv("MONITORING_PORT")
	if port == "" {
		port = "8080"
	}

	mon := monitor.New(app.Metrics, app.Migrations)
	api := httpapi.New(app.Orchestrator, app.Storage, app.Migrations)

	mux := http.NewServeMux()
	mux.Handle("/health", mon.Handler())
	mux.Handle("/metrics", mon.Handler())
	mux.Handle("/", api.Handler())

	app.Logger.Info("starting monitoring/api server", "port", port)
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		app.Logger.Error("monitoring server stopped", "error", err)
	}
}
