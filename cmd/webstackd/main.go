// Package main hosts the webstack backend service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes the upstream proxies
//     (Stripe Checkout, Ahrefs metrics, Google Business Profile and
//     Search Console, BRON), the marketing form endpoints, visitor
//     tracking, the site-audit job API, and the health monitor surface.
//   - Audit pipeline: submitted audits flow through a bounded in-memory
//     queue into a fixed worker pool. Workers crawl same-host pages via
//     Colly, promote JS-shell pages to headless Chrome when allowed,
//     extract on-page SEO signals, and persist snapshots to the
//     configured blob store.
//   - Health monitor: a background loop probes the configured endpoints
//     and applies scripted remedies (cache purge, session refresh,
//     backoff reset, cooldown) once a check crosses its failure
//     threshold, raising and resolving alert rows as state changes.
//   - Persistence: gorm (Postgres in production, SQLite for dev) backs
//     entity rows; a pgx pool feeds the append-only probe, pageview,
//     and event tables; snapshots go to GCS, disk, or memory.
//   - Plumbing: Viper populates config from file/env, zap provides
//     structured logging, Prometheus metrics are served on /metrics,
//     and audit completion events fan out to Pub/Sub when configured.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/Blackwoodproductions/webstack-services/internal/config"
	"github.com/Blackwoodproductions/webstack-services/internal/server"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	app, err := server.Build(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build: %v\n", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		os.Exit(1)
	}
}
