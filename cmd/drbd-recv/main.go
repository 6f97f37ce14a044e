// Command drbd-recv runs the receive-side replication core for one
// resource: it loads a YAML config, connects to every configured peer,
// and serves Prometheus metrics alongside the replication traffic.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jabolina/go-drbd/pkg/drbd"
	"github.com/jabolina/go-drbd/pkg/drbd/config"
	"github.com/jabolina/go-drbd/pkg/drbd/definition"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "drbd-recv",
		Usage: "run the receive-side replication core for one resource",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "path to the resource's YAML config file",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug-level logging",
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := definition.NewLogrusLogger()
	log.ToggleDebug(c.Bool("debug") || cfg.LogLevel == "debug")

	registry := prometheus.NewRegistry()
	metrics := definition.NewMetrics(registry)

	server, err := drbd.NewServer(cfg, log, metrics)
	if err != nil {
		return fmt.Errorf("constructing server: %w", err)
	}

	// The block layer, bitmap, activity log, and metadata store are the
	// opaque external collaborators this core never looks inside of; a
	// real deployment wires its own device backend here. The in-memory
	// defaults let this binary run standalone for demos and smoke tests.
	server.AddDevice(
		cfg.ResourceName,
		definition.NewInMemoryBlockLayer(),
		definition.NewInMemoryBitmap(1<<20, 4096),
		definition.NewInMemoryActivityLog(),
		definition.NewInMemoryMetadataStore(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cfg.MetricsAddress, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("metrics server: %v", err)
			}
		}()
		go func() {
			<-ctx.Done()
			_ = srv.Close()
		}()
	}

	log.Infof("starting resource %s on %s with %d peer(s)", cfg.ResourceName, cfg.ListenAddress, len(cfg.Peers))
	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("server run: %w", err)
	}
	return nil
}
