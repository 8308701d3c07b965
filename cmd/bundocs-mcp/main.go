package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gaspardpetit/bundocs-mcp/internal/config"
	"github.com/gaspardpetit/bundocs-mcp/internal/logx"
	"github.com/gaspardpetit/bundocs-mcp/internal/metrics"
	"github.com/gaspardpetit/bundocs-mcp/internal/proxy"
	"github.com/gaspardpetit/bundocs-mcp/internal/search"
	"github.com/gaspardpetit/bundocs-mcp/internal/stdio"
	"github.com/gaspardpetit/bundocs-mcp/internal/upstream"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	var cfg config.Config
	cfg.BindFlags()
	flag.Parse()
	if *showVersion {
		fmt.Printf("bundocs-mcp version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}
	if cfg.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.ConfigFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			logx.Log.Fatal().Err(err).Str("path", cfg.ConfigFile).Msg("load config")
		}
	}
	if err := cfg.Validate(); err != nil {
		logx.Log.Fatal().Err(err).Msg("config")
	}
	logx.Configure(cfg.LogLevel)

	policy := upstream.DefaultRetryPolicy()
	policy.PerAttemptTimeout = cfg.RequestTimeout
	policy.MaxAttempts = cfg.MaxAttempts
	client, err := upstream.New(cfg.UpstreamURL, policy)
	if err != nil {
		logx.Log.Fatal().Err(err).Msg("upstream client")
	}

	if cfg.Search != "" {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		if err := search.Run(ctx, client, cfg.Search, cfg.Format, cfg.Output); err != nil {
			logx.Log.Fatal().Err(err).Msg("search")
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.MetricsAddr != "" {
		metrics.SetBuildInfo(version, buildSHA, buildDate)
		if _, err := metrics.StartMetricsServer(ctx, cfg.MetricsAddr); err != nil {
			logx.Log.Fatal().Err(err).Msg("metrics server")
		}
		logx.Log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server started")
	}

	logx.Log.Info().
		Str("upstream", cfg.UpstreamURL).
		Dur("timeout", cfg.RequestTimeout).
		Int("max_attempts", cfg.MaxAttempts).
		Msg("bundocs-mcp serving on stdio")

	handler := proxy.NewHandler(client, version)
	if err := stdio.Serve(ctx, stdio.NewStdio(), handler); err != nil && !errors.Is(err, context.Canceled) {
		logx.Log.Error().Err(err).Msg("serve")
		os.Exit(1)
	}
}
