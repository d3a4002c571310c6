package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"caskdb/cmd/remote"
	"caskdb/core"
	"caskdb/internal/config"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "  server [--config <path>] [--path <data-dir>] [--addr <addr>]\n")
	os.Exit(1)
}

func main() {
	var (
		configPath = pflag.String("config", "", "path to a JSONC config file")
		dbPath     = pflag.String("path", "", "path to data directory (overrides config)")
		addr       = pflag.String("addr", "", "RPC listen address (overrides config)")
		sync       = pflag.Bool("sync", false, "fsync after every write")
	)
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.DataDir = *dbPath
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *sync {
		cfg.Sync = true
	}
	if cfg.DataDir == "" {
		usage()
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	db, err := core.Open(cfg.DataDir,
		core.WithSync(cfg.Sync),
		core.WithKeydirShards(cfg.KeydirShards),
		core.WithAutoMergeThreshold(cfg.AutoMergeThreshold),
		core.WithLogger(logger),
	)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}

	listenAddr, cleanup, err := remote.StartRPC(db, cfg.Addr, logger)
	if err != nil {
		logger.Fatal("start rpc server", zap.Error(err))
	}
	logger.Info("rpc server listening", zap.String("addr", listenAddr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal", zap.String("signal", sig.String()))
	case err := <-db.MergeErrors():
		logger.Error("merge error", zap.Error(err))
	}

	logger.Info("shutting down")
	cleanup()
}
