// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Federationd is the network-facing federation process. It serves the
// Matrix server-to-server API endpoints for knock admission and room
// state synchronization, backed by a SQLite room graph.
//
// On startup:
//  1. Loads and validates the YAML configuration (FEDERATION_*
//     environment variables override file values).
//  2. Loads the server's ed25519 signing key, generating one on first
//     boot.
//  3. Opens the room-graph database and applies its schema.
//  4. Serves the federation API until SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/homeserver/federation"
	"github.com/bureau-foundation/homeserver/lib/config"
	"github.com/bureau-foundation/homeserver/lib/ref"
	"github.com/bureau-foundation/homeserver/lib/sqlitepool"
	"github.com/bureau-foundation/homeserver/roomgraph"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
	)
	defaultConfig := os.Getenv("FEDERATION_CONFIG")
	if defaultConfig == "" {
		defaultConfig = "/etc/federationd/config.yaml"
	}
	pflag.StringVar(&configPath, "config", defaultConfig, "path to the YAML configuration file (defaults to $FEDERATION_CONFIG)")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.Parse()

	if showVersion {
		fmt.Printf("federationd %s\n", version)
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverName := ref.MustParseServerName(cfg.ServerName)

	signingKey, keyID, err := roomgraph.LoadOrCreateSigningKey(cfg.Database.SigningKeyPath)
	if err != nil {
		return err
	}
	logger.Info("signing key loaded", "key_id", keyID)

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Database.Path,
		PoolSize: cfg.Database.PoolSize,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	locks := federation.NewRoomLocks()
	store, err := roomgraph.Open(ctx, roomgraph.Config{
		Pool:       pool,
		ServerName: serverName,
		SigningKey: signingKey,
		KeyID:      keyID,
		Locks:      locks,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	service, err := federation.NewService(federation.ServiceConfig{
		ACL:       store,
		Metadata:  store,
		Accessor:  store,
		Cache:     store,
		Timeline:  store,
		AuthChain: store,
		Forbidden: cfg,
		Locks:     locks,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           newServer(service, logger).handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("federation listener started", "addr", cfg.Listen, "server_name", serverName)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("federation listener: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutting down listener: %w", err)
	}
	return nil
}
