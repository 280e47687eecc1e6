// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/absmach/certgate"
	"github.com/absmach/certgate/http"
	"github.com/absmach/certgate/pkg/tls/verifier/crl"
	"github.com/caarlos0/env/v11"
	"golang.org/x/sync/errgroup"
)

const (
	gatewayPrefix = "CERTGATE_"
	svcName       = "certgate"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(logHandler)

	opts := env.Options{Prefix: gatewayPrefix}

	// An already retrieved revocation list makes the handshake
	// CRL-aware; refresh it before the gateway configuration is built.
	crlProvider, err := crl.New(opts)
	if err != nil {
		log.Fatalf("failed to load %s CRL configuration: %s", svcName, err)
	}
	if crlProvider.Configured() {
		if err := crlProvider.Fetch(ctx); err != nil {
			logger.Warn("CRL refresh failed", slog.Any("error", err))
		}
	}

	config, err := certgate.NewConfig(opts)
	if err != nil {
		log.Fatalf("failed to load %s configuration: %s", svcName, err)
	}

	fwd, err := http.NewProxy(config, logger)
	if err != nil {
		log.Fatalf("failed to create %s forwarder: %s", svcName, err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return http.Listen(ctx, svcName, config, fwd, logger)
	})

	if err := g.Wait(); err != nil {
		logger.Error("certgate terminated", slog.Any("error", err))
	}
}
