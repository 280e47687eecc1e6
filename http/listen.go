// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package http

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/absmach/certgate"
	cgtls "github.com/absmach/certgate/pkg/tls"
	"golang.org/x/sync/errgroup"
)

// Listen serves the forwarder at the configured address until ctx is
// cancelled. TLS handshake failures, including rejected peer chains and
// their accumulated diagnostics, surface through the server error log.
func Listen(ctx context.Context, name string, config certgate.Config, fwd certgate.Forwarder, logger *slog.Logger) error {
	l, err := net.Listen("tcp", config.Address)
	if err != nil {
		return err
	}

	if config.TLSConfig != nil {
		l = tls.NewListener(l, config.TLSConfig)
	}
	status := cgtls.SecurityStatus(config.TLSConfig)

	logger.Info(fmt.Sprintf("%s server started at %s%s %s", name, config.Address, config.PathPrefix, status))

	mux := http.NewServeMux()
	mux.HandleFunc(config.PathPrefix, fwd.Forward)
	server := http.Server{
		Handler:  mux,
		ErrorLog: slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(l)
	})
	g.Go(func() error {
		<-ctx.Done()
		return server.Close()
	})

	if err := g.Wait(); err != nil {
		logger.Info(fmt.Sprintf("%s server at %s%s %s exiting with errors", name, config.Address, config.PathPrefix, status), slog.String("error", err.Error()))
	} else {
		logger.Info(fmt.Sprintf("%s server at %s%s %s exiting...", name, config.Address, config.PathPrefix, status))
	}
	return nil
}
