// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package http

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/absmach/certgate"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// proxy forwards HTTP traffic that survived peer verification to the
// upstream target.
type proxy struct {
	config    certgate.Config
	targetURL *url.URL
	target    *httputil.ReverseProxy
	logger    *slog.Logger
}

func NewProxy(config certgate.Config, logger *slog.Logger) (certgate.Forwarder, error) {
	target, err := url.Parse(config.Target)
	if err != nil {
		return nil, err
	}

	return &proxy{
		config:    config,
		targetURL: target,
		target:    httputil.NewSingleHostReverseProxy(target),
		logger:    logger,
	}, nil
}

func (p *proxy) Forward(w http.ResponseWriter, r *http.Request) {
	// Health endpoint is served directly.
	if r.URL.Path == "/health" {
		w.WriteHeader(http.StatusOK)
		return
	}

	if !strings.HasPrefix(r.URL.Path, p.config.PathPrefix) {
		http.NotFound(w, r)
		return
	}

	s := &certgate.Session{ID: uuid.NewString()}
	if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
		leaf := r.TLS.PeerCertificates[0]
		s.Subject = leaf.Subject.String()
		s.Cert = leaf
	}
	r = r.WithContext(certgate.NewContext(r.Context(), s))

	p.logger.Debug("Forwarding request",
		slog.String("session", s.ID),
		slog.String("peer", s.Subject),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path))

	if websocket.IsWebSocketUpgrade(r) {
		p.forwardWebsocket(w, r, s)
		return
	}
	p.target.ServeHTTP(w, r)
}
