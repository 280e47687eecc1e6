// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package http

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/absmach/certgate"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	// Origin was already constrained by the mTLS handshake.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// forwardWebsocket upgrades the inbound connection and streams frames
// between peer and target in both directions until either side drops.
func (p *proxy) forwardWebsocket(w http.ResponseWriter, r *http.Request, s *certgate.Session) {
	targetURL := url.URL{Scheme: wsScheme(p.targetURL.Scheme), Host: p.targetURL.Host, Path: r.URL.Path, RawQuery: r.URL.RawQuery}

	destConn, _, err := websocket.DefaultDialer.Dial(targetURL.String(), nil)
	if err != nil {
		p.logger.Error("Failed to dial websocket target", slog.String("session", s.ID), slog.Any("error", err))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer destConn.Close()

	inConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.logger.Error("Failed to upgrade websocket", slog.String("session", s.ID), slog.Any("error", err))
		return
	}
	defer inConn.Close()

	errs := make(chan error, 2)
	go stream(inConn, destConn, errs)
	go stream(destConn, inConn, errs)

	// Whichever direction fails first ends the session; the other
	// goroutine is unblocked by the buffered channel and the closes.
	if err := <-errs; err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		p.logger.Warn("Websocket session ended", slog.String("session", s.ID), slog.Any("error", err))
	}
}

func stream(src, dest *websocket.Conn, errs chan error) {
	for {
		messageType, payload, err := src.ReadMessage()
		if err != nil {
			errs <- err
			return
		}
		if err := dest.WriteMessage(messageType, payload); err != nil {
			errs <- err
			return
		}
	}
}

func wsScheme(scheme string) string {
	if scheme == "https" || scheme == "wss" {
		return "wss"
	}
	return "ws"
}
