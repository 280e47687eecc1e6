// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package certgate

import (
	"context"
	"crypto/x509"
	"net/http"
)

// Session carries the authenticated peer identity for one proxied
// connection.
type Session struct {
	// ID identifies the connection in log lines.
	ID string
	// Subject is the distinguished name of the peer leaf certificate.
	Subject string
	// Cert is the peer leaf certificate.
	Cert *x509.Certificate
}

// Forwarder is used for request-response protocols. It forwards the
// HTTP request and response for HTTP and WS based protocols.
type Forwarder interface {
	Forward(w http.ResponseWriter, r *http.Request)
}

type sessionKey struct{}

// NewContext stores the session in the context.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext retrieves the session from the context, if any.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok
}
