// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package authz

import (
	"crypto/tls"
	"crypto/x509"

	"github.com/absmach/certgate/pkg/tls/verifier"
)

// Setup wires the walker into a server TLS configuration: the client CA
// pool built from the trust anchors is installed, peer verification is
// required, and the walker is registered as the verify callback.
func (w *Walker) Setup(cfg *tls.Config, clientCAs *x509.CertPool) {
	cfg.ClientCAs = clientCAs
	cfg.ClientAuth = tls.RequireAndVerifyClientCert
	cfg.VerifyPeerCertificate = verifier.NewValidator([]verifier.Verifier{w})
}
