// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package verifier

import (
	"crypto/x509"
)

// Verifier inspects a peer certificate chain after the TLS stack's own
// checks have run. Implementations receive either the chains the stack
// verified against its roots or, when the stack verified nothing, the
// raw presented certificates.
type Verifier interface {
	VerifyVerifiedPeerCertificates(verifiedChains [][]*x509.Certificate) error
	VerifyRawPeerCertificates(peerCertificates []*x509.Certificate) error
}
