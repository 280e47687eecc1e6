// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package authz

import (
	"crypto/x509"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrPeerRejected is returned to the TLS stack when the chain walk ends
// in a negative decision. The accumulated diagnostics are joined into
// its message so the connection layer can surface them.
var ErrPeerRejected = errors.New("peer certificate chain rejected")

// Walker drives the per-certificate verify callback across a presented
// chain the way an OpenSSL-style handshake would: once per pre-verification
// failure with preverifyOK false, then once per certificate with
// preverifyOK true. crypto/tls reports the whole chain in a single
// callback, so the walker replays it certificate by certificate against
// a fresh ChainValidator per handshake.
//
// A Walker is immutable after construction and safe to share across
// concurrent handshakes.
type Walker struct {
	anchors []*x509.Certificate
	crl     *x509.RevocationList

	// Now is the clock used by pre-verification and the skew window.
	// Tests override it; nil means time.Now.
	Now func() time.Time
}

// NewWalker returns a Walker trusting the given anchors. crl is the
// revocation list in effect for handshakes driven by this walker; nil
// disables revocation checking.
func NewWalker(anchors []*x509.Certificate, crl *x509.RevocationList) *Walker {
	return &Walker{anchors: anchors, crl: crl}
}

// VerifyRawPeerCertificates walks an unverified chain in the order the
// peer presented it.
func (w *Walker) VerifyRawPeerCertificates(peerCertificates []*x509.Certificate) error {
	return w.walk(peerCertificates)
}

// VerifyVerifiedPeerCertificates walks each chain the TLS stack already
// verified against its own roots. Every chain must pass.
func (w *Walker) VerifyVerifiedPeerCertificates(verifiedChains [][]*x509.Certificate) error {
	for _, chain := range verifiedChains {
		if err := w.walk(chain); err != nil {
			return err
		}
	}
	return nil
}

func (w *Walker) walk(chain []*x509.Certificate) error {
	v := New(w.anchors)
	v.Now = w.Now

	for _, cert := range chain {
		step := StepContext{Cert: cert, CRL: w.crl, ChainLen: len(chain)}
		for _, preverifyErr := range w.preverify(cert) {
			step.Err = preverifyErr
			if !v.OnVerifyStep(false, step) {
				return rejection(v.VerifyErrors())
			}
		}
		step.Err = nil
		if !v.OnVerifyStep(true, step) {
			return rejection(v.VerifyErrors())
		}
	}
	return nil
}

// preverify stands in for the low-level checks a crypto engine performs
// before consulting the application callback. crypto/tls has already
// checked signatures and name constraints by the time the callback
// runs, so only the checks it leaves to the application remain: the
// validity window against the walker clock and the revocation status
// against the CRL in effect. Failures are reported in order, each
// producing one callback invocation.
func (w *Walker) preverify(cert *x509.Certificate) []error {
	var errs []error
	now := w.now()

	if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		errs = append(errs, fmt.Errorf("certificate is expired or not yet valid: not before %s, not after %s",
			cert.NotBefore.Format(time.RFC3339), cert.NotAfter.Format(time.RFC3339)))
	}

	if w.crl != nil {
		if w.crl.ThisUpdate.After(now) {
			errs = append(errs, ErrCRLNotYetValid)
		}
		for _, revoked := range w.crl.RevokedCertificateEntries {
			if revoked.SerialNumber.Cmp(cert.SerialNumber) == 0 {
				errs = append(errs, fmt.Errorf("certificate revoked: serial number %x", cert.SerialNumber))
				break
			}
		}
	}
	return errs
}

func (w *Walker) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

func rejection(verifyErrors []string) error {
	return fmt.Errorf("%w: %s", ErrPeerRejected, strings.Join(verifyErrors, "; "))
}
