// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package authz decides whether a presented peer certificate chain is
// issued by one of the locally configured trust anchors. It accumulates
// the chain one certificate at a time, the way a TLS engine reports it,
// and renders a single trust decision once the whole chain has been seen.
package authz

import (
	"crypto/x509"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrCRLNotYetValid is reported by pre-verification when the revocation
// list in effect claims a last-update time in the future.
var ErrCRLNotYetValid = errors.New("CRL is not yet valid")

var (
	errNoCertificate = errors.New("verify step carries no certificate")
	errStepFailed    = errors.New("certificate verification failed")
)

// crlSkewTolerance bounds how far in the future a CRL last-update
// timestamp may lie before it stops being treated as clock drift
// between this host and the CRL issuer.
const crlSkewTolerance = 5 * time.Minute

// StepContext carries what the chain walk knows about the certificate
// currently under examination.
type StepContext struct {
	// Cert is the certificate under examination.
	Cert *x509.Certificate
	// Err is the low-level verification failure. Nil when
	// pre-verification passed.
	Err error
	// CRL is the revocation list in effect for this handshake, if any.
	CRL *x509.RevocationList
	// ChainLen is the total number of certificates the engine reported
	// for the chain being walked.
	ChainLen int
}

// ChainValidator accumulates a peer certificate chain across successive
// verify callbacks and decides whether it is issued by a trust anchor.
// One instance serves one handshake at a time: it is not safe for
// concurrent use, and Reset must be called before an instance is reused
// for another connection.
type ChainValidator struct {
	anchors      []*x509.Certificate
	peerCerts    []*x509.Certificate
	verifyErrors []string

	// Now is the clock consulted for the CRL skew window.
	// Tests override it; nil means time.Now.
	Now func() time.Time
}

// New returns a ChainValidator trusting the given anchor certificates.
// The anchor slice is shared, never mutated.
func New(anchors []*x509.Certificate) *ChainValidator {
	v := &ChainValidator{anchors: anchors}
	v.Reset()
	return v
}

// Reset clears the accumulated chain and diagnostics together. It is
// safe to call at any point, including on a fresh instance.
func (v *ChainValidator) Reset() {
	v.peerCerts = nil
	v.verifyErrors = nil
}

// PeerCerts returns the certificates accumulated so far, in the order
// the engine presented them.
func (v *ChainValidator) PeerCerts() []*x509.Certificate {
	return v.peerCerts
}

// VerifyErrors returns the diagnostics recorded so far.
func (v *ChainValidator) VerifyErrors() []string {
	return v.verifyErrors
}

// OnVerifyStep is the per-certificate verify callback. It is invoked
// once per low-level failure with preverifyOK false, and once with
// preverifyOK true when a certificate clears pre-verification. The
// return value tells the engine whether to continue the chain walk; on
// the final certificate it carries the trust decision itself.
//
// No fault escapes this method: anything that goes wrong inside the
// step is recorded as a diagnostic and coerced to false, so the engine
// always gets a usable boolean back.
func (v *ChainValidator) OnVerifyStep(preverifyOK bool, step StepContext) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			v.verifyErrors = append(v.verifyErrors, fmt.Sprintf("%v", r))
			ok = false
		}
	}()

	ok, err := v.step(preverifyOK, step)
	if err != nil {
		v.verifyErrors = append(v.verifyErrors, err.Error())
		return false
	}
	return ok
}

func (v *ChainValidator) step(preverifyOK bool, step StepContext) (bool, error) {
	if step.Cert == nil {
		return false, errNoCertificate
	}
	if !preverifyOK {
		return v.classify(step), nil
	}

	v.peerCerts = append(v.peerCerts, step.Cert)
	if len(v.peerCerts) == step.ChainLen {
		return v.IsValidChain(), nil
	}
	return true, nil
}

// classify records a diagnostic for a low-level failure and reports
// whether the failure is overridden. The only override is a CRL whose
// last update lies less than crlSkewTolerance in the future: hosts in a
// distributed deployment drift by a few minutes relative to the CRL
// issuer, and such a CRL is accepted rather than rejected outright.
func (v *ChainValidator) classify(step StepContext) bool {
	if step.Err == nil {
		step.Err = errStepFailed
	}

	if errors.Is(step.Err, ErrCRLNotYetValid) {
		if step.CRL != nil && step.CRL.ThisUpdate.Before(v.now().Add(crlSkewTolerance)) {
			return true
		}
		if step.CRL != nil {
			v.verifyErrors = append(v.verifyErrors, fmt.Sprintf("%s: %s", step.Err, step.CRL.Issuer))
			return false
		}
		v.verifyErrors = append(v.verifyErrors, step.Err.Error())
		return false
	}

	v.verifyErrors = append(v.verifyErrors, fmt.Sprintf("%s: %s", step.Err, step.Cert.Subject))
	return false
}

// IsValidChain reports whether at least one accumulated certificate was
// issued by a configured trust anchor. The engine hands the chain
// leaf-first; the walk runs over a reversed copy so diagnostics read
// root-ward, the order operators see in CA bundles. On failure exactly
// one aggregate diagnostic is recorded, naming every authorized issuer
// and the full peer subject chain. An empty chain is never authorized.
func (v *ChainValidator) IsValidChain() bool {
	chain := make([]*x509.Certificate, len(v.peerCerts))
	for i, cert := range v.peerCerts {
		chain[len(chain)-1-i] = cert
	}

	for _, cert := range chain {
		for _, anchor := range v.anchors {
			if err := cert.CheckSignatureFrom(anchor); err == nil {
				return true
			}
		}
	}

	v.verifyErrors = append(v.verifyErrors, fmt.Sprintf(
		"no certificate in the peer chain is issued by an authorized CA: authorized issuers [%s], peer chain [%s]",
		subjects(v.anchors), subjects(chain)))
	return false
}

func (v *ChainValidator) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

func subjects(certs []*x509.Certificate) string {
	subs := make([]string, len(certs))
	for i, cert := range certs {
		subs[i] = cert.Subject.String()
	}
	return strings.Join(subs, "; ")
}
