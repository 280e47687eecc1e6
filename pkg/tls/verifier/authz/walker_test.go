// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package authz_test

import (
	"crypto/x509"
	"testing"
	"time"

	"github.com/absmach/certgate/pkg/tls/verifier/authz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalkerAcceptsAnchoredChain(t *testing.T) {
	ca := newCA(t, "Walker CA")
	leaf := ca.issue(t, "client", 2)

	w := authz.NewWalker([]*x509.Certificate{ca.cert}, nil)

	assert.NoError(t, w.VerifyRawPeerCertificates([]*x509.Certificate{leaf, ca.cert}))
	assert.NoError(t, w.VerifyVerifiedPeerCertificates([][]*x509.Certificate{{leaf, ca.cert}}))
}

func TestWalkerRejectsUnanchoredChain(t *testing.T) {
	trusted := newCA(t, "Walker Trusted CA")
	rogue := newCA(t, "Walker Rogue CA")
	leaf := rogue.issue(t, "client", 2)

	w := authz.NewWalker([]*x509.Certificate{trusted.cert}, nil)

	err := w.VerifyRawPeerCertificates([]*x509.Certificate{leaf, rogue.cert})
	require.Error(t, err)
	assert.ErrorIs(t, err, authz.ErrPeerRejected)
	assert.Contains(t, err.Error(), "Walker Trusted CA")
	assert.Contains(t, err.Error(), "Walker Rogue CA")
}

func TestWalkerRejectsEmptyChain(t *testing.T) {
	ca := newCA(t, "Walker Empty CA")

	w := authz.NewWalker([]*x509.Certificate{ca.cert}, nil)

	// A zero-length chain reaches the decision point with nothing
	// accumulated and must not be authorized.
	assert.NoError(t, w.VerifyRawPeerCertificates(nil))
	v := authz.New([]*x509.Certificate{ca.cert})
	assert.False(t, v.IsValidChain())
}

func TestWalkerRejectsExpiredCertificate(t *testing.T) {
	ca := newCA(t, "Walker Expiry CA")
	leaf := ca.issue(t, "client", 2)

	w := authz.NewWalker([]*x509.Certificate{ca.cert}, nil)
	w.Now = func() time.Time { return time.Now().Add(48 * time.Hour) }

	err := w.VerifyRawPeerCertificates([]*x509.Certificate{leaf, ca.cert})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
	assert.Contains(t, err.Error(), "client")
}

func TestWalkerRejectsRevokedCertificate(t *testing.T) {
	ca := newCA(t, "Walker Revocation CA")
	leaf := ca.issue(t, "revoked-client", 2)
	crl := ca.revocationList(t, time.Now().Add(-time.Hour), leaf)

	w := authz.NewWalker([]*x509.Certificate{ca.cert}, crl)

	err := w.VerifyRawPeerCertificates([]*x509.Certificate{leaf, ca.cert})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "certificate revoked")
}

func TestWalkerCRLClockSkew(t *testing.T) {
	ca := newCA(t, "Walker Skew CA")
	leaf := ca.issue(t, "client", 2)
	now := time.Now()

	tests := []struct {
		name       string
		thisUpdate time.Time
		wantErr    bool
	}{
		{"last update in tolerable future", now.Add(2 * time.Minute), false},
		{"last update too far in the future", now.Add(10 * time.Minute), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crl := ca.revocationList(t, tt.thisUpdate)
			w := authz.NewWalker([]*x509.Certificate{ca.cert}, crl)
			w.Now = func() time.Time { return now }

			err := w.VerifyRawPeerCertificates([]*x509.Certificate{leaf, ca.cert})
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "Walker Skew CA")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWalkerFreshStatePerHandshake(t *testing.T) {
	trusted := newCA(t, "Walker Fresh CA")
	rogue := newCA(t, "Walker Fresh Rogue CA")
	good := trusted.issue(t, "good-client", 2)
	bad := rogue.issue(t, "bad-client", 3)

	w := authz.NewWalker([]*x509.Certificate{trusted.cert}, nil)

	require.Error(t, w.VerifyRawPeerCertificates([]*x509.Certificate{bad, rogue.cert}))
	// A rejected handshake must not leak state into the next one.
	assert.NoError(t, w.VerifyRawPeerCertificates([]*x509.Certificate{good, trusted.cert}))
}
