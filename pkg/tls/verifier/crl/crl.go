// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package crl owns the certificate revocation list a gateway verifies
// peers against: retrieval from a distribution point, parsing, freshness
// and signature checks, and the availability test that gates CRL-aware
// verification.
package crl

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/caarlos0/env/v11"
)

var (
	errRetrieveCRL  = errors.New("failed to retrieve CRL")
	errReadCRL      = errors.New("failed to read CRL")
	errParseCRL     = errors.New("failed to parse CRL")
	errCRLSign      = errors.New("failed to verify CRL signature")
	errCRLLoad      = errors.New("failed to load CRL file")
	errCRLStore     = errors.New("failed to store retrieved CRL")
	errCRLIssuer    = errors.New("failed to load CRL issuer cert file")
	errNoCRLFile    = errors.New("no CRL file configured")
	errNoCRLSource  = errors.New("no CRL distribution point configured")
	errParseCrt     = errors.New("failed to parse CRL issuer certificate")
)

type config struct {
	CRLFile               string  `env:"CRL_FILE"                      envDefault:""`
	CRLDistributionPoints url.URL `env:"CRL_DISTRIBUTION_POINTS"       envDefault:""`
	CRLSignCheck          bool    `env:"CRL_SIGN_CHECK"                envDefault:"false"`
	CRLIssuerCertFile     string  `env:"CRL_ISSUER_CERT_FILE"          envDefault:""`
}

// Provider loads and refreshes the revocation list used during peer
// verification. It is read-only once handed to verifiers and safe to
// share across handshakes.
type Provider struct {
	config
}

func New(opts env.Options) (*Provider, error) {
	p := &Provider{}
	if err := env.ParseWithOptions(&p.config, opts); err != nil {
		return nil, err
	}
	return p, nil
}

// Configured reports whether the provider has both a distribution
// point to fetch from and a file path to store to.
func (p *Provider) Configured() bool {
	return p.CRLFile != "" && p.CRLDistributionPoints.String() != ""
}

// Available reports whether a revocation list has actually been
// retrieved: the configured CRL file exists on disk and is non-empty.
// Configuration alone is not enough; verification is only CRL-aware
// once there is a list to check against.
func (p *Provider) Available() bool {
	if p.CRLFile == "" {
		return false
	}
	info, err := os.Stat(p.CRLFile)
	return err == nil && info.Size() > 0
}

// Current parses the CRL file, optionally checking its signature
// against the configured issuer certificate. Freshness is left to the
// chain walk, which owns the clock-skew policy.
func (p *Provider) Current() (*x509.RevocationList, error) {
	if p.CRLFile == "" {
		return nil, errNoCRLFile
	}
	raw, err := os.ReadFile(p.CRLFile)
	if err != nil {
		return nil, errors.Join(errCRLLoad, err)
	}
	if block, _ := pem.Decode(raw); block != nil {
		raw = block.Bytes
	}
	crl, err := x509.ParseRevocationList(raw)
	if err != nil {
		return nil, errors.Join(errParseCRL, err)
	}

	if p.CRLSignCheck {
		issuer, err := p.loadIssuerCert()
		if err != nil {
			return nil, err
		}
		if err := crl.CheckSignatureFrom(issuer); err != nil {
			return nil, errors.Join(errCRLSign, err)
		}
	}
	return crl, nil
}

// Fetch downloads the revocation list from the configured distribution
// point and stores it at the CRL file path, making it Available for
// subsequent handshakes.
func (p *Provider) Fetch(ctx context.Context) error {
	if p.CRLDistributionPoints.String() == "" {
		return errNoCRLSource
	}
	if p.CRLFile == "" {
		return errNoCRLFile
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.CRLDistributionPoints.String(), nil)
	if err != nil {
		return errors.Join(errRetrieveCRL, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return errors.Join(errRetrieveCRL, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Join(errReadCRL, err)
	}

	// Reject garbage before it replaces a working list.
	if _, err := x509.ParseRevocationList(body); err != nil {
		return errors.Join(errParseCRL, err)
	}
	if err := os.WriteFile(p.CRLFile, body, 0o644); err != nil {
		return errors.Join(errCRLStore, err)
	}
	return nil
}

func (p *Provider) loadIssuerCert() (*x509.Certificate, error) {
	raw, err := os.ReadFile(p.CRLIssuerCertFile)
	if err != nil {
		return nil, errors.Join(errCRLIssuer, err)
	}
	if block, _ := pem.Decode(raw); block != nil {
		raw = block.Bytes
	}
	cert, err := x509.ParseCertificate(raw)
	if err != nil {
		return nil, errors.Join(errParseCrt, err)
	}
	return cert, nil
}
