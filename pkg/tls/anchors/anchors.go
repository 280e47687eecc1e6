// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package anchors loads the CA certificates that are authorized to
// issue peer certificates. The loaded set is immutable and may be
// shared across every handshake the gateway serves.
package anchors

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"

	"github.com/caarlos0/env/v11"
)

var (
	errLoadCAFile  = errors.New("failed to load CA file")
	errParseCACert = errors.New("failed to parse CA certificate")
	errNoCACerts   = errors.New("CA file contains no certificates")
)

type config struct {
	CAFile string `env:"CA_FILE" envDefault:""`
}

// Provider holds the trust anchors parsed from a combined CA file.
type Provider struct {
	caFile string
	certs  []*x509.Certificate
	pool   *x509.CertPool
}

// New parses the configured CA file into a Provider. An empty CA_FILE
// yields a provider with no anchors, which authorizes nothing.
func New(opts env.Options) (*Provider, error) {
	var c config
	if err := env.ParseWithOptions(&c, opts); err != nil {
		return nil, err
	}
	if c.CAFile == "" {
		return &Provider{pool: x509.NewCertPool()}, nil
	}
	return Load(c.CAFile)
}

// Load parses every PEM certificate in the given combined CA file.
func Load(caFile string) (*Provider, error) {
	raw, err := os.ReadFile(caFile)
	if err != nil {
		return nil, errors.Join(errLoadCAFile, err)
	}

	p := &Provider{caFile: caFile, pool: x509.NewCertPool()}
	for len(raw) > 0 {
		var block *pem.Block
		block, raw = pem.Decode(raw)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, errors.Join(errParseCACert, err)
		}
		p.certs = append(p.certs, cert)
		p.pool.AddCert(cert)
	}
	if len(p.certs) == 0 {
		return nil, errNoCACerts
	}
	return p, nil
}

// Certificates returns the authorized issuer certificates. Callers must
// not mutate the returned slice.
func (p *Provider) Certificates() []*x509.Certificate {
	return p.certs
}

// Pool returns the anchors as a certificate pool for tls.Config use.
func (p *Provider) Pool() *x509.CertPool {
	return p.pool
}

// CAFile returns the path the anchors were loaded from.
func (p *Provider) CAFile() string {
	return p.caFile
}

// Empty reports whether no anchors are configured.
func (p *Provider) Empty() bool {
	return len(p.certs) == 0
}
