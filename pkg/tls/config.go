// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tls

import (
	"github.com/absmach/certgate/pkg/tls/anchors"
	"github.com/absmach/certgate/pkg/tls/verifier"
	"github.com/caarlos0/env/v11"
)

type Config struct {
	CertFile string `env:"CERT_FILE" envDefault:""`
	KeyFile  string `env:"KEY_FILE"  envDefault:""`

	// Validator is the composed verify callback registered on the
	// server TLS configuration when mTLS is in effect.
	Validator verifier.Validator

	anchors    *anchors.Provider
	revocation bool
}

func NewConfig(opts env.Options) (Config, error) {
	c := Config{}
	if err := env.ParseWithOptions(&c, opts); err != nil {
		return Config{}, err
	}

	a, err := anchors.New(opts)
	if err != nil {
		return Config{}, err
	}
	c.anchors = a

	verifiers, revocation, err := newVerifiers(opts, a)
	if err != nil {
		return Config{}, err
	}
	c.Validator = verifier.NewValidator(verifiers)
	c.revocation = revocation

	return c, nil
}

// Anchors exposes the trust-anchor provider backing this configuration.
func (c *Config) Anchors() *anchors.Provider {
	return c.anchors
}
