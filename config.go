// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package certgate

import (
	"crypto/tls"

	cgtls "github.com/absmach/certgate/pkg/tls"
	"github.com/caarlos0/env/v11"
)

type Config struct {
	Address    string `env:"ADDRESS"     envDefault:""`
	PathPrefix string `env:"PREFIX_PATH" envDefault:"/"`
	Target     string `env:"TARGET"      envDefault:""`
	TLSConfig  *tls.Config
}

func NewConfig(opts env.Options) (Config, error) {
	c := Config{}
	if err := env.ParseWithOptions(&c, opts); err != nil {
		return Config{}, err
	}

	tlsConfig, err := cgtls.NewConfig(opts)
	if err != nil {
		return Config{}, err
	}
	c.TLSConfig, _, err = tlsConfig.Load()
	if err != nil {
		return Config{}, err
	}
	return c, nil
}
