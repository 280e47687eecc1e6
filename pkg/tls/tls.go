// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tls

import (
	"crypto/tls"
	"errors"
)

var errLoadCerts = errors.New("failed to load certificates")

type Security int

const (
	WithoutTLS Security = iota + 1
	WithTLS
	WithmTLS
	WithmTLSVerify
)

func (s Security) String() string {
	switch s {
	case WithTLS:
		return "with TLS"
	case WithmTLS:
		return "with mTLS"
	case WithmTLSVerify:
		return "with mTLS and verification of client certificate revocation status"
	case WithoutTLS:
		fallthrough
	default:
		return "without TLS"
	}
}

// Load returns a TLS configuration usable in TLS servers, or nil when
// no certificate is configured. When trust anchors are present the
// returned configuration requires client certificates and registers the
// composed peer validator as the verify callback.
func (c *Config) Load() (*tls.Config, Security, error) {
	if c.CertFile == "" && c.KeyFile == "" {
		return nil, WithoutTLS, nil
	}

	certificate, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, WithoutTLS, errors.Join(errLoadCerts, err)
	}
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{certificate},
	}
	secure := WithTLS

	if c.anchors != nil && !c.anchors.Empty() {
		tlsConfig.ClientCAs = c.anchors.Pool()
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
		tlsConfig.VerifyPeerCertificate = c.Validator
		secure = WithmTLS
		if c.revocation {
			secure = WithmTLSVerify
		}
	}
	return tlsConfig, secure, nil
}

// SecurityStatus describes a loaded TLS configuration for log lines.
func SecurityStatus(c *tls.Config) string {
	if c == nil {
		return WithoutTLS.String()
	}
	if c.ClientAuth == tls.RequireAndVerifyClientCert {
		if c.VerifyPeerCertificate != nil {
			return WithmTLSVerify.String()
		}
		return WithmTLS.String()
	}
	return WithTLS.String()
}
