// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tls_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	stdtls "crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	cgtls "github.com/absmach/certgate/pkg/tls"
	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateDummyCert(t *testing.T) ([]byte, []byte) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	cert := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"Test Org"},
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	certBytes, err := x509.CreateCertificate(rand.Reader, cert, cert, &priv.PublicKey, priv)
	require.NoError(t, err)

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certBytes})
	keyBytes, err := x509.MarshalECPrivateKey(priv)
	require.NoError(t, err)
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes})

	return certPEM, keyPEM
}

func writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	return path
}

func TestLoad(t *testing.T) {
	certPEM, keyPEM := generateDummyCert(t)
	certFile := writeFile(t, "cert.pem", certPEM)
	keyFile := writeFile(t, "key.pem", keyPEM)
	caFile := writeFile(t, "ca.pem", certPEM)

	tests := []struct {
		name        string
		environment map[string]string
		security    cgtls.Security
		wantErr     bool
	}{
		{
			name:        "no TLS configured",
			environment: map[string]string{},
			security:    cgtls.WithoutTLS,
		},
		{
			name: "TLS without client CA",
			environment: map[string]string{
				"CERT_FILE": certFile,
				"KEY_FILE":  keyFile,
			},
			security: cgtls.WithTLS,
		},
		{
			name: "mTLS with trust anchors",
			environment: map[string]string{
				"CERT_FILE": certFile,
				"KEY_FILE":  keyFile,
				"CA_FILE":   caFile,
			},
			security: cgtls.WithmTLS,
		},
		{
			name: "invalid cert file",
			environment: map[string]string{
				"CERT_FILE": "invalid_cert.pem",
				"KEY_FILE":  keyFile,
			},
			wantErr: true,
		},
		{
			name: "invalid CA file",
			environment: map[string]string{
				"CERT_FILE": certFile,
				"KEY_FILE":  keyFile,
				"CA_FILE":   "invalid_ca.pem",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := cgtls.NewConfig(env.Options{Environment: tt.environment})
			if tt.wantErr && err != nil {
				return
			}
			require.NoError(t, err)

			tlsConfig, security, err := cfg.Load()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.security, security)

			if security == cgtls.WithoutTLS {
				assert.Nil(t, tlsConfig)
				return
			}
			require.NotNil(t, tlsConfig)
			if security >= cgtls.WithmTLS {
				assert.Equal(t, stdtls.RequireAndVerifyClientCert, tlsConfig.ClientAuth)
				assert.NotNil(t, tlsConfig.VerifyPeerCertificate)
			}
		})
	}
}

func TestNewConfigInvalidVerificationMethod(t *testing.T) {
	_, err := cgtls.NewConfig(env.Options{Environment: map[string]string{
		"CERT_VERIFICATION_METHODS": "DNSSEC",
	}})
	assert.ErrorIs(t, err, cgtls.ErrInvalidCertVerification)
}

func TestSecurityString(t *testing.T) {
	tests := []struct {
		security cgtls.Security
		want     string
	}{
		{cgtls.WithoutTLS, "without TLS"},
		{cgtls.WithTLS, "with TLS"},
		{cgtls.WithmTLS, "with mTLS"},
		{cgtls.WithmTLSVerify, "with mTLS and verification of client certificate revocation status"},
		{cgtls.Security(0), "without TLS"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.security.String())
	}
}
