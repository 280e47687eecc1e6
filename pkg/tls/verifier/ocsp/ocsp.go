// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package ocsp checks peer certificate revocation status against an
// OCSP responder, taken from the certificate AIA extension or pinned
// through configuration.
package ocsp

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/absmach/certgate/pkg/tls/verifier"
	"github.com/caarlos0/env/v11"
	"golang.org/x/crypto/ocsp"
)

var (
	errParseIssuerCrt    = errors.New("failed to parse issuer certificate")
	errCreateOCSPReq     = errors.New("failed to create OCSP request")
	errCreateOCSPHTTPReq = errors.New("failed to create OCSP HTTP request")
	errParseOCSPURL      = errors.New("failed to parse OCSP server URL")
	errOCSPReq           = errors.New("OCSP request failed")
	errOCSPReadResp      = errors.New("failed to read OCSP response")
	errParseOCSPResp     = errors.New("failed to parse OCSP response for certificate")
	errIssuerCert        = errors.New("issuer certificate is neither present in the chain nor reachable through AIA")
	errNoOCSPURL         = errors.New("no OCSP responder URL in certificate AIA or configuration")
	errOCSPServerFailed  = errors.New("OCSP server failed")
	errOCSPUnknown       = errors.New("OCSP status unknown")
	errCertRevoked       = errors.New("certificate revoked")
	errRetrieveIssuer    = errors.New("failed to retrieve issuer certificate")
	errReadIssuer        = errors.New("failed to read issuer certificate")
	errIssuerPEM         = errors.New("failed to decode issuer certificate PEM")
)

type config struct {
	OCSPDepth        uint    `env:"OCSP_DEPTH"         envDefault:"0"`
	OCSPResponderURL url.URL `env:"OCSP_RESPONDER_URL" envDefault:""`
}

var _ verifier.Verifier = (*config)(nil)

func New(opts env.Options) (verifier.Verifier, error) {
	var c config
	if err := env.ParseWithOptions(&c, opts); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *config) VerifyRawPeerCertificates(peerCertificates []*x509.Certificate) error {
	for i, peerCertificate := range peerCertificates {
		issuer := issuerFromChain(peerCertificate.Issuer, peerCertificates)
		if err := c.ocspVerify(peerCertificate, issuer); err != nil {
			return err
		}
		if i+1 == int(c.OCSPDepth) {
			return nil
		}
	}
	return nil
}

func (c *config) VerifyVerifiedPeerCertificates(verifiedChains [][]*x509.Certificate) error {
	for _, verifiedChain := range verifiedChains {
		for i := range verifiedChain {
			cert := verifiedChain[i]
			issuer := cert
			if i+1 < len(verifiedChain) {
				issuer = verifiedChain[i+1]
			}
			if err := c.ocspVerify(cert, issuer); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *config) ocspVerify(peerCertificate, issuerCert *x509.Certificate) error {
	var err error

	if isRootCA(peerCertificate) {
		issuerCert = peerCertificate
	} else if issuerCert == nil {
		if len(peerCertificate.IssuingCertificateURL) < 1 {
			return fmt.Errorf("%w: common name %s, serial number %x", errIssuerCert, peerCertificate.Subject.CommonName, peerCertificate.SerialNumber)
		}
		issuerCert, err = retrieveIssuingCertificate(peerCertificate.IssuingCertificateURL[0])
		if err != nil {
			return err
		}
	}

	buffer, err := ocsp.CreateRequest(peerCertificate, issuerCert, &ocsp.RequestOptions{Hash: crypto.SHA256})
	if err != nil {
		return errors.Join(errCreateOCSPReq, err)
	}

	ocspURL, ocspURLHost, err := c.responderURL(peerCertificate)
	if err != nil {
		return err
	}

	httpRequest, err := http.NewRequest(http.MethodPost, ocspURL, bytes.NewBuffer(buffer))
	if err != nil {
		return errors.Join(errCreateOCSPHTTPReq, err)
	}
	httpRequest.Header.Add("Content-Type", "application/ocsp-request")
	httpRequest.Header.Add("Accept", "application/ocsp-response")
	httpRequest.Header.Add("host", ocspURLHost)

	httpResponse, err := http.DefaultClient.Do(httpRequest)
	if err != nil {
		return errors.Join(errOCSPReq, err)
	}
	defer httpResponse.Body.Close()
	output, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return errors.Join(errOCSPReadResp, err)
	}
	ocspResponse, err := ocsp.ParseResponseForCert(output, peerCertificate, issuerCert)
	if err != nil {
		return errors.Join(errParseOCSPResp, err)
	}
	switch ocspResponse.Status {
	case ocsp.Good:
		return nil
	case ocsp.Revoked:
		return fmt.Errorf("%w: common name %s, serial number %x revoked at %v", errCertRevoked, peerCertificate.Subject.CommonName, peerCertificate.SerialNumber, ocspResponse.RevokedAt)
	case ocsp.ServerFailed:
		return errOCSPServerFailed
	case ocsp.Unknown:
		fallthrough
	default:
		return errOCSPUnknown
	}
}

func (c *config) responderURL(peerCertificate *x509.Certificate) (ocspURL, host string, err error) {
	if c.OCSPResponderURL.String() != "" {
		return c.OCSPResponderURL.String(), c.OCSPResponderURL.Host, nil
	}
	if len(peerCertificate.OCSPServer) < 1 {
		return "", "", fmt.Errorf("%w: common name %s, serial number %x", errNoOCSPURL, peerCertificate.Subject.CommonName, peerCertificate.SerialNumber)
	}
	parsed, err := url.Parse(peerCertificate.OCSPServer[0])
	if err != nil {
		return "", "", errors.Join(errParseOCSPURL, err)
	}
	return peerCertificate.OCSPServer[0], parsed.Host, nil
}

func issuerFromChain(issuerSubject pkix.Name, certs []*x509.Certificate) *x509.Certificate {
	for _, cert := range certs {
		if cert.Subject.SerialNumber != "" && issuerSubject.SerialNumber != "" && cert.Subject.SerialNumber == issuerSubject.SerialNumber {
			return cert
		}
		if (cert.Subject.SerialNumber == "" || issuerSubject.SerialNumber == "") && cert.Subject.String() == issuerSubject.String() {
			return cert
		}
	}
	return nil
}

func retrieveIssuingCertificate(issuingCertificateURL string) (*x509.Certificate, error) {
	resp, err := http.Get(issuingCertificateURL)
	if err != nil {
		return nil, errors.Join(errRetrieveIssuer, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Join(errReadIssuer, err)
	}

	block, _ := pem.Decode(body)
	if block == nil {
		return nil, errIssuerPEM
	}

	issCert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, errors.Join(errParseIssuerCrt, err)
	}
	return issCert, nil
}

func isRootCA(cert *x509.Certificate) bool {
	if !cert.IsCA {
		return false
	}
	if len(cert.AuthorityKeyId) > 0 && len(cert.SubjectKeyId) > 0 && bytes.Equal(cert.AuthorityKeyId, cert.SubjectKeyId) {
		return true
	}
	return cert.Issuer.String() == cert.Subject.String()
}
