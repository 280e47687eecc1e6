// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tls

import (
	"errors"
	"reflect"
	"strings"

	"github.com/absmach/certgate/pkg/tls/anchors"
	"github.com/absmach/certgate/pkg/tls/verifier"
	"github.com/absmach/certgate/pkg/tls/verifier/authz"
	"github.com/absmach/certgate/pkg/tls/verifier/crl"
	"github.com/absmach/certgate/pkg/tls/verifier/ocsp"
	"github.com/caarlos0/env/v11"
)

// ErrInvalidCertVerification represents an error during the cert
// verification method loading. Supported are OCSP and CRL methods.
var ErrInvalidCertVerification = errors.New("invalid certificate verification method")

type verification int

const (
	OCSP verification = iota + 1
	CRL
)

// newVerifiers builds the verifier chain attached to every mTLS
// handshake. The issuer-authorization chain walk always runs first;
// CERT_VERIFICATION_METHODS enables revocation checks on top of it. CRL
// verification is only requested when a revocation list has actually
// been retrieved. The returned bool reports whether any revocation
// method is in effect.
func newVerifiers(opts env.Options, a *anchors.Provider) ([]verifier.Verifier, bool, error) {
	if opts.FuncMap == nil {
		opts.FuncMap = make(map[reflect.Type]env.ParserFunc)
	}
	opts.FuncMap[reflect.TypeOf(make([]verification, 0))] = envParseSliceVerification
	opts.FuncMap[reflect.TypeOf(new(verification))] = envParseVerification

	var c struct {
		Verifications []verification `env:"CERT_VERIFICATION_METHODS" envDefault:""`
	}
	if err := env.ParseWithOptions(&c, opts); err != nil {
		return nil, false, err
	}

	walker := authz.NewWalker(a.Certificates(), nil)
	vms := []verifier.Verifier{walker}
	revocation := false

	for _, v := range c.Verifications {
		switch v {
		case CRL:
			p, err := crl.New(opts)
			if err != nil {
				return nil, false, err
			}
			if !p.Available() {
				continue
			}
			current, err := p.Current()
			if err != nil {
				return nil, false, err
			}
			walker = authz.NewWalker(a.Certificates(), current)
			vms[0] = walker
			revocation = true
		case OCSP:
			vm, err := ocsp.New(opts)
			if err != nil {
				return nil, false, err
			}
			vms = append(vms, vm)
			revocation = true
		default:
			return nil, false, ErrInvalidCertVerification
		}
	}

	return vms, revocation, nil
}

func parseVerification(v string) (verification, error) {
	v = strings.ToUpper(strings.TrimSpace(v))
	switch v {
	case "OCSP":
		return OCSP, nil
	case "CRL":
		return CRL, nil
	default:
		return 0, ErrInvalidCertVerification
	}
}

func envParseSliceVerification(v string) (interface{}, error) {
	var vms []verification
	v = strings.TrimSpace(v)
	if v == "" {
		return vms, nil
	}
	for _, vm := range strings.Split(v, ",") {
		parsed, err := parseVerification(vm)
		if err != nil {
			return nil, err
		}
		vms = append(vms, parsed)
	}
	return vms, nil
}

func envParseVerification(v string) (interface{}, error) {
	return parseVerification(v)
}
