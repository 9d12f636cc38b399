package rdns

import (
	"github.com/folbricht/reliabledns/dnssec"
	"github.com/pkg/errors"
)

// ReasonKind classifies why a response could not be fully DNSSEC validated.
type ReasonKind int

const (
	ReasonLookupFailure ReasonKind = iota
	ReasonNotSigned
	ReasonNoKey
	ReasonSignatureInvalid
	ReasonSignatureExpired
	ReasonDSMismatch
	ReasonNoTrustAnchor
	ReasonInsecureDelegation
	ReasonUpstreamNotValidating
)

func (k ReasonKind) String() string {
	switch k {
	case ReasonNotSigned:
		return "answer not signed"
	case ReasonNoKey:
		return "no matching key"
	case ReasonSignatureInvalid:
		return "signature invalid"
	case ReasonSignatureExpired:
		return "signature expired"
	case ReasonDSMismatch:
		return "key doesn't match DS"
	case ReasonNoTrustAnchor:
		return "no trust anchor"
	case ReasonInsecureDelegation:
		return "insecure delegation"
	case ReasonUpstreamNotValidating:
		return "upstream did not authenticate"
	default:
		return "lookup failure"
	}
}

// UnverifiedReason explains why a resolution result could not be fully
// authenticated. Reasons are informational, it is up to the caller whether
// an unauthenticated answer is acceptable.
type UnverifiedReason struct {
	Kind   ReasonKind
	Detail string
}

func (r UnverifiedReason) String() string {
	if r.Detail == "" {
		return r.Kind.String()
	}
	return r.Kind.String() + ": " + r.Detail
}

// Map a validation error from the dnssec package to a structured reason.
func reasonFromError(err error) UnverifiedReason {
	kind := ReasonLookupFailure
	switch {
	case errors.Is(err, dnssec.ErrNoSignature):
		kind = ReasonNotSigned
	case errors.Is(err, dnssec.ErrNoKey):
		kind = ReasonNoKey
	case errors.Is(err, dnssec.ErrSignatureExpired):
		kind = ReasonSignatureExpired
	case errors.Is(err, dnssec.ErrSignatureInvalid):
		kind = ReasonSignatureInvalid
	case errors.Is(err, dnssec.ErrDSMismatch):
		kind = ReasonDSMismatch
	case errors.Is(err, dnssec.ErrNoTrustAnchor):
		kind = ReasonNoTrustAnchor
	case errors.Is(err, dnssec.ErrInsecureDelegation):
		kind = ReasonInsecureDelegation
	}
	return UnverifiedReason{Kind: kind, Detail: err.Error()}
}
