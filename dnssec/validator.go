// Package dnssec validates DNSSEC signatures in DNS responses by building a
// chain of trust from a configured trust anchor down to the signer of each
// RRset. It is transport-agnostic: record lookups needed during validation
// (DNSKEY, DS) go through a caller-provided resolver function.
package dnssec

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNoSignature        = errors.New("dnssec: no RRSIG for RRset")
	ErrNoKey              = errors.New("dnssec: no matching DNSKEY")
	ErrSignatureInvalid   = errors.New("dnssec: signature verification failed")
	ErrSignatureExpired   = errors.New("dnssec: RRSIG outside its validity period")
	ErrDSMismatch         = errors.New("dnssec: DNSKEY doesn't match DS")
	ErrNoTrustAnchor      = errors.New("dnssec: no trust anchor")
	ErrInsecureDelegation = errors.New("dnssec: insecure delegation")
)

// The IANA root KSKs (KSK-2017 and KSK-2024) as DS digests, installed as
// default trust anchors.
var rootAnchors = []struct {
	tag        uint16
	alg        uint8
	digestType uint8
	digest     string
}{
	{20326, dns.RSASHA256, dns.SHA256, "E06D44B80B8F1D39A95C0B0D7C65D08458E880409BBC683457104237C7F8EC8D"},
	{38696, dns.RSASHA256, dns.SHA256, "683D2D0ACB8C9B712A1948B27F741219298D0A450D612C483AF444A4C0FB2B16"},
}

// Validator checks the authentication chain of DNS responses. It is safe
// for concurrent use.
type Validator struct {
	ks *keystore

	now      func() time.Time
	resolver func(q *dns.Msg) (*dns.Msg, error)
}

type ValidatorOption func(*Validator)

// WithTime allows tests to set the current time. Defaults to time.Now.
func WithTime(f func() time.Time) ValidatorOption {
	return func(v *Validator) {
		v.now = f
	}
}

// WithResolver sets the function the validator uses to look up DNSKEY and
// DS records as needed. It is strongly recommended to set this. Defaults to
// plain UDP with Cloudflare DNS.
func WithResolver(f func(q *dns.Msg) (*dns.Msg, error)) ValidatorOption {
	return func(v *Validator) {
		v.resolver = f
	}
}

func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{
		now: time.Now,
		resolver: func(q *dns.Msg) (*dns.Msg, error) {
			return dns.Exchange(q, "1.1.1.1:53")
		},
	}
	for _, opt := range opts {
		opt(v)
	}
	v.ks = newKeystore(v.now)
	for _, a := range rootAnchors {
		v.SetAnchor(".", a.tag, a.alg, a.digestType, a.digest)
	}
	return v
}

// SetAnchor adds a trust anchor for the given owner, typically "." for the
// root key. The anchor is stored as a permanent (max TTL) DS record.
func (v *Validator) SetAnchor(owner string, tag uint16, alg, digestType uint8, digest string) {
	ds := &dns.DS{
		Hdr: dns.RR_Header{
			Name:   dns.CanonicalName(owner),
			Rrtype: dns.TypeDS,
			Class:  dns.ClassINET,
			Ttl:    math.MaxUint32,
		},
		KeyTag:     tag,
		Algorithm:  alg,
		DigestType: digestType,
		Digest:     strings.ToUpper(digest),
	}
	v.ks.addDS(owner, ds)
}

// Validate checks the DNSSEC signatures in a DNS response. It groups the
// answer section into RRsets, finds covering RRSIGs, and validates each
// signed RRset against a chain of trust. A nil return means every RRset in
// the answer validated (or the answer was empty).
func (v *Validator) Validate(answer *dns.Msg) error {
	if len(answer.Answer) == 0 {
		return nil
	}

	rrsets, sigs := groupRRsByTypeAndName(answer.Answer)

	for key, rrset := range rrsets {
		sig, ok := sigs[key]
		if !ok {
			// An unsigned RRset is acceptable only below an insecure
			// delegation, i.e. when the parent holds no DS for the zone.
			if err := v.checkInsecureDelegation(rrset[0].Header().Name); err != nil {
				return err
			}
			return fmt.Errorf("%w: %s/%s", ErrNoSignature, key.name, dns.TypeToString[key.rrtype])
		}
		if err := v.validateRRset(rrset, sig); err != nil {
			return err
		}
	}
	return nil
}

// Reports whether a zone is an insecure delegation, i.e. the parent zone
// holds no DS record for it. Insecure delegations return nil.
func (v *Validator) checkInsecureDelegation(zone string) error {
	if zone == "." {
		return nil
	}
	ds, _, err := v.lookupDS(zone)
	if err != nil {
		return err
	}
	if len(ds) == 0 {
		return fmt.Errorf("%w: %s", ErrInsecureDelegation, zone)
	}
	return nil
}

// Validate an RRset against its RRSIG by building a chain of trust to the
// signer's DNSKEY.
func (v *Validator) validateRRset(rrset []dns.RR, sig *dns.RRSIG) error {
	zsk, _, err := v.trustedKeys(sig.SignerName)
	if err != nil {
		return err
	}
	return v.verifyRRSIG(sig, zsk, rrset)
}

// trustedKeys returns the validated ZSKs and KSKs for a zone, building the
// chain of trust from the trust anchor down as needed. Validated keys are
// cached for their TTL.
func (v *Validator) trustedKeys(zone string) (zsk, ksk []*dns.DNSKEY, err error) {
	zone = dns.CanonicalName(zone)

	if zsk, ksk := v.ks.getDNSKEY(zone); zsk != nil || ksk != nil {
		return zsk, ksk, nil
	}

	delegation, err := v.queryDelegation(zone)
	if err != nil {
		return nil, nil, err
	}
	if len(delegation.ksk) == 0 {
		return nil, nil, fmt.Errorf("%w: no KSK for %s", ErrNoKey, zone)
	}

	// The DNSKEY RRset must carry a self-signature by one of the zone's KSKs.
	allKeys := make([]dns.RR, 0, len(delegation.zsk)+len(delegation.ksk))
	for _, k := range delegation.zsk {
		allKeys = append(allKeys, k)
	}
	for _, k := range delegation.ksk {
		allKeys = append(allKeys, k)
	}
	var keySig *dns.RRSIG
	for _, sig := range delegation.keySigs {
		if dns.CanonicalName(sig.SignerName) == zone && sig.TypeCovered == dns.TypeDNSKEY {
			keySig = sig
			break
		}
	}
	if keySig == nil {
		return nil, nil, fmt.Errorf("%w: no RRSIG covering DNSKEY for %s", ErrNoSignature, zone)
	}
	if err := v.verifyRRSIG(keySig, delegation.ksk, allKeys); err != nil {
		return nil, nil, fmt.Errorf("DNSKEY self-signature for %s: %w", zone, err)
	}

	if zone == "." {
		// The root KSK must match a trust anchor.
		ds := v.ks.getDS(".")
		if len(ds) == 0 {
			return nil, nil, ErrNoTrustAnchor
		}
		if err := verifyDNSKEYWithDS(delegation.ksk, ds); err != nil {
			return nil, nil, fmt.Errorf("root KSK doesn't match trust anchor: %w", err)
		}
	} else {
		// Any other zone must be vouched for by a DS record in the parent,
		// itself signed with the parent's validated ZSK.
		if len(delegation.ds) == 0 {
			return nil, nil, fmt.Errorf("%w: %s", ErrInsecureDelegation, zone)
		}
		parentZSK, _, err := v.trustedKeys(parentZone(zone))
		if err != nil {
			return nil, nil, err
		}
		if len(delegation.dsSigs) > 0 {
			dsRRset := make([]dns.RR, len(delegation.ds))
			for i, d := range delegation.ds {
				dsRRset[i] = d
			}
			var verified bool
			for _, dsSig := range delegation.dsSigs {
				if err := v.verifyRRSIG(dsSig, parentZSK, dsRRset); err == nil {
					verified = true
					break
				}
			}
			if !verified {
				return nil, nil, fmt.Errorf("%w: DS RRSIG for %s", ErrSignatureInvalid, zone)
			}
		}
		if err := verifyDNSKEYWithDS(delegation.ksk, delegation.ds); err != nil {
			return nil, nil, fmt.Errorf("KSK for %s: %w", zone, err)
		}
	}

	allDNSKEYs := append(append([]*dns.DNSKEY{}, delegation.zsk...), delegation.ksk...)
	v.ks.addDNSKEY(zone, allDNSKEYs)

	return delegation.zsk, delegation.ksk, nil
}

// The key material of one zone as fetched from the network.
type delegation struct {
	zsk, ksk []*dns.DNSKEY
	keySigs  []*dns.RRSIG
	ds       []*dns.DS
	dsSigs   []*dns.RRSIG
}

// Fetch the DNSKEY and DS records of a zone. The two lookups are
// independent and run concurrently.
func (v *Validator) queryDelegation(zone string) (*delegation, error) {
	d := new(delegation)

	var g errgroup.Group
	g.Go(func() error {
		var err error
		d.zsk, d.ksk, d.keySigs, err = v.lookupDNSKEY(zone)
		return err
	})
	g.Go(func() error {
		if zone == "." {
			return nil
		}
		var err error
		d.ds, d.dsSigs, err = v.lookupDS(zone)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return d, nil
}

func (v *Validator) lookupDNSKEY(name string) (zsk, ksk []*dns.DNSKEY, sigs []*dns.RRSIG, err error) {
	a, err := v.lookup(name, dns.TypeDNSKEY)
	if err != nil {
		return nil, nil, nil, err
	}
	if a.Rcode != dns.RcodeSuccess {
		return nil, nil, nil, fmt.Errorf("DNSKEY lookup for %q failed: rcode %s", name, dns.RcodeToString[a.Rcode])
	}
	for _, rr := range a.Answer {
		switch r := rr.(type) {
		case *dns.DNSKEY:
			switch r.Flags {
			case 257:
				ksk = append(ksk, r)
			case 256:
				zsk = append(zsk, r)
			}
		case *dns.RRSIG:
			sigs = append(sigs, r)
		}
	}
	return
}

func (v *Validator) lookupDS(name string) ([]*dns.DS, []*dns.RRSIG, error) {
	a, err := v.lookup(name, dns.TypeDS)
	if err != nil {
		return nil, nil, err
	}
	if a.Rcode != dns.RcodeSuccess {
		// NXDOMAIN and friends mean no DS, an insecure delegation
		return nil, nil, nil
	}
	var (
		ds   []*dns.DS
		sigs []*dns.RRSIG
	)
	for _, rr := range a.Answer {
		switch r := rr.(type) {
		case *dns.DS:
			ds = append(ds, r)
		case *dns.RRSIG:
			if r.TypeCovered == dns.TypeDS {
				sigs = append(sigs, r)
			}
		}
	}
	return ds, sigs, nil
}

func (v *Validator) lookup(name string, qtype uint16) (*dns.Msg, error) {
	q := new(dns.Msg)
	q.SetQuestion(dns.CanonicalName(name), qtype)
	q.SetEdns0(4096, true)
	q.CheckingDisabled = true
	return v.resolver(q)
}

// Attempt to verify an RRSIG against a set of keys and an RRset. Succeeds
// on the first key that verifies. The signature must be inside its validity
// period at the time of the check.
func (v *Validator) verifyRRSIG(sig *dns.RRSIG, keys []*dns.DNSKEY, rrset []dns.RR) error {
	if !sig.ValidityPeriod(v.now()) {
		return fmt.Errorf("%w: %s", ErrSignatureExpired, sig.Hdr.Name)
	}
	matching := findKeysByTag(keys, sig.KeyTag, sig.Algorithm)
	if len(matching) == 0 {
		return fmt.Errorf("%w: tag=%d alg=%d", ErrNoKey, sig.KeyTag, sig.Algorithm)
	}
	var lastErr error
	for _, key := range matching {
		if err := sig.Verify(key, rrset); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return fmt.Errorf("%w: %v", ErrSignatureInvalid, lastErr)
}

// Verify that at least one of the KSKs matches one of the DS records by
// computing the DS digest from the key and comparing it.
func verifyDNSKEYWithDS(ksk []*dns.DNSKEY, ds []*dns.DS) error {
	for _, d := range ds {
		for _, key := range ksk {
			computed := key.ToDS(d.DigestType)
			if computed == nil {
				continue
			}
			if strings.EqualFold(computed.Digest, d.Digest) {
				return nil
			}
		}
	}
	return ErrDSMismatch
}

// Returns DNSKEY records matching the given key tag and algorithm.
func findKeysByTag(keys []*dns.DNSKEY, tag uint16, alg uint8) []*dns.DNSKEY {
	var result []*dns.DNSKEY
	for _, key := range keys {
		if key.KeyTag() == tag && key.Algorithm == alg {
			result = append(result, key)
		}
	}
	return result
}

// Returns the parent zone of the given zone name.
// "example.com." → "com.", "com." → "."
func parentZone(name string) string {
	name = dns.CanonicalName(name)
	if name == "." {
		return "."
	}
	_, parent, found := strings.Cut(name, ".")
	if !found || parent == "" {
		return "."
	}
	return parent
}

// rrsetKey identifies an RRset by name and type.
type rrsetKey struct {
	name   string
	rrtype uint16
}

// Group the RRs of a section into RRsets keyed by (canonical name, type)
// and extract covering RRSIGs.
func groupRRsByTypeAndName(section []dns.RR) (map[rrsetKey][]dns.RR, map[rrsetKey]*dns.RRSIG) {
	rrsets := make(map[rrsetKey][]dns.RR)
	sigs := make(map[rrsetKey]*dns.RRSIG)

	for _, rr := range section {
		if sig, ok := rr.(*dns.RRSIG); ok {
			key := rrsetKey{
				name:   dns.CanonicalName(sig.Hdr.Name),
				rrtype: sig.TypeCovered,
			}
			if _, exists := sigs[key]; !exists {
				sigs[key] = sig
			}
			continue
		}
		hdr := rr.Header()
		key := rrsetKey{
			name:   dns.CanonicalName(hdr.Name),
			rrtype: hdr.Rrtype,
		}
		rrsets[key] = append(rrsets[key], rr)
	}

	return rrsets, sigs
}
