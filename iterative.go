package rdns

import (
	"net"
	"net/netip"
	"strings"

	"github.com/miekg/dns"
	"github.com/pkg/errors"
)

// IterativeResolver answers queries by walking the delegation hierarchy
// directly: it asks a root server, follows referrals through the TLD
// servers down to an authoritative server, and returns its answer. Every
// top-level resolution is bounded by its own RecursionGuard, so cyclic or
// excessively deep delegations fail with LoopError or StepLimitError
// instead of running forever.
type IterativeResolver struct {
	id        string
	transport Transport
	opt       IterativeOptions
}

var _ Resolver = &IterativeResolver{}

// IterativeOptions contain options for the iterative resolution strategy.
type IterativeOptions struct {
	// Maximum number of steps for one resolution. Defaults to
	// DefaultMaxSteps.
	MaxSteps int

	// Address family preference for name servers.
	IPVersion IPVersion

	// Request DNSSEC records along with every query.
	AskForDnssec bool

	// Optional cache for final answers. Intermediate referrals are not
	// cached.
	Cache Cache

	// RootServers overrides the built-in root server hints. Useful for
	// resolving within a private root, and for tests.
	RootServers []netip.Addr
}

// NewIterativeResolver returns a new instance of an IterativeResolver. A
// default UDPTransport is used if transport is nil.
func NewIterativeResolver(id string, transport Transport, opt IterativeOptions) *IterativeResolver {
	if transport == nil {
		transport = UDPTransport{}
	}
	return &IterativeResolver{id: id, transport: transport, opt: opt}
}

// Resolve a DNS query by walking the hierarchy from the root.
func (r *IterativeResolver) Resolve(q *dns.Msg) (*dns.Msg, error) {
	log := logger(r.id, q)

	oq := q.Copy()
	oq.RecursionDesired = false
	if r.opt.AskForDnssec {
		setDNSSECdo(oq)
	}

	if r.opt.Cache != nil {
		if a := r.opt.Cache.Get(oq); a != nil {
			log.Debug("cache-hit")
			return a, nil
		}
	}

	guard := NewRecursionGuard(r.opt.MaxSteps)
	a, err := r.resolveFromRoots(guard, oq)
	if err != nil {
		return nil, err
	}
	if a != nil && r.opt.Cache != nil {
		r.opt.Cache.Put(oq, a)
	}
	return a, nil
}

func (r *IterativeResolver) String() string {
	return r.id
}

// Try the root servers in order until one leads to an answer. Asking the
// same question of different roots is always admitted by the guard, only
// guard violations abort the walk.
func (r *IterativeResolver) resolveFromRoots(guard *RecursionGuard, q *dns.Msg) (*dns.Msg, error) {
	var lastErr error
	for _, root := range r.roots() {
		a, err := r.query(guard, q, root)
		if err != nil {
			if isGuardError(err) {
				return nil, err
			}
			lastErr = err
			continue
		}
		if a != nil {
			return a, nil
		}
	}
	return nil, lastErr
}

// Send the query to one name server and follow whatever it returns: an
// authoritative answer ends the walk, a referral continues it one level
// down.
func (r *IterativeResolver) query(guard *RecursionGuard, q *dns.Msg, addr netip.Addr) (*dns.Msg, error) {
	if err := guard.Admit(addr, question(q)); err != nil {
		return nil, err
	}
	logger(r.id, q).WithField("server", addr).Debug("querying name server")
	a, err := r.transport.Send(q, addr)
	if err != nil {
		return nil, TransportError{Addr: addr, Err: err}
	}
	if a == nil {
		return nil, nil
	}
	if len(a.Answer) > 0 || a.Authoritative || a.Rcode == dns.RcodeNameError {
		return r.followCNAME(guard, q, a)
	}
	return r.followReferral(guard, q, a, addr)
}

// An answer that only aliases the name restarts resolution at the root for
// the target. Restarts draw on the same step budget as everything else, a
// server emitting an endless alias chain runs the guard dry instead of the
// resolver.
func (r *IterativeResolver) followCNAME(guard *RecursionGuard, q *dns.Msg, a *dns.Msg) (*dns.Msg, error) {
	qu := question(q)
	var target string
	for _, rr := range a.Answer {
		if rr.Header().Rrtype == qu.Qtype {
			return a, nil
		}
		if cname, ok := rr.(*dns.CNAME); ok {
			target = cname.Target
		}
	}
	if target == "" || qu.Qtype == dns.TypeCNAME {
		return a, nil
	}

	logger(r.id, q).WithField("target", target).Debug("following cname")
	cq := q.Copy()
	cq.SetQuestion(dns.Fqdn(target), qu.Qtype)
	cq.RecursionDesired = false
	ca, err := r.resolveFromRoots(guard, cq)
	if err != nil {
		if isGuardError(err) {
			return nil, err
		}
		return a, nil
	}
	if ca == nil {
		return a, nil
	}
	merged := ca.Copy()
	merged.SetReply(q)
	merged.Rcode = ca.Rcode
	merged.Authoritative = ca.Authoritative
	merged.Answer = append(append([]dns.RR{}, a.Answer...), ca.Answer...)
	merged.Ns = ca.Ns
	merged.Extra = ca.Extra
	return merged, nil
}

// Follow the name servers in the authority section of a referral. Glue
// addresses from the additional section are used when present, glueless
// delegations trigger a sub-resolution for the name server's address first.
// Per-server failures are soft, the next name server is tried.
func (r *IterativeResolver) followReferral(guard *RecursionGuard, q *dns.Msg, a *dns.Msg, from netip.Addr) (*dns.Msg, error) {
	log := logger(r.id, q)
	var lastErr error
	for _, rr := range a.Ns {
		ns, ok := rr.(*dns.NS)
		if !ok {
			continue
		}
		addrs := glueFor(a, ns.Ns, r.opt.IPVersion)
		if len(addrs) == 0 {
			log.WithField("ns", ns.Ns).Debug("glueless delegation, resolving name server address")
			var err error
			addrs, err = r.resolveNSAddr(guard, ns.Ns)
			if err != nil {
				return nil, err
			}
		}
		for _, addr := range addrs {
			res, err := r.query(guard, q, addr)
			if err != nil {
				if isGuardError(err) {
					return nil, err
				}
				log.WithField("server", addr).WithError(err).Debug("name server failed, trying next")
				lastErr = err
				continue
			}
			if res != nil {
				return res, nil
			}
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.Errorf("no usable referral from %s for '%s'", from, qName(q))
}

// Resolve the address of a glueless name server with the same guard. Only
// guard violations are returned as errors, anything else yields an empty
// address list.
func (r *IterativeResolver) resolveNSAddr(guard *RecursionGuard, name string) ([]netip.Addr, error) {
	var addrs []netip.Addr
	for _, qtype := range addrQueryTypes(r.opt.IPVersion) {
		nq := new(dns.Msg)
		nq.SetQuestion(dns.Fqdn(name), qtype)
		nq.RecursionDesired = false
		a, err := r.resolveFromRoots(guard, nq)
		if err != nil {
			if isGuardError(err) {
				return nil, err
			}
			continue
		}
		if a == nil {
			continue
		}
		for _, rr := range a.Answer {
			if addr, ok := addrFromRR(rr); ok {
				addrs = append(addrs, addr)
			}
		}
		if len(addrs) > 0 {
			break
		}
	}
	return addrs, nil
}

func (r *IterativeResolver) roots() []netip.Addr {
	if len(r.opt.RootServers) > 0 {
		return r.opt.RootServers
	}
	return rootHints(r.opt.IPVersion)
}

// Collect glue addresses for a name server from the additional section,
// filtered and ordered by address family preference.
func glueFor(a *dns.Msg, nsName string, ipv IPVersion) []netip.Addr {
	var v4, v6 []netip.Addr
	for _, rr := range a.Extra {
		if !strings.EqualFold(rr.Header().Name, nsName) {
			continue
		}
		addr, ok := addrFromRR(rr)
		if !ok {
			continue
		}
		if addr.Is4() {
			v4 = append(v4, addr)
		} else {
			v6 = append(v6, addr)
		}
	}
	switch ipv {
	case IPv6v4:
		return append(v6, v4...)
	case IPv4Only:
		return v4
	case IPv6Only:
		return v6
	default:
		return append(v4, v6...)
	}
}

// The address record types to ask for when resolving a name server's
// address, in preference order.
func addrQueryTypes(ipv IPVersion) []uint16 {
	switch ipv {
	case IPv6v4:
		return []uint16{dns.TypeAAAA, dns.TypeA}
	case IPv4Only:
		return []uint16{dns.TypeA}
	case IPv6Only:
		return []uint16{dns.TypeAAAA}
	default:
		return []uint16{dns.TypeA, dns.TypeAAAA}
	}
}

func addrFromRR(rr dns.RR) (netip.Addr, bool) {
	var ip net.IP
	switch t := rr.(type) {
	case *dns.A:
		ip = t.A
	case *dns.AAAA:
		ip = t.AAAA
	default:
		return netip.Addr{}, false
	}
	addr, ok := netip.AddrFromSlice(ip)
	return addr.Unmap(), ok
}

func isGuardError(err error) bool {
	var loop LoopError
	var limit StepLimitError
	return errors.As(err, &loop) || errors.As(err, &limit)
}
