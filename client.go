package rdns

import (
	"net/netip"

	"github.com/folbricht/reliabledns/dnssec"
	"github.com/miekg/dns"
)

// Mode selects which resolution strategies a Client performs.
type Mode int

const (
	// ModeBoth delegates to recursive upstream servers first and falls
	// back to walking the hierarchy when that fails.
	ModeBoth Mode = iota

	// ModeRecursiveOnly delegates all queries to recursive upstream
	// servers.
	ModeRecursiveOnly

	// ModeIterativeOnly walks the delegation hierarchy directly.
	ModeIterativeOnly
)

// Client answers DNS queries recursively, iteratively, or with a
// recursive-first combination of both, depending on its mode.
type Client struct {
	id         string
	opt        ClientOptions
	dispatcher *Dispatcher
	iterative  *IterativeResolver
	validator  *dnssec.Validator
	cache      Cache
}

var _ Resolver = &Client{}

// ClientOptions contain options common to all resolution strategies of a
// Client.
type ClientOptions struct {
	Mode Mode

	// Step budget per iterative resolution. Defaults to DefaultMaxSteps.
	MaxSteps int

	// Request DNSSEC records along with every query.
	AskForDnssec bool

	// Return responses from upstream servers regardless of their response
	// code instead of filtering by status.
	DisableResultFilter bool

	// Address family preference for upstream and name servers.
	IPVersion IPVersion

	// Pool holding server discovery state and the non-recursive blacklist.
	// Pools are typically shared process-wide; a default pool is created
	// when nil.
	Pool *ServerPool

	// Transport used for all exchanges. Defaults to UDPTransport.
	Transport Transport

	// Response cache. A Client used as the DNSSEC fallback of another must
	// not share its cache with it, see ReliableResolver.
	Cache Cache

	// RootServers overrides the root hints of the iterative strategy.
	RootServers []netip.Addr
}

// NewClient returns a new instance of a Client.
func NewClient(id string, opt ClientOptions) *Client {
	pool := opt.Pool
	if pool == nil {
		pool = DefaultServerPool()
	}
	c := &Client{
		id:    id,
		opt:   opt,
		cache: opt.Cache,
	}
	c.dispatcher = NewDispatcher(id+".dispatch", pool, opt.Transport, DispatcherOptions{
		DisableResultFilter: opt.DisableResultFilter,
		IPVersion:           opt.IPVersion,
		Cache:               opt.Cache,
	})
	c.iterative = NewIterativeResolver(id+".iterative", opt.Transport, IterativeOptions{
		MaxSteps:     opt.MaxSteps,
		IPVersion:    opt.IPVersion,
		AskForDnssec: opt.AskForDnssec,
		Cache:        opt.Cache,
		RootServers:  opt.RootServers,
	})
	c.validator = dnssec.NewValidator(dnssec.WithResolver(func(q *dns.Msg) (*dns.Msg, error) {
		a, err := c.iterative.Resolve(q)
		if err == nil && a == nil {
			return nil, ErrNoAnswer
		}
		return a, err
	}))
	return c
}

// Resolve a DNS query using the strategies selected by the client's mode. A
// nil response with a nil error means no reachable server produced a usable
// answer.
func (c *Client) Resolve(q *dns.Msg) (*dns.Msg, error) {
	rq := q.Copy()
	if c.opt.AskForDnssec {
		setDNSSECdo(rq)
	}
	switch c.opt.Mode {
	case ModeRecursiveOnly:
		return c.resolveRecursive(rq)
	case ModeIterativeOnly:
		return c.iterative.Resolve(rq)
	default:
		a, err := c.resolveRecursive(rq)
		if err == nil && a != nil {
			return a, nil
		}
		logger(c.id, q).WithError(err).Debug("recursive resolution failed, walking the hierarchy")
		return c.iterative.Resolve(rq)
	}
}

// ResolveDNSSEC resolves a query with DNSSEC requested and reports whether
// the answer is authenticated. Recursive answers are authenticated when the
// upstream sets the AD flag, iterative answers are validated locally. An
// unauthenticated answer is not an error, the reasons on the result say why
// validation fell short.
func (c *Client) ResolveDNSSEC(q *dns.Msg) (*ResolverResult, error) {
	rq := setDNSSECdo(q.Copy())

	if c.opt.Mode == ModeRecursiveOnly {
		a, err := c.resolveRecursive(rq)
		if err != nil || a == nil {
			return nil, err
		}
		result := &ResolverResult{Question: question(q), Msg: a}
		if !a.AuthenticatedData {
			result.Reasons = []UnverifiedReason{{Kind: ReasonUpstreamNotValidating}}
		}
		return result, nil
	}

	a, err := c.Resolve(rq)
	if err != nil || a == nil {
		return nil, err
	}
	result := &ResolverResult{Question: question(q), Msg: a}
	if err := c.validator.Validate(a); err != nil {
		result.Reasons = []UnverifiedReason{reasonFromError(err)}
	}
	a.AuthenticatedData = len(result.Reasons) == 0
	return result, nil
}

func (c *Client) String() string {
	return c.id
}

func (c *Client) resolveRecursive(q *dns.Msg) (*dns.Msg, error) {
	rq := q.Copy()
	rq.RecursionDesired = true
	a, err := c.dispatcher.Resolve(rq)
	if err != nil || a == nil {
		return a, err
	}
	if c.cache != nil {
		c.cache.Put(rq, a)
	}
	return a, nil
}
