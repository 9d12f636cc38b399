package rdns

import (
	"net/netip"

	"github.com/hashicorp/go-multierror"
	"github.com/miekg/dns"
)

// ResolverResult is the outcome of a DNSSEC-aware resolution. An empty set
// of reasons means the full authentication chain validated.
type ResolverResult struct {
	Question dns.Question
	Msg      *dns.Msg
	Reasons  []UnverifiedReason
}

// Authentic reports whether the result carries a fully validated answer.
func (r *ResolverResult) Authentic() bool {
	return r != nil && r.Msg != nil && len(r.Reasons) == 0
}

// Narrow interface over Client used by ReliableResolver, lets tests swap in
// doubles for either strategy.
type dnssecResolver interface {
	ResolveDNSSEC(q *dns.Msg) (*ResolverResult, error)
}

// ReliableResolver reconciles two independent resolution strategies to
// return DNSSEC authenticated answers whenever cryptographically possible.
// A recursive upstream is asked first, and trusted only if it proves
// validation by setting the AD flag. Otherwise the hierarchy is walked
// iteratively and signatures are validated locally.
//
// The two strategies deliberately do not share a cache: a cached
// unauthenticated recursive answer must never suppress a fresh, locally
// validated iterative attempt, and vice versa. This is a correctness
// requirement, not an optimization.
type ReliableResolver struct {
	id        string
	recursive dnssecResolver
	iterative dnssecResolver
}

var _ Resolver = &ReliableResolver{}

// ReliableResolverOptions contain options applied to both underlying
// resolution strategies.
type ReliableResolverOptions struct {
	// Step budget per iterative resolution. Defaults to DefaultMaxSteps.
	MaxSteps int

	// Address family preference for upstream and name servers.
	IPVersion IPVersion

	// Pool holding server discovery state and the non-recursive blacklist,
	// shared by both strategies. A default pool is created when nil.
	Pool *ServerPool

	// Transport used for all exchanges. Defaults to UDPTransport.
	Transport Transport

	// NewCache returns a fresh cache instance. It is called once per
	// strategy so the two never share entries. Defaults to a MemoryCache
	// holding 1024 responses.
	NewCache func() Cache

	// RootServers overrides the root hints of the iterative strategy.
	RootServers []netip.Addr
}

// NewReliableResolver returns a new instance of a ReliableResolver.
func NewReliableResolver(id string, opt ReliableResolverOptions) *ReliableResolver {
	newCache := opt.NewCache
	if newCache == nil {
		newCache = func() Cache { return NewMemoryCache(1024) }
	}
	pool := opt.Pool
	if pool == nil {
		pool = DefaultServerPool()
	}
	base := ClientOptions{
		MaxSteps:     opt.MaxSteps,
		AskForDnssec: true,
		IPVersion:    opt.IPVersion,
		Pool:         pool,
		Transport:    opt.Transport,
		RootServers:  opt.RootServers,
	}

	recursive := base
	recursive.Mode = ModeRecursiveOnly
	recursive.Cache = newCache()

	iterative := base
	iterative.Mode = ModeIterativeOnly
	iterative.Cache = newCache()

	return &ReliableResolver{
		id:        id,
		recursive: NewClient(id+".recursive", recursive),
		iterative: NewClient(id+".iterative", iterative),
	}
}

// ResolveAuthenticated resolves a question, preferring answers whose DNSSEC
// authentication chain is proven. The recursive result is returned when the
// upstream authenticated it; in every other case the hierarchy is walked
// and the locally validated result is returned, even when its own
// validation fell short (the reasons say why). An error is only returned
// when neither strategy produced any response at all.
func (r *ReliableResolver) ResolveAuthenticated(q *dns.Msg) (*ResolverResult, error) {
	log := logger(r.id, q)

	recursive, recErr := r.recursive.ResolveDNSSEC(q)
	if recursive.Authentic() {
		return recursive, nil
	}
	if recErr != nil {
		log.WithError(recErr).Debug("recursive resolution failed, walking the hierarchy")
	} else {
		log.Debug("recursive answer not authenticated, walking the hierarchy")
	}

	iterative, itErr := r.iterative.ResolveDNSSEC(q)
	if iterative != nil && iterative.Msg != nil {
		return iterative, nil
	}
	if recursive != nil && recursive.Msg != nil {
		// The iterative attempt came up empty, an unauthenticated
		// recursive answer is still a usable response.
		return recursive, nil
	}

	var errs *multierror.Error
	errs = multierror.Append(errs, recErr, itErr)
	return nil, errs.ErrorOrNil()
}

// Resolve implements Resolver, accepting unauthenticated answers.
func (r *ReliableResolver) Resolve(q *dns.Msg) (*dns.Msg, error) {
	result, err := r.ResolveAuthenticated(q)
	if err != nil || result == nil {
		return nil, err
	}
	return result.Msg, nil
}

func (r *ReliableResolver) String() string {
	return r.id
}
