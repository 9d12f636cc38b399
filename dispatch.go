package rdns

import (
	"github.com/hashicorp/go-multierror"
	"github.com/miekg/dns"
)

// Dispatcher is a resolver that fans a query out across candidate recursive
// servers from a ServerPool, one at a time and in candidate order, until one
// returns a usable response. Servers answering without the "recursion
// available" flag are blacklisted in the pool and never asked again.
//
// A failed candidate never aborts the dispatch. Only when every candidate is
// exhausted does the outcome become final: an aggregated error if at least
// one exchange failed at the transport level, or a nil response with a nil
// error when every reachable server explicitly declined to answer usefully.
type Dispatcher struct {
	id        string
	pool      *ServerPool
	transport Transport
	opt       DispatcherOptions
}

var _ Resolver = &Dispatcher{}

// DispatcherOptions contain dispatch-specific options.
type DispatcherOptions struct {
	// Return the first response regardless of its response code instead of
	// filtering by status.
	DisableResultFilter bool

	// Address family preference for upstream servers.
	IPVersion IPVersion

	// Optional response cache, consulted before any server is contacted.
	// Dispatch results are not written back here, that is up to the caller.
	Cache Cache
}

// NewDispatcher returns a new instance of a Dispatcher. A default
// UDPTransport is used if transport is nil.
func NewDispatcher(id string, pool *ServerPool, transport Transport, opt DispatcherOptions) *Dispatcher {
	if transport == nil {
		transport = UDPTransport{}
	}
	return &Dispatcher{id: id, pool: pool, transport: transport, opt: opt}
}

// Resolve a DNS query using the first usable candidate server.
func (d *Dispatcher) Resolve(q *dns.Msg) (*dns.Msg, error) {
	log := logger(d.id, q)

	if d.opt.Cache != nil {
		if a := d.opt.Cache.Get(q); a != nil {
			log.Debug("cache-hit")
			return a, nil
		}
	}

	var errs *multierror.Error
	for _, addr := range d.pool.Candidates(d.opt.IPVersion) {
		if d.pool.IsNonRecursive(addr) {
			log.WithField("server", addr).Debug("skipping server marked as non-recursive")
			continue
		}

		a, err := d.transport.Send(q, addr)
		if err != nil {
			log.WithField("server", addr).WithError(err).Debug("exchange failed, trying next server")
			errs = multierror.Append(errs, TransportError{Addr: addr, Err: err})
			continue
		}
		if a == nil {
			continue
		}

		if !a.RecursionAvailable {
			if d.pool.MarkNonRecursive(addr) {
				log.WithField("server", addr).Warn("server responded without the RA flag set and is not suitable for resolution, blacklisting")
			}
			continue
		}

		if d.opt.DisableResultFilter {
			return a, nil
		}

		switch a.Rcode {
		case dns.RcodeSuccess, dns.RcodeNameError:
			return a, nil
		default:
			log.WithField("server", addr).WithField("rcode", rCode(a)).Warn("unusable response code, trying next server")
		}
	}
	return nil, errs.ErrorOrNil()
}

func (d *Dispatcher) String() string {
	return d.id
}
