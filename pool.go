package rdns

import (
	"math/rand"
	"net/netip"
	"sort"
	"sync"
)

// Well-known public resolvers used as a last resort when discovery finds no
// usable server. One of each family is picked at random per dispatch.
var (
	defaultFallbackV4 = []netip.Addr{
		netip.MustParseAddr("8.8.8.8"),
		netip.MustParseAddr("1.1.1.1"),
		netip.MustParseAddr("9.9.9.9"),
	}
	defaultFallbackV6 = []netip.Addr{
		netip.MustParseAddr("2001:4860:4860::8888"),
		netip.MustParseAddr("2606:4700:4700::1111"),
		netip.MustParseAddr("2620:fe::fe"),
	}
)

// IPVersion controls which address families are used when selecting
// upstream or name servers, and in which order.
type IPVersion int

const (
	IPv4v6 IPVersion = iota // IPv4 first, then IPv6
	IPv6v4                  // IPv6 first, then IPv4
	IPv4Only
	IPv6Only
)

// ServerPool owns the process-wide state used to assemble candidate server
// lists: the ordered registry of lookup mechanisms, the hardcoded fallback
// servers, and the blacklist of servers known to have answered without the
// "recursion available" flag. The blacklist grows monotonically and is
// never pruned for the life of the pool. A pool is safe for concurrent use
// by any number of dispatches.
type ServerPool struct {
	mu         sync.RWMutex
	mechanisms []ServerLookupMechanism
	nonRA      map[netip.Addr]struct{}
	fallbackV4 []netip.Addr
	fallbackV6 []netip.Addr
}

// NewServerPool returns a pool with the given lookup mechanisms registered
// and the default fallback servers installed.
func NewServerPool(mechanisms ...ServerLookupMechanism) *ServerPool {
	p := &ServerPool{
		nonRA:      make(map[netip.Addr]struct{}),
		fallbackV4: defaultFallbackV4,
		fallbackV6: defaultFallbackV6,
	}
	for _, m := range mechanisms {
		p.AddLookupMechanism(m)
	}
	return p
}

// DefaultServerPool returns a pool with the platform discovery mechanisms
// registered: the environment override first, then resolv.conf.
func DefaultServerPool() *ServerPool {
	return NewServerPool(EnvLookup{}, ResolvConfLookup{})
}

// AddLookupMechanism registers a discovery mechanism with the pool.
// Mechanisms that report themselves unavailable are ignored. The registry
// is kept sorted by ascending priority value.
func (p *ServerPool) AddLookupMechanism(m ServerLookupMechanism) {
	if !m.IsAvailable() {
		Log.WithField("mechanism", m.Name()).Debug("not registering unavailable lookup mechanism")
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mechanisms = append(p.mechanisms, m)
	sort.SliceStable(p.mechanisms, func(i, j int) bool {
		return p.mechanisms[i].Priority() < p.mechanisms[j].Priority()
	})
}

// RemoveLookupMechanism removes a previously registered mechanism, matched
// by name and priority, and reports whether it was present.
func (p *ServerPool) RemoveLookupMechanism(m ServerLookupMechanism) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, registered := range p.mechanisms {
		if registered.Name() == m.Name() && registered.Priority() == m.Priority() {
			p.mechanisms = append(p.mechanisms[:i], p.mechanisms[i+1:]...)
			return true
		}
	}
	return false
}

// SetFallbackServers replaces the hardcoded fallback servers of both
// address families.
func (p *ServerPool) SetFallbackServers(v4, v6 []netip.Addr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fallbackV4 = v4
	p.fallbackV6 = v6
}

// Candidates assembles the ordered candidate list for one dispatch: the
// servers of the first mechanism to discover any, followed by up to two
// hardcoded fallback servers chosen by the address family preference.
func (p *ServerPool) Candidates(ipv IPVersion) []netip.Addr {
	candidates := p.discover()

	var primary, secondary netip.Addr
	switch ipv {
	case IPv4v6:
		primary, secondary = p.randomFallback(false), p.randomFallback(true)
	case IPv6v4:
		primary, secondary = p.randomFallback(true), p.randomFallback(false)
	case IPv4Only:
		primary = p.randomFallback(false)
	case IPv6Only:
		primary = p.randomFallback(true)
	}
	for _, addr := range []netip.Addr{primary, secondary} {
		if addr.IsValid() {
			candidates = append(candidates, addr)
		}
	}
	return candidates
}

// MarkNonRecursive adds addr to the blacklist of servers that do not offer
// recursion, returning true if it wasn't already present.
func (p *ServerPool) MarkNonRecursive(addr netip.Addr) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.nonRA[addr]; ok {
		return false
	}
	p.nonRA[addr] = struct{}{}
	return true
}

// IsNonRecursive reports whether addr is blacklisted.
func (p *ServerPool) IsNonRecursive(addr netip.Addr) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.nonRA[addr]
	return ok
}

// Query the registered mechanisms in priority order and return the servers
// of the first one that discovers any. Entries that don't parse as plain
// addresses are skipped.
func (p *ServerPool) discover() []netip.Addr {
	p.mu.RLock()
	mechanisms := make([]ServerLookupMechanism, len(p.mechanisms))
	copy(mechanisms, p.mechanisms)
	p.mu.RUnlock()

	for _, m := range mechanisms {
		servers, err := m.Servers()
		if err != nil {
			Log.WithError(err).WithField("mechanism", m.Name()).Warn("server lookup failed")
			continue
		}
		if len(servers) == 0 {
			continue
		}
		var addrs []netip.Addr
		for _, s := range servers {
			addr, err := netip.ParseAddr(s)
			if err != nil {
				Log.WithFields(map[string]interface{}{"mechanism": m.Name(), "server": s}).Debug("skipping unparsable server address")
				continue
			}
			addrs = append(addrs, addr.Unmap())
		}
		return addrs
	}
	return nil
}

func (p *ServerPool) randomFallback(v6 bool) netip.Addr {
	p.mu.RLock()
	defer p.mu.RUnlock()
	set := p.fallbackV4
	if v6 {
		set = p.fallbackV6
	}
	if len(set) == 0 {
		return netip.Addr{}
	}
	return set[rand.Intn(len(set))]
}
