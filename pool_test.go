package rdns

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPoolCandidatesFallbackFamilies(t *testing.T) {
	// No mechanisms registered, candidates come from the hardcoded
	// fallbacks only
	pool := NewServerPool()

	tests := []struct {
		name string
		ipv  IPVersion
		want []bool // Is4() per candidate, in order
	}{
		{"v4v6", IPv4v6, []bool{true, false}},
		{"v6v4", IPv6v4, []bool{false, true}},
		{"v4only", IPv4Only, []bool{true}},
		{"v6only", IPv6Only, []bool{false}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			candidates := pool.Candidates(test.ipv)
			require.Len(t, candidates, len(test.want))
			for i, v4 := range test.want {
				require.Equal(t, v4, candidates[i].Is4())
			}
		})
	}
}

func TestPoolFirstMechanismWins(t *testing.T) {
	pool := NewServerPool(
		StaticLookup{Addresses: []string{"10.0.0.2"}, Rank: 2},
		StaticLookup{Addresses: []string{"10.0.0.1"}, Rank: 1},
	)
	pool.SetFallbackServers(nil, nil)

	// Registration order doesn't matter, the lower priority value wins and
	// its servers are not merged with anything else
	candidates := pool.Candidates(IPv4v6)
	require.Equal(t, []netip.Addr{netip.MustParseAddr("10.0.0.1")}, candidates)
}

func TestPoolEmptyMechanismFallsThrough(t *testing.T) {
	pool := NewServerPool(
		StaticLookup{Rank: 1},
		StaticLookup{Addresses: []string{"10.0.0.2"}, Rank: 2},
	)
	pool.SetFallbackServers(nil, nil)

	candidates := pool.Candidates(IPv4v6)
	require.Equal(t, []netip.Addr{netip.MustParseAddr("10.0.0.2")}, candidates)
}

func TestPoolDiscoveryBeforeFallbacks(t *testing.T) {
	pool := NewServerPool(StaticLookup{Addresses: []string{"10.0.0.1"}})
	pool.SetFallbackServers(
		[]netip.Addr{netip.MustParseAddr("192.0.2.53")},
		nil,
	)

	candidates := pool.Candidates(IPv4Only)
	require.Equal(t, []netip.Addr{
		netip.MustParseAddr("10.0.0.1"),
		netip.MustParseAddr("192.0.2.53"),
	}, candidates)
}

func TestPoolUnparsableServersSkipped(t *testing.T) {
	pool := NewServerPool(StaticLookup{Addresses: []string{"not-an-address", "10.0.0.1"}})
	pool.SetFallbackServers(nil, nil)

	candidates := pool.Candidates(IPv4v6)
	require.Equal(t, []netip.Addr{netip.MustParseAddr("10.0.0.1")}, candidates)
}

func TestPoolRemoveLookupMechanism(t *testing.T) {
	m := StaticLookup{Addresses: []string{"10.0.0.1"}, Rank: 1}
	pool := NewServerPool(m)
	pool.SetFallbackServers(nil, nil)

	require.True(t, pool.RemoveLookupMechanism(m))
	require.False(t, pool.RemoveLookupMechanism(m))
	require.Empty(t, pool.Candidates(IPv4v6))
}

func TestPoolMarkNonRecursive(t *testing.T) {
	pool := NewServerPool()
	addr := netip.MustParseAddr("10.0.0.1")

	require.False(t, pool.IsNonRecursive(addr))
	require.True(t, pool.MarkNonRecursive(addr))
	require.True(t, pool.IsNonRecursive(addr))

	// Marking again reports it was already known
	require.False(t, pool.MarkNonRecursive(addr))
	require.True(t, pool.IsNonRecursive(addr))
}
