package rdns

import (
	"math/rand"
	"net/netip"
)

// Root name server hints, a.root-servers.net through m.root-servers.net.
var (
	rootServersV4 = []netip.Addr{
		netip.MustParseAddr("198.41.0.4"),
		netip.MustParseAddr("199.9.14.201"),
		netip.MustParseAddr("192.33.4.12"),
		netip.MustParseAddr("199.7.91.13"),
		netip.MustParseAddr("192.203.230.10"),
		netip.MustParseAddr("192.5.5.241"),
		netip.MustParseAddr("192.112.36.4"),
		netip.MustParseAddr("198.97.190.53"),
		netip.MustParseAddr("192.36.148.17"),
		netip.MustParseAddr("192.58.128.30"),
		netip.MustParseAddr("193.0.14.129"),
		netip.MustParseAddr("199.7.83.42"),
		netip.MustParseAddr("202.12.27.33"),
	}
	rootServersV6 = []netip.Addr{
		netip.MustParseAddr("2001:503:ba3e::2:30"),
		netip.MustParseAddr("2001:500:200::b"),
		netip.MustParseAddr("2001:500:2::c"),
		netip.MustParseAddr("2001:500:2d::d"),
		netip.MustParseAddr("2001:500:a8::e"),
		netip.MustParseAddr("2001:500:2f::f"),
		netip.MustParseAddr("2001:500:12::d0d"),
		netip.MustParseAddr("2001:500:1::53"),
		netip.MustParseAddr("2001:7fe::53"),
		netip.MustParseAddr("2001:503:c27::2:30"),
		netip.MustParseAddr("2001:7fd::1"),
		netip.MustParseAddr("2001:500:9f::42"),
		netip.MustParseAddr("2001:dc3::35"),
	}
)

// Returns the root servers to try in order, families filtered and ordered
// by preference. Each family list is rotated by a random offset to spread
// load across the roots.
func rootHints(ipv IPVersion) []netip.Addr {
	v4 := rotated(rootServersV4)
	v6 := rotated(rootServersV6)
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

func rotated(addrs []netip.Addr) []netip.Addr {
	offset := rand.Intn(len(addrs))
	result := make([]netip.Addr, 0, len(addrs))
	result = append(result, addrs[offset:]...)
	return append(result, addrs[:offset]...)
}
