package rdns

import (
	"fmt"
	"net/netip"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

// Referral response delegating zone to a name server, optionally with a glue
// address in the additional section.
func testReferral(q *dns.Msg, zone, ns, glue string) *dns.Msg {
	a := new(dns.Msg)
	a.SetReply(q)
	rr, _ := dns.NewRR(fmt.Sprintf("%s 300 IN NS %s", zone, ns))
	a.Ns = []dns.RR{rr}
	if glue != "" {
		g, _ := dns.NewRR(fmt.Sprintf("%s 300 IN A %s", ns, glue))
		a.Extra = []dns.RR{g}
	}
	return a
}

func testAuthoritative(q *dns.Msg, ip string) *dns.Msg {
	a := new(dns.Msg)
	a.SetReply(q)
	a.Authoritative = true
	rr, _ := dns.NewRR(fmt.Sprintf("%s 300 IN A %s", qName(q), ip))
	a.Answer = []dns.RR{rr}
	return a
}

func TestIterativeWalk(t *testing.T) {
	var (
		root = netip.MustParseAddr("192.0.2.1")
		tld  = netip.MustParseAddr("192.0.2.2")
		auth = netip.MustParseAddr("192.0.2.3")
	)
	tr := &testTransport{handler: func(q *dns.Msg, addr netip.Addr) (*dns.Msg, error) {
		switch addr {
		case root:
			return testReferral(q, "com.", "ns.nic.com.", "192.0.2.2"), nil
		case tld:
			return testReferral(q, "example.com.", "ns.example.com.", "192.0.2.3"), nil
		default:
			return testAuthoritative(q, "192.0.2.10"), nil
		}
	}}
	r := NewIterativeResolver("test-iterative", tr, IterativeOptions{
		RootServers: []netip.Addr{root},
	})

	q := new(dns.Msg)
	q.SetQuestion("www.example.com.", dns.TypeA)

	a, err := r.Resolve(q)
	require.NoError(t, err)
	require.NotNil(t, a)
	require.True(t, a.Authoritative)
	require.Len(t, a.Answer, 1)
	require.Equal(t, []netip.Addr{root, tld, auth}, tr.sent())
}

func TestIterativeLoopDetected(t *testing.T) {
	var (
		root  = netip.MustParseAddr("192.0.2.1")
		other = netip.MustParseAddr("192.0.2.2")
	)
	// Two servers referring to each other for the same question
	tr := &testTransport{handler: func(q *dns.Msg, addr netip.Addr) (*dns.Msg, error) {
		if addr == root {
			return testReferral(q, "example.com.", "ns1.example.com.", "192.0.2.2"), nil
		}
		return testReferral(q, "example.com.", "ns2.example.com.", "192.0.2.1"), nil
	}}
	r := NewIterativeResolver("test-iterative", tr, IterativeOptions{
		RootServers: []netip.Addr{root},
	})

	q := new(dns.Msg)
	q.SetQuestion("www.example.com.", dns.TypeA)

	a, err := r.Resolve(q)
	require.Nil(t, a)
	var loopErr LoopError
	require.ErrorAs(t, err, &loopErr)
	require.Equal(t, root, loopErr.Addr)
	require.Equal(t, []netip.Addr{root, other}, tr.sent())
}

func TestIterativeStepLimit(t *testing.T) {
	// Every server refers to the next one in 10.0.0.0/24, the walk never
	// terminates on its own
	tr := &testTransport{handler: func(q *dns.Msg, addr netip.Addr) (*dns.Msg, error) {
		next := addr.As4()
		next[3]++
		return testReferral(q, "example.com.", "ns.example.com.", netip.AddrFrom4(next).String()), nil
	}}
	r := NewIterativeResolver("test-iterative", tr, IterativeOptions{
		MaxSteps:    3,
		RootServers: []netip.Addr{netip.MustParseAddr("10.0.0.1")},
	})

	q := new(dns.Msg)
	q.SetQuestion("www.example.com.", dns.TypeA)

	a, err := r.Resolve(q)
	require.Nil(t, a)
	var limitErr StepLimitError
	require.ErrorAs(t, err, &limitErr)
	require.Equal(t, 3, limitErr.Limit)
	require.Len(t, tr.sent(), 3)
}

func TestIterativeCNAME(t *testing.T) {
	root := netip.MustParseAddr("192.0.2.1")
	// One server authoritative for everything. The alias answer only holds
	// the CNAME record, the target must be resolved in a second walk.
	tr := &testTransport{handler: func(q *dns.Msg, addr netip.Addr) (*dns.Msg, error) {
		if qName(q) == "alias.example.com." {
			a := new(dns.Msg)
			a.SetReply(q)
			a.Authoritative = true
			rr, _ := dns.NewRR("alias.example.com. 300 IN CNAME target.example.com.")
			a.Answer = []dns.RR{rr}
			return a, nil
		}
		return testAuthoritative(q, "192.0.2.10"), nil
	}}
	r := NewIterativeResolver("test-iterative", tr, IterativeOptions{
		RootServers: []netip.Addr{root},
	})

	q := new(dns.Msg)
	q.SetQuestion("alias.example.com.", dns.TypeA)

	a, err := r.Resolve(q)
	require.NoError(t, err)
	require.NotNil(t, a)
	require.Len(t, a.Answer, 2)
	require.Equal(t, dns.TypeCNAME, a.Answer[0].Header().Rrtype)
	require.Equal(t, dns.TypeA, a.Answer[1].Header().Rrtype)
}

func TestIterativeCNAMEChainBounded(t *testing.T) {
	root := netip.MustParseAddr("192.0.2.1")
	// A malicious server aliases every name to a fresh one, the chase can
	// never finish on its own
	var served int
	tr := &testTransport{handler: func(q *dns.Msg, addr netip.Addr) (*dns.Msg, error) {
		served++
		a := new(dns.Msg)
		a.SetReply(q)
		a.Authoritative = true
		rr, _ := dns.NewRR(fmt.Sprintf("%s 300 IN CNAME step%d.example.com.", qName(q), served))
		a.Answer = []dns.RR{rr}
		return a, nil
	}}
	r := NewIterativeResolver("test-iterative", tr, IterativeOptions{
		MaxSteps:    3,
		RootServers: []netip.Addr{root},
	})

	q := new(dns.Msg)
	q.SetQuestion("alias.example.com.", dns.TypeA)

	// Every restart consumes a step, the walk ends in a step limit error
	// rather than a partial answer
	a, err := r.Resolve(q)
	require.Nil(t, a)
	var limitErr StepLimitError
	require.ErrorAs(t, err, &limitErr)
	require.Equal(t, 3, limitErr.Limit)
	require.Len(t, tr.sent(), 3)
}

func TestIterativeGluelessDelegation(t *testing.T) {
	var (
		root = netip.MustParseAddr("192.0.2.1")
		auth = netip.MustParseAddr("192.0.2.3")
	)
	tr := &testTransport{handler: func(q *dns.Msg, addr netip.Addr) (*dns.Msg, error) {
		if addr == root {
			// The name server's own address is served by the root
			if qName(q) == "ns.example.net." {
				return testAuthoritative(q, "192.0.2.3"), nil
			}
			// Delegation without glue, the name server is in another zone
			return testReferral(q, "example.com.", "ns.example.net.", ""), nil
		}
		return testAuthoritative(q, "192.0.2.10"), nil
	}}
	r := NewIterativeResolver("test-iterative", tr, IterativeOptions{
		RootServers: []netip.Addr{root},
	})

	q := new(dns.Msg)
	q.SetQuestion("www.example.com.", dns.TypeA)

	a, err := r.Resolve(q)
	require.NoError(t, err)
	require.NotNil(t, a)
	require.Len(t, a.Answer, 1)
	require.Equal(t, []netip.Addr{root, root, auth}, tr.sent())
}

func TestIterativeNXDomain(t *testing.T) {
	root := netip.MustParseAddr("192.0.2.1")
	tr := &testTransport{handler: func(q *dns.Msg, addr netip.Addr) (*dns.Msg, error) {
		a := new(dns.Msg)
		a.SetReply(q)
		a.Rcode = dns.RcodeNameError
		return a, nil
	}}
	r := NewIterativeResolver("test-iterative", tr, IterativeOptions{
		RootServers: []netip.Addr{root},
	})

	q := new(dns.Msg)
	q.SetQuestion("doesnotexist.example.com.", dns.TypeA)

	a, err := r.Resolve(q)
	require.NoError(t, err)
	require.NotNil(t, a)
	require.Equal(t, dns.RcodeNameError, a.Rcode)
}

func TestIterativeCaches(t *testing.T) {
	root := netip.MustParseAddr("192.0.2.1")
	tr := &testTransport{handler: func(q *dns.Msg, addr netip.Addr) (*dns.Msg, error) {
		return testAuthoritative(q, "192.0.2.10"), nil
	}}
	r := NewIterativeResolver("test-iterative", tr, IterativeOptions{
		Cache:       NewMemoryCache(16),
		RootServers: []netip.Addr{root},
	})

	q := new(dns.Msg)
	q.SetQuestion("www.example.com.", dns.TypeA)

	_, err := r.Resolve(q)
	require.NoError(t, err)
	require.Len(t, tr.sent(), 1)

	a, err := r.Resolve(q)
	require.NoError(t, err)
	require.NotNil(t, a)
	require.Len(t, tr.sent(), 1)
}
