package rdns

import (
	"fmt"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

// Response to q with a single A record of the given TTL.
func testAnswer(q *dns.Msg, ttl uint32) *dns.Msg {
	a := new(dns.Msg)
	a.SetReply(q)
	a.RecursionAvailable = true
	rr, _ := dns.NewRR(fmt.Sprintf("%s %d IN A 192.0.2.10", qName(q), ttl))
	a.Answer = []dns.RR{rr}
	return a
}

func TestCacheHitCopiesID(t *testing.T) {
	c := NewMemoryCache(16)

	q := new(dns.Msg)
	q.SetQuestion("example.com.", dns.TypeA)
	c.Put(q, testAnswer(q, 300))

	q2 := new(dns.Msg)
	q2.SetQuestion("example.com.", dns.TypeA)
	q2.Id = 4711

	a := c.Get(q2)
	require.NotNil(t, a)
	require.Equal(t, uint16(4711), a.Id)
	require.Len(t, a.Answer, 1)

	// The returned message is a copy, mutations must not leak back
	a.Answer = nil
	require.Len(t, c.Get(q2).Answer, 1)
}

func TestCacheSeparatesDNSSECQueries(t *testing.T) {
	c := NewMemoryCache(16)

	q := new(dns.Msg)
	q.SetQuestion("example.com.", dns.TypeA)
	c.Put(q, testAnswer(q, 300))

	// A plain cached answer must not satisfy a query asking for DNSSEC
	// records
	dq := new(dns.Msg)
	dq.SetQuestion("example.com.", dns.TypeA)
	setDNSSECdo(dq)
	require.Nil(t, c.Get(dq))

	// Both variants can be cached side by side
	signed := testAnswer(dq, 300)
	sig := &dns.RRSIG{
		Hdr:         dns.RR_Header{Name: "example.com.", Rrtype: dns.TypeRRSIG, Class: dns.ClassINET, Ttl: 300},
		TypeCovered: dns.TypeA,
		Algorithm:   dns.ECDSAP256SHA256,
		SignerName:  "example.com.",
	}
	signed.Answer = append(signed.Answer, sig)
	c.Put(dq, signed)

	require.Len(t, c.Get(dq).Answer, 2)
	require.Len(t, c.Get(q).Answer, 1)
}

func TestCacheExpiry(t *testing.T) {
	c := NewMemoryCache(16)
	clock := time.Now()
	c.now = func() time.Time { return clock }

	q := new(dns.Msg)
	q.SetQuestion("example.com.", dns.TypeA)
	c.Put(q, testAnswer(q, 300))

	clock = clock.Add(299 * time.Second)
	require.NotNil(t, c.Get(q))

	clock = clock.Add(2 * time.Second)
	require.Nil(t, c.Get(q))
}

func TestCacheLowestTTLWins(t *testing.T) {
	c := NewMemoryCache(16)
	clock := time.Now()
	c.now = func() time.Time { return clock }

	q := new(dns.Msg)
	q.SetQuestion("example.com.", dns.TypeA)
	a := testAnswer(q, 300)
	rr, _ := dns.NewRR("example.com. 10 IN A 192.0.2.11")
	a.Answer = append(a.Answer, rr)
	c.Put(q, a)

	clock = clock.Add(11 * time.Second)
	require.Nil(t, c.Get(q))
}

func TestCacheNegativeTTL(t *testing.T) {
	c := NewMemoryCache(16)
	clock := time.Now()
	c.now = func() time.Time { return clock }

	q := new(dns.Msg)
	q.SetQuestion("doesnotexist.example.com.", dns.TypeA)
	a := new(dns.Msg)
	a.SetReply(q)
	a.Rcode = dns.RcodeNameError
	c.Put(q, a)

	clock = clock.Add(59 * time.Second)
	require.NotNil(t, c.Get(q))

	clock = clock.Add(2 * time.Second)
	require.Nil(t, c.Get(q))
}

func TestCacheEviction(t *testing.T) {
	c := NewMemoryCache(2)

	q1 := new(dns.Msg)
	q1.SetQuestion("one.example.com.", dns.TypeA)
	q2 := new(dns.Msg)
	q2.SetQuestion("two.example.com.", dns.TypeA)
	q3 := new(dns.Msg)
	q3.SetQuestion("three.example.com.", dns.TypeA)

	c.Put(q1, testAnswer(q1, 300))
	c.Put(q2, testAnswer(q2, 300))

	// Touch q1 so q2 becomes the least-recently used entry
	require.NotNil(t, c.Get(q1))

	c.Put(q3, testAnswer(q3, 300))
	require.NotNil(t, c.Get(q1))
	require.Nil(t, c.Get(q2))
	require.NotNil(t, c.Get(q3))
}
