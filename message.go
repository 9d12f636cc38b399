package rdns

import (
	"strconv"

	"github.com/miekg/dns"
)

// Return the query name from a DNS query.
func qName(q *dns.Msg) string {
	if len(q.Question) == 0 {
		return ""
	}
	return q.Question[0].Name
}

// Returns the string representation of the query type.
func qType(q *dns.Msg) string {
	if len(q.Question) == 0 {
		return ""
	}
	return dns.TypeToString[q.Question[0].Qtype]
}

// Return the result code name from a DNS response.
func rCode(r *dns.Msg) string {
	if result, ok := dns.RcodeToString[r.Rcode]; ok {
		return result
	}
	return strconv.Itoa(r.Rcode)
}

// Return the first question of a message. The zero value is returned for
// messages without a question section.
func question(q *dns.Msg) dns.Question {
	if len(q.Question) == 0 {
		return dns.Question{}
	}
	return q.Question[0]
}

// Upgrade a query to request DNSSEC records by setting the DO bit on the
// EDNS0 OPT record, adding one if there isn't one already.
func setDNSSECdo(q *dns.Msg) *dns.Msg {
	if q.IsEdns0() == nil {
		q.SetEdns0(4096, true)
	}
	q.IsEdns0().SetDo()
	return q
}
