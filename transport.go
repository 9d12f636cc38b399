package rdns

import (
	"net"
	"net/netip"
	"strconv"
	"time"

	"github.com/miekg/dns"
	"github.com/pkg/errors"
)

// Transport sends one DNS query to one server and blocks until a response
// arrives or the exchange fails. Retransmission policy beyond the
// per-exchange timeout lives below this interface.
type Transport interface {
	Send(q *dns.Msg, addr netip.Addr) (*dns.Msg, error)
}

// UDPTransport exchanges queries over UDP and retries over TCP when a
// response comes back truncated.
type UDPTransport struct {
	// Server port. Defaults to 53.
	Port uint16

	// Timeout for one exchange. Defaults to 5 seconds.
	Timeout time.Duration
}

var _ Transport = UDPTransport{}

func (t UDPTransport) Send(q *dns.Msg, addr netip.Addr) (*dns.Msg, error) {
	server := net.JoinHostPort(addr.String(), strconv.Itoa(int(t.port())))
	client := &dns.Client{Net: "udp", Timeout: t.timeout()}
	a, _, err := client.Exchange(q, server)
	if err != nil {
		return nil, errors.Wrapf(err, "udp exchange with %s failed", server)
	}
	if a.Truncated {
		logger("udp", q).WithField("server", server).Debug("response truncated, retrying over tcp")
		client.Net = "tcp"
		a, _, err = client.Exchange(q, server)
		if err != nil {
			return nil, errors.Wrapf(err, "tcp exchange with %s failed", server)
		}
	}
	return a, nil
}

func (t UDPTransport) port() uint16 {
	if t.Port == 0 {
		return 53
	}
	return t.Port
}

func (t UDPTransport) timeout() time.Duration {
	if t.Timeout == 0 {
		return 5 * time.Second
	}
	return t.Timeout
}
