package rdns

import (
	"fmt"
	"net/netip"

	"github.com/miekg/dns"
	"github.com/pkg/errors"
)

// ErrNoAnswer is returned where an API requires an error when every
// reachable server declined to produce a usable response.
var ErrNoAnswer = errors.New("no answer from any server")

// LoopError is returned when an iterative resolution sends the same question
// to the same server a second time, implying a cyclic delegation such as two
// name servers referring to each other.
type LoopError struct {
	Addr     netip.Addr
	Question dns.Question
}

func (e LoopError) Error() string {
	return fmt.Sprintf("delegation loop: question for '%s' was already sent to %s", e.Question.Name, e.Addr)
}

// StepLimitError is returned when an iterative resolution exceeds its
// configured maximum number of steps.
type StepLimitError struct {
	Limit int
}

func (e StepLimitError) Error() string {
	return fmt.Sprintf("maximum number of iterative steps (%d) exceeded", e.Limit)
}

// TransportError records the failure to exchange a query with one candidate
// server during dispatch.
type TransportError struct {
	Addr netip.Addr
	Err  error
}

func (e TransportError) Error() string {
	return fmt.Sprintf("server %s: %v", e.Addr, e.Err)
}

func (e TransportError) Unwrap() error { return e.Err }
