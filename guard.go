package rdns

import (
	"net/netip"

	"github.com/miekg/dns"
)

// DefaultMaxSteps is the step budget of an iterative resolution unless
// configured otherwise.
const DefaultMaxSteps = 128

// RecursionGuard bounds the work done by one iterative resolution. It
// detects delegation loops by remembering which questions were sent to which
// servers, and caps the total number of steps so that even long acyclic
// delegation chains terminate. A guard belongs to a single top-level
// resolution and must not be shared between concurrent resolutions; it does
// no locking of its own.
type RecursionGuard struct {
	maxSteps int
	steps    int
	visited  map[netip.Addr]map[dns.Question]struct{}
}

// NewRecursionGuard returns a guard allowing up to maxSteps steps, or
// DefaultMaxSteps if maxSteps is not positive.
func NewRecursionGuard(maxSteps int) *RecursionGuard {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &RecursionGuard{
		maxSteps: maxSteps,
		visited:  make(map[netip.Addr]map[dns.Question]struct{}),
	}
}

// Admit records that question is about to be sent to addr. It returns a
// LoopError if this exact pair was admitted before, and a StepLimitError
// once the step budget is used up. The question is only recorded when both
// checks pass. Sending the same question to a different server, or a
// different question to the same server, is always permitted.
func (g *RecursionGuard) Admit(addr netip.Addr, question dns.Question) error {
	questions, ok := g.visited[addr]
	if !ok {
		questions = make(map[dns.Question]struct{})
		g.visited[addr] = questions
	} else if _, seen := questions[question]; seen {
		return LoopError{Addr: addr, Question: question}
	}
	if g.steps++; g.steps > g.maxSteps {
		return StepLimitError{Limit: g.maxSteps}
	}
	questions[question] = struct{}{}
	return nil
}

// Relax returns one step to the budget. Callers use it to mark a step as
// free, typically a restart that does not indicate progress-less work, such
// as starting over at the root to chase a CNAME target.
func (g *RecursionGuard) Relax() {
	g.steps--
}
