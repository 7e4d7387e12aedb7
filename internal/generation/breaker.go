package generation

import (
	"context"
	"fmt"
)

// Breaker is the circuit breaker contract shared with the HTTP middleware.
type Breaker interface {
	Allow() bool
	RecordSuccess()
	RecordFailure()
}

// ErrCircuitOpen is returned without calling the provider while the breaker is open.
var ErrCircuitOpen = fmt.Errorf("%w: circuit open", ErrGenerationFailed)

type guarded struct {
	next    Client
	breaker Breaker
}

// WithBreaker wraps c so repeated provider failures open the circuit.
func WithBreaker(c Client, b Breaker) Client {
	return &guarded{next: c, breaker: b}
}

func (g *guarded) Generate(ctx context.Context, req Request) (*Response, error) {
	if !g.breaker.Allow() {
		return nil, ErrCircuitOpen
	}
	resp, err := g.next.Generate(ctx, req)
	if err != nil {
		g.breaker.RecordFailure()
		return nil, err
	}
	g.breaker.RecordSuccess()
	return resp, nil
}
