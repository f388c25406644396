package memory

import (
	"context"
	"sync"

	"github.com/allisson/payouts/internal/gateway"
)

// Gateway is a scripted payment gateway. Each call consumes the next scripted error;
// once the script is exhausted calls succeed. Like a real gateway, a key that already
// succeeded returns the same transfer again.
type Gateway struct {
	mu        sync.Mutex
	script    []error
	calls     []gateway.TransferRequest
	transfers map[string]*gateway.Transfer
	hook      func(req gateway.TransferRequest)
}

// NewGateway creates a gateway that fails with errs, in order, before succeeding.
func NewGateway(errs ...error) *Gateway {
	return &Gateway{script: errs, transfers: map[string]*gateway.Transfer{}}
}

// OnCall registers fn to run, outside the lock, at the start of every call.
func (g *Gateway) OnCall(fn func(req gateway.TransferRequest)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hook = fn
}

// CreateTransfer implements gateway.Adapter.
func (g *Gateway) CreateTransfer(_ context.Context, req gateway.TransferRequest) (*gateway.Transfer, error) {
	g.mu.Lock()
	hook := g.hook
	g.mu.Unlock()
	if hook != nil {
		hook(req)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls = append(g.calls, req)
	if t, ok := g.transfers[req.IdempotencyKey]; ok {
		cp := *t
		return &cp, nil
	}
	if len(g.script) > 0 {
		err := g.script[0]
		g.script = g.script[1:]
		if err != nil {
			return nil, err
		}
	}
	ref := req.IdempotencyKey
	if len(ref) > 8 {
		ref = ref[:8]
	}
	t := &gateway.Transfer{ID: "tr_" + ref, Status: "paid"}
	g.transfers[req.IdempotencyKey] = t
	cp := *t
	return &cp, nil
}

// Calls returns every request received.
func (g *Gateway) Calls() []gateway.TransferRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]gateway.TransferRequest, len(g.calls))
	copy(out, g.calls)
	return out
}
