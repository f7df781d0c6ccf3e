package escrow

import (
	"context"
	"fmt"
	"sync"
)

// MemoryGateway simulates the escrow service for demo/development mode.
// It honours the idempotency contract: repeated execution under one key
// returns the original action, including its transaction id.
type MemoryGateway struct {
	mu       sync.Mutex
	executed map[string]Action
	nextTxn  int

	// forced, when set, is returned (with instruction fields filled in)
	// instead of a success. Used to exercise failure paths.
	forced *Action
}

// NewMemoryGateway creates an in-memory escrow gateway.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{executed: make(map[string]Action)}
}

// ForceOutcome makes subsequent calls return the given status/message.
// Pass status "" to restore normal success behaviour.
func (g *MemoryGateway) ForceOutcome(status ActionStatus, message string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if status == "" {
		g.forced = nil
		return
	}
	g.forced = &Action{Status: status, Message: message}
}

func (g *MemoryGateway) Execute(_ context.Context, instr Instruction, idempotencyKey string) Action {
	if instr.Type == ActionNone {
		return NoneAction()
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if prior, ok := g.executed[idempotencyKey]; ok {
		return prior
	}

	a := fromInstruction(instr)
	if g.forced != nil {
		a.Status = g.forced.Status
		a.Message = g.forced.Message
		// Failed and pending attempts are not recorded: a later retry
		// under the same key may still settle.
		return a
	}

	g.nextTxn++
	a.Status = StatusSuccess
	a.TransactionID = fmt.Sprintf("esc_txn_%06d", g.nextTxn)
	g.executed[idempotencyKey] = a
	return a
}

// Executed returns the number of distinct settled instructions (for testing).
func (g *MemoryGateway) Executed() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.executed)
}
