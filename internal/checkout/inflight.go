package checkout

import (
	"fmt"
	"sync"

	"github.com/gofrs/uuid"
)

const (
	actionNavigate     = "navigate"
	actionEdit         = "edit"
	actionGCashQR      = "gcash_qr"
	actionGCashVerify  = "gcash_verify"
	actionBankTransfer = "bank_transfer"
	actionSubmit       = "submit"
	actionReconcile    = "reconcile"
	actionCancel       = "cancel"
)

// inflight allows one mutating action per session at a time. Every action
// loads, changes and saves the whole session, so any two of them running
// together would lose one write. It is not a lock: the loser fails instead
// of waiting.
type inflight struct {
	mu     sync.Mutex
	active map[uuid.UUID]string
}

func newInflight() *inflight {
	return &inflight{active: make(map[uuid.UUID]string)}
}

func (g *inflight) acquire(session uuid.UUID, action string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if running, busy := g.active[session]; busy {
		return nil, fmt.Errorf("%w: %s is running", ErrRequestInFlight, running)
	}
	g.active[session] = action

	return func() {
		g.mu.Lock()
		delete(g.active, session)
		g.mu.Unlock()
	}, nil
}
