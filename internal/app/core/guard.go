package core

import "sync/atomic"

// Guard rejects nested calls back into a component's mutating entry points.
// The surrounding environment serializes top-level transactions, so the only
// hazard the guard protects against is logical reentrancy: an operation that,
// while executing, triggers a call into another mutating entry point of the
// same component. The guard is a per-component in-progress flag, not a lock;
// independent top-level transactions never observe each other's flag.
//
// Usage at the top of every mutating entry point:
//
//	if err := s.guard.Enter(); err != nil {
//	    return err
//	}
//	defer s.guard.Exit()
type Guard struct {
	busy atomic.Bool
}

// Enter marks the component as executing a mutating entry point.
// It fails with ErrReentrancy when one is already in progress.
func (g *Guard) Enter() error {
	if !g.busy.CompareAndSwap(false, true) {
		return ErrReentrancy
	}
	return nil
}

// Exit clears the in-progress flag.
func (g *Guard) Exit() {
	g.busy.Store(false)
}
