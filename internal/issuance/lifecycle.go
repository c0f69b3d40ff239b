// Package issuance holds the transaction lifecycle of a bond issuance and the
// two-step dialog that drives it.
package issuance

import (
	"fmt"

	"github.com/alanyoungcy/bondd/internal/domain"
)

var transitions = map[domain.TxState][]domain.TxState{
	domain.TxIdle:    {domain.TxLoading},
	domain.TxLoading: {domain.TxSuccess, domain.TxError},
	domain.TxSuccess: {domain.TxIdle},
	domain.TxError:   {domain.TxIdle},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to domain.TxState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Lifecycle is the idle -> loading -> success|error state machine of a single
// issuance attempt. The zero value is idle. It is not safe for concurrent use.
type Lifecycle struct {
	state domain.TxState
}

// Resume returns a lifecycle positioned at a persisted state.
func Resume(state domain.TxState) Lifecycle {
	return Lifecycle{state: state}
}

// State returns the current state.
func (l *Lifecycle) State() domain.TxState {
	if l.state == "" {
		return domain.TxIdle
	}
	return l.state
}

// Transition moves to the given state or returns ErrInvalidTransition.
func (l *Lifecycle) Transition(to domain.TxState) error {
	from := l.State()
	if !CanTransition(from, to) {
		return fmt.Errorf("issuance: %s -> %s: %w", from, to, domain.ErrInvalidTransition)
	}
	l.state = to
	return nil
}
