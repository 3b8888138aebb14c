package bootstrap

import (
	"fmt"
	"slices"

	"github.com/desertthunder/spotenv/internal/shared"
)

// State is the lifecycle position of a bootstrap run.
type State string

const (
	StateNotCreated State = "not-created"
	StateCreated    State = "created"
	StateActivated  State = "activated"
	StateInstalled  State = "installed"
	StateFailed     State = "failed"
)

var transitions = map[State][]State{
	StateNotCreated: {StateCreated, StateFailed},
	StateCreated:    {StateActivated, StateFailed},
	StateActivated:  {StateInstalled, StateFailed},
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateInstalled || s == StateFailed
}

// CanTransition reports whether moving from s to next is allowed.
func (s State) CanTransition(next State) bool {
	return slices.Contains(transitions[s], next)
}

func (s State) String() string { return string(s) }

// machine tracks a single run's state and the path it took.
type machine struct {
	state   State
	history []State
}

func newMachine() *machine {
	return &machine{state: StateNotCreated, history: []State{StateNotCreated}}
}

func (m *machine) to(next State) error {
	if !m.state.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", shared.ErrInvalidTransition, m.state, next)
	}
	m.state = next
	m.history = append(m.history, next)
	return nil
}
