package indexing

import (
	"fmt"
	"sync"
	"time"
)

// IndexState is the lifecycle state of the workspace index
type IndexState int

const (
	StateNotStarted IndexState = iota
	StateScanning
	StateReady
	StateInvalidated
	StateFailed
)

func (s IndexState) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateScanning:
		return "scanning"
	case StateReady:
		return "ready"
	case StateInvalidated:
		return "invalidated"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("IndexState(%d)", int(s))
}

// MarshalText renders the state as its name in JSON
func (s IndexState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var legalTransitions = map[IndexState][]IndexState{
	StateNotStarted:  {StateScanning},
	StateScanning:    {StateReady, StateFailed},
	StateReady:       {StateInvalidated},
	StateInvalidated: {StateScanning, StateReady},
	StateFailed:      {StateScanning},
}

// TransitionError reports an illegal state change
type TransitionError struct {
	From IndexState
	To   IndexState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal index state transition %s -> %s", e.From, e.To)
}

// ReadTolerance selects which states a query accepts
type ReadTolerance int

const (
	RequireReady ReadTolerance = iota
	TolerateScanning
)

// ReadMode is the outcome of gating a read on the current state
type ReadMode int

const (
	ReadRefused ReadMode = iota
	ReadFull
	ReadPartial
)

// StateMachine guards IndexState with its own mutex
type StateMachine struct {
	mu        sync.Mutex
	state     IndexState
	changedAt time.Time
	reason    string
}

// NewStateMachine starts in NotStarted
func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateNotStarted, changedAt: time.Now()}
}

// Current returns the current state
func (m *StateMachine) Current() IndexState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition moves to the target state if the edge is legal
func (m *StateMachine) Transition(to IndexState) error {
	return m.TransitionWithReason(to, "")
}

// TransitionWithReason is Transition that records why the state changed.
// The reason of a Failed state is shown to clients.
func (m *StateMachine) TransitionWithReason(to IndexState, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, allowed := range legalTransitions[m.state] {
		if allowed == to {
			m.state = to
			m.changedAt = time.Now()
			m.reason = reason
			return nil
		}
	}
	return &TransitionError{From: m.state, To: to}
}

// Readable gates a read. Ready always reads fully; Scanning reads partially
// only under TolerateScanning; every other state is refused.
func (m *StateMachine) Readable(tolerance ReadTolerance) (ReadMode, IndexState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.state == StateReady:
		return ReadFull, m.state
	case m.state == StateScanning && tolerance == TolerateScanning:
		return ReadPartial, m.state
	}
	return ReadRefused, m.state
}

// Since returns when the state last changed and the recorded reason
func (m *StateMachine) Since() (time.Time, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.changedAt, m.reason
}
