package pgxec

import (
	"fmt"
	"sync"
	"time"
)

// ConnectionState represents the current state of a Client.
type ConnectionState int

const (
	// StateDisconnected indicates no active connection.
	StateDisconnected ConnectionState = iota
	// StateConnecting indicates a connection attempt in progress.
	StateConnecting
	// StateConnected indicates an active, established connection.
	StateConnected
	// StateDisconnecting indicates a graceful disconnect in progress.
	StateDisconnecting
)

func (cs ConnectionState) String() string {
	switch cs {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateDisconnecting:
		return "DISCONNECTING"
	default:
		return "UNKNOWN"
	}
}

// StateTransition describes one change in Client connection state.
type StateTransition struct {
	From      ConnectionState
	To        ConnectionState
	Timestamp time.Time
	Error     error
	Duration  time.Duration
	Metadata  map[string]interface{}
}

// StateChangeHandler is called synchronously on every state transition.
type StateChangeHandler func(transition StateTransition)

// stateManager tracks a Client's connection state and notifies registered
// handlers of transitions, grounded on client/state.go's StateManager.
type stateManager struct {
	current        ConnectionState
	lastTransition time.Time
	handlers       []StateChangeHandler
	mu             sync.RWMutex
}

func newStateManager() *stateManager {
	return &stateManager{current: StateDisconnected, lastTransition: time.Now()}
}

var legalTransitions = map[ConnectionState][]ConnectionState{
	StateDisconnected:  {StateConnecting},
	StateConnecting:    {StateConnected, StateDisconnected},
	StateConnected:     {StateDisconnecting},
	StateDisconnecting: {StateDisconnected},
}

func (sm *stateManager) transitionTo(newState ConnectionState, err error, metadata map[string]interface{}) error {
	sm.mu.Lock()

	legal := false
	for _, s := range legalTransitions[sm.current] {
		if s == newState {
			legal = true
			break
		}
	}
	if !legal {
		from := sm.current
		sm.mu.Unlock()
		return fmt.Errorf("illegal state transition: %s -> %s", from, newState)
	}

	now := time.Now()
	transition := StateTransition{
		From:      sm.current,
		To:        newState,
		Timestamp: now,
		Error:     err,
		Duration:  now.Sub(sm.lastTransition),
		Metadata:  metadata,
	}
	sm.current = newState
	sm.lastTransition = now

	handlers := make([]StateChangeHandler, len(sm.handlers))
	copy(handlers, sm.handlers)
	sm.mu.Unlock()

	for _, h := range handlers {
		h(transition)
	}
	return nil
}

func (sm *stateManager) onStateChange(handler StateChangeHandler) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.handlers = append(sm.handlers, handler)
}

func (sm *stateManager) getState() ConnectionState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}
