package stack

import (
	"fmt"
	"sync"
)

// ServiceState is the lifecycle phase of one service in the stack.
type ServiceState string

const (
	StateStopped  ServiceState = "stopped"
	StateStarting ServiceState = "starting"
	StateProbing  ServiceState = "probing"
	StateReady    ServiceState = "ready"
	StateDraining ServiceState = "draining"
	StateFailed   ServiceState = "failed"
)

var legalTransitions = map[ServiceState][]ServiceState{
	StateStopped:  {StateStarting},
	StateStarting: {StateProbing, StateFailed, StateDraining},
	StateProbing:  {StateReady, StateFailed, StateDraining},
	StateReady:    {StateDraining},
	StateDraining: {StateStopped},
	StateFailed:   {},
}

// Tracker owns the mutable state of every service. The controller is the
// only writer; probers and the scenario runner read. Transitions are
// atomic: readers never observe a service mid-transition.
type Tracker struct {
	mu     sync.RWMutex
	states map[string]ServiceState
}

// NewTracker initializes all services from the registry to Stopped.
func NewTracker(registry *Registry) *Tracker {
	states := make(map[string]ServiceState)
	for _, d := range registry.Descriptors() {
		states[d.Name] = StateStopped
	}
	return &Tracker{states: states}
}

// Transition moves a service to the next state, rejecting moves the
// lifecycle does not allow. Failed is terminal.
func (t *Tracker) Transition(service string, next ServiceState) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, ok := t.states[service]
	if !ok {
		return fmt.Errorf("unknown service %q", service)
	}
	for _, allowed := range legalTransitions[current] {
		if allowed == next {
			t.states[service] = next
			return nil
		}
	}
	return fmt.Errorf("service %q: illegal transition %s -> %s", service, current, next)
}

// State returns the current state of the named service.
func (t *Tracker) State(service string) ServiceState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.states[service]
}

// Snapshot returns a copy of all service states.
func (t *Tracker) Snapshot() map[string]ServiceState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]ServiceState, len(t.states))
	for name, state := range t.states {
		out[name] = state
	}
	return out
}

// AllReady reports whether every tracked service is Ready.
func (t *Tracker) AllReady() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, state := range t.states {
		if state != StateReady {
			return false
		}
	}
	return true
}
