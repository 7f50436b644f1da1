package live

import (
	"errors"
	"fmt"
)

// ErrMaxReconnect is surfaced when the reconnect budget is exhausted
var ErrMaxReconnect = errors.New("live stream: reconnect attempts exhausted")

// State is the connection state of the live stream subscriber
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// EventKind identifies an input to the state machine
type EventKind int

const (
	EventConnect         EventKind = iota // caller asked to connect
	EventSubscribed                       // STOMP handshake and SUBSCRIBE completed
	EventTransportClosed                  // dial failed, handshake failed, or the socket dropped
	EventRetryElapsed                     // reconnect interval elapsed
	EventDisconnect                       // caller asked to disconnect
)

func (k EventKind) String() string {
	switch k {
	case EventConnect:
		return "connect"
	case EventSubscribed:
		return "subscribed"
	case EventTransportClosed:
		return "transport_closed"
	case EventRetryElapsed:
		return "retry_elapsed"
	case EventDisconnect:
		return "disconnect"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is one input to Machine.HandleEvent
type Event struct {
	Kind EventKind
	Err  error // cause of EventTransportClosed
}

// Action is a side effect the driver must perform after a transition
type Action int

const (
	ActionDial Action = iota
	ActionScheduleRetry
	ActionCancelRetry
	ActionTeardown
	ActionClearJobs
	ActionSurfaceFailure
)

func (a Action) String() string {
	switch a {
	case ActionDial:
		return "dial"
	case ActionScheduleRetry:
		return "schedule_retry"
	case ActionCancelRetry:
		return "cancel_retry"
	case ActionTeardown:
		return "teardown"
	case ActionClearJobs:
		return "clear_jobs"
	case ActionSurfaceFailure:
		return "surface_failure"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Transition is the outcome of one HandleEvent call.
// Actions are listed in the order they must be executed.
type Transition struct {
	From     State
	To       State
	Event    Event
	Actions  []Action
	Failures int   // consecutive transport failures after the transition
	Err      error // set when To is StateFailed
}

// Changed reports whether the transition moved to a different state
func (t Transition) Changed() bool {
	return t.From != t.To
}

// Has reports whether the transition carries the given action
func (t Transition) Has(a Action) bool {
	for _, action := range t.Actions {
		if action == a {
			return true
		}
	}
	return false
}

type transitionKey struct {
	from  State
	event EventKind
}

type transitionFunc func(m *Machine, ev Event) Transition

// transitions lists every handled (state, event) pair. Pairs not listed leave
// the machine unchanged and produce no actions.
var transitions = map[transitionKey]transitionFunc{
	{StateDisconnected, EventConnect}: (*Machine).startConnect,
	{StateFailed, EventConnect}:       (*Machine).startConnect,
	{StateReconnecting, EventConnect}: (*Machine).reconnectNow,

	{StateConnecting, EventSubscribed}: (*Machine).subscribed,

	{StateConnecting, EventTransportClosed}: (*Machine).transportClosed,
	{StateConnected, EventTransportClosed}:  (*Machine).transportClosed,

	{StateReconnecting, EventRetryElapsed}: (*Machine).retry,

	{StateConnecting, EventDisconnect}:   (*Machine).disconnect,
	{StateConnected, EventDisconnect}:    (*Machine).disconnect,
	{StateReconnecting, EventDisconnect}: (*Machine).disconnect,
	{StateFailed, EventDisconnect}:       (*Machine).disconnect,
}

// Machine is the subscriber's connection state machine. It performs no I/O:
// HandleEvent returns the actions the caller has to carry out. Machine is not
// safe for concurrent use.
type Machine struct {
	state       State
	failures    int
	maxAttempts int
}

// NewMachine creates a machine in StateDisconnected. The maxAttempts-th
// consecutive transport failure moves the machine to StateFailed.
func NewMachine(maxAttempts int) *Machine {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Machine{state: StateDisconnected, maxAttempts: maxAttempts}
}

// State returns the current state
func (m *Machine) State() State {
	return m.state
}

// Failures returns the number of consecutive transport failures
func (m *Machine) Failures() int {
	return m.failures
}

// MaxAttempts returns the reconnect budget
func (m *Machine) MaxAttempts() int {
	return m.maxAttempts
}

// HandleEvent applies ev and returns the resulting transition
func (m *Machine) HandleEvent(ev Event) Transition {
	fn, ok := transitions[transitionKey{m.state, ev.Kind}]
	if !ok {
		return m.stay(ev)
	}
	t := fn(m, ev)
	m.state = t.To
	t.Failures = m.failures
	return t
}

func (m *Machine) stay(ev Event) Transition {
	return Transition{From: m.state, To: m.state, Event: ev, Failures: m.failures}
}

func (m *Machine) startConnect(ev Event) Transition {
	m.failures = 0
	return Transition{From: m.state, To: StateConnecting, Event: ev, Actions: []Action{ActionDial}}
}

func (m *Machine) reconnectNow(ev Event) Transition {
	return Transition{From: m.state, To: StateConnecting, Event: ev, Actions: []Action{ActionCancelRetry, ActionDial}}
}

func (m *Machine) subscribed(ev Event) Transition {
	m.failures = 0
	return Transition{From: m.state, To: StateConnected, Event: ev}
}

func (m *Machine) transportClosed(ev Event) Transition {
	m.failures++
	if m.failures >= m.maxAttempts {
		err := fmt.Errorf("%w after %d attempts", ErrMaxReconnect, m.failures)
		if ev.Err != nil {
			err = fmt.Errorf("%w after %d attempts: %v", ErrMaxReconnect, m.failures, ev.Err)
		}
		return Transition{
			From:    m.state,
			To:      StateFailed,
			Event:   ev,
			Actions: []Action{ActionTeardown, ActionSurfaceFailure},
			Err:     err,
		}
	}
	return Transition{From: m.state, To: StateReconnecting, Event: ev, Actions: []Action{ActionTeardown, ActionScheduleRetry}}
}

func (m *Machine) retry(ev Event) Transition {
	return Transition{From: m.state, To: StateConnecting, Event: ev, Actions: []Action{ActionDial}}
}

func (m *Machine) disconnect(ev Event) Transition {
	m.failures = m.maxAttempts
	return Transition{
		From:    m.state,
		To:      StateDisconnected,
		Event:   ev,
		Actions: []Action{ActionCancelRetry, ActionTeardown, ActionClearJobs},
	}
}
