// Package submission tracks the status of one form's in-flight submission.
package submission

import (
	"errors"
	"sync"
)

// State of a form submission.
type State string

const (
	Idle    State = "idle"
	Loading State = "loading"
	Success State = "success"
	Error   State = "error"
)

var (
	// ErrInFlight is returned when a submission starts while another one is loading.
	ErrInFlight = errors.New("submission already in flight")
	// ErrInvalidTransition is returned for transitions the state machine does not allow.
	ErrInvalidTransition = errors.New("invalid submission state transition")
)

// Status is the state plus the message shown to the user.
type Status struct {
	State   State  `json:"state"`
	Message string `json:"message,omitempty"`
}

// Settled reports whether the status is a final outcome of an attempt.
func (s Status) Settled() bool {
	return s.State == Success || s.State == Error
}

// Machine holds the status of exactly one form instance.
type Machine struct {
	mu       sync.Mutex
	status   Status
	onChange func(Status)
}

// New returns a machine in the idle state. onChange, if set, is called after every
// transition with the new status.
func New(onChange func(Status)) *Machine {
	return &Machine{status: Status{State: Idle}, onChange: onChange}
}

// Status returns the current status.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// CanSubmit is false while a submission is loading.
func (m *Machine) CanSubmit() bool {
	return m.Status().State != Loading
}

// Begin moves to loading. A settled status is reset to idle first.
func (m *Machine) Begin(message string) error {
	m.mu.Lock()
	if m.status.State == Loading {
		m.mu.Unlock()
		return ErrInFlight
	}
	if m.status.Settled() {
		m.setLocked(Status{State: Idle})
	}
	m.setLocked(Status{State: Loading, Message: message})
	m.mu.Unlock()
	return nil
}

// Succeed completes a loading submission.
func (m *Machine) Succeed(message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status.State != Loading {
		return ErrInvalidTransition
	}
	m.setLocked(Status{State: Success, Message: message})
	return nil
}

// Confirm moves straight from idle to success. It records a submission confirmed by
// a redirect, where no request ran in this form.
func (m *Machine) Confirm(message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status.State != Idle {
		return ErrInvalidTransition
	}
	m.setLocked(Status{State: Success, Message: message})
	return nil
}

// Fail records an error. From idle or a settled state it is a validation failure that
// never reached the network; from loading it is a transport failure.
func (m *Machine) Fail(message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status.Settled() {
		m.setLocked(Status{State: Idle})
	}
	m.setLocked(Status{State: Error, Message: message})
	return nil
}

// Reset returns to idle. It does nothing while a submission is loading and reports
// whether the status changed.
func (m *Machine) Reset() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status.State == Loading || m.status.State == Idle {
		return false
	}
	m.setLocked(Status{State: Idle})
	return true
}

func (m *Machine) setLocked(s Status) {
	m.status = s
	if m.onChange != nil {
		m.onChange(s)
	}
}
