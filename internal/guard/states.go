package guard

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type State string

const (
	StateReady               State = "ready"
	StateChecking            State = "checking"
	StateAwaitingRemediation State = "awaiting_remediation"
	StateSettling            State = "settling"
	StateFailed              State = "failed"
)

// Choice is a remediation for a suspended action.
type Choice string

const (
	ChoiceForceIdle Choice = "force_idle"
	ChoiceProceed   Choice = "proceed"
	ChoiceCancel    Choice = "cancel"
)

func ParseChoice(s string) (Choice, error) {
	switch c := Choice(strings.TrimSpace(s)); c {
	case ChoiceForceIdle, ChoiceProceed, ChoiceCancel:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidChoice, s)
}

var (
	ErrActionPending   = errors.New("axes not idle, action suspended")
	ErrPendingNotFound = errors.New("pending action not found")
	ErrStillBusy       = errors.New("axes still busy after idle request")
	ErrGuardBusy       = errors.New("another guarded action is in progress")
	ErrInvalidChoice   = errors.New("invalid remediation choice")
)

// UnknownState is reported for an axis whose state could not be read.
const UnknownState = -1

// AxisStatus is the classified state of one axis.
type AxisStatus struct {
	Axis  int    `json:"axis"`
	State int    `json:"state"`
	Label string `json:"label"`
	Idle  bool   `json:"idle"`
}

// PendingAction is a guarded action waiting for a remediation choice.
type PendingAction struct {
	ID        uuid.UUID    `json:"id"`
	Name      string       `json:"action"`
	BusyAxes  []AxisStatus `json:"busy_axes"`
	CreatedAt time.Time    `json:"created_at"`
	ExpiresAt time.Time    `json:"expires_at"`
	Attempts  int          `json:"attempts"`
}

// Status is the externally visible guard state.
type Status struct {
	State      State          `json:"state"`
	Pending    *PendingAction `json:"pending,omitempty"`
	Axes       []AxisStatus   `json:"axes"`
	LastError  string         `json:"last_error,omitempty"`
	LastChange time.Time      `json:"last_change"`
}

// PendingError is returned when an action was suspended.
type PendingError struct {
	Pending PendingAction
}

func (e *PendingError) Error() string {
	axes := make([]string, len(e.Pending.BusyAxes))
	for i, a := range e.Pending.BusyAxes {
		axes[i] = fmt.Sprintf("axis%d", a.Axis)
	}
	return fmt.Sprintf("%s: %s busy", e.Pending.Name, strings.Join(axes, ", "))
}

func (e *PendingError) Unwrap() error { return ErrActionPending }

// BusyError lists the axes that did not reach idle.
type BusyError struct {
	Pending PendingAction
}

func (e *BusyError) Error() string {
	axes := make([]string, len(e.Pending.BusyAxes))
	for i, a := range e.Pending.BusyAxes {
		axes[i] = fmt.Sprintf("axis%d (%s)", a.Axis, a.Label)
	}
	return fmt.Sprintf("%s: %s", ErrStillBusy, strings.Join(axes, ", "))
}

func (e *BusyError) Unwrap() error { return ErrStillBusy }
