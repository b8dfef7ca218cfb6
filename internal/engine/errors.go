package engine

import (
	"errors"
	"fmt"
)

// Protocol misuse. These leave the session untouched.
var (
	ErrCallInFlight            = errors.New("a diagnosis call is already in flight")
	ErrNotAwaitingAnswer       = errors.New("session is not awaiting an answer")
	ErrFollowUpBudgetExhausted = errors.New("follow-up budget exhausted; escalate instead")
	ErrEscalated               = errors.New("session has been escalated")
	ErrNothingInFlight         = errors.New("no diagnosis call in flight")
	ErrEmptyAnswer             = errors.New("answer is empty")
)

// FailureKind classifies a failed transport call.
type FailureKind string

const (
	KindTransport FailureKind = "transport"
	KindBackend   FailureKind = "backend"
	KindTimeout   FailureKind = "timeout"
	KindCanceled  FailureKind = "canceled"
)

// Action is a next step offered to the user after a failure.
type Action string

const (
	ActionRetry    Action = "retry"
	ActionAnswer   Action = "answer"
	ActionEscalate Action = "escalate"
)

// Failure describes a transport call that did not produce a result.
type Failure struct {
	Kind      FailureKind
	Message   string
	Retryable bool
	Actions   []Action
	Err       error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s failure: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Err
}
