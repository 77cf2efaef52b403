package calls

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrRoomTaken     = errors.New("room name already reserved")
	ErrDuplicateCall = errors.New("call id already exists")
	// ErrCarrierIDImmutable is returned when an update tries to replace a
	// carrier call id that is already set.
	ErrCarrierIDImmutable = errors.New("carrier call id already set")
)

// Kind classifies orchestration failures for the HTTP layer.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConfiguration
	KindExternalService
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConfiguration:
		return "configuration"
	case KindExternalService:
		return "external_service"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is returned by orchestrator operations. CallID is set once an id
// has been allocated so the caller can still poll the call.
type Error struct {
	Kind    Kind
	Message string
	CallID  string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func validationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func configurationError(callID, msg string, err error) *Error {
	return &Error{Kind: KindConfiguration, Message: msg, CallID: callID, Err: err}
}

func externalError(callID, msg string, err error) *Error {
	return &Error{Kind: KindExternalService, Message: msg, CallID: callID, Err: err}
}

func notFoundError(msg string, err error) *Error {
	return &Error{Kind: KindNotFound, Message: msg, Err: err}
}

// KindOf returns the Kind of err, or KindInternal if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, ErrNotFound) {
		return KindNotFound
	}
	return KindInternal
}
