// Package apperr defines the error taxonomy shared by the conversation
// engine, the scheduler, and the notification dispatcher. Every error type
// exposes Code() consumed by the router's summary logging.
package apperr

import (
	"errors"
	"fmt"
)

// ProtocolError signals a malformed or out-of-context callback. It is always
// user-caused and recoverable with a plain message.
type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string { return "protocol: " + e.Msg }

// Code identifies the error class for log summaries.
func (e *ProtocolError) Code() string { return "PROTOCOL" }

// Protocolf builds a ProtocolError from a format string.
func Protocolf(format string, args ...any) error {
	return &ProtocolError{Msg: fmt.Sprintf(format, args...)}
}

// ValidationError signals an invalid id or page argument.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return "validation: " + e.Msg }

// Code identifies the error class for log summaries.
func (e *ValidationError) Code() string { return "VALIDATION" }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError signals that a referenced entity no longer exists.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	if e.ID != 0 {
		return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
	}
	return e.Entity + " not found"
}

// Code identifies the error class for log summaries.
func (e *NotFoundError) Code() string { return "NOT_FOUND" }

// NotFound builds a NotFoundError for the given entity and id.
func NotFound(entity string, id int64) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// StoreError signals a persistence read/write failure. The wrapped operation
// must be treated as not-succeeded by the caller.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return "store: " + e.Op + ": " + e.Err.Error() }

func (e *StoreError) Unwrap() error { return e.Err }

// Code identifies the error class for log summaries.
func (e *StoreError) Code() string { return "STORE" }

// Store wraps err as a StoreError for the named operation.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// TransportKind classifies chat-platform failures. Classified kinds are
// recovered automatically by the transport adapter; unclassified ones
// propagate to the dispatch point.
type TransportKind string

const (
	// KindSameContent means the message was already edited to identical content.
	KindSameContent TransportKind = "same_content"
	// KindNotEditable means the target message can no longer be edited.
	KindNotEditable TransportKind = "not_editable"
	// KindBlocked means the recipient blocked the bot or is deactivated.
	KindBlocked TransportKind = "blocked"
	// KindFlood means the platform asked to slow down.
	KindFlood TransportKind = "flood"
	// KindNetwork covers transient dial/timeout failures.
	KindNetwork TransportKind = "network"
	// KindUnknown covers everything the adapter could not classify.
	KindUnknown TransportKind = "unknown"
)

// TransportError signals a chat-platform send/edit/answer failure.
type TransportError struct {
	Kind TransportKind
	Op   string
	Err  error
}

func (e *TransportError) Error() string {
	return "transport: " + e.Op + " (" + string(e.Kind) + "): " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// Code identifies the error class for log summaries.
func (e *TransportError) Code() string { return "TRANSPORT_" + string(e.Kind) }

// Transport wraps err with its classified kind for the named operation.
func Transport(kind TransportKind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Kind: kind, Op: op, Err: err}
}

// IsProtocol reports whether err is a ProtocolError.
func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsStore reports whether err is a StoreError.
func IsStore(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

// TransportKindOf returns the classified kind of a TransportError, or
// KindUnknown when err is not one.
func TransportKindOf(err error) TransportKind {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUnknown
}
