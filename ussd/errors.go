package ussd

import (
	"fmt"

	"github.com/pkg/errors"
)

//Kind classifies every failure reported to the caller
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidParameters
	KindExecutionFailure
)

var kindCode = map[Kind]string{
	KindUnknown:           "unknown_exception",
	KindInvalidParameters: "ussd_plugin_incorrect_parameters",
	KindExecutionFailure:  "ussd_plugin_ussd_execution_failure",
}

//Code is the error kind as reported to the dispatcher
func (k Kind) Code() string {
	if s, ok := kindCode[k]; ok {
		return s
	}
	return kindCode[KindUnknown]
}

func (k Kind) String() string {
	switch k {
	case KindInvalidParameters:
		return "InvalidParameters"
	case KindExecutionFailure:
		return "ExecutionFailure"
	case KindUnknown:
		return "UnknownFailure"
	default:
		return fmt.Sprintf("unknown ussd.Kind(%d)", int(k))
	}
}

//Error is the only error type surfaced to callers of Parse and Execute.
//Error() is the message verbatim, without any wrapping context.
type Error struct {
	Kind    Kind
	Message string

	failureCode    int
	hasFailureCode bool
	cause          error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.cause }

//FailureCode is the raw platform code when the error came from a failure callback
func (e *Error) FailureCode() (int, bool) {
	return e.failureCode, e.hasFailureCode
}

func invalidParameters(message string) *Error {
	return &Error{Kind: KindInvalidParameters, Message: message}
}

func executionFailure(message string) *Error {
	return &Error{Kind: KindExecutionFailure, Message: message}
}

func unknownFailure(err error) *Error {
	return &Error{Kind: KindUnknown, Message: err.Error(), cause: err}
}

//KindOf classifies err: anything that is not (or does not wrap) an *Error is unknown
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

//IsKind reports whether err is an *Error of the given kind
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

//Describe returns the (code, message) pair reported to the dispatcher for err
func Describe(err error) (code string, message string) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind.Code(), e.Message
	}
	return KindUnknown.Code(), err.Error()
}
