package stream

import (
	"errors"
	"fmt"
)

// Kind classifies a failure of the audio pipeline.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidResponse
	KindTransportFailure
	KindPartialStream
	KindBufferAppend
	KindReadyTimeout
	KindAutoplayRejected
)

func (k Kind) String() string {
	switch k {
	case KindInvalidResponse:
		return "InvalidResponse"
	case KindTransportFailure:
		return "TransportFailure"
	case KindPartialStream:
		return "PartialStreamFailure"
	case KindBufferAppend:
		return "BufferAppendFailure"
	case KindReadyTimeout:
		return "ReadyTimeout"
	case KindAutoplayRejected:
		return "AutoplayRejected"
	default:
		return "Unknown"
	}
}

// Error is a pipeline failure tagged with its Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an *Error of the given kind.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap tags err with kind. A nil err stays nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
