package imagegen

import (
	"errors"
	"fmt"
)

// Kind classifies a request failure for the transport layer.
type Kind int

const (
	// KindValidation covers unsupported formats and unusable object keys.
	KindValidation Kind = iota + 1
	// KindNotFound covers missing sources and sources that yield no image.
	KindNotFound
	// KindProcessing covers everything unexpected, including timeouts.
	KindProcessing
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindProcessing:
		return "processing"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is returned by Service operations.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the Kind of err, treating unclassified errors as processing
// failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindProcessing
}
