// Package bwerr assigns spec-level error kinds (InvalidInput, IoError,
// CompressionError, InternalError) to the errors the write pipeline
// returns, layered on top of github.com/grailbio/base/errors so that
// every error still chains its cause and context the way the rest of
// this module does.
package bwerr

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// Kind classifies a pipeline error per spec.md §7.
type Kind int

const (
	// Unknown is the zero value; KindOf returns it for errors this
	// package did not construct.
	Unknown Kind = iota
	// InvalidInput covers ordering, bounds, overlap and malformed-record
	// violations detected while validating the input stream.
	InvalidInput
	// IoError covers read/write/seek failures on the output file or any
	// temp file.
	IoError
	// CompressionError covers a zlib failure while encoding a section.
	CompressionError
	// InternalError covers invariant violations: a channel closed when a
	// value was expected, a future never resolving, etc. Fail-fast.
	InternalError
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "invalid input"
	case IoError:
		return "io error"
	case CompressionError:
		return "compression error"
	case InternalError:
		return "internal error"
	default:
		return "unknown"
	}
}

// kindError pairs a Kind with the chained *errors.Error grailbio/base/errors
// built for us, so the Error() string still carries the full context chain.
type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

// New builds a Kind-tagged error. args is passed straight through to
// errors.E, following the (cause-or-message, context...) convention used
// throughout the retrieval pack (e.g. grailbio/bio's markduplicates and
// encoding/fastq packages).
func New(kind Kind, args ...interface{}) error {
	return &kindError{kind: kind, err: errors.E(args...)}
}

// Wrap tags an existing error with a Kind, chaining cause and location
// via errors.E so the original error string is preserved.
func Wrap(kind Kind, cause error, context ...interface{}) error {
	args := append([]interface{}{cause}, context...)
	return &kindError{kind: kind, err: errors.E(args...)}
}

// KindOf walks err's Unwrap chain looking for a Kind tag. Returns Unknown
// if none is found.
func KindOf(err error) Kind {
	for err != nil {
		if ke, ok := err.(*kindError); ok {
			return ke.kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return Unknown
}

// Invalidf is a convenience for the common case: an InvalidInput error
// describing an input-shape violation at a specific location (chromosome,
// byte offset), per spec.md §7's "a single error message identifying the
// kind and location" requirement.
func Invalidf(format string, args ...interface{}) error {
	return New(InvalidInput, fmt.Sprintf(format, args...))
}

// Internalf builds an InternalError for a fail-fast invariant violation.
func Internalf(format string, args ...interface{}) error {
	return New(InternalError, fmt.Sprintf(format, args...))
}
