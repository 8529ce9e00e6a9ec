package macho

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies why a Binary could not be produced.
type ErrorKind int

const (
	// InvalidBinary is a malformed or unrecognized Mach-O structure.
	InvalidBinary ErrorKind = iota + 1
	// IOError means the image bytes could not be obtained.
	IOError
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidBinary:
		return "invalid binary"
	case IOError:
		return "i/o error"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

var (
	// ErrInvalidBinary matches any *Error of kind InvalidBinary with errors.Is
	ErrInvalidBinary = &Error{Kind: InvalidBinary}
	// ErrIOError matches any *Error of kind IOError with errors.Is
	ErrIOError = &Error{Kind: IOError}
	// ErrNotFat is returned by Arches for a single-architecture image
	ErrNotFat = errors.New("not a fat Mach-O file")
)

// Error is the error type returned by New and Open.
type Error struct {
	Kind ErrorKind
	Path string
	Msg  string
	Err  error
}

func newError(kind ErrorKind, path string, err error, format string, args ...any) *Error {
	return &Error{
		Kind: kind,
		Path: path,
		Msg:  fmt.Sprintf(format, args...),
		Err:  err,
	}
}

func invalidf(path, format string, args ...any) *Error {
	return newError(InvalidBinary, path, nil, format, args...)
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	if e.Path != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Path)
	}
	if e.Msg != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Msg)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}
