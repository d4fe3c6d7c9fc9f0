/*Package perr implements the Parallel Manager's error taxonomy: a
two-tier split between an "external" error the caller could fix through
configuration and an "internal" error that requires a code dive. Library
code returns errors rather than calling os.Exit directly, since code used
from inside an MPI job should let its caller decide how to die.
*/
package perr

import (
	"fmt"
	"log"
	"os"
	"runtime/debug"
)

// Kind distinguishes the four error taxonomies this module reports:
// ConfigError, InvariantViolation, TransportError, and SizeMismatch.
type Kind int

const (
	ConfigError Kind = iota
	InvariantViolation
	TransportError
	SizeMismatch
)

func (k Kind) String() string {
	switch k {
	case ConfigError:
		return "ConfigError"
	case InvariantViolation:
		return "InvariantViolation"
	case TransportError:
		return "TransportError"
	case SizeMismatch:
		return "SizeMismatch"
	default:
		return "UnknownError"
	}
}

// Error is a typed error carrying one of the four Kinds above.
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string { return e.Kind.String() + ": " + e.msg }

// Newf constructs an *Error of the given Kind.
func Newf(kind Kind, format string, a ...interface{}) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, a...)}
}

// Is allows errors.Is(err, &perr.Error{Kind: perr.ConfigError}) to work by
// kind rather than by identity, since every ConfigError constructed by Newf
// is a distinct value.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// External reports an error to stderr and terminates the process. It should
// be used at the top of a binary (e.g. cmd/pmanager) when an error is
// something a user could reasonably be expected to fix through changes in
// configuration, data, or environment. Library code under this module never
// calls External itself; it returns errors and lets the caller choose.
func External(format string, a ...interface{}) {
	log.Printf("pmanager exited early with the following error:\n"+format, a...)
	os.Exit(1)
}

// Internal reports an error to stderr along with a stack trace and
// terminates the process. It should be used when the failure is a fatal,
// unrecoverable transport or invariant failure within a collective step:
// a rank that cannot complete a collective must abort rather than
// silently diverge from its peers.
func Internal(format string, a ...interface{}) {
	log.Println("pmanager exited early with the following error:")
	fmt.Fprintf(os.Stderr, format, a...)
	fmt.Fprintf(os.Stderr, "\n\n")
	debug.PrintStack()
	os.Exit(1)
}

// Warnf reports a recoverable condition to stderr without terminating the
// process. Used for the one InvariantViolation this module recovers from
// on its own: a degenerate cell size clamped to 1.0.
func Warnf(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, "pmanager warning: "+format+"\n", a...)
}
