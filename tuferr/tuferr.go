// Package tuferr defines the error taxonomy of this module. Parsing,
// verification, transport, target-fetch and signer failures are reported
// as an *Error of one of the kinds below, annotated with the
// role/file/version/url it concerns, so that callers can tell a rollback
// from a bad signature without parsing strings. Package store and the
// editor's precondition checks return plain errors instead.
package tuferr

import "fmt"

// Kind classifies an error into the taxonomy from the TUF client workflow.
type Kind string

const (
	KindParse                 Kind = "parse"
	KindCanonicalization      Kind = "canonicalization"
	KindSignature             Kind = "signature"
	KindThreshold             Kind = "threshold"
	KindExpired               Kind = "expired"
	KindRollback              Kind = "rollback"
	KindIntegrity             Kind = "integrity"
	KindDelegationCycle       Kind = "delegation_cycle"
	KindDelegationUnauthorized Kind = "delegation_unauthorized"
	KindPathTraversal         Kind = "path_traversal"
	KindTransport             Kind = "transport"
	KindOversized             Kind = "oversized"
	KindNotFound              Kind = "not_found"
	KindSigner                Kind = "signer"
)

// Error is the concrete error type used throughout this module. It carries
// enough context to reconstruct what failed without inspecting the message.
type Error struct {
	Kind    Kind
	Role    string
	File    string
	Version *int
	URL     string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("tuf: %s", e.Kind)
	if e.Role != "" {
		msg += fmt.Sprintf(" role=%s", e.Role)
	}
	if e.File != "" {
		msg += fmt.Sprintf(" file=%s", e.File)
	}
	if e.Version != nil {
		msg += fmt.Sprintf(" version=%d", *e.Version)
	}
	if e.URL != "" {
		msg += fmt.Sprintf(" url=%s", e.URL)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %s", e.Err)
	}
	return msg
}

// Cause implements the github.com/pkg/errors causer interface so that
// errors.Cause(err) unwraps to whatever produced this error.
func (e *Error) Cause() error { return e.Err }

// Unwrap supports errors.Is/errors.As from the standard library too.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, tuferr.New(tuferr.KindRollback, nil)) style checks.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Opt mutates an *Error being built by New.
type Opt func(*Error)

func WithRole(role string) Opt { return func(e *Error) { e.Role = role } }
func WithFile(file string) Opt { return func(e *Error) { e.File = file } }
func WithVersion(v int) Opt    { return func(e *Error) { e.Version = &v } }
func WithURL(url string) Opt   { return func(e *Error) { e.URL = url } }
func WithCause(cause error) Opt {
	return func(e *Error) { e.Err = cause }
}

// New builds a taxonomy error of the given kind.
func New(kind Kind, opts ...Opt) *Error {
	e := &Error{Kind: kind}
	for _, opt := range opts {
		opt(e)
	}
	return e
}
