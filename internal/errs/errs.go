// Package errs defines the error taxonomy shared by all pipeline stages.
// Every caller-facing failure carries a Kind so that HTTP handlers can map
// it to a status code without inspecting error strings.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation and status mapping.
type Kind int

const (
	// KindInternal is an unclassified server-side failure.
	KindInternal Kind = iota
	// KindConfig is a startup configuration failure; the process must not serve traffic.
	KindConfig
	// KindNotFound means a requested object does not exist upstream.
	KindNotFound
	// KindContent means the input bytes are unusable (e.g. not a decodable image).
	KindContent
	// KindUpstream means a collaborator (store, index, embedding service) was unreachable or misbehaved.
	KindUpstream
	// KindInference means the embedding engine failed to produce a vector.
	KindInference
	// KindTimeout means a bounded wait (accelerator admission queue) was exceeded.
	KindTimeout
	// KindSchemaMismatch means the vector collection exists with incompatible parameters.
	KindSchemaMismatch
)

// String returns the kind name used in logs and error text.
func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindNotFound:
		return "not_found"
	case KindContent:
		return "content"
	case KindUpstream:
		return "upstream"
	case KindInference:
		return "inference"
	case KindTimeout:
		return "timeout"
	case KindSchemaMismatch:
		return "schema_mismatch"
	default:
		return "internal"
	}
}

// Error is a classified error with an operation name and a caller-safe message.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns a classified error with a message.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Newf returns a classified error with a formatted message.
func Newf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap returns a classified error wrapping err. If err is already classified,
// its kind is preserved unless kind is more specific than KindInternal.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	if kind == KindInternal {
		kind = KindOf(err)
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of err, or KindInternal when err is unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the caller-safe text for err: the classified message when
// present, else the full error text. Handlers use this so internal traces
// never reach clients unclassified.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// HTTPStatus maps an error to a response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindContent:
		return http.StatusUnsupportedMediaType
	case KindUpstream:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
