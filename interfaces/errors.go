package interfaces

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a core operation failure. The HTTP boundary maps
// kinds to status codes and forwards messages verbatim; the core never
// inspects status codes. A signature that does not verify is not an error
// of any kind - it is a regular result with Valid set to false.
type ErrorKind uint8

const (
	// KindInternal is an unexpected failure inside the service.
	KindInternal ErrorKind = iota
	// KindInvalidInput means a request parameter was missing or malformed.
	KindInvalidInput
	// KindUnknownSigner means the referenced key id is not in the directory.
	KindUnknownSigner
	// KindInvalidKey means key material could not be parsed or has the wrong algorithm.
	KindInvalidKey
	// KindInvalidPassword means a container could not be opened with the given password.
	KindInvalidPassword
	// KindInvalidDocument means the input is not a parsable PDF.
	KindInvalidDocument
	// KindPayloadTooLarge means an input exceeded the configured size bound.
	KindPayloadTooLarge
	// KindNotFound means a referenced directory entry does not exist.
	KindNotFound
)

// String returns the canonical name of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid input"
	case KindUnknownSigner:
		return "unknown signer"
	case KindInvalidKey:
		return "invalid key"
	case KindInvalidPassword:
		return "invalid password"
	case KindInvalidDocument:
		return "invalid document"
	case KindPayloadTooLarge:
		return "payload too large"
	case KindNotFound:
		return "not found"
	default:
		return "internal error"
	}
}

// Error is a classified service error carrying a human-readable message.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// E creates a classified error with the given kind and message.
func E(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Errorf creates a classified error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error without discarding it.
func Wrap(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the kind from a classified error chain.
// Unclassified errors report KindInternal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
