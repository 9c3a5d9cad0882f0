// Package sign provides the signing capability used to keep the stream's
// detached (.gpg) and self-contained (.sjson) signed forms in lockstep with
// the plain documents.
package sign

import (
	"errors"
	"fmt"
)

// ErrKeyringUnavailable means the signing or verification key material
// can't be used: missing gpg binary, missing keyring file, or no usable
// secret key.
var ErrKeyringUnavailable = errors.New("keyring unavailable")

// MismatchError means a signature doesn't verify against the document
// content it is supposed to cover.
type MismatchError struct {
	Path string
	Err  error
}

func (e MismatchError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("Signature mismatch on %q: %v", e.Path, e.Err)
	}

	return fmt.Sprintf("Signature mismatch: %v", e.Err)
}

// Unwrap exposes the backend failure.
func (e MismatchError) Unwrap() error {
	return e.Err
}

// Signer produces and checks both signed representations of a document.
// Implementations are injected so the engine never knows whether signing
// happens in-process or through an external tool.
type Signer interface {
	// Sign returns an armored detached signature over content.
	Sign(content []byte) ([]byte, error)

	// SignInline returns a self-contained signed form embedding content.
	SignInline(content []byte) ([]byte, error)

	// Verify checks a detached signature against content.
	Verify(content []byte, signature []byte) error

	// VerifyInline checks a self-contained signed form and returns the
	// embedded content.
	VerifyInline(signed []byte) ([]byte, error)
}
