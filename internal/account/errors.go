package account

import (
	"errors"
	"fmt"

	"github.com/compose-network/passkey-wallet/internal/bundler"
	"github.com/compose-network/passkey-wallet/internal/webauthn"
)

var (
	ErrUnsupportedSigner     = errors.New("unsupported signer type")
	ErrUnsupportedPermission = errors.New("unsupported permission type")
	// ErrNoCredential is returned by operations that need a signing
	// credential before one was created, loaded or restored.
	ErrNoCredential = errors.New("no credential loaded")
	ErrLabelTooLong = errors.New("label exceeds 32 bytes")
)

type ErrorKind int

const (
	KindCreation ErrorKind = iota
	KindLoad
	KindExecution
)

func (k ErrorKind) String() string {
	switch k {
	case KindCreation:
		return "account creation"
	case KindLoad:
		return "account load"
	default:
		return "execution"
	}
}

// Error wraps the first failure of a create, load or execute flow.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the operation may have been dropped by the
// bundler rather than rejected.
func (e *Error) Retryable() bool {
	return errors.Is(e.Err, bundler.ErrReceiptTimeout)
}

func wrap(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return err
	}
	return &Error{Kind: kind, Err: err}
}

// IsUserRejection reports whether err originates from a dismissed
// authenticator prompt.
func IsUserRejection(err error) bool {
	return errors.Is(err, webauthn.ErrUserRejected)
}
