package provider

import (
	"errors"
	"fmt"

	"github.com/compose-network/passkey-wallet/internal/account"
	"github.com/compose-network/passkey-wallet/internal/clients"
)

// EIP-1193 provider error codes.
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
	CodeDisconnected      = 4900
	CodeChainDisconnected = 4901
)

// RPCError is the structured error every request fails with.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// ErrorCode and ErrorData let RPCError travel through go-ethereum rpc
// servers unchanged.
func (e *RPCError) ErrorCode() int {
	return e.Code
}

func (e *RPCError) ErrorData() interface{} {
	return e.Data
}

func newError(code int, format string, args ...interface{}) *RPCError {
	return &RPCError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// toRPCError maps err onto the provider codes. Errors without a more
// specific code get fallback.
func toRPCError(err error, fallback int) *RPCError {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	out := &RPCError{Code: fallback, Message: err.Error()}
	switch {
	case account.IsUserRejection(err):
		out.Code = CodeUserRejected
	case errors.Is(err, account.ErrNoCredential):
		out.Code = CodeUnauthorized
	case errors.Is(err, account.ErrUnsupportedSigner), errors.Is(err, account.ErrUnsupportedPermission):
		out.Code = CodeUnsupportedMethod
	case errors.Is(err, clients.ErrChainNotConfigured):
		out.Code = CodeChainDisconnected
	}

	var accErr *account.Error
	if errors.As(err, &accErr) && accErr.Retryable() {
		out.Data = map[string]bool{"retryable": true}
	}
	return out
}
