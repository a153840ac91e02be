package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

type ErrorKind int

const (
	// KindTransport covers dial failures, timeouts and malformed responses.
	KindTransport ErrorKind = iota
	// KindRPC is a JSON-RPC error object returned by the remote service.
	KindRPC
	// KindRevert is a JSON-RPC error that carries contract revert data.
	KindRevert
)

func (k ErrorKind) String() string {
	switch k {
	case KindRPC:
		return "rpc"
	case KindRevert:
		return "revert"
	default:
		return "transport"
	}
}

// revertCode is the JSON-RPC error code geth uses for "execution reverted".
const revertCode = 3

// Error is the tagged form of any failure reported by a chain, bundler or
// paymaster endpoint.
type Error struct {
	Kind    ErrorKind
	Code    int
	Message string
	Data    []byte
	Err     error
}

func (e *Error) Error() string {
	if e.Kind == KindTransport {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	if len(e.Data) > 0 {
		return fmt.Sprintf("%s error %d: %s (data %s)", e.Kind, e.Code, e.Message, hexutil.Encode(e.Data))
	}
	return fmt.Sprintf("%s error %d: %s", e.Kind, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRevert reports whether err carries a tagged revert.
func IsRevert(err error) bool {
	var chainErr *Error
	return errors.As(err, &chainErr) && chainErr.Kind == KindRevert
}

// Classify tags err once at the client boundary. Already tagged errors and
// nil pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return err
	}

	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) {
		return &Error{Kind: KindTransport, Message: err.Error(), Err: err}
	}

	out := &Error{
		Kind:    KindRPC,
		Code:    rpcErr.ErrorCode(),
		Message: rpcErr.Error(),
		Err:     err,
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if s, ok := dataErr.ErrorData().(string); ok {
			if b, decodeErr := hexutil.Decode(s); decodeErr == nil {
				out.Data = b
			}
		}
	}

	if out.Code == revertCode || len(out.Data) > 0 || strings.Contains(strings.ToLower(out.Message), "reverted") {
		out.Kind = KindRevert
	}
	return out
}
