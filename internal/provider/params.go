package provider

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/samber/lo"

	"github.com/compose-network/passkey-wallet/internal/smartaccount"
)

var errMissingParam = errors.New("missing parameter")

func splitParams(raw json.RawMessage) ([]json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var params []json.RawMessage
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("params must be an array: %w", err)
	}
	return params, nil
}

// param decodes params[i] into v. Missing or null params leave v untouched
// and report false.
func param(params []json.RawMessage, i int, v interface{}) (bool, error) {
	if i >= len(params) || bytes.Equal(bytes.TrimSpace(params[i]), []byte("null")) {
		return false, nil
	}
	if err := json.Unmarshal(params[i], v); err != nil {
		return false, invalidParams("param %d: %v", i, err)
	}
	return true, nil
}

func requiredParam(params []json.RawMessage, i int, v interface{}) error {
	ok, err := param(params, i, v)
	if err != nil {
		return err
	}
	if !ok {
		return invalidParams("param %d: %v", i, errMissingParam)
	}
	return nil
}

func invalidParams(format string, args ...interface{}) *RPCError {
	return newError(CodeUnsupportedMethod, "invalid params: "+format, args...)
}

type requestAccountsParams struct {
	AuthType string `json:"authType,omitempty"`
	Label    string `json:"label,omitempty"`
}

// callArgs is one transaction object of eth_sendTransaction,
// eth_estimateGas or a wallet_sendCalls call.
type callArgs struct {
	To      *common.Address `json:"to"`
	Value   *quantity       `json:"value,omitempty"`
	Data    *hexutil.Bytes  `json:"data,omitempty"`
	Input   *hexutil.Bytes  `json:"input,omitempty"`
	ChainID *hexutil.Big    `json:"chainId,omitempty"`
}

// quantity is a call value: a hex string (leading zeros allowed), a decimal
// string or a JSON number.
type quantity big.Int

func (q *quantity) UnmarshalJSON(input []byte) error {
	text := string(input)
	if len(input) > 0 && input[0] == '"' {
		if err := json.Unmarshal(input, &text); err != nil {
			return err
		}
	}
	text = strings.TrimSpace(text)
	v, ok := math.ParseBig256(text)
	if !ok || v.Sign() < 0 || text == "" {
		return fmt.Errorf("invalid value %s", input)
	}
	*q = quantity(*v)
	return nil
}

func (c callArgs) call() smartaccount.Call {
	out := smartaccount.Call{To: *c.To, Value: new(big.Int), Data: []byte{}}
	if c.Value != nil {
		out.Value = (*big.Int)(c.Value)
	}
	switch {
	case c.Input != nil:
		out.Data = *c.Input
	case c.Data != nil:
		out.Data = *c.Data
	}
	return out
}

func toCalls(args []callArgs) ([]smartaccount.Call, error) {
	if len(args) == 0 {
		return nil, invalidParams("no calls")
	}
	if _, i, found := lo.FindIndexOf(args, func(c callArgs) bool { return c.To == nil }); found {
		return nil, invalidParams("call %d has no recipient, contract creation is not supported", i)
	}
	return lo.Map(args, func(c callArgs, _ int) smartaccount.Call { return c.call() }), nil
}

// callsFromParams decodes every positional param as a transaction object.
func callsFromParams(params []json.RawMessage) ([]smartaccount.Call, error) {
	args := make([]callArgs, len(params))
	for i := range params {
		if err := requiredParam(params, i, &args[i]); err != nil {
			return nil, err
		}
	}
	return toCalls(args)
}

type sendCallsParams struct {
	Version      string          `json:"version,omitempty"`
	ChainID      *hexutil.Big    `json:"chainId,omitempty"`
	From         *common.Address `json:"from,omitempty"`
	Calls        []callArgs      `json:"calls"`
	Capabilities *capabilities   `json:"capabilities,omitempty"`
}

type capabilities struct {
	URL              string `json:"url,omitempty"`
	PaymasterService *struct {
		URL string `json:"url"`
	} `json:"paymasterService,omitempty"`
}

// paymasterURL accepts both the flat url capability and the ERC-7677
// paymasterService form.
func (p sendCallsParams) paymasterURL() string {
	if p.Capabilities == nil {
		return ""
	}
	if p.Capabilities.PaymasterService != nil && p.Capabilities.PaymasterService.URL != "" {
		return p.Capabilities.PaymasterService.URL
	}
	return p.Capabilities.URL
}

// messageBytes decodes a personal_sign payload. Hex strings are taken as
// raw bytes, anything else as UTF-8 text.
func messageBytes(s string) []byte {
	if strings.HasPrefix(s, "0x") {
		if b, err := hexutil.Decode(s); err == nil {
			return b
		}
	}
	return []byte(s)
}

// typedData decodes the eth_signTypedData_v4 payload, given either as a
// JSON string or as an object.
func typedData(raw json.RawMessage) (apitypes.TypedData, error) {
	var td apitypes.TypedData
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		raw = json.RawMessage(encoded)
	}
	if err := json.Unmarshal(raw, &td); err != nil {
		return td, invalidParams("typed data: %v", err)
	}
	return td, nil
}

type switchChainParams struct {
	ChainID hexutil.Uint64 `json:"chainId"`
}

type permissionDescriptor struct {
	ParentCapability string `json:"parentCapability"`
	Date             int64  `json:"date"`
}
