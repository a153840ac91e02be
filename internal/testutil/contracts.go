// Package testutil holds in-memory stand-ins for the chain, bundler,
// paymaster and registry services used across package tests.
package testutil

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

type callKey struct {
	to       common.Address
	selector [4]byte
}

type handler struct {
	method abi.Method
	fn     func(args []interface{}) ([]interface{}, error)
}

// ContractReader is a fake bind.ContractCaller. Contract methods are served
// by handlers registered per (address, method); arguments are decoded and
// results encoded with the method's ABI.
type ContractReader struct {
	mu       sync.Mutex
	code     map[common.Address][]byte
	handlers map[callKey]handler
	calls    map[string]int
	err      error
}

func NewContractReader() *ContractReader {
	return &ContractReader{
		code:     make(map[common.Address][]byte),
		handlers: make(map[callKey]handler),
		calls:    make(map[string]int),
	}
}

func (r *ContractReader) SetCode(addr common.Address, code []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.code[addr] = code
}

// FailWith makes every subsequent call return err. A nil err restores normal
// behaviour.
func (r *ContractReader) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *ContractReader) Handle(addr common.Address, contract abi.ABI, method string, fn func(args []interface{}) ([]interface{}, error)) {
	m, ok := contract.Methods[method]
	if !ok {
		panic(fmt.Sprintf("testutil: unknown method %s", method))
	}
	var sel [4]byte
	copy(sel[:], m.ID)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[callKey{to: addr, selector: sel}] = handler{method: m, fn: fn}
}

// Calls reports how many times method was invoked on any address.
func (r *ContractReader) Calls(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[method]
}

func (r *ContractReader) CodeAt(_ context.Context, contract common.Address, _ *big.Int) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.calls["code"]++
	return r.code[contract], nil
}

func (r *ContractReader) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if call.To == nil || len(call.Data) < 4 {
		return nil, fmt.Errorf("testutil: malformed call")
	}
	var sel [4]byte
	copy(sel[:], call.Data[:4])

	r.mu.Lock()
	if r.err != nil {
		err := r.err
		r.mu.Unlock()
		return nil, err
	}
	h, ok := r.handlers[callKey{to: *call.To, selector: sel}]
	if ok {
		r.calls[h.method.Name]++
	}
	r.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("testutil: no handler for %s selector %x", call.To.Hex(), sel)
	}
	args, err := h.method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, fmt.Errorf("testutil: decode %s args: %w", h.method.Name, err)
	}
	out, err := h.fn(args)
	if err != nil {
		return nil, err
	}
	return h.method.Outputs.Pack(out...)
}
