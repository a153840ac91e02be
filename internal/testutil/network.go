package testutil

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/compose-network/passkey-wallet/internal/smartaccount"
)

// Contracts used by the fake network.
var Contracts = smartaccount.Addresses{
	EntryPoint:        common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032"),
	EntryPointVersion: smartaccount.EntryPointV07,
	Factory:           common.HexToAddress("0xcfb519af7e3e4b772c619ed12bcdc7d758ac6ee6"),
	WebAuthnValidator: common.HexToAddress("0x2f167e55d42584f65e2e30a748f41ee75a311414"),
	SmartSessions:     common.HexToAddress("0x00000000002B0eCfbD0496EE71e01257dA0E37DE"),
}

// Network simulates one chain with the account contracts deployed. Accounts
// get code and their nonce is bumped whenever the bundler accepts one of
// their operations.
type Network struct {
	ChainID   uint64
	Reader    *ContractReader
	Bundler   *Bundler
	Paymaster *Paymaster

	mu     sync.Mutex
	keys   map[common.Address]smartaccount.PublicKey
	nonces map[common.Address]uint64
}

func NewNetwork(chainID uint64) *Network {
	n := &Network{
		ChainID:   chainID,
		Reader:    NewContractReader(),
		Bundler:   NewBundler(),
		Paymaster: NewPaymaster(),
		keys:      make(map[common.Address]smartaccount.PublicKey),
		nonces:    make(map[common.Address]uint64),
	}

	n.Reader.Handle(Contracts.Factory, smartaccount.FactoryABI, "getAddress", func(args []interface{}) ([]interface{}, error) {
		return []interface{}{DeriveAddress(args[0].([]byte), args[1].([32]byte))}, nil
	})
	n.Reader.Handle(Contracts.EntryPoint, smartaccount.EntryPointABI, "getNonce", func(args []interface{}) ([]interface{}, error) {
		n.mu.Lock()
		defer n.mu.Unlock()
		return []interface{}{new(big.Int).SetUint64(n.nonces[args[0].(common.Address)])}, nil
	})
	n.Reader.Handle(Contracts.WebAuthnValidator, smartaccount.WebAuthnValidatorABI, "webAuthnValidatorStorage", func(args []interface{}) ([]interface{}, error) {
		n.mu.Lock()
		defer n.mu.Unlock()
		key, ok := n.keys[args[0].(common.Address)]
		if !ok {
			return []interface{}{new(big.Int), new(big.Int)}, nil
		}
		return []interface{}{key.X, key.Y}, nil
	})
	n.Bundler.OnSend = func(op *smartaccount.UserOperation) {
		n.Reader.SetCode(op.Sender, []byte{0xef, 0x01})
		n.mu.Lock()
		n.nonces[op.Sender]++
		n.mu.Unlock()
	}
	return n
}

// DeriveAddress is the fake factory's counterfactual address function.
func DeriveAddress(initData []byte, salt [32]byte) common.Address {
	return common.BytesToAddress(crypto.Keccak256(initData, salt[:])[12:])
}

// SetValidatorKey registers key for account in the WebAuthn validator.
func (n *Network) SetValidatorKey(account common.Address, key smartaccount.PublicKey) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.keys[account] = key
}

func (n *Network) Nonce(account common.Address) uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.nonces[account]
}
