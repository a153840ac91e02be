package smartaccount

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/compose-network/passkey-wallet/internal/chain"
	"github.com/compose-network/passkey-wallet/internal/logger"
)

// Kernel module type id for validators.
const moduleTypeValidator = 1

// Addresses of the contracts a smart account depends on.
type Addresses struct {
	EntryPoint        common.Address
	EntryPointVersion EntryPointVersion
	Factory           common.Address
	WebAuthnValidator common.Address
	SmartSessions     common.Address
}

func (a Addresses) Validate() error {
	var errs []error
	if a.EntryPoint == (common.Address{}) {
		errs = append(errs, errors.New("entry point address is required"))
	}
	if err := a.EntryPointVersion.Validate(); err != nil {
		errs = append(errs, err)
	}
	if a.Factory == (common.Address{}) {
		errs = append(errs, errors.New("account factory address is required"))
	}
	if a.WebAuthnValidator == (common.Address{}) {
		errs = append(errs, errors.New("webauthn validator address is required"))
	}
	return errors.Join(errs...)
}

type InitData struct {
	RootValidator [21]byte
	Hook          common.Address
	ValidatorData []byte
	HookData      []byte
	InitConfig    [][]byte
}

// NewInitData roots the account on the WebAuthn validator and, when a smart
// sessions module is configured, installs it as a second validator.
func NewInitData(addrs Addresses, validatorData []byte) (*InitData, error) {
	data := &InitData{
		ValidatorData: validatorData,
		HookData:      []byte{},
		InitConfig:    [][]byte{},
	}
	data.RootValidator[0] = moduleTypeValidator
	copy(data.RootValidator[1:], addrs.WebAuthnValidator.Bytes())

	if addrs.SmartSessions != (common.Address{}) {
		install, err := AccountABI.Pack("installModule", big.NewInt(moduleTypeValidator), addrs.SmartSessions, []byte{})
		if err != nil {
			return nil, fmt.Errorf("failed to pack installModule: %w", err)
		}
		data.InitConfig = append(data.InitConfig, install)
	}
	return data, nil
}

func (d *InitData) InitializeCalldata() ([]byte, error) {
	calldata, err := AccountABI.Pack("initialize",
		d.RootValidator,
		d.Hook,
		nonNil(d.ValidatorData),
		nonNil(d.HookData),
		d.InitConfig,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pack initialize function: %w", err)
	}
	return calldata, nil
}

// Salt is derived from the validator data so the same credential always
// maps to the same account.
func (d *InitData) Salt() [32]byte {
	return crypto.Keccak256Hash(d.ValidatorData)
}

// FactoryData is the factory createAccount calldata for this account.
func (d *InitData) FactoryData() ([]byte, error) {
	initCalldata, err := d.InitializeCalldata()
	if err != nil {
		return nil, err
	}
	data, err := FactoryABI.Pack("createAccount", initCalldata, d.Salt())
	if err != nil {
		return nil, fmt.Errorf("failed to pack createAccount function: %w", err)
	}
	return data, nil
}

// ComputeAddress asks the factory for the counterfactual account address.
func ComputeAddress(ctx context.Context, caller bind.ContractCaller, factory common.Address, d *InitData) (common.Address, error) {
	initCalldata, err := d.InitializeCalldata()
	if err != nil {
		return common.Address{}, err
	}
	contract := bind.NewBoundContract(factory, FactoryABI, caller, nil, nil)
	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "getAddress", initCalldata, d.Salt()); err != nil {
		return common.Address{}, fmt.Errorf("failed to call getAddress: %w", chain.Classify(err))
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected getAddress result %T", out[0])
	}
	return addr, nil
}

func IsDeployed(ctx context.Context, caller bind.ContractCaller, addr common.Address) (bool, error) {
	code, err := caller.CodeAt(ctx, addr, nil)
	if err != nil {
		return false, fmt.Errorf("failed to check account code: %w", chain.Classify(err))
	}
	return len(code) > 0, nil
}

// Handle is a smart account bound to one WebAuthn credential. It is valid on
// every chain where the factory is deployed at the same address.
type Handle struct {
	addrs       Addresses
	address     common.Address
	initData    *InitData
	factoryData []byte
	publicKey   PublicKey

	mu       sync.Mutex
	deployed map[uint64]bool
}

// NewHandle derives the account for the given credential public key.
func NewHandle(ctx context.Context, caller bind.ContractCaller, addrs Addresses, key PublicKey, credentialID string) (*Handle, error) {
	if err := addrs.Validate(); err != nil {
		return nil, err
	}
	validatorData, err := WebAuthnValidatorInitData(key, credentialID)
	if err != nil {
		return nil, err
	}
	initData, err := NewInitData(addrs, validatorData)
	if err != nil {
		return nil, err
	}
	factoryData, err := initData.FactoryData()
	if err != nil {
		return nil, err
	}
	address, err := ComputeAddress(ctx, caller, addrs.Factory, initData)
	if err != nil {
		return nil, err
	}
	logger.Debug("Smart account address: %s", address.Hex())

	return &Handle{
		addrs:       addrs,
		address:     address,
		initData:    initData,
		factoryData: factoryData,
		publicKey:   key,
		deployed:    make(map[uint64]bool),
	}, nil
}

// GetAddress returns the smart account address
func (h *Handle) GetAddress() common.Address {
	return h.address
}

func (h *Handle) Addresses() Addresses {
	return h.addrs
}

func (h *Handle) PublicKey() PublicKey {
	return h.publicKey
}

func (h *Handle) FactoryData() []byte {
	return common.CopyBytes(h.factoryData)
}

// IsDeployed reports whether the account has code on chainID. A positive
// answer is cached since accounts are never undeployed.
func (h *Handle) IsDeployed(ctx context.Context, chainID uint64, caller bind.ContractCaller) (bool, error) {
	h.mu.Lock()
	if h.deployed[chainID] {
		h.mu.Unlock()
		return true, nil
	}
	h.mu.Unlock()

	deployed, err := IsDeployed(ctx, caller, h.address)
	if err != nil {
		return false, err
	}
	if deployed {
		h.mu.Lock()
		h.deployed[chainID] = true
		h.mu.Unlock()
	}
	return deployed, nil
}

// NewUserOperation assembles the unsigned, ungassed operation for calls on
// chainID. The nonce is read fresh and the factory fields are set only while
// the account has no code.
func (h *Handle) NewUserOperation(ctx context.Context, chainID uint64, caller bind.ContractCaller, calls []Call) (*UserOperation, error) {
	callData, err := EncodeCalls(calls)
	if err != nil {
		return nil, err
	}
	nonce, err := GetNonce(ctx, caller, h.addrs.EntryPoint, h.address, NonceKey(h.addrs.WebAuthnValidator, 0))
	if err != nil {
		return nil, err
	}
	op := &UserOperation{
		Sender:   h.address,
		Nonce:    nonce,
		CallData: callData,
	}

	deployed, err := h.IsDeployed(ctx, chainID, caller)
	if err != nil {
		return nil, err
	}
	if !deployed {
		factory := h.addrs.Factory
		op.Factory = &factory
		op.FactoryData = h.FactoryData()
	}
	return op, nil
}

// Hash returns the hash the WebAuthn credential must sign for op.
func (h *Handle) Hash(op *UserOperation, chainID uint64) (common.Hash, error) {
	return op.Hash(h.addrs.EntryPoint, new(big.Int).SetUint64(chainID), h.addrs.EntryPointVersion)
}
