package smartaccount

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PolicyData binds a policy contract to its init data.
type PolicyData struct {
	Policy   common.Address `abi:"policy"`
	InitData []byte         `abi:"initData"`
}

type ActionData struct {
	ActionTargetSelector [4]byte        `abi:"actionTargetSelector"`
	ActionTarget         common.Address `abi:"actionTarget"`
	ActionPolicies       []PolicyData   `abi:"actionPolicies"`
}

type ERC7739Data struct {
	AllowedERC7739Content []string     `abi:"allowedERC7739Content"`
	ERC1271Policies       []PolicyData `abi:"erc1271Policies"`
}

// Session is the smart sessions module's enable payload for one session key.
type Session struct {
	SessionValidator         common.Address `abi:"sessionValidator"`
	SessionValidatorInitData []byte         `abi:"sessionValidatorInitData"`
	Salt                     [32]byte       `abi:"salt"`
	UserOpPolicies           []PolicyData   `abi:"userOpPolicies"`
	ERC7739Policies          ERC7739Data    `abi:"erc7739Policies"`
	Actions                  []ActionData   `abi:"actions"`
	PermitERC4337Paymaster   bool           `abi:"permitERC4337Paymaster"`

	// ChainID is the chain the session is enabled on. It is not part of the
	// enable payload or the permission id.
	ChainID uint64
}

// NewSessionSalt returns a random salt so repeated grants for the same
// signer get distinct permission ids.
func NewSessionSalt() ([32]byte, error) {
	var salt [32]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return salt, fmt.Errorf("failed to generate session salt: %w", err)
	}
	return salt, nil
}

var permissionIDArgs = abi.Arguments{{Type: addressT}, {Type: bytesT}, {Type: bytes32T}}

// PermissionID is keccak(abi.encode(sessionValidator, initData, salt)).
func (s *Session) PermissionID() (common.Hash, error) {
	enc, err := permissionIDArgs.Pack(s.SessionValidator, nonNil(s.SessionValidatorInitData), s.Salt)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode permission id: %w", err)
	}
	return crypto.Keccak256Hash(enc), nil
}

func (s *Session) normalize() Session {
	out := *s
	out.SessionValidatorInitData = nonNil(s.SessionValidatorInitData)
	out.UserOpPolicies = normalizePolicies(s.UserOpPolicies)
	out.ERC7739Policies.ERC1271Policies = normalizePolicies(s.ERC7739Policies.ERC1271Policies)
	if out.ERC7739Policies.AllowedERC7739Content == nil {
		out.ERC7739Policies.AllowedERC7739Content = []string{}
	}
	out.Actions = make([]ActionData, len(s.Actions))
	for i, a := range s.Actions {
		a.ActionPolicies = normalizePolicies(a.ActionPolicies)
		out.Actions[i] = a
	}
	return out
}

func normalizePolicies(in []PolicyData) []PolicyData {
	out := make([]PolicyData, len(in))
	for i, p := range in {
		out[i] = PolicyData{Policy: p.Policy, InitData: nonNil(p.InitData)}
	}
	return out
}

// EnableSessionsCall builds the call that enables sessions on the smart
// sessions module. It is executed by the account itself.
func EnableSessionsCall(module common.Address, sessions []Session) (Call, error) {
	normalized := make([]Session, len(sessions))
	for i := range sessions {
		normalized[i] = sessions[i].normalize()
	}
	data, err := SmartSessionsABI.Pack("enableSessions", normalized)
	if err != nil {
		return Call{}, fmt.Errorf("failed to pack enableSessions: %w", err)
	}
	return Call{To: module, Value: new(big.Int), Data: data}, nil
}

var ownableInitArgs = abi.Arguments{{Type: mustType("address[]")}, {Type: uint256T}}

// OwnableValidatorInitData encodes a single-owner, threshold-one ownable
// validator configuration.
func OwnableValidatorInitData(owner common.Address) ([]byte, error) {
	data, err := ownableInitArgs.Pack([]common.Address{owner}, big.NewInt(1))
	if err != nil {
		return nil, fmt.Errorf("failed to encode ownable validator init data: %w", err)
	}
	return data, nil
}

// TimeFramePolicyInitData packs validUntil || validAfter as two uint48s.
func TimeFramePolicyInitData(validUntil, validAfter uint64) []byte {
	out := make([]byte, 12)
	putUint48(out[:6], validUntil)
	putUint48(out[6:], validAfter)
	return out
}

// ValueLimitPolicyInitData encodes the maximum cumulative native value.
func ValueLimitPolicyInitData(limit *big.Int) []byte {
	return common.LeftPadBytes(orZero(limit).Bytes(), 32)
}

func putUint48(b []byte, v uint64) {
	for i := 5; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}
