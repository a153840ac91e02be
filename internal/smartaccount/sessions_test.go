package smartaccount_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/passkey-wallet/internal/smartaccount"
	"github.com/compose-network/passkey-wallet/internal/testutil"
)

func TestPermissionID(t *testing.T) {
	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")
	initData, err := smartaccount.OwnableValidatorInitData(owner)
	require.NoError(t, err)

	s := smartaccount.Session{
		SessionValidator:         common.HexToAddress("0x2483DA3A338895199E5e538530213157e931Bf06"),
		SessionValidatorInitData: initData,
	}
	id1, err := s.PermissionID()
	require.NoError(t, err)
	id2, err := s.PermissionID()
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	s.Salt, err = smartaccount.NewSessionSalt()
	require.NoError(t, err)
	id3, err := s.PermissionID()
	require.NoError(t, err)
	require.NotEqual(t, id1, id3)
}

func TestOwnableValidatorInitData(t *testing.T) {
	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")
	data, err := smartaccount.OwnableValidatorInitData(owner)
	require.NoError(t, err)

	addrs, _ := abi.NewType("address[]", "", nil)
	uint256, _ := abi.NewType("uint256", "", nil)
	out, err := abi.Arguments{{Type: addrs}, {Type: uint256}}.Unpack(data)
	require.NoError(t, err)
	require.Equal(t, []common.Address{owner}, out[0])
	require.EqualValues(t, 1, out[1].(*big.Int).Int64())
}

func TestEnableSessionsCall(t *testing.T) {
	module := common.HexToAddress("0x00000000002B0eCfbD0496EE71e01257dA0E37DE")
	sessions := []smartaccount.Session{{
		SessionValidator: common.HexToAddress("0x2483DA3A338895199E5e538530213157e931Bf06"),
		Actions: []smartaccount.ActionData{{
			ActionTargetSelector: [4]byte{0xa9, 0x05, 0x9c, 0xbb},
			ActionTarget:         common.HexToAddress("0xbeef"),
			ActionPolicies: []smartaccount.PolicyData{{
				Policy: common.HexToAddress("0x0000003111cD8e92337C100F22B7A9dbf8DEE301"),
			}},
		}},
		UserOpPolicies: []smartaccount.PolicyData{{
			Policy:   common.HexToAddress("0x8177451511dE0577b911C254E9551D981C26dc72"),
			InitData: smartaccount.TimeFramePolicyInitData(1_700_000_000, 0),
		}},
		PermitERC4337Paymaster: true,
	}}

	call, err := smartaccount.EnableSessionsCall(module, sessions)
	require.NoError(t, err)
	require.Equal(t, module, call.To)
	require.Zero(t, call.Value.Sign())

	method := smartaccount.SmartSessionsABI.Methods["enableSessions"]
	require.Equal(t, method.ID, call.Data[:4])
	_, err = method.Inputs.Unpack(call.Data[4:])
	require.NoError(t, err)

	// The chain id is bookkeeping and never reaches the payload.
	sessions[0].ChainID = 84532
	onChain, err := smartaccount.EnableSessionsCall(module, sessions)
	require.NoError(t, err)
	require.Equal(t, call.Data, onChain.Data)
	withChain, err := sessions[0].PermissionID()
	require.NoError(t, err)
	sessions[0].ChainID = 0
	withoutChain, err := sessions[0].PermissionID()
	require.NoError(t, err)
	require.Equal(t, withoutChain, withChain)
}

func TestPolicyInitData(t *testing.T) {
	tf := smartaccount.TimeFramePolicyInitData(0x010203040506, 0x0a)
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6, 0, 0, 0, 0, 0, 0x0a}, tf)

	vl := smartaccount.ValueLimitPolicyInitData(big.NewInt(1000))
	require.Len(t, vl, 32)
	require.EqualValues(t, 1000, new(big.Int).SetBytes(vl).Int64())
}

func TestWebAuthnEncoding(t *testing.T) {
	data, err := smartaccount.WebAuthnValidatorInitData(testKey, "cred-1")
	require.NoError(t, err)
	require.Len(t, data, 96)
	require.Equal(t, common.LeftPadBytes(testKey.X.Bytes(), 32), data[:32])

	sig, err := smartaccount.EncodeWebAuthnSignature(smartaccount.WebAuthnSignature{
		AuthenticatorData: []byte{0x01},
		ClientDataJSON:    `{"type":"webauthn.get"}`,
		TypeIndex:         big.NewInt(1),
		R:                 big.NewInt(2),
		S:                 big.NewInt(3),
	})
	require.NoError(t, err)
	require.NotEmpty(t, sig)

	mock := smartaccount.MockWebAuthnSignature()
	require.Equal(t, mock, smartaccount.MockWebAuthnSignature())
}

func TestReadWebAuthnPublicKey(t *testing.T) {
	r := testutil.NewContractReader()
	r.Handle(testAddrs.WebAuthnValidator, smartaccount.WebAuthnValidatorABI, "webAuthnValidatorStorage", func(args []interface{}) ([]interface{}, error) {
		if args[0].(common.Address) == accountAddr {
			return []interface{}{testKey.X, testKey.Y}, nil
		}
		return []interface{}{big.NewInt(0), big.NewInt(0)}, nil
	})

	key, err := smartaccount.ReadWebAuthnPublicKey(context.Background(), r, testAddrs.WebAuthnValidator, accountAddr)
	require.NoError(t, err)
	require.Equal(t, 0, testKey.X.Cmp(key.X))
	require.False(t, key.IsZero())

	key, err = smartaccount.ReadWebAuthnPublicKey(context.Background(), r, testAddrs.WebAuthnValidator, common.HexToAddress("0x01"))
	require.NoError(t, err)
	require.True(t, key.IsZero())
}
