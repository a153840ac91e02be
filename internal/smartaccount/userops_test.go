package smartaccount_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/passkey-wallet/internal/smartaccount"
)

func sampleOp() *smartaccount.UserOperation {
	paymaster := common.HexToAddress("0x00000000000000fB866DaAA79352cC568a005D96")
	return &smartaccount.UserOperation{
		Sender:                        common.HexToAddress("0x6aA6b7a4CC7b1e2d9C3D50a5F2E5e0cA5ABd93C1"),
		Nonce:                         big.NewInt(3),
		CallData:                      []byte{0xe9, 0xae, 0x5c, 0x53},
		CallGasLimit:                  big.NewInt(100_000),
		VerificationGasLimit:          big.NewInt(300_000),
		PreVerificationGas:            big.NewInt(50_000),
		MaxFeePerGas:                  big.NewInt(2_000_000_000),
		MaxPriorityFeePerGas:          big.NewInt(1_000_000_000),
		Paymaster:                     &paymaster,
		PaymasterVerificationGasLimit: big.NewInt(40_000),
		PaymasterPostOpGasLimit:       big.NewInt(10_000),
		PaymasterData:                 []byte{0x01, 0x02},
	}
}

func TestPackGasFields(t *testing.T) {
	limits := smartaccount.PackAccountGasLimits(big.NewInt(300_000), big.NewInt(100_000))
	require.EqualValues(t, 300_000, new(big.Int).SetBytes(limits[:16]).Int64())
	require.EqualValues(t, 100_000, new(big.Int).SetBytes(limits[16:]).Int64())

	fees := smartaccount.PackGasFees(big.NewInt(1), big.NewInt(2))
	require.EqualValues(t, 1, new(big.Int).SetBytes(fees[:16]).Int64())
	require.EqualValues(t, 2, new(big.Int).SetBytes(fees[16:]).Int64())
}

func TestPack(t *testing.T) {
	op := sampleOp()
	packed := op.Pack()

	require.EqualValues(t, 1_000_000_000, new(big.Int).SetBytes(packed.GasFees[:16]).Int64())
	require.EqualValues(t, 2_000_000_000, new(big.Int).SetBytes(packed.GasFees[16:]).Int64())
	require.Empty(t, packed.InitCode)

	pmd := packed.PaymasterAndData
	require.Len(t, pmd, 20+16+16+2)
	require.Equal(t, op.Paymaster.Bytes(), pmd[:20])
	require.EqualValues(t, 40_000, new(big.Int).SetBytes(pmd[20:36]).Int64())
	require.EqualValues(t, 10_000, new(big.Int).SetBytes(pmd[36:52]).Int64())
	require.Equal(t, []byte{0x01, 0x02}, pmd[52:])

	require.Len(t, op.PaymasterAndData(smartaccount.EntryPointV06), 22)

	factory := common.HexToAddress("0xcfb519af7e3e4b772c619ed12bcdc7d758ac6ee6")
	op.Factory = &factory
	op.FactoryData = []byte{0xff}
	require.Equal(t, append(factory.Bytes(), 0xff), op.InitCode())
}

func TestTotalGas(t *testing.T) {
	require.EqualValues(t, 500_000, sampleOp().TotalGas().Int64())
	require.EqualValues(t, 0, (&smartaccount.UserOperation{}).TotalGas().Int64())
}

func TestHash(t *testing.T) {
	entryPoint := common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")
	chainID := big.NewInt(84532)

	op := sampleOp()
	h1, err := op.Hash(entryPoint, chainID, smartaccount.EntryPointV07)
	require.NoError(t, err)

	// Signature is not part of the hash.
	signed := op.Copy()
	signed.Signature = []byte{0xde, 0xad}
	h2, err := signed.Hash(entryPoint, chainID, smartaccount.EntryPointV07)
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	bumped := op.Copy()
	bumped.Nonce = big.NewInt(4)
	h3, err := bumped.Hash(entryPoint, chainID, smartaccount.EntryPointV07)
	require.NoError(t, err)
	require.NotEqual(t, h1, h3)

	h4, err := op.Hash(entryPoint, big.NewInt(1), smartaccount.EntryPointV07)
	require.NoError(t, err)
	require.NotEqual(t, h1, h4)

	h5, err := op.Hash(entryPoint, chainID, smartaccount.EntryPointV06)
	require.NoError(t, err)
	require.NotEqual(t, h1, h5)

	_, err = op.Hash(entryPoint, chainID, "0.8")
	require.Error(t, err)
}

// Expected hashes follow EntryPoint v0.7 getUserOpHash:
// keccak256(abi.encode(keccak256(UserOperationLib.encode(op)), entryPoint, chainid)).
func TestHashV07KnownAnswer(t *testing.T) {
	entryPoint := common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")
	chainID := big.NewInt(84532)
	factory := common.HexToAddress("0xcfb519af7e3e4b772c619ed12bcdc7d758ac6ee6")

	tests := []struct {
		name   string
		mutate func(op *smartaccount.UserOperation)
		want   string
	}{
		{
			name:   "sponsored",
			mutate: func(*smartaccount.UserOperation) {},
			want:   "0x0c37a46b1ddcc1a39ddce3ae649f10f1d96a1fabb96c0432b20eea4066c82b30",
		},
		{
			name: "sponsored deployment",
			mutate: func(op *smartaccount.UserOperation) {
				op.Factory = &factory
				op.FactoryData = []byte{0xff}
			},
			want: "0x5cfe72a69a93a87e8bb4178c40e07b7cac505969d2f42cde15a09f042cc83e06",
		},
		{
			name: "self paid",
			mutate: func(op *smartaccount.UserOperation) {
				op.Paymaster = nil
			},
			want: "0x9594d6234b86a7bca02e25e68e17af0ed41bcad75ad736d638142e0fbbe34039",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := sampleOp()
			tt.mutate(op)
			got, err := op.Hash(entryPoint, chainID, smartaccount.EntryPointV07)
			require.NoError(t, err)
			require.Equal(t, common.HexToHash(tt.want), got)
		})
	}
}

func TestValidateGas(t *testing.T) {
	require.NoError(t, sampleOp().ValidateGas())
	require.NoError(t, (&smartaccount.UserOperation{}).ValidateGas())

	maxUint128 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	op := sampleOp()
	op.MaxFeePerGas = maxUint128
	require.NoError(t, op.ValidateGas())

	for _, v := range []*big.Int{
		new(big.Int).Lsh(big.NewInt(1), 128),
		new(big.Int).Lsh(big.NewInt(1), 300),
		big.NewInt(-1),
	} {
		op := sampleOp()
		op.CallGasLimit = v
		err := op.ValidateGas()
		require.ErrorIs(t, err, smartaccount.ErrGasOverflow)
		require.ErrorContains(t, err, "callGasLimit")

		// Hashing reports the overflow instead of panicking in Pack.
		_, err = op.Hash(common.Address{}, big.NewInt(1), smartaccount.EntryPointV07)
		require.ErrorIs(t, err, smartaccount.ErrGasOverflow)
	}

	op = sampleOp()
	op.PaymasterPostOpGasLimit = new(big.Int).Lsh(big.NewInt(1), 129)
	require.ErrorIs(t, op.ValidateGas(), smartaccount.ErrGasOverflow)
}

func TestCopyIsDeep(t *testing.T) {
	op := sampleOp()
	cpy := op.Copy()
	cpy.Nonce.SetInt64(99)
	cpy.CallData[0] = 0x00
	*cpy.Paymaster = common.Address{}

	require.EqualValues(t, 3, op.Nonce.Int64())
	require.Equal(t, byte(0xe9), op.CallData[0])
	require.NotEqual(t, common.Address{}, *op.Paymaster)
}
