package smartaccount

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

var (
	kernelFactoryAbi = `[{"type":"function","name":"createAccount","stateMutability":"payable","inputs":[{"name":"data","type":"bytes"},{"name":"salt","type":"bytes32"}],"outputs":[{"name":"","type":"address"}]},{"type":"function","name":"getAddress","stateMutability":"view","inputs":[{"name":"data","type":"bytes"},{"name":"salt","type":"bytes32"}],"outputs":[{"name":"","type":"address"}]}]`
	kernelAbi        = `[{"type":"function","name":"initialize","inputs":[{"name":"_rootValidator","type":"bytes21"},{"name":"hook","type":"address"},{"name":"validatorData","type":"bytes"},{"name":"hookData","type":"bytes"},{"name":"initConfig","type":"bytes[]"}],"outputs":[]},{"type":"function","name":"execute","stateMutability":"payable","inputs":[{"name":"execMode","type":"bytes32"},{"name":"executionCalldata","type":"bytes"}],"outputs":[]},{"type":"function","name":"installModule","stateMutability":"payable","inputs":[{"name":"moduleType","type":"uint256"},{"name":"module","type":"address"},{"name":"initData","type":"bytes"}],"outputs":[]}]`
	entryPointAbi    = `[{"type":"function","name":"getNonce","stateMutability":"view","inputs":[{"name":"sender","type":"address"},{"name":"key","type":"uint192"}],"outputs":[{"name":"nonce","type":"uint256"}]}]`
	webAuthnAbi      = `[{"type":"function","name":"webAuthnValidatorStorage","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"pubKeyX","type":"uint256"},{"name":"pubKeyY","type":"uint256"}]}]`
	smartSessionsAbi = `[{"type":"function","name":"enableSessions","stateMutability":"nonpayable","inputs":[{"name":"sessions","type":"tuple[]","components":[{"name":"sessionValidator","type":"address"},{"name":"sessionValidatorInitData","type":"bytes"},{"name":"salt","type":"bytes32"},{"name":"userOpPolicies","type":"tuple[]","components":[{"name":"policy","type":"address"},{"name":"initData","type":"bytes"}]},{"name":"erc7739Policies","type":"tuple","components":[{"name":"allowedERC7739Content","type":"string[]"},{"name":"erc1271Policies","type":"tuple[]","components":[{"name":"policy","type":"address"},{"name":"initData","type":"bytes"}]}]},{"name":"actions","type":"tuple[]","components":[{"name":"actionTargetSelector","type":"bytes4"},{"name":"actionTarget","type":"address"},{"name":"actionPolicies","type":"tuple[]","components":[{"name":"policy","type":"address"},{"name":"initData","type":"bytes"}]}]},{"name":"permitERC4337Paymaster","type":"bool"}]}],"outputs":[{"name":"permissionIds","type":"bytes32[]"}]}]`
)

var (
	FactoryABI           = mustParseABI(kernelFactoryAbi)
	AccountABI           = mustParseABI(kernelAbi)
	EntryPointABI        = mustParseABI(entryPointAbi)
	WebAuthnValidatorABI = mustParseABI(webAuthnAbi)
	SmartSessionsABI     = mustParseABI(smartSessionsAbi)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("smartaccount: invalid embedded ABI: " + err.Error())
	}
	return parsed
}
