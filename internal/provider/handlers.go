package provider

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sirupsen/logrus"

	"github.com/compose-network/passkey-wallet/internal/account"
	"github.com/compose-network/passkey-wallet/internal/events"
)

const (
	AuthSignIn = "signin"
	AuthSignUp = "signup"
)

const capabilityAccounts = "eth_accounts"

func (p *Provider) dispatchTable() map[string]handlerFunc {
	return map[string]handlerFunc{
		"eth_accounts":               p.accounts,
		"eth_chainId":                p.chainIDHex,
		"eth_requestAccounts":        p.requestAccounts,
		"eth_sendTransaction":        p.sendTransaction,
		"wallet_sendCalls":           p.sendCalls,
		"eth_estimateGas":            p.estimateGas,
		"personal_sign":              p.personalSign,
		"eth_signTypedData_v4":       p.signTypedData,
		"wallet_grantPermissions":    p.grantPermissions,
		"wallet_switchEthereumChain": p.switchChain,
		"wallet_addEthereumChain":    p.addChain,
		"wallet_getPermissions":      p.getPermissions,
		"wallet_requestPermissions":  p.requestPermissions,
		"wallet_disconnect":          p.disconnect,
	}
}

func (p *Provider) accounts(context.Context, []json.RawMessage) (interface{}, error) {
	if addr, ok := p.account.Address(); ok {
		return []common.Address{addr}, nil
	}
	return []common.Address{}, nil
}

func (p *Provider) chainIDHex(context.Context, []json.RawMessage) (interface{}, error) {
	return hexutil.Uint64(p.ChainID()), nil
}

func (p *Provider) requestAccounts(ctx context.Context, params []json.RawMessage) (interface{}, error) {
	addr, connected, err := p.connect(ctx, params)
	if err != nil {
		return nil, err
	}
	// Listeners run synchronously and may call back into the dispatcher, so
	// they are notified after connectMu is released.
	if connected {
		p.announce(addr)
	}
	return []common.Address{addr}, nil
}

// connect loads or creates the account unless one is already connected.
// connected reports whether this call established the session.
func (p *Provider) connect(ctx context.Context, params []json.RawMessage) (addr common.Address, connected bool, err error) {
	p.connectMu.Lock()
	defer p.connectMu.Unlock()

	if existing, ok := p.account.Address(); ok {
		return existing, false, nil
	}

	var opts requestAccountsParams
	if _, err := param(params, 0, &opts); err != nil {
		return common.Address{}, false, err
	}
	if opts.AuthType == "" {
		opts.AuthType = AuthSignIn
	}

	switch opts.AuthType {
	case AuthSignIn:
		loaded, found, err := p.account.Load(ctx)
		if err != nil {
			if account.IsUserRejection(err) {
				return common.Address{}, false, toRPCError(err, CodeUserRejected)
			}
			return common.Address{}, false, &RPCError{Code: CodeUnauthorized, Message: err.Error()}
		}
		if !found {
			return common.Address{}, false, newError(CodeUnauthorized, "No existing account found. Please sign up first.")
		}
		addr = loaded
	case AuthSignUp:
		created, err := p.account.Create(ctx, opts.Label)
		if err != nil {
			return common.Address{}, false, &RPCError{Code: CodeUserRejected, Message: err.Error()}
		}
		addr = created
	default:
		return common.Address{}, false, newError(CodeUnauthorized, "unknown auth type %q", opts.AuthType)
	}

	if err := p.store.SetAddress(addr); err != nil {
		return common.Address{}, false, err
	}
	if err := p.store.SetChainID(p.ChainID()); err != nil {
		return common.Address{}, false, err
	}
	p.log.WithFields(logrus.Fields{"address": addr.Hex(), "auth": opts.AuthType}).Info("account connected")
	return addr, true, nil
}

func (p *Provider) sendTransaction(ctx context.Context, params []json.RawMessage) (interface{}, error) {
	calls, err := callsFromParams(params)
	if err != nil {
		return nil, err
	}
	hash, err := p.account.Execute(ctx, calls, "")
	if err != nil {
		return nil, toRPCError(err, CodeUserRejected)
	}
	return hash, nil
}

func (p *Provider) sendCalls(ctx context.Context, params []json.RawMessage) (interface{}, error) {
	var req sendCallsParams
	if err := requiredParam(params, 0, &req); err != nil {
		return nil, err
	}
	calls, err := toCalls(req.Calls)
	if err != nil {
		return nil, err
	}
	hash, err := p.account.Execute(ctx, calls, req.paymasterURL())
	if err != nil {
		return nil, toRPCError(err, CodeUserRejected)
	}
	return hash, nil
}

func (p *Provider) estimateGas(ctx context.Context, params []json.RawMessage) (interface{}, error) {
	// A trailing block tag is allowed and ignored.
	if len(params) > 1 {
		params = params[:1]
	}
	calls, err := callsFromParams(params)
	if err != nil {
		return nil, err
	}
	gas, err := p.account.EstimateGas(ctx, calls)
	if err != nil {
		return nil, toRPCError(err, CodeUserRejected)
	}
	return (*hexutil.Big)(gas), nil
}

func (p *Provider) personalSign(ctx context.Context, params []json.RawMessage) (interface{}, error) {
	var message string
	if err := requiredParam(params, 0, &message); err != nil {
		return nil, err
	}
	sig, err := p.account.SignPersonalMessage(ctx, messageBytes(message))
	if err != nil {
		return nil, toRPCError(err, CodeUserRejected)
	}
	return hexutil.Bytes(sig), nil
}

func (p *Provider) signTypedData(ctx context.Context, params []json.RawMessage) (interface{}, error) {
	if len(params) < 2 {
		return nil, invalidParams("expected [address, typedData]")
	}
	td, err := typedData(params[1])
	if err != nil {
		return nil, err
	}
	sig, err := p.account.SignTypedData(ctx, td)
	if err != nil {
		return nil, toRPCError(err, CodeUserRejected)
	}
	return hexutil.Bytes(sig), nil
}

func (p *Provider) grantPermissions(ctx context.Context, params []json.RawMessage) (interface{}, error) {
	var req account.PermissionRequest
	if err := requiredParam(params, 0, &req); err != nil {
		return nil, err
	}
	res, err := p.account.GrantPermissions(ctx, req)
	if err != nil {
		return nil, toRPCError(err, CodeUserRejected)
	}
	return res, nil
}

func (p *Provider) switchChain(_ context.Context, params []json.RawMessage) (interface{}, error) {
	var req switchChainParams
	if err := requiredParam(params, 0, &req); err != nil {
		return nil, err
	}
	changed, err := p.switchTo(uint64(req.ChainID))
	if err != nil || !changed {
		return nil, err
	}
	p.emitter.Emit(events.ChainChanged, req.ChainID)
	return nil, nil
}

// switchTo persists and applies target. It reports false when target is
// already the current chain.
func (p *Provider) switchTo(target uint64) (bool, error) {
	p.switchMu.Lock()
	defer p.switchMu.Unlock()

	if target == p.ChainID() {
		return false, nil
	}
	if !p.cfg.Chains.Has(target) {
		return false, newError(CodeChainDisconnected, "Chain %d not configured", target)
	}
	if err := p.store.SetChainID(target); err != nil {
		return false, err
	}
	p.setChain(target)
	p.log.WithField("chain", target).Info("switched chain")
	return true, nil
}

func (p *Provider) addChain(context.Context, []json.RawMessage) (interface{}, error) {
	return nil, newError(CodeUnsupportedMethod, "Adding chains is not supported")
}

func (p *Provider) getPermissions(context.Context, []json.RawMessage) (interface{}, error) {
	return []permissionDescriptor{{ParentCapability: capabilityAccounts, Date: time.Now().UnixMilli()}}, nil
}

func (p *Provider) requestPermissions(_ context.Context, params []json.RawMessage) (interface{}, error) {
	var req map[string]json.RawMessage
	if err := requiredParam(params, 0, &req); err != nil {
		return nil, err
	}
	if _, ok := req[capabilityAccounts]; !ok || len(req) != 1 {
		return nil, newError(CodeUnsupportedMethod, "Only the %s permission is supported", capabilityAccounts)
	}
	return []permissionDescriptor{{ParentCapability: capabilityAccounts, Date: time.Now().UnixMilli()}}, nil
}

func (p *Provider) disconnect(context.Context, []json.RawMessage) (interface{}, error) {
	if err := p.store.Reset(); err != nil {
		return nil, err
	}
	p.account.Forget()
	p.log.Info("disconnected")
	p.emitter.Emit(events.Disconnect, events.DisconnectInfo{Code: CodeDisconnected, Message: "User disconnected"})
	return nil, nil
}
