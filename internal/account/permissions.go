package account

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/compose-network/passkey-wallet/internal/smartaccount"
)

// Permission types accepted by GrantPermissions.
const (
	PermissionContractCall     = "contract-call"
	PermissionNativeTokenLimit = "native-token-limit"

	SignerAccount = "account"
)

// Signer is the ERC-7715 signer a permission is granted to.
type Signer struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type accountSignerData struct {
	ID common.Address `json:"id"`
}

type Permission struct {
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data"`
	Required bool            `json:"required,omitempty"`
}

type contractCallData struct {
	Address          common.Address `json:"address"`
	FunctionSelector hexutil.Bytes  `json:"functionSelector,omitempty"`
}

type nativeTokenLimitData struct {
	Allowance *hexutil.Big `json:"allowance"`
}

// PermissionRequest is one ERC-7715 wallet_grantPermissions request.
type PermissionRequest struct {
	ChainID     *hexutil.Big    `json:"chainId,omitempty"`
	Address     *common.Address `json:"address,omitempty"`
	Expiry      uint64          `json:"expiry,omitempty"`
	Signer      *Signer         `json:"signer"`
	Permissions []Permission    `json:"permissions"`
}

type GrantResult struct {
	PermissionsContext hexutil.Bytes  `json:"permissionsContext"`
	GrantedPermissions []Permission   `json:"grantedPermissions"`
	Expiry             uint64         `json:"expiry"`
	ChainID            hexutil.Uint64 `json:"chainId"`
}

// GrantPermissions enables a smart session for the requested signer and
// returns its permission id as the permissions context. Only "account"
// signers are supported. Sessions always permit paymaster sponsorship.
func (a *Account) GrantPermissions(ctx context.Context, req PermissionRequest) (*GrantResult, error) {
	session, err := a.session(req)
	if err != nil {
		return nil, err
	}
	call, err := smartaccount.EnableSessionsCall(a.cfg.Contracts.SmartSessions, []smartaccount.Session{session})
	if err != nil {
		return nil, err
	}

	a.submitMu.Lock()
	defer a.submitMu.Unlock()
	o, err := a.prepare(ctx, []smartaccount.Call{call}, "", true)
	if err != nil {
		return nil, wrap(KindExecution, err)
	}
	if _, err := a.submit(ctx, o); err != nil {
		return nil, wrap(KindExecution, err)
	}

	id, err := session.PermissionID()
	if err != nil {
		return nil, err
	}
	a.log.WithField("permission", id.Hex()).Info("granted session permissions")
	return &GrantResult{
		PermissionsContext: id.Bytes(),
		GrantedPermissions: req.Permissions,
		Expiry:             req.Expiry,
		ChainID:            hexutil.Uint64(session.ChainID),
	}, nil
}

func (a *Account) session(req PermissionRequest) (smartaccount.Session, error) {
	if req.Signer == nil {
		return smartaccount.Session{}, fmt.Errorf("%w: signer is required", ErrUnsupportedSigner)
	}
	if req.Signer.Type != SignerAccount {
		return smartaccount.Session{}, fmt.Errorf("%w: %q", ErrUnsupportedSigner, req.Signer.Type)
	}
	var signer accountSignerData
	if err := json.Unmarshal(req.Signer.Data, &signer); err != nil {
		return smartaccount.Session{}, fmt.Errorf("invalid account signer data: %w", err)
	}
	initData, err := smartaccount.OwnableValidatorInitData(signer.ID)
	if err != nil {
		return smartaccount.Session{}, err
	}
	chainID := a.ChainID()
	if req.ChainID != nil && (!req.ChainID.ToInt().IsUint64() || req.ChainID.ToInt().Uint64() != chainID) {
		return smartaccount.Session{}, fmt.Errorf("%w: requested for chain %s, account is on chain %d", ErrUnsupportedPermission, req.ChainID, chainID)
	}
	salt, err := smartaccount.NewSessionSalt()
	if err != nil {
		return smartaccount.Session{}, err
	}

	session := smartaccount.Session{
		SessionValidator:         a.cfg.Policies.OwnableValidator,
		SessionValidatorInitData: initData,
		Salt:                     salt,
		PermitERC4337Paymaster:   true,
		ChainID:                  chainID,
	}
	if req.Expiry > 0 {
		session.UserOpPolicies = append(session.UserOpPolicies, smartaccount.PolicyData{
			Policy:   a.cfg.Policies.TimeFrame,
			InitData: smartaccount.TimeFramePolicyInitData(req.Expiry, 0),
		})
	}
	for _, p := range req.Permissions {
		switch p.Type {
		case PermissionContractCall:
			var data contractCallData
			if err := json.Unmarshal(p.Data, &data); err != nil {
				return smartaccount.Session{}, fmt.Errorf("invalid %s permission: %w", p.Type, err)
			}
			action := smartaccount.ActionData{
				ActionTarget:   data.Address,
				ActionPolicies: []smartaccount.PolicyData{{Policy: a.cfg.Policies.Sudo}},
			}
			if len(data.FunctionSelector) > 0 {
				if len(data.FunctionSelector) != 4 {
					return smartaccount.Session{}, fmt.Errorf("invalid function selector %s", data.FunctionSelector)
				}
				copy(action.ActionTargetSelector[:], data.FunctionSelector)
			}
			session.Actions = append(session.Actions, action)
		case PermissionNativeTokenLimit:
			var data nativeTokenLimitData
			if err := json.Unmarshal(p.Data, &data); err != nil {
				return smartaccount.Session{}, fmt.Errorf("invalid %s permission: %w", p.Type, err)
			}
			if data.Allowance == nil {
				return smartaccount.Session{}, fmt.Errorf("%s permission needs an allowance", p.Type)
			}
			session.UserOpPolicies = append(session.UserOpPolicies, smartaccount.PolicyData{
				Policy:   a.cfg.Policies.ValueLimit,
				InitData: smartaccount.ValueLimitPolicyInitData((*big.Int)(data.Allowance)),
			})
		default:
			return smartaccount.Session{}, fmt.Errorf("%w: %q", ErrUnsupportedPermission, p.Type)
		}
	}
	return session, nil
}
