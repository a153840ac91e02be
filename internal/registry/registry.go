// Package registry maps WebAuthn user ids to smart account addresses. Writes
// go through the registry service, reads go straight to the registry
// contract.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"

	"github.com/compose-network/passkey-wallet/internal/chain"
	"github.com/compose-network/passkey-wallet/internal/logger"
)

var ErrNotFound = errors.New("no account registered for user")

const (
	registerPath       = "/api/register-user"
	requestTimeout     = 15 * time.Second
	addressRegistryAbi = `[{"type":"function","name":"getAddress","stateMutability":"view","inputs":[{"name":"userId","type":"bytes32"}],"outputs":[{"name":"","type":"address"}]},{"type":"function","name":"setAddress","stateMutability":"nonpayable","inputs":[{"name":"userId","type":"bytes32"},{"name":"account","type":"address"}],"outputs":[]}]`
)

var AddressRegistryABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(addressRegistryAbi))
	if err != nil {
		panic("registry: invalid embedded ABI: " + err.Error())
	}
	return parsed
}()

// Registry is what account creation and sign-in need from the registry.
type Registry interface {
	Register(ctx context.Context, userID [32]byte, account common.Address) error
	Lookup(ctx context.Context, userID [32]byte) (common.Address, error)
}

type Client struct {
	baseURL  string
	http     *http.Client
	contract *bind.BoundContract
}

var _ Registry = (*Client)(nil)

// New returns a registry client. caller must be connected to the chain that
// hosts the registry contract.
func New(baseURL string, registry common.Address, caller bind.ContractCaller) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: requestTimeout},
		contract: bind.NewBoundContract(registry, AddressRegistryABI, caller, nil, nil),
	}
}

type registerRequest struct {
	UserID  string         `json:"userId"`
	Address common.Address `json:"address"`
}

// Register records account for userID. Only 201 Created counts as success.
func (c *Client) Register(ctx context.Context, userID [32]byte, account common.Address) error {
	body, err := json.Marshal(registerRequest{UserID: hexutil.Encode(userID[:]), Address: account})
	if err != nil {
		return fmt.Errorf("marshal register request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+registerPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", requestID)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call registry: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read registry response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("registry rejected registration (request %s): status %d, body: %s", requestID, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	logger.Info("Registered account %s for user %s", account.Hex(), hexutil.Encode(userID[:]))
	return nil
}

// Lookup returns the account registered for userID, or ErrNotFound.
func (c *Client) Lookup(ctx context.Context, userID [32]byte) (common.Address, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getAddress", userID); err != nil {
		return common.Address{}, fmt.Errorf("failed to read registry: %w", chain.Classify(err))
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected getAddress result %T", out[0])
	}
	if addr == (common.Address{}) {
		return common.Address{}, ErrNotFound
	}
	return addr, nil
}
