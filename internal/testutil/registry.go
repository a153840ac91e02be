package testutil

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/passkey-wallet/internal/registry"
)

// Registry is an in-memory user id to address mapping.
type Registry struct {
	mu          sync.Mutex
	accounts    map[[32]byte]common.Address
	RegisterErr error
	LookupErr   error
}

var _ registry.Registry = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{accounts: make(map[[32]byte]common.Address)}
}

func (r *Registry) Register(_ context.Context, userID [32]byte, account common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.RegisterErr != nil {
		return r.RegisterErr
	}
	r.accounts[userID] = account
	return nil
}

func (r *Registry) Lookup(_ context.Context, userID [32]byte) (common.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.LookupErr != nil {
		return common.Address{}, r.LookupErr
	}
	addr, ok := r.accounts[userID]
	if !ok {
		return common.Address{}, registry.ErrNotFound
	}
	return addr, nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.accounts)
}
