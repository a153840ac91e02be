package chain

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/samber/lo"
)

// Chain describes one configured network and the services reachable on it.
type Chain struct {
	id           uint64
	name         string
	rpcURL       string
	bundlerURL   string
	paymasterURL string
}

func New(id uint64, name, rpcURL, bundlerURL, paymasterURL string) Chain {
	return Chain{
		id:           id,
		name:         name,
		rpcURL:       rpcURL,
		bundlerURL:   bundlerURL,
		paymasterURL: paymasterURL,
	}
}

func (c Chain) ID() uint64 {
	return c.id
}

func (c Chain) BigID() *big.Int {
	return new(big.Int).SetUint64(c.id)
}

func (c Chain) Name() string {
	return c.name
}

func (c Chain) RPCURL() string {
	return c.rpcURL
}

func (c Chain) BundlerURL() string {
	return c.bundlerURL
}

// PaymasterURL is empty when operations on this chain are not sponsored.
func (c Chain) PaymasterURL() string {
	return c.paymasterURL
}

func (c Chain) String() string {
	return fmt.Sprintf("%s(%d)", c.name, c.id)
}

// Set is the fixed list of chains the wallet may operate on.
type Set struct {
	byID map[uint64]Chain
}

func NewSet(chains ...Chain) Set {
	s := Set{byID: make(map[uint64]Chain, len(chains))}
	for _, c := range chains {
		s.byID[c.id] = c
	}
	return s
}

func (s Set) Get(id uint64) (Chain, bool) {
	c, ok := s.byID[id]
	return c, ok
}

func (s Set) Has(id uint64) bool {
	_, ok := s.byID[id]
	return ok
}

// IDs returns the configured chain ids in ascending order.
func (s Set) IDs() []uint64 {
	ids := lo.Keys(s.byID)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s Set) Len() int {
	return len(s.byID)
}
