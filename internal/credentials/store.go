// Package credentials persists the active account and its WebAuthn
// credential.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"

	"github.com/compose-network/passkey-wallet/internal/logger"
)

var (
	chainIDKey           = []byte("webauthn_account_chain_id")
	addressKey           = []byte("webauthn_account_address")
	credentialKeyPrefix  = "webauthn_credential_"
	errCorruptCredential = errors.New("corrupt credential record")
)

// Credential is the persisted form of a WebAuthn credential. The private
// key never leaves the authenticator; PublicKey is an uncompressed P-256
// point in hex.
type Credential struct {
	ID                 string        `json:"id"`
	RawAssertionHandle hexutil.Bytes `json:"rawAssertionHandle"`
	PublicKey          string        `json:"publicKey"`
}

func (c *Credential) Equal(other *Credential) bool {
	return c.ID == other.ID &&
		string(c.RawAssertionHandle) == string(other.RawAssertionHandle) &&
		strings.EqualFold(c.PublicKey, other.PublicKey)
}

// Store is a last-writer-wins key-value mapping. It is safe for concurrent
// use as far as the backing store is.
type Store struct {
	db ethdb.KeyValueStore
}

func New(db ethdb.KeyValueStore) *Store {
	return &Store{db: db}
}

func NewMemory() *Store {
	return New(memorydb.New())
}

// Open returns a leveldb-backed store at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.New(path, 16, 16, "passkey-wallet/", false)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store at %s: %w", path, err)
	}
	return New(db), nil
}

// DB exposes the backing store so other components can share it.
func (s *Store) DB() ethdb.KeyValueStore {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

func credentialKey(addr common.Address) []byte {
	return []byte(credentialKeyPrefix + strings.ToLower(addr.Hex()))
}

// Load returns the credential for addr, or nil when none is stored. A record
// that cannot be decoded is purged together with the address pointer.
func (s *Store) Load(addr common.Address) (*Credential, error) {
	key := credentialKey(addr)
	ok, err := s.db.Has(key)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential: %w", err)
	}
	if !ok {
		return nil, nil
	}
	blob, err := s.db.Get(key)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential: %w", err)
	}

	cred, err := decode(blob)
	if err != nil {
		logger.Warn("Purging unreadable credential for %s: %v", addr.Hex(), err)
		if purgeErr := s.purge(addr); purgeErr != nil {
			return nil, purgeErr
		}
		return nil, nil
	}
	return cred, nil
}

func decode(blob []byte) (*Credential, error) {
	var cred Credential
	if err := json.Unmarshal(blob, &cred); err != nil {
		return nil, err
	}
	if cred.ID == "" || cred.PublicKey == "" {
		return nil, errCorruptCredential
	}
	return &cred, nil
}

func (s *Store) purge(addr common.Address) error {
	if err := s.db.Delete(credentialKey(addr)); err != nil {
		return fmt.Errorf("failed to purge credential: %w", err)
	}
	stored, ok, err := s.Address()
	if err != nil {
		return err
	}
	if ok && stored == addr {
		if err := s.db.Delete(addressKey); err != nil {
			return fmt.Errorf("failed to purge account address: %w", err)
		}
	}
	return nil
}

func (s *Store) Save(addr common.Address, cred *Credential) error {
	if cred == nil || cred.ID == "" {
		return errors.New("credential id is required")
	}
	blob, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}
	if err := s.db.Put(credentialKey(addr), blob); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

func (s *Store) Clear(addr common.Address) error {
	if err := s.db.Delete(credentialKey(addr)); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	return nil
}

// Address returns the active account address.
func (s *Store) Address() (common.Address, bool, error) {
	ok, err := s.db.Has(addressKey)
	if err != nil || !ok {
		return common.Address{}, false, err
	}
	raw, err := s.db.Get(addressKey)
	if err != nil {
		return common.Address{}, false, fmt.Errorf("failed to read account address: %w", err)
	}
	if !common.IsHexAddress(string(raw)) {
		logger.Warn("Purging malformed account address %q", raw)
		return common.Address{}, false, s.ClearAddress()
	}
	return common.HexToAddress(string(raw)), true, nil
}

func (s *Store) SetAddress(addr common.Address) error {
	if err := s.db.Put(addressKey, []byte(addr.Hex())); err != nil {
		return fmt.Errorf("failed to store account address: %w", err)
	}
	return nil
}

func (s *Store) ClearAddress() error {
	return s.db.Delete(addressKey)
}

// ChainID returns the persisted chain id, stored as a decimal string.
func (s *Store) ChainID() (uint64, bool, error) {
	ok, err := s.db.Has(chainIDKey)
	if err != nil || !ok {
		return 0, false, err
	}
	raw, err := s.db.Get(chainIDKey)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read chain id: %w", err)
	}
	id, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		logger.Warn("Purging malformed chain id %q", raw)
		return 0, false, s.db.Delete(chainIDKey)
	}
	return id, true, nil
}

func (s *Store) SetChainID(id uint64) error {
	if err := s.db.Put(chainIDKey, []byte(strconv.FormatUint(id, 10))); err != nil {
		return fmt.Errorf("failed to store chain id: %w", err)
	}
	return nil
}

// Reset removes the address, the chain id and the credential of the active
// account.
func (s *Store) Reset() error {
	var errs []error
	if addr, ok, err := s.Address(); err != nil {
		errs = append(errs, err)
	} else if ok {
		errs = append(errs, s.Clear(addr))
	}
	errs = append(errs, s.db.Delete(addressKey), s.db.Delete(chainIDKey))
	return errors.Join(errs...)
}
