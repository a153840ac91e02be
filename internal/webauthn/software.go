package webauthn

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/go-webauthn/webauthn/protocol"

	"github.com/compose-network/passkey-wallet/internal/logger"
)

var softwareKeyPrefix = []byte("software_authenticator_credential_")

const (
	flagUserPresent  = 0x01
	flagUserVerified = 0x04
)

type softwareCredential struct {
	ID         string        `json:"id"`
	RPID       string        `json:"rpId"`
	UserHandle hexutil.Bytes `json:"userHandle"`
	D          hexutil.Bytes `json:"d"`
	Counter    uint32        `json:"counter"`
	Seq        uint64        `json:"seq"`

	key *ecdsa.PrivateKey
}

// SoftwareAuthenticator keeps P-256 credentials in process, optionally
// persisted to a key-value store. It stands in for a platform authenticator
// in tests and in the developer CLI.
type SoftwareAuthenticator struct {
	origin string
	db     ethdb.KeyValueStore

	mu       sync.Mutex
	creds    map[string]*softwareCredential
	seq      uint64
	rejected bool
	prompts  int
}

var _ Authenticator = (*SoftwareAuthenticator)(nil)

// NewSoftwareAuthenticator loads any credentials already in db. db may be nil
// for an ephemeral authenticator.
func NewSoftwareAuthenticator(origin string, db ethdb.KeyValueStore) (*SoftwareAuthenticator, error) {
	a := &SoftwareAuthenticator{
		origin: origin,
		db:     db,
		creds:  make(map[string]*softwareCredential),
	}
	if db == nil {
		return a, nil
	}

	it := db.NewIterator(softwareKeyPrefix, nil)
	defer it.Release()
	for it.Next() {
		var c softwareCredential
		if err := json.Unmarshal(it.Value(), &c); err != nil {
			logger.Warn("Skipping unreadable software credential %s: %v", it.Key(), err)
			continue
		}
		key, err := privateKeyFromD(c.D)
		if err != nil {
			logger.Warn("Skipping software credential %s: %v", c.ID, err)
			continue
		}
		c.key = key
		a.creds[c.ID] = &c
		if c.Seq > a.seq {
			a.seq = c.Seq
		}
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("failed to load software credentials: %w", err)
	}
	return a, nil
}

// Reject makes subsequent prompts fail with ErrUserRejected.
func (a *SoftwareAuthenticator) Reject(reject bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rejected = reject
}

// Prompts counts every Create and Get, rejected or not.
func (a *SoftwareAuthenticator) Prompts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.prompts
}

func (a *SoftwareAuthenticator) Create(_ context.Context, opts CreateOptions) (*Registration, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.prompts++
	if a.rejected {
		return nil, ErrUserRejected
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate credential key: %w", err)
	}
	rawID := make([]byte, 16)
	if _, err := rand.Read(rawID); err != nil {
		return nil, fmt.Errorf("failed to generate credential id: %w", err)
	}
	a.seq++
	c := &softwareCredential{
		ID:         EncodeCredentialID(rawID),
		RPID:       opts.RPID,
		UserHandle: append([]byte{}, opts.UserID...),
		D:          key.D.FillBytes(make([]byte, 32)),
		Seq:        a.seq,
		key:        key,
	}
	if err := a.persist(c); err != nil {
		return nil, err
	}
	a.creds[c.ID] = c

	cose, err := EncodeCOSEKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encode credential key: %w", err)
	}
	return &Registration{CredentialID: c.ID, RawID: rawID, COSEKey: cose}, nil
}

func (a *SoftwareAuthenticator) Get(_ context.Context, opts GetOptions) (*Assertion, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.prompts++
	if a.rejected {
		return nil, ErrUserRejected
	}

	c := a.pick(opts)
	if c == nil {
		return nil, ErrNoCredentials
	}

	c.Counter++
	if err := a.persist(c); err != nil {
		return nil, err
	}

	rpIDHash := sha256.Sum256([]byte(c.RPID))
	authData := make([]byte, 0, 37)
	authData = append(authData, rpIDHash[:]...)
	authData = append(authData, flagUserPresent|flagUserVerified)
	authData = binary.BigEndian.AppendUint32(authData, c.Counter)

	clientData, err := json.Marshal(protocol.CollectedClientData{
		Type:      protocol.AssertCeremony,
		Challenge: EncodeChallenge(opts.Challenge),
		Origin:    a.origin,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode client data: %w", err)
	}

	digest := sha256.Sum256(SignedData(authData, clientData))
	sig, err := ecdsa.SignASN1(rand.Reader, c.key, digest[:])
	if err != nil {
		return nil, fmt.Errorf("failed to sign assertion: %w", err)
	}
	return &Assertion{
		CredentialID:      c.ID,
		AuthenticatorData: authData,
		ClientDataJSON:    clientData,
		Signature:         sig,
		UserHandle:        append([]byte{}, c.UserHandle...),
	}, nil
}

// pick returns the first allowed credential, or the newest credential for
// the relying party on discovery.
func (a *SoftwareAuthenticator) pick(opts GetOptions) *softwareCredential {
	for _, id := range opts.AllowCredentials {
		if c, ok := a.creds[id]; ok && c.RPID == opts.RPID {
			return c
		}
	}
	if len(opts.AllowCredentials) > 0 {
		return nil
	}
	var newest *softwareCredential
	for _, c := range a.creds {
		if c.RPID == opts.RPID && (newest == nil || c.Seq > newest.Seq) {
			newest = c
		}
	}
	return newest
}

func (a *SoftwareAuthenticator) persist(c *softwareCredential) error {
	if a.db == nil {
		return nil
	}
	blob, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode software credential: %w", err)
	}
	if err := a.db.Put(append(append([]byte{}, softwareKeyPrefix...), c.ID...), blob); err != nil {
		return fmt.Errorf("failed to store software credential: %w", err)
	}
	return nil
}

// privateKeyFromD rebuilds a P-256 key from its scalar, which must lie in
// [1, N-1].
func privateKeyFromD(d []byte) (*ecdsa.PrivateKey, error) {
	curve := elliptic.P256()
	scalar := new(big.Int).SetBytes(d)
	if scalar.Sign() == 0 || scalar.Cmp(curve.Params().N) >= 0 {
		return nil, errors.New("private scalar out of range")
	}
	key := &ecdsa.PrivateKey{D: scalar}
	key.PublicKey.Curve = curve
	key.PublicKey.X, key.PublicKey.Y = curve.ScalarBaseMult(scalar.FillBytes(make([]byte, 32)))
	return key, nil
}
