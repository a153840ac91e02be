// Package account owns the lifecycle of the single active smart account:
// creating or recovering it with a passkey, and building, signing and
// submitting its user operations.
package account

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/compose-network/passkey-wallet/internal/bundler"
	"github.com/compose-network/passkey-wallet/internal/clients"
	"github.com/compose-network/passkey-wallet/internal/credentials"
	"github.com/compose-network/passkey-wallet/internal/lazy"
	"github.com/compose-network/passkey-wallet/internal/logger"
	"github.com/compose-network/passkey-wallet/internal/registry"
	"github.com/compose-network/passkey-wallet/internal/smartaccount"
	"github.com/compose-network/passkey-wallet/internal/webauthn"
)

const (
	defaultReceiptTimeout = 2 * time.Minute
	defaultPollInterval   = time.Second
	maxLabelLength        = 32
)

type State int

const (
	Uninitialized State = iota
	CredentialLoaded
	Ready
)

func (s State) String() string {
	switch s {
	case CredentialLoaded:
		return "credential-loaded"
	case Ready:
		return "ready"
	default:
		return "uninitialized"
	}
}

// ClientSource hands out the network clients of a chain.
type ClientSource interface {
	Get(ctx context.Context, chainID uint64) (*clients.Clients, error)
	Paymaster(ctx context.Context, url string) (bundler.Paymaster, error)
}

// Policies are the smart sessions policy and validator contracts used by
// permission grants.
type Policies struct {
	OwnableValidator common.Address
	Sudo             common.Address
	TimeFrame        common.Address
	ValueLimit       common.Address
}

type Config struct {
	RPID      string
	RPName    string
	ChainID   uint64
	Contracts smartaccount.Addresses
	Policies  Policies
	// Sponsored routes every operation through the chain's paymaster when
	// one is configured.
	Sponsored      bool
	ReceiptTimeout time.Duration
	PollInterval   time.Duration
}

type Deps struct {
	Clients       ClientSource
	Authenticator webauthn.Authenticator
	Registry      registry.Registry
	Store         *credentials.Store
}

type Account struct {
	cfg      Config
	clients  ClientSource
	auth     webauthn.Authenticator
	signer   *webauthn.Signer
	registry registry.Registry
	store    *credentials.Store
	log      *logrus.Entry

	mu         sync.RWMutex
	chainID    uint64
	address    common.Address
	credential *credentials.Credential
	handle     *lazy.Value[*smartaccount.Handle]

	// Submissions are serialized so each one reads the nonce the previous
	// one consumed.
	submitMu sync.Mutex
}

func New(cfg Config, deps Deps) (*Account, error) {
	var errs []error
	if cfg.RPID == "" {
		errs = append(errs, errors.New("relying party id is required"))
	}
	if err := cfg.Contracts.Validate(); err != nil {
		errs = append(errs, err)
	}
	if deps.Clients == nil {
		errs = append(errs, errors.New("client source is required"))
	}
	if deps.Authenticator == nil {
		errs = append(errs, errors.New("authenticator is required"))
	}
	if deps.Registry == nil {
		errs = append(errs, errors.New("registry is required"))
	}
	if deps.Store == nil {
		errs = append(errs, errors.New("credential store is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid account configuration: %w", err)
	}
	if cfg.RPName == "" {
		cfg.RPName = cfg.RPID
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = defaultReceiptTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	return &Account{
		cfg:      cfg,
		clients:  deps.Clients,
		auth:     deps.Authenticator,
		signer:   webauthn.NewSigner(deps.Authenticator, cfg.RPID),
		registry: deps.Registry,
		store:    deps.Store,
		log:      logger.WithModule("account"),
		chainID:  cfg.ChainID,
		handle:   lazy.NewValue[*smartaccount.Handle](),
	}, nil
}

func (a *Account) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.credential == nil {
		return Uninitialized
	}
	if a.handle.State() == lazy.Ready {
		return Ready
	}
	return CredentialLoaded
}

// Address returns the account address once a credential is attached.
func (a *Account) Address() (common.Address, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.address, a.credential != nil
}

func (a *Account) Credential() *credentials.Credential {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.credential == nil {
		return nil
	}
	cpy := *a.credential
	return &cpy
}

func (a *Account) ChainID() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.chainID
}

// SetChain changes the chain of subsequent operations. The smart account
// handle is chain independent and is kept.
func (a *Account) SetChain(chainID uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.chainID != chainID {
		a.log.Infof("switching account chain %d -> %d", a.chainID, chainID)
	}
	a.chainID = chainID
}

// Restore attaches a previously persisted credential without prompting the
// authenticator. The handle is built on first use.
func (a *Account) Restore(address common.Address, cred *credentials.Credential) error {
	if cred == nil {
		return ErrNoCredential
	}
	if _, err := webauthn.UnmarshalPublicKey(cred.PublicKey); err != nil {
		return fmt.Errorf("stored credential for %s is unusable: %w", address.Hex(), err)
	}
	a.attach(address, cred)
	a.log.WithField("address", address.Hex()).Debug("restored credential")
	return nil
}

// Forget drops the in-memory account. Persisted state is left alone.
func (a *Account) Forget() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.address = common.Address{}
	a.credential = nil
	a.handle.Reset()
}

func (a *Account) attach(address common.Address, cred *credentials.Credential) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.address = address
	a.credential = cred
	a.handle.Reset()
}

// Create registers a new passkey labelled label and derives the account it
// controls. An empty label gets a generated one.
func (a *Account) Create(ctx context.Context, label string) (common.Address, error) {
	addr, err := a.create(ctx, label)
	return addr, wrap(KindCreation, err)
}

func (a *Account) create(ctx context.Context, label string) (common.Address, error) {
	if label == "" {
		label = "Account " + uuid.NewString()[:8]
	}
	if len(label) > maxLabelLength {
		return common.Address{}, fmt.Errorf("%w: %q", ErrLabelTooLong, label)
	}
	var userID [32]byte
	copy(userID[:], label)

	challenge, err := randomChallenge()
	if err != nil {
		return common.Address{}, err
	}
	reg, err := a.auth.Create(ctx, webauthn.CreateOptions{
		RPID:      a.cfg.RPID,
		RPName:    a.cfg.RPName,
		UserID:    userID[:],
		UserName:  label,
		Challenge: challenge,
	})
	if err != nil {
		return common.Address{}, err
	}
	pub, err := reg.PublicKey()
	if err != nil {
		return common.Address{}, err
	}
	key := webauthn.Coordinates(pub)

	chainID := a.ChainID()
	cl, err := a.clients.Get(ctx, chainID)
	if err != nil {
		return common.Address{}, err
	}
	h, err := smartaccount.NewHandle(ctx, cl.Chain, a.cfg.Contracts, key, reg.CredentialID)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to derive account address: %w", err)
	}
	if err := a.registry.Register(ctx, userID, h.GetAddress()); err != nil {
		return common.Address{}, err
	}

	cred := &credentials.Credential{
		ID:                 reg.CredentialID,
		RawAssertionHandle: common.CopyBytes(reg.RawID),
		PublicKey:          webauthn.MarshalPublicKey(key),
	}
	if err := a.store.Save(h.GetAddress(), cred); err != nil {
		return common.Address{}, err
	}
	a.attach(h.GetAddress(), cred)
	a.prime(ctx, h)

	a.log.WithFields(logrus.Fields{"address": h.GetAddress().Hex(), "label": label, "chain": chainID}).Info("created account")
	return h.GetAddress(), nil
}

// Load identifies the user with a discovery assertion and recovers their
// account. It returns false without error when the user has no registered
// account.
func (a *Account) Load(ctx context.Context) (common.Address, bool, error) {
	addr, ok, err := a.load(ctx)
	return addr, ok, wrap(KindLoad, err)
}

func (a *Account) load(ctx context.Context) (common.Address, bool, error) {
	challenge, err := randomChallenge()
	if err != nil {
		return common.Address{}, false, err
	}
	assertion, err := a.auth.Get(ctx, webauthn.GetOptions{RPID: a.cfg.RPID, Challenge: challenge})
	if errors.Is(err, webauthn.ErrNoCredentials) {
		return common.Address{}, false, nil
	}
	if err != nil {
		return common.Address{}, false, err
	}
	if len(assertion.UserHandle) == 0 || len(assertion.UserHandle) > 32 {
		return common.Address{}, false, fmt.Errorf("unexpected user handle length %d", len(assertion.UserHandle))
	}
	var userID [32]byte
	copy(userID[:], assertion.UserHandle)

	address, err := a.registry.Lookup(ctx, userID)
	if errors.Is(err, registry.ErrNotFound) {
		a.log.WithField("credential", assertion.CredentialID).Info("no account registered for credential")
		return common.Address{}, false, nil
	}
	if err != nil {
		return common.Address{}, false, err
	}

	chainID := a.ChainID()
	cl, err := a.clients.Get(ctx, chainID)
	if err != nil {
		return common.Address{}, false, err
	}
	key, err := smartaccount.ReadWebAuthnPublicKey(ctx, cl.Chain, a.cfg.Contracts.WebAuthnValidator, address)
	if err != nil {
		return common.Address{}, false, err
	}
	if key.IsZero() {
		return common.Address{}, false, fmt.Errorf("account %s has no validator key on chain %d", address.Hex(), chainID)
	}
	pub := &ecdsa.PublicKey{Curve: elliptic.P256(), X: key.X, Y: key.Y}
	if err := webauthn.Verify(pub, assertion, challenge); err != nil {
		return common.Address{}, false, fmt.Errorf("assertion does not match the key of %s: %w", address.Hex(), err)
	}

	h, err := smartaccount.NewHandle(ctx, cl.Chain, a.cfg.Contracts, key, assertion.CredentialID)
	if err != nil {
		return common.Address{}, false, err
	}
	if h.GetAddress() != address {
		return common.Address{}, false, fmt.Errorf("registered account %s does not match derived account %s", address.Hex(), h.GetAddress().Hex())
	}

	raw, err := base64.RawURLEncoding.DecodeString(assertion.CredentialID)
	if err != nil {
		raw = nil
	}
	cred := &credentials.Credential{
		ID:                 assertion.CredentialID,
		RawAssertionHandle: raw,
		PublicKey:          webauthn.MarshalPublicKey(key),
	}
	if err := a.store.Save(address, cred); err != nil {
		return common.Address{}, false, err
	}
	a.attach(address, cred)
	a.prime(ctx, h)

	a.log.WithFields(logrus.Fields{"address": address.Hex(), "chain": chainID}).Info("loaded account")
	return address, true, nil
}

func (a *Account) prime(ctx context.Context, h *smartaccount.Handle) {
	_, _ = a.handle.Get(ctx, func(context.Context) (*smartaccount.Handle, error) {
		return h, nil
	})
}

// ensureHandle returns the smart account handle, building it from the
// attached credential at most once.
func (a *Account) ensureHandle(ctx context.Context) (*smartaccount.Handle, error) {
	a.mu.RLock()
	cred, address, chainID := a.credential, a.address, a.chainID
	a.mu.RUnlock()
	if cred == nil {
		return nil, ErrNoCredential
	}

	return a.handle.Get(ctx, func(ctx context.Context) (*smartaccount.Handle, error) {
		key, err := webauthn.UnmarshalPublicKey(cred.PublicKey)
		if err != nil {
			return nil, err
		}
		cl, err := a.clients.Get(ctx, chainID)
		if err != nil {
			return nil, err
		}
		h, err := smartaccount.NewHandle(ctx, cl.Chain, a.cfg.Contracts, key, cred.ID)
		if err != nil {
			return nil, err
		}
		if h.GetAddress() != address {
			return nil, fmt.Errorf("credential derives account %s, expected %s", h.GetAddress().Hex(), address.Hex())
		}
		a.log.WithField("address", address.Hex()).Debug("smart account handle ready")
		return h, nil
	})
}

func (a *Account) credentialID() (string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.credential == nil {
		return "", ErrNoCredential
	}
	return a.credential.ID, nil
}

func randomChallenge() ([]byte, error) {
	challenge := make([]byte, 32)
	if _, err := rand.Read(challenge); err != nil {
		return nil, fmt.Errorf("failed to generate challenge: %w", err)
	}
	return challenge, nil
}
