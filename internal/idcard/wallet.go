// Package idcard implements the federated signed-capability protocol: a
// persistent per-identity keypair wallet and compact colon-delimited
// tokens by which one deployment vouches for a user to another.
package idcard

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/stko/zuul-ac/internal/common"
	"github.com/stko/zuul-ac/internal/cryptox"
	"github.com/stko/zuul-ac/internal/logging"
)

const walletConfigKey = "wallet"

// DefaultTokenTimeout is the replay window in seconds for authorities
// whose wallet entry does not override it.
const DefaultTokenTimeout = 60

// ConfigStore is the slice of the storage collaborator the wallet needs.
type ConfigStore interface {
	ReadConfigValue(ctx context.Context, key string, out any) error
	WriteConfigValue(ctx context.Context, key string, value any) error
}

// Key is one wallet entry: a named ECDSA keypair, DER-encoded and
// base64-wrapped. Sealed marks a private key encrypted at rest. Timeout,
// when set, overrides the replay window for tokens signed by this
// authority. Keys are never rotated in the current design.
type Key struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Public  string `json:"public"`
	Private string `json:"private"`
	Sealed  bool   `json:"sealed,omitempty"`
	Timeout int    `json:"timeout,omitempty"`
}

// Wallet stores per-identity keypairs under a single config key, creating
// them lazily on first use and persisting immediately.
type Wallet struct {
	mu     sync.Mutex
	store  ConfigStore
	sealer *cryptox.Sealer
	log    logging.Logger
}

// NewWallet returns a wallet backed by the given store. A nil sealer
// keeps private keys in plaintext, matching deployments without a
// configured passphrase.
func NewWallet(store ConfigStore, sealer *cryptox.Sealer, log logging.Logger) *Wallet {
	return &Wallet{
		store:  store,
		sealer: sealer,
		log:    log.With("module", "key_wallet"),
	}
}

func (w *Wallet) load(ctx context.Context) (map[string]*Key, error) {
	wallet := make(map[string]*Key)
	err := w.store.ReadConfigValue(ctx, walletConfigKey, &wallet)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("reading wallet: %w", err)
	}
	return wallet, nil
}

// EnsureKey returns the keypair for name, generating and persisting it on
// first use. Creation is idempotent per name.
func (w *Wallet) EnsureKey(ctx context.Context, name string) (*Key, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	wallet, err := w.load(ctx)
	if err != nil {
		return nil, err
	}

	id := NameHash(name)
	if key, ok := wallet[id]; ok {
		return key, nil
	}

	private, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating keypair for %q: %w", name, err)
	}
	privateDER, err := x509.MarshalECPrivateKey(private)
	if err != nil {
		return nil, fmt.Errorf("encoding private key: %w", err)
	}
	publicDER, err := x509.MarshalPKIXPublicKey(&private.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("encoding public key: %w", err)
	}

	key := &Key{
		ID:     id,
		Name:   name,
		Public: base64.StdEncoding.EncodeToString(publicDER),
	}
	if w.sealer != nil {
		sealed, err := w.sealer.Seal(privateDER)
		if err != nil {
			return nil, fmt.Errorf("sealing private key: %w", err)
		}
		key.Private = sealed
		key.Sealed = true
	} else {
		key.Private = base64.StdEncoding.EncodeToString(privateDER)
	}

	wallet[id] = key
	if err := w.store.WriteConfigValue(ctx, walletConfigKey, wallet); err != nil {
		return nil, fmt.Errorf("persisting wallet: %w", err)
	}
	w.log.Info(ctx, "generated keypair", "name", name, "id", id)

	return key, nil
}

// Lookup returns the wallet entry for an identity hash.
func (w *Wallet) Lookup(ctx context.Context, idHash string) (*Key, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	wallet, err := w.load(ctx)
	if err != nil {
		w.log.Error(ctx, "wallet read failed", "error", err)
		return nil, false
	}
	key, ok := wallet[idHash]
	return key, ok
}

// signer returns the parsed private key of a wallet entry.
func (w *Wallet) signer(key *Key) (*ecdsa.PrivateKey, error) {
	var der []byte
	var err error
	if key.Sealed {
		if w.sealer == nil {
			return nil, errors.New("wallet key is sealed and no passphrase is configured")
		}
		der, err = w.sealer.Open(key.Private)
	} else {
		der, err = base64.StdEncoding.DecodeString(key.Private)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding private key %q: %w", key.ID, err)
	}
	return x509.ParseECPrivateKey(der)
}

// verifierKey returns the parsed public key of a wallet entry.
func verifierKey(key *Key) (*ecdsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(key.Public)
	if err != nil {
		return nil, fmt.Errorf("decoding public key %q: %w", key.ID, err)
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parsing public key %q: %w", key.ID, err)
	}
	pub, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key %q is not ECDSA", key.ID)
	}
	return pub, nil
}
