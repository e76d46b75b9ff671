package idcard

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/stko/zuul-ac/internal/logging"
)

// hashLength is the truncation applied to identity digests in token
// fields. Wire-compatible with existing deployments.
const hashLength = 10

// tokenFields is the number of colon-separated fields in a capability
// token: requestor hash, receiver hash, authority hash, issue time,
// signature.
const tokenFields = 5

// NameHash returns the truncated hex SHA-1 digest of an identity's
// display name, the token field form of an identity.
func NameHash(name string) string {
	sum := sha1.Sum([]byte(name))
	return hex.EncodeToString(sum[:])[:hashLength]
}

func encodeUnixTime(t int64) string {
	return base64.StdEncoding.EncodeToString(new(big.Int).SetInt64(t).Bytes())
}

func decodeUnixTime(encoded string) (int64, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return 0, fmt.Errorf("decoding timestamp: %w", err)
	}
	return new(big.Int).SetBytes(raw).Int64(), nil
}

// Protocol signs and verifies capability tokens. A token asserts
// "requestor R was granted temporary access by authority A at time T",
// bound to one receiving deployment and valid only within a short replay
// window; no server-side session state exists and no revocation list —
// the timeout substitutes for revocation.
type Protocol struct {
	wallet  *Wallet
	botName string
	log     logging.Logger
	now     func() time.Time
}

// NewProtocol returns a protocol instance acting as the deployment named
// botName, both when signing and as the receiver tokens must be bound to.
func NewProtocol(wallet *Wallet, botName string, log logging.Logger) *Protocol {
	return &Protocol{
		wallet:  wallet,
		botName: botName,
		log:     log.With("module", "federation"),
		now:     time.Now,
	}
}

// Issue builds and signs a capability token vouching for requestor
// towards the deployment named receiver. The local keypair is created on
// first use.
func (p *Protocol) Issue(ctx context.Context, requestor, receiver string) (string, error) {
	key, err := p.wallet.EnsureKey(ctx, p.botName)
	if err != nil {
		return "", err
	}

	message := strings.Join([]string{
		NameHash(requestor),
		NameHash(receiver),
		key.ID,
		encodeUnixTime(p.now().Unix()),
	}, ":")

	private, err := p.wallet.signer(key)
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256([]byte(message))
	signature, err := ecdsa.SignASN1(rand.Reader, private, digest[:])
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}

	return message + ":" + base64.StdEncoding.EncodeToString(signature), nil
}

// Verify checks the token fields against the local identity and the
// wallet. It returns false for short tokens, tokens bound to another
// receiver, unknown authorities, stale timestamps and bad signatures;
// it never panics.
func (p *Protocol) Verify(ctx context.Context, fields []string) bool {
	if len(fields) < tokenFields {
		p.log.Warn(ctx, "illegal token format", "fields", len(fields))
		return false
	}
	if fields[1] != NameHash(p.botName) {
		return false
	}

	key, ok := p.wallet.Lookup(ctx, fields[2])
	if !ok {
		return false
	}

	issued, err := decodeUnixTime(fields[3])
	if err != nil {
		return false
	}
	timeout := key.Timeout
	if timeout <= 0 {
		timeout = DefaultTokenTimeout
	}
	if p.now().Unix()-int64(timeout) > issued {
		return false
	}

	public, err := verifierKey(key)
	if err != nil {
		p.log.Warn(ctx, "unusable authority key", "id", key.ID, "error", err)
		return false
	}
	signature, err := base64.StdEncoding.DecodeString(fields[4])
	if err != nil {
		return false
	}
	digest := sha256.Sum256([]byte(strings.Join(fields[:4], ":")))
	return ecdsa.VerifyASN1(public, digest[:], signature)
}

// VerifyEncoded splits a colon-joined token (without the wire prefix) and
// verifies it.
func (p *Protocol) VerifyEncoded(ctx context.Context, token string) bool {
	return p.Verify(ctx, strings.Split(token, ":"))
}
