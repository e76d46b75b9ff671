// Package otp implements the credential broker: short-lived one-time
// passwords issued through an asynchronous approval handshake with the
// smart-home authority, and validated against wall-clock expiry.
package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stko/zuul-ac/internal/logging"
	"github.com/stko/zuul-ac/internal/models"
)

// DefaultLength is the credential size used when the authority does not
// ask for a specific one.
const DefaultLength = 10

// DefaultCharset is the credential alphabet: letters, digits and
// punctuation, minus the quote and colon characters that are unsafe in
// the wire format.
const DefaultCharset = "abcdefghijklmnopqrstuvwxyz" +
	"ABCDEFGHIJKLMNOPQRSTUVWXYZ" +
	"0123456789" +
	"!#$%&'()*+,-./;<=>?@[\\]^_`{|}~"

// DefaultTimeout bounds the wait for the authority's answer.
const DefaultTimeout = 2 * time.Second

// sweepGrace is how long an expired credential may linger before the lazy
// sweep removes it.
const sweepGrace = 5 * time.Minute

// Entitlements answers whether a user currently holds any entitlement.
// Implementations must not require the broker to hold their locks while
// it blocks on the authority.
type Entitlements interface {
	Entitled(userID string) bool
}

// AuthorityChannel carries fire-and-forget events to the external
// smart-home actor.
type AuthorityChannel interface {
	Emit(event string, payload any)
}

// FederationVerifier validates federated capability tokens on behalf of
// the broker.
type FederationVerifier interface {
	VerifyEncoded(ctx context.Context, token string) bool
}

// Response is the outcome of a credential request. A zero ValidSeconds
// with an empty Credential is a denial; Kind tells the UI how to present
// the credential ("qrcode" or plain text).
type Response struct {
	Credential   string `json:"credential,omitempty"`
	ValidSeconds int    `json:"valid_seconds"`
	Message      string `json:"msg,omitempty"`
	Kind         string `json:"type,omitempty"`
}

// Broker issues and validates local one-time passwords. The approval
// handshake runs over a single-slot response channel: exactly one answer
// is expected per request, and anything stale is drained before a new
// request goes out.
type Broker struct {
	mu     sync.Mutex
	issued map[string]time.Time

	responses chan models.OTPApproval

	entitlements Entitlements
	authority    AuthorityChannel
	federation   FederationVerifier
	timeout      time.Duration
	log          logging.Logger
	now          func() time.Time
}

func NewBroker(entitlements Entitlements, authority AuthorityChannel, federation FederationVerifier, timeout time.Duration, log logging.Logger) *Broker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Broker{
		issued:       make(map[string]time.Time),
		responses:    make(chan models.OTPApproval, 1),
		entitlements: entitlements,
		authority:    authority,
		federation:   federation,
		timeout:      timeout,
		log:          log.With("module", "credential_broker"),
		now:          time.Now,
	}
}

// Request asks the authority to approve a credential for the user and, on
// approval, issues one. Every failure path returns a zero-validity
// response: unentitled users, authority timeout, malformed answers and
// explicit denials all fail closed.
func (b *Broker) Request(ctx context.Context, user models.Identity) Response {
	if user.UserID == "" || !b.entitlements.Entitled(user.UserID) {
		b.log.Info(ctx, "credential request rejected", "user_id", user.UserID)
		return Response{}
	}

	// a response left over from a timed-out request must not satisfy
	// this one
	select {
	case <-b.responses:
	default:
	}

	b.authority.Emit(models.MsgOTPRequest, models.OTPRequestPayload{
		RequestID: uuid.NewString(),
		User:      user,
	})

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	var approval models.OTPApproval
	select {
	case approval = <-b.responses:
	case <-timer.C:
		b.log.Warn(ctx, "authority did not answer in time", "user_id", user.UserID)
		return Response{}
	case <-ctx.Done():
		return Response{}
	}

	if !approval.Result || approval.ValidTime <= 0 {
		b.log.Info(ctx, "authority denied credential", "user_id", user.UserID)
		return Response{Message: approval.Msg}
	}

	length := approval.Length
	if length <= 0 {
		length = DefaultLength
	}
	charset := sanitizeCharset(approval.KeypadChars)
	if charset == "" {
		charset = DefaultCharset
	}

	credential, err := generateSecret(length, charset)
	if err != nil {
		b.log.Error(ctx, "credential generation failed", "error", err)
		return Response{}
	}

	expiry := b.now().Add(time.Duration(approval.ValidTime) * time.Second)
	b.mu.Lock()
	b.issued[credential] = expiry
	b.mu.Unlock()

	return Response{
		Credential:   credential,
		ValidSeconds: approval.ValidTime,
		Message:      expandMessage(approval.Msg, approval.ValidTime, credential),
		Kind:         approval.Type,
	}
}

// Deliver hands an authority approval to the waiting request. The buffer
// holds a single response; anything beyond that is dropped and reported.
func (b *Broker) Deliver(approval models.OTPApproval) bool {
	select {
	case b.responses <- approval:
		return true
	default:
		return false
	}
}

// Validate reports whether a presented token is currently good. Federated
// tokens are handed to the federation protocol; local credentials are
// looked up after sweeping entries whose expiry lies more than the grace
// period in the past. Sweep and lookup share one critical section.
func (b *Broker) Validate(ctx context.Context, token string) bool {
	if strings.HasPrefix(token, models.FederatedTokenPrefix) {
		if b.federation == nil {
			return false
		}
		return b.federation.VerifyEncoded(ctx, strings.TrimPrefix(token, models.FederatedTokenPrefix))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	for credential, expiry := range b.issued {
		if now.Sub(expiry) > sweepGrace {
			delete(b.issued, credential)
		}
	}

	expiry, ok := b.issued[token]
	return ok && now.Before(expiry)
}

// sanitizeCharset strips the characters that are unsafe in the wire
// format from an authority-supplied alphabet.
func sanitizeCharset(charset string) string {
	return strings.Map(func(r rune) rune {
		if r == '"' || r == ':' {
			return -1
		}
		return r
	}, charset)
}

func generateSecret(length int, charset string) (string, error) {
	max := big.NewInt(int64(len(charset)))
	secret := make([]byte, length)
	for i := range secret {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("reading randomness: %w", err)
		}
		secret[i] = charset[n.Int64()]
	}
	return string(secret), nil
}

// expandMessage fills the authority's display message placeholders: {0}
// becomes the validity in seconds, {1} the credential itself.
func expandMessage(msg string, validSeconds int, credential string) string {
	msg = strings.ReplaceAll(msg, "{0}", strconv.Itoa(validSeconds))
	return strings.ReplaceAll(msg, "{1}", credential)
}
