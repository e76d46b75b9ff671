package access

import (
	"context"
	"fmt"
	"time"

	"github.com/stko/zuul-ac/internal/common"
	"github.com/stko/zuul-ac/internal/idcard"
	"github.com/stko/zuul-ac/internal/logging"
	"github.com/stko/zuul-ac/internal/models"
	"github.com/stko/zuul-ac/internal/otp"
)

// Notifier receives the users whose entitlement changed after a
// delegation mutation, so the UI layer can message them out-of-band.
type Notifier interface {
	AccessChanged(ctx context.Context, user models.Identity, entitled bool)
}

// ConfigWriter is the slice of the storage collaborator used for pushed
// configuration updates.
type ConfigWriter interface {
	WriteConfigValue(ctx context.Context, key string, value any) error
}

// Core composes the propagation engine, the credential broker and the
// federation protocol into the operation set consumed by transport and UI
// collaborators. It adds input validation and notification fan-out, no
// algorithmic content of its own.
type Core struct {
	engine     *Engine
	broker     *otp.Broker
	federation *idcard.Protocol
	config     ConfigWriter
	notifier   Notifier
	log        logging.Logger
}

func NewCore(engine *Engine, broker *otp.Broker, federation *idcard.Protocol, config ConfigWriter, notifier Notifier, log logging.Logger) *Core {
	return &Core{
		engine:     engine,
		broker:     broker,
		federation: federation,
		config:     config,
		notifier:   notifier,
		log:        log.With("module", "access_core"),
	}
}

// AddDelegation lends the sponsor's access to the follower and recomputes
// entitlements. The affected users are returned and handed to the
// notifier. A persistence failure is logged, not surfaced; the in-memory
// state stays authoritative.
func (c *Core) AddDelegation(ctx context.Context, sponsorID string, follower models.Identity) ([]models.Identity, error) {
	if follower.UserID == "" {
		return nil, common.ErrUnknownUser
	}
	if sponsorID == follower.UserID {
		return nil, common.ErrSelfDelegation
	}
	if !c.engine.CanDelegate(sponsorID) {
		return nil, common.ErrNotEntitled
	}

	changed, err := c.engine.Update(ctx, func(g *Graph) {
		g.AddFollower(sponsorID, DefaultScheduleID, follower)
	})
	if err != nil {
		c.log.Error(ctx, "delegation persisted in memory only", "sponsor", sponsorID, "error", err)
	}

	c.notify(ctx, changed)
	return changed, nil
}

// RevokeDelegation marks the sponsor→follower edge revoked and recomputes
// entitlements. Users reachable solely through the follower lose access
// too and appear in the returned delta.
func (c *Core) RevokeDelegation(ctx context.Context, sponsorID, followerID string) ([]models.Identity, error) {
	revoked := false
	changed, err := c.engine.Update(ctx, func(g *Graph) {
		revoked = g.RevokeFollower(sponsorID, DefaultScheduleID, followerID, time.Now())
	})
	if !revoked {
		return nil, common.ErrNotFound
	}
	if err != nil {
		c.log.Error(ctx, "revocation persisted in memory only", "sponsor", sponsorID, "error", err)
	}

	c.notify(ctx, changed)
	return changed, nil
}

func (c *Core) notify(ctx context.Context, changed []models.Identity) {
	if c.notifier == nil {
		return
	}
	for _, user := range changed {
		c.notifier.AccessChanged(ctx, user, c.engine.Entitled(user.UserID))
	}
}

// Entitled reports whether the user currently holds any entitlement.
func (c *Core) Entitled(userID string) bool {
	return c.engine.Entitled(userID)
}

// CanDelegate reports whether the user may lend access further.
func (c *Core) CanDelegate(userID string) bool {
	return c.engine.CanDelegate(userID)
}

// HasAccessAt reports whether the user's schedule grants access at the
// given instant.
func (c *Core) HasAccessAt(userID string, at time.Time) bool {
	return c.engine.HasAccessAt(userID, at)
}

// Followers lists the identities the sponsor currently lends access to.
func (c *Core) Followers(sponsorID string) []models.Identity {
	return c.engine.Followers(sponsorID)
}

// Sponsors lists the identities currently lending access to the user.
func (c *Core) Sponsors(followerID string) []models.Identity {
	return c.engine.Sponsors(followerID)
}

// RequestCredential runs the approval handshake for a known user.
func (c *Core) RequestCredential(ctx context.Context, userID string) (otp.Response, error) {
	rec, ok := c.engine.Record(userID)
	if !ok {
		return otp.Response{}, common.ErrUnknownUser
	}
	return c.broker.Request(ctx, rec.Identity), nil
}

// ValidateCredential reports whether a presented token, local or
// federated, is currently good.
func (c *Core) ValidateCredential(ctx context.Context, token string) bool {
	return c.broker.Validate(ctx, token)
}

// IssueIDCard signs a federated capability token for the requestor
// towards a remote deployment, already carrying the wire prefix.
func (c *Core) IssueIDCard(ctx context.Context, requestor, receiver string) (string, error) {
	token, err := c.federation.Issue(ctx, requestor, receiver)
	if err != nil {
		return "", err
	}
	return models.FederatedTokenPrefix + token, nil
}

// HandleMessage dispatches a transport envelope on its type tag. Unknown
// tags are rejected explicitly. The returned envelope, when non-nil, is
// the reply to send back to the peer.
func (c *Core) HandleMessage(ctx context.Context, env models.Envelope) (*models.Envelope, error) {
	switch env.Type {

	case models.MsgOTPResponse:
		var approval models.OTPApproval
		if err := env.Decode(&approval); err != nil {
			return nil, err
		}
		if !c.broker.Deliver(approval) {
			c.log.Warn(ctx, "authority response dropped, no request waiting")
		}
		return nil, nil

	case models.MsgTokenQuery:
		var query models.TokenQuery
		if err := env.Decode(&query); err != nil {
			return nil, err
		}
		reply, err := models.NewEnvelope(models.MsgTokenState, models.TokenState{
			Valid: c.ValidateCredential(ctx, query.Token),
		})
		if err != nil {
			return nil, err
		}
		return &reply, nil

	case models.MsgIDCard:
		var request models.IDCardRequest
		if err := env.Decode(&request); err != nil {
			return nil, err
		}
		token, err := c.IssueIDCard(ctx, request.Requestor, request.Receiver)
		if err != nil {
			return nil, err
		}
		reply, err := models.NewEnvelope(models.MsgIDCardResult, models.IDCardResult{Token: token})
		if err != nil {
			return nil, err
		}
		return &reply, nil

	case models.MsgConfigUpdate:
		var update models.ConfigUpdate
		if err := env.Decode(&update); err != nil {
			return nil, err
		}
		for key, value := range update {
			if err := c.config.WriteConfigValue(ctx, key, value); err != nil {
				c.log.Error(ctx, "config update not persisted", "key", key, "error", err)
			}
		}
		return nil, nil

	default:
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownMessageType, env.Type)
	}
}
