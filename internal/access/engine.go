package access

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stko/zuul-ac/internal/logging"
	"github.com/stko/zuul-ac/internal/models"
)

// GraphStore is the persistence collaborator of the engine. A write
// failure is reported but never rolls back in-memory state.
type GraphStore interface {
	Graph(ctx context.Context) (*Graph, error)
	WriteGraph(ctx context.Context, g *Graph) error
	AdminIDs(ctx context.Context) ([]string, error)
}

// UserRecord is the computed entitlement of one identity. A nil Table
// means the identity exists historically but is not currently reachable
// from any administrator.
type UserRecord struct {
	Identity models.Identity
	Table    *TimeTable
}

// Engine recomputes the entitled-user set and each user's TimeTable from
// the delegation graph. It owns the graph and the computed table
// exclusively; all access goes through its lock. The computed table is
// replaced wholesale on every run, so a recomputation is idempotent and
// safe to repeat at any time.
type Engine struct {
	mu    sync.Mutex
	store GraphStore
	log   logging.Logger
	now   func() time.Time

	maxTTL    int
	retention time.Duration

	graph    *Graph
	computed map[string]*UserRecord
}

// NewEngine loads the graph from the store and runs an initial
// recomputation. A persistence failure during that first run is logged
// and not fatal; the in-memory result stands.
func NewEngine(ctx context.Context, store GraphStore, log logging.Logger, maxTTL int, retention time.Duration) (*Engine, error) {
	graph, err := store.Graph(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading delegation graph: %w", err)
	}
	graph.normalize()

	e := &Engine{
		store:     store,
		log:       log.With("module", "propagation_engine"),
		now:       time.Now,
		maxTTL:    maxTTL,
		retention: retention,
		graph:     graph,
		computed:  make(map[string]*UserRecord),
	}

	changed, err := e.Recompute(ctx)
	if err != nil {
		e.log.Warn(ctx, "initial recomputation not persisted", "error", err)
	}
	e.log.Info(ctx, "delegation graph loaded", "entitled_users", len(changed))

	return e, nil
}

// Recompute rebuilds the computed entitlement table from the graph and
// returns the users who gained or lost entitlement since the last run.
func (e *Engine) Recompute(ctx context.Context) ([]models.Identity, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recomputeLocked(ctx)
}

// Update applies a graph mutation and immediately recomputes, both under
// one lock acquisition, so the recomputation always observes the mutation
// that triggered it.
func (e *Engine) Update(ctx context.Context, mutate func(g *Graph)) ([]models.Identity, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	mutate(e.graph)
	return e.recomputeLocked(ctx)
}

// recomputeLocked runs the multi-source bounded-depth label propagation to
// a fixed point. The loop terminates because slot values only ever
// increase and are bounded by the maximum TTL. Mutual sponsorship cycles
// are tolerated; inside such a cycle the fixed point may under-propagate,
// matching the behavior of existing deployments.
func (e *Engine) recomputeLocked(ctx context.Context) ([]models.Identity, error) {
	admins, err := e.store.AdminIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading administrator ids: %w", err)
	}

	now := e.now()
	next := make(map[string]*UserRecord)

	// administrators seed the propagation with full-strength tables
	for _, id := range admins {
		ident, ok := e.graph.Identity(id)
		if !ok {
			ident = models.Identity{UserID: id}
			e.graph.PutIdentity(ident)
		}
		next[id] = &UserRecord{Identity: ident, Table: NewFullTable(e.maxTTL)}
	}

	// every follower on an active edge is present, not yet computed
	for _, schedules := range e.graph.Sponsors {
		for _, rec := range schedules {
			if !e.recordActive(rec, now) {
				continue
			}
			for followerID, revoked := range rec.Users {
				if revoked != nil {
					continue
				}
				if _, ok := next[followerID]; ok {
					continue
				}
				ident, ok := e.graph.Identity(followerID)
				if !ok {
					ident = models.Identity{UserID: followerID}
				}
				next[followerID] = &UserRecord{Identity: ident}
			}
		}
	}

	rounds := 0
	for improved := true; improved; {
		improved = false
		rounds++
		for sponsorID, schedules := range e.graph.Sponsors {
			sponsor := next[sponsorID]
			if sponsor == nil || sponsor.Table == nil {
				continue
			}
			for _, rec := range schedules {
				if !e.recordActive(rec, now) {
					continue
				}
				for followerID, revoked := range rec.Users {
					if revoked != nil {
						continue
					}
					follower := next[followerID]
					if follower == nil {
						continue
					}
					if follower.Table == nil {
						candidate := newEmptyTable()
						if candidate.absorb(sponsor.Table) {
							follower.Table = candidate
							improved = true
						}
					} else if follower.Table.absorb(sponsor.Table) {
						improved = true
					}
				}
			}
		}
	}
	e.log.Debug(ctx, "propagation reached fixed point", "rounds", rounds, "users", len(next))

	changed := entitlementDelta(e.computed, next)

	// swap before persisting: a write failure leaves the new in-memory
	// state authoritative for the running process
	e.computed = next

	if err := e.store.WriteGraph(ctx, e.graph); err != nil {
		return changed, fmt.Errorf("persisting delegation graph: %w", err)
	}
	return changed, nil
}

// recordActive reports whether a schedule record still contributes to
// propagation. A retired record keeps propagating for its non-revoked
// followers until the retention window has passed; retention zero retires
// it immediately.
func (e *Engine) recordActive(rec *ScheduleRecord, now time.Time) bool {
	if rec.DeletedAt == nil {
		return true
	}
	return e.retention > 0 && now.Sub(*rec.DeletedAt) < e.retention
}

func entitlementDelta(prev, next map[string]*UserRecord) []models.Identity {
	var changed []models.Identity
	for id, rec := range next {
		if rec.Table == nil {
			continue
		}
		if p, ok := prev[id]; !ok || p.Table == nil {
			changed = append(changed, rec.Identity)
		}
	}
	for id, rec := range prev {
		if rec.Table == nil {
			continue
		}
		if n, ok := next[id]; !ok || n.Table == nil {
			changed = append(changed, rec.Identity)
		}
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i].UserID < changed[j].UserID })
	return changed
}

// Record returns the computed entitlement record for a user. The returned
// table is a copy; callers cannot alter engine state through it.
func (e *Engine) Record(userID string) (UserRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.computed[userID]
	if !ok {
		return UserRecord{}, false
	}
	out := UserRecord{Identity: rec.Identity}
	if rec.Table != nil {
		out.Table = rec.Table.Clone()
	}
	return out, true
}

// Entitled reports whether the user currently holds any entitlement.
func (e *Engine) Entitled(userID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.computed[userID]
	return ok && rec.Table != nil
}

// CanDelegate reports whether the user may lend access further, i.e. holds
// at least one slot with re-lend hops left.
func (e *Engine) CanDelegate(userID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.computed[userID]
	return ok && rec.Table != nil && rec.Table.CanDelegate()
}

// HasAccessAt reports whether the user's schedule grants access at the
// given instant.
func (e *Engine) HasAccessAt(userID string, at time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.computed[userID]
	return ok && rec.Table != nil && rec.Table.ValueAt(at) >= 0
}

// Identity returns the identity record known for a user id.
func (e *Engine) Identity(userID string) (models.Identity, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graph.Identity(userID)
}

// Followers lists the identities the sponsor currently lends access to.
func (e *Engine) Followers(sponsorID string) []models.Identity {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.identitiesLocked(e.graph.Followers(sponsorID))
}

// Sponsors lists the identities currently lending access to the follower.
func (e *Engine) Sponsors(followerID string) []models.Identity {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.identitiesLocked(e.graph.SponsorsOf(followerID))
}

func (e *Engine) identitiesLocked(ids []string) []models.Identity {
	out := make([]models.Identity, 0, len(ids))
	for _, id := range ids {
		if ident, ok := e.graph.Identity(id); ok {
			out = append(out, ident)
		} else {
			out = append(out, models.Identity{UserID: id})
		}
	}
	return out
}
