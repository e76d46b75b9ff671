package access

import (
	"sort"
	"time"

	"github.com/stko/zuul-ac/internal/models"
)

// DefaultScheduleID is the single schedule grouping key in use today. The
// key exists so that future deployments can hang multiple named schedules
// off one sponsor.
const DefaultScheduleID = "weekly"

// ScheduleRecord groups the followers one sponsor invited under one
// schedule id. A nil map value means the edge is active; a timestamp marks
// when revocation was requested. DeletedAt retires the whole record,
// independent of the per-follower markers.
type ScheduleRecord struct {
	Users     map[string]*time.Time `json:"users"`
	DeletedAt *time.Time            `json:"deleted_at,omitempty"`
}

// Graph is the mutable sponsor→schedule→follower adjacency structure plus
// the identity records it references. It is owned exclusively by the
// engine and must only be touched under the engine's lock.
type Graph struct {
	Identities map[string]models.Identity            `json:"identities"`
	Sponsors   map[string]map[string]*ScheduleRecord `json:"sponsors"`
}

func NewGraph() *Graph {
	return &Graph{
		Identities: make(map[string]models.Identity),
		Sponsors:   make(map[string]map[string]*ScheduleRecord),
	}
}

// normalize repairs nil maps after JSON decoding.
func (g *Graph) normalize() {
	if g.Identities == nil {
		g.Identities = make(map[string]models.Identity)
	}
	if g.Sponsors == nil {
		g.Sponsors = make(map[string]map[string]*ScheduleRecord)
	}
	for _, schedules := range g.Sponsors {
		for _, rec := range schedules {
			if rec.Users == nil {
				rec.Users = make(map[string]*time.Time)
			}
		}
	}
}

// Identity returns the stored identity record for a user id.
func (g *Graph) Identity(userID string) (models.Identity, bool) {
	ident, ok := g.Identities[userID]
	return ident, ok
}

// PutIdentity stores or refreshes an identity record.
func (g *Graph) PutIdentity(ident models.Identity) {
	if existing, ok := g.Identities[ident.UserID]; ok {
		g.Identities[ident.UserID] = existing.Merge(ident)
		return
	}
	g.Identities[ident.UserID] = ident
}

// AddFollower records that sponsor lends access to follower under the
// given schedule. Re-adding a revoked follower clears the revocation
// marker. The follower's identity record is created or refreshed.
func (g *Graph) AddFollower(sponsorID, scheduleID string, follower models.Identity) {
	schedules := g.Sponsors[sponsorID]
	if schedules == nil {
		schedules = make(map[string]*ScheduleRecord)
		g.Sponsors[sponsorID] = schedules
	}
	rec := schedules[scheduleID]
	if rec == nil {
		rec = &ScheduleRecord{Users: make(map[string]*time.Time)}
		schedules[scheduleID] = rec
	}
	rec.Users[follower.UserID] = nil
	g.PutIdentity(follower)
}

// RevokeFollower marks the sponsor→follower edge as revoked at the given
// time. Reports whether an active edge was found.
func (g *Graph) RevokeFollower(sponsorID, scheduleID, followerID string, at time.Time) bool {
	rec := g.Sponsors[sponsorID][scheduleID]
	if rec == nil {
		return false
	}
	marker, ok := rec.Users[followerID]
	if !ok || marker != nil {
		return false
	}
	rec.Users[followerID] = &at
	return true
}

// RetireSchedule marks a whole schedule record as deleted at the given
// time. Reports whether the record existed and was still active.
func (g *Graph) RetireSchedule(sponsorID, scheduleID string, at time.Time) bool {
	rec := g.Sponsors[sponsorID][scheduleID]
	if rec == nil || rec.DeletedAt != nil {
		return false
	}
	rec.DeletedAt = &at
	return true
}

// Followers lists the ids with an active edge from the sponsor, across all
// schedules, sorted for deterministic output.
func (g *Graph) Followers(sponsorID string) []string {
	seen := make(map[string]struct{})
	for _, rec := range g.Sponsors[sponsorID] {
		for followerID, marker := range rec.Users {
			if marker == nil {
				seen[followerID] = struct{}{}
			}
		}
	}
	return sortedKeys(seen)
}

// SponsorsOf lists the ids holding an active edge towards the follower.
func (g *Graph) SponsorsOf(followerID string) []string {
	seen := make(map[string]struct{})
	for sponsorID, schedules := range g.Sponsors {
		for _, rec := range schedules {
			if marker, ok := rec.Users[followerID]; ok && marker == nil {
				seen[sponsorID] = struct{}{}
			}
		}
	}
	return sortedKeys(seen)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
