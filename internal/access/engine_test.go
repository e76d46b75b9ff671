package access

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stko/zuul-ac/internal/logging"
	"github.com/stko/zuul-ac/internal/models"
)

type fakeStore struct {
	admins     []string
	graph      *Graph
	failWrites bool
	writes     int
}

func (s *fakeStore) Graph(ctx context.Context) (*Graph, error) { return s.graph, nil }

func (s *fakeStore) WriteGraph(ctx context.Context, g *Graph) error {
	s.writes++
	if s.failWrites {
		return errors.New("store offline")
	}
	s.graph = g
	return nil
}

func (s *fakeStore) AdminIDs(ctx context.Context) ([]string, error) { return s.admins, nil }

func newTestEngine(t *testing.T, retention time.Duration, admins ...string) (*Engine, *fakeStore) {
	t.Helper()
	store := &fakeStore{admins: admins, graph: NewGraph()}
	e, err := NewEngine(context.Background(), store, logging.Discard(), 7, retention)
	require.NoError(t, err)
	return e, store
}

func changedIDs(idents []models.Identity) []string {
	ids := make([]string, 0, len(idents))
	for _, ident := range idents {
		ids = append(ids, ident.UserID)
	}
	return ids
}

func TestEngine_AdminSeed(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t, 0, "alice")

	rec, ok := e.Record("alice")
	require.True(t, ok)
	require.NotNil(t, rec.Table)
	assert.Equal(t, int8(7), rec.Table[0])
	assert.True(t, e.Entitled("alice"))
	assert.True(t, e.CanDelegate("alice"))
}

func TestEngine_Recompute_Idempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, _ := newTestEngine(t, 0, "alice")

	_, err := e.Update(ctx, func(g *Graph) {
		g.AddFollower("alice", DefaultScheduleID, models.Identity{UserID: "bob"})
	})
	require.NoError(t, err)

	changed, err := e.Recompute(ctx)
	require.NoError(t, err)
	assert.Empty(t, changed)
}

func TestEngine_DelegationChain(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, _ := newTestEngine(t, 0, "alice")

	changed, err := e.Update(ctx, func(g *Graph) {
		g.AddFollower("alice", DefaultScheduleID, models.Identity{UserID: "bob"})
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, changedIDs(changed))

	rec, ok := e.Record("bob")
	require.True(t, ok)
	require.NotNil(t, rec.Table)
	assert.Equal(t, int8(6), rec.Table[0])

	changed, err = e.Update(ctx, func(g *Graph) {
		g.AddFollower("bob", DefaultScheduleID, models.Identity{UserID: "carol"})
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"carol"}, changedIDs(changed))

	rec, ok = e.Record("carol")
	require.True(t, ok)
	require.NotNil(t, rec.Table)
	assert.Equal(t, int8(5), rec.Table[0])
}

func TestEngine_RevocationCascades(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, _ := newTestEngine(t, 0, "alice")

	_, err := e.Update(ctx, func(g *Graph) {
		g.AddFollower("alice", DefaultScheduleID, models.Identity{UserID: "bob"})
		g.AddFollower("bob", DefaultScheduleID, models.Identity{UserID: "carol"})
	})
	require.NoError(t, err)

	changed, err := e.Update(ctx, func(g *Graph) {
		g.RevokeFollower("alice", DefaultScheduleID, "bob", time.Now())
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "carol"}, changedIDs(changed))

	assert.False(t, e.Entitled("bob"))
	assert.False(t, e.Entitled("carol"))
}

func TestEngine_BestPathWins(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, _ := newTestEngine(t, 0, "alice")

	// carol is reachable both directly and through bob; the shorter path
	// must determine her remaining depth
	_, err := e.Update(ctx, func(g *Graph) {
		g.AddFollower("alice", DefaultScheduleID, models.Identity{UserID: "bob"})
		g.AddFollower("alice", DefaultScheduleID, models.Identity{UserID: "carol"})
		g.AddFollower("bob", DefaultScheduleID, models.Identity{UserID: "carol"})
	})
	require.NoError(t, err)

	rec, ok := e.Record("carol")
	require.True(t, ok)
	assert.Equal(t, int8(6), rec.Table[0])
}

func TestEngine_UnreachableFollower(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, _ := newTestEngine(t, 0, "alice")

	// dave is nobody's follower; his delegation to erin must not grant
	// anything, but erin still shows up as a known, unentitled user
	_, err := e.Update(ctx, func(g *Graph) {
		g.AddFollower("dave", DefaultScheduleID, models.Identity{UserID: "erin"})
	})
	require.NoError(t, err)

	rec, ok := e.Record("erin")
	require.True(t, ok)
	assert.Nil(t, rec.Table)
	assert.False(t, e.Entitled("erin"))
	assert.False(t, e.HasAccessAt("erin", time.Now()))
}

func TestEngine_CycleTerminates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, _ := newTestEngine(t, 0, "alice")

	_, err := e.Update(ctx, func(g *Graph) {
		g.AddFollower("alice", DefaultScheduleID, models.Identity{UserID: "bob"})
		g.AddFollower("bob", DefaultScheduleID, models.Identity{UserID: "alice"})
	})
	require.NoError(t, err)

	aliceRec, _ := e.Record("alice")
	bobRec, _ := e.Record("bob")
	assert.Equal(t, int8(7), aliceRec.Table[0])
	assert.Equal(t, int8(6), bobRec.Table[0])
}

func TestEngine_RetentionKeepsRetiredSchedule(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, _ := newTestEngine(t, 30*24*time.Hour, "alice")

	tenDaysAgo := time.Now().Add(-10 * 24 * time.Hour)
	_, err := e.Update(ctx, func(g *Graph) {
		g.AddFollower("alice", DefaultScheduleID, models.Identity{UserID: "bob"})
		g.RetireSchedule("alice", DefaultScheduleID, tenDaysAgo)
	})
	require.NoError(t, err)

	assert.True(t, e.Entitled("bob"))

	// past the window the record stops contributing
	e.now = func() time.Time { return time.Now().Add(25 * 24 * time.Hour) }
	changed, err := e.Recompute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, changedIDs(changed))
	assert.False(t, e.Entitled("bob"))
}

func TestEngine_ZeroRetentionRetiresImmediately(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, _ := newTestEngine(t, 0, "alice")

	_, err := e.Update(ctx, func(g *Graph) {
		g.AddFollower("alice", DefaultScheduleID, models.Identity{UserID: "bob"})
	})
	require.NoError(t, err)

	changed, err := e.Update(ctx, func(g *Graph) {
		g.RetireSchedule("alice", DefaultScheduleID, time.Now())
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, changedIDs(changed))
	assert.False(t, e.Entitled("bob"))
}

func TestEngine_WriteFailureKeepsComputedState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, store := newTestEngine(t, 0, "alice")
	store.failWrites = true

	changed, err := e.Update(ctx, func(g *Graph) {
		g.AddFollower("alice", DefaultScheduleID, models.Identity{UserID: "bob"})
	})
	require.Error(t, err)
	assert.Equal(t, []string{"bob"}, changedIDs(changed))
	assert.True(t, e.Entitled("bob"))
}

func TestEngine_FollowersAndSponsors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, _ := newTestEngine(t, 0, "alice")

	_, err := e.Update(ctx, func(g *Graph) {
		g.AddFollower("alice", DefaultScheduleID, models.Identity{UserID: "bob", FirstName: "Bob"})
	})
	require.NoError(t, err)

	followers := e.Followers("alice")
	require.Len(t, followers, 1)
	assert.Equal(t, "Bob", followers[0].FirstName)

	sponsors := e.Sponsors("bob")
	require.Len(t, sponsors, 1)
	assert.Equal(t, "alice", sponsors[0].UserID)
}
