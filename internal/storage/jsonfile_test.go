package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stko/zuul-ac/internal/access"
	"github.com/stko/zuul-ac/internal/common"
	"github.com/stko/zuul-ac/internal/logging"
	"github.com/stko/zuul-ac/internal/models"
)

func TestFileStore_FreshFile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.json")

	s, err := NewFileStore(path, logging.Discard())
	require.NoError(t, err)

	g, err := s.Graph(ctx)
	require.NoError(t, err)
	assert.NotNil(t, g)

	admins, err := s.AdminIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, admins)

	var out string
	err = s.ReadConfigValue(ctx, "missing", &out)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestFileStore_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.json")

	s, err := NewFileStore(path, logging.Discard())
	require.NoError(t, err)

	require.NoError(t, s.SetAdmins(ctx, []string{"alice"}))

	g := access.NewGraph()
	g.AddFollower("alice", access.DefaultScheduleID, models.Identity{UserID: "bob", FirstName: "Bob"})
	g.RevokeFollower("alice", access.DefaultScheduleID, "bob", time.Now())
	g.AddFollower("alice", access.DefaultScheduleID, models.Identity{UserID: "carol"})
	require.NoError(t, s.WriteGraph(ctx, g))

	require.NoError(t, s.WriteConfigValue(ctx, "door_name", "front"))

	reopened, err := NewFileStore(path, logging.Discard())
	require.NoError(t, err)

	admins, err := reopened.AdminIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, admins)

	loaded, err := reopened.Graph(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"carol"}, loaded.Followers("alice"))

	ident, ok := loaded.Identity("bob")
	require.True(t, ok)
	assert.Equal(t, "Bob", ident.FirstName)

	var name string
	require.NoError(t, reopened.ReadConfigValue(ctx, "door_name", &name))
	assert.Equal(t, "front", name)
}

func TestFileStore_RejectsCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileStore(path, logging.Discard())
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore("alice")

	admins, err := s.AdminIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, admins)

	require.NoError(t, s.SetAdmins(ctx, []string{"alice", "bob"}))
	admins, err = s.AdminIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, admins, 2)

	require.NoError(t, s.WriteConfigValue(ctx, "k", 42))
	var v int
	require.NoError(t, s.ReadConfigValue(ctx, "k", &v))
	assert.Equal(t, 42, v)

	require.NoError(t, s.WriteGraph(ctx, access.NewGraph()))
	assert.Equal(t, 1, s.GraphWrites)

	s.FailWrites = true
	assert.Error(t, s.WriteGraph(ctx, access.NewGraph()))
	assert.Equal(t, 2, s.GraphWrites)
}
