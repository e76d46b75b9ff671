// Package storage provides the persistence collaborator of the access
// core: the delegation graph, the administrator roots and a small
// key-value configuration space (which also holds the key wallet).
//
// Three backends exist: a JSON file matching the original single-host
// deployments, an in-memory store for tests, and Postgres for
// installations that already run a database.
package storage

import (
	"context"

	"github.com/stko/zuul-ac/internal/access"
)

// Store is the full persistence contract. It embeds the engine's view of
// storage and adds configuration access and administrator bootstrap.
type Store interface {
	access.GraphStore

	// SetAdmins replaces the administrator root ids.
	SetAdmins(ctx context.Context, ids []string) error

	// ReadConfigValue unmarshals the value stored under key into out,
	// returning common.ErrNotFound when the key is absent.
	ReadConfigValue(ctx context.Context, key string, out any) error

	// WriteConfigValue stores value under key.
	WriteConfigValue(ctx context.Context, key string, value any) error
}
