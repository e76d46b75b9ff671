package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/stko/zuul-ac/internal/access"
	"github.com/stko/zuul-ac/internal/common"
	"github.com/stko/zuul-ac/internal/logging"
	"github.com/stko/zuul-ac/internal/storage/migrations"
)

const graphDocumentName = "graph"

// PostgresStore keeps the graph and config space as jsonb documents. The
// coarse write_graph contract makes a document store the natural
// relational mapping.
type PostgresStore struct {
	db  *sql.DB
	log logging.Logger
}

// NewPostgresStore opens the database and runs pending migrations.
func NewPostgresStore(ctx context.Context, dsn string, log logging.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	s := &PostgresStore{db: db, log: log.With("module", "postgres_store")}
	if err := s.runMigrations(ctx); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) runMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, s.db, ".")
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Graph(ctx context.Context) (*access.Graph, error) {
	query := `SELECT doc FROM documents WHERE name = $1`

	var raw []byte
	err := s.db.QueryRowContext(ctx, query, graphDocumentName).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return access.NewGraph(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	graph := access.NewGraph()
	if err := json.Unmarshal(raw, graph); err != nil {
		return nil, fmt.Errorf("parsing graph document: %w", err)
	}
	return graph, nil
}

func (s *PostgresStore) WriteGraph(ctx context.Context, g *access.Graph) error {
	raw, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("marshalling graph: %w", err)
	}

	query := `INSERT INTO documents (name, doc) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET doc = excluded.doc`

	if _, err := s.db.ExecContext(ctx, query, graphDocumentName, raw); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *PostgresStore) AdminIDs(ctx context.Context) ([]string, error) {
	query := `SELECT user_id FROM admins ORDER BY user_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) SetAdmins(ctx context.Context, ids []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM admins`); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `INSERT INTO admins (user_id) VALUES ($1)`, id); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) ReadConfigValue(ctx context.Context, key string, out any) error {
	query := `SELECT value FROM config WHERE key = $1`

	var raw []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("config key %q: %w", key, common.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return json.Unmarshal(raw, out)
}

func (s *PostgresStore) WriteConfigValue(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshalling config value %q: %w", key, err)
	}

	query := `INSERT INTO config (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`

	if _, err := s.db.ExecContext(ctx, query, key, raw); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
