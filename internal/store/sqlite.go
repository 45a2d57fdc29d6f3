package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Harshitk-cp/junctree/internal/domain"
	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS networks (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE,
	definition  TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS networks_created_at_idx ON networks (created_at DESC);
`

// SQLiteNetworkStore is the embedded NetworkStore used for single-node
// deployments and tests.
type SQLiteNetworkStore struct {
	db *sql.DB
}

// NewSQLiteNetworkStore opens (and creates) the database at path. ":memory:"
// gives a private in-memory database.
func NewSQLiteNetworkStore(path string) (*SQLiteNetworkStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if path == ":memory:" {
		// Every connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteNetworkStore{db: db}, nil
}

func (s *SQLiteNetworkStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

func (s *SQLiteNetworkStore) Create(ctx context.Context, n *domain.Network) error {
	def, err := json.Marshal(n.Definition)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	id := uuid.New()
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO networks (id, name, definition, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id.String(), n.Name, string(def), now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	n.ID = id
	n.CreatedAt = now
	n.UpdatedAt = now
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNetwork(row scanner) (*domain.Network, error) {
	var (
		n                    domain.Network
		id, def              string
		createdAt, updatedAt string
	)
	if err := row.Scan(&id, &n.Name, &def, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if n.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse id: %w", err)
	}
	if err := json.Unmarshal([]byte(def), &n.Definition); err != nil {
		return nil, fmt.Errorf("unmarshal definition: %w", err)
	}
	if n.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if n.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &n, nil
}

func (s *SQLiteNetworkStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Network, error) {
	n, err := scanNetwork(s.db.QueryRowContext(ctx,
		`SELECT id, name, definition, created_at, updated_at
		 FROM networks WHERE id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return n, nil
}

func (s *SQLiteNetworkStore) List(ctx context.Context, limit int) ([]domain.Network, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, definition, created_at, updated_at
		 FROM networks ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Network
	for rows.Next() {
		n, err := scanNetwork(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (s *SQLiteNetworkStore) Update(ctx context.Context, n *domain.Network) error {
	def, err := json.Marshal(n.Definition)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE networks SET name = ?, definition = ?, updated_at = ? WHERE id = ?`,
		n.Name, string(def), now.Format(time.RFC3339Nano), n.ID.String(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	n.UpdatedAt = now
	return nil
}

func (s *SQLiteNetworkStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM networks WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteNetworkStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
