package store

import (
	"context"
	"errors"

	"github.com/Harshitk-cp/junctree/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NetworkStore keeps network definitions in Postgres as JSONB.
type NetworkStore struct {
	db *pgxpool.Pool
}

func NewNetworkStore(db *pgxpool.Pool) *NetworkStore {
	return &NetworkStore{db: db}
}

func (s *NetworkStore) Create(ctx context.Context, n *domain.Network) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO networks (name, definition)
		 VALUES ($1, $2)
		 RETURNING id, created_at, updated_at`,
		n.Name, n.Definition,
	).Scan(&n.ID, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *NetworkStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Network, error) {
	n := &domain.Network{}
	err := s.db.QueryRow(ctx,
		`SELECT id, name, definition, created_at, updated_at
		 FROM networks WHERE id = $1`,
		id,
	).Scan(&n.ID, &n.Name, &n.Definition, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return n, nil
}

func (s *NetworkStore) List(ctx context.Context, limit int) ([]domain.Network, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, name, definition, created_at, updated_at
		 FROM networks ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Network
	for rows.Next() {
		var n domain.Network
		if err := rows.Scan(&n.ID, &n.Name, &n.Definition, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *NetworkStore) Update(ctx context.Context, n *domain.Network) error {
	err := s.db.QueryRow(ctx,
		`UPDATE networks SET name = $2, definition = $3, updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`,
		n.ID, n.Name, n.Definition,
	).Scan(&n.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *NetworkStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM networks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *NetworkStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
