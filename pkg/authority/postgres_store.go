package authority

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/delegacy/core/pkg/types"
	_ "github.com/lib/pq"
)

// PostgresStore implements Store using PostgreSQL, for deployments that
// need durable relationship state across process restarts. Plain
// database/sql with the lib/pq driver, upserts via ON CONFLICT, and
// sql.ErrNoRows mapped to a nil/nil "not found" result rather than an
// error.
//
// Schema (created by the caller's migrations, not by this package):
//
//	CREATE TABLE relationships (
//	  id               BYTEA PRIMARY KEY,
//	  principal        BYTEA NOT NULL,
//	  agent            BYTEA NOT NULL,
//	  stored_authority NUMERIC NOT NULL,
//	  ceiling          NUMERIC NOT NULL,
//	  decay_per_second NUMERIC NOT NULL,
//	  last_refresh     BIGINT NOT NULL,
//	  created_at       BIGINT NOT NULL,
//	  alive            BOOLEAN NOT NULL
//	);
//	CREATE TABLE relationship_sequences (principal BYTEA PRIMARY KEY, seq BIGINT NOT NULL);
//	CREATE TABLE relationship_index (principal BYTEA NOT NULL, agent BYTEA NOT NULL, id BYTEA NOT NULL, PRIMARY KEY (principal, agent));
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an existing *sql.DB.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetRelationship(ctx context.Context, id types.Hash) (*Relationship, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT principal, agent, stored_authority, ceiling, decay_per_second, last_refresh, created_at, alive
		 FROM relationships WHERE id = $1`, id[:])

	var principal, agent []byte
	var storedStr, ceilingStr, decayStr string
	r := &Relationship{ID: id}
	err := row.Scan(&principal, &agent, &storedStr, &ceilingStr, &decayStr, &r.LastRefresh, &r.CreatedAt, &r.Alive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("authority: get relationship: %w", err)
	}

	copy(r.Principal[:], principal)
	copy(r.Agent[:], agent)
	nums := mustBigInts(storedStr, ceilingStr, decayStr)
	r.StoredAuthority, r.Ceiling, r.DecayPerSecond = nums[0], nums[1], nums[2]
	return r, nil
}

func (s *PostgresStore) PutRelationship(ctx context.Context, r *Relationship) error {
	query := `
		INSERT INTO relationships (id, principal, agent, stored_authority, ceiling, decay_per_second, last_refresh, created_at, alive)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			stored_authority = EXCLUDED.stored_authority,
			decay_per_second = EXCLUDED.decay_per_second,
			last_refresh = EXCLUDED.last_refresh,
			alive = EXCLUDED.alive
	`
	_, err := s.db.ExecContext(ctx, query,
		r.ID[:], r.Principal[:], r.Agent[:],
		r.StoredAuthority.String(), r.Ceiling.String(), r.DecayPerSecond.String(),
		r.LastRefresh, r.CreatedAt, r.Alive)
	if err != nil {
		return fmt.Errorf("authority: put relationship: %w", err)
	}
	return nil
}

func (s *PostgresStore) NextSequence(ctx context.Context, principal types.Address) (uint64, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO relationship_sequences (principal, seq) VALUES ($1, 1)
		ON CONFLICT (principal) DO UPDATE SET seq = relationship_sequences.seq + 1
		RETURNING seq - 1
	`, principal[:])

	var seq uint64
	if err := row.Scan(&seq); err != nil {
		return 0, fmt.Errorf("authority: next sequence: %w", err)
	}
	return seq, nil
}

func (s *PostgresStore) SetIndex(ctx context.Context, principal, agent types.Address, id types.Hash) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relationship_index (principal, agent, id) VALUES ($1, $2, $3)
		ON CONFLICT (principal, agent) DO UPDATE SET id = EXCLUDED.id
	`, principal[:], agent[:], id[:])
	if err != nil {
		return fmt.Errorf("authority: set index: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetIndex(ctx context.Context, principal, agent types.Address) (types.Hash, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id FROM relationship_index WHERE principal = $1 AND agent = $2`, principal[:], agent[:])
	var idBytes []byte
	err := row.Scan(&idBytes)
	if err == sql.ErrNoRows {
		return types.Hash{}, false, nil
	}
	if err != nil {
		return types.Hash{}, false, fmt.Errorf("authority: get index: %w", err)
	}
	var id types.Hash
	copy(id[:], idBytes)
	return id, true, nil
}
