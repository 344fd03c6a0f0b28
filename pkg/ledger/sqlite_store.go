package ledger

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/delegacy/core/pkg/types"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a durable Store backed by SQLite: a self-migrating
// database/sql wrapper over modernc.org/sqlite, storing big-int
// amounts as decimal text since SQLite has no native 128-bit column
// type.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps db and ensures its schema exists.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.ExecContext(context.Background(), `
		CREATE TABLE IF NOT EXISTS ledger_entries (
			relationship_id TEXT NOT NULL,
			entry_index     INTEGER NOT NULL,
			action_kind     TEXT NOT NULL,
			target          TEXT NOT NULL,
			value           TEXT NOT NULL,
			authority       TEXT NOT NULL,
			timestamp       INTEGER NOT NULL,
			prev_hash       TEXT NOT NULL,
			PRIMARY KEY (relationship_id, entry_index)
		);
		CREATE TABLE IF NOT EXISTS ledger_heads (
			relationship_id TEXT PRIMARY KEY,
			head            TEXT NOT NULL
		);
	`)
	return err
}

func (s *SQLiteStore) AppendEntry(ctx context.Context, e Entry) error {
	count, err := s.EntryCount(ctx, e.RelationshipID)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (relationship_id, entry_index, action_kind, target, value, authority, timestamp, prev_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.RelationshipID.String(), count, string(e.ActionKind), e.Target.String(), e.Value.String(), e.AuthorityAtTime.String(), e.Timestamp, e.PrevHash.String())
	if err != nil {
		return fmt.Errorf("ledger: append entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetEntry(ctx context.Context, relationshipID types.Hash, index int) (Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT action_kind, target, value, authority, timestamp, prev_hash
		FROM ledger_entries WHERE relationship_id = ? AND entry_index = ?
	`, relationshipID.String(), index)

	var actionKind, targetStr, valueStr, authStr, prevHashStr string
	var timestamp uint64
	err := row.Scan(&actionKind, &targetStr, &valueStr, &authStr, &timestamp, &prevHashStr)
	if err == sql.ErrNoRows {
		return Entry{}, ErrIndexOutOfRange
	}
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: get entry: %w", err)
	}

	target, err := types.ParseAddress(targetStr)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: corrupted target: %w", err)
	}
	value := mustBigInt(valueStr)
	auth := mustBigInt(authStr)
	prevHash, err := parseHash(prevHashStr)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: corrupted prev_hash: %w", err)
	}

	return Entry{
		RelationshipID:  relationshipID,
		ActionKind:      ActionKind(actionKind),
		Target:          target,
		Value:           value,
		AuthorityAtTime: auth,
		Timestamp:       timestamp,
		PrevHash:        prevHash,
	}, nil
}

func (s *SQLiteStore) EntryCount(ctx context.Context, relationshipID types.Hash) (int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_entries WHERE relationship_id = ?`, relationshipID.String())
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("ledger: entry count: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) Entries(ctx context.Context, relationshipID types.Hash, startIndex, limit int) ([]Entry, error) {
	count, err := s.EntryCount(ctx, relationshipID)
	if err != nil {
		return nil, err
	}
	if startIndex < 0 || startIndex > count {
		return nil, ErrIndexOutOfRange
	}

	query := `SELECT entry_index FROM ledger_entries WHERE relationship_id = ? AND entry_index >= ? ORDER BY entry_index ASC`
	args := []any{relationshipID.String(), startIndex}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: list entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var indices []int
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			return nil, fmt.Errorf("ledger: scan entry index: %w", err)
		}
		indices = append(indices, idx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(indices))
	for _, idx := range indices {
		e, err := s.GetEntry(ctx, relationshipID, idx)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *SQLiteStore) ChainHead(ctx context.Context, relationshipID types.Hash) (types.Hash, error) {
	row := s.db.QueryRowContext(ctx, `SELECT head FROM ledger_heads WHERE relationship_id = ?`, relationshipID.String())
	var headStr string
	err := row.Scan(&headStr)
	if err == sql.ErrNoRows {
		return types.Hash{}, nil
	}
	if err != nil {
		return types.Hash{}, fmt.Errorf("ledger: chain head: %w", err)
	}
	return parseHash(headStr)
}

func (s *SQLiteStore) SetChainHead(ctx context.Context, relationshipID types.Hash, head types.Hash) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_heads (relationship_id, head) VALUES (?, ?)
		ON CONFLICT (relationship_id) DO UPDATE SET head = excluded.head
	`, relationshipID.String(), head.String())
	if err != nil {
		return fmt.Errorf("ledger: set chain head: %w", err)
	}
	return nil
}

func mustBigInt(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("ledger: corrupted numeric column: " + s)
	}
	return v
}

func parseHash(s string) (types.Hash, error) {
	var h types.Hash
	if s == "" {
		return h, nil
	}
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("ledger: invalid hash %q: %w", s, err)
	}
	if len(b) != types.HashLength {
		return h, fmt.Errorf("ledger: hash %q must be %d bytes, got %d", s, types.HashLength, len(b))
	}
	copy(h[:], b)
	return h, nil
}
