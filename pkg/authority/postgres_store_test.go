package authority

import (
	"context"
	"database/sql"
	"math/big"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/delegacy/core/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStoreGetRelationshipFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	id := types.Hash{0x01}
	principal, agent := mustAddr(t, 1), mustAddr(t, 2)

	rows := sqlmock.NewRows([]string{
		"principal", "agent", "stored_authority", "ceiling", "decay_per_second", "last_refresh", "created_at", "alive",
	}).AddRow(principal[:], agent[:], "100", "500", "1", int64(1000), int64(900), true)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT principal, agent, stored_authority, ceiling, decay_per_second, last_refresh, created_at, alive")).
		WithArgs(id[:]).
		WillReturnRows(rows)

	r, err := store.GetRelationship(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, principal, r.Principal)
	assert.Equal(t, agent, r.Agent)
	assert.Equal(t, int64(100), r.StoredAuthority.Int64())
	assert.True(t, r.Alive)
}

func TestPostgresStoreGetRelationshipNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	id := types.Hash{0x02}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT principal, agent, stored_authority, ceiling, decay_per_second, last_refresh, created_at, alive")).
		WithArgs(id[:]).
		WillReturnError(sql.ErrNoRows)

	r, err := store.GetRelationship(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestPostgresStorePutRelationshipUpsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	r := &Relationship{
		ID:              types.Hash{0x03},
		Principal:       mustAddr(t, 1),
		Agent:           mustAddr(t, 2),
		StoredAuthority: big.NewInt(50),
		Ceiling:         big.NewInt(500),
		DecayPerSecond:  big.NewInt(1),
		LastRefresh:     1000,
		CreatedAt:       900,
		Alive:           true,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO relationships")).
		WithArgs(r.ID[:], r.Principal[:], r.Agent[:], "50", "500", "1", r.LastRefresh, r.CreatedAt, r.Alive).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = store.PutRelationship(context.Background(), r)
	require.NoError(t, err)
}

func TestPostgresStoreNextSequence(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	principal := mustAddr(t, 1)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO relationship_sequences")).
		WithArgs(principal[:]).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(int64(3)))

	seq, err := store.NextSequence(context.Background(), principal)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), seq)
}

func TestPostgresStoreGetIndexNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	principal, agent := mustAddr(t, 1), mustAddr(t, 2)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM relationship_index")).
		WithArgs(principal[:], agent[:]).
		WillReturnError(sql.ErrNoRows)

	_, ok, err := store.GetIndex(context.Background(), principal, agent)
	require.NoError(t, err)
	assert.False(t, ok)
}
