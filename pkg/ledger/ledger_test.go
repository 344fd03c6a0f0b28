package ledger

import (
	"context"
	"math/big"
	"testing"

	"github.com/delegacy/core/pkg/clock"
	"github.com/delegacy/core/pkg/events"
	"github.com/delegacy/core/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuthority struct {
	principal, agent types.Address
	alive            bool
	authority        *big.Int
}

func (f *fakeAuthority) EffectiveAuthority(ctx context.Context, id types.Hash) (*big.Int, error) {
	return f.authority, nil
}

func (f *fakeAuthority) RelationshipParties(ctx context.Context, id types.Hash) (types.Address, types.Address, bool, error) {
	return f.principal, f.agent, f.alive, nil
}

func mustAddr(b byte) types.Address {
	var a types.Address
	a[19] = b
	return a
}

func newTestLedger(start uint64, auth *fakeAuthority) (*Ledger, *clock.Fake) {
	fake := clock.NewFake(start)
	l := New(NewMemoryStore(), auth, fake, events.NewBus(), nil)
	return l, fake
}

func TestLogRequiresAgentAndAlive(t *testing.T) {
	principal, agent, stranger := mustAddr(1), mustAddr(2), mustAddr(9)
	auth := &fakeAuthority{principal: principal, agent: agent, alive: true, authority: big.NewInt(50)}
	l, _ := newTestLedger(1000, auth)
	ctx := context.Background()
	relID := types.Hash{0x01}

	err := l.Log(ctx, stranger, relID, ActionTransfer, mustAddr(3), big.NewInt(10))
	require.ErrorIs(t, err, ErrNotAgent)

	auth.alive = false
	err = l.Log(ctx, agent, relID, ActionTransfer, mustAddr(3), big.NewInt(10))
	require.ErrorIs(t, err, ErrRelationshipNotAlive)
}

// scenario 8: chain integrity across four entries.
func TestChainIntegrityAcrossFourEntries(t *testing.T) {
	principal, agent := mustAddr(1), mustAddr(2)
	auth := &fakeAuthority{principal: principal, agent: agent, alive: true, authority: big.NewInt(100)}
	l, fake := newTestLedger(1000, auth)
	ctx := context.Background()
	relID := types.Hash{0x02}

	timestamps := []uint64{1000, 1050, 1200, 1500}
	for i, ts := range timestamps {
		fake.Set(ts)
		auth.authority = big.NewInt(int64(100 - i*10))
		require.NoError(t, l.Log(ctx, agent, relID, ActionTransfer, mustAddr(byte(10+i)), big.NewInt(int64(5+i))))
	}

	ok, err := l.VerifyChain(ctx, relID)
	require.NoError(t, err)
	assert.True(t, ok)

	summary, err := l.Summary(ctx, relID)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), summary.TotalActions)
	assert.Equal(t, timestamps[0], summary.FirstAction)
	assert.Equal(t, timestamps[3], summary.LastAction)
	assert.Equal(t, 0, summary.TotalValue.Cmp(big.NewInt(5+6+7+8)))
}

func TestVerifyChainDetectsTamperedPrevHash(t *testing.T) {
	principal, agent := mustAddr(1), mustAddr(2)
	auth := &fakeAuthority{principal: principal, agent: agent, alive: true, authority: big.NewInt(100)}
	l, fake := newTestLedger(1000, auth)
	ctx := context.Background()
	relID := types.Hash{0x03}

	for i := 0; i < 3; i++ {
		fake.Advance(10)
		require.NoError(t, l.Log(ctx, agent, relID, ActionTransfer, mustAddr(5), big.NewInt(1)))
	}

	store := l.store.(*MemoryStore)
	entries := store.entries[relID]
	entries[1].PrevHash = types.Hash{0xFF}

	ok, err := l.VerifyChain(ctx, relID)
	assert.False(t, ok)
	var chainErr *ChainIntegrityError
	require.ErrorAs(t, err, &chainErr)
	assert.Equal(t, 1, chainErr.Index)
}

func TestVerifyChainEmptyLogIsValid(t *testing.T) {
	auth := &fakeAuthority{alive: true}
	l, _ := newTestLedger(1000, auth)
	ok, err := l.VerifyChain(context.Background(), types.Hash{0x04})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSummaryEmptyLogIsAllZeros(t *testing.T) {
	auth := &fakeAuthority{alive: true}
	l, _ := newTestLedger(1000, auth)
	summary, err := l.Summary(context.Background(), types.Hash{0x05})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), summary.TotalActions)
	assert.Equal(t, 0, summary.TotalValue.Sign())
}

func TestLogRejectsOutOfRangeValue(t *testing.T) {
	principal, agent := mustAddr(1), mustAddr(2)
	auth := &fakeAuthority{principal: principal, agent: agent, alive: true, authority: big.NewInt(100)}
	l, _ := newTestLedger(1000, auth)
	ctx := context.Background()
	relID := types.Hash{0x07}

	tooLarge := new(big.Int).Add(types.MaxUint128, big.NewInt(1))
	err := l.Log(ctx, agent, relID, ActionTransfer, mustAddr(3), tooLarge)
	require.Error(t, err)
}

func TestGetEntryBoundsChecked(t *testing.T) {
	principal, agent := mustAddr(1), mustAddr(2)
	auth := &fakeAuthority{principal: principal, agent: agent, alive: true, authority: big.NewInt(100)}
	l, _ := newTestLedger(1000, auth)
	ctx := context.Background()
	relID := types.Hash{0x06}

	require.NoError(t, l.Log(ctx, agent, relID, ActionTransfer, mustAddr(5), big.NewInt(1)))

	_, err := l.GetEntry(ctx, relID, 1)
	require.ErrorIs(t, err, ErrIndexOutOfRange)

	_, err = l.GetEntry(ctx, relID, 0)
	require.NoError(t, err)
}
