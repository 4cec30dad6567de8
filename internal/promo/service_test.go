package promo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nation-game-bot/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st := store.New(1000)
	_, err := st.Join(100, 1, "alice", "russia")
	require.NoError(t, err)
	_, err = st.Join(200, 1, "alice", "spain")
	require.NoError(t, err)
	_, err = st.Join(200, 2, "bob", "russia")
	require.NoError(t, err)
	return NewService(st), st
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "WELCOME", Normalize("  welcome "))
	assert.Equal(t, "НОВЫЙГОД", Normalize("новыйгод"))
}

func TestCreate(t *testing.T) {
	svc, _ := newTestService(t)

	p, err := svc.Create("welcome", 500, 10, 42)
	require.NoError(t, err)
	assert.Equal(t, "WELCOME", p.Code)
	assert.Equal(t, 500.0, p.Reward)
	assert.Equal(t, 10, p.MaxUses)
	assert.Equal(t, int64(42), p.CreatedBy)
	assert.True(t, p.IsActive)
	assert.Zero(t, p.UsedCount)

	_, err = svc.Create("WELCOME", 100, 1, 42)
	assert.ErrorIs(t, err, ErrExists)

	_, err = svc.Create("bad", 0, 1, 42)
	assert.ErrorIs(t, err, ErrInvalidReward)

	_, err = svc.Create("bad", 100, 0, 42)
	assert.ErrorIs(t, err, ErrInvalidUses)
}

func TestRedeem_CreditsEveryGame(t *testing.T) {
	svc, st := newTestService(t)
	_, err := svc.Create("WELCOME", 500, 10, 42)
	require.NoError(t, err)

	res, err := svc.Redeem(1, "welcome")
	require.NoError(t, err)
	assert.Equal(t, "WELCOME", res.Code)
	assert.Equal(t, 500.0, res.Reward)
	assert.Equal(t, 1, res.UsedCount)
	assert.Equal(t, []int64{100, 200}, res.Chats)

	// alice is credited in both her games, bob in none.
	p, err := st.PlayerView(100, 1)
	require.NoError(t, err)
	assert.Equal(t, 1500.0, p.Money)
	assert.Equal(t, []string{"WELCOME"}, p.UsedPromocodes)

	p, err = st.PlayerView(200, 1)
	require.NoError(t, err)
	assert.Equal(t, 1500.0, p.Money)

	p, err = st.PlayerView(200, 2)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, p.Money)
}

func TestRedeem_OncePerUser(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Create("WELCOME", 500, 10, 42)
	require.NoError(t, err)

	_, err = svc.Redeem(1, "WELCOME")
	require.NoError(t, err)

	_, err = svc.Redeem(1, "WELCOME")
	assert.ErrorIs(t, err, ErrAlreadyUsed)

	// A different user still can.
	res, err := svc.Redeem(2, "WELCOME")
	require.NoError(t, err)
	assert.Equal(t, 2, res.UsedCount)
}

func TestRedeem_UsageCap(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Create("ONCE", 500, 1, 42)
	require.NoError(t, err)

	_, err = svc.Redeem(1, "ONCE")
	require.NoError(t, err)

	_, err = svc.Redeem(2, "ONCE")
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestRedeem_InactiveAndUnknown(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Create("WELCOME", 500, 10, 42)
	require.NoError(t, err)

	active, err := svc.Toggle("WELCOME")
	require.NoError(t, err)
	require.False(t, active)

	_, err = svc.Redeem(1, "WELCOME")
	assert.ErrorIs(t, err, ErrInactive)

	_, err = svc.Redeem(1, "NOPE")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedeem_RequiresAnyGame(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Create("WELCOME", 500, 10, 42)
	require.NoError(t, err)

	_, err = svc.Redeem(999, "WELCOME")
	assert.ErrorIs(t, err, ErrNotInAnyGame)

	// A failed redemption must not consume a use.
	promos := svc.List()
	require.Len(t, promos, 1)
	assert.Zero(t, promos[0].UsedCount)
}

func TestDeleteAndList(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Create("b", 100, 1, 42)
	require.NoError(t, err)
	_, err = svc.Create("a", 100, 1, 42)
	require.NoError(t, err)

	promos := svc.List()
	require.Len(t, promos, 2)
	assert.Equal(t, "A", promos[0].Code)
	assert.Equal(t, "B", promos[1].Code)

	require.NoError(t, svc.Delete("a"))
	assert.Len(t, svc.List(), 1)

	assert.ErrorIs(t, svc.Delete("a"), ErrNotFound)
}
