package store

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nation-game-bot/internal/model"
)

const testStartingMoney = 1000

func newTestStore() *Store {
	return New(testStartingMoney)
}

func TestJoin_CreatesPlayer(t *testing.T) {
	s := newTestStore()

	p, err := s.Join(100, 1, "alice", "russia")
	require.NoError(t, err)

	assert.Equal(t, int64(1), p.UserID)
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, "russia", p.Nation)
	assert.Equal(t, float64(testStartingMoney), p.Money)
	assert.Equal(t, 1, p.ArmyLevel)
	assert.Equal(t, 1, p.CityLevel)
	assert.True(t, p.IsOnline)
	assert.True(t, p.DMNotification)
	assert.Zero(t, p.Wins)
	assert.Zero(t, p.Losses)

	require.True(t, s.HasGame(100))
	view, err := s.GameView(100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), view.CreatorID)
	assert.Len(t, view.Players, 1)
}

func TestJoin_UnknownNation(t *testing.T) {
	s := newTestStore()

	_, err := s.Join(100, 1, "alice", "atlantis")
	assert.ErrorIs(t, err, ErrUnknownNation)
	assert.False(t, s.HasGame(100), "game must not be created for an invalid nation")
}

func TestJoin_NationExclusivePerChat(t *testing.T) {
	s := newTestStore()

	_, err := s.Join(100, 1, "alice", "russia")
	require.NoError(t, err)

	_, err = s.Join(100, 2, "bob", "russia")
	assert.ErrorIs(t, err, ErrNationTaken)

	// Same nation in a different chat is fine.
	_, err = s.Join(200, 2, "bob", "russia")
	assert.NoError(t, err)
}

func TestJoin_AlreadyJoined(t *testing.T) {
	s := newTestStore()

	_, err := s.Join(100, 1, "alice", "russia")
	require.NoError(t, err)

	_, err = s.Join(100, 1, "alice", "spain")
	assert.ErrorIs(t, err, ErrAlreadyJoined)
}

func TestJoin_BlockedDuringWar(t *testing.T) {
	s := newTestStore()
	_, err := s.Join(100, 1, "alice", "russia")
	require.NoError(t, err)

	require.NoError(t, s.WithGame(100, func(g *model.Game) error {
		g.WarPreparation = true
		return nil
	}))

	_, err = s.Join(100, 2, "bob", "spain")
	assert.ErrorIs(t, err, ErrWarInProgress)
}

func TestUpgradeArmy(t *testing.T) {
	s := newTestStore()
	_, err := s.Join(100, 1, "alice", "russia")
	require.NoError(t, err)

	// russia: army upgrade from level 1 costs exactly the starting money
	level, cost, err := s.UpgradeArmy(100, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, level)
	assert.Equal(t, float64(1000), cost)

	p, err := s.PlayerView(100, 1)
	require.NoError(t, err)
	assert.Equal(t, float64(0), p.Money)
	assert.Equal(t, 2, p.ArmyLevel)

	// Broke now, next level costs 2000.
	_, cost, err = s.UpgradeArmy(100, 1)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, float64(2000), cost)
}

func TestUpgradeArmy_PhaseRules(t *testing.T) {
	s := newTestStore()
	_, err := s.Join(100, 1, "alice", "russia")
	require.NoError(t, err)

	// Allowed during preparation.
	require.NoError(t, s.WithGame(100, func(g *model.Game) error {
		g.WarPreparation = true
		return nil
	}))
	level, _, err := s.UpgradeArmy(100, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, level)

	// Forbidden during active combat.
	require.NoError(t, s.WithGame(100, func(g *model.Game) error {
		g.WarPreparation = false
		g.WarActive = true
		return nil
	}))
	_, _, err = s.UpgradeArmy(100, 1)
	assert.ErrorIs(t, err, ErrWarInProgress)
}

func TestUpgradeCity_PhaseRules(t *testing.T) {
	s := newTestStore()
	_, err := s.Join(100, 1, "alice", "russia")
	require.NoError(t, err)
	require.NoError(t, s.CreditPlayer(100, 1, 10000))

	// Forbidden already during preparation.
	require.NoError(t, s.WithGame(100, func(g *model.Game) error {
		g.WarPreparation = true
		return nil
	}))
	_, _, err = s.UpgradeCity(100, 1)
	assert.ErrorIs(t, err, ErrWarInProgress)

	require.NoError(t, s.WithGame(100, func(g *model.Game) error {
		g.WarPreparation = false
		return nil
	}))
	level, cost, err := s.UpgradeCity(100, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, level)
	assert.Equal(t, float64(5000), cost)
}

func TestUpgradeArmy_NotInGame(t *testing.T) {
	s := newTestStore()
	_, err := s.Join(100, 1, "alice", "russia")
	require.NoError(t, err)

	_, _, err = s.UpgradeArmy(100, 99)
	assert.ErrorIs(t, err, ErrNotInGame)

	_, _, err = s.UpgradeArmy(999, 1)
	assert.ErrorIs(t, err, ErrGameNotFound)
}

// Only one upgrade may win when the player can afford exactly one.
func TestUpgradeArmy_ConcurrentSingleWinner(t *testing.T) {
	s := newTestStore()
	_, err := s.Join(100, 1, "alice", "russia")
	require.NoError(t, err)

	const workers = 16
	var successes int32
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if _, _, err := s.UpgradeArmy(100, 1); err == nil {
				atomic.AddInt32(&successes, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes)

	p, err := s.PlayerView(100, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, p.ArmyLevel)
	assert.Equal(t, float64(0), p.Money)
}

func TestToggleNotifications(t *testing.T) {
	s := newTestStore()
	_, err := s.Join(100, 1, "alice", "russia")
	require.NoError(t, err)

	enabled, err := s.ToggleNotifications(100, 1)
	require.NoError(t, err)
	assert.False(t, enabled)

	enabled, err = s.ToggleNotifications(100, 1)
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestGamesPlayedByAndCredit(t *testing.T) {
	s := newTestStore()
	_, err := s.Join(100, 1, "alice", "russia")
	require.NoError(t, err)
	_, err = s.Join(200, 1, "alice", "spain")
	require.NoError(t, err)
	_, err = s.Join(200, 2, "bob", "russia")
	require.NoError(t, err)

	assert.Equal(t, []int64{100, 200}, s.GamesPlayedBy(1))
	assert.Equal(t, []int64{200}, s.GamesPlayedBy(2))
	assert.Empty(t, s.GamesPlayedBy(99))

	require.NoError(t, s.CreditPlayer(100, 1, 250))
	p, err := s.PlayerView(100, 1)
	require.NoError(t, err)
	assert.Equal(t, float64(testStartingMoney+250), p.Money)
}

func TestGameView_IsDeepCopy(t *testing.T) {
	s := newTestStore()
	_, err := s.Join(100, 1, "alice", "russia")
	require.NoError(t, err)

	view, err := s.GameView(100)
	require.NoError(t, err)
	view.Players[1].Money = -1
	view.Treasury = 9999

	fresh, err := s.GameView(100)
	require.NoError(t, err)
	assert.Equal(t, float64(testStartingMoney), fresh.Players[1].Money)
	assert.Zero(t, fresh.Treasury)
}

func TestMarkDirtyOnMutations(t *testing.T) {
	s := newTestStore()
	var dirty int32
	s.OnChange(func() { atomic.AddInt32(&dirty, 1) })

	_, err := s.Join(100, 1, "alice", "russia")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&dirty))

	_, _, err = s.UpgradeArmy(100, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&dirty))

	// Failed mutations do not signal.
	_, _, err = s.UpgradeArmy(100, 1)
	require.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&dirty))
}

func TestReplaceAndSnapshot(t *testing.T) {
	s := newTestStore()

	now := time.Now()
	g := model.NewGame(300, 7, now)
	g.Players[7] = &model.Player{
		UserID: 7, Username: "carol", Nation: "finland",
		Money: 42, ArmyLevel: 3, CityLevel: 2,
		LastIncome: now, LastTax: now,
		IsOnline: true, DMNotification: true, UsedPromocodes: []string{},
	}
	s.Replace(map[int64]*model.Game{300: g}, nil)

	assert.Equal(t, []int64{300}, s.ChatIDs())

	snap := s.SnapshotGames()
	require.Contains(t, snap, int64(300))
	assert.Equal(t, float64(42), snap[300].Players[7].Money)

	// Snapshot is detached from live state.
	snap[300].Players[7].Money = 0
	p, err := s.PlayerView(300, 7)
	require.NoError(t, err)
	assert.Equal(t, float64(42), p.Money)
}
