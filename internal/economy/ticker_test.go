package economy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"nation-game-bot/internal/model"
)

var testParams = Params{
	TaxInterval: time.Hour,
	TaxRate:     0.05,
	MinTax:      50,
}

func newTestGame(now time.Time) *model.Game {
	g := model.NewGame(100, 1, now)
	g.Players[1] = &model.Player{
		UserID: 1, Username: "alice", Nation: "russia",
		Money: 1000, ArmyLevel: 1, CityLevel: 1,
		LastIncome: now, LastTax: now,
		IsOnline: true, DMNotification: true, UsedPromocodes: []string{},
	}
	return g
}

func TestNextTax(t *testing.T) {
	tests := []struct {
		name      string
		nation    string
		cityLevel int
		expected  float64
	}{
		// russia: 10.0/sec × 3600 × 0.05 × 1.1
		{"russia level 1", "russia", 1, 1980},
		{"russia level 3", "russia", 3, 5940},
		// finland: 5.0/sec × 3600 × 0.05 × 0.7
		{"finland level 1", "finland", 1, 630},
		// sweden: 6.0/sec × 3600 × 0.05 × 0.8
		{"sweden level 2", "sweden", 2, 1728},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &model.Player{Nation: tt.nation, CityLevel: tt.cityLevel}
			assert.InDelta(t, tt.expected, NextTax(p, testParams), 1e-9)
		})
	}
}

func TestNextTax_MinimumFloor(t *testing.T) {
	params := Params{TaxInterval: time.Hour, TaxRate: 0.0001, MinTax: 50}
	p := &model.Player{Nation: "finland", CityLevel: 1}
	assert.Equal(t, float64(50), NextTax(p, params))
}

func TestApplyTick_Income(t *testing.T) {
	now := time.Now()
	g := newTestGame(now)

	changed := ApplyTick(g, now.Add(10*time.Second), testParams)
	require.True(t, changed)

	// russia at city level 1 earns 10.0/sec
	p := g.Players[1]
	assert.InDelta(t, 1000+100, p.Money, 1e-9)
	assert.Equal(t, now.Add(10*time.Second), p.LastIncome)
}

// Total income over a period must not depend on how the period is cut
// into ticks.
func TestApplyTick_IncomeGranularityInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		start := time.Unix(1_700_000_000, 0)
		total := rapid.IntRange(1, 3600).Draw(t, "totalSeconds")
		cuts := rapid.IntRange(1, 10).Draw(t, "cuts")

		// One big tick.
		coarse := newTestGame(start)
		ApplyTick(coarse, start.Add(time.Duration(total)*time.Second), testParams)

		// The same period in several passes.
		fine := newTestGame(start)
		elapsed := 0
		for i := 0; i < cuts; i++ {
			step := rapid.IntRange(0, total-elapsed).Draw(t, "step")
			elapsed += step
			ApplyTick(fine, start.Add(time.Duration(elapsed)*time.Second), testParams)
		}
		ApplyTick(fine, start.Add(time.Duration(total)*time.Second), testParams)

		if coarse.Players[1].Money != fine.Players[1].Money {
			t.Fatalf("income depends on tick granularity: %.6f vs %.6f",
				coarse.Players[1].Money, fine.Players[1].Money)
		}
	})
}

func TestApplyTick_OfflinePlayersSkipped(t *testing.T) {
	now := time.Now()
	g := newTestGame(now)
	g.Players[1].IsOnline = false

	changed := ApplyTick(g, now.Add(time.Minute), testParams)
	assert.False(t, changed)
	assert.Equal(t, float64(1000), g.Players[1].Money)
}

func TestApplyTick_ActiveCombatFreezesEconomy(t *testing.T) {
	now := time.Now()
	g := newTestGame(now)
	g.WarActive = true

	changed := ApplyTick(g, now.Add(time.Minute), testParams)
	assert.False(t, changed)
	assert.Equal(t, float64(1000), g.Players[1].Money)
}

func TestApplyTick_PreparationStillTicks(t *testing.T) {
	now := time.Now()
	g := newTestGame(now)
	g.WarPreparation = true

	changed := ApplyTick(g, now.Add(10*time.Second), testParams)
	assert.True(t, changed)
	assert.InDelta(t, 1100, g.Players[1].Money, 1e-9)
}

func TestApplyTick_TaxCollection(t *testing.T) {
	now := time.Now()
	g := newTestGame(now)
	p := g.Players[1]
	p.Money = 5000

	due := now.Add(testParams.TaxInterval)
	require.True(t, ApplyTick(g, due, testParams))

	// One hour of income arrived with the same tick, then the tax of
	// 1980 (russia, level 1) was collected.
	income := 10.0 * testParams.TaxInterval.Seconds()
	assert.InDelta(t, 5000+income-1980, p.Money, 1e-6)
	assert.InDelta(t, 1980, p.TaxPaid, 1e-9)
	assert.InDelta(t, 1980, g.Treasury, 1e-9)
	require.Len(t, g.TaxHistory, 1)
	assert.InDelta(t, 1980, g.TaxHistory[0].Amount, 1e-9)
	assert.Equal(t, due, p.LastTax)
}

// An unaffordable tax is retried, not forgiven: last_tax only advances
// when the payment actually happens.
func TestApplyTick_TaxGateRetriesUntilAffordable(t *testing.T) {
	now := time.Now()
	g := newTestGame(now)
	p := g.Players[1]
	p.Nation = "spain" // 9.0/sec, modifier 1.2 -> tax 1944
	p.Money = 0

	due := now.Add(testParams.TaxInterval)
	p.LastIncome = due // no income pending, the tax alone decides
	firstTax := p.LastTax

	changed := ApplyTick(g, due, testParams)
	assert.False(t, changed)
	assert.Equal(t, firstTax, p.LastTax, "unaffordable tax must not advance last_tax")
	assert.Zero(t, g.Treasury)

	// Enough money arrives later; the next tick collects.
	p.Money = 10000
	require.True(t, ApplyTick(g, due.Add(time.Second), testParams))
	assert.Equal(t, due.Add(time.Second), p.LastTax)
	assert.InDelta(t, 1944, g.Treasury, 1e-6)
}

func TestApplyTick_NoTaxBeforeInterval(t *testing.T) {
	now := time.Now()
	g := newTestGame(now)

	ApplyTick(g, now.Add(testParams.TaxInterval-time.Second), testParams)
	assert.Zero(t, g.Treasury)
	assert.Empty(t, g.TaxHistory)
}
