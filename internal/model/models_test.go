package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestPower(t *testing.T) {
	tests := []struct {
		name      string
		armyLevel int
		cityLevel int
		expected  float64
	}{
		{"fresh player", 1, 1, 1.1},
		{"army heavy", 10, 1, 11},
		{"city boost", 5, 10, 10},
		{"both developed", 4, 5, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Player{ArmyLevel: tt.armyLevel, CityLevel: tt.cityLevel}
			assert.InDelta(t, tt.expected, p.Power(), 1e-9)
		})
	}
}

// Power grows strictly with the army level for any fixed city level.
func TestPowerMonotonicInArmy(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		city := rapid.IntRange(1, 100).Draw(t, "city")
		army := rapid.IntRange(1, 100).Draw(t, "army")

		weaker := &Player{ArmyLevel: army, CityLevel: city}
		stronger := &Player{ArmyLevel: army + 1, CityLevel: city}
		if stronger.Power() <= weaker.Power() {
			t.Fatalf("power not monotonic: %f <= %f", stronger.Power(), weaker.Power())
		}
	})
}

func TestGamePhase(t *testing.T) {
	g := NewGame(100, 1, time.Now())
	assert.Equal(t, WarIdle, g.Phase())

	g.WarPreparation = true
	assert.Equal(t, WarPreparing, g.Phase())

	// Active wins over a stale preparation flag.
	g.WarActive = true
	assert.Equal(t, WarActive, g.Phase())

	g.ClearWar()
	assert.Equal(t, WarIdle, g.Phase())
	assert.NotNil(t, g.WarParticipants)
	assert.Empty(t, g.WarParticipants)
	assert.Nil(t, g.WarStartTime)
	assert.Nil(t, g.WarPreparationEnd)
}

func TestNationTaken(t *testing.T) {
	g := NewGame(100, 1, time.Now())
	g.Players[1] = &Player{UserID: 1, Nation: "russia"}

	assert.True(t, g.NationTaken("russia"))
	assert.False(t, g.NationTaken("spain"))
}

func TestGameClone_Independent(t *testing.T) {
	now := time.Now()
	prep := now.Add(time.Minute)
	g := NewGame(100, 1, now)
	g.Players[1] = &Player{UserID: 1, Username: "alice", Money: 1000, UsedPromocodes: []string{"A"}}
	g.WarParticipants = []int64{1, 2}
	g.WarPreparationEnd = &prep
	g.TaxHistory = []TaxEntry{{At: now, Amount: 50}}

	c := g.Clone()
	c.Players[1].Money = 0
	c.Players[1].UsedPromocodes[0] = "B"
	c.WarParticipants[0] = 99
	*c.WarPreparationEnd = now.Add(time.Hour)
	c.TaxHistory[0].Amount = 0

	assert.Equal(t, 1000.0, g.Players[1].Money)
	assert.Equal(t, "A", g.Players[1].UsedPromocodes[0])
	assert.Equal(t, int64(1), g.WarParticipants[0])
	assert.True(t, g.WarPreparationEnd.Equal(prep))
	assert.Equal(t, 50.0, g.TaxHistory[0].Amount)
}

func TestGameApplyDefaults(t *testing.T) {
	g := &Game{
		Players: map[int64]*Player{
			1: {UserID: 1},
		},
	}
	g.ApplyDefaults()

	assert.NotNil(t, g.WarParticipants)
	assert.NotNil(t, g.TaxHistory)
	assert.Equal(t, 1, g.Players[1].ArmyLevel)
	assert.Equal(t, 1, g.Players[1].CityLevel)
	assert.NotNil(t, g.Players[1].UsedPromocodes)
}

func TestPromocode(t *testing.T) {
	p := &Promocode{Code: "X", MaxUses: 2, UsersUsed: []int64{1}}

	assert.True(t, p.UsedBy(1))
	assert.False(t, p.UsedBy(2))
	assert.False(t, p.Exhausted())

	p.UsedCount = 2
	assert.True(t, p.Exhausted())

	c := p.Clone()
	c.UsersUsed[0] = 99
	assert.Equal(t, int64(1), p.UsersUsed[0])

	empty := &Promocode{}
	empty.ApplyDefaults()
	require.NotNil(t, empty.UsersUsed)
	assert.Equal(t, 1, empty.MaxUses)
}
