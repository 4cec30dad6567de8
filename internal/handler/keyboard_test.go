package handler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nation-game-bot/internal/catalog"
	"nation-game-bot/internal/model"
)

func TestCallbackEncoding(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		owner  int64
		action string
		param  string
	}{
		{"no params", encodeCallback(cbStats, 42), 42, cbStats, ""},
		{"nation param", encodeCallback(cbCountry, 42, "russia"), 42, cbCountry, "russia"},
		{"action with underscores", encodeCallback(cbUpgradeArmy, 7), 7, cbUpgradeArmy, ""},
		{"negative owner (group ids)", encodeCallback(cbWarTarget, -100123, "5"), -100123, cbWarTarget, "5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, ok := callbackOwner(tt.data)
			require.True(t, ok)
			assert.Equal(t, tt.owner, owner)

			if tt.param != "" {
				param, ok := callbackParam(tt.data, tt.action)
				require.True(t, ok)
				assert.Equal(t, tt.param, param)
			}
		})
	}
}

func TestCallbackOwner_Malformed(t *testing.T) {
	_, ok := callbackOwner("noid")
	assert.False(t, ok)

	_, ok = callbackOwner("stats_notanumber")
	assert.False(t, ok)
}

func TestCallbackParam_WrongAction(t *testing.T) {
	_, ok := callbackParam("country_russia_5", cbStats)
	assert.False(t, ok)
}

func TestNationsKeyboard_CoversCatalog(t *testing.T) {
	kb := nationsKeyboard(42)
	require.Len(t, kb.InlineKeyboard, len(catalog.All()))

	// Every row decodes back to the pressing user and a known nation.
	for _, row := range kb.InlineKeyboard {
		require.Len(t, row, 1)
		owner, ok := callbackOwner(row[0].Data)
		require.True(t, ok)
		assert.Equal(t, int64(42), owner)

		nation, ok := callbackParam(row[0].Data, cbCountry)
		require.True(t, ok)
		assert.True(t, catalog.Exists(nation))
	}
}

func TestWarTargetsKeyboard_ExcludesAttacker(t *testing.T) {
	now := time.Now()
	g := model.NewGame(100, 1, now)
	g.Players[1] = &model.Player{UserID: 1, Username: "alice", Nation: "russia", ArmyLevel: 1, CityLevel: 1}
	g.Players[2] = &model.Player{UserID: 2, Username: "bob", Nation: "spain", ArmyLevel: 1, CityLevel: 1}
	g.Players[3] = &model.Player{UserID: 3, Username: "carol", Nation: "finland", ArmyLevel: 1, CityLevel: 1}

	kb := warTargetsKeyboard(g, 1)
	require.Len(t, kb.InlineKeyboard, 2)

	targets := map[string]bool{}
	for _, row := range kb.InlineKeyboard {
		id, ok := callbackParam(row[0].Data, cbWarTarget)
		require.True(t, ok)
		targets[id] = true
	}
	assert.Equal(t, map[string]bool{"2": true, "3": true}, targets)
}

func TestMenuKeyboard_AllButtonsOwned(t *testing.T) {
	kb := menuKeyboard(7)
	for _, row := range kb.InlineKeyboard {
		for _, btn := range row {
			owner, ok := callbackOwner(btn.Data)
			require.True(t, ok, "button %q has no owner", btn.Text)
			assert.Equal(t, int64(7), owner)
		}
	}
}
