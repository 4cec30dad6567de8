// Package handler provides Telegram command and callback handlers on
// top of the game core. This layer only parses, validates ownership
// and formats; all game rules live in the store and the war engine.
package handler

import (
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v3"

	"nation-game-bot/internal/catalog"
	"nation-game-bot/internal/model"
)

// Callback actions. Data layout is "<action>_<param..>_<ownerID>"; the
// trailing owner id lets the router reject other users' button presses.
const (
	cbStats       = "stats"
	cbUpgradeArmy = "upgrade_army"
	cbUpgradeCity = "upgrade_city"
	cbTop         = "top"
	cbStartWar    = "start_war"
	cbTaxes       = "taxes"
	cbTreasury    = "treasury"
	cbPromocode   = "promocode"
	cbRefresh     = "refresh"
	cbSettings    = "settings"
	cbToggleNotif = "toggle_notifications"
	cbCountry     = "country"
	cbWarTarget   = "wartarget"
)

// encodeCallback builds callback data from an action, optional params
// and the owning user id.
func encodeCallback(action string, ownerID int64, params ...string) string {
	parts := append([]string{action}, params...)
	parts = append(parts, strconv.FormatInt(ownerID, 10))
	return strings.Join(parts, "_")
}

// callbackOwner extracts the owner id from callback data; the owner is
// always the last underscore-separated token.
func callbackOwner(data string) (int64, bool) {
	idx := strings.LastIndex(data, "_")
	if idx < 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(data[idx+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// callbackParam extracts the single middle parameter from data shaped
// "<action>_<param>_<ownerID>".
func callbackParam(data, action string) (string, bool) {
	body, ok := strings.CutPrefix(data, action+"_")
	if !ok {
		return "", false
	}
	idx := strings.LastIndex(body, "_")
	if idx < 0 {
		return "", false
	}
	return body[:idx], true
}

// menuKeyboard is the player's main control panel.
func menuKeyboard(ownerID int64) *tele.ReplyMarkup {
	return &tele.ReplyMarkup{InlineKeyboard: [][]tele.InlineButton{
		{
			{Text: "💰 Статистика", Data: encodeCallback(cbStats, ownerID)},
			{Text: "⚔️ Улучшить армию", Data: encodeCallback(cbUpgradeArmy, ownerID)},
		},
		{
			{Text: "🏙️ Улучшить город", Data: encodeCallback(cbUpgradeCity, ownerID)},
			{Text: "🌍 Топ игроков", Data: encodeCallback(cbTop, ownerID)},
		},
		{
			{Text: "⚔️ Начать войну", Data: encodeCallback(cbStartWar, ownerID)},
			{Text: "💰 Налоги", Data: encodeCallback(cbTaxes, ownerID)},
		},
		{
			{Text: "🎁 Промокод", Data: encodeCallback(cbPromocode, ownerID)},
			{Text: "🏛️ Казна", Data: encodeCallback(cbTreasury, ownerID)},
		},
		{
			{Text: "🔄 Обновить", Data: encodeCallback(cbRefresh, ownerID)},
			{Text: "🔔 Настройки", Data: encodeCallback(cbSettings, ownerID)},
		},
	}}
}

// nationsKeyboard lists every catalog nation for the joining user.
func nationsKeyboard(ownerID int64) *tele.ReplyMarkup {
	var rows [][]tele.InlineButton
	for _, n := range catalog.All() {
		rows = append(rows, []tele.InlineButton{{
			Text: fmt.Sprintf("%s %s (%.1f/сек, налог: %.0f%%)", n.Emoji, n.Name, n.BaseIncome, n.TaxModifier*100),
			Data: encodeCallback(cbCountry, ownerID, n.ID),
		}})
	}
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}

// warTargetsKeyboard lists every other player of the game as a target.
func warTargetsKeyboard(g *model.Game, attackerID int64) *tele.ReplyMarkup {
	var rows [][]tele.InlineButton
	for id, p := range g.Players {
		if id == attackerID {
			continue
		}
		nation := catalog.MustGet(p.Nation)
		rows = append(rows, []tele.InlineButton{{
			Text: fmt.Sprintf("%s %s (⚔%d 💰%d)", p.Username, nation.Emoji, p.ArmyLevel, int(p.Money)),
			Data: encodeCallback(cbWarTarget, attackerID, strconv.FormatInt(id, 10)),
		}})
	}
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}

// settingsKeyboard shows the DM notification toggle.
func settingsKeyboard(ownerID int64, notifications bool) *tele.ReplyMarkup {
	status := "🔔 Вкл"
	if !notifications {
		status = "🔕 Выкл"
	}
	return &tele.ReplyMarkup{InlineKeyboard: [][]tele.InlineButton{
		{{Text: "Уведомления в ЛС: " + status, Data: encodeCallback(cbToggleNotif, ownerID)}},
		{{Text: "◀️ Назад", Data: encodeCallback(cbRefresh, ownerID)}},
	}}
}
