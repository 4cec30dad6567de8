package handler

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"nation-game-bot/internal/catalog"
	"nation-game-bot/internal/config"
	"nation-game-bot/internal/economy"
	"nation-game-bot/internal/model"
	"nation-game-bot/internal/notify"
	"nation-game-bot/internal/store"
	"nation-game-bot/internal/war"
)

// GameHandler handles the nation game commands and menu callbacks.
type GameHandler struct {
	cfg      *config.Config
	store    *store.Store
	engine   *war.Engine
	notifier notify.Notifier
	econ     economy.Params
}

// NewGameHandler creates a new GameHandler.
func NewGameHandler(cfg *config.Config, st *store.Store, engine *war.Engine, notifier notify.Notifier) *GameHandler {
	return &GameHandler{
		cfg:      cfg,
		store:    st,
		engine:   engine,
		notifier: notifier,
		econ: economy.Params{
			TaxInterval: cfg.Game.TaxInterval,
			TaxRate:     cfg.Game.TaxRate,
			MinTax:      cfg.Game.MinTax,
		},
	}
}

// HandleStart handles the /start command.
func (h *GameHandler) HandleStart(c tele.Context) error {
	if c.Chat() != nil && c.Chat().Type == tele.ChatPrivate {
		return c.Send(
			"🎮 *Добро пожаловать в Control Europe!*\n\n" +
				"⚠️ Игра доступна только в групповых чатах!\n\n" +
				"Добавьте меня в группу и используйте команду /join чтобы присоединиться к игре.")
	}
	return c.Send(
		"🎮 *Control Europe - стратегическая игра*\n\n" +
			"*Доступные команды:*\n" +
			"/join - Присоединиться к игре\n" +
			"/players - Список игроков\n" +
			"/help - Помощь по игре\n" +
			"/taxinfo - Информация о налогах")
}

// HandleHelp handles the /help command.
func (h *GameHandler) HandleHelp(c tele.Context) error {
	return c.Send(
		"🎮 *Помощь по Control Europe*\n\n" +
			"*Основные принципы:*\n" +
			"• Вы управляете страной и развиваете ее экономику\n" +
			"• Пассивный доход зависит от страны и уровня города\n" +
			"• Улучшайте армию для победы в войнах\n" +
			"• Улучшайте город для увеличения дохода\n\n" +
			"*Войны:*\n" +
			"• Можно объявить войну другому игроку\n" +
			"• Перед войной есть 5 минут на подготовку\n" +
			"• Во время подготовки можно улучшать армию\n" +
			"• Победитель получает 15% казны проигравшего\n\n" +
			"*Налоги:*\n" +
			"• Налоги собираются автоматически каждый час\n" +
			"• Ставка налога зависит от страны\n" +
			"• Налоги идут в государственную казну\n\n" +
			"*Промокоды:*\n" +
			"• Активируются в личных сообщениях с ботом\n" +
			"• Дают награду в монетах во всех ваших играх\n\n" +
			"*Команды:*\n" +
			"/join - Присоединиться к игре\n" +
			"/players - Список игроков\n" +
			"/help - Эта справка\n" +
			"/taxinfo - Информация о налогах")
}

// HandleJoin handles the /join command: lazily creates the game and
// shows the nation picker. The player itself is created by the nation
// selection callback.
func (h *GameHandler) HandleJoin(c tele.Context) error {
	chat, sender := c.Chat(), c.Sender()
	if chat == nil || sender == nil {
		return nil
	}
	if chat.Type == tele.ChatPrivate {
		return c.Send("❌ Игра доступна только в групповых чатах!")
	}

	if h.store.HasGame(chat.ID) {
		view, err := h.store.GameView(chat.ID)
		if err == nil {
			if view.Phase() != model.WarIdle {
				return c.Send("⚔️ Сейчас идет война или подготовка к ней! Подождите окончания.")
			}
			if _, ok := view.Players[sender.ID]; ok {
				if err := c.Send("✅ Вы уже в игре!"); err != nil {
					return err
				}
				return h.sendMenu(c, chat.ID, sender.ID)
			}
		}
	}

	return c.Send(
		"🌍 *Выберите страну:*\n\n"+
			"Каждая страна имеет свой базовый доход в секунду.\n"+
			"Страну нельзя будет изменить позже!\n\n"+
			"🔔 *Уведомления:*\n"+
			"По умолчанию включены уведомления в ЛС о войнах.",
		nationsKeyboard(sender.ID))
}

// HandlePlayers handles the /players command.
func (h *GameHandler) HandlePlayers(c tele.Context) error {
	chat := c.Chat()
	if chat == nil {
		return nil
	}
	if chat.Type == tele.ChatPrivate {
		return c.Send("❌ Игра доступна только в групповых чатах!")
	}

	view, err := h.store.GameView(chat.ID)
	if err != nil {
		return c.Send("❌ Игра еще не создана в этом чате!")
	}
	if len(view.Players) == 0 {
		return c.Send("👥 В игре пока нет игроков. Используйте /join чтобы присоединиться!")
	}

	var b strings.Builder
	b.WriteString("👥 *Список игроков:*\n\n")
	for i, p := range sortedByMoney(view) {
		nation := catalog.MustGet(p.Nation)
		fmt.Fprintf(&b, "%d. %s *%s* - 💰%d (⚔%d 🏙%d)\n",
			i+1, nation.Emoji, p.Username, int(p.Money), p.ArmyLevel, p.CityLevel)
	}
	fmt.Fprintf(&b, "\nВсего игроков: %d", len(view.Players))
	return c.Send(b.String())
}

// HandleTaxInfo handles the /taxinfo command.
func (h *GameHandler) HandleTaxInfo(c tele.Context) error {
	chat := c.Chat()
	if chat == nil {
		return nil
	}
	if chat.Type == tele.ChatPrivate {
		return c.Send("❌ Эта команда доступна только в групповых чатах!")
	}

	view, err := h.store.GameView(chat.ID)
	if err != nil {
		return c.Send("❌ Игра еще не создана в этом чате!")
	}

	var b strings.Builder
	b.WriteString("💰 *Система налогов*\n\n")
	fmt.Fprintf(&b, "📊 *Основные правила:*\n")
	fmt.Fprintf(&b, "• Налог собирается каждые %d час(а)\n", int(h.econ.TaxInterval.Hours()))
	fmt.Fprintf(&b, "• Ставка налога: %.1f%% от часового дохода\n", h.econ.TaxRate*100)
	fmt.Fprintf(&b, "• Минимальный налог: %d монет\n", int(h.econ.MinTax))
	b.WriteString("• Налоги идут в государственную казну\n\n")
	b.WriteString("🌍 *Модификаторы по странам:*\n")
	for _, n := range catalog.All() {
		fmt.Fprintf(&b, "• %s %s: %.0f%%\n", n.Emoji, n.Name, n.TaxModifier*100)
	}
	fmt.Fprintf(&b, "\n🏛️ *Текущая казна:* %d монет", int(view.Treasury))
	return c.Send(b.String())
}

// HandleCallback routes the game menu callbacks. The owner id encoded
// in the data must match the pressing user.
func (h *GameHandler) HandleCallback(c tele.Context) error {
	callback := c.Callback()
	sender := c.Sender()
	if callback == nil || sender == nil {
		return nil
	}

	// Telebot may add a \f prefix to callback data.
	data := strings.TrimPrefix(callback.Data, "\f")

	owner, ok := callbackOwner(data)
	if !ok {
		return nil
	}
	if owner != sender.ID {
		return c.Respond(&tele.CallbackResponse{Text: "❌ Это не ваша кнопка!"})
	}

	chat := c.Chat()
	if chat == nil {
		return nil
	}
	chatID := chat.ID

	switch {
	case strings.HasPrefix(data, cbCountry+"_"):
		nation, _ := callbackParam(data, cbCountry)
		return h.callbackCountry(c, chatID, sender, nation)
	case strings.HasPrefix(data, cbWarTarget+"_"):
		param, _ := callbackParam(data, cbWarTarget)
		targetID, err := strconv.ParseInt(param, 10, 64)
		if err != nil {
			return nil
		}
		return h.callbackWarTarget(c, chatID, sender.ID, targetID)
	case strings.HasPrefix(data, cbUpgradeArmy+"_"):
		return h.callbackUpgradeArmy(c, chatID, sender.ID)
	case strings.HasPrefix(data, cbUpgradeCity+"_"):
		return h.callbackUpgradeCity(c, chatID, sender.ID)
	case strings.HasPrefix(data, cbStats+"_"):
		return h.callbackStats(c, chatID, sender.ID)
	case strings.HasPrefix(data, cbTop+"_"):
		return h.callbackTop(c, chatID)
	case strings.HasPrefix(data, cbStartWar+"_"):
		return h.callbackStartWar(c, chatID, sender.ID)
	case strings.HasPrefix(data, cbTaxes+"_"):
		return h.callbackTaxes(c, chatID, sender.ID)
	case strings.HasPrefix(data, cbTreasury+"_"):
		return h.callbackTreasury(c, chatID)
	case strings.HasPrefix(data, cbPromocode+"_"):
		return h.callbackPromocodeHint(c, sender.ID)
	case strings.HasPrefix(data, cbSettings+"_"):
		return h.callbackSettings(c, chatID, sender.ID)
	case strings.HasPrefix(data, cbToggleNotif+"_"):
		return h.callbackToggleNotifications(c, chatID, sender.ID)
	case strings.HasPrefix(data, cbRefresh+"_"):
		return h.refreshMenu(c, chatID, sender.ID)
	default:
		return nil
	}
}

func (h *GameHandler) callbackCountry(c tele.Context, chatID int64, sender *tele.User, nation string) error {
	username := sender.Username
	if username == "" {
		username = sender.FirstName
	}

	player, err := h.store.Join(chatID, sender.ID, username, nation)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNationTaken):
			return c.Edit("❌ Эта страна уже занята другим игроком!")
		case errors.Is(err, store.ErrAlreadyJoined):
			return c.Respond(&tele.CallbackResponse{Text: "✅ Вы уже в игре!"})
		case errors.Is(err, store.ErrWarInProgress):
			return c.Edit("⚔️ Сейчас идет война или подготовка к ней!")
		default:
			return c.Edit("❌ Неверная страна!")
		}
	}

	n := catalog.MustGet(player.Nation)
	log.Info().Int64("chat_id", chatID).Int64("user_id", sender.ID).Str("nation", nation).Msg("Player joined")

	if err := c.Edit(fmt.Sprintf(
		"✅ *Вы успешно присоединились к игре!*\n\n"+
			"🌍 *Страна:* %s %s\n"+
			"💰 *Стартовый капитал:* %d монет\n"+
			"⚔️ *Уровень армии:* 1\n"+
			"🏙️ *Уровень города:* 1\n"+
			"📈 *Пассивный доход:* %.1f монет/сек\n"+
			"💸 *Модификатор налога:* %.0f%%\n\n"+
			"Используйте кнопки ниже для управления своей страной.",
		n.Emoji, n.Name, int(player.Money), n.BaseIncome, n.TaxModifier*100)); err != nil {
		return err
	}
	return h.sendMenu(c, chatID, sender.ID)
}

func (h *GameHandler) callbackUpgradeArmy(c tele.Context, chatID, userID int64) error {
	level, cost, err := h.store.UpgradeArmy(chatID, userID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrWarInProgress):
			return c.Respond(&tele.CallbackResponse{Text: "⚔️ Во время войны нельзя улучшать армию!"})
		case errors.Is(err, store.ErrInsufficientFunds):
			return c.Respond(&tele.CallbackResponse{Text: fmt.Sprintf("❌ Недостаточно средств! Нужно %d монет.", int(cost))})
		default:
			return c.Respond(&tele.CallbackResponse{Text: "❌ Вы не в игре!"})
		}
	}

	if err := c.Respond(&tele.CallbackResponse{Text: fmt.Sprintf("✅ Армия улучшена до уровня %d!", level)}); err != nil {
		return err
	}
	return h.refreshMenu(c, chatID, userID)
}

func (h *GameHandler) callbackUpgradeCity(c tele.Context, chatID, userID int64) error {
	level, cost, err := h.store.UpgradeCity(chatID, userID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrWarInProgress):
			return c.Respond(&tele.CallbackResponse{Text: "⚔️ Во время войны или подготовки нельзя улучшать город!"})
		case errors.Is(err, store.ErrInsufficientFunds):
			return c.Respond(&tele.CallbackResponse{Text: fmt.Sprintf("❌ Недостаточно средств! Нужно %d монет.", int(cost))})
		default:
			return c.Respond(&tele.CallbackResponse{Text: "❌ Вы не в игре!"})
		}
	}

	if err := c.Respond(&tele.CallbackResponse{Text: fmt.Sprintf("✅ Город улучшен до уровня %d!", level)}); err != nil {
		return err
	}
	return h.refreshMenu(c, chatID, userID)
}

func (h *GameHandler) callbackStartWar(c tele.Context, chatID, userID int64) error {
	view, err := h.store.GameView(chatID)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "❌ Игра не найдена!"})
	}
	if _, ok := view.Players[userID]; !ok {
		return c.Respond(&tele.CallbackResponse{Text: "❌ Вы не в игре!"})
	}
	if view.Phase() != model.WarIdle {
		return c.Respond(&tele.CallbackResponse{Text: "⚔️ Война уже идет или готовится!"})
	}
	if view.LastWar != nil {
		if remaining := h.cfg.Game.WarCooldown - time.Since(*view.LastWar); remaining > 0 {
			return c.Respond(&tele.CallbackResponse{Text: fmt.Sprintf("⏳ До следующей войны: %d сек", int(remaining.Seconds()))})
		}
	}
	if len(view.Players) < 2 {
		return c.Respond(&tele.CallbackResponse{Text: "❌ Недостаточно игроков для войны!"})
	}

	return c.Edit(fmt.Sprintf(
		"🎯 *Выберите противника для войны:*\n\n"+
			"Война начнется через %d минут (время на подготовку).\n"+
			"Во время подготовки можно улучшать армию!\n"+
			"Победитель получает %.0f%% казны проигравшего!\n\n"+
			"🔔 *Уведомления:*\n"+
			"Участники получат сообщение в ЛС.",
		int(h.cfg.Game.WarPreparation.Minutes()), h.cfg.Game.LootRate*100),
		warTargetsKeyboard(view, userID))
}

func (h *GameHandler) callbackWarTarget(c tele.Context, chatID, attackerID, targetID int64) error {
	decl, err := h.engine.Declare(chatID, attackerID, targetID)
	if err != nil {
		var cooldown *war.CooldownError
		switch {
		case errors.As(err, &cooldown):
			return c.Respond(&tele.CallbackResponse{Text: "⏳ " + cooldown.Error()})
		case errors.Is(err, war.ErrSelfTarget):
			return c.Respond(&tele.CallbackResponse{Text: "❌ Нельзя воевать с самим собой!"})
		case errors.Is(err, war.ErrWarInProgress):
			return c.Edit("⚔️ Война уже идет или готовится!")
		case errors.Is(err, war.ErrParticipantMissing):
			return c.Edit("❌ Игрок не найден!")
		default:
			return c.Edit("❌ Ошибка!")
		}
	}

	prepSeconds := int(h.cfg.Game.WarPreparation.Seconds())
	attackerNation := catalog.MustGet(decl.Attacker.Nation)
	targetNation := catalog.MustGet(decl.Target.Nation)

	announcement := fmt.Sprintf(
		"⚔️ *ОБЪЯВЛЕНА ВОЙНА!* ⚔️\n\n"+
			"*Атакующий:* %s %s\n"+
			"*Защитник:* %s %s\n\n"+
			"⚔️ *Силы сторон:*\n"+
			"• %s: армия %d, город %d\n"+
			"• %s: армия %d, город %d\n\n"+
			"🛡️ *Время на подготовку:* %d минут\n"+
			"⏳ *Война начнется:* через %d секунд\n\n"+
			"Участники могут улучшать армию во время подготовки!",
		attackerNation.Emoji, decl.Attacker.Username,
		targetNation.Emoji, decl.Target.Username,
		decl.Attacker.Username, decl.Attacker.ArmyLevel, decl.Attacker.CityLevel,
		decl.Target.Username, decl.Target.ArmyLevel, decl.Target.CityLevel,
		prepSeconds/60, prepSeconds)

	if err := c.Edit(announcement); err != nil {
		return err
	}

	if decl.Attacker.DMNotification {
		text := fmt.Sprintf(
			"🎯 *Вы объявили войну!*\n\n"+
				"Вы атакуете %s %s\n"+
				"🛡️ *Время на подготовку:* %d минут\n"+
				"⚔️ *Сила противника:* армия %d, город %d\n\n"+
				"Улучшайте армию во время подготовки!\n"+
				"Война начнется автоматически через %d секунд.",
			targetNation.Emoji, decl.Target.Username, prepSeconds/60,
			decl.Target.ArmyLevel, decl.Target.CityLevel, prepSeconds)
		if err := h.notifier.NotifyDirect(decl.Attacker.UserID, text); err != nil {
			log.Error().Err(err).Int64("user_id", decl.Attacker.UserID).Msg("Failed to notify attacker")
		}
	}
	if decl.Target.DMNotification {
		text := fmt.Sprintf(
			"⚠️ *Вам объявили войну!*\n\n"+
				"%s %s атакует вашу страну!\n"+
				"🛡️ *Время на подготовку:* %d минут\n"+
				"⚔️ *Сила противника:* армия %d, город %d\n\n"+
				"Срочно улучшайте армию для защиты!\n"+
				"Война начнется автоматически через %d секунд.",
			attackerNation.Emoji, decl.Attacker.Username, prepSeconds/60,
			decl.Attacker.ArmyLevel, decl.Attacker.CityLevel, prepSeconds)
		if err := h.notifier.NotifyDirect(decl.Target.UserID, text); err != nil {
			log.Error().Err(err).Int64("user_id", decl.Target.UserID).Msg("Failed to notify target")
		}
	}
	return nil
}

func (h *GameHandler) callbackStats(c tele.Context, chatID, userID int64) error {
	view, err := h.store.GameView(chatID)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "❌ Игра не найдена!"})
	}
	p, ok := view.Players[userID]
	if !ok {
		return c.Respond(&tele.CallbackResponse{Text: "❌ Вы не в игре!"})
	}
	n := catalog.MustGet(p.Nation)

	notifStatus := "✅ Включены"
	if !p.DMNotification {
		notifStatus = "❌ Выключены"
	}

	var b strings.Builder
	b.WriteString("📊 *Детальная статистика*\n\n")
	fmt.Fprintf(&b, "👤 *Игрок:* %s\n", p.Username)
	fmt.Fprintf(&b, "🌍 *Страна:* %s %s\n", n.Emoji, n.Name)
	fmt.Fprintf(&b, "🔔 *Уведомления в ЛС:* %s\n", notifStatus)
	fmt.Fprintf(&b, "💸 *Модификатор налога:* %.0f%%\n\n", n.TaxModifier*100)
	b.WriteString("💰 *Финансы:*\n")
	fmt.Fprintf(&b, "• Текущий баланс: %d монет\n", int(p.Money))
	fmt.Fprintf(&b, "• Пассивный доход: %.1f монет/сек\n", n.BaseIncome*float64(p.CityLevel))
	fmt.Fprintf(&b, "• Доход в час: %d монет\n", int(n.BaseIncome*float64(p.CityLevel)*3600))
	fmt.Fprintf(&b, "• Всего налогов уплачено: %d монет\n\n", int(p.TaxPaid))
	b.WriteString("⚔️ *Военная мощь:*\n")
	fmt.Fprintf(&b, "• Уровень армии: %d\n", p.ArmyLevel)
	fmt.Fprintf(&b, "• След. улучшение: %d монет\n", int(catalog.ArmyUpgradeCost(n, p.ArmyLevel)))
	fmt.Fprintf(&b, "• Сила атаки: %.1f\n\n", p.Power())
	b.WriteString("🏙️ *Экономика:*\n")
	fmt.Fprintf(&b, "• Уровень города: %d\n", p.CityLevel)
	fmt.Fprintf(&b, "• След. улучшение: %d монет\n", int(catalog.CityUpgradeCost(n, p.CityLevel)))
	fmt.Fprintf(&b, "• Множитель дохода: %dx\n\n", p.CityLevel)
	b.WriteString("🏆 *Боевая статистика:*\n")
	fmt.Fprintf(&b, "• Побед: %d\n", p.Wins)
	fmt.Fprintf(&b, "• Поражений: %d\n", p.Losses)
	if total := p.Wins + p.Losses; total > 0 {
		fmt.Fprintf(&b, "• Соотношение: %.1f%%\n", float64(p.Wins)/float64(total)*100)
	} else {
		b.WriteString("• Соотношение: 0%\n")
	}
	fmt.Fprintf(&b, "\n💰 *Следующий налог:* %d монет\n", int(economy.NextTax(p, h.econ)))
	fmt.Fprintf(&b, "⏳ *До налога:* %d сек", timeToTax(p, h.econ))

	if err := c.Edit(b.String()); err != nil {
		return err
	}
	return c.Respond()
}

func (h *GameHandler) callbackTaxes(c tele.Context, chatID, userID int64) error {
	view, err := h.store.GameView(chatID)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "❌ Игра не найдена!"})
	}
	p, ok := view.Players[userID]
	if !ok {
		return c.Respond(&tele.CallbackResponse{Text: "❌ Вы не в игре!"})
	}
	n := catalog.MustGet(p.Nation)

	recent := sumTaxesSince(view, time.Now().Add(-24*time.Hour))

	var b strings.Builder
	b.WriteString("💰 *Налоговая информация*\n\n")
	fmt.Fprintf(&b, "👤 *Игрок:* %s\n", p.Username)
	fmt.Fprintf(&b, "🌍 *Страна:* %s %s\n", n.Emoji, n.Name)
	fmt.Fprintf(&b, "📊 *Модификатор налога:* %.0f%%\n\n", n.TaxModifier*100)
	fmt.Fprintf(&b, "📈 *Ваш доход в час:* %d монет\n", int(n.BaseIncome*float64(p.CityLevel)*3600))
	fmt.Fprintf(&b, "💸 *Следующий налог:* %d монет\n", int(economy.NextTax(p, h.econ)))
	fmt.Fprintf(&b, "⏳ *До налога:* %d сек\n\n", timeToTax(p, h.econ))
	b.WriteString("📊 *Статистика:*\n")
	fmt.Fprintf(&b, "• Всего уплачено налогов: %d монет\n", int(p.TaxPaid))
	fmt.Fprintf(&b, "• Налоги за 24 часа в казне: %d монет\n", int(recent))
	fmt.Fprintf(&b, "• Общая казна: %d монет", int(view.Treasury))

	if err := c.Edit(b.String()); err != nil {
		return err
	}
	return c.Respond()
}

func (h *GameHandler) callbackTreasury(c tele.Context, chatID int64) error {
	view, err := h.store.GameView(chatID)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "❌ Игра не найдена!"})
	}

	now := time.Now()
	taxes24h := sumTaxesSince(view, now.Add(-24*time.Hour))
	taxes7d := sumTaxesSince(view, now.Add(-7*24*time.Hour))
	taxes30d := sumTaxesSince(view, now.Add(-30*24*time.Hour))

	taxpayers := sortedByTaxPaid(view)
	if len(taxpayers) > 5 {
		taxpayers = taxpayers[:5]
	}

	var b strings.Builder
	b.WriteString("🏛️ *Государственная казна*\n\n")
	fmt.Fprintf(&b, "💰 *Текущий баланс:* %d монет\n\n", int(view.Treasury))
	b.WriteString("📊 *Поступления налогов:*\n")
	fmt.Fprintf(&b, "• За 24 часа: %d монет\n", int(taxes24h))
	fmt.Fprintf(&b, "• За 7 дней: %d монет\n", int(taxes7d))
	fmt.Fprintf(&b, "• За 30 дней: %d монет\n\n", int(taxes30d))
	b.WriteString("👑 *Топ налогоплательщиков:*\n")
	for i, p := range taxpayers {
		nation := catalog.MustGet(p.Nation)
		fmt.Fprintf(&b, "%d. %s %s - %d монет\n", i+1, nation.Emoji, p.Username, int(p.TaxPaid))
	}
	fmt.Fprintf(&b, "\n👥 *Всего игроков:* %d", len(view.Players))

	if err := c.Edit(b.String()); err != nil {
		return err
	}
	return c.Respond()
}

func (h *GameHandler) callbackTop(c tele.Context, chatID int64) error {
	view, err := h.store.GameView(chatID)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "❌ Игра не найдена!"})
	}
	if len(view.Players) == 0 {
		if err := c.Edit("📊 В игре пока нет игроков!"); err != nil {
			return err
		}
		return c.Respond()
	}

	medals := []string{"🥇", "🥈", "🥉", "4.", "5.", "6.", "7.", "8.", "9.", "10."}

	var b strings.Builder
	b.WriteString("🏆 *Топ игроков* 🏆\n\n")
	for i, p := range sortedByMoney(view) {
		if i >= 10 {
			break
		}
		nation := catalog.MustGet(p.Nation)
		fmt.Fprintf(&b, "%s %s *%s*\n", medals[i], nation.Emoji, p.Username)
		fmt.Fprintf(&b, "   💰 %d | ⚔️ %d | 🏙️ %d | 📈 %.1f\n\n",
			int(p.Money), p.ArmyLevel, p.CityLevel, p.Power())
	}
	fmt.Fprintf(&b, "Всего игроков: %d", len(view.Players))

	if err := c.Edit(b.String()); err != nil {
		return err
	}
	return c.Respond()
}

func (h *GameHandler) callbackSettings(c tele.Context, chatID, userID int64) error {
	p, err := h.store.PlayerView(chatID, userID)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "❌ Вы не в игре!"})
	}
	if err := c.Edit(settingsText(p.DMNotification), settingsKeyboard(userID, p.DMNotification)); err != nil {
		return err
	}
	return c.Respond()
}

func (h *GameHandler) callbackToggleNotifications(c tele.Context, chatID, userID int64) error {
	enabled, err := h.store.ToggleNotifications(chatID, userID)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "❌ Вы не в игре!"})
	}

	status := "включены"
	if !enabled {
		status = "выключены"
	}
	if err := c.Respond(&tele.CallbackResponse{Text: "🔔 Уведомления " + status + "!"}); err != nil {
		return err
	}
	return c.Edit(settingsText(enabled), settingsKeyboard(userID, enabled))
}

func (h *GameHandler) callbackPromocodeHint(c tele.Context, userID int64) error {
	err := h.notifier.NotifyDirect(userID,
		"🎁 *Активация промокода*\n\n"+
			"Чтобы активировать промокод, отправьте мне в личные сообщения:\n"+
			"`/promocode КОД_ПРОМОКОДА`\n\n"+
			"Награда будет зачислена на ваш счет во всех играх, где вы участвуете!")
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to send promocode instructions")
		return c.Respond(&tele.CallbackResponse{Text: "❌ Не удалось отправить сообщение. Проверьте, что вы начали диалог с ботом!"})
	}
	return c.Respond(&tele.CallbackResponse{Text: "📨 Инструкция отправлена в личные сообщения!"})
}

// refreshMenu re-renders the player menu in place of the callback message.
func (h *GameHandler) refreshMenu(c tele.Context, chatID, userID int64) error {
	text, err := h.menuText(chatID, userID)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "❌ Вы не в игре! Используйте /join чтобы присоединиться."})
	}
	return c.Edit(text, menuKeyboard(userID))
}

// sendMenu sends the player menu as a fresh message.
func (h *GameHandler) sendMenu(c tele.Context, chatID, userID int64) error {
	text, err := h.menuText(chatID, userID)
	if err != nil {
		return c.Send("❌ Вы не в игре! Используйте /join чтобы присоединиться.")
	}
	return c.Send(text, menuKeyboard(userID))
}

func (h *GameHandler) menuText(chatID, userID int64) (string, error) {
	view, err := h.store.GameView(chatID)
	if err != nil {
		return "", err
	}
	p, ok := view.Players[userID]
	if !ok {
		return "", store.ErrNotInGame
	}
	n := catalog.MustGet(p.Nation)

	var b strings.Builder
	b.WriteString("🎮 *Управление страной*\n\n")
	fmt.Fprintf(&b, "🌍 *Страна:* %s %s\n", n.Emoji, n.Name)
	fmt.Fprintf(&b, "👤 *Игрок:* %s\n", p.Username)
	fmt.Fprintf(&b, "💰 *Казна:* %d монет\n", int(p.Money))
	fmt.Fprintf(&b, "⚔️ *Уровень армии:* %d\n", p.ArmyLevel)
	fmt.Fprintf(&b, "🏙️ *Уровень города:* %d\n", p.CityLevel)
	fmt.Fprintf(&b, "📈 *Пассивный доход:* %.1f монет/сек\n", n.BaseIncome*float64(p.CityLevel))
	fmt.Fprintf(&b, "🏆 *Статистика:* %d побед / %d поражений\n", p.Wins, p.Losses)
	fmt.Fprintf(&b, "💸 *Всего налогов уплачено:* %d монет\n\n", int(p.TaxPaid))
	b.WriteString("*Улучшения:*\n")
	fmt.Fprintf(&b, "⚔️ Улучшить армию - %d монет\n", int(catalog.ArmyUpgradeCost(n, p.ArmyLevel)))
	fmt.Fprintf(&b, "🏙️ Улучшить город - %d монет\n\n", int(catalog.CityUpgradeCost(n, p.CityLevel)))
	fmt.Fprintf(&b, "💰 *Следующий налог:* %d монет\n", int(economy.NextTax(p, h.econ)))
	fmt.Fprintf(&b, "⏳ *До налога:* %d сек", timeToTax(p, h.econ))

	switch view.Phase() {
	case model.WarActive:
		b.WriteString("\n\n⚔️ *Сейчас идет война!*")
	case model.WarPreparing:
		if view.WarPreparationEnd != nil && participantOf(view, userID) {
			if left := int(time.Until(*view.WarPreparationEnd).Seconds()); left > 0 {
				fmt.Fprintf(&b, "\n\n🛡️ *Подготовка к войне!*\n⏳ До начала: %d сек\nУлучшайте армию!", left)
			}
		}
	}
	return b.String(), nil
}

func settingsText(notifications bool) string {
	status := "❌ *Выключены*"
	if notifications {
		status = "✅ *Включены*"
	}
	return "⚙️ *Настройки игры*\n\n" +
		"Здесь вы можете настроить параметры уведомлений.\n\n" +
		"🔔 *Уведомления в личные сообщения:*\n" +
		"• Уведомления о начале войны с вашим участием\n" +
		"• Результаты ваших войн\n\n" +
		"Текущий статус: " + status
}

func timeToTax(p *model.Player, params economy.Params) int {
	left := params.TaxInterval - time.Since(p.LastTax)
	if left < 0 {
		return 0
	}
	return int(left.Seconds())
}

func sumTaxesSince(g *model.Game, since time.Time) float64 {
	var total float64
	for _, e := range g.TaxHistory {
		if e.At.After(since) {
			total += e.Amount
		}
	}
	return total
}

func participantOf(g *model.Game, userID int64) bool {
	for _, id := range g.WarParticipants {
		if id == userID {
			return true
		}
	}
	return false
}

func sortedByMoney(g *model.Game) []*model.Player {
	players := make([]*model.Player, 0, len(g.Players))
	for _, p := range g.Players {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].Money > players[j].Money })
	return players
}

func sortedByTaxPaid(g *model.Game) []*model.Player {
	players := make([]*model.Player, 0, len(g.Players))
	for _, p := range g.Players {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].TaxPaid > players[j].TaxPaid })
	return players
}
