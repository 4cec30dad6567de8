package handler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"nation-game-bot/internal/config"
	"nation-game-bot/internal/notify"
	"nation-game-bot/internal/promo"
)

// PromoHandler handles promocode redemption and admin management.
type PromoHandler struct {
	cfg      *config.Config
	promos   *promo.Service
	notifier notify.Notifier
}

// NewPromoHandler creates a new PromoHandler.
func NewPromoHandler(cfg *config.Config, promos *promo.Service, notifier notify.Notifier) *PromoHandler {
	return &PromoHandler{cfg: cfg, promos: promos, notifier: notifier}
}

// HandleRedeem handles the /promocode command. Redemption only works
// in a private chat with the bot.
func (h *PromoHandler) HandleRedeem(c tele.Context) error {
	chat, sender := c.Chat(), c.Sender()
	if chat == nil || sender == nil {
		return nil
	}
	if chat.Type != tele.ChatPrivate {
		return c.Send("❌ Промокоды можно активировать только в личных сообщениях с ботом!")
	}

	args := c.Args()
	if len(args) != 1 {
		return c.Send(
			"🎁 *Активация промокода*\n\n" +
				"Использование: `/promocode КОД`\n\n" +
				"Награда будет зачислена во всех играх, где вы участвуете.")
	}

	result, err := h.promos.Redeem(sender.ID, args[0])
	if err != nil {
		switch {
		case errors.Is(err, promo.ErrNotInAnyGame):
			return c.Send("❌ Вы не участвуете ни в одной игре! Сначала присоединитесь к игре в группе через /join.")
		case errors.Is(err, promo.ErrNotFound):
			return c.Send("❌ Промокод не найден!")
		case errors.Is(err, promo.ErrInactive):
			return c.Send("❌ Этот промокод деактивирован!")
		case errors.Is(err, promo.ErrExhausted):
			return c.Send("❌ Промокод больше не действует: лимит использований исчерпан!")
		case errors.Is(err, promo.ErrAlreadyUsed):
			return c.Send("❌ Вы уже использовали этот промокод!")
		default:
			return c.Send("❌ Не удалось активировать промокод!")
		}
	}

	log.Info().
		Int64("user_id", sender.ID).
		Str("code", result.Code).
		Float64("reward", result.Reward).
		Int("games", len(result.Chats)).
		Msg("Promocode redeemed")

	username := sender.Username
	if username == "" {
		username = sender.FirstName
	}
	for _, chatID := range result.Chats {
		text := fmt.Sprintf("🎁 *%s* активировал промокод и получил %d монет!", username, int(result.Reward))
		if err := h.notifier.Announce(chatID, text); err != nil {
			log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to announce promocode redemption")
		}
	}

	return c.Send(fmt.Sprintf(
		"✅ *Промокод активирован!*\n\n"+
			"🎁 Код: *%s*\n"+
			"💰 Награда: %d монет\n"+
			"🎮 Зачислено в играх: %d\n"+
			"📊 Использований: %d/%d",
		result.Code, int(result.Reward), len(result.Chats), result.UsedCount, result.MaxUses))
}

// HandleCreate handles the admin /createpromo command.
func (h *PromoHandler) HandleCreate(c tele.Context) error {
	args := c.Args()
	if len(args) != 3 {
		return c.Send("Использование: `/createpromo КОД НАГРАДА МАКС_ИСПОЛЬЗОВАНИЙ`")
	}

	reward, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return c.Send("❌ Награда должна быть числом!")
	}
	maxUses, err := strconv.Atoi(args[2])
	if err != nil {
		return c.Send("❌ Количество использований должно быть числом!")
	}

	created, err := h.promos.Create(args[0], reward, maxUses, c.Sender().ID)
	if err != nil {
		switch {
		case errors.Is(err, promo.ErrExists):
			return c.Send("❌ Такой промокод уже существует!")
		case errors.Is(err, promo.ErrInvalidReward):
			return c.Send("❌ Награда должна быть больше нуля!")
		case errors.Is(err, promo.ErrInvalidUses):
			return c.Send("❌ Количество использований должно быть больше нуля!")
		default:
			return c.Send("❌ Не удалось создать промокод!")
		}
	}

	log.Info().Str("code", created.Code).Float64("reward", created.Reward).
		Int("max_uses", created.MaxUses).Int64("created_by", created.CreatedBy).
		Msg("Promocode created")

	return c.Send(fmt.Sprintf(
		"✅ *Промокод создан!*\n\n"+
			"🎁 Код: *%s*\n"+
			"💰 Награда: %d монет\n"+
			"📊 Максимум использований: %d",
		created.Code, int(created.Reward), created.MaxUses))
}

// HandleDelete handles the admin /deletepromo command.
func (h *PromoHandler) HandleDelete(c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Send("Использование: `/deletepromo КОД`")
	}

	if err := h.promos.Delete(args[0]); err != nil {
		return c.Send("❌ Промокод не найден!")
	}

	log.Info().Str("code", promo.Normalize(args[0])).Msg("Promocode deleted")
	return c.Send(fmt.Sprintf("🗑 Промокод *%s* удален!", promo.Normalize(args[0])))
}

// HandleToggle handles the admin /togglepromo command.
func (h *PromoHandler) HandleToggle(c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Send("Использование: `/togglepromo КОД`")
	}

	active, err := h.promos.Toggle(args[0])
	if err != nil {
		return c.Send("❌ Промокод не найден!")
	}

	status := "деактивирован"
	if active {
		status = "активирован"
	}
	return c.Send(fmt.Sprintf("🔄 Промокод *%s* %s!", promo.Normalize(args[0]), status))
}

// HandleList handles the admin /listpromos command.
func (h *PromoHandler) HandleList(c tele.Context) error {
	promos := h.promos.List()
	if len(promos) == 0 {
		return c.Send("📋 Промокодов пока нет.")
	}

	var b strings.Builder
	b.WriteString("📋 *Список промокодов:*\n\n")
	for _, p := range promos {
		b.WriteString(promo.Describe(p))
		b.WriteString("\n\n")
	}
	return c.Send(strings.TrimRight(b.String(), "\n"))
}
