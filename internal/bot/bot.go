// Package bot provides the Telegram bot initialization and handler registration.
package bot

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"nation-game-bot/internal/config"
	"nation-game-bot/internal/handler"
	"nation-game-bot/internal/notify"
	"nation-game-bot/internal/promo"
	"nation-game-bot/internal/store"
	"nation-game-bot/internal/war"
)

// NewTelebot creates the underlying telebot instance. It is created
// separately from the Bot so a Notifier over it can be handed to the
// war engine before handlers are registered.
func NewTelebot(cfg *config.Config) (*tele.Bot, error) {
	if cfg.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:     cfg.Bot.Token,
		Poller:    &tele.LongPoller{Timeout: 10 * time.Second},
		ParseMode: tele.ModeMarkdown,
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return teleBot, nil
}

// Notifier delivers game announcements through the Telegram API.
type Notifier struct {
	bot *tele.Bot
}

var _ notify.Notifier = (*Notifier)(nil)

// NewNotifier creates a Notifier over a telebot instance.
func NewNotifier(b *tele.Bot) *Notifier {
	return &Notifier{bot: b}
}

// Announce sends a message to a group chat.
func (n *Notifier) Announce(chatID int64, text string) error {
	_, err := n.bot.Send(tele.ChatID(chatID), text)
	return err
}

// NotifyDirect sends a private message to a user. Fails if the user
// never started a dialog with the bot.
func (n *Notifier) NotifyDirect(userID int64, text string) error {
	_, err := n.bot.Send(&tele.User{ID: userID}, text)
	return err
}

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot    *tele.Bot
	cfg    *config.Config
	store  *store.Store
	engine *war.Engine
	promos *promo.Service

	gameHandler  *handler.GameHandler
	promoHandler *handler.PromoHandler
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Config   *config.Config
	Telebot  *tele.Bot
	Store    *store.Store
	Engine   *war.Engine
	Promos   *promo.Service
	Notifier notify.Notifier
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) *Bot {
	b := &Bot{
		bot:    deps.Telebot,
		cfg:    deps.Config,
		store:  deps.Store,
		engine: deps.Engine,
		promos: deps.Promos,
	}

	b.gameHandler = handler.NewGameHandler(deps.Config, deps.Store, deps.Engine, deps.Notifier)
	b.promoHandler = handler.NewPromoHandler(deps.Config, deps.Promos, deps.Notifier)

	b.registerMiddleware()
	b.registerHandlers()

	return b
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(WhitelistMiddleware(b.cfg))
	b.bot.Use(LoggingMiddleware())
}

// registerHandlers registers all command and callback handlers.
func (b *Bot) registerHandlers() {
	// Game commands
	b.bot.Handle("/start", b.gameHandler.HandleStart)
	b.bot.Handle("/help", b.gameHandler.HandleHelp)
	b.bot.Handle("/join", b.gameHandler.HandleJoin)
	b.bot.Handle("/players", b.gameHandler.HandlePlayers)
	b.bot.Handle("/taxinfo", b.gameHandler.HandleTaxInfo)

	// Promocode redemption (private chat)
	b.bot.Handle("/promocode", b.promoHandler.HandleRedeem)

	// Admin promocode management
	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.cfg))
	adminGroup.Handle("/createpromo", b.promoHandler.HandleCreate)
	adminGroup.Handle("/deletepromo", b.promoHandler.HandleDelete)
	adminGroup.Handle("/togglepromo", b.promoHandler.HandleToggle)
	adminGroup.Handle("/listpromos", b.promoHandler.HandleList)

	// All menu buttons run through one callback router
	b.bot.Handle(tele.OnCallback, b.gameHandler.HandleCallback)
}

// Start starts the bot polling.
func (b *Bot) Start() {
	log.Info().Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}
