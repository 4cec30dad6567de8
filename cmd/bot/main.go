// Package main is the entry point for the nation game bot.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"nation-game-bot/internal/bot"
	"nation-game-bot/internal/config"
	"nation-game-bot/internal/economy"
	"nation-game-bot/internal/pkg/db"
	"nation-game-bot/internal/promo"
	"nation-game-bot/internal/storage"
	"nation-game-bot/internal/store"
	"nation-game-bot/internal/war"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize game store
	gameStore := store.New(cfg.Game.StartingMoney)

	// Initialize snapshot backend
	var snap storage.Snapshotter
	switch cfg.Storage.Backend {
	case "postgres":
		dbPool, err := db.NewPool(ctx, &cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer dbPool.Close()

		snap, err = storage.NewPostgresStore(ctx, dbPool.Pool)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize postgres snapshot store")
		}
		log.Info().Msg("Using postgres snapshot backend")
	default:
		snap = storage.NewFileStore(cfg.Storage.GamesFile, cfg.Storage.PromocodesFile)
		log.Info().
			Str("games_file", cfg.Storage.GamesFile).
			Str("promocodes_file", cfg.Storage.PromocodesFile).
			Msg("Using file snapshot backend")
	}

	// Initialize persistence gateway and load the last snapshot
	gateway := storage.NewGateway(snap, gameStore, cfg.Storage.SaveInterval)

	games, promos := gateway.Load(ctx)
	gameStore.Replace(games, promos)
	gameStore.OnChange(gateway.MarkDirty)

	log.Info().
		Int("games", len(games)).
		Int("promocodes", len(promos)).
		Msg("State loaded")

	// Initialize services
	promoService := promo.NewService(gameStore)

	ticker := economy.NewTicker(gameStore, cfg.Game.TickInterval, economy.Params{
		TaxInterval: cfg.Game.TaxInterval,
		TaxRate:     cfg.Game.TaxRate,
		MinTax:      cfg.Game.MinTax,
	})

	// Initialize telebot and the notifier over it
	teleBot, err := bot.NewTelebot(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}
	notifier := bot.NewNotifier(teleBot)

	// Initialize war engine
	engine := war.New(gameStore, notifier, gateway, war.Config{
		Preparation: cfg.Game.WarPreparation,
		Combat:      cfg.Game.WarCombat,
		Cooldown:    cfg.Game.WarCooldown,
		LootRate:    cfg.Game.LootRate,
		MinLoot:     cfg.Game.MinLoot,
		UpsetChance: cfg.Game.UpsetChance,
	})

	// Initialize bot
	telegramBot := bot.New(&bot.Dependencies{
		Config:   cfg,
		Telebot:  teleBot,
		Store:    gameStore,
		Engine:   engine,
		Promos:   promoService,
		Notifier: notifier,
	})

	// Start background loops
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		gateway.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		ticker.Run(ctx)
	}()

	// Re-arm wars that were in flight when the previous process stopped
	engine.Start(ctx)

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start bot in a goroutine
	go func() {
		log.Info().Msg("Bot is starting...")
		telegramBot.Start()
	}()

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Graceful shutdown: stop polling, stop timers, flush the snapshot
	telegramBot.Stop()
	cancel()
	engine.Wait()
	wg.Wait()

	log.Info().Msg("Bot stopped gracefully")
}
