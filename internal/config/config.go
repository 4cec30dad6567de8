// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Bot       BotConfig       `mapstructure:"bot"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Whitelist WhitelistConfig `mapstructure:"whitelist"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Game      GameConfig      `mapstructure:"game"`
}

// BotConfig holds Telegram bot configuration.
type BotConfig struct {
	Token string `mapstructure:"token"`
}

// AdminConfig holds admin user configuration.
type AdminConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// WhitelistConfig holds chat whitelist configuration.
type WhitelistConfig struct {
	Chats []int64 `mapstructure:"chats"`
}

// StorageConfig selects and configures the snapshot backend.
type StorageConfig struct {
	Backend        string        `mapstructure:"backend"` // "file" or "postgres"
	GamesFile      string        `mapstructure:"games_file"`
	PromocodesFile string        `mapstructure:"promocodes_file"`
	SaveInterval   time.Duration `mapstructure:"save_interval"`
}

// DatabaseConfig holds PostgreSQL connection configuration for the
// postgres snapshot backend.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// GameConfig holds gameplay tuning parameters.
type GameConfig struct {
	StartingMoney  float64       `mapstructure:"starting_money"`
	TickInterval   time.Duration `mapstructure:"tick_interval"`
	TaxInterval    time.Duration `mapstructure:"tax_interval"`
	TaxRate        float64       `mapstructure:"tax_rate"`
	MinTax         float64       `mapstructure:"min_tax"`
	WarPreparation time.Duration `mapstructure:"war_preparation"`
	WarCombat      time.Duration `mapstructure:"war_combat"`
	WarCooldown    time.Duration `mapstructure:"war_cooldown"`
	LootRate       float64       `mapstructure:"loot_rate"`
	MinLoot        float64       `mapstructure:"min_loot"`
	UpsetChance    float64       `mapstructure:"upset_chance"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables use underscore separator and uppercase,
	// e.g. BOT_TOKEN, STORAGE_BACKEND, DATABASE_HOST
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - env vars can provide all config
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Storage defaults
	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.games_file", "games_data.json")
	v.SetDefault("storage.promocodes_file", "promocodes.json")
	v.SetDefault("storage.save_interval", "5s")

	// Database defaults (postgres backend)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "nationbot")
	v.SetDefault("database.name", "nationbot")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// Game defaults
	v.SetDefault("game.starting_money", 1000)
	v.SetDefault("game.tick_interval", "1s")
	v.SetDefault("game.tax_interval", "1h")
	v.SetDefault("game.tax_rate", 0.05)
	v.SetDefault("game.min_tax", 50)
	v.SetDefault("game.war_preparation", "5m")
	v.SetDefault("game.war_combat", "60s")
	v.SetDefault("game.war_cooldown", "3m")
	v.SetDefault("game.loot_rate", 0.15)
	v.SetDefault("game.min_loot", 100)
	v.SetDefault("game.upset_chance", 0.05)
}

// IsAdmin checks if a user ID is in the admin list.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Admin.IDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsChatAllowed checks if a chat ID is in the whitelist.
func (c *Config) IsChatAllowed(chatID int64) bool {
	// Empty whitelist means all chats are allowed
	if len(c.Whitelist.Chats) == 0 {
		return true
	}
	for _, id := range c.Whitelist.Chats {
		if id == chatID {
			return true
		}
	}
	return false
}
