package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"nation-game-bot/internal/model"
)

// Snapshot document names in the snapshots table.
const (
	docGames      = "games"
	docPromocodes = "promocodes"
)

// PostgresStore persists the snapshot documents as two JSONB rows,
// upserted whole on every save. Same overwrite discipline as the file
// backend, different durability story.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates the postgres snapshotter and ensures the
// snapshots table exists.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS snapshots (
			name TEXT PRIMARY KEY,
			doc JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshots table: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// SaveGames upserts the games document.
func (s *PostgresStore) SaveGames(ctx context.Context, games map[int64]*model.Game) error {
	doc := make(map[string]*model.Game, len(games))
	for chatID, g := range games {
		doc[strconv.FormatInt(chatID, 10)] = g
	}
	return s.upsert(ctx, docGames, doc)
}

// SavePromocodes upserts the promocodes document.
func (s *PostgresStore) SavePromocodes(ctx context.Context, promos map[string]*model.Promocode) error {
	return s.upsert(ctx, docPromocodes, promos)
}

// LoadGames reads the games document. A missing row yields an empty map.
func (s *PostgresStore) LoadGames(ctx context.Context) (map[int64]*model.Game, error) {
	games := make(map[int64]*model.Game)

	doc := make(map[string]*model.Game)
	found, err := s.fetch(ctx, docGames, &doc)
	if err != nil {
		return nil, err
	}
	if !found {
		return games, nil
	}

	for key, g := range doc {
		chatID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chat id %q in games snapshot: %w", key, err)
		}
		g.ChatID = chatID
		g.ApplyDefaults()
		games[chatID] = g
	}
	return games, nil
}

// LoadPromocodes reads the promocodes document. A missing row yields an
// empty map.
func (s *PostgresStore) LoadPromocodes(ctx context.Context) (map[string]*model.Promocode, error) {
	promos := make(map[string]*model.Promocode)
	found, err := s.fetch(ctx, docPromocodes, &promos)
	if err != nil {
		return nil, err
	}
	if !found {
		return make(map[string]*model.Promocode), nil
	}
	for code, p := range promos {
		p.Code = code
		p.ApplyDefaults()
	}
	return promos, nil
}

func (s *PostgresStore) upsert(ctx context.Context, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s snapshot: %w", name, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO snapshots (name, doc, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET doc = EXCLUDED.doc, updated_at = NOW()
	`, name, data)
	if err != nil {
		return fmt.Errorf("failed to write %s snapshot: %w", name, err)
	}
	return nil
}

func (s *PostgresStore) fetch(ctx context.Context, name string, v any) (bool, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM snapshots WHERE name = $1`, name).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s snapshot: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to parse %s snapshot: %w", name, err)
	}
	return true, nil
}
