package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"nation-game-bot/internal/model"
)

// FileStore persists the snapshot documents as two JSON files. Each
// save writes a temp file in the same directory and renames it over
// the target, so a crash mid-write never corrupts the previous
// snapshot.
type FileStore struct {
	gamesPath  string
	promosPath string
}

// NewFileStore creates a file-backed snapshotter.
func NewFileStore(gamesPath, promosPath string) *FileStore {
	return &FileStore{gamesPath: gamesPath, promosPath: promosPath}
}

// SaveGames overwrites the games document.
func (s *FileStore) SaveGames(ctx context.Context, games map[int64]*model.Game) error {
	doc := make(map[string]*model.Game, len(games))
	for chatID, g := range games {
		doc[strconv.FormatInt(chatID, 10)] = g
	}
	return writeJSON(s.gamesPath, doc)
}

// SavePromocodes overwrites the promocodes document.
func (s *FileStore) SavePromocodes(ctx context.Context, promos map[string]*model.Promocode) error {
	return writeJSON(s.promosPath, promos)
}

// LoadGames reads the games document. A missing file yields an empty
// map and no error.
func (s *FileStore) LoadGames(ctx context.Context) (map[int64]*model.Game, error) {
	games := make(map[int64]*model.Game)

	doc := make(map[string]*model.Game)
	found, err := readJSON(s.gamesPath, &doc)
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

// LoadPromocodes reads the promocodes document. A missing file yields
// an empty map and no error.
func (s *FileStore) LoadPromocodes(ctx context.Context) (map[string]*model.Promocode, error) {
	promos := make(map[string]*model.Promocode)
	found, err := readJSON(s.promosPath, &promos)
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

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// readJSON reports (false, nil) when the file does not exist.
func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return true, nil
}
