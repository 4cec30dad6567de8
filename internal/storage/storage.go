// Package storage implements the persistence gateway: whole-snapshot
// saves of the entire store on a fixed cadence and immediately after
// any state-changing operation, plus reload at startup. Writes are
// full-document overwrites; state is small enough that simplicity wins
// over write amplification.
package storage

import (
	"context"

	"nation-game-bot/internal/model"
)

// Snapshotter is a durable backend for the two snapshot documents:
// all games and all promocodes.
type Snapshotter interface {
	SaveGames(ctx context.Context, games map[int64]*model.Game) error
	SavePromocodes(ctx context.Context, promos map[string]*model.Promocode) error
	LoadGames(ctx context.Context) (map[int64]*model.Game, error)
	LoadPromocodes(ctx context.Context) (map[string]*model.Promocode, error)
}
