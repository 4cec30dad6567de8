package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"nation-game-bot/internal/model"
	"nation-game-bot/internal/store"
)

// Gateway runs the write-through-and-periodic snapshot policy: a full
// save on a fixed interval regardless of changes, plus coalesced saves
// whenever any operation marks the store dirty. Save failures are
// logged and never reach gameplay logic; the in-memory state stays
// authoritative until the next successful write.
type Gateway struct {
	snap     Snapshotter
	store    *store.Store
	interval time.Duration
	dirty    chan struct{}

	saveMu sync.Mutex // serializes whole-snapshot writes
}

// NewGateway creates the gateway. Wire it into the store with
// store.OnChange(gw.MarkDirty).
func NewGateway(snap Snapshotter, st *store.Store, interval time.Duration) *Gateway {
	return &Gateway{
		snap:     snap,
		store:    st,
		interval: interval,
		dirty:    make(chan struct{}, 1),
	}
}

// MarkDirty requests a save at the next opportunity. Never blocks;
// back-to-back signals coalesce into one write.
func (gw *Gateway) MarkDirty() {
	select {
	case gw.dirty <- struct{}{}:
	default:
	}
}

// Load reconstructs the persisted state. Either document failing to
// load degrades to an empty map with a logged error; startup never
// fails on unreadable snapshots.
func (gw *Gateway) Load(ctx context.Context) (map[int64]*model.Game, map[string]*model.Promocode) {
	games, err := gw.snap.LoadGames(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load games snapshot, starting with empty state")
		games = make(map[int64]*model.Game)
	} else {
		players := 0
		for _, g := range games {
			players += len(g.Players)
		}
		log.Info().Int("games", len(games)).Int("players", players).Msg("Games snapshot loaded")
	}

	promos, err := gw.snap.LoadPromocodes(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load promocodes snapshot, starting with none")
		promos = make(map[string]*model.Promocode)
	} else {
		log.Info().Int("promocodes", len(promos)).Msg("Promocodes snapshot loaded")
	}

	return games, promos
}

// SaveNow writes a full snapshot synchronously. Used at war resolution
// (durability before announcement) and for the final save on shutdown.
func (gw *Gateway) SaveNow(ctx context.Context) error {
	gw.saveMu.Lock()
	defer gw.saveMu.Unlock()

	games := gw.store.SnapshotGames()
	promos := gw.store.SnapshotPromos()

	if err := gw.snap.SaveGames(ctx, games); err != nil {
		return err
	}
	return gw.snap.SavePromocodes(ctx, promos)
}

// Run loops until the context is cancelled: periodic saves on the
// configured interval plus immediate saves on dirty signals. A final
// synchronous snapshot runs before returning.
func (gw *Gateway) Run(ctx context.Context) {
	ticker := time.NewTicker(gw.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", gw.interval).Msg("Persistence gateway started")

	for {
		select {
		case <-ctx.Done():
			// Final snapshot; the caller is shutting down.
			if err := gw.SaveNow(context.Background()); err != nil {
				log.Error().Err(err).Msg("Final snapshot failed")
			} else {
				log.Info().Msg("Final snapshot written")
			}
			return
		case <-ticker.C:
			gw.save(ctx)
		case <-gw.dirty:
			gw.save(ctx)
		}
	}
}

func (gw *Gateway) save(ctx context.Context) {
	if err := gw.SaveNow(ctx); err != nil {
		log.Error().Err(err).Msg("Snapshot write failed, state not yet durable")
	}
}
