// Package store owns the authoritative in-memory game state: one Game
// per chat plus the global promocode table. Every mutation passes
// through the store and runs inside the owning chat's critical section;
// games of different chats are fully independent.
package store

import (
	"sort"
	"sync"
	"time"

	"nation-game-bot/internal/catalog"
	"nation-game-bot/internal/model"
	"nation-game-bot/internal/pkg/lock"
)

// Store is the authoritative map of chat-id -> Game. It is constructed
// once at startup from the persistence gateway's load and owned by the
// process until the final snapshot on shutdown.
type Store struct {
	mu    sync.RWMutex // guards the games map shape, not game contents
	games map[int64]*model.Game

	pmu    sync.Mutex
	promos map[string]*model.Promocode

	locks *lock.ChatLock

	startingMoney float64

	onChange func() // dirty signal into the persistence gateway
}

// New creates an empty store. startingMoney is the capital a freshly
// created player receives.
func New(startingMoney float64) *Store {
	return &Store{
		games:         make(map[int64]*model.Game),
		promos:        make(map[string]*model.Promocode),
		locks:         lock.NewChatLock(),
		startingMoney: startingMoney,
	}
}

// OnChange registers the dirty callback invoked after every successful
// mutation. Must be set before any concurrent use.
func (s *Store) OnChange(fn func()) {
	s.onChange = fn
}

// MarkDirty signals the persistence gateway that state changed.
func (s *Store) MarkDirty() {
	if s.onChange != nil {
		s.onChange()
	}
}

// Replace installs loaded state wholesale. Called once at startup,
// before any ticker or handler runs.
func (s *Store) Replace(games map[int64]*model.Game, promos map[string]*model.Promocode) {
	s.mu.Lock()
	if games != nil {
		s.games = games
	}
	s.mu.Unlock()

	s.pmu.Lock()
	if promos != nil {
		s.promos = promos
	}
	s.pmu.Unlock()
}

// ChatIDs returns the ids of every known game, sorted for stable iteration.
func (s *Store) ChatIDs() []int64 {
	s.mu.RLock()
	ids := make([]int64, 0, len(s.games))
	for id := range s.games {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// HasGame reports whether a game exists for the chat.
func (s *Store) HasGame(chatID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.games[chatID]
	return ok
}

// game fetches the game pointer. Callers must hold the chat lock while
// touching the returned game.
func (s *Store) game(chatID int64) (*model.Game, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[chatID]
	return g, ok
}

// WithGame runs fn inside the chat's critical section. Returns
// ErrGameNotFound if no game exists for the chat.
func (s *Store) WithGame(chatID int64, fn func(g *model.Game) error) error {
	return s.locks.WithLock(chatID, func() error {
		g, ok := s.game(chatID)
		if !ok {
			return ErrGameNotFound
		}
		return fn(g)
	})
}

// EnsureGame returns the chat's game, creating an empty one on first use.
func (s *Store) EnsureGame(chatID, creatorID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[chatID]; ok {
		return
	}
	s.games[chatID] = model.NewGame(chatID, creatorID, time.Now())
}

// Join creates a player for the user in the chat's game. The game is
// created lazily on first join. Fails while a war is preparing or
// active, when the user already plays, or when the nation is unknown
// or already claimed in this game.
func (s *Store) Join(chatID, userID int64, username, nation string) (*model.Player, error) {
	if !catalog.Exists(nation) {
		return nil, ErrUnknownNation
	}

	s.EnsureGame(chatID, userID)

	var created *model.Player
	err := s.WithGame(chatID, func(g *model.Game) error {
		if g.Phase() != model.WarIdle {
			return ErrWarInProgress
		}
		if _, ok := g.Players[userID]; ok {
			return ErrAlreadyJoined
		}
		if g.NationTaken(nation) {
			return ErrNationTaken
		}

		now := time.Now()
		p := &model.Player{
			UserID:         userID,
			Username:       username,
			Nation:         nation,
			Money:          s.startingMoney,
			ArmyLevel:      1,
			CityLevel:      1,
			LastIncome:     now,
			LastTax:        now,
			IsOnline:       true,
			DMNotification: true,
			UsedPromocodes: []string{},
		}
		g.Players[userID] = p
		pc := *p
		created = &pc
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.MarkDirty()
	return created, nil
}

// UpgradeArmy raises the player's army level by one, deducting
// army_cost × current level. Allowed any time except during active
// combat; the preparation phase is explicitly open for army upgrades.
func (s *Store) UpgradeArmy(chatID, userID int64) (newLevel int, cost float64, err error) {
	err = s.WithGame(chatID, func(g *model.Game) error {
		if g.Phase() == model.WarActive {
			return ErrWarInProgress
		}
		p, ok := g.Players[userID]
		if !ok {
			return ErrNotInGame
		}
		nation := catalog.MustGet(p.Nation)
		cost = catalog.ArmyUpgradeCost(nation, p.ArmyLevel)
		if p.Money < cost {
			return ErrInsufficientFunds
		}
		p.Money -= cost
		p.ArmyLevel++
		newLevel = p.ArmyLevel
		return nil
	})
	if err != nil {
		return 0, cost, err
	}

	s.MarkDirty()
	return newLevel, cost, nil
}

// UpgradeCity raises the player's city level by one, deducting
// city_cost × current level. Stricter than the army upgrade: forbidden
// during both the preparation and the active combat phase.
func (s *Store) UpgradeCity(chatID, userID int64) (newLevel int, cost float64, err error) {
	err = s.WithGame(chatID, func(g *model.Game) error {
		if g.Phase() != model.WarIdle {
			return ErrWarInProgress
		}
		p, ok := g.Players[userID]
		if !ok {
			return ErrNotInGame
		}
		nation := catalog.MustGet(p.Nation)
		cost = catalog.CityUpgradeCost(nation, p.CityLevel)
		if p.Money < cost {
			return ErrInsufficientFunds
		}
		p.Money -= cost
		p.CityLevel++
		newLevel = p.CityLevel
		return nil
	})
	if err != nil {
		return 0, cost, err
	}

	s.MarkDirty()
	return newLevel, cost, nil
}

// ToggleNotifications flips the player's direct-notification opt-in
// flag and returns the new value.
func (s *Store) ToggleNotifications(chatID, userID int64) (bool, error) {
	var enabled bool
	err := s.WithGame(chatID, func(g *model.Game) error {
		p, ok := g.Players[userID]
		if !ok {
			return ErrNotInGame
		}
		p.DMNotification = !p.DMNotification
		enabled = p.DMNotification
		return nil
	})
	if err != nil {
		return false, err
	}

	s.MarkDirty()
	return enabled, nil
}

// PlayerView returns a copy of the player for rendering outside the lock.
func (s *Store) PlayerView(chatID, userID int64) (*model.Player, error) {
	var view *model.Player
	err := s.WithGame(chatID, func(g *model.Game) error {
		p, ok := g.Players[userID]
		if !ok {
			return ErrNotInGame
		}
		pc := *p
		pc.UsedPromocodes = append([]string(nil), p.UsedPromocodes...)
		view = &pc
		return nil
	})
	return view, err
}

// GameView returns a deep copy of the chat's game for rendering.
func (s *Store) GameView(chatID int64) (*model.Game, error) {
	var view *model.Game
	err := s.WithGame(chatID, func(g *model.Game) error {
		view = g.Clone()
		return nil
	})
	return view, err
}

// GamesPlayedBy returns the chat ids of every game the user has a player in.
func (s *Store) GamesPlayedBy(userID int64) []int64 {
	var chats []int64
	for _, chatID := range s.ChatIDs() {
		_ = s.WithGame(chatID, func(g *model.Game) error {
			if _, ok := g.Players[userID]; ok {
				chats = append(chats, chatID)
			}
			return nil
		})
	}
	return chats
}

// CreditPlayer adds amount to the player's money in one game.
func (s *Store) CreditPlayer(chatID, userID int64, amount float64) error {
	err := s.WithGame(chatID, func(g *model.Game) error {
		p, ok := g.Players[userID]
		if !ok {
			return ErrNotInGame
		}
		p.Money += amount
		return nil
	})
	if err != nil {
		return err
	}

	s.MarkDirty()
	return nil
}

// SnapshotGames deep-copies every game for snapshot I/O. Each chat's
// lock is held only for the copy of that one game, never for the whole
// snapshot and never for the write itself.
func (s *Store) SnapshotGames() map[int64]*model.Game {
	out := make(map[int64]*model.Game)
	for _, chatID := range s.ChatIDs() {
		_ = s.WithGame(chatID, func(g *model.Game) error {
			out[chatID] = g.Clone()
			return nil
		})
	}
	return out
}

// SnapshotPromos deep-copies the promocode table.
func (s *Store) SnapshotPromos() map[string]*model.Promocode {
	s.pmu.Lock()
	defer s.pmu.Unlock()

	out := make(map[string]*model.Promocode, len(s.promos))
	for code, p := range s.promos {
		out[code] = p.Clone()
	}
	return out
}

// WithPromos runs fn with exclusive access to the promocode table.
func (s *Store) WithPromos(fn func(promos map[string]*model.Promocode) error) error {
	s.pmu.Lock()
	defer s.pmu.Unlock()
	return fn(s.promos)
}
