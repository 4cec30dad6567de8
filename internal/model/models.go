// Package model defines the persisted data model for the nation game.
package model

import (
	"encoding/json"
	"time"
)

// Player is one user's nation inside a single chat's game.
// The nation choice is permanent: a Player is created once per
// (chat, user) pair and never recreated.
type Player struct {
	UserID         int64     `json:"user_id"`
	Username       string    `json:"username"`
	Nation         string    `json:"country"`
	Money          float64   `json:"money"`
	ArmyLevel      int       `json:"army_level"`
	CityLevel      int       `json:"city_level"`
	LastIncome     time.Time `json:"last_income"`
	LastTax        time.Time `json:"last_tax"`
	Wins           int       `json:"wins"`
	Losses         int       `json:"losses"`
	IsOnline       bool      `json:"is_online"`
	DMNotification bool      `json:"has_dm_notifications"`
	TaxPaid        float64   `json:"tax_paid"`
	UsedPromocodes []string  `json:"used_promocodes"`
}

// UnmarshalJSON decodes a player document. is_online and
// has_dm_notifications default to true when the document predates the
// flags; an explicit false is kept.
func (p *Player) UnmarshalJSON(data []byte) error {
	type playerDoc Player
	doc := playerDoc{IsOnline: true, DMNotification: true}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*p = Player(doc)
	return nil
}

// Power is the player's combat strength before battle jitter.
func (p *Player) Power() float64 {
	return float64(p.ArmyLevel) * (1 + 0.1*float64(p.CityLevel))
}

// HasUsedPromocode reports whether the player already redeemed the code.
func (p *Player) HasUsedPromocode(code string) bool {
	for _, c := range p.UsedPromocodes {
		if c == code {
			return true
		}
	}
	return false
}

// TaxEntry is one collected tax payment in a game's history.
type TaxEntry struct {
	At     time.Time `json:"at"`
	Amount float64   `json:"amount"`
}

// WarPhase describes the war state machine position of a game.
type WarPhase int

const (
	WarIdle WarPhase = iota
	WarPreparing
	WarActive
)

// String returns a log-friendly phase name.
func (p WarPhase) String() string {
	switch p {
	case WarPreparing:
		return "preparing"
	case WarActive:
		return "active"
	default:
		return "idle"
	}
}

// Game is the complete simulated state for one chat: players, the
// shared treasury and the war state machine. At most one war occupies
// a non-idle phase at any time.
type Game struct {
	ChatID            int64             `json:"chat_id"`
	CreatorID         int64             `json:"creator_id"`
	Players           map[int64]*Player `json:"players"`
	WarActive         bool              `json:"war_active"`
	WarPreparation    bool              `json:"war_preparation"`
	WarParticipants   []int64           `json:"war_participants"`
	WarStartTime      *time.Time        `json:"war_start_time"`
	WarPreparationEnd *time.Time        `json:"war_preparation_end"`
	LastWar           *time.Time        `json:"last_war"`
	CreatedAt         time.Time         `json:"created_at"`
	Treasury          float64           `json:"treasury"`
	TaxHistory        []TaxEntry        `json:"tax_history"`
}

// NewGame creates an empty game for a chat.
func NewGame(chatID, creatorID int64, now time.Time) *Game {
	return &Game{
		ChatID:          chatID,
		CreatorID:       creatorID,
		Players:         make(map[int64]*Player),
		WarParticipants: []int64{},
		TaxHistory:      []TaxEntry{},
		CreatedAt:       now,
	}
}

// Phase returns the current war phase.
func (g *Game) Phase() WarPhase {
	switch {
	case g.WarActive:
		return WarActive
	case g.WarPreparation:
		return WarPreparing
	default:
		return WarIdle
	}
}

// ClearWar resets every war field back to the idle state.
// The participants slice is emptied, not nilled, to keep the
// persisted document shape stable.
func (g *Game) ClearWar() {
	g.WarActive = false
	g.WarPreparation = false
	g.WarParticipants = []int64{}
	g.WarStartTime = nil
	g.WarPreparationEnd = nil
}

// NationTaken reports whether any player of the game already claimed the nation.
func (g *Game) NationTaken(nation string) bool {
	for _, p := range g.Players {
		if p.Nation == nation {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the game, used for lock-free snapshot I/O.
func (g *Game) Clone() *Game {
	c := *g
	c.Players = make(map[int64]*Player, len(g.Players))
	for id, p := range g.Players {
		pc := *p
		pc.UsedPromocodes = append([]string(nil), p.UsedPromocodes...)
		c.Players[id] = &pc
	}
	c.WarParticipants = append([]int64(nil), g.WarParticipants...)
	c.TaxHistory = append([]TaxEntry(nil), g.TaxHistory...)
	if g.WarStartTime != nil {
		t := *g.WarStartTime
		c.WarStartTime = &t
	}
	if g.WarPreparationEnd != nil {
		t := *g.WarPreparationEnd
		c.WarPreparationEnd = &t
	}
	if g.LastWar != nil {
		t := *g.LastWar
		c.LastWar = &t
	}
	return &c
}

// ApplyDefaults fills fields that may be absent in snapshots written by
// older versions, so loads stay forward compatible without versioning.
func (g *Game) ApplyDefaults() {
	if g.Players == nil {
		g.Players = make(map[int64]*Player)
	}
	if g.WarParticipants == nil {
		g.WarParticipants = []int64{}
	}
	if g.TaxHistory == nil {
		g.TaxHistory = []TaxEntry{}
	}
	for _, p := range g.Players {
		if p.UsedPromocodes == nil {
			p.UsedPromocodes = []string{}
		}
		if p.ArmyLevel < 1 {
			p.ArmyLevel = 1
		}
		if p.CityLevel < 1 {
			p.CityLevel = 1
		}
	}
}

// Promocode is a one-per-user reward code. Promocodes are global:
// redemption credits every game the redeeming user plays in.
type Promocode struct {
	Code      string    `json:"code"`
	Reward    float64   `json:"reward"`
	MaxUses   int       `json:"max_uses"`
	UsedCount int       `json:"used_count"`
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	IsActive  bool      `json:"is_active"`
	UsersUsed []int64   `json:"users_used"`
}

// UsedBy reports whether the user already redeemed this code.
func (p *Promocode) UsedBy(userID int64) bool {
	for _, id := range p.UsersUsed {
		if id == userID {
			return true
		}
	}
	return false
}

// Exhausted reports whether the code reached its usage cap.
func (p *Promocode) Exhausted() bool {
	return p.UsedCount >= p.MaxUses
}

// Clone returns a deep copy of the promocode.
func (p *Promocode) Clone() *Promocode {
	c := *p
	c.UsersUsed = append([]int64(nil), p.UsersUsed...)
	return &c
}

// ApplyDefaults fills fields absent in older snapshots.
func (p *Promocode) ApplyDefaults() {
	if p.UsersUsed == nil {
		p.UsersUsed = []int64{}
	}
	if p.MaxUses < 1 {
		p.MaxUses = 1
	}
}
