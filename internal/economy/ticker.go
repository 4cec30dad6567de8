// Package economy implements the passive income and taxation ticker.
//
// Income is delta-exact: each pass credits base_income × city_level ×
// elapsed seconds since the player's last_income stamp, so tick jitter
// or skipped ticks never lose or double-count time. Tax is a gate, not
// a debt: when a player cannot afford the due tax, last_tax is left
// untouched and the collection is retried on every following tick
// until affordable. There is no tax debt and no penalty.
package economy

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"nation-game-bot/internal/catalog"
	"nation-game-bot/internal/model"
	"nation-game-bot/internal/store"
)

// Params are the taxation tuning knobs.
type Params struct {
	TaxInterval time.Duration
	TaxRate     float64
	MinTax      float64
}

// NextTax computes the tax due for a player at their current levels:
// max(MinTax, hourly income × rate × nation tax modifier).
func NextTax(p *model.Player, params Params) float64 {
	nation := catalog.MustGet(p.Nation)
	hourly := nation.BaseIncome * float64(p.CityLevel) * 3600
	tax := hourly * params.TaxRate * nation.TaxModifier
	if tax < params.MinTax {
		tax = params.MinTax
	}
	return tax
}

// ApplyTick applies elapsed income and due taxation to every online
// player of one game. A game in active combat is skipped entirely; the
// preparation phase still ticks. Reports whether anything changed.
func ApplyTick(g *model.Game, now time.Time, params Params) bool {
	if g.WarActive {
		return false
	}

	changed := false
	for _, p := range g.Players {
		if !p.IsOnline {
			continue
		}

		// Income catches up the full elapsed wall-clock delta.
		if delta := now.Sub(p.LastIncome).Seconds(); delta > 0 {
			nation := catalog.MustGet(p.Nation)
			p.Money += nation.BaseIncome * float64(p.CityLevel) * delta
			p.LastIncome = now
			changed = true
		}

		// Tax: collected at most once per interval, only when affordable.
		if now.Sub(p.LastTax) >= params.TaxInterval {
			tax := NextTax(p, params)
			if p.Money >= tax {
				p.Money -= tax
				p.TaxPaid += tax
				g.Treasury += tax
				g.TaxHistory = append(g.TaxHistory, model.TaxEntry{At: now, Amount: tax})
				p.LastTax = now
				changed = true
			}
		}
	}
	return changed
}

// Ticker runs the economy pass over every game on a fixed period.
type Ticker struct {
	store    *store.Store
	interval time.Duration
	params   Params
}

// NewTicker creates a ticker over the store.
func NewTicker(st *store.Store, interval time.Duration, params Params) *Ticker {
	return &Ticker{store: st, interval: interval, params: params}
}

// Run loops until the context is cancelled. Any change marks the store
// dirty so the persistence gateway picks it up.
func (t *Ticker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", t.interval).Msg("Economy ticker started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Economy ticker stopped")
			return
		case now := <-ticker.C:
			t.tick(now)
		}
	}
}

func (t *Ticker) tick(now time.Time) {
	changed := false
	for _, chatID := range t.store.ChatIDs() {
		err := t.store.WithGame(chatID, func(g *model.Game) error {
			if ApplyTick(g, now, t.params) {
				changed = true
			}
			return nil
		})
		if err != nil {
			log.Error().Err(err).Int64("chat_id", chatID).Msg("Economy tick failed")
		}
	}
	if changed {
		t.store.MarkDirty()
	}
}
