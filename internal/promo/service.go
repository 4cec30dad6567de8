// Package promo implements the promocode service: admin CRUD over the
// global code table and the redemption path, which credits the reward
// to every game the redeeming user plays in.
package promo

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"nation-game-bot/internal/model"
	"nation-game-bot/internal/store"
)

// Redemption errors reported to the user.
var (
	ErrNotFound     = errors.New("промокод не найден или недействителен")
	ErrInactive     = errors.New("промокод деактивирован")
	ErrExhausted    = errors.New("промокод уже использован максимальное количество раз")
	ErrAlreadyUsed  = errors.New("вы уже использовали этот промокод")
	ErrNotInAnyGame = errors.New("вы должны быть в игре, чтобы использовать промокод")

	ErrExists        = errors.New("промокод уже существует")
	ErrInvalidReward = errors.New("сумма награды должна быть положительной")
	ErrInvalidUses   = errors.New("максимальное количество использований должно быть больше 0")
)

// Service manages promocodes over the store.
type Service struct {
	store *store.Store
}

// NewService creates a promocode service.
func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// Normalize canonicalizes a code: upper-cased, trimmed.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Create registers a new promocode.
func (s *Service) Create(code string, reward float64, maxUses int, createdBy int64) (*model.Promocode, error) {
	code = Normalize(code)
	if reward <= 0 {
		return nil, ErrInvalidReward
	}
	if maxUses <= 0 {
		return nil, ErrInvalidUses
	}

	var created *model.Promocode
	err := s.store.WithPromos(func(promos map[string]*model.Promocode) error {
		if _, ok := promos[code]; ok {
			return ErrExists
		}
		p := &model.Promocode{
			Code:      code,
			Reward:    reward,
			MaxUses:   maxUses,
			CreatedBy: createdBy,
			CreatedAt: time.Now(),
			IsActive:  true,
			UsersUsed: []int64{},
		}
		promos[code] = p
		created = p.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.store.MarkDirty()
	log.Info().Str("code", code).Float64("reward", reward).Int("max_uses", maxUses).Msg("Promocode created")
	return created, nil
}

// Delete removes a promocode entirely. In-flight redemptions are not
// retried.
func (s *Service) Delete(code string) error {
	code = Normalize(code)
	err := s.store.WithPromos(func(promos map[string]*model.Promocode) error {
		if _, ok := promos[code]; !ok {
			return ErrNotFound
		}
		delete(promos, code)
		return nil
	})
	if err != nil {
		return err
	}

	s.store.MarkDirty()
	log.Info().Str("code", code).Msg("Promocode deleted")
	return nil
}

// Toggle flips the active flag and returns the new value.
func (s *Service) Toggle(code string) (bool, error) {
	code = Normalize(code)
	var active bool
	err := s.store.WithPromos(func(promos map[string]*model.Promocode) error {
		p, ok := promos[code]
		if !ok {
			return ErrNotFound
		}
		p.IsActive = !p.IsActive
		active = p.IsActive
		return nil
	})
	if err != nil {
		return false, err
	}

	s.store.MarkDirty()
	return active, nil
}

// List returns every promocode, sorted by code.
func (s *Service) List() []*model.Promocode {
	var out []*model.Promocode
	_ = s.store.WithPromos(func(promos map[string]*model.Promocode) error {
		for _, p := range promos {
			out = append(out, p.Clone())
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// RedeemResult describes a successful redemption.
type RedeemResult struct {
	Code      string
	Reward    float64
	UsedCount int
	MaxUses   int
	Chats     []int64 // every game that received the reward
}

// Redeem applies the code for the user: one-time per user, global usage
// cap, reward credited to every game the user plays in.
func (s *Service) Redeem(userID int64, code string) (*RedeemResult, error) {
	code = Normalize(code)

	chats := s.store.GamesPlayedBy(userID)
	if len(chats) == 0 {
		return nil, ErrNotInAnyGame
	}

	var res *RedeemResult
	err := s.store.WithPromos(func(promos map[string]*model.Promocode) error {
		p, ok := promos[code]
		if !ok {
			return ErrNotFound
		}
		if !p.IsActive {
			return ErrInactive
		}
		if p.Exhausted() {
			return ErrExhausted
		}
		if p.UsedBy(userID) {
			return ErrAlreadyUsed
		}

		p.UsedCount++
		p.UsersUsed = append(p.UsersUsed, userID)
		res = &RedeemResult{
			Code:      code,
			Reward:    p.Reward,
			UsedCount: p.UsedCount,
			MaxUses:   p.MaxUses,
			Chats:     chats,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, chatID := range chats {
		if err := s.store.CreditPlayer(chatID, userID, res.Reward); err != nil {
			log.Error().Err(err).Int64("chat_id", chatID).Int64("user_id", userID).
				Str("code", code).Msg("Failed to credit promocode reward")
			continue
		}
		_ = s.store.WithGame(chatID, func(g *model.Game) error {
			if p, ok := g.Players[userID]; ok && !p.HasUsedPromocode(code) {
				p.UsedPromocodes = append(p.UsedPromocodes, code)
			}
			return nil
		})
	}

	s.store.MarkDirty()
	log.Info().Int64("user_id", userID).Str("code", code).
		Float64("reward", res.Reward).Int("games", len(chats)).Msg("Promocode redeemed")
	return res, nil
}

// Describe renders a short admin listing line.
func Describe(p *model.Promocode) string {
	status := "✅ Активен"
	if !p.IsActive {
		status = "❌ Деактивирован"
	}
	return fmt.Sprintf("*%s*\n• Награда: %d монет\n• Использовано: %d/%d\n• Статус: %s\n• Создан: %s",
		p.Code, int(p.Reward), p.UsedCount, p.MaxUses, status, p.CreatedAt.Format("02.01.2006"))
}
