// Package war implements the per-game war state machine:
// Idle -> Preparing -> Active -> Idle. A declaration opens a timed
// preparation window, combat runs on its own timer and resolution
// transfers loot from the loser to the winner. Phase timers revalidate
// state under the chat's lock before acting; any mismatch aborts the
// war back to idle without touching stats.
package war

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"nation-game-bot/internal/catalog"
	"nation-game-bot/internal/model"
	"nation-game-bot/internal/notify"
	"nation-game-bot/internal/store"
)

// Validation errors for war declarations.
var (
	ErrNotStarted         = errors.New("война сейчас недоступна")
	ErrWarInProgress      = errors.New("война уже идет или готовится")
	ErrNotEnoughPlayers   = errors.New("недостаточно игроков для войны")
	ErrSelfTarget         = errors.New("нельзя воевать с самим собой")
	ErrParticipantMissing = errors.New("игрок не найден")
)

// CooldownError reports how long until the next war may be declared.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("до следующей войны: %d сек", int(e.Remaining.Seconds()))
}

// Config holds the war timing and loot parameters.
type Config struct {
	Preparation time.Duration // window between declaration and combat
	Combat      time.Duration // combat duration
	Cooldown    time.Duration // minimum pause between wars per game
	LootRate    float64       // share of loser's money transferred
	MinLoot     float64       // loot floor
	UpsetChance float64       // chance the weaker side is declared ahead
}

// Source supplies the combat randomness. Tests pin it.
type Source interface {
	// Jitter returns a multiplicative power adjustment in [0.95, 1.05].
	Jitter() float64
	// Upset reports whether the underdog roll fires.
	Upset() bool
}

type randSource struct {
	mu          sync.Mutex
	rnd         *rand.Rand
	upsetChance float64
}

func (s *randSource) Jitter() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return 0.95 + s.rnd.Float64()*0.1
}

func (s *randSource) Upset() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Float64() < s.upsetChance
}

// Saver persists the full store synchronously. Resolution writes the
// snapshot before any outward notification, so durability precedes the
// user-visible announcement.
type Saver interface {
	SaveNow(ctx context.Context) error
}

// Engine drives the war lifecycle for every game in the store.
type Engine struct {
	store    *store.Store
	notifier notify.Notifier
	saver    Saver
	cfg      Config
	src      Source

	ctx context.Context
	wg  sync.WaitGroup
}

// New creates a war engine. Start must be called before declarations.
func New(st *store.Store, notifier notify.Notifier, saver Saver, cfg Config) *Engine {
	return &Engine{
		store:    st,
		notifier: notifier,
		saver:    saver,
		cfg:      cfg,
		src:      &randSource{rnd: rand.New(rand.NewSource(time.Now().UnixNano())), upsetChance: cfg.UpsetChance},
	}
}

// SetSource replaces the randomness source. For tests.
func (e *Engine) SetSource(src Source) {
	e.src = src
}

// Start binds the engine to a lifecycle context and re-arms wars that
// were in flight when the previous process stopped. Preparing and
// Active wars resume against their persisted deadlines; deadlines
// already in the past fire immediately.
func (e *Engine) Start(ctx context.Context) {
	e.ctx = ctx
	for _, chatID := range e.store.ChatIDs() {
		e.resume(chatID)
	}
}

// Wait blocks until every in-flight phase timer goroutine has exited.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) resume(chatID int64) {
	var phase model.WarPhase
	var deadline time.Time

	err := e.store.WithGame(chatID, func(g *model.Game) error {
		phase = g.Phase()
		switch phase {
		case model.WarPreparing:
			if g.WarPreparationEnd == nil {
				g.ClearWar()
				phase = model.WarIdle
				return nil
			}
			deadline = *g.WarPreparationEnd
		case model.WarActive:
			if g.WarStartTime == nil {
				g.ClearWar()
				phase = model.WarIdle
				return nil
			}
			deadline = g.WarStartTime.Add(e.cfg.Combat)
		}
		return nil
	})
	if err != nil {
		return
	}

	switch phase {
	case model.WarPreparing:
		log.Info().Int64("chat_id", chatID).Time("deadline", deadline).Msg("Resuming war preparation")
		e.scheduleAt(chatID, deadline, e.beginCombat)
	case model.WarActive:
		log.Info().Int64("chat_id", chatID).Time("deadline", deadline).Msg("Resuming active war")
		e.scheduleAt(chatID, deadline, e.resolve)
	}
}

// Declaration describes a successfully declared war, with player
// copies for message rendering.
type Declaration struct {
	Attacker       model.Player
	Target         model.Player
	PreparationEnd time.Time
}

// Declare opens the preparation phase of a new war. Preconditions: no
// non-idle war in this game, cooldown satisfied, at least two players,
// attacker and a distinct target both present.
func (e *Engine) Declare(chatID, attackerID, targetID int64) (*Declaration, error) {
	// Timers need the lifecycle context bound by Start.
	if e.ctx == nil {
		return nil, ErrNotStarted
	}
	if attackerID == targetID {
		return nil, ErrSelfTarget
	}

	var decl *Declaration
	err := e.store.WithGame(chatID, func(g *model.Game) error {
		if g.Phase() != model.WarIdle {
			return ErrWarInProgress
		}
		now := time.Now()
		if g.LastWar != nil {
			if elapsed := now.Sub(*g.LastWar); elapsed < e.cfg.Cooldown {
				return &CooldownError{Remaining: e.cfg.Cooldown - elapsed}
			}
		}
		if len(g.Players) < 2 {
			return ErrNotEnoughPlayers
		}
		attacker, ok := g.Players[attackerID]
		if !ok {
			return ErrParticipantMissing
		}
		target, ok := g.Players[targetID]
		if !ok {
			return ErrParticipantMissing
		}

		end := now.Add(e.cfg.Preparation)
		g.WarPreparation = true
		g.WarParticipants = []int64{attackerID, targetID}
		g.WarPreparationEnd = &end

		decl = &Declaration{Attacker: *attacker, Target: *target, PreparationEnd: end}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.store.MarkDirty()
	log.Info().
		Int64("chat_id", chatID).
		Int64("attacker_id", attackerID).
		Int64("target_id", targetID).
		Msg("War declared")

	e.scheduleAt(chatID, decl.PreparationEnd, e.beginCombat)
	return decl, nil
}

// scheduleAt runs fn(chatID) once the deadline passes. Deadlines in the
// past fire immediately. The goroutine exits without firing when the
// engine context is cancelled; on restart the war is re-armed from the
// persisted deadline instead.
func (e *Engine) scheduleAt(chatID int64, at time.Time, fn func(chatID int64)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Int64("chat_id", chatID).Msg("War timer panicked, aborting war")
				e.abortToIdle(chatID)
			}
		}()

		d := time.Until(at)
		if d < 0 {
			d = 0
		}
		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case <-e.ctx.Done():
			return
		case <-timer.C:
			fn(chatID)
		}
	}()
}

// abortToIdle forces the game's war fields back to idle. Used when a
// timer hits unexpected state or panics; other games keep running.
func (e *Engine) abortToIdle(chatID int64) {
	_ = e.store.WithGame(chatID, func(g *model.Game) error {
		g.ClearWar()
		return nil
	})
	e.store.MarkDirty()
}

// beginCombat moves Preparing -> Active when the preparation timer
// fires. The phase and both participants are revalidated; any mismatch
// aborts to idle with no combat.
func (e *Engine) beginCombat(chatID int64) {
	var attacker, target model.Player
	ok := false

	err := e.store.WithGame(chatID, func(g *model.Game) error {
		if g.Phase() != model.WarPreparing || len(g.WarParticipants) != 2 {
			g.ClearWar()
			return nil
		}
		a, aOK := g.Players[g.WarParticipants[0]]
		t, tOK := g.Players[g.WarParticipants[1]]
		if !aOK || !tOK {
			g.ClearWar()
			return nil
		}

		now := time.Now()
		g.WarPreparation = false
		g.WarActive = true
		g.WarStartTime = &now

		attacker, target = *a, *t
		ok = true
		return nil
	})
	if err != nil {
		return
	}

	e.store.MarkDirty()
	if !ok {
		log.Warn().Int64("chat_id", chatID).Msg("Preparation timer fired on stale war state, aborted")
		return
	}

	log.Info().Int64("chat_id", chatID).Msg("War combat started")
	e.announceCombatStart(chatID, attacker, target)
	e.scheduleAt(chatID, time.Now().Add(e.cfg.Combat), e.resolve)
}

// Result describes a resolved war.
type Result struct {
	Winner        model.Player
	Loser         model.Player
	AttackerPower float64
	TargetPower   float64
	Loot          float64
}

// resolve moves Active -> Idle when the combat timer fires: computes
// adjusted powers, transfers loot, updates stats and clears the war.
// Persistence happens before any notification goes out.
func (e *Engine) resolve(chatID int64) {
	var res *Result
	var attackerName, targetName string

	err := e.store.WithGame(chatID, func(g *model.Game) error {
		if g.Phase() != model.WarActive || len(g.WarParticipants) != 2 {
			g.ClearWar()
			return nil
		}
		attacker, aOK := g.Players[g.WarParticipants[0]]
		target, tOK := g.Players[g.WarParticipants[1]]
		if !aOK || !tOK {
			g.ClearWar()
			return nil
		}
		attackerName, targetName = attacker.Username, target.Username

		attackerPower := attacker.Power() * e.src.Jitter()
		targetPower := target.Power() * e.src.Jitter()

		// Underdog upset: the nominally weaker side is declared ahead
		// regardless of computed power.
		if e.src.Upset() {
			attackerPower, targetPower = targetPower, attackerPower
		}

		winner, loser := target, attacker
		if attackerPower > targetPower {
			winner, loser = attacker, target
		}

		loot := loser.Money * e.cfg.LootRate
		if loot < e.cfg.MinLoot {
			// Floor applies even when the loser cannot cover it; the
			// loser's balance may go negative.
			loot = e.cfg.MinLoot
		}
		winner.Money += loot
		loser.Money -= loot
		winner.Wins++
		loser.Losses++

		now := time.Now()
		g.ClearWar()
		g.LastWar = &now

		res = &Result{
			Winner:        *winner,
			Loser:         *loser,
			AttackerPower: attackerPower,
			TargetPower:   targetPower,
			Loot:          loot,
		}
		return nil
	})
	if err != nil {
		return
	}

	if res == nil {
		e.store.MarkDirty()
		log.Warn().Int64("chat_id", chatID).Msg("Combat timer fired on stale war state, aborted")
		return
	}

	// Durability precedes the user-visible announcement.
	if err := e.saver.SaveNow(context.Background()); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("Snapshot after war resolution failed")
	}

	log.Info().
		Int64("chat_id", chatID).
		Str("winner", res.Winner.Username).
		Str("loser", res.Loser.Username).
		Float64("loot", res.Loot).
		Msg("War resolved")

	e.announceResult(chatID, res, attackerName, targetName)
}

func (e *Engine) announceCombatStart(chatID int64, attacker, target model.Player) {
	attackerNation := catalog.MustGet(attacker.Nation)
	targetNation := catalog.MustGet(target.Nation)

	text := fmt.Sprintf(
		"⚔️ *ВОЙНА НАЧАЛАСЬ!* ⚔️\n\n"+
			"*Атакующий:* %s %s\n"+
			"*Защитник:* %s %s\n\n"+
			"⚔️ *Текущие силы:*\n"+
			"• %s: армия %d\n"+
			"• %s: армия %d\n\n"+
			"⏳ *Бой продлится %d секунд...*",
		attackerNation.Emoji, attacker.Username,
		targetNation.Emoji, target.Username,
		attacker.Username, attacker.ArmyLevel,
		target.Username, target.ArmyLevel,
		int(e.cfg.Combat.Seconds()),
	)
	if err := e.notifier.Announce(chatID, text); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to announce combat start")
	}

	dm := fmt.Sprintf(
		"⚔️ *ВОЙНА НАЧАЛАСЬ!*\n\n"+
			"Бой между %s и %s начался!\n"+
			"⏳ *Длительность:* %d секунд\n"+
			"💰 *Награда:* %.0f%% казны проигравшего\n\n"+
			"Удачи в бою!",
		attacker.Username, target.Username,
		int(e.cfg.Combat.Seconds()), e.cfg.LootRate*100,
	)
	e.notifyParticipant(attacker, dm)
	e.notifyParticipant(target, dm)
}

func (e *Engine) announceResult(chatID int64, res *Result, attackerName, targetName string) {
	winnerNation := catalog.MustGet(res.Winner.Nation)
	loserNation := catalog.MustGet(res.Loser.Nation)

	text := fmt.Sprintf(
		"🎉 *ВОЙНА ОКОНЧЕНА!* 🎉\n\n"+
			"🏆 *ПОБЕДИТЕЛЬ:* %s %s\n"+
			"💀 *ПРОИГРАВШИЙ:* %s %s\n\n"+
			"⚔️ *Сила атаки:*\n"+
			"• %s: %.1f\n"+
			"• %s: %.1f\n\n"+
			"💰 *Добыча:* %d монет\n"+
			"🏆 *Статистика обновлена:*\n"+
			"• %s: %d/%d\n"+
			"• %s: %d/%d",
		winnerNation.Emoji, res.Winner.Username,
		loserNation.Emoji, res.Loser.Username,
		attackerName, res.AttackerPower,
		targetName, res.TargetPower,
		int(res.Loot),
		res.Winner.Username, res.Winner.Wins, res.Winner.Losses,
		res.Loser.Username, res.Loser.Wins, res.Loser.Losses,
	)
	if err := e.notifier.Announce(chatID, text); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to announce war result")
	}

	winnerDM := fmt.Sprintf(
		"🎉 *ВЫ ПОБЕДИЛИ В ВОЙНЕ!*\n\n"+
			"Вы победили %s %s\n"+
			"💰 *Добыча:* %d монет\n"+
			"🏆 *Ваша статистика:* %d/%d\n\n"+
			"Поздравляем с победой!",
		loserNation.Emoji, res.Loser.Username,
		int(res.Loot), res.Winner.Wins, res.Winner.Losses,
	)
	loserDM := fmt.Sprintf(
		"😔 *ВЫ ПРОИГРАЛИ В ВОЙНЕ*\n\n"+
			"Вы проиграли %s %s\n"+
			"💰 *Потеряно:* %d монет\n"+
			"🏆 *Ваша статистика:* %d/%d\n\n"+
			"Не отчаивайтесь! Улучшайте армию и попробуйте снова!",
		winnerNation.Emoji, res.Winner.Username,
		int(res.Loot), res.Loser.Wins, res.Loser.Losses,
	)
	e.notifyParticipant(res.Winner, winnerDM)
	e.notifyParticipant(res.Loser, loserDM)
}

// notifyParticipant sends a DM when the player opted in. Delivery
// failures are logged and swallowed.
func (e *Engine) notifyParticipant(p model.Player, text string) {
	if !p.DMNotification {
		return
	}
	if err := e.notifier.NotifyDirect(p.UserID, text); err != nil {
		log.Error().Err(err).Int64("user_id", p.UserID).Msg("Failed to send war notification")
	}
}
