// apps/go-server/internal/battle/engine.go
//
// Turn-resolution engine for VOCAMONSTER battles.
// Responsibilities:
//   - Open turns on attack submission (turn-holder + single-open-turn checks).
//   - Score defenses against the canonical answer and apply damage.
//   - Hand the turn to the winner of each exchange.
//   - Detect match termination (hearts at zero, surrender).
//   - Handle both timeout policies (idle attacker, idle defender).
//
// Notes:
//   - The engine owns no durable state; matches and turns live in the shared
//     stores and are re-read per operation. Two sessions may run the same
//     operation concurrently: the store's exactly-once close contract is what
//     keeps damage from being applied twice, so ErrAlreadyClosed from
//     CloseTurn is handled as a quiet no-op, never surfaced as a failure.
//   - Rule violations come back as the sentinel errors below; the HTTP layer
//     maps them to 4xx responses without mutating shared state.
package battle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Validation errors. All are rejected locally, before any store write.
var (
	ErrMatchFinished = errors.New("match already finished")
	ErrNotYourTurn   = errors.New("not the turn holder")
	ErrTurnOpen      = errors.New("a turn is already awaiting defense")
	ErrNotInMatch    = errors.New("participant not in match")
)

// Engine applies the battle rules on top of the shared stores.
// It is safe for concurrent use by multiple sessions.
type Engine struct {
	matches MatchStore
	turns   TurnStore
	vocab   Vocab
	events  Events
}

// NewEngine constructs an engine. A nil events sink is replaced with NopEvents.
func NewEngine(matches MatchStore, turns TurnStore, vocab Vocab, events Events) *Engine {
	if events == nil {
		events = NopEvents{}
	}
	return &Engine{matches: matches, turns: turns, vocab: vocab, events: events}
}

// NewMatch creates an active match between two participants.
// The challenger (playerA) holds the first turn.
func (e *Engine) NewMatch(ctx context.Context, playerA, playerB string, betStake int) (*Match, error) {
	if playerA == "" || playerB == "" || playerA == playerB {
		return nil, fmt.Errorf("invalid participants %q vs %q", playerA, playerB)
	}
	if betStake < 0 {
		betStake = 0
	}
	m := &Match{
		ID:         uuid.New().String(),
		PlayerA:    playerA,
		PlayerB:    playerB,
		HeartsA:    StartingHearts,
		HeartsB:    StartingHearts,
		TurnHolder: playerA,
		Status:     MatchActive,
		BetStake:   betStake,
		CreatedAt:  time.Now().UTC(),
	}
	if err := e.matches.CreateMatch(ctx, m); err != nil {
		return nil, fmt.Errorf("create match: %w", err)
	}
	log.Info().Str("matchId", m.ID).Str("playerA", playerA).Str("playerB", playerB).Msg("match created")
	return m, nil
}

// Match re-reads a match from the store.
func (e *Engine) Match(ctx context.Context, matchID string) (*Match, error) {
	return e.matches.GetMatch(ctx, matchID)
}

// Turn re-reads a turn from the store.
func (e *Engine) Turn(ctx context.Context, turnID string) (*Turn, error) {
	return e.turns.GetTurn(ctx, turnID)
}

// OpenTurn returns the match's open turn, or nil if none exists.
func (e *Engine) OpenTurn(ctx context.Context, matchID string) (*Turn, error) {
	t, err := e.turns.FindOpenTurn(ctx, matchID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return t, err
}

// LatestTurn returns the match's most recent turn (open or closed), or nil
// if the match has none yet.
func (e *Engine) LatestTurn(ctx context.Context, matchID string) (*Turn, error) {
	t, err := e.turns.LatestTurn(ctx, matchID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return t, err
}

// SubmitAttack opens a turn: the attacker picks a word and question type,
// and the opponent becomes the defender of the new open turn.
//
// Preconditions: the match is active, the attacker holds the turn, and no
// open turn exists. The turn holder is NOT changed here — it conceptually
// becomes "awaiting defense" until the defense resolves.
//
// If the word cannot back the requested question type (no synonyms or
// antonyms), the type is downgraded to "meaning" at creation time, so the
// stored turn always carries a scorable effective type.
func (e *Engine) SubmitAttack(ctx context.Context, matchID, attacker, word string, qt QuestionType) (*Turn, error) {
	m, err := e.matches.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m.Status == MatchFinished {
		return nil, ErrMatchFinished
	}
	if !m.HasPlayer(attacker) {
		return nil, ErrNotInMatch
	}
	if m.TurnHolder != attacker {
		return nil, ErrNotYourTurn
	}

	entry, err := e.vocab.Get(word)
	if err != nil {
		return nil, fmt.Errorf("attack word %q: %w", word, err)
	}

	t := &Turn{
		ID:           uuid.New().String(),
		MatchID:      m.ID,
		Attacker:     attacker,
		Defender:     m.Opponent(attacker),
		Word:         entry.Word,
		QuestionType: EffectiveType(entry, qt),
		CreatedAt:    time.Now().UTC(),
	}
	if err := e.turns.CreateOpenTurn(ctx, t); err != nil {
		if errors.Is(err, ErrOpenTurnExists) {
			return nil, ErrTurnOpen
		}
		return nil, fmt.Errorf("open turn: %w", err)
	}

	e.events.AttackSubmitted(t)
	return t, nil
}

// SubmitDefense scores and closes an open turn, then applies the outcome
// to the match:
//   - damage 0 for a correct answer, 1 for an incorrect one;
//   - hearts are decremented for the defender, floored at zero;
//   - a correct defense hands the turn to the defender (earned
//     counter-attack); an incorrect one leaves it with the attacker;
//   - a defender at zero hearts finishes the match with the attacker as
//     winner.
//
// A defense against an already-closed turn is a no-op: the current turn and
// match are returned unchanged with a nil delta, and no events fire. This is
// what makes the operation safe when two pollers resolve the same turn.
func (e *Engine) SubmitDefense(ctx context.Context, turnID, answer string) (*Turn, *Match, *MatchDelta, error) {
	t, err := e.turns.GetTurn(ctx, turnID)
	if err != nil {
		return nil, nil, nil, err
	}
	m, err := e.matches.GetMatch(ctx, t.MatchID)
	if err != nil {
		return nil, nil, nil, err
	}
	if !t.Open() || m.Status == MatchFinished {
		return t, m, nil, nil
	}

	entry, err := e.vocab.Get(t.Word)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("turn word %q: %w", t.Word, err)
	}
	canonical := CanonicalAnswer(entry, t.QuestionType)
	correct := answersEqual(answer, canonical)
	damage := 1
	if correct {
		damage = 0
	}

	closed, err := e.turns.CloseTurn(ctx, t.ID, answer, correct, damage)
	if errors.Is(err, ErrAlreadyClosed) {
		// Another session's close won the race; its writer applied the
		// damage. Re-read and report the committed state.
		closed, err = e.turns.GetTurn(ctx, t.ID)
		if err != nil {
			return nil, nil, nil, err
		}
		m, err = e.matches.GetMatch(ctx, t.MatchID)
		return closed, m, nil, err
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("close turn: %w", err)
	}

	m.setHearts(t.Defender, m.Hearts(t.Defender)-damage)
	if correct {
		m.TurnHolder = t.Defender
	} else {
		m.TurnHolder = t.Attacker
	}
	if m.Hearts(t.Defender) == 0 {
		m.Status = MatchFinished
		m.Winner = t.Attacker
	}
	if err := e.matches.UpdateMatch(ctx, m); err != nil {
		return nil, nil, nil, fmt.Errorf("apply defense: %w", err)
	}

	delta := &MatchDelta{
		Defender:   t.Defender,
		Damage:     damage,
		HeartsLeft: m.Hearts(t.Defender),
		TurnHolder: m.TurnHolder,
		Finished:   m.Status == MatchFinished,
		Winner:     m.Winner,
	}
	e.events.DefenseResolved(closed, *delta)
	if m.Status == MatchFinished {
		log.Info().Str("matchId", m.ID).Str("winner", m.Winner).Msg("match finished")
		e.events.MatchFinished(m)
	}
	return closed, m, delta, nil
}

// Surrender finishes the match immediately with the other participant as
// winner, regardless of hearts or whose turn it is. Surrendering an
// already-finished match is a no-op.
func (e *Engine) Surrender(ctx context.Context, matchID, participant string) (*Match, error) {
	m, err := e.matches.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !m.HasPlayer(participant) {
		return nil, ErrNotInMatch
	}
	if m.Status == MatchFinished {
		return m, nil
	}
	m.Status = MatchFinished
	m.Winner = m.Opponent(participant)
	if err := e.matches.UpdateMatch(ctx, m); err != nil {
		return nil, fmt.Errorf("surrender: %w", err)
	}
	log.Info().Str("matchId", m.ID).Str("surrendered", participant).Msg("match surrendered")
	e.events.MatchFinished(m)
	return m, nil
}

// TimeoutAttack handles an idle turn holder: the turn passes to the other
// participant with no damage and no turn record. No-op if the match is
// finished, the holder moved on, or a turn is already open.
func (e *Engine) TimeoutAttack(ctx context.Context, matchID, holder string) (*Match, error) {
	m, err := e.matches.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m.Status == MatchFinished || m.TurnHolder != holder {
		return m, nil
	}
	if open, err := e.OpenTurn(ctx, matchID); err != nil {
		return nil, err
	} else if open != nil {
		return m, nil
	}
	m.TurnHolder = m.Opponent(holder)
	if err := e.matches.UpdateMatch(ctx, m); err != nil {
		return nil, fmt.Errorf("pass turn: %w", err)
	}
	log.Debug().Str("matchId", m.ID).Str("idle", holder).Msg("attacker timed out, turn passed")
	return m, nil
}

// TimeoutDefense handles an unanswered open turn: it resolves exactly like
// an incorrect defense with the timed-out sentinel answer, so damage is
// applied and the attacker keeps the turn. Idempotent via SubmitDefense.
func (e *Engine) TimeoutDefense(ctx context.Context, turnID string) (*Turn, *Match, *MatchDelta, error) {
	return e.SubmitDefense(ctx, turnID, TimedOutAnswer)
}

// answersEqual compares a submitted answer with the canonical one.
// Comparison ignores case and surrounding whitespace; the timed-out
// sentinel never matches.
func answersEqual(submitted, canonical string) bool {
	submitted = strings.TrimSpace(submitted)
	if submitted == TimedOutAnswer || canonical == "" {
		return false
	}
	return strings.EqualFold(submitted, strings.TrimSpace(canonical))
}
