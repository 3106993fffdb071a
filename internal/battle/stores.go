// apps/go-server/internal/battle/stores.go
//
// Store contracts the battle engine consumes.
// The engine owns no durable state: matches and turns live in an external,
// shared, last-writer-wins store that both participants' sessions mutate
// concurrently. Correctness therefore leans on the contracts below rather
// than on transactional isolation:
//   - at most one open turn per match (ErrOpenTurnExists on violation);
//   - a turn closes exactly once (ErrAlreadyClosed on the losing writer).
//
// Implementations live in internal/store (memory for tests/ephemeral play,
// SQLite for persistence).

package battle

import (
	"context"
	"errors"

	"github.com/robalobadob/vocamonster/apps/go-server/internal/words"
)

var (
	// ErrNotFound is returned when a match, turn, or word does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyClosed is returned by CloseTurn when the turn's answer is
	// already set. Callers must treat it as success-no-op, never as fatal:
	// two pollers racing to close the same turn is a normal trace.
	ErrAlreadyClosed = errors.New("turn already closed")

	// ErrOpenTurnExists is returned by CreateOpenTurn when the match
	// already has an unanswered turn.
	ErrOpenTurnExists = errors.New("open turn exists for match")
)

// MatchStore persists Match records.
type MatchStore interface {
	CreateMatch(ctx context.Context, m *Match) error
	GetMatch(ctx context.Context, id string) (*Match, error)
	// UpdateMatch overwrites the stored record. Last writer wins; the
	// engine re-reads and re-evaluates preconditions instead of retrying
	// blindly after a conflict. A finished match is terminal: writes
	// against one are quiet no-ops, so a committed surrender cannot be
	// overwritten back to active by a slower writer.
	UpdateMatch(ctx context.Context, m *Match) error
}

// TurnStore persists Turn records.
type TurnStore interface {
	// CreateOpenTurn appends an open (unanswered) turn. Fails with
	// ErrOpenTurnExists if the match already has one.
	CreateOpenTurn(ctx context.Context, t *Turn) error

	// CloseTurn sets answer/isCorrect/damage exactly once and returns the
	// closed turn. Fails with ErrAlreadyClosed if the answer is already
	// set; the closed record is never mutated again.
	CloseTurn(ctx context.Context, turnID, answer string, isCorrect bool, damage int) (*Turn, error)

	GetTurn(ctx context.Context, id string) (*Turn, error)

	// FindOpenTurn returns the match's single open turn, or ErrNotFound.
	FindOpenTurn(ctx context.Context, matchID string) (*Turn, error)

	// FindOpenTurnFor returns the open turn naming the participant as
	// defender, or ErrNotFound.
	FindOpenTurnFor(ctx context.Context, defenderID string) (*Turn, error)

	// LatestTurn returns the most recently created turn for the match
	// (open or closed), or ErrNotFound if the match has none. Pollers use
	// it to detect resolved defenses.
	LatestTurn(ctx context.Context, matchID string) (*Turn, error)
}

// Vocab is the read-only word provider the engine builds questions from.
// The words package is the production implementation; tests stub it.
type Vocab interface {
	Get(word string) (words.Entry, error)
	Pool() []words.Entry
}
