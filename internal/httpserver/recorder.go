// apps/go-server/internal/httpserver/recorder.go
//
// Engine-side events sink that persists battle outcomes.
// Wired as the engine's Events implementation, so it fires exactly once per
// logical event (the engine only emits from the store write that won).
// All writes are best effort: a failed history insert never fails the match.

package httpserver

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/vocamonster/apps/go-server/internal/battle"
	"github.com/robalobadob/vocamonster/apps/go-server/internal/results"
)

// Recorder persists finished battles and per-user stats.
type Recorder struct {
	db      *sql.DB
	results *results.Store
}

// NewRecorder constructs the engine's persistence sink.
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db, results: results.NewStore(db)}
}

func (rec *Recorder) AttackSubmitted(*battle.Turn) {}

func (rec *Recorder) DefenseResolved(*battle.Turn, battle.MatchDelta) {}

// MatchFinished records a result row per human participant and bumps their
// stats. Duplicate delivery is harmless: result inserts are INSERT OR
// IGNORE keyed on (user, match), and stats are only bumped when the result
// row was new.
func (rec *Recorder) MatchFinished(m *battle.Match) {
	ctx := context.Background()
	date := results.DateKey(time.Now())
	for _, p := range []string{m.PlayerA, m.PlayerB} {
		if p == battle.BotID {
			continue
		}
		won := m.Winner == p
		stake := 0
		if won {
			stake = m.BetStake
		}
		fresh, err := rec.results.Record(ctx, results.Result{
			UserID:   p,
			MatchID:  m.ID,
			Date:     date,
			Won:      won,
			Hearts:   m.Hearts(p),
			BetStake: stake,
		})
		if err != nil {
			log.Warn().Err(err).Str("matchId", m.ID).Str("user", p).Msg("record battle result")
			continue
		}
		if fresh {
			if err := rec.bumpStats(p, won); err != nil {
				log.Warn().Err(err).Str("user", p).Msg("bump stats")
			}
		}
	}
}

// bumpStats increments battles played; updates wins and streak based on
// result (within tx). Anonymous IDs have no users row; that is a quiet no-op.
func (rec *Recorder) bumpStats(userID string, won bool) error {
	tx, err := rec.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var bp, wins, streak int
	row := tx.QueryRow(`SELECT battles_played, wins, streak FROM users WHERE id=?`, userID)
	if err := row.Scan(&bp, &wins, &streak); err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return err
	}
	bp++
	if won {
		wins++
		streak++
	} else {
		streak = 0
	}
	if _, err := tx.Exec(`UPDATE users SET battles_played=?, wins=?, streak=? WHERE id=?`,
		bp, wins, streak, userID); err != nil {
		return err
	}
	return tx.Commit()
}
