// apps/go-server/internal/store/sqlite.go
//
// SQLite implementation of the battle Match/Turn stores.
// This is the shared, durable store both participants' sessions poll and
// mutate; it provides no locking beyond per-statement atomicity, so the
// engine-facing contracts are enforced in SQL:
//   - single open turn: checked inside the insert transaction;
//   - exactly-once close: UPDATE guarded by `answer IS NULL`, with the
//     rows-affected count deciding between success and ErrAlreadyClosed.
//
// Schema lives in ./sql migrations (see db.go at the module root).

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/robalobadob/vocamonster/apps/go-server/internal/battle"
)

// SQLite persists matches and turns in the server database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite wraps an opened (and migrated) database handle.
func NewSQLite(db *sql.DB) *SQLite { return &SQLite{db: db} }

// CreateMatch inserts a new match row.
func (s *SQLite) CreateMatch(ctx context.Context, m *battle.Match) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO matches
            (id, player_a, player_b, hearts_a, hearts_b, turn_holder, status, winner, bet_stake, created_at)
        VALUES (?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.PlayerA, m.PlayerB, m.HeartsA, m.HeartsB, m.TurnHolder,
		string(m.Status), m.Winner, m.BetStake, m.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// GetMatch loads a match row, or battle.ErrNotFound.
func (s *SQLite) GetMatch(ctx context.Context, id string) (*battle.Match, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, player_a, player_b, hearts_a, hearts_b, turn_holder, status, winner, bet_stake, created_at
        FROM matches WHERE id=?`, id)
	return scanMatch(row)
}

// UpdateMatch overwrites the mutable columns (last writer wins). The status
// guard makes a finished row immutable: a racing surrender's finish can never
// be overwritten back to active by a slower full-record write, which would
// otherwise also clear the winner.
func (s *SQLite) UpdateMatch(ctx context.Context, m *battle.Match) error {
	res, err := s.db.ExecContext(ctx, `
        UPDATE matches SET hearts_a=?, hearts_b=?, turn_holder=?, status=?, winner=?
        WHERE id=? AND status=?`,
		m.HeartsA, m.HeartsB, m.TurnHolder, string(m.Status), m.Winner, m.ID,
		string(battle.MatchActive),
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Either the match is missing or it already finished; only the
		// former is an error.
		if _, err := s.GetMatch(ctx, m.ID); err != nil {
			return err
		}
	}
	return nil
}

// CreateOpenTurn appends an open turn inside a transaction that re-checks
// the single-open-turn invariant.
func (s *SQLite) CreateOpenTurn(ctx context.Context, t *battle.Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var openCount int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM turns WHERE match_id=? AND answer IS NULL`, t.MatchID,
	).Scan(&openCount); err != nil {
		return err
	}
	if openCount > 0 {
		return battle.ErrOpenTurnExists
	}

	if _, err := tx.ExecContext(ctx, `
        INSERT INTO turns
            (id, match_id, attacker, defender, word, question_type, answer, is_correct, damage, created_at)
        VALUES (?,?,?,?,?,?,NULL,NULL,0,?)`,
		t.ID, t.MatchID, t.Attacker, t.Defender, t.Word, string(t.QuestionType),
		t.CreatedAt.UTC().Format(time.RFC3339),
	); err != nil {
		return err
	}
	return tx.Commit()
}

// CloseTurn sets the answer exactly once. The `answer IS NULL` guard makes
// the racing writer's update a no-op, reported as battle.ErrAlreadyClosed.
func (s *SQLite) CloseTurn(ctx context.Context, turnID, answer string, isCorrect bool, damage int) (*battle.Turn, error) {
	res, err := s.db.ExecContext(ctx, `
        UPDATE turns SET answer=?, is_correct=?, damage=?, answered_at=?
        WHERE id=? AND answer IS NULL`,
		answer, isCorrect, damage, time.Now().UTC().Format(time.RFC3339), turnID,
	)
	if err != nil {
		return nil, err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		if _, err := s.GetTurn(ctx, turnID); err != nil {
			return nil, err
		}
		return nil, battle.ErrAlreadyClosed
	}
	return s.GetTurn(ctx, turnID)
}

// GetTurn loads a turn row, or battle.ErrNotFound.
func (s *SQLite) GetTurn(ctx context.Context, id string) (*battle.Turn, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, match_id, attacker, defender, word, question_type, answer, is_correct, damage, created_at, answered_at
        FROM turns WHERE id=?`, id)
	return scanTurn(row)
}

// FindOpenTurn returns the match's open turn, or battle.ErrNotFound.
func (s *SQLite) FindOpenTurn(ctx context.Context, matchID string) (*battle.Turn, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, match_id, attacker, defender, word, question_type, answer, is_correct, damage, created_at, answered_at
        FROM turns WHERE match_id=? AND answer IS NULL`, matchID)
	return scanTurn(row)
}

// FindOpenTurnFor returns the open turn naming the participant as defender,
// or battle.ErrNotFound.
func (s *SQLite) FindOpenTurnFor(ctx context.Context, defenderID string) (*battle.Turn, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, match_id, attacker, defender, word, question_type, answer, is_correct, damage, created_at, answered_at
        FROM turns WHERE defender=? AND answer IS NULL
        ORDER BY created_at ASC LIMIT 1`, defenderID)
	return scanTurn(row)
}

// LatestTurn returns the most recently created turn for the match.
func (s *SQLite) LatestTurn(ctx context.Context, matchID string) (*battle.Turn, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, match_id, attacker, defender, word, question_type, answer, is_correct, damage, created_at, answered_at
        FROM turns WHERE match_id=?
        ORDER BY created_at DESC, rowid DESC LIMIT 1`, matchID)
	return scanTurn(row)
}

/* ------------------------------ row scanning ----------------------------- */

func scanMatch(row *sql.Row) (*battle.Match, error) {
	var m battle.Match
	var status, created string
	err := row.Scan(&m.ID, &m.PlayerA, &m.PlayerB, &m.HeartsA, &m.HeartsB,
		&m.TurnHolder, &status, &m.Winner, &m.BetStake, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, battle.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan match: %w", err)
	}
	m.Status = battle.MatchStatus(status)
	m.CreatedAt = mustParse(created)
	return &m, nil
}

func scanTurn(row *sql.Row) (*battle.Turn, error) {
	var t battle.Turn
	var qt, created string
	var answer sql.NullString
	var correct sql.NullBool
	var answered sql.NullString
	err := row.Scan(&t.ID, &t.MatchID, &t.Attacker, &t.Defender, &t.Word,
		&qt, &answer, &correct, &t.Damage, &created, &answered)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, battle.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan turn: %w", err)
	}
	t.QuestionType = battle.QuestionType(qt)
	t.CreatedAt = mustParse(created)
	if answer.Valid {
		t.Answer = &answer.String
	}
	if correct.Valid {
		t.IsCorrect = &correct.Bool
	}
	if answered.Valid {
		at := mustParse(answered.String)
		t.AnsweredAt = &at
	}
	return &t, nil
}

// mustParse parses RFC3339 timestamps; on error returns zero time.
func mustParse(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}
