package results

import (
	"context"
	"database/sql"
)

// Result is one participant's outcome of a finished battle.
type Result struct {
	UserID   string `json:"userId"`
	MatchID  string `json:"matchId"`
	Date     string `json:"date"`
	Won      bool   `json:"won"`
	Hearts   int    `json:"hearts"`   // hearts left at the end
	BetStake int    `json:"betStake"` // stake paid to the winner, informational
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Record inserts a battle result row and reports whether it was new.
// Re-recording the same (user, match) pair is ignored, so duplicate
// observation of a finished match is harmless.
func (s *Store) Record(ctx context.Context, r Result) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO battle_results(user_id, match_id, date, won, hearts, bet_stake)
         VALUES(?,?,?,?,?,?)`, r.UserID, r.MatchID, r.Date, r.Won, r.Hearts, r.BetStake,
	)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

type LBRow struct {
	UserID string `json:"userId"`
	Wins   int    `json:"wins"`
	Stake  int    `json:"stake"`
}

// Leaderboard returns the day's top battlers by wins, then total stake won.
func (s *Store) Leaderboard(ctx context.Context, date string, limit int) ([]LBRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, COUNT(1) AS wins, COALESCE(SUM(bet_stake),0) AS stake
         FROM battle_results
         WHERE date=? AND won=1
         GROUP BY user_id
         ORDER BY wins DESC, stake DESC, user_id ASC
         LIMIT ?`, date, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LBRow
	for rows.Next() {
		var r LBRow
		if err := rows.Scan(&r.UserID, &r.Wins, &r.Stake); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
