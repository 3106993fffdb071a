// apps/go-server/internal/battle/types.go
//
// Core type definitions for the VOCAMONSTER battle engine.
// Defines:
//   - QuestionType: what the defender is asked about a word (meaning/synonym/antonym).
//   - Match: shared state of one battle between two participants.
//   - Turn: one attack/defense exchange within a match.

package battle

import "time"

// QuestionType identifies what a turn asks the defender about its word.
// Possible values:
//   - "meaning":  pick the word's meaning.
//   - "synonym":  pick a synonym of the word.
//   - "antonym":  pick an antonym of the word.
type QuestionType string

const (
	QuestionMeaning QuestionType = "meaning"
	QuestionSynonym QuestionType = "synonym"
	QuestionAntonym QuestionType = "antonym"
)

// MatchStatus is the lifecycle state of a match.
type MatchStatus string

const (
	MatchActive   MatchStatus = "active"
	MatchFinished MatchStatus = "finished"
)

const (
	// StartingHearts is the health both sides begin with.
	StartingHearts = 5

	// BotID is the reserved participant identifier for the scripted opponent.
	BotID = "vocamonster_bot"

	// TimedOutAnswer is the sentinel submitted when a defender's countdown
	// expires. It never matches a canonical answer, so it always scores as
	// an incorrect defense.
	TimedOutAnswer = "__timed_out__"
)

// Match holds the shared state of a single battle session.
// Both participants' sessions read and mutate this record through a
// MatchStore; nothing here is cached authoritatively on the client side.
type Match struct {
	ID         string      `json:"id"`
	PlayerA    string      `json:"playerA"`
	PlayerB    string      `json:"playerB"`
	HeartsA    int         `json:"heartsA"`
	HeartsB    int         `json:"heartsB"`
	TurnHolder string      `json:"turnHolder"` // who may currently attack
	Status     MatchStatus `json:"status"`
	Winner     string      `json:"winner,omitempty"` // set only when finished
	BetStake   int         `json:"betStake"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// HasPlayer reports whether id is one of the two participants.
func (m *Match) HasPlayer(id string) bool {
	return id == m.PlayerA || id == m.PlayerB
}

// Opponent returns the other participant's identifier.
// Returns "" if id is not in the match.
func (m *Match) Opponent(id string) string {
	switch id {
	case m.PlayerA:
		return m.PlayerB
	case m.PlayerB:
		return m.PlayerA
	}
	return ""
}

// Hearts returns the remaining hearts for the given participant.
func (m *Match) Hearts(id string) int {
	if id == m.PlayerA {
		return m.HeartsA
	}
	return m.HeartsB
}

// setHearts updates the heart counter for the given participant,
// floored at zero.
func (m *Match) setHearts(id string, hearts int) {
	if hearts < 0 {
		hearts = 0
	}
	if id == m.PlayerA {
		m.HeartsA = hearts
	} else {
		m.HeartsB = hearts
	}
}

// IsBotMatch reports whether one of the slots is the scripted bot.
func (m *Match) IsBotMatch() bool {
	return m.PlayerA == BotID || m.PlayerB == BotID
}

// Turn is one attack/defense exchange. It is created open (Answer nil)
// by the attacker's submission and closed exactly once by the defender's
// (or bot's) answer. A closed turn is never mutated again.
type Turn struct {
	ID           string       `json:"id"`
	MatchID      string       `json:"matchId"`
	Attacker     string       `json:"attacker"`
	Defender     string       `json:"defender"`
	Word         string       `json:"word"`
	QuestionType QuestionType `json:"questionType"` // effective type, post-fallback
	Answer       *string      `json:"answer,omitempty"`
	IsCorrect    *bool        `json:"isCorrect,omitempty"`
	Damage       int          `json:"damage"`
	CreatedAt    time.Time    `json:"createdAt"`
	AnsweredAt   *time.Time   `json:"answeredAt,omitempty"`
}

// Open reports whether the turn is still awaiting a defense.
func (t *Turn) Open() bool { return t.Answer == nil }

// MatchDelta summarizes what one defense resolution did to the match.
// Delivered alongside the closed turn so a subscriber can update its
// view without re-reading the store.
type MatchDelta struct {
	Defender   string `json:"defender"`
	Damage     int    `json:"damage"`
	HeartsLeft int    `json:"heartsLeft"`
	TurnHolder string `json:"turnHolder"`
	Finished   bool   `json:"finished"`
	Winner     string `json:"winner,omitempty"`
}
