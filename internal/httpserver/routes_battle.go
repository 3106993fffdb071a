// apps/go-server/internal/httpserver/routes_battle.go
//
// HTTP routes for VOCAMONSTER battles.
// Exposes endpoints under /battle:
//   - POST /battle/new         → create a match (vs bot or a named opponent)
//   - GET  /battle/{id}        → current match + turn view for polling clients
//   - GET  /battle/{id}/question → choices for the open turn (defender only)
//   - POST /battle/attack      → open a turn
//   - POST /battle/defend      → answer the open turn
//   - POST /battle/timeout     → report this session's expired countdown
//   - POST /battle/surrender   → concede the match
//   - GET  /battle/leaderboard → top battlers for a date
//
// Remote clients poll GET /battle/{id} on their own interval; the engine's
// idempotent-close contract keeps racing submissions safe. For bot matches,
// the creating server session runs the bot-driving poller in a goroutine.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/vocamonster/apps/go-server/internal/battle"
	"github.com/robalobadob/vocamonster/apps/go-server/internal/results"
	"github.com/robalobadob/vocamonster/apps/go-server/internal/words"
)

// battleServer wraps dependencies for /battle endpoints.
type battleServer struct {
	srv     *Server
	engine  *battle.Engine
	results *results.Store
	runners map[string]context.CancelFunc // bot pollers keyed by matchID
	mu      sync.Mutex                    // guards runners
}

// mountBattle registers all /battle routes.
func (s *Server) mountBattle(r chi.Router) {
	bb := &battleServer{
		srv:     s,
		engine:  s.engine,
		results: results.NewStore(s.db),
		runners: make(map[string]context.CancelFunc),
	}
	s.battles = bb
	r.Route("/battle", func(r chi.Router) {
		r.Post("/new", bb.handleNew)
		r.Get("/leaderboard", bb.handleLeaderboard)
		r.Get("/{id}", bb.handleState)
		r.Get("/{id}/question", bb.handleQuestion)
		r.Post("/attack", bb.handleAttack)
		r.Post("/defend", bb.handleDefend)
		r.Post("/timeout", bb.handleTimeout)
		r.Post("/surrender", bb.handleSurrender)
	})
}

// -----------------------------------------------------------------------------
// /battle/new

type newBattleReq struct {
	Opponent string `json:"opponent"` // "" or "bot" → scripted opponent
	BetStake int    `json:"betStake"`
}

type newBattleRes struct {
	MatchID    string `json:"matchId"`
	Opponent   string `json:"opponent"`
	Hearts     int    `json:"hearts"`
	TurnHolder string `json:"turnHolder"`
}

// handleNew creates a match. The creator attacks first. A bot opponent gets
// a server-side poller goroutine that plays its turns.
func (bb *battleServer) handleNew(w http.ResponseWriter, r *http.Request) {
	uid, ok := bb.srv.userIDWithAnon(w, r)
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req newBattleReq
	_ = json.NewDecoder(r.Body).Decode(&req)

	opponent := strings.TrimSpace(req.Opponent)
	if opponent == "" || opponent == "bot" {
		opponent = battle.BotID
	}
	if opponent == uid {
		http.Error(w, `{"error":"cannot battle yourself"}`, http.StatusBadRequest)
		return
	}

	m, err := bb.engine.NewMatch(r.Context(), uid, opponent, req.BetStake)
	if err != nil {
		log.Error().Err(err).Msg("create match")
		http.Error(w, `{"error":"create_failed"}`, http.StatusInternalServerError)
		return
	}

	if m.IsBotMatch() {
		bb.startBotRunner(m.ID)
	}

	_ = json.NewEncoder(w).Encode(newBattleRes{
		MatchID:    m.ID,
		Opponent:   opponent,
		Hearts:     battle.StartingHearts,
		TurnHolder: m.TurnHolder,
	})
}

// startBotRunner launches the bot-driving poller for a match. The runner
// is the session that created the bot match; it stops itself when the
// match finishes or the store becomes unreachable.
func (bb *battleServer) startBotRunner(matchID string) {
	ctx, cancel := context.WithCancel(context.Background())
	bb.mu.Lock()
	bb.runners[matchID] = cancel
	bb.mu.Unlock()

	bot := battle.NewBot(bb.engine, words.Source{}, rand.New(rand.NewSource(time.Now().UnixNano())))
	p := battle.NewPoller(bb.engine, matchID, battle.BotID, nil, bot)

	go func() {
		defer func() {
			bb.mu.Lock()
			delete(bb.runners, matchID)
			bb.mu.Unlock()
			cancel()
		}()
		if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Str("matchId", matchID).Msg("bot runner stopped")
		}
	}()
}

// -----------------------------------------------------------------------------
// /battle/{id} — polling view

type battleView struct {
	Match    *battle.Match `json:"match"`
	OpenTurn *turnView     `json:"openTurn,omitempty"`
	LastTurn *turnView     `json:"lastTurn,omitempty"`
}

// turnView is the client-safe projection of a turn (no canonical answer).
type turnView struct {
	ID           string              `json:"id"`
	Attacker     string              `json:"attacker"`
	Defender     string              `json:"defender"`
	Word         string              `json:"word"`
	QuestionType battle.QuestionType `json:"questionType"`
	Answer       *string             `json:"answer,omitempty"`
	IsCorrect    *bool               `json:"isCorrect,omitempty"`
	Damage       int                 `json:"damage"`
}

func viewOf(t *battle.Turn) *turnView {
	if t == nil {
		return nil
	}
	return &turnView{
		ID:           t.ID,
		Attacker:     t.Attacker,
		Defender:     t.Defender,
		Word:         t.Word,
		QuestionType: t.QuestionType,
		Answer:       t.Answer,
		IsCorrect:    t.IsCorrect,
		Damage:       t.Damage,
	}
}

// handleState returns the match plus its open and latest turns. Clients
// poll this; all fields come straight from the shared store.
func (bb *battleServer) handleState(w http.ResponseWriter, r *http.Request) {
	uid, ok := bb.srv.userIDWithAnon(w, r)
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	m, err := bb.engine.Match(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return
	}
	if !m.HasPlayer(uid) {
		http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
		return
	}
	open, err := bb.engine.OpenTurn(r.Context(), m.ID)
	if err != nil {
		http.Error(w, `{"error":"store_error"}`, http.StatusInternalServerError)
		return
	}
	last, err := bb.engine.LatestTurn(r.Context(), m.ID)
	if err != nil {
		http.Error(w, `{"error":"store_error"}`, http.StatusInternalServerError)
		return
	}
	if last != nil && last.Open() {
		last = nil // only closed turns belong in lastTurn
	}
	_ = json.NewEncoder(w).Encode(battleView{Match: m, OpenTurn: viewOf(open), LastTurn: viewOf(last)})
}

// -----------------------------------------------------------------------------
// /battle/{id}/question

type questionRes struct {
	TurnID       string              `json:"turnId"`
	Word         string              `json:"word"`
	QuestionType battle.QuestionType `json:"questionType"`
	Options      []string            `json:"options"`
}

// handleQuestion returns the multiple-choice set for the open turn naming
// the requester as defender. The shuffle is seeded from the turn ID, so
// re-polling the same question never reorders the options.
func (bb *battleServer) handleQuestion(w http.ResponseWriter, r *http.Request) {
	uid, ok := bb.srv.userIDWithAnon(w, r)
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	m, err := bb.engine.Match(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return
	}
	open, err := bb.engine.OpenTurn(r.Context(), m.ID)
	if err != nil {
		http.Error(w, `{"error":"store_error"}`, http.StatusInternalServerError)
		return
	}
	if open == nil || open.Defender != uid {
		http.Error(w, `{"error":"no_open_question"}`, http.StatusNotFound)
		return
	}
	entry, err := words.Get(open.Word)
	if err != nil {
		http.Error(w, `{"error":"word_missing"}`, http.StatusInternalServerError)
		return
	}
	rng := rand.New(rand.NewSource(turnSeed(open.ID)))
	c := battle.GenerateChoices(entry, open.QuestionType, words.Pool(), rng)
	_ = json.NewEncoder(w).Encode(questionRes{
		TurnID:       open.ID,
		Word:         open.Word,
		QuestionType: c.Effective,
		Options:      c.Options,
	})
}

// turnSeed derives a stable rng seed from a turn ID.
func turnSeed(id string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return int64(h.Sum64())
}

// -----------------------------------------------------------------------------
// /battle/attack

type attackReq struct {
	MatchID      string              `json:"matchId"`
	Word         string              `json:"word"`
	QuestionType battle.QuestionType `json:"questionType"`
}

// handleAttack opens a turn on behalf of the requester.
func (bb *battleServer) handleAttack(w http.ResponseWriter, r *http.Request) {
	uid, ok := bb.srv.userIDWithAnon(w, r)
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req attackReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	t, err := bb.engine.SubmitAttack(r.Context(), req.MatchID, uid, req.Word, req.QuestionType)
	if err != nil {
		writeRuleError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"turnId":       t.ID,
		"word":         t.Word,
		"questionType": t.QuestionType,
		"defender":     t.Defender,
	})
}

// -----------------------------------------------------------------------------
// /battle/defend

type defendReq struct {
	TurnID string `json:"turnId"`
	Answer string `json:"answer"`
}

type defendRes struct {
	Correct    *bool              `json:"correct,omitempty"`
	Damage     int                `json:"damage"`
	HeartsLeft int                `json:"heartsLeft"`
	TurnHolder string             `json:"turnHolder"`
	Status     battle.MatchStatus `json:"status"`
	Winner     string             `json:"winner,omitempty"`
}

// handleDefend answers the open turn. Answering an already-closed turn is a
// quiet no-op that just reports the committed outcome.
func (bb *battleServer) handleDefend(w http.ResponseWriter, r *http.Request) {
	uid, ok := bb.srv.userIDWithAnon(w, r)
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req defendReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	t, err := bb.engine.Turn(r.Context(), req.TurnID)
	if err != nil {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return
	}
	if t.Defender != uid {
		http.Error(w, `{"error":"not_your_turn"}`, http.StatusForbidden)
		return
	}
	closed, m, _, err := bb.engine.SubmitDefense(r.Context(), req.TurnID, req.Answer)
	if err != nil {
		writeRuleError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(defendRes{
		Correct:    closed.IsCorrect,
		Damage:     closed.Damage,
		HeartsLeft: m.Hearts(closed.Defender),
		TurnHolder: m.TurnHolder,
		Status:     m.Status,
		Winner:     m.Winner,
	})
}

// -----------------------------------------------------------------------------
// /battle/timeout

type timeoutReq struct {
	MatchID string `json:"matchId"`
}

// handleTimeout lets a session report its own expired decision countdown.
// The store has no deadline concept, so each client enforces its own timer:
// an idle attacker passes the turn, an idle defender takes damage via the
// timed-out sentinel. Both engine operations are idempotent, so a stale or
// repeated report is harmless.
func (bb *battleServer) handleTimeout(w http.ResponseWriter, r *http.Request) {
	uid, ok := bb.srv.userIDWithAnon(w, r)
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req timeoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	m, err := bb.engine.Match(r.Context(), req.MatchID)
	if err != nil {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return
	}
	if !m.HasPlayer(uid) {
		http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
		return
	}
	open, err := bb.engine.OpenTurn(r.Context(), m.ID)
	if err != nil {
		http.Error(w, `{"error":"store_error"}`, http.StatusInternalServerError)
		return
	}

	// A session may only time out its own decision, never the opponent's.
	switch {
	case open != nil && open.Defender == uid:
		if _, m, _, err = bb.engine.TimeoutDefense(r.Context(), open.ID); err != nil {
			writeRuleError(w, err)
			return
		}
	case open == nil && m.TurnHolder == uid:
		if m, err = bb.engine.TimeoutAttack(r.Context(), m.ID, uid); err != nil {
			writeRuleError(w, err)
			return
		}
	default:
		http.Error(w, `{"error":"no_pending_decision"}`, http.StatusConflict)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":     m.Status,
		"turnHolder": m.TurnHolder,
		"winner":     m.Winner,
	})
}

// -----------------------------------------------------------------------------
// /battle/surrender

type surrenderReq struct {
	MatchID string `json:"matchId"`
}

// handleSurrender concedes the match for the requester, valid off-turn.
func (bb *battleServer) handleSurrender(w http.ResponseWriter, r *http.Request) {
	uid, ok := bb.srv.userIDWithAnon(w, r)
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req surrenderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	m, err := bb.engine.Surrender(r.Context(), req.MatchID, uid)
	if err != nil {
		writeRuleError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": m.Status,
		"winner": m.Winner,
	})
}

// -----------------------------------------------------------------------------
// /battle/leaderboard

// handleLeaderboard returns the day's top battlers (defaults to today).
func (bb *battleServer) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = results.DateKey(time.Now())
	}
	rows, err := bb.results.Leaderboard(r.Context(), date, 20)
	if err != nil {
		http.Error(w, `{"error":"db_error"}`, http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []results.LBRow{}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"date": date, "rows": rows})
}

// -----------------------------------------------------------------------------

// writeRuleError maps engine validation errors to 4xx responses; anything
// else is a 500. Rule violations never mutate shared state, so they are
// safe to surface as plain no-ops.
func writeRuleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, battle.ErrNotFound):
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
	case errors.Is(err, battle.ErrMatchFinished):
		http.Error(w, `{"error":"match_finished"}`, http.StatusConflict)
	case errors.Is(err, battle.ErrNotYourTurn):
		http.Error(w, `{"error":"not_your_turn"}`, http.StatusConflict)
	case errors.Is(err, battle.ErrTurnOpen):
		http.Error(w, `{"error":"turn_open"}`, http.StatusConflict)
	case errors.Is(err, battle.ErrNotInMatch):
		http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
	default:
		log.Error().Err(err).Msg("battle operation failed")
		http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
	}
}
