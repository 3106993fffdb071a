package httpserver_test

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/robalobadob/vocamonster/apps/go-server/internal/battle"
	"github.com/robalobadob/vocamonster/apps/go-server/internal/httpserver"
	"github.com/robalobadob/vocamonster/apps/go-server/internal/store"
	"github.com/robalobadob/vocamonster/apps/go-server/internal/words"
)

// newTestServer wires the full stack against an in-memory database and the
// embedded vocabulary.
func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	if err := words.Init(); err != nil {
		t.Fatalf("words.Init: %v", err)
	}
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	schema, err := os.ReadFile("../../sql/001_init.sql")
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	if _, err := db.Exec(string(schema)); err != nil {
		t.Fatalf("apply schema: %v", err)
	}

	st := store.NewSQLite(db)
	engine := battle.NewEngine(st, st, words.Source{}, httpserver.NewRecorder(db))
	return httpserver.New(engine, db).Router()
}

// doJSON performs one request as the given anonymous participant.
func doJSON(t *testing.T, h http.Handler, method, path, asUser string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if asUser != "" {
		req.AddCookie(&http.Cookie{Name: "vocamonster_anon", Value: asUser})
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestBattleFlowOverHTTP(t *testing.T) {
	h := newTestServer(t)

	// alice challenges a named opponent with a stake on the line.
	rec := doJSON(t, h, http.MethodPost, "/battle/new", "alice",
		map[string]any{"opponent": "rival", "betStake": 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("new: status %d body %s", rec.Code, rec.Body.String())
	}
	created := decode[struct {
		MatchID    string `json:"matchId"`
		TurnHolder string `json:"turnHolder"`
		Hearts     int    `json:"hearts"`
	}](t, rec)
	if created.TurnHolder != "alice" || created.Hearts != battle.StartingHearts {
		t.Fatalf("created = %+v", created)
	}

	// Outsiders cannot see the match.
	if rec := doJSON(t, h, http.MethodGet, "/battle/"+created.MatchID, "mallory", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("outsider state: status %d", rec.Code)
	}

	// alice attacks with prohibit/meaning.
	rec = doJSON(t, h, http.MethodPost, "/battle/attack", "alice",
		map[string]any{"matchId": created.MatchID, "word": "prohibit", "questionType": "meaning"})
	if rec.Code != http.StatusOK {
		t.Fatalf("attack: status %d body %s", rec.Code, rec.Body.String())
	}
	attack := decode[struct {
		TurnID   string `json:"turnId"`
		Defender string `json:"defender"`
	}](t, rec)
	if attack.Defender != "rival" {
		t.Fatalf("defender = %q", attack.Defender)
	}

	// A second attack while the turn is open is rejected.
	rec = doJSON(t, h, http.MethodPost, "/battle/attack", "alice",
		map[string]any{"matchId": created.MatchID, "word": "frugal", "questionType": "meaning"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("double attack: status %d", rec.Code)
	}

	// The attacker has no question to answer; the defender does.
	if rec := doJSON(t, h, http.MethodGet, "/battle/"+created.MatchID+"/question", "alice", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("attacker question: status %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/battle/"+created.MatchID+"/question", "rival", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("defender question: status %d body %s", rec.Code, rec.Body.String())
	}
	question := decode[struct {
		TurnID  string   `json:"turnId"`
		Word    string   `json:"word"`
		Options []string `json:"options"`
	}](t, rec)
	if question.TurnID != attack.TurnID || question.Word != "prohibit" {
		t.Fatalf("question = %+v", question)
	}
	if len(question.Options) < 2 {
		t.Fatalf("only %d options offered", len(question.Options))
	}

	// rival answers correctly and takes the turn without losing a heart.
	entry, err := words.Get("prohibit")
	if err != nil {
		t.Fatalf("words.Get: %v", err)
	}
	rec = doJSON(t, h, http.MethodPost, "/battle/defend", "rival",
		map[string]any{"turnId": attack.TurnID, "answer": battle.CanonicalAnswer(entry, battle.QuestionMeaning)})
	if rec.Code != http.StatusOK {
		t.Fatalf("defend: status %d body %s", rec.Code, rec.Body.String())
	}
	defended := decode[struct {
		Correct    *bool  `json:"correct"`
		HeartsLeft int    `json:"heartsLeft"`
		TurnHolder string `json:"turnHolder"`
	}](t, rec)
	if defended.Correct == nil || !*defended.Correct {
		t.Fatalf("defense scored wrong: %+v", defended)
	}
	if defended.HeartsLeft != battle.StartingHearts || defended.TurnHolder != "rival" {
		t.Fatalf("defense outcome = %+v", defended)
	}

	// Answering by someone who is not the defender is forbidden.
	if rec := doJSON(t, h, http.MethodPost, "/battle/defend", "alice",
		map[string]any{"turnId": attack.TurnID, "answer": "x"}); rec.Code != http.StatusForbidden {
		t.Fatalf("attacker defend: status %d", rec.Code)
	}

	// alice concedes; the stake goes to rival.
	rec = doJSON(t, h, http.MethodPost, "/battle/surrender", "alice",
		map[string]any{"matchId": created.MatchID})
	if rec.Code != http.StatusOK {
		t.Fatalf("surrender: status %d body %s", rec.Code, rec.Body.String())
	}
	ended := decode[struct {
		Status string `json:"status"`
		Winner string `json:"winner"`
	}](t, rec)
	if ended.Status != string(battle.MatchFinished) || ended.Winner != "rival" {
		t.Fatalf("ended = %+v", ended)
	}

	// The finished battle shows up on today's leaderboard.
	rec = doJSON(t, h, http.MethodGet, "/battle/leaderboard", "alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("leaderboard: status %d", rec.Code)
	}
	lb := decode[struct {
		Rows []struct {
			UserID string `json:"userId"`
			Wins   int    `json:"wins"`
			Stake  int    `json:"stake"`
		} `json:"rows"`
	}](t, rec)
	if len(lb.Rows) != 1 || lb.Rows[0].UserID != "rival" || lb.Rows[0].Wins != 1 || lb.Rows[0].Stake != 2 {
		t.Fatalf("leaderboard rows = %+v", lb.Rows)
	}
}

func TestTimeoutOverHTTP(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/battle/new", "alice",
		map[string]any{"opponent": "rival"})
	if rec.Code != http.StatusOK {
		t.Fatalf("new: status %d body %s", rec.Code, rec.Body.String())
	}
	created := decode[struct {
		MatchID string `json:"matchId"`
	}](t, rec)

	// Nobody may report the opponent's countdown, and outsiders see nothing.
	if rec := doJSON(t, h, http.MethodPost, "/battle/timeout", "rival",
		map[string]any{"matchId": created.MatchID}); rec.Code != http.StatusConflict {
		t.Fatalf("off-turn timeout: status %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodPost, "/battle/timeout", "mallory",
		map[string]any{"matchId": created.MatchID}); rec.Code != http.StatusForbidden {
		t.Fatalf("outsider timeout: status %d", rec.Code)
	}

	// The idle attacker passes the turn, leaving no turn record.
	rec = doJSON(t, h, http.MethodPost, "/battle/timeout", "alice",
		map[string]any{"matchId": created.MatchID})
	if rec.Code != http.StatusOK {
		t.Fatalf("attacker timeout: status %d body %s", rec.Code, rec.Body.String())
	}
	passed := decode[struct {
		TurnHolder string `json:"turnHolder"`
	}](t, rec)
	if passed.TurnHolder != "rival" {
		t.Fatalf("turn holder = %q, want the turn passed", passed.TurnHolder)
	}

	// rival attacks; the attacker cannot time out while the turn is open.
	rec = doJSON(t, h, http.MethodPost, "/battle/attack", "rival",
		map[string]any{"matchId": created.MatchID, "word": "prohibit", "questionType": "meaning"})
	if rec.Code != http.StatusOK {
		t.Fatalf("attack: status %d body %s", rec.Code, rec.Body.String())
	}
	if rec := doJSON(t, h, http.MethodPost, "/battle/timeout", "rival",
		map[string]any{"matchId": created.MatchID}); rec.Code != http.StatusConflict {
		t.Fatalf("attacker timeout with open turn: status %d", rec.Code)
	}

	// The idle defender takes damage and the attacker keeps the turn.
	rec = doJSON(t, h, http.MethodPost, "/battle/timeout", "alice",
		map[string]any{"matchId": created.MatchID})
	if rec.Code != http.StatusOK {
		t.Fatalf("defender timeout: status %d body %s", rec.Code, rec.Body.String())
	}
	timed := decode[struct {
		Status     string `json:"status"`
		TurnHolder string `json:"turnHolder"`
	}](t, rec)
	if timed.Status != string(battle.MatchActive) || timed.TurnHolder != "rival" {
		t.Fatalf("after defender timeout = %+v", timed)
	}

	rec = doJSON(t, h, http.MethodGet, "/battle/"+created.MatchID, "alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("state: status %d", rec.Code)
	}
	state := decode[struct {
		Match struct {
			HeartsA int `json:"heartsA"`
			HeartsB int `json:"heartsB"`
		} `json:"match"`
	}](t, rec)
	if state.Match.HeartsA != battle.StartingHearts-1 || state.Match.HeartsB != battle.StartingHearts {
		t.Fatalf("hearts = %d/%d, want %d/%d",
			state.Match.HeartsA, state.Match.HeartsB, battle.StartingHearts-1, battle.StartingHearts)
	}
}

func TestSignupLoginAndStats(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/auth/signup", "",
		map[string]string{"username": "wordsmith", "password": "longenough1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("signup: status %d body %s", rec.Code, rec.Body.String())
	}

	var authCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "vocamonster_token" {
			authCookie = c
		}
	}
	if authCookie == nil || authCookie.Value == "" {
		t.Fatal("signup did not set the auth cookie")
	}

	req := httptest.NewRequest(http.MethodGet, "/stats/me", nil)
	req.AddCookie(authCookie)
	out := httptest.NewRecorder()
	h.ServeHTTP(out, req)
	if out.Code != http.StatusOK {
		t.Fatalf("stats: status %d body %s", out.Code, out.Body.String())
	}
	stats := decode[struct {
		BattlesPlayed int `json:"battlesPlayed"`
		Wins          int `json:"wins"`
	}](t, out)
	if stats.BattlesPlayed != 0 || stats.Wins != 0 {
		t.Fatalf("fresh account stats = %+v", stats)
	}

	// Duplicate username is rejected.
	if rec := doJSON(t, h, http.MethodPost, "/auth/signup", "",
		map[string]string{"username": "wordsmith", "password": "longenough1"}); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate signup: status %d", rec.Code)
	}

	// Wrong password fails, right one succeeds.
	if rec := doJSON(t, h, http.MethodPost, "/auth/login", "",
		map[string]string{"username": "wordsmith", "password": "wrongwrong"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad login: status %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodPost, "/auth/login", "",
		map[string]string{"username": "wordsmith", "password": "longenough1"}); rec.Code != http.StatusOK {
		t.Fatalf("login: status %d body %s", rec.Code, rec.Body.String())
	}
}
