package battle_test

import (
	"context"
	"errors"
	"testing"

	"github.com/robalobadob/vocamonster/apps/go-server/internal/battle"
	"github.com/robalobadob/vocamonster/apps/go-server/internal/store"
	"github.com/robalobadob/vocamonster/apps/go-server/internal/words"
)

// testVocab is a fixed vocabulary so scoring is fully predictable.
type testVocab struct {
	entries []words.Entry
}

func (v testVocab) Get(word string) (words.Entry, error) {
	for _, e := range v.entries {
		if e.Word == word {
			return e, nil
		}
	}
	return words.Entry{}, words.ErrNotFound
}

func (v testVocab) Pool() []words.Entry { return v.entries }

func newTestVocab() testVocab {
	return testVocab{entries: []words.Entry{
		{Word: "prohibit", Meaning: "to formally forbid something", Synonyms: []string{"forbid", "ban"}, Antonyms: []string{"allow"}},
		{Word: "frugal", Meaning: "careful with money", Synonyms: []string{"thrifty"}, Antonyms: []string{"wasteful"}},
		{Word: "hinder", Meaning: "to make progress difficult", Synonyms: []string{"impede"}, Antonyms: []string{"help"}},
		{Word: "novice", Meaning: "a beginner", Synonyms: []string{"beginner"}, Antonyms: []string{"expert"}},
		{Word: "zenith", Meaning: "the highest point"},
	}}
}

func newTestEngine(events battle.Events) (*battle.Engine, *store.Memory) {
	mem := store.NewMemory()
	return battle.NewEngine(mem, mem, newTestVocab(), events), mem
}

func mustMatch(t *testing.T, e *battle.Engine, playerA, playerB string) *battle.Match {
	t.Helper()
	m, err := e.NewMatch(context.Background(), playerA, playerB, 0)
	if err != nil {
		t.Fatalf("NewMatch: %v", err)
	}
	return m
}

func mustAttack(t *testing.T, e *battle.Engine, matchID, attacker, word string, qt battle.QuestionType) *battle.Turn {
	t.Helper()
	turn, err := e.SubmitAttack(context.Background(), matchID, attacker, word, qt)
	if err != nil {
		t.Fatalf("SubmitAttack(%s, %s): %v", attacker, word, err)
	}
	return turn
}

func TestNewMatchDefaults(t *testing.T) {
	e, _ := newTestEngine(nil)
	m := mustMatch(t, e, "alice", "bob")

	if m.HeartsA != battle.StartingHearts || m.HeartsB != battle.StartingHearts {
		t.Fatalf("hearts = %d/%d, want %d/%d", m.HeartsA, m.HeartsB, battle.StartingHearts, battle.StartingHearts)
	}
	if m.TurnHolder != "alice" {
		t.Fatalf("turn holder = %q, want challenger", m.TurnHolder)
	}
	if m.Status != battle.MatchActive {
		t.Fatalf("status = %q, want %q", m.Status, battle.MatchActive)
	}
	if m.Winner != "" {
		t.Fatalf("winner = %q on a fresh match", m.Winner)
	}
}

func TestNewMatchRejectsBadParticipants(t *testing.T) {
	e, _ := newTestEngine(nil)
	ctx := context.Background()
	if _, err := e.NewMatch(ctx, "alice", "alice", 0); err == nil {
		t.Fatal("self-match accepted")
	}
	if _, err := e.NewMatch(ctx, "", "bob", 0); err == nil {
		t.Fatal("empty challenger accepted")
	}
}

func TestIncorrectDefenseKeepsAttacker(t *testing.T) {
	e, _ := newTestEngine(nil)
	m := mustMatch(t, e, "alice", "bob")
	turn := mustAttack(t, e, m.ID, "alice", "prohibit", battle.QuestionMeaning)

	closed, after, delta, err := e.SubmitDefense(context.Background(), turn.ID, "a large body of salt water")
	if err != nil {
		t.Fatalf("SubmitDefense: %v", err)
	}
	if closed.IsCorrect == nil || *closed.IsCorrect {
		t.Fatal("incorrect answer scored as correct")
	}
	if delta == nil || delta.Damage != 1 || delta.HeartsLeft != battle.StartingHearts-1 {
		t.Fatalf("delta = %+v, want damage 1 and hearts %d", delta, battle.StartingHearts-1)
	}
	if after.HeartsB != battle.StartingHearts-1 {
		t.Fatalf("defender hearts = %d, want %d", after.HeartsB, battle.StartingHearts-1)
	}
	if after.TurnHolder != "alice" {
		t.Fatalf("turn holder = %q, want attacker to keep the turn", after.TurnHolder)
	}
}

func TestCorrectDefenseHandsTurn(t *testing.T) {
	e, _ := newTestEngine(nil)
	m := mustMatch(t, e, "alice", "bob")
	turn := mustAttack(t, e, m.ID, "alice", "prohibit", battle.QuestionMeaning)

	closed, after, delta, err := e.SubmitDefense(context.Background(), turn.ID, "to formally forbid something")
	if err != nil {
		t.Fatalf("SubmitDefense: %v", err)
	}
	if closed.IsCorrect == nil || !*closed.IsCorrect {
		t.Fatal("correct answer scored as incorrect")
	}
	if delta.Damage != 0 || after.HeartsB != battle.StartingHearts {
		t.Fatalf("correct defense took damage: delta=%+v heartsB=%d", delta, after.HeartsB)
	}
	if after.TurnHolder != "bob" {
		t.Fatalf("turn holder = %q, want defender after a correct defense", after.TurnHolder)
	}
}

func TestDefenseScoringIgnoresCaseAndSpace(t *testing.T) {
	e, _ := newTestEngine(nil)
	m := mustMatch(t, e, "alice", "bob")
	turn := mustAttack(t, e, m.ID, "alice", "prohibit", battle.QuestionSynonym)

	closed, _, _, err := e.SubmitDefense(context.Background(), turn.ID, "  FORBID ")
	if err != nil {
		t.Fatalf("SubmitDefense: %v", err)
	}
	if closed.IsCorrect == nil || !*closed.IsCorrect {
		t.Fatal("case/whitespace variant of the canonical answer rejected")
	}
}

func TestSynonymAttackFallsBackToMeaning(t *testing.T) {
	e, _ := newTestEngine(nil)
	m := mustMatch(t, e, "alice", "bob")

	// zenith has no synonyms, so the stored turn must carry the meaning type.
	turn := mustAttack(t, e, m.ID, "alice", "zenith", battle.QuestionSynonym)
	if turn.QuestionType != battle.QuestionMeaning {
		t.Fatalf("question type = %q, want fallback to %q", turn.QuestionType, battle.QuestionMeaning)
	}

	closed, _, _, err := e.SubmitDefense(context.Background(), turn.ID, "the highest point")
	if err != nil {
		t.Fatalf("SubmitDefense: %v", err)
	}
	if closed.IsCorrect == nil || !*closed.IsCorrect {
		t.Fatal("meaning answer rejected after fallback")
	}
}

func TestDoubleDefenseAppliesDamageOnce(t *testing.T) {
	e, _ := newTestEngine(nil)
	m := mustMatch(t, e, "alice", "bob")
	turn := mustAttack(t, e, m.ID, "alice", "prohibit", battle.QuestionMeaning)
	ctx := context.Background()

	_, first, delta1, err := e.SubmitDefense(ctx, turn.ID, "wrong")
	if err != nil {
		t.Fatalf("first SubmitDefense: %v", err)
	}
	if delta1 == nil {
		t.Fatal("first defense produced no delta")
	}

	closed2, second, delta2, err := e.SubmitDefense(ctx, turn.ID, "to formally forbid something")
	if err != nil {
		t.Fatalf("second SubmitDefense: %v", err)
	}
	if delta2 != nil {
		t.Fatalf("second defense produced a delta: %+v", delta2)
	}
	if second.HeartsB != first.HeartsB {
		t.Fatalf("hearts changed on replay: %d -> %d", first.HeartsB, second.HeartsB)
	}
	// The committed answer is the first one, not the replay's.
	if closed2.Answer == nil || *closed2.Answer != "wrong" {
		t.Fatalf("committed answer = %v, want the first writer's", closed2.Answer)
	}
}

func TestMatchFinishesWhenHeartsReachZero(t *testing.T) {
	e, _ := newTestEngine(nil)
	m := mustMatch(t, e, "alice", "bob")
	ctx := context.Background()

	var last *battle.Match
	for i := 0; i < battle.StartingHearts; i++ {
		turn := mustAttack(t, e, m.ID, "alice", "prohibit", battle.QuestionMeaning)
		var err error
		_, last, _, err = e.SubmitDefense(ctx, turn.ID, "wrong")
		if err != nil {
			t.Fatalf("SubmitDefense #%d: %v", i+1, err)
		}
	}

	if last.HeartsB != 0 {
		t.Fatalf("defender hearts = %d, want 0", last.HeartsB)
	}
	if last.Status != battle.MatchFinished || last.Winner != "alice" {
		t.Fatalf("got status=%q winner=%q, want finished with the attacker winning", last.Status, last.Winner)
	}

	if _, err := e.SubmitAttack(ctx, m.ID, "alice", "prohibit", battle.QuestionMeaning); !errors.Is(err, battle.ErrMatchFinished) {
		t.Fatalf("attack on finished match: err = %v, want ErrMatchFinished", err)
	}
}

func TestDefenseOnFinishedMatchIsNoop(t *testing.T) {
	e, _ := newTestEngine(nil)
	m := mustMatch(t, e, "alice", "bob")
	ctx := context.Background()

	turn := mustAttack(t, e, m.ID, "alice", "prohibit", battle.QuestionMeaning)
	if _, err := e.Surrender(ctx, m.ID, "bob"); err != nil {
		t.Fatalf("Surrender: %v", err)
	}

	_, after, delta, err := e.SubmitDefense(ctx, turn.ID, "wrong")
	if err != nil {
		t.Fatalf("SubmitDefense: %v", err)
	}
	if delta != nil {
		t.Fatalf("defense on finished match produced a delta: %+v", delta)
	}
	if after.HeartsB != battle.StartingHearts {
		t.Fatalf("hearts changed after the match ended: %d", after.HeartsB)
	}
}

func TestSurrender(t *testing.T) {
	e, _ := newTestEngine(nil)
	m := mustMatch(t, e, "alice", "bob")
	ctx := context.Background()

	// Surrendering is allowed off-turn: bob concedes while alice holds.
	after, err := e.Surrender(ctx, m.ID, "bob")
	if err != nil {
		t.Fatalf("Surrender: %v", err)
	}
	if after.Status != battle.MatchFinished || after.Winner != "alice" {
		t.Fatalf("got status=%q winner=%q, want finished with the opponent winning", after.Status, after.Winner)
	}

	// Second surrender (either side) leaves the result alone.
	again, err := e.Surrender(ctx, m.ID, "alice")
	if err != nil {
		t.Fatalf("repeat Surrender: %v", err)
	}
	if again.Winner != "alice" {
		t.Fatalf("winner changed on repeat surrender: %q", again.Winner)
	}

	if _, err := e.Surrender(ctx, m.ID, "mallory"); !errors.Is(err, battle.ErrNotInMatch) {
		t.Fatalf("outsider surrender: err = %v, want ErrNotInMatch", err)
	}
}

func TestAttackValidation(t *testing.T) {
	e, _ := newTestEngine(nil)
	m := mustMatch(t, e, "alice", "bob")
	ctx := context.Background()

	if _, err := e.SubmitAttack(ctx, m.ID, "bob", "prohibit", battle.QuestionMeaning); !errors.Is(err, battle.ErrNotYourTurn) {
		t.Fatalf("off-turn attack: err = %v, want ErrNotYourTurn", err)
	}
	if _, err := e.SubmitAttack(ctx, m.ID, "mallory", "prohibit", battle.QuestionMeaning); !errors.Is(err, battle.ErrNotInMatch) {
		t.Fatalf("outsider attack: err = %v, want ErrNotInMatch", err)
	}
	if _, err := e.SubmitAttack(ctx, m.ID, "alice", "xylophone", battle.QuestionMeaning); err == nil {
		t.Fatal("unknown word accepted")
	}

	mustAttack(t, e, m.ID, "alice", "prohibit", battle.QuestionMeaning)
	if _, err := e.SubmitAttack(ctx, m.ID, "alice", "frugal", battle.QuestionMeaning); !errors.Is(err, battle.ErrTurnOpen) {
		t.Fatalf("second attack with a turn open: err = %v, want ErrTurnOpen", err)
	}
}

func TestTimeoutAttackPassesTurn(t *testing.T) {
	e, _ := newTestEngine(nil)
	m := mustMatch(t, e, "alice", "bob")
	ctx := context.Background()

	after, err := e.TimeoutAttack(ctx, m.ID, "alice")
	if err != nil {
		t.Fatalf("TimeoutAttack: %v", err)
	}
	if after.TurnHolder != "bob" {
		t.Fatalf("turn holder = %q, want the turn passed", after.TurnHolder)
	}
	// A pass leaves no turn record behind.
	latest, err := e.LatestTurn(ctx, m.ID)
	if err != nil {
		t.Fatalf("LatestTurn: %v", err)
	}
	if latest != nil {
		t.Fatalf("timeout pass created a turn record: %+v", latest)
	}

	// Stale timeout (holder already moved on) is a no-op.
	again, err := e.TimeoutAttack(ctx, m.ID, "alice")
	if err != nil {
		t.Fatalf("stale TimeoutAttack: %v", err)
	}
	if again.TurnHolder != "bob" {
		t.Fatalf("stale timeout moved the turn: holder = %q", again.TurnHolder)
	}
}

func TestTimeoutAttackIgnoredWhileTurnOpen(t *testing.T) {
	e, _ := newTestEngine(nil)
	m := mustMatch(t, e, "alice", "bob")
	ctx := context.Background()

	mustAttack(t, e, m.ID, "alice", "prohibit", battle.QuestionMeaning)
	after, err := e.TimeoutAttack(ctx, m.ID, "alice")
	if err != nil {
		t.Fatalf("TimeoutAttack: %v", err)
	}
	if after.TurnHolder != "alice" {
		t.Fatalf("timeout passed the turn despite an open exchange: holder = %q", after.TurnHolder)
	}
}

func TestTimeoutDefenseScoresAsIncorrect(t *testing.T) {
	e, _ := newTestEngine(nil)
	m := mustMatch(t, e, "alice", "bob")
	turn := mustAttack(t, e, m.ID, "alice", "prohibit", battle.QuestionMeaning)

	closed, after, delta, err := e.TimeoutDefense(context.Background(), turn.ID)
	if err != nil {
		t.Fatalf("TimeoutDefense: %v", err)
	}
	if closed.IsCorrect == nil || *closed.IsCorrect {
		t.Fatal("timed-out defense scored as correct")
	}
	if closed.Answer == nil || *closed.Answer != battle.TimedOutAnswer {
		t.Fatalf("recorded answer = %v, want the timeout sentinel", closed.Answer)
	}
	if delta.Damage != 1 || after.HeartsB != battle.StartingHearts-1 {
		t.Fatalf("timeout applied damage=%d heartsB=%d", delta.Damage, after.HeartsB)
	}
	if after.TurnHolder != "alice" {
		t.Fatalf("turn holder = %q, want attacker to keep the turn", after.TurnHolder)
	}
}

func TestEngineEventsFireOncePerResolution(t *testing.T) {
	var attacks, resolutions, finishes int
	events := battle.FuncEvents{
		OnAttackSubmitted: func(*battle.Turn) { attacks++ },
		OnDefenseResolved: func(*battle.Turn, battle.MatchDelta) { resolutions++ },
		OnMatchFinished:   func(*battle.Match) { finishes++ },
	}
	e, _ := newTestEngine(events)
	m := mustMatch(t, e, "alice", "bob")
	ctx := context.Background()

	turn := mustAttack(t, e, m.ID, "alice", "prohibit", battle.QuestionMeaning)
	if _, _, _, err := e.SubmitDefense(ctx, turn.ID, "wrong"); err != nil {
		t.Fatalf("SubmitDefense: %v", err)
	}
	// Replay must not re-fire.
	if _, _, _, err := e.SubmitDefense(ctx, turn.ID, "wrong"); err != nil {
		t.Fatalf("replayed SubmitDefense: %v", err)
	}
	if _, err := e.Surrender(ctx, m.ID, "bob"); err != nil {
		t.Fatalf("Surrender: %v", err)
	}

	if attacks != 1 || resolutions != 1 || finishes != 1 {
		t.Fatalf("events fired attacks=%d resolutions=%d finishes=%d, want 1/1/1", attacks, resolutions, finishes)
	}
}
