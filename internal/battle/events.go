// apps/go-server/internal/battle/events.go
//
// Event contract between the battle engine and whatever is presenting the
// match (UI layer, bot runner, result recorder). Each callback fires exactly
// once per logical event: the engine only emits from the session whose store
// write won, and the poller deduplicates what it observes.

package battle

// Events is the subscriber contract for battle notifications.
type Events interface {
	// AttackSubmitted fires when a turn is opened.
	AttackSubmitted(t *Turn)

	// DefenseResolved fires when a turn closes, with the match delta the
	// resolution produced.
	DefenseResolved(t *Turn, d MatchDelta)

	// MatchFinished fires when the match reaches its terminal state,
	// whether by hearts running out or by surrender.
	MatchFinished(m *Match)
}

// NopEvents discards all notifications.
type NopEvents struct{}

func (NopEvents) AttackSubmitted(*Turn) {}
func (NopEvents) DefenseResolved(*Turn, MatchDelta) {}
func (NopEvents) MatchFinished(*Match) {}

// FuncEvents adapts plain functions to the Events interface. Nil fields
// are skipped, so subscribers only wire what they care about.
type FuncEvents struct {
	OnAttackSubmitted func(t *Turn)
	OnDefenseResolved func(t *Turn, d MatchDelta)
	OnMatchFinished   func(m *Match)
}

func (f FuncEvents) AttackSubmitted(t *Turn) {
	if f.OnAttackSubmitted != nil {
		f.OnAttackSubmitted(t)
	}
}

func (f FuncEvents) DefenseResolved(t *Turn, d MatchDelta) {
	if f.OnDefenseResolved != nil {
		f.OnDefenseResolved(t, d)
	}
}

func (f FuncEvents) MatchFinished(m *Match) {
	if f.OnMatchFinished != nil {
		f.OnMatchFinished(m)
	}
}
