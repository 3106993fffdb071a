// apps/go-server/internal/battle/poller.go
//
// Per-participant reconciliation loop. No server process drives the match:
// each session polls the shared stores on a fixed interval and feeds what it
// observes into the engine (and into the bot, for the session that created a
// bot match).
//
// State machine per session:
//   - Idle:            nothing pending; watching for an attack or our turn.
//   - AwaitingDefense: an open turn names us as defender; the question has
//                      been surfaced once and a countdown is running.
//   - AwaitingResult:  we attacked; waiting for the turn to close.
//   - Finished:        terminal; the match ended (observed even mid-flight).
//   - ConnectionLost:  terminal until Resume; the store was unreachable.
//
// Reconciliation is idempotent: a closed turn is delivered to the events
// sink at most once (consumed set), and an open turn is surfaced at most
// once (presented guard), no matter how often polling re-observes them.
//
// Countdowns are enforced here, client-side: the store has no deadline
// concept, so each session honestly reports its own expiry. An idle
// attacker passes the turn; an idle defender takes damage via the
// timed-out sentinel answer.

package battle

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// PollerState is the session's reconciliation state.
type PollerState string

const (
	StateIdle            PollerState = "idle"
	StateAwaitingDefense PollerState = "awaiting_defense"
	StateAwaitingResult  PollerState = "awaiting_result"
	StateFinished        PollerState = "finished"
	StateConnectionLost  PollerState = "connection_lost"
)

const (
	// DefaultPollInterval paces Tick calls in Run.
	DefaultPollInterval = 1500 * time.Millisecond

	// DefaultDecisionWindow is the per-decision countdown for both the
	// attacker's selection step and the defender's answer step.
	DefaultDecisionWindow = 8 * time.Second
)

// attackDeadlineKey marks the countdown guarding our own attack selection,
// as opposed to a turn ID guarding a defense.
const attackDeadlineKey = "@attack"

// Poller reconciles one participant's view of one match.
// Not safe for concurrent use; one goroutine per session drives it.
type Poller struct {
	engine *Engine
	events Events
	bot    *Bot // non-nil only in the session that created a bot match

	matchID  string
	player   string
	interval time.Duration
	window   time.Duration
	now      func() time.Time

	state             PollerState
	consumed          map[string]struct{} // closed turn IDs already delivered
	presented         string              // open turn ID already surfaced
	finishedDelivered bool
	deadlineKey       string    // which decision the countdown guards
	deadline          time.Time // countdown expiry
}

// NewPoller constructs a poller for one participant session. A nil events
// sink is replaced with NopEvents; bot may be nil.
func NewPoller(engine *Engine, matchID, player string, events Events, bot *Bot) *Poller {
	if events == nil {
		events = NopEvents{}
	}
	return &Poller{
		engine:   engine,
		events:   events,
		bot:      bot,
		matchID:  matchID,
		player:   player,
		interval: DefaultPollInterval,
		window:   DefaultDecisionWindow,
		now:      time.Now,
		state:    StateIdle,
		consumed: make(map[string]struct{}),
	}
}

// SetInterval overrides the polling interval (tests use small values).
func (p *Poller) SetInterval(d time.Duration) { p.interval = d }

// SetDecisionWindow overrides the per-decision countdown.
func (p *Poller) SetDecisionWindow(d time.Duration) { p.window = d }

// SetClock overrides the time source (tests).
func (p *Poller) SetClock(now func() time.Time) { p.now = now }

// State reports the current reconciliation state.
func (p *Poller) State() PollerState { return p.state }

// Resume re-arms a poller that stopped in StateConnectionLost.
func (p *Poller) Resume() {
	if p.state == StateConnectionLost {
		p.state = StateIdle
	}
}

// Run polls until the match finishes, the context ends, or the connection
// is lost. Restartable via Resume after a connection loss.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		if err := p.Tick(ctx); err != nil {
			return err
		}
		if p.state == StateFinished {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick runs one reconciliation pass. A store error flips the session into
// StateConnectionLost and is returned; the match is left untouched so the
// other participant's session is unaffected.
func (p *Poller) Tick(ctx context.Context) error {
	if p.state == StateFinished || p.state == StateConnectionLost {
		return nil
	}

	m, err := p.engine.Match(ctx, p.matchID)
	if err != nil {
		return p.disconnect(err)
	}
	open, err := p.engine.OpenTurn(ctx, p.matchID)
	if err != nil {
		return p.disconnect(err)
	}

	if p.bot != nil {
		if err := p.bot.Observe(ctx, m, open); err != nil {
			log.Warn().Err(err).Str("matchId", p.matchID).Msg("bot action failed")
		}
	}

	// The resolved-turn delivery runs before the finished check: the close
	// that ends a match commits together with the finish, so this is the
	// only tick that can surface the final exchange's outcome.
	p.deliverResolved(ctx, m)

	// A finished match abandons all in-flight state, even mid-reconciliation.
	if m.Status == MatchFinished {
		p.presented = ""
		p.deadlineKey = ""
		p.deliverFinished(m)
		p.state = StateFinished
		return nil
	}

	switch {
	case open != nil && open.Defender == p.player:
		p.state = StateAwaitingDefense
		if p.presented != open.ID {
			// New question: surface it once and start the countdown.
			p.presented = open.ID
			p.armDeadline(open.ID)
			p.events.AttackSubmitted(open)
		} else if p.expired(open.ID) {
			if _, _, _, err := p.engine.TimeoutDefense(ctx, open.ID); err != nil {
				return p.disconnect(err)
			}
			p.deadlineKey = ""
		}

	case open != nil:
		p.presented = ""
		p.deadlineKey = ""
		p.state = StateAwaitingResult

	case m.TurnHolder == p.player:
		p.presented = ""
		p.state = StateIdle
		p.armDeadline(attackDeadlineKey)
		if p.expired(attackDeadlineKey) {
			if _, err := p.engine.TimeoutAttack(ctx, p.matchID, p.player); err != nil {
				return p.disconnect(err)
			}
			p.deadlineKey = ""
		}

	default:
		// Opponent holds the turn; their session enforces their countdown.
		p.presented = ""
		p.deadlineKey = ""
		p.state = StateIdle
	}
	return nil
}

// deliverResolved surfaces the most recent closed turn exactly once.
func (p *Poller) deliverResolved(ctx context.Context, m *Match) {
	latest, err := p.engine.LatestTurn(ctx, p.matchID)
	if err != nil || latest == nil || latest.Open() {
		return
	}
	if _, done := p.consumed[latest.ID]; done {
		return
	}
	p.consumed[latest.ID] = struct{}{}
	p.events.DefenseResolved(latest, MatchDelta{
		Defender:   latest.Defender,
		Damage:     latest.Damage,
		HeartsLeft: m.Hearts(latest.Defender),
		TurnHolder: m.TurnHolder,
		Finished:   m.Status == MatchFinished,
		Winner:     m.Winner,
	})
}

// deliverFinished fires MatchFinished at most once per session.
func (p *Poller) deliverFinished(m *Match) {
	if p.finishedDelivered {
		return
	}
	p.finishedDelivered = true
	p.events.MatchFinished(m)
}

// armDeadline starts the countdown for a decision if it is not already
// running for that same decision.
func (p *Poller) armDeadline(key string) {
	if p.deadlineKey == key {
		return
	}
	p.deadlineKey = key
	p.deadline = p.now().Add(p.window)
}

// expired reports whether the countdown for the given decision has run out.
func (p *Poller) expired(key string) bool {
	return p.deadlineKey == key && p.now().After(p.deadline)
}

// disconnect records a store failure as the terminal connection-lost state.
func (p *Poller) disconnect(err error) error {
	log.Error().Err(err).Str("matchId", p.matchID).Str("player", p.player).Msg("poller lost store connection")
	p.state = StateConnectionLost
	return err
}
