// apps/go-server/internal/battle/bot.go
//
// Scripted opponent for matches where one participant slot holds BotID.
// The bot plays both roles:
//   - Defender: answers an open turn naming it, correctly with probability
//     BotAccuracy; on the miss path it submits a wrong option from the
//     generated choice set.
//   - Attacker: when it holds the turn, picks a random word and a random
//     supported question type, waits a fixed "thinking" delay, and submits
//     the attack.
//
// Double-act protection: the bot only moves in reaction to observed,
// committed store state (Observe is fed by the driving session's poller),
// and remembers which turns it already answered and whether an attack of
// its own is still unconfirmed. Without these guards, two observations of
// the same state within one polling interval would create duplicate turns.

package battle

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/vocamonster/apps/go-server/internal/words"
)

const (
	// BotAccuracy is the probability the bot answers a defense correctly.
	BotAccuracy = 0.7

	// BotThinkDelay paces the bot's attacks so a human opponent sees a
	// beat between exchanges.
	BotThinkDelay = 1500 * time.Millisecond
)

// Bot is the scripted responder. Not safe for concurrent use: it is driven
// from a single session's poller, matching the "bot runs inside whichever
// session created the match" model.
type Bot struct {
	engine     *Engine
	vocab      Vocab
	rng        *rand.Rand
	accuracy   float64
	thinkDelay time.Duration

	answered      map[string]struct{} // turn IDs already defended
	attackPending bool                // an own attack is submitted but not yet observed
}

// NewBot constructs a bot with the default accuracy and think delay.
// rng drives both the correctness roll and all option picks; tests pass a
// seeded source.
func NewBot(engine *Engine, vocab Vocab, rng *rand.Rand) *Bot {
	return &Bot{
		engine:     engine,
		vocab:      vocab,
		rng:        rng,
		accuracy:   BotAccuracy,
		thinkDelay: BotThinkDelay,
		answered:   make(map[string]struct{}),
	}
}

// SetThinkDelay overrides the attack pacing (tests use zero).
func (b *Bot) SetThinkDelay(d time.Duration) { b.thinkDelay = d }

// SetAccuracy overrides the correctness probability (tests use 0 or 1).
func (b *Bot) SetAccuracy(p float64) { b.accuracy = p }

// Observe feeds one reconciled snapshot of the match to the bot. open is
// the match's open turn, or nil. The bot acts at most once per call.
func (b *Bot) Observe(ctx context.Context, m *Match, open *Turn) error {
	if m == nil || !m.IsBotMatch() || m.Status == MatchFinished {
		return nil
	}

	if open != nil {
		// Our previous attack has landed in the store; clear the guard.
		if open.Attacker == BotID {
			b.attackPending = false
		}
		if open.Defender == BotID {
			return b.defend(ctx, open)
		}
		return nil
	}

	if m.TurnHolder == BotID && !b.attackPending {
		return b.attack(ctx, m)
	}
	return nil
}

// defend answers an open turn naming the bot, once.
func (b *Bot) defend(ctx context.Context, open *Turn) error {
	if _, done := b.answered[open.ID]; done {
		return nil
	}
	b.answered[open.ID] = struct{}{}

	entry, err := b.vocab.Get(open.Word)
	if err != nil {
		return err
	}
	choices := GenerateChoices(entry, open.QuestionType, b.vocab.Pool(), b.rng)

	answer := choices.Correct
	if b.rng.Float64() >= b.accuracy {
		answer = b.wrongOption(choices)
	}

	_, _, _, err = b.engine.SubmitDefense(ctx, open.ID, answer)
	if err != nil {
		// Allow a retry on a later observation.
		delete(b.answered, open.ID)
		return err
	}
	log.Debug().Str("turnId", open.ID).Str("word", open.Word).Msg("bot defended")
	return nil
}

// wrongOption picks a non-canonical option from the generated set.
// Falls back to the timed-out sentinel if every option is the correct one.
func (b *Bot) wrongOption(c Choices) string {
	wrong := make([]string, 0, len(c.Options))
	for _, o := range c.Options {
		if normalize(o) != normalize(c.Correct) {
			wrong = append(wrong, o)
		}
	}
	if len(wrong) == 0 {
		return TimedOutAnswer
	}
	return wrong[b.rng.Intn(len(wrong))]
}

// attack picks a random word and supported question type and opens a turn
// after the think delay.
func (b *Bot) attack(ctx context.Context, m *Match) error {
	pool := b.vocab.Pool()
	if len(pool) == 0 {
		return words.ErrNotFound
	}
	entry := pool[b.rng.Intn(len(pool))]
	types := SupportedTypes(entry)
	qt := types[b.rng.Intn(len(types))]

	if b.thinkDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.thinkDelay):
		}
	}

	b.attackPending = true
	_, err := b.engine.SubmitAttack(ctx, m.ID, BotID, entry.Word, qt)
	if err != nil {
		b.attackPending = false
		// Losing the race to an existing open turn just means the state
		// moved on; the next observation re-decides.
		if err == ErrTurnOpen || err == ErrNotYourTurn || err == ErrMatchFinished {
			return nil
		}
		return err
	}
	log.Debug().Str("matchId", m.ID).Str("word", entry.Word).Str("type", string(qt)).Msg("bot attacked")
	return nil
}
