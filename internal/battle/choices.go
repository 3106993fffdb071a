// apps/go-server/internal/battle/choices.go
//
// Multiple-choice generation for battle questions.
// Responsibilities:
//   - Resolve the effective question type (synonym/antonym fall back to
//     meaning when the word's list is empty).
//   - Produce a shuffled option set containing exactly one correct answer.
//   - Pull distractors from the rest of the active pool first, then pad
//     from the static distractor pool.
//
// Determinism: for a fixed *rand.Rand seed and fixed inputs, the option SET
// is reproducible; the display order is not part of the contract. The
// canonical answer is tracked separately from display order.

package battle

import (
	"math/rand"
	"strings"

	"github.com/robalobadob/vocamonster/apps/go-server/internal/words"
)

const (
	maxOptions     = 5 // correct answer + up to 4 distractors
	maxDistractors = maxOptions - 1
)

// Choices is one generated question: the effective type actually used for
// scoring, the canonical correct answer, and the shuffled display options.
type Choices struct {
	Effective QuestionType `json:"effective"`
	Correct   string       `json:"correct"`
	Options   []string     `json:"options"`
}

// SupportedTypes lists the question types an entry can back.
// Meaning is always included.
func SupportedTypes(e words.Entry) []QuestionType {
	types := []QuestionType{QuestionMeaning}
	if e.HasSynonyms() {
		types = append(types, QuestionSynonym)
	}
	if e.HasAntonyms() {
		types = append(types, QuestionAntonym)
	}
	return types
}

// EffectiveType downgrades a requested question type to meaning when the
// entry cannot back it. Callers must score against the effective type,
// never the requested one.
func EffectiveType(e words.Entry, qt QuestionType) QuestionType {
	switch qt {
	case QuestionSynonym:
		if e.HasSynonyms() {
			return QuestionSynonym
		}
	case QuestionAntonym:
		if e.HasAntonyms() {
			return QuestionAntonym
		}
	case QuestionMeaning:
		return QuestionMeaning
	}
	return QuestionMeaning
}

// CanonicalAnswer returns the single correct answer for (entry, type).
// The type must already be effective; an unsupported type yields the
// meaning, matching the creation-time downgrade.
func CanonicalAnswer(e words.Entry, qt QuestionType) string {
	switch qt {
	case QuestionSynonym:
		if e.HasSynonyms() {
			return e.Synonyms[0]
		}
	case QuestionAntonym:
		if e.HasAntonyms() {
			return e.Antonyms[0]
		}
	}
	return e.Meaning
}

// GenerateChoices builds the multiple-choice set for an entry.
// pool is the active vocabulary (the entry itself is skipped); rng drives
// distractor sampling and the final shuffle. The result always holds
// between 2 and maxOptions unique options including the correct answer.
func GenerateChoices(e words.Entry, qt QuestionType, pool []words.Entry, rng *rand.Rand) Choices {
	effective := EffectiveType(e, qt)
	correct := CanonicalAnswer(e, effective)

	seen := map[string]struct{}{normalize(correct): {}}
	options := []string{correct}

	add := func(candidate string) bool {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			return false
		}
		key := normalize(candidate)
		if _, dup := seen[key]; dup {
			return false
		}
		seen[key] = struct{}{}
		options = append(options, candidate)
		return len(options) == maxOptions
	}

	// Distractors from the rest of the pool, sampled in a seeded order.
	for _, i := range rng.Perm(len(pool)) {
		other := pool[i]
		if other.Word == e.Word {
			continue
		}
		if add(distractorFrom(other, effective)) {
			break
		}
	}

	// Pad from the static pool when the vocabulary ran dry.
	if len(options) < maxOptions {
		static := words.Distractors()
		for _, i := range rng.Perm(len(static)) {
			if add(static[i]) {
				break
			}
		}
	}

	rng.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})

	return Choices{Effective: effective, Correct: correct, Options: options}
}

// distractorFrom picks the candidate wrong answer another entry contributes
// for the given question type.
func distractorFrom(e words.Entry, qt QuestionType) string {
	switch qt {
	case QuestionSynonym:
		if e.HasSynonyms() {
			return e.Synonyms[0]
		}
	case QuestionAntonym:
		if e.HasAntonyms() {
			return e.Antonyms[0]
		}
	default:
		return e.Meaning
	}
	return ""
}

// normalize is the dedup key for option comparison.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
