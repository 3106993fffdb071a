// apps/go-server/internal/words/words.go
//
// Provides vocabulary data for the battle engine.
//
// Responsibilities:
//   - Load vocabulary entries (word, meaning, synonyms, antonyms) from an
//     environment-provided JSON file or fall back to the embedded defaults.
//   - Maintain a lookup index for quick Get calls.
//   - Supply utility functions like Get, Random, Pool, Distractors, and Stats.
//
// Initialization behavior (Init):
//   1. If VOCAB_FILE is set, load entries from that JSON file.
//   2. Otherwise, fall back to the embedded default list in assets/vocab.json.
//
// Environment variables:
//   VOCAB_FILE=/path/to/vocab.json
//
// Constraints:
//   • Words are normalized to lowercase and deduplicated (first wins).
//   • Entries without a meaning are dropped.
//   • Initialization is run once (sync.Once).

package words

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"os"
	"strings"
	"sync"

	"github.com/robalobadob/vocamonster/apps/go-server/assets"
)

// Entry is one vocabulary record: a word plus everything the engine can
// ask a question about.
type Entry struct {
	Word     string   `json:"word"`
	Meaning  string   `json:"meaning"`
	Synonyms []string `json:"synonyms,omitempty"`
	Antonyms []string `json:"antonyms,omitempty"`
}

// HasSynonyms reports whether the entry can back a synonym question.
func (e Entry) HasSynonyms() bool { return len(e.Synonyms) > 0 }

// HasAntonyms reports whether the entry can back an antonym question.
func (e Entry) HasAntonyms() bool { return len(e.Antonyms) > 0 }

// ErrNotFound is returned by Get for unknown words.
var ErrNotFound = errors.New("words: not found")

var (
	initOnce    sync.Once
	pool        []Entry          // all loaded entries, stable order
	index       map[string]Entry // keyed by lowercase word
	distractors []string         // static wrong-answer pool
	initialErr  error
)

// Init loads the vocabulary exactly once.
// Returns an error if the entry list ends up empty.
func Init() error {
	initOnce.Do(func() {
		var list []Entry

		if path := os.Getenv("VOCAB_FILE"); path != "" {
			var err error
			list, err = readVocabFile(path)
			if err != nil {
				initialErr = err
				return
			}
		} else {
			raw, err := assets.VocabJSON()
			if err != nil {
				initialErr = err
				return
			}
			if err := json.Unmarshal(raw, &list); err != nil {
				initialErr = err
				return
			}
		}

		pool, index = buildIndex(list)

		distractors, _ = assets.DistractorList()
		if len(distractors) == 0 {
			distractors = builtinDistractors
		}

		if len(pool) == 0 {
			initialErr = errors.New("words: vocabulary is empty")
		}
	})
	return initialErr
}

// readVocabFile loads entries from a JSON array file.
func readVocabFile(path string) ([]Entry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var list []Entry
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// buildIndex normalizes, deduplicates, and indexes the entry list.
func buildIndex(list []Entry) ([]Entry, map[string]Entry) {
	out := make([]Entry, 0, len(list))
	idx := make(map[string]Entry, len(list))
	for _, e := range list {
		e.Word = strings.TrimSpace(strings.ToLower(e.Word))
		e.Meaning = strings.TrimSpace(e.Meaning)
		if e.Word == "" || e.Meaning == "" {
			continue
		}
		if _, dup := idx[e.Word]; dup {
			continue
		}
		idx[e.Word] = e
		out = append(out, e)
	}
	return out, idx
}

// builtinDistractors keeps the choice generator functional even when the
// embedded distractor file is missing or empty.
var builtinDistractors = []string{
	"to move quickly on foot",
	"a large body of salt water",
	"feeling great happiness",
	"to make something smaller",
	"a person who travels to work daily",
	"lasting for a very short time",
	"to speak in a very quiet voice",
	"a building where goods are stored",
}

// Get returns the entry for a word (case-insensitive).
// Fails with ErrNotFound for unknown words.
func Get(word string) (Entry, error) {
	if e, ok := index[strings.ToLower(strings.TrimSpace(word))]; ok {
		return e, nil
	}
	return Entry{}, ErrNotFound
}

// Random returns a cryptographically random entry from the pool.
// Returns the zero Entry if the pool is not loaded.
func Random() Entry {
	if len(pool) == 0 {
		return Entry{}
	}
	nBig, _ := rand.Int(rand.Reader, big.NewInt(int64(len(pool))))
	return pool[nBig.Int64()]
}

// Pool returns all loaded entries (stable order; callers must not mutate).
func Pool() []Entry { return pool }

// Distractors returns the static wrong-answer pool used to pad
// multiple-choice sets. Never empty: falls back to the builtin list
// so the choice generator can always offer at least two options.
func Distractors() []string {
	if len(distractors) == 0 {
		return builtinDistractors
	}
	return distractors
}

// Stats returns counts of loaded data: (entries, distractors).
func Stats() (entryCount int, distractorCount int) {
	return len(pool), len(distractors)
}

// Source adapts the package-level vocabulary to the battle engine's
// provider interface.
type Source struct{}

func (Source) Get(word string) (Entry, error) { return Get(word) }
func (Source) Pool() []Entry { return Pool() }
