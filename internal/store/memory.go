// apps/go-server/internal/store/memory.go
//
// In-memory implementation of the battle Match/Turn stores.
// This is a lightweight persistence layer used for ephemeral matches,
// primarily in development/testing, or when durability is not required.
//
// Characteristics:
//   - Stores copies of battle.Match/battle.Turn records keyed by ID.
//   - Concurrency-safe via RWMutex (concurrent reads allowed, writes exclusive).
//   - Enforces the shared-store contracts the engine relies on: at most one
//     open turn per match, and exactly-once turn closure.
//   - State is lost when the process restarts.

package store

import (
	"context"
	"sync"
	"time"

	"github.com/robalobadob/vocamonster/apps/go-server/internal/battle"
)

// Memory is a map-based implementation of battle.MatchStore and
// battle.TurnStore.
type Memory struct {
	mu      sync.RWMutex
	matches map[string]*battle.Match // keyed by Match.ID
	turns   map[string]*battle.Turn  // keyed by Turn.ID
	order   map[string][]string      // matchID → turn IDs in creation order
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		matches: make(map[string]*battle.Match),
		turns:   make(map[string]*battle.Turn),
		order:   make(map[string][]string),
	}
}

// CreateMatch adds a new match record.
func (s *Memory) CreateMatch(ctx context.Context, m *battle.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.matches[m.ID] = &cp
	return nil
}

// GetMatch returns a copy of the match, or battle.ErrNotFound.
func (s *Memory) GetMatch(ctx context.Context, id string) (*battle.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, battle.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

// UpdateMatch overwrites the stored match (last writer wins). A finished
// match is terminal: a write against one is a quiet no-op, so a racing
// surrender can never be resurrected to active by a slower full-record write.
func (s *Memory) UpdateMatch(ctx context.Context, m *battle.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.matches[m.ID]
	if !ok {
		return battle.ErrNotFound
	}
	if cur.Status == battle.MatchFinished {
		return nil
	}
	cp := *m
	s.matches[m.ID] = &cp
	return nil
}

// CreateOpenTurn appends an open turn, enforcing the single-open-turn
// invariant for the match.
func (s *Memory) CreateOpenTurn(ctx context.Context, t *battle.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order[t.MatchID] {
		if s.turns[id].Open() {
			return battle.ErrOpenTurnExists
		}
	}
	cp := *t
	s.turns[t.ID] = &cp
	s.order[t.MatchID] = append(s.order[t.MatchID], t.ID)
	return nil
}

// CloseTurn sets the answer exactly once. A second close attempt fails with
// battle.ErrAlreadyClosed and leaves the record untouched.
func (s *Memory) CloseTurn(ctx context.Context, turnID, answer string, isCorrect bool, damage int) (*battle.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.turns[turnID]
	if !ok {
		return nil, battle.ErrNotFound
	}
	if !t.Open() {
		return nil, battle.ErrAlreadyClosed
	}
	now := time.Now().UTC()
	t.Answer = &answer
	t.IsCorrect = &isCorrect
	t.Damage = damage
	t.AnsweredAt = &now
	cp := *t
	return &cp, nil
}

// GetTurn returns a copy of the turn, or battle.ErrNotFound.
func (s *Memory) GetTurn(ctx context.Context, id string) (*battle.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.turns[id]
	if !ok {
		return nil, battle.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// FindOpenTurn returns the match's single open turn, or battle.ErrNotFound.
func (s *Memory) FindOpenTurn(ctx context.Context, matchID string) (*battle.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order[matchID] {
		if t := s.turns[id]; t.Open() {
			cp := *t
			return &cp, nil
		}
	}
	return nil, battle.ErrNotFound
}

// FindOpenTurnFor returns the open turn naming the participant as defender,
// or battle.ErrNotFound.
func (s *Memory) FindOpenTurnFor(ctx context.Context, defenderID string) (*battle.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.turns {
		if t.Open() && t.Defender == defenderID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, battle.ErrNotFound
}

// LatestTurn returns the most recently created turn for the match, or
// battle.ErrNotFound if the match has none.
func (s *Memory) LatestTurn(ctx context.Context, matchID string) (*battle.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.order[matchID]
	if len(ids) == 0 {
		return nil, battle.ErrNotFound
	}
	cp := *s.turns[ids[len(ids)-1]]
	return &cp, nil
}
