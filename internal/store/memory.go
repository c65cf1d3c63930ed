// internal/store/memory.go
//
// In-memory implementation of the game.Store interface.
// Puzzles and sessions live only for the duration of play; completed
// sessions are summarized to the persistence sink and everything here is
// lost on restart (best-effort, matching the engine's at-most-once
// gameplay semantics).
//
// Locking model:
//   - An RWMutex guards the maps (insert/lookup/delete).
//   - Each entry carries its own mutex; Update callbacks run under it, so
//     check-then-set sequences (processed flag, session completion) are
//     atomic per entity.
//   - Entries deleted by the sweep are tombstoned (gone=true) under the
//     entry lock first, so an operation that raced the sweep observes
//     ErrNotFound instead of mutating a removed record.
//   - Nothing acquires the map lock while holding an entry lock; the map
//     lock may be held while taking an entry lock. That one-way ordering
//     rules out deadlock.

package store

import (
	"context"
	"sync"
	"time"

	"github.com/danbi-edu/puzzle-go/internal/game"
)

type puzzleEntry struct {
	mu   sync.Mutex
	gone bool
	p    *game.Puzzle
}

type sessionEntry struct {
	mu   sync.Mutex
	gone bool
	s    *game.Session
}

// Memory is a map-based store for puzzles and sessions.
type Memory struct {
	mu       sync.RWMutex
	puzzles  map[string]*puzzleEntry
	sessions map[string]*sessionEntry
	open     map[string]string // playerID → last open session ID
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		puzzles:  make(map[string]*puzzleEntry),
		sessions: make(map[string]*sessionEntry),
		open:     make(map[string]string),
	}
}

// ------------------------------ puzzles ------------------------------------

// PutPuzzle inserts a puzzle.
func (m *Memory) PutPuzzle(ctx context.Context, p *game.Puzzle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puzzles[p.ID] = &puzzleEntry{p: p}
	return nil
}

// GetPuzzle returns a value snapshot of a puzzle.
func (m *Memory) GetPuzzle(ctx context.Context, id string) (game.Puzzle, error) {
	m.mu.RLock()
	e, ok := m.puzzles[id]
	m.mu.RUnlock()
	if !ok {
		return game.Puzzle{}, game.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gone {
		return game.Puzzle{}, game.ErrNotFound
	}
	return *e.p, nil
}

// UpdatePuzzle runs fn on the puzzle under its entry lock.
func (m *Memory) UpdatePuzzle(ctx context.Context, id string, fn func(*game.Puzzle) error) error {
	m.mu.RLock()
	e, ok := m.puzzles[id]
	m.mu.RUnlock()
	if !ok {
		return game.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gone {
		return game.ErrNotFound
	}
	return fn(e.p)
}

// ------------------------------ sessions -----------------------------------

// GetSession returns a value snapshot of a session.
func (m *Memory) GetSession(ctx context.Context, id string) (game.Session, error) {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return game.Session{}, game.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gone {
		return game.Session{}, game.ErrNotFound
	}
	return *e.s, nil
}

// UpdateSession runs fn on the session under its entry lock.
func (m *Memory) UpdateSession(ctx context.Context, id string, fn func(*game.Session) error) error {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return game.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gone {
		return game.ErrNotFound
	}
	return fn(e.s)
}

// OpenSession returns the player's open session or inserts the one built
// by fresh. Held under the map write lock so two concurrent calls for the
// same player cannot both create a session.
func (m *Memory) OpenSession(ctx context.Context, playerID string, fresh func() *game.Session) (game.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if snap, ok := m.openLocked(playerID); ok {
		return snap, nil
	}
	s := fresh()
	m.sessions[s.ID] = &sessionEntry{s: s}
	m.open[playerID] = s.ID
	return *s, nil
}

// FindOpenSession returns the player's open session without creating one.
func (m *Memory) FindOpenSession(ctx context.Context, playerID string) (game.Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.openLocked(playerID)
	return snap, ok, nil
}

// openLocked resolves the player's open-session index entry. The mapping
// is left in place when the session has filled up or completed; it is
// simply superseded on the next OpenSession and removed by the sweep.
// Callers hold m.mu (read or write).
func (m *Memory) openLocked(playerID string) (game.Session, bool) {
	id, ok := m.open[playerID]
	if !ok {
		return game.Session{}, false
	}
	e, ok := m.sessions[id]
	if !ok {
		return game.Session{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gone || !e.s.Open() {
		return game.Session{}, false
	}
	return *e.s, true
}

// ------------------------------- sweep -------------------------------------

// Sweep tombstones and deletes puzzles and sessions created before cutoff.
func (m *Memory) Sweep(ctx context.Context, cutoff time.Time) (int, int, error) {
	m.mu.RLock()
	puzzles := make(map[string]*puzzleEntry, len(m.puzzles))
	for id, e := range m.puzzles {
		puzzles[id] = e
	}
	sessions := make(map[string]*sessionEntry, len(m.sessions))
	for id, e := range m.sessions {
		sessions[id] = e
	}
	m.mu.RUnlock()

	var puzzleIDs []string
	for id, e := range puzzles {
		e.mu.Lock()
		if !e.gone && e.p.CreatedAt.Before(cutoff) {
			e.gone = true
			puzzleIDs = append(puzzleIDs, id)
		}
		e.mu.Unlock()
	}

	var sessionIDs []string
	players := make(map[string]string) // session ID → player ID
	for id, e := range sessions {
		e.mu.Lock()
		if !e.gone && e.s.StartedAt.Before(cutoff) {
			e.gone = true
			sessionIDs = append(sessionIDs, id)
			players[id] = e.s.PlayerID
		}
		e.mu.Unlock()
	}

	m.mu.Lock()
	for _, id := range puzzleIDs {
		delete(m.puzzles, id)
	}
	for _, id := range sessionIDs {
		delete(m.sessions, id)
		if player, ok := players[id]; ok && m.open[player] == id {
			delete(m.open, player)
		}
	}
	m.mu.Unlock()

	return len(puzzleIDs), len(sessionIDs), nil
}

// Counts returns the number of stored puzzles and sessions.
func (m *Memory) Counts(ctx context.Context) (int, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.puzzles), len(m.sessions), nil
}
