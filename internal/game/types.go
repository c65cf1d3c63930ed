// internal/game/types.go
//
// Core type definitions for the sentence puzzle engine.
// Defines:
//   - State: puzzle lifecycle state (active/solved/failed/skipped).
//   - Piece: one shuffled word unit shown to the player.
//   - Puzzle: state for a single in-progress or completed puzzle.
//   - Session: the bounded 10-puzzle unit of play per player.
//   - Sentinel errors shared across store, engine, and transport.

package game

import (
	"errors"
	"fmt"
	"time"
)

const (
	// MaxAttempts is the number of answer submissions allowed per puzzle.
	MaxAttempts = 2
	// MaxHints is the number of hints allowed per puzzle.
	MaxHints = 3
	// SessionLength is the number of terminal puzzles that complete a session.
	SessionLength = 10
)

var (
	// ErrNotFound indicates an unknown puzzle or session ID.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyProcessed indicates an operation on a terminal puzzle.
	ErrAlreadyProcessed = errors.New("puzzle already processed")
	// ErrNoCorpusForAge indicates the requested age has no corpus entries.
	ErrNoCorpusForAge = fmt.Errorf("no corpus entries for age: %w", ErrNotFound)
)

// State represents the lifecycle state of a puzzle.
// A puzzle starts active and transitions exactly once to one of the
// terminal states; no field changes after that.
type State string

const (
	StateActive  State = "active"
	StateSolved  State = "solved"
	StateFailed  State = "failed"
	StateSkipped State = "skipped"
)

// Terminal reports whether the state accepts no further mutation.
func (s State) Terminal() bool { return s != StateActive }

// Piece is one shuffled word shown to the player. ID and Position both
// carry the word's original index; they exist for client rendering only
// and play no part in answer verification.
type Piece struct {
	ID       int    `json:"id"`
	Word     string `json:"word"`
	Position int    `json:"position"`
}

// Puzzle holds the state of a single sentence puzzle.
// CanonicalText, CanonicalWords, and Pieces are immutable after creation;
// only Attempts, HintsUsed, State, and Score mutate, and only while the
// puzzle is active.
type Puzzle struct {
	ID             string
	SessionID      string
	PlayerID       string
	CanonicalText  string
	CanonicalWords []string
	Pieces         []Piece
	Age            int
	Title          string
	Attempts       int
	HintsUsed      int
	State          State
	Score          int
	CreatedAt      time.Time
}

// Processed reports whether the puzzle reached a terminal state.
func (p *Puzzle) Processed() bool { return p.State.Terminal() }

// Session aggregates terminal puzzle outcomes for one player.
type Session struct {
	ID               string
	PlayerID         string
	InitialAge       int
	CurrentAge       int
	PuzzlesAttempted int
	PuzzlesSolved    int
	TotalScore       int
	Completed        bool
	StartedAt        time.Time
}

// Open reports whether the session still accepts puzzles.
func (s *Session) Open() bool {
	return !s.Completed && s.PuzzlesAttempted < SessionLength
}

// Progress renders the session progress counter, e.g. "3/10".
func (s *Session) Progress() string {
	return fmt.Sprintf("%d/%d", s.PuzzlesAttempted, SessionLength)
}

// SessionResult is the record handed to the persistence sink exactly once
// when a session completes. Score is the per-puzzle-normalized aggregate.
type SessionResult struct {
	PlayerID      string
	InitialAge    int
	FinalAge      int
	PuzzlesSolved int
	Score         int
}
