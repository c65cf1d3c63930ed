// internal/game/engine.go
//
// Engine drives the per-puzzle state machine and per-player sessions.
// Responsibilities:
//   - Generate: sample a puzzle and attach it to the player's open session
//     (created lazily; at most one open session per player).
//   - Submit: run verification, apply the active→solved/failed transition,
//     and update session aggregates.
//   - Hint: reveal first/last/middle canonical words in fixed order.
//   - Skip: force the active→skipped transition (scores 0, still counts
//     toward the session's 10-puzzle budget).
//   - Persist the session summary exactly once when the 10th terminal
//     outcome lands; persistence failures are logged, never rolled back
//     into gameplay state.
//
// Concurrency: every check-then-set runs inside the Store's per-entry
// locked Update callbacks, so a puzzle transitions to a terminal state at
// most once and two puzzles resolving concurrently cannot both trigger
// session completion.

package game

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Store is the engine's view of puzzle/session storage. Get* return value
// snapshots; all mutation goes through the Update callbacks, which run
// under a per-entry lock. Update must not apply partial mutations when the
// callback returns an error.
type Store interface {
	PutPuzzle(ctx context.Context, p *Puzzle) error
	GetPuzzle(ctx context.Context, id string) (Puzzle, error)
	UpdatePuzzle(ctx context.Context, id string, fn func(*Puzzle) error) error

	GetSession(ctx context.Context, id string) (Session, error)
	UpdateSession(ctx context.Context, id string, fn func(*Session) error) error

	// OpenSession returns the player's open session, creating one from
	// fresh if none exists. The check-or-create is atomic per player.
	OpenSession(ctx context.Context, playerID string, fresh func() *Session) (Session, error)
	// FindOpenSession returns the player's open session without creating one.
	FindOpenSession(ctx context.Context, playerID string) (Session, bool, error)

	// Sweep removes puzzles and sessions created before cutoff, taking the
	// same per-entry locks as in-flight operations.
	Sweep(ctx context.Context, cutoff time.Time) (puzzles, sessions int, err error)
	Counts(ctx context.Context) (puzzles, sessions int, err error)
}

// ResultSink receives one SessionResult per completed session.
type ResultSink interface {
	SaveResult(ctx context.Context, r SessionResult) error
}

// Engine wires the generator, store, and result sink together.
type Engine struct {
	gen   *Generator
	store Store
	sink  ResultSink
}

// NewEngine constructs an Engine.
func NewEngine(gen *Generator, store Store, sink ResultSink) *Engine {
	return &Engine{gen: gen, store: store, sink: sink}
}

// ------------------------------ generate -----------------------------------

// GenerateResult is returned for a new puzzle.
type GenerateResult struct {
	PuzzleID        string  `json:"puzzleId"`
	Age             int     `json:"age"`
	Title           string  `json:"title"`
	Pieces          []Piece `json:"pieces"`
	WordCount       int     `json:"wordCount"`
	SessionProgress string  `json:"sessionProgress"`
}

// Generate samples a puzzle for the age and attaches it to the player's
// open session, creating the session if needed.
func (e *Engine) Generate(ctx context.Context, age int, playerID string) (GenerateResult, error) {
	content, err := e.gen.Generate(age)
	if err != nil {
		return GenerateResult{}, err
	}

	sess, err := e.store.OpenSession(ctx, playerID, func() *Session {
		return &Session{
			ID:         uuid.NewString(),
			PlayerID:   playerID,
			InitialAge: age,
			CurrentAge: age,
			StartedAt:  time.Now().UTC(),
		}
	})
	if err != nil {
		return GenerateResult{}, err
	}

	p := &Puzzle{
		ID:             uuid.NewString(),
		SessionID:      sess.ID,
		PlayerID:       playerID,
		CanonicalText:  content.Text,
		CanonicalWords: content.Words,
		Pieces:         content.Pieces,
		Age:            content.Age,
		Title:          content.Title,
		State:          StateActive,
		CreatedAt:      time.Now().UTC(),
	}
	if err := e.store.PutPuzzle(ctx, p); err != nil {
		return GenerateResult{}, err
	}

	return GenerateResult{
		PuzzleID:        p.ID,
		Age:             p.Age,
		Title:           p.Title,
		Pieces:          p.Pieces,
		WordCount:       len(content.Words),
		SessionProgress: sess.Progress(),
	}, nil
}

// ------------------------------- submit ------------------------------------

// SubmitResult is returned for an answer submission. OriginalSentence is
// revealed only once the puzzle is processed; FinalScore only when the
// submission completed the session.
type SubmitResult struct {
	Passed           bool    `json:"passed"`
	ExactMatch       bool    `json:"exactMatch"`
	Similarity       float64 `json:"similarity"`
	Message          string  `json:"message"`
	Score            *int    `json:"score,omitempty"`
	OriginalSentence string  `json:"originalSentence,omitempty"`
	Attempts         int     `json:"attempts"`
	MaxAttempts      int     `json:"maxAttempts"`
	SessionProgress  string  `json:"sessionProgress"`
	SessionComplete  bool    `json:"sessionComplete"`
	FinalScore       *int    `json:"finalScore,omitempty"`
}

// Submit verifies an answer against a puzzle. A passing answer transitions
// the puzzle to solved; a failing answer on the last allowed attempt forces
// failed with score 0. Either terminal outcome updates the owning session.
func (e *Engine) Submit(ctx context.Context, puzzleID, answer string) (SubmitResult, error) {
	var snap Puzzle
	var fb Feedback
	err := e.store.UpdatePuzzle(ctx, puzzleID, func(p *Puzzle) error {
		if p.Processed() {
			return ErrAlreadyProcessed
		}
		p.Attempts++
		fb = Evaluate(p.CanonicalText, p.CanonicalWords, answer)
		switch {
		case fb.Passed:
			p.State = StateSolved
			p.Score = ComputeScore(p.Attempts, p.HintsUsed, fb.PositionSimilarity)
		case p.Attempts >= MaxAttempts:
			p.State = StateFailed
			p.Score = 0
		}
		snap = *p
		return nil
	})
	if err != nil {
		return SubmitResult{}, err
	}

	res := SubmitResult{
		Passed:      fb.Passed,
		ExactMatch:  fb.ExactMatch,
		Similarity:  fb.PositionSimilarity,
		Message:     fb.Message,
		Attempts:    snap.Attempts,
		MaxAttempts: MaxAttempts,
	}

	if !snap.Processed() {
		res.Message += fmt.Sprintf(" (attempt %d/%d)", snap.Attempts, MaxAttempts)
		sess, err := e.store.GetSession(ctx, snap.SessionID)
		if err == nil {
			res.SessionProgress = sess.Progress()
		}
		return res, nil
	}

	if snap.State == StateFailed {
		res.Message = fmt.Sprintf("Out of attempts (%d). The sentence was: %s", MaxAttempts, snap.CanonicalText)
	}
	res.OriginalSentence = snap.CanonicalText
	score := snap.Score
	res.Score = &score

	sess := e.recordOutcome(ctx, snap)
	res.SessionProgress = sess.Progress()
	res.SessionComplete = sess.Completed
	if sess.Completed {
		final := sess.TotalScore
		res.FinalScore = &final
	}
	return res, nil
}

// -------------------------------- hint -------------------------------------

// Hint is one revealed clue.
type Hint struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// HintResult is returned for a hint request.
type HintResult struct {
	Hints     []Hint `json:"hints"`
	HintsUsed int    `json:"hintsUsed"`
	MaxHints  int    `json:"maxHints"`
}

// Hint reveals, in fixed order, the first, last, and middle canonical
// words. Once the budget is spent it reports "no hints left" without side
// effects.
func (e *Engine) Hint(ctx context.Context, puzzleID string) (HintResult, error) {
	var out HintResult
	err := e.store.UpdatePuzzle(ctx, puzzleID, func(p *Puzzle) error {
		if p.Processed() {
			return ErrAlreadyProcessed
		}
		if p.HintsUsed >= MaxHints {
			out = HintResult{
				Hints:     []Hint{{Type: "max_reached", Message: "No hints left."}},
				HintsUsed: p.HintsUsed,
				MaxHints:  MaxHints,
			}
			return nil
		}

		words := p.CanonicalWords
		var h Hint
		switch p.HintsUsed {
		case 0:
			h = Hint{Type: "first_word", Message: fmt.Sprintf("The first word is %q.", words[0])}
		case 1:
			h = Hint{Type: "last_word", Message: fmt.Sprintf("The last word is %q.", words[len(words)-1])}
		case 2:
			mid := len(words) / 2
			h = Hint{Type: "middle_word", Message: fmt.Sprintf("Word %d is %q.", mid+1, words[mid])}
		}
		p.HintsUsed++
		out = HintResult{Hints: []Hint{h}, HintsUsed: p.HintsUsed, MaxHints: MaxHints}
		return nil
	})
	return out, err
}

// -------------------------------- skip -------------------------------------

// SkipResult is returned when a puzzle is skipped.
type SkipResult struct {
	Message          string `json:"message"`
	OriginalSentence string `json:"originalSentence"`
	SessionProgress  string `json:"sessionProgress"`
	SessionComplete  bool   `json:"sessionComplete"`
	FinalScore       *int   `json:"finalScore,omitempty"`
}

// Skip forces an active puzzle to skipped with score 0. The skip counts
// toward the session's 10-puzzle budget.
func (e *Engine) Skip(ctx context.Context, puzzleID string) (SkipResult, error) {
	var snap Puzzle
	err := e.store.UpdatePuzzle(ctx, puzzleID, func(p *Puzzle) error {
		if p.Processed() {
			return ErrAlreadyProcessed
		}
		p.State = StateSkipped
		p.Score = 0
		snap = *p
		return nil
	})
	if err != nil {
		return SkipResult{}, err
	}

	sess := e.recordOutcome(ctx, snap)
	res := SkipResult{
		Message:          "Puzzle skipped.",
		OriginalSentence: snap.CanonicalText,
		SessionProgress:  sess.Progress(),
		SessionComplete:  sess.Completed,
	}
	if sess.Completed {
		final := sess.TotalScore
		res.FinalScore = &final
	}
	return res, nil
}

// ------------------------------- status ------------------------------------

// SessionStatus reports the player's current open session, if any.
type SessionStatus struct {
	InProgress       bool   `json:"inProgress"`
	PuzzlesAttempted int    `json:"puzzlesAttempted,omitempty"`
	PuzzlesSolved    int    `json:"puzzlesSolved,omitempty"`
	CurrentScore     int    `json:"currentScore,omitempty"`
	InitialAge       int    `json:"initialAge,omitempty"`
	CurrentAge       int    `json:"currentAge,omitempty"`
	Progress         string `json:"progress,omitempty"`
}

// Status returns the player's open-session snapshot.
func (e *Engine) Status(ctx context.Context, playerID string) (SessionStatus, error) {
	sess, ok, err := e.store.FindOpenSession(ctx, playerID)
	if err != nil {
		return SessionStatus{}, err
	}
	if !ok {
		return SessionStatus{InProgress: false}, nil
	}
	return SessionStatus{
		InProgress:       true,
		PuzzlesAttempted: sess.PuzzlesAttempted,
		PuzzlesSolved:    sess.PuzzlesSolved,
		CurrentScore:     sess.TotalScore,
		InitialAge:       sess.InitialAge,
		CurrentAge:       sess.CurrentAge,
		Progress:         sess.Progress(),
	}, nil
}

// ----------------------------- internals -----------------------------------

// recordOutcome applies one terminal puzzle to its session. The session
// lock serializes concurrent terminal puzzles, so completion flips exactly
// once; that single flip gates the persistence call.
func (e *Engine) recordOutcome(ctx context.Context, p Puzzle) Session {
	var snap Session
	completedNow := false
	err := e.store.UpdateSession(ctx, p.SessionID, func(s *Session) error {
		s.PuzzlesAttempted++
		if p.State == StateSolved {
			s.PuzzlesSolved++
		}
		s.TotalScore += p.Score
		s.CurrentAge = p.Age
		if s.PuzzlesAttempted >= SessionLength && !s.Completed {
			s.Completed = true
			completedNow = true
		}
		snap = *s
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("sessionId", p.SessionID).Str("puzzleId", p.ID).
			Msg("record terminal outcome")
		return Session{}
	}
	if completedNow {
		e.persist(ctx, snap)
	}
	return snap
}

// persist hands the completed session to the sink. Best effort: failures
// are logged and the in-memory session stays completed.
func (e *Engine) persist(ctx context.Context, s Session) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	r := SessionResult{
		PlayerID:      s.PlayerID,
		InitialAge:    s.InitialAge,
		FinalAge:      s.CurrentAge,
		PuzzlesSolved: s.PuzzlesSolved,
		Score:         int(math.Round(float64(s.TotalScore) / float64(SessionLength))),
	}
	if err := e.sink.SaveResult(ctx, r); err != nil {
		log.Error().Err(err).Str("playerId", s.PlayerID).Str("sessionId", s.ID).
			Msg("save session result")
		return
	}
	log.Info().Str("playerId", s.PlayerID).Int("solved", s.PuzzlesSolved).
		Int("score", r.Score).Msg("session completed")
}

// SweepExpired evicts puzzles and sessions older than ttl.
func (e *Engine) SweepExpired(ctx context.Context, ttl time.Duration) {
	puzzles, sessions, err := e.store.Sweep(ctx, time.Now().UTC().Add(-ttl))
	if err != nil {
		log.Error().Err(err).Msg("retention sweep")
		return
	}
	if puzzles > 0 || sessions > 0 {
		log.Info().Int("puzzles", puzzles).Int("sessions", sessions).Msg("retention sweep")
	}
}

// RunSweeper runs the retention sweep on a ticker until ctx is done.
func (e *Engine) RunSweeper(ctx context.Context, interval, ttl time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.SweepExpired(ctx, ttl)
		}
	}
}
