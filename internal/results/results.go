// internal/results/results.go
//
// SQLite-backed persistence for completed-session summaries.
// Implements the engine's ResultSink (SaveResult) and serves the read
// paths used by the HTTP layer (recent results per player, leaderboard).
// Rows land in the session_results table created by sql/001_init.sql.

package results

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/danbi-edu/puzzle-go/internal/game"
)

// Store wraps the results table.
type Store struct{ db *sql.DB }

// NewStore constructs a Store over an opened database handle.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// SaveResult inserts one completed-session row.
func (s *Store) SaveResult(ctx context.Context, r game.SessionResult) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO session_results (id, player_id, initial_age, final_age, puzzles_solved, score)
        VALUES (?,?,?,?,?,?)`,
		uuid.NewString(), r.PlayerID, r.InitialAge, r.FinalAge, r.PuzzlesSolved, r.Score,
	)
	return err
}

// Row is one persisted session summary as returned to clients.
type Row struct {
	ID            string `json:"id"`
	InitialAge    int    `json:"initialAge"`
	FinalAge      int    `json:"finalAge"`
	PuzzlesSolved int    `json:"puzzlesSolved"`
	Score         int    `json:"score"`
	CreatedAt     string `json:"createdAt"`
}

// Recent returns the player's latest completed sessions, newest first.
// Default limit is 20.
func (s *Store) Recent(ctx context.Context, playerID string, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, initial_age, final_age, puzzles_solved, score, created_at
        FROM session_results
        WHERE player_id=?
        ORDER BY created_at DESC
        LIMIT ?`, playerID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Row{}
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.InitialAge, &r.FinalAge, &r.PuzzlesSolved, &r.Score, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LBRow is one leaderboard entry.
type LBRow struct {
	PlayerID      string `json:"playerId"`
	Score         int    `json:"score"`
	PuzzlesSolved int    `json:"puzzlesSolved"`
}

// Leaderboard returns the top normalized session scores.
// Ordered by score DESC, then solved count DESC, then age of the row.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]LBRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT player_id, score, puzzles_solved
        FROM session_results
        ORDER BY score DESC, puzzles_solved DESC, created_at ASC
        LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []LBRow{}
	for rows.Next() {
		var r LBRow
		if err := rows.Scan(&r.PlayerID, &r.Score, &r.PuzzlesSolved); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
