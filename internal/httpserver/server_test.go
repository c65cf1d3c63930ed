package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danbi-edu/puzzle-go/internal/corpus"
	"github.com/danbi-edu/puzzle-go/internal/game"
	"github.com/danbi-edu/puzzle-go/internal/results"
	"github.com/danbi-edu/puzzle-go/internal/store"
)

func newTestServer(t *testing.T) (*Server, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	idx := corpus.FromEntries([]corpus.Entry{
		{Text: "아기 토끼는 숲 속에서 그만 길을 잃었습니다.", Age: 7, Title: "숲 속 이야기", Type: "fairytale"},
	})
	res := results.NewStore(db)
	engine := game.NewEngine(game.NewGenerator(idx), store.NewMemory(), res)
	return New(engine, res, idx), mock
}

func doJSON(t *testing.T, s *Server, method, path string, body any, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodOptions, "/puzzle/new", nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestNewPuzzleSetsAnonCookie(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/puzzle/new", map[string]int{"age": 7}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decode[game.GenerateResult](t, rec)
	assert.NotEmpty(t, res.PuzzleID)
	assert.Equal(t, 7, res.Age)
	assert.Len(t, res.Pieces, 7)
	assert.Equal(t, "0/10", res.SessionProgress)

	var anon *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == anonCookieName {
			anon = c
		}
	}
	require.NotNil(t, anon, "anonymous cookie should be set for guests")
	assert.NotEmpty(t, anon.Value)
	assert.True(t, anon.HttpOnly)
}

func TestNewPuzzleInvalidAge(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/puzzle/new", map[string]int{"age": 0}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_age")
}

func TestNewPuzzleUnknownAge(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/puzzle/new", map[string]int{"age": 42}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewPuzzleBadJSON(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/puzzle/new", strings.NewReader("{nope"))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "bad_json")
}

// canonicalAnswer reassembles the original sentence from shuffled pieces.
func canonicalAnswer(pieces []game.Piece) string {
	ordered := append([]game.Piece(nil), pieces...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Position < ordered[j].Position })
	words := make([]string, len(ordered))
	for i, p := range ordered {
		words[i] = p.Word
	}
	return strings.Join(words, " ")
}

func TestAnswerRoundTrip(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/puzzle/new", map[string]int{"age": 7}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	gen := decode[game.GenerateResult](t, rec)

	rec = doJSON(t, s, http.MethodPost, "/puzzle/answer", map[string]string{
		"puzzleId": gen.PuzzleID,
		"answer":   canonicalAnswer(gen.Pieces),
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decode[game.SubmitResult](t, rec)
	assert.True(t, res.Passed)
	assert.True(t, res.ExactMatch)
	require.NotNil(t, res.Score)
	assert.Equal(t, 100, *res.Score)
	assert.Equal(t, "1/10", res.SessionProgress)
}

func TestAnswerWrongWordsIsOK(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/puzzle/new", map[string]int{"age": 7}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	gen := decode[game.GenerateResult](t, rec)

	// A failed verification is a normal response, not an HTTP error.
	rec = doJSON(t, s, http.MethodPost, "/puzzle/answer", map[string]string{
		"puzzleId": gen.PuzzleID,
		"answer":   "완전히 다른 단어들 입니다.",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	res := decode[game.SubmitResult](t, rec)
	assert.False(t, res.Passed)
	assert.Equal(t, 1, res.Attempts)
	assert.Nil(t, res.Score)
}

func TestAnswerUnknownPuzzle(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/puzzle/answer", map[string]string{
		"puzzleId": "does-not-exist",
		"answer":   "아무 말.",
	}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_found")
}

func TestSkipTwiceConflicts(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/puzzle/new", map[string]int{"age": 7}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	gen := decode[game.GenerateResult](t, rec)

	body := map[string]string{"puzzleId": gen.PuzzleID}
	rec = doJSON(t, s, http.MethodPost, "/puzzle/skip", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/puzzle/skip", body, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already_processed")
}

func TestHintBudgetOverHTTP(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/puzzle/new", map[string]int{"age": 7}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	gen := decode[game.GenerateResult](t, rec)

	body := map[string]string{"puzzleId": gen.PuzzleID}
	for i := 1; i <= 3; i++ {
		rec = doJSON(t, s, http.MethodPost, "/puzzle/hint", body, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		res := decode[game.HintResult](t, rec)
		assert.Equal(t, i, res.HintsUsed)
	}

	rec = doJSON(t, s, http.MethodPost, "/puzzle/hint", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[game.HintResult](t, rec)
	require.Len(t, res.Hints, 1)
	assert.Equal(t, "max_reached", res.Hints[0].Type)
}

func TestSessionStatusFollowsCookie(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/session/me", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[game.SessionStatus](t, rec)
	assert.False(t, status.InProgress)

	rec = doJSON(t, s, http.MethodPost, "/puzzle/new", map[string]int{"age": 7}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	gen := decode[game.GenerateResult](t, rec)

	rec = doJSON(t, s, http.MethodPost, "/puzzle/answer", map[string]string{
		"puzzleId": gen.PuzzleID,
		"answer":   canonicalAnswer(gen.Pieces),
	}, cookies)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/session/me", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	status = decode[game.SessionStatus](t, rec)
	assert.True(t, status.InProgress)
	assert.Equal(t, 1, status.PuzzlesAttempted)
	assert.Equal(t, "1/10", status.Progress)
}

func TestMyResultsUsesJWTIdentity(t *testing.T) {
	s, mock := newTestServer(t)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  "jwt-player",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte("dev_secret_change_me"))
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT id, initial_age, final_age`).
		WithArgs("jwt-player", 20).
		WillReturnRows(sqlmock.NewRows([]string{"id", "initial_age", "final_age", "puzzles_solved", "score", "created_at"}).
			AddRow("r1", 7, 7, 10, 95, "2026-08-30T10:00:00Z"))

	req := httptest.NewRequest(http.MethodGet, "/results/mine", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rows := decode[[]results.Row](t, rec)
	require.Len(t, rows, 1)
	assert.Equal(t, 95, rows[0].Score)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaderboard(t *testing.T) {
	s, mock := newTestServer(t)

	mock.ExpectQuery(`SELECT player_id, score, puzzles_solved`).
		WithArgs(20).
		WillReturnRows(sqlmock.NewRows([]string{"player_id", "score", "puzzles_solved"}).
			AddRow("player-1", 98, 10).
			AddRow("player-2", 90, 9))

	rec := doJSON(t, s, http.MethodGet, "/results/leaderboard", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Top []results.LBRow `json:"top"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Top, 2)
	assert.Equal(t, "player-1", body.Top[0].PlayerID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaderboardLimitParam(t *testing.T) {
	s, mock := newTestServer(t)

	mock.ExpectQuery(`SELECT player_id, score, puzzles_solved`).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"player_id", "score", "puzzles_solved"}))

	rec := doJSON(t, s, http.MethodGet, "/results/leaderboard?limit=5", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnknownRouteIsJSON404(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"not_found"`)
}
