// internal/httpserver/server.go
//
// HTTP wiring for the sentence puzzle backend.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health", "/debug/corpus".
//   - Game endpoints (optional auth): POST /puzzle/new, /puzzle/answer,
//     /puzzle/hint, /puzzle/skip, GET /session/me.
//   - Result endpoints (optional auth): GET /results/mine, /results/leaderboard.
//   - Player identity: a valid JWT supplies the player ID; guests get a
//     stable anonymous cookie. This service never issues tokens — the
//     surrounding identity layer does.
//
// Notes:
//   - CORS is origin-aware and credentials-enabled (so cookies work).
//   - Engine sentinel errors map to status codes: not found → 404,
//     already processed → 409. Failed verification is a normal 200 with
//     passed=false.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/danbi-edu/puzzle-go/internal/corpus"
	"github.com/danbi-edu/puzzle-go/internal/game"
	"github.com/danbi-edu/puzzle-go/internal/results"
)

// Server bundles router, game engine, result store, and corpus index.
type Server struct {
	r       *chi.Mux
	engine  *game.Engine
	results *results.Store
	corpus  *corpus.Index
}

// New constructs a Server, installs middleware, and registers routes.
func New(engine *game.Engine, res *results.Store, idx *corpus.Index) *Server {
	s := &Server{r: chi.NewRouter(), engine: engine, results: res, corpus: idx}

	// --- middleware ---
	s.r.Use(chimw.RequestID)
	s.r.Use(chimw.RealIP)
	s.r.Use(chimw.Recoverer)
	s.r.Use(chimw.Timeout(10 * time.Second))
	s.r.Use(jsonContentType)
	s.r.Use(corsFromEnv)

	// --- diagnostics ---
	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"service":"puzzle-go","endpoints":["/health","POST /puzzle/new","POST /puzzle/answer","POST /puzzle/hint","POST /puzzle/skip","GET /session/me","GET /results/mine","GET /results/leaderboard"]}`))
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	s.r.Get("/debug/corpus", func(w http.ResponseWriter, r *http.Request) {
		entries, ages := s.corpus.Stats()
		_ = json.NewEncoder(w).Encode(map[string]int{"entries": entries, "ages": ages})
	})

	// Game endpoints — OPTIONAL AUTH (guests play with an anon cookie)
	s.r.Group(func(r chi.Router) {
		r.Use(s.withOptionalAuth())
		r.Post("/puzzle/new", s.handleNewPuzzle)
		r.Post("/puzzle/answer", s.handleAnswer)
		r.Post("/puzzle/hint", s.handleHint)
		r.Post("/puzzle/skip", s.handleSkip)
		r.Get("/session/me", s.handleSessionStatus)
		r.Get("/results/mine", s.handleMyResults)
	})
	s.r.Get("/results/leaderboard", s.handleLeaderboard)

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not_found","path":"`+r.URL.Path+`"}`, http.StatusNotFound)
	})

	return s
}

// Start begins serving HTTP on addr.
func (s *Server) Start(addr string) error { return http.ListenAndServe(addr, s.r) }

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// corsFromEnv enables credentialed CORS for a single origin.
// Uses CLIENT_ORIGIN env var; defaults to http://localhost:5173.
func corsFromEnv(next http.Handler) http.Handler {
	origin := os.Getenv("CLIENT_ORIGIN")
	if origin == "" {
		origin = "http://localhost:5173"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ------------------------------ identity -----------------------------------

// ctxPlayerKey is the context key type for the resolved player ID.
type ctxPlayerKey struct{}

const anonCookieName = "puzzle_anon"

// withOptionalAuth resolves a player ID from a JWT when one is present and
// valid. It never 401s; guests fall through to the anonymous cookie.
func (s *Server) withOptionalAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tok := bearerOrCookie(r); tok != "" {
				claims := jwt.MapClaims{}
				if t, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (interface{}, error) {
					return []byte(getEnv("JWT_SECRET", "dev_secret_change_me")), nil
				}); err == nil && t.Valid {
					if id, _ := claims["id"].(string); id != "" {
						ctx := context.WithValue(r.Context(), ctxPlayerKey{}, id)
						r = r.WithContext(ctx)
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// playerID returns the authenticated player ID, or a stable anonymous ID
// from (or newly set into) the anon cookie.
func (s *Server) playerID(w http.ResponseWriter, r *http.Request) string {
	if id, _ := r.Context().Value(ctxPlayerKey{}).(string); id != "" {
		return id
	}
	if c, err := r.Cookie(anonCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     anonCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   os.Getenv("NODE_ENV") == "production",
		SameSite: func() http.SameSite {
			if os.Getenv("NODE_ENV") == "production" {
				return http.SameSiteNoneMode
			}
			return http.SameSiteLaxMode
		}(),
		Expires: time.Now().Add(180 * 24 * time.Hour),
	})
	return id
}

// bearerOrCookie extracts a token from the Authorization header or cookie.
func bearerOrCookie(r *http.Request) string {
	// Authorization: Bearer <token>
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	if c, err := r.Cookie(getEnv("COOKIE_NAME", "puzzle_token")); err == nil {
		return c.Value
	}
	return ""
}

// ------------------------------ handlers -----------------------------------

// newPuzzleReq is the payload for POST /puzzle/new.
type newPuzzleReq struct {
	Age int `json:"age"`
}

// handleNewPuzzle generates a puzzle for the requested age and attaches it
// to the caller's open session.
func (s *Server) handleNewPuzzle(w http.ResponseWriter, r *http.Request) {
	var req newPuzzleReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	if req.Age <= 0 {
		http.Error(w, `{"error":"invalid_age"}`, http.StatusBadRequest)
		return
	}
	pid := s.playerID(w, r)
	res, err := s.engine.Generate(r.Context(), req.Age, pid)
	if err != nil {
		s.writeEngineErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(res)
}

// answerReq is the payload for POST /puzzle/answer.
type answerReq struct {
	PuzzleID string `json:"puzzleId"`
	Answer   string `json:"answer"`
}

// handleAnswer submits an answer for verification.
func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	if req.PuzzleID == "" {
		http.Error(w, `{"error":"missing_puzzle_id"}`, http.StatusBadRequest)
		return
	}
	res, err := s.engine.Submit(r.Context(), req.PuzzleID, req.Answer)
	if err != nil {
		s.writeEngineErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(res)
}

// hintReq is the payload for POST /puzzle/hint.
type hintReq struct {
	PuzzleID string `json:"puzzleId"`
}

// handleHint reveals the next hint for a puzzle.
func (s *Server) handleHint(w http.ResponseWriter, r *http.Request) {
	var req hintReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	res, err := s.engine.Hint(r.Context(), req.PuzzleID)
	if err != nil {
		s.writeEngineErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(res)
}

// handleSkip skips a puzzle (scores 0, counts toward the session).
func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	var req hintReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	res, err := s.engine.Skip(r.Context(), req.PuzzleID)
	if err != nil {
		s.writeEngineErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(res)
}

// handleSessionStatus reports the caller's open session, if any.
func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	pid := s.playerID(w, r)
	res, err := s.engine.Status(r.Context(), pid)
	if err != nil {
		s.writeEngineErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(res)
}

// handleMyResults returns the caller's recent completed sessions.
func (s *Server) handleMyResults(w http.ResponseWriter, r *http.Request) {
	pid := s.playerID(w, r)
	rows, err := s.results.Recent(r.Context(), pid, 20)
	if err != nil {
		log.Error().Err(err).Msg("query recent results")
		http.Error(w, `{"error":"db_error"}`, http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(rows)
}

// handleLeaderboard returns the top normalized session scores.
// Accepts ?limit= up to 100; defaults to 20.
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	rows, err := s.results.Leaderboard(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("query leaderboard")
		http.Error(w, `{"error":"db_error"}`, http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"top": rows})
}

// writeEngineErr maps engine sentinel errors to HTTP statuses.
func (s *Server) writeEngineErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrAlreadyProcessed):
		http.Error(w, `{"error":"already_processed","message":"This puzzle is already finished. Move on to the next one."}`, http.StatusConflict)
	case errors.Is(err, game.ErrNotFound):
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
	default:
		log.Error().Err(err).Msg("engine error")
		http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
	}
}

// getEnv returns the value of k or def if unset/empty.
func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
