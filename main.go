package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danbi-edu/puzzle-go/internal/corpus"
	"github.com/danbi-edu/puzzle-go/internal/game"
	"github.com/danbi-edu/puzzle-go/internal/httpserver"
	"github.com/danbi-edu/puzzle-go/internal/results"
	"github.com/danbi-edu/puzzle-go/internal/store"
)

func main() {
	_ = godotenv.Load()
	if lvl, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info")); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	idx, err := corpus.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load sentence corpus")
	}
	entries, ages := idx.Stats()
	log.Info().Int("entries", entries).Int("ages", ages).Msg("corpus loaded")

	db, err := openDB(getEnv("DB_PATH", "./data/app.db"))
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()
	if err := migrate(db); err != nil {
		log.Fatal().Err(err).Msg("apply migrations")
	}

	mem := store.NewMemory()
	sink := results.NewStore(db)
	engine := game.NewEngine(game.NewGenerator(idx), mem, sink)

	ttl := time.Duration(envInt("SESSION_TTL_HOURS", 24)) * time.Hour
	interval := time.Duration(envInt("SWEEP_INTERVAL_MINUTES", 60)) * time.Minute
	go engine.RunSweeper(context.Background(), interval, ttl)

	srv := httpserver.New(engine, sink, idx)
	port := getEnv("PORT", "8080")
	log.Info().Str("port", port).Msg("starting puzzle-go server")
	if err := srv.Start(":" + port); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
