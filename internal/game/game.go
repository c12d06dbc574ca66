// Package game holds the per-game-type configuration records. One generic
// room consumes these instead of a subclass per game.
package game

import (
	"time"

	"github.com/pocketplay/scorerace-backend/internal/engine"
)

type Config struct {
	Key string
	engine.Rules

	// Realtime marks game types driven by the authoritative room; the rest
	// ride the document-polling fallback.
	Realtime bool

	// Countdown between both players joining and play starting; Grace is
	// the reconnect window after a mid-round disconnect. Zero values take
	// the server-wide defaults.
	Countdown time.Duration
	Grace     time.Duration
}

var registry = map[string]Config{
	"timed_tap_game": {
		Key:      "timed_tap_game",
		Rules:    engine.Rules{Duration: 10 * time.Second, Lives: engine.UnlimitedLives, MonotonicScore: true},
		Realtime: true,
	},
	"dot_match_game": {
		Key:      "dot_match_game",
		Rules:    engine.Rules{Duration: 60 * time.Second, Lives: engine.UnlimitedLives, MonotonicScore: true},
		Realtime: true,
	},
	"pong_game": {
		Key:      "pong_game",
		Rules:    engine.Rules{Lives: 3},
		Realtime: true,
	},
	"quick_draw_game": {
		Key:      "quick_draw_game",
		Rules:    engine.Rules{Duration: 30 * time.Second, Lives: 3, LowerIsBetter: true},
		Realtime: true,
	},
	"word_hunt_game": {
		Key:   "word_hunt_game",
		Rules: engine.Rules{Duration: 90 * time.Second, Lives: engine.UnlimitedLives, MonotonicScore: true},
	},
}

func Lookup(key string) (Config, bool) {
	c, ok := registry[key]
	return c, ok
}

func Keys() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	return out
}
