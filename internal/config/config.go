package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr string `env:"ADDR" envDefault:":8080"`

	// Round pacing. Grace is the default reconnect window; game types can
	// override it in their own config record.
	CountdownSeconds int `env:"COUNTDOWN_SECONDS" envDefault:"3"`
	GraceSeconds     int `env:"GRACE_SECONDS" envDefault:"10"`
	LingerSeconds    int `env:"LINGER_SECONDS" envDefault:"30"`

	// Optional collaborators; empty disables them.
	HostNotifyURL string `env:"HOST_NOTIFY_URL"`
	DatabaseURL   string `env:"DATABASE_URL"`

	Debug bool `env:"DEBUG"`
}

func (c Config) Countdown() time.Duration { return time.Duration(c.CountdownSeconds) * time.Second }
func (c Config) Grace() time.Duration     { return time.Duration(c.GraceSeconds) * time.Second }
func (c Config) Linger() time.Duration    { return time.Duration(c.LingerSeconds) * time.Second }

// Load reads .env if present, then the environment. Missing .env is not an
// error; deployments set real env vars.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
