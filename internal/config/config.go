package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the server's env-backed configuration. A .env file is honored
// when present.
type Config struct {
	Addr         string
	Seed         int64
	Demo         bool
	DemoInterval time.Duration
}

func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Addr:         getenv("LIVETREE_ADDR", ":8080"),
		Seed:         getint("LIVETREE_SEED", 1),
		Demo:         getenv("LIVETREE_DEMO", "true") == "true",
		DemoInterval: getdur("LIVETREE_DEMO_INTERVAL", 750*time.Millisecond),
	}
	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getint(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getdur(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
