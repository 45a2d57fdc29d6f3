package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by JUNCTREE_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("JUNCTREE_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

// DatabaseURL is a Postgres connection string, or sqlite:<path> for the
// embedded store. Defaults to sqlite:junctree.db.
func DatabaseURL() string {
	u := os.Getenv("DATABASE_URL")
	if u == "" {
		return "sqlite:junctree.db"
	}
	return u
}

// SQLitePath returns the database path when DatabaseURL selects SQLite.
func SQLitePath() (string, bool) {
	return strings.CutPrefix(DatabaseURL(), "sqlite:")
}

func MigrationsPath() string {
	p := os.Getenv("MIGRATIONS_PATH")
	if p == "" {
		return "migrations"
	}
	return p
}

// APIKey is the static key clients must send; empty disables auth.
func APIKey() string {
	return os.Getenv("API_KEY")
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

// EliminationHeuristic names the triangulation heuristic: min_fill,
// min_degree or min_weight. Defaults to min_fill.
func EliminationHeuristic() string {
	h := os.Getenv("ELIMINATION_HEURISTIC")
	if h == "" {
		return "min_fill"
	}
	return h
}

// MaxCliqueStates bounds the table size of any compiled clique.
// Defaults to 1<<22; 0 disables the guard.
func MaxCliqueStates() int {
	n, err := strconv.Atoi(os.Getenv("MAX_CLIQUE_STATES"))
	if err != nil || n < 0 {
		return 1 << 22
	}
	return n
}

// RequireSingleTree makes compilation fail on networks whose moral graph is
// disconnected instead of building a forest.
func RequireSingleTree() bool {
	b, err := strconv.ParseBool(os.Getenv("REQUIRE_SINGLE_TREE"))
	return err == nil && b
}

// NetworkIdleTimeout is how long a compiled network stays in memory unused.
// Defaults to 30m.
func NetworkIdleTimeout() time.Duration {
	d, err := time.ParseDuration(os.Getenv("NETWORK_IDLE_TIMEOUT"))
	if err != nil || d <= 0 {
		return 30 * time.Minute
	}
	return d
}
