package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port     string
	DBDSN    string
	LogFile  string
	BranchID int64

	UpstreamURL string
	HealthPath  string

	CacheVersion string
	CacheBackend string // sqlite | redis
	RedisURL     string
	Precache     []string
	SkipWaiting  bool

	Locale       string
	TemplatesDir string

	MaxQuantity int
	MaxPrice    float64

	SearchTimeout   time.Duration
	CheckoutTimeout time.Duration
	SyncTimeout     time.Duration
	ProbeInterval   time.Duration

	// MaxSyncAttempts bounds replays of a rejected sale before it is
	// dead-lettered. Zero keeps the queue blocked forever.
	MaxSyncAttempts int
	AdminPinHash    string
}

// DefaultPrecache is the static manifest fetched on worker install.
var DefaultPrecache = []string{
	"/",
	"/offline",
	"/build/manifest.json",
	"/build/assets/app.js",
	"/build/assets/app.css",
	"/favicon.ico",
}

func Load() Config {
	cfg := Config{
		Port:            env("PORT", "8080"),
		DBDSN:           env("DB_DSN", "tillsync.db"), // sqlite file next to the binary
		LogFile:         env("LOG_FILE", "./tillsync.log"),
		BranchID:        int64(envInt("BRANCH_ID", 1)),
		UpstreamURL:     strings.TrimRight(env("UPSTREAM_URL", "http://localhost:8000"), "/"),
		HealthPath:      env("HEALTH_PATH", "/up"),
		CacheVersion:    env("CACHE_VERSION", "v1"),
		CacheBackend:    strings.ToLower(env("CACHE_BACKEND", "sqlite")),
		RedisURL:        env("REDIS_URL", "redis://localhost:6379/0"),
		Precache:        DefaultPrecache,
		SkipWaiting:     envBool("SKIP_WAITING", true),
		Locale:          env("LOCALE", "en"),
		TemplatesDir:    env("TEMPLATES_DIR", "./web/templates"),
		MaxQuantity:     envInt("MAX_QUANTITY", 9999),
		MaxPrice:        envFloat("MAX_PRICE", 999999999),
		SearchTimeout:   envDuration("SEARCH_TIMEOUT", 10*time.Second),
		CheckoutTimeout: envDuration("CHECKOUT_TIMEOUT", 30*time.Second),
		SyncTimeout:     envDuration("SYNC_TIMEOUT", 30*time.Second),
		ProbeInterval:   envDuration("PROBE_INTERVAL", 15*time.Second),
		MaxSyncAttempts: envInt("MAX_SYNC_ATTEMPTS", 5),
		AdminPinHash:    os.Getenv("ADMIN_PIN_HASH"),
	}
	if raw := os.Getenv("PRECACHE"); raw != "" {
		cfg.Precache = splitList(raw)
	}

	log.Printf("[config] PORT=%s DB_DSN=%s BRANCH_ID=%d UPSTREAM_URL=%s CACHE=%s/%s LOG_FILE=%s",
		cfg.Port, cfg.DBDSN, cfg.BranchID, cfg.UpstreamURL, cfg.CacheBackend, cfg.CacheVersion, cfg.LogFile)
	return cfg
}

// Defaults returns the built-in configuration without reading the environment.
func Defaults() Config {
	return Config{
		Port:            "8080",
		DBDSN:           ":memory:",
		BranchID:        1,
		UpstreamURL:     "http://localhost:8000",
		HealthPath:      "/up",
		CacheVersion:    "v1",
		CacheBackend:    "sqlite",
		Precache:        DefaultPrecache,
		SkipWaiting:     true,
		Locale:          "en",
		MaxQuantity:     9999,
		MaxPrice:        999999999,
		SearchTimeout:   10 * time.Second,
		CheckoutTimeout: 30 * time.Second,
		SyncTimeout:     30 * time.Second,
		ProbeInterval:   15 * time.Second,
		MaxSyncAttempts: 5,
	}
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, raw, def)
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, raw, def)
		return def
	}
	return f
}

func envBool(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, raw, def)
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d <= 0 {
		log.Printf("[config] invalid %s=%q, using %s", key, raw, def)
		return def
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
