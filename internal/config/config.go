package config

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode     Mode
	HTTPAddr string

	DBDriver string // sqlite|postgres|memory
	DBDSN    string

	CORSOriginsOnline  []string
	CORSOriginsOffline []string

	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	// event log
	EnableEventLog bool
	SiteID         string

	// grading
	ExcludeEssaysFromTotal bool
}

// Load reads an optional .env file into the process environment and then
// builds the Config from it. Variables already set in the environment win.
func Load(files ...string) Config {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				log.Printf("config: load %s: %v", f, err)
			}
			continue
		}
		log.Printf("config: loaded %s", f)
	}
	return FromEnv()
}

func FromEnv() Config {
	mode := Mode(os.Getenv("MODE"))
	if mode == "" {
		mode = ModeOffline
	}
	return Config{
		Mode:               mode,
		HTTPAddr:           envOr("HTTP_ADDR", ":8080"),
		DBDriver:           strings.ToLower(envOr("DB_DRIVER", "sqlite")),
		DBDSN:              envOr("DB_DSN", ""),
		CORSOriginsOnline:  csvOr("CORS_ORIGINS_ONLINE", "https://exams.mindengage.ai"),
		CORSOriginsOffline: csvOr("CORS_ORIGINS_OFFLINE", "http://localhost:3000"),
		RequestTimeout:     envDuration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout:    envDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		EnableEventLog:     envBool("ENABLE_EVENT_LOG", true),
		SiteID:             envOr("SITE_ID", "local"),

		ExcludeEssaysFromTotal: envBool("GRADING_EXCLUDE_ESSAYS", false),
	}
}

// CORSOrigins returns the allow-list for the configured mode.
func (c Config) CORSOrigins() []string {
	if c.Mode == ModeOnline {
		return c.CORSOriginsOnline
	}
	return c.CORSOriginsOffline
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}
func envDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("config: %s=%q is not a positive duration, using %s", k, v, def)
		return def
	}
	return d
}
func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
