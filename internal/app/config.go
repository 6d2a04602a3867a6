package app

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	Env       string
	HTTPAddr  string
	CORSAllow []string

	RedisAddr string // host:port; empty disables cross-instance fan-out
	RedisDB   int

	RunTimeout time.Duration // wall-clock bound per code execution
	RunDir     string        // parent dir for per-run scratch dirs ("" = os temp)
}

func LoadConfig() Config {
	cfg := Config{
		Env:       getEnv("APP_ENV", "dev"),
		HTTPAddr:  getEnv("HTTP_ADDR", ":5000"),
		RedisAddr: getEnv("REDIS_ADDR", ""),
		RunDir:    getEnv("RUN_DIR", ""),
	}
	cfg.RedisDB = getEnvInt("REDIS_DB", 0)
	cfg.RunTimeout = time.Duration(getEnvInt("RUN_TIMEOUT_SEC", 10)) * time.Second
	// CORS allowlist
	allow := getEnv("CORS_ALLOW", "http://localhost:3000")
	cfg.CORSAllow = splitCSV(allow)
	return cfg
}

// getEnv returns the env var or a default
func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// getEnvInt parses an int env var with a fallback
func getEnvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		var i int
		_, _ = fmt.Sscanf(v, "%d", &i)
		if i > 0 {
			return i
		}
	}
	return def
}

// splitCSV trims and filters a comma-separated list
func splitCSV(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
