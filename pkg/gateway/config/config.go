package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr string

	// Dialog flow backend.
	DialogAPIURL     string
	DialogAPIKey     string
	DialogFlowID     string
	DialogMaxRetries uint64
	DialogRetryBase  time.Duration

	// Speech provider. Empty key disables audio turns; text turns still work.
	DeepgramAPIKey  string
	DeepgramBaseURL string

	// Transcript archive. Empty DSN keeps transcripts in memory only.
	ArchiveDSN string

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// WebSocket session plumbing.
	WSPingInterval     time.Duration
	WSWriteTimeout     time.Duration
	WSReadTimeout      time.Duration
	WSMaxMessageBytes  int64
	TurnTimeout        time.Duration
	MaxSessions        int
	MaxUploadBytes     int64

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("MOCKR_ADDR", ":8000"),
		DialogAPIURL:        envOr("MOCKR_DIALOG_API_URL", "https://flow.hebia.ai/api"),
		DialogAPIKey:        strings.TrimSpace(os.Getenv("MOCKR_DIALOG_API_KEY")),
		DialogFlowID:        strings.TrimSpace(os.Getenv("MOCKR_DIALOG_FLOW_ID")),
		DialogMaxRetries:    uint64(envIntOr("MOCKR_DIALOG_MAX_RETRIES", 3)),
		DialogRetryBase:     envDurationOr("MOCKR_DIALOG_RETRY_BASE", 500*time.Millisecond),
		DeepgramAPIKey:      strings.TrimSpace(os.Getenv("MOCKR_DEEPGRAM_API_KEY")),
		DeepgramBaseURL:     envOr("MOCKR_DEEPGRAM_BASE_URL", "https://api.deepgram.com"),
		ArchiveDSN:          strings.TrimSpace(os.Getenv("MOCKR_ARCHIVE_DSN")),
		CORSAllowedOrigins:  make(map[string]struct{}),
		WSPingInterval:      envDurationOr("MOCKR_WS_PING_INTERVAL", 20*time.Second),
		WSWriteTimeout:      envDurationOr("MOCKR_WS_WRITE_TIMEOUT", 5*time.Second),
		WSReadTimeout:       envDurationOr("MOCKR_WS_READ_TIMEOUT", 0),
		WSMaxMessageBytes:   envInt64Or("MOCKR_WS_MAX_MESSAGE_BYTES", 16<<20), // audio frames are base64 JSON
		TurnTimeout:         envDurationOr("MOCKR_TURN_TIMEOUT", 2*time.Minute),
		MaxSessions:         envIntOr("MOCKR_MAX_SESSIONS", 256),
		MaxUploadBytes:      envInt64Or("MOCKR_MAX_UPLOAD_BYTES", 8<<20), // 8 MiB decoded
		ReadHeaderTimeout:   envDurationOr("MOCKR_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:         envDurationOr("MOCKR_READ_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod: envDurationOr("MOCKR_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	for _, origin := range splitCSV(os.Getenv("MOCKR_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if strings.TrimSpace(cfg.DialogAPIURL) == "" {
		return Config{}, fmt.Errorf("MOCKR_DIALOG_API_URL must not be empty")
	}
	if cfg.DialogRetryBase <= 0 {
		return Config{}, fmt.Errorf("MOCKR_DIALOG_RETRY_BASE must be > 0")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("MOCKR_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("MOCKR_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSReadTimeout < 0 {
		return Config{}, fmt.Errorf("MOCKR_WS_READ_TIMEOUT must be >= 0")
	}
	if cfg.WSMaxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("MOCKR_WS_MAX_MESSAGE_BYTES must be > 0")
	}
	if cfg.TurnTimeout < 0 {
		return Config{}, fmt.Errorf("MOCKR_TURN_TIMEOUT must be >= 0")
	}
	if cfg.MaxSessions <= 0 {
		return Config{}, fmt.Errorf("MOCKR_MAX_SESSIONS must be > 0")
	}
	if cfg.MaxUploadBytes <= 0 {
		return Config{}, fmt.Errorf("MOCKR_MAX_UPLOAD_BYTES must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("MOCKR_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("MOCKR_READ_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("MOCKR_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
