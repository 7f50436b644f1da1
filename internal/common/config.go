package common

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string            `toml:"environment"` // "development" or "production"
	Server      ServerConfig      `toml:"server"`
	Snapshot    SnapshotConfig    `toml:"snapshot"`
	Live        LiveConfig        `toml:"live"`
	Projections ProjectionsConfig `toml:"projections"`
	Logging     LoggingConfig     `toml:"logging"`
	WebSocket   WebSocketConfig   `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// SnapshotConfig configures the job backend's REST endpoints
type SnapshotConfig struct {
	BaseURL            string `toml:"base_url"`             // e.g. "http://localhost:5000"
	RequestTimeout     string `toml:"request_timeout"`      // HTTP request timeout (default: "15s")
	StatusFilter       string `toml:"status_filter"`        // Optional ?status= filter for /job-details (default: all jobs)
	AutoRefresh        bool   `toml:"auto_refresh"`         // Refresh the snapshot on RefreshSchedule (default: false)
	RefreshSchedule    string `toml:"refresh_schedule"`     // Cron schedule with seconds (default: every 5 minutes)
	MinRefreshInterval string `toml:"min_refresh_interval"` // Minimum gap between operator-triggered refreshes (default: "2s")
}

// LiveConfig configures the STOMP live stream subscriber
type LiveConfig struct {
	URL                  string  `toml:"url"`                    // websocket endpoint (default: "ws://localhost:8080/ws/websocket")
	Topic                string  `toml:"topic"`                  // STOMP destination (default: "/topic/in-progress")
	Host                 string  `toml:"host"`                   // STOMP virtual host; empty uses the URL host
	ReconnectInterval    string  `toml:"reconnect_interval"`     // Fixed delay between reconnect attempts (default: "5s")
	MaxReconnectAttempts int     `toml:"max_reconnect_attempts"` // Consecutive failures before giving up (default: 10)
	HeartbeatIncoming    string  `toml:"heartbeat_incoming"`     // Requested broker heart-beat interval (default: "4s")
	HeartbeatOutgoing    string  `toml:"heartbeat_outgoing"`     // Client heart-beat interval (default: "4s")
	HeartbeatTolerance   float64 `toml:"heartbeat_tolerance"`    // Silence allowed as a multiple of the incoming interval (default: 2)
	HandshakeTimeout     string  `toml:"handshake_timeout"`      // Dial plus CONNECT timeout (default: "10s")
	AutoConnect          bool    `toml:"auto_connect"`           // Connect on startup (default: true)
}

// ProjectionsConfig configures view-model projections
type ProjectionsConfig struct {
	TrendBucket string `toml:"trend_bucket"` // Trend chart bucket width (default: "1h")
}

type LoggingConfig struct {
	Level         string   `toml:"level"`           // "debug", "info", "warn", "error"
	Output        []string `toml:"output"`          // "stdout", "console", "file"
	MinEventLevel string   `toml:"min_event_level"` // Minimum level forwarded to the websocket log feed (default: "info")
}

// WebSocketConfig contains configuration for the dashboard websocket feed
type WebSocketConfig struct {
	// Whitelist of message types to broadcast. Empty list allows all.
	// Example: ["jobs", "status"]
	AllowedEvents []string `toml:"allowed_events"`
	// Throttle interval for reconciled job broadcasts (default: "250ms")
	JobsThrottle string `toml:"jobs_throttle"`
	// Log lines containing any of these are not broadcast
	ExcludePatterns []string `toml:"exclude_patterns"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8090,
			Host: "localhost",
		},
		Snapshot: SnapshotConfig{
			BaseURL:            "http://localhost:5000",
			RequestTimeout:     "15s",
			AutoRefresh:        false,           // Disabled by default - operators refresh manually
			RefreshSchedule:    "0 */5 * * * *", // Every 5 minutes (cron format with seconds)
			MinRefreshInterval: "2s",
		},
		Live: LiveConfig{
			URL:                  "ws://localhost:8080/ws/websocket",
			Topic:                "/topic/in-progress",
			ReconnectInterval:    "5s",
			MaxReconnectAttempts: 10,
			HeartbeatIncoming:    "4s",
			HeartbeatOutgoing:    "4s",
			HeartbeatTolerance:   2,
			HandshakeTimeout:     "10s",
			AutoConnect:          true,
		},
		Projections: ProjectionsConfig{
			TrendBucket: "1h",
		},
		Logging: LoggingConfig{
			Level:         "info",
			Output:        []string{"stdout", "file"},
			MinEventLevel: "info",
		},
		WebSocket: WebSocketConfig{
			AllowedEvents: []string{}, // Empty allows all
			JobsThrottle:  "250ms",    // Live ticks can arrive faster than browsers need them
			ExcludePatterns: []string{
				"WebSocket client connected",
				"WebSocket client disconnected",
				"HTTP request",
				"Publishing Event",
			},
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env -> CLI
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal merges with existing values
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("CORRUDASH_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("CORRUDASH_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("CORRUDASH_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Snapshot configuration
	if baseURL := os.Getenv("CORRUDASH_SNAPSHOT_BASE_URL"); baseURL != "" {
		config.Snapshot.BaseURL = baseURL
	}
	if timeout := os.Getenv("CORRUDASH_SNAPSHOT_REQUEST_TIMEOUT"); timeout != "" {
		if _, err := time.ParseDuration(timeout); err == nil {
			config.Snapshot.RequestTimeout = timeout
		}
	}
	if filter, ok := os.LookupEnv("CORRUDASH_SNAPSHOT_STATUS_FILTER"); ok {
		config.Snapshot.StatusFilter = filter
	}
	if autoRefresh := os.Getenv("CORRUDASH_SNAPSHOT_AUTO_REFRESH"); autoRefresh != "" {
		if b, err := strconv.ParseBool(autoRefresh); err == nil {
			config.Snapshot.AutoRefresh = b
		}
	}
	if schedule := os.Getenv("CORRUDASH_SNAPSHOT_REFRESH_SCHEDULE"); schedule != "" {
		config.Snapshot.RefreshSchedule = schedule
	}
	if interval := os.Getenv("CORRUDASH_SNAPSHOT_MIN_REFRESH_INTERVAL"); interval != "" {
		if _, err := time.ParseDuration(interval); err == nil {
			config.Snapshot.MinRefreshInterval = interval
		}
	}

	// Live stream configuration
	if liveURL := os.Getenv("CORRUDASH_LIVE_URL"); liveURL != "" {
		config.Live.URL = liveURL
	}
	if topic := os.Getenv("CORRUDASH_LIVE_TOPIC"); topic != "" {
		config.Live.Topic = topic
	}
	if host := os.Getenv("CORRUDASH_LIVE_HOST"); host != "" {
		config.Live.Host = host
	}
	if interval := os.Getenv("CORRUDASH_LIVE_RECONNECT_INTERVAL"); interval != "" {
		if _, err := time.ParseDuration(interval); err == nil {
			config.Live.ReconnectInterval = interval
		}
	}
	if attempts := os.Getenv("CORRUDASH_LIVE_MAX_RECONNECT_ATTEMPTS"); attempts != "" {
		if n, err := strconv.Atoi(attempts); err == nil && n > 0 {
			config.Live.MaxReconnectAttempts = n
		}
	}
	if hb := os.Getenv("CORRUDASH_LIVE_HEARTBEAT_INCOMING"); hb != "" {
		if _, err := time.ParseDuration(hb); err == nil {
			config.Live.HeartbeatIncoming = hb
		}
	}
	if hb := os.Getenv("CORRUDASH_LIVE_HEARTBEAT_OUTGOING"); hb != "" {
		if _, err := time.ParseDuration(hb); err == nil {
			config.Live.HeartbeatOutgoing = hb
		}
	}
	if tolerance := os.Getenv("CORRUDASH_LIVE_HEARTBEAT_TOLERANCE"); tolerance != "" {
		if t, err := strconv.ParseFloat(tolerance, 64); err == nil && t >= 1 {
			config.Live.HeartbeatTolerance = t
		}
	}
	if autoConnect := os.Getenv("CORRUDASH_LIVE_AUTO_CONNECT"); autoConnect != "" {
		if b, err := strconv.ParseBool(autoConnect); err == nil {
			config.Live.AutoConnect = b
		}
	}

	// Projections configuration
	if bucket := os.Getenv("CORRUDASH_PROJECTIONS_TREND_BUCKET"); bucket != "" {
		if _, err := time.ParseDuration(bucket); err == nil {
			config.Projections.TrendBucket = bucket
		}
	}

	// Logging configuration
	if level := os.Getenv("CORRUDASH_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("CORRUDASH_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
	if minEvent := os.Getenv("CORRUDASH_LOG_MIN_EVENT_LEVEL"); minEvent != "" {
		config.Logging.MinEventLevel = minEvent
	}

	// WebSocket configuration
	if throttle := os.Getenv("CORRUDASH_WEBSOCKET_JOBS_THROTTLE"); throttle != "" {
		if _, err := time.ParseDuration(throttle); err == nil {
			config.WebSocket.JobsThrottle = throttle
		}
	}
	if allowed := os.Getenv("CORRUDASH_WEBSOCKET_ALLOWED_EVENTS"); allowed != "" {
		events := []string{}
		for _, e := range strings.Split(allowed, ",") {
			if trimmed := strings.TrimSpace(e); trimmed != "" {
				events = append(events, trimmed)
			}
		}
		config.WebSocket.AllowedEvents = events
	}
}

// FlagOverrides carries command-line values that take priority over everything else.
// Zero values leave the config untouched.
type FlagOverrides struct {
	Port        int
	Host        string
	SnapshotURL string
	LiveURL     string
	LogLevel    string
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, flags FlagOverrides) {
	if flags.Port > 0 {
		config.Server.Port = flags.Port
	}
	if flags.Host != "" {
		config.Server.Host = flags.Host
	}
	if flags.SnapshotURL != "" {
		config.Snapshot.BaseURL = flags.SnapshotURL
	}
	if flags.LiveURL != "" {
		config.Live.URL = flags.LiveURL
	}
	if flags.LogLevel != "" {
		config.Logging.Level = flags.LogLevel
	}
}

// Validate checks values that cannot be defaulted at use time
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}

	base, err := url.Parse(c.Snapshot.BaseURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return fmt.Errorf("snapshot.base_url must be an http(s) URL: %q", c.Snapshot.BaseURL)
	}

	live, err := url.Parse(c.Live.URL)
	if err != nil || (live.Scheme != "ws" && live.Scheme != "wss") || live.Host == "" {
		return fmt.Errorf("live.url must be a ws(s) URL: %q", c.Live.URL)
	}
	if c.Live.MaxReconnectAttempts < 1 {
		return fmt.Errorf("live.max_reconnect_attempts must be at least 1, got %d", c.Live.MaxReconnectAttempts)
	}
	if c.Live.HeartbeatTolerance < 1 {
		return fmt.Errorf("live.heartbeat_tolerance must be at least 1, got %g", c.Live.HeartbeatTolerance)
	}

	durations := map[string]string{
		"snapshot.request_timeout":      c.Snapshot.RequestTimeout,
		"snapshot.min_refresh_interval": c.Snapshot.MinRefreshInterval,
		"live.reconnect_interval":       c.Live.ReconnectInterval,
		"live.heartbeat_incoming":       c.Live.HeartbeatIncoming,
		"live.heartbeat_outgoing":       c.Live.HeartbeatOutgoing,
		"live.handshake_timeout":        c.Live.HandshakeTimeout,
		"projections.trend_bucket":      c.Projections.TrendBucket,
		"websocket.jobs_throttle":       c.WebSocket.JobsThrottle,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		if d, err := time.ParseDuration(value); err != nil || d < 0 {
			return fmt.Errorf("%s is not a valid duration: %q", key, value)
		}
	}

	if c.Snapshot.AutoRefresh {
		if err := ValidateRefreshSchedule(c.Snapshot.RefreshSchedule); err != nil {
			return fmt.Errorf("snapshot.refresh_schedule: %w", err)
		}
	}

	return nil
}

// ValidateRefreshSchedule validates a six-field cron schedule (with seconds)
// and rejects schedules that would fire more than once a minute
func ValidateRefreshSchedule(schedule string) error {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	// Two consecutive activations tell us the interval for regular schedules
	first := sched.Next(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC))
	second := sched.Next(first)
	if second.Sub(first) < time.Minute {
		return fmt.Errorf("schedule must have minimum 1-minute interval, got %s", second.Sub(first))
	}

	return nil
}

// ParseDurationOr parses s, returning fallback when s is empty or invalid
func ParseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
