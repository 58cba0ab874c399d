package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// HeartbeatInterval is how often the server pings each connection;
	// a ping unanswered within HeartbeatTimeout closes it, which runs
	// the same implicit-leave path as a clean disconnect.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `mapstructure:"heartbeat_timeout" yaml:"heartbeat_timeout"`

	// SendBuffer bounds each client's outbound event queue; events
	// beyond it are dropped for that client instead of stalling fan-out.
	SendBuffer int `mapstructure:"send_buffer" yaml:"send_buffer"`
	// EventsPerMinute caps inbound edit events per connection; join and
	// leave are never throttled. 0 disables the limit.
	EventsPerMinute int `mapstructure:"events_per_minute" yaml:"events_per_minute"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		HeartbeatInterval: 15 * time.Second,
		HeartbeatTimeout:  10 * time.Second,
		SendBuffer:        64,
		EventsPerMinute:   600,
		DatabasePath:      "collab.db",
		JWTSecret:         "",
		JWTIssuer:         "collab-server",
		JWTAudience:       "collab-clients",
		LogLevel:          "info",
	}
}
