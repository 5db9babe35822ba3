package config

import "time"

// Config holds chat client configuration values.
type Config struct {
	ServerURL            string        `mapstructure:"server_url" yaml:"server_url"`
	LogLevel             string        `mapstructure:"log_level" yaml:"log_level"`
	StatePath            string        `mapstructure:"state_path" yaml:"state_path"`
	Nickname             string        `mapstructure:"nickname" yaml:"nickname"`
	UserIcon             string        `mapstructure:"user_icon" yaml:"user_icon"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts" yaml:"max_reconnect_attempts"`
	MaxAutoJoinAttempts  int           `mapstructure:"max_auto_join_attempts" yaml:"max_auto_join_attempts"`
	TypingDebounce       time.Duration `mapstructure:"typing_debounce" yaml:"typing_debounce"`
	AutoJoinGraceDelay   time.Duration `mapstructure:"auto_join_grace_delay" yaml:"auto_join_grace_delay"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		ServerURL:            "ws://localhost:8080/ws",
		LogLevel:             "info",
		StatePath:            "teleparty.db",
		MaxReconnectAttempts: 5,
		MaxAutoJoinAttempts:  3,
		TypingDebounce:       time.Second,
		AutoJoinGraceDelay:   1500 * time.Millisecond,
	}
}
