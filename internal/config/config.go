package config

import "time"

// Config is the root configuration for the realtime client.
type Config struct {
	Gateway GatewayConfig `yaml:"gateway"`
	Chat    ChatConfig    `yaml:"chat"`
}

// GatewayConfig holds connection registry settings.
type GatewayConfig struct {
	URL                  string        `yaml:"url"` // e.g. wss://gateway.clanforge.gg/ws
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	BufferSize           int           `yaml:"buffer_size"`
}

// ChatConfig holds chat protocol settings.
type ChatConfig struct {
	Service      string        `yaml:"service"`
	DedupWindow  time.Duration `yaml:"dedup_window"`
	AckTimeout   time.Duration `yaml:"ack_timeout"`
	TypingIdle   time.Duration `yaml:"typing_idle"`
	HistoryLimit int           `yaml:"history_limit"`
}
