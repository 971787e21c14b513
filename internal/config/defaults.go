package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultConnectTimeout       = 10 * time.Second
	DefaultPingInterval         = 30 * time.Second
	DefaultReconnectBaseDelay   = 1 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultWriteTimeout         = 5 * time.Second
	DefaultBufferSize           = 256
	DefaultChatService          = "clan-chat"
	DefaultDedupWindow          = 5 * time.Second
	DefaultAckTimeout           = 10 * time.Second
	DefaultTypingIdle           = 1500 * time.Millisecond
	DefaultHistoryLimit         = 50
)

func (c *Config) applyDefaults() {
	if c.Gateway.ConnectTimeout == 0 {
		c.Gateway.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Gateway.PingInterval == 0 {
		c.Gateway.PingInterval = DefaultPingInterval
	}
	if c.Gateway.ReconnectBaseDelay == 0 {
		c.Gateway.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Gateway.MaxReconnectAttempts == 0 {
		c.Gateway.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Gateway.WriteTimeout == 0 {
		c.Gateway.WriteTimeout = DefaultWriteTimeout
	}
	if c.Gateway.BufferSize == 0 {
		c.Gateway.BufferSize = DefaultBufferSize
	}

	if c.Chat.Service == "" {
		c.Chat.Service = DefaultChatService
	}
	if c.Chat.DedupWindow == 0 {
		c.Chat.DedupWindow = DefaultDedupWindow
	}
	if c.Chat.AckTimeout == 0 {
		c.Chat.AckTimeout = DefaultAckTimeout
	}
	if c.Chat.TypingIdle == 0 {
		c.Chat.TypingIdle = DefaultTypingIdle
	}
	if c.Chat.HistoryLimit == 0 {
		c.Chat.HistoryLimit = DefaultHistoryLimit
	}
}
