package config

import (
	"errors"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Gateway.URL == "" {
		return errors.New("gateway.url is required")
	}
	if !strings.HasPrefix(c.Gateway.URL, "ws://") && !strings.HasPrefix(c.Gateway.URL, "wss://") {
		return errors.New("gateway.url must use a ws:// or wss:// scheme")
	}
	if c.Gateway.MaxReconnectAttempts < 1 {
		return errors.New("gateway.max_reconnect_attempts must be >= 1")
	}
	if c.Gateway.BufferSize < 1 {
		return errors.New("gateway.buffer_size must be >= 1")
	}

	if c.Chat.DedupWindow >= c.Chat.AckTimeout {
		return errors.New("chat.dedup_window must be shorter than chat.ack_timeout")
	}
	if c.Chat.HistoryLimit < 1 {
		return errors.New("chat.history_limit must be >= 1")
	}

	return nil
}
