// chatprobe connects to the realtime gateway, joins a clan chat, and
// bridges stdin to the chat protocol. Useful for poking at a gateway
// without a browser in the loop.
//
// Usage: go run ./cmd/chatprobe --config configs/client.local.yaml --clan clan-1 --user u1
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/clanforge/realtime/internal/bus"
	"github.com/clanforge/realtime/internal/chat"
	"github.com/clanforge/realtime/internal/config"
	"github.com/clanforge/realtime/internal/frame"
	"github.com/clanforge/realtime/internal/realtime"
	"github.com/clanforge/realtime/internal/transport"
	"github.com/clanforge/realtime/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/client.local.yaml", "path to config file")
	clanID := flag.String("clan", "", "clan id to join")
	userID := flag.String("user", "", "user id to connect as")
	verbose := flag.Bool("verbose", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// .env is optional; flags and the config file win.
	if err := godotenv.Load(); err == nil {
		logger.Debug("loaded .env")
	}

	logger.Info("starting chatprobe", "version", version.String(), "config", *configPath)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *clanID == "" || *userID == "" {
		logger.Error("--clan and --user are required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	dialer := transport.NewWSDialer(transport.WSConfig{
		HandshakeTimeout: cfg.Gateway.ConnectTimeout,
		WriteTimeout:     cfg.Gateway.WriteTimeout,
		BufferSize:       cfg.Gateway.BufferSize,
	}, logger)

	b := bus.New(logger)
	registry := realtime.NewRegistry(realtime.Config{
		URL:                  cfg.Gateway.URL,
		ConnectTimeout:       cfg.Gateway.ConnectTimeout,
		PingInterval:         cfg.Gateway.PingInterval,
		ReconnectBaseDelay:   cfg.Gateway.ReconnectBaseDelay,
		MaxReconnectAttempts: cfg.Gateway.MaxReconnectAttempts,
	}, dialer, b, logger)
	defer registry.Shutdown()

	params := realtime.Params{"clanId": *clanID, "userId": *userID}
	if _, err := registry.Connect(ctx, cfg.Chat.Service, params); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}

	// Print everything that happens in the room.
	b.Subscribe(bus.Topic{Service: cfg.Chat.Service, Kind: frame.KindChat}, printMessage)
	b.Subscribe(bus.Topic{Service: cfg.Chat.Service, Kind: frame.KindMessage}, printMessage)
	b.Subscribe(bus.Topic{Service: cfg.Chat.Service, Kind: frame.KindReconnectionFailed}, func(bus.Event) {
		fmt.Println("*** connection lost for good; restart chatprobe to retry ***")
	})

	session := chat.NewSession(chat.Config{
		Service:      cfg.Chat.Service,
		ClanID:       *clanID,
		UserID:       *userID,
		Params:       params,
		DedupWindow:  cfg.Chat.DedupWindow,
		AckTimeout:   cfg.Chat.AckTimeout,
		TypingIdle:   cfg.Chat.TypingIdle,
		HistoryLimit: cfg.Chat.HistoryLimit,
	}, registry, b, logger)
	defer session.Close()

	session.RequestRecentMessages()

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			session.Keystroke()
			if _, err := session.SendMessage(line); err != nil {
				logger.Warn("send failed", "error", err)
			}
			session.StopTyping()
		}
		cancel()
	}()

	<-ctx.Done()
	logger.Info("chatprobe stopped")
}

func printMessage(evt bus.Event) {
	fmt.Printf("[%s] %s\n", evt.Kind, evt.Data)
}
