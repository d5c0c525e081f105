package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/errgroup"

	"github.com/ledzpl/roomchat/internal/chat"
	"github.com/ledzpl/roomchat/internal/config"
	"github.com/ledzpl/roomchat/pkg/sshserver"
	"github.com/ledzpl/roomchat/pkg/wsserver"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "roomchat: %v\n", err)
	}
	os.Exit(code)
}

func run(args []string) (int, error) {
	flags := pflag.NewFlagSet("roomchat", pflag.ContinueOnError)
	envFile := flags.String("env-file", ".env", "Optional dotenv file read before the environment")
	addr := flags.String("addr", "", "TCP address for the SSH chat server (overrides SCHAT_ADDR)")
	hostKeyPath := flags.String("host-key", "", "Path to the SSH host private key, generated if missing (overrides SCHAT_HOST_KEY)")
	wsAddr := flags.String("ws-addr", "", "TCP address for the websocket endpoint (overrides SCHAT_WS_ADDR)")
	logLevel := flags.String("log-level", "", "DEBUG, INFO, WARN or ERROR (overrides SCHAT_LOG_LEVEL)")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK, nil
		}
		return exitConfig, err
	}

	cfg, err := config.Load(*envFile, func(cfg *config.Config) {
		if flags.Changed("addr") {
			cfg.Addr = *addr
		}
		if flags.Changed("host-key") {
			cfg.HostKeyPath = *hostKeyPath
		}
		if flags.Changed("ws-addr") {
			cfg.WebSocketAddr = *wsAddr
		}
		if flags.Changed("log-level") {
			cfg.LogLevel = *logLevel
		}
	})
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(cfg.LogLevel)

	signer, err := sshserver.LoadOrGenerateSigner(cfg.HostKeyPath)
	if err != nil {
		return exitConfig, fmt.Errorf("prepare host key: %w", err)
	}

	var allowed sshserver.AuthorizedKeys
	if cfg.AuthorizedKeys != "" {
		if allowed, err = sshserver.LoadAuthorizedKeys(cfg.AuthorizedKeys); err != nil {
			return exitConfig, err
		}
		logger.Info("Public key allowlist loaded", "keys", len(allowed))
	}

	hub := chat.NewHub(
		chat.WithLogger(logger),
		chat.WithOutboxSize(cfg.OutboxSize),
		chat.WithDeliveryTimeout(cfg.DeliveryTimeout),
		chat.WithMaxRoomNameLength(cfg.MaxRoomNameLength),
		chat.WithMaxLineLength(cfg.MaxLineLength),
		chat.WithRetainEmptyRooms(cfg.RetainEmptyRooms),
		chat.WithRateLimit(cfg.RateBurst, cfg.RateInterval),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		server := sshserver.New(cfg.Addr, signer, allowed, logger)
		return server.ListenAndServe(ctx, func(ctx context.Context, conn *ssh.ServerConn, channel ssh.Channel, requests <-chan *ssh.Request) {
			chat.HandleSession(ctx, hub, conn, channel, requests)
		})
	})

	if cfg.WebSocketAddr != "" {
		group.Go(func() error {
			server := wsserver.New(cfg.WebSocketAddr, cfg.WebSocketToken, logger)
			return server.ListenAndServe(ctx, func(ctx context.Context, conn *websocket.Conn, username string) {
				chat.HandleWebSocket(ctx, hub, conn, username)
			})
		})
	}

	err = group.Wait()
	stats := hub.Broadcaster.Stats()
	logger.Info("Server stopped", "delivered", stats.Delivered, "dropped", stats.Dropped)

	if err != nil && !errors.Is(err, context.Canceled) {
		return exitRuntime, err
	}
	return exitOK, nil
}
