package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/umar/roomsync/internal/api"
	"github.com/umar/roomsync/internal/auth"
	"github.com/umar/roomsync/internal/bus"
	"github.com/umar/roomsync/internal/chat"
	"github.com/umar/roomsync/internal/config"
	"github.com/umar/roomsync/internal/handlers"
	redisc "github.com/umar/roomsync/internal/redis"
	"github.com/umar/roomsync/internal/session"
	"github.com/umar/roomsync/internal/store"
)

func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	slog.Info("starting roomsync", "api_url", cfg.APIURL, "listen_addr", cfg.ListenAddr)

	if err := run(cfg); err != nil {
		slog.Error("roomsync failed", "error", err)
		os.Exit(1)
	}
	slog.Info("roomsync stopped gracefully")
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	owner := ""
	if claims, err := auth.ParseClaims(cfg.AuthToken); err != nil {
		slog.Warn("auth token unreadable, snapshots disabled", "error", err)
	} else {
		owner = claims.Owner()
		if claims.Expired(time.Now()) {
			slog.Warn("auth token has expired", "owner", owner, "expires_at", claims.ExpiresAt.Time)
		}
		slog.Info("session owner", "owner", owner, "username", claims.Username)
	}

	events := bus.New()
	be, err := newBackends(ctx, cfg, events)
	if err != nil {
		return err
	}
	defer be.close()

	client := api.New(cfg.APIURL, cfg.AuthToken)

	wsURL, err := chat.WithToken(cfg.WSURL, cfg.AuthToken)
	if err != nil {
		return err
	}
	header := http.Header{}
	if cfg.AuthToken != "" {
		header.Set("Authorization", auth.BearerHeader(cfg.AuthToken))
	}
	header.Set(api.InstanceHeader, client.InstanceID().String())

	settings := chat.DefaultSettings()
	settings.ReconnectMin = cfg.ReconnectMin
	settings.ReconnectMax = cfg.ReconnectMax
	settings.JoinRate = cfg.JoinRate
	settings.JoinBurst = cfg.JoinBurst

	sess := session.New(client, session.Options{
		Owner:           owner,
		Snapshots:       be.snapshots,
		Bus:             events,
		FetchRetries:    cfg.FetchRetries,
		FetchRetryDelay: cfg.FetchRetryDelay,
	})
	conn := chat.NewConn(wsURL, header, sess, settings, nil)

	router := handlers.NewRouter(handlers.Deps{
		Viewer:     sess,
		Watcher:    sess,
		State:      sess,
		Rooms:      client,
		Notifier:   be.notifier,
		CORSOrigin: cfg.CORSOrigin,
	})
	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sess.Run(gctx, conn)
	})

	if be.relay != nil {
		g.Go(func() error {
			return be.relay.Run(gctx)
		})
	}

	g.Go(func() error {
		slog.Info("server listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// backends are the optional Redis-backed parts. Without Redis there are no
// snapshots, since nothing outlives the process to read them, and room
// updates stay on the in-process bus.
type backends struct {
	snapshots store.Snapshots
	notifier  bus.Notifier
	relay     *redisc.Relay
	close     func()
}

func newBackends(ctx context.Context, cfg config.Config, events *bus.Bus) (*backends, error) {
	if cfg.RedisURL == "" {
		slog.Info("REDIS_URL not set, snapshots disabled")
		return &backends{notifier: events, close: func() {}}, nil
	}

	redisClient, err := redisc.InitRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	slog.Info("connected to Redis")

	relay := redisc.NewRelay(redisClient, events, nil)
	return &backends{
		snapshots: store.NewRedis(redisClient, store.DefaultPrefix, cfg.SnapshotTTL),
		notifier:  relay,
		relay:     relay,
		close:     func() { closeRedis(redisClient) },
	}, nil
}

func closeRedis(client *redis.Client) {
	if err := client.Close(); err != nil {
		slog.Warn("failed to close Redis", "error", err)
	}
}
