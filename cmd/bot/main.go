package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/dcvotebot/dcvotebot/internal/adapters/cache"
	"github.com/dcvotebot/dcvotebot/internal/adapters/handler/discord"
	"github.com/dcvotebot/dcvotebot/internal/adapters/handler/http"
	"github.com/dcvotebot/dcvotebot/internal/adapters/repository/mariadb"
	"github.com/dcvotebot/dcvotebot/internal/config"
	"github.com/dcvotebot/dcvotebot/internal/core/ports"
	"github.com/dcvotebot/dcvotebot/internal/core/services"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.DiscordToken == "" {
		log.Error("DISCORD_TOKEN is required")
		os.Exit(1)
	}

	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		log.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.Ping(); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}

	gateway, err := discord.NewGatewaySession(cfg.DiscordToken)
	if err != nil {
		log.Error("gateway setup failed", "error", err)
		os.Exit(1)
	}

	sessionRepo := mariadb.NewSessionRepository(db)
	voteRepo := mariadb.NewVoteRepository(db)
	defaultsRepo := mariadb.NewDefaultsRepository(db)
	sessionCache := cache.New(sessionRepo, voteRepo, cfg.CacheMaxEntries, cfg.CacheIdleTTL)

	svc := services.NewVoteService(services.VoteServiceDeps{
		Sessions:     sessionRepo,
		Votes:        voteRepo,
		Defaults:     defaultsRepo,
		Cache:        sessionCache,
		Policy:       discord.NewChannelPolicy(gateway),
		Logger:       log,
		OpTimeout:    cfg.OpTimeout,
		LockWait:     cfg.LockWait,
		RetentionAge: cfg.RetentionAge,
	})

	updater := discord.NewMessageUpdater(svc, log)
	updater.Bind(gateway)
	dispatcher := discord.NewDispatcher(gateway, svc, updater, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := dispatcher.Start(); err != nil {
		log.Error("dispatcher start failed", "error", err)
		os.Exit(1)
	}
	defer dispatcher.Stop()

	go updater.Run(ctx)
	go runExpiry(ctx, svc, updater, cfg.ExpiryInterval, log)
	go runRetention(ctx, svc, cfg.RetentionInterval, log)

	opsServer := &stdhttp.Server{Addr: cfg.OpsAddr, Handler: http.NewHandler(svc)}
	go func() {
		log.Info("ops server listening", "addr", cfg.OpsAddr)
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			log.Error("ops server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("ops server shutdown failed", "error", err)
	}
}

// runExpiry sweeps due sessions and queues a final message update for
// each poll that just ended.
func runExpiry(ctx context.Context, svc ports.VoteService, updater *discord.MessageUpdater, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			expired, err := svc.ExpireDueSessions(ctx, now)
			if err != nil {
				log.Error("expiry sweep failed", "error", err)
				continue
			}
			for _, session := range expired {
				updater.Enqueue(session.ID)
			}
		}
	}
}

func runRetention(ctx context.Context, svc ports.VoteService, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := svc.PurgeClosedSessions(ctx, now); err != nil {
				log.Error("retention purge failed", "error", err)
			}
		}
	}
}
