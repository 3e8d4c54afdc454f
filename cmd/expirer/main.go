package main

import (
	"context"
	"database/sql"
	"log"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/dcvotebot/dcvotebot/internal/adapters/cache"
	"github.com/dcvotebot/dcvotebot/internal/adapters/repository/mariadb"
	"github.com/dcvotebot/dcvotebot/internal/config"
	"github.com/dcvotebot/dcvotebot/internal/core/services"
)

// One-shot expiry and retention job, for deployments that drive the
// sweeps from an external scheduler instead of the bot's own tickers.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatal(err)
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
		OpTimeout:    cfg.OpTimeout,
		LockWait:     cfg.LockWait,
		RetentionAge: cfg.RetentionAge,
	})

	// Use a timeout for the job execution to prevent it from hanging indefinitely
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	log.Println("Starting expiry sweep...")
	now := time.Now()

	expired, err := svc.ExpireDueSessions(ctx, now)
	if err != nil {
		log.Fatalf("Error expiring sessions: %v", err)
	}
	log.Printf("Expired %d sessions.", len(expired))

	purged, err := svc.PurgeClosedSessions(ctx, now)
	if err != nil {
		log.Fatalf("Error purging sessions: %v", err)
	}
	log.Printf("Purged %d sessions past retention.", purged)
}
