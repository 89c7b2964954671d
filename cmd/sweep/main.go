// Command sweep permanently removes posts that have been soft-deleted for longer than
// the retention window. It is meant to run from cron.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Baaaki/postboard/internal/audit"
	"github.com/Baaaki/postboard/internal/config"
	"github.com/Baaaki/postboard/internal/database"
	"github.com/Baaaki/postboard/internal/repository"
	"github.com/Baaaki/postboard/internal/service"
	"github.com/Baaaki/postboard/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()

	if err := logger.Init(!cfg.IsProduction()); err != nil {
		log.Printf("Failed to initialize logger: %v", err)
		return 1
	}
	defer logger.Sync()
	sweepLog := logger.Named("sweep")

	if err := database.Connect(cfg); err != nil {
		sweepLog.Error("Failed to connect database", zap.Error(err))
		return 1
	}
	if err := database.Migrate(); err != nil {
		sweepLog.Error("Failed to migrate database", zap.Error(err))
		return 1
	}

	// The sweep still runs when the journal cannot be opened
	journal, closeJournal := audit.OpenOrDiscard(cfg.AuditLogPath)
	defer closeJournal()

	postService := service.NewPostService(
		repository.NewPostRepository(database.DB), nil, journal, cfg.PageSize, cfg.RetentionWindow,
	)

	deleted, err := postService.Sweep(context.Background(), time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Sweep failed: %v\n", err)
		return 1
	}

	fmt.Printf("Successfully deleted %d old soft-deleted posts\n", deleted)
	return 0
}
