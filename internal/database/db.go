package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Baaaki/postboard/internal/config"
	"github.com/Baaaki/postboard/internal/models"
	"github.com/Baaaki/postboard/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const sqliteScheme = "sqlite://"

var DB *gorm.DB

// Dialector picks the gorm driver from the URL: "sqlite://<path>" opens an embedded
// database, anything else is handed to the postgres driver.
func Dialector(databaseURL string) (gorm.Dialector, error) {
	if path, ok := strings.CutPrefix(databaseURL, sqliteScheme); ok {
		if path == "" {
			return nil, fmt.Errorf("empty sqlite path in %q", databaseURL)
		}
		if path != ":memory:" && !strings.HasPrefix(path, "file:") {
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return nil, err
			}
		}
		return sqlite.Open(path + sqlitePragmas(path)), nil
	}
	return postgres.Open(databaseURL), nil
}

// Foreign keys are off by default in sqlite.
func sqlitePragmas(path string) string {
	if strings.Contains(path, "?") {
		return "&_foreign_keys=on"
	}
	return "?_foreign_keys=on"
}

func Connect(cfg *config.Config) error {
	dialector, err := Dialector(cfg.DatabaseURL)
	if err != nil {
		return err
	}

	level := gormlogger.Warn
	if !cfg.IsProduction() {
		level = gormlogger.Info
	}

	DB, err = gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(level),
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	logger.Log.Info("Database connected", zap.String("driver", DB.Dialector.Name()))
	return nil
}

// AutoMigrate creates or updates every table the application owns, including the
// post_likes join table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.User{}, &models.Post{})
}

func Migrate() error {
	if err := AutoMigrate(DB); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	logger.Log.Info("Database migration completed")
	return nil
}
