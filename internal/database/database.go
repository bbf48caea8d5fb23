package database

import (
	"fmt"
	"time"

	"wager-settlement/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Connect establishes a connection to the configured database (postgres or sqlite)
func Connect(driver, dsn string) error {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, GormConfig())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to get sql handle: %w", err)
		}
		// sqlite serializes writers; one connection avoids SQLITE_BUSY under concurrent jobs
		sqlDB.SetMaxOpenConns(1)
	}

	DB = db
	zap.L().Info("database connection established", zap.String("driver", driver))
	return nil
}

// GormConfig is shared by the server and tests so timestamps are always UTC
func GormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Error),
		DisableForeignKeyConstraintWhenMigrating: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// AutoMigrate runs automatic migrations on the global connection
func AutoMigrate() error {
	return Migrate(DB)
}

// Migrate runs automatic migrations for all settlement models
func Migrate(db *gorm.DB) error {
	settlementModels := []interface{}{
		&models.Account{},
		&models.Wager{},
		&models.Bet{},
		&models.Transfer{},
	}

	for _, model := range settlementModels {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}

	zap.L().Info("database migrations completed")
	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}
