package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/leonguyen52/sprout-track-sub003/internal/model"
	"github.com/leonguyen52/sprout-track-sub003/pkg/config"
)

var DB *gorm.DB

// DBConfig holds the database configuration
type DBConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        logger.LogLevel
}

// Initialize initializes the database connection with the provided configuration
func Initialize(config DBConfig) error {
	var err error

	// Set default log level if not specified
	logLevel := config.LogLevel
	if logLevel == 0 {
		logLevel = logger.Warn
	}

	// Connect to the database with DisableAutoPrepare option to prevent "prepared statement already exists" errors
	pgConfig := postgres.Config{
		DSN:                  config.DSN,
		PreferSimpleProtocol: true, // Disables implicit prepared statement usage
	}

	DB, err = gorm.Open(postgres.New(pgConfig), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
		// Map driver unique-constraint errors to gorm.ErrDuplicatedKey so the
		// setup protocol can surface slug collisions as conflicts
		TranslateError: true,
	})

	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
		return err
	}

	// Configure connection pool
	sqlDB, err := DB.DB()
	if err != nil {
		log.Fatalf("Failed to get database connection: %v", err)
		return err
	}

	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}

	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}

	if config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	// AutoMigrate will automatically create or update the table structure based on our models
	err = DB.AutoMigrate(
		&model.Family{},
		&model.FamilySettings{},
		&model.SetupToken{},
		&model.Caretaker{},
		&model.Account{},
		&model.Baby{},
		&model.Activity{},
	)
	if err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
		return err
	}

	fmt.Println("Database connected and migrated successfully")
	return nil
}

// SeedDefaultFamily creates the pre-seeded placeholder family on a fresh
// install. It does nothing when any family row already exists, active or not.
func SeedDefaultFamily(cfg *config.SetupConfig) error {
	var count int64
	if err := DB.Model(&model.Family{}).Unscoped().Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	return DB.Transaction(func(tx *gorm.DB) error {
		family := model.Family{
			Name:      cfg.DefaultFamilyName,
			Slug:      cfg.DefaultFamilySlug,
			Active:    true,
			IsDefault: true,
		}
		if err := tx.Create(&family).Error; err != nil {
			return err
		}
		settings := model.FamilySettings{
			FamilyID:   family.ID,
			SetupStage: model.StageFamily,
		}
		return tx.Create(&settings).Error
	})
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}
