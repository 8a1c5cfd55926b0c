package database

import (
	"embed"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chrissnell/remoteflow/internal/log"
	"github.com/chrissnell/remoteflow/pkg/migrate"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var schemaMigrations embed.FS

// CreateConnection opens a TimescaleDB connection with the standard GORM configuration
func CreateConnection(connectionString string) (*gorm.DB, error) {
	// Create a logger for gorm
	dbLogger := logger.New(
		zap.NewStdLog(log.GetZapLogger()),
		logger.Config{
			SlowThreshold:             time.Second, // Slow SQL threshold
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	log.Info("connecting to TimescaleDB...")
	db, err := gorm.Open(postgres.Open(connectionString), &gorm.Config{Logger: dbLogger})
	if err != nil {
		log.Warnf("unable to create a TimescaleDB connection: %v", err)
		return nil, err
	}
	log.Info("TimescaleDB connection successful")

	return db, nil
}

// SchemaProvider serves the embedded reading and profile schema.
func SchemaProvider() *migrate.FSProvider {
	return migrate.NewFSProvider(schemaMigrations, "migrations", "remoteflow_schema_migrations", migrate.Postgres)
}

// Migrate brings the reading and profile tables up to date
func Migrate(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("unable to get underlying sql.DB: %w", err)
	}

	if err := migrate.NewMigrator(sqlDB, SchemaProvider()).WithLogger(log.Infof).MigrateUp(); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}
	return nil
}
