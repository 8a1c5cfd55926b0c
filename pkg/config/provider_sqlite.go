package config

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/chrissnell/remoteflow/pkg/migrate"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var sqliteMigrations embed.FS

const defaultConfigName = "default"

// ErrNoConfig is returned when the database holds no saved configuration
var ErrNoConfig = errors.New("no configuration saved in database")

// SchemaProvider serves the embedded SQLite configuration schema.
func SchemaProvider() *migrate.FSProvider {
	return migrate.NewFSProvider(sqliteMigrations, "migrations", "config_schema_migrations", migrate.SQLite)
}

// SQLiteProvider implements ConfigProvider for SQLite database configuration
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteProvider opens dbPath and brings its schema up to date
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	if err := migrate.NewMigrator(db, SchemaProvider()).MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate SQLite config database: %w", err)
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// LoadConfig loads the complete configuration from SQLite database
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	config := &ConfigData{}

	storage, err := s.GetStorageConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load storage config: %w", err)
	}
	config.Storage = *storage

	server, err := s.GetServerConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load server config: %w", err)
	}
	config.Server = *server

	analysis, err := s.GetAnalysisConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load analysis config: %w", err)
	}
	config.Analysis = *analysis

	return config, nil
}

func (s *SQLiteProvider) configID() (int64, error) {
	var id int64
	err := s.db.QueryRow(`SELECT id FROM configs WHERE name = ?`, defaultConfigName).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNoConfig
	}
	return id, err
}

// GetStorageConfig returns storage configuration from the database
func (s *SQLiteProvider) GetStorageConfig() (*StorageData, error) {
	id, err := s.configID()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT backend_type, connection_string FROM storage_configs WHERE config_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query storage configs: %w", err)
	}
	defer rows.Close()

	storage := &StorageData{}
	for rows.Next() {
		var backendType string
		var connectionString sql.NullString
		if err := rows.Scan(&backendType, &connectionString); err != nil {
			return nil, fmt.Errorf("failed to scan storage config row: %w", err)
		}

		switch backendType {
		case "timescaledb":
			storage.TimescaleDB = &TimescaleDBData{ConnectionString: connectionString.String}
		}
	}
	return storage, rows.Err()
}

// GetServerConfig returns the REST server configuration from the database
func (s *SQLiteProvider) GetServerConfig() (*ServerData, error) {
	id, err := s.configID()
	if err != nil {
		return nil, err
	}

	server := &ServerData{}
	var listenAddr, cert, key sql.NullString
	var port sql.NullInt64
	err = s.db.QueryRow(`SELECT listen_addr, port, tls_cert, tls_key, enable_cors FROM server_configs WHERE config_id = ?`, id).
		Scan(&listenAddr, &port, &cert, &key, &server.EnableCORS)
	if errors.Is(err, sql.ErrNoRows) {
		return server, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query server config: %w", err)
	}

	server.ListenAddr = listenAddr.String
	server.Port = int(port.Int64)
	server.Cert = cert.String
	server.Key = key.String
	return server, nil
}

// GetAnalysisConfig returns the flow analysis configuration from the database
func (s *SQLiteProvider) GetAnalysisConfig() (*AnalysisData, error) {
	id, err := s.configID()
	if err != nil {
		return nil, err
	}

	a := &AnalysisData{}
	var rateUnit sql.NullString
	var rangeMargin, frameMargin sql.NullInt64
	err = s.db.QueryRow(`
		SELECT rate_unit, scale_factor, flow_start_threshold, flow_continue_threshold,
		       min_duration_minutes, min_average_rate, max_plausible_rate, min_total_volume,
		       range_margin_minutes, frame_margin_minutes, max_range_days,
		       default_page_limit, max_page_limit
		FROM analysis_configs WHERE config_id = ?`, id).Scan(
		&rateUnit, &a.ScaleFactor, &a.FlowStartThreshold, &a.FlowContinueThreshold,
		&a.MinDurationMinutes, &a.MinAverageRate, &a.MaxPlausibleRate, &a.MinTotalVolume,
		&rangeMargin, &frameMargin, &a.MaxRangeDays,
		&a.DefaultPageLimit, &a.MaxPageLimit,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return a, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis config: %w", err)
	}
	a.RateUnit = rateUnit.String
	a.RangeMarginMinutes = nullableMinutes(rangeMargin)
	a.FrameMarginMinutes = nullableMinutes(frameMargin)
	return a, nil
}

// IsReadOnly returns false since SQLite supports read/write operations
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the database connection
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveConfig replaces the stored configuration with configData
func (s *SQLiteProvider) SaveConfig(configData *ConfigData) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	configID, err := s.upsertConfig(tx, defaultConfigName)
	if err != nil {
		return fmt.Errorf("failed to insert config: %w", err)
	}

	for _, q := range []string{
		"DELETE FROM storage_configs WHERE config_id = ?",
		"DELETE FROM server_configs WHERE config_id = ?",
		"DELETE FROM analysis_configs WHERE config_id = ?",
	} {
		if _, err := tx.Exec(q, configID); err != nil {
			return fmt.Errorf("failed to clear existing config: %w", err)
		}
	}

	if ts := configData.Storage.TimescaleDB; ts != nil {
		_, err = tx.Exec(`INSERT INTO storage_configs (config_id, backend_type, connection_string) VALUES (?, 'timescaledb', ?)`,
			configID, ts.ConnectionString)
		if err != nil {
			return fmt.Errorf("failed to insert storage config: %w", err)
		}
	}

	srv := configData.Server
	_, err = tx.Exec(`INSERT INTO server_configs (config_id, listen_addr, port, tls_cert, tls_key, enable_cors) VALUES (?, ?, ?, ?, ?, ?)`,
		configID, srv.ListenAddr, srv.Port, srv.Cert, srv.Key, srv.EnableCORS)
	if err != nil {
		return fmt.Errorf("failed to insert server config: %w", err)
	}

	a := configData.Analysis
	_, err = tx.Exec(`
		INSERT INTO analysis_configs (
			config_id, rate_unit, scale_factor, flow_start_threshold, flow_continue_threshold,
			min_duration_minutes, min_average_rate, max_plausible_rate, min_total_volume,
			range_margin_minutes, frame_margin_minutes, max_range_days,
			default_page_limit, max_page_limit
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		configID, a.RateUnit, a.ScaleFactor, a.FlowStartThreshold, a.FlowContinueThreshold,
		a.MinDurationMinutes, a.MinAverageRate, a.MaxPlausibleRate, a.MinTotalVolume,
		minutesParam(a.RangeMarginMinutes), minutesParam(a.FrameMarginMinutes), a.MaxRangeDays,
		a.DefaultPageLimit, a.MaxPageLimit,
	)
	if err != nil {
		return fmt.Errorf("failed to insert analysis config: %w", err)
	}

	return tx.Commit()
}

// NULL margin columns mean "use the default"
func nullableMinutes(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	return Minutes(int(n.Int64))
}

func minutesParam(m *int) sql.NullInt64 {
	if m == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*m), Valid: true}
}

func (s *SQLiteProvider) upsertConfig(tx *sql.Tx, name string) (int64, error) {
	_, err := tx.Exec(`INSERT INTO configs (name) VALUES (?)
		ON CONFLICT(name) DO UPDATE SET updated_at = CURRENT_TIMESTAMP`, name)
	if err != nil {
		return 0, err
	}
	var id int64
	err = tx.QueryRow(`SELECT id FROM configs WHERE name = ?`, name).Scan(&id)
	return id, err
}
