package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/fleetmon/fleetmon/pkg/config"
)

// DB is the operational store: sites, teams, users and their bindings.
// Writes to a given site's row are only ever issued by that site's prober
// task (see pkg/prober), so there is never more than one in-flight writer
// per row; each multi-field update still runs inside a transaction for
// atomicity across fields, standing in for the row-level SELECT FOR UPDATE
// the source relies on.
type DB struct {
	*sqlx.DB
	config *config.Config
}

// NewDB opens (and if necessary creates) the operational store.
func NewDB(cfg *config.Config) (*DB, error) {
	dbPath := cfg.Database.MainURL

	if dbPath == ":memory:" {
		db, err := sqlx.Connect("sqlite", ":memory:")
		if err != nil {
			return nil, fmt.Errorf("failed to connect to in-memory database: %w", err)
		}

		database := &DB{DB: db, config: cfg}
		if err := database.InitSchema(); err != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
		return database, nil
	}

	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	connStr := dbPath
	if cfg.Database.WALMode {
		connStr += "?_journal_mode=WAL&_sync=NORMAL&_cache_size=1000&_foreign_keys=ON"
	}

	db, err := sqlx.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	dbWrapper := &DB{DB: db, config: cfg}
	if err := dbWrapper.InitSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return dbWrapper, nil
}

// InitSchema creates the operational store tables if they do not exist.
func (db *DB) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sites (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL,
		ping_interval_sec INTEGER NOT NULL DEFAULT 30,
		com TEXT NOT NULL DEFAULT '{}',
		last_traffic_light TEXT,
		history TEXT NOT NULL DEFAULT '[]',
		last_ok BOOLEAN,
		last_status INTEGER,
		last_rtt REAL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS teams (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		description TEXT,
		tracked_site_ids TEXT NOT NULL DEFAULT '[]',
		tg_chat_id INTEGER,
		email_recipients TEXT NOT NULL DEFAULT '[]',
		webhook_urls TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tg_user_id INTEGER UNIQUE NOT NULL,
		tg_chat_id INTEGER,
		login TEXT,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Local fallback analytics table, used when no clickhouse DSN is configured.
	CREATE TABLE IF NOT EXISTS site_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		site_id INTEGER NOT NULL,
		url TEXT NOT NULL,
		name TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		traffic_light TEXT NOT NULL,
		http_status INTEGER,
		latency_ms INTEGER,
		ping_ms REAL,
		ssl_days_left INTEGER,
		dns_resolved BOOLEAN NOT NULL,
		redirects INTEGER,
		errors_last INTEGER,
		ping_interval_sec INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_site_logs_url_timestamp ON site_logs(url, timestamp);
	CREATE INDEX IF NOT EXISTS idx_sites_url ON sites(url);
	CREATE INDEX IF NOT EXISTS idx_teams_name ON teams(name);

	CREATE TRIGGER IF NOT EXISTS update_sites_timestamp
		AFTER UPDATE ON sites
		BEGIN
			UPDATE sites SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
		END;

	CREATE TRIGGER IF NOT EXISTS update_users_timestamp
		AFTER UPDATE ON users
		BEGIN
			UPDATE users SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
		END;
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.DB.Close()
}

// HealthCheck performs a trivial round-trip against the store.
func (db *DB) HealthCheck() error {
	var result int
	if err := db.Get(&result, "SELECT 1"); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// GetStats returns basic operational counters for the status surface.
func (db *DB) GetStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	tables := []string{"sites", "teams", "users", "site_logs"}
	for _, table := range tables {
		var count int
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
		if err := db.Get(&count, query); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		stats[table+"_count"] = count
	}

	var walMode string
	if err := db.Get(&walMode, "PRAGMA journal_mode"); err == nil {
		stats["journal_mode"] = walMode
	}

	return stats, nil
}

// SiteRepository returns a new site repository.
func (db *DB) SiteRepository() *SiteRepository {
	return NewSiteRepository(db)
}

// TeamRepository returns a new team repository.
func (db *DB) TeamRepository() *TeamRepository {
	return NewTeamRepository(db)
}

// UserRepository returns a new user repository.
func (db *DB) UserRepository() *UserRepository {
	return NewUserRepository(db)
}

// AnalyticsRepository returns a new local analytics repository (sqlite fallback).
func (db *DB) AnalyticsRepository() *AnalyticsRepository {
	return NewAnalyticsRepository(db)
}
