// Package analytics implements the analytics store adapter: an append-only
// log of probe rows, backed by ClickHouse in production and falling back to
// the operational sqlite store's site_logs table for local/dev use when no
// ClickHouse DSN is configured.
package analytics

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/fleetmon/fleetmon/pkg/config"
	"github.com/fleetmon/fleetmon/pkg/database"
)

// Row is one append-only probe record, mirroring database.AnalyticsRow on
// the wire to the analytics store.
type Row = database.AnalyticsRow

// Store appends probe rows to the analytics backend.
type Store interface {
	Append(ctx context.Context, row *Row) error
	Close() error
}

// Open returns a ClickHouse-backed store if cfg.Clickhouse.Host is set,
// otherwise a sqlite-backed fallback store using db's site_logs table.
func Open(cfg *config.Config, db *database.DB) (Store, error) {
	if cfg.Clickhouse.Host == "" {
		return &sqliteStore{db: db}, nil
	}
	return newClickhouseStore(cfg)
}

type sqliteStore struct {
	db *database.DB
}

func (s *sqliteStore) Append(_ context.Context, row *Row) error {
	return s.db.AnalyticsRepository().Append(row)
}

func (s *sqliteStore) Close() error { return nil }

type clickhouseStore struct {
	conn  clickhouse.Conn
	table string
}

func newClickhouseStore(cfg *config.Config) (Store, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Clickhouse.Host, cfg.Clickhouse.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Clickhouse.Database,
			Username: cfg.Clickhouse.User,
			Password: cfg.Clickhouse.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse connection: %w", err)
	}

	table := cfg.Clickhouse.Table
	if table == "" {
		table = "site_logs"
	}

	return &clickhouseStore{conn: conn, table: table}, nil
}

func (s *clickhouseStore) Append(ctx context.Context, row *Row) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (site_id, url, name, timestamp, traffic_light, http_status, latency_ms, ping_ms, ssl_days_left, dns_resolved, redirects, errors_last, ping_interval_sec)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.table)

	return s.conn.Exec(ctx, query,
		row.SiteID, row.URL, row.Name, row.Timestamp, row.TrafficLight,
		nullableInt(row.HTTPStatus), nullableInt(row.LatencyMs), nullableFloat(row.PingMs),
		nullableInt(row.SSLDaysLeft), row.DNSResolved, nullableInt(row.Redirects),
		nullableInt(row.ErrorsLast), row.PingIntervalSec,
	)
}

func (s *clickhouseStore) Close() error {
	return s.conn.Close()
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
