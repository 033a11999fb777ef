// Package clickhouse stores recorded cost allocations (payroll and invoice
// actuals) in a columnar table suited to month-by-month reconciliation reads.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/shopspring/decimal"

	finerr "finanzas-sd/pkg/errors"
)

// Allocation is one recorded actual against a materialized line item.
type Allocation struct {
	ProjectID  string          `ch:"project_id"`
	BaselineID string          `ch:"baseline_id"`
	LineItemID string          `ch:"line_item_id"`
	Month      int32           `ch:"month"`
	Amount     decimal.Decimal `ch:"amount"`
	Currency   string          `ch:"currency"`
	Source     string          `ch:"source"` // payroll | invoice | manual
	RecordedAt time.Time       `ch:"recorded_at"`
}

// Config holds ClickHouse connection configuration.
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Debug    bool
}

// DefaultConfig returns default development configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     9000,
		Database: "finanzas",
		Username: "default",
		Password: "",
	}
}

// Store provides allocation reads/writes against ClickHouse.
type Store struct {
	conn clickhouse.Conn
	cfg  *Config
}

// NewStore connects to ClickHouse.
func NewStore(cfg *Config) (*Store, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: cfg.Debug,
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	return &Store{conn: conn, cfg: cfg}, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// EnsureSchema creates the allocations table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS allocations (
			project_id   String,
			baseline_id  String,
			line_item_id String,
			month        Int32,
			amount       Decimal(18, 2),
			currency     LowCardinality(String),
			source       LowCardinality(String),
			recorded_at  DateTime
		) ENGINE = ReplacingMergeTree(recorded_at)
		ORDER BY (project_id, baseline_id, line_item_id, month)
	`
	if err := s.conn.Exec(ctx, ddl); err != nil {
		return finerr.NewStoreUnavailable("create allocations table", err)
	}
	return nil
}

// InsertAllocations bulk-writes recorded actuals.
func (s *Store) InsertAllocations(ctx context.Context, allocations []Allocation) error {
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO allocations (
			project_id, baseline_id, line_item_id, month,
			amount, currency, source, recorded_at
		)
	`)
	if err != nil {
		return finerr.NewStoreUnavailable("prepare allocations batch", err)
	}
	for _, a := range allocations {
		recordedAt := a.RecordedAt
		if recordedAt.IsZero() {
			recordedAt = time.Now().UTC()
		}
		if err := batch.Append(
			a.ProjectID, a.BaselineID, a.LineItemID, a.Month,
			a.Amount, a.Currency, a.Source, recordedAt,
		); err != nil {
			return finerr.NewStoreUnavailable("append allocation", err)
		}
	}
	if err := batch.Send(); err != nil {
		return finerr.NewStoreUnavailable("send allocations batch", err)
	}
	return nil
}

// ActualsFor returns the recorded actuals for one project baseline, latest
// record per (line item, month).
func (s *Store) ActualsFor(ctx context.Context, projectID, baselineID string) ([]Allocation, error) {
	query := `
		SELECT project_id, baseline_id, line_item_id, month,
			   amount, currency, source, recorded_at
		FROM allocations FINAL
		WHERE project_id = ? AND baseline_id = ?
		ORDER BY line_item_id, month
	`
	rows, err := s.conn.Query(ctx, query, projectID, baselineID)
	if err != nil {
		return nil, finerr.NewStoreUnavailable("query allocations", err)
	}
	defer rows.Close()

	var out []Allocation
	for rows.Next() {
		var a Allocation
		if err := rows.Scan(
			&a.ProjectID, &a.BaselineID, &a.LineItemID, &a.Month,
			&a.Amount, &a.Currency, &a.Source, &a.RecordedAt,
		); err != nil {
			return nil, finerr.NewStoreUnavailable("scan allocation", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, finerr.NewStoreUnavailable("iterate allocations", err)
	}
	return out, nil
}
