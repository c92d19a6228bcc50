package olap

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

var identRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// EventRow is the flattened event shape mirrored into the column store.
type EventRow struct {
	EventID    string
	EventType  string
	EventName  string
	UserID     string
	SessionID  string
	WebsiteID  string
	Timestamp  time.Time
	PageURL    string
	DurationMs uint64
	Country    string
	City       string
	Source     string
	Metadata   string
}

// EventSink receives flushed event batches for long-term analytical storage.
type EventSink interface {
	WriteEvents(ctx context.Context, rows []EventRow) error
	Close() error
}

type ClickHouseConfig struct {
	Addr        []string
	Database    string
	Username    string
	Password    string
	Table       string
	DialTimeout time.Duration
}

type ClickHouseSink struct {
	conn  clickhouse.Conn
	table string
}

func NewClickHouseSink(ctx context.Context, cfg *ClickHouseConfig) (*ClickHouseSink, error) {
	if !identRegex.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid clickhouse table name %q", cfg.Table)
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Addr,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{{Name: "visitrack", Version: "1.0.0"}},
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	sink := &ClickHouseSink{conn: conn, table: cfg.Table}
	if err := sink.ensureTable(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return sink, nil
}

func (s *ClickHouseSink) ensureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			event_id String,
			event_type LowCardinality(String),
			event_name String,
			user_id String,
			session_id String,
			website_id String,
			timestamp DateTime64(3),
			page_url String,
			duration_ms UInt64,
			country LowCardinality(String),
			city String,
			source LowCardinality(String),
			metadata String
		) ENGINE = ReplacingMergeTree
		ORDER BY (event_type, timestamp, event_id)`, s.table)

	if err := s.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create events table: %w", err)
	}
	return nil
}

func (s *ClickHouseSink) WriteEvents(ctx context.Context, rows []EventRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf(`
		INSERT INTO %s (
			event_id, event_type, event_name, user_id, session_id, website_id,
			timestamp, page_url, duration_ms, country, city, source, metadata
		)`, s.table))
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	for _, r := range rows {
		if err := batch.Append(
			r.EventID,
			r.EventType,
			r.EventName,
			r.UserID,
			r.SessionID,
			r.WebsiteID,
			r.Timestamp,
			r.PageURL,
			r.DurationMs,
			r.Country,
			r.City,
			r.Source,
			r.Metadata,
		); err != nil {
			return errors.Join(fmt.Errorf("failed to append event %s: %w", r.EventID, err), batch.Abort())
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

func (s *ClickHouseSink) Close() error {
	return s.conn.Close()
}

// NopSink discards rows.
type NopSink struct{}

func (NopSink) WriteEvents(context.Context, []EventRow) error { return nil }
func (NopSink) Close() error                                  { return nil }
