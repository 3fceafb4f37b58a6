package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"alert-systemv1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to the candle archive. It implements
// the candle source interface consumed by the evaluators.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// DB returns the underlying sql.DB for health checks.
func (r *Reader) DB() *sql.DB { return r.db }

// GetSeries returns closed bars for one (symbol, exchange, timeframe)
// ordered by timestamp ascending. Zero bounds are open-ended.
func (r *Reader) GetSeries(ctx context.Context, symbol, exchange, timeframe string, start, end time.Time) ([]model.Candle, error) {
	startTS := int64(0)
	if !start.IsZero() {
		startTS = start.Unix()
	}
	endTS := int64(1<<62 - 1)
	if !end.IsZero() {
		endTS = end.Unix()
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, exchange, tf, ts, open, high, low, close, volume
		FROM candles
		WHERE exchange = ? AND symbol = ? AND tf = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC
	`, exchange, symbol, timeframe, startTS, endTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var c model.Candle
		var tsUnix int64
		if err := rows.Scan(&c.Symbol, &c.Exchange, &c.Timeframe, &tsUnix, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan candles: %w", err)
		}
		c.TS = time.Unix(tsUnix, 0).UTC()
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// ReadAlerts returns the most recent triggered alerts, newest first.
func (r *Reader) ReadAlerts(ctx context.Context, limit int) ([]model.AlertRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, rule_id, symbol, exchange, bar_time, lhs, rhs, created_at
		FROM alerts
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []model.AlertRecord
	for rows.Next() {
		var a model.AlertRecord
		var barTS, createdTS int64
		if err := rows.Scan(&a.ID, &a.RuleID, &a.Symbol, &a.Exchange, &barTS, &a.LHS, &a.RHS, &createdTS); err != nil {
			return nil, fmt.Errorf("sqlite scan alerts: %w", err)
		}
		a.BarTime = time.Unix(barTS, 0).UTC()
		a.CreatedAt = time.Unix(createdTS, 0).UTC()
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
