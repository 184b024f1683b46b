// Package store persists the trading journal: SQLite for the live working
// set and Parquet for the long-term closed-trade archive.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"stonks/internal/domain"
	"stonks/internal/engine"
)

// Compile-time interface check.
var _ engine.Journal = (*SQLiteJournal)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id              TEXT PRIMARY KEY,
	option_code     TEXT NOT NULL,
	side            TEXT NOT NULL,
	status          TEXT NOT NULL,
	quantity        INTEGER NOT NULL,
	filled_quantity INTEGER NOT NULL DEFAULT 0,
	broker_order_id TEXT,
	payload         TEXT NOT NULL,
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	id            TEXT PRIMARY KEY,
	order_id      TEXT NOT NULL,
	option_code   TEXT NOT NULL,
	status        TEXT NOT NULL,
	quantity      INTEGER NOT NULL,
	entry_price   REAL NOT NULL,
	exit_price    REAL,
	exit_order_id TEXT,
	payload       TEXT NOT NULL,
	opened_at     TEXT NOT NULL,
	closed_at     TEXT
);

CREATE TABLE IF NOT EXISTS analyses (
	id          TEXT PRIMARY KEY,
	order_id    TEXT,
	position_id TEXT,
	type        TEXT NOT NULL,
	model       TEXT NOT NULL,
	payload     TEXT NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);
CREATE INDEX IF NOT EXISTS idx_analyses_order ON analyses(order_id);
`

// SQLiteJournal is a write-through journal of orders, positions, and
// analyses. Rows carry a few queryable columns plus the full record as JSON.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal opens (or creates) the journal database at dbPath.
func NewSQLiteJournal(dbPath string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening journal db: %w", err)
	}
	// SQLite allows one writer; serialize access at the pool level.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing journal schema: %w", err)
	}
	return &SQLiteJournal{db: db}, nil
}

// Close closes the underlying database.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// SaveOrder upserts an order.
func (j *SQLiteJournal) SaveOrder(o *domain.Order) error {
	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encoding order %s: %w", o.ID, err)
	}
	_, err = j.db.Exec(`
		INSERT INTO orders (id, option_code, side, status, quantity, filled_quantity, broker_order_id, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			filled_quantity = excluded.filled_quantity,
			broker_order_id = excluded.broker_order_id,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		o.ID, o.OptionCode, o.Side, o.Status, o.Quantity, o.FilledQuantity, o.BrokerOrderID,
		string(payload), o.CreatedAt.Format(timeLayout), o.UpdatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("saving order %s: %w", o.ID, err)
	}
	return nil
}

// SavePosition upserts a position.
func (j *SQLiteJournal) SavePosition(p *domain.Position) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding position %s: %w", p.ID, err)
	}
	closedAt := ""
	if !p.ClosedAt.IsZero() {
		closedAt = p.ClosedAt.Format(timeLayout)
	}
	_, err = j.db.Exec(`
		INSERT INTO positions (id, order_id, option_code, status, quantity, entry_price, exit_price, exit_order_id, payload, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			exit_price = excluded.exit_price,
			exit_order_id = excluded.exit_order_id,
			payload = excluded.payload,
			closed_at = excluded.closed_at`,
		p.ID, p.OrderID, p.OptionCode, p.Status, p.Quantity, p.EntryPrice, p.ExitPrice, p.ExitOrderID,
		string(payload), p.OpenedAt.Format(timeLayout), closedAt)
	if err != nil {
		return fmt.Errorf("saving position %s: %w", p.ID, err)
	}
	return nil
}

// SaveAnalysis inserts an analysis. Analyses are immutable; a duplicate id
// is ignored.
func (j *SQLiteJournal) SaveAnalysis(a *domain.Analysis) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding analysis %s: %w", a.ID, err)
	}
	_, err = j.db.Exec(`
		INSERT OR IGNORE INTO analyses (id, order_id, position_id, type, model, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.OrderID, a.PositionID, a.Type, a.Model, string(payload), a.CreatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("saving analysis %s: %w", a.ID, err)
	}
	return nil
}

// LoadOrders returns every journaled order, oldest first.
func (j *SQLiteJournal) LoadOrders() ([]*domain.Order, error) {
	rows, err := j.db.Query(`SELECT payload FROM orders ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("loading orders: %w", err)
	}
	defer rows.Close()

	var out []*domain.Order
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var o domain.Order
		if err := json.Unmarshal([]byte(payload), &o); err != nil {
			return nil, fmt.Errorf("decoding order payload: %w", err)
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

// LoadPositions returns every journaled position, oldest first.
func (j *SQLiteJournal) LoadPositions() ([]*domain.Position, error) {
	rows, err := j.db.Query(`SELECT payload FROM positions ORDER BY opened_at`)
	if err != nil {
		return nil, fmt.Errorf("loading positions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Position
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var p domain.Position
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, fmt.Errorf("decoding position payload: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// AnalysesForOrder returns the analyses attached to an order, oldest first.
func (j *SQLiteJournal) AnalysesForOrder(orderID string) ([]*domain.Analysis, error) {
	rows, err := j.db.Query(`SELECT payload FROM analyses WHERE order_id = ? ORDER BY created_at`, orderID)
	if err != nil {
		return nil, fmt.Errorf("loading analyses: %w", err)
	}
	defer rows.Close()

	var out []*domain.Analysis
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var a domain.Analysis
		if err := json.Unmarshal([]byte(payload), &a); err != nil {
			return nil, fmt.Errorf("decoding analysis payload: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"
