package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"stonks/internal/domain"
	"stonks/internal/engine"
)

// Compile-time interface check.
var _ engine.TradeArchiver = (*ParquetArchive)(nil)

// ClosedTradeRecord is the Parquet schema for one completed round trip.
type ClosedTradeRecord struct {
	PositionID string  `parquet:"position_id"`
	OrderID    string  `parquet:"order_id"`
	OptionCode string  `parquet:"option_code"`
	TradeType  string  `parquet:"trade_type"`
	Quantity   int64   `parquet:"quantity"`
	EntryPrice float64 `parquet:"entry_price"`
	ExitPrice  float64 `parquet:"exit_price"`
	PnL        float64 `parquet:"pnl"`
	PnLPercent float64 `parquet:"pnl_percent"`
	OpenedAt   int64   `parquet:"opened_at,timestamp(millisecond)"` // Unix ms
	ClosedAt   int64   `parquet:"closed_at,timestamp(millisecond)"` // Unix ms
}

// ParquetArchive stores closed trades in one Parquet file per trading day at
// <DataDir>/trades/<YYYY-MM-DD>.parquet.
type ParquetArchive struct {
	DataDir string
}

// NewParquetArchive creates an archive rooted at dataDir.
func NewParquetArchive(dataDir string) *ParquetArchive {
	return &ParquetArchive{DataDir: dataDir}
}

// ArchiveTrade appends a closed position to its day file. Re-archiving the
// same position overwrites the earlier record.
func (a *ParquetArchive) ArchiveTrade(p *domain.Position) error {
	if p.Status != domain.PositionStatusClosed {
		return fmt.Errorf("position %s is %s, not closed", p.ID, p.Status)
	}

	record := ClosedTradeRecord{
		PositionID: p.ID,
		OrderID:    p.OrderID,
		OptionCode: p.OptionCode,
		TradeType:  string(p.TradeType),
		Quantity:   int64(p.Quantity),
		EntryPrice: p.EntryPrice,
		ExitPrice:  p.ExitPrice,
		PnL:        p.RealizedPnL(),
		PnLPercent: p.RealizedPnLPercent(),
		OpenedAt:   p.OpenedAt.UnixMilli(),
		ClosedAt:   p.ClosedAt.UnixMilli(),
	}

	path := a.dayPath(p.ClosedAt)
	existing, _ := readParquetFile[ClosedTradeRecord](path)
	merged := mergeClosedTrades(existing, []ClosedTradeRecord{record})

	if err := writeParquetFile(path, merged); err != nil {
		return fmt.Errorf("archiving trade %s: %w", p.ID, err)
	}
	return nil
}

// ReadDay returns the archived trades for one calendar day, oldest first.
func (a *ParquetArchive) ReadDay(day time.Time) ([]ClosedTradeRecord, error) {
	path := a.dayPath(day)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	return readParquetFile[ClosedTradeRecord](path)
}

// ReadRange returns archived trades across a day range, inclusive. Days
// without a file are skipped.
func (a *ParquetArchive) ReadRange(start, end time.Time) ([]ClosedTradeRecord, error) {
	var out []ClosedTradeRecord
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		records, err := readParquetFile[ClosedTradeRecord](a.dayPath(d))
		if err != nil {
			continue
		}
		out = append(out, records...)
	}
	return out, nil
}

// dayPath returns the archive file for the day containing t.
func (a *ParquetArchive) dayPath(t time.Time) string {
	return filepath.Join(a.DataDir, "trades", t.UTC().Format("2006-01-02")+".parquet")
}

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeClosedTrades deduplicates by position id, preferring incoming
// records. Results are sorted by close time.
func mergeClosedTrades(existing, incoming []ClosedTradeRecord) []ClosedTradeRecord {
	seen := make(map[string]ClosedTradeRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.PositionID] = r
	}
	for _, r := range incoming {
		seen[r.PositionID] = r
	}

	merged := make([]ClosedTradeRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].ClosedAt < merged[j].ClosedAt
	})
	return merged
}
