package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/avelinsk/swapflow/internal/domain"
)

// BlobWriter is the narrow upload surface the archiver needs.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// OrderArchiveStore provides read access to orders for archival purposes.
type OrderArchiveStore interface {
	ListCreatedBetween(ctx context.Context, from, to time.Time) ([]domain.Order, error)
}

// Archiver periodically exports finished orders to object storage as
// newline-delimited JSON, partitioned by day. Rows are never deleted from
// the primary store; the export is an additional durable copy.
type Archiver struct {
	writer   BlobWriter
	orders   OrderArchiveStore
	interval time.Duration
	logger   *slog.Logger
}

// NewArchiver creates an Archiver exporting on the given interval.
func NewArchiver(writer BlobWriter, orders OrderArchiveStore, interval time.Duration, logger *slog.Logger) *Archiver {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Archiver{
		writer:   writer,
		orders:   orders,
		interval: interval,
		logger:   logger.With(slog.String("component", "archiver")),
	}
}

// Run exports one window per tick until the context is cancelled. The first
// window starts at Run's invocation, so orders admitted before startup are
// picked up by an explicit ArchiveWindow call if needed.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	last := time.Now().UTC()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			to := now.UTC()
			count, err := a.ArchiveWindow(ctx, last, to)
			if err != nil {
				a.logger.Error("archive window failed",
					slog.Time("from", last),
					slog.Time("to", to),
					slog.String("error", err.Error()),
				)
				// Keep the window open; the next tick retries it.
				continue
			}
			if count > 0 {
				a.logger.Info("archived orders",
					slog.Int64("count", count),
					slog.Time("from", last),
					slog.Time("to", to),
				)
			}
			last = to
		}
	}
}

// ArchiveWindow exports orders created in [from, to) that have reached a
// terminal status, uploading one JSONL object per call. Returns the number
// of records exported.
func (a *Archiver) ArchiveWindow(ctx context.Context, from, to time.Time) (int64, error) {
	orders, err := a.orders.ListCreatedBetween(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}

	terminal := orders[:0]
	for _, o := range orders {
		if o.Status.Terminal() {
			terminal = append(terminal, o)
		}
	}
	if len(terminal) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(terminal)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	path := archivePath(to)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive upload %s: %w", path, err)
	}

	return int64(len(terminal)), nil
}

// archivePath builds the S3 key for an export, partitioned by day with the
// window end timestamp as the object name.
//
//	orders/2026/08/31/20260831T154500Z.jsonl
func archivePath(to time.Time) string {
	return fmt.Sprintf("orders/%s/%s.jsonl",
		to.Format("2006/01/02"),
		to.Format("20060102T150405Z"),
	)
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
