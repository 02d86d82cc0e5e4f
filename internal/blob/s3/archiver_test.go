package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/avelinsk/swapflow/internal/domain"
)

type fakeWriter struct {
	puts map[string][]byte
}

func (w *fakeWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if w.puts == nil {
		w.puts = make(map[string][]byte)
	}
	w.puts[path] = b
	return nil
}

type fakeOrderStore struct {
	orders []domain.Order
}

func (s *fakeOrderStore) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]domain.Order, error) {
	return s.orders, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArchiveWindowExportsTerminalOrders(t *testing.T) {
	store := &fakeOrderStore{orders: []domain.Order{
		{ID: "a", Status: domain.OrderStatusConfirmed},
		{ID: "b", Status: domain.OrderStatusRouting},
		{ID: "c", Status: domain.OrderStatusFailed},
	}}
	writer := &fakeWriter{}
	a := NewArchiver(writer, store, time.Minute, testLogger())

	to := time.Date(2026, 8, 31, 15, 45, 0, 0, time.UTC)
	count, err := a.ArchiveWindow(context.Background(), to.Add(-time.Minute), to)
	if err != nil {
		t.Fatalf("ArchiveWindow: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}

	wantPath := "orders/2026/08/31/20260831T154500Z.jsonl"
	data, ok := writer.puts[wantPath]
	if !ok {
		t.Fatalf("no object at %s, got %v", wantPath, keys(writer.puts))
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("exported %d records, want 2", len(lines))
	}
	var first domain.Order
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode first record: %v", err)
	}
	if first.ID != "a" {
		t.Fatalf("first record id = %q, want a", first.ID)
	}
}

func TestArchiveWindowSkipsEmptyWindow(t *testing.T) {
	writer := &fakeWriter{}
	a := NewArchiver(writer, &fakeOrderStore{}, time.Minute, testLogger())

	count, err := a.ArchiveWindow(context.Background(), time.Now().Add(-time.Minute), time.Now())
	if err != nil {
		t.Fatalf("ArchiveWindow: %v", err)
	}
	if count != 0 {
		t.Fatalf("count = %d, want 0", count)
	}
	if len(writer.puts) != 0 {
		t.Fatal("no upload expected for an empty window")
	}
}

func TestMarshalJSONLIsNewlineDelimited(t *testing.T) {
	buf, err := marshalJSONL([]domain.Order{{ID: "x"}, {ID: "y"}})
	if err != nil {
		t.Fatalf("marshalJSONL: %v", err)
	}
	if n := bytes.Count(buf, []byte("\n")); n != 2 {
		t.Fatalf("newline count = %d, want 2", n)
	}
}

func keys(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
