package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avelinsk/swapflow/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL. Writes are
// last-write-wins upserts keyed by order_id so re-delivery from retried
// attempts is harmless.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Upsert inserts or fully replaces the row for the given order.
func (s *OrderStore) Upsert(ctx context.Context, o domain.Order) error {
	var quoteJSON []byte
	if o.Quote != nil {
		data, err := json.Marshal(o.Quote)
		if err != nil {
			return fmt.Errorf("postgres: marshal quote for order %s: %w", o.ID, err)
		}
		quoteJSON = data
	}

	var limitPrice *float64
	if o.LimitPrice > 0 {
		limitPrice = &o.LimitPrice
	}

	const query = `
		INSERT INTO orders (
			order_id, wallet, token_in, token_out, amount_in,
			kind, slippage, limit_price, status, selected_venue,
			quote, tx_signature, error_message, attempts, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16
		)
		ON CONFLICT (order_id) DO UPDATE SET
			status = EXCLUDED.status,
			selected_venue = EXCLUDED.selected_venue,
			quote = EXCLUDED.quote,
			tx_signature = EXCLUDED.tx_signature,
			error_message = EXCLUDED.error_message,
			attempts = EXCLUDED.attempts,
			updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.Wallet, o.TokenIn, o.TokenOut, o.AmountIn,
		string(o.Kind), o.Slippage, limitPrice, string(o.Status), nullableVenue(o.SelectedVenue),
		quoteJSON, nullableStr(o.TxSignature), nullableStr(o.ErrorMessage), o.Attempts,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert order %s: %w", o.ID, err)
	}
	return nil
}

func nullableStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableVenue(v domain.Venue) *string {
	if v == "" {
		return nil
	}
	s := string(v)
	return &s
}

const orderSelectCols = `order_id, wallet, token_in, token_out, amount_in,
	kind, slippage, limit_price, status, selected_venue,
	quote, tx_signature, error_message, attempts, created_at, updated_at`

func scanOrderFromRow(scanner interface{ Scan(dest ...any) error }) (domain.Order, error) {
	var o domain.Order
	var kind, status string
	var limitPrice *float64
	var selectedVenue, txSignature, errorMessage *string
	var quoteJSON []byte

	err := scanner.Scan(
		&o.ID, &o.Wallet, &o.TokenIn, &o.TokenOut, &o.AmountIn,
		&kind, &o.Slippage, &limitPrice, &status, &selectedVenue,
		&quoteJSON, &txSignature, &errorMessage, &o.Attempts,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	o.Kind = domain.OrderKind(kind)
	o.Status = domain.OrderStatus(status)
	if limitPrice != nil {
		o.LimitPrice = *limitPrice
	}
	if selectedVenue != nil {
		o.SelectedVenue = domain.Venue(*selectedVenue)
	}
	if txSignature != nil {
		o.TxSignature = *txSignature
	}
	if errorMessage != nil {
		o.ErrorMessage = *errorMessage
	}
	if len(quoteJSON) > 0 {
		var q domain.Quote
		if err := json.Unmarshal(quoteJSON, &q); err != nil {
			return domain.Order{}, fmt.Errorf("unmarshal quote: %w", err)
		}
		o.Quote = &q
	}

	return o, nil
}

func scanOrderRows(rows pgx.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrderFromRow(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// GetByID retrieves a single order by ID.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE order_id = $1`, id)

	o, err := scanOrderFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// ListByWallet returns orders for a wallet, newest first.
func (s *OrderStore) ListByWallet(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.Order, error) {
	query := `SELECT ` + orderSelectCols + ` FROM orders WHERE wallet = $1 ORDER BY created_at DESC`
	args := []any{wallet}
	query, args = applyListOpts(query, args, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders by wallet: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan orders by wallet: %w", err)
	}
	return orders, nil
}

// ListByStatus returns orders in a given status, newest first.
func (s *OrderStore) ListByStatus(ctx context.Context, status domain.OrderStatus, opts domain.ListOpts) ([]domain.Order, error) {
	query := `SELECT ` + orderSelectCols + ` FROM orders WHERE status = $1 ORDER BY created_at DESC`
	args := []any{string(status)}
	query, args = applyListOpts(query, args, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders by status: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan orders by status: %w", err)
	}
	return orders, nil
}

// ListCreatedBetween returns orders created in [from, to), oldest first.
// Used by the history archiver for range exports.
func (s *OrderStore) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders
		 WHERE created_at >= $1 AND created_at < $2
		 ORDER BY created_at ASC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders by created range: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan orders by created range: %w", err)
	}
	return orders, nil
}

func applyListOpts(query string, args []any, opts domain.ListOpts) (string, []any) {
	argIdx := len(args) + 1
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return query, args
}

// Compile-time interface check.
var _ domain.OrderStore = (*OrderStore)(nil)
