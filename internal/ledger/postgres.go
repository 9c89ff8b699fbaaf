// Package ledger keeps a Postgres trail of the orders created by checkout
// sessions and the payment transactions issued for them.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/vasiliy-maslov/farm-checkout/internal/cart"
	"github.com/vasiliy-maslov/farm-checkout/internal/checkout"
	"github.com/vasiliy-maslov/farm-checkout/internal/payment"
)

var ErrTransactionNotFound = errors.New("payment transaction not found")

type postgresRepository struct {
	db  *pgxpool.Pool
	now func() time.Time
}

// NewRepository returns a checkout.Ledger backed by the checkout schema.
func NewRepository(db *pgxpool.Pool) checkout.Ledger {
	return &postgresRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *postgresRepository) FindOrder(ctx context.Context, sessionID uuid.UUID) (*checkout.PlacedOrder, error) {
	queryOrder := `
		SELECT order_ids, payment_method, total_amount::text, delivery_address, created_at
		FROM checkout.orders
		WHERE session_id = $1
	`

	placed := checkout.PlacedOrder{SessionID: sessionID}
	var method, total string
	err := r.db.QueryRow(ctx, queryOrder, sessionID).Scan(
		&placed.OrderIDs,
		&method,
		&total,
		&placed.DeliveryAddress,
		&placed.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, checkout.ErrNotRecorded
		}
		return nil, fmt.Errorf("repository: failed to select order for session %s: %w", sessionID, err)
	}

	placed.PaymentMethod = payment.Method(method)
	if placed.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("repository: invalid total for session %s: %w", sessionID, err)
	}

	queryItems := `
		SELECT product_id, product_name, unit, price_per_unit::text, quantity
		FROM checkout.order_items
		WHERE session_id = $1
		ORDER BY line_no
	`
	rows, err := r.db.Query(ctx, queryItems, sessionID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	placed.Items = make([]cart.Item, 0)
	for rows.Next() {
		var item cart.Item
		var unit, price string
		if err := rows.Scan(&item.ProductID, &item.Name, &unit, &price, &item.Quantity); err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item for session %s: %w", sessionID, err)
		}
		item.Unit = cart.Unit(unit)
		if item.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("repository: invalid item price for session %s: %w", sessionID, err)
		}
		placed.Items = append(placed.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order items for session %s: %w", sessionID, err)
	}

	return &placed, nil
}

func (r *postgresRepository) RecordOrder(ctx context.Context, order checkout.PlacedOrder) (err error) {
	if order.CreatedAt.IsZero() {
		order.CreatedAt = r.now()
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("session_id", order.SessionID).Msg("repository: failed to rollback transaction")
			}
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("repository: failed to commit transaction: %w", commitErr)
		}
	}()

	queryOrder := `
		INSERT INTO checkout.orders (session_id, order_ids, payment_method, total_amount, delivery_address, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6)
	`
	_, err = tx.Exec(ctx, queryOrder,
		order.SessionID,
		order.OrderIDs,
		order.PaymentMethod.String(),
		order.Total.StringFixed(2),
		order.DeliveryAddress,
		order.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return checkout.ErrOrderAlreadyRecorded
		}
		return fmt.Errorf("repository: failed to insert order for session %s: %w", order.SessionID, err)
	}

	queryItem := `
		INSERT INTO checkout.order_items (session_id, line_no, product_id, product_name, unit, price_per_unit, quantity)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7)
	`
	batch := &pgx.Batch{}
	for i, item := range order.Items {
		batch.Queue(queryItem,
			order.SessionID,
			i+1,
			item.ProductID,
			item.Name,
			item.Unit.String(),
			item.UnitPrice.String(),
			item.Quantity,
		)
	}
	if batch.Len() > 0 {
		if err = tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("repository: failed to insert order items for session %s: %w", order.SessionID, err)
		}
	}

	log.Info().Stringer("session_id", order.SessionID).Strs("order_ids", order.OrderIDs).Msg("repository: order recorded")
	return nil
}

// RecordTransaction upserts on transaction_id so a re-issued QR refreshes the row.
func (r *postgresRepository) RecordTransaction(ctx context.Context, sessionID uuid.UUID, orderID string, method payment.Method, t payment.Transaction) error {
	if t.ID == "" {
		return fmt.Errorf("repository: transaction id is required")
	}
	now := r.now()
	status := t.Status
	if status == "" {
		status = payment.TransactionPending
	}

	query := `
		INSERT INTO checkout.payment_transactions
			(transaction_id, session_id, order_id, payment_method, reference, amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $8)
		ON CONFLICT (transaction_id) DO UPDATE
		SET reference = EXCLUDED.reference,
			amount = EXCLUDED.amount,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.Exec(ctx, query,
		t.ID,
		sessionID,
		orderID,
		method.String(),
		t.Reference,
		t.Amount.StringFixed(2),
		status.String(),
		now,
	)
	if err != nil {
		log.Error().Err(err).Str("transaction_id", t.ID).Msg("repository: failed to record transaction")
		return fmt.Errorf("repository: failed to record transaction %s: %w", t.ID, err)
	}
	return nil
}

func (r *postgresRepository) UpdateTransactionStatus(ctx context.Context, transactionID string, status payment.TransactionStatus) error {
	query := `
		UPDATE checkout.payment_transactions
		SET status = $1, updated_at = $2
		WHERE transaction_id = $3
	`

	cmdTag, err := r.db.Exec(ctx, query, status.String(), r.now(), transactionID)
	if err != nil {
		log.Error().Err(err).Str("transaction_id", transactionID).Str("new_status", status.String()).Msg("repository: failed to update transaction status")
		return fmt.Errorf("repository: failed to update transaction status %s: %w", transactionID, err)
	}

	if cmdTag.RowsAffected() == 0 {
		log.Warn().Str("transaction_id", transactionID).Msg("repository: transaction not found for status update")
		return ErrTransactionNotFound
	}

	return nil
}
