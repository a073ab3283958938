package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"ms-fulfillment/internal/errs"
	"ms-fulfillment/internal/inventory"
	"ms-fulfillment/internal/models"
)

// ErrPreconditionFailed signals that the conditional write matched no
// row: the order vanished or its status moved under us. The caller
// re-fetches to tell the two apart.
var ErrPreconditionFailed = errors.New("order write precondition failed")

const maxTxRetries = 3

type DB struct {
	Bun *bun.DB
}

// GetOrderByID fetches one order by its ID.
func (d *DB) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("order_id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFound("order", id)
		}
		return nil, err
	}
	return &order, nil
}

// CreateOrder inserts a new order.
func (d *DB) CreateOrder(ctx context.Context, order *models.Order) error {
	_, err := d.Bun.NewInsert().Model(order).Exec(ctx)
	return err
}

// UpdateOrderStatus writes the transition fields conditioned on the
// status read at the start of the operation. A concurrent writer makes
// the precondition fail instead of silently overwriting.
func (d *DB) UpdateOrderStatus(ctx context.Context, order *models.Order, expectedStatus string) error {
	res, err := d.Bun.NewUpdate().
		Model(order).
		Column("status", "payment_status", "authorization_id", "status_history", "processing_error", "completed_at", "updated_at").
		Where("order_id = ? AND status = ?", order.OrderID, expectedStatus).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrPreconditionFailed
	}
	return nil
}

// UpdateOrderStatusWithRestock folds the status write and the inventory
// adjustment into one transaction, so a cancellation either restocks and
// commits or does neither.
func (d *DB) UpdateOrderStatusWithRestock(ctx context.Context, order *models.Order, expectedStatus string, adjustments []inventory.Adjustment) error {
	if err := inventory.ValidateBatch(adjustments); err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
			if err := inventory.ApplyInTx(ctx, tx, order.BoxID, adjustments); err != nil {
				return err
			}
			res, err := tx.NewUpdate().
				Model(order).
				Column("status", "payment_status", "authorization_id", "status_history", "processing_error", "completed_at", "updated_at").
				Where("order_id = ? AND status = ?", order.OrderID, expectedStatus).
				Exec(ctx)
			if err != nil {
				return err
			}
			rows, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if rows == 0 {
				return ErrPreconditionFailed
			}
			return nil
		})
		if errors.Is(err, inventory.ErrVersionConflict) {
			lastErr = err
			continue
		}
		return err
	}
	return errs.Internal(lastErr)
}

// SetProcessingError records a failure on the order without touching its
// status.
func (d *DB) SetProcessingError(ctx context.Context, orderID, message string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("processing_error = ?", message).
		Set("updated_at = ?", time.Now()).
		Where("order_id = ?", orderID).
		Exec(ctx)
	return err
}
