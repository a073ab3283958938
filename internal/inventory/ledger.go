package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-fulfillment/internal/errs"
	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/models"
)

// Adjustment is one signed stock delta for a product. Deltas are
// additive, never absolute overwrites, so retried transactions commute.
type Adjustment struct {
	ProductID string `json:"product_id"`
	Delta     int    `json:"delta"`
}

// ErrVersionConflict signals that another writer bumped the box version
// between our read and write; the transaction is retried.
var ErrVersionConflict = errors.New("box version conflict")

const maxTxRetries = 3

type Ledger struct {
	db  *bun.DB
	log *logger.Logger
}

func NewLedger(db *bun.DB, log *logger.Logger) *Ledger {
	return &Ledger{db: db, log: log}
}

// ValidateBatch rejects malformed batches before any transaction starts.
func ValidateBatch(adjustments []Adjustment) error {
	if len(adjustments) == 0 {
		return errs.InvalidArgument("error.empty_adjustment_batch")
	}
	for _, a := range adjustments {
		if a.ProductID == "" {
			return errs.InvalidArgument("error.adjustment_missing_product")
		}
		if a.Delta == 0 {
			return errs.InvalidArgument("error.adjustment_zero_delta")
		}
	}
	return nil
}

// ApplyAdjustments applies the whole batch to one box's stock map inside
// a single all-or-nothing transaction. If any resulting count would go
// negative the entire batch aborts; partial application never happens.
func (l *Ledger) ApplyAdjustments(ctx context.Context, boxID string, adjustments []Adjustment, reason string) error {
	if err := ValidateBatch(adjustments); err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := l.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
			return ApplyInTx(ctx, tx, boxID, adjustments)
		})
		if err == nil {
			l.log.LogInventory(boxID, fmt.Sprintf("applied %d adjustment(s), reason: %s", len(adjustments), reason))
			return nil
		}
		if errors.Is(err, ErrVersionConflict) {
			lastErr = err
			continue
		}
		return err
	}

	l.log.Error("INVENTORY", fmt.Sprintf("Giving up on box %s after %d version conflicts", boxID, maxTxRetries))
	return errs.Internal(lastErr)
}

// ApplyInTx runs the read-modify-write against an existing transaction so
// a status transition can fold its stock change into the same atomic
// unit. Box existence is re-checked here to avoid writing into a
// tombstoned entity.
func ApplyInTx(ctx context.Context, tx bun.IDB, boxID string, adjustments []Adjustment) error {
	var box models.Box
	err := tx.NewSelect().
		Model(&box).
		Where("box_id = ?", boxID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errs.NotFound("box", boxID)
		}
		return err
	}

	stock := make(map[string]int, len(box.Stock))
	for productID, count := range box.Stock {
		stock[productID] = count
	}
	for _, a := range adjustments {
		next := stock[a.ProductID] + a.Delta
		if next < 0 {
			return errs.ResourceExhausted(boxID, a.ProductID)
		}
		stock[a.ProductID] = next
	}

	previousVersion := box.Version
	box.Stock = stock
	box.Version = previousVersion + 1
	box.UpdatedAt = time.Now()

	res, err := tx.NewUpdate().
		Model(&box).
		Column("stock", "version", "updated_at").
		Where("box_id = ? AND version = ?", boxID, previousVersion).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrVersionConflict
	}
	return nil
}
