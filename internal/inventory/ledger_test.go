package inventory_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-fulfillment/internal/errs"
	"ms-fulfillment/internal/inventory"
	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/models"
)

func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, bunDB.ResetModel(context.Background(), (*models.Box)(nil)))

	t.Cleanup(func() { bunDB.Close() })
	return bunDB
}

func seedBox(t *testing.T, db *bun.DB, boxID string, stock map[string]int) {
	t.Helper()
	box := models.Box{
		BoxID:     boxID,
		Name:      "Test Box",
		Stock:     stock,
		Version:   1,
		IsActive:  true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	_, err := db.NewInsert().Model(&box).Exec(context.Background())
	require.NoError(t, err)
}

func getStock(t *testing.T, db *bun.DB, boxID string) map[string]int {
	t.Helper()
	var box models.Box
	err := db.NewSelect().Model(&box).Where("box_id = ?", boxID).Scan(context.Background())
	require.NoError(t, err)
	return box.Stock
}

func TestApplyAdjustments(t *testing.T) {
	db := setupTestDB(t)
	ledger := inventory.NewLedger(db, logger.NewNopLogger())
	seedBox(t, db, "b1", map[string]int{"p1": 5, "p2": 3})

	err := ledger.ApplyAdjustments(context.Background(), "b1", []inventory.Adjustment{
		{ProductID: "p1", Delta: -2},
		{ProductID: "p2", Delta: 4},
		{ProductID: "p3", Delta: 7},
	}, "restock")

	assert.NoError(t, err)
	assert.Equal(t, map[string]int{"p1": 3, "p2": 7, "p3": 7}, getStock(t, db, "b1"))
}

func TestApplyAdjustmentsNeverGoesNegative(t *testing.T) {
	db := setupTestDB(t)
	ledger := inventory.NewLedger(db, logger.NewNopLogger())
	seedBox(t, db, "b1", map[string]int{"p1": 5})

	err := ledger.ApplyAdjustments(context.Background(), "b1", []inventory.Adjustment{
		{ProductID: "p1", Delta: -6},
	}, "count")

	assert.Error(t, err)
	assert.Equal(t, errs.CodeResourceExhausted, errs.CodeOf(err))
	appErr := err.(*errs.Error)
	assert.Equal(t, "p1", appErr.ProductID)
	assert.Equal(t, map[string]int{"p1": 5}, getStock(t, db, "b1"))
}

func TestApplyAdjustmentsIsAllOrNothing(t *testing.T) {
	db := setupTestDB(t)
	ledger := inventory.NewLedger(db, logger.NewNopLogger())
	seedBox(t, db, "b1", map[string]int{"p1": 5, "p2": 1})

	// The first entry is fine on its own; the second would go negative.
	// Neither may be applied.
	err := ledger.ApplyAdjustments(context.Background(), "b1", []inventory.Adjustment{
		{ProductID: "p1", Delta: -3},
		{ProductID: "p2", Delta: -2},
	}, "pick")

	assert.Equal(t, errs.CodeResourceExhausted, errs.CodeOf(err))
	assert.Equal(t, map[string]int{"p1": 5, "p2": 1}, getStock(t, db, "b1"))
}

func TestDisjointBatchesCommute(t *testing.T) {
	initial := map[string]int{"p1": 5, "p2": 5, "p3": 5, "p4": 5}
	batchA := []inventory.Adjustment{{ProductID: "p1", Delta: -2}, {ProductID: "p2", Delta: 3}}
	batchB := []inventory.Adjustment{{ProductID: "p3", Delta: 1}, {ProductID: "p4", Delta: -4}}

	apply := func(t *testing.T, first, second []inventory.Adjustment) map[string]int {
		db := setupTestDB(t)
		ledger := inventory.NewLedger(db, logger.NewNopLogger())
		seedBox(t, db, "b1", initial)
		require.NoError(t, ledger.ApplyAdjustments(context.Background(), "b1", first, "test"))
		require.NoError(t, ledger.ApplyAdjustments(context.Background(), "b1", second, "test"))
		return getStock(t, db, "b1")
	}

	assert.Equal(t, apply(t, batchA, batchB), apply(t, batchB, batchA))
}

func TestApplyAdjustmentsRejectsMalformedBatches(t *testing.T) {
	db := setupTestDB(t)
	ledger := inventory.NewLedger(db, logger.NewNopLogger())
	seedBox(t, db, "b1", map[string]int{"p1": 5})

	err := ledger.ApplyAdjustments(context.Background(), "b1", nil, "empty")
	assert.Equal(t, errs.CodeInvalidArgument, errs.CodeOf(err))

	err = ledger.ApplyAdjustments(context.Background(), "b1", []inventory.Adjustment{
		{ProductID: "p1", Delta: 0},
	}, "zero delta")
	assert.Equal(t, errs.CodeInvalidArgument, errs.CodeOf(err))

	err = ledger.ApplyAdjustments(context.Background(), "b1", []inventory.Adjustment{
		{ProductID: "", Delta: 1},
	}, "missing product")
	assert.Equal(t, errs.CodeInvalidArgument, errs.CodeOf(err))

	// Stock untouched by any of the rejected batches.
	assert.Equal(t, map[string]int{"p1": 5}, getStock(t, db, "b1"))
}

func TestApplyAdjustmentsMissingBox(t *testing.T) {
	db := setupTestDB(t)
	ledger := inventory.NewLedger(db, logger.NewNopLogger())

	err := ledger.ApplyAdjustments(context.Background(), "ghost", []inventory.Adjustment{
		{ProductID: "p1", Delta: 1},
	}, "restock")

	assert.Equal(t, errs.CodeNotFound, errs.CodeOf(err))
}

func TestApplyAdjustmentsBumpsVersion(t *testing.T) {
	db := setupTestDB(t)
	ledger := inventory.NewLedger(db, logger.NewNopLogger())
	seedBox(t, db, "b1", map[string]int{"p1": 5})

	require.NoError(t, ledger.ApplyAdjustments(context.Background(), "b1", []inventory.Adjustment{
		{ProductID: "p1", Delta: 1},
	}, "restock"))

	var box models.Box
	require.NoError(t, db.NewSelect().Model(&box).Where("box_id = ?", "b1").Scan(context.Background()))
	assert.Equal(t, int64(2), box.Version)
}
