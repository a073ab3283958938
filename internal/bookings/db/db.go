package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"ms-fulfillment/internal/errs"
	"ms-fulfillment/internal/models"
)

// ErrPreconditionFailed signals that the conditional write matched no
// row; the caller re-fetches to distinguish a deleted booking from a
// concurrent status move.
var ErrPreconditionFailed = errors.New("booking write precondition failed")

type DB struct {
	Bun *bun.DB
}

// GetBookingByID fetches one event booking by its ID.
func (d *DB) GetBookingByID(ctx context.Context, id string) (*models.EventBooking, error) {
	var booking models.EventBooking
	err := d.Bun.NewSelect().
		Model(&booking).
		Where("booking_id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFound("booking", id)
		}
		return nil, err
	}
	return &booking, nil
}

// CreateBooking inserts a new event booking.
func (d *DB) CreateBooking(ctx context.Context, booking *models.EventBooking) error {
	_, err := d.Bun.NewInsert().Model(booking).Exec(ctx)
	return err
}

// UpdateBookingStatus writes the transition fields conditioned on the
// status read at the start of the operation.
func (d *DB) UpdateBookingStatus(ctx context.Context, booking *models.EventBooking, expectedStatus string) error {
	res, err := d.Bun.NewUpdate().
		Model(booking).
		Column("booking_status", "payment_status", "transaction_id", "action_url",
			"admin_approval", "status_history", "processing_error",
			"actual_start_time", "actual_end_time", "updated_at").
		Where("booking_id = ? AND booking_status = ?", booking.BookingID, expectedStatus).
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

// UpdateAssignment writes the resource assignment conditioned on the
// booking still being in the status the caller validated against.
func (d *DB) UpdateAssignment(ctx context.Context, booking *models.EventBooking, expectedStatus string) error {
	res, err := d.Bun.NewUpdate().
		Model(booking).
		Column("assigned_resources", "assigned_lead_actor_id", "updated_at").
		Where("booking_id = ? AND booking_status = ?", booking.BookingID, expectedStatus).
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

// SetProcessingError records a failure on the booking without touching
// its status.
func (d *DB) SetProcessingError(ctx context.Context, bookingID, message string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.EventBooking)(nil)).
		Set("processing_error = ?", message).
		Set("updated_at = ?", time.Now()).
		Where("booking_id = ?", bookingID).
		Exec(ctx)
	return err
}

// SetCalendarSync records the result of the post-commit calendar sync.
// Either the external event id landed or the booking is flagged for a
// manual follow-up.
func (d *DB) SetCalendarSync(ctx context.Context, bookingID, calendarEventID string, needsManualSync bool) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.EventBooking)(nil)).
		Set("calendar_event_id = ?", calendarEventID).
		Set("needs_manual_sync = ?", needsManualSync).
		Set("updated_at = ?", time.Now()).
		Where("booking_id = ?", bookingID).
		Exec(ctx)
	return err
}
