package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/communitypoints/pkg/points"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (store *Store) GetCoworkingDay(ctx context.Context, date points.Date) (points.CoworkingDay, error) {
	var model CoworkingDay
	err := store.db.WithContext(ctx).Where("day = ?", date.String()).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return points.CoworkingDay{Date: date}, nil
	}
	if err != nil {
		return points.CoworkingDay{}, wrapStoreError(errorSubjectCoworkingDay, errorCodeGet, err)
	}
	return points.CoworkingDay{Date: date, Booked: model.BookedCount, CapacityOverride: model.CapacityOverride}, nil
}

func (store *Store) ListCoworkingDays(ctx context.Context, from points.Date, to points.Date) ([]points.CoworkingDay, error) {
	var rows []CoworkingDay
	err := store.db.WithContext(ctx).
		Where("day >= ? AND day <= ?", from.String(), to.String()).
		Order("day").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectCoworkingDay, errorCodeList, err)
	}
	days := make([]points.CoworkingDay, 0, len(rows))
	for _, row := range rows {
		date, err := optionalDate(row.Day)
		if err != nil {
			return nil, wrapStoreError(errorSubjectCoworkingDay, errorCodeInvalid, err)
		}
		days = append(days, points.CoworkingDay{Date: date, Booked: row.BookedCount, CapacityOverride: row.CapacityOverride})
	}
	return days, nil
}

// TakeSeat increments booked_count only while it stays below the effective capacity, so two
// bookings racing for the last seat cannot both succeed.
func (store *Store) TakeSeat(ctx context.Context, date points.Date, defaultCapacity int) error {
	if err := store.ensureCoworkingDay(ctx, date); err != nil {
		return err
	}
	result := store.db.WithContext(ctx).
		Model(&CoworkingDay{}).
		Where("day = ? AND booked_count < coalesce(capacity_override, ?)", date.String(), defaultCapacity).
		Update("booked_count", gorm.Expr("booked_count + 1"))
	if result.Error != nil {
		return wrapStoreError(errorSubjectCoworkingDay, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectCoworkingDay, errorCodeUpdate, points.ErrNoCapacity)
	}
	return nil
}

func (store *Store) ReleaseSeat(ctx context.Context, date points.Date) error {
	err := store.db.WithContext(ctx).
		Model(&CoworkingDay{}).
		Where("day = ? AND booked_count > 0", date.String()).
		Update("booked_count", gorm.Expr("booked_count - 1")).Error
	if err != nil {
		return wrapStoreError(errorSubjectCoworkingDay, errorCodeUpdate, err)
	}
	return nil
}

func (store *Store) SetCapacityOverride(ctx context.Context, override points.CapacityOverride) error {
	if err := store.ensureCoworkingDay(ctx, override.Date); err != nil {
		return err
	}
	capacity := override.Capacity
	err := store.db.WithContext(ctx).
		Model(&CoworkingDay{}).
		Where("day = ?", override.Date.String()).
		Update("capacity_override", &capacity).Error
	if err != nil {
		return wrapStoreError(errorSubjectCoworkingDay, errorCodeUpdate, err)
	}
	audit := CapacityOverride{
		Day:      override.Date.String(),
		Capacity: override.Capacity,
		SetBy:    override.SetBy.String(),
		SetAt:    override.SetAt,
	}
	if err := store.db.WithContext(ctx).Create(&audit).Error; err != nil {
		return wrapStoreError(errorSubjectCapacityOverride, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) ListCapacityOverrides(ctx context.Context, date points.Date) ([]points.CapacityOverride, error) {
	var rows []CapacityOverride
	err := store.db.WithContext(ctx).
		Where("day = ?", date.String()).
		Order("override_id").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectCapacityOverride, errorCodeList, err)
	}
	overrides := make([]points.CapacityOverride, 0, len(rows))
	for _, row := range rows {
		setBy, err := points.NewMemberID(row.SetBy)
		if err != nil {
			return nil, wrapStoreError(errorSubjectCapacityOverride, errorCodeInvalid, err)
		}
		overrides = append(overrides, points.CapacityOverride{
			Date:     date,
			Capacity: row.Capacity,
			SetBy:    setBy,
			SetAt:    row.SetAt.UTC(),
		})
	}
	return overrides, nil
}

func (store *Store) CreateBooking(ctx context.Context, booking points.Booking) error {
	activeKey := booking.ActiveKey()
	model := CoworkingBooking{
		BookingID:     booking.ID,
		Day:           booking.Date.String(),
		MemberID:      booking.MemberID.String(),
		Status:        booking.Status.String(),
		ActiveKey:     &activeKey,
		PointsCharged: booking.PointsCharged,
		CreatedAt:     booking.CreatedAt,
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectBooking, errorCodeDuplicate, points.ErrAlreadyBooked)
	}
	if err != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetBooking(ctx context.Context, bookingID string) (points.Booking, error) {
	var model CoworkingBooking
	err := store.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return points.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeGet, points.ErrBookingNotFound)
		}
		return points.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeGet, err)
	}
	booking, err := mapBooking(model)
	if err != nil {
		return points.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	return booking, nil
}

func (store *Store) GetActiveBooking(ctx context.Context, memberID points.MemberID, date points.Date) (points.Booking, error) {
	var model CoworkingBooking
	err := store.db.WithContext(ctx).
		Where("active_key = ?", points.BookingActiveKey(date, memberID)).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return points.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeGet, points.ErrNoActiveBooking)
		}
		return points.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeGet, err)
	}
	booking, err := mapBooking(model)
	if err != nil {
		return points.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
	}
	return booking, nil
}

// CancelBooking clears active_key with the status flip, freeing the member to book the day again.
func (store *Store) CancelBooking(ctx context.Context, bookingID string, at time.Time) error {
	result := store.db.WithContext(ctx).
		Model(&CoworkingBooking{}).
		Where("booking_id = ? AND status = ?", bookingID, points.BookingStatusActive.String()).
		Updates(map[string]interface{}{
			"status":       points.BookingStatusCancelled.String(),
			"active_key":   gorm.Expr("NULL"),
			"cancelled_at": at,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectBooking, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectBooking, errorCodeUpdate, points.ErrNoActiveBooking)
	}
	return nil
}

func (store *Store) ListBookings(ctx context.Context, filter points.BookingFilter) ([]points.Booking, error) {
	query := store.db.WithContext(ctx).Model(&CoworkingBooking{})
	if !filter.MemberID.IsZero() {
		query = query.Where("member_id = ?", filter.MemberID.String())
	}
	if !filter.From.IsZero() {
		query = query.Where("day >= ?", filter.From.String())
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status.String())
	}
	var rows []CoworkingBooking
	if err := query.Order("day").Order("created_at").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectBooking, errorCodeList, err)
	}
	bookings := make([]points.Booking, 0, len(rows))
	for _, row := range rows {
		booking, err := mapBooking(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectBooking, errorCodeInvalid, err)
		}
		bookings = append(bookings, booking)
	}
	return bookings, nil
}

func (store *Store) ensureCoworkingDay(ctx context.Context, date points.Date) error {
	seed := CoworkingDay{Day: date.String()}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&seed).Error
	if err != nil {
		return wrapStoreError(errorSubjectCoworkingDay, errorCodeCreate, err)
	}
	return nil
}

func mapBooking(row CoworkingBooking) (points.Booking, error) {
	date, err := optionalDate(row.Day)
	if err != nil {
		return points.Booking{}, err
	}
	memberID, err := points.NewMemberID(row.MemberID)
	if err != nil {
		return points.Booking{}, err
	}
	status, err := points.ParseBookingStatus(row.Status)
	if err != nil {
		return points.Booking{}, err
	}
	return points.Booking{
		ID:            row.BookingID,
		Date:          date,
		MemberID:      memberID,
		Status:        status,
		PointsCharged: row.PointsCharged,
		CreatedAt:     row.CreatedAt.UTC(),
		CancelledAt:   utcPointer(row.CancelledAt),
	}, nil
}
