package points

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// BookingResult is the outcome of booking or cancelling a seat.
type BookingResult struct {
	Booking Booking
	Entry   Entry
	Balance Balance
}

// CheckCoworking reports the seat pool of one day.
func (engine *Engine) CheckCoworking(ctx context.Context, date Date) (Availability, error) {
	if date.IsZero() {
		return Availability{}, fmt.Errorf("%w: date is required", ErrInvalidDate)
	}
	day, err := engine.store.GetCoworkingDay(ctx, date)
	if err != nil {
		return Availability{}, err
	}
	return newAvailability(day, engine.defaultCapacity), nil
}

// CheckCoworkingRange reports the seat pools of days consecutive days starting at from.
// A zero from means today and a zero days means a week.
func (engine *Engine) CheckCoworkingRange(ctx context.Context, from Date, days int) ([]Availability, error) {
	if from.IsZero() {
		from = engine.Today()
	}
	if days == 0 {
		days = defaultAvailabilityDays
	}
	if days < 0 || days > maxAvailabilityDays {
		return nil, fmt.Errorf("%w: days must be between 1 and %d", ErrInvalidLimit, maxAvailabilityDays)
	}
	to := from.AddDays(days - 1)
	stored, err := engine.store.ListCoworkingDays(ctx, from, to)
	if err != nil {
		return nil, err
	}
	byDate := make(map[Date]CoworkingDay, len(stored))
	for _, day := range stored {
		byDate[day.Date] = day
	}
	availability := make([]Availability, 0, days)
	for offset := 0; offset < days; offset++ {
		date := from.AddDays(offset)
		day, found := byDate[date]
		if !found {
			day = CoworkingDay{Date: date}
		}
		availability = append(availability, newAvailability(day, engine.defaultCapacity))
	}
	return availability, nil
}

// BookCoworking takes a seat for the caller and charges the coworking cost.
func (engine *Engine) BookCoworking(ctx context.Context, caller Caller, date Date) (BookingResult, error) {
	var result BookingResult
	operationError := engine.bookCoworking(ctx, caller, date, &result)
	engine.logOperation(ctx, OperationLog{
		Operation: operationBookCoworking,
		ActorID:   caller.MemberID,
		MemberID:  caller.MemberID,
		Subject:   date.String(),
		Amount:    result.Entry.Delta,
		Reference: result.Booking.ID,
		Error:     operationError,
	})
	if operationError != nil {
		return BookingResult{}, operationError
	}
	return result, nil
}

func (engine *Engine) bookCoworking(ctx context.Context, caller Caller, date Date, result *BookingResult) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	if date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidDate)
	}
	if date.Before(engine.Today()) {
		return fmt.Errorf("%w: %s is in the past", ErrInvalidDate, date)
	}
	return engine.runTx(ctx, func(ctx context.Context, txStore Store) error {
		_, err := txStore.GetActiveBooking(ctx, caller.MemberID, date)
		if err == nil {
			return fmt.Errorf("%w: %s", ErrAlreadyBooked, date)
		}
		if !errors.Is(err, ErrNoActiveBooking) {
			return err
		}
		if err := txStore.TakeSeat(ctx, date, engine.defaultCapacity); err != nil {
			if !errors.Is(err, ErrNoCapacity) {
				return err
			}
			day, readErr := txStore.GetCoworkingDay(ctx, date)
			if readErr != nil {
				return readErr
			}
			availability := newAvailability(day, engine.defaultCapacity)
			return &NoCapacityError{Date: date, Capacity: availability.Capacity, Available: availability.Available}
		}
		bookingID, err := newRecordID()
		if err != nil {
			return err
		}
		idempotencyKey, err := deriveIdempotencyKey(idempotencyPrefixBooking, bookingID)
		if err != nil {
			return err
		}
		reason, err := NewReason("Coworking day " + date.String())
		if err != nil {
			return err
		}
		entry, member, err := engine.applyEntry(ctx, txStore, EntryInput{
			MemberID:       caller.MemberID,
			Delta:          -engine.coworkingCost,
			Reason:         reason,
			Category:       CategoryCoworkingSpend,
			ActorID:        caller.MemberID,
			Reference:      bookingID,
			IdempotencyKey: idempotencyKey,
		})
		if err != nil {
			return err
		}
		booking := Booking{
			ID:            bookingID,
			Date:          date,
			MemberID:      caller.MemberID,
			Status:        BookingStatusActive,
			PointsCharged: engine.coworkingCost,
			CreatedAt:     engine.now(),
		}
		if err := txStore.CreateBooking(ctx, booking); err != nil {
			return err
		}
		*result = BookingResult{Booking: booking, Entry: entry, Balance: balanceOf(member)}
		return nil
	})
}

// CancelCoworking releases the caller's seat and refunds what was charged for it.
func (engine *Engine) CancelCoworking(ctx context.Context, caller Caller, date Date) (BookingResult, error) {
	var result BookingResult
	operationError := engine.cancelCoworking(ctx, caller, date, &result)
	engine.logOperation(ctx, OperationLog{
		Operation: operationCancelCoworking,
		ActorID:   caller.MemberID,
		MemberID:  caller.MemberID,
		Subject:   date.String(),
		Amount:    result.Entry.Delta,
		Reference: result.Booking.ID,
		Error:     operationError,
	})
	if operationError != nil {
		return BookingResult{}, operationError
	}
	return result, nil
}

func (engine *Engine) cancelCoworking(ctx context.Context, caller Caller, date Date, result *BookingResult) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	if date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidDate)
	}
	return engine.runTx(ctx, func(ctx context.Context, txStore Store) error {
		booking, err := txStore.GetActiveBooking(ctx, caller.MemberID, date)
		if err != nil {
			return err
		}
		return engine.releaseBooking(ctx, txStore, caller, booking, result)
	})
}

// CancelBookingByID releases a booking named by its id and refunds its holder. Admins may cancel
// any booking; members only their own.
func (engine *Engine) CancelBookingByID(ctx context.Context, caller Caller, bookingID string) (BookingResult, error) {
	var result BookingResult
	operationError := engine.cancelBookingByID(ctx, caller, bookingID, &result)
	engine.logOperation(ctx, OperationLog{
		Operation: operationCancelCoworking,
		ActorID:   caller.MemberID,
		MemberID:  result.Booking.MemberID,
		Subject:   result.Booking.Date.String(),
		Amount:    result.Entry.Delta,
		Reference: bookingID,
		Error:     operationError,
	})
	if operationError != nil {
		return BookingResult{}, operationError
	}
	return result, nil
}

func (engine *Engine) cancelBookingByID(ctx context.Context, caller Caller, bookingID string, result *BookingResult) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return fmt.Errorf("%w: empty value", ErrInvalidBookingID)
	}
	return engine.runTx(ctx, func(ctx context.Context, txStore Store) error {
		booking, err := txStore.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if !caller.Admin && booking.MemberID != caller.MemberID {
			return fmt.Errorf("%w: booking belongs to another member", ErrPermissionDenied)
		}
		if booking.Status != BookingStatusActive {
			return fmt.Errorf("%w: booking is %s", ErrNoActiveBooking, booking.Status)
		}
		return engine.releaseBooking(ctx, txStore, caller, booking, result)
	})
}

// releaseBooking cancels an active booking, frees its seat and refunds the holder.
func (engine *Engine) releaseBooking(ctx context.Context, txStore Store, caller Caller, booking Booking, result *BookingResult) error {
	cancelledAt := engine.now()
	if err := txStore.CancelBooking(ctx, booking.ID, cancelledAt); err != nil {
		return err
	}
	if err := txStore.ReleaseSeat(ctx, booking.Date); err != nil {
		return err
	}
	booking.Status = BookingStatusCancelled
	booking.CancelledAt = &cancelledAt
	if booking.PointsCharged == 0 {
		*result = BookingResult{Booking: booking}
		return nil
	}
	idempotencyKey, err := deriveIdempotencyKey(idempotencyPrefixBookingBack, booking.ID)
	if err != nil {
		return err
	}
	reason, err := NewReason("Coworking day " + booking.Date.String() + " cancelled")
	if err != nil {
		return err
	}
	entry, member, err := engine.applyEntry(ctx, txStore, EntryInput{
		MemberID:       booking.MemberID,
		Delta:          booking.PointsCharged,
		Reason:         reason,
		Category:       CategoryCoworkingRefund,
		ActorID:        caller.MemberID,
		Reference:      booking.ID,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return err
	}
	*result = BookingResult{Booking: booking, Entry: entry, Balance: balanceOf(member)}
	return nil
}

// SetCapacityOverride changes the seat count of one day. Existing bookings are never evicted.
func (engine *Engine) SetCapacityOverride(ctx context.Context, caller Caller, date Date, capacity int) (Availability, error) {
	var availability Availability
	operationError := engine.setCapacityOverride(ctx, caller, date, capacity, &availability)
	engine.logOperation(ctx, OperationLog{
		Operation: operationSetCapacityOverride,
		ActorID:   caller.MemberID,
		Subject:   date.String(),
		Amount:    int64(capacity),
		Error:     operationError,
	})
	if operationError != nil {
		return Availability{}, operationError
	}
	return availability, nil
}

func (engine *Engine) setCapacityOverride(ctx context.Context, caller Caller, date Date, capacity int, availability *Availability) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	if date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidDate)
	}
	if capacity < 0 {
		return fmt.Errorf("%w: must not be negative", ErrInvalidCapacity)
	}
	return engine.runTx(ctx, func(ctx context.Context, txStore Store) error {
		override := CapacityOverride{Date: date, Capacity: capacity, SetBy: caller.MemberID, SetAt: engine.now()}
		if err := txStore.SetCapacityOverride(ctx, override); err != nil {
			return err
		}
		day, err := txStore.GetCoworkingDay(ctx, date)
		if err != nil {
			return err
		}
		*availability = newAvailability(day, engine.defaultCapacity)
		return nil
	})
}

// ListCapacityOverrides returns the override audit trail of one day, oldest first.
func (engine *Engine) ListCapacityOverrides(ctx context.Context, caller Caller, date Date) ([]CapacityOverride, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return engine.store.ListCapacityOverrides(ctx, date)
}

// ListMyBookings returns the caller's active bookings from today on.
func (engine *Engine) ListMyBookings(ctx context.Context, caller Caller) ([]Booking, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	return engine.store.ListBookings(ctx, BookingFilter{
		MemberID: caller.MemberID,
		From:     engine.Today(),
		Status:   BookingStatusActive,
	})
}
