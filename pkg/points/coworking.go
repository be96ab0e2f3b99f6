package points

import (
	"fmt"
	"strings"
	"time"
)

// BookingStatus is the lifecycle state of a coworking booking.
type BookingStatus string

const (
	BookingStatusActive    BookingStatus = "active"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// ParseBookingStatus validates a booking status label.
func ParseBookingStatus(raw string) (BookingStatus, error) {
	switch BookingStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case BookingStatusActive:
		return BookingStatusActive, nil
	case BookingStatusCancelled:
		return BookingStatusCancelled, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidBookingStatus, raw)
	}
}

// String returns the status label.
func (status BookingStatus) String() string {
	return string(status)
}

// Booking is one member's seat on one day.
type Booking struct {
	ID            string
	Date          Date
	MemberID      MemberID
	Status        BookingStatus
	PointsCharged int64
	CreatedAt     time.Time
	CancelledAt   *time.Time
}

// ActiveKey returns the uniqueness key held while the booking is active.
func (booking Booking) ActiveKey() string {
	return BookingActiveKey(booking.Date, booking.MemberID)
}

// BookingActiveKey joins a day and member into the key that admits one active booking per pair.
func BookingActiveKey(date Date, memberID MemberID) string {
	return date.String() + bookingActiveKeySeparator + memberID.String()
}

// CoworkingDay is the seat pool of one day.
type CoworkingDay struct {
	Date             Date
	Booked           int
	CapacityOverride *int
}

// EffectiveCapacity returns the override when set, otherwise defaultCapacity.
func (day CoworkingDay) EffectiveCapacity(defaultCapacity int) int {
	if day.CapacityOverride != nil {
		return *day.CapacityOverride
	}
	return defaultCapacity
}

// Availability is the answer to checkCoworking.
type Availability struct {
	Date      Date
	Capacity  int
	Booked    int
	Available int
}

func newAvailability(day CoworkingDay, defaultCapacity int) Availability {
	capacity := day.EffectiveCapacity(defaultCapacity)
	available := capacity - day.Booked
	if available < 0 {
		available = 0
	}
	return Availability{Date: day.Date, Capacity: capacity, Booked: day.Booked, Available: available}
}

// CapacityOverride is an audited change to a day's seat count.
type CapacityOverride struct {
	Date     Date
	Capacity int
	SetBy    MemberID
	SetAt    time.Time
}

// BookingFilter narrows booking listings.
type BookingFilter struct {
	MemberID MemberID
	From     Date
	Status   BookingStatus
}
