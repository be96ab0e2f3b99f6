package gormstore

import (
	"time"

	"gorm.io/datatypes"
)

// Member mirrors the members table, the cached balance projection of the ledger.
type Member struct {
	MemberID       string    `gorm:"primaryKey"`
	DisplayName    string    `gorm:"not null;default:''"`
	Balance        int64     `gorm:"not null;default:0"`
	LifetimeEarned int64     `gorm:"not null;default:0"`
	LifetimeSpent  int64     `gorm:"not null;default:0"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

func (Member) TableName() string { return "members" }

// LedgerEntry mirrors the append-only ledger_entries table.
type LedgerEntry struct {
	EntryID         string         `gorm:"primaryKey"`
	MemberID        string         `gorm:"not null;index:idx_ledger_member_created,priority:1;index:uniq_ledger_member_idem,unique,priority:1"`
	Delta           int64          `gorm:"not null"`
	Reason          string         `gorm:"not null"`
	Category        string         `gorm:"not null"`
	ActorID         string         `gorm:"not null;default:''"`
	Reference       string         `gorm:"not null;default:''"`
	IdempotencyKey  string         `gorm:"not null;index:uniq_ledger_member_idem,unique,priority:2"`
	Metadata        datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedUnixNano int64          `gorm:"not null;index:idx_ledger_member_created,priority:2"`
	CreatedAt       time.Time      `gorm:"not null"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

// AdminAllowance mirrors the admin_allowances table: award usage per admin per ISO week.
type AdminAllowance struct {
	AdminID   string    `gorm:"primaryKey"`
	WeekKey   string    `gorm:"primaryKey"`
	Used      int64     `gorm:"not null;default:0"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (AdminAllowance) TableName() string { return "admin_allowances" }

// AdminAllowanceCap mirrors the admin_allowance_caps table.
type AdminAllowanceCap struct {
	AdminID   string    `gorm:"primaryKey"`
	WeeklyCap int64     `gorm:"not null"`
	SetBy     string    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (AdminAllowanceCap) TableName() string { return "admin_allowance_caps" }

// CoworkingDay mirrors the coworking_days table.
type CoworkingDay struct {
	Day              string `gorm:"primaryKey"`
	BookedCount      int    `gorm:"not null;default:0"`
	CapacityOverride *int
}

func (CoworkingDay) TableName() string { return "coworking_days" }

// CapacityOverride mirrors the coworking_capacity_overrides audit table.
type CapacityOverride struct {
	OverrideID int64     `gorm:"primaryKey;autoIncrement"`
	Day        string    `gorm:"not null;index:idx_capacity_overrides_day"`
	Capacity   int       `gorm:"not null"`
	SetBy      string    `gorm:"not null"`
	SetAt      time.Time `gorm:"not null"`
}

func (CapacityOverride) TableName() string { return "coworking_capacity_overrides" }

// CoworkingBooking mirrors the coworking_bookings table. ActiveKey is non-null only while the
// booking is active, which lets a unique index admit one active booking per member and day.
type CoworkingBooking struct {
	BookingID     string    `gorm:"primaryKey"`
	Day           string    `gorm:"not null;index:idx_bookings_member_day,priority:2"`
	MemberID      string    `gorm:"not null;index:idx_bookings_member_day,priority:1"`
	Status        string    `gorm:"not null"`
	ActiveKey     *string   `gorm:"uniqueIndex:uniq_bookings_active_key"`
	PointsCharged int64     `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
	CancelledAt   *time.Time
}

func (CoworkingBooking) TableName() string { return "coworking_bookings" }

// Task mirrors the tasks table. Version guards optimistic updates.
type Task struct {
	TaskID              int64     `gorm:"primaryKey;autoIncrement"`
	Title               string    `gorm:"not null"`
	Description         string    `gorm:"not null;default:''"`
	Portfolio           string    `gorm:"not null;default:'';index:idx_tasks_status_portfolio,priority:2"`
	Points              int64     `gorm:"not null"`
	Status              string    `gorm:"not null;index:idx_tasks_status_portfolio,priority:1"`
	ClaimantID          string    `gorm:"not null;default:''"`
	AssigneeID          string    `gorm:"not null;default:''"`
	SubmissionText      string    `gorm:"not null;default:''"`
	SubmissionURL       string    `gorm:"not null;default:''"`
	DueDate             string    `gorm:"not null;default:''"`
	CreatedBy           string    `gorm:"not null"`
	CreatedAt           time.Time `gorm:"not null"`
	ClaimedAt           *time.Time
	SubmittedAt         *time.Time
	DecidedBy           string `gorm:"not null;default:''"`
	DecidedAt           *time.Time
	LastRejectionReason string `gorm:"not null;default:''"`
	Version             int64  `gorm:"not null;default:1"`
}

func (Task) TableName() string { return "tasks" }

// TaskDecision mirrors the task_decisions table.
type TaskDecision struct {
	DecisionID int64     `gorm:"primaryKey;autoIncrement"`
	TaskID     int64     `gorm:"not null;index:idx_task_decisions_task"`
	Outcome    string    `gorm:"not null"`
	ClaimantID string    `gorm:"not null;default:''"`
	DecidedBy  string    `gorm:"not null"`
	Reason     string    `gorm:"not null;default:''"`
	Points     int64     `gorm:"not null;default:0"`
	DecidedAt  time.Time `gorm:"not null"`
}

func (TaskDecision) TableName() string { return "task_decisions" }

// Reward mirrors the rewards table.
type Reward struct {
	Code      string    `gorm:"primaryKey"`
	Label     string    `gorm:"not null"`
	Cost      int64     `gorm:"not null"`
	Available bool      `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (Reward) TableName() string { return "rewards" }

// RateCardEntry mirrors the rate_card table.
type RateCardEntry struct {
	Alias     string    `gorm:"primaryKey"`
	Name      string    `gorm:"not null"`
	Points    int64     `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (RateCardEntry) TableName() string { return "rate_card" }

// Redemption mirrors the redemptions table.
type Redemption struct {
	RedemptionID string    `gorm:"primaryKey"`
	MemberID     string    `gorm:"not null;index:idx_redemptions_member"`
	RewardCode   string    `gorm:"not null"`
	Quantity     int       `gorm:"not null"`
	Notes        string    `gorm:"not null;default:''"`
	PointsCost   int64     `gorm:"not null"`
	Status       string    `gorm:"not null;index:idx_redemptions_status"`
	CreatedAt    time.Time `gorm:"not null"`
	DecidedBy    string    `gorm:"not null;default:''"`
	DecidedAt    *time.Time
}

func (Redemption) TableName() string { return "redemptions" }

// Models lists every table model in dependency order, for AutoMigrate.
func Models() []any {
	return []any{
		&Member{},
		&LedgerEntry{},
		&AdminAllowance{},
		&AdminAllowanceCap{},
		&CoworkingDay{},
		&CapacityOverride{},
		&CoworkingBooking{},
		&Task{},
		&TaskDecision{},
		&Reward{},
		&RateCardEntry{},
		&Redemption{},
	}
}
