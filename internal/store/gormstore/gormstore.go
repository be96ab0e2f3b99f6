package gormstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarkoPoloResearchLab/communitypoints/pkg/points"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultMetadataJSON          = "{}"
	pgUniqueViolationCode        = "23505"
	pgSerializationFailureCode   = "40001"
	pgDeadlockDetectedCode       = "40P01"
	pgLockNotAvailableCode       = "55P03"
	sqliteConstraintCode         = 19
	sqliteBusyCode               = 5
	sqliteLockedCode             = 6
	sqlitePrimaryCodeMask        = 0xFF
	errorOperationStore          = "store"
	errorSubjectTransaction      = "transaction"
	errorSubjectMember           = "member"
	errorSubjectEntry            = "entry"
	errorSubjectAllowance        = "allowance"
	errorSubjectCoworkingDay     = "coworking_day"
	errorSubjectCapacityOverride = "capacity_override"
	errorSubjectBooking          = "booking"
	errorSubjectTask             = "task"
	errorSubjectTaskDecision     = "task_decision"
	errorSubjectReward           = "reward"
	errorSubjectRateCard         = "rate_card"
	errorSubjectRedemption       = "redemption"
	errorCodeCommit              = "commit"
	errorCodeCreate              = "create"
	errorCodeDuplicate           = "duplicate"
	errorCodeGet                 = "get"
	errorCodeInsert              = "insert"
	errorCodeInvalid             = "invalid"
	errorCodeList                = "list"
	errorCodeUpdate              = "update"
	errorCodeUpsert              = "upsert"
	errorCodeSum                 = "sum"
	errorCodeReserve             = "reserve"
	errorCodeConflict            = "conflict"
)

// Store implements points.Store using GORM. It runs against PostgreSQL and SQLite.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction. Serialization failures, deadlocks and busy
// SQLite databases surface as points.ErrTransientConflict so the engine can retry.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore points.Store) error) error {
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
	if err != nil && isTransientConflict(err) && !errors.Is(err, points.ErrTransientConflict) {
		return wrapStoreError(errorSubjectTransaction, errorCodeCommit, err)
	}
	return err
}

func wrapStoreError(subject string, code string, err error) error {
	if isTransientConflict(err) && !errors.Is(err, points.ErrTransientConflict) {
		err = fmt.Errorf("%w: %v", points.ErrTransientConflict, err)
	}
	return points.WrapError(errorOperationStore, subject, code, err)
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&sqlitePrimaryCodeMask == sqliteConstraintCode
	}
	return false
}

func isTransientConflict(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailureCode, pgDeadlockDetectedCode, pgLockNotAvailableCode:
			return true
		}
		return false
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		primaryCode := sqliteErr.Code() & sqlitePrimaryCodeMask
		return primaryCode == sqliteBusyCode || primaryCode == sqliteLockedCode
	}
	return false
}

func optionalMemberID(raw string) (points.MemberID, error) {
	if raw == "" {
		return points.MemberID{}, nil
	}
	return points.NewMemberID(raw)
}

func optionalDate(raw string) (points.Date, error) {
	if raw == "" {
		return points.Date{}, nil
	}
	var date points.Date
	if err := date.UnmarshalText([]byte(raw)); err != nil {
		return points.Date{}, err
	}
	return date, nil
}
