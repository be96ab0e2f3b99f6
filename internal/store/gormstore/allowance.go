package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/communitypoints/pkg/points"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (store *Store) GetAllowanceUsed(ctx context.Context, adminID points.MemberID, week points.WeekKey) (int64, error) {
	var model AdminAllowance
	err := store.db.WithContext(ctx).
		Where("admin_id = ? AND week_key = ?", adminID.String(), week.String()).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, wrapStoreError(errorSubjectAllowance, errorCodeGet, err)
	}
	return model.Used, nil
}

// ReserveAllowance materializes the week's row, then adds amount in one conditional UPDATE so
// concurrent awards by the same admin can never jointly exceed the cap.
func (store *Store) ReserveAllowance(ctx context.Context, adminID points.MemberID, week points.WeekKey, amount points.PositivePoints, capValue int64, at time.Time) (int64, error) {
	seed := AdminAllowance{AdminID: adminID.String(), WeekKey: week.String(), Used: 0, UpdatedAt: at}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&seed).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectAllowance, errorCodeCreate, err)
	}
	result := store.db.WithContext(ctx).
		Model(&AdminAllowance{}).
		Where("admin_id = ? AND week_key = ? AND used + ? <= ?", adminID.String(), week.String(), amount.Int64(), capValue).
		Updates(map[string]interface{}{
			"used":       gorm.Expr("used + ?", amount.Int64()),
			"updated_at": at,
		})
	if result.Error != nil {
		return 0, wrapStoreError(errorSubjectAllowance, errorCodeReserve, result.Error)
	}
	if result.RowsAffected == 0 {
		return 0, wrapStoreError(errorSubjectAllowance, errorCodeReserve, points.ErrAllowanceExceeded)
	}
	return store.GetAllowanceUsed(ctx, adminID, week)
}

// ListAllowanceUsage relies on week_key being zero-padded, so text order is week order.
func (store *Store) ListAllowanceUsage(ctx context.Context, adminID points.MemberID, limit int) ([]points.AllowanceUsage, error) {
	var rows []AdminAllowance
	err := store.db.WithContext(ctx).
		Where("admin_id = ?", adminID.String()).
		Order("week_key DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectAllowance, errorCodeList, err)
	}
	usage := make([]points.AllowanceUsage, 0, len(rows))
	for _, row := range rows {
		week, err := points.ParseWeekKey(row.WeekKey)
		if err != nil {
			return nil, wrapStoreError(errorSubjectAllowance, errorCodeInvalid, err)
		}
		usage = append(usage, points.AllowanceUsage{Week: week, Used: row.Used})
	}
	return usage, nil
}

func (store *Store) GetAllowanceCap(ctx context.Context, adminID points.MemberID) (int64, bool, error) {
	var model AdminAllowanceCap
	err := store.db.WithContext(ctx).Where("admin_id = ?", adminID.String()).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, wrapStoreError(errorSubjectAllowance, errorCodeGet, err)
	}
	return model.WeeklyCap, true, nil
}

func (store *Store) SetAllowanceCap(ctx context.Context, adminID points.MemberID, capValue int64, setBy points.MemberID, at time.Time) error {
	model := AdminAllowanceCap{AdminID: adminID.String(), WeeklyCap: capValue, SetBy: setBy.String(), UpdatedAt: at}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "admin_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"weekly_cap", "set_by", "updated_at"}),
		}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectAllowance, errorCodeUpsert, err)
	}
	return nil
}
