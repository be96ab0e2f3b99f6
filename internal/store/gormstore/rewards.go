package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/communitypoints/pkg/points"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (store *Store) UpsertReward(ctx context.Context, reward points.Reward) error {
	model := Reward{
		Code:      reward.Code.String(),
		Label:     reward.Label,
		Cost:      reward.Cost.Int64(),
		Available: reward.Available,
		UpdatedAt: reward.UpdatedAt,
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{"label", "cost", "available", "updated_at"}),
		}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectReward, errorCodeUpsert, err)
	}
	return nil
}

func (store *Store) GetReward(ctx context.Context, code points.RewardCode) (points.Reward, error) {
	var model Reward
	err := store.db.WithContext(ctx).Where("code = ?", code.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return points.Reward{}, wrapStoreError(errorSubjectReward, errorCodeGet, points.ErrUnknownRewardCode)
		}
		return points.Reward{}, wrapStoreError(errorSubjectReward, errorCodeGet, err)
	}
	reward, err := mapReward(model)
	if err != nil {
		return points.Reward{}, wrapStoreError(errorSubjectReward, errorCodeInvalid, err)
	}
	return reward, nil
}

func (store *Store) ListRewards(ctx context.Context, includeUnavailable bool) ([]points.Reward, error) {
	query := store.db.WithContext(ctx).Model(&Reward{})
	if !includeUnavailable {
		query = query.Where("available = ?", true)
	}
	var rows []Reward
	if err := query.Order("code").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectReward, errorCodeList, err)
	}
	rewards := make([]points.Reward, 0, len(rows))
	for _, row := range rows {
		reward, err := mapReward(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectReward, errorCodeInvalid, err)
		}
		rewards = append(rewards, reward)
	}
	return rewards, nil
}

func (store *Store) UpsertRateCardEntry(ctx context.Context, entry points.RateCardEntry) error {
	model := RateCardEntry{
		Alias:     entry.Alias.String(),
		Name:      entry.Name,
		Points:    entry.Points.Int64(),
		UpdatedAt: entry.UpdatedAt,
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "alias"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "points", "updated_at"}),
		}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectRateCard, errorCodeUpsert, err)
	}
	return nil
}

func (store *Store) GetRateCardEntry(ctx context.Context, alias points.RateCardAlias) (points.RateCardEntry, error) {
	var model RateCardEntry
	err := store.db.WithContext(ctx).Where("alias = ?", alias.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return points.RateCardEntry{}, wrapStoreError(errorSubjectRateCard, errorCodeGet, points.ErrUnknownRateCardAlias)
		}
		return points.RateCardEntry{}, wrapStoreError(errorSubjectRateCard, errorCodeGet, err)
	}
	entry, err := mapRateCardEntry(model)
	if err != nil {
		return points.RateCardEntry{}, wrapStoreError(errorSubjectRateCard, errorCodeInvalid, err)
	}
	return entry, nil
}

func (store *Store) ListRateCard(ctx context.Context) ([]points.RateCardEntry, error) {
	var rows []RateCardEntry
	if err := store.db.WithContext(ctx).Order("alias").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectRateCard, errorCodeList, err)
	}
	entries := make([]points.RateCardEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapRateCardEntry(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectRateCard, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (store *Store) CreateRedemption(ctx context.Context, redemption points.Redemption) error {
	model := Redemption{
		RedemptionID: redemption.ID,
		MemberID:     redemption.MemberID.String(),
		RewardCode:   redemption.RewardCode.String(),
		Quantity:     redemption.Quantity,
		Notes:        redemption.Notes,
		PointsCost:   redemption.PointsCost,
		Status:       redemption.Status.String(),
		CreatedAt:    redemption.CreatedAt,
		DecidedBy:    redemption.DecidedBy.String(),
		DecidedAt:    redemption.DecidedAt,
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectRedemption, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetRedemption(ctx context.Context, redemptionID string) (points.Redemption, error) {
	var model Redemption
	err := store.db.WithContext(ctx).Where("redemption_id = ?", redemptionID).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return points.Redemption{}, wrapStoreError(errorSubjectRedemption, errorCodeGet, points.ErrRedemptionNotFound)
		}
		return points.Redemption{}, wrapStoreError(errorSubjectRedemption, errorCodeGet, err)
	}
	redemption, err := mapRedemption(model)
	if err != nil {
		return points.Redemption{}, wrapStoreError(errorSubjectRedemption, errorCodeInvalid, err)
	}
	return redemption, nil
}

func (store *Store) UpdateRedemptionStatus(ctx context.Context, redemptionID string, from points.RedemptionStatus, to points.RedemptionStatus, decidedBy points.MemberID, at time.Time) error {
	result := store.db.WithContext(ctx).
		Model(&Redemption{}).
		Where("redemption_id = ? AND status = ?", redemptionID, from.String()).
		Updates(map[string]interface{}{
			"status":     to.String(),
			"decided_by": decidedBy.String(),
			"decided_at": at,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectRedemption, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := store.GetRedemption(ctx, redemptionID); err != nil {
			return err
		}
		return wrapStoreError(errorSubjectRedemption, errorCodeConflict, points.ErrTransientConflict)
	}
	return nil
}

func (store *Store) ListRedemptions(ctx context.Context, filter points.RedemptionFilter) ([]points.Redemption, error) {
	query := store.db.WithContext(ctx).Model(&Redemption{})
	if !filter.MemberID.IsZero() {
		query = query.Where("member_id = ?", filter.MemberID.String())
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status.String())
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var rows []Redemption
	if err := query.Order("created_at").Order("redemption_id").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectRedemption, errorCodeList, err)
	}
	redemptions := make([]points.Redemption, 0, len(rows))
	for _, row := range rows {
		redemption, err := mapRedemption(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectRedemption, errorCodeInvalid, err)
		}
		redemptions = append(redemptions, redemption)
	}
	return redemptions, nil
}

func mapReward(row Reward) (points.Reward, error) {
	code, err := points.NewRewardCode(row.Code)
	if err != nil {
		return points.Reward{}, err
	}
	cost, err := points.NewPositivePoints(row.Cost)
	if err != nil {
		return points.Reward{}, err
	}
	return points.Reward{
		Code:      code,
		Label:     row.Label,
		Cost:      cost,
		Available: row.Available,
		UpdatedAt: row.UpdatedAt.UTC(),
	}, nil
}

func mapRateCardEntry(row RateCardEntry) (points.RateCardEntry, error) {
	alias, err := points.NewRateCardAlias(row.Alias)
	if err != nil {
		return points.RateCardEntry{}, err
	}
	amount, err := points.NewPositivePoints(row.Points)
	if err != nil {
		return points.RateCardEntry{}, err
	}
	return points.RateCardEntry{
		Alias:     alias,
		Name:      row.Name,
		Points:    amount,
		UpdatedAt: row.UpdatedAt.UTC(),
	}, nil
}

func mapRedemption(row Redemption) (points.Redemption, error) {
	memberID, err := points.NewMemberID(row.MemberID)
	if err != nil {
		return points.Redemption{}, err
	}
	code, err := points.NewRewardCode(row.RewardCode)
	if err != nil {
		return points.Redemption{}, err
	}
	status, err := points.ParseRedemptionStatus(row.Status)
	if err != nil {
		return points.Redemption{}, err
	}
	decidedBy, err := optionalMemberID(row.DecidedBy)
	if err != nil {
		return points.Redemption{}, err
	}
	return points.Redemption{
		ID:         row.RedemptionID,
		MemberID:   memberID,
		RewardCode: code,
		Quantity:   row.Quantity,
		Notes:      row.Notes,
		PointsCost: row.PointsCost,
		Status:     status,
		CreatedAt:  row.CreatedAt.UTC(),
		DecidedBy:  decidedBy,
		DecidedAt:  utcPointer(row.DecidedAt),
	}, nil
}
