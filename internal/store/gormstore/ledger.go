package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/communitypoints/pkg/points"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (store *Store) UpsertMember(ctx context.Context, memberID points.MemberID, displayName string, at time.Time) (points.Member, error) {
	model := Member{
		MemberID:    memberID.String(),
		DisplayName: displayName,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
	assignments := map[string]interface{}{"updated_at": at}
	if displayName != "" {
		assignments["display_name"] = displayName
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "member_id"}},
			DoUpdates: clause.Assignments(assignments),
		}).
		Create(&model).Error
	if err != nil {
		return points.Member{}, wrapStoreError(errorSubjectMember, errorCodeUpsert, err)
	}
	return store.GetMember(ctx, memberID)
}

func (store *Store) GetMember(ctx context.Context, memberID points.MemberID) (points.Member, error) {
	var model Member
	err := store.db.WithContext(ctx).Where("member_id = ?", memberID.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return points.Member{}, wrapStoreError(errorSubjectMember, errorCodeGet, points.ErrMemberNotFound)
		}
		return points.Member{}, wrapStoreError(errorSubjectMember, errorCodeGet, err)
	}
	member, err := mapMember(model)
	if err != nil {
		return points.Member{}, wrapStoreError(errorSubjectMember, errorCodeInvalid, err)
	}
	return member, nil
}

func (store *Store) ListMembers(ctx context.Context) ([]points.Member, error) {
	var rows []Member
	if err := store.db.WithContext(ctx).Order("member_id").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectMember, errorCodeList, err)
	}
	members := make([]points.Member, 0, len(rows))
	for _, row := range rows {
		member, err := mapMember(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectMember, errorCodeInvalid, err)
		}
		members = append(members, member)
	}
	return members, nil
}

// ApplyBalanceDelta is a single conditional UPDATE; a lost race or an overdraft leaves zero rows.
func (store *Store) ApplyBalanceDelta(ctx context.Context, memberID points.MemberID, delta int64, earnedDelta int64, spentDelta int64, at time.Time) (points.Member, error) {
	result := store.db.WithContext(ctx).
		Model(&Member{}).
		Where("member_id = ? AND balance + ? >= 0", memberID.String(), delta).
		Updates(map[string]interface{}{
			"balance":         gorm.Expr("balance + ?", delta),
			"lifetime_earned": gorm.Expr("lifetime_earned + ?", earnedDelta),
			"lifetime_spent":  gorm.Expr("lifetime_spent + ?", spentDelta),
			"updated_at":      at,
		})
	if result.Error != nil {
		return points.Member{}, wrapStoreError(errorSubjectMember, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := store.GetMember(ctx, memberID); err != nil {
			return points.Member{}, err
		}
		return points.Member{}, wrapStoreError(errorSubjectMember, errorCodeUpdate, points.ErrInsufficientBalance)
	}
	return store.GetMember(ctx, memberID)
}

func (store *Store) OverwriteTotals(ctx context.Context, memberID points.MemberID, totals points.LedgerTotals, at time.Time) error {
	result := store.db.WithContext(ctx).
		Model(&Member{}).
		Where("member_id = ?", memberID.String()).
		Updates(map[string]interface{}{
			"balance":         totals.Balance,
			"lifetime_earned": totals.LifetimeEarned,
			"lifetime_spent":  totals.LifetimeSpent,
			"updated_at":      at,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectMember, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectMember, errorCodeUpdate, points.ErrMemberNotFound)
	}
	return nil
}

func (store *Store) InsertEntry(ctx context.Context, entry points.Entry) error {
	createdAt := entry.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	model := LedgerEntry{
		EntryID:         entry.ID.String(),
		MemberID:        entry.MemberID.String(),
		Delta:           entry.Delta,
		Reason:          entry.Reason,
		Category:        entry.Category.String(),
		ActorID:         entry.ActorID.String(),
		Reference:       entry.Reference,
		IdempotencyKey:  entry.IdempotencyKey.String(),
		Metadata:        datatypesJSON(entry.Metadata.String()),
		CreatedUnixNano: createdAt.UnixNano(),
		CreatedAt:       createdAt,
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectEntry, errorCodeDuplicate, points.ErrDuplicateRequest)
	}
	if err != nil {
		return wrapStoreError(errorSubjectEntry, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) ListEntries(ctx context.Context, memberID points.MemberID, before *points.HistoryCursor, limit int) ([]points.Entry, error) {
	query := store.db.WithContext(ctx).Where("member_id = ?", memberID.String())
	if before != nil {
		beforeNanos := before.CreatedAt.UnixNano()
		query = query.Where(
			"(created_unix_nano < ? OR (created_unix_nano = ? AND entry_id < ?))",
			beforeNanos, beforeNanos, before.EntryID.String(),
		)
	}
	var rows []LedgerEntry
	err := query.
		Order("created_unix_nano DESC").
		Order("entry_id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	entries := make([]points.Entry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapLedgerEntry(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (store *Store) SumEntriesByCategory(ctx context.Context, memberID points.MemberID) ([]points.CategoryTotals, error) {
	var rows []categorySum
	err := store.db.WithContext(ctx).
		Model(&LedgerEntry{}).
		Select("category, " +
			"coalesce(sum(case when delta > 0 then delta else 0 end),0) as credits, " +
			"coalesce(sum(case when delta < 0 then -delta else 0 end),0) as debits").
		Where("member_id = ?", memberID.String()).
		Group("category").
		Scan(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeSum, err)
	}
	totals := make([]points.CategoryTotals, 0, len(rows))
	for _, row := range rows {
		category, err := points.ParseCategory(row.Category)
		if err != nil {
			return nil, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
		}
		totals = append(totals, points.CategoryTotals{Category: category, Credits: row.Credits, Debits: row.Debits})
	}
	return totals, nil
}

type categorySum struct {
	Category string
	Credits  int64
	Debits   int64
}

func mapMember(row Member) (points.Member, error) {
	memberID, err := points.NewMemberID(row.MemberID)
	if err != nil {
		return points.Member{}, err
	}
	return points.Member{
		ID:             memberID,
		DisplayName:    row.DisplayName,
		Balance:        row.Balance,
		LifetimeEarned: row.LifetimeEarned,
		LifetimeSpent:  row.LifetimeSpent,
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
	}, nil
}

func mapLedgerEntry(row LedgerEntry) (points.Entry, error) {
	entryID, err := points.NewEntryID(row.EntryID)
	if err != nil {
		return points.Entry{}, err
	}
	memberID, err := points.NewMemberID(row.MemberID)
	if err != nil {
		return points.Entry{}, err
	}
	category, err := points.ParseCategory(row.Category)
	if err != nil {
		return points.Entry{}, err
	}
	actorID, err := optionalMemberID(row.ActorID)
	if err != nil {
		return points.Entry{}, err
	}
	idempotencyKey, err := points.NewIdempotencyKey(row.IdempotencyKey)
	if err != nil {
		return points.Entry{}, err
	}
	metadata, err := points.NewMetadataJSON(string(row.Metadata))
	if err != nil {
		return points.Entry{}, err
	}
	return points.Entry{
		ID:             entryID,
		MemberID:       memberID,
		Delta:          row.Delta,
		Reason:         row.Reason,
		Category:       category,
		ActorID:        actorID,
		Reference:      row.Reference,
		IdempotencyKey: idempotencyKey,
		Metadata:       metadata,
		CreatedAt:      time.Unix(0, row.CreatedUnixNano).UTC(),
	}, nil
}
