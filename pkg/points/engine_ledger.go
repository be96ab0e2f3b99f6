package points

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
)

// LedgerResult is the outcome of a single ledger mutation.
type LedgerResult struct {
	Entry   Entry
	Balance Balance
}

// AwardRequest describes an admin award. Points may be replaced by a rate card alias.
type AwardRequest struct {
	MemberID       MemberID
	Points         int64
	RateCardAlias  RateCardAlias
	Reason         string
	IdempotencyKey IdempotencyKey
	Metadata       MetadataJSON
}

// AwardResult carries the applied entry and the admin's remaining weekly allowance.
type AwardResult struct {
	Entry              Entry
	Balance            Balance
	AllowanceRemaining int64
}

// DeductRequest describes an admin deduction.
type DeductRequest struct {
	MemberID       MemberID
	Points         int64
	Reason         string
	IdempotencyKey IdempotencyKey
	Metadata       MetadataJSON
}

// BalanceDrift reports a member whose cached aggregate disagrees with the ledger.
type BalanceDrift struct {
	MemberID MemberID
	Cached   LedgerTotals
	Replayed LedgerTotals
	Repaired bool
}

// RegisterMember creates the caller's member record or refreshes its display name.
func (engine *Engine) RegisterMember(ctx context.Context, caller Caller) (Member, error) {
	if err := requireCaller(caller); err != nil {
		return Member{}, err
	}
	var member Member
	operationError := engine.runTx(ctx, func(ctx context.Context, txStore Store) error {
		upserted, err := txStore.UpsertMember(ctx, caller.MemberID, caller.DisplayName, engine.now())
		if err != nil {
			return err
		}
		member = upserted
		return nil
	})
	if operationError != nil {
		engine.logOperation(ctx, OperationLog{
			Operation: operationRegisterMember,
			ActorID:   caller.MemberID,
			MemberID:  caller.MemberID,
			Error:     operationError,
		})
		return Member{}, operationError
	}
	return member, nil
}

// GetBalance returns the caller's balance.
func (engine *Engine) GetBalance(ctx context.Context, caller Caller) (Balance, error) {
	return engine.GetMemberBalance(ctx, caller, caller.MemberID)
}

// GetMemberBalance returns a member's balance. Members may only read their own.
func (engine *Engine) GetMemberBalance(ctx context.Context, caller Caller, memberID MemberID) (Balance, error) {
	if err := requireReadAccess(caller, memberID); err != nil {
		return Balance{}, err
	}
	member, err := engine.store.GetMember(ctx, memberID)
	if err != nil {
		return Balance{}, err
	}
	return balanceOf(member), nil
}

// GetHistory returns one page of a member's entries, newest first.
func (engine *Engine) GetHistory(ctx context.Context, caller Caller, query HistoryQuery) (HistoryPage, error) {
	memberID := query.MemberID
	if memberID.IsZero() {
		memberID = caller.MemberID
	}
	if err := requireReadAccess(caller, memberID); err != nil {
		return HistoryPage{}, err
	}
	limit, err := normalizeHistoryLimit(query.Limit)
	if err != nil {
		return HistoryPage{}, err
	}
	cursor, err := DecodeHistoryCursor(query.Cursor)
	if err != nil {
		return HistoryPage{}, err
	}
	if _, err := engine.store.GetMember(ctx, memberID); err != nil {
		return HistoryPage{}, err
	}
	entries, err := engine.store.ListEntries(ctx, memberID, cursor, limit+1)
	if err != nil {
		return HistoryPage{}, err
	}
	page := HistoryPage{Entries: entries}
	if len(entries) > limit {
		page.Entries = entries[:limit]
		last := page.Entries[limit-1]
		page.NextCursor = HistoryCursor{CreatedAt: last.CreatedAt, EntryID: last.ID}.Encode()
	}
	return page, nil
}

// History walks a member's whole ledger lazily, newest first, fetching pageSize entries at a time.
func (engine *Engine) History(ctx context.Context, caller Caller, memberID MemberID, pageSize int) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		query := HistoryQuery{MemberID: memberID, Limit: pageSize}
		for {
			page, err := engine.GetHistory(ctx, caller, query)
			if err != nil {
				yield(Entry{}, err)
				return
			}
			for _, entry := range page.Entries {
				if !yield(entry, nil) {
					return
				}
			}
			if page.NextCursor == "" {
				return
			}
			query.Cursor = page.NextCursor
		}
	}
}

// AwardPoints credits a member on an admin's behalf, drawing on the admin's weekly allowance.
func (engine *Engine) AwardPoints(ctx context.Context, caller Caller, request AwardRequest) (AwardResult, error) {
	var result AwardResult
	operationError := engine.awardPoints(ctx, caller, request, &result)
	engine.logOperation(ctx, OperationLog{
		Operation: operationAwardPoints,
		ActorID:   caller.MemberID,
		MemberID:  request.MemberID,
		Subject:   request.RateCardAlias.String(),
		Amount:    result.Entry.Delta,
		Reference: result.Entry.ID.String(),
		Error:     operationError,
	})
	if operationError != nil {
		return AwardResult{}, operationError
	}
	return result, nil
}

func (engine *Engine) awardPoints(ctx context.Context, caller Caller, request AwardRequest, result *AwardResult) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	if request.MemberID.IsZero() {
		return fmt.Errorf("%w: award target is required", ErrInvalidMemberID)
	}
	if request.MemberID == caller.MemberID {
		return fmt.Errorf("%w: admins cannot award points to themselves", ErrPermissionDenied)
	}
	return engine.runTx(ctx, func(ctx context.Context, txStore Store) error {
		amount, reason, err := resolveAwardAmount(ctx, txStore, request)
		if err != nil {
			return err
		}
		remaining, err := engine.reserveAllowance(ctx, txStore, caller.MemberID, amount)
		if err != nil {
			return err
		}
		entry, member, err := engine.applyEntry(ctx, txStore, EntryInput{
			MemberID:       request.MemberID,
			Delta:          amount.Int64(),
			Reason:         reason,
			Category:       CategoryAward,
			ActorID:        caller.MemberID,
			IdempotencyKey: request.IdempotencyKey,
			Metadata:       request.Metadata,
		})
		if err != nil {
			return err
		}
		*result = AwardResult{Entry: entry, Balance: balanceOf(member), AllowanceRemaining: remaining}
		return nil
	})
}

func resolveAwardAmount(ctx context.Context, txStore Store, request AwardRequest) (PositivePoints, Reason, error) {
	if request.RateCardAlias.IsZero() {
		amount, err := NewPositivePoints(request.Points)
		if err != nil {
			return 0, Reason{}, err
		}
		reason, err := NewReason(request.Reason)
		if err != nil {
			return 0, Reason{}, err
		}
		return amount, reason, nil
	}
	rateCardEntry, err := txStore.GetRateCardEntry(ctx, request.RateCardAlias)
	if err != nil {
		return 0, Reason{}, err
	}
	if request.Points != 0 && request.Points != rateCardEntry.Points.Int64() {
		return 0, Reason{}, fmt.Errorf("%w: %s is worth %d points", ErrInvalidPoints, rateCardEntry.Alias, rateCardEntry.Points)
	}
	reasonText := fmt.Sprintf(rateCardReasonFormat, rateCardEntry.Alias, rateCardEntry.Name)
	if note := strings.TrimSpace(request.Reason); note != "" {
		reasonText += ": " + note
	}
	reason, err := NewReason(reasonText)
	if err != nil {
		return 0, Reason{}, err
	}
	return rateCardEntry.Points, reason, nil
}

// DeductPoints debits a member as a manual adjustment. Deductions never draw on the allowance.
func (engine *Engine) DeductPoints(ctx context.Context, caller Caller, request DeductRequest) (LedgerResult, error) {
	var result LedgerResult
	operationError := engine.deductPoints(ctx, caller, request, &result)
	engine.logOperation(ctx, OperationLog{
		Operation: operationDeductPoints,
		ActorID:   caller.MemberID,
		MemberID:  request.MemberID,
		Amount:    -request.Points,
		Reference: result.Entry.ID.String(),
		Error:     operationError,
	})
	if operationError != nil {
		return LedgerResult{}, operationError
	}
	return result, nil
}

func (engine *Engine) deductPoints(ctx context.Context, caller Caller, request DeductRequest, result *LedgerResult) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	if request.MemberID.IsZero() {
		return fmt.Errorf("%w: deduction target is required", ErrInvalidMemberID)
	}
	amount, err := NewPositivePoints(request.Points)
	if err != nil {
		return err
	}
	reason, err := NewReason(request.Reason)
	if err != nil {
		return err
	}
	return engine.runTx(ctx, func(ctx context.Context, txStore Store) error {
		entry, member, err := engine.applyEntry(ctx, txStore, EntryInput{
			MemberID:       request.MemberID,
			Delta:          -amount.Int64(),
			Reason:         reason,
			Category:       CategoryManualAdjustment,
			ActorID:        caller.MemberID,
			IdempotencyKey: request.IdempotencyKey,
			Metadata:       request.Metadata,
		})
		if err != nil {
			return err
		}
		*result = LedgerResult{Entry: entry, Balance: balanceOf(member)}
		return nil
	})
}

// ReconcileBalances replays every member's ledger and reports cached aggregates that drifted.
// With repair set, drifted aggregates are overwritten by the replayed totals.
func (engine *Engine) ReconcileBalances(ctx context.Context, caller Caller, repair bool) ([]BalanceDrift, error) {
	drifts, operationError := engine.reconcileBalances(ctx, caller, repair)
	engine.logOperation(ctx, OperationLog{
		Operation: operationReconcileBalances,
		ActorID:   caller.MemberID,
		Amount:    int64(len(drifts)),
		Error:     operationError,
	})
	return drifts, operationError
}

func (engine *Engine) reconcileBalances(ctx context.Context, caller Caller, repair bool) ([]BalanceDrift, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	members, err := engine.store.ListMembers(ctx)
	if err != nil {
		return nil, err
	}
	drifts := make([]BalanceDrift, 0)
	for _, listed := range members {
		var drift *BalanceDrift
		err := engine.runTx(ctx, func(ctx context.Context, txStore Store) error {
			drift = nil
			member, err := txStore.GetMember(ctx, listed.ID)
			if err != nil {
				return err
			}
			categoryTotals, err := txStore.SumEntriesByCategory(ctx, member.ID)
			if err != nil {
				return err
			}
			replayed := foldCategoryTotals(categoryTotals)
			cached := LedgerTotals{Balance: member.Balance, LifetimeEarned: member.LifetimeEarned, LifetimeSpent: member.LifetimeSpent}
			if cached == replayed {
				return nil
			}
			drift = &BalanceDrift{MemberID: member.ID, Cached: cached, Replayed: replayed}
			if !repair {
				return nil
			}
			if err := txStore.OverwriteTotals(ctx, member.ID, replayed, engine.now()); err != nil {
				return err
			}
			drift.Repaired = true
			return nil
		})
		if err != nil {
			return drifts, err
		}
		if drift != nil {
			drifts = append(drifts, *drift)
		}
	}
	return drifts, nil
}

// applyEntry is the only path that changes a balance: the conditional aggregate update and the
// entry insert share the caller's transaction.
func (engine *Engine) applyEntry(ctx context.Context, txStore Store, input EntryInput) (Entry, Member, error) {
	if input.Delta == 0 {
		return Entry{}, Member{}, fmt.Errorf("%w: delta must not be zero", ErrInvalidPoints)
	}
	if _, err := ParseCategory(input.Category.String()); err != nil {
		return Entry{}, Member{}, err
	}
	member, err := txStore.GetMember(ctx, input.MemberID)
	if err != nil {
		return Entry{}, Member{}, err
	}
	if input.Delta < 0 && member.Balance+input.Delta < 0 {
		return Entry{}, Member{}, insufficientBalance(member, input.Delta)
	}
	now := engine.now()
	earnedDelta, spentDelta := input.Category.lifetimeDeltas(input.Delta)
	updated, err := txStore.ApplyBalanceDelta(ctx, input.MemberID, input.Delta, earnedDelta, spentDelta, now)
	if errors.Is(err, ErrInsufficientBalance) {
		current, readErr := txStore.GetMember(ctx, input.MemberID)
		if readErr != nil {
			return Entry{}, Member{}, readErr
		}
		return Entry{}, Member{}, insufficientBalance(current, input.Delta)
	}
	if err != nil {
		return Entry{}, Member{}, err
	}
	entryIDValue, err := newRecordID()
	if err != nil {
		return Entry{}, Member{}, err
	}
	entryID, err := NewEntryID(entryIDValue)
	if err != nil {
		return Entry{}, Member{}, err
	}
	idempotencyKey := input.IdempotencyKey
	if idempotencyKey.IsZero() {
		idempotencyKey, err = NewIdempotencyKey(entryIDValue)
		if err != nil {
			return Entry{}, Member{}, err
		}
	}
	entry := Entry{
		ID:             entryID,
		MemberID:       input.MemberID,
		Delta:          input.Delta,
		Reason:         input.Reason.String(),
		Category:       input.Category,
		ActorID:        input.ActorID,
		Reference:      input.Reference,
		IdempotencyKey: idempotencyKey,
		Metadata:       input.Metadata,
		CreatedAt:      now,
	}
	if err := txStore.InsertEntry(ctx, entry); err != nil {
		return Entry{}, Member{}, err
	}
	return entry, updated, nil
}

func insufficientBalance(member Member, delta int64) error {
	shortfall := -(member.Balance + delta)
	if shortfall <= 0 {
		shortfall = 1
	}
	return &InsufficientBalanceError{Balance: member.Balance, Shortfall: shortfall}
}

func requireReadAccess(caller Caller, memberID MemberID) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	if memberID.IsZero() {
		return fmt.Errorf("%w: member is required", ErrInvalidMemberID)
	}
	if memberID != caller.MemberID && !caller.Admin {
		return fmt.Errorf("%w: members may only read their own ledger", ErrPermissionDenied)
	}
	return nil
}

func balanceOf(member Member) Balance {
	return Balance{
		MemberID:       member.ID,
		Balance:        member.Balance,
		LifetimeEarned: member.LifetimeEarned,
		LifetimeSpent:  member.LifetimeSpent,
	}
}
