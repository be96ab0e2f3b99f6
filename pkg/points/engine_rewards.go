package points

import (
	"context"
	"fmt"
	"strings"
)

// RedemptionResult is the outcome of requesting, fulfilling or cancelling a redemption.
type RedemptionResult struct {
	Redemption Redemption
	Entry      Entry
	Balance    Balance
}

// ListRewards returns the catalog. Unavailable rewards are included only on request.
func (engine *Engine) ListRewards(ctx context.Context, includeUnavailable bool) ([]Reward, error) {
	return engine.store.ListRewards(ctx, includeUnavailable)
}

// UpsertReward creates or replaces a catalog entry.
func (engine *Engine) UpsertReward(ctx context.Context, caller Caller, reward Reward) (Reward, error) {
	operationError := engine.upsertReward(ctx, caller, &reward)
	engine.logOperation(ctx, OperationLog{
		Operation: operationUpsertReward,
		ActorID:   caller.MemberID,
		Subject:   reward.Code.String(),
		Amount:    reward.Cost.Int64(),
		Error:     operationError,
	})
	if operationError != nil {
		return Reward{}, operationError
	}
	return reward, nil
}

func (engine *Engine) upsertReward(ctx context.Context, caller Caller, reward *Reward) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	if _, err := NewRewardCode(reward.Code.String()); err != nil {
		return err
	}
	if _, err := NewPositivePoints(reward.Cost.Int64()); err != nil {
		return err
	}
	reward.Label = strings.TrimSpace(reward.Label)
	if reward.Label == "" {
		reward.Label = reward.Code.String()
	}
	reward.UpdatedAt = engine.now()
	return engine.runTx(ctx, func(ctx context.Context, txStore Store) error {
		return txStore.UpsertReward(ctx, *reward)
	})
}

// ListRateCard returns the named award amounts.
func (engine *Engine) ListRateCard(ctx context.Context) ([]RateCardEntry, error) {
	return engine.store.ListRateCard(ctx)
}

// UpsertRateCardEntry creates or replaces a named award amount.
func (engine *Engine) UpsertRateCardEntry(ctx context.Context, caller Caller, entry RateCardEntry) (RateCardEntry, error) {
	operationError := engine.upsertRateCardEntry(ctx, caller, &entry)
	engine.logOperation(ctx, OperationLog{
		Operation: operationUpsertRateCard,
		ActorID:   caller.MemberID,
		Subject:   entry.Alias.String(),
		Amount:    entry.Points.Int64(),
		Error:     operationError,
	})
	if operationError != nil {
		return RateCardEntry{}, operationError
	}
	return entry, nil
}

func (engine *Engine) upsertRateCardEntry(ctx context.Context, caller Caller, entry *RateCardEntry) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	if _, err := NewRateCardAlias(entry.Alias.String()); err != nil {
		return err
	}
	if _, err := NewPositivePoints(entry.Points.Int64()); err != nil {
		return err
	}
	entry.Name = strings.TrimSpace(entry.Name)
	if entry.Name == "" {
		entry.Name = entry.Alias.String()
	}
	entry.UpdatedAt = engine.now()
	return engine.runTx(ctx, func(ctx context.Context, txStore Store) error {
		return txStore.UpsertRateCardEntry(ctx, *entry)
	})
}

// RequestReward debits the reward's cost and files a pending redemption.
func (engine *Engine) RequestReward(ctx context.Context, caller Caller, request RedemptionRequest) (RedemptionResult, error) {
	var result RedemptionResult
	operationError := engine.requestReward(ctx, caller, request, &result)
	engine.logOperation(ctx, OperationLog{
		Operation: operationRequestReward,
		ActorID:   caller.MemberID,
		MemberID:  caller.MemberID,
		Subject:   request.Code.String(),
		Amount:    result.Entry.Delta,
		Reference: result.Redemption.ID,
		Error:     operationError,
	})
	if operationError != nil {
		return RedemptionResult{}, operationError
	}
	return result, nil
}

func (engine *Engine) requestReward(ctx context.Context, caller Caller, request RedemptionRequest, result *RedemptionResult) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	if _, err := NewRewardCode(request.Code.String()); err != nil {
		return err
	}
	quantity := request.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 || quantity > maxRedemptionQuantity {
		return fmt.Errorf("%w: must be between 1 and %d", ErrInvalidQuantity, maxRedemptionQuantity)
	}
	return engine.runTx(ctx, func(ctx context.Context, txStore Store) error {
		reward, err := txStore.GetReward(ctx, request.Code)
		if err != nil {
			return err
		}
		if !reward.Available {
			return fmt.Errorf("%w: %s", ErrRewardUnavailable, reward.Code)
		}
		if reward.Cost.Int64() > MaxPoints/int64(quantity) {
			return fmt.Errorf("%w: %d x %d exceeds %d", ErrInvalidPoints, reward.Cost.Int64(), quantity, MaxPoints)
		}
		cost := reward.Cost.Int64() * int64(quantity)
		redemptionID, err := newRecordID()
		if err != nil {
			return err
		}
		idempotencyKey, err := deriveIdempotencyKey(idempotencyPrefixRedemption, redemptionID)
		if err != nil {
			return err
		}
		reasonText := "Reward " + reward.Label
		if quantity > 1 {
			reasonText = fmt.Sprintf("Reward %s x%d", reward.Label, quantity)
		}
		reason, err := NewReason(reasonText)
		if err != nil {
			return err
		}
		entry, member, err := engine.applyEntry(ctx, txStore, EntryInput{
			MemberID:       caller.MemberID,
			Delta:          -cost,
			Reason:         reason,
			Category:       CategoryRewardSpend,
			ActorID:        caller.MemberID,
			Reference:      redemptionID,
			IdempotencyKey: idempotencyKey,
		})
		if err != nil {
			return err
		}
		redemption := Redemption{
			ID:         redemptionID,
			MemberID:   caller.MemberID,
			RewardCode: reward.Code,
			Quantity:   quantity,
			Notes:      strings.TrimSpace(request.Notes),
			PointsCost: cost,
			Status:     RedemptionStatusPending,
			CreatedAt:  engine.now(),
		}
		if err := txStore.CreateRedemption(ctx, redemption); err != nil {
			return err
		}
		*result = RedemptionResult{Redemption: redemption, Entry: entry, Balance: balanceOf(member)}
		return nil
	})
}

// FulfillRedemption marks a pending redemption as handed out.
func (engine *Engine) FulfillRedemption(ctx context.Context, caller Caller, redemptionID string) (RedemptionResult, error) {
	var result RedemptionResult
	operationError := engine.fulfillRedemption(ctx, caller, redemptionID, &result)
	engine.logOperation(ctx, OperationLog{
		Operation: operationFulfillRedemption,
		ActorID:   caller.MemberID,
		MemberID:  result.Redemption.MemberID,
		Subject:   result.Redemption.RewardCode.String(),
		Reference: redemptionID,
		Error:     operationError,
	})
	if operationError != nil {
		return RedemptionResult{}, operationError
	}
	return result, nil
}

func (engine *Engine) fulfillRedemption(ctx context.Context, caller Caller, redemptionID string, result *RedemptionResult) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	redemptionID, err := normalizeRedemptionID(redemptionID)
	if err != nil {
		return err
	}
	return engine.runTx(ctx, func(ctx context.Context, txStore Store) error {
		redemption, err := txStore.GetRedemption(ctx, redemptionID)
		if err != nil {
			return err
		}
		if redemption.Status != RedemptionStatusPending {
			return fmt.Errorf("%w: redemption is %s", ErrInvalidState, redemption.Status)
		}
		now := engine.now()
		if err := txStore.UpdateRedemptionStatus(ctx, redemption.ID, RedemptionStatusPending, RedemptionStatusFulfilled, caller.MemberID, now); err != nil {
			return err
		}
		redemption.Status = RedemptionStatusFulfilled
		redemption.DecidedBy = caller.MemberID
		redemption.DecidedAt = &now
		member, err := txStore.GetMember(ctx, redemption.MemberID)
		if err != nil {
			return err
		}
		*result = RedemptionResult{Redemption: redemption, Balance: balanceOf(member)}
		return nil
	})
}

// CancelRedemption withdraws a pending redemption and refunds its cost. Admins may cancel any
// redemption; members only their own.
func (engine *Engine) CancelRedemption(ctx context.Context, caller Caller, redemptionID string) (RedemptionResult, error) {
	var result RedemptionResult
	operationError := engine.cancelRedemption(ctx, caller, redemptionID, &result)
	engine.logOperation(ctx, OperationLog{
		Operation: operationCancelRedemption,
		ActorID:   caller.MemberID,
		MemberID:  result.Redemption.MemberID,
		Subject:   result.Redemption.RewardCode.String(),
		Amount:    result.Entry.Delta,
		Reference: redemptionID,
		Error:     operationError,
	})
	if operationError != nil {
		return RedemptionResult{}, operationError
	}
	return result, nil
}

func (engine *Engine) cancelRedemption(ctx context.Context, caller Caller, redemptionID string, result *RedemptionResult) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	redemptionID, err := normalizeRedemptionID(redemptionID)
	if err != nil {
		return err
	}
	return engine.runTx(ctx, func(ctx context.Context, txStore Store) error {
		redemption, err := txStore.GetRedemption(ctx, redemptionID)
		if err != nil {
			return err
		}
		if !caller.Admin && redemption.MemberID != caller.MemberID {
			return fmt.Errorf("%w: redemption belongs to another member", ErrPermissionDenied)
		}
		if redemption.Status != RedemptionStatusPending {
			return fmt.Errorf("%w: redemption is %s", ErrInvalidState, redemption.Status)
		}
		now := engine.now()
		if err := txStore.UpdateRedemptionStatus(ctx, redemption.ID, RedemptionStatusPending, RedemptionStatusCancelled, caller.MemberID, now); err != nil {
			return err
		}
		redemption.Status = RedemptionStatusCancelled
		redemption.DecidedBy = caller.MemberID
		redemption.DecidedAt = &now
		idempotencyKey, err := deriveIdempotencyKey(idempotencyPrefixRefund, redemption.ID)
		if err != nil {
			return err
		}
		reason, err := NewReason("Reward " + redemption.RewardCode.String() + " cancelled")
		if err != nil {
			return err
		}
		entry, member, err := engine.applyEntry(ctx, txStore, EntryInput{
			MemberID:       redemption.MemberID,
			Delta:          redemption.PointsCost,
			Reason:         reason,
			Category:       CategoryRewardRefund,
			ActorID:        caller.MemberID,
			Reference:      redemption.ID,
			IdempotencyKey: idempotencyKey,
		})
		if err != nil {
			return err
		}
		*result = RedemptionResult{Redemption: redemption, Entry: entry, Balance: balanceOf(member)}
		return nil
	})
}

// ListRedemptions returns redemptions matching filter. Members only ever see their own.
func (engine *Engine) ListRedemptions(ctx context.Context, caller Caller, filter RedemptionFilter) ([]Redemption, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if !caller.Admin {
		if !filter.MemberID.IsZero() && filter.MemberID != caller.MemberID {
			return nil, fmt.Errorf("%w: members may only list their own redemptions", ErrPermissionDenied)
		}
		filter.MemberID = caller.MemberID
	}
	if filter.Limit < 0 {
		return nil, fmt.Errorf("%w: must not be negative", ErrInvalidLimit)
	}
	return engine.store.ListRedemptions(ctx, filter)
}

func normalizeRedemptionID(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty value", ErrInvalidRedemptionID)
	}
	return trimmed, nil
}
