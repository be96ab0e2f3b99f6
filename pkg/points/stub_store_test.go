package points

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

// stubStore keeps all state in memory. WithTx serializes transactions and restores a snapshot
// when fn fails, so rollback behaves like a database.
type stubStore struct {
	mu     *sync.Mutex
	state  *stubState
	faults *stubFaults
	inTx   bool
}

type stubFaults struct {
	failures  map[string]error
	transient map[string]int
	txCount   int
}

type stubState struct {
	members       map[MemberID]Member
	entries       []Entry
	allowanceUsed map[string]int64
	allowanceCaps map[MemberID]int64
	days          map[Date]CoworkingDay
	overrides     []CapacityOverride
	bookings      []Booking
	tasks         map[TaskID]Task
	nextTaskID    TaskID
	decisions     []TaskDecision
	rewards       map[string]Reward
	rateCard      map[string]RateCardEntry
	redemptions   map[string]Redemption
}

func newStubStore() *stubStore {
	return &stubStore{
		mu: &sync.Mutex{},
		state: &stubState{
			members:       map[MemberID]Member{},
			allowanceUsed: map[string]int64{},
			allowanceCaps: map[MemberID]int64{},
			days:          map[Date]CoworkingDay{},
			tasks:         map[TaskID]Task{},
			rewards:       map[string]Reward{},
			rateCard:      map[string]RateCardEntry{},
			redemptions:   map[string]Redemption{},
		},
		faults: &stubFaults{failures: map[string]error{}, transient: map[string]int{}},
	}
}

func (state *stubState) clone() *stubState {
	return &stubState{
		members:       maps.Clone(state.members),
		entries:       slices.Clone(state.entries),
		allowanceUsed: maps.Clone(state.allowanceUsed),
		allowanceCaps: maps.Clone(state.allowanceCaps),
		days:          maps.Clone(state.days),
		overrides:     slices.Clone(state.overrides),
		bookings:      slices.Clone(state.bookings),
		tasks:         maps.Clone(state.tasks),
		nextTaskID:    state.nextTaskID,
		decisions:     slices.Clone(state.decisions),
		rewards:       maps.Clone(state.rewards),
		rateCard:      maps.Clone(state.rateCard),
		redemptions:   maps.Clone(state.redemptions),
	}
}

func (store *stubStore) guard() func() {
	if store.inTx {
		return func() {}
	}
	store.mu.Lock()
	return store.mu.Unlock
}

func (store *stubStore) fault(method string) error {
	if remaining := store.faults.transient[method]; remaining > 0 {
		store.faults.transient[method] = remaining - 1
		return fmt.Errorf("%s: %w", method, ErrTransientConflict)
	}
	return store.faults.failures[method]
}

func (store *stubStore) failOn(method string, err error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.faults.failures[method] = err
}

func (store *stubStore) conflictOn(method string, times int) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.faults.transient[method] = times
}

func (store *stubStore) transactions() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.faults.txCount
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.faults.txCount++
	snapshot := store.state.clone()
	txStore := &stubStore{mu: store.mu, state: store.state, faults: store.faults, inTx: true}
	if err := fn(ctx, txStore); err != nil {
		*store.state = *snapshot
		return err
	}
	return nil
}

// seedBalance credits memberID with an award entry, bypassing the engine.
func (store *stubStore) seedBalance(memberID MemberID, amount int64) {
	store.mu.Lock()
	defer store.mu.Unlock()
	member := store.state.members[memberID]
	member.Balance += amount
	member.LifetimeEarned += amount
	store.state.members[memberID] = member
	entryID := fmt.Sprintf("seed-%d", len(store.state.entries)+1)
	store.state.entries = append(store.state.entries, Entry{
		ID:             EntryID{value: entryID},
		MemberID:       memberID,
		Delta:          amount,
		Reason:         "seed",
		Category:       CategoryAward,
		IdempotencyKey: IdempotencyKey{value: entryID},
		CreatedAt:      time.Unix(0, 0).UTC(),
	})
}

func (store *stubStore) corruptBalance(memberID MemberID, balance int64) {
	store.mu.Lock()
	defer store.mu.Unlock()
	member := store.state.members[memberID]
	member.Balance = balance
	store.state.members[memberID] = member
}

func (store *stubStore) entriesOf(memberID MemberID) []Entry {
	store.mu.Lock()
	defer store.mu.Unlock()
	result := make([]Entry, 0)
	for _, entry := range store.state.entries {
		if entry.MemberID == memberID {
			result = append(result, entry)
		}
	}
	return result
}

func (store *stubStore) UpsertMember(ctx context.Context, memberID MemberID, displayName string, at time.Time) (Member, error) {
	defer store.guard()()
	if err := store.fault("UpsertMember"); err != nil {
		return Member{}, err
	}
	member, found := store.state.members[memberID]
	if !found {
		member = Member{ID: memberID, CreatedAt: at}
	}
	if displayName != "" {
		member.DisplayName = displayName
	}
	member.UpdatedAt = at
	store.state.members[memberID] = member
	return member, nil
}

func (store *stubStore) GetMember(ctx context.Context, memberID MemberID) (Member, error) {
	defer store.guard()()
	if err := store.fault("GetMember"); err != nil {
		return Member{}, err
	}
	member, found := store.state.members[memberID]
	if !found {
		return Member{}, ErrMemberNotFound
	}
	return member, nil
}

func (store *stubStore) ListMembers(ctx context.Context) ([]Member, error) {
	defer store.guard()()
	members := slices.Collect(maps.Values(store.state.members))
	sort.Slice(members, func(left, right int) bool { return members[left].ID.String() < members[right].ID.String() })
	return members, nil
}

func (store *stubStore) ApplyBalanceDelta(ctx context.Context, memberID MemberID, delta int64, earnedDelta int64, spentDelta int64, at time.Time) (Member, error) {
	defer store.guard()()
	if err := store.fault("ApplyBalanceDelta"); err != nil {
		return Member{}, err
	}
	member, found := store.state.members[memberID]
	if !found {
		return Member{}, ErrMemberNotFound
	}
	if member.Balance+delta < 0 {
		return Member{}, ErrInsufficientBalance
	}
	member.Balance += delta
	member.LifetimeEarned += earnedDelta
	member.LifetimeSpent += spentDelta
	member.UpdatedAt = at
	store.state.members[memberID] = member
	return member, nil
}

func (store *stubStore) OverwriteTotals(ctx context.Context, memberID MemberID, totals LedgerTotals, at time.Time) error {
	defer store.guard()()
	member, found := store.state.members[memberID]
	if !found {
		return ErrMemberNotFound
	}
	member.Balance = totals.Balance
	member.LifetimeEarned = totals.LifetimeEarned
	member.LifetimeSpent = totals.LifetimeSpent
	member.UpdatedAt = at
	store.state.members[memberID] = member
	return nil
}

func (store *stubStore) InsertEntry(ctx context.Context, entry Entry) error {
	defer store.guard()()
	if err := store.fault("InsertEntry"); err != nil {
		return err
	}
	for _, existing := range store.state.entries {
		if existing.MemberID == entry.MemberID && existing.IdempotencyKey == entry.IdempotencyKey {
			return ErrDuplicateRequest
		}
	}
	store.state.entries = append(store.state.entries, entry)
	return nil
}

func (store *stubStore) ListEntries(ctx context.Context, memberID MemberID, before *HistoryCursor, limit int) ([]Entry, error) {
	defer store.guard()()
	result := make([]Entry, 0)
	for _, entry := range store.state.entries {
		if entry.MemberID != memberID {
			continue
		}
		if before != nil && !entrySortsBefore(entry, *before) {
			continue
		}
		result = append(result, entry)
	}
	sort.Slice(result, func(left, right int) bool {
		if !result[left].CreatedAt.Equal(result[right].CreatedAt) {
			return result[left].CreatedAt.After(result[right].CreatedAt)
		}
		return result[left].ID.String() > result[right].ID.String()
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func entrySortsBefore(entry Entry, cursor HistoryCursor) bool {
	if !entry.CreatedAt.Equal(cursor.CreatedAt) {
		return entry.CreatedAt.Before(cursor.CreatedAt)
	}
	return entry.ID.String() < cursor.EntryID.String()
}

func (store *stubStore) SumEntriesByCategory(ctx context.Context, memberID MemberID) ([]CategoryTotals, error) {
	defer store.guard()()
	byCategory := map[Category]*CategoryTotals{}
	for _, entry := range store.state.entries {
		if entry.MemberID != memberID {
			continue
		}
		totals, found := byCategory[entry.Category]
		if !found {
			totals = &CategoryTotals{Category: entry.Category}
			byCategory[entry.Category] = totals
		}
		if entry.Delta > 0 {
			totals.Credits += entry.Delta
		} else {
			totals.Debits -= entry.Delta
		}
	}
	result := make([]CategoryTotals, 0, len(byCategory))
	for _, totals := range byCategory {
		result = append(result, *totals)
	}
	return result, nil
}

func allowanceKey(adminID MemberID, week WeekKey) string {
	return adminID.String() + "|" + week.String()
}

func (store *stubStore) GetAllowanceUsed(ctx context.Context, adminID MemberID, week WeekKey) (int64, error) {
	defer store.guard()()
	return store.state.allowanceUsed[allowanceKey(adminID, week)], nil
}

func (store *stubStore) ReserveAllowance(ctx context.Context, adminID MemberID, week WeekKey, amount PositivePoints, capValue int64, at time.Time) (int64, error) {
	defer store.guard()()
	key := allowanceKey(adminID, week)
	used := store.state.allowanceUsed[key]
	if used+amount.Int64() > capValue {
		return 0, ErrAllowanceExceeded
	}
	store.state.allowanceUsed[key] = used + amount.Int64()
	return used + amount.Int64(), nil
}

func (store *stubStore) ListAllowanceUsage(ctx context.Context, adminID MemberID, limit int) ([]AllowanceUsage, error) {
	defer store.guard()()
	usage := make([]AllowanceUsage, 0)
	for key, used := range store.state.allowanceUsed {
		rawWeek, found := strings.CutPrefix(key, adminID.String()+"|")
		if !found {
			continue
		}
		week, err := ParseWeekKey(rawWeek)
		if err != nil {
			return nil, err
		}
		usage = append(usage, AllowanceUsage{Week: week, Used: used})
	}
	sort.Slice(usage, func(left, right int) bool {
		return usage[left].Week.String() > usage[right].Week.String()
	})
	if len(usage) > limit {
		usage = usage[:limit]
	}
	return usage, nil
}

func (store *stubStore) GetAllowanceCap(ctx context.Context, adminID MemberID) (int64, bool, error) {
	defer store.guard()()
	capValue, found := store.state.allowanceCaps[adminID]
	return capValue, found, nil
}

func (store *stubStore) SetAllowanceCap(ctx context.Context, adminID MemberID, capValue int64, setBy MemberID, at time.Time) error {
	defer store.guard()()
	store.state.allowanceCaps[adminID] = capValue
	return nil
}

func (store *stubStore) GetCoworkingDay(ctx context.Context, date Date) (CoworkingDay, error) {
	defer store.guard()()
	day, found := store.state.days[date]
	if !found {
		return CoworkingDay{Date: date}, nil
	}
	return day, nil
}

func (store *stubStore) ListCoworkingDays(ctx context.Context, from Date, to Date) ([]CoworkingDay, error) {
	defer store.guard()()
	result := make([]CoworkingDay, 0)
	for date, day := range store.state.days {
		if date.Before(from) || to.Before(date) {
			continue
		}
		result = append(result, day)
	}
	return result, nil
}

func (store *stubStore) TakeSeat(ctx context.Context, date Date, defaultCapacity int) error {
	defer store.guard()()
	day, found := store.state.days[date]
	if !found {
		day = CoworkingDay{Date: date}
	}
	if day.Booked >= day.EffectiveCapacity(defaultCapacity) {
		return ErrNoCapacity
	}
	day.Booked++
	store.state.days[date] = day
	return nil
}

func (store *stubStore) ReleaseSeat(ctx context.Context, date Date) error {
	defer store.guard()()
	day, found := store.state.days[date]
	if !found || day.Booked == 0 {
		return nil
	}
	day.Booked--
	store.state.days[date] = day
	return nil
}

func (store *stubStore) SetCapacityOverride(ctx context.Context, override CapacityOverride) error {
	defer store.guard()()
	day, found := store.state.days[override.Date]
	if !found {
		day = CoworkingDay{Date: override.Date}
	}
	capacity := override.Capacity
	day.CapacityOverride = &capacity
	store.state.days[override.Date] = day
	store.state.overrides = append(store.state.overrides, override)
	return nil
}

func (store *stubStore) ListCapacityOverrides(ctx context.Context, date Date) ([]CapacityOverride, error) {
	defer store.guard()()
	result := make([]CapacityOverride, 0)
	for _, override := range store.state.overrides {
		if override.Date == date {
			result = append(result, override)
		}
	}
	return result, nil
}

func (store *stubStore) CreateBooking(ctx context.Context, booking Booking) error {
	defer store.guard()()
	if err := store.fault("CreateBooking"); err != nil {
		return err
	}
	for _, existing := range store.state.bookings {
		if existing.Status == BookingStatusActive && existing.ActiveKey() == booking.ActiveKey() {
			return ErrAlreadyBooked
		}
	}
	store.state.bookings = append(store.state.bookings, booking)
	return nil
}

func (store *stubStore) GetBooking(ctx context.Context, bookingID string) (Booking, error) {
	defer store.guard()()
	for _, booking := range store.state.bookings {
		if booking.ID == bookingID {
			return booking, nil
		}
	}
	return Booking{}, ErrBookingNotFound
}

func (store *stubStore) GetActiveBooking(ctx context.Context, memberID MemberID, date Date) (Booking, error) {
	defer store.guard()()
	for _, booking := range store.state.bookings {
		if booking.Status == BookingStatusActive && booking.MemberID == memberID && booking.Date == date {
			return booking, nil
		}
	}
	return Booking{}, ErrNoActiveBooking
}

func (store *stubStore) CancelBooking(ctx context.Context, bookingID string, at time.Time) error {
	defer store.guard()()
	for index, booking := range store.state.bookings {
		if booking.ID == bookingID && booking.Status == BookingStatusActive {
			cancelledAt := at
			booking.Status = BookingStatusCancelled
			booking.CancelledAt = &cancelledAt
			store.state.bookings[index] = booking
			return nil
		}
	}
	return ErrNoActiveBooking
}

func (store *stubStore) ListBookings(ctx context.Context, filter BookingFilter) ([]Booking, error) {
	defer store.guard()()
	result := make([]Booking, 0)
	for _, booking := range store.state.bookings {
		if !filter.MemberID.IsZero() && booking.MemberID != filter.MemberID {
			continue
		}
		if !filter.From.IsZero() && booking.Date.Before(filter.From) {
			continue
		}
		if filter.Status != "" && booking.Status != filter.Status {
			continue
		}
		result = append(result, booking)
	}
	sort.SliceStable(result, func(left, right int) bool { return result[left].Date.Before(result[right].Date) })
	return result, nil
}

func (store *stubStore) CreateTask(ctx context.Context, task Task) (Task, error) {
	defer store.guard()()
	store.state.nextTaskID++
	task.ID = store.state.nextTaskID
	store.state.tasks[task.ID] = task
	return task, nil
}

func (store *stubStore) GetTask(ctx context.Context, taskID TaskID) (Task, error) {
	defer store.guard()()
	task, found := store.state.tasks[taskID]
	if !found {
		return Task{}, ErrTaskNotFound
	}
	return task, nil
}

func (store *stubStore) ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error) {
	defer store.guard()()
	result := make([]Task, 0)
	for _, task := range store.state.tasks {
		if filter.Status != 0 && task.Status != filter.Status {
			continue
		}
		if filter.Portfolio != "" && task.Portfolio != filter.Portfolio {
			continue
		}
		if !filter.ClaimantID.IsZero() && task.ClaimantID != filter.ClaimantID {
			continue
		}
		result = append(result, task)
	}
	sort.Slice(result, func(left, right int) bool { return result[left].ID < result[right].ID })
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (store *stubStore) UpdateTask(ctx context.Context, task Task, expectedVersion int64) (Task, error) {
	defer store.guard()()
	if err := store.fault("UpdateTask"); err != nil {
		return Task{}, err
	}
	current, found := store.state.tasks[task.ID]
	if !found {
		return Task{}, ErrTaskNotFound
	}
	if current.Version != expectedVersion {
		return Task{}, ErrTransientConflict
	}
	task.Version = expectedVersion + 1
	store.state.tasks[task.ID] = task
	return task, nil
}

func (store *stubStore) InsertTaskDecision(ctx context.Context, decision TaskDecision) error {
	defer store.guard()()
	store.state.decisions = append(store.state.decisions, decision)
	return nil
}

func (store *stubStore) ListTaskDecisions(ctx context.Context, taskID TaskID) ([]TaskDecision, error) {
	defer store.guard()()
	result := make([]TaskDecision, 0)
	for _, decision := range store.state.decisions {
		if decision.TaskID == taskID {
			result = append(result, decision)
		}
	}
	return result, nil
}

func (store *stubStore) UpsertReward(ctx context.Context, reward Reward) error {
	defer store.guard()()
	store.state.rewards[reward.Code.String()] = reward
	return nil
}

func (store *stubStore) GetReward(ctx context.Context, code RewardCode) (Reward, error) {
	defer store.guard()()
	reward, found := store.state.rewards[code.String()]
	if !found {
		return Reward{}, ErrUnknownRewardCode
	}
	return reward, nil
}

func (store *stubStore) ListRewards(ctx context.Context, includeUnavailable bool) ([]Reward, error) {
	defer store.guard()()
	result := make([]Reward, 0)
	for _, reward := range store.state.rewards {
		if reward.Available || includeUnavailable {
			result = append(result, reward)
		}
	}
	sort.Slice(result, func(left, right int) bool { return result[left].Code.String() < result[right].Code.String() })
	return result, nil
}

func (store *stubStore) UpsertRateCardEntry(ctx context.Context, entry RateCardEntry) error {
	defer store.guard()()
	store.state.rateCard[entry.Alias.String()] = entry
	return nil
}

func (store *stubStore) GetRateCardEntry(ctx context.Context, alias RateCardAlias) (RateCardEntry, error) {
	defer store.guard()()
	entry, found := store.state.rateCard[alias.String()]
	if !found {
		return RateCardEntry{}, ErrUnknownRateCardAlias
	}
	return entry, nil
}

func (store *stubStore) ListRateCard(ctx context.Context) ([]RateCardEntry, error) {
	defer store.guard()()
	result := slices.Collect(maps.Values(store.state.rateCard))
	sort.Slice(result, func(left, right int) bool { return result[left].Alias.String() < result[right].Alias.String() })
	return result, nil
}

func (store *stubStore) CreateRedemption(ctx context.Context, redemption Redemption) error {
	defer store.guard()()
	if err := store.fault("CreateRedemption"); err != nil {
		return err
	}
	store.state.redemptions[redemption.ID] = redemption
	return nil
}

func (store *stubStore) GetRedemption(ctx context.Context, redemptionID string) (Redemption, error) {
	defer store.guard()()
	redemption, found := store.state.redemptions[redemptionID]
	if !found {
		return Redemption{}, ErrRedemptionNotFound
	}
	return redemption, nil
}

func (store *stubStore) UpdateRedemptionStatus(ctx context.Context, redemptionID string, from RedemptionStatus, to RedemptionStatus, decidedBy MemberID, at time.Time) error {
	defer store.guard()()
	redemption, found := store.state.redemptions[redemptionID]
	if !found {
		return ErrRedemptionNotFound
	}
	if redemption.Status != from {
		return ErrTransientConflict
	}
	decidedAt := at
	redemption.Status = to
	redemption.DecidedBy = decidedBy
	redemption.DecidedAt = &decidedAt
	store.state.redemptions[redemptionID] = redemption
	return nil
}

func (store *stubStore) ListRedemptions(ctx context.Context, filter RedemptionFilter) ([]Redemption, error) {
	defer store.guard()()
	result := make([]Redemption, 0)
	for _, redemption := range store.state.redemptions {
		if !filter.MemberID.IsZero() && redemption.MemberID != filter.MemberID {
			continue
		}
		if filter.Status != "" && redemption.Status != filter.Status {
			continue
		}
		result = append(result, redemption)
	}
	sort.Slice(result, func(left, right int) bool { return result[left].CreatedAt.Before(result[right].CreatedAt) })
	return result, nil
}

var errStubFailure = errors.New("stub failure")
