package gormstore_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/communitypoints/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/communitypoints/pkg/points"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var integrationNow = time.Date(2026, time.October, 14, 9, 30, 0, 0, time.UTC)

// openStore runs on a single connection, so concurrent engine calls queue on the pool before
// they reach a conditional UPDATE. openWALStore keeps two connections for interleaving tests.
func openStore(test *testing.T) *gormstore.Store {
	test.Helper()
	database, err := gorm.Open(sqlite.Open(test.TempDir()+"/points.db"), &gorm.Config{})
	if err != nil {
		test.Fatalf("sqlite open failed: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		test.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	test.Cleanup(func() { _ = sqlDB.Close() })
	if err := database.AutoMigrate(gormstore.Models()...); err != nil {
		test.Fatalf("automigrate failed: %v", err)
	}
	return gormstore.New(database)
}

func openWALStore(test *testing.T) *gormstore.Store {
	test.Helper()
	dsn := "file:" + test.TempDir() + "/points.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		test.Fatalf("sqlite open failed: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		test.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(2)
	test.Cleanup(func() { _ = sqlDB.Close() })
	if err := database.AutoMigrate(gormstore.Models()...); err != nil {
		test.Fatalf("automigrate failed: %v", err)
	}
	return gormstore.New(database)
}

func newIntegrationEngine(test *testing.T, store points.Store, options ...points.EngineOption) *points.Engine {
	test.Helper()
	var mu sync.Mutex
	current := integrationNow
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Millisecond)
		return current
	}
	options = append([]points.EngineOption{points.WithRetryPolicy(3, time.Millisecond)}, options...)
	engine, err := points.NewEngine(store, clock, options...)
	if err != nil {
		test.Fatalf("engine init failed: %v", err)
	}
	return engine
}

func mustRegister(test *testing.T, engine *points.Engine, rawID string, admin bool) points.Caller {
	test.Helper()
	caller, err := points.NewCaller(rawID, rawID, admin)
	if err != nil {
		test.Fatalf("caller %s: %v", rawID, err)
	}
	if _, err := engine.RegisterMember(context.Background(), caller); err != nil {
		test.Fatalf("register %s: %v", rawID, err)
	}
	return caller
}

func mustAward(test *testing.T, engine *points.Engine, admin points.Caller, member points.Caller, amount int64) {
	test.Helper()
	_, err := engine.AwardPoints(context.Background(), admin, points.AwardRequest{
		MemberID: member.MemberID,
		Points:   amount,
		Reason:   "seed",
	})
	if err != nil {
		test.Fatalf("award %s: %v", member.MemberID, err)
	}
}

func mustMemberID(test *testing.T, raw string) points.MemberID {
	test.Helper()
	memberID, err := points.NewMemberID(raw)
	if err != nil {
		test.Fatalf("member id %s: %v", raw, err)
	}
	return memberID
}

func mustDate(test *testing.T, raw string) points.Date {
	test.Helper()
	date, err := points.ParseDate(raw, time.UTC)
	if err != nil {
		test.Fatalf("date %s: %v", raw, err)
	}
	return date
}

func TestLedgerRoundTripThroughEngine(test *testing.T) {
	store := openStore(test)
	engine := newIntegrationEngine(test, store)
	admin := mustRegister(test, engine, "admin-ada", true)
	bob := mustRegister(test, engine, "bob", false)

	idempotencyKey, err := points.NewIdempotencyKey("kudos-1")
	if err != nil {
		test.Fatalf("idempotency key: %v", err)
	}
	metadata, err := points.NewMetadataJSON(`{"channel":"general"}`)
	if err != nil {
		test.Fatalf("metadata: %v", err)
	}
	award, err := engine.AwardPoints(context.Background(), admin, points.AwardRequest{
		MemberID:       bob.MemberID,
		Points:         30,
		Reason:         "organised meetup",
		IdempotencyKey: idempotencyKey,
		Metadata:       metadata,
	})
	if err != nil {
		test.Fatalf("award: %v", err)
	}
	if award.Balance.Balance != 30 || award.AllowanceRemaining != points.DefaultWeeklyAllowance-30 {
		test.Fatalf("unexpected award result: %+v", award)
	}
	_, err = engine.AwardPoints(context.Background(), admin, points.AwardRequest{
		MemberID:       bob.MemberID,
		Points:         30,
		Reason:         "organised meetup",
		IdempotencyKey: idempotencyKey,
	})
	if !errors.Is(err, points.ErrDuplicateRequest) {
		test.Fatalf("expected ErrDuplicateRequest, got %v", err)
	}
	if _, err := engine.DeductPoints(context.Background(), admin, points.DeductRequest{MemberID: bob.MemberID, Points: 10, Reason: "correction"}); err != nil {
		test.Fatalf("deduct: %v", err)
	}

	balance, err := engine.GetBalance(context.Background(), bob)
	if err != nil {
		test.Fatalf("balance: %v", err)
	}
	if balance.Balance != 20 || balance.LifetimeEarned != 30 || balance.LifetimeSpent != 10 {
		test.Fatalf("unexpected balance: %+v", balance)
	}
	page, err := engine.GetHistory(context.Background(), bob, points.HistoryQuery{Limit: 10})
	if err != nil {
		test.Fatalf("history: %v", err)
	}
	if len(page.Entries) != 2 || page.Entries[0].Delta != -10 || page.Entries[1].Delta != 30 {
		test.Fatalf("unexpected history: %+v", page.Entries)
	}
	if page.Entries[1].Metadata.String() == "" || page.Entries[1].ActorID != admin.MemberID {
		test.Fatalf("entry lost fields: %+v", page.Entries[1])
	}
	drifts, err := engine.ReconcileBalances(context.Background(), admin, false)
	if err != nil {
		test.Fatalf("reconcile: %v", err)
	}
	if len(drifts) != 0 {
		test.Fatalf("expected no drift, got %+v", drifts)
	}
}

func TestApplyBalanceDeltaRefusesOverdraft(test *testing.T) {
	store := openStore(test)
	memberID := mustMemberID(test, "carol")
	ctx := context.Background()
	if _, err := store.UpsertMember(ctx, memberID, "Carol", integrationNow); err != nil {
		test.Fatalf("upsert: %v", err)
	}
	if _, err := store.ApplyBalanceDelta(ctx, memberID, 5, 5, 0, integrationNow); err != nil {
		test.Fatalf("credit: %v", err)
	}
	if _, err := store.ApplyBalanceDelta(ctx, memberID, -6, 0, 6, integrationNow); !errors.Is(err, points.ErrInsufficientBalance) {
		test.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if _, err := store.ApplyBalanceDelta(ctx, mustMemberID(test, "ghost"), 1, 1, 0, integrationNow); !errors.Is(err, points.ErrMemberNotFound) {
		test.Fatalf("expected ErrMemberNotFound, got %v", err)
	}
	member, err := store.GetMember(ctx, memberID)
	if err != nil {
		test.Fatalf("get: %v", err)
	}
	if member.Balance != 5 || member.LifetimeSpent != 0 {
		test.Fatalf("overdraft changed member: %+v", member)
	}
}

func TestUpsertMemberKeepsNameWhenEmpty(test *testing.T) {
	store := openStore(test)
	memberID := mustMemberID(test, "dave")
	ctx := context.Background()
	if _, err := store.UpsertMember(ctx, memberID, "Dave", integrationNow); err != nil {
		test.Fatalf("upsert: %v", err)
	}
	member, err := store.UpsertMember(ctx, memberID, "", integrationNow.Add(time.Hour))
	if err != nil {
		test.Fatalf("second upsert: %v", err)
	}
	if member.DisplayName != "Dave" || !member.CreatedAt.Equal(integrationNow) {
		test.Fatalf("unexpected member: %+v", member)
	}
}

func TestReserveAllowanceStopsAtCap(test *testing.T) {
	store := openStore(test)
	ctx := context.Background()
	adminID := mustMemberID(test, "admin-ada")
	week := points.WeekOf(integrationNow, time.UTC)

	testCases := []struct {
		name         string
		amount       points.PositivePoints
		expectedUsed int64
		expectedErr  error
	}{
		{name: "first award", amount: 60, expectedUsed: 60},
		{name: "fills cap", amount: 40, expectedUsed: 100},
		{name: "exceeds cap", amount: 1, expectedErr: points.ErrAllowanceExceeded},
	}
	for _, testCase := range testCases {
		used, err := store.ReserveAllowance(ctx, adminID, week, testCase.amount, 100, integrationNow)
		if testCase.expectedErr != nil {
			if !errors.Is(err, testCase.expectedErr) {
				test.Fatalf("%s: expected %v, got %v", testCase.name, testCase.expectedErr, err)
			}
			continue
		}
		if err != nil {
			test.Fatalf("%s: %v", testCase.name, err)
		}
		if used != testCase.expectedUsed {
			test.Fatalf("%s: expected used %d, got %d", testCase.name, testCase.expectedUsed, used)
		}
	}
	nextWeek := points.WeekOf(integrationNow.AddDate(0, 0, 7), time.UTC)
	used, err := store.GetAllowanceUsed(ctx, adminID, nextWeek)
	if err != nil || used != 0 {
		test.Fatalf("expected fresh week, got %d (%v)", used, err)
	}
	if _, err := store.ReserveAllowance(ctx, adminID, nextWeek, 7, 100, integrationNow); err != nil {
		test.Fatalf("next week reserve: %v", err)
	}
	usage, err := store.ListAllowanceUsage(ctx, adminID, 10)
	if err != nil {
		test.Fatalf("list usage: %v", err)
	}
	if len(usage) != 2 || usage[0].Week != nextWeek || usage[0].Used != 7 || usage[1].Week != week || usage[1].Used != 100 {
		test.Fatalf("unexpected usage history: %+v", usage)
	}
}

func TestConcurrentBookingsForLastSeat(test *testing.T) {
	store := openStore(test)
	engine := newIntegrationEngine(test, store, points.WithDefaultCapacity(1))
	admin := mustRegister(test, engine, "admin-ada", true)
	const contenders = 5
	members := make([]points.Caller, 0, contenders)
	for index := 0; index < contenders; index++ {
		member := mustRegister(test, engine, fmt.Sprintf("member-%d", index), false)
		mustAward(test, engine, admin, member, 3)
		members = append(members, member)
	}
	date := mustDate(test, "2026-10-15")

	var waitGroup sync.WaitGroup
	results := make(chan error, contenders)
	for _, member := range members {
		waitGroup.Add(1)
		go func(caller points.Caller) {
			defer waitGroup.Done()
			_, err := engine.BookCoworking(context.Background(), caller, date)
			results <- err
		}(member)
	}
	waitGroup.Wait()
	close(results)

	successes := 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, points.ErrNoCapacity):
		default:
			test.Fatalf("unexpected booking error: %v", err)
		}
	}
	if successes != 1 {
		test.Fatalf("expected exactly one booking, got %d", successes)
	}
	availability, err := engine.CheckCoworking(context.Background(), date)
	if err != nil {
		test.Fatalf("check: %v", err)
	}
	if availability.Booked != 1 || availability.Available != 0 {
		test.Fatalf("unexpected availability: %+v", availability)
	}
}

func TestCancelledBookingFreesActiveKey(test *testing.T) {
	store := openStore(test)
	engine := newIntegrationEngine(test, store)
	admin := mustRegister(test, engine, "admin-ada", true)
	bob := mustRegister(test, engine, "bob", false)
	mustAward(test, engine, admin, bob, 5)
	date := mustDate(test, "2026-10-16")

	if _, err := engine.BookCoworking(context.Background(), bob, date); err != nil {
		test.Fatalf("book: %v", err)
	}
	if _, err := engine.BookCoworking(context.Background(), bob, date); !errors.Is(err, points.ErrAlreadyBooked) {
		test.Fatalf("expected ErrAlreadyBooked, got %v", err)
	}
	cancelled, err := engine.CancelCoworking(context.Background(), bob, date)
	if err != nil {
		test.Fatalf("cancel: %v", err)
	}
	if cancelled.Booking.Status != points.BookingStatusCancelled || cancelled.Balance.Balance != 5 {
		test.Fatalf("unexpected cancel result: %+v", cancelled)
	}
	if _, err := engine.BookCoworking(context.Background(), bob, date); err != nil {
		test.Fatalf("rebook after cancel: %v", err)
	}
	bookings, err := store.ListBookings(context.Background(), points.BookingFilter{MemberID: bob.MemberID})
	if err != nil {
		test.Fatalf("list: %v", err)
	}
	if len(bookings) != 2 {
		test.Fatalf("expected both bookings kept, got %+v", bookings)
	}
	if bookings[0].Status != points.BookingStatusCancelled || bookings[0].CancelledAt == nil {
		test.Fatalf("unexpected first booking: %+v", bookings[0])
	}
}

func TestCancelBookingByIDThroughStore(test *testing.T) {
	store := openStore(test)
	engine := newIntegrationEngine(test, store)
	admin := mustRegister(test, engine, "admin-ada", true)
	bob := mustRegister(test, engine, "bob", false)
	carol := mustRegister(test, engine, "carol", false)
	mustAward(test, engine, admin, bob, 5)
	date := mustDate(test, "2026-10-16")

	booked, err := engine.BookCoworking(context.Background(), bob, date)
	if err != nil {
		test.Fatalf("book: %v", err)
	}
	stored, err := store.GetBooking(context.Background(), booked.Booking.ID)
	if err != nil {
		test.Fatalf("get booking: %v", err)
	}
	if stored.MemberID != bob.MemberID || stored.Date != date || stored.Status != points.BookingStatusActive {
		test.Fatalf("unexpected stored booking: %+v", stored)
	}
	if _, err := store.GetBooking(context.Background(), "missing-booking"); !errors.Is(err, points.ErrBookingNotFound) {
		test.Fatalf("expected ErrBookingNotFound, got %v", err)
	}
	if _, err := engine.CancelBookingByID(context.Background(), carol, booked.Booking.ID); !errors.Is(err, points.ErrPermissionDenied) {
		test.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	cancelled, err := engine.CancelBookingByID(context.Background(), bob, booked.Booking.ID)
	if err != nil {
		test.Fatalf("cancel: %v", err)
	}
	if cancelled.Balance.Balance != 5 {
		test.Fatalf("expected refund to restore 5, got %d", cancelled.Balance.Balance)
	}
	stored, err = store.GetBooking(context.Background(), booked.Booking.ID)
	if err != nil {
		test.Fatalf("get cancelled booking: %v", err)
	}
	if stored.Status != points.BookingStatusCancelled || stored.CancelledAt == nil {
		test.Fatalf("unexpected cancelled booking: %+v", stored)
	}
	if _, err := engine.CancelBookingByID(context.Background(), bob, booked.Booking.ID); !errors.Is(err, points.ErrNoActiveBooking) {
		test.Fatalf("expected ErrNoActiveBooking, got %v", err)
	}
}

func TestCapacityOverrideIsAudited(test *testing.T) {
	store := openStore(test)
	ctx := context.Background()
	date := mustDate(test, "2026-10-20")
	adminID := mustMemberID(test, "admin-ada")
	for _, capacity := range []int{3, 0} {
		err := store.SetCapacityOverride(ctx, points.CapacityOverride{Date: date, Capacity: capacity, SetBy: adminID, SetAt: integrationNow})
		if err != nil {
			test.Fatalf("override %d: %v", capacity, err)
		}
	}
	day, err := store.GetCoworkingDay(ctx, date)
	if err != nil {
		test.Fatalf("get day: %v", err)
	}
	if day.CapacityOverride == nil || *day.CapacityOverride != 0 {
		test.Fatalf("unexpected override: %+v", day)
	}
	if err := store.TakeSeat(ctx, date, 10); !errors.Is(err, points.ErrNoCapacity) {
		test.Fatalf("expected ErrNoCapacity under zero override, got %v", err)
	}
	overrides, err := store.ListCapacityOverrides(ctx, date)
	if err != nil {
		test.Fatalf("list overrides: %v", err)
	}
	if len(overrides) != 2 || overrides[0].Capacity != 3 || overrides[1].SetBy != adminID {
		test.Fatalf("unexpected audit trail: %+v", overrides)
	}
	days, err := store.ListCoworkingDays(ctx, date.AddDays(-1), date.AddDays(1))
	if err != nil || len(days) != 1 {
		test.Fatalf("expected one stored day, got %+v (%v)", days, err)
	}
}

func TestConcurrentClaimsThroughStore(test *testing.T) {
	store := openStore(test)
	engine := newIntegrationEngine(test, store)
	admin := mustRegister(test, engine, "admin-ada", true)
	task, err := engine.CreateTask(context.Background(), admin, points.NewTask{Title: "Paint mural", Portfolio: "space", Points: 15})
	if err != nil {
		test.Fatalf("create task: %v", err)
	}
	const contenders = 4
	callers := make([]points.Caller, 0, contenders)
	for index := 0; index < contenders; index++ {
		callers = append(callers, mustRegister(test, engine, fmt.Sprintf("painter-%d", index), false))
	}

	var waitGroup sync.WaitGroup
	results := make(chan error, contenders)
	for _, caller := range callers {
		waitGroup.Add(1)
		go func(caller points.Caller) {
			defer waitGroup.Done()
			_, err := engine.ClaimTask(context.Background(), caller, task.ID)
			results <- err
		}(caller)
	}
	waitGroup.Wait()
	close(results)

	winners := 0
	for err := range results {
		if err == nil {
			winners++
			continue
		}
		if !errors.Is(err, points.ErrTaskNotOpen) {
			test.Fatalf("expected ErrTaskNotOpen, got %v", err)
		}
	}
	if winners != 1 {
		test.Fatalf("expected one winner, got %d", winners)
	}
	stored, err := engine.GetTask(context.Background(), task.ID)
	if err != nil {
		test.Fatalf("get task: %v", err)
	}
	if stored.Status != points.TaskStatusClaimed || stored.Version != 2 || stored.ClaimedAt == nil {
		test.Fatalf("unexpected stored task: %+v", stored)
	}
}

func TestUpdateTaskRejectsStaleVersion(test *testing.T) {
	store := openStore(test)
	ctx := context.Background()
	creator := mustMemberID(test, "admin-ada")
	created, err := store.CreateTask(ctx, points.Task{
		Title:     "Sort library",
		Points:    8,
		Status:    points.TaskStatusOpen,
		CreatedBy: creator,
		CreatedAt: integrationNow,
		DueDate:   mustDate(test, "2026-11-01"),
	})
	if err != nil {
		test.Fatalf("create: %v", err)
	}
	if created.ID == 0 || created.Version != 1 {
		test.Fatalf("unexpected created task: %+v", created)
	}
	claimed := created
	claimed.Status = points.TaskStatusClaimed
	claimed.ClaimantID = mustMemberID(test, "erin")
	updated, err := store.UpdateTask(ctx, claimed, created.Version)
	if err != nil {
		test.Fatalf("update: %v", err)
	}
	if updated.Version != 2 || updated.ClaimantID.String() != "erin" || updated.DueDate.String() != "2026-11-01" {
		test.Fatalf("unexpected updated task: %+v", updated)
	}
	if _, err := store.UpdateTask(ctx, claimed, created.Version); !errors.Is(err, points.ErrTransientConflict) {
		test.Fatalf("expected ErrTransientConflict, got %v", err)
	}
	missing := claimed
	missing.ID = 9999
	if _, err := store.UpdateTask(ctx, missing, 1); !errors.Is(err, points.ErrTaskNotFound) {
		test.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestInterleavedTaskUpdatesOnSeparateConnections(test *testing.T) {
	store := openWALStore(test)
	ctx := context.Background()
	created, err := store.CreateTask(ctx, points.Task{
		Title:     "Fix the projector",
		Points:    4,
		Status:    points.TaskStatusOpen,
		CreatedBy: mustMemberID(test, "admin-ada"),
		CreatedAt: integrationNow,
	})
	if err != nil {
		test.Fatalf("create: %v", err)
	}

	loser := mustMemberID(test, "erin")
	read := make(chan struct{})
	winnerDone := make(chan error, 1)
	loserDone := make(chan error, 1)
	go func() {
		loserDone <- store.WithTx(ctx, func(ctx context.Context, txStore points.Store) error {
			task, err := txStore.GetTask(ctx, created.ID)
			close(read)
			if err != nil {
				return err
			}
			if err := <-winnerDone; err != nil {
				return err
			}
			task.Status = points.TaskStatusClaimed
			task.ClaimantID = loser
			_, err = txStore.UpdateTask(ctx, task, task.Version)
			return err
		})
	}()

	<-read
	winner := created
	winner.Status = points.TaskStatusClaimed
	winner.ClaimantID = mustMemberID(test, "frank")
	_, winnerErr := store.UpdateTask(ctx, winner, created.Version)
	winnerDone <- winnerErr
	if winnerErr != nil {
		test.Fatalf("winning update: %v", winnerErr)
	}
	if err := <-loserDone; !errors.Is(err, points.ErrTransientConflict) {
		test.Fatalf("expected the stale transaction to lose with ErrTransientConflict, got %v", err)
	}
	stored, err := store.GetTask(ctx, created.ID)
	if err != nil {
		test.Fatalf("get: %v", err)
	}
	if stored.ClaimantID.String() != "frank" || stored.Version != created.Version+1 {
		test.Fatalf("expected the first committed claim to stand, got %+v", stored)
	}
}

func TestRedemptionLifecycleThroughStore(test *testing.T) {
	store := openStore(test)
	engine := newIntegrationEngine(test, store)
	admin := mustRegister(test, engine, "admin-ada", true)
	bob := mustRegister(test, engine, "bob", false)
	mustAward(test, engine, admin, bob, 20)
	code, err := points.NewRewardCode("sticker")
	if err != nil {
		test.Fatalf("reward code: %v", err)
	}
	if _, err := engine.UpsertReward(context.Background(), admin, points.Reward{Code: code, Label: "Sticker pack", Cost: 4, Available: true}); err != nil {
		test.Fatalf("upsert reward: %v", err)
	}

	requested, err := engine.RequestReward(context.Background(), bob, points.RedemptionRequest{Code: code, Quantity: 2, Notes: "blue"})
	if err != nil {
		test.Fatalf("request: %v", err)
	}
	if requested.Balance.Balance != 12 || requested.Redemption.Status != points.RedemptionStatusPending {
		test.Fatalf("unexpected request result: %+v", requested)
	}
	fulfilled, err := engine.FulfillRedemption(context.Background(), admin, requested.Redemption.ID)
	if err != nil {
		test.Fatalf("fulfill: %v", err)
	}
	if fulfilled.Redemption.Status != points.RedemptionStatusFulfilled || fulfilled.Redemption.DecidedBy != admin.MemberID {
		test.Fatalf("unexpected fulfilment: %+v", fulfilled.Redemption)
	}
	err = store.UpdateRedemptionStatus(context.Background(), requested.Redemption.ID, points.RedemptionStatusPending, points.RedemptionStatusCancelled, admin.MemberID, integrationNow)
	if !errors.Is(err, points.ErrTransientConflict) {
		test.Fatalf("expected ErrTransientConflict on stale status, got %v", err)
	}
	err = store.UpdateRedemptionStatus(context.Background(), "missing", points.RedemptionStatusPending, points.RedemptionStatusCancelled, admin.MemberID, integrationNow)
	if !errors.Is(err, points.ErrRedemptionNotFound) {
		test.Fatalf("expected ErrRedemptionNotFound, got %v", err)
	}
	listed, err := store.ListRedemptions(context.Background(), points.RedemptionFilter{MemberID: bob.MemberID})
	if err != nil {
		test.Fatalf("list: %v", err)
	}
	if len(listed) != 1 || listed[0].Quantity != 2 || listed[0].Notes != "blue" || listed[0].PointsCost != 8 {
		test.Fatalf("unexpected redemptions: %+v", listed)
	}
}

func TestCatalogAndRateCardLookups(test *testing.T) {
	store := openStore(test)
	ctx := context.Background()
	code, _ := points.NewRewardCode("MUG")
	if _, err := store.GetReward(ctx, code); !errors.Is(err, points.ErrUnknownRewardCode) {
		test.Fatalf("expected ErrUnknownRewardCode, got %v", err)
	}
	for _, available := range []bool{true, false} {
		if err := store.UpsertReward(ctx, points.Reward{Code: code, Label: "Mug", Cost: 12, Available: available, UpdatedAt: integrationNow}); err != nil {
			test.Fatalf("upsert reward: %v", err)
		}
	}
	visible, err := store.ListRewards(ctx, false)
	if err != nil || len(visible) != 0 {
		test.Fatalf("expected hidden reward, got %+v (%v)", visible, err)
	}
	all, err := store.ListRewards(ctx, true)
	if err != nil || len(all) != 1 || all[0].Cost != 12 {
		test.Fatalf("unexpected catalog: %+v (%v)", all, err)
	}

	alias, _ := points.NewRateCardAlias("talk")
	if _, err := store.GetRateCardEntry(ctx, alias); !errors.Is(err, points.ErrUnknownRateCardAlias) {
		test.Fatalf("expected ErrUnknownRateCardAlias, got %v", err)
	}
	if err := store.UpsertRateCardEntry(ctx, points.RateCardEntry{Alias: alias, Name: "Lightning talk", Points: 10, UpdatedAt: integrationNow}); err != nil {
		test.Fatalf("upsert rate card: %v", err)
	}
	entry, err := store.GetRateCardEntry(ctx, alias)
	if err != nil || entry.Points != 10 || entry.Name != "Lightning talk" {
		test.Fatalf("unexpected rate card entry: %+v (%v)", entry, err)
	}
}

func TestListEntriesBreaksTimestampTies(test *testing.T) {
	store := openStore(test)
	ctx := context.Background()
	memberID := mustMemberID(test, "frank")
	if _, err := store.UpsertMember(ctx, memberID, "Frank", integrationNow); err != nil {
		test.Fatalf("upsert: %v", err)
	}
	for _, rawID := range []string{"entry-a", "entry-b", "entry-c"} {
		entryID, _ := points.NewEntryID(rawID)
		idempotencyKey, _ := points.NewIdempotencyKey(rawID)
		err := store.InsertEntry(ctx, points.Entry{
			ID:             entryID,
			MemberID:       memberID,
			Delta:          1,
			Reason:         "tie",
			Category:       points.CategoryAward,
			IdempotencyKey: idempotencyKey,
			CreatedAt:      integrationNow,
		})
		if err != nil {
			test.Fatalf("insert %s: %v", rawID, err)
		}
	}
	first, err := store.ListEntries(ctx, memberID, nil, 2)
	if err != nil {
		test.Fatalf("first page: %v", err)
	}
	if len(first) != 2 || first[0].ID.String() != "entry-c" || first[1].ID.String() != "entry-b" {
		test.Fatalf("unexpected first page: %+v", first)
	}
	cursor := points.HistoryCursor{CreatedAt: first[1].CreatedAt, EntryID: first[1].ID}
	second, err := store.ListEntries(ctx, memberID, &cursor, 2)
	if err != nil {
		test.Fatalf("second page: %v", err)
	}
	if len(second) != 1 || second[0].ID.String() != "entry-a" {
		test.Fatalf("unexpected second page: %+v", second)
	}
	totals, err := store.SumEntriesByCategory(ctx, memberID)
	if err != nil || len(totals) != 1 || totals[0].Credits != 3 || totals[0].Debits != 0 {
		test.Fatalf("unexpected totals: %+v (%v)", totals, err)
	}
}
