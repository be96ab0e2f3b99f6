package points

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAwardPointsStopsAtWeeklyAllowance(test *testing.T) {
	test.Parallel()
	fixture := newEngineFixture(test)
	bob := fixture.mustRegister(test, "bob", false)

	if _, err := fixture.engine.AwardPoints(context.Background(), fixture.admin, AwardRequest{MemberID: bob.MemberID, Points: 90, Reason: "big help"}); err != nil {
		test.Fatalf("award: %v", err)
	}
	_, err := fixture.engine.AwardPoints(context.Background(), fixture.admin, AwardRequest{MemberID: bob.MemberID, Points: 15, Reason: "more help"})
	var exceeded *AllowanceExceededError
	if !errors.As(err, &exceeded) {
		test.Fatalf("expected AllowanceExceededError, got %v", err)
	}
	if exceeded.Remaining != 10 || exceeded.Cap != DefaultWeeklyAllowance {
		test.Fatalf("unexpected allowance details: %+v", exceeded)
	}
	if exceeded.Week.String() != "2026-W42" {
		test.Fatalf("unexpected week %s", exceeded.Week)
	}
	if balance := fixture.mustBalance(test, bob); balance.Balance != 90 {
		test.Fatalf("rejected award must not credit, balance %d", balance.Balance)
	}
	if _, err := fixture.engine.AwardPoints(context.Background(), fixture.admin, AwardRequest{MemberID: bob.MemberID, Points: 10, Reason: "exactly the rest"}); err != nil {
		test.Fatalf("award of the remainder: %v", err)
	}
}

func TestAllowanceResetsOnNewWeek(test *testing.T) {
	test.Parallel()
	fixture := newEngineFixture(test)
	bob := fixture.mustRegister(test, "bob", false)
	if _, err := fixture.engine.AwardPoints(context.Background(), fixture.admin, AwardRequest{MemberID: bob.MemberID, Points: 100, Reason: "all of it"}); err != nil {
		test.Fatalf("award: %v", err)
	}

	fixture.clock.Advance(7 * 24 * time.Hour)
	status, err := fixture.engine.GetAllowanceRemaining(context.Background(), fixture.admin)
	if err != nil {
		test.Fatalf("allowance: %v", err)
	}
	if status.Week.String() != "2026-W43" || status.Remaining != DefaultWeeklyAllowance {
		test.Fatalf("expected a fresh week, got %+v", status)
	}
}

func TestAllowanceWeekFollowsConfiguredLocation(test *testing.T) {
	test.Parallel()
	location := time.FixedZone("UTC+3", 3*60*60)
	store := newStubStore()
	clock := newFakeClock(time.Date(2026, time.October, 18, 22, 0, 0, 0, time.UTC))
	engine, err := NewEngine(store, clock.Now, WithLocation(location), WithRetryPolicy(2, time.Millisecond))
	if err != nil {
		test.Fatalf("engine: %v", err)
	}
	admin := mustCaller(test, "admin", true)

	status, err := engine.GetAllowanceRemaining(context.Background(), admin)
	if err != nil {
		test.Fatalf("allowance: %v", err)
	}
	if status.Week.String() != "2026-W43" {
		test.Fatalf("Sunday 22:00 UTC is Monday in UTC+3, got %s", status.Week)
	}
}

func TestSetAllowanceCap(test *testing.T) {
	test.Parallel()
	fixture := newEngineFixture(test)
	other := fixture.mustRegister(test, "admin-bea", true)
	bob := fixture.mustRegister(test, "bob", false)

	if _, err := fixture.engine.SetAllowanceCap(context.Background(), fixture.admin, fixture.admin.MemberID, 500); !errors.Is(err, ErrPermissionDenied) {
		test.Fatalf("expected ErrPermissionDenied for own cap, got %v", err)
	}
	if _, err := fixture.engine.SetAllowanceCap(context.Background(), bob, other.MemberID, 500); !errors.Is(err, ErrPermissionDenied) {
		test.Fatalf("expected ErrPermissionDenied for member, got %v", err)
	}
	if _, err := fixture.engine.SetAllowanceCap(context.Background(), fixture.admin, other.MemberID, -1); !errors.Is(err, ErrInvalidPoints) {
		test.Fatalf("expected ErrInvalidPoints, got %v", err)
	}
	if _, err := fixture.engine.SetAllowanceCap(context.Background(), fixture.admin, other.MemberID, MaxPoints+1); !errors.Is(err, ErrInvalidPoints) {
		test.Fatalf("expected ErrInvalidPoints above the ceiling, got %v", err)
	}

	status, err := fixture.engine.SetAllowanceCap(context.Background(), fixture.admin, other.MemberID, 20)
	if err != nil {
		test.Fatalf("set cap: %v", err)
	}
	if status.Cap != 20 || status.Remaining != 20 {
		test.Fatalf("unexpected status: %+v", status)
	}
	_, err = fixture.engine.AwardPoints(context.Background(), other, AwardRequest{MemberID: bob.MemberID, Points: 21, Reason: "too much"})
	if !errors.Is(err, ErrAllowanceExceeded) {
		test.Fatalf("expected ErrAllowanceExceeded under the override, got %v", err)
	}
}

func TestListAllowanceUsageNewestWeekFirst(test *testing.T) {
	test.Parallel()
	fixture := newEngineFixture(test)
	other := fixture.mustRegister(test, "admin-bea", true)
	bob := fixture.mustRegister(test, "bob", false)
	if _, err := fixture.engine.AwardPoints(context.Background(), fixture.admin, AwardRequest{MemberID: bob.MemberID, Points: 30, Reason: "setup crew"}); err != nil {
		test.Fatalf("award: %v", err)
	}
	fixture.clock.Advance(7 * 24 * time.Hour)
	if _, err := fixture.engine.AwardPoints(context.Background(), fixture.admin, AwardRequest{MemberID: bob.MemberID, Points: 5, Reason: "cleanup"}); err != nil {
		test.Fatalf("award: %v", err)
	}

	usage, err := fixture.engine.ListAllowanceUsage(context.Background(), fixture.admin, MemberID{}, 0)
	if err != nil {
		test.Fatalf("usage: %v", err)
	}
	if len(usage) != 2 || usage[0].Week.String() != "2026-W43" || usage[0].Used != 5 || usage[1].Week.String() != "2026-W42" || usage[1].Used != 30 {
		test.Fatalf("unexpected usage: %+v", usage)
	}
	latest, err := fixture.engine.ListAllowanceUsage(context.Background(), other, fixture.admin.MemberID, 1)
	if err != nil {
		test.Fatalf("usage for another admin: %v", err)
	}
	if len(latest) != 1 || latest[0].Used != 5 {
		test.Fatalf("expected only the latest week, got %+v", latest)
	}
	if _, err := fixture.engine.ListAllowanceUsage(context.Background(), bob, MemberID{}, 0); !errors.Is(err, ErrPermissionDenied) {
		test.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if _, err := fixture.engine.ListAllowanceUsage(context.Background(), fixture.admin, MemberID{}, -1); !errors.Is(err, ErrInvalidLimit) {
		test.Fatalf("expected ErrInvalidLimit, got %v", err)
	}
}

func TestAllowanceQueriesRequireAdmin(test *testing.T) {
	test.Parallel()
	fixture := newEngineFixture(test)
	bob := fixture.mustRegister(test, "bob", false)

	if _, err := fixture.engine.GetAllowanceRemaining(context.Background(), bob); !errors.Is(err, ErrPermissionDenied) {
		test.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}
