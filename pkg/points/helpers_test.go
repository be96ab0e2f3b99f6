package points

import (
	"context"
	"sync"
	"testing"
	"time"
)

var testStartTime = time.Date(2026, time.October, 14, 9, 30, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (clock *fakeClock) Now() time.Time {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	clock.now = clock.now.Add(time.Millisecond)
	return clock.now
}

func (clock *fakeClock) Advance(duration time.Duration) {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	clock.now = clock.now.Add(duration)
}

type recorderLogger struct {
	mu      sync.Mutex
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	logger.entries = append(logger.entries, entry)
}

func (logger *recorderLogger) snapshot() []OperationLog {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	return append([]OperationLog(nil), logger.entries...)
}

type engineFixture struct {
	engine *Engine
	store  *stubStore
	clock  *fakeClock
	logger *recorderLogger
	admin  Caller
}

func newEngineFixture(test *testing.T, options ...EngineOption) *engineFixture {
	test.Helper()
	store := newStubStore()
	clock := newFakeClock(testStartTime)
	logger := &recorderLogger{}
	allOptions := append([]EngineOption{WithOperationLogger(logger), WithRetryPolicy(3, time.Millisecond)}, options...)
	engine, err := NewEngine(store, clock.Now, allOptions...)
	if err != nil {
		test.Fatalf("engine init failed: %v", err)
	}
	fixture := &engineFixture{engine: engine, store: store, clock: clock, logger: logger}
	fixture.admin = fixture.mustRegister(test, "admin-ada", true)
	return fixture
}

func (fixture *engineFixture) mustRegister(test *testing.T, rawID string, admin bool) Caller {
	test.Helper()
	caller := mustCaller(test, rawID, admin)
	if _, err := fixture.engine.RegisterMember(context.Background(), caller); err != nil {
		test.Fatalf("register %s: %v", rawID, err)
	}
	return caller
}

func (fixture *engineFixture) mustBalance(test *testing.T, caller Caller) Balance {
	test.Helper()
	balance, err := fixture.engine.GetBalance(context.Background(), caller)
	if err != nil {
		test.Fatalf("balance %s: %v", caller.MemberID, err)
	}
	return balance
}

func mustCaller(test *testing.T, rawID string, admin bool) Caller {
	test.Helper()
	caller, err := NewCaller(rawID, rawID, admin)
	if err != nil {
		test.Fatalf("caller %q: %v", rawID, err)
	}
	return caller
}

func mustMemberID(test *testing.T, raw string) MemberID {
	test.Helper()
	memberID, err := NewMemberID(raw)
	if err != nil {
		test.Fatalf("member id %q: %v", raw, err)
	}
	return memberID
}

func mustDate(test *testing.T, raw string) Date {
	test.Helper()
	date, err := ParseDate(raw, time.UTC)
	if err != nil {
		test.Fatalf("date %q: %v", raw, err)
	}
	return date
}

func mustIdempotencyKey(test *testing.T, raw string) IdempotencyKey {
	test.Helper()
	key, err := NewIdempotencyKey(raw)
	if err != nil {
		test.Fatalf("idempotency key %q: %v", raw, err)
	}
	return key
}

func mustRewardCode(test *testing.T, raw string) RewardCode {
	test.Helper()
	code, err := NewRewardCode(raw)
	if err != nil {
		test.Fatalf("reward code %q: %v", raw, err)
	}
	return code
}

func mustRateCardAlias(test *testing.T, raw string) RateCardAlias {
	test.Helper()
	alias, err := NewRateCardAlias(raw)
	if err != nil {
		test.Fatalf("rate card alias %q: %v", raw, err)
	}
	return alias
}
