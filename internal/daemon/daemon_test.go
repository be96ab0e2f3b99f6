package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/communitypoints/internal/logging"
	"github.com/MarkoPoloResearchLab/communitypoints/pkg/points"
	"go.uber.org/zap"
)

const testCatalog = `rewards:
  - code: coffee
    label: Coffee
    cost: 20
rate_card:
  - alias: newsletter
    name: Newsletter issue
    points: 10
`

func newTestConfig(test *testing.T) Config {
	test.Helper()
	return Config{
		DatabaseURL:       "sqlite://" + filepath.Join(test.TempDir(), "points.db"),
		HTTPListenAddr:    "127.0.0.1:0",
		GRPCListenAddr:    "127.0.0.1:0",
		SessionSigningKey: "session-secret",
		TokenSigningKey:   "token-secret",
		AdminIDs:          []string{"admin-ada"},
		GormLogLevel:      "silent",
	}
}

func TestConfigValidateAppliesDefaults(test *testing.T) {
	cfg := Config{}
	if err := cfg.Validate(); err != nil {
		test.Fatalf("validate: %v", err)
	}
	if cfg.DatabaseURL != defaultDatabaseURL || cfg.HTTPListenAddr != defaultHTTPListenAddr || cfg.GRPCListenAddr != defaultGRPCListenAddr {
		test.Fatalf("unexpected addresses %+v", cfg)
	}
	if cfg.SessionIssuer != defaultSessionIssuer || cfg.SessionCookieName != defaultSessionCookie || cfg.TokenIssuer != defaultTokenIssuer {
		test.Fatalf("unexpected auth defaults %+v", cfg)
	}
	if cfg.DefaultCapacity != points.DefaultCoworkingCapacity || cfg.CoworkingCost != points.DefaultCoworkingCost || cfg.WeeklyAllowance != points.DefaultWeeklyAllowance {
		test.Fatalf("unexpected engine defaults %+v", cfg)
	}
	if cfg.RetryAttempts != points.DefaultMaxAttempts || cfg.RequestTimeout != defaultRequestTimeout {
		test.Fatalf("unexpected retry or timeout defaults %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != defaultAllowedOrigin {
		test.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
	if cfg.GRPCEnabled() {
		test.Fatalf("gRPC must stay off without a token signing key")
	}
}

func TestConfigValidateRejectsBadValues(test *testing.T) {
	testCases := []struct {
		name   string
		mutate func(cfg *Config)
	}{
		{name: "negative capacity", mutate: func(cfg *Config) { cfg.DefaultCapacity = -1 }},
		{name: "negative cost", mutate: func(cfg *Config) { cfg.CoworkingCost = -2 }},
		{name: "negative allowance", mutate: func(cfg *Config) { cfg.WeeklyAllowance = -5 }},
		{name: "negative retries", mutate: func(cfg *Config) { cfg.RetryAttempts = -1 }},
		{name: "unknown time zone", mutate: func(cfg *Config) { cfg.TimeZone = "Mars/Olympus_Mons" }},
		{name: "unknown log level", mutate: func(cfg *Config) { cfg.Log = logging.Config{Level: "loud"} }},
		{name: "unknown gorm level", mutate: func(cfg *Config) { cfg.GormLogLevel = "chatty" }},
	}
	for _, testCase := range testCases {
		cfg := newTestConfig(test)
		testCase.mutate(&cfg)
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
			test.Fatalf("%s: expected ErrInvalidConfig, got %v", testCase.name, err)
		}
	}
}

func TestGRPCEnabled(test *testing.T) {
	testCases := []struct {
		name     string
		key      string
		addr     string
		expected bool
	}{
		{name: "key and address", key: "secret", addr: ":7000", expected: true},
		{name: "no key", key: "", addr: ":7000", expected: false},
		{name: "switched off", key: "secret", addr: "OFF", expected: false},
	}
	for _, testCase := range testCases {
		cfg := Config{TokenSigningKey: testCase.key, GRPCListenAddr: testCase.addr}
		if actual := cfg.GRPCEnabled(); actual != testCase.expected {
			test.Fatalf("%s: expected %v, got %v", testCase.name, testCase.expected, actual)
		}
	}
}

func TestParseList(test *testing.T) {
	testCases := []struct {
		raw      string
		expected []string
	}{
		{raw: "", expected: []string{}},
		{raw: "a", expected: []string{"a"}},
		{raw: " a , ,b ", expected: []string{"a", "b"}},
	}
	for _, testCase := range testCases {
		actual := ParseList(testCase.raw)
		if len(actual) != len(testCase.expected) {
			test.Fatalf("%q: expected %v, got %v", testCase.raw, testCase.expected, actual)
		}
		for index := range actual {
			if actual[index] != testCase.expected[index] {
				test.Fatalf("%q: expected %v, got %v", testCase.raw, testCase.expected, actual)
			}
		}
	}
}

func TestOpenMigratesAndAppliesCatalog(test *testing.T) {
	cfg := newTestConfig(test)
	cfg.CatalogFile = filepath.Join(test.TempDir(), "catalog.yaml")
	if err := os.WriteFile(cfg.CatalogFile, []byte(testCatalog), 0o600); err != nil {
		test.Fatalf("write catalog: %v", err)
	}
	cfg.TimeZone = "Europe/Berlin"

	runtime, err := Open(context.Background(), cfg, zap.NewNop())
	if err != nil {
		test.Fatalf("open: %v", err)
	}
	defer runtime.Close()

	if runtime.Engine.Location().String() != "Europe/Berlin" {
		test.Fatalf("unexpected engine location %s", runtime.Engine.Location())
	}
	rewards, err := runtime.Engine.ListRewards(context.Background(), false)
	if err != nil {
		test.Fatalf("list rewards: %v", err)
	}
	if len(rewards) != 1 || rewards[0].Code.String() != "COFFEE" {
		test.Fatalf("unexpected rewards %+v", rewards)
	}
	rateCard, err := runtime.Engine.ListRateCard(context.Background())
	if err != nil {
		test.Fatalf("list rate card: %v", err)
	}
	if len(rateCard) != 1 {
		test.Fatalf("unexpected rate card %+v", rateCard)
	}
}

func TestOpenReportsMissingCatalog(test *testing.T) {
	cfg := newTestConfig(test)
	cfg.CatalogFile = filepath.Join(test.TempDir(), "absent.yaml")
	if _, err := Open(context.Background(), cfg, zap.NewNop()); err == nil {
		test.Fatalf("expected missing catalog to fail startup")
	}
}

func TestMigrateReportsSchemaVersion(test *testing.T) {
	cfg := newTestConfig(test)
	version, err := Migrate(context.Background(), cfg, zap.NewNop())
	if err != nil {
		test.Fatalf("migrate: %v", err)
	}
	if version <= 0 {
		test.Fatalf("expected a positive schema version, got %d", version)
	}
	again, err := Migrate(context.Background(), cfg, zap.NewNop())
	if err != nil || again != version {
		test.Fatalf("expected idempotent migrate, got %d (%v)", again, err)
	}
}

func TestRunRequiresSessionSigningKey(test *testing.T) {
	cfg := newTestConfig(test)
	cfg.SessionSigningKey = ""
	if err := Run(context.Background(), cfg, zap.NewNop()); !errors.Is(err, ErrInvalidConfig) {
		test.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestServeStopsOnCancel(test *testing.T) {
	cfg := newTestConfig(test)
	runtime, err := Open(context.Background(), cfg, zap.NewNop())
	if err != nil {
		test.Fatalf("open: %v", err)
	}
	defer runtime.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runtime.Serve(ctx)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			test.Fatalf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		test.Fatalf("serve did not stop after cancel")
	}
}
