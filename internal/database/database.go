// Package database opens the PostgreSQL or SQLite database behind the points store.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/communitypoints/internal/store/migrations"
	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DialectPostgres = migrations.DialectPostgres
	DialectSQLite   = migrations.DialectSQLite

	defaultSQLitePath      = "points.db"
	sqliteMemoryPath       = ":memory:"
	postgresMaxOpenConns   = 25
	postgresConnMaxLife    = 30 * time.Minute
	pingTimeout            = 5 * time.Second
	sqliteBusyTimeoutMilli = 5000
)

// Config selects the database and how GORM logs against it.
type Config struct {
	URL        string
	GormLogger gormlogger.Interface
}

// Database bundles the GORM handle with the pool underneath it.
type Database struct {
	Gorm    *gorm.DB
	SQL     *sql.DB
	Dialect string
}

// Open connects to cfg.URL. postgres:// and postgresql:// URLs select PostgreSQL; sqlite:// URLs
// and bare paths select SQLite.
func Open(ctx context.Context, cfg Config) (*Database, error) {
	dialect, location, err := DetectDialect(cfg.URL)
	if err != nil {
		return nil, err
	}
	gormConfig := &gorm.Config{Logger: cfg.GormLogger}
	if gormConfig.Logger == nil {
		gormConfig.Logger = gormlogger.Discard
	}
	var database *Database
	switch dialect {
	case DialectPostgres:
		database, err = openPostgres(location, gormConfig)
	case DialectSQLite:
		database, err = openSQLite(location, gormConfig)
	default:
		err = fmt.Errorf("db: unsupported dialect %q", dialect)
	}
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := database.SQL.PingContext(pingCtx); err != nil {
		_ = database.SQL.Close()
		return nil, fmt.Errorf("db: ping: %w", err)
	}
	return database, nil
}

// Migrate applies the embedded goose migrations of the database's dialect.
func (database *Database) Migrate(ctx context.Context, logger *zap.Logger) error {
	return migrations.Up(ctx, database.SQL, database.Dialect, logger)
}

// SchemaVersion reports the latest applied migration.
func (database *Database) SchemaVersion(ctx context.Context, logger *zap.Logger) (int64, error) {
	return migrations.Version(ctx, database.SQL, database.Dialect, logger)
}

// Close releases the connection pool.
func (database *Database) Close() error {
	return database.SQL.Close()
}

// DetectDialect returns the dialect of dsn and the location to open: the DSN itself for
// PostgreSQL, a file path for SQLite.
func DetectDialect(dsn string) (string, string, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return "", "", fmt.Errorf("db: empty database url")
	}
	lower := strings.ToLower(trimmed)
	switch {
	case strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://"):
		return DialectPostgres, trimmed, nil
	case strings.HasPrefix(lower, "sqlite://"):
		parsed, err := url.Parse(trimmed)
		if err != nil {
			return "", "", fmt.Errorf("db: parse sqlite url: %w", err)
		}
		path := parsed.Host + parsed.Path
		if path == "" || path == "/" {
			path = defaultSQLitePath
		}
		return DialectSQLite, path, nil
	case strings.Contains(lower, "://"):
		return "", "", fmt.Errorf("db: unsupported database url %q", dsn)
	default:
		return DialectSQLite, trimmed, nil
	}
}

func openPostgres(dsn string, gormConfig *gorm.Config) (*Database, error) {
	connectionConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("db: parse dsn: %w", err)
	}
	sqlDB := stdlib.OpenDB(*connectionConfig)
	sqlDB.SetMaxOpenConns(postgresMaxOpenConns)
	sqlDB.SetMaxIdleConns(postgresMaxOpenConns)
	sqlDB.SetConnMaxLifetime(postgresConnMaxLife)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), gormConfig)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("db: open postgres: %w", err)
	}
	return &Database{Gorm: gormDB, SQL: sqlDB, Dialect: DialectPostgres}, nil
}

// openSQLite keeps a single pooled connection so transactions queue instead of hitting SQLITE_BUSY.
// Pragmas ride on the DSN so a reopened connection keeps them.
func openSQLite(path string, gormConfig *gorm.Config) (*Database, error) {
	if path != sqliteMemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("db: create sqlite dir: %w", err)
		}
	}
	gormDB, err := gorm.Open(sqlite.Open(sqliteDSN(path)), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("db: open sqlite: %w", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("db: open sqlite sql: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	return &Database{Gorm: gormDB, SQL: sqlDB, Dialect: DialectSQLite}, nil
}

func sqliteDSN(path string) string {
	pragmas := []string{
		fmt.Sprintf("_pragma=busy_timeout(%d)", sqliteBusyTimeoutMilli),
		"_pragma=foreign_keys(1)",
	}
	if path != sqliteMemoryPath {
		pragmas = append(pragmas, "_pragma=journal_mode(WAL)", "_pragma=synchronous(NORMAL)")
	}
	return "file:" + path + "?" + strings.Join(pragmas, "&")
}
