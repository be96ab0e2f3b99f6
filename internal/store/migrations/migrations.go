// Package migrations carries the versioned SQL schema of the points store and applies it with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	gooseDialectPostgres = "postgres"
	gooseDialectSQLite   = "sqlite3"
)

//go:embed postgres/*.sql sqlite/*.sql
var embedded embed.FS

// goose keeps its dialect and filesystem in package globals.
var gooseMu sync.Mutex

// Up applies every pending migration for dialect.
func Up(ctx context.Context, db *sql.DB, dialect string, logger *zap.Logger) error {
	directory, gooseDialect, err := resolveDialect(dialect)
	if err != nil {
		return err
	}
	gooseMu.Lock()
	defer gooseMu.Unlock()
	if err := configure(gooseDialect, logger); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, directory); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Version reports the latest applied migration.
func Version(ctx context.Context, db *sql.DB, dialect string, logger *zap.Logger) (int64, error) {
	_, gooseDialect, err := resolveDialect(dialect)
	if err != nil {
		return 0, err
	}
	gooseMu.Lock()
	defer gooseMu.Unlock()
	if err := configure(gooseDialect, logger); err != nil {
		return 0, err
	}
	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("goose version: %w", err)
	}
	return version, nil
}

// Files lists the embedded migration files of dialect in apply order.
func Files(dialect string) ([]string, error) {
	directory, _, err := resolveDialect(dialect)
	if err != nil {
		return nil, err
	}
	entries, err := embedded.ReadDir(directory)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, directory+"/"+entry.Name())
	}
	return names, nil
}

// Read returns the contents of one embedded migration file.
func Read(name string) (string, error) {
	contents, err := embedded.ReadFile(name)
	if err != nil {
		return "", err
	}
	return string(contents), nil
}

func configure(gooseDialect string, logger *zap.Logger) error {
	goose.SetBaseFS(embedded)
	if err := goose.SetDialect(gooseDialect); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	goose.SetLogger(gooseLogger{logger: logger.Sugar()})
	return nil
}

func resolveDialect(dialect string) (string, string, error) {
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case DialectPostgres:
		return DialectPostgres, gooseDialectPostgres, nil
	case DialectSQLite:
		return DialectSQLite, gooseDialectSQLite, nil
	default:
		return "", "", fmt.Errorf("unsupported migration dialect %q", dialect)
	}
}

type gooseLogger struct {
	logger *zap.SugaredLogger
}

func (adapter gooseLogger) Printf(format string, arguments ...interface{}) {
	adapter.logger.Infof(strings.TrimSpace(format), arguments...)
}

func (adapter gooseLogger) Fatalf(format string, arguments ...interface{}) {
	adapter.logger.Fatalf(strings.TrimSpace(format), arguments...)
}
