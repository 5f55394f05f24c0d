// Package database opens the SQL store used in offline mode and keeps its
// schema current with goose.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sync"

	"newstech/pkg/database/migrations"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// goose keeps its settings in package globals.
var gooseMu sync.Mutex

// Open connects and pings. driver is "sqlite" or "postgres".
func Open(ctx context.Context, driver, dsn string, log *zap.Logger) (*sql.DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("driver de banco desconhecido: %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("abrir conexão: %w", err)
	}
	if driver == DriverSQLite {
		// one writer at a time; an in-memory database also lives in a single connection
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping banco: %w", err)
	}

	log.Info("conexão com o banco estabelecida", zap.String("driver", driver))
	return db, nil
}

// Migrate applies every pending migration for driver.
func Migrate(ctx context.Context, db *sql.DB, driver string, log *zap.Logger) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	dir, err := setup(driver, log)
	if err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	return nil
}

// Version returns the schema version currently applied.
func Version(ctx context.Context, db *sql.DB, driver string) (int64, error) {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if _, err := setup(driver, nil); err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, db)
}

// Files lists the migration files embedded for driver.
func Files(driver string) ([]string, error) {
	return fs.Glob(migrations.FS, driver+"/*.sql")
}

func setup(driver string, log *zap.Logger) (string, error) {
	dialect := driver
	if driver == DriverSQLite {
		dialect = "sqlite3"
	}
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect(dialect); err != nil {
		return "", fmt.Errorf("goose dialect: %w", err)
	}
	if log == nil {
		goose.SetLogger(goose.NopLogger())
	} else {
		goose.SetLogger(gooseLogger{log.Sugar()})
	}
	return driver, nil
}

type gooseLogger struct{ s *zap.SugaredLogger }

func (l gooseLogger) Printf(format string, v ...interface{}) { l.s.Infof(format, v...) }
func (l gooseLogger) Fatalf(format string, v ...interface{}) { l.s.Fatalf(format, v...) }
