package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/domain"
	_ "modernc.org/sqlite"
)

// Open abre la base SQLite con busy_timeout y WAL. SQLite admite un único
// escritor, así que el pool se limita a una conexión.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	return db, nil
}

// Executor es lo que comparten *sql.DB y *sql.Tx.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Pick devuelve la transacción del llamador si existe, o la base.
func Pick(db *sql.DB, tx domain.Tx) Executor {
	if tx != nil {
		return tx
	}
	return db
}

// IsMissingTable detecta "no such table" (esquema aún no migrado).
func IsMissingTable(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "no such table")
}

// MapError traduce errores de SQLite a errores de dominio.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if IsMissingTable(err) {
		return fmt.Errorf("%w: %v", domain.ErrStorageNotProvisioned, err)
	}
	return fmt.Errorf("db error: %w", err)
}

// Las fechas se guardan como INTEGER en milisegundos UTC.
func ToMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func FromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func FromNullMillis(ms sql.NullInt64) *time.Time {
	if !ms.Valid {
		return nil
	}
	t := FromMillis(ms.Int64)
	return &t
}
