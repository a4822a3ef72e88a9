package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/domain"
)

// undefinedTable es el SQLSTATE de "relation does not exist".
const undefinedTable = "42P01"

// Open abre Postgres con el driver pgx de database/sql.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Executor es lo que comparten *sql.DB y *sql.Tx.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func Pick(db *sql.DB, tx domain.Tx) Executor {
	if tx != nil {
		return tx
	}
	return db
}

// IsMissingTable detecta la tabla inexistente (SQLSTATE 42P01).
func IsMissingTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == undefinedTable
}

// MapError traduce errores de Postgres a errores de dominio.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if IsMissingTable(err) {
		return fmt.Errorf("%w: %v", domain.ErrStorageNotProvisioned, err)
	}
	return fmt.Errorf("db error: %w", err)
}
