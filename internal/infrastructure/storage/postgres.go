// Package storage implements the persistence ports on Postgres.
package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"MarketScanner/internal/config"
	"MarketScanner/internal/domain"
	"MarketScanner/internal/ports"
)

const connectPingTimeout = 5 * time.Second

// Postgres persists listings, assessments, notifications, and gate state.
type Postgres struct {
	db      *sqlx.DB
	builder squirrel.StatementBuilderType
}

var _ ports.GateStore = (*Postgres)(nil)
var _ ports.ListingStore = (*Postgres)(nil)
var _ ports.AssessmentStore = (*Postgres)(nil)
var _ ports.NotificationStore = (*Postgres)(nil)

// Connect opens a pooled connection and verifies it with a bounded ping.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime.Std())

	pingCtx, cancel := context.WithTimeout(ctx, connectPingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return db, nil
}

// NewPostgres wires an sqlx.DB implementation.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Ping reports whether the store is reachable.
func (p *Postgres) Ping(ctx context.Context) error {
	if p.db == nil {
		return nil
	}
	if err := p.db.PingContext(ctx); err != nil {
		return &domain.PersistenceError{Op: "ping", Unreachable: true, Err: err}
	}
	return nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	return &domain.PersistenceError{Op: op, Unreachable: isUnreachable(err), Err: err}
}

func isUnreachable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 08 = connection exception, 57 = operator intervention.
		switch pqErr.Code.Class() {
		case "08", "57":
			return true
		}
	}

	return false
}
