package leader

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// PostgresLocker uses a session-level advisory lock. The lock lives on one
// dedicated connection; closing that connection releases it.
type PostgresLocker struct {
	db     *sql.DB
	lockID int64

	mu   sync.Mutex
	conn *sql.Conn
}

var _ Locker = (*PostgresLocker)(nil)

func NewPostgresLocker(db *sql.DB, lockID int64) *PostgresLocker {
	return &PostgresLocker{db: db, lockID: lockID}
}

func (p *PostgresLocker) TryAcquire(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		return true, nil
	}

	conn, err := p.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("leader connection: %w", err)
	}

	var ok bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, p.lockID).Scan(&ok); err != nil {
		conn.Close()
		return false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !ok {
		conn.Close()
		return false, nil
	}
	p.conn = conn
	return true, nil
}

func (p *PostgresLocker) Release(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return ErrNotHeld
	}
	conn := p.conn
	p.conn = nil
	defer conn.Close()

	var ok bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_advisory_unlock($1)`, p.lockID).Scan(&ok); err != nil {
		return fmt.Errorf("advisory unlock: %w", err)
	}
	if !ok {
		return ErrNotHeld
	}
	return nil
}
