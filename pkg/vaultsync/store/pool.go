package store

import (
	"context"
	"database/sql"
	"sync"
)

// connPool hands out database connections from a fixed-size pool.
//
// The pool bounds how many connections it retains, not how many exist:
// when every pooled slot is in use, acquire opens a transient
// connection instead of blocking, trading a small resource overshoot
// for forward progress. Released connections go back into the pool up
// to its capacity; excess connections are closed outright.
type connPool struct {
	db   *sql.DB
	size int

	mu   sync.Mutex
	idle []*sql.Conn
	lent int // pooled connections currently handed out
}

func newConnPool(db *sql.DB, size int) *connPool {
	if size < 1 {
		size = 1
	}
	return &connPool{
		db:   db,
		size: size,
		idle: make([]*sql.Conn, 0, size),
	}
}

// acquire returns a connection and whether it belongs to the pool.
// Transient connections (pooled=false) are closed on release.
func (p *connPool) acquire(ctx context.Context) (*sql.Conn, bool, error) {
	p.mu.Lock()

	if n := len(p.idle); n > 0 {
		conn := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.lent++
		p.mu.Unlock()
		return conn, true, nil
	}

	pooled := p.lent < p.size
	if pooled {
		// Reserve the slot before the potentially slow open.
		p.lent++
	}
	p.mu.Unlock()

	conn, err := p.db.Conn(ctx)
	if err != nil {
		if pooled {
			p.mu.Lock()
			p.lent--
			p.mu.Unlock()
		}
		return nil, false, err
	}
	return conn, pooled, nil
}

// release returns a connection to the pool, or closes it when the
// connection is transient or the pool is already at capacity.
func (p *connPool) release(conn *sql.Conn, pooled bool) {
	if conn == nil {
		return
	}
	if !pooled {
		conn.Close()
		return
	}

	p.mu.Lock()
	p.lent--
	if len(p.idle) < p.size {
		p.idle = append(p.idle, conn)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	conn.Close()
}

// outstanding reports how many pooled connections are currently lent.
func (p *connPool) outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lent
}

// close closes every idle connection. Lent connections are closed by
// their holders on release against an already-empty pool.
func (p *connPool) close() error {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.size = 0
	p.mu.Unlock()

	var firstErr error
	for _, conn := range idle {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
