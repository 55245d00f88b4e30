// Package database owns the MySQL connection pool and the session and
// transaction scopes handed out from it.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"

	"storefront/internal/config"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "database").Logger()

// ErrRollback marks an error whose transaction could not be rolled back.
var ErrRollback = errors.New("rollback failed")

type PoolOptions struct {
	Size           int
	MaxIdle        int
	AcquireTimeout time.Duration
}

// Pool is a bounded set of MySQL sessions. Waiters queue inside database/sql
// once Size sessions are checked out.
type Pool struct {
	db             *sql.DB
	acquireTimeout time.Duration
	checkedOut     atomic.Int64
}

func NewPool(db *sql.DB, opts PoolOptions) *Pool {
	if opts.Size <= 0 {
		opts.Size = 10
	}
	if opts.MaxIdle <= 0 || opts.MaxIdle > opts.Size {
		opts.MaxIdle = opts.Size
	}
	db.SetMaxOpenConns(opts.Size)
	db.SetMaxIdleConns(opts.MaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &Pool{db: db, acquireTimeout: opts.AcquireTimeout}
}

// DSN builds the driver data source name. The lock wait timeout is applied as
// a session variable on every new connection.
func DSN(c config.DB) string {
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(c.Host, c.Port)
	mc.DBName = c.Name
	mc.ParseTime = true
	mc.Loc = time.UTC
	// TIMESTAMP columns are read back as UTC
	mc.Params = map[string]string{"time_zone": "'+00:00'"}
	if c.LockWaitTimeout > 0 {
		secs := int(math.Ceil(c.LockWaitTimeout.Seconds()))
		mc.Params["innodb_lock_wait_timeout"] = strconv.Itoa(secs)
	}
	return mc.FormatDSN()
}

// Open connects to MySQL, retrying the ping until the server answers or the
// retries run out.
func Open(ctx context.Context, c config.DB) (*Pool, error) {
	db, err := sql.Open("mysql", DSN(c))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", c, err)
	}

	retries := max(c.ConnectRetries, 1)
	for i := 0; i < retries; i++ {
		err = db.PingContext(ctx)
		if err == nil {
			logger.Info().Msgf("Connected to DB %s", c)
			return NewPool(db, PoolOptions{Size: c.PoolSize, MaxIdle: c.MaxIdle, AcquireTimeout: c.AcquireTimeout}), nil
		}
		logger.Warn().Err(err).Msgf("Retry %d: failed to connect to DB %s", i+1, c)

		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(c.RetryInterval):
		}
	}
	db.Close()
	return nil, fmt.Errorf("failed to connect to DB %s after %d retries: %w", c, retries, err)
}

// DB exposes the pool for single statements that need no session affinity.
func (p *Pool) DB() *sql.DB { return p.db }

// CheckedOut is the number of sessions acquired and not yet released.
func (p *Pool) CheckedOut() int64 { return p.checkedOut.Load() }

func (p *Pool) Close() error { return p.db.Close() }

// Acquire borrows a session, waiting at most the configured acquire timeout.
// The caller must Release it; prefer WithSession.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	if p.acquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.acquireTimeout)
		defer cancel()
	}
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire session: %w", err)
	}
	p.checkedOut.Add(1)
	return &Session{conn: conn, pool: p}, nil
}

// WithSession runs fn with a borrowed session and releases it on every exit
// path, including a panic inside fn.
func (p *Pool) WithSession(ctx context.Context, fn func(s *Session) error) error {
	s, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer s.Release()
	return fn(s)
}

// Session is one connection checked out of a Pool.
type Session struct {
	conn *sql.Conn
	pool *Pool
	once sync.Once
}

// Release returns the connection to the pool. Calls after the first are no-ops.
func (s *Session) Release() {
	s.once.Do(func() {
		if err := s.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			logger.Error().Err(err).Msg("Error releasing session")
		}
		s.pool.checkedOut.Add(-1)
	})
}

// RunInTransaction commits when fn returns nil and rolls back otherwise. A
// failed rollback is joined to fn's error rather than replacing it.
func (s *Session) RunInTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logger.Error().Err(rbErr).Msg("Error rolling back transaction")
			return errors.Join(err, fmt.Errorf("%w: %v", ErrRollback, rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
