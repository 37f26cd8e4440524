// Copyright 2023-2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sqlcluster

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bufbuild/sqlcluster/internal"
)

// DefaultRevalidateInterval is how long a pooled connection's last health
// verdict is trusted before it is checked again on reuse.
const DefaultRevalidateInterval = 500 * time.Millisecond

var (
	errNoDriverConn  = errors.New("connection does not expose a database/sql driver connection")
	errTxUnsupported = errors.New("driver connection does not support transaction options")
)

// driverConn adapts a Conn to database/sql. Statements go straight to the
// underlying driver connection; validity and pings go through the Conn.
//
// The health check runs when database/sql reuses a pooled connection, and
// at most once per revalidation interval. IsValid only reports the last
// verdict.
type driverConn struct {
	driver.Conn

	chosen   *Conn
	clock    internal.Clock
	interval time.Duration

	mu        sync.Mutex
	valid     bool
	checkedAt time.Time
}

var (
	_ driver.Conn               = (*driverConn)(nil)
	_ driver.Validator          = (*driverConn)(nil)
	_ driver.Pinger             = (*driverConn)(nil)
	_ driver.QueryerContext     = (*driverConn)(nil)
	_ driver.ExecerContext      = (*driverConn)(nil)
	_ driver.ConnPrepareContext = (*driverConn)(nil)
	_ driver.ConnBeginTx        = (*driverConn)(nil)
	_ driver.SessionResetter    = (*driverConn)(nil)
	_ driver.NamedValueChecker  = (*driverConn)(nil)
)

// newDriverConn wraps chosen, which was just checked, so its first
// revalidation is due one interval from now.
func newDriverConn(chosen *Conn, clock internal.Clock, interval time.Duration) (*driverConn, error) {
	underlying, ok := chosen.Unwrap().(interface{ DriverConn() driver.Conn })
	if !ok {
		_ = chosen.Close()
		return nil, fmt.Errorf("%s: %w", chosen.Address(), errNoDriverConn)
	}
	return &driverConn{
		Conn:      underlying.DriverConn(),
		chosen:    chosen,
		clock:     clock,
		interval:  interval,
		valid:     true,
		checkedAt: clock.Now(),
	}, nil
}

// IsValid implements driver.Validator. It never touches the network: it
// reports the last health verdict and, if the underlying connection is
// itself a validator, whether that connection is still usable.
func (c *driverConn) IsValid() bool {
	c.mu.Lock()
	valid := c.valid
	c.mu.Unlock()
	if !valid {
		return false
	}
	if validator, ok := c.Conn.(driver.Validator); ok {
		return validator.IsValid()
	}
	return true
}

// Ping implements driver.Pinger. It always runs the health check. An
// unacceptable status is reported as a bad connection, so that
// database/sql discards the connection.
func (c *driverConn) Ping(ctx context.Context) error {
	err := c.chosen.Ping(ctx)
	c.record(err == nil)
	if err != nil {
		return fmt.Errorf("%w: %w", driver.ErrBadConn, err)
	}
	return nil
}

// revalidate re-runs the health check if the last verdict is older than
// the revalidation interval, and reports the current verdict.
func (c *driverConn) revalidate(ctx context.Context) error {
	c.mu.Lock()
	due := c.valid && c.clock.Since(c.checkedAt) >= c.interval
	valid := c.valid
	c.mu.Unlock()
	if due {
		err := c.chosen.Ping(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.record(err == nil)
		if err != nil {
			return fmt.Errorf("%w: %w", driver.ErrBadConn, err)
		}
		return nil
	}
	if !valid {
		return fmt.Errorf("%w: %s: endpoint health degraded", driver.ErrBadConn, c.chosen.Address())
	}
	return nil
}

func (c *driverConn) record(valid bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.valid = valid
	c.checkedAt = c.clock.Now()
}

func (c *driverConn) Close() error {
	return c.chosen.Close()
}

func (c *driverConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if queryer, ok := c.Conn.(driver.QueryerContext); ok {
		return queryer.QueryContext(ctx, query, args)
	}
	return nil, driver.ErrSkip
}

func (c *driverConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if execer, ok := c.Conn.(driver.ExecerContext); ok {
		return execer.ExecContext(ctx, query, args)
	}
	return nil, driver.ErrSkip
}

func (c *driverConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	if preparer, ok := c.Conn.(driver.ConnPrepareContext); ok {
		return preparer.PrepareContext(ctx, query)
	}
	return c.Conn.Prepare(query)
}

func (c *driverConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if beginner, ok := c.Conn.(driver.ConnBeginTx); ok {
		return beginner.BeginTx(ctx, opts)
	}
	if opts.Isolation != 0 || opts.ReadOnly {
		return nil, errTxUnsupported
	}
	return c.Conn.Begin() //nolint:staticcheck // fallback for drivers without BeginTx
}

// ResetSession implements driver.SessionResetter. database/sql calls it
// before reusing a pooled connection, which is when the connection's
// health is revalidated.
func (c *driverConn) ResetSession(ctx context.Context) error {
	if err := c.revalidate(ctx); err != nil {
		return err
	}
	if resetter, ok := c.Conn.(driver.SessionResetter); ok {
		return resetter.ResetSession(ctx)
	}
	return nil
}

func (c *driverConn) CheckNamedValue(value *driver.NamedValue) error {
	if checker, ok := c.Conn.(driver.NamedValueChecker); ok {
		return checker.CheckNamedValue(value)
	}
	return driver.ErrSkip
}
