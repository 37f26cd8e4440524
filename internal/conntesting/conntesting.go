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

// Package conntesting provides fake connections and dialers for testing
// health checkers and routers without a database server.
package conntesting

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bufbuild/sqlcluster/conn"
	"github.com/bufbuild/sqlcluster/endpoint"
)

// FakeConn is an implementation of conn.Conn whose responses are scripted
// by the test. Queries with no scripted result return no rows.
//
// All methods are safe for concurrent use.
type FakeConn struct {
	addr endpoint.Address

	mu sync.Mutex
	// +checklocks:mu
	pingErr error
	// +checklocks:mu
	queryErr error
	// +checklocks:mu
	closeErr error
	// +checklocks:mu
	results map[string][]conn.Row
	// +checklocks:mu
	pings int
	// +checklocks:mu
	queries []string
	// +checklocks:mu
	closes int
}

var _ conn.Conn = (*FakeConn)(nil)

// NewFakeConn constructs a FakeConn connected to the given address that
// answers pings successfully and returns no rows for every query.
func NewFakeConn(addr endpoint.Address) *FakeConn {
	return &FakeConn{addr: addr, results: map[string][]conn.Row{}}
}

// WithRows scripts the rows returned for the given query.
func (c *FakeConn) WithRows(query string, rows ...conn.Row) *FakeConn {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[query] = rows
	return c
}

// FailPing makes subsequent pings return err. A nil err makes pings
// succeed again.
func (c *FakeConn) FailPing(err error) *FakeConn {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pingErr = err
	return c
}

// FailQuery makes subsequent queries return err.
func (c *FakeConn) FailQuery(err error) *FakeConn {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queryErr = err
	return c
}

// FailClose makes Close return err. The connection still counts as
// closed.
func (c *FakeConn) FailClose(err error) *FakeConn {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeErr = err
	return c
}

// Address implements the conn.Conn interface.
func (c *FakeConn) Address() endpoint.Address {
	return c.addr
}

// Ping implements the conn.Conn interface.
func (c *FakeConn) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings++
	return c.pingErr
}

// Query implements the conn.Conn interface.
func (c *FakeConn) Query(ctx context.Context, query string) ([]conn.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, query)
	if c.queryErr != nil {
		return nil, c.queryErr
	}
	return c.results[query], nil
}

// Close implements the conn.Conn interface.
func (c *FakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return c.closeErr
}

// Pings returns how many times Ping was called.
func (c *FakeConn) Pings() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pings
}

// Queries returns the queries issued so far, oldest first.
func (c *FakeConn) Queries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.queries...)
}

// Closes returns how many times Close was called.
func (c *FakeConn) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// ErrUnknownAddress is returned by FakeDialer for addresses it was not
// told about.
var ErrUnknownAddress = errors.New("fake dialer: unknown address")

// FakeDialer is a conn.Dialer that hands out pre-registered FakeConn
// values and records the order in which addresses were dialed.
type FakeDialer struct {
	mu sync.Mutex
	// +checklocks:mu
	conns map[endpoint.Address]*FakeConn
	// +checklocks:mu
	errs map[endpoint.Address]error
	// +checklocks:mu
	dialed []endpoint.Address
}

var _ conn.Dialer = (*FakeDialer)(nil)

// NewFakeDialer constructs a FakeDialer with no known addresses.
func NewFakeDialer() *FakeDialer {
	return &FakeDialer{
		conns: map[endpoint.Address]*FakeConn{},
		errs:  map[endpoint.Address]error{},
	}
}

// Add registers a new healthy FakeConn for addr and returns it so the
// test can script it further. Every dial of addr returns that same
// connection.
func (d *FakeDialer) Add(addr endpoint.Address) *FakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := NewFakeConn(addr)
	d.conns[addr] = c
	return c
}

// Fail makes dials of addr return err. If a connection was also added for
// addr, the dial returns both the connection and the error, simulating a
// transport that failed after partially establishing a session.
func (d *FakeDialer) Fail(addr endpoint.Address, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errs[addr] = err
}

// Dial implements the conn.Dialer interface.
func (d *FakeDialer) Dial(ctx context.Context, addr endpoint.Address) (conn.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialed = append(d.dialed, addr)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fakeConn, hasConn := d.conns[addr]
	err, hasErr := d.errs[addr]
	switch {
	case hasConn && hasErr:
		return fakeConn, err
	case hasErr:
		return nil, err
	case hasConn:
		return fakeConn, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAddress, addr)
	}
}

// Dialed returns every address dialed so far, in order.
func (d *FakeDialer) Dialed() []endpoint.Address {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]endpoint.Address(nil), d.dialed...)
}
