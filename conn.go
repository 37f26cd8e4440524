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
	"time"

	"github.com/bufbuild/sqlcluster/conn"
	"github.com/bufbuild/sqlcluster/health"
)

// Conn is a connection chosen by a Router. It behaves like the connection
// it wraps, except that Ping re-runs the health check and fails once the
// endpoint is worse than the caller accepts or worse than it was when the
// connection was opened.
//
// A connection opened to a lagging replica therefore stays valid while
// the replica keeps lagging, but one opened to an up-to-date replica is
// reported invalid as soon as the replica starts lagging, even if lagging
// replicas would have been acceptable. Pools that discard invalid
// connections will then open a fresh one, which may be routed to a
// healthier endpoint.
type Conn struct {
	conn.Conn

	checker      health.Checker
	checkTimeout time.Duration
	minimum      health.Status
	atOpen       health.Status
}

func newConn(c conn.Conn, checker health.Checker, opts Options, atOpen health.Status) *Conn {
	return &Conn{
		Conn:         c,
		checker:      checker,
		checkTimeout: opts.CheckTimeout,
		minimum:      opts.MinimumStatus,
		atOpen:       atOpen,
	}
}

// Probe re-runs the health check and reports whether the connection is
// still acceptable. A timeout of zero means the check timeout the
// connection was opened with.
func (c *Conn) Probe(ctx context.Context, timeout time.Duration) bool {
	_, ok := c.probe(ctx, timeout)
	return ok
}

// Ping is like Probe with the connection's check timeout, but returns an
// *InvalidStatusError when the connection is no longer acceptable.
func (c *Conn) Ping(ctx context.Context) error {
	current, ok := c.probe(ctx, c.checkTimeout)
	if ok {
		return nil
	}
	return &InvalidStatusError{
		Address: c.Address(),
		Current: current,
		Minimum: c.minimum,
		AtOpen:  c.atOpen,
	}
}

// StatusAtOpen returns the status the connection had when it was selected.
func (c *Conn) StatusAtOpen() health.Status {
	return c.atOpen
}

// MinimumStatus returns the worst status the caller accepts.
func (c *Conn) MinimumStatus() health.Status {
	return c.minimum
}

// Unwrap returns the underlying connection.
func (c *Conn) Unwrap() conn.Conn {
	return c.Conn
}

func (c *Conn) probe(ctx context.Context, timeout time.Duration) (health.Status, bool) {
	if timeout <= 0 {
		timeout = c.checkTimeout
	}
	current := c.checker.CheckStatus(ctx, c.Conn, timeout)
	return current, current.AtLeast(c.minimum) && current.AtLeast(c.atOpen)
}
