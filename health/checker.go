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

package health

import (
	"context"
	"time"

	"github.com/bufbuild/sqlcluster/conn"
)

//nolint:gochecknoglobals
var (
	// NopChecker is a checker that only verifies that the connection is
	// alive. It reports every live connection as StatusOK.
	NopChecker Checker = CheckerFunc(func(ctx context.Context, c conn.Conn, timeout time.Duration) Status {
		return check(ctx, c, timeout, func(context.Context) (Status, error) {
			return StatusOK, nil
		})
	})
)

// Checker computes the health status of a connection.
type Checker interface {
	// CheckStatus returns the current status of the given connection. The
	// check, including any queries it issues, must complete within the
	// given timeout. A timeout of zero or less sets no deadline of its own,
	// leaving the check bounded only by ctx. Implementations never return
	// an error: a timeout, a protocol error, or a broken connection is
	// reported as StatusDead.
	CheckStatus(ctx context.Context, conn conn.Conn, timeout time.Duration) Status
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context, conn conn.Conn, timeout time.Duration) Status

// CheckStatus implements Checker.
func (f CheckerFunc) CheckStatus(ctx context.Context, conn conn.Conn, timeout time.Duration) Status {
	return f(ctx, conn, timeout)
}

// check runs the liveness probe and then the protocol query under a single
// deadline, if timeout is positive. Any error collapses to StatusDead.
func check(
	ctx context.Context,
	c conn.Conn,
	timeout time.Duration,
	query func(context.Context) (Status, error),
) Status {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := c.Ping(ctx); err != nil {
		return StatusDead
	}
	status, err := query(ctx)
	if err != nil {
		return StatusDead
	}
	return status
}
