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
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// candidate is one opened connection under evaluation. Its status is
// computed on first use and then cached. It is owned by a single Select
// call, so no locking is needed.
type candidate struct {
	conn    conn.Conn
	checker health.Checker
	timeout time.Duration

	checked bool
	status  health.Status
}

func newCandidate(c conn.Conn, checker health.Checker, timeout time.Duration) *candidate {
	return &candidate{
		conn:    c,
		checker: checker,
		timeout: timeout,
	}
}

func (c *candidate) Status(ctx context.Context) health.Status {
	if !c.checked {
		c.status = c.checker.CheckStatus(ctx, c.conn, c.timeout)
		c.checked = true
	}
	return c.status
}

// release closes the connection. Close errors are only logged: they
// must not replace the outcome of the selection.
func (c *candidate) release(logger log.Logger) {
	if err := c.conn.Close(); err != nil {
		level.Debug(logger).Log(
			"msg", "failed to close discarded connection",
			"addr", c.conn.Address(),
			"err", err,
		)
	}
}

// bestCandidate returns the index of the best ranked candidate whose
// status is at least minimum, or -1 if there is none. The first of
// equally ranked candidates wins.
func bestCandidate(ctx context.Context, candidates []*candidate, minimum health.Status) int {
	best := -1
	for i, c := range candidates {
		status := c.Status(ctx)
		if !status.AtLeast(minimum) {
			continue
		}
		if best < 0 || status > candidates[best].Status(ctx) {
			best = i
		}
	}
	return best
}
