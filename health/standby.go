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
	"errors"
	"time"

	"github.com/bufbuild/sqlcluster/conn"
	"github.com/spf13/cast"
)

// StandbyStatusQuery is the status query issued by the standby lag
// checker.
const StandbyStatusQuery = `SELECT pg_is_in_recovery() AS in_recovery,
	EXISTS (SELECT 1 FROM pg_stat_wal_receiver WHERE status = 'streaming') AS streaming,
	EXTRACT(EPOCH FROM (now() - pg_last_xact_replay_timestamp()))::float8 AS lag_seconds`

var errNoStandbyStatus = errors.New("standby status query returned no rows")

// NewStandbyLagChecker returns a checker for PostgreSQL servers that may
// be hot standbys.
//
// A server that is not in recovery is a primary and is StatusOK. A
// standby whose WAL receiver is not streaming is StatusStopped. A
// streaming standby is StatusOK when its last replayed transaction is at
// most maxLagSeconds old and StatusBehind otherwise, including when
// nothing has been replayed yet. A negative maxLagSeconds selects
// DefaultMaxLag.
//
// Replay lag is measured against the commit time of the last replayed
// transaction, so a standby of an idle primary appears to fall behind.
func NewStandbyLagChecker(maxLagSeconds int) Checker {
	if maxLagSeconds < 0 {
		maxLagSeconds = DefaultMaxLag
	}
	return &standbyLagChecker{maxLag: float64(maxLagSeconds)}
}

type standbyLagChecker struct {
	maxLag float64
}

func (s *standbyLagChecker) CheckStatus(ctx context.Context, c conn.Conn, timeout time.Duration) Status {
	return check(ctx, c, timeout, func(ctx context.Context) (Status, error) {
		rows, err := c.Query(ctx, StandbyStatusQuery)
		if err != nil {
			return StatusDead, err
		}
		if len(rows) == 0 {
			return StatusDead, errNoStandbyStatus
		}
		row := rows[0]
		inRecovery, err := cast.ToBoolE(row["in_recovery"])
		if err != nil {
			return StatusDead, err
		}
		if !inRecovery {
			return StatusOK, nil
		}
		if streaming, _ := cast.ToBoolE(row["streaming"]); !streaming {
			return StatusStopped, nil
		}
		value := row["lag_seconds"]
		if value == nil {
			return StatusBehind, nil
		}
		lag, err := cast.ToFloat64E(value)
		if err != nil || lag > s.maxLag {
			return StatusBehind, nil //nolint:nilerr // unreadable lag counts as too far behind
		}
		return StatusOK, nil
	})
}
