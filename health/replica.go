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
	"strings"
	"time"

	"github.com/bufbuild/sqlcluster/conn"
	"github.com/spf13/cast"
)

const (
	// DefaultMaxLag is the replication lag, in seconds, that a replica may
	// have and still be StatusOK when no other limit is given.
	DefaultMaxLag = 2

	// SlaveStatusQuery is the replication status query understood by
	// MySQL before 8.4 and by MariaDB.
	SlaveStatusQuery = "SHOW SLAVE STATUS"
	// ReplicaStatusQuery is the replication status query understood by
	// MySQL 8.0.22 and later and by MariaDB 10.5 and later.
	ReplicaStatusQuery = "SHOW REPLICA STATUS"
)

//nolint:gochecknoglobals
var (
	ioRunningColumns  = []string{"Slave_IO_Running", "Replica_IO_Running"}
	sqlRunningColumns = []string{"Slave_SQL_Running", "Replica_SQL_Running"}
	lagColumns        = []string{"Seconds_Behind_Master", "Seconds_Behind_Source"}
)

// ReplicaLagOption is an option used to customize a replica lag checker.
type ReplicaLagOption interface {
	apply(*replicaLagChecker)
}

// WithReplicaStatusQuery configures the statement used to read the
// replication status. If no such option is provided, SlaveStatusQuery is
// used. Columns of both the older "Slave"/"Master" and the newer
// "Replica"/"Source" naming are recognized regardless of the query.
func WithReplicaStatusQuery(query string) ReplicaLagOption {
	return replicaLagOptionFunc(func(checker *replicaLagChecker) {
		checker.query = query
	})
}

// NewReplicaLagChecker returns a checker for MySQL or MariaDB read
// replicas.
//
// A server that returns no replication status is not a replica, and is
// assumed to be a healthy primary: StatusOK. For a replica, if either the
// I/O or the SQL replication thread is not running, the status is
// StatusStopped. If both run, the status is StatusOK when the replica is
// at most maxLagSeconds behind its source and StatusBehind otherwise. A
// lag that cannot be read, which happens briefly while replication
// stalls, is treated as exceeding the limit. A negative maxLagSeconds
// selects DefaultMaxLag.
func NewReplicaLagChecker(maxLagSeconds int, options ...ReplicaLagOption) Checker {
	if maxLagSeconds < 0 {
		maxLagSeconds = DefaultMaxLag
	}
	checker := &replicaLagChecker{
		maxLag: int64(maxLagSeconds),
		query:  SlaveStatusQuery,
	}
	for _, opt := range options {
		opt.apply(checker)
	}
	return checker
}

type replicaLagOptionFunc func(*replicaLagChecker)

func (f replicaLagOptionFunc) apply(checker *replicaLagChecker) {
	f(checker)
}

type replicaLagChecker struct {
	maxLag int64
	query  string
}

func (r *replicaLagChecker) CheckStatus(ctx context.Context, c conn.Conn, timeout time.Duration) Status {
	return check(ctx, c, timeout, func(ctx context.Context) (Status, error) {
		rows, err := c.Query(ctx, r.query)
		if err != nil {
			return StatusDead, err
		}
		if len(rows) == 0 {
			return StatusOK, nil
		}
		return r.replicaStatus(rows[0]), nil
	})
}

func (r *replicaLagChecker) replicaStatus(row conn.Row) Status {
	if !threadRunning(row, ioRunningColumns) || !threadRunning(row, sqlRunningColumns) {
		return StatusStopped
	}
	lag, ok := lagSeconds(row)
	if !ok || lag > r.maxLag {
		return StatusBehind
	}
	return StatusOK
}

func threadRunning(row conn.Row, columns []string) bool {
	value, ok := row.Lookup(columns...)
	if !ok {
		return false
	}
	running, err := cast.ToStringE(value)
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(running), "yes")
}

func lagSeconds(row conn.Row) (int64, bool) {
	value, ok := row.Lookup(lagColumns...)
	if !ok || value == nil {
		return 0, false
	}
	lag, err := cast.ToInt64E(value)
	if err != nil {
		return 0, false
	}
	return lag, true
}
