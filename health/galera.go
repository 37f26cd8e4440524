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

// WsrepReadyQuery is the status query issued by the cluster membership
// checker.
const WsrepReadyQuery = "SHOW STATUS LIKE 'wsrep_ready'"

// NewClusterMembershipChecker returns a checker for nodes of a Galera
// style synchronously replicated cluster. A node whose wsrep_ready
// variable is "ON" is StatusOK, any other value is StatusStopped. A node
// without the variable does not take part in cluster replication, for
// example a standalone server, and is assumed to be StatusOK.
func NewClusterMembershipChecker() Checker {
	return clusterMembershipChecker{}
}

type clusterMembershipChecker struct{}

func (clusterMembershipChecker) CheckStatus(ctx context.Context, c conn.Conn, timeout time.Duration) Status {
	return check(ctx, c, timeout, func(ctx context.Context) (Status, error) {
		rows, err := c.Query(ctx, WsrepReadyQuery)
		if err != nil {
			return StatusDead, err
		}
		if len(rows) == 0 {
			return StatusOK, nil
		}
		value, _ := rows[0].Lookup("Value", "VALUE", "value")
		ready, err := cast.ToStringE(value)
		if err != nil {
			return StatusStopped, nil //nolint:nilerr // an unreadable flag is not "on"
		}
		if strings.EqualFold(strings.TrimSpace(ready), "on") {
			return StatusOK, nil
		}
		return StatusStopped, nil
	})
}
