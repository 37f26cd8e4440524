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
	"database/sql/driver"

	"github.com/bufbuild/sqlcluster/conn"
	"github.com/bufbuild/sqlcluster/health"
	"github.com/bufbuild/sqlcluster/internal"
)

//nolint:gochecknoglobals
var ErrDeadEndpoint = errDeadEndpoint

func NewConn(c conn.Conn, checker health.Checker, opts Options, atOpen health.Status) *Conn {
	return newConn(c, checker, opts.normalize(), atOpen)
}

func NewDriverConn(c *Conn, clock internal.Clock) (driver.Conn, error) {
	driverConn, err := newDriverConn(c, clock, DefaultRevalidateInterval)
	if err != nil {
		return nil, err
	}
	return driverConn, nil
}

func NewTestConnector(router *Router, target *Target, clock internal.Clock) *Connector {
	return &Connector{
		driver:             NewDriver(),
		target:             target,
		router:             router,
		clock:              clock,
		revalidateInterval: DefaultRevalidateInterval,
	}
}
