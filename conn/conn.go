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

// Package conn defines the capabilities a database connection must offer
// so that its health can be checked, and the Dialer used to open one.
package conn

import (
	"context"

	"github.com/bufbuild/sqlcluster/endpoint"
)

// Conn is an open connection to a single database server.
type Conn interface {
	// Address is the endpoint to which this value is connected.
	Address() endpoint.Address
	// Ping is a lightweight liveness probe. It returns nil if the
	// connection is usable.
	Ping(ctx context.Context) error
	// Query runs a statement that takes no arguments and returns every
	// result row. It is meant for small status queries, not for
	// application traffic.
	Query(ctx context.Context, query string) ([]Row, error)
	// Close releases the connection.
	Close() error
}

// Dialer opens connections to individual endpoints. Any connect timeout is
// carried by the deadline of the given context.
type Dialer interface {
	Dial(ctx context.Context, addr endpoint.Address) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, addr endpoint.Address) (Conn, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, addr endpoint.Address) (Conn, error) {
	return f(ctx, addr)
}

// Row is one result row, keyed by column name. Textual column values
// are represented as strings and SQL NULL as nil.
type Row map[string]any

// Lookup returns the value of the first of the given columns that is
// present in the row. Servers rename status columns between versions, so
// callers may list several spellings of the same column.
func (r Row) Lookup(columns ...string) (value any, ok bool) {
	for _, column := range columns {
		if value, ok = r[column]; ok {
			return value, true
		}
	}
	return nil, false
}
