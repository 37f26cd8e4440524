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

// Package pgxconn opens connections to PostgreSQL servers using
// github.com/jackc/pgx/v5.
package pgxconn

import (
	"context"
	"time"

	"github.com/bufbuild/sqlcluster/conn"
	"github.com/bufbuild/sqlcluster/endpoint"
	"github.com/jackc/pgx/v5"
)

const closeTimeout = time.Second

// Dialer opens connections to individual servers, sharing every setting
// but the address.
type Dialer struct {
	template *pgx.ConnConfig
}

var _ conn.Dialer = (*Dialer)(nil)

// NewDialer returns a dialer that connects with the settings in template.
// The template's host, port and fallbacks are ignored. The template is
// copied, so it may be modified afterwards.
func NewDialer(template *pgx.ConnConfig) *Dialer {
	return &Dialer{template: template.Copy()}
}

// Dial implements conn.Dialer. If ctx has a deadline, it bounds the
// whole connection attempt.
func (d *Dialer) Dial(ctx context.Context, addr endpoint.Address) (conn.Conn, error) {
	cfg := d.template.Copy()
	cfg.Host = addr.Host
	cfg.Port = uint16(addr.Port) //nolint:gosec // ports are validated when parsed
	cfg.Fallbacks = nil
	if deadline, ok := ctx.Deadline(); ok {
		if timeout := time.Until(deadline); timeout > 0 {
			cfg.ConnectTimeout = timeout
		}
	}
	pgConn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Conn{addr: addr, pgConn: pgConn}, nil
}

// Conn is a connection to a single server.
type Conn struct {
	addr   endpoint.Address
	pgConn *pgx.Conn
}

var _ conn.Conn = (*Conn)(nil)

// Address implements conn.Conn.
func (c *Conn) Address() endpoint.Address {
	return c.addr
}

// Ping implements conn.Conn.
func (c *Conn) Ping(ctx context.Context) error {
	return c.pgConn.Ping(ctx)
}

// Query implements conn.Conn. Values are returned as decoded by pgx.
func (c *Conn) Query(ctx context.Context, query string) ([]conn.Row, error) {
	rows, err := c.pgConn.Query(ctx, query, pgx.QueryExecModeSimpleProtocol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (conn.Row, error) {
		values, err := row.Values()
		if err != nil {
			return nil, err
		}
		result := make(conn.Row, len(values))
		for i, field := range row.FieldDescriptions() {
			result[field.Name] = values[i]
		}
		return result, nil
	})
}

// Close implements conn.Conn. The server is told that the session is
// ending, but Close gives up waiting for it after a second.
func (c *Conn) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return c.pgConn.Close(ctx)
}

// PgxConn returns the underlying pgx connection.
func (c *Conn) PgxConn() *pgx.Conn {
	return c.pgConn
}
