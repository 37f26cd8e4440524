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

// Package mysqlconn opens connections to MySQL and MariaDB servers using
// github.com/go-sql-driver/mysql.
package mysqlconn

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/bufbuild/sqlcluster/conn"
	"github.com/bufbuild/sqlcluster/endpoint"
	"github.com/go-sql-driver/mysql"
	"golang.org/x/net/proxy"
)

// ProxyNetwork is the network name registered with the mysql driver for
// dials that go through the proxy configured in the environment.
const ProxyNetwork = "sqlcluster+proxy"

var (
	errNoQueryer = errors.New("mysql connection does not support queries without prepared statements")
	errNoPinger  = errors.New("mysql connection does not support ping")

	registerProxyOnce sync.Once //nolint:gochecknoglobals
)

// Option is an option used to customize a Dialer.
type Option interface {
	apply(*Dialer)
}

// WithProxyFromEnvironment makes the dialer connect through the proxy
// named by the ALL_PROXY environment variable (or all_proxy), honouring
// NO_PROXY. Hosts are then resolved by the proxy. If no proxy is
// configured, connections are made directly.
func WithProxyFromEnvironment() Option {
	return optionFunc(func(d *Dialer) {
		registerProxyOnce.Do(func() {
			mysql.RegisterDialContext(ProxyNetwork, dialProxy)
		})
		d.network = ProxyNetwork
	})
}

// Dialer opens connections to individual servers, sharing every setting
// but the address.
type Dialer struct {
	template *mysql.Config
	network  string
}

var _ conn.Dialer = (*Dialer)(nil)

// NewDialer returns a dialer that connects with the settings in template.
// The template's Net and Addr are ignored. The template is copied, so it
// may be modified afterwards.
func NewDialer(template *mysql.Config, options ...Option) *Dialer {
	dialer := &Dialer{
		template: template.Clone(),
		network:  "tcp",
	}
	for _, opt := range options {
		opt.apply(dialer)
	}
	return dialer
}

// Dial implements conn.Dialer. If ctx has a deadline, it bounds both the
// TCP connection and the handshake.
func (d *Dialer) Dial(ctx context.Context, addr endpoint.Address) (conn.Conn, error) {
	cfg := d.template.Clone()
	cfg.Net = d.network
	cfg.Addr = addr.String()
	if deadline, ok := ctx.Deadline(); ok {
		if timeout := time.Until(deadline); timeout > 0 {
			cfg.Timeout = timeout
		}
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, err
	}
	driverConn, err := connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &Conn{addr: addr, driverConn: driverConn}, nil
}

// Conn is a connection to a single server.
type Conn struct {
	addr       endpoint.Address
	driverConn driver.Conn
}

var _ conn.Conn = (*Conn)(nil)

// NewConn wraps an already established driver connection.
func NewConn(addr endpoint.Address, driverConn driver.Conn) *Conn {
	return &Conn{addr: addr, driverConn: driverConn}
}

// Address implements conn.Conn.
func (c *Conn) Address() endpoint.Address {
	return c.addr
}

// Ping implements conn.Conn.
func (c *Conn) Ping(ctx context.Context) error {
	pinger, ok := c.driverConn.(driver.Pinger)
	if !ok {
		return errNoPinger
	}
	return pinger.Ping(ctx)
}

// Query implements conn.Conn. Text and binary columns are returned as
// strings, NULL as nil, and other values as the driver decoded them.
func (c *Conn) Query(ctx context.Context, query string) ([]conn.Row, error) {
	queryer, ok := c.driverConn.(driver.QueryerContext)
	if !ok {
		return nil, errNoQueryer
	}
	rows, err := queryer.QueryContext(ctx, query, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()
	columns := rows.Columns()
	var result []conn.Row
	values := make([]driver.Value, len(columns))
	for {
		if err := rows.Next(values); err != nil {
			if errors.Is(err, io.EOF) {
				return result, nil
			}
			return nil, fmt.Errorf("read %q result: %w", query, err)
		}
		row := make(conn.Row, len(columns))
		for i, column := range columns {
			if b, ok := values[i].([]byte); ok {
				row[column] = string(b)
			} else {
				row[column] = values[i]
			}
		}
		result = append(result, row)
	}
}

// Close implements conn.Conn.
func (c *Conn) Close() error {
	return c.driverConn.Close()
}

// DriverConn returns the underlying database/sql driver connection.
func (c *Conn) DriverConn() driver.Conn {
	return c.driverConn
}

type optionFunc func(*Dialer)

func (f optionFunc) apply(d *Dialer) {
	f(d)
}

func dialProxy(ctx context.Context, addr string) (net.Conn, error) {
	dialer := proxy.FromEnvironment()
	if contextDialer, ok := dialer.(proxy.ContextDialer); ok {
		return contextDialer.DialContext(ctx, "tcp", addr)
	}
	return dialer.Dial("tcp", addr)
}
