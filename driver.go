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
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/bufbuild/sqlcluster/blacklist"
	"github.com/bufbuild/sqlcluster/internal"
)

// DriverName is the name the Driver is registered under with
// database/sql.
const DriverName = "sqlcluster"

//nolint:gochecknoglobals
var defaultDriver = NewDriver()

//nolint:gochecknoinits
func init() {
	sql.Register(DriverName, defaultDriver)
}

var errUnsupportedEngine = errors.New("only MySQL and MariaDB clusters can be used with database/sql")

// Driver is a database/sql driver for cluster DSNs. All connectors it
// creates share one blacklist, so that an endpoint found unreachable by
// one *sql.DB is skipped by the others.
//
// Only MySQL and MariaDB clusters are supported.
type Driver struct {
	blacklist *blacklist.Blacklist
}

var (
	_ driver.Driver        = (*Driver)(nil)
	_ driver.DriverContext = (*Driver)(nil)
)

// NewDriver returns a driver with its own blacklist. Most programs should
// use the driver registered as DriverName instead, through sql.Open.
func NewDriver() *Driver {
	return &Driver{blacklist: blacklist.New(blacklist.DefaultTTL)}
}

// Open implements driver.Driver.
func (d *Driver) Open(name string) (driver.Conn, error) {
	connector, err := d.NewConnector(name)
	if err != nil {
		return nil, err
	}
	return connector.Connect(context.Background())
}

// OpenConnector implements driver.DriverContext.
func (d *Driver) OpenConnector(name string) (driver.Connector, error) {
	return d.NewConnector(name)
}

// NewConnector returns a connector for the cluster described by name. The
// connector's router uses the driver's blacklist unless options say
// otherwise.
func (d *Driver) NewConnector(name string, options ...RouterOption) (*Connector, error) {
	target, err := NewTarget(name)
	if err != nil {
		return nil, err
	}
	if !target.Config.Engine.MySQLProtocol() {
		return nil, fmt.Errorf("%w: got %s", errUnsupportedEngine, target.Config.Engine)
	}
	options = append([]RouterOption{WithBlacklist(d.blacklist)}, options...)
	return &Connector{
		driver:             d,
		target:             target,
		router:             NewRouter(target.Dialer, options...),
		clock:              internal.NewRealClock(),
		revalidateInterval: DefaultRevalidateInterval,
	}, nil
}

// NewConnector returns a connector for the cluster described by name,
// created by the registered driver. Use it with sql.OpenDB to pass router
// options, such as a logger.
func NewConnector(name string, options ...RouterOption) (*Connector, error) {
	return defaultDriver.NewConnector(name, options...)
}

// Connector opens database/sql connections to the healthiest endpoint of
// a cluster. When database/sql takes one of its connections out of the
// pool, the endpoint's health is checked again, at most once every
// DefaultRevalidateInterval. A connection whose endpoint dropped below
// what it was when the connection was opened is reported as bad, so the
// pool closes it and opens a new one.
type Connector struct {
	driver             driver.Driver
	target             *Target
	router             *Router
	clock              internal.Clock
	revalidateInterval time.Duration
}

var _ driver.Connector = (*Connector)(nil)

// Connect implements driver.Connector.
func (c *Connector) Connect(ctx context.Context) (driver.Conn, error) {
	chosen, err := c.router.Open(ctx, c.target.Config.Endpoints, c.target.Checker, c.target.Options)
	if err != nil {
		return nil, err
	}
	driverConn, err := newDriverConn(chosen, c.clock, c.revalidateInterval)
	if err != nil {
		return nil, err
	}
	return driverConn, nil
}

// Driver implements driver.Connector.
func (c *Connector) Driver() driver.Driver {
	return c.driver
}

// Router returns the router the connector selects endpoints with.
func (c *Connector) Router() *Router {
	return c.router
}
