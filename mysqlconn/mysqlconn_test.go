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

package mysqlconn_test

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/bufbuild/sqlcluster/conn"
	"github.com/bufbuild/sqlcluster/endpoint"
	"github.com/bufbuild/sqlcluster/mysqlconn"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//nolint:gochecknoglobals
var testAddr = endpoint.Address{Host: "db1", Port: 3306}

func TestConnQuery(t *testing.T) {
	t.Parallel()
	driverConn := &fakeDriverConn{
		columns: []string{"Variable_name", "Value", "Seconds_Behind_Master", "Count"},
		rows: [][]driver.Value{
			{[]byte("wsrep_ready"), []byte("ON"), nil, int64(7)},
			{[]byte("wsrep_connected"), []byte("OFF"), []byte("12"), int64(8)},
		},
	}
	c := mysqlconn.NewConn(testAddr, driverConn)
	rows, err := c.Query(context.Background(), "SHOW STATUS LIKE 'wsrep_%'")
	require.NoError(t, err)
	assert.Equal(t, []conn.Row{
		{"Variable_name": "wsrep_ready", "Value": "ON", "Seconds_Behind_Master": nil, "Count": int64(7)},
		{"Variable_name": "wsrep_connected", "Value": "OFF", "Seconds_Behind_Master": "12", "Count": int64(8)},
	}, rows)
	assert.Equal(t, []string{"SHOW STATUS LIKE 'wsrep_%'"}, driverConn.queries)
	assert.True(t, driverConn.rowsClosed)
}

func TestConnQueryNoRows(t *testing.T) {
	t.Parallel()
	driverConn := &fakeDriverConn{columns: []string{"Slave_IO_Running"}}
	rows, err := mysqlconn.NewConn(testAddr, driverConn).Query(context.Background(), "SHOW SLAVE STATUS")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestConnQueryErrors(t *testing.T) {
	t.Parallel()
	queryErr := errors.New("Error 1227: Access denied")
	driverConn := &fakeDriverConn{queryErr: queryErr}
	_, err := mysqlconn.NewConn(testAddr, driverConn).Query(context.Background(), "SHOW SLAVE STATUS")
	require.ErrorIs(t, err, queryErr)

	readErr := errors.New("unexpected EOF")
	driverConn = &fakeDriverConn{
		columns: []string{"Value"},
		rows:    [][]driver.Value{{[]byte("ON")}},
		nextErr: readErr,
	}
	_, err = mysqlconn.NewConn(testAddr, driverConn).Query(context.Background(), "SHOW STATUS")
	require.ErrorIs(t, err, readErr)
	assert.True(t, driverConn.rowsClosed)
}

func TestConnPingAndClose(t *testing.T) {
	t.Parallel()
	pingErr := errors.New("invalid connection")
	driverConn := &fakeDriverConn{pingErr: pingErr}
	c := mysqlconn.NewConn(testAddr, driverConn)
	assert.Equal(t, testAddr, c.Address())
	assert.Same(t, driverConn, c.DriverConn())
	require.ErrorIs(t, c.Ping(context.Background()), pingErr)
	assert.Equal(t, 1, driverConn.pings)

	require.NoError(t, c.Close())
	assert.True(t, driverConn.closed)
}

func TestConnRequiresDriverCapabilities(t *testing.T) {
	t.Parallel()
	c := mysqlconn.NewConn(testAddr, &minimalDriverConn{})
	require.Error(t, c.Ping(context.Background()))
	_, err := c.Query(context.Background(), "SELECT 1")
	require.Error(t, err)
}

func TestDialerConnectionRefused(t *testing.T) {
	t.Parallel()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	require.True(t, ok)
	require.NoError(t, listener.Close())

	dialer := mysqlconn.NewDialer(mysql.NewConfig())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c, err := dialer.Dial(ctx, endpoint.Address{Host: "127.0.0.1", Port: tcpAddr.Port})
	require.Error(t, err)
	assert.Nil(t, c)
}

func TestDialerHandshakeFailure(t *testing.T) {
	t.Parallel()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = listener.Close()
	})
	go func() {
		for {
			accepted, err := listener.Accept()
			if err != nil {
				return
			}
			_ = accepted.Close()
		}
	}()
	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	require.True(t, ok)

	dialer := mysqlconn.NewDialer(mysql.NewConfig())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = dialer.Dial(ctx, endpoint.Address{Host: "127.0.0.1", Port: tcpAddr.Port})
	require.Error(t, err)
}

func TestDialerOptions(t *testing.T) {
	t.Parallel()
	template := mysql.NewConfig()
	template.User = "app"
	assert.Equal(t, "tcp", mysqlconn.NewDialer(template).Network())
	assert.Equal(t, mysqlconn.ProxyNetwork, mysqlconn.NewDialer(template, mysqlconn.WithProxyFromEnvironment()).Network())
}

type fakeDriverConn struct {
	minimalDriverConn

	columns  []string
	rows     [][]driver.Value
	queryErr error
	nextErr  error
	pingErr  error

	queries    []string
	pings      int
	rowsClosed bool
}

func (c *fakeDriverConn) Ping(context.Context) error {
	c.pings++
	return c.pingErr
}

func (c *fakeDriverConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	c.queries = append(c.queries, query)
	if c.queryErr != nil {
		return nil, c.queryErr
	}
	return &fakeRows{conn: c, remaining: c.rows}, nil
}

type fakeRows struct {
	conn      *fakeDriverConn
	remaining [][]driver.Value
}

func (r *fakeRows) Columns() []string {
	return r.conn.columns
}

func (r *fakeRows) Close() error {
	r.conn.rowsClosed = true
	return nil
}

func (r *fakeRows) Next(dest []driver.Value) error {
	if len(r.remaining) == 0 {
		if r.conn.nextErr != nil {
			return r.conn.nextErr
		}
		return io.EOF
	}
	copy(dest, r.remaining[0])
	r.remaining = r.remaining[1:]
	return nil
}

// minimalDriverConn implements only the required driver.Conn methods.
type minimalDriverConn struct {
	closed bool
}

func (c *minimalDriverConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("not implemented")
}

func (c *minimalDriverConn) Close() error {
	c.closed = true
	return nil
}

func (c *minimalDriverConn) Begin() (driver.Tx, error) {
	return nil, errors.New("not implemented")
}
