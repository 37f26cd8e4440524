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
	"fmt"
	"strconv"

	"github.com/bufbuild/sqlcluster/conn"
	"github.com/bufbuild/sqlcluster/dsn"
	"github.com/bufbuild/sqlcluster/health"
	"github.com/bufbuild/sqlcluster/mysqlconn"
	"github.com/bufbuild/sqlcluster/pgxconn"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
)

// Target is a cluster described by a DSN, ready to be routed to.
type Target struct {
	Config  *dsn.Config
	Dialer  conn.Dialer
	Checker health.Checker
	Options Options
}

// NewTarget parses a cluster DSN (see package dsn) and builds the dialer,
// health checker and options it describes.
func NewTarget(name string) (*Target, error) {
	cfg, err := dsn.Parse(name)
	if err != nil {
		return nil, err
	}
	dialer, err := newDialer(cfg)
	if err != nil {
		return nil, err
	}
	opts := Options{
		MinimumStatus:  cfg.MinimumStatus,
		CheckTimeout:   cfg.CheckTimeout,
		ConnectTimeout: cfg.ConnectTimeout,
	}
	return &Target{
		Config:  cfg,
		Dialer:  dialer,
		Checker: cfg.Checker(),
		Options: opts.normalize(),
	}, nil
}

func newDialer(cfg *dsn.Config) (conn.Dialer, error) {
	if cfg.Engine.MySQLProtocol() {
		template, err := mysqlConfig(cfg)
		if err != nil {
			return nil, err
		}
		var options []mysqlconn.Option
		if cfg.ProxyFromEnvironment {
			options = append(options, mysqlconn.WithProxyFromEnvironment())
		}
		return mysqlconn.NewDialer(template, options...), nil
	}
	if cfg.ProxyFromEnvironment {
		return nil, fmt.Errorf("%w: proxy is not supported for %s", dsn.ErrInvalidDSN, cfg.Engine)
	}
	template, err := pgxConfig(cfg)
	if err != nil {
		return nil, err
	}
	return pgxconn.NewDialer(template), nil
}

// mysqlConfig lets the mysql driver interpret the pass-through parameters,
// so that they mean the same as in a plain mysql DSN.
func mysqlConfig(cfg *dsn.Config) (*mysql.Config, error) {
	name := "tcp(127.0.0.1:3306)/"
	if len(cfg.Params) > 0 {
		name += "?" + cfg.Params.Encode()
	}
	parsed, err := mysql.ParseDSN(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dsn.ErrInvalidDSN, err)
	}
	parsed.User = cfg.User
	parsed.Passwd = cfg.Password
	parsed.DBName = cfg.Database
	if cfg.ConnectTimeout > 0 {
		parsed.Timeout = cfg.ConnectTimeout
	}
	return parsed, nil
}

// pgxConfig does the same for pgx, using its keyword/value syntax.
func pgxConfig(cfg *dsn.Config) (*pgx.ConnConfig, error) {
	settings := map[string]string{
		"host": cfg.Endpoints[0].Host,
		"port": strconv.Itoa(cfg.Endpoints[0].Port),
	}
	if cfg.User != "" {
		settings["user"] = cfg.User
	}
	if cfg.Password != "" {
		settings["password"] = cfg.Password
	}
	if cfg.Database != "" {
		settings["dbname"] = cfg.Database
	}
	for key := range cfg.Params {
		settings[key] = cfg.Params.Get(key)
	}
	var name string
	for key, value := range settings {
		if name != "" {
			name += " "
		}
		name += key + "=" + quoteSetting(value)
	}
	parsed, err := pgx.ParseConfig(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dsn.ErrInvalidDSN, err)
	}
	return parsed, nil
}

func quoteSetting(value string) string {
	quoted := []byte{'\''}
	for i := 0; i < len(value); i++ {
		if value[i] == '\'' || value[i] == '\\' {
			quoted = append(quoted, '\\')
		}
		quoted = append(quoted, value[i])
	}
	return string(append(quoted, '\''))
}
