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
	"math/rand"
	"time"

	"github.com/bufbuild/sqlcluster/blacklist"
	"github.com/bufbuild/sqlcluster/health"
	"github.com/go-kit/log"
)

const (
	// DefaultCheckTimeout bounds each health check when Options does not
	// say otherwise.
	DefaultCheckTimeout = time.Second
	// DefaultConnectTimeout bounds each connection attempt when Options
	// does not say otherwise.
	DefaultConnectTimeout = 500 * time.Millisecond
)

// Options control a single selection.
type Options struct {
	// MinimumStatus is the worst status the caller accepts. Connections
	// opened below it are never returned, and connections returned are
	// reported invalid once they fall below it. Values below
	// health.StatusStopped are treated as health.StatusStopped, since a
	// dead connection is never usable.
	MinimumStatus health.Status
	// CheckTimeout bounds each health check, both during selection and
	// when the returned connection is probed. If zero,
	// DefaultCheckTimeout is used.
	CheckTimeout time.Duration
	// ConnectTimeout bounds each connection attempt. If zero,
	// DefaultConnectTimeout is used.
	ConnectTimeout time.Duration
}

// DefaultOptions returns the options used when the caller has no
// preferences: accept anything that is at least health.StatusStopped,
// one second per health check, and half a second per connection attempt.
func DefaultOptions() Options {
	return Options{
		MinimumStatus:  health.StatusStopped,
		CheckTimeout:   DefaultCheckTimeout,
		ConnectTimeout: DefaultConnectTimeout,
	}
}

func (o Options) normalize() Options {
	if o.MinimumStatus < health.StatusStopped {
		o.MinimumStatus = health.StatusStopped
	}
	if o.CheckTimeout <= 0 {
		o.CheckTimeout = DefaultCheckTimeout
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	return o
}

// RouterOption is an option used to customize the behavior of a Router.
type RouterOption interface {
	apply(*routerOptions)
}

// WithBlacklist configures the router to record and skip failing
// endpoints using the given blacklist. Routers that select among the same
// endpoints should share one blacklist. If no WithBlacklist option is
// provided, the router creates its own with blacklist.DefaultTTL.
func WithBlacklist(list *blacklist.Blacklist) RouterOption {
	return routerOptionFunc(func(opts *routerOptions) {
		opts.blacklist = list
	})
}

// WithLogger configures the logger that the router reports its progress
// to. Candidate-by-candidate progress is logged at debug level and
// blacklisting at info level. If no WithLogger option is provided,
// nothing is logged.
func WithLogger(logger log.Logger) RouterOption {
	return routerOptionFunc(func(opts *routerOptions) {
		opts.logger = logger
	})
}

// WithRandSource configures the source of randomness used to shuffle
// candidates. This is mainly useful to make the order reproducible in
// tests. If no WithRandSource option is provided, a randomly seeded
// source is used.
func WithRandSource(src rand.Source) RouterOption {
	return routerOptionFunc(func(opts *routerOptions) {
		opts.randSource = src
	})
}

type routerOptionFunc func(*routerOptions)

func (f routerOptionFunc) apply(opts *routerOptions) {
	f(opts)
}

type routerOptions struct {
	blacklist  *blacklist.Blacklist
	logger     log.Logger
	randSource rand.Source
}

func (opts *routerOptions) applyDefaults() {
	if opts.blacklist == nil {
		opts.blacklist = blacklist.New(blacklist.DefaultTTL)
	}
	if opts.logger == nil {
		opts.logger = log.NewNopLogger()
	}
}
