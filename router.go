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
	"fmt"
	"strings"

	"github.com/bufbuild/sqlcluster/blacklist"
	"github.com/bufbuild/sqlcluster/conn"
	"github.com/bufbuild/sqlcluster/endpoint"
	"github.com/bufbuild/sqlcluster/health"
	"github.com/bufbuild/sqlcluster/internal"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Router selects the healthiest reachable endpoint of a cluster.
//
// A Router is safe for concurrent use. Each call to Select or Open works
// on its own connections; the only state shared between calls is the
// blacklist.
type Router struct {
	dialer    conn.Dialer
	blacklist *blacklist.Blacklist
	logger    log.Logger
	rand      *internal.LockedRand
}

// NewRouter returns a router that opens connections with the given dialer.
func NewRouter(dialer conn.Dialer, options ...RouterOption) *Router {
	var opts routerOptions
	for _, opt := range options {
		opt.apply(&opts)
	}
	opts.applyDefaults()
	return &Router{
		dialer:    dialer,
		blacklist: opts.blacklist,
		logger:    opts.logger,
		rand:      internal.NewLockedRand(opts.randSource),
	}
}

// Blacklist returns the blacklist the router records failing endpoints in.
func (r *Router) Blacklist() *blacklist.Blacklist {
	return r.blacklist
}

// Select opens a connection to the healthiest endpoint that is at least
// opts.MinimumStatus, along with the status it was found to have.
//
// Endpoints that are currently blacklisted are skipped. The rest are tried
// one at a time in random order. An endpoint that cannot be connected to,
// or whose health check reports it dead, is blacklisted. As soon as an
// endpoint reports health.StatusOK it is returned without trying the rest;
// otherwise the best of all tried endpoints is returned. Every connection
// opened along the way, other than the one returned, is closed before
// Select returns.
//
// If no endpoint qualifies, Select returns a *NoCandidateError. If ctx is
// done before an endpoint has been chosen, Select returns ctx.Err() and
// the endpoint being tried at that moment is not blacklisted.
func (r *Router) Select(
	ctx context.Context,
	endpoints endpoint.Set,
	checker health.Checker,
	opts Options,
) (conn.Conn, health.Status, error) {
	opts = opts.normalize()
	live := r.blacklist.Filter(endpoints)
	if len(live) == 0 {
		level.Info(r.logger).Log(
			"msg", "no candidates left after filtering blacklisted endpoints",
			"endpoints", strings.Join(endpoints.Strings(), ","),
		)
		return nil, health.StatusDead, &NoCandidateError{
			Endpoints: endpoints,
			Minimum:   opts.MinimumStatus,
		}
	}
	r.rand.Shuffle(len(live), func(i, j int) {
		live[i], live[j] = live[j], live[i]
	})

	var (
		attempted []endpoint.Address
		errs      []error
		accepted  []*candidate
	)
	defer func() {
		for _, c := range accepted {
			c.release(r.logger)
		}
	}()
	for _, addr := range live {
		if err := ctx.Err(); err != nil {
			return nil, health.StatusDead, err
		}
		attempted = append(attempted, addr)
		level.Debug(r.logger).Log("msg", "trying endpoint", "addr", addr)
		cand, err := r.open(ctx, addr, checker, opts)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, health.StatusDead, ctxErr
			}
			r.markFailed(addr, err)
			errs = append(errs, err)
			continue
		}
		status := cand.Status(ctx)
		level.Debug(r.logger).Log("msg", "checked endpoint", "addr", addr, "status", status)
		if status == health.StatusDead {
			if ctxErr := ctx.Err(); ctxErr != nil {
				cand.release(r.logger)
				return nil, health.StatusDead, ctxErr
			}
			err := fmt.Errorf("%s: %w", addr, errDeadEndpoint)
			r.markFailed(addr, err)
			errs = append(errs, err)
			cand.release(r.logger)
			continue
		}
		if status.Best() {
			return cand.conn, status, nil
		}
		accepted = append(accepted, cand)
	}

	best := bestCandidate(ctx, accepted, opts.MinimumStatus)
	if best < 0 {
		return nil, health.StatusDead, &NoCandidateError{
			Endpoints: endpoints,
			Attempted: attempted,
			Minimum:   opts.MinimumStatus,
			Errs:      errs,
		}
	}
	winner := accepted[best]
	accepted = append(accepted[:best], accepted[best+1:]...)
	return winner.conn, winner.Status(ctx), nil
}

// Open is like Select, but wraps the chosen connection so that it can be
// re-checked against the status it was opened with.
func (r *Router) Open(
	ctx context.Context,
	endpoints endpoint.Set,
	checker health.Checker,
	opts Options,
) (*Conn, error) {
	opts = opts.normalize()
	c, status, err := r.Select(ctx, endpoints, checker, opts)
	if err != nil {
		return nil, err
	}
	level.Debug(r.logger).Log("msg", "selected endpoint", "addr", c.Address(), "status", status)
	return newConn(c, checker, opts, status), nil
}

func (r *Router) open(
	ctx context.Context,
	addr endpoint.Address,
	checker health.Checker,
	opts Options,
) (*candidate, error) {
	dialCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	c, err := r.dialer.Dial(dialCtx, addr)
	if err != nil {
		if c != nil {
			newCandidate(c, checker, opts.CheckTimeout).release(r.logger)
		}
		return nil, &ConnectError{Address: addr, Err: err}
	}
	if c == nil {
		return nil, &ConnectError{Address: addr, Err: errNilConn}
	}
	return newCandidate(c, checker, opts.CheckTimeout), nil
}

func (r *Router) markFailed(addr endpoint.Address, err error) {
	r.blacklist.MarkFailed(addr)
	level.Info(r.logger).Log(
		"msg", "blacklisting endpoint",
		"addr", addr,
		"ttl", r.blacklist.TTL(),
		"err", err,
	)
}
