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

// Command sqlcluster-probe opens a number of connections to a cluster
// through the router, concurrently, and reports which endpoint each one
// went to, the status it had when opened and whether it is still valid.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/avast/retry-go/v4"
	"github.com/bufbuild/sqlcluster"
	"github.com/bufbuild/sqlcluster/health"
	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/jessevdk/go-flags"
	"golang.org/x/sync/errgroup"
)

func main() {
	p := flags.NewParser(&opts, flags.Default)
	if _, err := p.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	logger := setupLogger()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		level.Error(logger).Log("msg", "probe failed", "err", err)
		stop()
		os.Exit(1) //nolint:gocritic // stop is called explicitly above
	}
}

func setupLogger() kitlog.Logger {
	logger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
	if !opts.Verbose {
		logger = level.NewFilter(logger, level.AllowInfo())
	}
	return kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC)
}

func run(ctx context.Context, logger kitlog.Logger) error {
	if opts.Connections < 1 {
		return fmt.Errorf("--connections must be at least 1, got %d", opts.Connections)
	}
	target, err := sqlcluster.NewTarget(opts.DSN)
	if err != nil {
		return err
	}
	if opts.MinimumStatus != "" {
		status, err := health.ParseStatus(opts.MinimumStatus)
		if err != nil {
			return err
		}
		target.Options.MinimumStatus = status
	}
	level.Info(logger).Log(
		"msg", "probing cluster",
		"engine", target.Config.Engine,
		"topology", target.Config.Topology,
		"endpoints", len(target.Config.Endpoints),
		"minimum_status", target.Options.MinimumStatus,
	)
	router := sqlcluster.NewRouter(target.Dialer, sqlcluster.WithLogger(logger))

	conns := make([]*sqlcluster.Conn, opts.Connections)
	group, groupCtx := errgroup.WithContext(ctx)
	for i := range conns {
		group.Go(func() error {
			c, err := open(groupCtx, router, target, logger)
			if err != nil {
				return fmt.Errorf("connection %d: %w", i, err)
			}
			conns[i] = c
			return nil
		})
	}
	openErr := group.Wait()
	report(ctx, conns)
	closeAll(conns, logger)
	return openErr
}

func open(ctx context.Context, router *sqlcluster.Router, target *sqlcluster.Target, logger kitlog.Logger) (*sqlcluster.Conn, error) {
	return retry.DoWithData(
		func() (*sqlcluster.Conn, error) {
			return router.Open(ctx, target.Config.Endpoints, target.Checker, target.Options)
		},
		retry.Context(ctx),
		retry.Attempts(opts.Retries+1),
		retry.Delay(opts.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var noCandidate *sqlcluster.NoCandidateError
			return errors.As(err, &noCandidate)
		}),
		retry.OnRetry(func(attempt uint, err error) {
			level.Warn(logger).Log("msg", "no usable endpoint, retrying", "attempt", attempt+1, "err", err)
		}),
	)
}

func report(ctx context.Context, conns []*sqlcluster.Conn) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CONN\tENDPOINT\tSTATUS AT OPEN\tVALID")
	for i, c := range conns {
		if c == nil {
			fmt.Fprintf(w, "%d\t-\t-\t-\n", i)
			continue
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%t\n", i, c.Address(), c.StatusAtOpen(), c.Probe(ctx, 0))
	}
	_ = w.Flush()
}

func closeAll(conns []*sqlcluster.Conn, logger kitlog.Logger) {
	var group errgroup.Group
	for _, c := range conns {
		if c == nil {
			continue
		}
		group.Go(func() error {
			if err := c.Close(); err != nil {
				return fmt.Errorf("close connection to %s: %w", c.Address(), err)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		level.Warn(logger).Log("msg", "failed to close connection", "err", err)
	}
}
