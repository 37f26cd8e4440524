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

package sqlcluster_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bufbuild/sqlcluster"
	"github.com/bufbuild/sqlcluster/conn"
	"github.com/bufbuild/sqlcluster/endpoint"
	"github.com/bufbuild/sqlcluster/health"
	"github.com/bufbuild/sqlcluster/internal/conntesting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnValidity(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name    string
		minimum health.Status
		atOpen  health.Status
		current health.Status
		valid   bool
	}{
		{name: "unchanged ok", minimum: health.StatusStopped, atOpen: health.StatusOK, current: health.StatusOK, valid: true},
		{name: "ok fell behind", minimum: health.StatusStopped, atOpen: health.StatusOK, current: health.StatusBehind, valid: false},
		{name: "behind stays behind", minimum: health.StatusStopped, atOpen: health.StatusBehind, current: health.StatusBehind, valid: true},
		{name: "behind caught up", minimum: health.StatusStopped, atOpen: health.StatusBehind, current: health.StatusOK, valid: true},
		{name: "behind stopped", minimum: health.StatusStopped, atOpen: health.StatusBehind, current: health.StatusStopped, valid: false},
		{name: "stopped stays stopped", minimum: health.StatusStopped, atOpen: health.StatusStopped, current: health.StatusStopped, valid: true},
		{name: "died", minimum: health.StatusStopped, atOpen: health.StatusStopped, current: health.StatusDead, valid: false},
		{name: "below minimum", minimum: health.StatusOK, atOpen: health.StatusBehind, current: health.StatusBehind, valid: false},
		{name: "at minimum", minimum: health.StatusBehind, atOpen: health.StatusBehind, current: health.StatusBehind, valid: true},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			current := testCase.current
			checker := health.CheckerFunc(func(context.Context, conn.Conn, time.Duration) health.Status {
				return current
			})
			opts := sqlcluster.Options{MinimumStatus: testCase.minimum}
			chosen := sqlcluster.NewConn(conntesting.NewFakeConn(addrA), checker, opts, testCase.atOpen)
			assert.Equal(t, testCase.valid, chosen.Probe(context.Background(), time.Second))
			err := chosen.Ping(context.Background())
			if testCase.valid {
				require.NoError(t, err)
				return
			}
			var invalid *sqlcluster.InvalidStatusError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, testCase.current, invalid.Current)
			assert.Equal(t, testCase.minimum, invalid.Minimum)
			assert.Equal(t, testCase.atOpen, invalid.AtOpen)
			assert.Equal(t, addrA, invalid.Address)
		})
	}
}

func TestConnTracksEndpointHealth(t *testing.T) {
	t.Parallel()
	dialer := conntesting.NewFakeDialer()
	underlying := dialer.Add(addrA)
	checker := newStatusChecker(map[endpoint.Address]health.Status{
		addrA: health.StatusOK,
	})
	router := sqlcluster.NewRouter(dialer)

	chosen, err := router.Open(context.Background(), endpoint.Set{addrA}, checker, sqlcluster.DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, chosen.Ping(context.Background()))

	checker.set(addrA, health.StatusBehind)
	assert.False(t, chosen.Probe(context.Background(), 0))

	checker.set(addrA, health.StatusOK)
	assert.True(t, chosen.Probe(context.Background(), 0))

	underlying.FailPing(errors.New("server has gone away"))
	err = chosen.Ping(context.Background())
	var invalid *sqlcluster.InvalidStatusError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, health.StatusDead, invalid.Current)
	assert.Contains(t, err.Error(), "db-a:3306 is dead")
}

func TestConnProbeUsesCheckTimeout(t *testing.T) {
	t.Parallel()
	var timeouts []time.Duration
	checker := health.CheckerFunc(func(_ context.Context, _ conn.Conn, timeout time.Duration) health.Status {
		timeouts = append(timeouts, timeout)
		return health.StatusOK
	})
	opts := sqlcluster.Options{CheckTimeout: 250 * time.Millisecond}
	chosen := sqlcluster.NewConn(conntesting.NewFakeConn(addrA), checker, opts, health.StatusOK)

	assert.True(t, chosen.Probe(context.Background(), 0))
	assert.True(t, chosen.Probe(context.Background(), 5*time.Second))
	require.NoError(t, chosen.Ping(context.Background()))
	assert.Equal(t, []time.Duration{250 * time.Millisecond, 5 * time.Second, 250 * time.Millisecond}, timeouts)
}
