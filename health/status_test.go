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

package health_test

import (
	"testing"

	"github.com/bufbuild/sqlcluster/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusOrdering(t *testing.T) {
	t.Parallel()
	statuses := health.Statuses()
	require.Equal(t, []health.Status{health.StatusDead, health.StatusStopped, health.StatusBehind, health.StatusOK}, statuses)
	for i, a := range statuses {
		for j, b := range statuses {
			assert.Equal(t, i >= j, a.AtLeast(b), "%v.AtLeast(%v)", a, b)
			// exactly one of a<b, a==b, a>b holds
			assert.True(t, (a < b) != (a.AtLeast(b)), "%v vs %v", a, b)
		}
	}
	assert.True(t, health.StatusOK.Best())
	assert.False(t, health.StatusBehind.Best())
}

func TestStatusRanks(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0, int(health.StatusDead))
	assert.Equal(t, 1, int(health.StatusStopped))
	assert.Equal(t, 2, int(health.StatusBehind))
	assert.Equal(t, 3, int(health.StatusOK))
}

func TestParseStatus(t *testing.T) {
	t.Parallel()
	for _, status := range health.Statuses() {
		parsed, err := health.ParseStatus(status.String())
		require.NoError(t, err)
		assert.Equal(t, status, parsed)
	}
	parsed, err := health.ParseStatus("BEHIND")
	require.NoError(t, err)
	assert.Equal(t, health.StatusBehind, parsed)

	_, err = health.ParseStatus("healthy")
	require.Error(t, err)
	assert.Equal(t, "Status(7)", health.Status(7).String())
}
