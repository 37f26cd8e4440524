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

package health

import (
	"fmt"
	"strings"
)

// Status is the health of a connection as seen by a Checker. Statuses are
// totally ordered by rank, worst first: StatusDead < StatusStopped <
// StatusBehind < StatusOK. Always compare statuses by rank (see AtLeast)
// rather than by name.
type Status int

const (
	// StatusDead means the connection itself is unusable: the server is
	// unreachable, the connection broke, or the check failed.
	StatusDead = Status(0)
	// StatusStopped means the server is reachable but replication or
	// cluster membership is not progressing.
	StatusStopped = Status(1)
	// StatusBehind means the server is working but is further behind its
	// source than the caller tolerates.
	StatusBehind = Status(2)
	// StatusOK means the server is caught up or cluster-ready.
	StatusOK = Status(3)
)

//nolint:gochecknoglobals
var (
	statusesInOrder = []Status{StatusDead, StatusStopped, StatusBehind, StatusOK}
)

// Statuses returns every status, worst first.
func Statuses() []Status {
	return append([]Status(nil), statusesInOrder...)
}

// AtLeast reports whether s ranks the same as or better than other.
func (s Status) AtLeast(other Status) bool {
	return s >= other
}

// Best reports whether s is the best possible status.
func (s Status) Best() bool {
	return s == StatusOK
}

func (s Status) String() string {
	switch s {
	case StatusDead:
		return "dead"
	case StatusStopped:
		return "stopped"
	case StatusBehind:
		return "behind"
	case StatusOK:
		return "ok"
	default:
		return fmt.Sprintf("Status(%d)", s)
	}
}

// ParseStatus returns the status with the given name, ignoring case.
func ParseStatus(name string) (Status, error) {
	for _, status := range statusesInOrder {
		if strings.EqualFold(name, status.String()) {
			return status, nil
		}
	}
	return StatusDead, fmt.Errorf("unknown health status %q", name)
}
