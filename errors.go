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
	"errors"
	"fmt"
	"strings"

	"github.com/bufbuild/sqlcluster/endpoint"
	"github.com/bufbuild/sqlcluster/health"
)

var (
	errDeadEndpoint = errors.New("health check reported the endpoint dead")
	errNilConn      = errors.New("dialer returned neither a connection nor an error")
)

// ConnectError reports that a connection to an endpoint could not be
// established. The endpoint is blacklisted and selection moves on to the
// next candidate.
type ConnectError struct {
	Address endpoint.Address
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// NoCandidateError reports that selection found no usable endpoint: either
// every endpoint was blacklisted, or none of the endpoints attempted
// reached the minimum status.
type NoCandidateError struct {
	// Endpoints are the endpoints the caller asked to select from.
	Endpoints endpoint.Set
	// Attempted are the endpoints that were actually tried, in the order
	// they were tried. It is empty when every endpoint was blacklisted.
	Attempted []endpoint.Address
	// Minimum is the status that no attempted endpoint reached.
	Minimum health.Status
	// Errs are the reasons individual endpoints were rejected as
	// unusable: a *ConnectError for each failed connection attempt, and an
	// error for each endpoint whose health check reported it dead.
	Errs []error
}

func (e *NoCandidateError) Error() string {
	if len(e.Attempted) == 0 {
		if len(e.Endpoints) == 0 {
			return "no candidates: no endpoints given"
		}
		return fmt.Sprintf("no candidates: all endpoints are blacklisted: %s",
			strings.Join(e.Endpoints.Strings(), ", "))
	}
	return fmt.Sprintf("no valid endpoint found with status %v or better, attempted: %s",
		e.Minimum, strings.Join(endpoint.Set(e.Attempted).Strings(), ", "))
}

func (e *NoCandidateError) Unwrap() []error {
	return e.Errs
}

// InvalidStatusError is returned by Conn.Ping when the connection's health
// is no longer acceptable.
type InvalidStatusError struct {
	Address endpoint.Address
	// Current is the status just observed.
	Current health.Status
	// Minimum is the worst status the caller accepts.
	Minimum health.Status
	// AtOpen is the status the connection had when it was selected.
	AtOpen health.Status
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("connection to %s is %v, wanted at least %v (minimum %v, %v when opened)",
		e.Address, e.Current, max(e.Minimum, e.AtOpen), e.Minimum, e.AtOpen)
}
