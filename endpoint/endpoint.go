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

// Package endpoint defines the addresses of the database servers that a
// router chooses between.
package endpoint

import (
	"net"
	"strconv"
)

// Address identifies one database server. Two addresses are the same
// endpoint only if both the host (compared case-sensitively) and the port
// match. No name resolution is performed on the host.
type Address struct {
	Host string
	Port int
}

// String returns the address in "host:port" form, bracketing IPv6 hosts.
func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// Set is an ordered list of candidate addresses. Duplicates are allowed
// and are not collapsed.
type Set []Address

// Strings returns the "host:port" form of every address in the set, in
// order.
func (s Set) Strings() []string {
	strs := make([]string, len(s))
	for i, addr := range s {
		strs[i] = addr.String()
	}
	return strs
}
