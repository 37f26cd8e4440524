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

// Package health provides pluggable health checking for database
// connections.
//
// This package defines the ordered [Status] vocabulary and the [Checker]
// interface, which turns an open connection into a Status within a
// timeout. Checkers never fail: anything that goes wrong while checking,
// including the connection itself being broken, is reported as
// [StatusDead].
//
// Three protocol-specific checkers are included:
//
//   - [NewClusterMembershipChecker] for synchronously replicated clusters
//     (Galera), which look at the wsrep_ready status variable.
//   - [NewReplicaLagChecker] for MySQL and MariaDB read replicas, which
//     look at the replication threads and the replication lag.
//   - [NewStandbyLagChecker] for PostgreSQL hot standbys, which look at
//     the WAL receiver and the replay lag.
//
// Every checker first pings the connection and reports StatusDead without
// issuing its status query if the ping fails. Custom checkers can be
// supplied as long as they honor the same contract.
package health
