// Copyright 2023 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package mixin defines the struct-embedding contract a domain type
// must satisfy to be mirrored by this engine, the same way
// internal/types.PoolInfo is embedded by every connection pool type to
// pick up its shared fields.
package mixin

import (
	"time"

	"github.com/systemizing-solutions/shuttle-bridge/internal/types"
)

// Columns holds the four sync columns every mirrored entity carries.
// Embed it by value into a domain struct:
//
//	type Customer struct {
//	    mixin.Columns
//	    Name string
//	}
type Columns struct {
	ID        types.RowId `db:"id"`
	UpdatedAt time.Time   `db:"updated_at"`
	Version   uint64      `db:"version"`
	DeletedAt *time.Time  `db:"deleted_at"`
}

// Live reports whether the row has not been soft-deleted.
func (c Columns) Live() bool { return c.DeletedAt == nil }

// Entity is implemented by any struct embedding Columns (typically via
// a small generated or hand-written accessor pair on the domain type).
type Entity interface {
	SyncColumns() Columns
	SetSyncColumns(Columns)
}

// SystemColumnNames lists the column names Schema treats as system
// columns rather than domain data, matching spec's system/data column
// split used for dirty-field suppression.
var SystemColumnNames = []string{"id", "updated_at", "version", "deleted_at"}

// IsSystemColumn reports whether name is one of the four sync columns.
func IsSystemColumn(name string) bool {
	for _, c := range SystemColumnNames {
		if c == name {
			return true
		}
	}
	return false
}
