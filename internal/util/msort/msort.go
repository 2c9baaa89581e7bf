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

// Package msort contains utility functions for sorting and
// de-duplicating batches of ChangeEntry values.
package msort

import (
	"github.com/systemizing-solutions/shuttle-bridge/internal/types"
)

// UniqueByRow implements a "last one wins" approach to collapsing
// ChangeEntry values that target the same (Table, RowID) within a
// single pulled batch. If two entries share a key, the one with the
// higher ChangeID is kept — a pulled batch already arrives ordered
// ascending by ChangeID, so this amounts to keeping the last-seen entry
// per row.
//
// The modified slice is returned.
func UniqueByRow(x []types.ChangeEntry) []types.ChangeEntry {
	type key struct {
		table string
		row   types.RowId
	}
	// For any given key, track the index in the slice that holds data
	// for that row.
	seenIdx := make(map[key]int, len(x))

	// Iterate backwards, moving elements to the rear when their
	// ChangeID is greater than the value currently tracked for that
	// key.
	dest := len(x)
	for src := len(x) - 1; src >= 0; src-- {
		k := key{x[src].Table, x[src].RowID}

		if curIdx, found := seenIdx[k]; found {
			if x[src].ChangeID > x[curIdx].ChangeID {
				x[curIdx] = x[src]
			}
		} else {
			dest--
			seenIdx[k] = dest
			x[dest] = x[src]
		}
	}

	return x[dest:]
}
