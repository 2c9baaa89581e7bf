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

package syncengine

import (
	"time"

	"github.com/systemizing-solutions/shuttle-bridge/internal/types"
)

// Policy selects how SyncEngine resolves a conflict between an incoming
// ChangeEntry and the locally stored row it targets.
type Policy int

// The two supported conflict policies.
const (
	// PolicyLastWriteWins accepts an incoming entry if its
	// (version, updated_at) tuple compares greater than the local
	// row's; otherwise it is dropped silently.
	PolicyLastWriteWins Policy = iota

	// PolicyVersionStrict accepts an incoming entry iff its version is
	// exactly one greater than the local row's (or exactly 1 when no
	// local row exists yet); any other relationship surfaces
	// *types.VersionGap and stops the run.
	PolicyVersionStrict
)

// localState is the subset of a row's current state conflict resolution
// needs. A "ghost row" (no local row yet) is represented by
// Exists=false, Version=0.
type localState struct {
	Exists    bool
	Version   uint64
	UpdatedAt time.Time
}

// decide reports whether entry should be applied against local under
// policy. If not accepted under PolicyVersionStrict, the returned error
// is a *types.VersionGap; under PolicyLastWriteWins, a rejection is
// reported via accept=false with a nil error (the spec's "drop
// silently").
func decide(policy Policy, local localState, entry types.ChangeEntry) (accept bool, err error) {
	switch policy {
	case PolicyVersionStrict:
		var expected uint64 = 1
		if local.Exists {
			expected = local.Version + 1
		}
		if entry.Version != expected {
			return false, &types.VersionGap{
				Table:           entry.Table,
				ChangeID:        entry.ChangeID,
				RowID:           entry.RowID,
				LocalVersion:    local.Version,
				IncomingVersion: entry.Version,
			}
		}
		return true, nil

	default: // PolicyLastWriteWins
		if !local.Exists {
			return true, nil
		}
		switch {
		case entry.Version > local.Version:
			return true, nil
		case entry.Version == local.Version && entry.UpdatedAt.After(local.UpdatedAt):
			return true, nil
		default:
			return false, nil
		}
	}
}
