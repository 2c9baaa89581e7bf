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

package types

import (
	"fmt"
	"strconv"
	"strings"
)

// RowId is a K-sorted, globally unique row identifier. It is a distinct
// type over uint64, rather than an alias, so that a raw change_id or
// other unrelated counter can never be passed where a RowId is
// expected without a compiler error.
//
// From most to least significant bit: 42 bits of milliseconds since
// idalloc.Epoch, 10 bits of node id (0..1023), 12 bits of a
// per-millisecond sequence counter.
type RowId uint64

// NodeID extracts the 10-bit node id embedded in the RowId.
func (r RowId) NodeID() uint16 {
	return uint16((r >> 12) & 0x3FF)
}

// String renders the RowId as a base-10 integer, matching how it is
// serialized on the wire (a JSON number would lose precision above
// 2^53, so callers that marshal ChangeEntry by hand should prefer this
// form; the JSON codec in this package instead renders RowId as a
// decimal string, see MarshalJSON).
func (r RowId) String() string {
	return fmt.Sprintf("%d", uint64(r))
}

// MarshalJSON renders the RowId as a quoted decimal string. A bare JSON
// number would silently lose precision above 2^53 once decoded by a
// JavaScript client, so every RowId on the wire is a string, the same
// convention large-integer-id APIs (Snowflake, Twitter's id_str) use.
func (r RowId) MarshalJSON() ([]byte, error) {
	return []byte(`"` + r.String() + `"`), nil
}

// UnmarshalJSON accepts either a quoted decimal string or a bare JSON
// number, so the struct tolerates hand-written test fixtures that skip
// the quoting.
func (r *RowId) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid row_id %s: %w", data, err)
	}
	*r = RowId(v)
	return nil
}

// Op is the logical operation a ChangeEntry records.
type Op int

// The three operations ChangeCapture can emit.
const (
	OpInsert Op = iota + 1
	OpUpdate
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpInsert:
		return "INSERT"
	case OpUpdate:
		return "UPDATE"
	case OpDelete:
		return "DELETE"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// MarshalJSON renders Op using its wire name rather than its ordinal.
func (o Op) MarshalJSON() ([]byte, error) {
	return []byte(`"` + o.String() + `"`), nil
}

// UnmarshalJSON parses an Op from its wire name.
func (o *Op) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"INSERT"`:
		*o = OpInsert
	case `"UPDATE"`:
		*o = OpUpdate
	case `"DELETE"`:
		*o = OpDelete
	default:
		return fmt.Errorf("unknown op %s", data)
	}
	return nil
}
