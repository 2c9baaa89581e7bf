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

package msort_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/systemizing-solutions/shuttle-bridge/internal/types"
	"github.com/systemizing-solutions/shuttle-bridge/internal/util/msort"
)

func TestUniqueByRowKeepsLastByChangeID(t *testing.T) {
	in := []types.ChangeEntry{
		{ChangeID: 1, Table: "customers", RowID: types.RowId(1)},
		{ChangeID: 2, Table: "customers", RowID: types.RowId(2)},
		{ChangeID: 3, Table: "customers", RowID: types.RowId(1)},
	}

	out := msort.UniqueByRow(in)
	assert.Len(t, out, 2)

	byRow := make(map[types.RowId]types.ChangeEntry, len(out))
	for _, e := range out {
		byRow[e.RowID] = e
	}
	assert.Equal(t, uint64(3), byRow[types.RowId(1)].ChangeID)
	assert.Equal(t, uint64(2), byRow[types.RowId(2)].ChangeID)
}

func TestUniqueByRowDistinguishesTables(t *testing.T) {
	in := []types.ChangeEntry{
		{ChangeID: 1, Table: "customers", RowID: types.RowId(1)},
		{ChangeID: 2, Table: "orders", RowID: types.RowId(1)},
	}

	out := msort.UniqueByRow(in)
	assert.Len(t, out, 2)
}

func TestUniqueByRowEmptyInput(t *testing.T) {
	assert.Empty(t, msort.UniqueByRow(nil))
}
