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

package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemizing-solutions/shuttle-bridge/internal/schema"
	"github.com/systemizing-solutions/shuttle-bridge/internal/types"
)

func TestApplyOrderParentsBeforeChildren(t *testing.T) {
	s, err := schema.Build([]schema.EntityDesc{
		{Name: "orders", Columns: []schema.ColumnDesc{
			{Name: "id"}, {Name: "customer_id", ForeignKey: "customers"},
		}},
		{Name: "customers", Columns: []schema.ColumnDesc{
			{Name: "id"}, {Name: "name"},
		}},
	})
	require.NoError(t, err)

	customerGroup := s.GroupIndex("customers")
	orderGroup := s.GroupIndex("orders")
	assert.Less(t, customerGroup, orderGroup)
}

func TestIndependentEntitiesShareAGroup(t *testing.T) {
	s, err := schema.Build([]schema.EntityDesc{
		{Name: "widgets"},
		{Name: "gadgets"},
	})
	require.NoError(t, err)
	require.Len(t, s.ApplyOrder, 1)
	assert.ElementsMatch(t, []string{"widgets", "gadgets"}, s.ApplyOrder[0])
}

func TestCycleDetection(t *testing.T) {
	_, err := schema.Build([]schema.EntityDesc{
		{Name: "a", Columns: []schema.ColumnDesc{{Name: "b_id", ForeignKey: "b"}}},
		{Name: "b", Columns: []schema.ColumnDesc{{Name: "a_id", ForeignKey: "a"}}},
	})
	require.Error(t, err)
	var cyc *types.SchemaCycle
	require.ErrorAs(t, err, &cyc)
	assert.ElementsMatch(t, []string{"a", "b"}, cyc.Entities)
}

func TestSelfReferenceIsNotACycle(t *testing.T) {
	_, err := schema.Build([]schema.EntityDesc{
		{Name: "categories", Columns: []schema.ColumnDesc{
			{Name: "parent_id", ForeignKey: "categories"},
		}},
	})
	require.NoError(t, err)
}

func TestDataColumnsExcludesSystemColumns(t *testing.T) {
	s, err := schema.Build([]schema.EntityDesc{
		{Name: "customers", Columns: []schema.ColumnDesc{
			{Name: "id"}, {Name: "updated_at"}, {Name: "version"}, {Name: "deleted_at"},
			{Name: "name"}, {Name: "email"},
		}},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"name", "email"}, s.DataColumns("customers"))
}
