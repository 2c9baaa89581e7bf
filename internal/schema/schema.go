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

// Package schema introspects the set of mirrored entities and produces
// a topologically-sorted apply order so that incoming changes can be
// applied without violating foreign-key constraints.
package schema

import (
	"sort"

	"github.com/systemizing-solutions/shuttle-bridge/internal/mixin"
	"github.com/systemizing-solutions/shuttle-bridge/internal/types"
)

// ColumnDesc describes one column of a mirrored entity.
type ColumnDesc struct {
	Name string
	// ForeignKey is the name of the entity this column references, or
	// "" if the column is not a foreign key.
	ForeignKey string
}

// EntityDesc describes one mirrored entity as introspected from the
// store.
type EntityDesc struct {
	Name    string
	Columns []ColumnDesc
}

// Schema is the result of Build: every known entity, plus a
// topologically sorted apply order.
type Schema struct {
	Entities map[string]EntityDesc

	// ApplyOrder is a slice of independent groups: every entity in
	// group N only references entities in groups < N (or non-mirrored
	// tables). Entities within the same group have no FK relationship
	// to one another and may be applied in any order relative to each
	// other.
	ApplyOrder [][]string
}

// Build introspects entities and produces their topological apply
// order. It fails with *types.SchemaCycle if the FK graph among the
// given entities contains a cycle.
func Build(entities []EntityDesc) (*Schema, error) {
	byName := make(map[string]EntityDesc, len(entities))
	inDegree := make(map[string]int, len(entities))
	dependents := make(map[string][]string, len(entities))

	for _, e := range entities {
		byName[e.Name] = e
		if _, ok := inDegree[e.Name]; !ok {
			inDegree[e.Name] = 0
		}
	}

	for _, e := range entities {
		seenTargets := make(map[string]bool)
		for _, c := range e.Columns {
			if c.ForeignKey == "" || c.ForeignKey == e.Name {
				continue
			}
			if _, ok := byName[c.ForeignKey]; !ok {
				// References an entity outside the mirrored set; not
				// this package's concern to order against.
				continue
			}
			if seenTargets[c.ForeignKey] {
				continue
			}
			seenTargets[c.ForeignKey] = true
			inDegree[e.Name]++
			dependents[c.ForeignKey] = append(dependents[c.ForeignKey], e.Name)
		}
	}

	var order [][]string
	remaining := len(byName)
	degree := make(map[string]int, len(inDegree))
	for k, v := range inDegree {
		degree[k] = v
	}

	for remaining > 0 {
		var ready []string
		for name, d := range degree {
			if d == 0 {
				ready = append(ready, name)
			}
		}
		if len(ready) == 0 {
			// Cycle: whatever is left in degree has unsatisfied
			// dependencies.
			var cyclic []string
			for name := range degree {
				cyclic = append(cyclic, name)
			}
			sort.Strings(cyclic)
			return nil, &types.SchemaCycle{Entities: cyclic}
		}
		sort.Strings(ready) // deterministic group ordering
		order = append(order, ready)
		for _, name := range ready {
			delete(degree, name)
			remaining--
			for _, dep := range dependents[name] {
				degree[dep]--
			}
		}
	}

	return &Schema{Entities: byName, ApplyOrder: order}, nil
}

// SystemColumns returns the standard sync columns, in their canonical
// order.
func (s *Schema) SystemColumns() []string {
	return append([]string(nil), mixin.SystemColumnNames...)
}

// DataColumns returns the non-system columns declared for entity.
func (s *Schema) DataColumns(entity string) []string {
	e, ok := s.Entities[entity]
	if !ok {
		return nil
	}
	var out []string
	for _, c := range e.Columns {
		if !mixin.IsSystemColumn(c.Name) {
			out = append(out, c.Name)
		}
	}
	return out
}

// GroupIndex returns the ApplyOrder group index containing entity, or
// -1 if entity is unknown.
func (s *Schema) GroupIndex(entity string) int {
	for i, group := range s.ApplyOrder {
		for _, name := range group {
			if name == entity {
				return i
			}
		}
	}
	return -1
}
