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

// Package capture turns row mutations into ChangeEntry appends. It is
// invoked inline by a store's own insert/update/delete code path (there
// is no ORM event bus to subscribe to here); see Hooks.
package capture

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/systemizing-solutions/shuttle-bridge/internal/idalloc"
	"github.com/systemizing-solutions/shuttle-bridge/internal/mixin"
	"github.com/systemizing-solutions/shuttle-bridge/internal/types"
)

// Appender is the minimal surface capture needs against the engine's
// own changelog table. Implementations must append within the same
// transaction as the data write (the tx argument), so a rolled-back
// write leaves no orphaned ChangeEntry.
type Appender interface {
	Append(ctx context.Context, tx types.EngineQuerier, entry types.ChangeEntry) error
}

// Hooks implements the three capture points a store's write path calls
// into: BeforeInsert, BeforeUpdate, and AfterWrite.
type Hooks struct {
	NodeID   string
	Appender Appender
	Now      func() time.Time // overridable for tests; defaults to time.Now
}

func (h *Hooks) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

// BeforeInsert assigns an id (from the Allocator bound to ctx) if the
// row doesn't already carry one, and sets version=1, updated_at=now,
// deleted_at=nil. The returned map is the row to actually write.
func (h *Hooks) BeforeInsert(ctx context.Context, table string, row map[string]any) (map[string]any, error) {
	out := cloneRow(row)

	if _, ok := out["id"]; !ok || out["id"] == nil {
		alloc, err := idalloc.RequireFromContext(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "capturing insert into %s", table)
		}
		out["id"] = alloc.NextID()
	}
	out["version"] = uint64(1)
	out["updated_at"] = h.now()
	out["deleted_at"] = nil
	return out, nil
}

// BeforeUpdate computes the dirty columns between pre and the proposed
// post image, by comparing values rather than merely checking which
// keys were assigned (an assignment that reinstates the identical value
// must not count as dirty). If every dirty column is a system column
// (mixin.IsSystemColumn), the update is classified as non-meaningful: no
// version bump, no capture. Otherwise version is bumped and the update
// is marked meaningful.
func (h *Hooks) BeforeUpdate(pre, proposed map[string]any) (dirty []string, meaningful bool, post map[string]any) {
	post = cloneRow(proposed)

	for col, newVal := range proposed {
		oldVal, existed := pre[col]
		if existed && valuesEqual(oldVal, newVal) {
			continue
		}
		dirty = append(dirty, col)
	}

	meaningful = false
	for _, col := range dirty {
		if !mixin.IsSystemColumn(col) {
			meaningful = true
			break
		}
	}

	if meaningful {
		prevVersion, _ := pre["version"].(uint64)
		post["version"] = prevVersion + 1
		post["updated_at"] = h.now()
	}

	return dirty, meaningful, post
}

// AfterWrite emits a ChangeEntry for a committed write, unless the
// write happened inside a capture-suppressed context (an apply of an
// incoming change, per Suppressed/IsSuppressed below) or was classified
// non-meaningful by BeforeUpdate.
func (h *Hooks) AfterWrite(
	ctx context.Context, tx types.EngineQuerier, table string, op types.Op,
	post map[string]any, capture bool,
) error {
	if !capture {
		return nil
	}
	if origin, suppressed := IsSuppressed(ctx); suppressed {
		log.WithFields(log.Fields{"table": table, "origin": origin}).
			Trace("capture: suppressed during apply")
		return nil
	}

	rowID, _ := post["id"].(types.RowId)
	version, _ := post["version"].(uint64)
	updatedAt, _ := post["updated_at"].(time.Time)

	entry := types.ChangeEntry{
		Table:        table,
		RowID:        rowID,
		Op:           op,
		Payload:      payloadFor(op, post),
		Version:      version,
		UpdatedAt:    updatedAt,
		OriginNodeID: h.NodeID,
		CapturedAt:   h.now(),
	}

	if err := h.Appender.Append(ctx, tx, entry); err != nil {
		return errors.Wrapf(err, "appending change entry for %s", table)
	}
	return nil
}

// payloadFor builds the ChangeEntry payload: the full post-image,
// except for DELETE where only row_id, deleted_at, and version survive.
func payloadFor(op types.Op, post map[string]any) map[string]any {
	if op != types.OpDelete {
		return cloneRow(post)
	}
	return map[string]any{
		"id":         post["id"],
		"deleted_at": post["deleted_at"],
		"version":    post["version"],
	}
}

func cloneRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func valuesEqual(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			return at.Equal(bt)
		}
		return false
	}
	return a == b
}

type suppressKey struct{}

// Suppressed returns a copy of ctx marking the current write as a sync
// apply rather than a locally authored mutation, carrying the
// originating node id so the (rare) store-level auto-timestamp trigger
// is correctly treated as non-meaningful rather than re-captured.
func Suppressed(ctx context.Context, originNodeID string) context.Context {
	return context.WithValue(ctx, suppressKey{}, originNodeID)
}

// IsSuppressed reports whether ctx was produced by Suppressed, and if
// so, which node originated the change being applied.
func IsSuppressed(ctx context.Context) (originNodeID string, ok bool) {
	v, ok := ctx.Value(suppressKey{}).(string)
	return v, ok
}
