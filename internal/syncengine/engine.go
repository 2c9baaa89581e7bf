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

// Package syncengine drives the pull-then-push exchange of ChangeEntry
// batches with a single peer, applying conflict resolution and writing
// accepted changes into the local mirrored-entity tables.
package syncengine

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/systemizing-solutions/shuttle-bridge/internal/capture"
	"github.com/systemizing-solutions/shuttle-bridge/internal/schema"
	"github.com/systemizing-solutions/shuttle-bridge/internal/syncstate"
	"github.com/systemizing-solutions/shuttle-bridge/internal/types"
)

// defaultBatchSize matches the spec's default page size for both the
// pull and push legs of a run.
const defaultBatchSize = 500

// Transport is the wire boundary SyncEngine exchanges ChangeEntry
// batches across. Implementations never retry; the Engine wraps any
// failure they return (network, non-2xx, malformed body, canceled
// context) in a *types.TransportError.
type Transport interface {
	// Pull fetches up to limit entries from peerID's changelog with
	// ChangeID > sinceChangeID, ascending by ChangeID, excluding entries
	// authored by the local node.
	Pull(ctx context.Context, peerID string, sinceChangeID uint64, limit int) ([]types.ChangeEntry, error)

	// Push sends entries (all locally authored) to peerID and returns
	// the highest ChangeID the peer accepted, which may be lower than
	// the batch's tail on partial acceptance.
	Push(ctx context.Context, peerID string, entries []types.ChangeEntry) (highestAccepted uint64, err error)
}

// ChangeLog is the local append-only changelog SyncEngine reads from
// when assembling a push batch. It shares its Append method with
// capture.Appender since both write to the same table.
type ChangeLog interface {
	capture.Appender

	// Since returns up to limit entries authored by originNodeID with
	// ChangeID > afterChangeID, ascending by ChangeID. Used when reading
	// our own outgoing push batch.
	Since(ctx context.Context, tx types.EngineQuerier, originNodeID string, afterChangeID uint64, limit int) ([]types.ChangeEntry, error)

	// SinceExcluding returns up to limit entries NOT authored by
	// excludeOriginNodeID with ChangeID > afterChangeID, ascending by
	// ChangeID. Used when serving a peer's pull request, so that
	// changes relayed through us from every other origin (including
	// ones we didn't author ourselves) are redistributed, matching the
	// wire protocol's exclude_origin parameter.
	SinceExcluding(ctx context.Context, tx types.EngineQuerier, excludeOriginNodeID string, afterChangeID uint64, limit int) ([]types.ChangeEntry, error)
}

// PushDedup records which (origin node, row, version) triples have
// already been applied via an incoming push, so that a retried push
// (e.g. after the pusher timed out waiting for a response it had in
// fact already received) is a no-op rather than a VersionGap.
type PushDedup interface {
	// SeenAndRecord reports whether (originNodeID, rowID, version) was
	// already recorded, recording it if not, atomically.
	SeenAndRecord(ctx context.Context, originNodeID string, rowID types.RowId, version uint64) (alreadySeen bool, err error)
}

// Engine runs pull-then-push exchanges against one peer at a time. A
// single Engine value is reused across peers and across runs.
type Engine struct {
	NodeID    string
	Transport Transport
	States    syncstate.Store
	Rows      types.RowStore
	Log       ChangeLog
	Dedup     PushDedup
	Pool      *types.EnginePool
	Schema    *schema.Schema
	Policy    Policy
	BatchSize int

	// Now is overridable in tests; defaults to time.Now.
	Now func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) batchSize() int {
	if e.BatchSize > 0 {
		return e.BatchSize
	}
	return defaultBatchSize
}

// PullThenPush runs one full exchange with peerID: first draining
// everything the peer has for us, then draining everything we have for
// the peer. It returns the number of entries applied (pulled) and sent
// (pushed) before any error, plus that error. A *types.VersionGap or
// *types.ApplyFailed always stops the run at the offending entry; the
// peer's watermark is left so that a later call resumes at that entry.
func (e *Engine) PullThenPush(ctx context.Context, peerID string) (pulled, pushed int, err error) {
	pulled, err = e.pull(ctx, peerID)
	if err != nil {
		return pulled, 0, err
	}
	pushed, err = e.push(ctx, peerID)
	return pulled, pushed, err
}

func (e *Engine) pull(ctx context.Context, peerID string) (int, error) {
	state, err := e.States.Load(ctx, peerID)
	if err != nil {
		return 0, errors.Wrap(err, "loading sync state")
	}

	applied := 0
	for {
		timer := prometheusTimer(pullDurations.WithLabelValues(peerID))
		batch, err := e.Transport.Pull(ctx, peerID, state.LastPulledChangeID, e.batchSize())
		timer()
		if err != nil {
			pullErrors.WithLabelValues(peerID).Inc()
			return applied, &types.TransportError{Op: "pull", Cause: err}
		}
		if len(batch) == 0 {
			return applied, nil
		}

		done := make(map[uint64]bool, len(batch))
		for _, group := range e.groupByApplyOrder(batch) {
			for _, entry := range group {
				if entry.OriginNodeID == e.NodeID {
					done[entry.ChangeID] = true
					if entry.ChangeID > state.LastPulledChangeID {
						state.LastPulledChangeID = entry.ChangeID
					}
					continue
				}

				accepted, err := e.applyOne(ctx, entry)
				if err != nil {
					// Stop just below the lowest ChangeID of this batch not
					// yet processed (the failed entry, or one reordered
					// after it), so a later call resumes there.
					resume := entry.ChangeID - 1
					for _, pending := range batch {
						if !done[pending.ChangeID] && pending.ChangeID-1 < resume {
							resume = pending.ChangeID - 1
						}
					}
					if advErr := e.States.AdvancePulled(ctx, peerID, resume); advErr != nil {
						logrus.WithError(advErr).Warn("failed to persist watermark before surfacing apply error")
					}
					return applied, err
				}
				done[entry.ChangeID] = true
				if accepted {
					applied++
					pullCount.WithLabelValues(peerID).Inc()
				} else {
					conflictsDropped.WithLabelValues(peerID).Inc()
				}
				// groupByApplyOrder reorders entries by table (parents
				// first), so the last entry processed in a batch is not
				// necessarily the one with the highest ChangeID; take
				// the max rather than the latest assignment.
				if entry.ChangeID > state.LastPulledChangeID {
					state.LastPulledChangeID = entry.ChangeID
				}
			}
		}

		if err := e.States.AdvancePulled(ctx, peerID, state.LastPulledChangeID); err != nil {
			return applied, errors.Wrap(err, "advancing pull watermark")
		}

		if len(batch) < e.batchSize() {
			return applied, nil
		}
	}
}

// groupByApplyOrder partitions batch into the schema's topologically
// sorted groups, preserving each table's ascending-ChangeID order.
// Within a group, entries are concatenated table by table in the
// group's name order, so the original across-table interleave is not
// kept. Tables absent from the schema are placed in one trailing group,
// in no particular table order.
func (e *Engine) groupByApplyOrder(batch []types.ChangeEntry) [][]types.ChangeEntry {
	if e.Schema == nil {
		return [][]types.ChangeEntry{batch}
	}

	byTable := make(map[string][]types.ChangeEntry)
	for _, entry := range batch {
		byTable[entry.Table] = append(byTable[entry.Table], entry)
	}

	var groups [][]types.ChangeEntry
	seen := make(map[string]bool)
	for _, tableGroup := range e.Schema.ApplyOrder {
		var group []types.ChangeEntry
		for _, table := range tableGroup {
			group = append(group, byTable[table]...)
			seen[table] = true
		}
		if len(group) > 0 {
			groups = append(groups, group)
		}
	}

	var leftover []types.ChangeEntry
	for table, entries := range byTable {
		if !seen[table] {
			leftover = append(leftover, entries...)
		}
	}
	if len(leftover) > 0 {
		groups = append(groups, leftover)
	}
	return groups
}

// applyOne resolves conflicts for entry against local state and, if
// accepted, upserts its payload under capture suppression so the write
// does not re-enter the local changelog.
func (e *Engine) applyOne(ctx context.Context, entry types.ChangeEntry) (accepted bool, err error) {
	tx, err := e.Rows.Begin(ctx)
	if err != nil {
		return false, &types.ApplyFailed{Table: entry.Table, ChangeID: entry.ChangeID, Cause: err}
	}
	defer func() { _ = tx.Rollback() }()

	version, updatedAt, ok, err := e.Rows.CurrentVersion(ctx, tx, entry.Table, entry.RowID)
	if err != nil {
		return false, &types.ApplyFailed{Table: entry.Table, ChangeID: entry.ChangeID, Cause: err}
	}

	local := localState{Exists: ok, Version: version, UpdatedAt: updatedAt}
	accept, err := decide(e.Policy, local, entry)
	if err != nil {
		versionGaps.WithLabelValues(entry.OriginNodeID).Inc()
		return false, err
	}
	if !accept {
		return false, nil
	}

	applyCtx := capture.Suppressed(ctx, entry.OriginNodeID)
	if err := e.Rows.Upsert(applyCtx, tx, entry.Table, entry.RowID, entry.Payload); err != nil {
		return false, &types.ApplyFailed{Table: entry.Table, ChangeID: entry.ChangeID, Cause: err}
	}
	if err := tx.Commit(); err != nil {
		return false, &types.ApplyFailed{Table: entry.Table, ChangeID: entry.ChangeID, Cause: err}
	}
	return true, nil
}

func (e *Engine) push(ctx context.Context, peerID string) (int, error) {
	state, err := e.States.Load(ctx, peerID)
	if err != nil {
		return 0, errors.Wrap(err, "loading sync state")
	}

	sent := 0
	for {
		batch, err := e.Log.Since(ctx, e.Pool, e.NodeID, state.LastPushedChangeID, e.batchSize())
		if err != nil {
			return sent, errors.Wrap(err, "reading local changelog")
		}
		if len(batch) == 0 {
			return sent, nil
		}

		timer := prometheusTimer(pushDurations.WithLabelValues(peerID))
		highestAccepted, err := e.Transport.Push(ctx, peerID, batch)
		timer()
		if err != nil {
			pushErrors.WithLabelValues(peerID).Inc()
			return sent, &types.TransportError{Op: "push", Cause: err}
		}

		if highestAccepted > state.LastPushedChangeID {
			if err := e.States.AdvancePushed(ctx, peerID, highestAccepted); err != nil {
				return sent, errors.Wrap(err, "advancing push watermark")
			}
			batchSent := 0
			for _, entry := range batch {
				if entry.ChangeID <= highestAccepted {
					batchSent++
				}
			}
			sent += batchSent
			pushCount.WithLabelValues(peerID).Add(float64(batchSent))
			state.LastPushedChangeID = highestAccepted
		}

		if highestAccepted < batch[len(batch)-1].ChangeID {
			// Partial acceptance: stop here rather than resending
			// already-rejected entries in a tighter loop.
			return sent, nil
		}
		if len(batch) < e.batchSize() {
			return sent, nil
		}
	}
}

// Since serves a peer's pull request: every changelog entry we know
// about that the peer didn't author itself, satisfying transport.Changes
// so an Engine can be handed directly to transport.Server. This
// includes entries relayed into our changelog by Receive, not only the
// ones we captured locally, so that a hub redistributes every origin to
// every other peer.
func (e *Engine) Since(ctx context.Context, excludeOriginNodeID string, afterChangeID uint64, limit int) ([]types.ChangeEntry, error) {
	return e.Log.SinceExcluding(ctx, e.Pool, excludeOriginNodeID, afterChangeID, limit)
}

// Receive applies a batch of entries pushed to us by another node,
// honoring the same conflict policy as pull. It stops at the first
// entry it cannot apply. It returns a ChangeID (in the pusher's
// numbering) such that every entry at or below it was processed: the
// highest ChangeID in entries when all were processed, otherwise one
// less than the lowest ChangeID not processed. Callers persist it as
// the pusher's accepted watermark. Entries already recorded by an
// earlier, identical push are skipped and counted as processed.
//
// Every newly processed entry is also appended to our own changelog,
// with its original origin_node_id preserved, via a direct Log.Append
// rather than through ChangeCapture. This is what lets a later puller
// (any other peer, not just the original author) retrieve it from us:
// without this, a relayed write would be applied to our mirrored
// tables but never reappear on our changelog for redistribution.
func (e *Engine) Receive(ctx context.Context, entries []types.ChangeEntry) (highestAccepted uint64, err error) {
	done := make(map[uint64]bool, len(entries))
	resume := func(failed uint64) uint64 {
		lowest := failed
		for _, entry := range entries {
			if !done[entry.ChangeID] && entry.ChangeID < lowest {
				lowest = entry.ChangeID
			}
		}
		return lowest - 1
	}
	for _, group := range e.groupByApplyOrder(entries) {
		for _, entry := range group {
			if e.Dedup != nil {
				seen, derr := e.Dedup.SeenAndRecord(ctx, entry.OriginNodeID, entry.RowID, entry.Version)
				if derr != nil {
					return resume(entry.ChangeID), errors.Wrap(derr, "checking push dedup ledger")
				}
				if seen {
					done[entry.ChangeID] = true
					highestAccepted = max(highestAccepted, entry.ChangeID)
					continue
				}
			}

			if _, err := e.applyOne(ctx, entry); err != nil {
				return resume(entry.ChangeID), err
			}
			if err := e.Log.Append(ctx, e.Pool, entry); err != nil {
				return resume(entry.ChangeID), errors.Wrap(err, "relaying received change to local changelog")
			}
			done[entry.ChangeID] = true
			highestAccepted = max(highestAccepted, entry.ChangeID)
		}
	}
	return highestAccepted, nil
}

func prometheusTimer(o prometheusObserver) func() {
	start := time.Now()
	return func() { o.Observe(time.Since(start).Seconds()) }
}

type prometheusObserver interface {
	Observe(float64)
}
