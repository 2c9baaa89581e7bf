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

	"github.com/pkg/errors"
)

// Sentinel error kinds with no payload of their own.
var (
	// ErrBadNodeID is returned by idalloc when constructed with a
	// node id outside 0..1023.
	ErrBadNodeID = errors.New("node id out of range 0..1023")

	// ErrNoAllocatorBound is returned when ChangeCapture needs to mint
	// a RowId but no Allocator is bound to the context.
	ErrNoAllocatorBound = errors.New("no id allocator bound to context")

	// ErrRegistryExhausted is returned by NodeRegistry.Register when no
	// node id in 1..1023 is free.
	ErrRegistryExhausted = errors.New("no free node id in range 1..1023")

	// ErrSerialization is returned when a ChangeEntry payload cannot be
	// encoded or decoded.
	ErrSerialization = errors.New("serialization error")
)

// SchemaCycle is returned by schema.Build when the FK graph among
// mirrored entities contains a cycle.
type SchemaCycle struct {
	Entities []string
}

func (e *SchemaCycle) Error() string {
	return fmt.Sprintf("schema cycle among entities: %v", e.Entities)
}

// TransportError wraps any failure at the transport boundary (network
// error, non-2xx response, malformed body, or a canceled/expired
// context). It is always retryable; the engine itself does not retry.
type TransportError struct {
	Op    string // "pull" or "push"
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// VersionGap is returned by the version_strict conflict policy when an
// incoming ChangeEntry's version does not immediately follow the local
// row's version. The sync run stops; the watermark is not advanced past
// the offending entry.
type VersionGap struct {
	Table           string
	ChangeID        uint64
	RowID           RowId
	LocalVersion    uint64
	IncomingVersion uint64
}

func (e *VersionGap) Error() string {
	return fmt.Sprintf(
		"version gap on %s row %s: local version %d, incoming change %d has version %d",
		e.Table, e.RowID, e.LocalVersion, e.ChangeID, e.IncomingVersion,
	)
}

// ApplyFailed wraps a failure while applying an accepted ChangeEntry,
// e.g. an FK violation caused by an out-of-order apply. The watermark
// is left pointing just before ChangeID so that a retry can resume.
type ApplyFailed struct {
	Table    string
	ChangeID uint64
	Cause    error
}

func (e *ApplyFailed) Error() string {
	return fmt.Sprintf("apply failed for %s change %d: %v", e.Table, e.ChangeID, e.Cause)
}

func (e *ApplyFailed) Unwrap() error { return e.Cause }
