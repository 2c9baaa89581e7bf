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

//go:build wireinject
// +build wireinject

package main

import (
	"context"

	"github.com/google/wire"

	"github.com/systemizing-solutions/shuttle-bridge/internal/config"
)

// Start wires together one syncd process: its connection pools, its
// id allocator, its schema, its engine, and the HTTP server exposing
// it to peers.
func Start(ctx context.Context, cfg *config.Config) (*Server, func(), error) {
	panic(wire.Build(
		ProvideEnginePool,
		ProvideEntityPool,
		ProvideProduct,
		ProvideSchema,
		ProvideAllocator,
		ProvideChangeLog,
		ProvideSyncStateStore,
		ProvideDedupLedger,
		ProvideRowStore,
		ProvidePolicy,
		ProvideEngine,
		ProvideTransportServer,
		ProvideRegistryHandler,
		ProvideServer,
	))
}
