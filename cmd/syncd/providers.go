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

package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/systemizing-solutions/shuttle-bridge/internal/capture"
	"github.com/systemizing-solutions/shuttle-bridge/internal/changelog"
	"github.com/systemizing-solutions/shuttle-bridge/internal/config"
	"github.com/systemizing-solutions/shuttle-bridge/internal/dedup"
	"github.com/systemizing-solutions/shuttle-bridge/internal/idalloc"
	"github.com/systemizing-solutions/shuttle-bridge/internal/noderegistry"
	"github.com/systemizing-solutions/shuttle-bridge/internal/rowstore"
	"github.com/systemizing-solutions/shuttle-bridge/internal/schema"
	"github.com/systemizing-solutions/shuttle-bridge/internal/syncengine"
	"github.com/systemizing-solutions/shuttle-bridge/internal/syncstate"
	"github.com/systemizing-solutions/shuttle-bridge/internal/transport"
	"github.com/systemizing-solutions/shuttle-bridge/internal/types"
)

// ProvideEnginePool opens the pgx pool backing the engine's own
// bookkeeping tables (sync_changelog, sync_state, the push ledger).
func ProvideEnginePool(ctx context.Context, cfg *config.Config) (*types.EnginePool, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.EngineDSN)
	if err != nil {
		return nil, func() {}, errors.Wrap(err, "opening engine pool")
	}
	return &types.EnginePool{Pool: pool}, pool.Close, nil
}

// ProvideEntityPool opens the database/sql pool backing the mirrored
// entity tables, using the driver named by cfg.DBProduct.
func ProvideEntityPool(cfg *config.Config) (*types.EntityPool, func(), error) {
	driver := "postgres"
	if cfg.DBProduct == "mysql" {
		driver = "mysql"
	}
	db, err := sql.Open(driver, cfg.EntityDSN)
	if err != nil {
		return nil, func() {}, errors.Wrap(err, "opening entity pool")
	}
	return &types.EntityPool{DB: db}, func() { _ = db.Close() }, nil
}

// ProvideProduct maps the configured product name to types.Product.
func ProvideProduct(cfg *config.Config) types.Product {
	if cfg.DBProduct == "mysql" {
		return types.ProductMySQL
	}
	return types.ProductPostgreSQL
}

// ProvideSchema loads the mirrored-entity descriptors from
// cfg.SchemaFile and builds the FK-ordered apply schedule.
func ProvideSchema(cfg *config.Config) (*schema.Schema, error) {
	data, err := os.ReadFile(cfg.SchemaFile)
	if err != nil {
		return nil, errors.Wrap(err, "reading schema file")
	}
	var entities []schema.EntityDesc
	if err := json.Unmarshal(data, &entities); err != nil {
		return nil, errors.Wrap(err, "parsing schema file")
	}
	return schema.Build(entities)
}

// ProvideAllocator constructs the Snowflake-style id allocator for
// this node.
func ProvideAllocator(cfg *config.Config) (*idalloc.Allocator, error) {
	return idalloc.New(cfg.NodeID)
}

// ProvideChangeLog constructs the sync_changelog accessor.
func ProvideChangeLog() *changelog.Log {
	return &changelog.Log{Table: "sync_changelog"}
}

// ProvideSyncStateStore constructs the per-peer watermark store.
func ProvideSyncStateStore(pool *types.EnginePool) syncstate.Store {
	return syncstate.New(pool, "sync_state")
}

// ProvideDedupLedger constructs the idempotent-push ledger.
func ProvideDedupLedger(pool *types.EnginePool) syncengine.PushDedup {
	return &dedup.Ledger{Pool: pool, Table: "sync_push_ledger"}
}

// ProvideHooks constructs the before/after mutation hooks domain code
// calls around its own writes.
func ProvideHooks(cfg *config.Config, log *changelog.Log) *capture.Hooks {
	return &capture.Hooks{NodeID: strconv.Itoa(int(cfg.NodeID)), Appender: log}
}

// ProvideRowStore constructs the mirrored-entity row store.
func ProvideRowStore(entityPool *types.EntityPool, sch *schema.Schema, product types.Product) types.RowStore {
	return &rowstore.Store{Pool: entityPool, Schema: sch, Product: product}
}

// ProvidePolicy maps the configured policy name to syncengine.Policy.
func ProvidePolicy(cfg *config.Config) syncengine.Policy {
	if cfg.ConflictPolicy == "version_strict" {
		return syncengine.PolicyVersionStrict
	}
	return syncengine.PolicyLastWriteWins
}

// ProvideEngine assembles the sync engine from its dependencies.
func ProvideEngine(
	cfg *config.Config,
	engineLog *changelog.Log,
	states syncstate.Store,
	rows types.RowStore,
	dedupLedger syncengine.PushDedup,
	enginePool *types.EnginePool,
	sch *schema.Schema,
	policy syncengine.Policy,
) *syncengine.Engine {
	return &syncengine.Engine{
		NodeID:    strconv.Itoa(int(cfg.NodeID)),
		States:    states,
		Rows:      rows,
		Log:       engineLog,
		Dedup:     dedupLedger,
		Pool:      enginePool,
		Schema:    sch,
		Policy:    policy,
		BatchSize: cfg.BatchSize,
	}
}

// ProvideClient constructs a peer-facing Transport for a given peer
// base URL. It is not part of the wire graph itself (peers are
// runtime, not startup, configuration) but is exposed here so
// cmd/syncd can build one per configured peer.
func ProvideClient(cfg *config.Config, peerBaseURL string) syncengine.Transport {
	return &transport.Client{BaseURL: peerBaseURL, NodeID: strconv.Itoa(int(cfg.NodeID))}
}

// ProvideTransportServer adapts an Engine to the HTTP handler serving
// /sync/changes.
func ProvideTransportServer(cfg *config.Config, engine *syncengine.Engine) *transport.Server {
	return &transport.Server{Changes: engine, NodeID: strconv.Itoa(int(cfg.NodeID))}
}

// ProvideRegistryHandler mounts /nodes/register on this process when it
// is itself the node registry (cfg.RegistryAddr unset). It returns nil
// when another process serves that role, so ProvideServer can skip
// mounting the route rather than serving a registry with no backing
// key.
func ProvideRegistryHandler(cfg *config.Config, pool *types.EnginePool) *noderegistry.Handler {
	if cfg.RegistryAddr != "" {
		return nil
	}
	store := noderegistry.NewStore(pool, "nodes")
	registry := &noderegistry.Registry{
		Store:     store,
		Signer:    []byte(cfg.RegistrySigningKey),
		BootEpoch: time.Now().UnixNano(),
	}
	return &noderegistry.Handler{Registry: registry}
}

func bootstrapSchema(ctx context.Context, pool *types.EnginePool, table, ddl string) error {
	_, err := pool.Exec(ctx, fmt.Sprintf(ddl, table))
	return err
}
