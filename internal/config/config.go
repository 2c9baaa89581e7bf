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

// Package config contains the user-visible configuration for the sync
// server binary, bound to pflag the way the teacher's own server
// configs are.
package config

import (
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// Config holds everything syncd needs to start: which databases to
// connect to, which node id it runs as, and how it exposes itself over
// HTTP.
type Config struct {
	NodeID uint16

	EngineDSN  string
	EntityDSN  string
	DBProduct  string // "postgres" or "mysql"
	SchemaFile string // path to a JSON []schema.EntityDesc document

	BindAddr     string
	RegistryAddr string // base URL of the registry server, if it is not this process

	// RegistrySigningKey is the HMAC secret this process signs
	// client_tokens with. Only required when RegistryAddr is unset,
	// i.e. this process is itself the node registry.
	RegistrySigningKey string

	ConflictPolicy string // "last_write_wins" or "version_strict"
	BatchSize      int
}

// Bind registers flags on flags.
func (c *Config) Bind(flags *pflag.FlagSet) {
	flags.Uint16Var(&c.NodeID, "nodeID", 0, "this node's id, usually obtained from ensure-node-id")
	flags.StringVar(&c.EngineDSN, "engineDSN", "", "connection string for the engine's own bookkeeping tables (postgres wire protocol)")
	flags.StringVar(&c.EntityDSN, "entityDSN", "", "connection string for the mirrored entity tables")
	flags.StringVar(&c.DBProduct, "dbProduct", "postgres", "product backing entityDSN: postgres or mysql")
	flags.StringVar(&c.SchemaFile, "schemaFile", "", "path to a JSON document describing the mirrored entities and their foreign keys (required)")
	flags.StringVar(&c.BindAddr, "bindAddr", ":26259", "the network address to bind the sync HTTP server to")
	flags.StringVar(&c.RegistryAddr, "registryAddr", "", "base URL of the node registry server, if this node is not itself the registry")
	flags.StringVar(&c.RegistrySigningKey, "registrySigningKey", "", "HMAC secret for signing client_tokens; required if registryAddr is unset")
	flags.StringVar(&c.ConflictPolicy, "conflictPolicy", "last_write_wins", "conflict resolution policy: last_write_wins or version_strict")
	flags.IntVar(&c.BatchSize, "batchSize", 500, "number of change entries exchanged per pull or push request")
}

// Preflight validates the configuration after flags have been parsed.
func (c *Config) Preflight() error {
	if c.NodeID == 0 {
		return errors.New("nodeID unset or zero; zero is reserved")
	}
	if c.NodeID > 1023 {
		return errors.New("nodeID out of range 1..1023")
	}
	if c.EngineDSN == "" {
		return errors.New("engineDSN unset")
	}
	if c.EntityDSN == "" {
		return errors.New("entityDSN unset")
	}
	if c.SchemaFile == "" {
		return errors.New("schemaFile unset")
	}
	switch c.DBProduct {
	case "postgres", "mysql":
	default:
		return errors.Errorf("dbProduct must be postgres or mysql, got %q", c.DBProduct)
	}
	if c.BindAddr == "" {
		return errors.New("bindAddr unset")
	}
	switch c.ConflictPolicy {
	case "last_write_wins", "version_strict":
	default:
		return errors.Errorf("conflictPolicy must be last_write_wins or version_strict, got %q", c.ConflictPolicy)
	}
	if c.BatchSize <= 0 {
		return errors.New("batchSize must be positive")
	}
	if c.RegistryAddr == "" && c.RegistrySigningKey == "" {
		return errors.New("registrySigningKey unset; required when this node is its own registry (registryAddr unset)")
	}
	return nil
}
