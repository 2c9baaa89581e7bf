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

// Command syncd runs the bidirectional sync daemon for one database,
// exposing /sync/changes to peers and, optionally, /nodes/register if
// this instance also acts as the node registry.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/systemizing-solutions/shuttle-bridge/internal/changelog"
	"github.com/systemizing-solutions/shuttle-bridge/internal/config"
	"github.com/systemizing-solutions/shuttle-bridge/internal/dedup"
	"github.com/systemizing-solutions/shuttle-bridge/internal/noderegistry"
	"github.com/systemizing-solutions/shuttle-bridge/internal/syncstate"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		logrus.WithError(err).Fatal("syncd exited with an error")
	}
}

func run(args []string) error {
	cfg := &config.Config{}

	cmd := &cobra.Command{
		Use:           "syncd",
		Short:         "run the bidirectional row-level sync daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.Preflight(); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			server, cleanup, err := Start(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := bootstrapSchema(ctx, server.Engine.Pool, "sync_changelog", changelog.Schema); err != nil {
				return err
			}
			if err := bootstrapSchema(ctx, server.Engine.Pool, "sync_state", syncstate.Schema); err != nil {
				return err
			}
			if err := bootstrapSchema(ctx, server.Engine.Pool, "sync_push_ledger", dedup.Schema); err != nil {
				return err
			}
			if server.RegistryHandler != nil {
				if err := bootstrapSchema(ctx, server.Engine.Pool, "nodes", noderegistry.Schema); err != nil {
					return err
				}
			}

			logrus.WithField("bindAddr", cfg.BindAddr).Info("syncd listening")
			return server.ListenAndServe(ctx)
		},
	}
	cfg.Bind(cmd.Flags())
	cmd.SetArgs(args)

	return cmd.ExecuteContext(context.Background())
}
