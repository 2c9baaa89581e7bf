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

// Command ensure-node-id registers this host with a sync registry
// server, if it has not already done so, and prints the resulting
// node id to stdout.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/systemizing-solutions/shuttle-bridge/internal/noderegistry"
)

// Exit codes. 2 and 3 are dictated by spec: a usage error (missing
// --server) isn't either of those, so it gets its own code rather than
// overloading exitTransport.
//
//	0 success, node id printed to stdout
//	1 usage error (missing --server)
//	2 transport failure (registry unreachable)
//	3 server denial (non-2xx response, e.g. id range exhausted)
const (
	exitOK           = 0
	exitUsage        = 1
	exitTransport    = 2
	exitRegistration = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var server, cache, hostname string

	cmd := &cobra.Command{
		Use:           "ensure-node-id",
		Short:         "register this host and print its sync node id",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if server == "" {
				return pflag.ErrHelp
			}
			if hostname == "" {
				h, err := os.Hostname()
				if err != nil {
					return err
				}
				hostname = h
			}

			cached, err := noderegistry.EnsureNodeID(cmd.Context(), server, hostname, cache)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cached.NodeID)
			return nil
		},
	}
	cmd.SetArgs(args)
	cmd.Flags().StringVar(&server, "server", "", "base URL of the registry server (required)")
	cmd.Flags().StringVar(&cache, "cache", defaultCachePath(), "path to the persisted node id cache")
	cmd.Flags().StringVar(&hostname, "hostname", "", "hostname to register (defaults to os.Hostname)")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		if err == pflag.ErrHelp {
			return exitUsage
		}
		logrus.WithError(err).Error("ensure-node-id failed")
		var denied *noderegistry.Denied
		if errors.As(err, &denied) {
			return exitRegistration
		}
		return exitTransport
	}
	return exitOK
}

func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "node-id.json"
	}
	return dir + "/shuttle-bridge/node-id.json"
}
