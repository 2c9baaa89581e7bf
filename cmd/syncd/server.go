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
	"net/http"

	"github.com/systemizing-solutions/shuttle-bridge/internal/config"
	"github.com/systemizing-solutions/shuttle-bridge/internal/idalloc"
	"github.com/systemizing-solutions/shuttle-bridge/internal/noderegistry"
	"github.com/systemizing-solutions/shuttle-bridge/internal/syncengine"
	"github.com/systemizing-solutions/shuttle-bridge/internal/transport"
)

// Server bundles the running pieces of one syncd process.
type Server struct {
	Config          *config.Config
	Engine          *syncengine.Engine
	Allocator       *idalloc.Allocator
	RegistryHandler *noderegistry.Handler // nil if this node isn't the registry
	Handler         http.Handler
}

// ProvideServer assembles the final Server value, mounting the node
// registry's /nodes/register route alongside /sync/changes when this
// process is itself the registry (registryHandler != nil).
func ProvideServer(cfg *config.Config, engine *syncengine.Engine, allocator *idalloc.Allocator, transportServer *transport.Server, registryHandler *noderegistry.Handler) *Server {
	mux := http.NewServeMux()
	mux.Handle("/sync/", transportServer.Router())
	if registryHandler != nil {
		mux.Handle("/nodes/", registryHandler.Router())
	}
	return &Server{
		Config:          cfg,
		Engine:          engine,
		Allocator:       allocator,
		RegistryHandler: registryHandler,
		Handler:         mux,
	}
}

// ListenAndServe binds cfg.BindAddr and serves until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{Addr: s.Config.BindAddr, Handler: s.Handler}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
