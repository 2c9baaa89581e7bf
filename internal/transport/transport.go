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

// Package transport implements the HTTP/JSON wire protocol SyncEngine
// exchanges ChangeEntry batches over.
package transport

import "github.com/systemizing-solutions/shuttle-bridge/internal/types"

// PullResponse is the body of a successful GET /sync/changes response.
type PullResponse struct {
	Changes []types.ChangeEntry `json:"changes"`
	// HasMore reports whether the changelog held more than limit
	// matching entries; a caller that wants to drain the backlog keeps
	// pulling with since advanced past the last entry it received.
	HasMore bool `json:"has_more"`
}

// PushRequest is the body of a POST /sync/changes request.
type PushRequest struct {
	Changes []types.ChangeEntry `json:"changes"`
}

// PushResponse is the body of a successful POST /sync/changes
// response. HighestAccepted is the highest ChangeID the server
// durably applied; it may trail the request's tail on partial
// acceptance (the server stops at the first entry it rejects).
type PushResponse struct {
	HighestAccepted uint64 `json:"highest_accepted_change_id"`
}

// RegisterRequest is the body of a POST /nodes/register request.
type RegisterRequest struct {
	Hostname string `json:"hostname"`
}

// RegisterResponse is the body of a successful POST /nodes/register
// response.
type RegisterResponse struct {
	NodeID      uint16 `json:"node_id"`
	ClientToken string `json:"client_token"`
}

// errorResponse is the body returned alongside a non-2xx status.
type errorResponse struct {
	Error string `json:"error"`
}
