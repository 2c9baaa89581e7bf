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

package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/systemizing-solutions/shuttle-bridge/internal/types"
)

// Changes is the server-side source of truth for both legs of the
// protocol: reading our own changelog for a puller, and applying a
// pusher's batch against our mirrored tables.
type Changes interface {
	// Since returns up to limit entries not authored by
	// excludeOriginNodeID (the requesting peer's own node id, carried
	// on the wire as exclude_origin) with ChangeID greater than
	// afterChangeID.
	Since(ctx context.Context, excludeOriginNodeID string, afterChangeID uint64, limit int) ([]types.ChangeEntry, error)

	// Receive applies an incoming pushed batch. See
	// syncengine.Engine.Receive.
	Receive(ctx context.Context, entries []types.ChangeEntry) (highestAccepted uint64, err error)
}

// Server adapts a Changes implementation to the HTTP/JSON wire
// protocol via gorilla/mux, mirroring the teacher's router-per-package
// convention.
type Server struct {
	Changes Changes
	NodeID  string
}

// Router builds the *mux.Router for this server, wrapped in request
// logging the way the teacher wires gorilla/handlers around its API
// surface.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/sync/changes", s.handlePull).Methods(http.MethodGet)
	r.HandleFunc("/sync/changes", s.handlePush).Methods(http.MethodPost)
	return handlers.LoggingHandler(logrus.StandardLogger().Writer(), r)
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	since, err := strconv.ParseUint(q.Get("since"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid since parameter")
		return
	}
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "invalid limit parameter")
		return
	}
	excludeOrigin := q.Get("exclude_origin")
	if excludeOrigin == "" {
		writeError(w, http.StatusBadRequest, "missing exclude_origin parameter")
		return
	}

	// Ask for one entry past limit to learn whether more remain.
	entries, err := s.Changes.Since(r.Context(), excludeOrigin, since, limit+1)
	if err != nil {
		logrus.WithError(err).Error("pull failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	hasMore := len(entries) > limit
	if hasMore {
		entries = entries[:limit]
	}
	writeJSON(w, http.StatusOK, PullResponse{Changes: entries, HasMore: hasMore})
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	var body PushRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	highestAccepted, err := s.Changes.Receive(r.Context(), body.Changes)
	if err != nil {
		switch err.(type) {
		case *types.VersionGap, *types.ApplyFailed:
			// Partial acceptance is a normal, expected outcome: report
			// what was accepted with a 200 rather than failing the
			// whole batch.
			writeJSON(w, http.StatusOK, PushResponse{HighestAccepted: highestAccepted})
			return
		default:
			logrus.WithError(err).Error("push failed")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
	}
	writeJSON(w, http.StatusOK, PushResponse{HighestAccepted: highestAccepted})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
