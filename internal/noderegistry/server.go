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

package noderegistry

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/systemizing-solutions/shuttle-bridge/internal/transport"
	"github.com/systemizing-solutions/shuttle-bridge/internal/types"
)

// Handler exposes Registry over POST /nodes/register.
type Handler struct {
	Registry *Registry
}

// Router builds the *mux.Router for the registration endpoint.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/nodes/register", h.handleRegister).Methods(http.MethodPost)
	return r
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body transport.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}

	nodeID, token, err := h.Registry.Register(r.Context(), body.Hostname)
	if err != nil {
		if errors.Is(err, types.ErrRegistryExhausted) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
			return
		}
		logrus.WithError(err).Error("node registration failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, transport.RegisterResponse{NodeID: nodeID, ClientToken: token})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
