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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/systemizing-solutions/shuttle-bridge/internal/transport"
)

// Cached is the persisted result of a successful registration.
type Cached struct {
	NodeID      uint16 `json:"node_id"`
	ClientToken string `json:"client_token"`
}

// Denied is returned by EnsureNodeID when the registry server was
// reached but declined the registration (a non-2xx response), as
// opposed to the request never reaching it at all. Callers distinguish
// the two to map onto the CLI's separate "transport failure" and
// "server denial" exit codes.
type Denied struct {
	Status  string
	Message string
}

func (e *Denied) Error() string {
	return fmt.Sprintf("registration denied: %s: %s", e.Status, e.Message)
}

// EnsureNodeID returns a node id for this host, registering with
// serverURL if cachePath does not yet hold one. The cache is a small
// JSON file; a corrupt or missing cache is treated as "not yet
// registered" rather than an error.
func EnsureNodeID(ctx context.Context, serverURL, hostname, cachePath string) (Cached, error) {
	if cached, ok := readCache(cachePath); ok {
		return cached, nil
	}

	payload, err := json.Marshal(transport.RegisterRequest{Hostname: hostname})
	if err != nil {
		return Cached{}, errors.Wrap(err, "encoding register request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL+"/nodes/register", bytes.NewReader(payload))
	if err != nil {
		return Cached{}, errors.Wrap(err, "building register request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Cached{}, errors.Wrap(err, "performing register request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return Cached{}, &Denied{Status: resp.Status, Message: body.Error}
	}

	var regResp transport.RegisterResponse
	if err := json.NewDecoder(resp.Body).Decode(&regResp); err != nil {
		return Cached{}, errors.Wrap(err, "decoding register response")
	}

	cached := Cached{NodeID: regResp.NodeID, ClientToken: regResp.ClientToken}
	if err := writeCache(cachePath, cached); err != nil {
		return Cached{}, errors.Wrap(err, "persisting node id cache")
	}
	return cached, nil
}

func readCache(path string) (Cached, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Cached{}, false
	}
	var cached Cached
	if err := json.Unmarshal(data, &cached); err != nil {
		return Cached{}, false
	}
	return cached, true
}

func writeCache(path string, cached Cached) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(cached, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
