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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pkg/errors"

	"github.com/systemizing-solutions/shuttle-bridge/internal/types"
)

// Client is an HTTP implementation of syncengine.Transport. It makes
// one request per Pull or Push call; retry and backoff are the
// caller's responsibility.
type Client struct {
	BaseURL    string
	NodeID     string
	HTTPClient *http.Client
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// Pull implements syncengine.Transport.
func (c *Client) Pull(ctx context.Context, peerID string, sinceChangeID uint64, limit int) ([]types.ChangeEntry, error) {
	u, err := url.Parse(c.BaseURL + "/sync/changes")
	if err != nil {
		return nil, errors.Wrap(err, "parsing base url")
	}
	q := u.Query()
	q.Set("peer_id", peerID)
	q.Set("since", strconv.FormatUint(sinceChangeID, 10))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("exclude_origin", c.NodeID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "building pull request")
	}
	req.Header.Set("X-Node-Id", c.NodeID)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "performing pull request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var body PullResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrap(err, "decoding pull response")
	}
	return body.Changes, nil
}

// Push implements syncengine.Transport.
func (c *Client) Push(ctx context.Context, peerID string, entries []types.ChangeEntry) (uint64, error) {
	payload, err := json.Marshal(PushRequest{Changes: entries})
	if err != nil {
		return 0, errors.Wrap(err, "encoding push request")
	}

	u := fmt.Sprintf("%s/sync/changes?peer_id=%s", c.BaseURL, url.QueryEscape(peerID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return 0, errors.Wrap(err, "building push request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Node-Id", c.NodeID)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "performing push request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, decodeError(resp)
	}

	var body PushResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, errors.Wrap(err, "decoding push response")
	}
	return body.HighestAccepted, nil
}

func decodeError(resp *http.Response) error {
	var body errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		return errors.Errorf("unexpected status %s", resp.Status)
	}
	return errors.Errorf("%s: %s", resp.Status, body.Error)
}
