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

package syncengine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var peerLabels = []string{"peer"}

var (
	pullDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sync_pull_duration_seconds",
		Help:    "the length of time it took to pull a batch of changes from a peer",
		Buckets: prometheus.DefBuckets,
	}, peerLabels)
	pullErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_pull_errors_total",
		Help: "the number of times an error was encountered while pulling from a peer",
	}, peerLabels)
	pullCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_pull_entries_total",
		Help: "the number of change entries applied from a peer",
	}, peerLabels)

	pushDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sync_push_duration_seconds",
		Help:    "the length of time it took to push a batch of changes to a peer",
		Buckets: prometheus.DefBuckets,
	}, peerLabels)
	pushErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_push_errors_total",
		Help: "the number of times an error was encountered while pushing to a peer",
	}, peerLabels)
	pushCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_push_entries_total",
		Help: "the number of locally authored change entries pushed to a peer",
	}, peerLabels)

	conflictsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_conflicts_dropped_total",
		Help: "the number of incoming change entries dropped by last_write_wins",
	}, peerLabels)
	versionGaps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_version_gaps_total",
		Help: "the number of version_strict rejections surfaced to the caller",
	}, peerLabels)
)
