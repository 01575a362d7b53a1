// Copyright 2025 UMH Systems GmbH
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

// Package feetrack keeps the node's load based transaction fee multipliers.
package feetrack

import (
	"sync"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/ledgercore/pkg/logger"
	"github.com/united-manufacturing-hub/ledgercore/pkg/metrics"
)

const (
	// NormalFee is the multiplier of an unloaded node. A load factor of NormalFee means 1x.
	NormalFee uint32 = 256
	// MaxFee caps every multiplier.
	MaxFee uint64 = uint64(NormalFee) * 1_000_000

	// The local fee grows and shrinks by a quarter of its value per adjustment.
	incFraction = 4
	decFraction = 4

	// raiseThreshold consecutive raise requests are needed before the fee goes up,
	// so a single busy tick does not move the price.
	raiseThreshold = 2
)

// Snapshot is a consistent view of all multipliers.
type Snapshot struct {
	LocalFee   uint32 `json:"local_fee"`
	RemoteFee  uint32 `json:"remote_fee"`
	ClusterFee uint32 `json:"cluster_fee"`
	LoadFactor uint32 `json:"load_factor"`
	LoadBase   uint32 `json:"load_base"`
}

// Tracker implements the local fee policy used by the load manager.
type Tracker struct {
	logger *zap.SugaredLogger

	mu         sync.Mutex
	localFee   uint32
	remoteFee  uint32
	clusterFee uint32
	raiseCount int
}

func New(log *zap.SugaredLogger) *Tracker {
	if log == nil {
		log = logger.For(logger.ComponentFeeTrack)
	}

	metrics.SetLocalFee(NormalFee)

	return &Tracker{
		logger:     log,
		localFee:   NormalFee,
		remoteFee:  NormalFee,
		clusterFee: NormalFee,
	}
}

// RaiseLocalFee raises the local fee by a quarter once raise was requested twice in
// a row. The fee starts from the remote fee if that is higher. It reports whether the
// fee changed.
func (t *Tracker) RaiseLocalFee() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.raiseCount++
	if t.raiseCount < raiseThreshold {
		return false
	}

	orig := t.localFee

	fee := uint64(t.localFee)
	if fee < uint64(t.remoteFee) {
		fee = uint64(t.remoteFee)
	}

	fee += fee / incFraction
	if fee > MaxFee {
		fee = MaxFee
	}

	t.localFee = uint32(fee)
	if orig == t.localFee {
		return false
	}

	t.logger.Debugf("Local fee raised from %d to %d", orig, t.localFee)
	metrics.SetLocalFee(t.localFee)

	return true
}

// LowerLocalFee lowers the local fee by a quarter, never below NormalFee, and resets
// the raise streak. It reports whether the fee changed.
func (t *Tracker) LowerLocalFee() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	orig := t.localFee
	t.raiseCount = 0

	t.localFee -= t.localFee / decFraction
	if t.localFee < NormalFee {
		t.localFee = NormalFee
	}

	if orig == t.localFee {
		return false
	}

	t.logger.Debugf("Local fee lowered from %d to %d", orig, t.localFee)
	metrics.SetLocalFee(t.localFee)

	return true
}

// SetRemoteFee records the fee multiplier reported by the network.
func (t *Tracker) SetRemoteFee(fee uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.remoteFee = clamp(fee)
}

// SetClusterFee records the fee multiplier reported by the cluster.
func (t *Tracker) SetClusterFee(fee uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.clusterFee = clamp(fee)
}

// LoadFactor is the highest of the local, remote and cluster fees.
func (t *Tracker) LoadFactor() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.loadFactorLocked()
}

// IsLoadedLocal reports whether the local fee is raised or about to be.
func (t *Tracker) IsLoadedLocal() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.raiseCount != 0 || t.localFee != NormalFee
}

// ScaleFee multiplies a base fee by the current load factor.
func (t *Tracker) ScaleFee(base uint64) uint64 {
	factor := uint64(t.LoadFactor())

	return base * factor / uint64(NormalFee)
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	return Snapshot{
		LocalFee:   t.localFee,
		RemoteFee:  t.remoteFee,
		ClusterFee: t.clusterFee,
		LoadFactor: t.loadFactorLocked(),
		LoadBase:   NormalFee,
	}
}

func (t *Tracker) loadFactorLocked() uint32 {
	return max(t.localFee, t.remoteFee, t.clusterFee)
}

func clamp(fee uint32) uint32 {
	if fee < NormalFee {
		return NormalFee
	}

	if uint64(fee) > MaxFee {
		return uint32(MaxFee)
	}

	return fee
}
