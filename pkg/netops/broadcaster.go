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

// Package netops publishes local fee changes to in-process subscribers such as the
// status API and peer connections.
package netops

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/ledgercore/pkg/feetrack"
	"github.com/united-manufacturing-hub/ledgercore/pkg/logger"
	"github.com/united-manufacturing-hub/ledgercore/pkg/metrics"
)

// DefaultSubscriberBuffer is used when Subscribe is called with a non-positive buffer.
const DefaultSubscriberBuffer = 16

// FeeSource is read whenever a fee change is reported.
type FeeSource interface {
	Snapshot() feetrack.Snapshot
}

// FeeUpdate is what subscribers receive.
type FeeUpdate struct {
	Sequence   uint64    `json:"sequence"`
	LocalFee   uint32    `json:"local_fee"`
	LoadFactor uint32    `json:"load_factor"`
	LoadBase   uint32    `json:"load_base"`
	At         time.Time `json:"at"`
}

// Broadcaster fans fee updates out to subscribers without ever blocking the caller.
// A subscriber whose buffer is full misses the update.
type Broadcaster struct {
	source FeeSource
	clock  clock.Clock
	logger *zap.SugaredLogger

	mu          sync.Mutex
	subscribers map[uuid.UUID]chan FeeUpdate
	latest      FeeUpdate
	published   bool
	dropped     uint64
	closed      bool
}

func NewBroadcaster(source FeeSource, c clock.Clock) *Broadcaster {
	if c == nil {
		c = clock.New()
	}

	return &Broadcaster{
		source:      source,
		clock:       c,
		logger:      logger.For(logger.ComponentNetworkOP),
		subscribers: make(map[uuid.UUID]chan FeeUpdate),
	}
}

// Subscribe registers a new subscriber. The channel is closed by Unsubscribe or Close.
func (b *Broadcaster) Subscribe(buffer int) (uuid.UUID, <-chan FeeUpdate) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}

	id := uuid.New()
	ch := make(chan FeeUpdate, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)

		return id, ch
	}

	b.subscribers[id] = ch
	b.logger.Debugf("Subscriber %s added", id)

	return id, ch
}

// Unsubscribe removes a subscriber and reports whether it existed.
func (b *Broadcaster) Unsubscribe(id uuid.UUID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[id]
	if !ok {
		return false
	}

	delete(b.subscribers, id)
	close(ch)

	return true
}

// ReportFeeChange reads the fee source and publishes an update if the published
// fee differs from the previous one.
func (b *Broadcaster) ReportFeeChange() {
	snapshot := b.source.Snapshot()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	if b.published &&
		b.latest.LocalFee == snapshot.LocalFee &&
		b.latest.LoadFactor == snapshot.LoadFactor &&
		b.latest.LoadBase == snapshot.LoadBase {
		return
	}

	b.latest = FeeUpdate{
		Sequence:   b.latest.Sequence + 1,
		LocalFee:   snapshot.LocalFee,
		LoadFactor: snapshot.LoadFactor,
		LoadBase:   snapshot.LoadBase,
		At:         b.clock.Now(),
	}
	b.published = true

	for id, ch := range b.subscribers {
		select {
		case ch <- b.latest:
		default:
			b.dropped++
			metrics.IncFeeUpdatesDropped()
			b.logger.Debugf("Subscriber %s is slow, dropped fee update %d", id, b.latest.Sequence)
		}
	}
}

// Latest returns the last published update.
func (b *Broadcaster) Latest() (FeeUpdate, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.latest, b.published
}

func (b *Broadcaster) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.dropped
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.subscribers)
}

// Close closes every subscriber channel. Later reports are ignored.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true

	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
}
