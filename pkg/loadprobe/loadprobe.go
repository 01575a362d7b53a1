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

// Package loadprobe decides whether the host is overloaded by sampling CPU, load average
// and memory with gopsutil.
package loadprobe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/ledgercore/pkg/constants"
	"github.com/united-manufacturing-hub/ledgercore/pkg/logger"
	"github.com/united-manufacturing-hub/ledgercore/pkg/metrics"
	"github.com/united-manufacturing-hub/ledgercore/pkg/sentry"
)

// Sample is one reading of the host.
type Sample struct {
	SampledAt         time.Time
	CPUPercent        float64
	Load1             float64
	Load5             float64
	Load15            float64
	MemoryUsedPercent float64
}

// Sampler reads the host. HostSampler is the production implementation.
type Sampler interface {
	Sample(ctx context.Context) (Sample, error)
}

// Probe caches the latest sample so that IsOverloaded never blocks the admission loop.
type Probe struct {
	sampler   Sampler
	clock     clock.Clock
	logger    *zap.SugaredLogger
	threshold float64
	interval  time.Duration

	mu       sync.RWMutex
	latest   Sample
	sampled  bool
	errors   int
	onSample func()
}

// New returns a probe that reports overload once CPU usage reaches thresholdPercent.
func New(sampler Sampler, c clock.Clock, thresholdPercent float64, interval time.Duration) *Probe {
	if c == nil {
		c = clock.New()
	}

	if thresholdPercent <= 0 {
		thresholdPercent = constants.DefaultCPUOverloadThresholdPercent
	}

	if interval <= 0 {
		interval = constants.LoadManagerTickInterval
	}

	return &Probe{
		sampler:   sampler,
		clock:     c,
		logger:    logger.For(logger.ComponentLoadProbe),
		threshold: thresholdPercent,
		interval:  interval,
	}
}

// Refresh takes one sample. A failed sample keeps the previous reading.
func (p *Probe) Refresh(ctx context.Context) error {
	sample, err := p.sampler.Sample(ctx)
	if err != nil {
		p.mu.Lock()
		p.errors++
		p.mu.Unlock()

		metrics.IncErrorCount(metrics.ComponentLoadProbe, "sample")

		return fmt.Errorf("failed to sample host load: %w", err)
	}

	if sample.SampledAt.IsZero() {
		sample.SampledAt = p.clock.Now()
	}

	p.mu.Lock()
	p.latest = sample
	p.sampled = true
	p.mu.Unlock()

	return nil
}

// OnSample registers fn to be called after every successful sample taken by Run.
// Must be called before Run.
func (p *Probe) OnSample(fn func()) {
	p.onSample = fn
}

// Run refreshes the sample every interval until ctx is cancelled.
func (p *Probe) Run(ctx context.Context) {
	ticker := p.clock.Ticker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.Refresh(ctx); err != nil {
			sentry.ReportIssue(err, sentry.IssueTypeWarning, p.logger)
		} else if p.onSample != nil {
			p.onSample()
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// IsOverloaded reports whether the latest CPU reading reached the threshold.
// Before the first sample the host counts as not overloaded.
func (p *Probe) IsOverloaded() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.sampled && p.latest.CPUPercent >= p.threshold
}

// Latest returns the most recent sample and whether there is one.
func (p *Probe) Latest() (Sample, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.latest, p.sampled
}

// Diagnostics is logged by the load manager while overloaded.
func (p *Probe) Diagnostics() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return map[string]interface{}{
		"cpu_percent":         p.latest.CPUPercent,
		"cpu_threshold":       p.threshold,
		"load1":               p.latest.Load1,
		"load5":               p.latest.Load5,
		"load15":              p.latest.Load15,
		"memory_used_percent": p.latest.MemoryUsedPercent,
		"sampled_at":          p.latest.SampledAt.UTC().Format(time.RFC3339),
		"sample_errors":       p.errors,
	}
}
