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

package loadmanager

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/ledgercore/pkg/logger"
	"github.com/united-manufacturing-hub/ledgercore/pkg/metrics"
	"github.com/united-manufacturing-hub/ledgercore/pkg/sentry"
	"github.com/united-manufacturing-hub/ledgercore/pkg/uptime"
)

// ErrStallCeilingExceeded is handed to the fatal handler once the stall reaches the fatal threshold.
var ErrStallCeilingExceeded = errors.New("deadlock detector: stall ceiling exceeded")

// FatalHandler is called when the deadlock detector gives up. The default reports to
// sentry and panics, terminating the process.
type FatalHandler func(err error)

// DeadlockDetector tracks the seconds since the last liveness reset.
//
// The stall is measured in uptime seconds, which advance once per load manager tick.
// Once armed, a warning is logged every reportInterval seconds of stall and the
// fatal handler runs when the stall reaches fatalThreshold.
type DeadlockDetector struct {
	uptime         *uptime.Timer
	logger         *zap.SugaredLogger
	onFatal        FatalHandler
	reportInterval int64
	fatalThreshold int64

	// mu guards lastReset and armed, and makes the uptime increment of a tick atomic
	// with the stall computation.
	mu        sync.Mutex
	lastReset int64
	armed     bool
}

func NewDeadlockDetector(timer *uptime.Timer, log *zap.SugaredLogger, reportInterval, fatalThreshold int64, onFatal FatalHandler) *DeadlockDetector {
	if log == nil {
		log = logger.For(logger.ComponentDeadlock)
	}

	if onFatal == nil {
		onFatal = func(err error) {
			sentry.ReportComponentFatal(log, logger.ComponentDeadlock, "tick", err)
		}
	}

	return &DeadlockDetector{
		uptime:         timer,
		logger:         log,
		onFatal:        onFatal,
		reportInterval: reportInterval,
		fatalThreshold: fatalThreshold,
		lastReset:      timer.ElapsedSeconds(),
	}
}

// Reset records that the node made progress.
func (d *DeadlockDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.lastReset = d.uptime.ElapsedSeconds()
}

// Activate arms stall reporting. There is no way to disarm.
func (d *DeadlockDetector) Activate() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.armed {
		d.logger.Infof("Deadlock detector armed at %d seconds of uptime", d.uptime.ElapsedSeconds())
	}

	d.armed = true
}

func (d *DeadlockDetector) IsArmed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.armed
}

// StallSeconds returns the seconds elapsed since the last reset.
func (d *DeadlockDetector) StallSeconds() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.uptime.ElapsedSeconds() - d.lastReset
}

// Tick advances uptime by one second and evaluates the stall. It returns the stall in seconds.
func (d *DeadlockDetector) Tick() int64 {
	d.mu.Lock()
	elapsed := d.uptime.IncrementElapsedTime()
	stall := elapsed - d.lastReset
	armed := d.armed
	d.mu.Unlock()

	metrics.SetUptime(elapsed)
	metrics.SetStall(stall)

	if !armed || stall < d.reportInterval {
		return stall
	}

	metrics.AddStalledTime(1)

	if stall%d.reportInterval == 0 {
		d.logger.Warnf("Server stalled for %d seconds", stall)
		metrics.IncErrorCount(metrics.ComponentLoadManager, "deadlock_detector")
	}

	if stall >= d.fatalThreshold {
		d.onFatal(fmt.Errorf("%w: stalled for %d seconds", ErrStallCeilingExceeded, stall))
	}

	return stall
}
