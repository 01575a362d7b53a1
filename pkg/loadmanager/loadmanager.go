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
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	json "github.com/goccy/go-json"
	"github.com/looplab/fsm"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/united-manufacturing-hub/ledgercore/pkg/constants"
	"github.com/united-manufacturing-hub/ledgercore/pkg/logger"
	"github.com/united-manufacturing-hub/ledgercore/pkg/metrics"
	"github.com/united-manufacturing-hub/ledgercore/pkg/uptime"
)

// ErrMissingCollaborator is returned by NewLoadManager when a required collaborator is nil.
var ErrMissingCollaborator = errors.New("load manager: missing collaborator")

// Config wires a LoadManager. JobQueue, FeeTrack, NetworkOPs and Parent are required,
// everything else falls back to a default.
type Config struct {
	JobQueue   JobQueue
	FeeTrack   FeeTrack
	NetworkOPs NetworkOPs
	Parent     Parent

	// Clock is only used to schedule ticks and detect time jumps.
	Clock  clock.Clock
	Uptime *uptime.Timer
	Logger *zap.SugaredLogger
	Name   string

	TickInterval        time.Duration
	StallReportInterval int64
	StallFatalThreshold int64
	FatalHandler        FatalHandler
}

// LoadManager runs the admission control loop: once per tick it advances uptime,
// checks for stalls, and raises or lowers the local fee depending on whether the
// job queue is overloaded.
type LoadManager struct {
	name       string
	jobQueue   JobQueue
	feeTrack   FeeTrack
	networkOPs NetworkOPs
	parent     Parent
	clock      clock.Clock
	uptime     *uptime.Timer
	detector   *DeadlockDetector
	logger     *zap.SugaredLogger
	interval   time.Duration

	fsm *fsm.FSM

	// mu orders Start against Stop so a running loop always has a cancel func.
	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	done       chan struct{}
	finishOnce sync.Once
	closeOnce  sync.Once

	releaseUptime func()
}

// NewLoadManager validates the config and puts the uptime timer into manual mode.
// The timer stays manual until Close is called.
func NewLoadManager(cfg Config) (*LoadManager, error) {
	switch {
	case cfg.JobQueue == nil:
		return nil, fmt.Errorf("%w: job queue", ErrMissingCollaborator)
	case cfg.FeeTrack == nil:
		return nil, fmt.Errorf("%w: fee track", ErrMissingCollaborator)
	case cfg.NetworkOPs == nil:
		return nil, fmt.Errorf("%w: network ops", ErrMissingCollaborator)
	case cfg.Parent == nil:
		return nil, fmt.Errorf("%w: parent", ErrMissingCollaborator)
	}

	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	if cfg.Uptime == nil {
		cfg.Uptime = uptime.Process()
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.For(logger.ComponentLoadManager)
	}

	if cfg.Name == "" {
		cfg.Name = logger.ComponentLoadManager
	}

	if cfg.TickInterval <= 0 {
		cfg.TickInterval = constants.LoadManagerTickInterval
	}

	if cfg.StallReportInterval <= 0 {
		cfg.StallReportInterval = constants.StallReportIntervalSeconds
	}

	if cfg.StallFatalThreshold <= 0 {
		cfg.StallFatalThreshold = constants.StallFatalThresholdSeconds
	}

	release, err := cfg.Uptime.BeginManualUpdates()
	if err != nil {
		return nil, fmt.Errorf("failed to take over uptime updates: %w", err)
	}

	lm := &LoadManager{
		name:          cfg.Name,
		jobQueue:      cfg.JobQueue,
		feeTrack:      cfg.FeeTrack,
		networkOPs:    cfg.NetworkOPs,
		parent:        cfg.Parent,
		clock:         cfg.Clock,
		uptime:        cfg.Uptime,
		logger:        cfg.Logger,
		interval:      cfg.TickInterval,
		done:          make(chan struct{}),
		releaseUptime: release,
	}
	lm.detector = NewDeadlockDetector(cfg.Uptime, cfg.Logger, cfg.StallReportInterval, cfg.StallFatalThreshold, cfg.FatalHandler)

	lm.fsm = fsm.NewFSM(
		StateCreated,
		lifecycleEvents(),
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				lm.logger.Debugf("%s: %s -> %s (%s)", lm.name, e.Src, e.Dst, e.Event)
			},
		},
	)

	return lm, nil
}

func (lm *LoadManager) Name() string {
	return lm.name
}

// State returns the current lifecycle state.
func (lm *LoadManager) State() string {
	return lm.fsm.Current()
}

// Done is closed once the load manager reached the stopped state.
func (lm *LoadManager) Done() <-chan struct{} {
	return lm.done
}

// Prepare performs no work besides the state transition.
func (lm *LoadManager) Prepare(ctx context.Context) error {
	if err := lm.fsm.Event(ctx, EventPrepare); err != nil {
		return fmt.Errorf("failed to prepare %s: %w", lm.name, err)
	}

	return nil
}

// Start spawns the admission loop.
func (lm *LoadManager) Start(ctx context.Context) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if err := lm.fsm.Event(ctx, EventStart); err != nil {
		return fmt.Errorf("failed to start %s: %w", lm.name, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	lm.cancel = cancel

	lm.wg.Add(1)

	go lm.run(loopCtx)

	lm.logger.Infof("%s started with a tick interval of %s", lm.name, lm.interval)

	return nil
}

// Stop requests the loop to exit. It does not wait, use Done for that. A load manager
// that was never started is stopped immediately. Calling Stop again is a no-op.
func (lm *LoadManager) Stop(ctx context.Context) error {
	lm.mu.Lock()
	err := lm.fsm.Event(ctx, EventStop)
	cancel := lm.cancel
	lm.mu.Unlock()

	if err != nil {
		var invalid fsm.InvalidEventError
		if errors.As(err, &invalid) && (invalid.State == StateStopRequested || invalid.State == StateStopped) {
			return nil
		}

		return fmt.Errorf("failed to stop %s: %w", lm.name, err)
	}

	if cancel != nil {
		cancel()
	}

	lm.finishIfStopped()

	return nil
}

// Close stops the loop, waits for it to exit and hands uptime back to the clock.
func (lm *LoadManager) Close() error {
	var err error

	lm.closeOnce.Do(func() {
		defer lm.releaseUptime()

		err = lm.Stop(context.Background())
		lm.wg.Wait()
		<-lm.done
	})

	return err
}

// ResetDeadlockDetector records progress. Safe for concurrent callers.
func (lm *LoadManager) ResetDeadlockDetector() {
	lm.detector.Reset()
}

// ActivateDeadlockDetector arms stall reporting. Safe for concurrent callers.
func (lm *LoadManager) ActivateDeadlockDetector() {
	lm.detector.Activate()
}

func (lm *LoadManager) IsDeadlockDetectorArmed() bool {
	return lm.detector.IsArmed()
}

func (lm *LoadManager) StallSeconds() int64 {
	return lm.detector.StallSeconds()
}

func (lm *LoadManager) UptimeSeconds() int64 {
	return lm.uptime.ElapsedSeconds()
}

func (lm *LoadManager) run(ctx context.Context) {
	defer lm.wg.Done()

	next := lm.clock.Now()

	for ctx.Err() == nil {
		lm.tick()

		var (
			wait   time.Duration
			jumped bool
		)

		next, wait, jumped = lm.schedule(next, lm.clock.Now())
		if jumped {
			continue
		}

		if !lm.sleep(ctx, wait) {
			break
		}
	}

	if err := lm.fsm.Event(context.Background(), EventFinished); err != nil {
		lm.logger.Errorf("%s: failed to finish: %v", lm.name, err)
	}

	lm.finishIfStopped()
	lm.logger.Infof("%s stopped", lm.name)
}

// tick runs one round of stall detection and fee adjustment.
func (lm *LoadManager) tick() {
	start := lm.clock.Now()

	lm.detector.Tick()

	overloaded := lm.jobQueue.IsOverloaded()
	metrics.SetOverloaded(overloaded)

	var changed bool

	if overloaded {
		lm.logOverload()

		changed = lm.feeTrack.RaiseLocalFee()
		metrics.RecordFeeAdjustment(metrics.DirectionRaise, changed)
	} else {
		changed = lm.feeTrack.LowerLocalFee()
		metrics.RecordFeeAdjustment(metrics.DirectionLower, changed)
	}

	if changed {
		lm.networkOPs.ReportFeeChange()
		metrics.IncFeeChangeNotifications()
	}

	metrics.ObserveTickDuration(lm.clock.Since(start))
}

// schedule computes the next wake time from the previous target. If the remaining
// time is negative or longer than one interval the clock jumped: the target is
// resynchronized to now and the caller must not sleep.
func (lm *LoadManager) schedule(previous, now time.Time) (next time.Time, wait time.Duration, jumped bool) {
	next = previous.Add(lm.interval)
	wait = next.Sub(now)

	if wait < 0 || wait > lm.interval {
		lm.logger.Warnf("%s: time jump of %s detected, resynchronizing", lm.name, wait)
		metrics.IncTimeJumps()

		return now, 0, true
	}

	return next, wait, false
}

// sleep waits for d or until ctx is cancelled. It reports whether the full duration elapsed.
func (lm *LoadManager) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := lm.clock.Timer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (lm *LoadManager) logOverload() {
	if !lm.logger.Level().Enabled(zapcore.InfoLevel) {
		return
	}

	provider, ok := lm.jobQueue.(DiagnosticsProvider)
	if !ok {
		lm.logger.Info("Load manager: overloaded")

		return
	}

	snapshot, err := json.Marshal(provider.Diagnostics())
	if err != nil {
		lm.logger.Infof("Load manager: overloaded, diagnostics unavailable: %v", err)

		return
	}

	lm.logger.Infof("Load manager: overloaded %s", snapshot)
}

// finishIfStopped closes Done and notifies the parent the first time the stopped state is observed.
func (lm *LoadManager) finishIfStopped() {
	if lm.fsm.Current() != StateStopped {
		return
	}

	lm.finishOnce.Do(func() {
		close(lm.done)
		lm.parent.Stopped(lm.name)
	})
}
