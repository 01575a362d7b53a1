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

// Package uptime keeps the node's elapsed seconds.
//
// By default the value follows the clock. While manual updates are active it only
// moves when IncrementElapsedTime is called, which the load manager does once per tick,
// so every reader sees a value that matches the tick cadence instead of wall clock jitter.
package uptime

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ErrManualUpdatesActive is returned when manual updates are requested while another owner holds them.
var ErrManualUpdatesActive = errors.New("uptime: manual updates already active")

type Timer struct {
	clock   clock.Clock
	start   time.Time
	elapsed int64
	manual  bool
	mu      sync.Mutex
}

// New returns a timer in automatic mode that starts counting at the current time of c.
func New(c clock.Clock) *Timer {
	if c == nil {
		c = clock.New()
	}

	return &Timer{
		clock: c,
		start: c.Now(),
	}
}

var (
	processTimer     *Timer
	processTimerOnce sync.Once
)

// Process returns the process-wide timer backed by the real clock.
func Process() *Timer {
	processTimerOnce.Do(func() {
		processTimer = New(clock.New())
	})

	return processTimer
}

// BeginManualUpdates switches the timer to manual mode, freezing the value at the
// current elapsed seconds. The returned release function switches back to automatic
// mode and may be called any number of times.
func (t *Timer) BeginManualUpdates() (func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.manual {
		return func() {}, ErrManualUpdatesActive
	}

	t.elapsed = t.automaticLocked()
	t.manual = true

	var once sync.Once

	return func() {
		once.Do(t.endManualUpdates)
	}, nil
}

func (t *Timer) endManualUpdates() {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Continue counting from the manual value.
	t.start = t.clock.Now().Add(-time.Duration(t.elapsed) * time.Second)
	t.manual = false
}

// IncrementElapsedTime advances the timer by one second and returns the new value.
// Outside of manual mode the call has no effect.
func (t *Timer) IncrementElapsedTime() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.manual {
		return t.automaticLocked()
	}

	t.elapsed++

	return t.elapsed
}

// ElapsedSeconds returns the seconds counted so far.
func (t *Timer) ElapsedSeconds() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.manual {
		return t.elapsed
	}

	return t.automaticLocked()
}

func (t *Timer) IsManual() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.manual
}

func (t *Timer) automaticLocked() int64 {
	return int64(t.clock.Since(t.start) / time.Second)
}
