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

package constants

import "time"

const (
	// LoadManagerTickInterval is the nominal period of the admission control loop.
	// The uptime counter advances by exactly one second per tick, so this must stay at one second
	// outside of tests.
	LoadManagerTickInterval = time.Second

	// StallReportIntervalSeconds is how often (in seconds of stall) the deadlock detector logs a warning.
	StallReportIntervalSeconds = 10

	// StallFatalThresholdSeconds is the stall duration after which the deadlock detector gives up.
	// Reaching it means the deadlock resolution itself has failed and the process terminates.
	StallFatalThresholdSeconds = 500

	// DefaultDeadlockArmDelay is the warm-up after start before the deadlock detector is armed,
	// so that slow startup is not reported as a stall.
	DefaultDeadlockArmDelay = 30 * time.Second

	// LoadManagerStopTimeout bounds how long the supervisor waits for the admission loop to exit.
	LoadManagerStopTimeout = 3 * time.Second
)
