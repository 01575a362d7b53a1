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

import "github.com/looplab/fsm"

const (
	StateCreated       = "created"
	StatePrepared      = "prepared"
	StateRunning       = "running"
	StateStopRequested = "stop_requested"
	StateStopped       = "stopped"
)

const (
	EventPrepare  = "prepare"
	EventStart    = "start"
	EventStop     = "stop"
	EventFinished = "finished"
)

// lifecycleEvents are the allowed transitions. Stopping a load manager that never ran
// goes straight to stopped, a running one waits for its loop to exit.
func lifecycleEvents() fsm.Events {
	return fsm.Events{
		{Name: EventPrepare, Src: []string{StateCreated}, Dst: StatePrepared},
		{Name: EventStart, Src: []string{StatePrepared}, Dst: StateRunning},
		{Name: EventStop, Src: []string{StateRunning}, Dst: StateStopRequested},
		{Name: EventStop, Src: []string{StateCreated, StatePrepared}, Dst: StateStopped},
		{Name: EventFinished, Src: []string{StateStopRequested}, Dst: StateStopped},
	}
}
