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

// JobQueue reports whether the node's background work is falling behind.
type JobQueue interface {
	IsOverloaded() bool
}

// DiagnosticsProvider is optionally implemented by a JobQueue. The snapshot is only
// requested while overloaded and only when info logging is enabled.
type DiagnosticsProvider interface {
	Diagnostics() map[string]interface{}
}

// FeeTrack adjusts the local fee. Both calls report whether the fee actually changed.
type FeeTrack interface {
	RaiseLocalFee() bool
	LowerLocalFee() bool
}

// NetworkOPs propagates fee changes to peers and clients.
type NetworkOPs interface {
	ReportFeeChange()
}

// Parent supervises the load manager and is told once its loop has exited.
type Parent interface {
	Stopped(name string)
}
