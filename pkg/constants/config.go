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
	// DefaultConfigPath is where the node looks for its configuration file unless CONFIG_PATH is set.
	DefaultConfigPath = "/data/config.yaml"

	// DefaultMetricsPort serves /metrics.
	DefaultMetricsPort = 8080

	// DefaultAPIPort serves the status API.
	DefaultAPIPort = 8090

	// DefaultCPUOverloadThresholdPercent is the host CPU utilisation at which the load probe reports overload.
	DefaultCPUOverloadThresholdPercent = 90.0

	// ConfigReadMaxElapsedTime bounds the exponential backoff used while reading the config file.
	ConfigReadMaxElapsedTime = 10 * time.Second
)

const (
	// DefaultAppVersion is used for local builds without ldflags.
	DefaultAppVersion = "0.0.0-dev"

	DefaultDevelopmentEnvironment = "development"
	DefaultProductionEnvironment  = "production"
)
