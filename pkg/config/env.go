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

package config

import (
	"errors"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/ledgercore/pkg/env"
)

// ApplyEnvOverrides overwrites config values with environment variables.
//
// Order of precedence (highest to lowest):
// 1. Environment variables (METRICS_PORT, API_PORT, SCHEMA_PATH, LOADMANAGER_ARM_AFTER, LOADPROBE_CPU_THRESHOLD)
// 2. Config file values
// 3. Default values
//
// Malformed variables are logged and ignored, the remaining ones are still applied.
func ApplyEnvOverrides(cfg *FullConfig, log *zap.SugaredLogger) error {
	var errs []error

	metricsPort, err := env.GetAsInt("METRICS_PORT", false, cfg.Node.MetricsPort)
	errs = append(errs, err)
	cfg.Node.MetricsPort = metricsPort

	apiPort, err := env.GetAsInt("API_PORT", false, cfg.Node.APIPort)
	errs = append(errs, err)
	cfg.Node.APIPort = apiPort

	schemaPath, err := env.GetAsString("SCHEMA_PATH", false, cfg.Schema.Path)
	errs = append(errs, err)
	cfg.Schema.Path = schemaPath

	armAfter, err := env.GetAsDuration("LOADMANAGER_ARM_AFTER", false, cfg.LoadManager.ArmAfter)
	errs = append(errs, err)
	cfg.LoadManager.ArmAfter = armAfter

	threshold, err := env.GetAsFloat("LOADPROBE_CPU_THRESHOLD", false, cfg.LoadProbe.CPUThresholdPercent)
	errs = append(errs, err)
	cfg.LoadProbe.CPUThresholdPercent = threshold

	joined := errors.Join(errs...)
	if joined != nil && log != nil {
		log.Warnf("Ignoring malformed environment overrides: %v", joined)
	}

	return joined
}
