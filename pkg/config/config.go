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
	"time"

	"github.com/tiendc/go-deepcopy"

	"github.com/united-manufacturing-hub/ledgercore/pkg/constants"
)

// FullConfig is the content of the node's config file.
type FullConfig struct {
	Node        NodeConfig        `yaml:"node"`
	LoadManager LoadManagerConfig `yaml:"loadManager"`
	LoadProbe   LoadProbeConfig   `yaml:"loadProbe"`
	Schema      SchemaConfig      `yaml:"schema"`
}

type NodeConfig struct {
	MetricsPort int               `yaml:"metricsPort"`
	APIPort     int               `yaml:"apiPort"`
	Labels      map[string]string `yaml:"labels,omitempty"`
}

type LoadManagerConfig struct {
	// TickInterval should only be changed in tests, uptime counts one second per tick.
	TickInterval        time.Duration `yaml:"tickInterval,omitempty"`
	ArmAfter            time.Duration `yaml:"armAfter"`
	StallReportInterval int64         `yaml:"stallReportInterval,omitempty"`
	StallFatalThreshold int64         `yaml:"stallFatalThreshold,omitempty"`
}

type LoadProbeConfig struct {
	CPUThresholdPercent float64       `yaml:"cpuThresholdPercent"`
	SampleInterval      time.Duration `yaml:"sampleInterval,omitempty"`
}

// SchemaConfig points at the YAML file declaring fields and object formats.
// Without a path the node runs with an empty schema.
type SchemaConfig struct {
	Path string `yaml:"path,omitempty"`
}

// Default returns the config used when no file exists.
func Default() FullConfig {
	var c FullConfig
	c.applyDefaults()

	return c
}

func (c *FullConfig) applyDefaults() {
	if c.Node.MetricsPort == 0 {
		c.Node.MetricsPort = constants.DefaultMetricsPort
	}

	if c.Node.APIPort == 0 {
		c.Node.APIPort = constants.DefaultAPIPort
	}

	if c.LoadManager.TickInterval == 0 {
		c.LoadManager.TickInterval = constants.LoadManagerTickInterval
	}

	if c.LoadManager.ArmAfter == 0 {
		c.LoadManager.ArmAfter = constants.DefaultDeadlockArmDelay
	}

	if c.LoadManager.StallReportInterval == 0 {
		c.LoadManager.StallReportInterval = constants.StallReportIntervalSeconds
	}

	if c.LoadManager.StallFatalThreshold == 0 {
		c.LoadManager.StallFatalThreshold = constants.StallFatalThresholdSeconds
	}

	if c.LoadProbe.CPUThresholdPercent == 0 {
		c.LoadProbe.CPUThresholdPercent = constants.DefaultCPUOverloadThresholdPercent
	}

	if c.LoadProbe.SampleInterval == 0 {
		c.LoadProbe.SampleInterval = constants.LoadManagerTickInterval
	}
}

// Clone creates a deep copy of FullConfig
func (c FullConfig) Clone() FullConfig {
	var clone FullConfig
	_ = deepcopy.Copy(&clone, &c)

	return clone
}
