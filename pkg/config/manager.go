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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/united-manufacturing-hub/ledgercore/pkg/constants"
	"github.com/united-manufacturing-hub/ledgercore/pkg/logger"
	"github.com/united-manufacturing-hub/ledgercore/pkg/metrics"
)

// ErrConfigEmpty is returned when the config file exists but holds nothing.
// This happens when the file is read while being written.
var ErrConfigEmpty = errors.New("config file is empty")

// Manager reads the config file once and hands out copies of it.
type Manager struct {
	path           string
	logger         *zap.SugaredLogger
	maxElapsedTime time.Duration

	mu      sync.RWMutex
	current FullConfig
	loaded  bool
}

func NewManager(path string) *Manager {
	if path == "" {
		path = constants.DefaultConfigPath
	}

	return &Manager{
		path:           path,
		logger:         logger.For(logger.ComponentConfigManager),
		maxElapsedTime: constants.ConfigReadMaxElapsedTime,
	}
}

// WithMaxElapsedTime bounds how long reading is retried.
func (m *Manager) WithMaxElapsedTime(d time.Duration) *Manager {
	m.maxElapsedTime = d

	return m
}

// Load reads the config file, applies defaults and environment overrides and stores
// the result. A missing file yields the defaults. Read errors and empty files are
// retried with exponential backoff, parse errors are not.
func (m *Manager) Load(ctx context.Context) (FullConfig, error) {
	var cfg FullConfig

	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}

		parsed, err := m.read()
		if err != nil {
			return err
		}

		cfg = parsed

		return nil
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 50 * time.Millisecond
	exp.MaxElapsedTime = m.maxElapsedTime

	notify := func(err error, next time.Duration) {
		m.logger.Warnf("Failed to read config file %s, retrying in %s: %v", m.path, next, err)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(exp, ctx), notify); err != nil {
		metrics.IncErrorCount(metrics.ComponentConfig, m.path)

		return FullConfig{}, fmt.Errorf("failed to load config from %s: %w", m.path, err)
	}

	cfg.applyDefaults()
	_ = ApplyEnvOverrides(&cfg, m.logger)

	m.mu.Lock()
	m.current = cfg
	m.loaded = true
	m.mu.Unlock()

	m.logger.Infof("Loaded config from %s", m.path)

	return cfg.Clone(), nil
}

// Get returns a copy of the loaded config, or the defaults before Load succeeded.
func (m *Manager) Get() FullConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.loaded {
		return Default()
	}

	return m.current.Clone()
}

func (m *Manager) read() (FullConfig, error) {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		m.logger.Infof("No config file at %s, using defaults", m.path)

		return FullConfig{}, nil
	}

	if err != nil {
		return FullConfig{}, fmt.Errorf("failed to read config file: %w", err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return FullConfig{}, fmt.Errorf("%w: %s", ErrConfigEmpty, m.path)
	}

	var cfg FullConfig

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&cfg); err != nil {
		return FullConfig{}, backoff.Permanent(fmt.Errorf("failed to parse config file: %w", err))
	}

	return cfg, nil
}
