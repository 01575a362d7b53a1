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

// Package lifecycle starts and stops the node's background services in order.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/united-manufacturing-hub/ledgercore/pkg/logger"
	"github.com/united-manufacturing-hub/ledgercore/pkg/metrics"
)

// ErrStopTimeout is returned when a child did not reach its stopped state before the context ended.
var ErrStopTimeout = errors.New("child did not stop in time")

// Child is a supervised service. It must call Supervisor.Stopped with its name once
// its background work has exited, and close Done at the same time.
type Child interface {
	Name() string
	Prepare(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Done() <-chan struct{}
}

// Supervisor prepares and starts children in the order they were added and stops
// them concurrently.
type Supervisor struct {
	logger *zap.SugaredLogger

	mu       sync.Mutex
	children []Child
	started  []Child
	stopped  map[string]int
}

func NewSupervisor(log *zap.SugaredLogger) *Supervisor {
	if log == nil {
		log = logger.For(logger.ComponentSupervisor)
	}

	return &Supervisor{
		logger:  log,
		stopped: make(map[string]int),
	}
}

func (s *Supervisor) Add(child Child) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.children = append(s.children, child)
}

// Stopped is called back by children once they exited.
func (s *Supervisor) Stopped(name string) {
	s.mu.Lock()
	s.stopped[name]++
	count := s.stopped[name]
	s.mu.Unlock()

	if count > 1 {
		s.logger.Warnf("%s reported stopped %d times", name, count)
		metrics.IncErrorCount(metrics.ComponentSupervisor, name)

		return
	}

	s.logger.Infof("%s stopped", name)
}

// StoppedCount returns how often a child reported stopped.
func (s *Supervisor) StoppedCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stopped[name]
}

// Start prepares every child, then starts them in order. If a child fails to start,
// the children started so far keep running; call Stop to shut them down.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	children := make([]Child, len(s.children))
	copy(children, s.children)
	s.mu.Unlock()

	for _, child := range children {
		if err := child.Prepare(ctx); err != nil {
			return fmt.Errorf("failed to prepare %s: %w", child.Name(), err)
		}
	}

	for _, child := range children {
		if err := child.Start(ctx); err != nil {
			return fmt.Errorf("failed to start %s: %w", child.Name(), err)
		}

		s.mu.Lock()
		s.started = append(s.started, child)
		s.mu.Unlock()

		s.logger.Debugf("%s started", child.Name())
	}

	return nil
}

// Stop asks every child to stop and waits until all of them are done or ctx ends.
// Children that were never started are stopped as well.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	children := make([]Child, len(s.children))
	copy(children, s.children)
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	for _, child := range children {
		g.Go(func() error {
			if err := child.Stop(gctx); err != nil {
				return fmt.Errorf("failed to stop %s: %w", child.Name(), err)
			}

			select {
			case <-child.Done():
				return nil
			case <-gctx.Done():
				return fmt.Errorf("%w: %s", ErrStopTimeout, child.Name())
			}
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.Errorf("Failed to stop all children: %v", err)

		return err
	}

	s.logger.Info("All children stopped")

	return nil
}
