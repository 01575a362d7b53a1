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

// Package api serves the node's status over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/ledgercore/pkg/feetrack"
	"github.com/united-manufacturing-hub/ledgercore/pkg/logger"
	"github.com/united-manufacturing-hub/ledgercore/pkg/metrics"
	"github.com/united-manufacturing-hub/ledgercore/pkg/netops"
	"github.com/united-manufacturing-hub/ledgercore/pkg/protocol"
)

// LoadStatus is implemented by the load manager.
type LoadStatus interface {
	State() string
	IsDeadlockDetectorArmed() bool
	StallSeconds() int64
	UptimeSeconds() int64
}

type FeeStatus interface {
	Snapshot() feetrack.Snapshot
}

type FeeUpdates interface {
	Latest() (netops.FeeUpdate, bool)
}

// Dependencies of the status API. Schema may be nil.
type Dependencies struct {
	Load    LoadStatus
	Fees    FeeStatus
	Updates FeeUpdates
	Schema  *protocol.Schema
}

type Server struct {
	server *http.Server
	router *gin.Engine
	logger *zap.SugaredLogger
	port   int
}

func NewServer(deps Dependencies, port int, debug bool) *Server {
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		logger: logger.For(logger.ComponentAPI),
		port:   port,
	}

	count := 0
	if deps.Schema != nil {
		count = deps.Schema.FormatCount()
	}

	metrics.SetRegisteredFormats(count)

	s.router = newRouter(deps, s.logger)

	return s
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Infow("Starting status API", "port", s.port)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status API failed: %w", err)
	}

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	s.logger.Info("Stopping status API")

	return s.server.Shutdown(ctx)
}

func newRouter(deps Dependencies, log *zap.SugaredLogger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(func(c *gin.Context) {
		start := time.Now()

		c.Next()

		log.Debugw("Status API request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	})

	h := &handlers{deps: deps}

	v1 := router.Group("/v1")
	v1.GET("/health", h.health)
	v1.GET("/fee", h.fee)
	v1.GET("/formats", h.formats)
	v1.GET("/formats/:name", h.format)

	return router
}
