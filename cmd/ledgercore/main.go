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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/ledgercore/pkg/api"
	"github.com/united-manufacturing-hub/ledgercore/pkg/config"
	"github.com/united-manufacturing-hub/ledgercore/pkg/constants"
	"github.com/united-manufacturing-hub/ledgercore/pkg/env"
	"github.com/united-manufacturing-hub/ledgercore/pkg/feetrack"
	"github.com/united-manufacturing-hub/ledgercore/pkg/lifecycle"
	"github.com/united-manufacturing-hub/ledgercore/pkg/loadmanager"
	"github.com/united-manufacturing-hub/ledgercore/pkg/loadprobe"
	"github.com/united-manufacturing-hub/ledgercore/pkg/logger"
	"github.com/united-manufacturing-hub/ledgercore/pkg/metrics"
	"github.com/united-manufacturing-hub/ledgercore/pkg/netops"
	"github.com/united-manufacturing-hub/ledgercore/pkg/protocol"
	"github.com/united-manufacturing-hub/ledgercore/pkg/sentry"
	"github.com/united-manufacturing-hub/ledgercore/pkg/uptime"
	"github.com/united-manufacturing-hub/ledgercore/pkg/version"
)

func main() {
	// Initialize the global logger first thing
	logger.Initialize()
	defer func() { _ = logger.Sync() }()

	sentry.InitSentry(version.GetAppVersion(), true)

	log := logger.For(logger.ComponentCore)
	log.Infof("Starting ledgercore %s", version.GetAppVersion())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configPath, _ := env.GetAsString("CONFIG_PATH", false, constants.DefaultConfigPath)

	cfg, err := config.NewManager(configPath).Load(ctx)
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeFatal, log, "Failed to load config: %v", err)
	}

	metricsServer := metrics.SetupMetricsEndpoint(fmt.Sprintf(":%d", cfg.Node.MetricsPort))
	defer shutdown(log, "metrics server", metricsServer.Shutdown)

	schema := loadSchema(log, cfg.Schema.Path)

	realClock := clock.New()
	tracker := feetrack.New(nil)

	broadcaster := netops.NewBroadcaster(tracker, realClock)
	defer broadcaster.Close()

	probe := loadprobe.New(loadprobe.HostSampler{}, realClock, cfg.LoadProbe.CPUThresholdPercent, cfg.LoadProbe.SampleInterval)

	supervisor := lifecycle.NewSupervisor(nil)

	lm, err := loadmanager.NewLoadManager(loadmanager.Config{
		JobQueue:            probe,
		FeeTrack:            tracker,
		NetworkOPs:          broadcaster,
		Parent:              supervisor,
		Clock:               realClock,
		Uptime:              uptime.Process(),
		TickInterval:        cfg.LoadManager.TickInterval,
		StallReportInterval: cfg.LoadManager.StallReportInterval,
		StallFatalThreshold: cfg.LoadManager.StallFatalThreshold,
	})
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeFatal, log, "Failed to create load manager: %v", err)
	}

	defer func() {
		if err := lm.Close(); err != nil {
			log.Errorf("Failed to close load manager: %v", err)
		}
	}()

	// The sampling loop is the liveness source of the deadlock detector.
	probe.OnSample(lm.ResetDeadlockDetector)

	go probe.Run(ctx)

	supervisor.Add(lm)

	if err := supervisor.Start(ctx); err != nil {
		sentry.ReportIssuef(sentry.IssueTypeFatal, log, "Failed to start services: %v", err)
	}

	go armAfter(ctx, log, lm, cfg.LoadManager.ArmAfter)

	apiServer := api.NewServer(api.Dependencies{
		Load:    lm,
		Fees:    tracker,
		Updates: broadcaster,
		Schema:  schema,
	}, cfg.Node.APIPort, false)

	go func() {
		if err := apiServer.Start(); err != nil {
			sentry.ReportIssue(err, sentry.IssueTypeError, log)
		}
	}()
	defer shutdown(log, "status API", apiServer.Stop)

	<-ctx.Done()
	log.Info("Shutdown requested")

	stopCtx, cancel := context.WithTimeout(context.Background(), constants.LoadManagerStopTimeout)
	defer cancel()

	if err := supervisor.Stop(stopCtx); err != nil {
		sentry.ReportIssuef(sentry.IssueTypeError, log, "Failed to stop services: %v", err)
	}

	log.Info("ledgercore stopped")
}

func loadSchema(log *zap.SugaredLogger, path string) *protocol.Schema {
	if path == "" {
		log.Info("No schema configured, running without object formats")

		return nil
	}

	schema, err := protocol.LoadSchemaFile(path)
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeFatal, log, "Failed to load schema from %s: %v", path, err)
	}

	log.Infof("Loaded %d fields and %d formats from %s", schema.Fields.Len(), schema.FormatCount(), path)

	return schema
}

// armAfter activates the deadlock detector once startup had time to settle.
func armAfter(ctx context.Context, log *zap.SugaredLogger, lm *loadmanager.LoadManager, delay time.Duration) {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
		lm.ActivateDeadlockDetector()
		log.Infof("Deadlock detector armed after %s", delay)
	}
}

// shutdown gives a server the same 3 second budget the process supervisor allows.
func shutdown(log *zap.SugaredLogger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := fn(ctx); err != nil {
		log.Errorf("Failed to shut down %s: %v", name, err)
	}
}
