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

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/united-manufacturing-hub/ledgercore/pkg/uptime"
)

var _ = Describe("LoadManager", func() {
	var (
		mock    *clock.Mock
		timer   *uptime.Timer
		logs    *observer.ObservedLogs
		log     *zap.SugaredLogger
		queue   *fakeJobQueue
		fees    *fakeFeeTrack
		netops  *fakeNetworkOPs
		parent  *fakeParent
		fatals  []error
		manager *LoadManager
	)

	newConfig := func() Config {
		return Config{
			JobQueue:   queue,
			FeeTrack:   fees,
			NetworkOPs: netops,
			Parent:     parent,
			Clock:      mock,
			Uptime:     timer,
			Logger:     log,
			FatalHandler: func(err error) {
				fatals = append(fatals, err)
			},
		}
	}

	BeforeEach(func() {
		mock = clock.NewMock()
		timer = uptime.New(mock)

		var core zapcore.Core
		core, logs = observer.New(zapcore.DebugLevel)
		log = zap.New(core).Sugar()

		queue = &fakeJobQueue{}
		fees = &fakeFeeTrack{}
		netops = &fakeNetworkOPs{}
		parent = &fakeParent{}
		fatals = nil
	})

	JustBeforeEach(func() {
		var err error
		manager, err = NewLoadManager(newConfig())
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(manager.Close()).To(Succeed())
	})

	Describe("construction", func() {
		It("requires every collaborator", func() {
			cfg := newConfig()
			cfg.Uptime = uptime.New(mock)
			cfg.NetworkOPs = nil

			_, err := NewLoadManager(cfg)
			Expect(err).To(MatchError(ErrMissingCollaborator))
			Expect(cfg.Uptime.IsManual()).To(BeFalse())
		})

		It("owns manual uptime updates until closed", func() {
			Expect(timer.IsManual()).To(BeTrue())

			_, err := NewLoadManager(newConfig())
			Expect(err).To(MatchError(uptime.ErrManualUpdatesActive))

			Expect(manager.Close()).To(Succeed())
			Expect(timer.IsManual()).To(BeFalse())

			Expect(manager.Close()).To(Succeed())
		})

		It("starts in the created state with defaults applied", func() {
			Expect(manager.State()).To(Equal(StateCreated))
			Expect(manager.Name()).To(Equal("LoadManager"))
			Expect(manager.interval).To(Equal(time.Second))
			Expect(manager.IsDeadlockDetectorArmed()).To(BeFalse())
		})
	})

	Describe("tick", func() {
		Context("with an overload predicate alternating between ticks", func() {
			BeforeEach(func() {
				queue.overloaded = []bool{true, false}
				fees.changed = []bool{true, true, false, false, true, false}
			})

			It("makes exactly one fee call per tick and reports only real changes", func() {
				for range 12 {
					manager.tick()
				}

				calls := fees.Calls()
				Expect(calls).To(HaveLen(12))

				changes := 0
				for i, call := range calls {
					if i%2 == 0 {
						Expect(call.direction).To(Equal("raise"))
					} else {
						Expect(call.direction).To(Equal("lower"))
					}
					if call.changed {
						changes++
					}
				}

				Expect(netops.Reports()).To(Equal(changes))
				Expect(netops.Reports()).To(Equal(6))
				Expect(manager.UptimeSeconds()).To(Equal(int64(12)))
			})
		})

		It("logs the job queue diagnostics while overloaded", func() {
			q := &diagnosticJobQueue{}
			q.overloaded = []bool{true}

			cfg := newConfig()
			cfg.JobQueue = q
			cfg.Uptime = uptime.New(mock)

			lm, err := NewLoadManager(cfg)
			Expect(err).NotTo(HaveOccurred())
			defer func() { Expect(lm.Close()).To(Succeed()) }()

			lm.tick()

			entries := logs.FilterMessageSnippet("overloaded").All()
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Level).To(Equal(zapcore.InfoLevel))
			Expect(entries[0].Message).To(ContainSubstring(`"jobs":3`))
		})

		It("skips the diagnostics when info logging is disabled", func() {
			core, quiet := observer.New(zapcore.WarnLevel)

			cfg := newConfig()
			cfg.JobQueue = &diagnosticJobQueue{fakeJobQueue{overloaded: []bool{true}}}
			cfg.Uptime = uptime.New(mock)
			cfg.Logger = zap.New(core).Sugar()

			lm, err := NewLoadManager(cfg)
			Expect(err).NotTo(HaveOccurred())
			defer func() { Expect(lm.Close()).To(Succeed()) }()

			lm.tick()
			Expect(quiet.Len()).To(BeZero())
			Expect(fees.Calls()).To(ConsistOf(feeCall{direction: "raise"}))
		})

		It("feeds the deadlock detector", func() {
			manager.ActivateDeadlockDetector()

			for range 25 {
				manager.tick()
			}

			Expect(logs.FilterMessageSnippet("Server stalled").Len()).To(Equal(2))

			manager.ResetDeadlockDetector()
			Expect(manager.StallSeconds()).To(BeZero())

			for range 500 {
				manager.tick()
			}
			Expect(fatals).To(HaveLen(1))
		})
	})

	Describe("schedule", func() {
		It("targets the previous wake time plus one interval", func() {
			t0 := mock.Now()

			next, wait, jumped := manager.schedule(t0, t0.Add(30*time.Millisecond))
			Expect(jumped).To(BeFalse())
			Expect(next).To(Equal(t0.Add(time.Second)))
			Expect(wait).To(Equal(970 * time.Millisecond))
		})

		It("resynchronizes once after a slow tick and then keeps the cadence", func() {
			t0 := mock.Now()

			next, _, _ := manager.schedule(t0, t0)

			slow := t0.Add(2500 * time.Millisecond)
			next, wait, jumped := manager.schedule(next, slow)
			Expect(jumped).To(BeTrue())
			Expect(wait).To(BeZero())
			Expect(next).To(Equal(slow))

			for i := range 5 {
				now := next.Add(10 * time.Millisecond)
				next, wait, jumped = manager.schedule(next, now)
				Expect(jumped).To(BeFalse())
				Expect(wait).To(Equal(990 * time.Millisecond))
				Expect(next).To(Equal(slow.Add(time.Duration(i+1) * time.Second)))
			}

			Expect(logs.FilterMessageSnippet("time jump").Len()).To(Equal(1))
		})

		It("treats a clock moving backwards as a time jump", func() {
			t0 := mock.Now()

			next, wait, jumped := manager.schedule(t0, t0.Add(-5*time.Second))
			Expect(jumped).To(BeTrue())
			Expect(wait).To(BeZero())
			Expect(next).To(Equal(t0.Add(-5 * time.Second)))
		})
	})

	Describe("lifecycle", func() {
		It("stops immediately when never started", func() {
			Expect(manager.Prepare(context.Background())).To(Succeed())
			Expect(manager.State()).To(Equal(StatePrepared))

			Expect(manager.Stop(context.Background())).To(Succeed())
			Expect(manager.State()).To(Equal(StateStopped))
			Expect(manager.Done()).To(BeClosed())

			Expect(manager.Stop(context.Background())).To(Succeed())
			Expect(parent.Names()).To(Equal([]string{"LoadManager"}))

			Expect(manager.Start(context.Background())).NotTo(Succeed())
		})

		It("refuses to start before being prepared", func() {
			Expect(manager.Start(context.Background())).NotTo(Succeed())
			Expect(manager.State()).To(Equal(StateCreated))
		})

		It("ticks while running and exits on stop without leaking goroutines", func() {
			leakOpts := goleak.IgnoreCurrent()

			queue.overloaded = []bool{true}
			fees.changed = []bool{true}

			Expect(manager.Prepare(context.Background())).To(Succeed())
			Expect(manager.Start(context.Background())).To(Succeed())
			Expect(manager.State()).To(Equal(StateRunning))

			Eventually(func() int {
				mock.Add(time.Second)

				return len(fees.Calls())
			}, 5*time.Second, 10*time.Millisecond).Should(BeNumerically(">=", 3))

			Expect(manager.Stop(context.Background())).To(Succeed())
			Eventually(manager.Done(), 2*time.Second).Should(BeClosed())
			Expect(manager.State()).To(Equal(StateStopped))

			Expect(manager.Close()).To(Succeed())
			Expect(parent.Names()).To(Equal([]string{"LoadManager"}))
			Expect(netops.Reports()).To(BeNumerically(">=", 3))

			goleak.VerifyNone(GinkgoT(), leakOpts)
		})

		It("interrupts the sleep when stopped", func() {
			Expect(manager.Prepare(context.Background())).To(Succeed())
			Expect(manager.Start(context.Background())).To(Succeed())

			Eventually(func() int { return len(fees.Calls()) }, time.Second, 5*time.Millisecond).Should(Equal(1))

			Expect(manager.Stop(context.Background())).To(Succeed())
			Eventually(manager.Done(), time.Second).Should(BeClosed())
			Expect(fees.Calls()).To(HaveLen(1))
		})
	})
})
