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

package lifecycle_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap/zaptest"

	"github.com/united-manufacturing-hub/ledgercore/pkg/feetrack"
	"github.com/united-manufacturing-hub/ledgercore/pkg/lifecycle"
	"github.com/united-manufacturing-hub/ledgercore/pkg/loadmanager"
	"github.com/united-manufacturing-hub/ledgercore/pkg/netops"
	"github.com/united-manufacturing-hub/ledgercore/pkg/uptime"
)

type recorder struct {
	mu    sync.Mutex
	steps []string
}

func (r *recorder) add(step string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.steps = append(r.steps, step)
}

func (r *recorder) Steps() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.steps...)
}

type fakeChild struct {
	name     string
	rec      *recorder
	parent   *lifecycle.Supervisor
	startErr error
	hang     bool
	done     chan struct{}
	once     sync.Once
}

func newFakeChild(name string, rec *recorder, parent *lifecycle.Supervisor) *fakeChild {
	return &fakeChild{name: name, rec: rec, parent: parent, done: make(chan struct{})}
}

func (c *fakeChild) Name() string { return c.name }

func (c *fakeChild) Prepare(context.Context) error {
	c.rec.add("prepare " + c.name)

	return nil
}

func (c *fakeChild) Start(context.Context) error {
	c.rec.add("start " + c.name)

	return c.startErr
}

func (c *fakeChild) Stop(context.Context) error {
	if c.hang {
		return nil
	}

	c.once.Do(func() {
		close(c.done)
		c.parent.Stopped(c.name)
	})

	return nil
}

func (c *fakeChild) Done() <-chan struct{} { return c.done }

var _ = Describe("Supervisor", func() {
	var (
		rec        *recorder
		supervisor *lifecycle.Supervisor
	)

	BeforeEach(func() {
		rec = &recorder{}
		supervisor = lifecycle.NewSupervisor(zaptest.NewLogger(GinkgoT()).Sugar())
	})

	It("prepares every child before starting them in order", func() {
		supervisor.Add(newFakeChild("a", rec, supervisor))
		supervisor.Add(newFakeChild("b", rec, supervisor))

		Expect(supervisor.Start(context.Background())).To(Succeed())
		Expect(rec.Steps()).To(Equal([]string{"prepare a", "prepare b", "start a", "start b"}))

		Expect(supervisor.Stop(context.Background())).To(Succeed())
		Expect(supervisor.StoppedCount("a")).To(Equal(1))
		Expect(supervisor.StoppedCount("b")).To(Equal(1))
	})

	It("stops at the first child that fails to start", func() {
		broken := newFakeChild("b", rec, supervisor)
		broken.startErr = errors.New("port in use")

		supervisor.Add(newFakeChild("a", rec, supervisor))
		supervisor.Add(broken)
		supervisor.Add(newFakeChild("c", rec, supervisor))

		err := supervisor.Start(context.Background())
		Expect(err).To(MatchError(ContainSubstring("failed to start b")))
		Expect(rec.Steps()).NotTo(ContainElement("start c"))
	})

	It("gives up on children that never finish", func() {
		stuck := newFakeChild("stuck", rec, supervisor)
		stuck.hang = true
		supervisor.Add(stuck)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		Expect(supervisor.Stop(ctx)).To(MatchError(lifecycle.ErrStopTimeout))
	})

	It("supervises a load manager", func() {
		mock := clock.NewMock()
		tracker := feetrack.New(nil)
		broadcaster := netops.NewBroadcaster(tracker, mock)
		defer broadcaster.Close()

		lm, err := loadmanager.NewLoadManager(loadmanager.Config{
			JobQueue:   alwaysIdle{},
			FeeTrack:   tracker,
			NetworkOPs: broadcaster,
			Parent:     supervisor,
			Clock:      mock,
			Uptime:     uptime.New(mock),
		})
		Expect(err).NotTo(HaveOccurred())
		defer func() { Expect(lm.Close()).To(Succeed()) }()

		supervisor.Add(lm)
		Expect(supervisor.Start(context.Background())).To(Succeed())
		Expect(lm.State()).To(Equal(loadmanager.StateRunning))

		Eventually(lm.UptimeSeconds, time.Second).Should(BeNumerically(">=", 1))

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		Expect(supervisor.Stop(ctx)).To(Succeed())
		Expect(lm.State()).To(Equal(loadmanager.StateStopped))
		Expect(supervisor.StoppedCount(lm.Name())).To(Equal(1))
	})
})

type alwaysIdle struct{}

func (alwaysIdle) IsOverloaded() bool { return false }
