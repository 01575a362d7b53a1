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

package loadprobe_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/ledgercore/pkg/loadprobe"
)

type scriptedSampler struct {
	mu      sync.Mutex
	samples []loadprobe.Sample
	err     error
	calls   int
}

func (s *scriptedSampler) Sample(context.Context) (loadprobe.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.err != nil {
		return loadprobe.Sample{}, s.err
	}

	if len(s.samples) == 0 {
		return loadprobe.Sample{}, nil
	}

	next := s.samples[0]
	if len(s.samples) > 1 {
		s.samples = s.samples[1:]
	}

	return next, nil
}

func (s *scriptedSampler) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls
}

var _ = Describe("Probe", func() {
	var (
		mock    *clock.Mock
		sampler *scriptedSampler
		probe   *loadprobe.Probe
	)

	BeforeEach(func() {
		mock = clock.NewMock()
		sampler = &scriptedSampler{}
		probe = loadprobe.New(sampler, mock, 80, time.Second)
	})

	It("is not overloaded before the first sample", func() {
		Expect(probe.IsOverloaded()).To(BeFalse())

		_, ok := probe.Latest()
		Expect(ok).To(BeFalse())
	})

	It("compares the latest cpu reading with the threshold", func() {
		sampler.samples = []loadprobe.Sample{{CPUPercent: 79.9}, {CPUPercent: 80}, {CPUPercent: 12}}

		Expect(probe.Refresh(context.Background())).To(Succeed())
		Expect(probe.IsOverloaded()).To(BeFalse())

		Expect(probe.Refresh(context.Background())).To(Succeed())
		Expect(probe.IsOverloaded()).To(BeTrue())

		Expect(probe.Refresh(context.Background())).To(Succeed())
		Expect(probe.IsOverloaded()).To(BeFalse())
	})

	It("keeps the previous reading when sampling fails", func() {
		sampler.samples = []loadprobe.Sample{{CPUPercent: 95}}
		Expect(probe.Refresh(context.Background())).To(Succeed())

		sampler.err = errors.New("proc not mounted")
		Expect(probe.Refresh(context.Background())).To(MatchError(ContainSubstring("proc not mounted")))
		Expect(probe.IsOverloaded()).To(BeTrue())

		Expect(probe.Diagnostics()).To(HaveKeyWithValue("sample_errors", 1))
	})

	It("stamps samples and exposes them as diagnostics", func() {
		sampler.samples = []loadprobe.Sample{{CPUPercent: 91, Load1: 3.5, MemoryUsedPercent: 40}}
		Expect(probe.Refresh(context.Background())).To(Succeed())

		latest, ok := probe.Latest()
		Expect(ok).To(BeTrue())
		Expect(latest.SampledAt).To(Equal(mock.Now()))

		diag := probe.Diagnostics()
		Expect(diag).To(HaveKeyWithValue("cpu_percent", 91.0))
		Expect(diag).To(HaveKeyWithValue("cpu_threshold", 80.0))
		Expect(diag).To(HaveKeyWithValue("load1", 3.5))
		Expect(diag).To(HaveKeyWithValue("memory_used_percent", 40.0))
	})

	It("samples on every interval until cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})

		var hooks atomic.Int32
		probe.OnSample(func() { hooks.Add(1) })

		go func() {
			defer close(done)
			probe.Run(ctx)
		}()

		Eventually(func() int {
			mock.Add(time.Second)

			return sampler.Calls()
		}, 2*time.Second, 10*time.Millisecond).Should(BeNumerically(">=", 3))

		cancel()
		Eventually(done, time.Second).Should(BeClosed())
		Expect(int(hooks.Load())).To(Equal(sampler.Calls()))
	})

	It("reads the real host", func() {
		sample, err := loadprobe.HostSampler{}.Sample(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(sample.CPUPercent).To(BeNumerically(">=", 0))
		Expect(sample.MemoryUsedPercent).To(BeNumerically(">", 0))
	})
})
