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

package protocol_test

import (
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/ledgercore/pkg/protocol"
)

func mustField(t protocol.SerializedType, value uint16, name string) protocol.Field {
	f, err := protocol.NewField(t, value, name)
	Expect(err).NotTo(HaveOccurred())

	return f
}

func mustElement(f protocol.Field, r protocol.Requirement) protocol.Element {
	e, err := protocol.NewElement(f, r)
	Expect(err).NotTo(HaveOccurred())

	return e
}

var _ = Describe("Template", func() {
	var (
		fieldA, fieldB, fieldC protocol.Field
		builder                *protocol.TemplateBuilder
	)

	BeforeEach(func() {
		fieldA = mustField(protocol.TypeUInt32, 1, "FieldA")
		fieldB = mustField(protocol.TypeAccount, 1, "FieldB")
		fieldC = mustField(protocol.TypeHash256, 7, "FieldC")
		builder = protocol.NewTemplateBuilder("Example")
	})

	Context("with [(FieldA, Required), (FieldB, Optional)]", func() {
		var tmpl *protocol.Template

		BeforeEach(func() {
			Expect(builder.Append(mustElement(fieldA, protocol.RequirementRequired))).To(Succeed())
			Expect(builder.Append(mustElement(fieldB, protocol.RequirementOptional))).To(Succeed())
			tmpl = builder.Build()
		})

		It("returns the canonical positions", func() {
			Expect(tmpl.Index(fieldA)).To(Equal(0))
			Expect(tmpl.Index(fieldB)).To(Equal(1))
		})

		It("returns NotFound for an undeclared field", func() {
			Expect(tmpl.Index(fieldC)).To(Equal(protocol.NotFound))

			e, ok := tmpl.Lookup(fieldC)
			Expect(ok).To(BeFalse())
			Expect(e.Requirement()).To(Equal(protocol.RequirementInvalid))
			Expect(tmpl.Requirement(fieldC)).To(Equal(protocol.RequirementInvalid))
		})

		It("yields the elements in insertion order", func() {
			elements := tmpl.Elements()
			Expect(elements).To(HaveLen(2))
			Expect(elements[0].Field()).To(Equal(fieldA))
			Expect(elements[1].Field()).To(Equal(fieldB))
			Expect(tmpl.Len()).To(Equal(2))
			Expect(tmpl.Name()).To(Equal("Example"))
		})

		It("returns the element that was added for a field", func() {
			e, ok := tmpl.Lookup(fieldB)
			Expect(ok).To(BeTrue())
			Expect(e.Field()).To(Equal(fieldB))
			Expect(e.Requirement()).To(Equal(protocol.RequirementOptional))
		})

		It("hands out copies of its elements", func() {
			elements := tmpl.Elements()
			elements[0] = mustElement(fieldC, protocol.RequirementDefault)

			Expect(tmpl.Elements()[0].Field()).To(Equal(fieldA))
		})

		It("is safe for concurrent readers", func() {
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					for j := 0; j < 1000; j++ {
						Expect(tmpl.Index(fieldB)).To(Equal(1))
						Expect(tmpl.Index(fieldC)).To(Equal(protocol.NotFound))
					}
				}()
			}
			wg.Wait()
		})
	})

	It("does not re-sort elements by field code", func() {
		Expect(builder.Append(mustElement(fieldC, protocol.RequirementRequired))).To(Succeed())
		Expect(builder.Append(mustElement(fieldA, protocol.RequirementRequired))).To(Succeed())
		tmpl := builder.Build()

		Expect(tmpl.Index(fieldC)).To(Equal(0))
		Expect(tmpl.Index(fieldA)).To(Equal(1))
	})

	It("rejects a duplicate field and keeps the first declaration", func() {
		Expect(builder.Append(mustElement(fieldA, protocol.RequirementRequired))).To(Succeed())

		err := builder.Append(mustElement(fieldA, protocol.RequirementOptional))
		Expect(err).To(MatchError(protocol.ErrDuplicateField))

		tmpl := builder.Build()
		Expect(tmpl.Len()).To(Equal(1))
		Expect(tmpl.Requirement(fieldA)).To(Equal(protocol.RequirementRequired))
	})

	It("treats fields with the same code as the same field", func() {
		alias := mustField(protocol.TypeUInt32, 1, "AliasOfA")
		Expect(builder.Append(mustElement(fieldA, protocol.RequirementRequired))).To(Succeed())
		Expect(builder.Append(mustElement(alias, protocol.RequirementOptional))).To(MatchError(protocol.ErrDuplicateField))
	})

	It("refuses appends after Build", func() {
		Expect(builder.Append(mustElement(fieldA, protocol.RequirementRequired))).To(Succeed())
		tmpl := builder.Build()

		Expect(builder.Append(mustElement(fieldB, protocol.RequirementOptional))).To(MatchError(protocol.ErrTemplateSealed))
		Expect(tmpl.Len()).To(Equal(1))
	})

	It("rejects the zero Element", func() {
		Expect(builder.Append(protocol.Element{})).To(MatchError(protocol.ErrInvalidField))
	})

	Describe("Fingerprint", func() {
		build := func(elements ...protocol.Element) *protocol.Template {
			b := protocol.NewTemplateBuilder("fp")
			Expect(b.AppendAll(elements...)).To(Succeed())

			return b.Build()
		}

		It("is stable for the same layout", func() {
			a := build(mustElement(fieldA, protocol.RequirementRequired), mustElement(fieldB, protocol.RequirementOptional))
			b := build(mustElement(fieldA, protocol.RequirementRequired), mustElement(fieldB, protocol.RequirementOptional))
			Expect(a.Fingerprint()).To(Equal(b.Fingerprint()))
		})

		It("changes with order and requirement", func() {
			base := build(mustElement(fieldA, protocol.RequirementRequired), mustElement(fieldB, protocol.RequirementOptional))
			swapped := build(mustElement(fieldB, protocol.RequirementOptional), mustElement(fieldA, protocol.RequirementRequired))
			relaxed := build(mustElement(fieldA, protocol.RequirementOptional), mustElement(fieldB, protocol.RequirementOptional))

			Expect(swapped.Fingerprint()).NotTo(Equal(base.Fingerprint()))
			Expect(relaxed.Fingerprint()).NotTo(Equal(base.Fingerprint()))
		})
	})
})
