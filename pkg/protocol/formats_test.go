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
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/ledgercore/pkg/protocol"
)

var _ = Describe("Formats", func() {
	var (
		txType, account, amount protocol.Field
		builder                 *protocol.FormatsBuilder
	)

	BeforeEach(func() {
		txType = mustField(protocol.TypeUInt16, 2, "TransactionType")
		account = mustField(protocol.TypeAccount, 1, "Account")
		amount = mustField(protocol.TypeAmount, 1, "Amount")
		builder = protocol.NewFormatsBuilder("transactions",
			mustElement(txType, protocol.RequirementRequired),
			mustElement(account, protocol.RequirementRequired),
		)
	})

	It("places common fields in front of every format", func() {
		_, err := builder.Add("Payment", 0, mustElement(amount, protocol.RequirementRequired))
		Expect(err).NotTo(HaveOccurred())

		formats := builder.Build()
		payment, ok := formats.ByName("Payment")
		Expect(ok).To(BeTrue())
		Expect(payment.Type()).To(Equal(protocol.FormatType(0)))
		Expect(payment.Template().Index(txType)).To(Equal(0))
		Expect(payment.Template().Index(account)).To(Equal(1))
		Expect(payment.Template().Index(amount)).To(Equal(2))

		byType, ok := formats.ByType(0)
		Expect(ok).To(BeTrue())
		Expect(byType).To(BeIdenticalTo(payment))
		Expect(formats.Family()).To(Equal("transactions"))
	})

	It("rejects duplicate names and types", func() {
		_, err := builder.Add("Payment", 0)
		Expect(err).NotTo(HaveOccurred())

		_, err = builder.Add("Payment", 1)
		Expect(err).To(MatchError(protocol.ErrDuplicateFormatName))

		_, err = builder.Add("OfferCreate", 0)
		Expect(err).To(MatchError(protocol.ErrDuplicateFormatType))
	})

	It("rejects a format repeating a common field", func() {
		_, err := builder.Add("Broken", 9, mustElement(account, protocol.RequirementOptional))
		Expect(err).To(MatchError(protocol.ErrDuplicateField))
	})

	It("keeps registration order and refuses additions once built", func() {
		_, _ = builder.Add("B", 2)
		_, _ = builder.Add("A", 1)
		formats := builder.Build()

		_, err := builder.Add("C", 3)
		Expect(err).To(MatchError(protocol.ErrFormatsSealed))

		all := formats.All()
		Expect(all).To(HaveLen(2))
		Expect(all[0].Name()).To(Equal("B"))
		Expect(all[1].Name()).To(Equal("A"))
		Expect(formats.Len()).To(Equal(2))
	})
})
