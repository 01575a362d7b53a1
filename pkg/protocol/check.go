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

package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownField         = errors.New("field not declared for this object kind")
	ErrMissingRequiredField = errors.New("required field missing")
	ErrDefaultValuePresent  = errors.New("field present with its default value")
	ErrFieldPresentTwice    = errors.New("field present more than once")
)

// PresentField describes one field found in an object being parsed or serialized.
type PresentField struct {
	Field     Field
	IsDefault bool
}

// Check applies the presence rules of t to the fields of one object and returns every violation.
// A nil result means the object's field set conforms to the template.
func (t *Template) Check(fields []PresentField) error {
	var errs []error

	seen := make(map[FieldCode]bool, len(fields))

	for _, pf := range fields {
		code := pf.Field.Code()
		if seen[code] {
			errs = append(errs, fmt.Errorf("%w: %s", ErrFieldPresentTwice, pf.Field.Name()))

			continue
		}

		seen[code] = true

		e, ok := t.Lookup(pf.Field)
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s in %s", ErrUnknownField, pf.Field.Name(), t.name))

			continue
		}

		if e.requirement == RequirementDefault && pf.IsDefault {
			errs = append(errs, fmt.Errorf("%w: %s in %s", ErrDefaultValuePresent, pf.Field.Name(), t.name))
		}
	}

	for _, e := range t.elements {
		if e.requirement == RequirementRequired && !seen[e.field.Code()] {
			errs = append(errs, fmt.Errorf("%w: %s in %s", ErrMissingRequiredField, e.field.Name(), t.name))
		}
	}

	return errors.Join(errs...)
}
