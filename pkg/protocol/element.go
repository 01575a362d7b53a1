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
	"fmt"
	"strings"
)

// Requirement says whether a field must, may, or may-but-not-as-default appear in an object.
type Requirement int

const (
	// RequirementInvalid is only returned by lookups of fields a template does not declare.
	RequirementInvalid Requirement = -1
	// RequirementRequired fields must be present.
	RequirementRequired Requirement = 0
	// RequirementOptional fields may be present, also with their default value.
	RequirementOptional Requirement = 1
	// RequirementDefault fields may be present, but never with their default value.
	RequirementDefault Requirement = 2
)

func (r Requirement) String() string {
	switch r {
	case RequirementRequired:
		return "required"
	case RequirementOptional:
		return "optional"
	case RequirementDefault:
		return "default"
	case RequirementInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("requirement(%d)", int(r))
	}
}

// Valid reports whether r may be stored in an Element.
func (r Requirement) Valid() bool {
	return r == RequirementRequired || r == RequirementOptional || r == RequirementDefault
}

// ParseRequirement accepts "required", "optional" and "default".
func ParseRequirement(s string) (Requirement, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "required":
		return RequirementRequired, nil
	case "optional":
		return RequirementOptional, nil
	case "default", "optional_no_default":
		return RequirementDefault, nil
	default:
		return RequirementInvalid, fmt.Errorf("%w: %q", ErrUnknownRequirement, s)
	}
}

// Element pairs a field with its requirement inside one template.
// The zero value is not a valid element; use NewElement.
type Element struct {
	field       Field
	requirement Requirement
}

// NewElement rejects RequirementInvalid and any value outside the known set.
func NewElement(field Field, requirement Requirement) (Element, error) {
	if !requirement.Valid() {
		return Element{}, fmt.Errorf("%w: %s for %s", ErrInvalidRequirement, requirement, field.Name())
	}

	return Element{field: field, requirement: requirement}, nil
}

func (e Element) Field() Field {
	return e.field
}

func (e Element) Requirement() Requirement {
	return e.requirement
}

func (e Element) String() string {
	return e.field.Name() + ":" + e.requirement.String()
}
