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
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// NotFound is the position returned for fields a template does not declare.
const NotFound = -1

var (
	ErrDuplicateField = errors.New("field already declared in template")
	ErrTemplateSealed = errors.New("template already built")
)

// TemplateBuilder collects the elements of one object kind during startup.
// A builder is not safe for concurrent use; Build seals it and hands out the read-only Template.
type TemplateBuilder struct {
	name     string
	elements []Element
	index    map[FieldCode]int
	sealed   bool
}

func NewTemplateBuilder(name string) *TemplateBuilder {
	return &TemplateBuilder{
		name:  name,
		index: make(map[FieldCode]int),
	}
}

// Append adds e at the end of the canonical field order.
// A field that is already declared is rejected and the builder is left unchanged.
func (b *TemplateBuilder) Append(e Element) error {
	if b.sealed {
		return fmt.Errorf("%w: %s", ErrTemplateSealed, b.name)
	}

	if !e.field.typ.Valid() {
		return fmt.Errorf("%w: zero field in %s", ErrInvalidField, b.name)
	}

	if !e.requirement.Valid() {
		return fmt.Errorf("%w: %s in %s", ErrInvalidRequirement, e.field.Name(), b.name)
	}

	code := e.field.Code()
	if pos, ok := b.index[code]; ok {
		return fmt.Errorf("%w: %s at position %d of %s", ErrDuplicateField, e.field.Name(), pos, b.name)
	}

	b.index[code] = len(b.elements)
	b.elements = append(b.elements, e)

	return nil
}

// AppendAll appends elements in order and stops at the first error.
func (b *TemplateBuilder) AppendAll(elements ...Element) error {
	for _, e := range elements {
		if err := b.Append(e); err != nil {
			return err
		}
	}

	return nil
}

// Build seals the builder and returns the template. Calling it twice returns the same content.
func (b *TemplateBuilder) Build() *Template {
	b.sealed = true

	elements := make([]Element, len(b.elements))
	copy(elements, b.elements)

	index := make(map[FieldCode]int, len(b.index))
	for code, pos := range b.index {
		index[code] = pos
	}

	t := &Template{
		name:     b.name,
		elements: elements,
		index:    index,
	}
	t.fingerprint = fingerprint(elements)

	return t
}

// Template is the legal field layout of one object kind, in canonical serialization order.
// It has no mutating methods and may be shared by any number of goroutines.
type Template struct {
	name        string
	elements    []Element
	index       map[FieldCode]int
	fingerprint uint64
}

func (t *Template) Name() string {
	return t.name
}

func (t *Template) Len() int {
	return len(t.elements)
}

// Index returns the canonical position of field, or NotFound.
func (t *Template) Index(field Field) int {
	if pos, ok := t.index[field.Code()]; ok {
		return pos
	}

	return NotFound
}

// Lookup returns the element declared for field.
func (t *Template) Lookup(field Field) (Element, bool) {
	pos := t.Index(field)
	if pos == NotFound {
		return Element{field: field, requirement: RequirementInvalid}, false
	}

	return t.elements[pos], true
}

// Requirement returns RequirementInvalid for undeclared fields.
func (t *Template) Requirement(field Field) Requirement {
	e, _ := t.Lookup(field)

	return e.requirement
}

// Elements returns a copy of the elements in insertion order.
func (t *Template) Elements() []Element {
	elements := make([]Element, len(t.elements))
	copy(elements, t.elements)

	return elements
}

// Fingerprint is a hash of the field order and requirements. Nodes with different
// fingerprints for the same object kind will not produce the same canonical bytes.
func (t *Template) Fingerprint() uint64 {
	return t.fingerprint
}

func fingerprint(elements []Element) uint64 {
	h := xxhash.New()

	var buf [5]byte
	for _, e := range elements {
		binary.BigEndian.PutUint32(buf[:4], uint32(e.field.Code()))
		buf[4] = byte(e.requirement)
		_, _ = h.Write(buf[:])
	}

	return h.Sum64()
}
