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
	ErrDuplicateFormatName = errors.New("format name already registered")
	ErrDuplicateFormatType = errors.New("format type already registered")
	ErrFormatsSealed       = errors.New("formats already built")
)

// FormatType is the numeric object kind carried on the wire (transaction type, ledger entry type).
type FormatType uint16

// Format binds an object kind to its template.
type Format struct {
	name     string
	typ      FormatType
	template *Template
}

func (f *Format) Name() string {
	return f.name
}

func (f *Format) Type() FormatType {
	return f.typ
}

func (f *Format) Template() *Template {
	return f.template
}

// FormatsBuilder registers the object kinds of one family, e.g. all transaction types.
// Common elements are placed in front of every kind's own elements.
type FormatsBuilder struct {
	family string
	common []Element
	byName map[string]*Format
	byType map[FormatType]*Format
	order  []*Format
	sealed bool
}

func NewFormatsBuilder(family string, common ...Element) *FormatsBuilder {
	return &FormatsBuilder{
		family: family,
		common: common,
		byName: make(map[string]*Format),
		byType: make(map[FormatType]*Format),
	}
}

// Add registers an object kind. Its template is common elements followed by elements.
func (b *FormatsBuilder) Add(name string, typ FormatType, elements ...Element) (*Format, error) {
	if b.sealed {
		return nil, fmt.Errorf("%w: %s", ErrFormatsSealed, b.family)
	}

	if _, ok := b.byName[name]; ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrDuplicateFormatName, name, b.family)
	}

	if existing, ok := b.byType[typ]; ok {
		return nil, fmt.Errorf("%w: %s and %s share type %d in %s", ErrDuplicateFormatType, existing.name, name, typ, b.family)
	}

	tb := NewTemplateBuilder(name)
	if err := tb.AppendAll(b.common...); err != nil {
		return nil, fmt.Errorf("failed to add common fields to %s: %w", name, err)
	}

	if err := tb.AppendAll(elements...); err != nil {
		return nil, fmt.Errorf("failed to build template for %s: %w", name, err)
	}

	f := &Format{name: name, typ: typ, template: tb.Build()}
	b.byName[name] = f
	b.byType[typ] = f
	b.order = append(b.order, f)

	return f, nil
}

// Build seals the builder.
func (b *FormatsBuilder) Build() *Formats {
	b.sealed = true

	formats := &Formats{
		family: b.family,
		byName: make(map[string]*Format, len(b.byName)),
		byType: make(map[FormatType]*Format, len(b.byType)),
		order:  make([]*Format, len(b.order)),
	}
	copy(formats.order, b.order)

	for _, f := range b.order {
		formats.byName[f.name] = f
		formats.byType[f.typ] = f
	}

	return formats
}

// Formats is the read-only set of object kinds of one family.
type Formats struct {
	family string
	byName map[string]*Format
	byType map[FormatType]*Format
	order  []*Format
}

func (f *Formats) Family() string {
	return f.family
}

func (f *Formats) ByName(name string) (*Format, bool) {
	format, ok := f.byName[name]

	return format, ok
}

func (f *Formats) ByType(typ FormatType) (*Format, bool) {
	format, ok := f.byType[typ]

	return format, ok
}

// All returns the formats in registration order.
func (f *Formats) All() []*Format {
	all := make([]*Format, len(f.order))
	copy(all, f.order)

	return all
}

func (f *Formats) Len() int {
	return len(f.order)
}
