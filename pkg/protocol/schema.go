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
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

var ErrUnknownFieldName = errors.New("field name not registered")

// Schema is everything loaded from a schema file: the field catalogue and the format families.
type Schema struct {
	Fields   *FieldRegistry
	families map[string]*Formats
}

// Family returns the formats registered under name, e.g. "transactions".
func (s *Schema) Family(name string) (*Formats, bool) {
	f, ok := s.families[name]

	return f, ok
}

// Families returns the family names in lexical order.
func (s *Schema) Families() []string {
	names := make([]string, 0, len(s.families))
	for name := range s.families {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// FormatCount is the number of object kinds over all families.
func (s *Schema) FormatCount() int {
	n := 0
	for _, f := range s.families {
		n += f.Len()
	}

	return n
}

type schemaFile struct {
	Fields   []fieldSpec  `yaml:"fields"`
	Families []familySpec `yaml:"families"`
}

type fieldSpec struct {
	Name  string `yaml:"name"`
	Type  string `yaml:"type"`
	Value uint16 `yaml:"value"`
}

type familySpec struct {
	Name    string        `yaml:"name"`
	Common  []elementSpec `yaml:"common"`
	Formats []formatSpec  `yaml:"formats"`
}

type formatSpec struct {
	Name   string        `yaml:"name"`
	Type   FormatType    `yaml:"type"`
	Fields []elementSpec `yaml:"fields"`
}

type elementSpec struct {
	Field       string `yaml:"field"`
	Requirement string `yaml:"requirement"`
}

// LoadSchemaFile reads a YAML schema from path.
func LoadSchemaFile(path string) (*Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open schema file: %w", err)
	}
	defer f.Close()

	return LoadSchema(f)
}

// LoadSchema parses a YAML schema:
//
//	fields:
//	  - {name: Account, type: ACCOUNT, value: 1}
//	families:
//	  - name: transactions
//	    common:
//	      - {field: Account, requirement: required}
//	    formats:
//	      - name: AccountSet
//	        type: 3
//	        fields:
//	          - {field: Flags, requirement: optional}
//
// Element order in the file is the canonical field order.
func LoadSchema(r io.Reader) (*Schema, error) {
	var file schemaFile

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}

	registry := NewFieldRegistry()

	for _, fs := range file.Fields {
		t, err := ParseSerializedType(fs.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", fs.Name, err)
		}

		if _, err := registry.Register(t, fs.Value, fs.Name); err != nil {
			return nil, err
		}
	}

	schema := &Schema{
		Fields:   registry,
		families: make(map[string]*Formats, len(file.Families)),
	}

	for _, fam := range file.Families {
		if _, ok := schema.families[fam.Name]; ok {
			return nil, fmt.Errorf("%w: family %s", ErrDuplicateFormatName, fam.Name)
		}

		common, err := resolveElements(registry, fam.Common)
		if err != nil {
			return nil, fmt.Errorf("family %s: %w", fam.Name, err)
		}

		builder := NewFormatsBuilder(fam.Name, common...)

		for _, fmtSpec := range fam.Formats {
			elements, err := resolveElements(registry, fmtSpec.Fields)
			if err != nil {
				return nil, fmt.Errorf("format %s: %w", fmtSpec.Name, err)
			}

			if _, err := builder.Add(fmtSpec.Name, fmtSpec.Type, elements...); err != nil {
				return nil, err
			}
		}

		schema.families[fam.Name] = builder.Build()
	}

	return schema, nil
}

func resolveElements(registry *FieldRegistry, specs []elementSpec) ([]Element, error) {
	elements := make([]Element, 0, len(specs))

	for _, spec := range specs {
		field, ok := registry.ByName(spec.Field)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFieldName, spec.Field)
		}

		req, err := ParseRequirement(spec.Requirement)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", spec.Field, err)
		}

		e, err := NewElement(field, req)
		if err != nil {
			return nil, err
		}

		elements = append(elements, e)
	}

	return elements, nil
}
