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
	"sort"
	"strings"
)

var (
	ErrInvalidField       = errors.New("invalid field")
	ErrDuplicateFieldCode = errors.New("field code already registered")
	ErrDuplicateFieldName = errors.New("field name already registered")
	ErrUnknownSerialType  = errors.New("unknown serialized type")
	ErrUnknownRequirement = errors.New("unknown requirement")
	ErrInvalidRequirement = errors.New("requirement must not be invalid")
)

// SerializedType is the wire type tag of a field.
type SerializedType uint16

const (
	TypeNotPresent SerializedType = 0
	TypeUInt16     SerializedType = 1
	TypeUInt32     SerializedType = 2
	TypeUInt64     SerializedType = 3
	TypeHash128    SerializedType = 4
	TypeHash256    SerializedType = 5
	TypeAmount     SerializedType = 6
	TypeVL         SerializedType = 7
	TypeAccount    SerializedType = 8
	TypeObject     SerializedType = 14
	TypeArray      SerializedType = 15
	TypeUInt8      SerializedType = 16
	TypeHash160    SerializedType = 17
	TypePathSet    SerializedType = 18
	TypeVector256  SerializedType = 19
)

var serializedTypeNames = map[SerializedType]string{
	TypeUInt16:    "UINT16",
	TypeUInt32:    "UINT32",
	TypeUInt64:    "UINT64",
	TypeHash128:   "HASH128",
	TypeHash256:   "HASH256",
	TypeAmount:    "AMOUNT",
	TypeVL:        "VL",
	TypeAccount:   "ACCOUNT",
	TypeObject:    "OBJECT",
	TypeArray:     "ARRAY",
	TypeUInt8:     "UINT8",
	TypeHash160:   "HASH160",
	TypePathSet:   "PATHSET",
	TypeVector256: "VECTOR256",
}

func (t SerializedType) String() string {
	if name, ok := serializedTypeNames[t]; ok {
		return name
	}

	return fmt.Sprintf("TYPE(%d)", uint16(t))
}

// Valid reports whether t is a known wire type.
func (t SerializedType) Valid() bool {
	_, ok := serializedTypeNames[t]

	return ok
}

// ParseSerializedType accepts the names printed by String, case-insensitively.
func ParseSerializedType(s string) (SerializedType, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for t, name := range serializedTypeNames {
		if name == upper {
			return t, nil
		}
	}

	return TypeNotPresent, fmt.Errorf("%w: %q", ErrUnknownSerialType, s)
}

// FieldCode is the globally unique identity of a field: type in the high 16 bits, value in the low 16.
type FieldCode uint32

// NewFieldCode combines a type tag and a field value.
func NewFieldCode(t SerializedType, value uint16) FieldCode {
	return FieldCode(uint32(t)<<16 | uint32(value))
}

func (c FieldCode) Type() SerializedType {
	return SerializedType(c >> 16)
}

func (c FieldCode) Value() uint16 {
	return uint16(c & 0xffff)
}

// Field identifies a named, typed field usable by every object kind.
// Two fields are the same field exactly when their codes are equal.
type Field struct {
	typ   SerializedType
	value uint16
	name  string
}

// NewField validates and creates a field identity.
func NewField(t SerializedType, value uint16, name string) (Field, error) {
	if !t.Valid() {
		return Field{}, fmt.Errorf("%w: %s has %s", ErrInvalidField, name, t)
	}

	if value == 0 {
		return Field{}, fmt.Errorf("%w: %s has value 0", ErrInvalidField, name)
	}

	if strings.TrimSpace(name) == "" {
		return Field{}, fmt.Errorf("%w: empty name for %s/%d", ErrInvalidField, t, value)
	}

	return Field{typ: t, value: value, name: name}, nil
}

func (f Field) Code() FieldCode {
	return NewFieldCode(f.typ, f.value)
}

func (f Field) Type() SerializedType {
	return f.typ
}

func (f Field) Value() uint16 {
	return f.value
}

func (f Field) Name() string {
	return f.name
}

func (f Field) String() string {
	return fmt.Sprintf("%s(%s/%d)", f.name, f.typ, f.value)
}

// FieldRegistry is the catalogue of every field known to the node.
// It is filled during startup and only read afterwards; it does no locking.
type FieldRegistry struct {
	byCode map[FieldCode]Field
	byName map[string]Field
}

func NewFieldRegistry() *FieldRegistry {
	return &FieldRegistry{
		byCode: make(map[FieldCode]Field),
		byName: make(map[string]Field),
	}
}

// Register adds a field. Reusing a code or a name is rejected.
func (r *FieldRegistry) Register(t SerializedType, value uint16, name string) (Field, error) {
	field, err := NewField(t, value, name)
	if err != nil {
		return Field{}, err
	}

	if existing, ok := r.byCode[field.Code()]; ok {
		return Field{}, fmt.Errorf("%w: %s and %s share code %d", ErrDuplicateFieldCode, existing.name, name, field.Code())
	}

	if _, ok := r.byName[name]; ok {
		return Field{}, fmt.Errorf("%w: %s", ErrDuplicateFieldName, name)
	}

	r.byCode[field.Code()] = field
	r.byName[name] = field

	return field, nil
}

func (r *FieldRegistry) ByCode(code FieldCode) (Field, bool) {
	f, ok := r.byCode[code]

	return f, ok
}

func (r *FieldRegistry) ByName(name string) (Field, bool) {
	f, ok := r.byName[name]

	return f, ok
}

// Fields returns every registered field ordered by code.
func (r *FieldRegistry) Fields() []Field {
	fields := make([]Field, 0, len(r.byCode))
	for _, f := range r.byCode {
		fields = append(fields, f)
	}

	sort.Slice(fields, func(i, j int) bool { return fields[i].Code() < fields[j].Code() })

	return fields
}

func (r *FieldRegistry) Len() int {
	return len(r.byCode)
}
