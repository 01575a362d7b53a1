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

// Package protocol declares the legal field layout of every object kind exchanged on the wire.
//
// Fields are registered once in a FieldRegistry. Each object kind gets a Template built
// through a TemplateBuilder during startup; Build seals the builder and returns a Template
// that is never mutated again and can be shared by every encoder, decoder and validator.
// The order in which elements are appended is the canonical serialization order.
package protocol
