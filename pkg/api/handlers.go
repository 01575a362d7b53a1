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

package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/united-manufacturing-hub/ledgercore/pkg/feetrack"
	"github.com/united-manufacturing-hub/ledgercore/pkg/loadmanager"
	"github.com/united-manufacturing-hub/ledgercore/pkg/netops"
	"github.com/united-manufacturing-hub/ledgercore/pkg/protocol"
)

type HealthResponse struct {
	State         string `json:"state"`
	Healthy       bool   `json:"healthy"`
	Armed         bool   `json:"armed"`
	StallSeconds  int64  `json:"stall_seconds"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type FeeResponse struct {
	Fee    feetrack.Snapshot `json:"fee"`
	Latest *netops.FeeUpdate `json:"latest"`
}

type FormatSummary struct {
	Family      string `json:"family"`
	Name        string `json:"name"`
	Type        uint16 `json:"type"`
	Fields      int    `json:"fields"`
	Fingerprint string `json:"fingerprint"`
}

type ElementResponse struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Code        uint32 `json:"code"`
	Requirement string `json:"requirement"`
}

type FormatResponse struct {
	FormatSummary
	Elements []ElementResponse `json:"elements"`
}

type handlers struct {
	deps Dependencies
}

func (h *handlers) health(c *gin.Context) {
	resp := HealthResponse{
		State:         h.deps.Load.State(),
		Armed:         h.deps.Load.IsDeadlockDetectorArmed(),
		StallSeconds:  h.deps.Load.StallSeconds(),
		UptimeSeconds: h.deps.Load.UptimeSeconds(),
	}
	resp.Healthy = resp.State == loadmanager.StateRunning

	status := http.StatusOK
	if !resp.Healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, resp)
}

func (h *handlers) fee(c *gin.Context) {
	resp := FeeResponse{Fee: h.deps.Fees.Snapshot()}

	if latest, ok := h.deps.Updates.Latest(); ok {
		resp.Latest = &latest
	}

	c.JSON(http.StatusOK, resp)
}

func (h *handlers) formats(c *gin.Context) {
	summaries := []FormatSummary{}

	if h.deps.Schema != nil {
		for _, family := range h.deps.Schema.Families() {
			formats, _ := h.deps.Schema.Family(family)
			for _, f := range formats.All() {
				summaries = append(summaries, summarize(family, f))
			}
		}
	}

	c.JSON(http.StatusOK, summaries)
}

// format looks the name up in every family unless ?family= narrows it down.
func (h *handlers) format(c *gin.Context) {
	name := c.Param("name")
	wantFamily := c.Query("family")

	if h.deps.Schema != nil {
		for _, family := range h.deps.Schema.Families() {
			if wantFamily != "" && family != wantFamily {
				continue
			}

			formats, _ := h.deps.Schema.Family(family)
			if f, ok := formats.ByName(name); ok {
				c.JSON(http.StatusOK, describe(family, f))

				return
			}
		}
	}

	c.JSON(http.StatusNotFound, gin.H{"error": "unknown format " + name})
}

func summarize(family string, f *protocol.Format) FormatSummary {
	return FormatSummary{
		Family:      family,
		Name:        f.Name(),
		Type:        uint16(f.Type()),
		Fields:      f.Template().Len(),
		Fingerprint: strconv.FormatUint(f.Template().Fingerprint(), 16),
	}
}

func describe(family string, f *protocol.Format) FormatResponse {
	resp := FormatResponse{FormatSummary: summarize(family, f)}

	for _, e := range f.Template().Elements() {
		resp.Elements = append(resp.Elements, ElementResponse{
			Name:        e.Field().Name(),
			Type:        e.Field().Type().String(),
			Code:        uint32(e.Field().Code()),
			Requirement: e.Requirement().String(),
		})
	}

	return resp
}
