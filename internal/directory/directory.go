// Package directory is the mocked provider directory. Search relevance is a
// keyword-in-qualification filter, which is all the demo needs.
package directory

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/agentis-health/discharge-orchestrator/internal/jsonrpc"
)

var Tools = []jsonrpc.ToolInfo{
	{
		Name: "hca.directory.search_providers",
		Input: map[string]any{
			"patient_id":      "string",
			"location":        "string",
			"roles":           []string{"string"},
			"consent_context": "object",
		},
		Output: map[string]any{"type": "providers_list"},
	},
}

// Provider is one directory entry.
type Provider struct {
	ResourceType  string         `json:"resourceType"`
	ID            string         `json:"id"`
	Name          []NameEntry    `json:"name"`
	Telecom       []Telecom      `json:"telecom"`
	Qualification []Qual         `json:"qualification"`
	Location      map[string]any `json:"location"`
}

type NameEntry struct {
	Text string `json:"text"`
}

type Telecom struct {
	System string `json:"system"`
	Value  string `json:"value"`
}

type Qual struct {
	Code struct {
		Text string `json:"text"`
	} `json:"code"`
}

func qual(text string) Qual {
	var q Qual
	q.Code.Text = text
	return q
}

var fixture = []Provider{
	{
		ResourceType:  "Practitioner",
		ID:            "prac-001",
		Name:          []NameEntry{{Text: "Dr Alex GP"}},
		Telecom:       []Telecom{{System: "phone", Value: "+61 2 9000 0001"}},
		Qualification: []Qual{qual("General Practitioner (GP)")},
		Location:      map[string]any{"postcode": "2000"},
	},
	{
		ResourceType:  "Practitioner",
		ID:            "prac-002",
		Name:          []NameEntry{{Text: "Case Manager Kim"}},
		Telecom:       []Telecom{{System: "phone", Value: "+61 2 9000 0002"}},
		Qualification: []Qual{qual("Mental Health Case Manager")},
		Location:      map[string]any{"postcode": "2000"},
	},
	{
		ResourceType:  "Practitioner",
		ID:            "prac-003",
		Name:          []NameEntry{{Text: "Pharmacist Pat"}},
		Telecom:       []Telecom{{System: "phone", Value: "+61 2 9000 0003"}},
		Qualification: []Qual{qual("Pharmacist")},
		Location:      map[string]any{"postcode": "2000"},
	},
}

// SearchParams is the search_providers input.
type SearchParams struct {
	PatientID string   `json:"patient_id"`
	Location  string   `json:"location"`
	Roles     []string `json:"roles"`
}

// Search filters the fixture panel by postcode and role keywords.
func Search(params SearchParams) map[string]any {
	location := params.Location
	if location == "" {
		location = "2000"
	}

	out := make([]Provider, 0, len(fixture))
	for _, p := range fixture {
		if p.Location["postcode"] != location {
			continue
		}
		if !roleMatches(p, params.Roles) {
			continue
		}
		out = append(out, p)
	}

	return map[string]any{
		"count":     len(out),
		"providers": out,
		"ts":        time.Now().UTC().Format(time.RFC3339),
	}
}

func roleMatches(p Provider, roles []string) bool {
	if len(roles) == 0 {
		return true
	}
	for _, role := range roles {
		for _, q := range p.Qualification {
			if strings.Contains(strings.ToLower(q.Code.Text), strings.ToLower(role)) {
				return true
			}
		}
	}
	return false
}

// RegisterOn wires the directory tools onto a JSON-RPC server.
func RegisterOn(srv *jsonrpc.Server) {
	srv.Register("hca.directory.search_providers", func(raw json.RawMessage) (any, error) {
		var params SearchParams
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &params); err != nil {
				return nil, err
			}
		}
		return Search(params), nil
	})
}
