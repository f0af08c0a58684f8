package emr

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/agentis-health/discharge-orchestrator/internal/jsonrpc"
)

func runLine(t *testing.T, srv *jsonrpc.Server, line string) []jsonrpc.Response {
	t.Helper()
	var out bytes.Buffer
	if err := srv.Serve(strings.NewReader(line+"\n"), &out); err != nil {
		t.Fatalf("Serve() = %v", err)
	}
	var responses []jsonrpc.Response
	for _, raw := range bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n")) {
		var resp jsonrpc.Response
		if err := json.Unmarshal(raw, &resp); err != nil {
			t.Fatalf("response %q: %v", raw, err)
		}
		responses = append(responses, resp)
	}
	return responses
}

func TestPatientBundleParityPolicy(t *testing.T) {
	m := NewMock()

	t.Run("Odd patient gets the full bundle", func(t *testing.T) {
		bundle := m.PatientBundle("123")
		if bundle["resourceType"] != "Bundle" {
			t.Fatalf("bundle = %v", bundle["resourceType"])
		}
		entries, _ := bundle["entry"].([]map[string]any)
		if len(entries) != 7 {
			t.Errorf("bundle entries = %d, want patient, encounter, care team, care plan, medication, observation, service request", len(entries))
		}
	})

	t.Run("Even patient gets a denial object", func(t *testing.T) {
		bundle := m.PatientBundle("2")
		if bundle["denied"] != true || bundle["reason"] != "access_denied_by_policy" {
			t.Errorf("bundle = %v, want denial object", bundle)
		}
	})

	t.Run("Empty id defaults to fixture patient", func(t *testing.T) {
		bundle := m.PatientBundle("")
		if bundle["resourceType"] != "Bundle" {
			t.Errorf("bundle = %v, want default fixture bundle", bundle)
		}
	})
}

func TestDischargeEventShape(t *testing.T) {
	evt := NewMock().DischargeEvent("7")
	if evt["specversion"] != "1.0" || evt["subject"] != "Patient/7" {
		t.Errorf("event = %v", evt)
	}
	data, _ := evt["data"].(map[string]any)
	if data["dischargeSummaryId"] != "DS-789" || data["patientId"] != "7" {
		t.Errorf("event data = %v", data)
	}
}

func TestResourceGet(t *testing.T) {
	m := NewMock()

	t.Run("Known resource by id", func(t *testing.T) {
		out, err := m.ResourceGet("MedicationRequest", "med-1")
		if err != nil {
			t.Fatalf("ResourceGet() = %v", err)
		}
		res, _ := out["resource"].(map[string]any)
		if res["id"] != "med-1" {
			t.Errorf("resource = %v", res)
		}
	})

	t.Run("Unknown resource type errors", func(t *testing.T) {
		if _, err := m.ResourceGet("Appointment", "x"); err == nil {
			t.Error("ResourceGet() = nil, want unsupported type error")
		}
	})

	t.Run("Missing id errors", func(t *testing.T) {
		if _, err := m.ResourceGet("Patient", "999"); err == nil {
			t.Error("ResourceGet() = nil, want not-found error")
		}
	})
}

func TestSearchFiltersBySubject(t *testing.T) {
	m := NewMock()

	t.Run("Fixture patient medications", func(t *testing.T) {
		out, err := m.Search("MedicationRequest", "123")
		if err != nil {
			t.Fatalf("Search() = %v", err)
		}
		if out["total"] != 1 {
			t.Errorf("total = %v, want the single fixture medication", out["total"])
		}
	})

	t.Run("Other patient matches nothing", func(t *testing.T) {
		out, err := m.Search("Observation", "7")
		if err != nil {
			t.Fatalf("Search() = %v", err)
		}
		if out["total"] != 0 {
			t.Errorf("total = %v, want 0", out["total"])
		}
	})

	t.Run("Empty referral search synthesizes one for odd patients", func(t *testing.T) {
		out, err := m.Search("ServiceRequest", "7")
		if err != nil {
			t.Fatalf("Search() = %v", err)
		}
		entries, _ := out["entry"].([]map[string]any)
		if out["total"] != 1 || len(entries) != 1 {
			t.Fatalf("result = %v, want one synthesized referral", out)
		}
		res, _ := entries[0]["resource"].(map[string]any)
		if res["id"] != "sr-auto-7" {
			t.Errorf("referral id = %v", res["id"])
		}
	})

	t.Run("Empty referral search stays empty for even patients", func(t *testing.T) {
		out, err := m.Search("ServiceRequest", "8")
		if err != nil {
			t.Fatalf("Search() = %v", err)
		}
		if out["total"] != 0 {
			t.Errorf("total = %v, want 0", out["total"])
		}
	})

	t.Run("Unsupported type errors", func(t *testing.T) {
		if _, err := m.Search("Patient", "123"); err == nil {
			t.Error("Search() = nil, want unsupported type error")
		}
	})
}

func TestSmartTokenDefaultsScope(t *testing.T) {
	tok := NewMock().SmartToken("")
	if tok["access_token"] != "mock-token" || tok["scope"] != "user/*.*" {
		t.Errorf("token = %v", tok)
	}
	if tok["expires_in"] != 3600 {
		t.Errorf("expires_in = %v", tok["expires_in"])
	}
}

func TestAuditTrailAccumulatesMutations(t *testing.T) {
	m := NewMock()

	if out := m.AuditSearch("", "", ""); out["count"] != 0 {
		t.Fatalf("fresh mock audit count = %v, want 0", out["count"])
	}

	if _, err := m.WriteBack("Observation"); err != nil {
		t.Fatalf("WriteBack() = %v", err)
	}
	m.InbasketAlert("123")

	t.Run("Unfiltered search returns both entries", func(t *testing.T) {
		out := m.AuditSearch("", "", "")
		if out["count"] != 2 {
			t.Errorf("count = %v, want write-back and alert", out["count"])
		}
	})

	t.Run("Action filter narrows to the write-back", func(t *testing.T) {
		out := m.AuditSearch("Agent/demo-client", "", "create")
		entries, _ := out["entries"].([]map[string]any)
		if out["count"] != 1 || len(entries) != 1 {
			t.Fatalf("result = %v, want one create entry", out)
		}
		if entries[0]["entity_ref"] != "Observation/Observation-mock-1" {
			t.Errorf("entity_ref = %v", entries[0]["entity_ref"])
		}
	})

	t.Run("Non-matching actor returns nothing", func(t *testing.T) {
		out := m.AuditSearch("Agent/other", "", "")
		if out["count"] != 0 {
			t.Errorf("count = %v, want 0", out["count"])
		}
	})
}

func TestWriteBackRequiresResourceType(t *testing.T) {
	srv := jsonrpc.NewServer(Tools)
	NewMock().RegisterOn(srv)

	responses := runLine(t, srv, `{"jsonrpc":"2.0","id":"1","method":"epic.fhir_write_back.create","params":{}}`)
	if responses[0].Error == nil || responses[0].Error.Code != jsonrpc.CodeServerError {
		t.Errorf("response = %+v, want server error for missing resource_type", responses[0])
	}

	responses = runLine(t, srv, `{"jsonrpc":"2.0","id":"2","method":"epic.fhir_write_back.create","params":{"resource_type":"Task"}}`)
	var result map[string]string
	if err := json.Unmarshal(responses[0].Result, &result); err != nil {
		t.Fatal(err)
	}
	if result["status"] != "created" || result["id"] == "" {
		t.Errorf("write-back result = %v", result)
	}
}
