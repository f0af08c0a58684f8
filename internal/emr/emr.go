// Package emr is the mocked EMR collaborator: deterministic FHIR-ish
// fixtures behind the JSON-RPC tool surface. Resources are loose maps on
// purpose; nothing here implements real FHIR semantics.
package emr

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/agentis-health/discharge-orchestrator/internal/jsonrpc"
)

const fixturePatientID = "123"

// Tools is the catalogue reported by mcp.list_tools.
var Tools = []jsonrpc.ToolInfo{
	{Name: "epic.discharge_event.get", Input: map[string]any{}, Output: map[string]any{"type": "cloudevent"}},
	{Name: "epic.patient_bundle.get", Input: map[string]any{"patient_id": "string"}, Output: map[string]any{"type": "fhir_bundle"}},
	{Name: "epic.resource.get", Input: map[string]any{"resource_type": "string", "id": "string"}, Output: map[string]any{"resource": "object"}},
	{Name: "epic.search", Input: map[string]any{"resource_type": "string", "patient_id": "string"}, Output: map[string]any{"total": "number", "entry": "array"}},
	{Name: "epic.fhir_write_back.create", Input: map[string]any{"resource_type": "string", "resource_json": "object"}, Output: map[string]any{"id": "string", "status": "string"}},
	{Name: "epic.inbasket.alert", Input: map[string]any{"patient_id": "string", "subject": "string", "body": "string", "priority": "string"}, Output: map[string]any{"status": "string", "alert_id": "string"}},
	{Name: "auth.smart.token", Input: map[string]any{"scope": "string"}, Output: map[string]any{"access_token": "string", "expires_in": "number", "scope": "string"}},
	{Name: "epic.audit.search", Input: map[string]any{"actor_ref": "string", "entity_ref": "string", "action": "string"}, Output: map[string]any{"count": "number", "entries": "array"}},
}

// demoActorRef is the actor recorded against every mutation the mock
// performs on behalf of its caller.
const demoActorRef = "Agent/demo-client"

// Mock holds the fixture state for one EMR mock process. Mutations from the
// write-back and in-basket tools accumulate in the audit trail for the
// lifetime of the process.
type Mock struct {
	writeSeq int
	audit    []map[string]any
	stores   map[string]map[string]map[string]any
}

func NewMock() *Mock {
	return &Mock{stores: fixtureStores()}
}

// fixtureStores builds the per-type resource stores for the demo patient.
// Odd-numbered patients outside the fixture set get synthesized bundles and
// referrals instead of stored resources.
func fixtureStores() map[string]map[string]map[string]any {
	return map[string]map[string]map[string]any{
		"Patient":           {fixturePatientID: patientResource(fixturePatientID)},
		"Encounter":         {"ENC-456": encounterResource(fixturePatientID)},
		"CareTeam":          {"ct-001": careTeamResource(fixturePatientID)},
		"CarePlan":          {"cp-1": carePlanResource(fixturePatientID)},
		"MedicationRequest": {"med-1": medicationRequestResource(fixturePatientID)},
		"Observation":       {"phq9-obs-1": observationResource(fixturePatientID)},
		"ServiceRequest":    {"sr-1": serviceRequestFixture(fixturePatientID)},
		"Consent":           {"cons-1": consentResource(fixturePatientID)},
		"DocumentReference": {"doc-1": documentReferenceResource(fixturePatientID)},
		"Practitioner": {
			"prov-001": practitionerResource("prov-001", "Dr Alex GP", "General Practitioner"),
			"prov-002": practitionerResource("prov-002", "Case Manager Kim", "Mental Health Case Manager"),
			"prov-003": practitionerResource("prov-003", "Pharmacist Pat", "Pharmacist"),
			"prov-004": practitionerResource("prov-004", "Dr Harper Hospitalist", "Hospital Medicine"),
		},
		"Organization": {
			"org-001": organizationResource("org-001", "Demo Health Service", "Hospital"),
			"org-002": organizationResource("org-002", "City Community Mental Health Centre", "Community Health"),
		},
		"Location": {"loc-001": locationResource()},
		"Task":     {},
	}
}

// RegisterOn wires the tool handlers onto a JSON-RPC server.
func (m *Mock) RegisterOn(srv *jsonrpc.Server) {
	srv.Register("epic.discharge_event.get", func(params json.RawMessage) (any, error) {
		var p struct {
			PatientID string `json:"patient_id"`
		}
		_ = json.Unmarshal(params, &p)
		return m.DischargeEvent(p.PatientID), nil
	})
	srv.Register("epic.patient_bundle.get", func(params json.RawMessage) (any, error) {
		var p struct {
			PatientID string `json:"patient_id"`
		}
		_ = json.Unmarshal(params, &p)
		return m.PatientBundle(p.PatientID), nil
	})
	srv.Register("epic.resource.get", func(params json.RawMessage) (any, error) {
		var p struct {
			ResourceType string `json:"resource_type"`
			ID           string `json:"id"`
		}
		_ = json.Unmarshal(params, &p)
		return m.ResourceGet(p.ResourceType, p.ID)
	})
	srv.Register("epic.search", func(params json.RawMessage) (any, error) {
		var p struct {
			ResourceType string `json:"resource_type"`
			PatientID    string `json:"patient_id"`
		}
		_ = json.Unmarshal(params, &p)
		return m.Search(p.ResourceType, p.PatientID)
	})
	srv.Register("epic.fhir_write_back.create", func(params json.RawMessage) (any, error) {
		var p struct {
			ResourceType string `json:"resource_type"`
		}
		_ = json.Unmarshal(params, &p)
		return m.WriteBack(p.ResourceType)
	})
	srv.Register("epic.inbasket.alert", func(params json.RawMessage) (any, error) {
		var p struct {
			PatientID string `json:"patient_id"`
			Subject   string `json:"subject"`
		}
		_ = json.Unmarshal(params, &p)
		return m.InbasketAlert(p.PatientID), nil
	})
	srv.Register("auth.smart.token", func(params json.RawMessage) (any, error) {
		var p struct {
			Scope string `json:"scope"`
		}
		_ = json.Unmarshal(params, &p)
		return m.SmartToken(p.Scope), nil
	})
	srv.Register("epic.audit.search", func(params json.RawMessage) (any, error) {
		var p struct {
			ActorRef  string `json:"actor_ref"`
			EntityRef string `json:"entity_ref"`
			Action    string `json:"action"`
		}
		_ = json.Unmarshal(params, &p)
		return m.AuditSearch(p.ActorRef, p.EntityRef, p.Action), nil
	})
}

// DischargeEvent returns the discharge CloudEvent for a patient.
func (m *Mock) DischargeEvent(patientID string) map[string]any {
	if patientID == "" {
		patientID = fixturePatientID
	}
	now := time.Now().UTC()
	return map[string]any{
		"specversion":     "1.0",
		"type":            "epic.discharge.summary",
		"source":          "mcp:epic.discharge_event",
		"id":              fmt.Sprintf("evt-%d", now.UnixMilli()),
		"time":            now.Format(time.RFC3339),
		"datacontenttype": "application/fhir+json",
		"subject":         "Patient/" + patientID,
		"data": map[string]any{
			"dischargeSummaryId":  "DS-789",
			"patientId":           patientID,
			"encounterId":         "ENC-456",
			"diagnoses":           []string{"F33.1"},
			"followUpRecommended": true,
		},
	}
}

// PatientBundle returns the FHIR bundle for a patient. Even-numbered patient
// ids return a denial object, mirroring the mock's access-policy convention.
func (m *Mock) PatientBundle(patientID string) map[string]any {
	if patientID == "" {
		patientID = fixturePatientID
	}
	if n, err := strconv.Atoi(patientID); err == nil && n%2 == 0 {
		return map[string]any{
			"denied":     true,
			"reason":     "access_denied_by_policy",
			"patient_id": patientID,
			"message":    "Patient bundle access is denied for this patient in the mock.",
		}
	}

	entries := []map[string]any{
		{"resource": patientResource(patientID)},
		{"resource": encounterResource(patientID)},
		{"resource": careTeamResource(patientID)},
		{"resource": carePlanResource(patientID)},
		{"resource": medicationRequestResource(patientID)},
		{"resource": observationResource(patientID)},
		{"resource": serviceRequestResource(patientID)},
	}
	return map[string]any{
		"resourceType": "Bundle",
		"type":         "collection",
		"total":        len(entries),
		"entry":        entries,
	}
}

// ResourceGet looks one resource up by type and id.
func (m *Mock) ResourceGet(resourceType, id string) (map[string]any, error) {
	store, ok := m.stores[resourceType]
	if !ok {
		return nil, fmt.Errorf("unsupported resource_type: %s", resourceType)
	}
	res, ok := store[id]
	if !ok {
		return nil, fmt.Errorf("resource not found: %s/%s", resourceType, id)
	}
	return map[string]any{"resource": res}, nil
}

// searchableTypes are the stores epic.search may filter by subject.
var searchableTypes = map[string]bool{
	"MedicationRequest": true,
	"Observation":       true,
	"ServiceRequest":    true,
	"CareTeam":          true,
	"CarePlan":          true,
	"Encounter":         true,
}

// Search filters a store by the patient's subject reference. A ServiceRequest
// search that comes up empty synthesizes a referral for odd-numbered
// (share-allowed) demo patients so the referral flow always has something to
// work with.
func (m *Mock) Search(resourceType, patientID string) (map[string]any, error) {
	if !searchableTypes[resourceType] {
		return nil, fmt.Errorf("unsupported search resource_type: %s", resourceType)
	}
	if patientID == "" {
		patientID = fixturePatientID
	}

	subject := "Patient/" + patientID
	entries := []map[string]any{}
	for _, res := range m.stores[resourceType] {
		if subjectRefOf(res) == subject {
			entries = append(entries, map[string]any{"resource": res})
		}
	}

	if resourceType == "ServiceRequest" && len(entries) == 0 {
		if n, err := strconv.Atoi(patientID); err == nil && n%2 == 1 {
			entries = append(entries, map[string]any{"resource": serviceRequestResource(patientID)})
		}
	}
	return map[string]any{"total": len(entries), "entry": entries}, nil
}

func subjectRefOf(res map[string]any) string {
	for _, key := range []string{"subject", "for"} {
		if ref, ok := res[key].(map[string]any); ok {
			if s, ok := ref["reference"].(string); ok {
				return s
			}
		}
	}
	return ""
}

// WriteBack accepts a create and records it on the audit trail.
func (m *Mock) WriteBack(resourceType string) (map[string]any, error) {
	if resourceType == "" {
		return nil, fmt.Errorf("resource_type is required")
	}
	m.writeSeq++
	id := fmt.Sprintf("%s-mock-%d", resourceType, m.writeSeq)
	m.recordAudit("create", fmt.Sprintf("%s/%s", resourceType, id), "success")
	return map[string]any{
		"id":     id,
		"status": "created",
	}, nil
}

// InbasketAlert accepts an alert and records it on the audit trail.
func (m *Mock) InbasketAlert(patientID string) map[string]any {
	m.writeSeq++
	alertID := fmt.Sprintf("alert-%d", m.writeSeq)
	m.recordAudit("alert", "Patient/"+patientID, "sent")
	return map[string]any{
		"status":   "sent",
		"alert_id": alertID,
	}
}

// SmartToken issues a static demo access token.
func (m *Mock) SmartToken(scope string) map[string]any {
	if scope == "" {
		scope = "user/*.*"
	}
	return map[string]any{
		"access_token": "mock-token",
		"expires_in":   3600,
		"scope":        scope,
	}
}

func (m *Mock) recordAudit(action, entityRef, outcome string) {
	m.audit = append(m.audit, map[string]any{
		"audit_id":   fmt.Sprintf("aud-%d", m.writeSeq),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"actor_ref":  demoActorRef,
		"action":     action,
		"entity_ref": entityRef,
		"outcome":    outcome,
		"source":     "emr-mock",
	})
}

// AuditSearch filters the accumulated audit trail. Empty filter values match
// everything.
func (m *Mock) AuditSearch(actorRef, entityRef, action string) map[string]any {
	out := []map[string]any{}
	for _, entry := range m.audit {
		if actorRef != "" && entry["actor_ref"] != actorRef {
			continue
		}
		if entityRef != "" && entry["entity_ref"] != entityRef {
			continue
		}
		if action != "" && entry["action"] != action {
			continue
		}
		out = append(out, entry)
	}
	return map[string]any{"count": len(out), "entries": out}
}

func patientResource(patientID string) map[string]any {
	if patientID == fixturePatientID {
		return map[string]any{
			"resourceType": "Patient",
			"id":           patientID,
			"identifier": []map[string]any{
				{"system": "urn:mrn", "value": "MRN-123-LOCAL"},
				{"system": "http://ns.electronichealth.net.au/id/hi/ihi/1.0", "value": "8003608166690503"},
			},
			"name":      []map[string]any{{"text": "Jane Doe", "given": []string{"Jane"}, "family": "Doe"}},
			"gender":    "female",
			"birthDate": "1989-06-15",
			"address":   []map[string]any{{"line": []string{"1 Demo St"}, "city": "Sydney", "state": "NSW", "postalCode": "2000"}},
		}
	}
	return map[string]any{
		"resourceType": "Patient",
		"id":           patientID,
		"identifier":   []map[string]any{{"system": "urn:mrn", "value": "MRN-" + patientID + "-MOCK"}},
		"name":         []map[string]any{{"text": "Mock Patient " + patientID, "given": []string{"Mock"}, "family": patientID}},
		"gender":       "unknown",
		"birthDate":    "1980-01-01",
		"address":      []map[string]any{{"line": []string{"1 Example St"}, "city": "Sydney", "state": "NSW", "postalCode": "2000"}},
	}
}

func encounterResource(patientID string) map[string]any {
	return map[string]any{
		"resourceType":    "Encounter",
		"id":              "ENC-456",
		"status":          "finished",
		"class":           map[string]any{"code": "inpatient"},
		"subject":         map[string]any{"reference": "Patient/" + patientID},
		"serviceProvider": map[string]any{"reference": "Organization/org-001"},
		"period":          map[string]any{"start": "2025-11-01T10:00:00Z", "end": time.Now().UTC().Format(time.RFC3339)},
	}
}

func careTeamResource(patientID string) map[string]any {
	return map[string]any{
		"resourceType": "CareTeam",
		"id":           "ct-001",
		"status":       "active",
		"name":         "Mental Health MDT",
		"subject":      map[string]any{"reference": "Patient/" + patientID},
		"participant": []map[string]any{
			{"member": map[string]any{"reference": "Practitioner/prov-001"}, "role": []map[string]any{{"text": "GP"}}},
			{"member": map[string]any{"reference": "Practitioner/prov-002"}, "role": []map[string]any{{"text": "Case Manager"}}},
			{"member": map[string]any{"reference": "Practitioner/prov-003"}, "role": []map[string]any{{"text": "Pharmacist"}}},
		},
	}
}

func carePlanResource(patientID string) map[string]any {
	return map[string]any{
		"resourceType": "CarePlan",
		"id":           "cp-1",
		"status":       "active",
		"intent":       "plan",
		"title":        "Post-discharge care plan",
		"subject":      map[string]any{"reference": "Patient/" + patientID},
		"activity": []map[string]any{
			{"detail": map[string]any{"kind": "ServiceRequest", "status": "scheduled", "code": map[string]any{"text": "Community follow-up"}, "scheduledString": "within 7 days"}},
			{"detail": map[string]any{"kind": "Task", "status": "scheduled", "code": map[string]any{"text": "Medication review"}}},
			{"detail": map[string]any{"kind": "Task", "status": "scheduled", "code": map[string]any{"text": "GP care-plan update"}}},
		},
	}
}

func medicationRequestResource(patientID string) map[string]any {
	return map[string]any{
		"resourceType": "MedicationRequest",
		"id":           "med-1",
		"status":       "active",
		"intent":       "order",
		"subject":      map[string]any{"reference": "Patient/" + patientID},
		"encounter":    map[string]any{"reference": "Encounter/ENC-456"},
		"medicationCodeableConcept": map[string]any{
			"coding": []map[string]any{
				{"system": "http://www.healthterminologies.gov.au/amt", "code": "AMT-EXAMPLE-SERTRALINE-50MG", "display": "Sertraline 50 mg tablet"},
			},
			"text": "Sertraline 50mg",
		},
		"authoredOn":        "2025-11-01",
		"requester":         map[string]any{"reference": "Practitioner/prov-001"},
		"dosageInstruction": []map[string]any{{"text": "50mg PO daily"}},
	}
}

func observationResource(patientID string) map[string]any {
	return map[string]any{
		"resourceType": "Observation",
		"id":           "phq9-obs-1",
		"status":       "final",
		"category":     []map[string]any{{"text": "survey"}},
		"code": map[string]any{
			"coding": []map[string]any{
				{"system": "http://snomed.info/sct", "code": "PHQ9-TOTAL-DEMO", "display": "PHQ-9 Total Score"},
			},
			"text": "PHQ-9 Total Score",
		},
		"subject":           map[string]any{"reference": "Patient/" + patientID},
		"effectiveDateTime": time.Now().UTC().Format(time.RFC3339),
		"valueQuantity":     map[string]any{"value": 16, "unit": "score"},
	}
}

func serviceRequestResource(patientID string) map[string]any {
	return map[string]any{
		"resourceType": "ServiceRequest",
		"id":           "sr-auto-" + patientID,
		"status":       "active",
		"intent":       "order",
		"code":         map[string]any{"text": "Community mental health follow-up"},
		"subject":      map[string]any{"reference": "Patient/" + patientID},
		"authoredOn":   time.Now().UTC().Format(time.RFC3339),
		"requester":    map[string]any{"reference": "Practitioner/prov-001"},
		"performer":    []map[string]any{{"reference": "Organization/org-001"}},
	}
}

func serviceRequestFixture(patientID string) map[string]any {
	sr := serviceRequestResource(patientID)
	sr["id"] = "sr-1"
	return sr
}

func consentResource(patientID string) map[string]any {
	return map[string]any{
		"resourceType": "Consent",
		"id":           "cons-1",
		"status":       "active",
		"scope":        map[string]any{"text": "patient-privacy"},
		"category":     []map[string]any{{"text": "Mental health"}},
		"provision":    map[string]any{"type": "permit"},
		"patient":      map[string]any{"reference": "Patient/" + patientID},
		"dateTime":     time.Now().UTC().Format(time.RFC3339),
	}
}

func documentReferenceResource(patientID string) map[string]any {
	return map[string]any{
		"resourceType": "DocumentReference",
		"id":           "doc-1",
		"status":       "current",
		"type":         map[string]any{"text": "Discharge summary"},
		"subject":      map[string]any{"reference": "Patient/" + patientID},
		"date":         time.Now().UTC().Format(time.RFC3339),
		"content":      []map[string]any{{"attachment": map[string]any{"contentType": "text/plain", "url": "urn:demo:doc:1", "title": "Discharge Summary"}}},
	}
}

func practitionerResource(id, name, qualification string) map[string]any {
	return map[string]any{
		"resourceType":  "Practitioner",
		"id":            id,
		"name":          []map[string]any{{"text": name}},
		"qualification": []map[string]any{{"code": map[string]any{"text": qualification}}},
		"active":        true,
	}
}

func organizationResource(id, name, orgType string) map[string]any {
	return map[string]any{
		"resourceType": "Organization",
		"id":           id,
		"name":         name,
		"type":         []map[string]any{{"text": orgType}},
		"address":      []map[string]any{{"city": "Sydney", "state": "NSW", "postalCode": "2000"}},
	}
}

func locationResource() map[string]any {
	return map[string]any{
		"resourceType":         "Location",
		"id":                   "loc-001",
		"name":                 "Ward 3A",
		"address":              map[string]any{"line": []string{"100 Hospital Rd"}, "city": "Sydney", "state": "NSW", "postalCode": "2000"},
		"managingOrganization": map[string]any{"reference": "Organization/org-001"},
	}
}
