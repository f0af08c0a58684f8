package orchestrate

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentis-health/discharge-orchestrator/internal/audit"
	"github.com/agentis-health/discharge-orchestrator/internal/consent"
	"github.com/agentis-health/discharge-orchestrator/internal/executor"
	"github.com/agentis-health/discharge-orchestrator/internal/llm"
)

type stubEMR struct{}

func (stubEMR) DischargeEvent(context.Context, string) (map[string]any, error) {
	return map[string]any{
		"type":    "org.hl7.fhir.discharge",
		"subject": "Patient/123",
		"data":    map[string]any{"patientId": "123"},
	}, nil
}

func (stubEMR) PatientBundle(context.Context, string) (map[string]any, error) {
	return map[string]any{"resourceType": "Bundle", "entry": []any{}}, nil
}

func (stubEMR) SearchResources(context.Context, string, string) (map[string]any, error) {
	return map[string]any{"total": 0, "entry": []any{}}, nil
}

func (stubEMR) CreateResource(context.Context, string, map[string]any) (map[string]any, error) {
	return map[string]any{"id": "Task-mock-1", "status": "created"}, nil
}

func (stubEMR) InbasketAlert(context.Context, string, string, string, string) (map[string]any, error) {
	return map[string]any{"status": "sent", "alert_id": "alert-1"}, nil
}

func (stubEMR) SearchAuditTrail(context.Context, string, string, string) (map[string]any, error) {
	return map[string]any{"count": 0, "entries": []any{}}, nil
}

type stubDirectory struct{}

func (stubDirectory) SearchProviders(context.Context, string, string, []string) (map[string]any, error) {
	return map[string]any{"providers": []any{}}, nil
}

type stubLLM struct {
	completion llm.Completion
	err        error
}

func (s stubLLM) Complete(context.Context, string, string, map[string]any) (llm.Completion, error) {
	return s.completion, s.err
}

type allowAllChecker struct{}

func (allowAllChecker) Check(_, _, _, _ string) consent.Decision {
	return consent.Decision{Allowed: true, Reason: consent.ReasonAllowedByConsent, PolicyRefs: []string{"P1"}}
}

type recordingTaskStore struct{ owners []string }

func (s *recordingTaskStore) CreateTask(_ context.Context, ownerRef, _, _ string) (string, error) {
	s.owners = append(s.owners, ownerRef)
	return "task-1", nil
}

type recordingMessenger struct{ recipients []string }

func (s *recordingMessenger) SendMessage(_ context.Context, _, toRef, _ string) (string, error) {
	s.recipients = append(s.recipients, toRef)
	return "msg-1", nil
}

func newTestPipeline(t *testing.T, client llm.Client) (*Pipeline, *recordingTaskStore, *recordingMessenger) {
	t.Helper()
	tasks := &recordingTaskStore{}
	messages := &recordingMessenger{}
	exec := executor.New(allowAllChecker{}, tasks, messages, audit.NewMemorySink(64), zerolog.Nop())
	return &Pipeline{
		EMR:       stubEMR{},
		Directory: stubDirectory{},
		LLM:       client,
		Exec:      exec,
		Log:       zerolog.Nop(),
		Now:       func() time.Time { return time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC) },
	}, tasks, messages
}

func TestRunReferralFallbackPlanWhenPlannerProposesNothing(t *testing.T) {
	// The mock planner returns an object with no tasks/messages keys; the
	// deterministic fallback plan must run instead.
	pipeline, tasks, messages := newTestPipeline(t, stubLLM{completion: llm.Completion{JSON: json.RawMessage(`{"mock":true}`), Model: "mock-small"}})

	result, err := pipeline.RunReferral(context.Background(), "123", nil)
	if err != nil {
		t.Fatalf("RunReferral() = %v", err)
	}

	if len(result.Executed.Tasks) != 1 || len(result.Executed.Messages) != 1 {
		t.Fatalf("executed = %d tasks, %d messages; want fallback plan 1+1", len(result.Executed.Tasks), len(result.Executed.Messages))
	}
	if got := result.Executed.Tasks[0].Input.OwnerRef; got != "Practitioner/prov-002" {
		t.Errorf("fallback task owner = %s, want case manager", got)
	}
	if got := result.Executed.Messages[0].Input.ToRef; got != "Practitioner/prov-001" {
		t.Errorf("fallback message recipient = %s, want GP", got)
	}
	if got := result.Executed.Tasks[0].Input.DueTS; got != "2026-09-07T10:00:00Z" {
		t.Errorf("fallback due_ts = %s, want now+7d", got)
	}
	if len(tasks.owners) != 1 || len(messages.recipients) != 1 {
		t.Errorf("side effects = %d tasks, %d messages; want 1, 1", len(tasks.owners), len(messages.recipients))
	}
	if result.GPMessage == "" || !strings.Contains(result.GPMessage, "discharge summary") {
		t.Errorf("gp_message = %q, want fallback summary text", result.GPMessage)
	}
}

func TestRunReferralPlannerErrorIsRecoverable(t *testing.T) {
	pipeline, _, _ := newTestPipeline(t, stubLLM{err: errors.New("completion request failed")})

	result, err := pipeline.RunReferral(context.Background(), "123", nil)
	if err != nil {
		t.Fatalf("RunReferral() = %v, want planner failure absorbed", err)
	}
	if len(result.Executed.Tasks) != 1 || len(result.Executed.Messages) != 1 {
		t.Errorf("executed = %d tasks, %d messages; want fallback plan", len(result.Executed.Tasks), len(result.Executed.Messages))
	}
}

func TestRunReferralUsesPlannerBatch(t *testing.T) {
	proposal := `{
		"tasks": [{"owner_ref":"Practitioner/prov-003","description":"Medication reconciliation","due_ts":"2026-09-02T00:00:00Z","purpose_of_use":"treatment"}],
		"messages": []
	}`
	pipeline, tasks, _ := newTestPipeline(t, stubLLM{completion: llm.Completion{JSON: json.RawMessage(proposal), Model: "gpt-4o-mini"}})

	result, err := pipeline.RunReferral(context.Background(), "1", nil)
	if err != nil {
		t.Fatalf("RunReferral() = %v", err)
	}
	if len(result.Executed.Tasks) != 1 || result.Executed.Tasks[0].Input.OwnerRef != "Practitioner/prov-003" {
		t.Errorf("executed tasks = %+v, want planner proposal, not fallback", result.Executed.Tasks)
	}
	if len(tasks.owners) != 1 || tasks.owners[0] != "Practitioner/prov-003" {
		t.Errorf("task store owners = %v", tasks.owners)
	}
}

func TestRunReferralEvenPatientRemapsPractitionerMessages(t *testing.T) {
	pipeline, _, messages := newTestPipeline(t, stubLLM{completion: llm.Completion{JSON: json.RawMessage(`{}`)}})

	result, err := pipeline.RunReferral(context.Background(), "4", nil)
	if err != nil {
		t.Fatalf("RunReferral() = %v", err)
	}
	if got := result.Executed.Messages[0].Input.ToRef; got != "Practitioner/prov-004" {
		t.Errorf("message recipient = %s, want hospitalist for even patient", got)
	}
	if len(messages.recipients) != 1 || messages.recipients[0] != "Practitioner/prov-004" {
		t.Errorf("dispatched to %v, want hospitalist", messages.recipients)
	}
}

func TestRemapForEvenPatients(t *testing.T) {
	tests := []struct {
		name      string
		patientID string
		toRef     string
		want      string
	}{
		{"Even patient GP remapped", "4", "Practitioner/prov-001", "Practitioner/prov-004"},
		{"Even patient case manager untouched", "4", "Practitioner/prov-002", "Practitioner/prov-002"},
		{"Even patient organization untouched", "4", "Organization/org-001", "Organization/org-001"},
		{"Odd patient untouched", "3", "Practitioner/prov-001", "Practitioner/prov-001"},
		{"Non-numeric id untouched", "abc", "Practitioner/prov-001", "Practitioner/prov-001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := []executor.MessageAction{{ToRef: tt.toRef}}
			remapForEvenPatients(tt.patientID, msgs)
			if msgs[0].ToRef != tt.want {
				t.Errorf("remap(%s, %s) = %s, want %s", tt.patientID, tt.toRef, msgs[0].ToRef, tt.want)
			}
		})
	}
}

func TestGPMessageContent(t *testing.T) {
	msg := func(to, content string) executor.MessageAction {
		return executor.MessageAction{ToRef: to, Content: content}
	}

	tests := []struct {
		name     string
		messages []executor.MessageAction
		want     string
	}{
		{"Empty", nil, ""},
		{"Hospitalist preferred over GP", []executor.MessageAction{msg("Practitioner/prov-001", "gp"), msg("Practitioner/prov-004", "hosp")}, "hosp"},
		{"GP when no hospitalist", []executor.MessageAction{msg("Practitioner/prov-002", "cm"), msg("Practitioner/prov-001", "gp")}, "gp"},
		{"First message otherwise", []executor.MessageAction{msg("Organization/org-001", "org"), msg("Practitioner/prov-003", "pharm")}, "org"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := gpMessageContent(tt.messages); got != tt.want {
				t.Errorf("gpMessageContent() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRiskSummary(t *testing.T) {
	tests := []struct {
		name      string
		patientID string
		contains  string
	}{
		{"Id containing five is active risk", "5", "no safety plan documented"},
		{"Multi-digit id containing five", "15", "no safety plan documented"},
		{"Rotation case one", "1", "safety plan completed"},
		{"Rotation case two", "2", "housing instability"},
		{"Rotation case three", "3", "sertraline"},
		{"Rotation wraps", "4", "safety plan completed"},
		{"Non-numeric defaults", "abc", "safety plan completed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := riskSummary(tt.patientID); !strings.Contains(got, tt.contains) {
				t.Errorf("riskSummary(%s) = %q, want substring %q", tt.patientID, got, tt.contains)
			}
		})
	}
}

func TestDischargeNoteRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.json")
	fixture := `{"cases":[{"text":"note one"},{"text":"note two"},{"text":"note three"}]}`
	if err := os.WriteFile(path, []byte(fixture), 0o644); err != nil {
		t.Fatal(err)
	}

	pipeline := &Pipeline{NotesPath: path}

	tests := []struct {
		patientID string
		want      string
	}{
		{"1", "note one"},
		{"2", "note two"},
		{"3", "note three"},
		{"4", "note one"},
		{"abc", "note one"},
	}
	for _, tt := range tests {
		if got := pipeline.dischargeNote(tt.patientID); got != tt.want {
			t.Errorf("dischargeNote(%s) = %q, want %q", tt.patientID, got, tt.want)
		}
	}

	t.Run("Missing fixture yields empty note", func(t *testing.T) {
		p := &Pipeline{NotesPath: filepath.Join(dir, "absent.json")}
		if got := p.dischargeNote("1"); got != "" {
			t.Errorf("dischargeNote() = %q, want empty", got)
		}
	})
}

func TestDischargePinsEventToPatient(t *testing.T) {
	pipeline, _, _ := newTestPipeline(t, stubLLM{})

	view, err := pipeline.Discharge(context.Background(), "2")
	if err != nil {
		t.Fatalf("Discharge() = %v", err)
	}
	if got := view.DischargeEvent["subject"]; got != "Patient/2" {
		t.Errorf("event subject = %v, want Patient/2", got)
	}
	data, _ := view.DischargeEvent["data"].(map[string]any)
	if got := data["patientId"]; got != "2" {
		t.Errorf("event data.patientId = %v, want 2", got)
	}
}
