// Package orchestrate runs the discharge referral pipeline: retrieve patient
// context from the EMR, ask the planner LLM for follow-up actions, fall back
// to a deterministic plan when the planner proposes nothing, and push the
// batch through the consent-gated executor.
package orchestrate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentis-health/discharge-orchestrator/internal/domain"
	"github.com/agentis-health/discharge-orchestrator/internal/executor"
	"github.com/agentis-health/discharge-orchestrator/internal/llm"
)

// Well-known demo participants.
const (
	gpRef          = "Practitioner/prov-001"
	caseManagerRef = "Practitioner/prov-002"
	hospitalistRef = "Practitioner/prov-004"
)

const plannerSystemPrompt = "You are a care orchestration planner. Output a JSON object with two arrays: \n" +
	"tasks: [{owner_ref, description, due_ts, purpose_of_use}], \n" +
	"messages: [{channel, to_ref, purpose_of_use, content}]. \n" +
	"Use Australia/Sydney timezone. Keep minimal safe actions. \n" +
	"If the context includes a ServiceRequest referral or follow-up need, you MUST include at least one task and one message. \n" +
	"Prefer due_ts within 7 days; keep descriptions concise and compliant."

// plannerSchema constrains the LLM output to the proposed-action batch.
var plannerSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"tasks": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"owner_ref":      map[string]any{"type": "string"},
					"description":    map[string]any{"type": "string"},
					"due_ts":         map[string]any{"type": "string"},
					"purpose_of_use": map[string]any{"type": "string"},
				},
				"required": []string{"owner_ref", "description", "due_ts", "purpose_of_use"},
			},
		},
		"messages": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"channel":        map[string]any{"type": "string"},
					"to_ref":         map[string]any{"type": "string"},
					"purpose_of_use": map[string]any{"type": "string"},
					"content":        map[string]any{"type": "string"},
				},
				"required": []string{"channel", "to_ref", "purpose_of_use", "content"},
			},
		},
	},
	"required": []string{"tasks", "messages"},
}

// EMR is the slice of the EMR collaborator the pipeline needs.
type EMR interface {
	DischargeEvent(ctx context.Context, patientID string) (map[string]any, error)
	PatientBundle(ctx context.Context, patientID string) (map[string]any, error)
	SearchResources(ctx context.Context, resourceType, patientID string) (map[string]any, error)
	CreateResource(ctx context.Context, resourceType string, resource map[string]any) (map[string]any, error)
	InbasketAlert(ctx context.Context, patientID, subject, body, priority string) (map[string]any, error)
	SearchAuditTrail(ctx context.Context, actorRef, entityRef, action string) (map[string]any, error)
}

// Directory is the provider-directory collaborator.
type Directory interface {
	SearchProviders(ctx context.Context, patientID, location string, roles []string) (map[string]any, error)
}

// Prompt echoes what was sent to the planner, for UI display.
type Prompt struct {
	System string `json:"system"`
	User   string `json:"user"`
}

// Handover carries the per-patient discharge note and risk summary attached
// to practitioner communications.
type Handover struct {
	Note        string `json:"note"`
	RiskSummary string `json:"risk_summary"`
}

// ReferralResult is the full pipeline output.
type ReferralResult struct {
	Prompt    Prompt                `json:"prompt"`
	LLMOutput llm.Completion        `json:"llm_output"`
	Executed  executor.Report       `json:"executed"`
	Handover  Handover              `json:"handover"`
	GPMessage string                `json:"gp_message"`
	Share     executor.ShareSummary `json:"share_result"`
}

// DischargeContext bundles the raw collaborator views shown by the discharge
// demo endpoint.
type DischargeContext struct {
	DischargeEvent map[string]any `json:"discharge_event"`
	PatientBundle  map[string]any `json:"patient_bundle"`
	Providers      map[string]any `json:"providers"`
}

// Pipeline wires the collaborators together. NotesPath points at the
// discharge-notes fixture and PolicyPath at the consent snippet fixture; a
// missing fixture just leaves the corresponding field empty.
type Pipeline struct {
	EMR        EMR
	Directory  Directory
	LLM        llm.Client
	Exec       *executor.Executor
	NotesPath  string
	PolicyPath string
	Log        zerolog.Logger
	Now        func() time.Time
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Discharge assembles the discharge demo view: event, bundle, and a provider
// search around the patient's postcode.
func (p *Pipeline) Discharge(ctx context.Context, patientID string) (DischargeContext, error) {
	evt, err := p.EMR.DischargeEvent(ctx, patientID)
	if err != nil {
		return DischargeContext{}, fmt.Errorf("discharge event: %w", err)
	}
	// The mock serves a single default event; pin it to the selected patient.
	evt["subject"] = domain.PatientRef(patientID)
	if data, ok := evt["data"].(map[string]any); ok {
		data["patientId"] = patientID
	}

	bundle, err := p.EMR.PatientBundle(ctx, patientID)
	if err != nil {
		return DischargeContext{}, fmt.Errorf("patient bundle: %w", err)
	}

	providers, err := p.Directory.SearchProviders(ctx, patientID, "2000", []string{"GP", "Case Manager", "Pharmacist"})
	if err != nil {
		return DischargeContext{}, fmt.Errorf("provider search: %w", err)
	}

	return DischargeContext{
		DischargeEvent: evt,
		PatientBundle:  bundle,
		Providers:      providers,
	}, nil
}

// RunReferral executes the full referral pipeline for one patient.
func (p *Pipeline) RunReferral(ctx context.Context, patientID string, extra map[string]any) (ReferralResult, error) {
	bundle, err := p.EMR.PatientBundle(ctx, patientID)
	if err != nil {
		return ReferralResult{}, fmt.Errorf("patient bundle: %w", err)
	}
	if extra != nil {
		if eb, ok := extra["patient_bundle"].(map[string]any); ok {
			bundle = eb
		}
	}

	handover := Handover{
		Note:        p.dischargeNote(patientID),
		RiskSummary: riskSummary(patientID),
	}

	userPayload := map[string]any{
		"goal":        "Complete referral follow-up tasks and notifications",
		"patient_ref": domain.PatientRef(patientID),
		"context": map[string]any{
			"bundle":   bundle,
			"handover": handover,
			"extra":    extra,
		},
		"examples": []string{},
	}
	userJSON, err := json.Marshal(userPayload)
	if err != nil {
		return ReferralResult{}, fmt.Errorf("failed to assemble planner prompt: %w", err)
	}
	prompt := Prompt{System: plannerSystemPrompt, User: string(userJSON)}

	completion, err := p.LLM.Complete(ctx, prompt.System, prompt.User, plannerSchema)
	if err != nil {
		// Planner failure is recoverable: the deterministic fallback plan
		// still runs the consent-gated pipeline.
		p.Log.Warn().Err(err).Str("patient_id", patientID).Msg("planner completion failed, using fallback plan")
		completion = llm.Completion{Model: "fallback"}
	}

	batch, err := executor.DecodeBatch(completion.JSON)
	if err != nil {
		p.Log.Warn().Err(err).Str("patient_id", patientID).Msg("planner proposal malformed, using fallback plan")
		batch = executor.Batch{}
	}

	if batch.Empty() {
		batch = p.fallbackPlan(patientID, handover.RiskSummary)
	}
	remapForEvenPatients(patientID, batch.Messages)

	report := p.Exec.ExecuteBatch(ctx, batch, domain.PatientRef(patientID))

	return ReferralResult{
		Prompt:    prompt,
		LLMOutput: completion,
		Executed:  report,
		Handover:  handover,
		GPMessage: gpMessageContent(batch.Messages),
		Share:     report.Share,
	}, nil
}

// fallbackPlan synthesizes the demo actions used when the planner proposes
// nothing: a community follow-up task for the case manager and a discharge
// summary message to the GP.
func (p *Pipeline) fallbackPlan(patientID, riskSummary string) executor.Batch {
	due := p.now().UTC().Add(7 * 24 * time.Hour).Format(time.RFC3339)
	return executor.Batch{
		Tasks: []executor.TaskAction{
			{
				OwnerRef:     caseManagerRef,
				Description:  "Book community mental health follow-up appointment",
				DueTS:        due,
				PurposeOfUse: "care-coordination",
			},
		},
		Messages: []executor.MessageAction{
			{
				Channel:      "email",
				ToRef:        gpRef,
				PurposeOfUse: "treatment",
				Content: "Sharing discharge summary with risk details and notifying the community mental health appointment. " +
					riskSummary,
			},
		},
	}
}

// remapForEvenPatients reroutes practitioner notifications for even-numbered
// patients to the hospitalist, keeping case-manager messages untouched so
// the consent denial still shows in the demo.
func remapForEvenPatients(patientID string, messages []executor.MessageAction) {
	n, err := strconv.Atoi(patientID)
	if err != nil || n%2 != 0 {
		return
	}
	for i := range messages {
		to := messages[i].ToRef
		if domain.IsPractitioner(to) && to != caseManagerRef {
			messages[i].ToRef = hospitalistRef
		}
	}
}

// gpMessageContent picks the practitioner-facing message text for the UI:
// hospitalist first, then GP, then whatever came first.
func gpMessageContent(messages []executor.MessageAction) string {
	if len(messages) == 0 {
		return ""
	}
	for _, ref := range []string{hospitalistRef, gpRef} {
		for _, m := range messages {
			if m.ToRef == ref {
				return m.Content
			}
		}
	}
	return messages[0].Content
}

// dischargeNote picks the fixture note for a patient, rotating across the
// three demo cases.
func (p *Pipeline) dischargeNote(patientID string) string {
	if p.NotesPath == "" {
		return ""
	}
	data, err := os.ReadFile(p.NotesPath)
	if err != nil {
		return ""
	}
	var notes struct {
		Cases []struct {
			Text string `json:"text"`
		} `json:"cases"`
	}
	if err := json.Unmarshal(data, &notes); err != nil || len(notes.Cases) == 0 {
		return ""
	}

	idx := 0
	if n, err := strconv.Atoi(patientID); err == nil && n > 0 {
		idx = (n - 1) % len(notes.Cases)
	}
	return notes.Cases[idx].Text
}

// riskSummary derives the compact risk line included in GP communications.
// Patient ids containing '5' represent active suicide risk with no documented
// safety plan, matching the EMR mock convention.
func riskSummary(patientID string) string {
	if strings.Contains(patientID, "5") {
		return "Risk: suicide risk flagged (active ideation, no safety plan documented). " +
			"Do not treat safety planning as completed; ensure plan is created and reviewed before discharge."
	}

	mod := 0
	if n, err := strconv.Atoi(patientID); err == nil && n > 0 {
		mod = (n - 1) % 3
	}
	switch mod {
	case 1:
		return "Risk: housing instability; recent missed medications; community MH follow-up needed."
	case 2:
		return "Risk: recent medication change (sertraline started); monitor adherence and side effects."
	default:
		return "Risk: suicide risk flagged (passive ideation, safety plan completed)."
	}
}
