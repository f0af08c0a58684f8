package orchestrate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/agentis-health/discharge-orchestrator/internal/domain"
	"github.com/agentis-health/discharge-orchestrator/internal/llm"
)

// ReferralSearch is the referral write-back demo output: the ServiceRequest
// search result plus the follow-up Task created against its first entry.
type ReferralSearch struct {
	Referrals   map[string]any `json:"referrals"`
	CreatedTask map[string]any `json:"created_task"`
}

// SearchReferrals looks up the patient's active ServiceRequest referrals and,
// when any exist, writes back a follow-up Task owned by the case manager.
func (p *Pipeline) SearchReferrals(ctx context.Context, patientID string) (ReferralSearch, error) {
	referrals, err := p.EMR.SearchResources(ctx, "ServiceRequest", patientID)
	if err != nil {
		return ReferralSearch{}, fmt.Errorf("referral search: %w", err)
	}

	out := ReferralSearch{Referrals: referrals, CreatedTask: map[string]any{}}
	if resultTotal(referrals) == 0 {
		return out, nil
	}
	first := firstResource(referrals)
	if first == nil {
		return out, nil
	}

	task := map[string]any{
		"resourceType": "Task",
		"status":       "requested",
		"intent":       "order",
		"for":          map[string]any{"reference": domain.PatientRef(patientID)},
		"focus":        map[string]any{"reference": fmt.Sprintf("ServiceRequest/%v", first["id"])},
		"owner":        map[string]any{"reference": caseManagerRef},
		"description":  "Follow up referral",
	}
	created, err := p.EMR.CreateResource(ctx, "Task", task)
	if err != nil {
		return ReferralSearch{}, fmt.Errorf("referral task write-back: %w", err)
	}
	out.CreatedTask = created
	return out, nil
}

// resultTotal reads a search result's total, which arrives as float64 over
// the wire and as int from in-process mocks.
func resultTotal(result map[string]any) int {
	switch n := result["total"].(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}

// firstResource unwraps the first entry's resource from a search result.
func firstResource(result map[string]any) map[string]any {
	var entry any
	switch entries := result["entry"].(type) {
	case []any:
		if len(entries) == 0 {
			return nil
		}
		entry = entries[0]
	case []map[string]any:
		if len(entries) == 0 {
			return nil
		}
		entry = entries[0]
	default:
		return nil
	}
	wrapper, ok := entry.(map[string]any)
	if !ok {
		return nil
	}
	res, _ := wrapper["resource"].(map[string]any)
	return res
}

// AuditCheckResult is the audit demo output.
type AuditCheckResult struct {
	WriteBackID string         `json:"write_back_id"`
	AlertID     string         `json:"alert_id"`
	Audit       map[string]any `json:"audit"`
}

// AuditCheck exercises the EMR audit trail end to end: write one Observation,
// send one in-basket alert, then query the trail for this agent's entries.
// The demo pins the fixture patient.
func (p *Pipeline) AuditCheck(ctx context.Context) (AuditCheckResult, error) {
	patientRef := domain.PatientRef("123")
	obs := map[string]any{
		"resourceType": "Observation",
		"status":       "final",
		"code":         map[string]any{"text": "Demo write-back"},
		"subject":      map[string]any{"reference": patientRef},
		"valueString":  "hello",
	}
	wb, err := p.EMR.CreateResource(ctx, "Observation", obs)
	if err != nil {
		return AuditCheckResult{}, fmt.Errorf("observation write-back: %w", err)
	}

	alert, err := p.EMR.InbasketAlert(ctx, "123", "Demo Alert", "Elevated risk flagged", "high")
	if err != nil {
		return AuditCheckResult{}, fmt.Errorf("inbasket alert: %w", err)
	}

	audit, err := p.EMR.SearchAuditTrail(ctx, "Agent/demo-client", "", "")
	if err != nil {
		return AuditCheckResult{}, fmt.Errorf("audit search: %w", err)
	}

	result := AuditCheckResult{Audit: audit}
	result.WriteBackID, _ = wb["id"].(string)
	result.AlertID, _ = alert["alert_id"].(string)
	return result, nil
}

// HandoverFacts is the structured extraction skeleton produced by the sense
// stage.
type HandoverFacts struct {
	Problems  []string `json:"problems"`
	Meds      []string `json:"meds"`
	Followups []string `json:"followups"`
	Risks     []string `json:"risks"`
}

// SenseOutput extracts handover facts from free-text discharge notes. In demo
// mode every stage returns an empty shell with a mock caveat.
type SenseOutput struct {
	HandoverFacts HandoverFacts  `json:"handover_facts"`
	RiskSignals   map[string]any `json:"risk_signals"`
	Citations     []string       `json:"citations"`
	Confidence    float64        `json:"confidence"`
	Caveats       []string       `json:"caveats"`
}

// NormalizeOutput maps handover facts onto coded terminology and FHIR shapes.
type NormalizeOutput struct {
	CodedTerms    []string       `json:"coded_terms"`
	FHIRResources map[string]any `json:"fhir_resources"`
	Citations     []string       `json:"citations"`
	Confidence    float64        `json:"confidence"`
	Caveats       []string       `json:"caveats"`
}

// ExplainOutput renders patient- and clinician-facing narratives.
type ExplainOutput struct {
	PatientMessages  []string `json:"patient_messages"`
	ClinicianLetters []string `json:"clinician_letters"`
	Citations        []string `json:"citations"`
	Confidence       float64  `json:"confidence"`
	Caveats          []string `json:"caveats"`
}

func senseStage(dischargeText string, facts map[string]any) SenseOutput {
	return SenseOutput{
		HandoverFacts: HandoverFacts{Problems: []string{}, Meds: []string{}, Followups: []string{}, Risks: []string{}},
		RiskSignals:   map[string]any{},
		Citations:     []string{},
		Caveats:       []string{"mock"},
	}
}

func normalizeStage(facts HandoverFacts) NormalizeOutput {
	return NormalizeOutput{
		CodedTerms:    []string{},
		FHIRResources: map[string]any{},
		Citations:     []string{},
		Caveats:       []string{"mock"},
	}
}

func explainStage(summary, riskFlag, dischargeDate string) ExplainOutput {
	return ExplainOutput{
		PatientMessages:  []string{},
		ClinicianLetters: []string{},
		Citations:        []string{},
		Caveats:          []string{"mock"},
	}
}

// DemoResult is the pipeline-stage demo output: the assembled prompt, the
// planner completion, and the sense/normalize/explain stage shells.
type DemoResult struct {
	Prompt    Prompt          `json:"prompt"`
	LLMOutput llm.Completion  `json:"llm_output"`
	Sense     SenseOutput     `json:"sense"`
	Normalize NormalizeOutput `json:"normalize"`
	Explain   ExplainOutput   `json:"explain"`
}

// RunDemo runs the pipeline stages against the patient's bundle and the
// consent fixture. The stages are mock shells; what the demo shows is the
// prompt assembly and the wiring between them.
func (p *Pipeline) RunDemo(ctx context.Context, patientID string) (DemoResult, error) {
	bundle, err := p.EMR.PatientBundle(ctx, patientID)
	if err != nil {
		return DemoResult{}, fmt.Errorf("patient bundle: %w", err)
	}

	facts := map[string]any{
		"bundle":  bundle,
		"consent": p.loadPolicyFixture(),
	}
	promptDoc := map[string]any{
		"system":    "system",
		"policy":    "policy",
		"task":      "task",
		"facts":     facts,
		"exemplars": []string{},
	}
	promptJSON, err := json.Marshal(promptDoc)
	if err != nil {
		return DemoResult{}, fmt.Errorf("failed to assemble prompt: %w", err)
	}
	prompt := Prompt{System: "system", User: string(promptJSON)}

	completion, err := p.LLM.Complete(ctx, prompt.System, prompt.User, nil)
	if err != nil {
		p.Log.Warn().Err(err).Str("patient_id", patientID).Msg("demo completion failed")
		completion = llm.Completion{Model: "fallback"}
	}

	sense := senseStage(p.dischargeNote(""), facts)
	return DemoResult{
		Prompt:    prompt,
		LLMOutput: completion,
		Sense:     sense,
		Normalize: normalizeStage(sense.HandoverFacts),
		Explain:   explainStage("", "low", p.now().UTC().Format("2006-01-02")),
	}, nil
}

// loadPolicyFixture reads the consent snippet fixture for prompt context. A
// missing or malformed fixture yields nil rather than an error.
func (p *Pipeline) loadPolicyFixture() any {
	if p.PolicyPath == "" {
		return nil
	}
	data, err := os.ReadFile(p.PolicyPath)
	if err != nil {
		return nil
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil
	}
	return doc
}
