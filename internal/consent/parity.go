package consent

import (
	"github.com/agentis-health/discharge-orchestrator/internal/domain"
)

// Demo parity reason codes and policy refs. These only appear when the
// ParityStrategy is injected.
const (
	reasonDemoOddAllowed        = "demo_odd_patient_allowed"
	reasonDemoEvenDenied        = "demo_even_patient_denied"
	reasonDemoEvenDenySocial    = "demo_even_denied_social_worker"
	reasonDemoEvenAllowNotified = "demo_even_allow_practitioner_notifications"
)

// SocialWorkerRef is the demo case-manager recipient that even-numbered
// patients always deny.
const SocialWorkerRef = "Practitioner/prov-002"

// ParityStrategy is the numeric-parity demo shortcut: odd-numbered patients
// allow everything, even-numbered patients allow practitioner summary
// notifications only, and always deny the social worker. It declines for
// non-numeric patient ids so evaluation falls through to the policy document.
type ParityStrategy struct{}

func (ParityStrategy) Decide(req Request, _ *Document) (Decision, bool) {
	n, ok := domain.NumericPatientID(req.SubjectRef)
	if !ok {
		return Decision{}, false
	}

	if n%2 != 0 {
		return Decision{
			Allowed:    true,
			Reason:     reasonDemoOddAllowed,
			PolicyRefs: []string{"DEMO-ODD-ALLOW"},
		}, true
	}

	if req.RecipientRef == SocialWorkerRef {
		return Decision{
			Allowed:    false,
			Reason:     reasonDemoEvenDenySocial,
			PolicyRefs: []string{"DEMO-EVEN-DENY-SOCIAL"},
		}, true
	}
	if req.Action == ActionShareSummary && domain.IsPractitioner(req.RecipientRef) {
		return Decision{
			Allowed:    true,
			Reason:     reasonDemoEvenAllowNotified,
			PolicyRefs: []string{"DEMO-EVEN-PRACTITIONER-ALLOW"},
		}, true
	}
	return Decision{
		Allowed:    false,
		Reason:     reasonDemoEvenDenied,
		PolicyRefs: []string{"DEMO-EVEN-DENY"},
	}, true
}
