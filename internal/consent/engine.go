package consent

import (
	"github.com/rs/zerolog"
)

// Action kinds checked against consent scopes.
const (
	ActionShareSummary   = "share_summary"
	ActionTaskAssignment = "task_assignment"
)

// Decision reason codes. Informational, never errors.
const (
	ReasonNoConsentFound   = "no_consent_found"
	ReasonNoMatchingAllow  = "no_matching_allow"
	ReasonDeniedByConsent  = "denied_by_consent"
	ReasonAllowedByConsent = "allowed_by_consent"

	// ReasonConsentDenied is the generic denial used when a structured
	// reason is unavailable.
	ReasonConsentDenied = "consent_denied"
)

// Scope-fallback modes for subjects with no exactly-matching policy scope.
const (
	// FallbackStrict fails closed: no exact scope means no consent.
	FallbackStrict = "strict"
	// FallbackFirstScope evaluates against the first scope in the document.
	// Legacy demo behavior; it can decide against the wrong patient's
	// policy, so it is opt-in only.
	FallbackFirstScope = "first"
)

// Decision is the outcome of a single consent check.
type Decision struct {
	Allowed    bool     `json:"allowed"`
	Reason     string   `json:"reason"`
	PolicyRefs []string `json:"policy_refs"`
}

// Request carries one (subject, recipient, action, purpose) tuple.
type Request struct {
	SubjectRef   string
	RecipientRef string
	Action       string
	PurposeOfUse string
}

// DecisionStrategy decides a consent request or declines to. Strategies run
// in order; the first one reporting ok wins. The policy-document strategy is
// terminal and always decides.
type DecisionStrategy interface {
	Decide(req Request, doc *Document) (Decision, bool)
}

// Source publishes immutable policy document snapshots. Check always works
// against the snapshot taken at its start, so hot reloads never expose a
// partially-updated document.
type Source interface {
	Snapshot() *Document
}

// Engine evaluates consent requests against a policy document. Pure with
// respect to its inputs and the current snapshot; safe for concurrent use.
type Engine struct {
	source     Source
	strategies []DecisionStrategy
	fallback   string
	log        zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithStrategy prepends a decision strategy ahead of the policy-document
// evaluation.
func WithStrategy(s DecisionStrategy) Option {
	return func(e *Engine) {
		e.strategies = append(e.strategies, s)
	}
}

// WithLogger routes decision logging through the given logger.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// WithScopeFallback sets the fallback mode for the policy-document strategy.
func WithScopeFallback(mode string) Option {
	return func(e *Engine) {
		e.fallback = mode
	}
}

func NewEngine(source Source, opts ...Option) *Engine {
	e := &Engine{
		source:   source,
		fallback: FallbackStrict,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.strategies = append(e.strategies, &PolicyStrategy{Fallback: e.fallback})
	return e
}

// Check evaluates whether recipientRef may receive the given action for the
// subject under purposeOfUse. It never fails: malformed inputs fall through
// to policy-document evaluation and resolve to a deny reason.
func (e *Engine) Check(subjectRef, recipientRef, action, purposeOfUse string) Decision {
	doc := e.source.Snapshot()
	req := Request{
		SubjectRef:   subjectRef,
		RecipientRef: recipientRef,
		Action:       action,
		PurposeOfUse: purposeOfUse,
	}

	var decision Decision
	for _, s := range e.strategies {
		if d, ok := s.Decide(req, doc); ok {
			decision = d
			break
		}
	}

	e.log.Debug().
		Str("subject_ref", subjectRef).
		Str("recipient_ref", recipientRef).
		Str("action", action).
		Str("purpose_of_use", purposeOfUse).
		Bool("allowed", decision.Allowed).
		Str("reason", decision.Reason).
		Strs("policy_refs", decision.PolicyRefs).
		Msg("consent decision")

	return decision
}

// PolicyStrategy implements the policy-document evaluation: locate the scope
// for the subject, evaluate deny rules before allow rules, first match wins.
type PolicyStrategy struct {
	// Fallback is FallbackStrict or FallbackFirstScope.
	Fallback string
}

// Decide always reports ok; PolicyStrategy is the terminal strategy.
func (s *PolicyStrategy) Decide(req Request, doc *Document) (Decision, bool) {
	scope := doc.ScopeFor(req.SubjectRef)
	if scope == nil && s.Fallback == FallbackFirstScope && doc != nil && len(doc.Consents) > 0 {
		scope = &doc.Consents[0]
	}
	if scope == nil {
		return Decision{Allowed: false, Reason: ReasonNoConsentFound, PolicyRefs: []string{}}, true
	}

	for _, rule := range scope.Deny {
		if rule.Matches(req.RecipientRef, req.PurposeOfUse) {
			return Decision{Allowed: false, Reason: ReasonDeniedByConsent, PolicyRefs: []string{scope.ID}}, true
		}
	}
	for _, rule := range scope.Allow {
		if rule.Matches(req.RecipientRef, req.PurposeOfUse) {
			return Decision{Allowed: true, Reason: ReasonAllowedByConsent, PolicyRefs: []string{scope.ID}}, true
		}
	}

	return Decision{Allowed: false, Reason: ReasonNoMatchingAllow, PolicyRefs: []string{scope.ID}}, true
}
