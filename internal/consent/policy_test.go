package consent

import "testing"

func TestMatchToken(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		value   string
		want    bool
	}{
		{"Wildcard matches anything", "*", "Organization/org-001", true},
		{"Wildcard matches empty", "*", "", true},
		{"Prefix match", "Practitioner/*", "Practitioner/prov-002", true},
		{"Prefix mismatch", "Practitioner/*", "Organization/org-001", false},
		{"Exact match", "Practitioner/prov-001", "Practitioner/prov-001", true},
		{"Exact mismatch", "Practitioner/prov-001", "Practitioner/prov-002", false},
		{"Bare prefix star matches all", "nonau-*", "nonau-clinic-9", true},
		{"Bare prefix star mismatch", "nonau-*", "au-clinic-9", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchToken(tt.pattern, tt.value); got != tt.want {
				t.Errorf("MatchToken(%q, %q) = %v, want %v", tt.pattern, tt.value, got, tt.want)
			}
		})
	}
}

func TestRuleMatches(t *testing.T) {
	tests := []struct {
		name      string
		rule      Rule
		recipient string
		purpose   string
		want      bool
	}{
		{
			"Recipient and purpose match",
			Rule{Recipient: "Practitioner/*", PurposeOfUse: []string{"treatment"}},
			"Practitioner/prov-001", "treatment", true,
		},
		{
			"Purpose wildcard",
			Rule{Recipient: "Practitioner/prov-002", PurposeOfUse: []string{"*"}},
			"Practitioner/prov-002", "anything-at-all", true,
		},
		{
			"Recipient match but purpose mismatch",
			Rule{Recipient: "Practitioner/*", PurposeOfUse: []string{"treatment"}},
			"Practitioner/prov-001", "billing", false,
		},
		{
			"Purpose match but recipient mismatch",
			Rule{Recipient: "Organization/*", PurposeOfUse: []string{"treatment"}},
			"Practitioner/prov-001", "treatment", false,
		},
		{
			"Empty purpose list never matches",
			Rule{Recipient: "*", PurposeOfUse: nil},
			"Practitioner/prov-001", "treatment", false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rule.Matches(tt.recipient, tt.purpose); got != tt.want {
				t.Errorf("Matches(%q, %q) = %v, want %v", tt.recipient, tt.purpose, got, tt.want)
			}
		})
	}
}

func TestScopeFor(t *testing.T) {
	doc := &Document{Consents: []Policy{
		{ID: "P1", PatientRef: "Patient/1"},
		{ID: "P2", PatientRef: "Patient/2"},
	}}

	if scope := doc.ScopeFor("Patient/2"); scope == nil || scope.ID != "P2" {
		t.Errorf("ScopeFor(Patient/2) = %+v, want P2", scope)
	}
	if scope := doc.ScopeFor("Patient/99"); scope != nil {
		t.Errorf("ScopeFor(Patient/99) = %+v, want nil", scope)
	}

	var nilDoc *Document
	if scope := nilDoc.ScopeFor("Patient/1"); scope != nil {
		t.Errorf("nil document ScopeFor = %+v, want nil", scope)
	}
}
