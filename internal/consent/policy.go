package consent

import "strings"

// Rule is a single allow or deny entry inside a policy scope. Recipient is a
// match pattern: exact reference, "*" for any, or "prefix*" for prefix match.
// PurposeOfUse lists the purposes the rule covers; "*" covers any purpose.
type Rule struct {
	Recipient    string   `json:"recipient"`
	PurposeOfUse []string `json:"purpose_of_use"`
}

// Policy is the consent scope for one patient: ordered deny and allow rule
// lists. Deny is always evaluated first.
type Policy struct {
	ID         string `json:"id"`
	PatientRef string `json:"patient_ref"`
	Allow      []Rule `json:"allow"`
	Deny       []Rule `json:"deny"`
}

// Document is a loaded consent policy set. Immutable once published; reloads
// swap in a whole new Document.
type Document struct {
	Consents []Policy `json:"consents"`
}

// ScopeFor returns the policy scope whose patient_ref matches subjectRef
// exactly, or nil.
func (d *Document) ScopeFor(subjectRef string) *Policy {
	if d == nil {
		return nil
	}
	for i := range d.Consents {
		if d.Consents[i].PatientRef == subjectRef {
			return &d.Consents[i]
		}
	}
	return nil
}

// MatchToken reports whether pattern matches value. "*" matches anything and
// a trailing "*" matches any value sharing the prefix.
func MatchToken(pattern, value string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(value, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == value
}

// Matches reports whether the rule covers the recipient/purpose pair.
func (r Rule) Matches(recipientRef, purposeOfUse string) bool {
	if !MatchToken(r.Recipient, recipientRef) {
		return false
	}
	for _, p := range r.PurposeOfUse {
		if p == "*" || p == purposeOfUse {
			return true
		}
	}
	return false
}
