package domain

import (
	"strconv"
	"strings"
)

// Reference prefixes used throughout the discharge workflow. References are
// FHIR-style "{Type}/{id}" strings and stay opaque outside this package.
const (
	PatientPrefix      = "Patient/"
	PractitionerPrefix = "Practitioner/"
	OrganizationPrefix = "Organization/"
)

// PatientRef builds a "Patient/{id}" reference.
func PatientRef(patientID string) string {
	return PatientPrefix + patientID
}

// PatientID extracts the identifier from a "Patient/{id}" reference. The
// second return is false when ref does not carry the Patient prefix.
func PatientID(ref string) (string, bool) {
	id, ok := strings.CutPrefix(ref, PatientPrefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// NumericPatientID parses the numeric identifier out of a patient reference.
// Demo patients carry numeric ids; anything else reports false.
func NumericPatientID(ref string) (int, bool) {
	id := ref
	if cut, ok := PatientID(ref); ok {
		id = cut
	} else if i := strings.LastIndex(ref, "/"); i >= 0 {
		id = ref[i+1:]
	}
	n, err := strconv.Atoi(id)
	if err != nil {
		return 0, false
	}
	return n, true
}

// IsPractitioner reports whether ref points at a Practitioner resource.
func IsPractitioner(ref string) bool {
	return strings.HasPrefix(ref, PractitionerPrefix)
}
