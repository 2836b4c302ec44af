package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestRecordString(t *testing.T) {
	var plan Record
	if err := json.Unmarshal([]byte(`{"key":"PROJ-PLAN","planKey":{"key":"PROJ-PLAN"},"enabled":true}`), &plan); err != nil {
		t.Fatalf("Failed to unmarshal record: %v", err)
	}

	tests := []struct {
		path []string
		want string
	}{
		{[]string{"key"}, "PROJ-PLAN"},
		{[]string{"planKey", "key"}, "PROJ-PLAN"},
		{[]string{"planKey", "missing"}, ""},
		{[]string{"enabled"}, ""},
		{[]string{"key", "nested"}, ""},
	}
	for _, tt := range tests {
		if got := plan.String(tt.path...); got != tt.want {
			t.Errorf("String(%v) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestValidateBuildState(t *testing.T) {
	for _, state := range []string{"", BuildStateSuccessful, BuildStateFailed, BuildStateUnknown} {
		if err := ValidateBuildState(state); err != nil {
			t.Errorf("ValidateBuildState(%q) error = %v, want nil", state, err)
		}
	}

	err := ValidateBuildState("Bogus")
	if err == nil {
		t.Fatal("ValidateBuildState(Bogus) error = nil, want ValidationError")
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if verr.Field != "build_state" || verr.Value != "Bogus" {
		t.Errorf("unexpected validation error %+v", verr)
	}
	if want := `incorrect value "Bogus" for 'build_state'. Valid values include: Successful,Failed,Unknown`; verr.Error() != want {
		t.Errorf("Error() = %q, want %q", verr.Error(), want)
	}
}
