package domain

import (
	"github.com/go-playground/validator/v10"
)

// Record is a single item returned by the Bamboo REST API (a plan, branch, build
// result, deployment project or environment result). Records are passed through
// to callers exactly as the server sent them.
type Record map[string]interface{}

// String walks nested objects along path and returns the string found at the end.
// It returns "" when any segment is missing or the final value is not a string.
func (r Record) String(path ...string) string {
	var current interface{} = map[string]interface{}(r)
	for _, key := range path {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return ""
		}
		current = obj[key]
	}
	s, _ := current.(string)
	return s
}

// LabeledBuild identifies a build found through the label search page.
type LabeledBuild struct {
	ProjectKey string `json:"projectKey"`
	PlanKey    string `json:"planKey"`
	BuildKey   string `json:"buildKey"`
}

// Build states accepted by the branch results filter.
const (
	BuildStateSuccessful = "Successful"
	BuildStateFailed     = "Failed"
	BuildStateUnknown    = "Unknown"
)

// ValidBuildStates lists the accepted build_state filter values in the order
// they are reported back to callers.
var ValidBuildStates = []string{BuildStateSuccessful, BuildStateFailed, BuildStateUnknown}

type buildStateFilter struct {
	State string `validate:"omitempty,oneof=Successful Failed Unknown"`
}

var filterValidator = validator.New()

// ValidateBuildState returns a *ValidationError when state is set and is not one
// of ValidBuildStates. An empty state means "no filter" and is accepted.
func ValidateBuildState(state string) error {
	if err := filterValidator.Struct(buildStateFilter{State: state}); err != nil {
		return &ValidationError{
			Field:   "build_state",
			Value:   state,
			Allowed: ValidBuildStates,
		}
	}
	return nil
}
