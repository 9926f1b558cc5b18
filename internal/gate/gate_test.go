package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		phase string
		want  Status
	}{
		{phase: "incomplete", want: Status{Phase: "incomplete", OnboardingInput: true}},
		{phase: "plan_ready", want: Status{Phase: "plan_ready", PlanReady: true, OnboardingInput: true}},
		{phase: "week1", want: Status{Phase: "week1", OnboardingComplete: true}},
		{phase: "week2", want: Status{Phase: "week2", OnboardingInput: true}},
		{phase: "", want: Status{OnboardingInput: true}},
		{phase: "WEEK1", want: Status{Phase: "WEEK1", OnboardingInput: true}},
	}

	for _, tt := range tests {
		t.Run(tt.phase, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.phase))
		})
	}
}
