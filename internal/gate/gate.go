// Package gate derives client behaviour from the backend's phase string.
// Only two phases mean anything here; every other value passes through inert.
package gate

const (
	PhaseIncomplete = "incomplete"
	PhasePlanReady  = "plan_ready"
	PhaseWeek1      = "week1"
)

// IsOnboardingComplete reports whether the user has reached the coaching phase
func IsOnboardingComplete(phase string) bool {
	return phase == PhaseWeek1
}

// IsPlanReady reports whether the backend has produced a plan
func IsPlanReady(phase string) bool {
	return phase == PhasePlanReady
}

// OnboardingInputEnabled reports whether the onboarding chat accepts messages.
// The onboarding chat closes once onboarding is complete.
func OnboardingInputEnabled(phase string) bool {
	return !IsOnboardingComplete(phase)
}

// Status bundles the gate outputs for one phase
type Status struct {
	Phase              string `json:"phase" yaml:"phase"`
	OnboardingComplete bool   `json:"onboarding_complete" yaml:"onboarding_complete"`
	PlanReady          bool   `json:"plan_ready" yaml:"plan_ready"`
	OnboardingInput    bool   `json:"onboarding_input" yaml:"onboarding_input"`
}

// Evaluate computes the Status of phase
func Evaluate(phase string) Status {
	return Status{
		Phase:              phase,
		OnboardingComplete: IsOnboardingComplete(phase),
		PlanReady:          IsPlanReady(phase),
		OnboardingInput:    OnboardingInputEnabled(phase),
	}
}
