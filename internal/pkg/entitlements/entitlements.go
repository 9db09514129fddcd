package entitlements

import "strings"

type Plan string

const (
	PlanStarter    Plan = "starter"
	PlanExecutive  Plan = "exec_monthly"
	PlanExecYearly Plan = "exec_yearly"
)

// Unlimited marks a counter without a cap.
const Unlimited int64 = -1

// AnalysisLimit returns how many conversation analyses a plan allows per
// billing period.
func AnalysisLimit(plan Plan) int64 {
	switch plan {
	case PlanExecutive, PlanExecYearly:
		return 200
	default:
		return 5
	}
}

// MaxRecordingSeconds returns the longest conversation recording a plan accepts
func MaxRecordingSeconds(plan Plan) int {
	switch plan {
	case PlanExecutive, PlanExecYearly:
		return 3600
	default:
		return 600
	}
}

// CanUseCustomScenarios reports whether the plan unlocks user-authored
// training scenarios in addition to the built-in library.
func CanUseCustomScenarios(plan Plan) bool {
	switch plan {
	case PlanExecutive, PlanExecYearly:
		return true
	default:
		return false
	}
}

// Normalize maps arbitrary plan strings onto a known plan, defaulting to starter
func Normalize(plan string) Plan {
	switch Plan(strings.ToLower(strings.TrimSpace(plan))) {
	case PlanExecutive:
		return PlanExecutive
	case PlanExecYearly:
		return PlanExecYearly
	default:
		return PlanStarter
	}
}

// WithinLimit reports whether used analyses stay under the plan cap.
func WithinLimit(plan Plan, used int64) bool {
	limit := AnalysisLimit(plan)
	if limit == Unlimited {
		return true
	}
	return used < limit
}
