package entitlements

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want Plan
	}{
		{in: "starter", want: PlanStarter},
		{in: "exec_monthly", want: PlanExecutive},
		{in: "  EXEC_YEARLY ", want: PlanExecYearly},
		{in: "", want: PlanStarter},
		{in: "enterprise", want: PlanStarter},
	}

	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAnalysisLimit(t *testing.T) {
	if got := AnalysisLimit(PlanStarter); got != 5 {
		t.Fatalf("starter limit = %d", got)
	}
	if got := AnalysisLimit(PlanExecutive); got != 200 {
		t.Fatalf("exec_monthly limit = %d", got)
	}
	if got := AnalysisLimit(PlanExecYearly); got != 200 {
		t.Fatalf("exec_yearly limit = %d", got)
	}
}

func TestWithinLimit(t *testing.T) {
	if !WithinLimit(PlanStarter, 4) {
		t.Fatalf("4 of 5 should be within the starter limit")
	}
	if WithinLimit(PlanStarter, 5) {
		t.Fatalf("5 of 5 should be over the starter limit")
	}
	if !WithinLimit(PlanExecutive, 199) {
		t.Fatalf("199 of 200 should be within the executive limit")
	}
}

func TestMaxRecordingSeconds(t *testing.T) {
	if got := MaxRecordingSeconds(PlanStarter); got != 600 {
		t.Fatalf("starter recording cap = %d", got)
	}
	if got := MaxRecordingSeconds(PlanExecYearly); got != 3600 {
		t.Fatalf("executive recording cap = %d", got)
	}
}

func TestCanUseCustomScenarios(t *testing.T) {
	if CanUseCustomScenarios(PlanStarter) {
		t.Fatalf("starter must not unlock custom scenarios")
	}
	if !CanUseCustomScenarios(PlanExecutive) || !CanUseCustomScenarios(PlanExecYearly) {
		t.Fatalf("executive plans must unlock custom scenarios")
	}
}
