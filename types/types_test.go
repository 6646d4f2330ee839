package types

import (
	"encoding/json"
	"testing"
)

func TestReportJSONRoundTrip(t *testing.T) {
	in := Report{
		SubmissionID: "s1",
		Verdict:      VerdictWrongAnswer,
		Passed:       1,
		Total:        2,
		Results: []TestResult{
			{Index: 0, Passed: true, Outcome: &ExecutionOutcome{Reason: ReasonCompleted}},
			{Index: 1, Outcome: &ExecutionOutcome{Reason: ReasonNonZeroExit, ExitCode: 1}},
		},
	}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out Report
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}
	if out.Verdict != VerdictWrongAnswer {
		t.Errorf("verdict = %v", out.Verdict)
	}
	if out.Results[1].Outcome.Reason != ReasonNonZeroExit {
		t.Errorf("reason = %v", out.Results[1].Outcome.Reason)
	}
}

func TestVerdictUnmarshalUnknown(t *testing.T) {
	var v Verdict
	if err := json.Unmarshal([]byte(`"NoSuchVerdict"`), &v); err == nil {
		t.Error("expected error for an unknown verdict name")
	}
}
