package report

import (
	"testing"
	"time"

	"github.com/codetask/validator/types"
)

func pass(idx int, wall time.Duration) types.TestResult {
	return types.TestResult{
		Index:   idx,
		Passed:  true,
		Outcome: &types.ExecutionOutcome{Reason: types.ReasonCompleted, WallTime: wall},
	}
}

func fail(idx int, reason types.TerminationReason) types.TestResult {
	return types.TestResult{
		Index:   idx,
		Outcome: &types.ExecutionOutcome{Reason: reason},
	}
}

func TestSummarizeAccepted(t *testing.T) {
	results := []types.TestResult{
		pass(0, 10*time.Millisecond),
		pass(1, 20*time.Millisecond),
	}
	rep := Summarize("s1", 2, results, "")
	if rep.Verdict != types.VerdictAccepted {
		t.Fatalf("verdict = %v", rep.Verdict)
	}
	if rep.Passed != 2 || rep.Total != 2 {
		t.Errorf("passed %d / total %d", rep.Passed, rep.Total)
	}
	if rep.FirstFailure != nil {
		t.Error("accepted report must not carry a failure")
	}
	if rep.TotalWallTime != 30*time.Millisecond {
		t.Errorf("totalWallTime = %v", rep.TotalWallTime)
	}
}

func TestSummarizePrecedence(t *testing.T) {
	for _, tt := range []struct {
		name    string
		reasons []types.TerminationReason
		want    types.Verdict
	}{
		{"wrongAnswerOnly", []types.TerminationReason{types.ReasonCompleted}, types.VerdictWrongAnswer},
		{"runtimeBeatsWrong", []types.TerminationReason{types.ReasonCompleted, types.ReasonCrashed}, types.VerdictRuntimeError},
		{"resourceBeatsRuntime", []types.TerminationReason{types.ReasonNonZeroExit, types.ReasonMemoryExceeded}, types.VerdictResourceExceeded},
		{"timeoutBeatsResource", []types.TerminationReason{types.ReasonOutputExceeded, types.ReasonTimeout}, types.VerdictTimeout},
		{"internalBeatsAll", []types.TerminationReason{types.ReasonTimeout, types.ReasonSetupFailed}, types.VerdictInternalError},
	} {
		t.Run(tt.name, func(t *testing.T) {
			var results []types.TestResult
			for i, r := range tt.reasons {
				results = append(results, fail(i, r))
			}
			rep := Summarize("s1", len(results), results, "")
			if rep.Verdict != tt.want {
				t.Errorf("verdict = %v, want %v", rep.Verdict, tt.want)
			}
		})
	}
}

func TestSummarizeFirstFailure(t *testing.T) {
	results := []types.TestResult{
		pass(0, 0),
		fail(1, types.ReasonCompleted),
		fail(2, types.ReasonTimeout),
	}
	rep := Summarize("s1", 3, results, "")
	if rep.FirstFailure == nil || rep.FirstFailure.Index != 1 {
		t.Fatalf("firstFailure = %+v", rep.FirstFailure)
	}
	// verdict still reflects the most severe case, not the first
	if rep.Verdict != types.VerdictTimeout {
		t.Errorf("verdict = %v", rep.Verdict)
	}
}

func TestSummarizeSkippedExcluded(t *testing.T) {
	results := []types.TestResult{
		fail(0, types.ReasonCompleted),
		{Index: 1, Skipped: true},
		{Index: 2, Skipped: true},
	}
	rep := Summarize("s1", 3, results, "")
	if rep.Verdict != types.VerdictWrongAnswer {
		t.Fatalf("verdict = %v", rep.Verdict)
	}
	if rep.Passed != 0 {
		t.Errorf("passed = %d", rep.Passed)
	}
}

func TestSummarizeDeterministic(t *testing.T) {
	results := []types.TestResult{
		fail(0, types.ReasonCrashed),
		pass(1, time.Millisecond),
		fail(2, types.ReasonMemoryExceeded),
	}
	a := Summarize("s1", 3, results, "")
	b := Summarize("s1", 3, results, "")
	if a.Verdict != b.Verdict || a.Passed != b.Passed || a.FirstFailure.Index != b.FirstFailure.Index {
		t.Error("summarize is not deterministic")
	}
}

func TestCompileFailure(t *testing.T) {
	rep := CompileFailure("s1", 5, "syntax error")
	if rep.Verdict != types.VerdictCompileError {
		t.Fatalf("verdict = %v", rep.Verdict)
	}
	if rep.Total != 5 || rep.Passed != 0 || len(rep.Results) != 0 {
		t.Errorf("unexpected report: %+v", rep)
	}
	if rep.CompileOutput != "syntax error" {
		t.Errorf("compileOutput = %q", rep.CompileOutput)
	}
}

func TestCancelledKeepsPartialResults(t *testing.T) {
	results := []types.TestResult{
		pass(0, time.Millisecond),
		{Index: 1, Skipped: true},
	}
	rep := Cancelled("s1", 2, results)
	if rep.Verdict != types.VerdictCancelled {
		t.Fatalf("verdict = %v", rep.Verdict)
	}
	if rep.Passed != 1 || len(rep.Results) != 2 {
		t.Errorf("unexpected report: %+v", rep)
	}
}

func TestInternal(t *testing.T) {
	rep := Internal("s1", 2, "no environment available")
	if rep.Verdict != types.VerdictInternalError {
		t.Fatalf("verdict = %v", rep.Verdict)
	}
}
