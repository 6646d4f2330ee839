// Package report aggregates per-case results into the submission verdict.
// Aggregation is deterministic: the same results always produce the same
// report.
package report

import (
	"github.com/codetask/validator/types"
)

// verdict precedence, most severe first. When several cases fail for
// different reasons the submission carries the most severe one.
var severity = map[types.Verdict]int{
	types.VerdictInternalError:    6,
	types.VerdictCompileError:     5,
	types.VerdictTimeout:          4,
	types.VerdictResourceExceeded: 3,
	types.VerdictRuntimeError:     2,
	types.VerdictWrongAnswer:      1,
	types.VerdictAccepted:         0,
}

// Summarize builds the report for a submission whose cases ran. Skipped
// results do not contribute to the verdict.
func Summarize(id string, total int, results []types.TestResult, compileOutput string) *types.Report {
	rep := &types.Report{
		SubmissionID:  id,
		Verdict:       types.VerdictAccepted,
		Total:         total,
		Results:       results,
		CompileOutput: compileOutput,
	}
	for i := range results {
		r := &results[i]
		if r.Skipped {
			continue
		}
		if r.Outcome != nil {
			rep.TotalWallTime += r.Outcome.WallTime
		}
		if r.Passed {
			rep.Passed++
			continue
		}
		if rep.FirstFailure == nil {
			rep.FirstFailure = r
		}
		if v := caseVerdict(r); severity[v] > severity[rep.Verdict] {
			rep.Verdict = v
		}
	}
	return rep
}

// CompileFailure builds the report for a submission that never ran.
func CompileFailure(id string, total int, output string) *types.Report {
	return &types.Report{
		SubmissionID:  id,
		Verdict:       types.VerdictCompileError,
		Total:         total,
		CompileOutput: output,
	}
}

// Cancelled builds the report for a submission cancelled by the caller.
// Partial results are preserved.
func Cancelled(id string, total int, results []types.TestResult) *types.Report {
	rep := Summarize(id, total, results, "")
	rep.Verdict = types.VerdictCancelled
	return rep
}

// Internal builds the report for an engine-side failure.
func Internal(id string, total int, msg string) *types.Report {
	return &types.Report{
		SubmissionID:  id,
		Verdict:       types.VerdictInternalError,
		Total:         total,
		CompileOutput: msg,
	}
}

func caseVerdict(r *types.TestResult) types.Verdict {
	if r.Outcome == nil {
		return types.VerdictInternalError
	}
	switch r.Outcome.Reason {
	case types.ReasonTimeout:
		return types.VerdictTimeout
	case types.ReasonMemoryExceeded, types.ReasonOutputExceeded:
		return types.VerdictResourceExceeded
	case types.ReasonNonZeroExit, types.ReasonCrashed:
		return types.VerdictRuntimeError
	case types.ReasonCompleted:
		return types.VerdictWrongAnswer
	default:
		return types.VerdictInternalError
	}
}
