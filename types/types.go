// Package types defines the data model shared between the validation
// engine components: submissions, test cases, execution outcomes and the
// final validation report.
package types

import (
	"fmt"
	"time"
)

// Submission is one user's code attempt for one task. It is immutable once
// created and owned by the scheduler for the duration of its processing.
type Submission struct {
	ID          string    `json:"submissionId"`
	TaskID      string    `json:"taskId"`
	Source      []byte    `json:"source"`
	Language    string    `json:"language"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// TestCase is an input / expected-output pair with a comparison policy.
// Test cases are evaluated in ascending index order.
type TestCase struct {
	Index       int            `json:"index"`
	Input       []byte         `json:"input"`
	Expected    []byte         `json:"expected"`
	Mode        ComparisonMode `json:"mode"`
	Epsilon     float64        `json:"epsilon,omitempty"`
	TimeLimit   time.Duration  `json:"timeLimit,omitempty"`
	MemoryLimit uint64         `json:"memoryLimit,omitempty"` // bytes
}

// ComparisonMode selects the rule used to decide whether actual output
// matches expected output.
type ComparisonMode int

const (
	ModeExact ComparisonMode = iota
	ModeTrimmedLines
	ModeTokenSequence
	ModeNumericTolerance
)

var modeToString = []string{
	"exact",
	"trimmedLines",
	"tokenSequence",
	"numericTolerance",
}

var (
	stringToMode    = make(map[string]ComparisonMode)
	stringToVerdict = make(map[string]Verdict)
)

func (m ComparisonMode) String() string {
	v := int(m)
	if v < 0 || v >= len(modeToString) {
		return modeToString[0]
	}
	return modeToString[v]
}

// MarshalJSON encodes the mode as its string name
func (m ComparisonMode) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON decodes the mode from its string name
func (m *ComparisonMode) UnmarshalJSON(b []byte) error {
	v, ok := stringToMode[string(b)]
	if !ok {
		return fmt.Errorf("invalid comparison mode: %s", b)
	}
	*m = v
	return nil
}

// TerminationReason classifies how a sandboxed process ended.
type TerminationReason int

const (
	// not initialized (as error)
	ReasonInvalid TerminationReason = iota

	// exited with status 0 before any limit triggered
	ReasonCompleted

	// exited by itself with non-zero status
	ReasonNonZeroExit

	// killed since cpu or wall clock limit exceeded
	ReasonTimeout

	// killed since memory limit exceeded
	ReasonMemoryExceeded

	// killed since output size limit exceeded
	ReasonOutputExceeded

	// terminated by a signal (segfault, forbidden syscall, ...)
	ReasonCrashed

	// engine-side failure, not attributable to the submission
	ReasonSetupFailed
)

var reasonToString = []string{
	"Invalid",
	"Completed",
	"NonZeroExit",
	"Timeout",
	"MemoryExceeded",
	"OutputExceeded",
	"Crashed",
	"SandboxSetupFailed",
}

var stringToReason = make(map[string]TerminationReason)

func (r TerminationReason) String() string {
	v := int(r)
	if v < 0 || v >= len(reasonToString) {
		return reasonToString[0]
	}
	return reasonToString[v]
}

// OK returns true only for a clean zero exit
func (r TerminationReason) OK() bool {
	return r == ReasonCompleted
}

// MarshalJSON encodes the reason as its string name
func (r TerminationReason) MarshalJSON() ([]byte, error) {
	return []byte(`"` + r.String() + `"`), nil
}

// UnmarshalJSON decodes the reason from its string name
func (r *TerminationReason) UnmarshalJSON(b []byte) error {
	v, ok := stringToReason[string(b)]
	if !ok {
		return fmt.Errorf("invalid termination reason: %s", b)
	}
	*r = v
	return nil
}

// ExecutionOutcome is produced once per sandbox invocation and consumed by
// the test case runner. Only a summary survives into the report.
type ExecutionOutcome struct {
	Reason          TerminationReason `json:"reason"`
	ExitCode        int               `json:"exitCode"`
	Stdout          []byte            `json:"stdout,omitempty"`
	Stderr          []byte            `json:"stderr,omitempty"`
	WallTime        time.Duration     `json:"wallTime"`
	CPUTime         time.Duration     `json:"cpuTime"`
	PeakMemory      uint64            `json:"peakMemory"` // bytes, best effort even on timeout
	OutputTruncated bool              `json:"outputTruncated,omitempty"`
}

// TestResult holds the outcome of a single test case.
type TestResult struct {
	Index   int               `json:"index"`
	Passed  bool              `json:"passed"`
	Skipped bool              `json:"skipped,omitempty"`
	Outcome *ExecutionOutcome `json:"outcome,omitempty"`
	Diff    string            `json:"diff,omitempty"`
}

// Verdict is the aggregated status of a whole submission.
type Verdict int

const (
	VerdictInvalid Verdict = iota
	VerdictAccepted
	VerdictWrongAnswer
	VerdictRuntimeError
	VerdictResourceExceeded
	VerdictTimeout
	VerdictCompileError
	VerdictInternalError
	VerdictCancelled
)

var verdictToString = []string{
	"Invalid",
	"Accepted",
	"Wrong Answer",
	"Runtime Error",
	"Resource Exceeded",
	"Timeout",
	"Compile Error",
	"Internal Error",
	"Cancelled",
}

func (v Verdict) String() string {
	i := int(v)
	if i < 0 || i >= len(verdictToString) {
		return verdictToString[0]
	}
	return verdictToString[i]
}

// MarshalJSON encodes the verdict as its string name
func (v Verdict) MarshalJSON() ([]byte, error) {
	return []byte(`"` + v.String() + `"`), nil
}

// UnmarshalJSON decodes the verdict from its string name
func (v *Verdict) UnmarshalJSON(b []byte) error {
	d, ok := stringToVerdict[string(b)]
	if !ok {
		return fmt.Errorf("invalid verdict: %s", b)
	}
	*v = d
	return nil
}

// Report is the terminal artifact of a validation. Ownership transfers to
// the caller on return.
type Report struct {
	SubmissionID  string        `json:"submissionId"`
	Verdict       Verdict       `json:"verdict"`
	Passed        int           `json:"passed"`
	Total         int           `json:"total"`
	FirstFailure  *TestResult   `json:"firstFailure,omitempty"`
	Results       []TestResult  `json:"results"`
	TotalWallTime time.Duration `json:"totalWallTime"`
	CompileOutput string        `json:"compileOutput,omitempty"`
}

// Options controls scheduling of a single validation.
type Options struct {
	// RunAll executes every test case regardless of earlier failures,
	// used when the caller wants complete diagnostics.
	RunAll bool
}

func init() {
	for i, v := range modeToString {
		stringToMode[`"`+v+`"`] = ComparisonMode(i)
	}
	for i, v := range reasonToString {
		stringToReason[`"`+v+`"`] = TerminationReason(i)
	}
	for i, v := range verdictToString {
		stringToVerdict[`"`+v+`"`] = Verdict(i)
	}
}
