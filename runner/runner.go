// Package runner drives the sandbox once per test case: it feeds the case
// input, applies resource limits and compares captured output against the
// expected output under the case's comparison policy.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/codetask/validator/compare"
	"github.com/codetask/validator/language"
	"github.com/codetask/validator/sandbox"
	"github.com/codetask/validator/types"
)

// maxFeedback bounds every excerpt surfaced to the submitter: compiler
// messages, stderr excerpts and diff summaries.
const maxFeedback = 1024

// Runner prepares one submission inside an environment and runs its test
// cases. The environment's scratch directory is shared between the compile
// step and all runs of the same submission.
type Runner struct {
	Langs        *language.Registry
	TickInterval time.Duration
}

// CompileResult is the outcome of the build step preceding any test run.
type CompileResult struct {
	OK     bool
	Output string // bounded compiler message
	Setup  bool   // engine-side fault, not a submission defect
}

// Prepare resolves the language profile and writes the source into the
// environment, compiling it when the language requires a build step.
func (r *Runner) Prepare(ctx context.Context, env sandbox.Environment, sub *types.Submission) (language.Profile, CompileResult, error) {
	profile, ok := r.Langs.Get(sub.Language)
	if !ok {
		return language.Profile{}, CompileResult{}, fmt.Errorf("unsupported language: %s", sub.Language)
	}

	if !profile.Compiled() {
		// interpreted languages only need the source in place
		s := &sandbox.Single{
			Environment: env,
			Cmd:         &sandbox.Cmd{CopyIn: map[string][]byte{profile.SourceFile: sub.Source}},
		}
		if err := s.CopyInOnly(); err != nil {
			return profile, CompileResult{Setup: true, Output: "failed to stage source"}, nil
		}
		return profile, CompileResult{OK: true}, nil
	}

	args, err := profile.CompileArgs()
	if err != nil {
		return profile, CompileResult{}, fmt.Errorf("language %s: bad compile command: %w", profile.Name, err)
	}

	wait := &sandbox.Waiter{
		TickInterval: r.TickInterval,
		TimeLimit:    profile.CompileTime,
		WallLimit:    2 * profile.CompileTime,
	}
	s := &sandbox.Single{
		Environment: env,
		Cmd: &sandbox.Cmd{
			Args:        args,
			Env:         profile.Env,
			CopyIn:      map[string][]byte{profile.SourceFile: sub.Source},
			TimeLimit:   profile.CompileTime,
			WallLimit:   2 * profile.CompileTime,
			MemoryLimit: sandbox.Size(2 * profile.MemoryLimit),
			OutputLimit: sandbox.Size(profile.OutputLimit),
			ProcLimit:   profile.ProcLimit,
			Waiter:      wait.Wait,
		},
	}
	res, err := s.Run(ctx)
	if err != nil {
		return profile, CompileResult{Setup: true, Output: "sandbox setup failed"}, nil
	}
	if !res.Reason.OK() {
		return profile, CompileResult{Output: compilerMessage(res)}, nil
	}
	return profile, CompileResult{OK: true, Output: compilerMessage(res)}, nil
}

// RunCase executes one test case against the prepared submission. Errors
// are captured into the result, never propagated.
func (r *Runner) RunCase(ctx context.Context, env sandbox.Environment, profile language.Profile, tc types.TestCase) types.TestResult {
	rt := types.TestResult{Index: tc.Index}

	args, err := profile.RunArgs()
	if err != nil {
		rt.Outcome = &types.ExecutionOutcome{Reason: types.ReasonSetupFailed}
		rt.Diff = "bad run command"
		return rt
	}

	timeLimit := profile.TimeLimit
	if tc.TimeLimit > 0 {
		timeLimit = tc.TimeLimit
	}
	memoryLimit := profile.MemoryLimit
	if tc.MemoryLimit > 0 {
		memoryLimit = tc.MemoryLimit
	}

	wait := &sandbox.Waiter{
		TickInterval: r.TickInterval,
		TimeLimit:    timeLimit,
		WallLimit:    2 * timeLimit,
	}
	s := &sandbox.Single{
		Environment: env,
		Cmd: &sandbox.Cmd{
			Args:        args,
			Env:         profile.Env,
			Stdin:       bytes.NewReader(tc.Input),
			TimeLimit:   timeLimit,
			WallLimit:   2 * timeLimit,
			MemoryLimit: sandbox.Size(memoryLimit),
			OutputLimit: sandbox.Size(profile.OutputLimit),
			ProcLimit:   profile.ProcLimit,
			Waiter:      wait.Wait,
		},
	}

	res, err := s.Run(ctx)
	outcome := res.Outcome()
	// only a bounded summary survives into the report
	outcome.Stdout = nil
	outcome.Stderr = bound(res.Stderr)
	rt.Outcome = outcome

	if err != nil || res.Reason == types.ReasonSetupFailed {
		rt.Diff = "sandbox setup failed"
		return rt
	}
	// a non-clean termination is a failure regardless of comparison mode
	if !res.Reason.OK() {
		rt.Diff = terminationSummary(res)
		return rt
	}
	if m := compare.Output(tc.Mode, tc.Epsilon, tc.Expected, res.Stdout); m != nil {
		rt.Diff = excerpt(m.Error())
		return rt
	}
	rt.Passed = true
	return rt
}

func terminationSummary(res sandbox.Result) string {
	switch res.Reason {
	case types.ReasonTimeout:
		return fmt.Sprintf("time limit exceeded (cpu %v, wall %v)",
			res.CPUTime.Round(time.Millisecond), res.WallTime.Round(time.Millisecond))
	case types.ReasonMemoryExceeded:
		return fmt.Sprintf("memory limit exceeded (%d bytes)", res.PeakMemory)
	case types.ReasonOutputExceeded:
		return "output limit exceeded"
	case types.ReasonNonZeroExit:
		return excerpt(fmt.Sprintf("exit status %d: %s", res.ExitCode, res.Stderr))
	case types.ReasonCrashed:
		return excerpt("killed: " + res.Error)
	default:
		return res.Reason.String()
	}
}

func compilerMessage(res sandbox.Result) string {
	if res.Reason == types.ReasonTimeout {
		return "compiler time limit exceeded"
	}
	msg := make([]byte, 0, len(res.Stdout)+len(res.Stderr)+1)
	msg = append(msg, res.Stdout...)
	if len(res.Stdout) > 0 && len(res.Stderr) > 0 {
		msg = append(msg, '\n')
	}
	msg = append(msg, res.Stderr...)
	return excerpt(string(msg))
}

func bound(b []byte) []byte {
	if len(b) > maxFeedback {
		return b[:maxFeedback]
	}
	return b
}

func excerpt(s string) string {
	if len(s) > maxFeedback {
		return s[:maxFeedback] + "..."
	}
	return s
}
