// Package sandbox executes one untrusted program inside an isolated
// environment under resource ceilings and classifies how it terminated.
package sandbox

import (
	"context"
	"io"
	"time"

	"github.com/codetask/validator/types"
)

// Cmd defines one program execution inside an environment.
type Cmd struct {
	// exec argument, environment
	Args []string
	Env  []string

	// Stdin is fed to the process through a pipe, nil reads as empty
	Stdin io.Reader

	// file contents written into the work dir before exec
	CopyIn map[string][]byte

	// resource limits
	TimeLimit   time.Duration // CPU
	WallLimit   time.Duration // clock, defaults to 2x TimeLimit
	MemoryLimit Size
	StackLimit  Size
	OutputLimit Size // per captured stream
	ProcLimit   uint64

	// Waiter is called after the process starts and owns the kill
	// decision: it returns once the time limit is exceeded (true) or the
	// process finished by itself (false).
	Waiter func(context.Context, Process) bool
}

// Result is the outcome of a single Cmd run.
type Result struct {
	Reason   types.TerminationReason
	ExitCode int

	Stdout    []byte
	Stderr    []byte
	Truncated bool // either stream hit OutputLimit

	CPUTime    time.Duration
	WallTime   time.Duration
	PeakMemory Size

	// Error holds engine-side detail, never shown to the submitter
	Error string
}

// Outcome converts the result into the report-facing execution outcome.
func (r Result) Outcome() *types.ExecutionOutcome {
	return &types.ExecutionOutcome{
		Reason:          r.Reason,
		ExitCode:        r.ExitCode,
		Stdout:          r.Stdout,
		Stderr:          r.Stderr,
		WallTime:        r.WallTime,
		CPUTime:         r.CPUTime,
		PeakMemory:      uint64(r.PeakMemory),
		OutputTruncated: r.Truncated,
	}
}
