package sandbox

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/criyle/go-sandbox/runner"

	"github.com/codetask/validator/types"
)

// extra memory buffer so the kernel limit does not fire before the
// post-run check can classify the overage
const defaultExtraMemory = Size(16 << 10)

// Single runs one Cmd inside an Environment and classifies the outcome.
type Single struct {
	Environment Environment
	Cmd         *Cmd
}

// CopyInOnly stages the CopyIn files without executing anything.
func (s *Single) CopyInOnly() error {
	return copyIn(s.Environment, s.Cmd.CopyIn)
}

// Run executes the command. The returned error is non-nil only for
// engine-side setup faults; submission misbehavior is expressed through
// Result.Reason.
func (s *Single) Run(ctx context.Context) (Result, error) {
	c := s.Cmd

	if err := copyIn(s.Environment, c.CopyIn); err != nil {
		return setupFailed(err), err
	}

	stdin, err := prepareStdin(c.Stdin)
	if err != nil {
		return setupFailed(err), err
	}
	stdout, err := newPipeBuffer(c.OutputLimit)
	if err != nil {
		stdin.Close()
		return setupFailed(err), err
	}
	stderr, err := newPipeBuffer(c.OutputLimit)
	if err != nil {
		closeFiles(stdin, stdout.w)
		return setupFailed(err), err
	}

	rt := s.runAndWait(ctx, []*os.File{stdin, stdout.w, stderr.w})

	outContent, outOver := stdout.collect()
	errContent, errOver := stderr.collect()

	if rt.Status == runner.StatusRunnerError {
		err := fmt.Errorf("sandbox: %s", rt.Error)
		return setupFailed(err), err
	}

	result := Result{
		Reason:     convertReason(rt.Status),
		ExitCode:   rt.ExitStatus,
		Stdout:     outContent,
		Stderr:     errContent,
		Truncated:  outOver || errOver,
		CPUTime:    rt.Time,
		WallTime:   rt.RunningTime,
		PeakMemory: rt.Memory,
		Error:      rt.Error,
	}

	// the kernel enforced limits carry slack, reclassify on the exact ones
	if rt.Time > c.TimeLimit {
		result.Reason = types.ReasonTimeout
	}
	if c.MemoryLimit > 0 && rt.Memory > c.MemoryLimit {
		result.Reason = types.ReasonMemoryExceeded
	}
	if result.Truncated && result.Reason == types.ReasonCompleted {
		result.Reason = types.ReasonOutputExceeded
	}
	return result, nil
}

// runAndWait starts the process and hands the kill decision to the waiter.
func (s *Single) runAndWait(pc context.Context, fds []*os.File) RunnerResult {
	c := s.Cmd
	ctx, cancel := context.WithCancel(pc)
	defer cancel()

	process, err := s.execve(ctx, fds)
	if err != nil {
		return runner.Result{
			Status: runner.StatusRunnerError,
			Error:  err.Error(),
		}
	}

	wait := c.Waiter
	if wait == nil {
		w := &Waiter{TimeLimit: c.TimeLimit, WallLimit: c.WallLimit}
		wait = w.Wait
	}
	go func() {
		defer cancel()
		wait(ctx, process)
	}()

	// cancellation through the waiter tears down the whole process tree
	<-ctx.Done()
	return process.Result()
}

func (s *Single) execve(ctx context.Context, fds []*os.File) (Process, error) {
	defer closeFiles(fds...)

	c := s.Cmd
	memoryLimit := c.MemoryLimit + defaultExtraMemory
	stackLimit := c.StackLimit
	if stackLimit == 0 || stackLimit > memoryLimit {
		stackLimit = memoryLimit
	}

	return s.Environment.Execve(ctx, ExecveParam{
		Args:  c.Args,
		Env:   c.Env,
		Files: getFdArray(fds),
		Limit: Limit{
			Time:   c.TimeLimit,
			Memory: memoryLimit,
			Proc:   c.ProcLimit,
			Stack:  stackLimit,
			Output: c.OutputLimit,
		},
	})
}

func copyIn(m Environment, files map[string][]byte) error {
	for name, content := range files {
		f, err := m.Open(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0777)
		if err != nil {
			return fmt.Errorf("copyin %s: %w", name, err)
		}
		_, err = f.Write(content)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("copyin %s: %w", name, err)
		}
	}
	return nil
}

// prepareStdin returns the read end fed to the child. The writer goroutine
// exits once the child stops reading.
func prepareStdin(src io.Reader) (*os.File, error) {
	if src == nil {
		return os.Open(os.DevNull)
	}
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	go func() {
		io.Copy(w, src)
		w.Close()
	}()
	return r, nil
}

func setupFailed(err error) Result {
	return Result{
		Reason: types.ReasonSetupFailed,
		Error:  err.Error(),
	}
}
