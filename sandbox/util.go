package sandbox

import (
	"os"

	"github.com/criyle/go-sandbox/runner"

	"github.com/codetask/validator/types"
)

func convertReason(s runner.Status) types.TerminationReason {
	switch s {
	case runner.StatusNormal:
		return types.ReasonCompleted
	case runner.StatusNonzeroExitStatus:
		return types.ReasonNonZeroExit
	case runner.StatusSignalled, runner.StatusDisallowedSyscall:
		return types.ReasonCrashed
	case runner.StatusMemoryLimitExceeded:
		return types.ReasonMemoryExceeded
	case runner.StatusTimeLimitExceeded:
		return types.ReasonTimeout
	case runner.StatusOutputLimitExceeded:
		return types.ReasonOutputExceeded
	default:
		return types.ReasonSetupFailed
	}
}

func getFdArray(fd []*os.File) []uintptr {
	r := make([]uintptr, 0, len(fd))
	for _, f := range fd {
		r = append(r, f.Fd())
	}
	return r
}

func closeFiles(files ...*os.File) {
	for _, f := range files {
		if f == nil {
			continue
		}
		f.Close()
	}
}
