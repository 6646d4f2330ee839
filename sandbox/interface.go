package sandbox

import (
	"context"
	"os"
	"time"

	"github.com/criyle/go-sandbox/runner"
)

// Size represents data size in bytes
type Size = runner.Size

// RunnerResult represents a process finish result
type RunnerResult = runner.Result

// ExecveParam is parameters to run process inside environment
type ExecveParam struct {
	// Args holds command line arguments
	Args []string

	// Env specifies the environment of the process
	Env []string

	// Files specifies file descriptors for the child process
	Files []uintptr

	// Process Limitations
	Limit Limit
}

// Limit defines the process running resource limits
type Limit struct {
	Time   time.Duration // CPU time limit
	Memory Size          // Memory limit
	Proc   uint64        // Process count limit
	Stack  Size          // Stack limit
	Output Size          // Output limit (POSIX rlimit)
}

// Usage defines the peak process resource usage
type Usage struct {
	Time   time.Duration
	Memory Size
}

// Process reference to the running process group
type Process interface {
	Done() <-chan struct{} // Done returns a channel that closes when the process exits
	Result() RunnerResult  // Result waits until done and returns RunnerResult
	Usage() Usage          // Usage retrieves the resource usage during the run time
}

// Environment defines the interface to access an isolated execution
// environment. Implementations must deny network access and restrict the
// filesystem view to a scratch work directory.
type Environment interface {
	Execve(context.Context, ExecveParam) (Process, error)
	WorkDir() *os.File // WorkDir returns opened work directory, should not close after
	// Open opens file at work dir with given relative path and flags
	Open(path string, flags int, perm os.FileMode) (*os.File, error)
}
