package linuxcontainer

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/criyle/go-sandbox/container"
	"github.com/criyle/go-sandbox/pkg/rlimit"
	"github.com/criyle/go-sandbox/runner"

	"github.com/codetask/validator/sandbox"
)

var _ sandbox.PoolEnvironment = &environ{}

// environ exposes one container as a sandbox environment.
type environ struct {
	container.Environment
	cgPool  CgroupPool
	wd      *os.File // opened container work dir
	workDir string
	seccomp []syscall.SockFilter
}

// Destroy tears down the container.
func (c *environ) Destroy() error {
	return c.Environment.Destroy()
}

// Reset wipes the scratch directory between submissions.
func (c *environ) Reset() error {
	return c.Environment.Reset()
}

// Execve executes a process inside the environment under the given limits.
func (c *environ) Execve(ctx context.Context, param sandbox.ExecveParam) (sandbox.Process, error) {
	var (
		cg       Cgroup
		syncFunc func(int) error
		err      error
	)

	limit := param.Limit
	if c.cgPool != nil {
		cg, err = c.cgPool.Get()
		if err != nil {
			return nil, fmt.Errorf("execve: failed to get cgroup: %w", err)
		}
		cg.SetMemoryLimit(limit.Memory)
		cg.SetProcLimit(limit.Proc)
		syncFunc = cg.AddProc
	}

	rLimits := rlimit.RLimits{
		CPU:         uint64(limit.Time.Truncate(time.Second)/time.Second) + 1,
		FileSize:    limit.Output.Byte(),
		Stack:       limit.Stack.Byte(),
		DisableCore: true,
	}
	// without cgroup support rlimit data is the only memory fence
	if c.cgPool == nil {
		rLimits.Data = limit.Memory.Byte()
	}

	p := container.ExecveParam{
		Args:     param.Args,
		Env:      param.Env,
		Files:    param.Files,
		RLimits:  rLimits.PrepareRLimit(),
		Seccomp:  c.seccomp,
		SyncFunc: syncFunc,
	}
	return newProcess(func() runner.Result {
		return c.Environment.Execve(ctx, p)
	}, cg, c.cgPool), nil
}

// WorkDir returns the opened work directory, should not be closed by caller.
func (c *environ) WorkDir() *os.File {
	c.wd.Seek(0, 0)
	return c.wd
}

// Open opens a file relative to the work directory.
func (c *environ) Open(path string, flags int, perm os.FileMode) (*os.File, error) {
	fd, err := syscall.Openat(int(c.wd.Fd()), path, flags|syscall.O_CLOEXEC, uint32(perm))
	if err != nil {
		return nil, fmt.Errorf("openat %s: %w", path, err)
	}
	f := os.NewFile(uintptr(fd), path)
	if f == nil {
		return nil, fmt.Errorf("openat %s: failed to create file object", path)
	}
	return f, nil
}
