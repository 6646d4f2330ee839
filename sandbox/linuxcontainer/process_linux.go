package linuxcontainer

import (
	"time"

	"github.com/criyle/go-sandbox/runner"

	"github.com/codetask/validator/sandbox"
)

var _ sandbox.Process = &process{}

// process tracks one running process tree and its cgroup accounting.
type process struct {
	rt   runner.Result
	done chan struct{}
	cg   Cgroup
}

func newProcess(run func() runner.Result, cg Cgroup, cgPool CgroupPool) *process {
	p := &process{
		done: make(chan struct{}),
		cg:   cg,
	}
	go func() {
		defer close(p.done)
		if cgPool != nil {
			defer cgPool.Put(cg)
		}
		p.rt = run()
		p.collectUsage()
	}()
	return p
}

// collectUsage replaces rusage numbers with the more precise cgroup ones,
// which also cover children that already exited.
func (p *process) collectUsage() {
	if p.cg == nil {
		return
	}
	if t, err := p.cg.CPUUsage(); err == nil {
		p.rt.Time = t
	}
	if m, err := p.cg.MaxMemory(); err == nil && m > 0 {
		p.rt.Memory = m
	}
}

func (p *process) Done() <-chan struct{} {
	return p.done
}

func (p *process) Result() sandbox.RunnerResult {
	<-p.done
	return p.rt
}

// Usage samples the live usage, used by the limiter watchdog. Best effort:
// missing cgroup support yields zeroes and the wall clock still guards.
func (p *process) Usage() sandbox.Usage {
	var (
		t time.Duration
		m sandbox.Size
	)
	if p.cg != nil {
		t, _ = p.cg.CPUUsage()
		m, _ = p.cg.CurrentMemory()
	}
	return sandbox.Usage{
		Time:   t,
		Memory: m,
	}
}
