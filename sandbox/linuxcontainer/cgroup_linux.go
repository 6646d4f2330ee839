package linuxcontainer

import (
	"time"

	"github.com/criyle/go-sandbox/pkg/cgroup"

	"github.com/codetask/validator/sandbox"
)

// Cgroup limits and monitors resource consumption of one process tree.
type Cgroup interface {
	SetMemoryLimit(sandbox.Size) error
	SetProcLimit(uint64) error

	CPUUsage() (time.Duration, error)
	CurrentMemory() (sandbox.Size, error)
	MaxMemory() (sandbox.Size, error)

	AddProc(int) error
	Destroy() error
}

// CgroupPool creates one cgroup per execution and destroys it afterwards.
// Fresh cgroups keep the max-memory accounting of a run isolated.
type CgroupPool interface {
	Get() (Cgroup, error)
	Put(Cgroup)
}

var (
	_ Cgroup     = &wCgroup{}
	_ CgroupPool = &randomCgroupPool{}
)

type wCgroup struct {
	cg cgroup.Cgroup
}

func (c *wCgroup) SetMemoryLimit(s sandbox.Size) error {
	return c.cg.SetMemoryLimit(uint64(s))
}

func (c *wCgroup) SetProcLimit(l uint64) error {
	return c.cg.SetProcLimit(l)
}

func (c *wCgroup) CPUUsage() (time.Duration, error) {
	t, err := c.cg.CPUUsage()
	return time.Duration(t), err
}

func (c *wCgroup) CurrentMemory() (sandbox.Size, error) {
	s, err := c.cg.MemoryUsage()
	return sandbox.Size(s), err
}

func (c *wCgroup) MaxMemory() (sandbox.Size, error) {
	s, err := c.cg.MemoryMaxUsage()
	return sandbox.Size(s), err
}

func (c *wCgroup) AddProc(pid int) error {
	return c.cg.AddProc(pid)
}

func (c *wCgroup) Destroy() error {
	return c.cg.Destroy()
}

type randomCgroupPool struct {
	builder cgroup.Cgroup
}

// NewCgroupPool creates a pool that nests random cgroups under the parent.
func NewCgroupPool(parent cgroup.Cgroup) CgroupPool {
	return &randomCgroupPool{builder: parent}
}

func (p *randomCgroupPool) Get() (Cgroup, error) {
	cg, err := p.builder.Random("")
	if err != nil {
		return nil, err
	}
	return &wCgroup{cg: cg}, nil
}

func (p *randomCgroupPool) Put(c Cgroup) {
	c.Destroy()
}
