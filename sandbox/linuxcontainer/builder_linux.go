package linuxcontainer

import (
	"fmt"
	"os"
	"sync/atomic"
	"syscall"

	"github.com/criyle/go-sandbox/container"
	"github.com/criyle/go-sandbox/pkg/cgroup"
	"github.com/criyle/go-sandbox/pkg/forkexec"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/codetask/validator/sandbox"
)

const (
	containerName        = "code_validator"
	defaultWorkDir       = "/w"
	defaultContainerCred = 1000
)

// Config specifies how to build container environments.
type Config struct {
	TmpFsParam         string // tmpfs mount data for scratch dirs
	NetShare           bool   // share net namespace with host (off by default)
	MountConf          string // optional mount configuration file
	SeccompConf        string // optional seccomp policy file
	CgroupPrefix       string
	ContainerCredStart int // start uid&gid for containers when running as root
	Logger             *zap.Logger
}

type envBuilder struct {
	builder *container.Builder
	cgPool  CgroupPool
	workDir string
	seccomp []syscall.SockFilter
}

var _ sandbox.EnvBuilder = &envBuilder{}

// NewBuilder prepares a builder for container environments. It detects
// cgroup support once; without it memory limits fall back to rlimits.
func NewBuilder(c Config) (sandbox.EnvBuilder, error) {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	mountBuilder, mc, err := prepareMounts(c)
	if err != nil {
		return nil, err
	}
	m := mountBuilder.FilterNotExist().Mounts
	logger.Info("created container mounts", zap.Int("count", len(m)))

	filter, err := readSeccompConf(c.SeccompConf)
	if err != nil {
		return nil, fmt.Errorf("failed to load seccomp config: %w", err)
	}
	if filter != nil {
		logger.Info("loaded seccomp filter", zap.String("file", c.SeccompConf))
	}

	unshareFlags := uintptr(forkexec.UnshareFlags)
	if c.NetShare {
		unshareFlags ^= syscall.CLONE_NEWNET
	}
	major, minor := kernelVersion()
	if major < 4 || (major == 4 && minor < 6) {
		unshareFlags ^= unix.CLONE_NEWCGROUP
		logger.Info("old kernel, not unsharing cgroup namespace",
			zap.Int("major", major), zap.Int("minor", minor))
	}

	// setuid containers only when running with root privilege
	var credGen container.CredGenerator
	if os.Getuid() == 0 && c.ContainerCredStart > 0 {
		credGen = newCredGen(uint32(c.ContainerCredStart))
	}

	hostName := containerName
	domainName := containerName
	workDir := defaultWorkDir
	cUID := defaultContainerCred
	cGID := defaultContainerCred
	symbolicLinks := defaultSymLinks
	maskPaths := defaultMaskPaths
	if mc != nil {
		if mc.HostName != "" {
			hostName = mc.HostName
		}
		if mc.DomainName != "" {
			domainName = mc.DomainName
		}
		if mc.WorkDir != "" {
			workDir = mc.WorkDir
		}
		if mc.UID != 0 {
			cUID = mc.UID
		}
		if mc.GID != 0 {
			cGID = mc.GID
		}
		if len(mc.SymLinks) > 0 {
			symbolicLinks = make([]container.SymbolicLink, 0, len(mc.SymLinks))
			for _, l := range mc.SymLinks {
				symbolicLinks = append(symbolicLinks, container.SymbolicLink{LinkPath: l.LinkPath, Target: l.Target})
			}
		}
		if len(mc.MaskPaths) > 0 {
			maskPaths = mc.MaskPaths
		}
	}

	b := &container.Builder{
		TmpRoot:       "code-validator",
		Mounts:        m,
		SymbolicLinks: symbolicLinks,
		MaskPaths:     maskPaths,
		CredGenerator: credGen,
		Stderr:        os.Stderr,
		CloneFlags:    unshareFlags,
		HostName:      hostName,
		DomainName:    domainName,
		WorkDir:       workDir,
		ContainerUID:  cUID,
		ContainerGID:  cGID,
	}

	cgb, err := newCgroup(c.CgroupPrefix, logger)
	if err != nil {
		return nil, err
	}
	var cgPool CgroupPool
	if cgb != nil {
		cgPool = NewCgroupPool(cgb)
	}

	return &envBuilder{
		builder: b,
		cgPool:  cgPool,
		workDir: workDir,
		seccomp: filter,
	}, nil
}

// Build creates one container environment.
func (b *envBuilder) Build() (sandbox.PoolEnvironment, error) {
	m, err := b.builder.Build()
	if err != nil {
		return nil, err
	}
	wd, err := m.Open([]container.OpenCmd{{
		Path: b.workDir,
		Flag: syscall.O_CLOEXEC | syscall.O_DIRECTORY,
		Perm: 0777,
	}})
	if err != nil {
		m.Destroy()
		return nil, fmt.Errorf("container: failed to open work directory: %w", err)
	}
	if wd[0].Err != nil {
		m.Destroy()
		return nil, fmt.Errorf("container: failed to open work directory: %w", wd[0].Err)
	}
	return &environ{
		Environment: m,
		cgPool:      b.cgPool,
		wd:          wd[0].File,
		workDir:     b.workDir,
		seccomp:     b.seccomp,
	}, nil
}

// newCgroup creates the parent cgroup for container runs. Running without
// root and without delegated cgroups falls back to rlimit / rusage mode.
func newCgroup(prefix string, logger *zap.Logger) (cgroup.Cgroup, error) {
	if prefix == "" {
		prefix = containerName
	}
	ct, err := cgroup.GetAvailableController()
	if err != nil {
		logger.Error("failed to get available cgroup controllers", zap.Error(err))
		return nil, err
	}
	if cgroup.DetectedCgroupType == cgroup.TypeV2 {
		// take over the current delegated subtree when nested in a container
		scope, err := cgroup.GetCurrentCgroupPrefix()
		if err == nil {
			prefix = scope
			if c, err := cgroup.GetAvailableControllerWithPrefix(prefix); err == nil {
				ct = c
			}
		}
	}

	cgb, err := cgroup.New(prefix, ct)
	if err != nil {
		if os.Getuid() == 0 {
			logger.Error("failed to create cgroup", zap.String("prefix", prefix), zap.Error(err))
			return nil, err
		}
		logger.Warn("no cgroup permission, falling back to rlimit / rusage mode", zap.Error(err))
		return nil, nil
	}
	// move the daemon itself out of the subtree so limits apply to runs only
	if _, err = cgb.Nest("daemon"); err != nil {
		if os.Getuid() != 0 {
			logger.Warn("failed to nest daemon cgroup, falling back to rlimit / rusage mode", zap.Error(err))
			cgb.Destroy()
			return nil, nil
		}
	}
	cg, err := cgb.New("runs")
	if err != nil {
		logger.Warn("failed to create runs cgroup, falling back to rlimit / rusage mode", zap.Error(err))
		return nil, nil
	}
	if ct != nil && !ct.Memory {
		logger.Warn("memory cgroup controller not available, memory limit uses rlimit only")
	}
	if ct != nil && !ct.Pids {
		logger.Warn("pids cgroup controller not available, proc limit has no effect")
	}
	return cg, nil
}

type credGen struct {
	cur uint32
}

func newCredGen(start uint32) *credGen {
	return &credGen{cur: start}
}

func (c *credGen) Get() syscall.Credential {
	n := atomic.AddUint32(&c.cur, 1)
	return syscall.Credential{
		Uid: n,
		Gid: n,
	}
}

func kernelVersion() (major int, minor int) {
	var uname syscall.Utsname
	if err := syscall.Uname(&uname); err != nil {
		return
	}
	rl := uname.Release
	var values [2]int
	vi := 0
	value := 0
	for _, c := range rl {
		if '0' <= c && c <= '9' {
			value = (value * 10) + int(c-'0')
		} else {
			values[vi] = value
			vi++
			if vi >= len(values) {
				break
			}
			value = 0
		}
	}
	switch vi {
	case 0:
		return 0, 0
	case 1:
		return values[0], 0
	}
	return values[0], values[1]
}
