package linuxcontainer

import (
	"fmt"
	"os"
	"path"

	"github.com/criyle/go-sandbox/container"
	"github.com/criyle/go-sandbox/pkg/mount"
	"github.com/goccy/go-yaml"
)

// Mount defines a single mount point. Type is bind or tmpfs.
type Mount struct {
	Type     string `yaml:"type"`
	Source   string `yaml:"source"`
	Target   string `yaml:"target"`
	Readonly bool   `yaml:"readonly"`
	Data     string `yaml:"data"`
}

// SymLink defines a symbolic link created inside the container.
type SymLink struct {
	LinkPath string `yaml:"linkPath"`
	Target   string `yaml:"target"`
}

// Mounts defines the container filesystem view.
type Mounts struct {
	Mount      []Mount   `yaml:"mount"`
	SymLinks   []SymLink `yaml:"symLink"`
	MaskPaths  []string  `yaml:"maskPath"`
	WorkDir    string    `yaml:"workDir"`
	HostName   string    `yaml:"hostName"`
	DomainName string    `yaml:"domainName"`
	UID        int       `yaml:"uid"`
	GID        int       `yaml:"gid"`
	Proc       bool      `yaml:"proc"`
}

var defaultSymLinks = []container.SymbolicLink{
	{LinkPath: "/dev/fd", Target: "/proc/self/fd"},
	{LinkPath: "/dev/stdin", Target: "/proc/self/fd/0"},
	{LinkPath: "/dev/stdout", Target: "/proc/self/fd/1"},
	{LinkPath: "/dev/stderr", Target: "/proc/self/fd/2"},
}

var defaultMaskPaths = []string{
	"/sys/firmware",
	"/proc/acpi",
	"/proc/asound",
	"/proc/kcore",
	"/proc/keys",
	"/proc/latency_stats",
	"/proc/scsi",
	"/proc/timer_list",
	"/proc/sched_debug",
}

// prepareMounts loads the mount config file or falls back to the default
// read-only toolchain view with tmpfs scratch dirs.
func prepareMounts(c Config) (*mount.Builder, *Mounts, error) {
	mc, err := readMountConfig(c.MountConf)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, nil, err
		}
		return getDefaultMount(c.TmpFsParam), nil, nil
	}
	b, err := parseMountConfig(mc)
	if err != nil {
		return nil, nil, err
	}
	return b, mc, nil
}

func readMountConfig(p string) (*Mounts, error) {
	var m Mounts
	d, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(d, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func parseMountConfig(m *Mounts) (*mount.Builder, error) {
	b := mount.NewBuilder()
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	for _, mt := range m.Mount {
		target := mt.Target
		if path.IsAbs(target) {
			target = path.Clean(target[1:])
		}
		source := mt.Source
		if !path.IsAbs(source) {
			source = path.Join(wd, source)
		}
		switch mt.Type {
		case "bind":
			b.WithBind(source, target, mt.Readonly)
		case "tmpfs":
			b.WithTmpfs(target, mt.Data)
		default:
			return nil, fmt.Errorf("invalid mount type: %s", mt.Type)
		}
	}
	if m.Proc {
		b.WithProc()
	}
	return b, nil
}

func getDefaultMount(tmpFsConf string) *mount.Builder {
	return mount.NewBuilder().
		// toolchains and libraries, read-only
		WithBind("/bin", "bin", true).
		WithBind("/lib", "lib", true).
		WithBind("/lib64", "lib64", true).
		WithBind("/usr", "usr", true).
		WithBind("/etc/alternatives", "etc/alternatives", true).
		// runtimes resolve themselves through /proc/self/exe
		WithProc().
		WithBind("/dev/null", "dev/null", false).
		WithBind("/dev/urandom", "dev/urandom", false).
		WithBind("/dev/zero", "dev/zero", false).
		// scratch: the only writable places
		WithTmpfs("w", tmpFsConf).
		WithTmpfs("tmp", tmpFsConf)
}
