package config

import (
	"os"
	"runtime"
	"time"

	"github.com/koding/multiconfig"
)

// Config defines validation server configuration
type Config struct {
	// container
	TmpFsParam         string `flagUsage:"tmpfs mount data (only for default mount with no mount.yaml)" default:"size=128m,nr_inodes=4k"`
	NetShare           bool   `flagUsage:"share net namespace with host"`
	MountConf          string `flagUsage:"specifies mount configuration file" default:"mount.yaml"`
	SeccompConf        string `flagUsage:"specifies seccomp filter" default:"seccomp.yaml"`
	CgroupPrefix       string `flagUsage:"control cgroup prefix" default:"code_validator"`
	ContainerCredStart int    `flagUsage:"control the start uid&gid for container (0 uses unprivileged root)" default:"0"`
	PreFork            int    `flagUsage:"control # of the prefork containers" default:"1"`

	// validation
	LangConf                 string        `flagUsage:"specifies language profile file" default:"languages.yaml"`
	Parallelism              int           `flagUsage:"control the # of concurrent validations (default equal to number of cpu)"`
	QueueDepth               int           `flagUsage:"control the waiting queue ceiling" default:"512"`
	TimeLimitCheckerInterval time.Duration `flagUsage:"specifies time limit checker interval" default:"100ms"`

	// server config
	HTTPAddr      string `flagUsage:"specifies the http binding address" default:":5070"`
	MonitorAddr   string `flagUsage:"specifies the metrics binding address" default:":5071"`
	AuthToken     string `flagUsage:"bearer token auth for REST"`
	EnableDebug   bool   `flagUsage:"enable debug endpoint"`
	EnableMetrics bool   `flagUsage:"enable prometheus metrics endpoint"`

	// logger config
	Release        bool `flagUsage:"release level of logs"`
	EnableDebugLog bool `flagUsage:"enable debug log level"`
	Silent         bool `flagUsage:"do not print logs"`

	// show version and exit
	Version bool `flagUsage:"show version and exit"`
}

// Load loads config from flag & environment variables
func (c *Config) Load() error {
	cl := multiconfig.MultiLoader(
		&multiconfig.TagLoader{},
		&multiconfig.EnvironmentLoader{
			Prefix:    "CV",
			CamelCase: true,
		},
		&multiconfig.FlagLoader{
			CamelCase: true,
			EnvPrefix: "CV",
		},
	)
	if os.Getpid() == 1 {
		c.Release = true
	}
	if err := cl.Load(c); err != nil {
		return err
	}
	if c.Parallelism <= 0 {
		c.Parallelism = runtime.NumCPU()
	}
	return nil
}
