// Package language holds the registry of language profiles: how to compile
// and run a submission for each supported language. Profiles are loaded from
// a YAML file so adding a toolchain does not require a rebuild.
package language

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/google/shlex"
)

// Profile defines how to build and run one language.
type Profile struct {
	Name       string `yaml:"name"`
	SourceFile string `yaml:"sourceFile"`
	// CompileCmd is empty for directly runnable languages
	CompileCmd string   `yaml:"compileCmd,omitempty"`
	RunCmd     string   `yaml:"runCmd"`
	Env        []string `yaml:"env,omitempty"`

	// default limits, overridable per test case
	TimeLimit    time.Duration `yaml:"timeLimit"`
	CompileTime  time.Duration `yaml:"compileTime"`
	MemoryLimit  uint64        `yaml:"memoryLimit"` // bytes
	ProcLimit    uint64        `yaml:"procLimit"`
	OutputLimit  uint64        `yaml:"outputLimit"` // bytes
}

var defaultEnv = []string{"PATH=/usr/local/bin:/usr/bin:/bin", "HOME=/w"}

const (
	defaultTimeLimit   = 2 * time.Second
	defaultCompileTime = 10 * time.Second
	defaultMemoryLimit = 256 << 20
	defaultProcLimit   = 16
	defaultOutputLimit = 4 << 20
)

// Compiled reports whether the language needs a compile step before tests.
func (p Profile) Compiled() bool {
	return p.CompileCmd != ""
}

// CompileArgs returns the parsed compile command.
func (p Profile) CompileArgs() ([]string, error) {
	return shlex.Split(p.CompileCmd)
}

// RunArgs returns the parsed run command.
func (p Profile) RunArgs() ([]string, error) {
	return shlex.Split(p.RunCmd)
}

// Registry maps language names to profiles.
type Registry struct {
	profiles map[string]Profile
}

// Get looks up the profile for a language name (case-insensitive).
func (r *Registry) Get(name string) (Profile, bool) {
	p, ok := r.profiles[strings.ToLower(name)]
	return p, ok
}

// Names returns the registered language names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for n := range r.profiles {
		names = append(names, n)
	}
	return names
}

// Load reads the registry from a YAML file. A missing file yields the
// built-in defaults.
func Load(path string) (*Registry, error) {
	d, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return Parse(d)
}

// Parse builds a registry from YAML content.
func Parse(d []byte) (*Registry, error) {
	var raw []Profile
	if err := yaml.Unmarshal(d, &raw); err != nil {
		return nil, fmt.Errorf("language config: %w", err)
	}
	r := &Registry{profiles: make(map[string]Profile, len(raw))}
	for _, p := range raw {
		if p.Name == "" {
			return nil, fmt.Errorf("language config: profile without name")
		}
		if p.RunCmd == "" {
			return nil, fmt.Errorf("language config: %s: runCmd required", p.Name)
		}
		if p.SourceFile == "" {
			return nil, fmt.Errorf("language config: %s: sourceFile required", p.Name)
		}
		r.profiles[strings.ToLower(p.Name)] = withDefaults(p)
	}
	if len(r.profiles) == 0 {
		return nil, fmt.Errorf("language config: no profiles defined")
	}
	return r, nil
}

// Default returns the built-in registry used when no config file exists.
func Default() *Registry {
	builtin := []Profile{
		{
			Name:       "python",
			SourceFile: "main.py",
			RunCmd:     "/usr/bin/python3 main.py",
		},
		{
			Name:       "cpp",
			SourceFile: "main.cpp",
			CompileCmd: "/usr/bin/g++ -O2 -o main main.cpp",
			RunCmd:     "./main",
		},
		{
			Name:       "c",
			SourceFile: "main.c",
			CompileCmd: "/usr/bin/gcc -O2 -o main main.c",
			RunCmd:     "./main",
		},
		{
			Name:       "go",
			SourceFile: "main.go",
			CompileCmd: "/usr/bin/go build -o main main.go",
			RunCmd:     "./main",
			Env:        []string{"GOCACHE=/tmp", "GOPATH=/tmp/go"},
		},
	}
	r := &Registry{profiles: make(map[string]Profile, len(builtin))}
	for _, p := range builtin {
		r.profiles[p.Name] = withDefaults(p)
	}
	return r
}

func withDefaults(p Profile) Profile {
	if p.TimeLimit <= 0 {
		p.TimeLimit = defaultTimeLimit
	}
	if p.CompileTime <= 0 {
		p.CompileTime = defaultCompileTime
	}
	if p.MemoryLimit == 0 {
		p.MemoryLimit = defaultMemoryLimit
	}
	if p.ProcLimit == 0 {
		p.ProcLimit = defaultProcLimit
	}
	if p.OutputLimit == 0 {
		p.OutputLimit = defaultOutputLimit
	}
	p.Env = append(append([]string{}, defaultEnv...), p.Env...)
	return p
}
