// Package manifest handles vine.toml project configuration.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/vine/pkg/bytecode"
	"github.com/chazu/vine/vm"
)

// FileName is the name of the manifest file.
const FileName = "vine.toml"

// ErrInvalid is returned for manifests whose values are out of range.
var ErrInvalid = errors.New("invalid manifest")

// Manifest represents a vine.toml project configuration.
type Manifest struct {
	Project Project    `toml:"project"`
	VM      VMConfig   `toml:"vm"`
	Host    HostConfig `toml:"host"`
	Log     LogConfig  `toml:"log"`

	// Dir is the directory containing the vine.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name  string `toml:"name"`
	Entry string `toml:"entry"`
}

// VMConfig configures the machine.
type VMConfig struct {
	StackSize    int   `toml:"stack-size"`
	MaxCallDepth int   `toml:"max-call-depth"`
	HeapLimit    int   `toml:"heap-limit"`
	Derived      *bool `toml:"derived"`
	Trace        bool  `toml:"trace"`
	Profile      bool  `toml:"profile"`
}

// HostConfig configures the host a program runs against.
type HostConfig struct {
	Features []string `toml:"features"`
	Args     []string `toml:"args"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the manifest used when a project has no vine.toml.
func Default(dir string) *Manifest {
	m := &Manifest{Dir: dir}
	m.applyDefaults()
	return m
}

// Load parses a vine.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.applyDefaults()
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

func (m *Manifest) applyDefaults() {
	if m.VM.StackSize == 0 {
		m.VM.StackSize = vm.DefaultStackSize
	}
	if m.VM.MaxCallDepth == 0 {
		m.VM.MaxCallDepth = vm.DefaultMaxCallDepth
	}
	if m.VM.Derived == nil {
		derived := true
		m.VM.Derived = &derived
	}
	if m.Host.Features == nil {
		m.Host.Features = bytecode.AllFeatures.Names()
	}
}

func (m *Manifest) validate() error {
	switch {
	case m.VM.StackSize < 0:
		return fmt.Errorf("%w: vm.stack-size %d", ErrInvalid, m.VM.StackSize)
	case m.VM.MaxCallDepth < 0:
		return fmt.Errorf("%w: vm.max-call-depth %d", ErrInvalid, m.VM.MaxCallDepth)
	case m.VM.HeapLimit < 0:
		return fmt.Errorf("%w: vm.heap-limit %d", ErrInvalid, m.VM.HeapLimit)
	}
	if _, err := m.HostFeatures(); err != nil {
		return fmt.Errorf("%w: host.features: %w", ErrInvalid, err)
	}
	return nil
}

// FindAndLoad walks up from startDir to find a vine.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// MachineConfig returns the machine configuration the manifest describes.
func (m *Manifest) MachineConfig() vm.Config {
	return vm.Config{
		StackSize:    m.VM.StackSize,
		MaxCallDepth: m.VM.MaxCallDepth,
		HeapLimit:    m.VM.HeapLimit,
		Derived:      m.VM.Derived == nil || *m.VM.Derived,
		Trace:        m.VM.Trace,
		Profile:      m.VM.Profile,
	}
}

// HostFeatures returns the feature set the host should advertise.
func (m *Manifest) HostFeatures() (bytecode.FeatureSet, error) {
	return bytecode.ParseFeatureSet(m.Host.Features)
}

// EntryPath returns the absolute path of the entry program, or "" when
// none is configured.
func (m *Manifest) EntryPath() string {
	if m.Project.Entry == "" {
		return ""
	}
	return filepath.Join(m.Dir, m.Project.Entry)
}

// LogPath returns the absolute path of the log file, or "" for stderr.
func (m *Manifest) LogPath() string {
	if m.Log.File == "" || filepath.IsAbs(m.Log.File) {
		return m.Log.File
	}
	return filepath.Join(m.Dir, m.Log.File)
}
