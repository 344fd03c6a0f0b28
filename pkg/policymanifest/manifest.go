// Package policymanifest loads policy tier definitions from YAML files
// on disk, so a policy's parameters can be authored and changed
// without a code deployment.
//
// A loader over one directory, keyed by manifest name, with an
// OnReload callback invoked on each LoadFile. Files are read only when
// LoadAll or LoadFile is called; the directory is not watched for
// changes. Uses gopkg.in/yaml.v3.
package policymanifest

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync"

	"github.com/delegacy/core/pkg/types"
	"gopkg.in/yaml.v3"
)

// TierManifest is one tier's parameters as authored in YAML.
type TierManifest struct {
	MinAuthority   string   `yaml:"min_authority"`
	SpendCap       string   `yaml:"spend_cap"`
	CanSubDelegate bool     `yaml:"can_sub_delegate"`
	Whitelist      []string `yaml:"whitelist"`
}

// PolicyManifest is one policy's parameters as authored in YAML: an
// epoch duration and an ordered list of tiers.
type PolicyManifest struct {
	Name          string         `yaml:"name"`
	EpochDuration uint64         `yaml:"epoch_duration"`
	Tiers         []TierManifest `yaml:"tiers"`
}

// CreatePolicyArgs is the parsed, typed form of a PolicyManifest,
// shaped to match policy.Engine.CreatePolicy's parameter lists
// exactly. It does not itself validate ascending tiers or array
// lengths: that validation belongs to CreatePolicy, so a manifest can
// never bypass the content-addressing and ordering invariants by
// going through this loader instead of the engine directly.
type CreatePolicyArgs struct {
	EpochDuration  uint64
	MinAuthority   []*big.Int
	SpendCap       []*big.Int
	CanSubDelegate []bool
	Whitelist      [][]types.Address
}

// Loader loads and holds policy manifests from a directory of YAML
// files.
type Loader struct {
	mu        sync.RWMutex
	manifests map[string]*PolicyManifest
	dir       string
	onReload  func(name string, m *PolicyManifest)
}

// NewLoader creates a Loader whose LoadAll reads the .yaml/.yml files
// in dir.
func NewLoader(dir string) *Loader {
	return &Loader{manifests: make(map[string]*PolicyManifest), dir: dir}
}

// OnReload registers a callback invoked whenever a manifest is loaded
// or reloaded.
func (l *Loader) OnReload(fn func(name string, m *PolicyManifest)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onReload = fn
}

// LoadAll loads every .yaml/.yml file in the configured directory.
func (l *Loader) LoadAll() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("policymanifest: read dir %s: %w", l.dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if err := l.LoadFile(filepath.Join(l.dir, entry.Name())); err != nil {
			return fmt.Errorf("policymanifest: load %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// LoadFile loads a single policy manifest from a YAML file.
func (l *Loader) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	var m PolicyManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}
	if m.Name == "" {
		m.Name = filepath.Base(path)
	}

	l.mu.Lock()
	l.manifests[m.Name] = &m
	callback := l.onReload
	l.mu.Unlock()

	if callback != nil {
		callback(m.Name, &m)
	}
	return nil
}

// Get returns a loaded manifest by name.
func (l *Loader) Get(name string) (*PolicyManifest, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.manifests[name]
	return m, ok
}

// All returns every loaded manifest.
func (l *Loader) All() []*PolicyManifest {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*PolicyManifest, 0, len(l.manifests))
	for _, m := range l.manifests {
		out = append(out, m)
	}
	return out
}

// Parse converts a PolicyManifest into CreatePolicyArgs, parsing each
// decimal amount and address. It returns an error for malformed
// numbers or addresses, but performs none of CreatePolicy's semantic
// validation (ascending minimums, array lengths, tier count bounds).
func Parse(m *PolicyManifest) (CreatePolicyArgs, error) {
	args := CreatePolicyArgs{EpochDuration: m.EpochDuration}
	for i, t := range m.Tiers {
		minAuth, ok := new(big.Int).SetString(t.MinAuthority, 10)
		if !ok {
			return CreatePolicyArgs{}, fmt.Errorf("policymanifest: tier %d: invalid min_authority %q", i, t.MinAuthority)
		}
		spendCap, ok := new(big.Int).SetString(t.SpendCap, 10)
		if !ok {
			return CreatePolicyArgs{}, fmt.Errorf("policymanifest: tier %d: invalid spend_cap %q", i, t.SpendCap)
		}
		whitelist := make([]types.Address, 0, len(t.Whitelist))
		for _, addrStr := range t.Whitelist {
			addr, err := types.ParseAddress(addrStr)
			if err != nil {
				return CreatePolicyArgs{}, fmt.Errorf("policymanifest: tier %d: %w", i, err)
			}
			whitelist = append(whitelist, addr)
		}

		args.MinAuthority = append(args.MinAuthority, minAuth)
		args.SpendCap = append(args.SpendCap, spendCap)
		args.CanSubDelegate = append(args.CanSubDelegate, t.CanSubDelegate)
		args.Whitelist = append(args.Whitelist, whitelist)
	}
	return args, nil
}
