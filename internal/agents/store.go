// Package agents loads agent profiles from a YAML file and reloads them on change.
package agents

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/context-assistant/three.js/internal/logging"
	"github.com/context-assistant/three.js/internal/types"
)

// File is the on-disk layout of agents.yaml.
type File struct {
	Default string               `yaml:"default"`
	Agents  []types.AgentProfile `yaml:"agents"`
}

// DefaultAgents seeds a new agents file.
func DefaultAgents() File {
	return File{
		Default: "threejs-helper",
		Agents: []types.AgentProfile{
			{
				ID:     "threejs-helper",
				Name:   "Three Helper",
				Model:  "llama3.1",
				Avatar: "🧊",
				Sampling: types.Sampling{
					Temperature: 0.7,
					TopK:        40,
					TopP:        0.9,
					NumCtx:      8192,
				},
				Personality: map[string]int{"curious": 60, "verbose": 40, "formal": 50},
			},
		},
	}
}

// Store holds the agent profiles. It is safe for concurrent use.
type Store struct {
	path string

	mu        sync.RWMutex
	agents    map[string]types.AgentProfile
	defaultID string
	override  string
}

// Open loads path. A missing file yields an empty store; call Seed to write defaults.
func Open(path string) (*Store, error) {
	s := &Store{path: path, agents: make(map[string]types.AgentProfile)}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewStatic builds an in-memory store, used when no agents file is configured.
func NewStatic(f File) *Store {
	s := &Store{agents: make(map[string]types.AgentProfile)}
	s.apply(f)
	return s
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Seed writes DefaultAgents to the backing file if it does not exist yet.
func (s *Store) Seed() error {
	if s.path == "" {
		return nil
	}
	if _, err := os.Stat(s.path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create agents directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultAgents())
	if err != nil {
		return fmt.Errorf("failed to marshal agents: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write agents: %w", err)
	}
	logging.Agents("seeded %s", s.path)
	return s.Reload()
}

// Reload re-reads the backing file. On a parse error the previous profiles are kept.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.apply(File{})
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read agents: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse agents %s: %w", s.path, err)
	}
	s.apply(f)
	logging.Agents("loaded %d agents (default %q)", len(f.Agents), f.Default)
	return nil
}

func (s *Store) apply(f File) {
	agents := make(map[string]types.AgentProfile, len(f.Agents))
	for _, a := range f.Agents {
		if a.ID == "" {
			logging.AgentsWarn("skipping agent without id (name %q)", a.Name)
			continue
		}
		agents[a.ID] = a
	}

	s.mu.Lock()
	s.agents = agents
	s.defaultID = f.Default
	s.mu.Unlock()
}

// SetDefault overrides the file's default agent (empty clears the override).
func (s *Store) SetDefault(id string) {
	s.mu.Lock()
	s.override = id
	s.mu.Unlock()
}

// Get returns the agent with id.
func (s *Store) Get(id string) (types.AgentProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	return a, ok
}

// Default returns the default agent, if one is configured and exists.
func (s *Store) Default() (types.AgentProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id := s.defaultID
	if s.override != "" {
		id = s.override
	}
	if id == "" {
		return types.AgentProfile{}, false
	}
	a, ok := s.agents[id]
	return a, ok
}

// List returns all agents sorted by ID.
func (s *Store) List() []types.AgentProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.AgentProfile, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
