// Package phase holds the named, immutable tuning snapshots used by both
// ingestion and retrieval.
package phase

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/futig/zoning-qa/internal/entity"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Store persists published phases and the active pointer
type Store interface {
	LoadPhases(ctx context.Context) ([]entity.RAGConfig, string, error)
	// SavePhase fails with entity.ErrPhaseExists when the name is taken
	SavePhase(ctx context.Context, cfg entity.RAGConfig) error
	SetActive(ctx context.Context, name string) error
	// RemovePhase fails with entity.ErrPhaseNotFound for an unknown name
	RemovePhase(ctx context.Context, name string) error
}

// File is the on-disk layout of the phases file
type File struct {
	Active string             `yaml:"active"`
	Phases []entity.RAGConfig `yaml:"phases"`
}

// Manager is safe for concurrent use. Published configs are never edited;
// callers always get copies. With a Store attached every change is written
// through before it becomes visible.
type Manager struct {
	mu     sync.RWMutex
	phases map[string]entity.RAGConfig
	active string
	store  Store
}

// NewManager validates every phase and the active name
func NewManager(configs []entity.RAGConfig, active string) (*Manager, error) {
	m := &Manager{phases: make(map[string]entity.RAGConfig, len(configs))}

	for _, cfg := range configs {
		if err := m.publish(cfg); err != nil {
			return nil, err
		}
	}

	if _, ok := m.phases[active]; !ok {
		return nil, fmt.Errorf("%w: active phase %q", entity.ErrPhaseNotFound, active)
	}
	m.active = active

	return m, nil
}

// Load reads a YAML phases file
func Load(path string) (*Manager, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read phases file: %v", entity.ErrConfiguration, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parse phases file %s: %v", entity.ErrConfiguration, path, err)
	}

	if len(f.Phases) == 0 {
		return nil, fmt.Errorf("%w: phases file contains no phases: %s", entity.ErrConfiguration, path)
	}

	return NewManager(f.Phases, f.Active)
}

// GetConfig returns the named phase, or the active one when name is empty
func (m *Manager) GetConfig(name string) (entity.RAGConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if name == "" {
		name = m.active
	}

	cfg, ok := m.phases[name]
	if !ok {
		return entity.RAGConfig{}, fmt.Errorf("%w: %q", entity.ErrPhaseNotFound, name)
	}
	return cfg.Clone(), nil
}

func (m *Manager) Active() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// Phases returns the sorted phase names
func (m *Manager) Phases() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.names()
}

// Activate switches the active phase. Stored chunks are not touched; chunks
// built under another phase simply are not candidates for this one.
func (m *Manager) Activate(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.phases[name]; !ok {
		return fmt.Errorf("%w: %q", entity.ErrPhaseNotFound, name)
	}
	if m.store != nil {
		if err := m.store.SetActive(ctx, name); err != nil {
			return fmt.Errorf("persist active phase: %w", err)
		}
	}
	m.active = name
	return nil
}

// Publish adds a new phase. Reusing a name is rejected.
func (m *Manager) Publish(ctx context.Context, cfg entity.RAGConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(cfg); err != nil {
		return err
	}
	if m.store != nil {
		if err := m.store.SavePhase(ctx, cfg); err != nil {
			return fmt.Errorf("persist phase %q: %w", cfg.Phase, err)
		}
	}
	m.phases[cfg.Phase] = cfg.Clone()
	return nil
}

func (m *Manager) publish(cfg entity.RAGConfig) error {
	if err := m.check(cfg); err != nil {
		return err
	}
	m.phases[cfg.Phase] = cfg.Clone()
	return nil
}

func (m *Manager) check(cfg entity.RAGConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, ok := m.phases[cfg.Phase]; ok {
		return fmt.Errorf("%w: %q", entity.ErrPhaseExists, cfg.Phase)
	}
	return nil
}

// Retire removes a phase. The active phase cannot be retired.
func (m *Manager) Retire(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.phases[name]; !ok {
		return fmt.Errorf("%w: %q", entity.ErrPhaseNotFound, name)
	}
	if name == m.active {
		return fmt.Errorf("%w: %q", entity.ErrPhaseActive, name)
	}
	if m.store != nil {
		if err := m.store.RemovePhase(ctx, name); err != nil {
			return fmt.Errorf("remove phase %q: %w", name, err)
		}
	}
	delete(m.phases, name)
	return nil
}

// Attach merges the phases held by store with the loaded ones and writes
// every later change through to it. A loaded phase whose stored version
// differs is a configuration error, so a name never changes meaning. A
// stored active pointer wins over the loaded one.
func (m *Manager) Attach(ctx context.Context, store Store) error {
	stored, active, err := store.LoadPhases(ctx)
	if err != nil {
		return fmt.Errorf("load stored phases: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool, len(stored))
	for _, cfg := range stored {
		seen[cfg.Phase] = true
		if local, ok := m.phases[cfg.Phase]; ok {
			if !local.Equal(cfg) {
				return fmt.Errorf("%w: phase %q differs from its published version", entity.ErrConfiguration, cfg.Phase)
			}
			continue
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("stored phase %q: %w", cfg.Phase, err)
		}
		m.phases[cfg.Phase] = cfg.Clone()
	}

	for _, name := range m.names() {
		if seen[name] {
			continue
		}
		if err := store.SavePhase(ctx, m.phases[name]); err != nil {
			return fmt.Errorf("persist phase %q: %w", name, err)
		}
	}

	if _, ok := m.phases[active]; ok {
		m.active = active
	} else if err := store.SetActive(ctx, m.active); err != nil {
		return fmt.Errorf("persist active phase: %w", err)
	}

	m.store = store
	return nil
}

// Refresh reloads phases and the active pointer from the attached store,
// picking up changes made by other instances
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.RLock()
	store := m.store
	m.mu.RUnlock()
	if store == nil {
		return nil
	}

	stored, active, err := store.LoadPhases(ctx)
	if err != nil {
		return fmt.Errorf("load stored phases: %w", err)
	}

	phases := make(map[string]entity.RAGConfig, len(stored))
	for _, cfg := range stored {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("stored phase %q: %w", cfg.Phase, err)
		}
		phases[cfg.Phase] = cfg.Clone()
	}
	if _, ok := phases[active]; !ok {
		return fmt.Errorf("%w: stored active phase %q", entity.ErrPhaseNotFound, active)
	}

	m.mu.Lock()
	m.phases = phases
	m.active = active
	m.mu.Unlock()
	return nil
}

// Watch calls Refresh every interval until ctx is done
func (m *Manager) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Refresh(ctx); err != nil && ctx.Err() == nil {
				ctxzap.Warn(ctx, "failed to refresh phases", zap.Error(err))
			}
		}
	}
}

// names returns the sorted phase names. Callers hold the lock.
func (m *Manager) names() []string {
	names := make([]string, 0, len(m.phases))
	for name := range m.phases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
