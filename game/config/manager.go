package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/wricardo/mcp-training/gridduel/game/gameerr"
)

var (
	ErrPresetNotFound = gameerr.ErrPresetNotFound
	ErrInvalidPreset  = errors.New("invalid preset")
)

// DefaultPresetID is loaded as the default when present.
const DefaultPresetID = "classic"

// Manager handles board preset loading and caching
type Manager struct {
	configDir     string
	defaultPreset *Preset
	presets       map[string]*Preset
	mu            sync.RWMutex
}

// NewManager creates a new preset manager
func NewManager(configDir string) (*Manager, error) {
	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("config directory does not exist: %s", configDir)
	}

	m := &Manager{
		configDir: configDir,
		presets:   make(map[string]*Preset),
	}

	if err := m.loadDefaultPreset(); err != nil {
		return nil, fmt.Errorf("failed to load default preset: %w", err)
	}

	return m, nil
}

// LoadPreset loads a preset by id (file name without extension)
func (m *Manager) LoadPreset(id string) (*Preset, error) {
	id = strings.TrimSuffix(strings.TrimSpace(id), ".json")
	if id == "" || strings.ContainsAny(id, `/\`) {
		return nil, gameerr.Newf(gameerr.CodePresetNotFound, "preset %q not found", id)
	}

	m.mu.RLock()
	if preset, exists := m.presets[id]; exists {
		m.mu.RUnlock()
		return preset, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if preset, exists := m.presets[id]; exists {
		return preset, nil
	}

	preset, err := m.readPreset(id)
	if err != nil {
		return nil, err
	}
	m.presets[id] = preset
	return preset, nil
}

func (m *Manager) readPreset(id string) (*Preset, error) {
	data, err := os.ReadFile(filepath.Join(m.configDir, id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, gameerr.Newf(gameerr.CodePresetNotFound, "preset %q not found", id)
		}
		return nil, fmt.Errorf("failed to read preset file: %w", err)
	}

	var preset Preset
	if err := json.Unmarshal(data, &preset); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPreset, id, err)
	}
	preset.ID = id

	if err := ValidatePreset(&preset); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPreset, id, err)
	}
	return &preset, nil
}

// ListPresets returns every valid preset in the config directory, sorted by
// board area then id. Invalid files are skipped.
func (m *Manager) ListPresets() ([]*PresetInfo, error) {
	entries, err := os.ReadDir(m.configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}

	var presets []*PresetInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		preset, err := m.LoadPreset(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		presets = append(presets, preset.Info())
	}

	sort.Slice(presets, func(i, j int) bool {
		ai, aj := presets[i].Width*presets[i].Height, presets[j].Width*presets[j].Height
		if ai != aj {
			return ai < aj
		}
		return presets[i].ID < presets[j].ID
	})
	return presets, nil
}

// GetDefault returns the default preset
func (m *Manager) GetDefault() *Preset {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultPreset
}

// SetDefault sets the default preset by id
func (m *Manager) SetDefault(id string) error {
	preset, err := m.LoadPreset(id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultPreset = preset
	return nil
}

// RefreshCache drops cached presets and reloads the default from disk
func (m *Manager) RefreshCache() error {
	m.mu.Lock()
	m.presets = make(map[string]*Preset)
	m.mu.Unlock()

	return m.loadDefaultPreset()
}

// SavePreset validates and writes a preset to disk
func (m *Manager) SavePreset(id string, preset *Preset) error {
	id = strings.TrimSuffix(strings.TrimSpace(id), ".json")
	if id == "" || strings.ContainsAny(id, `/\.`) {
		return gameerr.Newf(gameerr.CodeInvalidInput, "invalid preset id %q", id)
	}
	if err := ValidatePreset(preset); err != nil {
		return err
	}

	saved := *preset
	saved.ID = id
	data, err := json.MarshalIndent(&saved, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal preset: %w", err)
	}

	if err := os.WriteFile(filepath.Join(m.configDir, id+".json"), data, 0644); err != nil {
		return fmt.Errorf("failed to write preset file: %w", err)
	}

	m.mu.Lock()
	m.presets[id] = &saved
	m.mu.Unlock()

	return nil
}

// loadDefaultPreset picks classic.json, else the first valid preset, else a
// built-in 3x3 board.
func (m *Manager) loadDefaultPreset() error {
	preset, err := m.LoadPreset(DefaultPresetID)
	if err != nil {
		presets, listErr := m.ListPresets()
		if listErr != nil || len(presets) == 0 {
			preset = builtinPreset()
		} else if preset, err = m.LoadPreset(presets[0].ID); err != nil {
			preset = builtinPreset()
		}
	}

	m.mu.Lock()
	m.defaultPreset = preset
	m.mu.Unlock()
	return nil
}

func builtinPreset() *Preset {
	return &Preset{
		ID:          DefaultPresetID,
		Name:        "Classic",
		Description: "Three in a row on a 3x3 board",
		Width:       3,
		Height:      3,
	}
}
