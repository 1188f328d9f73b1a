package config

import (
	"strings"

	"github.com/wricardo/mcp-training/gridduel/game/engine"
	"github.com/wricardo/mcp-training/gridduel/game/gameerr"
)

// Preset is a named board size stored as JSON in the config directory.
type Preset struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

// PresetInfo is the listing view of a preset.
type PresetInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	RunLength   int    `json:"run_length"`
}

// Info returns the listing view of p.
func (p *Preset) Info() *PresetInfo {
	return &PresetInfo{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Width:       p.Width,
		Height:      p.Height,
		RunLength:   engine.RunLength(p.Width, p.Height),
	}
}

// ValidatePreset checks required fields and board dimensions
func ValidatePreset(p *Preset) error {
	if p == nil {
		return gameerr.New(gameerr.CodeInvalidInput, "preset is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return gameerr.New(gameerr.CodeInvalidInput, "preset validation: name is required")
	}
	if strings.TrimSpace(p.Description) == "" {
		return gameerr.New(gameerr.CodeInvalidInput, "preset validation: description is required")
	}
	return engine.ValidateSize(p.Width, p.Height)
}
