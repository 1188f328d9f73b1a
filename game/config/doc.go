// Package config provides board presets and process settings.
//
// Presets are JSON files in the configs directory, one per board size:
//
//	{
//	  "name": "Classic",
//	  "description": "Three in a row on a 3x3 board",
//	  "width": 3,
//	  "height": 3
//	}
//
// The file name without extension is the preset id. Manager caches loaded
// presets and falls back to a built-in 3x3 board when the directory holds no
// usable default.
//
// Settings are read from environment variables (see Settings for names and
// defaults) and can be overridden by command line flags.
//
// Usage:
//
//	manager, err := config.NewManager("configs")
//	preset, err := manager.LoadPreset("gomoku")
//	presets, err := manager.ListPresets()
//
//	settings, err := config.ParseEnv()
//	logger := settings.NewLogger(os.Stderr)
package config
