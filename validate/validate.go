// Command validate checks the board preset JSON files in ../configs (or the
// directory given as the first argument). It checks:
//   - JSON structure, with unknown fields rejected
//   - Required name and description
//   - Board dimensions between the engine limits
//   - An id field, when present, matching the file name
//   - Duplicate preset names across files
//   - Presence of the default preset
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wricardo/mcp-training/gridduel/game/config"
	"github.com/wricardo/mcp-training/gridduel/game/engine"
)

// ValidationResult captures the outcome of validating a single file.
// If Valid is true, Errors contains informational messages; otherwise it
// accumulates the validation errors that were found.
type ValidationResult struct {
	File   string
	Name   string
	Valid  bool
	Errors []string
}

// validatePreset loads and validates a single preset file.
func validatePreset(filePath string) ValidationResult {
	result := ValidationResult{
		File:   filepath.Base(filePath),
		Valid:  true,
		Errors: []string{},
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Failed to read file: %v", err))
		return result
	}

	var preset config.Preset
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&preset); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Invalid JSON: %v", err))
		return result
	}
	result.Name = preset.Name

	id := strings.TrimSuffix(result.File, ".json")
	if preset.ID != "" && preset.ID != id {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("id %q does not match file name %q", preset.ID, id))
	}

	if err := config.ValidatePreset(&preset); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	result.Errors = append(result.Errors,
		fmt.Sprintf("✓ Board: %dx%d, %d cells", preset.Width, preset.Height, preset.Width*preset.Height),
		fmt.Sprintf("✓ Win: %d in a row", engine.RunLength(preset.Width, preset.Height)),
	)
	return result
}

// validateDir validates every preset in dir and the checks that span files.
func validateDir(dir string) ([]ValidationResult, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}

	results := make([]ValidationResult, 0, len(files)+1)
	seen := make(map[string]string)
	hasDefault := false
	for _, file := range files {
		result := validatePreset(file)
		if result.File == config.DefaultPresetID+".json" {
			hasDefault = result.Valid
		}

		if result.Name != "" {
			key := strings.ToLower(strings.TrimSpace(result.Name))
			if other, ok := seen[key]; ok {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf("Duplicate name %q, also used by %s", result.Name, other))
			} else {
				seen[key] = result.File
			}
		}
		results = append(results, result)
	}

	if !hasDefault {
		results = append(results, ValidationResult{
			File:   config.DefaultPresetID + ".json",
			Errors: []string{"Default preset is missing or invalid; the server falls back to a built-in 3x3 board"},
		})
	}
	return results, nil
}

// main validates the preset directory, printing a concise report and exiting
// with non-zero status if any file is invalid.
func main() {
	configDir := "../configs"
	if len(os.Args) > 1 {
		configDir = os.Args[1]
	}

	results, err := validateDir(configDir)
	if err != nil {
		fmt.Printf("Error finding preset files: %v\n", err)
		os.Exit(1)
	}

	allValid := true
	for _, result := range results {
		fmt.Printf("\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Println("✅ VALID")
			for _, info := range result.Errors {
				fmt.Println("  " + info)
			}
		} else {
			fmt.Println("❌ INVALID")
			allValid = false
			for _, err := range result.Errors {
				if !strings.HasPrefix(err, "✓") {
					fmt.Println("  ❌ " + err)
				}
			}
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Println("✅ All presets are valid!")
	} else {
		fmt.Println("❌ Some presets have errors")
		os.Exit(1)
	}
}
