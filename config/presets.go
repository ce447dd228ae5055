package config

import (
	"fmt"
	"strings"
)

// Preset is a named threshold value
type Preset struct {
	Name  string
	Value int
}

// BlurPresets are ordered from most lenient to most strict
var BlurPresets = []Preset{
	{"Soft", 50},
	{"Normal", 100},
	{"Strict", 200},
	{"Very Strict", 350},
}

// SimilarityPresets are ordered from most lenient to most strict
var SimilarityPresets = []Preset{
	{"Loose", 40},
	{"Normal", 20},
	{"Strict", 10},
	{"Very Strict", 5},
}

// BlurPreset looks up a blur preset by case-insensitive name
func BlurPreset(name string) (int, error) {
	return lookup(BlurPresets, "blur", name)
}

// SimilarityPreset looks up a similarity preset by case-insensitive name
func SimilarityPreset(name string) (int, error) {
	return lookup(SimilarityPresets, "similarity", name)
}

func lookup(presets []Preset, kind, name string) (int, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", " ")
	for _, p := range presets {
		if strings.ToLower(p.Name) == norm {
			return p.Value, nil
		}
	}
	return 0, fmt.Errorf("unknown %s preset %q", kind, name)
}

// PresetName returns the preset matching a value, or "Custom"
func PresetName(presets []Preset, value int) string {
	for _, p := range presets {
		if p.Value == value {
			return p.Name
		}
	}
	return "Custom"
}
