// Package config loads reconstruction tuning parameters from JSON
// files. Fields omitted from a file retain their defaults, so partial
// configs are safe to ship alongside a run.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alig146/tracker/internal/tracker"
)

// TuningConfig is the JSON schema of a reconstruction tuning file. All
// fields are optional; nil means "keep the default".
type TuningConfig struct {
	// Collapse params
	CollapseToleranceT *float64 `json:"collapse_tolerance_t,omitempty"`
	CollapseToleranceX *float64 `json:"collapse_tolerance_x,omitempty"`
	CollapseToleranceY *float64 `json:"collapse_tolerance_y,omitempty"`
	CollapseToleranceZ *float64 `json:"collapse_tolerance_z,omitempty"`

	// Partition/seeding params
	LayerAxis     *string  `json:"layer_axis,omitempty"` // "t", "x", "y" or "z"
	LayerInterval *float64 `json:"layer_interval,omitempty"`
	SeedSize      *int     `json:"seed_size,omitempty"`
	LineWidth     *float64 `json:"line_width,omitempty"`

	// Fit params
	MaxIterations  *int     `json:"max_iterations,omitempty"`
	Tolerance      *float64 `json:"tolerance,omitempty"`
	FixedParameter *string  `json:"fixed_parameter,omitempty"`

	// Vertex params
	MaxVertexChiSquared *float64 `json:"max_vertex_chi_squared,omitempty"`
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The path must
// have a .json extension and stay under the max file size.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg TuningConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the pipeline cannot run with.
func (c *TuningConfig) Validate() error {
	if c.SeedSize != nil && *c.SeedSize <= 2 {
		return fmt.Errorf("seed_size must be at least 3, got %d", *c.SeedSize)
	}
	if c.LayerInterval != nil && *c.LayerInterval <= 0 {
		return fmt.Errorf("layer_interval must be positive, got %g", *c.LayerInterval)
	}
	if c.LineWidth != nil && *c.LineWidth <= 0 {
		return fmt.Errorf("line_width must be positive, got %g", *c.LineWidth)
	}
	if c.MaxIterations != nil && *c.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", *c.MaxIterations)
	}
	if c.LayerAxis != nil {
		if _, err := tracker.ParseCoordinate(*c.LayerAxis); err != nil {
			return fmt.Errorf("invalid layer_axis: %w", err)
		}
	}
	if c.FixedParameter != nil {
		if _, err := tracker.ParseCoordinate(*c.FixedParameter); err != nil {
			return fmt.Errorf("invalid fixed_parameter: %w", err)
		}
	}
	return nil
}

// Merge overlays the loaded tuning onto a base reconstruction config
// and returns the result. Call Validate (or LoadTuningConfig, which
// validates) before merging.
func (c *TuningConfig) Merge(base tracker.Config) tracker.Config {
	out := base

	if c.CollapseToleranceT != nil {
		out.Seed.CollapseTolerance.T = *c.CollapseToleranceT
	}
	if c.CollapseToleranceX != nil {
		out.Seed.CollapseTolerance.X = *c.CollapseToleranceX
	}
	if c.CollapseToleranceY != nil {
		out.Seed.CollapseTolerance.Y = *c.CollapseToleranceY
	}
	if c.CollapseToleranceZ != nil {
		out.Seed.CollapseTolerance.Z = *c.CollapseToleranceZ
	}
	if c.LayerAxis != nil {
		axis, _ := tracker.ParseCoordinate(*c.LayerAxis)
		out.Seed.LayerAxis = axis
	}
	if c.LayerInterval != nil {
		out.Seed.LayerInterval = *c.LayerInterval
	}
	if c.SeedSize != nil {
		out.Seed.MinSize = *c.SeedSize
	}
	if c.LineWidth != nil {
		out.Seed.LineWidth = *c.LineWidth
	}
	if c.MaxIterations != nil {
		out.Fit.MaxIterations = *c.MaxIterations
	}
	if c.Tolerance != nil {
		out.Fit.Tolerance = *c.Tolerance
	}
	if c.FixedParameter != nil {
		fixed, _ := tracker.ParseCoordinate(*c.FixedParameter)
		out.Fit.FixedParameter = fixed
	}
	if c.MaxVertexChiSquared != nil {
		out.MaxVertexChiSquared = *c.MaxVertexChiSquared
	}
	return out
}
