// Package config loads tuning parameters for the learning loop from JSON.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Defaults for every tunable. The JSON file only needs to name the values it
// overrides; nil pointer fields fall back to these.
const (
	DefaultWindowSize          = 30
	DefaultTopK                = 3
	DefaultMinObservations     = 20
	DefaultConfidenceThreshold = 0.8
	DefaultFrameInterval       = 100 * time.Millisecond
	DefaultGridSize            = 15
	DefaultAnchorX             = 7
	DefaultAnchorY             = 7
	DefaultMappingsFile        = "type_mappings.json"
	DefaultDBPath              = "tilewatch.db"
	DefaultListen              = ":8080"
)

// Config is the root tuning configuration. Pointer fields so that partial
// config files are safe: omitted fields keep their defaults.
type Config struct {
	// Learner params
	WindowSize          *int     `json:"window_size,omitempty"`
	TopK                *int     `json:"top_k,omitempty"`
	MinObservations     *int     `json:"min_observations,omitempty"`
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`

	// Frame/grid params
	FrameInterval *string `json:"frame_interval,omitempty"` // duration string like "100ms"
	GridSize      *int    `json:"grid_size,omitempty"`
	AnchorX       *int    `json:"anchor_x,omitempty"`
	AnchorY       *int    `json:"anchor_y,omitempty"`

	// Paths and serving
	MappingsFile *string `json:"mappings_file,omitempty"`
	DBPath       *string `json:"db_path,omitempty"`
	Listen       *string `json:"listen,omitempty"`
}

// Empty returns a Config with all fields unset.
func Empty() *Config {
	return &Config{}
}

// Load reads a Config from a JSON file. The file must have a .json extension;
// omitted fields retain their defaults.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks value ranges for all set fields.
func (c *Config) Validate() error {
	if c.WindowSize != nil && *c.WindowSize < 1 {
		return fmt.Errorf("window_size must be >= 1, got %d", *c.WindowSize)
	}
	if c.TopK != nil && *c.TopK < 1 {
		return fmt.Errorf("top_k must be >= 1, got %d", *c.TopK)
	}
	if c.MinObservations != nil && *c.MinObservations < 1 {
		return fmt.Errorf("min_observations must be >= 1, got %d", *c.MinObservations)
	}
	if c.MinObservations != nil && *c.MinObservations > c.GetWindowSize() {
		return fmt.Errorf("min_observations (%d) cannot exceed window_size (%d)",
			*c.MinObservations, c.GetWindowSize())
	}
	if c.ConfidenceThreshold != nil && (*c.ConfidenceThreshold < 0 || *c.ConfidenceThreshold > 1) {
		return fmt.Errorf("confidence_threshold must be in [0,1], got %v", *c.ConfidenceThreshold)
	}
	if c.FrameInterval != nil {
		d, err := time.ParseDuration(*c.FrameInterval)
		if err != nil {
			return fmt.Errorf("invalid frame_interval %q: %w", *c.FrameInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("frame_interval must be positive, got %v", d)
		}
	}
	if c.GridSize != nil && *c.GridSize < 3 {
		return fmt.Errorf("grid_size must be >= 3, got %d", *c.GridSize)
	}
	if c.AnchorX != nil && (*c.AnchorX < 0 || *c.AnchorX >= c.GetGridSize()) {
		return fmt.Errorf("anchor_x %d outside grid of size %d", *c.AnchorX, c.GetGridSize())
	}
	if c.AnchorY != nil && (*c.AnchorY < 0 || *c.AnchorY >= c.GetGridSize()) {
		return fmt.Errorf("anchor_y %d outside grid of size %d", *c.AnchorY, c.GetGridSize())
	}
	return nil
}

// GetWindowSize returns the observation window capacity.
func (c *Config) GetWindowSize() int {
	if c.WindowSize != nil {
		return *c.WindowSize
	}
	return DefaultWindowSize
}

// GetTopK returns the belief distribution bound.
func (c *Config) GetTopK() int {
	if c.TopK != nil {
		return *c.TopK
	}
	return DefaultTopK
}

// GetMinObservations returns the candidacy sample floor.
func (c *Config) GetMinObservations() int {
	if c.MinObservations != nil {
		return *c.MinObservations
	}
	return DefaultMinObservations
}

// GetConfidenceThreshold returns the candidacy confidence floor.
func (c *Config) GetConfidenceThreshold() float64 {
	if c.ConfidenceThreshold != nil {
		return *c.ConfidenceThreshold
	}
	return DefaultConfidenceThreshold
}

// GetFrameInterval returns the inter-frame pacing delay. Invalid strings were
// rejected by Validate, so parsing here cannot fail on a loaded config.
func (c *Config) GetFrameInterval() time.Duration {
	if c.FrameInterval != nil {
		if d, err := time.ParseDuration(*c.FrameInterval); err == nil {
			return d
		}
	}
	return DefaultFrameInterval
}

// GetGridSize returns the square grid dimension.
func (c *Config) GetGridSize() int {
	if c.GridSize != nil {
		return *c.GridSize
	}
	return DefaultGridSize
}

// GetAnchorX returns the anchor cell x coordinate.
func (c *Config) GetAnchorX() int {
	if c.AnchorX != nil {
		return *c.AnchorX
	}
	return DefaultAnchorX
}

// GetAnchorY returns the anchor cell y coordinate.
func (c *Config) GetAnchorY() int {
	if c.AnchorY != nil {
		return *c.AnchorY
	}
	return DefaultAnchorY
}

// GetMappingsFile returns the registry file path.
func (c *Config) GetMappingsFile() string {
	if c.MappingsFile != nil {
		return *c.MappingsFile
	}
	return DefaultMappingsFile
}

// GetDBPath returns the learning-log database path.
func (c *Config) GetDBPath() string {
	if c.DBPath != nil {
		return *c.DBPath
	}
	return DefaultDBPath
}

// GetListen returns the HTTP listen address.
func (c *Config) GetListen() string {
	if c.Listen != nil {
		return *c.Listen
	}
	return DefaultListen
}
