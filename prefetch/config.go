package prefetch

import (
	"fmt"
	"os"

	"github.com/sugawarayuuta/sonnet"
)

// Config holds the tuning parameters of a GHB prefetcher.
type Config struct {
	// HistorySize is the capacity of the circular history buffer.
	// Default: 256 entries.
	HistorySize int `json:"history_size"`

	// PatternLength is the maximum number of deltas collected per back-link
	// walk. Default: 8.
	PatternLength int `json:"pattern_length"`

	// Degree is the baseline number of prefetches per access. The generator
	// inflates it for confident or regular patterns. Default: 4.
	Degree int `json:"degree"`

	// UsePC enables instruction-pointer correlation in addition to page
	// correlation. Default: true.
	UsePC bool `json:"use_pc"`

	// ConfidenceThreshold is the minimum confidence (0-100) a candidate
	// delta needs to count as a match. Default: 50.
	ConfidenceThreshold int `json:"confidence_threshold"`

	// PageBytes bounds chaining; prefetches never leave the trigger's page.
	// Default: 4096.
	PageBytes uint64 `json:"page_bytes"`

	// BlockSize is the cache line size used to align trigger addresses.
	// Default: 64.
	BlockSize uint64 `json:"block_size"`
}

// DefaultConfig returns a Config with the default GHB parameters.
func DefaultConfig() Config {
	return Config{
		HistorySize:         256,
		PatternLength:       8,
		Degree:              4,
		UsePC:               true,
		ConfidenceThreshold: 50,
		PageBytes:           4096,
		BlockSize:           64,
	}
}

// Clamp returns a copy of the config with every field forced into its valid
// range. Degenerate values are raised to their minimum, never rejected.
func (c Config) Clamp() Config {
	c.HistorySize = max(1, c.HistorySize)
	c.PatternLength = max(1, c.PatternLength)
	c.Degree = max(1, c.Degree)
	c.ConfidenceThreshold = min(100, max(0, c.ConfidenceThreshold))
	c.PageBytes = max(1, c.PageBytes)
	c.BlockSize = max(1, c.BlockSize)
	return c
}

// LoadConfig loads a Config from a JSON file. Fields absent from the file
// keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prefetch config file: %w", err)
	}

	config := DefaultConfig()
	if err := sonnet.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse prefetch config: %w", err)
	}

	return &config, nil
}

// SaveConfig writes the Config to a JSON file.
func (c *Config) SaveConfig(path string) error {
	data, err := sonnet.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize prefetch config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write prefetch config file: %w", err)
	}

	return nil
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
