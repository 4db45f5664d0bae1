package cache

import (
	"encoding/json"
	"fmt"
	"os"
)

// replaceNames maps Replace values to their JSON string form, so a config
// file reads "lru" rather than a bare integer.
var replaceNames = [...]string{LRU: "lru", FIFO: "fifo", Random: "random"}

func (r Replace) String() string {
	if int(r) < len(replaceNames) {
		return replaceNames[r]
	}
	return "unknown"
}

// MarshalJSON renders a Replace policy as its lowercase name.
func (r Replace) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON parses a Replace policy from its lowercase name.
func (r *Replace) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for i, name := range replaceNames {
		if name == s {
			*r = Replace(i)
			return nil
		}
	}
	return fmt.Errorf("unknown replacement policy %q", s)
}

// DefaultConfig returns an 8 KiB, 2-way, 32-byte-block, write-back, LRU
// cache: the geometry used throughout the matmul locality scenarios.
func DefaultConfig() *Config {
	return &Config{
		Size:          8 * 1024,
		Associativity: 2,
		BlockSize:     32,
		WriteThrough:  false,
		Replace:       LRU,
	}
}

// LoadConfig loads a Config from a JSON file, starting from DefaultConfig
// so an omitted field keeps its default rather than zeroing out.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse cache config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a Config to a JSON file.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize cache config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache config file: %w", err)
	}

	return nil
}
