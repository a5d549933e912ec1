package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	SourcePaths   []string `toml:"source_paths"`
	Extensions    []string `toml:"extensions"`
	DefaultSchema string   `toml:"default_schema"`
	SnapshotPath  string   `toml:"snapshot_path"`
	HistoryPath   string   `toml:"history_path"`
	MetricsAddr   string   `toml:"metrics_addr"`
	Exclude       Exclude  `toml:"exclude"`
	Watch         Watch    `toml:"watch"`
	Crawl         Crawl    `toml:"crawl"`
	Output        Output   `toml:"output"`
}

type Exclude struct {
	Dirs  []string `toml:"dirs"`
	Files []string `toml:"files"`
}

type Watch struct {
	Debounce time.Duration `toml:"debounce"`
	// RescansPerSecond bounds how often watch events may trigger a re-analysis.
	RescansPerSecond float64 `toml:"rescans_per_second"`
	RescanBurst      int     `toml:"rescan_burst"`
}

type Crawl struct {
	MaxDepth      int  `toml:"max_depth"`
	IncludeTables bool `toml:"include_tables"`
}

type Output struct {
	Mermaid   string `toml:"mermaid"`
	Hierarchy string `toml:"hierarchy"`
	TSV       string `toml:"tsv"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a usable configuration when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if len(c.SourcePaths) == 0 {
		c.SourcePaths = []string{"."}
	}
	if len(c.Extensions) == 0 {
		c.Extensions = []string{"prc", "sql", "pls"}
	}
	if c.DefaultSchema == "" {
		c.DefaultSchema = "UNKNOWN"
	}
	if c.Watch.Debounce == 0 {
		c.Watch.Debounce = 500 * time.Millisecond
	}
	if c.Watch.RescansPerSecond == 0 {
		c.Watch.RescansPerSecond = 2
	}
	if c.Watch.RescanBurst == 0 {
		c.Watch.RescanBurst = 4
	}
	if c.Crawl.MaxDepth == 0 {
		c.Crawl.MaxDepth = 5
	}
}
