package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	content := `
source_paths = ["./procedures"]
extensions = ["prc"]
default_schema = "FIN"
snapshot_path = "./cache/graph.json"
history_path = "./cache/history.db"

[exclude]
dirs = [".git"]
files = ["*.bak"]

[watch]
debounce = "1s"

[crawl]
max_depth = 8
include_tables = true

[output]
mermaid = "diagram.md"
tsv = "deps.tsv"
`
	tmpfile, err := os.CreateTemp("", "config*.toml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpfile.Name())

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.SourcePaths) != 1 || cfg.SourcePaths[0] != "./procedures" {
		t.Errorf("Unexpected SourcePaths: %v", cfg.SourcePaths)
	}
	if cfg.DefaultSchema != "FIN" {
		t.Errorf("Expected default schema FIN, got %s", cfg.DefaultSchema)
	}
	if cfg.Watch.Debounce != time.Second {
		t.Errorf("Expected debounce 1s, got %v", cfg.Watch.Debounce)
	}
	if cfg.Crawl.MaxDepth != 8 || !cfg.Crawl.IncludeTables {
		t.Errorf("Unexpected crawl config: %+v", cfg.Crawl)
	}
	if cfg.Output.Mermaid != "diagram.md" {
		t.Errorf("Expected mermaid diagram.md, got %s", cfg.Output.Mermaid)
	}
}

func TestLoadDefaults(t *testing.T) {
	content := `default_schema = "HR"`
	tmpfile, err := os.CreateTemp("", "config*.toml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpfile.Name())

	tmpfile.Write([]byte(content))
	tmpfile.Close()

	cfg, _ := Load(tmpfile.Name())
	if cfg.Watch.Debounce != 500*time.Millisecond {
		t.Errorf("Expected default debounce 500ms, got %v", cfg.Watch.Debounce)
	}
	if cfg.Crawl.MaxDepth != 5 {
		t.Errorf("Expected default max depth 5, got %d", cfg.Crawl.MaxDepth)
	}
	if len(cfg.Extensions) == 0 {
		t.Error("Expected default extensions")
	}
}

func TestLoadError(t *testing.T) {
	_, err := Load("nonexistent.toml")
	if err == nil {
		t.Error("Expected error for nonexistent file")
	}

	tmpfile, _ := os.CreateTemp("", "badconfig*.toml")
	defer os.Remove(tmpfile.Name())
	tmpfile.Write([]byte("bad = toml = format"))
	tmpfile.Close()

	_, err = Load(tmpfile.Name())
	if err == nil {
		t.Error("Expected error for malformed TOML")
	}
}
