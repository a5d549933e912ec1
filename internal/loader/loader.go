package loader

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"procmap/internal/config"
)

// SourceFile is one stored-procedure source ready for analysis. Name
// and Schema are derived from the file name: "fin.settle.prc" becomes
// FIN.SETTLE, a bare stem gets the configured default schema.
type SourceFile struct {
	Path    string
	Name    string
	Schema  string
	Content string
}

func (f SourceFile) FullName() string {
	if f.Schema == "" {
		return f.Name
	}
	return f.Schema + "." + f.Name
}

// Loader discovers and reads procedure sources under the configured
// roots, honoring extension and exclude settings.
type Loader struct {
	cfg *config.Config
}

func New(cfg *config.Config) *Loader {
	return &Loader{cfg: cfg}
}

// Discover walks every source path and returns the matching file
// paths, sorted.
func (l *Loader) Discover() ([]string, error) {
	dirGlobs := make([]glob.Glob, 0, len(l.cfg.Exclude.Dirs))
	for _, p := range l.cfg.Exclude.Dirs {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude dir pattern %q: %w", p, err)
		}
		dirGlobs = append(dirGlobs, g)
	}

	fileGlobs := make([]glob.Glob, 0, len(l.cfg.Exclude.Files))
	for _, p := range l.cfg.Exclude.Files {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude file pattern %q: %w", p, err)
		}
		fileGlobs = append(fileGlobs, g)
	}

	var files []string
	for _, root := range l.cfg.SourcePaths {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			base := filepath.Base(path)
			if d.IsDir() {
				for _, g := range dirGlobs {
					if g.Match(base) {
						return filepath.SkipDir
					}
				}
				return nil
			}

			if !l.matchesExtension(path) {
				return nil
			}
			for _, g := range fileGlobs {
				if g.Match(base) {
					return nil
				}
			}

			files = append(files, path)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan %q: %w", root, err)
		}
	}

	sort.Strings(files)
	return files, nil
}

// Load reads every discovered file. Empty and unreadable files are
// skipped with a warning rather than failing the whole load.
func (l *Loader) Load() ([]SourceFile, error) {
	paths, err := l.Discover()
	if err != nil {
		return nil, err
	}

	sources := make([]SourceFile, 0, len(paths))
	for _, path := range paths {
		source, ok := l.LoadFile(path)
		if !ok {
			continue
		}
		sources = append(sources, source)
	}
	return sources, nil
}

// LoadFile reads a single source file. The second return is false when
// the file is empty, blank, or unreadable.
func (l *Loader) LoadFile(path string) (SourceFile, bool) {
	content, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("failed to read source file", "path", path, "error", err)
		return SourceFile{}, false
	}
	if strings.TrimSpace(string(content)) == "" {
		slog.Debug("skipping empty source file", "path", path)
		return SourceFile{}, false
	}

	schema, name := l.deriveName(path)
	return SourceFile{
		Path:    path,
		Name:    name,
		Schema:  schema,
		Content: string(content),
	}, true
}

func (l *Loader) matchesExtension(path string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, want := range l.cfg.Extensions {
		if ext == strings.ToLower(strings.TrimPrefix(want, ".")) {
			return true
		}
	}
	return false
}

func (l *Loader) deriveName(path string) (schema, name string) {
	stem := filepath.Base(path)
	stem = strings.TrimSuffix(stem, filepath.Ext(stem))
	stem = strings.ToUpper(stem)

	if idx := strings.LastIndex(stem, "."); idx > 0 {
		return stem[:idx], stem[idx+1:]
	}
	return strings.ToUpper(l.cfg.DefaultSchema), stem
}
