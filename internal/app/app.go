package app

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"procmap/internal/analyzer"
	"procmap/internal/config"
	"procmap/internal/crawler"
	"procmap/internal/data/history"
	"procmap/internal/graph"
	"procmap/internal/loader"
	"procmap/internal/output"
	"procmap/internal/query"
	"procmap/internal/shared/util"
	"procmap/internal/watcher"
)

// Update is pushed to the UI after every completed scan.
type Update struct {
	ScanID     string
	FileCount  int
	Statistics graph.Statistics
	Cycles     [][]string
}

// App wires the loader, analyzer, graph and crawler together and owns
// the scan lifecycle.
type App struct {
	Config  *config.Config
	Graph   *graph.Graph
	Crawler *crawler.Crawler
	Query   *query.Service
	Loader  *loader.Loader

	history       *history.Store
	rescanLimiter *util.Limiter
	projectKey    string

	updateMu sync.RWMutex
	onUpdate func(Update)

	scanMu    sync.Mutex
	fileCount int
}

func New(cfg *config.Config) (*App, error) {
	g := graph.NewGraph()
	a := &App{
		Config:        cfg,
		Graph:         g,
		Crawler:       crawler.New(g),
		Loader:        loader.New(cfg),
		rescanLimiter: util.NewLimiter(cfg.Watch.RescansPerSecond, cfg.Watch.RescanBurst),
		projectKey:    "default",
	}

	if cfg.HistoryPath != "" {
		store, err := history.Open(cfg.HistoryPath)
		if err != nil {
			return nil, err
		}
		a.history = store
	}
	a.Query = query.NewService(g, a.history, a.projectKey)

	return a, nil
}

func (a *App) SetUpdateHandler(fn func(Update)) {
	a.updateMu.Lock()
	defer a.updateMu.Unlock()
	a.onUpdate = fn
}

func (a *App) notify(update Update) {
	a.updateMu.RLock()
	fn := a.onUpdate
	a.updateMu.RUnlock()
	if fn != nil {
		fn(update)
	}
}

// InitialScan populates the graph, preferring a snapshot when one is
// configured and still valid; otherwise it analyzes the full corpus.
func (a *App) InitialScan(ctx context.Context) error {
	if a.Config.SnapshotPath != "" {
		loaded, err := a.Graph.LoadSnapshot(a.Config.SnapshotPath)
		if err != nil {
			slog.Warn("ignoring unreadable snapshot", "path", a.Config.SnapshotPath, "error", err)
		}
		if loaded {
			slog.Info("graph restored from snapshot", "path", a.Config.SnapshotPath)
			return a.finishScan(ctx)
		}
	}
	return a.Rescan(ctx)
}

// Rescan rebuilds the graph from every source file on disk.
func (a *App) Rescan(ctx context.Context) error {
	a.scanMu.Lock()
	defer a.scanMu.Unlock()

	sources, err := a.Loader.Load()
	if err != nil {
		return err
	}

	a.Graph.Reset()
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		a.registerSource(source)
	}
	a.fileCount = len(sources)

	return a.finishScan(ctx)
}

// ProcessChanges re-analyzes edited files. The limiter drops bursts so
// watch mode cannot thrash the analyzer.
func (a *App) ProcessChanges(ctx context.Context, paths []string) {
	if !a.rescanLimiter.Allow(1) {
		slog.Debug("rescan suppressed by rate limit", "changed", len(paths))
		return
	}

	a.scanMu.Lock()
	defer a.scanMu.Unlock()

	changed := 0
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			// Deleted files keep their last known facts; a periodic
			// full Rescan reconciles removals.
			continue
		}
		source, ok := a.Loader.LoadFile(path)
		if !ok {
			continue
		}
		a.registerSource(source)
		changed++
	}
	if changed == 0 {
		return
	}

	if err := a.finishScan(ctx); err != nil {
		slog.Error("incremental scan failed", "error", err)
	}
}

func (a *App) registerSource(source loader.SourceFile) {
	result := analyzer.Analyze(source.Content, source.FullName())
	facts := graph.ProcedureFacts{
		Name:             source.Name,
		Schema:           source.Schema,
		SourceCode:       source.Content,
		Parameters:       result.Parameters,
		CalledProcedures: result.Procedures,
		CalledTables:     result.Tables,
		FieldsUsed:       result.Fields,
		ComplexityScore:  result.ComplexityScore,
	}
	if err := a.Graph.AddProcedure(facts); err != nil {
		slog.Warn("failed to register procedure", "path", source.Path, "procedure", source.FullName(), "error", err)
	}
}

// finishScan recomputes derived state, persists it and notifies the UI.
func (a *App) finishScan(ctx context.Context) error {
	a.Graph.RecomputeLevels()
	cycles := a.Graph.DetectCycles()
	stats := a.Graph.Statistics()
	stats.CycleCount = len(cycles)

	update := Update{
		FileCount:  a.fileCount,
		Statistics: stats,
		Cycles:     cycles,
	}

	if a.history != nil {
		record, err := a.history.SaveScan(a.projectKey, history.ScanRecord{
			FileCount:          a.fileCount,
			ProcedureCount:     stats.ProcedureCount,
			TableCount:         stats.TableCount,
			PlaceholderCount:   stats.PlaceholderCount,
			CallEdgeCount:      stats.CallEdges,
			AccessEdgeCount:    stats.AccessEdges,
			CycleCount:         stats.CycleCount,
			MaxDependencyLevel: stats.MaxDependencyLevel,
			AvgComplexity:      stats.AvgComplexity,
		})
		if err != nil {
			slog.Warn("failed to record scan history", "error", err)
		} else {
			update.ScanID = record.ScanID
		}
	}

	if a.Config.SnapshotPath != "" {
		if err := a.Graph.SaveSnapshot(a.Config.SnapshotPath); err != nil {
			slog.Warn("failed to write snapshot", "path", a.Config.SnapshotPath, "error", err)
		}
	}

	a.writeOutputs()

	slog.Info("scan complete",
		"files", a.fileCount,
		"procedures", stats.ProcedureCount,
		"tables", stats.TableCount,
		"call_edges", stats.CallEdges,
		"cycles", stats.CycleCount,
	)
	a.notify(update)
	return ctx.Err()
}

func (a *App) writeOutputs() {
	if a.Config.Output.Mermaid != "" {
		mermaid := output.NewMermaidGenerator(a.Graph)
		if content, err := mermaid.Diagram(); err != nil {
			slog.Warn("mermaid diagram skipped", "error", err)
		} else if err := os.WriteFile(a.Config.Output.Mermaid, []byte(content), 0o644); err != nil {
			slog.Warn("failed to write mermaid diagram", "path", a.Config.Output.Mermaid, "error", err)
		}
	}
	if a.Config.Output.Hierarchy != "" {
		mermaid := output.NewMermaidGenerator(a.Graph)
		if content, err := mermaid.Hierarchy(); err != nil {
			slog.Warn("mermaid hierarchy skipped", "error", err)
		} else if err := os.WriteFile(a.Config.Output.Hierarchy, []byte(content), 0o644); err != nil {
			slog.Warn("failed to write mermaid hierarchy", "path", a.Config.Output.Hierarchy, "error", err)
		}
	}
	if a.Config.Output.TSV != "" {
		tsv := output.NewTSVGenerator(a.Graph)
		if content, err := tsv.Generate(); err != nil {
			slog.Warn("tsv export skipped", "error", err)
		} else if err := os.WriteFile(a.Config.Output.TSV, []byte(content), 0o644); err != nil {
			slog.Warn("failed to write tsv export", "path", a.Config.Output.TSV, "error", err)
		}
	}
}

// StartWatching runs until ctx is canceled, re-analyzing files as they
// change.
func (a *App) StartWatching(ctx context.Context) (*watcher.Watcher, error) {
	w, err := watcher.NewWatcher(
		a.Config.Watch.Debounce,
		a.Config.Extensions,
		a.Config.Exclude.Dirs,
		a.Config.Exclude.Files,
		func(paths []string) {
			a.ProcessChanges(ctx, paths)
		},
	)
	if err != nil {
		return nil, err
	}
	if err := w.Watch(a.Config.SourcePaths); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

func (a *App) Close() error {
	if a.history != nil {
		return a.history.Close()
	}
	return nil
}
