package graph

import (
	"encoding/json"
	"os"
	"time"

	"procmap/internal/core/errors"
	"procmap/internal/shared/observability"
)

// SnapshotVersion guards the on-disk format. A snapshot written by a
// different version is treated as absent and the caller rescans.
const SnapshotVersion = 1

type snapshotFile struct {
	Version    int                       `json:"version"`
	SavedAt    time.Time                 `json:"saved_at"`
	Procedures map[string]*ProcedureNode `json:"procedures"`
	Tables     map[string]*TableNode     `json:"tables"`
}

// SaveSnapshot writes the full graph state to path as JSON. Edges are
// not stored separately; they are rebuilt from each node's call and
// table lists on load.
func (g *Graph) SaveSnapshot(path string) error {
	g.mu.RLock()
	snap := snapshotFile{
		Version:    SnapshotVersion,
		SavedAt:    time.Now().UTC(),
		Procedures: make(map[string]*ProcedureNode, len(g.procedures)),
		Tables:     make(map[string]*TableNode, len(g.tables)),
	}
	for key, node := range g.procedures {
		c := *node
		c.Parameters = cloneParameters(node.Parameters)
		c.CalledProcedures = append([]string(nil), node.CalledProcedures...)
		c.CalledTables = append([]string(nil), node.CalledTables...)
		c.FieldsUsed = cloneFieldsUsed(node.FieldsUsed)
		snap.Procedures[key] = &c
	}
	for key, node := range g.tables {
		c := *node
		c.Columns = append([]ColumnInfo(nil), node.Columns...)
		c.Indexes = cloneIndexes(node.Indexes)
		c.ForeignKeys = cloneForeignKeys(node.ForeignKeys)
		snap.Tables[key] = &c
	}
	g.mu.RUnlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "marshal snapshot")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.AddContext(errors.Wrap(err, errors.CodeInternal, "write snapshot"), errors.CtxPath, path)
	}
	return nil
}

// LoadSnapshot replaces the graph contents with the snapshot at path.
// A missing file or a version mismatch is a cache miss, not an error:
// the graph is left untouched and false is returned.
func (g *Graph) LoadSnapshot(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			observability.SnapshotLoads.WithLabelValues("missing").Inc()
			return false, nil
		}
		observability.SnapshotLoads.WithLabelValues("error").Inc()
		return false, errors.AddContext(errors.Wrap(err, errors.CodeInternal, "read snapshot"), errors.CtxPath, path)
	}

	var snap snapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		observability.SnapshotLoads.WithLabelValues("corrupt").Inc()
		return false, errors.AddContext(errors.Wrap(err, errors.CodeInternal, "decode snapshot"), errors.CtxPath, path)
	}
	if snap.Version != SnapshotVersion {
		observability.SnapshotLoads.WithLabelValues("version_mismatch").Inc()
		return false, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.procedures = make(map[string]*ProcedureNode, len(snap.Procedures))
	g.tables = make(map[string]*TableNode, len(snap.Tables))
	g.calls = make(map[string]map[string]bool)
	g.calledBy = make(map[string]map[string]bool)
	g.accesses = make(map[string]map[string]bool)

	for key, node := range snap.Procedures {
		g.procedures[key] = node
	}
	for key, node := range snap.Tables {
		g.tables[key] = node
	}
	for key, node := range snap.Procedures {
		if node.Placeholder {
			continue
		}
		if len(node.CalledProcedures) > 0 {
			g.replaceCallEdgesLocked(key, node.CalledProcedures)
		}
		if len(node.CalledTables) > 0 {
			g.replaceAccessEdgesLocked(key, node.CalledTables)
		}
	}

	g.levelsDirty = true
	g.updateMetricsLocked()
	observability.SnapshotLoads.WithLabelValues("loaded").Inc()
	return true, nil
}
