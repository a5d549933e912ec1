package history

import "time"

// SchemaVersion is bumped whenever the snapshot row layout changes.
const SchemaVersion = 1

// ScanRecord is one completed analysis run over a source corpus.
type ScanRecord struct {
	ScanID             string    `json:"scan_id"`
	SchemaVersion      int       `json:"schema_version"`
	Timestamp          time.Time `json:"timestamp"`
	FileCount          int       `json:"file_count"`
	ProcedureCount     int       `json:"procedure_count"`
	TableCount         int       `json:"table_count"`
	PlaceholderCount   int       `json:"placeholder_count"`
	CallEdgeCount      int       `json:"call_edge_count"`
	AccessEdgeCount    int       `json:"access_edge_count"`
	CycleCount         int       `json:"cycle_count"`
	MaxDependencyLevel int       `json:"max_dependency_level"`
	AvgComplexity      float64   `json:"avg_complexity"`
}
