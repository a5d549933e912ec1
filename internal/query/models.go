package query

import (
	"procmap/internal/data/history"
	"procmap/internal/graph"
)

type ProcedureSummary struct {
	FullName        string
	Schema          string
	CallCount       int
	TableCount      int
	CallerCount     int
	ComplexityScore int
	DependencyLevel int
}

type ProcedureDetails struct {
	Context graph.ProcedureContext
	Callers []string
}

type HierarchyView struct {
	Levels   map[int][]string
	MaxLevel int
}

type StatsView struct {
	Statistics graph.Statistics
	Cycles     [][]string
}

type TrendSlice struct {
	Since     string
	Until     string
	ScanCount int
	Scans     []history.ScanRecord
}
