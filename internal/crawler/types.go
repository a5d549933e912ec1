package crawler

// DependencyNode is one entry in the nested dependency tree produced
// by CrawlProcedure.
type DependencyNode struct {
	Type            string            `json:"type"` // "procedure" or "table"
	Name            string            `json:"name"`
	Depth           int               `json:"depth"`
	Known           bool              `json:"known"`
	ComplexityScore int               `json:"complexity_score,omitempty"`
	ColumnCount     int               `json:"column_count,omitempty"`
	Dependencies    []*DependencyNode `json:"dependencies,omitempty"`
}

type CrawlResult struct {
	DependenciesTree *DependencyNode `json:"dependencies_tree"`
	ProceduresFound  []string        `json:"procedures_found"`
	TablesFound      []string        `json:"tables_found"`
	DepthReached     int             `json:"depth_reached"`
}

// FieldSource is a place that writes or defines a field.
type FieldSource struct {
	Type         string `json:"type"` // "procedure" or "table"
	Name         string `json:"name"`
	Field        string `json:"field"`
	Operation    string `json:"operation,omitempty"`
	DataType     string `json:"data_type,omitempty"`
	IsPrimaryKey bool   `json:"is_primary_key,omitempty"`
}

type Impact struct {
	Procedure          string   `json:"procedure"`
	Callers            []string `json:"callers"`
	CallerCount        int      `json:"caller_count"`
	Dependencies       []string `json:"dependencies"`
	DependencyCount    int      `json:"dependency_count"`
	AffectedTables     []string `json:"affected_tables"`
	AffectedTableCount int      `json:"affected_table_count"`
	TotalImpactScore   int      `json:"total_impact_score"`
}

type TraceStep struct {
	Procedure string `json:"procedure"`
	Operation string `json:"operation"`
	Field     string `json:"field"`
	Statement string `json:"statement,omitempty"`
	Depth     int    `json:"depth"`
}

type TracePath struct {
	FieldName       string      `json:"field_name"`
	Path            []TraceStep `json:"path"`
	Sources         []string    `json:"sources"`
	Destinations    []string    `json:"destinations"`
	Transformations []string    `json:"transformations"`
}
