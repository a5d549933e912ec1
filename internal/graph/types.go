package graph

import "procmap/internal/analyzer"

// ProcedureFacts is the registration payload for a procedure, either
// assembled from analyzer output or handed in by an external loader.
type ProcedureFacts struct {
	Name             string                          `json:"name"`
	Schema           string                          `json:"schema,omitempty"`
	SourceCode       string                          `json:"source_code,omitempty"`
	Parameters       []analyzer.Parameter            `json:"parameters,omitempty"`
	CalledProcedures []string                        `json:"called_procedures,omitempty"`
	CalledTables     []string                        `json:"called_tables,omitempty"`
	FieldsUsed       map[string]*analyzer.FieldUsage `json:"fields_used,omitempty"`
	BusinessLogic    string                          `json:"business_logic,omitempty"`
	ComplexityScore  int                             `json:"complexity_score,omitempty"`
}

type ColumnInfo struct {
	Name             string `json:"name"`
	DataType         string `json:"data_type,omitempty"`
	Nullable         bool   `json:"nullable,omitempty"`
	Default          string `json:"default,omitempty"`
	IsPrimaryKey     bool   `json:"is_primary_key,omitempty"`
	IsForeignKey     bool   `json:"is_foreign_key,omitempty"`
	ForeignKeyTable  string `json:"foreign_key_table,omitempty"`
	ForeignKeyColumn string `json:"foreign_key_column,omitempty"`
}

type IndexInfo struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns,omitempty"`
	Unique  bool     `json:"unique,omitempty"`
}

type ForeignKey struct {
	Columns           []string `json:"columns,omitempty"`
	ReferencedTable   string   `json:"referenced_table"`
	ReferencedColumns []string `json:"referenced_columns,omitempty"`
}

// TableFacts is the registration payload for a table. Business purpose
// and complexity may arrive from an external enrichment step and are
// carried as opaque annotations.
type TableFacts struct {
	Name              string       `json:"name"`
	Schema            string       `json:"schema,omitempty"`
	Columns           []ColumnInfo `json:"columns,omitempty"`
	Indexes           []IndexInfo  `json:"indexes,omitempty"`
	ForeignKeys       []ForeignKey `json:"foreign_keys,omitempty"`
	PrimaryKeyColumns []string     `json:"primary_key_columns,omitempty"`
	BusinessPurpose   string       `json:"business_purpose,omitempty"`
	ComplexityScore   int          `json:"complexity_score,omitempty"`
}

type ProcedureNode struct {
	Name             string                          `json:"name"`
	Schema           string                          `json:"schema"`
	SourceCode       string                          `json:"source_code,omitempty"`
	Parameters       []analyzer.Parameter            `json:"parameters,omitempty"`
	CalledProcedures []string                        `json:"called_procedures,omitempty"`
	CalledTables     []string                        `json:"called_tables,omitempty"`
	FieldsUsed       map[string]*analyzer.FieldUsage `json:"fields_used,omitempty"`
	BusinessLogic    string                          `json:"business_logic,omitempty"`
	ComplexityScore  int                             `json:"complexity_score,omitempty"`
	DependencyLevel  int                             `json:"dependency_level"`
	Placeholder      bool                            `json:"placeholder,omitempty"`
}

type TableNode struct {
	Name              string            `json:"name"`
	Schema            string            `json:"schema"`
	Columns           []ColumnInfo      `json:"columns,omitempty"`
	Indexes           []IndexInfo       `json:"indexes,omitempty"`
	ForeignKeys       []ForeignKey      `json:"foreign_keys,omitempty"`
	PrimaryKeyColumns []string          `json:"primary_key_columns,omitempty"`
	Relationships     map[string]string `json:"relationships,omitempty"`
	BusinessPurpose   string            `json:"business_purpose,omitempty"`
	ComplexityScore   int               `json:"complexity_score,omitempty"`
	Placeholder       bool              `json:"placeholder,omitempty"`
}

// ProcedureContext is the flattened view returned to callers.
type ProcedureContext struct {
	Name             string
	Schema           string
	FullName         string
	SourceCode       string
	Parameters       []analyzer.Parameter
	CalledProcedures []string
	CalledTables     []string
	FieldsUsed       map[string]*analyzer.FieldUsage
	BusinessLogic    string
	ComplexityScore  int
	DependencyLevel  int
}

type TableDetails struct {
	Name              string
	Schema            string
	FullName          string
	Columns           []ColumnInfo
	Indexes           []IndexInfo
	ForeignKeys       []ForeignKey
	PrimaryKeyColumns []string
	Relationships     map[string]string
	BusinessPurpose   string
	ComplexityScore   int
}

// FieldUsageHit is one procedure's recorded usage of a field.
type FieldUsageHit struct {
	Procedure string
	Usage     analyzer.FieldUsage
}

type Statistics struct {
	ProcedureCount     int
	TableCount         int
	PlaceholderCount   int
	CallEdges          int
	AccessEdges        int
	CycleCount         int
	MaxDependencyLevel int
	AvgComplexity      float64
}
