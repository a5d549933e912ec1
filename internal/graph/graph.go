package graph

import (
	"sort"
	"strings"
	"sync"

	"procmap/internal/analyzer"
	"procmap/internal/core/errors"
	"procmap/internal/shared/observability"
)

// Graph holds procedures, tables and the edges between them. All node
// keys are upper-cased identifiers, schema-qualified when the schema is
// known (SCHEMA.NAME). Reads return copies so callers can never mutate
// graph state.
type Graph struct {
	mu sync.RWMutex

	procedures map[string]*ProcedureNode
	tables     map[string]*TableNode

	// Relationships
	calls    map[string]map[string]bool // from -> to (procedure -> procedure)
	calledBy map[string]map[string]bool // to -> from
	accesses map[string]map[string]bool // procedure -> table

	levelsDirty bool
}

func NewGraph() *Graph {
	return &Graph{
		procedures: make(map[string]*ProcedureNode),
		tables:     make(map[string]*TableNode),
		calls:      make(map[string]map[string]bool),
		calledBy:   make(map[string]map[string]bool),
		accesses:   make(map[string]map[string]bool),
	}
}

// AddProcedure upserts a procedure node. Non-empty incoming fields
// overwrite stored ones; empty incoming fields never erase prior data.
// Call targets and table references that are not yet registered get
// placeholder nodes so the edge structure stays connected.
func (g *Graph) AddProcedure(facts ProcedureFacts) error {
	if strings.TrimSpace(facts.Name) == "" {
		return errors.New(errors.CodeValidationError, "procedure name is required")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	key := qualifiedName(facts.Schema, facts.Name)

	node, exists := g.procedures[key]
	if !exists {
		// A caller may have referenced this procedure by bare name
		// before its facts arrived. Adopt that placeholder so its
		// incoming edges survive.
		if alias, ok := g.placeholderAliasLocked(key); ok {
			g.repointProcedureLocked(alias, key)
			node = g.procedures[key]
			exists = true
		}
	}
	if !exists {
		node = &ProcedureNode{}
		g.procedures[key] = node
	}

	node.Placeholder = false
	node.Name = bareName(key)
	node.Schema = schemaOf(key)
	if facts.SourceCode != "" {
		node.SourceCode = facts.SourceCode
	}
	if len(facts.Parameters) > 0 {
		node.Parameters = cloneParameters(facts.Parameters)
	}
	if len(facts.FieldsUsed) > 0 {
		node.FieldsUsed = cloneFieldsUsed(facts.FieldsUsed)
	}
	if facts.BusinessLogic != "" {
		node.BusinessLogic = facts.BusinessLogic
	}
	if facts.ComplexityScore > 0 {
		node.ComplexityScore = facts.ComplexityScore
	}

	if len(facts.CalledProcedures) > 0 {
		g.replaceCallEdgesLocked(key, facts.CalledProcedures)
		node.CalledProcedures = normalizeNames(facts.CalledProcedures)
	}
	if len(facts.CalledTables) > 0 {
		g.replaceAccessEdgesLocked(key, facts.CalledTables)
		node.CalledTables = normalizeNames(facts.CalledTables)
	}

	g.levelsDirty = true
	g.updateMetricsLocked()
	return nil
}

// AddTable upserts a table node with the same merge semantics as
// AddProcedure. Relationships are derived from foreign keys.
func (g *Graph) AddTable(facts TableFacts) error {
	if strings.TrimSpace(facts.Name) == "" {
		return errors.New(errors.CodeValidationError, "table name is required")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	key := qualifiedName(facts.Schema, facts.Name)

	node, exists := g.tables[key]
	if !exists {
		if alias, ok := g.tablePlaceholderAliasLocked(key); ok {
			g.repointTableLocked(alias, key)
			node = g.tables[key]
			exists = true
		}
	}
	if !exists {
		node = &TableNode{}
		g.tables[key] = node
	}

	node.Placeholder = false
	node.Name = bareName(key)
	node.Schema = schemaOf(key)
	if len(facts.Columns) > 0 {
		node.Columns = append([]ColumnInfo(nil), facts.Columns...)
	}
	if len(facts.Indexes) > 0 {
		node.Indexes = cloneIndexes(facts.Indexes)
	}
	if len(facts.ForeignKeys) > 0 {
		node.ForeignKeys = cloneForeignKeys(facts.ForeignKeys)
		if node.Relationships == nil {
			node.Relationships = make(map[string]string)
		}
		for _, fk := range facts.ForeignKeys {
			ref := strings.ToUpper(strings.TrimSpace(fk.ReferencedTable))
			if ref != "" {
				node.Relationships[ref] = "foreign_key"
			}
		}
	}
	if len(facts.PrimaryKeyColumns) > 0 {
		node.PrimaryKeyColumns = normalizeNames(facts.PrimaryKeyColumns)
	}
	if facts.BusinessPurpose != "" {
		node.BusinessPurpose = facts.BusinessPurpose
	}
	if facts.ComplexityScore > 0 {
		node.ComplexityScore = facts.ComplexityScore
	}

	g.updateMetricsLocked()
	return nil
}

// ProcedureContext resolves name and returns the stored facts. The
// second return reports whether a non-placeholder node was found; name
// resolution failures are lookups that miss, not errors.
func (g *Graph) ProcedureContext(name string) (ProcedureContext, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	key, ok := g.resolveProcedureLocked(name)
	if !ok {
		observability.LookupMisses.WithLabelValues("procedure").Inc()
		return ProcedureContext{}, false
	}
	node := g.procedures[key]
	return ProcedureContext{
		Name:             node.Name,
		Schema:           node.Schema,
		FullName:         key,
		SourceCode:       node.SourceCode,
		Parameters:       cloneParameters(node.Parameters),
		CalledProcedures: append([]string(nil), node.CalledProcedures...),
		CalledTables:     append([]string(nil), node.CalledTables...),
		FieldsUsed:       cloneFieldsUsed(node.FieldsUsed),
		BusinessLogic:    node.BusinessLogic,
		ComplexityScore:  node.ComplexityScore,
		DependencyLevel:  node.DependencyLevel,
	}, true
}

// TableInfo resolves name and returns the stored table facts.
func (g *Graph) TableInfo(name string) (TableDetails, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	key, ok := g.resolveTableLocked(name)
	if !ok {
		observability.LookupMisses.WithLabelValues("table").Inc()
		return TableDetails{}, false
	}
	node := g.tables[key]
	rels := make(map[string]string, len(node.Relationships))
	for k, v := range node.Relationships {
		rels[k] = v
	}
	return TableDetails{
		Name:              node.Name,
		Schema:            node.Schema,
		FullName:          key,
		Columns:           append([]ColumnInfo(nil), node.Columns...),
		Indexes:           cloneIndexes(node.Indexes),
		ForeignKeys:       cloneForeignKeys(node.ForeignKeys),
		PrimaryKeyColumns: append([]string(nil), node.PrimaryKeyColumns...),
		Relationships:     rels,
		BusinessPurpose:   node.BusinessPurpose,
		ComplexityScore:   node.ComplexityScore,
	}, true
}

// Callers returns the full names of every procedure with a call edge
// pointing at name, sorted. Unknown name yields an empty slice.
func (g *Graph) Callers(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.callersLocked(name)
}

func (g *Graph) callersLocked(name string) []string {
	key, ok := g.resolveProcedureLocked(name)
	if !ok {
		// Placeholders have callers too even though they carry no facts.
		key = strings.ToUpper(strings.TrimSpace(name))
		if _, present := g.procedures[key]; !present {
			return nil
		}
	}
	callers := make([]string, 0, len(g.calledBy[key]))
	for from := range g.calledBy[key] {
		callers = append(callers, from)
	}
	sort.Strings(callers)
	return callers
}

// QueryFieldUsage scans every procedure for recorded usage of
// fieldName. Results are ordered by procedure full name so repeated
// queries are stable.
func (g *Graph) QueryFieldUsage(fieldName string) []FieldUsageHit {
	g.mu.RLock()
	defer g.mu.RUnlock()

	field := strings.ToUpper(strings.TrimSpace(fieldName))
	if field == "" {
		return nil
	}

	hits := make([]FieldUsageHit, 0)
	for _, key := range sortedProcKeys(g.procedures) {
		node := g.procedures[key]
		usage, ok := node.FieldsUsed[field]
		if !ok || usage == nil {
			continue
		}
		hits = append(hits, FieldUsageHit{Procedure: key, Usage: *cloneFieldUsage(usage)})
	}
	return hits
}

// ProcedureNames returns the full names of all non-placeholder
// procedures, sorted.
func (g *Graph) ProcedureNames() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	names := make([]string, 0, len(g.procedures))
	for key, node := range g.procedures {
		if node.Placeholder {
			continue
		}
		names = append(names, key)
	}
	sort.Strings(names)
	return names
}

// TableNames returns the full names of all non-placeholder tables,
// sorted.
func (g *Graph) TableNames() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	names := make([]string, 0, len(g.tables))
	for key, node := range g.tables {
		if node.Placeholder {
			continue
		}
		names = append(names, key)
	}
	sort.Strings(names)
	return names
}

// Statistics summarizes the current graph contents.
func (g *Graph) Statistics() Statistics {
	g.mu.RLock()
	defer g.mu.RUnlock()

	stats := Statistics{}
	var totalComplexity int
	var scored int
	for _, node := range g.procedures {
		if node.Placeholder {
			stats.PlaceholderCount++
			continue
		}
		stats.ProcedureCount++
		if node.ComplexityScore > 0 {
			totalComplexity += node.ComplexityScore
			scored++
		}
		if node.DependencyLevel > stats.MaxDependencyLevel {
			stats.MaxDependencyLevel = node.DependencyLevel
		}
	}
	for _, node := range g.tables {
		if node.Placeholder {
			stats.PlaceholderCount++
			continue
		}
		stats.TableCount++
	}
	for _, targets := range g.calls {
		stats.CallEdges += len(targets)
	}
	for _, targets := range g.accesses {
		stats.AccessEdges += len(targets)
	}
	if scored > 0 {
		stats.AvgComplexity = float64(totalComplexity) / float64(scored)
	}
	return stats
}

// Reset drops all nodes and edges.
func (g *Graph) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.procedures = make(map[string]*ProcedureNode)
	g.tables = make(map[string]*TableNode)
	g.calls = make(map[string]map[string]bool)
	g.calledBy = make(map[string]map[string]bool)
	g.accesses = make(map[string]map[string]bool)
	g.levelsDirty = false
	g.updateMetricsLocked()
}

// --- edge maintenance ---

func (g *Graph) replaceCallEdgesLocked(from string, targets []string) {
	for to := range g.calls[from] {
		delete(g.calledBy[to], from)
		if len(g.calledBy[to]) == 0 {
			delete(g.calledBy, to)
		}
	}
	delete(g.calls, from)

	for _, raw := range targets {
		to := strings.ToUpper(strings.TrimSpace(raw))
		if to == "" || to == from {
			continue
		}
		if _, ok := g.procedures[to]; !ok {
			if alias, found := g.resolveProcedureLocked(to); found {
				to = alias
			} else {
				g.procedures[to] = &ProcedureNode{
					Name:        bareName(to),
					Schema:      schemaOf(to),
					Placeholder: true,
				}
			}
		}
		if g.calls[from] == nil {
			g.calls[from] = make(map[string]bool)
		}
		g.calls[from][to] = true
		if g.calledBy[to] == nil {
			g.calledBy[to] = make(map[string]bool)
		}
		g.calledBy[to][from] = true
	}
}

func (g *Graph) replaceAccessEdgesLocked(from string, targets []string) {
	delete(g.accesses, from)

	for _, raw := range targets {
		to := strings.ToUpper(strings.TrimSpace(raw))
		if to == "" {
			continue
		}
		if _, ok := g.tables[to]; !ok {
			if alias, found := g.resolveTableLocked(to); found {
				to = alias
			} else {
				g.tables[to] = &TableNode{
					Name:        bareName(to),
					Schema:      schemaOf(to),
					Placeholder: true,
				}
			}
		}
		if g.accesses[from] == nil {
			g.accesses[from] = make(map[string]bool)
		}
		g.accesses[from][to] = true
	}
}

// placeholderAliasLocked finds a placeholder whose bare name matches
// key's bare name. Only unambiguous matches are adopted.
func (g *Graph) placeholderAliasLocked(key string) (string, bool) {
	bare := bareName(key)
	match := ""
	for existing, node := range g.procedures {
		if !node.Placeholder {
			continue
		}
		if existing == bare || bareName(existing) == bare {
			if match != "" {
				return "", false
			}
			match = existing
		}
	}
	return match, match != "" && match != key
}

func (g *Graph) tablePlaceholderAliasLocked(key string) (string, bool) {
	bare := bareName(key)
	match := ""
	for existing, node := range g.tables {
		if !node.Placeholder {
			continue
		}
		if existing == bare || bareName(existing) == bare {
			if match != "" {
				return "", false
			}
			match = existing
		}
	}
	return match, match != "" && match != key
}

func (g *Graph) repointProcedureLocked(oldKey, newKey string) {
	node := g.procedures[oldKey]
	delete(g.procedures, oldKey)
	g.procedures[newKey] = node

	for from := range g.calledBy[oldKey] {
		delete(g.calls[from], oldKey)
		g.calls[from][newKey] = true
	}
	if set, ok := g.calledBy[oldKey]; ok {
		delete(g.calledBy, oldKey)
		merged := g.calledBy[newKey]
		if merged == nil {
			merged = make(map[string]bool, len(set))
			g.calledBy[newKey] = merged
		}
		for from := range set {
			merged[from] = true
		}
	}
	if set, ok := g.calls[oldKey]; ok {
		delete(g.calls, oldKey)
		g.calls[newKey] = set
		for to := range set {
			delete(g.calledBy[to], oldKey)
			g.calledBy[to][newKey] = true
		}
	}
}

func (g *Graph) repointTableLocked(oldKey, newKey string) {
	node := g.tables[oldKey]
	delete(g.tables, oldKey)
	g.tables[newKey] = node

	for _, targets := range g.accesses {
		if targets[oldKey] {
			delete(targets, oldKey)
			targets[newKey] = true
		}
	}
}

// --- name resolution ---

// resolveProcedureLocked maps name to a node key. Full-name matches win;
// otherwise a bare name resolves only if exactly one non-placeholder
// procedure carries it. Ambiguity reads as not found.
func (g *Graph) resolveProcedureLocked(name string) (string, bool) {
	key := strings.ToUpper(strings.TrimSpace(name))
	if key == "" {
		return "", false
	}
	if node, ok := g.procedures[key]; ok && !node.Placeholder {
		return key, true
	}
	if strings.Contains(key, ".") {
		return "", false
	}
	match := ""
	for existing, node := range g.procedures {
		if node.Placeholder || bareName(existing) != key {
			continue
		}
		if match != "" {
			return "", false
		}
		match = existing
	}
	return match, match != ""
}

func (g *Graph) resolveTableLocked(name string) (string, bool) {
	key := strings.ToUpper(strings.TrimSpace(name))
	if key == "" {
		return "", false
	}
	if node, ok := g.tables[key]; ok && !node.Placeholder {
		return key, true
	}
	if strings.Contains(key, ".") {
		return "", false
	}
	match := ""
	for existing, node := range g.tables {
		if node.Placeholder || bareName(existing) != key {
			continue
		}
		if match != "" {
			return "", false
		}
		match = existing
	}
	return match, match != ""
}

func (g *Graph) updateMetricsLocked() {
	var procs, tables, placeholders float64
	for _, node := range g.procedures {
		if node.Placeholder {
			placeholders++
		} else {
			procs++
		}
	}
	for _, node := range g.tables {
		if node.Placeholder {
			placeholders++
		} else {
			tables++
		}
	}
	observability.GraphNodes.WithLabelValues("procedure").Set(procs)
	observability.GraphNodes.WithLabelValues("table").Set(tables)
	observability.GraphNodes.WithLabelValues("placeholder").Set(placeholders)

	var callEdges, accessEdges float64
	for _, targets := range g.calls {
		callEdges += float64(len(targets))
	}
	for _, targets := range g.accesses {
		accessEdges += float64(len(targets))
	}
	observability.GraphEdges.WithLabelValues("calls").Set(callEdges)
	observability.GraphEdges.WithLabelValues("accesses").Set(accessEdges)
}

// --- helpers ---

func qualifiedName(schema, name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	schema = strings.ToUpper(strings.TrimSpace(schema))
	if strings.Contains(name, ".") || schema == "" {
		return name
	}
	return schema + "." + name
}

func bareName(key string) string {
	if idx := strings.LastIndex(key, "."); idx >= 0 {
		return key[idx+1:]
	}
	return key
}

func schemaOf(key string) string {
	if idx := strings.LastIndex(key, "."); idx >= 0 {
		return key[:idx]
	}
	return ""
}

func normalizeNames(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.ToUpper(strings.TrimSpace(n))
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func cloneParameters(params []analyzer.Parameter) []analyzer.Parameter {
	if params == nil {
		return nil
	}
	return append([]analyzer.Parameter(nil), params...)
}

func cloneFieldUsage(u *analyzer.FieldUsage) *analyzer.FieldUsage {
	if u == nil {
		return nil
	}
	c := analyzer.FieldUsage{
		FieldName:       u.FieldName,
		ReadBy:          append([]string(nil), u.ReadBy...),
		WrittenBy:       append([]string(nil), u.WrittenBy...),
		Transformations: append([]string(nil), u.Transformations...),
		Operations:      append([]string(nil), u.Operations...),
		Contexts:        append([]analyzer.UsageContext(nil), u.Contexts...),
	}
	return &c
}

func cloneFieldsUsed(fields map[string]*analyzer.FieldUsage) map[string]*analyzer.FieldUsage {
	if fields == nil {
		return nil
	}
	out := make(map[string]*analyzer.FieldUsage, len(fields))
	for k, v := range fields {
		out[strings.ToUpper(k)] = cloneFieldUsage(v)
	}
	return out
}

func cloneIndexes(indexes []IndexInfo) []IndexInfo {
	if indexes == nil {
		return nil
	}
	out := make([]IndexInfo, len(indexes))
	for i, idx := range indexes {
		out[i] = IndexInfo{Name: idx.Name, Columns: append([]string(nil), idx.Columns...), Unique: idx.Unique}
	}
	return out
}

func cloneForeignKeys(fks []ForeignKey) []ForeignKey {
	if fks == nil {
		return nil
	}
	out := make([]ForeignKey, len(fks))
	for i, fk := range fks {
		out[i] = ForeignKey{
			Columns:           append([]string(nil), fk.Columns...),
			ReferencedTable:   fk.ReferencedTable,
			ReferencedColumns: append([]string(nil), fk.ReferencedColumns...),
		}
	}
	return out
}

func sortedProcKeys(m map[string]*ProcedureNode) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
