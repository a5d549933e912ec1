package crawler

import (
	"sort"
	"strings"
	"time"

	"procmap/internal/core/errors"
	"procmap/internal/graph"
	"procmap/internal/shared/observability"
)

// traceDepthLimit bounds field tracing; deep call chains past this are
// almost always cycles the visited set has already absorbed.
const traceDepthLimit = 10

// Crawler answers traversal queries over an assembled knowledge graph.
type Crawler struct {
	graph *graph.Graph
}

func New(g *graph.Graph) *Crawler {
	return &Crawler{graph: g}
}

// CrawlProcedure walks CALLS edges from name down to maxDepth and
// returns the nested dependency tree. Every procedure is expanded at
// most once; a revisit stays a leaf, which keeps cyclic call graphs
// terminating. Unknown call targets end their branch without failing
// the crawl. A negative maxDepth is a caller bug and is rejected.
func (c *Crawler) CrawlProcedure(name string, maxDepth int, includeTables bool) (*CrawlResult, error) {
	if maxDepth < 0 {
		return nil, errors.AddContext(
			errors.New(errors.CodeValidationError, "max_depth must not be negative"),
			errors.CtxProcedure, name)
	}

	start := time.Now()
	defer func() {
		observability.CrawlDuration.WithLabelValues("crawl_procedure").Observe(time.Since(start).Seconds())
	}()

	if _, ok := c.graph.ProcedureContext(name); !ok {
		return nil, errors.AddContext(
			errors.New(errors.CodeNotFound, "procedure not found in graph"),
			errors.CtxProcedure, name)
	}

	visitedProcs := make(map[string]bool)
	visitedTables := make(map[string]bool)
	depthReached := 0

	var walk func(target string, depth int) *DependencyNode
	walk = func(target string, depth int) *DependencyNode {
		ctx, ok := c.graph.ProcedureContext(target)
		if !ok {
			return &DependencyNode{
				Type:  "procedure",
				Name:  strings.ToUpper(strings.TrimSpace(target)),
				Depth: depth,
			}
		}

		node := &DependencyNode{
			Type:            "procedure",
			Name:            ctx.FullName,
			Depth:           depth,
			Known:           true,
			ComplexityScore: ctx.ComplexityScore,
		}

		if visitedProcs[ctx.FullName] {
			return node
		}
		visitedProcs[ctx.FullName] = true
		if depth > depthReached {
			depthReached = depth
		}

		if depth >= maxDepth {
			return node
		}

		for _, callee := range ctx.CalledProcedures {
			node.Dependencies = append(node.Dependencies, walk(callee, depth+1))
		}

		if includeTables {
			for _, tableName := range ctx.CalledTables {
				leaf := &DependencyNode{
					Type:  "table",
					Name:  strings.ToUpper(strings.TrimSpace(tableName)),
					Depth: depth + 1,
				}
				if info, found := c.graph.TableInfo(tableName); found {
					leaf.Name = info.FullName
					leaf.Known = true
					leaf.ColumnCount = len(info.Columns)
				}
				if visitedTables[leaf.Name] {
					continue
				}
				visitedTables[leaf.Name] = true
				if leaf.Depth > depthReached {
					depthReached = leaf.Depth
				}
				node.Dependencies = append(node.Dependencies, leaf)
			}
		}

		return node
	}

	tree := walk(name, 0)
	observability.CrawlDepthReached.Observe(float64(depthReached))

	return &CrawlResult{
		DependenciesTree: tree,
		ProceduresFound:  sortedSet(visitedProcs),
		TablesFound:      sortedSet(visitedTables),
		DepthReached:     depthReached,
	}, nil
}

// FindFieldSources returns the places that write fieldName: first the
// procedures whose recorded operations include a write, then the
// tables carrying a column of that name. Order is deterministic
// (procedure results come back sorted from the graph, tables likewise)
// and the list is truncated to maxResults when positive.
func (c *Crawler) FindFieldSources(fieldName string, maxResults int) []FieldSource {
	field := strings.ToUpper(strings.TrimSpace(fieldName))
	if field == "" {
		return nil
	}

	sources := make([]FieldSource, 0)
	for _, hit := range c.graph.QueryFieldUsage(field) {
		if !containsString(hit.Usage.Operations, "write") {
			continue
		}
		sources = append(sources, FieldSource{
			Type:      "procedure",
			Name:      hit.Procedure,
			Field:     field,
			Operation: "write",
		})
	}

	for _, tableName := range c.graph.TableNames() {
		info, ok := c.graph.TableInfo(tableName)
		if !ok {
			continue
		}
		for _, col := range info.Columns {
			if strings.ToUpper(col.Name) != field {
				continue
			}
			sources = append(sources, FieldSource{
				Type:         "table",
				Name:         info.FullName,
				Field:        field,
				DataType:     col.DataType,
				IsPrimaryKey: col.IsPrimaryKey,
			})
		}
	}

	if maxResults > 0 && len(sources) > maxResults {
		sources = sources[:maxResults]
	}
	return sources
}

// ProcedureImpact reports what breaks if name changes: the set of
// procedures that can reach it through CALLS edges within maxDepth
// hops, plus everything it depends on downstream. The impact score is
// twice the caller count plus the summed complexity of those callers,
// so it grows with more callers and with more complex callers.
func (c *Crawler) ProcedureImpact(name string, maxDepth int) (*Impact, error) {
	if maxDepth < 0 {
		return nil, errors.AddContext(
			errors.New(errors.CodeValidationError, "max_depth must not be negative"),
			errors.CtxProcedure, name)
	}

	start := time.Now()
	defer func() {
		observability.CrawlDuration.WithLabelValues("procedure_impact").Observe(time.Since(start).Seconds())
	}()

	root, ok := c.graph.ProcedureContext(name)
	if !ok {
		return nil, errors.AddContext(
			errors.New(errors.CodeNotFound, "procedure not found in graph"),
			errors.CtxProcedure, name)
	}

	// Reverse BFS over callers, depth-bounded and cycle-safe.
	callers := make(map[string]bool)
	frontier := []string{root.FullName}
	for hop := 0; hop < maxDepth && len(frontier) > 0; hop++ {
		next := make([]string, 0)
		for _, current := range frontier {
			for _, caller := range c.graph.Callers(current) {
				if caller == root.FullName || callers[caller] {
					continue
				}
				callers[caller] = true
				next = append(next, caller)
			}
		}
		frontier = next
	}

	score := 2 * len(callers)
	for caller := range callers {
		if ctx, found := c.graph.ProcedureContext(caller); found {
			score += ctx.ComplexityScore
		}
	}

	crawl, err := c.CrawlProcedure(name, maxDepth, true)
	if err != nil {
		return nil, err
	}
	dependencies := make([]string, 0, len(crawl.ProceduresFound))
	for _, proc := range crawl.ProceduresFound {
		if proc != root.FullName {
			dependencies = append(dependencies, proc)
		}
	}

	return &Impact{
		Procedure:          root.FullName,
		Callers:            sortedSet(callers),
		CallerCount:        len(callers),
		Dependencies:       dependencies,
		DependencyCount:    len(dependencies),
		AffectedTables:     crawl.TablesFound,
		AffectedTableCount: len(crawl.TablesFound),
		TotalImpactScore:   score,
	}, nil
}

// TraceFieldFlow reconstructs a field's lineage. It seeds the walk at
// every procedure that writes the field, then follows CALLS edges
// forward recording each read, write and transform encountered, with
// the same revisit guard as CrawlProcedure.
func (c *Crawler) TraceFieldFlow(fieldName string) *TracePath {
	field := strings.ToUpper(strings.TrimSpace(fieldName))

	start := time.Now()
	defer func() {
		observability.CrawlDuration.WithLabelValues("trace_field_flow").Observe(time.Since(start).Seconds())
	}()

	trace := &TracePath{
		FieldName:       field,
		Path:            make([]TraceStep, 0),
		Sources:         make([]string, 0),
		Destinations:    make([]string, 0),
		Transformations: make([]string, 0),
	}
	if field == "" {
		return trace
	}

	visited := make(map[string]bool)

	var follow func(procName string, depth int)
	follow = func(procName string, depth int) {
		if depth > traceDepthLimit {
			return
		}
		ctx, ok := c.graph.ProcedureContext(procName)
		if !ok || visited[ctx.FullName] {
			return
		}
		visited[ctx.FullName] = true

		if usage, used := ctx.FieldsUsed[field]; used && usage != nil {
			statement := ""
			if len(usage.Contexts) > 0 {
				statement = usage.Contexts[0].Statement
			}
			for _, operation := range usage.Operations {
				trace.Path = append(trace.Path, TraceStep{
					Procedure: ctx.FullName,
					Operation: operation,
					Field:     field,
					Statement: statement,
					Depth:     depth,
				})
				if operation == "transform" {
					for _, transform := range usage.Transformations {
						if !containsString(trace.Transformations, transform) {
							trace.Transformations = append(trace.Transformations, transform)
						}
					}
				}
			}
			if containsString(usage.Operations, "write") && !containsString(trace.Sources, ctx.FullName) {
				trace.Sources = append(trace.Sources, ctx.FullName)
			}
			if containsString(usage.Operations, "read") && !containsString(trace.Destinations, ctx.FullName) {
				trace.Destinations = append(trace.Destinations, ctx.FullName)
			}
		}

		// Tables carrying a column of this name are origins too.
		for _, tableName := range ctx.CalledTables {
			info, found := c.graph.TableInfo(tableName)
			if !found {
				continue
			}
			for _, col := range info.Columns {
				if strings.ToUpper(col.Name) != field {
					continue
				}
				origin := info.FullName + " (table)"
				if !containsString(trace.Sources, origin) {
					trace.Sources = append(trace.Sources, origin)
				}
				trace.Path = append(trace.Path, TraceStep{
					Procedure: ctx.FullName,
					Operation: "read_from_table",
					Field:     field,
					Statement: info.FullName,
					Depth:     depth,
				})
			}
		}

		for _, callee := range ctx.CalledProcedures {
			follow(callee, depth+1)
		}
	}

	for _, source := range c.FindFieldSources(field, 0) {
		if source.Type != "procedure" {
			continue
		}
		follow(source.Name, 0)
		for _, caller := range c.graph.Callers(source.Name) {
			follow(caller, 0)
		}
	}

	return trace
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func containsString(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}
