package output

import (
	"fmt"
	"strings"

	"procmap/internal/graph"
)

type TSVGenerator struct {
	graph *graph.Graph
}

func NewTSVGenerator(g *graph.Graph) *TSVGenerator {
	return &TSVGenerator{graph: g}
}

// Generate dumps every edge as one row: procedure calls first, then
// table accesses.
func (t *TSVGenerator) Generate() (string, error) {
	var buf strings.Builder

	buf.WriteString("From\tTo\tEdgeType\tLevel\tComplexity\n")

	for _, name := range t.graph.ProcedureNames() {
		ctx, ok := t.graph.ProcedureContext(name)
		if !ok {
			continue
		}
		for _, callee := range ctx.CalledProcedures {
			target := callee
			if calleeCtx, known := t.graph.ProcedureContext(callee); known {
				target = calleeCtx.FullName
			}
			buf.WriteString(fmt.Sprintf("%s\t%s\tcalls\t%d\t%d\n",
				name, target, ctx.DependencyLevel, ctx.ComplexityScore))
		}
		for _, table := range ctx.CalledTables {
			target := table
			if info, known := t.graph.TableInfo(table); known {
				target = info.FullName
			}
			buf.WriteString(fmt.Sprintf("%s\t%s\taccesses\t%d\t%d\n",
				name, target, ctx.DependencyLevel, ctx.ComplexityScore))
		}
	}

	return buf.String(), nil
}
