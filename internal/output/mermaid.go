package output

import (
	"fmt"
	"sort"
	"strings"

	"procmap/internal/graph"
)

const mermaidStyleBlock = `
    classDef high fill:#ff6b6b,stroke:#c92a2a,color:#fff
    classDef medium fill:#ffd93d,stroke:#f59f00,color:#000
    classDef low fill:#51cf66,stroke:#2b8a3e,color:#000
` + "```\n"

type MermaidGenerator struct {
	graph *graph.Graph
	// MaxNodes caps diagram size; huge corpora render unusably otherwise.
	MaxNodes int
}

func NewMermaidGenerator(g *graph.Graph) *MermaidGenerator {
	return &MermaidGenerator{graph: g, MaxNodes: 50}
}

// Diagram renders the call graph as a Mermaid graph, nodes colored by
// complexity band.
func (m *MermaidGenerator) Diagram() (string, error) {
	names := m.graph.ProcedureNames()
	if len(names) == 0 {
		return "", fmt.Errorf("dependency graph is empty")
	}
	if m.MaxNodes > 0 && len(names) > m.MaxNodes {
		names = names[:m.MaxNodes]
	}
	included := make(map[string]bool, len(names))
	for _, name := range names {
		included[name] = true
	}

	var buf strings.Builder
	buf.WriteString("```mermaid\ngraph TD\n")

	for _, name := range names {
		ctx, ok := m.graph.ProcedureContext(name)
		if !ok {
			continue
		}
		label := fmt.Sprintf("%s\\n[Level %d, Complex: %d]", name, ctx.DependencyLevel, ctx.ComplexityScore)
		fmt.Fprintf(&buf, "    %s[\"%s\"]:::%s\n", mermaidID(name), label, complexityClass(ctx.ComplexityScore))
	}

	for _, name := range names {
		ctx, ok := m.graph.ProcedureContext(name)
		if !ok {
			continue
		}
		for _, callee := range ctx.CalledProcedures {
			calleeCtx, known := m.graph.ProcedureContext(callee)
			if !known || !included[calleeCtx.FullName] {
				continue
			}
			fmt.Fprintf(&buf, "    %s --> %s\n", mermaidID(name), mermaidID(calleeCtx.FullName))
		}
	}

	buf.WriteString(mermaidStyleBlock)
	return buf.String(), nil
}

// Hierarchy renders the dependency-level grouping, lowest level first.
func (m *MermaidGenerator) Hierarchy() (string, error) {
	levels := m.graph.Hierarchy()
	if len(levels) == 0 {
		return "", fmt.Errorf("no procedures to export")
	}

	sortedLevels := make([]int, 0, len(levels))
	for level := range levels {
		sortedLevels = append(sortedLevels, level)
	}
	sort.Ints(sortedLevels)

	var buf strings.Builder
	buf.WriteString("```mermaid\ngraph TD\n")

	for _, level := range sortedLevels {
		for _, name := range levels[level] {
			ctx, ok := m.graph.ProcedureContext(name)
			if !ok {
				continue
			}
			label := fmt.Sprintf("%s\\n[Level %d, Complex: %d]", name, level, ctx.ComplexityScore)
			fmt.Fprintf(&buf, "    %s[\"%s\"]:::%s\n", mermaidID(name), label, complexityClass(ctx.ComplexityScore))

			for _, callee := range ctx.CalledProcedures {
				calleeCtx, known := m.graph.ProcedureContext(callee)
				if !known {
					continue
				}
				fmt.Fprintf(&buf, "    %s --> %s\n", mermaidID(name), mermaidID(calleeCtx.FullName))
			}
		}
	}

	buf.WriteString(mermaidStyleBlock)
	return buf.String(), nil
}

func complexityClass(score int) string {
	switch {
	case score >= 8:
		return "high"
	case score >= 5:
		return "medium"
	default:
		return "low"
	}
}

func mermaidID(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}
