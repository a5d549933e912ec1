package output

import (
	"strings"
	"testing"

	"procmap/internal/graph"
)

func exportGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.NewGraph()
	facts := []graph.ProcedureFacts{
		{Name: "SETTLE", Schema: "FIN", CalledProcedures: []string{"FIN.LOG_EVENT"}, CalledTables: []string{"FIN.LEDGER"}, ComplexityScore: 9},
		{Name: "LOG_EVENT", Schema: "FIN", ComplexityScore: 2},
	}
	for _, f := range facts {
		if err := g.AddProcedure(f); err != nil {
			t.Fatal(err)
		}
	}
	g.RecomputeLevels()
	return g
}

func TestMermaidDiagram(t *testing.T) {
	out, err := NewMermaidGenerator(exportGraph(t)).Diagram()
	if err != nil {
		t.Fatalf("Diagram: %v", err)
	}

	for _, want := range []string{
		"graph TD",
		`FIN_SETTLE["FIN.SETTLE\n[Level 1, Complex: 9]"]:::high`,
		`FIN_LOG_EVENT["FIN.LOG_EVENT\n[Level 0, Complex: 2]"]:::low`,
		"FIN_SETTLE --> FIN_LOG_EVENT",
		"classDef high",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("diagram missing %q:\n%s", want, out)
		}
	}
}

func TestMermaidDiagramEmptyGraph(t *testing.T) {
	if _, err := NewMermaidGenerator(graph.NewGraph()).Diagram(); err == nil {
		t.Error("expected error for empty graph")
	}
}

func TestMermaidHierarchy(t *testing.T) {
	out, err := NewMermaidGenerator(exportGraph(t)).Hierarchy()
	if err != nil {
		t.Fatalf("Hierarchy: %v", err)
	}

	// Level 0 nodes must come before level 1 nodes.
	low := strings.Index(out, "FIN_LOG_EVENT[")
	high := strings.Index(out, "FIN_SETTLE[")
	if low == -1 || high == -1 || low > high {
		t.Errorf("hierarchy ordering wrong:\n%s", out)
	}
}

func TestTSV(t *testing.T) {
	out, err := NewTSVGenerator(exportGraph(t)).Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2 edges:\n%s", len(lines), out)
	}
	if lines[0] != "From\tTo\tEdgeType\tLevel\tComplexity" {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(out, "FIN.SETTLE\tFIN.LOG_EVENT\tcalls\t1\t9") {
		t.Errorf("missing call edge:\n%s", out)
	}
	if !strings.Contains(out, "FIN.SETTLE\tFIN.LEDGER\taccesses\t1\t9") {
		t.Errorf("missing access edge:\n%s", out)
	}
}
