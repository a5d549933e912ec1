package graph

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"procmap/internal/analyzer"
)

func addProc(t *testing.T, g *Graph, facts ProcedureFacts) {
	t.Helper()
	if err := g.AddProcedure(facts); err != nil {
		t.Fatalf("AddProcedure(%s): %v", facts.Name, err)
	}
}

func TestAddProcedureValidation(t *testing.T) {
	g := NewGraph()
	if err := g.AddProcedure(ProcedureFacts{Name: "  "}); err == nil {
		t.Fatal("expected error for blank procedure name")
	}
}

func TestAddProcedureMergeSemantics(t *testing.T) {
	g := NewGraph()
	addProc(t, g, ProcedureFacts{
		Name:             "UPDATE_BALANCE",
		Schema:           "FIN",
		SourceCode:       "BEGIN NULL; END;",
		CalledProcedures: []string{"FIN.LOG_EVENT"},
		ComplexityScore:  4,
	})

	// Re-registering with empty fields must not erase prior data.
	addProc(t, g, ProcedureFacts{Name: "UPDATE_BALANCE", Schema: "FIN", BusinessLogic: "posts balance deltas"})

	ctx, ok := g.ProcedureContext("FIN.UPDATE_BALANCE")
	if !ok {
		t.Fatal("procedure not found after merge")
	}
	if ctx.SourceCode != "BEGIN NULL; END;" {
		t.Errorf("source erased by merge: %q", ctx.SourceCode)
	}
	if ctx.BusinessLogic != "posts balance deltas" {
		t.Errorf("business logic not merged: %q", ctx.BusinessLogic)
	}
	if ctx.ComplexityScore != 4 {
		t.Errorf("complexity erased by merge: %d", ctx.ComplexityScore)
	}
	if !reflect.DeepEqual(ctx.CalledProcedures, []string{"FIN.LOG_EVENT"}) {
		t.Errorf("call list erased by merge: %v", ctx.CalledProcedures)
	}

	// Non-empty incoming fields overwrite.
	addProc(t, g, ProcedureFacts{Name: "UPDATE_BALANCE", Schema: "FIN", ComplexityScore: 7})
	ctx, _ = g.ProcedureContext("FIN.UPDATE_BALANCE")
	if ctx.ComplexityScore != 7 {
		t.Errorf("complexity not overwritten: %d", ctx.ComplexityScore)
	}
}

func TestAddProcedureIdempotent(t *testing.T) {
	facts := ProcedureFacts{
		Name:             "SETTLE",
		Schema:           "FIN",
		CalledProcedures: []string{"FIN.LOG_EVENT"},
		CalledTables:     []string{"FIN.LEDGER"},
		ComplexityScore:  3,
	}

	g := NewGraph()
	addProc(t, g, facts)
	before := g.Statistics()
	ctxBefore, _ := g.ProcedureContext("FIN.SETTLE")

	addProc(t, g, facts)
	after := g.Statistics()
	ctxAfter, _ := g.ProcedureContext("FIN.SETTLE")

	if !reflect.DeepEqual(before, after) {
		t.Errorf("statistics changed on identical re-registration:\n%+v\n%+v", before, after)
	}
	if !reflect.DeepEqual(ctxBefore, ctxAfter) {
		t.Errorf("context changed on identical re-registration")
	}
}

func TestPlaceholderBackfill(t *testing.T) {
	g := NewGraph()
	addProc(t, g, ProcedureFacts{Name: "CALLER", Schema: "HR", CalledProcedures: []string{"HELPER"}})

	// The bare target is a placeholder: it has callers but no context.
	if _, ok := g.ProcedureContext("HELPER"); ok {
		t.Fatal("placeholder should not resolve to a context")
	}
	if callers := g.Callers("HELPER"); len(callers) != 1 || callers[0] != "HR.CALLER" {
		t.Fatalf("placeholder callers = %v", callers)
	}

	// Real facts arrive under the qualified name; the placeholder's
	// incoming edges must survive.
	addProc(t, g, ProcedureFacts{Name: "HELPER", Schema: "HR", ComplexityScore: 2})

	ctx, ok := g.ProcedureContext("HR.HELPER")
	if !ok {
		t.Fatal("backfilled procedure not found")
	}
	if ctx.ComplexityScore != 2 {
		t.Errorf("facts not applied on backfill: %+v", ctx)
	}
	if callers := g.Callers("HR.HELPER"); len(callers) != 1 || callers[0] != "HR.CALLER" {
		t.Errorf("callers lost during backfill: %v", callers)
	}
	if g.Statistics().PlaceholderCount != 0 {
		t.Errorf("placeholder survived backfill: %+v", g.Statistics())
	}
}

func TestBareNameResolution(t *testing.T) {
	g := NewGraph()
	addProc(t, g, ProcedureFacts{Name: "REPORT", Schema: "HR"})

	if _, ok := g.ProcedureContext("report"); !ok {
		t.Error("unique bare name should resolve")
	}

	// A second schema makes the bare name ambiguous; ambiguity reads
	// as not found rather than picking a winner.
	addProc(t, g, ProcedureFacts{Name: "REPORT", Schema: "FIN"})
	if _, ok := g.ProcedureContext("REPORT"); ok {
		t.Error("ambiguous bare name must not resolve")
	}
	if _, ok := g.ProcedureContext("HR.REPORT"); !ok {
		t.Error("full name must still resolve despite bare ambiguity")
	}
}

func TestCallersReverseLookup(t *testing.T) {
	g := NewGraph()
	addProc(t, g, ProcedureFacts{Name: "A", Schema: "S", CalledProcedures: []string{"S.C"}})
	addProc(t, g, ProcedureFacts{Name: "B", Schema: "S", CalledProcedures: []string{"S.C"}})
	addProc(t, g, ProcedureFacts{Name: "C", Schema: "S"})

	got := g.Callers("S.C")
	want := []string{"S.A", "S.B"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Callers(S.C) = %v, want %v", got, want)
	}

	// Every caller's call list must contain the target.
	for _, caller := range got {
		ctx, ok := g.ProcedureContext(caller)
		if !ok {
			t.Fatalf("caller %s not found", caller)
		}
		found := false
		for _, callee := range ctx.CalledProcedures {
			if callee == "S.C" {
				found = true
			}
		}
		if !found {
			t.Errorf("%s listed as caller but call list = %v", caller, ctx.CalledProcedures)
		}
	}

	if callers := g.Callers("S.NOPE"); len(callers) != 0 {
		t.Errorf("unknown procedure has callers: %v", callers)
	}
}

func TestQueryFieldUsage(t *testing.T) {
	g := NewGraph()
	addProc(t, g, ProcedureFacts{
		Name:   "WRITE_IT",
		Schema: "S",
		FieldsUsed: map[string]*analyzer.FieldUsage{
			"BALANCE": {FieldName: "BALANCE", Operations: []string{"write"}, WrittenBy: []string{"S.WRITE_IT"}},
		},
	})
	addProc(t, g, ProcedureFacts{
		Name:   "READ_IT",
		Schema: "S",
		FieldsUsed: map[string]*analyzer.FieldUsage{
			"BALANCE": {FieldName: "BALANCE", Operations: []string{"read"}},
		},
	})
	addProc(t, g, ProcedureFacts{Name: "UNRELATED", Schema: "S"})

	hits := g.QueryFieldUsage("balance")
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	// Ordered by procedure full name.
	if hits[0].Procedure != "S.READ_IT" || hits[1].Procedure != "S.WRITE_IT" {
		t.Errorf("hit order = %s, %s", hits[0].Procedure, hits[1].Procedure)
	}

	if hits := g.QueryFieldUsage("NO_SUCH_FIELD"); len(hits) != 0 {
		t.Errorf("unknown field returned hits: %v", hits)
	}
}

func TestDependencyLevels(t *testing.T) {
	g := NewGraph()
	addProc(t, g, ProcedureFacts{Name: "TOP", Schema: "S", CalledProcedures: []string{"S.MID"}})
	addProc(t, g, ProcedureFacts{Name: "MID", Schema: "S", CalledProcedures: []string{"S.LEAF"}})
	addProc(t, g, ProcedureFacts{Name: "LEAF", Schema: "S"})
	g.RecomputeLevels()

	wantLevels := map[string]int{"S.LEAF": 0, "S.MID": 1, "S.TOP": 2}
	for name, want := range wantLevels {
		ctx, ok := g.ProcedureContext(name)
		if !ok {
			t.Fatalf("%s not found", name)
		}
		if ctx.DependencyLevel != want {
			t.Errorf("%s level = %d, want %d", name, ctx.DependencyLevel, want)
		}
	}

	hier := g.Hierarchy()
	if !reflect.DeepEqual(hier[1], []string{"S.MID"}) {
		t.Errorf("hierarchy level 1 = %v", hier[1])
	}
}

func TestDependencyLevelsWithCycle(t *testing.T) {
	g := NewGraph()
	addProc(t, g, ProcedureFacts{Name: "A", Schema: "S", CalledProcedures: []string{"S.B"}})
	addProc(t, g, ProcedureFacts{Name: "B", Schema: "S", CalledProcedures: []string{"S.A", "S.LEAF"}})
	addProc(t, g, ProcedureFacts{Name: "LEAF", Schema: "S"})
	g.RecomputeLevels()

	a, _ := g.ProcedureContext("S.A")
	b, _ := g.ProcedureContext("S.B")
	leaf, _ := g.ProcedureContext("S.LEAF")

	if a.DependencyLevel != b.DependencyLevel {
		t.Errorf("cycle members diverged: A=%d B=%d", a.DependencyLevel, b.DependencyLevel)
	}
	if leaf.DependencyLevel != 0 {
		t.Errorf("leaf level = %d, want 0", leaf.DependencyLevel)
	}
	if a.DependencyLevel != 1 {
		t.Errorf("cycle level = %d, want 1", a.DependencyLevel)
	}
}

func TestDetectCycles(t *testing.T) {
	g := NewGraph()
	addProc(t, g, ProcedureFacts{Name: "A", Schema: "S", CalledProcedures: []string{"S.B"}})
	addProc(t, g, ProcedureFacts{Name: "B", Schema: "S", CalledProcedures: []string{"S.A"}})
	addProc(t, g, ProcedureFacts{Name: "LONER", Schema: "S"})

	cycles := g.DetectCycles()
	if len(cycles) != 1 {
		t.Fatalf("got %d cycles, want 1: %v", len(cycles), cycles)
	}
	if len(cycles[0]) != 2 {
		t.Errorf("cycle = %v, want two members", cycles[0])
	}
}

func TestTableRegistration(t *testing.T) {
	g := NewGraph()
	addProc(t, g, ProcedureFacts{Name: "LOADER", Schema: "S", CalledTables: []string{"S.ORDERS"}})

	// Accessed-only tables exist as placeholders without details.
	if _, ok := g.TableInfo("S.ORDERS"); ok {
		t.Fatal("placeholder table should not resolve")
	}

	err := g.AddTable(TableFacts{
		Name:   "ORDERS",
		Schema: "S",
		Columns: []ColumnInfo{
			{Name: "ID", DataType: "NUMBER", IsPrimaryKey: true},
			{Name: "CUSTOMER_ID", DataType: "NUMBER", IsForeignKey: true, ForeignKeyTable: "S.CUSTOMERS"},
		},
		ForeignKeys:       []ForeignKey{{Columns: []string{"CUSTOMER_ID"}, ReferencedTable: "S.CUSTOMERS"}},
		PrimaryKeyColumns: []string{"ID"},
	})
	if err != nil {
		t.Fatalf("AddTable: %v", err)
	}

	info, ok := g.TableInfo("orders")
	if !ok {
		t.Fatal("table not found by bare name")
	}
	if info.FullName != "S.ORDERS" {
		t.Errorf("full name = %s", info.FullName)
	}
	if info.Relationships["S.CUSTOMERS"] != "foreign_key" {
		t.Errorf("relationships = %v", info.Relationships)
	}
	if g.Statistics().TableCount != 1 {
		t.Errorf("table count = %d", g.Statistics().TableCount)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	g := NewGraph()
	addProc(t, g, ProcedureFacts{
		Name:             "TOP",
		Schema:           "S",
		SourceCode:       "BEGIN helper; END;",
		Parameters:       []analyzer.Parameter{{Name: "P_ID", Direction: analyzer.DirectionIn, Type: "NUMBER", Position: 0}},
		CalledProcedures: []string{"S.HELPER"},
		CalledTables:     []string{"S.LEDGER"},
		FieldsUsed: map[string]*analyzer.FieldUsage{
			"BALANCE": {FieldName: "BALANCE", Operations: []string{"read"}},
		},
		ComplexityScore: 5,
	})
	addProc(t, g, ProcedureFacts{Name: "HELPER", Schema: "S", ComplexityScore: 2})
	if err := g.AddTable(TableFacts{Name: "LEDGER", Schema: "S"}); err != nil {
		t.Fatalf("AddTable: %v", err)
	}
	g.RecomputeLevels()

	path := filepath.Join(t.TempDir(), "graph.json")
	if err := g.SaveSnapshot(path); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	restored := NewGraph()
	ok, err := restored.LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if !ok {
		t.Fatal("snapshot reported missing")
	}

	for _, name := range []string{"S.TOP", "S.HELPER"} {
		orig, _ := g.ProcedureContext(name)
		back, okCtx := restored.ProcedureContext(name)
		if !okCtx {
			t.Fatalf("%s missing after reload", name)
		}
		if !reflect.DeepEqual(orig, back) {
			t.Errorf("%s changed across snapshot:\n%+v\n%+v", name, orig, back)
		}
	}
	if !reflect.DeepEqual(g.Callers("S.HELPER"), restored.Callers("S.HELPER")) {
		t.Errorf("callers changed across snapshot")
	}
	if !reflect.DeepEqual(g.Statistics(), restored.Statistics()) {
		t.Errorf("statistics changed across snapshot:\n%+v\n%+v", g.Statistics(), restored.Statistics())
	}
}

func TestLoadSnapshotMisses(t *testing.T) {
	g := NewGraph()

	ok, err := g.LoadSnapshot(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil || ok {
		t.Errorf("missing file: ok=%v err=%v, want cache miss", ok, err)
	}

	// A snapshot written by a different version is a cache miss, not
	// an error, and must leave the graph untouched.
	stale := filepath.Join(t.TempDir(), "stale.json")
	if err := os.WriteFile(stale, []byte(`{"version": 99, "procedures": {}, "tables": {}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	addProc(t, g, ProcedureFacts{Name: "KEEP", Schema: "S"})
	ok, err = g.LoadSnapshot(stale)
	if err != nil || ok {
		t.Errorf("version mismatch: ok=%v err=%v, want cache miss", ok, err)
	}
	if _, found := g.ProcedureContext("S.KEEP"); !found {
		t.Error("graph contents lost on version mismatch")
	}
}

func TestReset(t *testing.T) {
	g := NewGraph()
	addProc(t, g, ProcedureFacts{Name: "X", Schema: "S", CalledTables: []string{"S.T"}})
	g.Reset()

	stats := g.Statistics()
	if stats.ProcedureCount != 0 || stats.TableCount != 0 || stats.PlaceholderCount != 0 {
		t.Errorf("graph not empty after reset: %+v", stats)
	}
}
