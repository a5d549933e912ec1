package analyzer

import (
	"strings"
	"testing"
)

const simpleProc = `
CREATE OR REPLACE PROCEDURE get_customer (
    p_customer_id IN NUMBER,
    p_name OUT VARCHAR2
) IS
BEGIN
    SELECT name INTO p_name FROM customers WHERE customer_id = p_customer_id;
END;
`

const complexProc = `
CREATE OR REPLACE PROCEDURE settle_accounts (
    p_account_id IN NUMBER,
    p_mode IN VARCHAR2,
    p_result IN OUT VARCHAR2
) IS
    v_balance NUMBER;
    l_status VARCHAR2(20);
    CURSOR c_entries IS SELECT entry_id, amount FROM ledger_entries WHERE account_id = p_account_id;
BEGIN
    FOR rec IN c_entries LOOP
        IF rec.amount > 0 THEN
            UPDATE accounts SET balance = balance + rec.amount WHERE account_id = p_account_id;
        ELSIF rec.amount < 0 THEN
            CALL fin.apply_penalty(p_account_id);
        END IF;
    END LOOP;

    audit_pkg.log_event(p_account_id, UPPER(l_status));

    INSERT INTO settlement_log (account_id, settled_at) VALUES (p_account_id, SYSDATE);
EXCEPTION
    WHEN OTHERS THEN
        NULL;
END;
`

func TestAnalyze_EmptySource(t *testing.T) {
	for _, src := range []string{"", "   \n\t  "} {
		res := Analyze(src, "EMPTY_PROC")
		if len(res.Procedures) != 0 || len(res.Tables) != 0 || len(res.Fields) != 0 {
			t.Errorf("expected empty result for blank source, got %+v", res)
		}
	}
}

func TestAnalyze_BuiltinsNotProcedures(t *testing.T) {
	src := `SELECT COUNT(*), TO_DATE(x,'fmt') FROM T`
	res := Analyze(src, "REPORT")

	for _, p := range res.Procedures {
		if p == "COUNT" || p == "TO_DATE" {
			t.Errorf("builtin %s extracted as procedure", p)
		}
	}
	if !contains(res.Tables, "T") {
		t.Errorf("expected table T, got %v", res.Tables)
	}
}

func TestAnalyze_ProcedureCalls(t *testing.T) {
	res := Analyze(complexProc, "SETTLE_ACCOUNTS")

	if !contains(res.Procedures, "FIN.APPLY_PENALTY") {
		t.Errorf("expected FIN.APPLY_PENALTY in %v", res.Procedures)
	}
	if !contains(res.Procedures, "AUDIT_PKG.LOG_EVENT") {
		t.Errorf("expected AUDIT_PKG.LOG_EVENT in %v", res.Procedures)
	}
	if contains(res.Procedures, "SETTLE_ACCOUNTS") {
		t.Error("procedure must not list itself as a call")
	}
	if contains(res.Procedures, "SETTLEMENT_LOG") {
		t.Error("insert target extracted as procedure call")
	}
}

func TestAnalyze_Tables(t *testing.T) {
	res := Analyze(complexProc, "SETTLE_ACCOUNTS")

	for _, want := range []string{"LEDGER_ENTRIES", "ACCOUNTS", "SETTLEMENT_LOG"} {
		if !contains(res.Tables, want) {
			t.Errorf("expected table %s in %v", want, res.Tables)
		}
	}
}

func TestAnalyze_Parameters(t *testing.T) {
	res := Analyze(complexProc, "SETTLE_ACCOUNTS")

	if len(res.Parameters) != 3 {
		t.Fatalf("expected 3 parameters, got %d: %+v", len(res.Parameters), res.Parameters)
	}
	wantDirs := []Direction{DirectionIn, DirectionIn, DirectionInOut}
	for i, p := range res.Parameters {
		if p.Direction != wantDirs[i] {
			t.Errorf("param %s: expected direction %s, got %s", p.Name, wantDirs[i], p.Direction)
		}
		if p.Position != i+1 {
			t.Errorf("param %s: expected position %d, got %d", p.Name, i+1, p.Position)
		}
	}
	if res.Parameters[0].Type != "NUMBER" {
		t.Errorf("expected NUMBER type, got %s", res.Parameters[0].Type)
	}
}

func TestAnalyze_DefaultDirectionIsIn(t *testing.T) {
	src := `PROCEDURE p (p_value NUMBER) IS BEGIN NULL; END;`
	res := Analyze(src, "P")
	if len(res.Parameters) != 1 || res.Parameters[0].Direction != DirectionIn {
		t.Fatalf("expected single IN parameter, got %+v", res.Parameters)
	}
}

func TestAnalyze_FieldUsage(t *testing.T) {
	res := Analyze(complexProc, "SETTLE_ACCOUNTS")

	balance, ok := res.Fields["BALANCE"]
	if !ok {
		t.Fatalf("expected BALANCE field, got %v", fieldNames(res))
	}
	if !contains(balance.Operations, OpWrite) {
		t.Errorf("expected write operation on BALANCE, got %v", balance.Operations)
	}
	if !contains(balance.WrittenBy, "SETTLE_ACCOUNTS") {
		t.Errorf("expected SETTLE_ACCOUNTS in WrittenBy, got %v", balance.WrittenBy)
	}

	entry, ok := res.Fields["ENTRY_ID"]
	if !ok {
		t.Fatalf("expected ENTRY_ID field, got %v", fieldNames(res))
	}
	if !contains(entry.Operations, OpRead) {
		t.Errorf("expected read operation on ENTRY_ID, got %v", entry.Operations)
	}

	status, ok := res.Fields["L_STATUS"]
	if !ok {
		t.Fatalf("expected L_STATUS transform, got %v", fieldNames(res))
	}
	if !contains(status.Operations, OpTransform) {
		t.Errorf("expected transform on L_STATUS, got %v", status.Operations)
	}
	if !contains(status.Transformations, "UPPER(L_STATUS)") {
		t.Errorf("unexpected transformations: %v", status.Transformations)
	}
}

func TestAnalyze_FieldContexts(t *testing.T) {
	res := Analyze(simpleProc, "GET_CUSTOMER")

	name, ok := res.Fields["NAME"]
	if !ok {
		t.Fatalf("expected NAME field, got %v", fieldNames(res))
	}
	if len(name.Contexts) == 0 || name.Contexts[0].Kind != "select" {
		t.Errorf("expected select context, got %+v", name.Contexts)
	}
}

func TestAnalyze_Variables(t *testing.T) {
	res := Analyze(complexProc, "SETTLE_ACCOUNTS")
	if !contains(res.Variables, "V_BALANCE") || !contains(res.Variables, "L_STATUS") {
		t.Errorf("expected declared variables, got %v", res.Variables)
	}
}

func TestAnalyze_ComplexityOrdering(t *testing.T) {
	simple := Analyze(simpleProc, "GET_CUSTOMER")
	complexRes := Analyze(complexProc, "SETTLE_ACCOUNTS")

	if simple.ComplexityScore < 1 || simple.ComplexityScore > 10 {
		t.Errorf("simple score out of range: %d", simple.ComplexityScore)
	}
	if complexRes.ComplexityScore < 1 || complexRes.ComplexityScore > 10 {
		t.Errorf("complex score out of range: %d", complexRes.ComplexityScore)
	}
	if complexRes.ComplexityScore <= simple.ComplexityScore {
		t.Errorf("complex procedure must rank strictly higher: complex=%d simple=%d",
			complexRes.ComplexityScore, simple.ComplexityScore)
	}

	// Deterministic across runs.
	if again := Analyze(complexProc, "SETTLE_ACCOUNTS"); again.ComplexityScore != complexRes.ComplexityScore {
		t.Error("complexity score is not deterministic")
	}
}

func TestAnalyze_ControlStructures(t *testing.T) {
	res := Analyze(complexProc, "SETTLE_ACCOUNTS")

	counts := map[string]int{}
	for _, tag := range res.ControlStructures {
		counts[tag]++
	}
	if counts["IF"] == 0 || counts["LOOP"] == 0 || counts["EXCEPTION"] == 0 {
		t.Errorf("missing control structures: %v", counts)
	}
}

func TestAnalyze_MalformedSourceDoesNotPanic(t *testing.T) {
	srcs := []string{
		"SELECT FROM WHERE",
		"BEGIN ((((( END",
		"UPDATE SET = WHERE",
		strings.Repeat("(", 500),
	}
	for _, src := range srcs {
		_ = Analyze(src, "BROKEN")
	}
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}

func fieldNames(res Result) []string {
	names := make([]string, 0, len(res.Fields))
	for name := range res.Fields {
		names = append(names, name)
	}
	return names
}
