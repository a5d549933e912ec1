// Package analyzer extracts structural facts from stored-procedure
// source text. Extraction is lexical on purpose: the corpus mixes
// dialects and half-broken sources, so a permissive regex pass that
// never fails beats a grammar that rejects half the input.
package analyzer

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"procmap/internal/shared/observability"
)

// sqlBuiltins are function and statement keywords that must never be
// mistaken for procedure calls when they appear in call position.
var sqlBuiltins = map[string]bool{
	"TO_DATE": true, "TO_CHAR": true, "TO_NUMBER": true, "NVL": true,
	"NVL2": true, "COALESCE": true, "DECODE": true, "CASE": true,
	"CAST": true, "CONVERT": true, "COUNT": true, "SUM": true,
	"AVG": true, "MAX": true, "MIN": true, "SUBSTR": true,
	"SUBSTRING": true, "TRIM": true, "LTRIM": true, "RTRIM": true,
	"UPPER": true, "LOWER": true, "INITCAP": true, "LENGTH": true,
	"CONCAT": true, "REPLACE": true, "INSTR": true, "POSITION": true,
	"LPAD": true, "RPAD": true, "ROUND": true, "TRUNC": true,
	"FLOOR": true, "CEIL": true, "ABS": true, "MOD": true,
	"POWER": true, "SQRT": true, "SYSDATE": true, "CURRENT_DATE": true,
	"CURRENT_TIMESTAMP": true, "NOW": true, "GETDATE": true,
	"ADD_MONTHS": true, "MONTHS_BETWEEN": true, "NEXT_DAY": true,
	"LAST_DAY": true, "EXTRACT": true, "DATEPART": true,
	"DATEDIFF": true, "ROW_NUMBER": true, "RANK": true,
	"DENSE_RANK": true, "LAG": true, "LEAD": true, "FIRST_VALUE": true,
	"LAST_VALUE": true, "LISTAGG": true, "STRING_AGG": true,
	"GROUP_CONCAT": true,
	// Statement keywords that precede '(' in ordinary SQL.
	"VALUES": true, "EXISTS": true, "IN": true, "IF": true,
	"ELSIF": true, "WHILE": true, "FOR": true, "RETURNING": true,
	"AND": true, "OR": true, "NOT": true, "WHERE": true, "ANY": true,
	"ALL": true, "SOME": true, "USING": true, "IMMEDIATE": true,
	"RAISE_APPLICATION_ERROR": true,
	// Type names used in declarations: NAME TYPE(len).
	"VARCHAR2": true, "VARCHAR": true, "NVARCHAR2": true, "CHAR": true,
	"NCHAR": true, "NUMBER": true, "DECIMAL": true, "NUMERIC": true,
	"RAW": true, "TIMESTAMP": true, "INTERVAL": true,
}

const identPattern = `[a-zA-Z_][a-zA-Z0-9_]*(?:\.[a-zA-Z_][a-zA-Z0-9_]*)?`

var (
	reExecCall  = regexp.MustCompile(`(?i)\b(?:EXECUTE|EXEC|CALL)\s+(` + identPattern + `)`)
	reCallParen = regexp.MustCompile(`(?i)(?:^|[^a-zA-Z0-9_.])(` + identPattern + `)\s*\(`)
	reDeclared  = regexp.MustCompile(`(?i)\b(?:PROCEDURE|FUNCTION)\s+(` + identPattern + `)`)

	reTableRefs = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bFROM\s+(` + identPattern + `)`),
		regexp.MustCompile(`(?i)\bJOIN\s+(` + identPattern + `)`),
		regexp.MustCompile(`(?i)\bINTO\s+(` + identPattern + `)`),
		regexp.MustCompile(`(?i)\bUPDATE\s+(` + identPattern + `)`),
		regexp.MustCompile(`(?i)\bDELETE\s+FROM\s+(` + identPattern + `)`),
		regexp.MustCompile(`(?i)\bMERGE\s+INTO\s+(` + identPattern + `)`),
	}

	reSelect    = regexp.MustCompile(`(?is)\bSELECT\s+(.*?)\s+FROM\b`)
	rePredicate = regexp.MustCompile(`(?i)\b(?:WHERE|AND|OR|ON)\s+(` + identPattern + `)\s*(?:=|<>|!=|<=|>=|<|>|\bLIKE\b|\bIN\b|\bIS\b|\bBETWEEN\b)`)
	reUpdateSet = regexp.MustCompile(`(?is)\bUPDATE\s+.*?\bSET\s+(.*?)(?:\bWHERE\b|;|$)`)
	reInsert    = regexp.MustCompile(`(?i)\bINSERT\s+INTO\s+` + identPattern + `\s*\(([^)]*)\)`)

	reParamList = regexp.MustCompile(`(?is)\b(?:PROCEDURE|FUNCTION)\s+` + identPattern + `\s*\((.*?)\)\s*(?:IS|AS|RETURN|;)`)
	reVariable  = regexp.MustCompile(`(?i)\b([vl]_[a-zA-Z0-9_]+)\s+[a-zA-Z_][\w(),.%]*\s*(?::=[^;]*)?;`)

	reIdent = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)
)

// transformFuncs are the functions whose first argument counts as a
// transformed field.
var transformFuncs = []string{
	"UPPER", "LOWER", "TRIM", "SUBSTR", "CONCAT", "REPLACE", "CAST",
	"NVL", "TO_CHAR", "TO_DATE", "ROUND",
}

var transformRegexps = func() map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(transformFuncs))
	for _, fn := range transformFuncs {
		out[fn] = regexp.MustCompile(`(?i)\b` + fn + `\s*\(\s*([a-zA-Z_][a-zA-Z0-9_]*)`)
	}
	return out
}()

var controlStructures = []struct {
	re  *regexp.Regexp
	tag string
}{
	{regexp.MustCompile(`(?i)\bIF\b`), "IF"},
	{regexp.MustCompile(`(?i)\bLOOP\b`), "LOOP"},
	{regexp.MustCompile(`(?i)\bFOR\b`), "FOR"},
	{regexp.MustCompile(`(?i)\bWHILE\b`), "WHILE"},
	{regexp.MustCompile(`(?i)\bCASE\b`), "CASE"},
	{regexp.MustCompile(`(?i)\bEXCEPTION\b`), "EXCEPTION"},
	{regexp.MustCompile(`(?i)\bBEGIN\b`), "BEGIN"},
}

var reCursor = regexp.MustCompile(`(?i)\bCURSOR\b`)

// Analyze runs the full lexical pass over one procedure's source.
// Malformed statements yield no facts; empty source yields an empty
// Result. Analyze never returns an error.
func Analyze(source, procName string) Result {
	start := time.Now()
	defer func() {
		observability.AnalysisDuration.WithLabelValues("static").Observe(time.Since(start).Seconds())
	}()

	if strings.TrimSpace(source) == "" {
		return Result{Fields: map[string]*FieldUsage{}}
	}

	tables := extractTables(source)
	res := Result{
		Procedures:        extractProcedures(source, procName, tables),
		Tables:            tables,
		Fields:            extractFieldUsage(source, procName),
		Parameters:        extractParameters(source),
		Variables:         extractVariables(source),
		ControlStructures: extractControlStructures(source),
	}
	res.ComplexityScore = complexityScore(source)
	return res
}

func extractProcedures(source, procName string, tables []string) []string {
	self := bareName(strings.ToUpper(procName))

	// Names declared inside the source are definitions, not calls, and
	// a table followed by a column list is not a call either.
	declared := map[string]bool{self: true}
	for _, m := range reDeclared.FindAllStringSubmatch(source, -1) {
		declared[strings.ToUpper(m[1])] = true
	}
	tableNames := make(map[string]bool, len(tables))
	for _, t := range tables {
		tableNames[t] = true
	}

	seen := make(map[string]bool)
	add := func(name string) {
		name = strings.ToUpper(name)
		if declared[name] || declared[bareName(name)] || tableNames[name] {
			return
		}
		if !strings.Contains(name, ".") && sqlBuiltins[name] {
			return
		}
		seen[name] = true
	}

	for _, m := range reExecCall.FindAllStringSubmatch(source, -1) {
		add(m[1])
	}
	for _, m := range reCallParen.FindAllStringSubmatch(source, -1) {
		add(m[1])
	}

	return sortedKeys(seen)
}

func extractTables(source string) []string {
	seen := make(map[string]bool)
	for _, re := range reTableRefs {
		for _, m := range re.FindAllStringSubmatch(source, -1) {
			seen[strings.ToUpper(m[1])] = true
		}
	}
	return sortedKeys(seen)
}

func extractFieldUsage(source, procName string) map[string]*FieldUsage {
	fields := make(map[string]*FieldUsage)
	proc := strings.ToUpper(procName)

	usage := func(name string) *FieldUsage {
		fu, ok := fields[name]
		if !ok {
			fu = &FieldUsage{FieldName: name}
			fields[name] = fu
		}
		return fu
	}

	record := func(name, op, kind, stmt string) {
		fu := usage(name)
		fu.Operations = append(fu.Operations, op)
		fu.Contexts = append(fu.Contexts, UsageContext{Kind: kind, Statement: clip(stmt, 100)})
		switch op {
		case OpRead:
			fu.ReadBy = appendUnique(fu.ReadBy, proc)
		case OpWrite:
			fu.WrittenBy = appendUnique(fu.WrittenBy, proc)
		}
	}

	for _, m := range reSelect.FindAllStringSubmatch(source, -1) {
		for _, expr := range splitTopLevel(m[1]) {
			if name := cleanFieldName(expr); name != "" && name != "*" {
				record(name, OpRead, "select", m[0])
			}
		}
	}

	for _, m := range rePredicate.FindAllStringSubmatch(source, -1) {
		if name := cleanFieldName(m[1]); name != "" {
			record(name, OpRead, "where", m[0])
		}
	}

	for _, m := range reUpdateSet.FindAllStringSubmatch(source, -1) {
		for _, assignment := range splitTopLevel(m[1]) {
			lhs, _, ok := strings.Cut(assignment, "=")
			if !ok {
				continue
			}
			if name := cleanFieldName(lhs); name != "" {
				record(name, OpWrite, "update", m[0])
			}
		}
	}

	for _, m := range reInsert.FindAllStringSubmatch(source, -1) {
		for _, col := range strings.Split(m[1], ",") {
			name := strings.ToUpper(strings.TrimSpace(col))
			if reIdent.MatchString(name) && !sqlBuiltins[name] {
				record(name, OpWrite, "insert", m[0])
			}
		}
	}

	for _, fn := range transformFuncs {
		re := transformRegexps[fn]
		for _, m := range re.FindAllStringSubmatch(source, -1) {
			name := strings.ToUpper(m[1])
			if !reIdent.MatchString(name) || sqlBuiltins[name] {
				continue
			}
			fu := usage(name)
			fu.Operations = append(fu.Operations, OpTransform)
			fu.Transformations = append(fu.Transformations, fn+"("+name+")")
		}
	}

	return fields
}

func extractParameters(source string) []Parameter {
	m := reParamList.FindStringSubmatch(source)
	if m == nil {
		return nil
	}

	var params []Parameter
	for idx, decl := range splitTopLevel(m[1]) {
		decl = strings.TrimSpace(decl)
		if decl == "" {
			continue
		}
		// Drop DEFAULT / := clauses before tokenizing.
		if i := strings.Index(decl, ":="); i >= 0 {
			decl = decl[:i]
		}
		if i := strings.Index(strings.ToUpper(decl), " DEFAULT "); i >= 0 {
			decl = decl[:i]
		}

		tokens := strings.Fields(decl)
		if len(tokens) < 2 {
			continue
		}

		direction := DirectionIn
		typeTokens := tokens[1:]
		switch {
		case len(typeTokens) >= 2 && strings.EqualFold(typeTokens[0], "IN") && strings.EqualFold(typeTokens[1], "OUT"):
			direction = DirectionInOut
			typeTokens = typeTokens[2:]
		case strings.EqualFold(typeTokens[0], "IN"):
			typeTokens = typeTokens[1:]
		case strings.EqualFold(typeTokens[0], "OUT"):
			direction = DirectionOut
			typeTokens = typeTokens[1:]
		case strings.EqualFold(typeTokens[0], "INOUT"):
			direction = DirectionInOut
			typeTokens = typeTokens[1:]
		}

		params = append(params, Parameter{
			Name:      tokens[0],
			Direction: direction,
			Type:      strings.ToUpper(strings.Join(typeTokens, " ")),
			Position:  idx + 1,
		})
	}
	return params
}

func extractVariables(source string) []string {
	seen := make(map[string]bool)
	for _, m := range reVariable.FindAllStringSubmatch(source, -1) {
		seen[strings.ToUpper(m[1])] = true
	}
	return sortedKeys(seen)
}

func extractControlStructures(source string) []string {
	var tags []string
	for _, cs := range controlStructures {
		for range cs.re.FindAllString(source, -1) {
			tags = append(tags, cs.tag)
		}
	}
	return tags
}

// complexityScore is a deterministic 1..10 heuristic: longer sources
// and denser control structure rank higher. The exact weights are a
// documented choice; only the ordering matters to callers.
func complexityScore(source string) int {
	score := 1.0

	lines := strings.Count(source, "\n") + 1
	bonus := lines / 50
	if bonus > 3 {
		bonus = 3
	}
	score += float64(bonus)

	count := func(re *regexp.Regexp) float64 {
		return float64(len(re.FindAllString(source, -1)))
	}
	score += count(controlStructures[0].re) * 0.5 // IF
	score += count(controlStructures[1].re) * 0.7 // LOOP
	score += count(reCursor) * 0.8
	score += count(controlStructures[5].re) * 0.3 // EXCEPTION

	if score > 10 {
		return 10
	}
	return int(score)
}

func bareName(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}

// splitTopLevel splits on commas that are not inside parentheses.
func splitTopLevel(s string) []string {
	var parts []string
	var current strings.Builder
	depth := 0
	for _, r := range s {
		switch {
		case r == '(':
			depth++
			current.WriteRune(r)
		case r == ')':
			depth--
			current.WriteRune(r)
		case r == ',' && depth == 0:
			parts = append(parts, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		parts = append(parts, strings.TrimSpace(current.String()))
	}
	return parts
}

// cleanFieldName reduces a projection or assignment expression to a
// bare column identifier, or "" when the expression is not one.
func cleanFieldName(expr string) string {
	expr = strings.TrimSpace(expr)

	if i := strings.Index(strings.ToUpper(expr), " AS "); i >= 0 {
		expr = expr[:i]
	} else if i := strings.IndexByte(expr, ' '); i >= 0 {
		expr = expr[:i]
	}

	// Unwrap a single function call: FUNC(col) -> col.
	if open := strings.IndexByte(expr, '('); open >= 0 {
		inner := expr[open+1:]
		if end := strings.IndexByte(inner, ')'); end >= 0 {
			inner = inner[:end]
		}
		if i := strings.IndexByte(inner, ','); i >= 0 {
			inner = inner[:i]
		}
		expr = inner
	}

	// Strip table alias prefix.
	if i := strings.LastIndexByte(expr, '.'); i >= 0 {
		expr = expr[i+1:]
	}

	name := strings.ToUpper(strings.TrimSpace(expr))
	if name == "*" {
		return "*"
	}
	if !reIdent.MatchString(name) || sqlBuiltins[name] {
		return ""
	}
	return name
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
