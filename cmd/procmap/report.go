package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"procmap/internal/app"
	"procmap/internal/crawler"
)

func formatCrawlResult(result *crawler.CrawlResult) string {
	var b strings.Builder

	b.WriteString("Dependency Crawl\n")
	b.WriteString("================\n")
	b.WriteString(fmt.Sprintf("Depth reached: %d\n\n", result.DepthReached))

	writeDependencyNode(&b, result.DependenciesTree)

	b.WriteString(fmt.Sprintf("\nProcedures (%d)\n", len(result.ProceduresFound)))
	for _, name := range result.ProceduresFound {
		b.WriteString(fmt.Sprintf("- %s\n", name))
	}

	if len(result.TablesFound) > 0 {
		b.WriteString(fmt.Sprintf("\nTables (%d)\n", len(result.TablesFound)))
		for _, name := range result.TablesFound {
			b.WriteString(fmt.Sprintf("- %s\n", name))
		}
	}

	return b.String()
}

func writeDependencyNode(b *strings.Builder, node *crawler.DependencyNode) {
	if node == nil {
		return
	}
	indent := strings.Repeat("  ", node.Depth)
	marker := ""
	if !node.Known {
		marker = " (unknown)"
	}
	if node.Type == "table" {
		b.WriteString(fmt.Sprintf("%s[table] %s%s\n", indent, node.Name, marker))
		return
	}
	b.WriteString(fmt.Sprintf("%s%s%s\n", indent, node.Name, marker))
	for _, dep := range node.Dependencies {
		writeDependencyNode(b, dep)
	}
}

func formatImpactReport(report *crawler.Impact) string {
	var b strings.Builder

	b.WriteString("Impact Analysis\n")
	b.WriteString("===============\n")
	b.WriteString(fmt.Sprintf("Procedure: %s\n", report.Procedure))
	b.WriteString(fmt.Sprintf("Impact score: %d\n\n", report.TotalImpactScore))

	b.WriteString(fmt.Sprintf("Callers (%d)\n", report.CallerCount))
	for _, name := range report.Callers {
		b.WriteString(fmt.Sprintf("- %s\n", name))
	}
	b.WriteString("\n")

	b.WriteString(fmt.Sprintf("Dependencies (%d)\n", report.DependencyCount))
	for _, name := range report.Dependencies {
		b.WriteString(fmt.Sprintf("- %s\n", name))
	}
	b.WriteString("\n")

	b.WriteString(fmt.Sprintf("Affected tables (%d)\n", report.AffectedTableCount))
	for _, name := range report.AffectedTables {
		b.WriteString(fmt.Sprintf("- %s\n", name))
	}

	return b.String()
}

func formatFieldSources(field string, sources []crawler.FieldSource) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Sources of %s (%d)\n", strings.ToUpper(field), len(sources)))
	for _, source := range sources {
		switch source.Type {
		case "table":
			b.WriteString(fmt.Sprintf("- [table] %s (%s)\n", source.Name, source.DataType))
		default:
			b.WriteString(fmt.Sprintf("- [procedure] %s (%s)\n", source.Name, source.Operation))
		}
	}

	return b.String()
}

func formatTracePath(trace *crawler.TracePath) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Field Flow: %s\n", trace.FieldName))
	b.WriteString("================\n")

	b.WriteString(fmt.Sprintf("Sources (%d)\n", len(trace.Sources)))
	for _, name := range trace.Sources {
		b.WriteString(fmt.Sprintf("- %s\n", name))
	}
	b.WriteString("\n")

	b.WriteString(fmt.Sprintf("Destinations (%d)\n", len(trace.Destinations)))
	for _, name := range trace.Destinations {
		b.WriteString(fmt.Sprintf("- %s\n", name))
	}
	b.WriteString("\n")

	if len(trace.Transformations) > 0 {
		b.WriteString(fmt.Sprintf("Transformations (%d)\n", len(trace.Transformations)))
		for _, t := range trace.Transformations {
			b.WriteString(fmt.Sprintf("- %s\n", t))
		}
		b.WriteString("\n")
	}

	b.WriteString(fmt.Sprintf("Steps (%d)\n", len(trace.Path)))
	for _, step := range trace.Path {
		b.WriteString(fmt.Sprintf("- depth %d: %s %s %s\n", step.Depth, step.Procedure, step.Operation, step.Field))
	}

	return b.String()
}

func printSummary(w io.Writer, a *app.App) {
	stats, err := a.Query.Stats(context.Background())
	if err != nil {
		slog.Error("failed to compute summary", "error", err)
		return
	}

	fmt.Fprintln(w, "Procedure Dependency Map")
	fmt.Fprintln(w, "========================")
	fmt.Fprintf(w, "Procedures: %d\n", stats.Statistics.ProcedureCount)
	fmt.Fprintf(w, "Tables:     %d\n", stats.Statistics.TableCount)
	fmt.Fprintf(w, "Call edges: %d\n", stats.Statistics.CallEdges)
	fmt.Fprintf(w, "Max level:  %d\n", stats.Statistics.MaxDependencyLevel)
	fmt.Fprintf(w, "Avg complexity: %.1f\n", stats.Statistics.AvgComplexity)

	if len(stats.Cycles) == 0 {
		fmt.Fprintln(w, "No call cycles detected")
		return
	}
	fmt.Fprintf(w, "Call cycles (%d):\n", len(stats.Cycles))
	for _, cycle := range stats.Cycles {
		fmt.Fprintf(w, "- %s\n", strings.Join(cycle, " -> "))
	}
}
