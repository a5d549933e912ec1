package query

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"procmap/internal/core/errors"
	"procmap/internal/data/history"
	"procmap/internal/graph"
	"procmap/internal/shared/observability"
)

type scanReader interface {
	LoadScans(projectKey string, since time.Time) ([]history.ScanRecord, error)
}

// Service is the read-side facade over the graph, used by the CLI and
// the TUI. Each call is traced.
type Service struct {
	graph      *graph.Graph
	history    scanReader
	projectKey string
}

func NewService(g *graph.Graph, h scanReader, projectKey string) *Service {
	return &Service{
		graph:      g,
		history:    h,
		projectKey: projectKey,
	}
}

func (s *Service) ListProcedures(ctx context.Context, filter string, limit int) ([]ProcedureSummary, error) {
	ctx, span := observability.Tracer.Start(ctx, "query.ListProcedures")
	defer span.End()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filter = strings.ToUpper(strings.TrimSpace(filter))
	rows := make([]ProcedureSummary, 0)
	for _, name := range s.graph.ProcedureNames() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if filter != "" && !strings.Contains(name, filter) {
			continue
		}
		procCtx, ok := s.graph.ProcedureContext(name)
		if !ok {
			continue
		}
		rows = append(rows, ProcedureSummary{
			FullName:        procCtx.FullName,
			Schema:          procCtx.Schema,
			CallCount:       len(procCtx.CalledProcedures),
			TableCount:      len(procCtx.CalledTables),
			CallerCount:     len(s.graph.Callers(name)),
			ComplexityScore: procCtx.ComplexityScore,
			DependencyLevel: procCtx.DependencyLevel,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].FullName < rows[j].FullName
	})
	span.SetAttributes(attribute.Int("procedures.matched", len(rows)))

	if limit > 0 && len(rows) > limit {
		return rows[:limit], nil
	}
	return rows, nil
}

func (s *Service) ProcedureDetails(ctx context.Context, name string) (ProcedureDetails, error) {
	ctx, span := observability.Tracer.Start(ctx, "query.ProcedureDetails")
	defer span.End()
	span.SetAttributes(attribute.String("procedure.name", name))
	if err := ctx.Err(); err != nil {
		return ProcedureDetails{}, err
	}

	procCtx, ok := s.graph.ProcedureContext(name)
	if !ok {
		return ProcedureDetails{}, errors.AddContext(
			errors.New(errors.CodeNotFound, "procedure not found in graph"),
			errors.CtxProcedure, name)
	}

	return ProcedureDetails{
		Context: procCtx,
		Callers: s.graph.Callers(procCtx.FullName),
	}, nil
}

func (s *Service) TableDetails(ctx context.Context, name string) (graph.TableDetails, error) {
	ctx, span := observability.Tracer.Start(ctx, "query.TableDetails")
	defer span.End()
	span.SetAttributes(attribute.String("table.name", name))
	if err := ctx.Err(); err != nil {
		return graph.TableDetails{}, err
	}

	info, ok := s.graph.TableInfo(name)
	if !ok {
		return graph.TableDetails{}, errors.AddContext(
			errors.New(errors.CodeNotFound, "table not found in graph"),
			errors.CtxTable, name)
	}
	return info, nil
}

func (s *Service) FieldUsage(ctx context.Context, fieldName string) ([]graph.FieldUsageHit, error) {
	ctx, span := observability.Tracer.Start(ctx, "query.FieldUsage")
	defer span.End()
	span.SetAttributes(attribute.String("field.name", fieldName))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.graph.QueryFieldUsage(fieldName), nil
}

func (s *Service) Hierarchy(ctx context.Context) (HierarchyView, error) {
	ctx, span := observability.Tracer.Start(ctx, "query.Hierarchy")
	defer span.End()
	if err := ctx.Err(); err != nil {
		return HierarchyView{}, err
	}

	levels := s.graph.Hierarchy()
	maxLevel := 0
	for level := range levels {
		if level > maxLevel {
			maxLevel = level
		}
	}
	return HierarchyView{Levels: levels, MaxLevel: maxLevel}, nil
}

func (s *Service) Stats(ctx context.Context) (StatsView, error) {
	ctx, span := observability.Tracer.Start(ctx, "query.Stats")
	defer span.End()
	if err := ctx.Err(); err != nil {
		return StatsView{}, err
	}

	stats := s.graph.Statistics()
	cycles := s.graph.DetectCycles()
	stats.CycleCount = len(cycles)
	return StatsView{Statistics: stats, Cycles: cycles}, nil
}

func (s *Service) TrendSlice(ctx context.Context, since time.Time, limit int) (TrendSlice, error) {
	ctx, span := observability.Tracer.Start(ctx, "query.TrendSlice")
	defer span.End()
	if err := ctx.Err(); err != nil {
		return TrendSlice{}, err
	}
	if s.history == nil {
		return TrendSlice{}, errors.New(errors.CodeNotSupported, "history store unavailable")
	}

	scans, err := s.history.LoadScans(s.projectKey, since)
	if err != nil {
		return TrendSlice{}, err
	}

	if limit > 0 && len(scans) > limit {
		scans = scans[len(scans)-limit:]
	}

	out := TrendSlice{
		ScanCount: len(scans),
		Scans:     scans,
	}
	if len(scans) > 0 {
		out.Since = scans[0].Timestamp.Format(time.RFC3339)
		out.Until = scans[len(scans)-1].Timestamp.Format(time.RFC3339)
	}
	return out, nil
}
