package graph

import "sort"

// DetectCycles walks the call edges between non-placeholder procedures
// and returns every cycle found, each as the path of full names in
// call order.
func (g *Graph) DetectCycles() [][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	names := make([]string, 0, len(g.procedures))
	for key, node := range g.procedures {
		if !node.Placeholder {
			names = append(names, key)
		}
	}
	sort.Strings(names)

	var cycles [][]string
	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	for _, name := range names {
		if !visited[name] {
			g.findCyclesLocked(name, visited, onStack, []string{}, &cycles)
		}
	}

	return cycles
}

func (g *Graph) findCyclesLocked(curr string, visited, onStack map[string]bool, path []string, cycles *[][]string) {
	visited[curr] = true
	onStack[curr] = true
	path = append(path, curr)

	targets := make([]string, 0, len(g.calls[curr]))
	for next := range g.calls[curr] {
		if node, ok := g.procedures[next]; ok && !node.Placeholder {
			targets = append(targets, next)
		}
	}
	sort.Strings(targets)

	for _, next := range targets {
		if onStack[next] {
			cycleStart := -1
			for i, name := range path {
				if name == next {
					cycleStart = i
					break
				}
			}
			if cycleStart != -1 {
				cycle := make([]string, len(path)-cycleStart)
				copy(cycle, path[cycleStart:])
				*cycles = append(*cycles, cycle)
			}
		} else if !visited[next] {
			g.findCyclesLocked(next, visited, onStack, path, cycles)
		}
	}

	onStack[curr] = false
}
