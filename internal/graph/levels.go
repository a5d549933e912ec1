package graph

import "sort"

// RecomputeLevels assigns a dependency level to every non-placeholder
// procedure: 0 when it calls nothing tracked, otherwise one more than
// the deepest tracked callee. Cycles are collapsed into strongly
// connected components first so mutually recursive procedures share a
// level instead of diverging.
func (g *Graph) RecomputeLevels() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.recomputeLevelsLocked()
}

func (g *Graph) recomputeLevelsLocked() {
	names := make([]string, 0, len(g.procedures))
	for key, node := range g.procedures {
		if !node.Placeholder {
			names = append(names, key)
		}
	}
	sort.Strings(names)

	adjacency := make(map[string][]string, len(names))
	for _, from := range names {
		targets := make([]string, 0, len(g.calls[from]))
		for to := range g.calls[from] {
			if node, ok := g.procedures[to]; ok && !node.Placeholder {
				targets = append(targets, to)
			}
		}
		sort.Strings(targets)
		adjacency[from] = targets
	}

	componentOf, components := stronglyConnectedComponents(names, adjacency)

	componentEdges := make(map[int]map[int]bool, len(components))
	for _, from := range names {
		fromComp := componentOf[from]
		for _, to := range adjacency[from] {
			toComp := componentOf[to]
			if fromComp == toComp {
				continue
			}
			if componentEdges[fromComp] == nil {
				componentEdges[fromComp] = make(map[int]bool)
			}
			componentEdges[fromComp][toComp] = true
		}
	}

	levelByComp := make(map[int]int, len(components))
	var computeLevel func(int) int
	computeLevel = func(comp int) int {
		if level, ok := levelByComp[comp]; ok {
			return level
		}
		maxLevel := 0
		for next := range componentEdges[comp] {
			candidate := 1 + computeLevel(next)
			if candidate > maxLevel {
				maxLevel = candidate
			}
		}
		levelByComp[comp] = maxLevel
		return maxLevel
	}

	for comp := range components {
		computeLevel(comp)
	}

	for _, name := range names {
		g.procedures[name].DependencyLevel = levelByComp[componentOf[name]]
	}
	g.levelsDirty = false
}

// Hierarchy groups non-placeholder procedures by dependency level,
// recomputing levels first if registrations happened since the last
// pass. Names within a level are sorted.
func (g *Graph) Hierarchy() map[int][]string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.levelsDirty {
		g.recomputeLevelsLocked()
	}

	levels := make(map[int][]string)
	for key, node := range g.procedures {
		if node.Placeholder {
			continue
		}
		levels[node.DependencyLevel] = append(levels[node.DependencyLevel], key)
	}
	for level := range levels {
		sort.Strings(levels[level])
	}
	return levels
}

func stronglyConnectedComponents(nodes []string, adjacency map[string][]string) (map[string]int, [][]string) {
	index := 0
	stack := make([]string, 0, len(nodes))
	onStack := make(map[string]bool, len(nodes))
	indexByNode := make(map[string]int, len(nodes))
	lowLink := make(map[string]int, len(nodes))
	componentOf := make(map[string]int, len(nodes))
	components := make([][]string, 0)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indexByNode[v] = index
		lowLink[v] = index
		index++

		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adjacency[v] {
			if _, seen := indexByNode[w]; !seen {
				strongConnect(w)
				if lowLink[w] < lowLink[v] {
					lowLink[v] = lowLink[w]
				}
			} else if onStack[w] && indexByNode[w] < lowLink[v] {
				lowLink[v] = indexByNode[w]
			}
		}

		if lowLink[v] != indexByNode[v] {
			return
		}

		component := make([]string, 0)
		for {
			last := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[last] = false
			component = append(component, last)
			if last == v {
				break
			}
		}
		sort.Strings(component)
		compID := len(components)
		components = append(components, component)
		for _, n := range component {
			componentOf[n] = compID
		}
	}

	for _, node := range nodes {
		if _, seen := indexByNode[node]; !seen {
			strongConnect(node)
		}
	}

	return componentOf, components
}
