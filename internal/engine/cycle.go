package engine

import (
	"slices"
	"strings"
)

// Cycle is a loop in the dependency graph: every module in Path consumes
// the label produced by the module before it, and the last feeds the first.
//
// Cycles are allowed. Each module still only processes records beyond its
// cursor, but a cycle whose modules keep producing new uuids never settles,
// so exit_when_done will not fire.
type Cycle struct {
	Path []string // e.g. ["a", "b", "a"]
}

func (c Cycle) String() string {
	return strings.Join(c.Path, " -> ")
}

// Cycles reports the strongly connected components of the graph that form a
// loop, including modules that consume their own output label. The result
// is sorted by the first module of each path.
func (d *Dependencies) Cycles() []Cycle {
	var cycles []Cycle
	for _, scc := range d.tarjanSCC() {
		if len(scc) == 1 && !d.feedsItself(scc[0]) {
			continue
		}
		cycles = append(cycles, Cycle{Path: d.cyclePath(scc)})
	}
	slices.SortFunc(cycles, func(a, b Cycle) int {
		return strings.Compare(a.Path[0], b.Path[0])
	})
	return cycles
}

func (d *Dependencies) feedsItself(name string) bool {
	return slices.Contains(d.downstream[name], name)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in name order so results are deterministic.
func (d *Dependencies) tarjanSCC() [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range d.downstream[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	for _, name := range d.names {
		if _, visited := indices[name]; !visited {
			strongConnect(name)
		}
	}
	return sccs
}

// cyclePath walks from the first (smallest) member of scc along downstream
// edges that stay inside the component until it returns to the start.
func (d *Dependencies) cyclePath(scc []string) []string {
	start := scc[0]
	if len(scc) == 1 {
		return []string{start, start}
	}

	members := make(map[string]bool, len(scc))
	for _, name := range scc {
		members[name] = true
	}

	path := []string{start}
	visited := map[string]bool{start: true}
	current := start
	for {
		next := ""
		for _, w := range d.downstream[current] {
			if members[w] && (!visited[w] || w == start) {
				next = w
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		visited[next] = true
		current = next
	}
	return path
}
