package groundprogram

// depGraph is the atom dependency graph of spec §4.2 step 4: nodes are
// ground atom addresses, edges point from a head atom to a body atom of
// the same rule (plus external edges from an external-atom output
// auxiliary to its input atoms).
type depGraph struct {
	adj      map[uint32][]uint32
	external map[edgeKey]bool // marks an edge a->b as an external edge
}

type edgeKey struct {
	from, to uint32
}

func newDepGraph() *depGraph {
	return &depGraph{adj: make(map[uint32][]uint32), external: make(map[edgeKey]bool)}
}

func (g *depGraph) addEdge(from, to uint32, external bool) {
	g.adj[from] = append(g.adj[from], to)
	if external {
		g.external[edgeKey{from, to}] = true
	}
}

func (g *depGraph) isExternalEdge(from, to uint32) bool {
	return g.external[edgeKey{from, to}]
}

// nodes returns every address with at least one outgoing or incoming edge.
func (g *depGraph) nodes() []uint32 {
	seen := make(map[uint32]struct{})
	for from, tos := range g.adj {
		seen[from] = struct{}{}
		for _, to := range tos {
			seen[to] = struct{}{}
		}
	}
	out := make([]uint32, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	return out
}

// tarjanSCC computes the strongly connected components of g using Tarjan's
// algorithm (spec §4.2 step 6). Returns components as slices of addresses,
// in the order the algorithm completes them. That order is not stable
// between runs: the start nodes come from nodes(), which iterates a map.
func tarjanSCC(g *depGraph) [][]uint32 {
	var (
		index   = 0
		indices = make(map[uint32]int)
		low     = make(map[uint32]int)
		onStack = make(map[uint32]bool)
		stack   []uint32
		result  [][]uint32
	)

	var strongconnect func(v uint32)
	strongconnect = func(v uint32) {
		indices[v] = index
		low[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.adj[v] {
			if _, visited := indices[w]; !visited {
				strongconnect(w)
				if low[w] < low[v] {
					low[v] = low[w]
				}
			} else if onStack[w] {
				if indices[w] < low[v] {
					low[v] = indices[w]
				}
			}
		}

		if low[v] == indices[v] {
			var comp []uint32
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			result = append(result, comp)
		}
	}

	for _, v := range g.nodes() {
		if _, visited := indices[v]; !visited {
			strongconnect(v)
		}
	}
	return result
}
