// Package layout places a compiled circuit onto device qubits, routes its
// two-qubit gates along the coupling map and rewrites it in the device basis.
package layout

import (
	"fmt"
	"sort"
)

// CouplingMap is an undirected device connectivity graph.
type CouplingMap struct {
	numQubits int
	adj       [][]int
}

// NewCouplingMap builds a coupling map; edge direction is ignored.
func NewCouplingMap(numQubits int, edges [][2]int) (*CouplingMap, error) {
	cm := &CouplingMap{numQubits: numQubits, adj: make([][]int, numQubits)}
	seen := make(map[[2]int]bool)
	for _, e := range edges {
		a, b := e[0], e[1]
		if a < 0 || b < 0 || a >= numQubits || b >= numQubits || a == b {
			return nil, fmt.Errorf("invalid coupling edge [%d %d] for %d qubits", a, b, numQubits)
		}
		if a > b {
			a, b = b, a
		}
		if seen[[2]int{a, b}] {
			continue
		}
		seen[[2]int{a, b}] = true
		cm.adj[a] = append(cm.adj[a], b)
		cm.adj[b] = append(cm.adj[b], a)
	}
	for q := range cm.adj {
		sort.Ints(cm.adj[q])
	}
	return cm, nil
}

// NumQubits returns the device width
func (cm *CouplingMap) NumQubits() int {
	return cm.numQubits
}

// Connected reports whether a and b share an edge.
func (cm *CouplingMap) Connected(a, b int) bool {
	if a < 0 || a >= cm.numQubits {
		return false
	}
	for _, n := range cm.adj[a] {
		if n == b {
			return true
		}
	}
	return false
}

// ShortestPath returns the qubits from a to b inclusive. Neighbors are
// visited in ascending order, so ties resolve deterministically.
func (cm *CouplingMap) ShortestPath(a, b int) ([]int, error) {
	if a == b {
		return []int{a}, nil
	}
	prev := make([]int, cm.numQubits)
	for i := range prev {
		prev[i] = -1
	}
	prev[a] = a
	queue := []int{a}
	for len(queue) > 0 {
		q := queue[0]
		queue = queue[1:]
		for _, n := range cm.adj[q] {
			if prev[n] != -1 {
				continue
			}
			prev[n] = q
			if n == b {
				path := []int{b}
				for p := q; p != a; p = prev[p] {
					path = append(path, p)
				}
				path = append(path, a)
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				return path, nil
			}
			queue = append(queue, n)
		}
	}
	return nil, fmt.Errorf("qubits %d and %d are not connected", a, b)
}
