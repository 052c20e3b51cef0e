package hamiltonian

import "strings"

// Group is a set of qubit-wise commuting terms measured in one basis.
// Basis holds X, Y or Z for every measured qubit and I elsewhere.
type Group struct {
	Basis string
	Terms []Term
}

// GroupQubitWise greedily assigns terms, in order, to the first group whose
// basis agrees with the term on every qubit where both act. Identity terms
// land in the first group. The result is deterministic for a given term order.
func GroupQubitWise(h *Hamiltonian) []Group {
	var groups []Group
	for _, t := range h.Terms {
		placed := false
		for gi := range groups {
			if merged, ok := mergeBasis(groups[gi].Basis, t.Operator); ok {
				groups[gi].Basis = merged
				groups[gi].Terms = append(groups[gi].Terms, t)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, Group{Basis: t.Operator, Terms: []Term{t}})
		}
	}
	return groups
}

func mergeBasis(basis, op string) (string, bool) {
	var b strings.Builder
	b.Grow(len(basis))
	for q := 0; q < len(basis); q++ {
		switch {
		case op[q] == 'I':
			b.WriteByte(basis[q])
		case basis[q] == 'I' || basis[q] == op[q]:
			b.WriteByte(op[q])
		default:
			return "", false
		}
	}
	return b.String(), true
}
