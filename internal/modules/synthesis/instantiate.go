package synthesis

import (
	"math"
	"math/rand/v2"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/circuit"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// matrix4 is a two-qubit unitary; basis index i = b0 + 2*b1.
type matrix4 [4][4]complex128

// cxMatrix is cx with local qubit 0 as control.
var cxMatrix = func() matrix4 {
	var m matrix4
	for i := 0; i < 4; i++ {
		b0, b1 := i&1, i>>1
		m[b0+2*(b1^b0)][i] = 1
	}
	return m
}()

var cxEmbedded = embed(cxMatrix)

// embed returns the real 8x8 form [[Re -Im] [Im Re]] of m.
func embed(m matrix4) *mat.Dense {
	d := mat.NewDense(8, 8, nil)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			re, im := real(m[i][j]), imag(m[i][j])
			d.Set(i, j, re)
			d.Set(i, j+4, -im)
			d.Set(i+4, j, im)
			d.Set(i+4, j+4, re)
		}
	}
	return d
}

// kron returns m0 on local qubit 0 tensored with m1 on local qubit 1.
func kron(m0, m1 circuit.Matrix2) matrix4 {
	var m matrix4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			m[i][j] = m0[i&1][j&1] * m1[i>>1][j>>1]
		}
	}
	return m
}

func u3Layer(p []float64) *mat.Dense {
	return embed(kron(circuit.U3(p[0], p[1], p[2]), circuit.U3(p[3], p[4], p[5])))
}

// templateUnitary evaluates L_k CX ... CX L_0 where every layer L_i is a u3
// on each qubit; p holds 6(k+1) angles.
func templateUnitary(k int, p []float64) *mat.Dense {
	v := u3Layer(p[0:6])
	for i := 0; i < k; i++ {
		var t, next mat.Dense
		t.Mul(cxEmbedded, v)
		next.Mul(u3Layer(p[6*(i+1):6*(i+2)]), &t)
		v = &next
	}
	return v
}

// infidelity is 1 - |Tr(U†V)|²/16, zero exactly when V equals U up to phase.
func infidelity(u matrix4, v *mat.Dense) float64 {
	var tr complex128
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			vij := complex(v.At(i, j), v.At(i+4, j))
			tr += complex(real(u[i][j]), -imag(u[i][j])) * vij
		}
	}
	return 1 - (real(tr)*real(tr)+imag(tr)*imag(tr))/16
}

// instantiate fits the k-CX template to target from several seeded starting
// points and returns the best angles and their infidelity.
func instantiate(target matrix4, k, starts int, tol float64, rng *rand.Rand) ([]float64, float64) {
	dim := 6 * (k + 1)
	cost := func(p []float64) float64 {
		return infidelity(target, templateUnitary(k, p))
	}
	problem := optimize.Problem{
		Func: cost,
		Grad: func(grad, x []float64) {
			fd.Gradient(grad, cost, x, &fd.Settings{Formula: fd.Central})
		},
	}
	settings := &optimize.Settings{
		GradientThreshold: 1e-12,
		MajorIterations:   400,
	}

	var best []float64
	bestCost := math.Inf(1)
	for s := 0; s < starts; s++ {
		x0 := make([]float64, dim)
		for i := range x0 {
			x0[i] = (2*rng.Float64() - 1) * math.Pi
		}
		result, err := optimize.Minimize(problem, x0, settings, &optimize.BFGS{})
		// Line-search stalls still return a usable location.
		if result == nil || (err != nil && len(result.X) == 0) {
			continue
		}
		if result.F < bestCost {
			bestCost = result.F
			best = append([]float64(nil), result.X...)
		}
		if bestCost <= tol {
			break
		}
	}
	return best, bestCost
}
