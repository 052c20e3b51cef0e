package circuit

import (
	"fmt"
	"math"
	"math/cmplx"
)

// GateSpec is the arity of a named gate.
type GateSpec struct {
	Qubits int
	Params int
}

var gateSpecs = map[string]GateSpec{
	"id":   {1, 0},
	"x":    {1, 0},
	"y":    {1, 0},
	"z":    {1, 0},
	"h":    {1, 0},
	"s":    {1, 0},
	"sdg":  {1, 0},
	"t":    {1, 0},
	"tdg":  {1, 0},
	"sx":   {1, 0},
	"sxdg": {1, 0},
	"rx":   {1, 1},
	"ry":   {1, 1},
	"rz":   {1, 1},
	"p":    {1, 1},
	"u1":   {1, 1},
	"u2":   {1, 2},
	"u3":   {1, 3},
	"u":    {1, 3},
	"cx":   {2, 0},
	"cz":   {2, 0},
	"swap": {2, 0},
}

// Spec returns the arity of a supported gate.
func Spec(name string) (GateSpec, bool) {
	s, ok := gateSpecs[name]
	return s, ok
}

// Matrix2 is a single-qubit unitary in the computational basis.
type Matrix2 [2][2]complex128

// Identity2 is the single-qubit identity
var Identity2 = Matrix2{{1, 0}, {0, 1}}

// Mul returns the product m*o.
func (m Matrix2) Mul(o Matrix2) Matrix2 {
	var r Matrix2
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			r[i][j] = m[i][0]*o[0][j] + m[i][1]*o[1][j]
		}
	}
	return r
}

// Dagger returns the conjugate transpose.
func (m Matrix2) Dagger() Matrix2 {
	return Matrix2{
		{cmplx.Conj(m[0][0]), cmplx.Conj(m[1][0])},
		{cmplx.Conj(m[0][1]), cmplx.Conj(m[1][1])},
	}
}

// U3 returns the generic single-qubit rotation
//
//	[[cos(θ/2), -e^{iλ} sin(θ/2)], [e^{iφ} sin(θ/2), e^{i(φ+λ)} cos(θ/2)]]
func U3(theta, phi, lambda float64) Matrix2 {
	c, s := math.Cos(theta/2), math.Sin(theta/2)
	return Matrix2{
		{complex(c, 0), -cmplx.Exp(complex(0, lambda)) * complex(s, 0)},
		{cmplx.Exp(complex(0, phi)) * complex(s, 0), cmplx.Exp(complex(0, phi+lambda)) * complex(c, 0)},
	}
}

// SingleQubitMatrix returns the unitary of a named single-qubit gate.
func SingleQubitMatrix(name string, params []float64) (Matrix2, error) {
	spec, ok := gateSpecs[name]
	if !ok || spec.Qubits != 1 {
		return Matrix2{}, fmt.Errorf("%q is not a single-qubit gate", name)
	}
	if len(params) != spec.Params {
		return Matrix2{}, fmt.Errorf("gate %s takes %d parameters, got %d", name, spec.Params, len(params))
	}

	r2 := complex(1/math.Sqrt2, 0)
	switch name {
	case "id":
		return Identity2, nil
	case "x":
		return Matrix2{{0, 1}, {1, 0}}, nil
	case "y":
		return Matrix2{{0, -1i}, {1i, 0}}, nil
	case "z":
		return Matrix2{{1, 0}, {0, -1}}, nil
	case "h":
		return Matrix2{{r2, r2}, {r2, -r2}}, nil
	case "s":
		return Matrix2{{1, 0}, {0, 1i}}, nil
	case "sdg":
		return Matrix2{{1, 0}, {0, -1i}}, nil
	case "t":
		return Matrix2{{1, 0}, {0, cmplx.Exp(complex(0, math.Pi/4))}}, nil
	case "tdg":
		return Matrix2{{1, 0}, {0, cmplx.Exp(complex(0, -math.Pi/4))}}, nil
	case "sx":
		return Matrix2{{0.5 + 0.5i, 0.5 - 0.5i}, {0.5 - 0.5i, 0.5 + 0.5i}}, nil
	case "sxdg":
		return Matrix2{{0.5 - 0.5i, 0.5 + 0.5i}, {0.5 + 0.5i, 0.5 - 0.5i}}, nil
	case "rx":
		c, s := math.Cos(params[0]/2), math.Sin(params[0]/2)
		return Matrix2{{complex(c, 0), complex(0, -s)}, {complex(0, -s), complex(c, 0)}}, nil
	case "ry":
		c, s := math.Cos(params[0]/2), math.Sin(params[0]/2)
		return Matrix2{{complex(c, 0), complex(-s, 0)}, {complex(s, 0), complex(c, 0)}}, nil
	case "rz":
		return Matrix2{{cmplx.Exp(complex(0, -params[0]/2)), 0}, {0, cmplx.Exp(complex(0, params[0]/2))}}, nil
	case "p", "u1":
		return Matrix2{{1, 0}, {0, cmplx.Exp(complex(0, params[0]))}}, nil
	case "u2":
		return U3(math.Pi/2, params[0], params[1]), nil
	default: // u3, u
		return U3(params[0], params[1], params[2]), nil
	}
}

// ZYZ decomposes a single-qubit unitary into U3 angles, discarding global
// phase: m = e^{iα} U3(theta, phi, lambda).
func ZYZ(m Matrix2) (theta, phi, lambda float64) {
	a00, a10 := cmplx.Abs(m[0][0]), cmplx.Abs(m[1][0])
	theta = 2 * math.Atan2(a10, a00)

	const eps = 1e-12
	switch {
	case a10 < eps:
		// Diagonal: only the relative phase matters.
		lambda = cmplx.Phase(m[1][1]) - cmplx.Phase(m[0][0])
	case a00 < eps:
		// Anti-diagonal.
		phi = cmplx.Phase(m[1][0]) - cmplx.Phase(-m[0][1])
	default:
		phi = cmplx.Phase(m[1][0]) - cmplx.Phase(m[0][0])
		lambda = cmplx.Phase(-m[0][1]) - cmplx.Phase(m[0][0])
	}
	return theta, normalizeAngle(phi), normalizeAngle(lambda)
}

// IsIdentityUpToPhase reports whether m equals e^{iα} I within tol.
func IsIdentityUpToPhase(m Matrix2, tol float64) bool {
	if cmplx.Abs(m[0][1]) > tol || cmplx.Abs(m[1][0]) > tol {
		return false
	}
	return cmplx.Abs(m[0][0]-m[1][1]) <= tol
}

// normalizeAngle maps an angle into (-π, π].
func normalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	} else if a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}
