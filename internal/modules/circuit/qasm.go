package circuit

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/PaesslerAG/gval"
)

// Pre-compiled regexps for QASM parsing.
var (
	qregRegex    = regexp.MustCompile(`^qreg\s+([A-Za-z_]\w*)\s*\[\s*(\d+)\s*\]$`)
	gateRegex    = regexp.MustCompile(`^([A-Za-z_]\w*)\s*(?:\((.*)\))?\s*(.+)$`)
	operandRegex = regexp.MustCompile(`^([A-Za-z_]\w*)\s*\[\s*(\d+)\s*\]$`)
)

var angleLanguage = gval.Arithmetic()

// ToQASM renders a bound circuit as OpenQASM 2.0 on a single register q.
func ToQASM(c *Circuit) (string, error) {
	if !c.IsBound() {
		return "", fmt.Errorf("to qasm: circuit is still symbolic")
	}

	var b strings.Builder
	b.WriteString("OPENQASM 2.0;\n")
	b.WriteString("include \"qelib1.inc\";\n")
	fmt.Fprintf(&b, "qreg q[%d];\n", c.NumQubits)

	for _, g := range c.Gates {
		b.WriteString(g.Name)
		if len(g.Params) > 0 {
			b.WriteByte('(')
			for i, p := range g.Params {
				if i > 0 {
					b.WriteByte(',')
				}
				b.WriteString(strconv.FormatFloat(p.Value(nil), 'g', -1, 64))
			}
			b.WriteByte(')')
		}
		b.WriteByte(' ')
		for i, q := range g.Qubits {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "q[%d]", q)
		}
		b.WriteString(";\n")
	}
	return b.String(), nil
}

// ParseQASM reads an OpenQASM 2.0 program into a bound circuit. Multiple
// quantum registers are concatenated in declaration order. Classical
// registers, measurements and barriers are ignored. Angles may be
// arithmetic expressions over pi.
func ParseQASM(src string) (*Circuit, error) {
	type register struct {
		offset, size int
	}
	registers := make(map[string]register)
	width := 0
	var gates []Gate

	for i, stmt := range splitStatements(src) {
		switch {
		case stmt == "",
			strings.HasPrefix(stmt, "OPENQASM"),
			strings.HasPrefix(stmt, "include"),
			strings.HasPrefix(stmt, "creg"),
			strings.HasPrefix(stmt, "barrier"),
			strings.HasPrefix(stmt, "measure"),
			strings.HasPrefix(stmt, "reset"):
			continue
		}

		if m := qregRegex.FindStringSubmatch(stmt); m != nil {
			size, _ := strconv.Atoi(m[2])
			if _, dup := registers[m[1]]; dup {
				return nil, fmt.Errorf("statement %d: register %s declared twice", i+1, m[1])
			}
			registers[m[1]] = register{offset: width, size: size}
			width += size
			continue
		}

		m := gateRegex.FindStringSubmatch(stmt)
		if m == nil {
			return nil, fmt.Errorf("statement %d: cannot parse %q", i+1, stmt)
		}
		name := m[1]
		spec, ok := gateSpecs[name]
		if !ok {
			return nil, fmt.Errorf("statement %d: unsupported gate %q", i+1, name)
		}

		var params []Param
		if strings.TrimSpace(m[2]) != "" {
			for _, expr := range splitTopLevel(m[2]) {
				v, err := EvaluateAngle(expr)
				if err != nil {
					return nil, fmt.Errorf("statement %d: %w", i+1, err)
				}
				params = append(params, Const(v))
			}
		}
		if len(params) != spec.Params {
			return nil, fmt.Errorf("statement %d: gate %s takes %d parameters, got %d", i+1, name, spec.Params, len(params))
		}

		var qubits []int
		for _, operand := range strings.Split(m[3], ",") {
			om := operandRegex.FindStringSubmatch(strings.TrimSpace(operand))
			if om == nil {
				return nil, fmt.Errorf("statement %d: invalid operand %q", i+1, operand)
			}
			reg, ok := registers[om[1]]
			if !ok {
				return nil, fmt.Errorf("statement %d: undeclared register %s", i+1, om[1])
			}
			idx, _ := strconv.Atoi(om[2])
			if idx >= reg.size {
				return nil, fmt.Errorf("statement %d: %s[%d] out of range", i+1, om[1], idx)
			}
			qubits = append(qubits, reg.offset+idx)
		}

		gates = append(gates, Gate{Name: name, Qubits: qubits, Params: params})
	}

	c := New(width, 0)
	c.Gates = gates
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// EvaluateAngle evaluates an OpenQASM angle expression such as "-3*pi/4".
func EvaluateAngle(expr string) (float64, error) {
	value, err := angleLanguage.Evaluate(strings.TrimSpace(expr), map[string]interface{}{"pi": math.Pi})
	if err != nil {
		return 0, fmt.Errorf("invalid angle %q: %w", expr, err)
	}
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("angle %q evaluated to %T", expr, value)
	}
}

func splitStatements(src string) []string {
	var cleaned strings.Builder
	for _, line := range strings.Split(src, "\n") {
		if i := strings.Index(line, "//"); i >= 0 {
			line = line[:i]
		}
		cleaned.WriteString(line)
		cleaned.WriteByte('\n')
	}
	parts := strings.Split(cleaned.String(), ";")
	for i := range parts {
		parts[i] = strings.Join(strings.Fields(parts[i]), " ")
	}
	return parts
}

// splitTopLevel splits on commas outside parentheses.
func splitTopLevel(s string) []string {
	var out []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	return append(out, s[start:])
}
