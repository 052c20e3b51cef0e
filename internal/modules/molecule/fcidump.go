package molecule

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// FCIDump is the content of a Molpro-style FCIDUMP integral file.
type FCIDump struct {
	NumOrbitals  int
	NumElectrons int
	MS2          int
	OneBody      []float64
	TwoBody      []float64
	CoreEnergy   float64
}

// ReadFCIDump parses an FCIDUMP stream. Indices are 1-based; a line with
// k = l = 0 is a one-electron integral and i = j = k = l = 0 the core energy.
func ReadFCIDump(r io.Reader) (*FCIDump, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	var header strings.Builder
	inHeader := false
	headerDone := false
	lineNo := 0
	var d *FCIDump

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if !headerDone {
			upper := strings.ToUpper(line)
			if strings.HasPrefix(upper, "&FCI") {
				inHeader = true
			}
			if !inHeader {
				return nil, fmt.Errorf("line %d: expected &FCI header", lineNo)
			}
			header.WriteString(line)
			header.WriteByte(' ')
			if strings.Contains(upper, "&END") || upper == "/" || strings.HasSuffix(upper, "/") {
				var err error
				d, err = parseFCIHeader(header.String())
				if err != nil {
					return nil, err
				}
				headerDone = true
			}
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 5 {
			return nil, fmt.Errorf("line %d: expected 5 fields, got %d", lineNo, len(fields))
		}
		value, err := strconv.ParseFloat(strings.NewReplacer("D", "E", "d", "e").Replace(fields[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid integral value: %w", lineNo, err)
		}
		var idx [4]int
		for k := 0; k < 4; k++ {
			idx[k], err = strconv.Atoi(fields[k+1])
			if err != nil || idx[k] < 0 || idx[k] > d.NumOrbitals {
				return nil, fmt.Errorf("line %d: invalid orbital index %q", lineNo, fields[k+1])
			}
		}

		if err := d.store(value, idx); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read FCIDUMP: %w", err)
	}
	if !headerDone {
		return nil, fmt.Errorf("FCIDUMP header is missing or unterminated")
	}
	return d, nil
}

func (d *FCIDump) store(value float64, idx [4]int) error {
	n := d.NumOrbitals
	i, j, k, l := idx[0]-1, idx[1]-1, idx[2]-1, idx[3]-1
	switch {
	case idx == [4]int{0, 0, 0, 0}:
		d.CoreEnergy = value
	case idx[2] == 0 && idx[3] == 0:
		if i < 0 || j < 0 {
			return fmt.Errorf("one-electron integral needs two orbital indices")
		}
		d.OneBody[i*n+j] = value
		d.OneBody[j*n+i] = value
	default:
		if i < 0 || j < 0 || k < 0 || l < 0 {
			return fmt.Errorf("two-electron integral needs four orbital indices")
		}
		setERI(d.TwoBody, n, i, j, k, l, value)
	}
	return nil
}

func parseFCIHeader(header string) (*FCIDump, error) {
	body := header
	for _, tok := range []string{"&FCI", "&fci", "&END", "&end", "/"} {
		body = strings.ReplaceAll(body, tok, " ")
	}

	values := make(map[string]string)
	var lastKey string
	for _, part := range strings.Split(body, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if eq := strings.Index(part, "="); eq >= 0 {
			lastKey = strings.ToUpper(strings.TrimSpace(part[:eq]))
			values[lastKey] = strings.TrimSpace(part[eq+1:])
		} else if lastKey == "" {
			return nil, fmt.Errorf("FCIDUMP header: unexpected token %q", part)
		}
		// Bare tokens continue a list value such as ORBSYM=1,1,2.
	}

	getInt := func(key string, required bool) (int, error) {
		v, ok := values[key]
		if !ok {
			if required {
				return 0, fmt.Errorf("FCIDUMP header: missing %s", key)
			}
			return 0, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("FCIDUMP header: invalid %s %q", key, v)
		}
		return n, nil
	}

	norb, err := getInt("NORB", true)
	if err != nil {
		return nil, err
	}
	nelec, err := getInt("NELEC", true)
	if err != nil {
		return nil, err
	}
	ms2, err := getInt("MS2", false)
	if err != nil {
		return nil, err
	}
	if norb <= 0 {
		return nil, fmt.Errorf("FCIDUMP header: NORB must be positive")
	}
	if (nelec+ms2)%2 != 0 || ms2 > nelec || ms2 < -nelec {
		return nil, fmt.Errorf("FCIDUMP header: NELEC=%d and MS2=%d are inconsistent", nelec, ms2)
	}

	return &FCIDump{
		NumOrbitals:  norb,
		NumElectrons: nelec,
		MS2:          ms2,
		OneBody:      make([]float64, norb*norb),
		TwoBody:      make([]float64, norb*norb*norb*norb),
	}, nil
}

// WriteFCIDump writes the integrals of m in FCIDUMP format, listing each
// symmetry-unique non-zero integral once.
func WriteFCIDump(w io.Writer, m *Model) error {
	n := m.NumOrbitals
	bw := bufio.NewWriter(w)

	orbsym := strings.TrimSuffix(strings.Repeat("1,", n), ",")
	fmt.Fprintf(bw, "&FCI NORB=%d,NELEC=%d,MS2=%d,\n ORBSYM=%s,\n ISYM=1,\n&END\n", n, m.NumParticles(), m.Spin, orbsym)

	const eps = 1e-14
	for p := 0; p < n; p++ {
		for q := 0; q <= p; q++ {
			for r := 0; r < n; r++ {
				for s := 0; s <= r; s++ {
					if p*(p+1)/2+q < r*(r+1)/2+s {
						continue
					}
					if v := m.ERI(p, q, r, s); v > eps || v < -eps {
						fmt.Fprintf(bw, "%23.16e %4d %4d %4d %4d\n", v, p+1, q+1, r+1, s+1)
					}
				}
			}
		}
	}
	for p := 0; p < n; p++ {
		for q := 0; q <= p; q++ {
			if v := m.H(p, q); v > eps || v < -eps {
				fmt.Fprintf(bw, "%23.16e %4d %4d %4d %4d\n", v, p+1, q+1, 0, 0)
			}
		}
	}
	fmt.Fprintf(bw, "%23.16e %4d %4d %4d %4d\n", m.CoreEnergy, 0, 0, 0, 0)

	return bw.Flush()
}
