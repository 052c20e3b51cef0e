package hamiltonian

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/domain"
	"github.com/rs/zerolog"
)

// Diagnostic describes a skipped Hamiltonian line.
type Diagnostic struct {
	Line   int    `json:"line"`
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("line %d: %s (%q)", d.Line, d.Reason, d.Text)
}

// Parser turns Hamiltonian text into terms padded to a physical register.
type Parser struct {
	log zerolog.Logger
}

// NewParser creates a new parser
func NewParser(log zerolog.Logger) *Parser {
	return &Parser{
		log: log.With().Str("component", "hamiltonian_parser").Logger(),
	}
}

// Parse reads one "<coefficient> * <operator>" term per line and pads each
// operator with leading identities to targetWidth. Malformed lines are
// skipped and reported as diagnostics; Parse never fails.
//
// A targetWidth <= 0 disables padding: the width of the first accepted term
// becomes the register width.
func (p *Parser) Parse(content string, targetWidth int) (*Hamiltonian, []Diagnostic) {
	h := &Hamiltonian{Width: targetWidth}
	var diags []Diagnostic

	reject := func(lineNo int, text, reason string) {
		d := Diagnostic{Line: lineNo, Text: text, Reason: reason}
		diags = append(diags, d)
		p.log.Warn().
			Int("line", lineNo).
			Str("text", text).
			Str("reason", reason).
			Msg("Skipping malformed Hamiltonian line")
	}

	for i, raw := range strings.Split(content, "\n") {
		lineNo := i + 1
		text := strings.TrimSpace(raw)
		if text == "" {
			continue
		}

		normalized := strings.ReplaceAll(text, "+", "")
		normalized = strings.ReplaceAll(normalized, "- ", "-")
		parts := strings.Split(normalized, "*")
		if len(parts) != 2 {
			reject(lineNo, text, "expected <coefficient> * <operator>")
			continue
		}

		coeffText := strings.TrimSpace(parts[0])
		coeff, err := strconv.ParseFloat(coeffText, 64)
		if err != nil || math.IsNaN(coeff) || math.IsInf(coeff, 0) {
			reject(lineNo, text, "coefficient is not a finite number")
			continue
		}

		op := strings.TrimSpace(parts[1])
		if !ValidOperator(op) {
			reject(lineNo, text, "operator must be a non-empty string over I, X, Y, Z")
			continue
		}

		if h.Width <= 0 {
			h.Width = len(op)
		}
		if len(op) > h.Width {
			reject(lineNo, text, fmt.Sprintf("operator acts on %d qubits, register has %d", len(op), h.Width))
			continue
		}

		h.Terms = append(h.Terms, Term{Coefficient: coeff, Operator: Pad(op, h.Width)})
	}

	if h.Width < 0 {
		h.Width = 0
	}

	p.log.Debug().
		Int("terms", len(h.Terms)).
		Int("skipped", len(diags)).
		Int("width", h.Width).
		Msg("Parsed Hamiltonian")

	return h, diags
}

// ParseFile reads and parses a Hamiltonian file. A missing or unreadable
// file is an I/O error carrying the path.
func (p *Parser) ParseFile(path string, targetWidth int) (*Hamiltonian, []Diagnostic, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, domain.NewPathError("hamiltonian.ParseFile", domain.KindIO, path, err)
	}
	h, diags := p.Parse(string(content), targetWidth)
	return h, diags, nil
}
