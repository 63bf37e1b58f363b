// Package refspec parses and evaluates layer reference expressions.
//
// A reference names a starting layer and then walks the graph:
//
//	[home ':'] base? suffix*
//
//	base    root | layer id | id prefix | name | tag
//	suffix  ^     parent
//	        ^N    Nth child (1-indexed, creation order)
//	        ~N    follow the first child N times (~ is ~1)
//	        @N    go up N generations (@ is @1)
//
// Parsing is pure; evaluation runs against a registry.Graph snapshot.
package refspec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/danieljhkim/strata/internal/errdefs"
	"github.com/danieljhkim/strata/internal/fsops"
)

// StepKind is one navigation operator.
type StepKind int

const (
	// StepParent moves to the parent (bare '^').
	StepParent StepKind = iota

	// StepChild moves to the Nth child ('^N').
	StepChild

	// StepFirstChild follows the first child N times ('~N').
	StepFirstChild

	// StepAncestor moves up N generations ('@N').
	StepAncestor
)

// Step is a single parsed suffix.
type Step struct {
	Kind StepKind
	N    int
}

func (s Step) String() string {
	switch s.Kind {
	case StepParent:
		return "^"
	case StepChild:
		return "^" + strconv.Itoa(s.N)
	case StepFirstChild:
		return "~" + strconv.Itoa(s.N)
	case StepAncestor:
		return "@" + strconv.Itoa(s.N)
	}
	return "?"
}

// Expr is a parsed reference.
type Expr struct {
	// Home is the home name before ':'; only meaningful when HasHome is set
	Home    string
	HasHome bool

	// Base is the starting point; empty means the context layer (or the
	// home layer when HasHome is set)
	Base string

	Steps []Step
}

// IsContext reports whether evaluation starts at the context layer.
func (e *Expr) IsContext() bool {
	return !e.HasHome && (e.Base == "" || e.Base == RootKeyword)
}

func (e *Expr) String() string {
	var b strings.Builder
	if e.HasHome {
		b.WriteString(e.Home)
		b.WriteByte(':')
	}
	b.WriteString(e.Base)
	for _, s := range e.Steps {
		b.WriteString(s.String())
	}
	return b.String()
}

// RootKeyword addresses the root of the tree being evaluated.
const RootKeyword = "root"

const suffixChars = "^~@"

// Parse parses a reference expression. Surrounding whitespace is ignored.
func Parse(ref string) (*Expr, error) {
	raw := ref
	ref = strings.TrimSpace(ref)
	expr := &Expr{}

	if i := strings.IndexByte(ref, ':'); i >= 0 {
		expr.Home = ref[:i]
		expr.HasHome = true
		ref = ref[i+1:]
		if err := fsops.ValidateIdentifier(expr.Home); err != nil {
			return nil, invalid(raw, "bad home name: %v", err)
		}
	}

	end := strings.IndexAny(ref, suffixChars)
	if end < 0 {
		end = len(ref)
	}
	expr.Base = ref[:end]
	if expr.Base != "" {
		if err := fsops.ValidateIdentifier(expr.Base); err != nil {
			return nil, invalid(raw, "bad base: %v", err)
		}
	}

	rest := ref[end:]
	for len(rest) > 0 {
		op := rest[0]
		rest = rest[1:]

		digits := 0
		for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
			digits++
		}

		n := 1
		if digits > 0 {
			v, err := strconv.Atoi(rest[:digits])
			if err != nil {
				return nil, invalid(raw, "bad count %q", rest[:digits])
			}
			if v < 1 {
				return nil, invalid(raw, "count must be at least 1")
			}
			n = v
		}

		var step Step
		switch op {
		case '^':
			if digits == 0 {
				step = Step{Kind: StepParent, N: 1}
			} else {
				step = Step{Kind: StepChild, N: n}
			}
		case '~':
			step = Step{Kind: StepFirstChild, N: n}
		case '@':
			step = Step{Kind: StepAncestor, N: n}
		default:
			return nil, invalid(raw, "unexpected %q after %q", op, expr.String())
		}
		expr.Steps = append(expr.Steps, step)
		rest = rest[digits:]
	}

	return expr, nil
}

func invalid(ref, format string, args ...any) error {
	return fmt.Errorf("%w %q: %s", errdefs.ErrInvalidReference, ref, fmt.Sprintf(format, args...))
}
