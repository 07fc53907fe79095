package version

import (
	"fmt"
	"strings"
)

// Endpoint is one side of an interval constraint.
type Endpoint struct {
	Version Version
	// Closed means the endpoint value itself satisfies the constraint
	// ("[" / "]"); open means it does not ("(" / ")").
	Closed bool
	// Present distinguishes a bounded endpoint from an unbounded one
	// (e.g. ">=1.0" has only a lower bound).
	Present bool
}

// Constraint is an interval over versions, e.g. "==1.0", ">=1.0",
// "[1.0,2.0)", or the wildcard constraint that satisfies any version
// (used when a dependency alternative names no version at all).
type Constraint struct {
	Low, High Endpoint
	Wildcard  bool
	text      string
}

// Any is the wildcard constraint.
func Any() Constraint { return Constraint{Wildcard: true, text: "*"} }

// String renders the constraint back to its parsed textual form when
// available, falling back to a canonical interval rendering.
func (c Constraint) String() string {
	if c.text != "" {
		return c.text
	}
	if c.Wildcard {
		return "*"
	}
	lb, rb := "(", ")"
	if c.Low.Closed {
		lb = "["
	}
	if c.High.Closed {
		rb = "]"
	}
	lo, hi := "", ""
	if c.Low.Present {
		lo = c.Low.Version.String()
	}
	if c.High.Present {
		hi = c.High.Version.String()
	}
	return fmt.Sprintf("%s%s,%s%s", lb, lo, hi, rb)
}

// ParseConstraint parses the textual constraint forms: "==V", ">=V",
// ">V", "<=V", "<V", the range form "[a,b)"/"(a,b]"/etc, and the
// wildcard "*".
func ParseConstraint(text string) (Constraint, error) {
	text = strings.TrimSpace(text)
	if text == "" || text == "*" {
		return Any(), nil
	}

	switch {
	case strings.HasPrefix(text, "=="):
		v, err := Parse(strings.TrimSpace(text[2:]))
		if err != nil {
			return Constraint{}, err
		}
		return Constraint{
			Low:  Endpoint{Version: v, Closed: true, Present: true},
			High: Endpoint{Version: v, Closed: true, Present: true},
			text: text,
		}, nil
	case strings.HasPrefix(text, ">="):
		v, err := Parse(strings.TrimSpace(text[2:]))
		if err != nil {
			return Constraint{}, err
		}
		return Constraint{Low: Endpoint{Version: v, Closed: true, Present: true}, text: text}, nil
	case strings.HasPrefix(text, "<="):
		v, err := Parse(strings.TrimSpace(text[2:]))
		if err != nil {
			return Constraint{}, err
		}
		return Constraint{High: Endpoint{Version: v, Closed: true, Present: true}, text: text}, nil
	case strings.HasPrefix(text, ">"):
		v, err := Parse(strings.TrimSpace(text[1:]))
		if err != nil {
			return Constraint{}, err
		}
		return Constraint{Low: Endpoint{Version: v, Closed: false, Present: true}, text: text}, nil
	case strings.HasPrefix(text, "<"):
		v, err := Parse(strings.TrimSpace(text[1:]))
		if err != nil {
			return Constraint{}, err
		}
		return Constraint{High: Endpoint{Version: v, Closed: false, Present: true}, text: text}, nil
	case strings.HasPrefix(text, "[") || strings.HasPrefix(text, "("):
		return parseRange(text)
	default:
		// A bare version is treated as an exact-match constraint.
		v, err := Parse(text)
		if err != nil {
			return Constraint{}, err
		}
		return Constraint{
			Low:  Endpoint{Version: v, Closed: true, Present: true},
			High: Endpoint{Version: v, Closed: true, Present: true},
			text: text,
		}, nil
	}
}

func parseRange(text string) (Constraint, error) {
	if len(text) < 2 {
		return Constraint{}, &InvalidVersion{text, "range too short"}
	}
	loClosed := text[0] == '['
	hiClosed := text[len(text)-1] == ']'
	body := text[1 : len(text)-1]
	parts := strings.SplitN(body, ",", 2)
	if len(parts) != 2 {
		return Constraint{}, &InvalidVersion{text, "range must have two endpoints separated by a comma"}
	}
	loText := strings.TrimSpace(parts[0])
	hiText := strings.TrimSpace(parts[1])

	c := Constraint{text: text}
	if loText != "" {
		v, err := Parse(loText)
		if err != nil {
			return Constraint{}, err
		}
		c.Low = Endpoint{Version: v, Closed: loClosed, Present: true}
	}
	if hiText != "" {
		v, err := Parse(hiText)
		if err != nil {
			return Constraint{}, err
		}
		c.High = Endpoint{Version: v, Closed: hiClosed, Present: true}
	}
	return c, nil
}

// Satisfies is total: every Version satisfies either this constraint
// or its negation. The wildcard version and the wildcard constraint
// both satisfy, and are satisfied by, anything.
func Satisfies(v Version, c Constraint) bool {
	if c.Wildcard || v.Wildcard {
		return true
	}
	if c.Low.Present {
		cmp := Compare(v, c.Low.Version, false, true)
		if cmp < 0 || (cmp == 0 && !c.Low.Closed) {
			return false
		}
	}
	if c.High.Present {
		cmp := Compare(v, c.High.Version, false, true)
		if cmp > 0 || (cmp == 0 && !c.High.Closed) {
			return false
		}
	}
	return true
}

// Intersect narrows two constraints to the tightest interval satisfying
// both, used when a dependent's command-line override combines with a
// manifest-declared constraint. Returns ok=false if the intersection is
// empty.
func Intersect(a, b Constraint) (Constraint, bool) {
	if a.Wildcard {
		return b, true
	}
	if b.Wildcard {
		return a, true
	}

	result := Constraint{}

	switch {
	case !a.Low.Present:
		result.Low = b.Low
	case !b.Low.Present:
		result.Low = a.Low
	default:
		cmp := Compare(a.Low.Version, b.Low.Version, false, true)
		switch {
		case cmp > 0:
			result.Low = a.Low
		case cmp < 0:
			result.Low = b.Low
		default:
			result.Low = a.Low
			result.Low.Closed = a.Low.Closed && b.Low.Closed
		}
	}

	switch {
	case !a.High.Present:
		result.High = b.High
	case !b.High.Present:
		result.High = a.High
	default:
		cmp := Compare(a.High.Version, b.High.Version, false, true)
		switch {
		case cmp < 0:
			result.High = a.High
		case cmp > 0:
			result.High = b.High
		default:
			result.High = a.High
			result.High.Closed = a.High.Closed && b.High.Closed
		}
	}

	if result.Low.Present && result.High.Present {
		cmp := Compare(result.Low.Version, result.High.Version, false, true)
		if cmp > 0 || (cmp == 0 && !(result.Low.Closed && result.High.Closed)) {
			return Constraint{}, false
		}
	}

	result.text = fmt.Sprintf("%s ∩ %s", a.String(), b.String())
	return result, true
}
