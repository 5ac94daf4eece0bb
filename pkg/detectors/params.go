package detectors

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind is the type of a hyperparameter.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindChoice
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindChoice:
		return "choice"
	default:
		return "unknown"
	}
}

// Value is a typed hyperparameter value.
type Value struct {
	Kind  Kind
	Int   int
	Float float64
	Str   string
}

// IntValue wraps an integer.
func IntValue(v int) Value { return Value{Kind: KindInt, Int: v} }

// FloatValue wraps a float.
func FloatValue(v float64) Value { return Value{Kind: KindFloat, Float: v} }

// ChoiceValue wraps a categorical option.
func ChoiceValue(v string) Value { return Value{Kind: KindChoice, Str: v} }

// Numeric returns the value as float64. Choices return 0.
func (v Value) Numeric() float64 {
	switch v.Kind {
	case KindInt:
		return float64(v.Int)
	case KindFloat:
		return v.Float
	default:
		return 0
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.Itoa(v.Int)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	default:
		return v.Str
	}
}

// Params maps a parameter name to its value.
type Params map[string]Value

// Clone returns an independent copy.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Int returns the integer parameter name, or def when absent.
func (p Params) Int(name string, def int) int {
	if v, ok := p[name]; ok && v.Kind == KindInt {
		return v.Int
	}
	return def
}

// Float returns the float parameter name, or def when absent.
// Integer values are widened.
func (p Params) Float(name string, def float64) float64 {
	if v, ok := p[name]; ok && v.Kind != KindChoice {
		return v.Numeric()
	}
	return def
}

// Choice returns the categorical parameter name, or def when absent.
func (p Params) Choice(name string, def string) string {
	if v, ok := p[name]; ok && v.Kind == KindChoice {
		return v.Str
	}
	return def
}

// String renders the parameters sorted by name.
func (p Params) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%s", k, p[k])
	}
	b.WriteByte('}')
	return b.String()
}

// Equal reports whether both parameter sets hold identical values.
func (p Params) Equal(other Params) bool {
	if len(p) != len(other) {
		return false
	}
	for k, v := range p {
		if o, ok := other[k]; !ok || o != v {
			return false
		}
	}
	return true
}
