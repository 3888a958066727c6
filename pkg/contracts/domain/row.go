package domain

import (
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindMissing Kind = iota
	KindNumber
	KindText
)

// String returns a human-readable name for the kind
func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	default:
		return "missing"
	}
}

// Value is a single cell value: a number, a piece of text, or missing.
// The zero Value is missing.
type Value struct {
	kind Kind
	num  float64
	text string
}

// Number creates a numeric Value
func Number(f float64) Value {
	return Value{kind: KindNumber, num: f}
}

// Text creates a textual Value
func Text(s string) Value {
	return Value{kind: KindText, text: s}
}

// Missing creates a missing Value
func Missing() Value {
	return Value{kind: KindMissing}
}

// Kind returns the variant held by the value
func (v Value) Kind() Kind {
	return v.kind
}

// IsMissing reports whether the value is the missing variant
func (v Value) IsMissing() bool {
	return v.kind == KindMissing
}

// Float returns the numeric content. It is 0 for text and missing values.
func (v Value) Float() float64 {
	return v.num
}

// Text returns the textual content. It is empty for number and missing values.
func (v Value) Text() string {
	return v.text
}

// Native returns the value as a plain Go type (float64, string, or nil)
// for use in dynamic environments such as expression evaluation.
func (v Value) Native() interface{} {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindText:
		return v.text
	default:
		return nil
	}
}

// Equal reports whether two values hold the same variant and content
func (v Value) Equal(o Value) bool {
	return v == o
}

// String formats the value for display and CSV output
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindText:
		return v.text
	default:
		return ""
	}
}

// RawRow is one uncast input row: the raw field values in declared column
// order, exactly as produced by a row source.
type RawRow []string

// Row is an ordered mapping from column name to Value. Column order is
// preserved for display; lookup is by name. Rows are built once by casting
// or padding and treated as immutable afterwards.
type Row struct {
	keys []string
	vals map[string]Value
}

// NewRow creates an empty row
func NewRow() *Row {
	return &Row{vals: make(map[string]Value)}
}

// Set stores a value under the given column, appending the column to the
// ordering on first use.
func (r *Row) Set(column string, v Value) {
	if _, ok := r.vals[column]; !ok {
		r.keys = append(r.keys, column)
	}
	r.vals[column] = v
}

// Get returns the value stored under the given column
func (r *Row) Get(column string) (Value, bool) {
	v, ok := r.vals[column]
	return v, ok
}

// Has reports whether the row contains the given column
func (r *Row) Has(column string) bool {
	_, ok := r.vals[column]
	return ok
}

// Columns returns the column names in insertion order. The returned slice
// must not be modified.
func (r *Row) Columns() []string {
	return r.keys
}

// Len returns the number of columns in the row
func (r *Row) Len() int {
	return len(r.keys)
}

// Clone returns an independent copy of the row
func (r *Row) Clone() *Row {
	c := &Row{
		keys: make([]string, len(r.keys)),
		vals: make(map[string]Value, len(r.vals)),
	}
	copy(c.keys, r.keys)
	for k, v := range r.vals {
		c.vals[k] = v
	}
	return c
}

// Equal reports whether two rows contain the same columns in the same order
// with equal values.
func (r *Row) Equal(o *Row) bool {
	if len(r.keys) != len(o.keys) {
		return false
	}
	for i, k := range r.keys {
		if o.keys[i] != k {
			return false
		}
		if r.vals[k] != o.vals[k] {
			return false
		}
	}
	return true
}

// String formats the row as "col=value" pairs for diagnostics
func (r *Row) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(r.vals[k].String())
	}
	b.WriteByte('}')
	return b.String()
}
