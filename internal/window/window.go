// Package window implements a fixed-capacity sliding buffer of rows with
// relative addressing and lazily evaluated, memoized derived columns.
//
// The buffer has queue semantics: rows enter at the back and the oldest row
// is evicted once capacity is exceeded. One position inside the buffer (the
// offset) is designated as the current row; reads address rows relative to
// it, negative offsets reaching into the past and positive offsets into the
// future.
package window

import (
	"fmt"
	"runtime"

	ierrors "timeslice/internal/errors"
	"timeslice/pkg/contracts/domain"
)

// DerivedFunc computes the value of a derived column for the row a View is
// anchored at. It may read any buffered row, including other derived
// columns, through the view.
type DerivedFunc func(View) (domain.Value, error)

// DerivedColumn pairs a derived column name with its function
type DerivedColumn struct {
	Name string
	Fn   DerivedFunc
}

// entry is one buffered row together with its derived-value cache. The
// cache belongs to the buffer slot, not the row, so padding rows pushed
// repeatedly from one template never share memoized values.
type entry struct {
	row   *domain.Row
	cache map[string]domain.Value
}

// Window is a fixed-capacity ring buffer of rows. It is not safe for
// concurrent use; the iterator drives it from a single goroutine.
type Window struct {
	size    int
	offset  int
	entries []entry
	head    int // next write position
	count   int

	derivedNames []string
	derivedFns   map[string]DerivedFunc
}

// New creates a window of the given capacity with the designated current
// offset and derived-column registry. It fails with a configuration error
// unless 0 <= offset < size.
func New(size, offset int, derived []DerivedColumn) (*Window, error) {
	if size <= 0 {
		return nil, ierrors.Configf("window size must be positive, got %d", size)
	}
	if offset < 0 || offset >= size {
		return nil, ierrors.Configf("window offset must satisfy 0 <= offset < size, got offset=%d size=%d", offset, size)
	}
	w := &Window{
		size:       size,
		offset:     offset,
		entries:    make([]entry, size),
		derivedFns: make(map[string]DerivedFunc, len(derived)),
	}
	for _, d := range derived {
		if _, ok := w.derivedFns[d.Name]; !ok {
			w.derivedNames = append(w.derivedNames, d.Name)
		}
		w.derivedFns[d.Name] = d.Fn
	}
	return w, nil
}

// Size returns the window capacity
func (w *Window) Size() int {
	return w.size
}

// Offset returns the designated current-row position
func (w *Window) Offset() int {
	return w.offset
}

// Len returns the number of rows currently buffered
func (w *Window) Len() int {
	return w.count
}

// Push appends a row to the back of the buffer, evicting the oldest row
// once the buffer is at capacity. The slot's derived cache starts empty.
func (w *Window) Push(row *domain.Row) {
	w.entries[w.head] = entry{row: row, cache: make(map[string]domain.Value)}
	w.head = (w.head + 1) % w.size
	if w.count < w.size {
		w.count++
	}
}

// at returns the buffer slot at absolute index i, 0 being the oldest row
func (w *Window) at(i int) *entry {
	start := 0
	if w.count == w.size {
		start = w.head
	}
	return &w.entries[(start+i)%w.size]
}

// Columns returns every column name readable at the given relative
// position: the base columns of that row in insertion order followed by
// derived columns not shadowed by a base column.
func (w *Window) Columns(relative int) ([]string, error) {
	abs := w.offset + relative
	if abs < 0 || abs >= w.count {
		return nil, &ierrors.IndexError{Index: abs, Length: w.count}
	}
	e := w.at(abs)
	cols := make([]string, 0, e.row.Len()+len(w.derivedNames))
	cols = append(cols, e.row.Columns()...)
	for _, name := range w.derivedNames {
		if !e.row.Has(name) {
			cols = append(cols, name)
		}
	}
	return cols, nil
}

// Get resolves one column at a relative position. Base columns are returned
// directly; derived columns are computed on first read with a view anchored
// at the target row and memoized in that row's buffer slot.
func (w *Window) Get(relative int, column string) (domain.Value, error) {
	return w.resolve(w.offset+relative, column)
}

// GetRow resolves every column at a relative position into a full row
func (w *Window) GetRow(relative int) (*domain.Row, error) {
	cols, err := w.Columns(relative)
	if err != nil {
		return nil, err
	}
	row := domain.NewRow()
	for _, c := range cols {
		v, err := w.Get(relative, c)
		if err != nil {
			return nil, err
		}
		row.Set(c, v)
	}
	return row, nil
}

func (w *Window) resolve(abs int, column string) (domain.Value, error) {
	if abs < 0 || abs >= w.count {
		return domain.Missing(), &ierrors.IndexError{Index: abs, Length: w.count}
	}
	e := w.at(abs)
	if v, ok := e.row.Get(column); ok {
		return v, nil
	}
	fn, ok := w.derivedFns[column]
	if !ok {
		return domain.Missing(), &ierrors.UnknownColumnError{Column: column}
	}
	if v, ok := e.cache[column]; ok {
		return v, nil
	}
	v, err := w.invoke(column, fn, abs)
	if err != nil {
		return domain.Missing(), err
	}
	e.cache[column] = v
	return v, nil
}

// invoke runs a derived function anchored at an absolute buffer index,
// converting panics into evaluation errors. Runtime arithmetic panics are
// mapped to the division-by-zero class.
func (w *Window) invoke(column string, fn DerivedFunc, abs int) (v domain.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			cause := fmt.Errorf("%v", r)
			if re, ok := r.(runtime.Error); ok && re.Error() == "runtime error: integer divide by zero" {
				cause = fmt.Errorf("%v: %w", r, ierrors.ErrDivideByZero)
			}
			v = domain.Missing()
			err = ierrors.NewEvaluationError(column, cause)
		}
	}()
	v, err = fn(View{w: w, anchor: abs})
	if err != nil {
		switch err.(type) {
		case *ierrors.EvaluationError, *ierrors.UnknownColumnError, *ierrors.IndexError:
			return domain.Missing(), err
		}
		return domain.Missing(), ierrors.NewEvaluationError(column, err)
	}
	return v, nil
}

// View is the evaluation context handed to derived functions. It is bound
// to one absolute buffer index, so nested derived reads at a different
// relative position resolve against that neighbor without any shared
// current-offset state.
type View struct {
	w      *Window
	anchor int
}

// Get reads a column at a position relative to the view's anchor row.
// Reading another derived column triggers its evaluation anchored at the
// target row, so chains of relative derived references resolve correctly.
func (v View) Get(relative int, column string) (domain.Value, error) {
	return v.w.resolve(v.anchor+relative, column)
}

// Float reads a column relative to the anchor and returns its numeric
// content, treating text and missing values as their zero.
func (v View) Float(relative int, column string) (float64, error) {
	val, err := v.Get(relative, column)
	if err != nil {
		return 0, err
	}
	return val.Float(), nil
}
