// Package timeseries drives a window buffer over a stream of raw tabular
// rows, yielding one fully-resolved row per surviving input row with a
// fixed amount of lookback and lookahead context.
package timeseries

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	ierrors "timeslice/internal/errors"
	"timeslice/internal/window"
	"timeslice/pkg/contracts/domain"
)

// RowSource supplies raw rows for one pass. Next returns io.EOF when the
// stream is exhausted. The source owns header interpretation, dialect
// resolution, and encoding normalization.
type RowSource interface {
	Columns() []string
	Next() (domain.RawRow, error)
}

// FilterFunc inspects a casted row and reports whether it should be
// discarded.
type FilterFunc func(*domain.Row) bool

// EmitPolicy selects what happens to a row whose derived columns fail with
// a non-fatal evaluation error.
type EmitPolicy int

const (
	// SkipRow drops the emission entirely; the stream continues with the
	// next row.
	SkipRow EmitPolicy = iota
	// EmitPartial emits the row with missing values in place of the failed
	// columns.
	EmitPartial
)

// Recorder receives pipeline events for observability. Implementations
// must be cheap; the iterator calls them inline.
type Recorder interface {
	RowRead()
	RowSkipped(reason string)
	RowEmitted()
	EvalError()
}

type nopRecorder struct{}

func (nopRecorder) RowRead()          {}
func (nopRecorder) RowSkipped(string) {}
func (nopRecorder) RowEmitted()       {}
func (nopRecorder) EvalError()        {}

// Options configures an Iterator
type Options struct {
	// WindowSize is the total number of rows buffered; WindowOffset is the
	// current-row position inside the buffer, so every emitted row sees
	// WindowOffset rows of lookback and WindowSize-WindowOffset-1 rows of
	// lookahead.
	WindowSize   int
	WindowOffset int

	// BeforePadding and AfterPadding override the default zero values used
	// for synthetic rows at the stream edges, keyed by column name.
	BeforePadding map[string]domain.Value
	AfterPadding  map[string]domain.Value

	// Caster converts raw rows; defaults to a fresh GuessCaster.
	Caster Caster

	// OnEvalError selects the emission policy for non-fatal derived-column
	// failures. Division-by-zero class errors are always fatal.
	OnEvalError EmitPolicy

	Logger  *slog.Logger
	Metrics Recorder
}

// DefaultWindowSize and DefaultWindowOffset are used when Options leaves
// the window geometry zero.
const (
	DefaultWindowSize   = 1000
	DefaultWindowOffset = 500
)

type phase int

const (
	phaseMain phase = iota
	phaseDrain
	phaseDone
)

// Iterator produces a lazy single-pass sequence of resolved rows. One
// instance supports exactly one pass; construct a new one to re-run.
type Iterator struct {
	src     RowSource
	opts    Options
	logger  *slog.Logger
	metrics Recorder

	derived []window.DerivedColumn
	filters []FilterFunc

	win       *window.Window
	afterRow  *domain.Row
	beforeRow *domain.Row

	primed    bool
	phase     phase
	remaining int // buffered real rows not yet emitted
	line      int // raw rows read, for diagnostics

	cur *domain.Row
	err error
}

// New creates an iterator over the given source. It fails with a
// configuration error when the window geometry is invalid.
func New(src RowSource, opts Options) (*Iterator, error) {
	if opts.WindowSize == 0 && opts.WindowOffset == 0 {
		opts.WindowSize = DefaultWindowSize
		opts.WindowOffset = DefaultWindowOffset
	}
	if opts.WindowSize <= 0 {
		return nil, ierrors.Configf("window size must be positive, got %d", opts.WindowSize)
	}
	if opts.WindowOffset < 0 || opts.WindowOffset >= opts.WindowSize {
		return nil, ierrors.Configf("window offset must be smaller than window size, got offset=%d size=%d",
			opts.WindowOffset, opts.WindowSize)
	}
	if len(src.Columns()) == 0 {
		return nil, ierrors.Configf("header is not specified")
	}
	if opts.Caster == nil {
		opts.Caster = NewGuessCaster(nil)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopRecorder{}
	}
	return &Iterator{
		src:     src,
		opts:    opts,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}, nil
}

// Columns returns every output column: the source's base columns followed
// by registered derived columns.
func (it *Iterator) Columns() []string {
	base := it.src.Columns()
	cols := make([]string, 0, len(base)+len(it.derived))
	cols = append(cols, base...)
	for _, d := range it.derived {
		cols = append(cols, d.Name)
	}
	return cols
}

// AddDerivedColumn registers a derived column. It must be called before the
// first Next; registering a name that collides with a base column fails,
// while re-registering a derived name replaces its function.
func (it *Iterator) AddDerivedColumn(name string, fn window.DerivedFunc) error {
	if it.primed {
		return ierrors.Configf("derived columns must be registered before iteration begins")
	}
	for _, col := range it.src.Columns() {
		if col == name {
			return &ierrors.DuplicateColumnError{Column: name}
		}
	}
	for i := range it.derived {
		if it.derived[i].Name == name {
			it.derived[i].Fn = fn
			return nil
		}
	}
	it.derived = append(it.derived, window.DerivedColumn{Name: name, Fn: fn})
	return nil
}

// AddFilter appends a filter predicate. Predicates run in registration
// order against the casted row; the first match discards the row.
func (it *Iterator) AddFilter(f FilterFunc) {
	it.filters = append(it.filters, f)
}

// Next advances the iterator. It returns false when the stream is
// exhausted or a fatal error occurred; check Err afterwards.
func (it *Iterator) Next() bool {
	if it.err != nil || it.phase == phaseDone {
		return false
	}
	if !it.primed {
		if err := it.prime(); err != nil {
			it.fail(err)
			return false
		}
		it.primed = true
		if it.remaining == 0 {
			it.phase = phaseDone
			return false
		}
	}
	for {
		switch it.phase {
		case phaseMain:
			row, ok := it.pull()
			if it.err != nil {
				it.phase = phaseDone
				return false
			}
			if !ok {
				it.phase = phaseDrain
				continue
			}
			out, emitted := it.emit()
			it.win.Push(row)
			if it.err != nil {
				it.phase = phaseDone
				return false
			}
			if emitted {
				it.cur = out
				return true
			}
		case phaseDrain:
			if it.remaining == 0 {
				it.phase = phaseDone
				return false
			}
			out, emitted := it.emit()
			it.win.Push(it.afterRow.Clone())
			it.remaining--
			if it.err != nil {
				it.phase = phaseDone
				return false
			}
			if emitted {
				it.cur = out
				return true
			}
		default:
			return false
		}
	}
}

// Row returns the row produced by the last successful Next
func (it *Iterator) Row() *domain.Row {
	return it.cur
}

// Err returns the fatal error that stopped iteration, if any
func (it *Iterator) Err() error {
	return it.err
}

// prime builds the window, pushes the pre-roll padding, and fills the
// lookahead side with real rows, padding the remainder when the source is
// shorter than one window.
func (it *Iterator) prime() error {
	win, err := window.New(it.opts.WindowSize, it.opts.WindowOffset, it.derived)
	if err != nil {
		return err
	}
	it.win = win
	it.beforeRow = it.paddingRow(it.opts.BeforePadding)
	it.afterRow = it.paddingRow(it.opts.AfterPadding)

	for i := 0; i < it.opts.WindowOffset; i++ {
		it.win.Push(it.beforeRow.Clone())
	}
	ahead := it.opts.WindowSize - it.opts.WindowOffset
	for i := 0; i < ahead; i++ {
		row, ok := it.pull()
		if it.err != nil {
			return it.err
		}
		if !ok {
			for j := i; j < ahead; j++ {
				it.win.Push(it.afterRow.Clone())
			}
			it.phase = phaseDrain
			break
		}
		it.win.Push(row)
		it.remaining++
	}
	return nil
}

// paddingRow materializes one synthetic edge row covering every output
// column, including derived names, so edge rows never evaluate derived
// functions against synthetic neighbors. Unspecified columns default to 0.
func (it *Iterator) paddingRow(overrides map[string]domain.Value) *domain.Row {
	row := domain.NewRow()
	for _, col := range it.Columns() {
		if v, ok := overrides[col]; ok {
			row.Set(col, v)
		} else {
			row.Set(col, domain.Number(0))
		}
	}
	return row
}

// pull reads raw rows until one survives validation, casting, and
// filtering. It returns false when the source is exhausted; a source
// failure is fatal and recorded on the iterator.
func (it *Iterator) pull() (*domain.Row, bool) {
	columns := it.src.Columns()
	for {
		raw, err := it.src.Next()
		if errors.Is(err, io.EOF) {
			return nil, false
		}
		if err != nil {
			it.fail(fmt.Errorf("row source failed at line %d: %w", it.line, err))
			return nil, false
		}
		it.line++
		it.metrics.RowRead()

		if len(raw) < len(columns) {
			it.logger.Warn("invalid row found (lacks some columns), ignoring",
				slog.Int("line", it.line),
				slog.Int("fields", len(raw)),
				slog.Int("want", len(columns)))
			it.metrics.RowSkipped("truncated")
			continue
		}
		if len(raw) > len(columns) {
			it.logger.Warn("invalid row found (too many columns), ignoring",
				slog.Int("line", it.line),
				slog.Int("fields", len(raw)),
				slog.Int("want", len(columns)))
			it.metrics.RowSkipped("malformed")
			continue
		}
		row, err := it.opts.Caster.Cast(columns, raw)
		if err != nil {
			it.logger.Warn("invalid row found (cast failed), ignoring",
				slog.Int("line", it.line),
				slog.String("error", err.Error()))
			it.metrics.RowSkipped("cast")
			continue
		}
		if it.dropped(row) {
			it.metrics.RowSkipped("filtered")
			continue
		}
		return row, true
	}
}

func (it *Iterator) dropped(row *domain.Row) bool {
	for _, f := range it.filters {
		if f(row) {
			return true
		}
	}
	return false
}

// emit resolves the current window row. Non-fatal evaluation errors are
// logged and handled per the configured policy; division-by-zero class
// errors stop the iteration.
func (it *Iterator) emit() (*domain.Row, bool) {
	cols, err := it.win.Columns(0)
	if err != nil {
		it.fail(err)
		return nil, false
	}
	out := domain.NewRow()
	for _, col := range cols {
		v, err := it.win.Get(0, col)
		if err == nil {
			out.Set(col, v)
			continue
		}
		it.logger.Warn("exception occurred while resolving row",
			slog.Int("line", it.line),
			slog.String("column", col),
			slog.String("error", err.Error()))
		it.metrics.EvalError()
		if ierrors.IsArithmetic(err) {
			it.fail(err)
			return nil, false
		}
		if it.opts.OnEvalError == EmitPartial {
			out.Set(col, domain.Missing())
			continue
		}
		return nil, false
	}
	it.metrics.RowEmitted()
	return out, true
}

func (it *Iterator) fail(err error) {
	it.err = err
}
