package window

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ierrors "timeslice/internal/errors"
	"timeslice/pkg/contracts/domain"
)

// row builds a test row from alternating column/value pairs
func row(pairs ...interface{}) *domain.Row {
	r := domain.NewRow()
	for i := 0; i < len(pairs); i += 2 {
		col := pairs[i].(string)
		switch v := pairs[i+1].(type) {
		case int:
			r.Set(col, domain.Number(float64(v)))
		case float64:
			r.Set(col, domain.Number(v))
		case string:
			r.Set(col, domain.Text(v))
		}
	}
	return r
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		offset  int
		wantErr bool
	}{
		{name: "valid geometry", size: 3, offset: 1},
		{name: "offset zero", size: 1, offset: 0},
		{name: "offset at upper bound", size: 5, offset: 4},
		{name: "offset equals size", size: 3, offset: 3, wantErr: true},
		{name: "offset beyond size", size: 3, offset: 7, wantErr: true},
		{name: "negative offset", size: 3, offset: -1, wantErr: true},
		{name: "zero size", size: 0, offset: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := New(tt.size, tt.offset, nil)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, ierrors.IsConfig(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.size, w.Size())
			assert.Equal(t, tt.offset, w.Offset())
		})
	}
}

func TestPushEvictsOldest(t *testing.T) {
	w, err := New(3, 0, nil)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		w.Push(row("n", i))
	}

	require.Equal(t, 3, w.Len())
	// Buffer holds the last three rows in original relative order.
	for rel, want := range []float64{3, 4, 5} {
		v, err := w.Get(rel, "n")
		require.NoError(t, err)
		assert.Equal(t, want, v.Float())
	}
}

func TestRelativeAddressing(t *testing.T) {
	w, err := New(3, 1, nil)
	require.NoError(t, err)
	w.Push(row("n", 10))
	w.Push(row("n", 20))
	w.Push(row("n", 30))

	past, err := w.Get(-1, "n")
	require.NoError(t, err)
	assert.Equal(t, 10.0, past.Float())

	cur, err := w.Get(0, "n")
	require.NoError(t, err)
	assert.Equal(t, 20.0, cur.Float())

	future, err := w.Get(1, "n")
	require.NoError(t, err)
	assert.Equal(t, 30.0, future.Float())

	_, err = w.Get(2, "n")
	var idxErr *ierrors.IndexError
	require.ErrorAs(t, err, &idxErr)

	_, err = w.Get(-2, "n")
	require.ErrorAs(t, err, &idxErr)
}

func TestUnknownColumn(t *testing.T) {
	w, err := New(2, 0, nil)
	require.NoError(t, err)
	w.Push(row("n", 1))

	_, err = w.Get(0, "ghost")
	var colErr *ierrors.UnknownColumnError
	require.ErrorAs(t, err, &colErr)
	assert.Equal(t, "ghost", colErr.Column)
}

func TestDerivedColumn(t *testing.T) {
	delta := func(v View) (domain.Value, error) {
		next, err := v.Float(1, "col2")
		if err != nil {
			return domain.Missing(), err
		}
		cur, err := v.Float(0, "col2")
		if err != nil {
			return domain.Missing(), err
		}
		return domain.Number(next - cur), nil
	}

	w, err := New(3, 1, []DerivedColumn{{Name: "delta", Fn: delta}})
	require.NoError(t, err)
	w.Push(row("col1", 1, "col2", 1))
	w.Push(row("col1", 3, "col2", 4))
	w.Push(row("col1", 5, "col2", 6))

	got, err := w.GetRow(0)
	require.NoError(t, err)
	assert.True(t, got.Equal(row("col1", 3, "col2", 4, "delta", 2)), "got %v", got)
}

func TestDerivedMemoization(t *testing.T) {
	calls := 0
	counted := func(v View) (domain.Value, error) {
		calls++
		f, err := v.Float(0, "n")
		if err != nil {
			return domain.Missing(), err
		}
		return domain.Number(f * 2), nil
	}

	w, err := New(2, 0, []DerivedColumn{{Name: "double", Fn: counted}})
	require.NoError(t, err)
	w.Push(row("n", 21))
	w.Push(row("n", 22))

	first, err := w.Get(0, "double")
	require.NoError(t, err)
	second, err := w.Get(0, "double")
	require.NoError(t, err)

	assert.Equal(t, 42.0, first.Float())
	assert.True(t, first.Equal(second))
	assert.Equal(t, 1, calls, "derived function must run at most once per row")
}

func TestDerivedReferencingDerived(t *testing.T) {
	add := func(v View) (domain.Value, error) {
		a, err := v.Float(0, "col1")
		if err != nil {
			return domain.Missing(), err
		}
		b, err := v.Float(0, "col2")
		if err != nil {
			return domain.Missing(), err
		}
		return domain.Number(a + b), nil
	}
	delta := func(v View) (domain.Value, error) {
		next, err := v.Float(1, "add")
		if err != nil {
			return domain.Missing(), err
		}
		cur, err := v.Float(0, "add")
		if err != nil {
			return domain.Missing(), err
		}
		return domain.Number(next - cur), nil
	}

	w, err := New(3, 1, []DerivedColumn{
		{Name: "add", Fn: add},
		{Name: "delta", Fn: delta},
	})
	require.NoError(t, err)
	w.Push(row("col1", 1, "col2", 1))
	w.Push(row("col1", 3, "col2", 4))
	w.Push(row("col1", 5, "col2", 6))

	// delta reads add at +1 before that row was ever read directly.
	got, err := w.GetRow(0)
	require.NoError(t, err)
	assert.True(t, got.Equal(row("col1", 3, "col2", 4, "add", 7, "delta", 4)), "got %v", got)

	w.Push(row("col1", 5, "col2", 6))
	got, err = w.GetRow(0)
	require.NoError(t, err)
	assert.True(t, got.Equal(row("col1", 5, "col2", 6, "add", 11, "delta", 0)), "got %v", got)
}

func TestDerivedLookbackReusesMemoizedValues(t *testing.T) {
	evaluations := make(map[float64]int)
	double := func(v View) (domain.Value, error) {
		f, err := v.Float(0, "n")
		if err != nil {
			return domain.Missing(), err
		}
		evaluations[f]++
		return domain.Number(f * 2), nil
	}
	trend := func(v View) (domain.Value, error) {
		cur, err := v.Float(0, "double")
		if err != nil {
			return domain.Missing(), err
		}
		prev, err := v.Float(-1, "double")
		if err != nil {
			return domain.Missing(), err
		}
		return domain.Number(cur - prev), nil
	}

	w, err := New(3, 1, []DerivedColumn{
		{Name: "double", Fn: double},
		{Name: "trend", Fn: trend},
	})
	require.NoError(t, err)
	w.Push(row("n", 1))
	w.Push(row("n", 2))
	w.Push(row("n", 3))

	v, err := w.Get(0, "trend")
	require.NoError(t, err)
	assert.Equal(t, 2.0, v.Float())

	// Reading trend again reuses both memoized doubles.
	_, err = w.Get(0, "trend")
	require.NoError(t, err)
	assert.Equal(t, 1, evaluations[1])
	assert.Equal(t, 1, evaluations[2])
}

func TestBaseColumnShadowsDerived(t *testing.T) {
	derived := func(v View) (domain.Value, error) {
		return domain.Number(99), nil
	}
	w, err := New(2, 0, []DerivedColumn{{Name: "x", Fn: derived}})
	require.NoError(t, err)
	w.Push(row("n", 1, "x", 7))

	// Padding rows carry derived names as base keys; the stored value wins
	// and the function never runs.
	v, err := w.Get(0, "x")
	require.NoError(t, err)
	assert.Equal(t, 7.0, v.Float())
}

func TestColumnsUnion(t *testing.T) {
	derived := func(v View) (domain.Value, error) { return domain.Number(0), nil }
	w, err := New(2, 0, []DerivedColumn{{Name: "extra", Fn: derived}})
	require.NoError(t, err)
	w.Push(row("a", 1, "b", 2))

	cols, err := w.Columns(0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "extra"}, cols)

	_, err = w.Columns(3)
	var idxErr *ierrors.IndexError
	require.ErrorAs(t, err, &idxErr)
}

func TestDerivedPanicBecomesEvaluationError(t *testing.T) {
	zero := 0
	divide := func(v View) (domain.Value, error) {
		n := 1 / zero
		return domain.Number(float64(n)), nil
	}
	boom := func(v View) (domain.Value, error) {
		panic("unexpected state")
	}

	w, err := New(1, 0, []DerivedColumn{
		{Name: "divide", Fn: divide},
		{Name: "boom", Fn: boom},
	})
	require.NoError(t, err)
	w.Push(row("n", 1))

	_, err = w.Get(0, "divide")
	var evalErr *ierrors.EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.True(t, ierrors.IsArithmetic(err))

	_, err = w.Get(0, "boom")
	require.ErrorAs(t, err, &evalErr)
	assert.False(t, ierrors.IsArithmetic(err))
}

func TestDerivedErrorNotMemoized(t *testing.T) {
	fail := true
	flaky := func(v View) (domain.Value, error) {
		if fail {
			return domain.Missing(), errors.New("not ready")
		}
		return domain.Number(1), nil
	}
	w, err := New(1, 0, []DerivedColumn{{Name: "flaky", Fn: flaky}})
	require.NoError(t, err)
	w.Push(row("n", 1))

	_, err = w.Get(0, "flaky")
	require.Error(t, err)

	fail = false
	v, err := w.Get(0, "flaky")
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.Float())
}
