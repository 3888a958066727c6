// Package exprcol compiles derived columns and filter predicates from
// expression strings, so transformations can be declared in configuration
// instead of code.
//
// Derived expressions see a col(name, relative) accessor reading any
// buffered row, and cur(name) as shorthand for col(name, 0). Filter
// expressions see the casted row's columns as plain identifiers plus a row
// map for names that are not valid identifiers.
package exprcol

import (
	"fmt"
	"math"
	"strings"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"

	ierrors "timeslice/internal/errors"
	"timeslice/internal/timeseries"
	"timeslice/internal/window"
	"timeslice/pkg/contracts/domain"
)

// DerivedColumn compiles an expression into a derived-column function
func DerivedColumn(expression string) (window.DerivedFunc, error) {
	program, err := expr.Compile(expression)
	if err != nil {
		return nil, ierrors.Configf("unable to compile expression %q: %v", expression, err)
	}
	return func(v window.View) (domain.Value, error) {
		var readErr error
		col := func(name string, relative int) interface{} {
			val, err := v.Get(relative, name)
			if err != nil {
				if readErr == nil {
					readErr = err
				}
				return float64(0)
			}
			return val.Native()
		}
		env := map[string]interface{}{
			"col": col,
			"cur": func(name string) interface{} { return col(name, 0) },
		}
		out, err := runProgram(program, env)
		if readErr != nil {
			return domain.Missing(), readErr
		}
		if err != nil {
			return domain.Missing(), err
		}
		return toValue(out)
	}, nil
}

// Filter compiles a boolean expression into a filter predicate. A row is
// discarded when the expression evaluates to true.
func Filter(expression string) (timeseries.FilterFunc, error) {
	program, err := expr.Compile(expression)
	if err != nil {
		return nil, ierrors.Configf("unable to compile filter %q: %v", expression, err)
	}
	return func(row *domain.Row) bool {
		env := map[string]interface{}{"row": rowMap(row)}
		for _, col := range row.Columns() {
			if _, taken := env[col]; taken {
				continue
			}
			v, _ := row.Get(col)
			env[col] = v.Native()
		}
		out, err := expr.Run(program, env)
		if err != nil {
			return false
		}
		b, ok := out.(bool)
		return ok && b
	}, nil
}

// runProgram executes a compiled program, mapping runtime division by zero
// to the arithmetic error class. Float division by zero surfaces as Inf or
// NaN rather than an error; it is treated as the same class.
func runProgram(program *vm.Program, env map[string]interface{}) (interface{}, error) {
	out, err := expr.Run(program, env)
	if err != nil {
		if strings.Contains(err.Error(), "divide by zero") {
			return nil, fmt.Errorf("%v: %w", err, ierrors.ErrDivideByZero)
		}
		return nil, err
	}
	if f, ok := out.(float64); ok && (math.IsInf(f, 0) || math.IsNaN(f)) {
		return nil, fmt.Errorf("non-finite result %v: %w", f, ierrors.ErrDivideByZero)
	}
	return out, nil
}

// toValue converts an expression result into a tagged Value
func toValue(out interface{}) (domain.Value, error) {
	switch v := out.(type) {
	case nil:
		return domain.Missing(), nil
	case float64:
		return domain.Number(v), nil
	case float32:
		return domain.Number(float64(v)), nil
	case int:
		return domain.Number(float64(v)), nil
	case int64:
		return domain.Number(float64(v)), nil
	case bool:
		if v {
			return domain.Number(1), nil
		}
		return domain.Number(0), nil
	case string:
		return domain.Text(v), nil
	default:
		return domain.Missing(), fmt.Errorf("unsupported expression result type %T", out)
	}
}

func rowMap(row *domain.Row) map[string]interface{} {
	m := make(map[string]interface{}, row.Len())
	for _, col := range row.Columns() {
		v, _ := row.Get(col)
		m[col] = v.Native()
	}
	return m
}
