package timeseries

import (
	"strconv"

	ierrors "timeslice/internal/errors"
	"timeslice/pkg/contracts/domain"
)

// Caster converts a raw row into a typed row. Implementations may keep
// per-column state; one caster instance serves exactly one stream.
type Caster interface {
	Cast(columns []string, raw domain.RawRow) (*domain.Row, error)
}

// TypeGuess chooses the value kind for a column from the first raw value
// seen in it.
type TypeGuess func(raw string) domain.Kind

// GuessNumeric is the default type guess: numeric if the value parses as a
// float, text otherwise.
func GuessNumeric(raw string) domain.Kind {
	if _, err := strconv.ParseFloat(raw, 64); err == nil {
		return domain.KindNumber
	}
	return domain.KindText
}

// GuessCaster infers each column's type from the first row and holds that
// choice for the rest of the stream. A later value that does not coerce to
// the cached type is a cast error; inference is never re-run.
type GuessCaster struct {
	guess TypeGuess
	types map[string]domain.Kind
}

// NewGuessCaster creates a caster using the given guess strategy, falling
// back to GuessNumeric when nil.
func NewGuessCaster(guess TypeGuess) *GuessCaster {
	if guess == nil {
		guess = GuessNumeric
	}
	return &GuessCaster{
		guess: guess,
		types: make(map[string]domain.Kind),
	}
}

// Cast implements Caster
func (c *GuessCaster) Cast(columns []string, raw domain.RawRow) (*domain.Row, error) {
	row := domain.NewRow()
	for i, column := range columns {
		value := raw[i]
		kind, ok := c.types[column]
		if !ok {
			kind = c.guess(value)
			c.types[column] = kind
		}
		switch kind {
		case domain.KindNumber:
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, &ierrors.CastError{
					Column: column,
					Value:  value,
					Target: kind.String(),
					Cause:  err,
				}
			}
			row.Set(column, domain.Number(f))
		default:
			row.Set(column, domain.Text(value))
		}
	}
	return row, nil
}
