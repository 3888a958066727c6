package timeseries

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ierrors "timeslice/internal/errors"
	"timeslice/pkg/contracts/domain"
)

func TestGuessCasterInfersOncePerColumn(t *testing.T) {
	columns := []string{"price", "symbol"}
	c := NewGuessCaster(nil)

	row, err := c.Cast(columns, domain.RawRow{"12.5", "TEST"})
	require.NoError(t, err)

	price, _ := row.Get("price")
	assert.Equal(t, domain.KindNumber, price.Kind())
	assert.Equal(t, 12.5, price.Float())

	symbol, _ := row.Get("symbol")
	assert.Equal(t, domain.KindText, symbol.Kind())
	assert.Equal(t, "TEST", symbol.Text())

	// The symbol column stays textual even when a later value is numeric.
	row, err = c.Cast(columns, domain.RawRow{"13", "42"})
	require.NoError(t, err)
	symbol, _ = row.Get("symbol")
	assert.Equal(t, domain.KindText, symbol.Kind())
	assert.Equal(t, "42", symbol.Text())
}

func TestGuessCasterRejectsLaterMismatch(t *testing.T) {
	columns := []string{"n"}
	c := NewGuessCaster(nil)

	_, err := c.Cast(columns, domain.RawRow{"1"})
	require.NoError(t, err)

	_, err = c.Cast(columns, domain.RawRow{"not a number"})
	var castErr *ierrors.CastError
	require.ErrorAs(t, err, &castErr)
	assert.Equal(t, "n", castErr.Column)
	assert.Equal(t, "not a number", castErr.Value)

	// Inference is not re-run: the column is still numeric afterwards.
	row, err := c.Cast(columns, domain.RawRow{"2"})
	require.NoError(t, err)
	v, _ := row.Get("n")
	assert.Equal(t, 2.0, v.Float())
}

func TestGuessCasterCustomStrategy(t *testing.T) {
	textOnly := func(string) domain.Kind { return domain.KindText }
	c := NewGuessCaster(textOnly)

	row, err := c.Cast([]string{"n"}, domain.RawRow{"12.5"})
	require.NoError(t, err)
	v, _ := row.Get("n")
	assert.Equal(t, domain.KindText, v.Kind())
	assert.Equal(t, "12.5", v.Text())
}

func TestGuessNumeric(t *testing.T) {
	assert.Equal(t, domain.KindNumber, GuessNumeric("12.5"))
	assert.Equal(t, domain.KindNumber, GuessNumeric("-3e7"))
	assert.Equal(t, domain.KindText, GuessNumeric("12,5"))
	assert.Equal(t, domain.KindText, GuessNumeric(""))
}
