package money

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Basic Money Operations Tests
// ============================================================================

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		cents    int64
		currency string
		want     int64
	}{
		{"positive cents", 1234, BRL, 1234},
		{"zero", 0, BRL, 0},
		{"negative cents", -5000, BRL, -5000},
		{"large amount", 999999999, "USD", 999999999},
		{"euro", 1000, "EUR", 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.cents, tt.currency)
			assert.Equal(t, tt.want, m.Amount())
			assert.Equal(t, tt.currency, m.Currency())
		})
	}
}

func TestNewFromFloat(t *testing.T) {
	tests := []struct {
		name   string
		amount float64
		want   int64
	}{
		{"simple decimal", 45.3, 4530},
		{"whole number", 45, 4500},
		{"zero", 0.0, 0},
		{"small amount", 0.01, 1},
		{"rounding", 12.345, 1235},
		{"binary float noise", 0.1 + 0.2, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewFromFloat(tt.amount, BRL)
			assert.Equal(t, tt.want, m.Amount())
		})
	}
}

func TestNewFromDecimal(t *testing.T) {
	d, err := decimal.NewFromString("99.999")
	require.NoError(t, err)

	m := NewFromDecimal(d, BRL)
	assert.Equal(t, int64(10000), m.Amount())
}

func TestAdd(t *testing.T) {
	t.Run("same currency", func(t *testing.T) {
		sum, err := New(4730, BRL).Add(New(9030, BRL))
		require.NoError(t, err)
		assert.Equal(t, int64(13760), sum.Amount())
		assert.Equal(t, "137.60", sum.String())
	})

	t.Run("currency mismatch", func(t *testing.T) {
		_, err := New(100, BRL).Add(New(100, "USD"))
		assert.ErrorIs(t, err, ErrCurrencyMismatch)
	})

	t.Run("nil receiver", func(t *testing.T) {
		var m *Money
		sum, err := m.Add(New(100, BRL))
		require.NoError(t, err)
		assert.Equal(t, int64(100), sum.Amount())
	})
}

// Summing many small amounts must not drift the way float accumulation does.
func TestAddNoDrift(t *testing.T) {
	total := New(0, BRL)
	var floatTotal float64
	for i := 0; i < 1000; i++ {
		var err error
		total, err = total.Add(NewFromFloat(0.1, BRL))
		require.NoError(t, err)
		floatTotal += 0.1
	}

	assert.Equal(t, int64(10000), total.Amount())
	assert.NotEqual(t, 100.0, floatTotal)
}

func TestDivideInt(t *testing.T) {
	price, err := New(13760, BRL).DivideInt(16)
	require.NoError(t, err)
	assert.Equal(t, int64(860), price.Amount())

	_, err = New(100, BRL).DivideInt(0)
	assert.Error(t, err)
}

func TestEquals(t *testing.T) {
	assert.True(t, New(4530, BRL).Equals(NewFromFloat(45.30, BRL)))
	assert.False(t, New(4530, BRL).Equals(New(4531, BRL)))
	assert.True(t, (*Money)(nil).Equals(New(0, BRL)))
}

func TestString(t *testing.T) {
	assert.Equal(t, "45.00", New(4500, BRL).String())
	assert.Equal(t, "0.00", (*Money)(nil).String())
}

func TestJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(New(4530, BRL))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"amount":4530`)
	assert.Contains(t, string(data), `"value":"45.30"`)

	var m Money
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, int64(4530), m.Amount())
	assert.Equal(t, BRL, m.Currency())
}
