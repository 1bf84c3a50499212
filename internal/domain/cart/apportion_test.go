package cart

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestApportion(t *testing.T) {
	tests := []struct {
		name    string
		total   string
		keys    []string
		weights map[string]decimal.Decimal
		want    map[string]string
	}{
		{
			name:    "even split",
			total:   "10.00",
			keys:    []string{"a", "b"},
			weights: map[string]decimal.Decimal{"a": d("1"), "b": d("1")},
			want:    map[string]string{"a": "5", "b": "5"},
		},
		{
			name:    "proportional to weights",
			total:   "9.00",
			keys:    []string{"a", "b"},
			weights: map[string]decimal.Decimal{"a": d("20"), "b": d("10")},
			want:    map[string]string{"a": "6", "b": "3"},
		},
		{
			name:    "leftover cent lands on largest remainder",
			total:   "0.10",
			keys:    []string{"a", "b", "c"},
			weights: map[string]decimal.Decimal{"a": d("1"), "b": d("1"), "c": d("1")},
			// 10/3 cents = 3.33..; two keys get 3, the first gets the extra.
			want: map[string]string{"a": "0.04", "b": "0.03", "c": "0.03"},
		},
		{
			name:    "keys without weight get nothing",
			total:   "6.00",
			keys:    []string{"a", "b", "c"},
			weights: map[string]decimal.Decimal{"a": d("1"), "c": d("2")},
			want:    map[string]string{"a": "2", "c": "4"},
		},
		{
			name:    "zero total",
			total:   "0",
			keys:    []string{"a"},
			weights: map[string]decimal.Decimal{"a": d("1")},
			want:    map[string]string{},
		},
		{
			name:    "zero weights",
			total:   "5.00",
			keys:    []string{"a"},
			weights: map[string]decimal.Decimal{"a": decimal.Zero},
			want:    map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := apportion(d(tt.total), tt.keys, tt.weights)
			require.Len(t, got, len(tt.want))
			for k, want := range tt.want {
				assert.True(t, got[k].Equal(d(want)), "key %s: got %s want %s", k, got[k], want)
			}
		})
	}
}

func TestApportionAlwaysSumsToTotal(t *testing.T) {
	// Awkward weights that do not divide evenly; the shares must still sum
	// exactly to the total.
	totals := []string{"0.01", "0.99", "3.33", "10.00", "17.77"}
	weights := map[string]decimal.Decimal{
		"a": d("14.50"),
		"b": d("3.75"),
		"c": d("7.25"),
	}
	keys := []string{"a", "b", "c"}

	for _, total := range totals {
		got := apportion(d(total), keys, weights)
		sum := decimal.Zero
		for _, v := range got {
			sum = sum.Add(v)
		}
		assert.True(t, sum.Equal(d(total)), "total %s: shares sum to %s", total, sum)
	}
}
