package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCatalogIsUnique(t *testing.T) {
	t.Parallel()

	ids := map[string]bool{}
	names := map[string]bool{}
	for _, p := range Pairs {
		assert.False(t, ids[p.ID], "duplicate id %s", p.ID)
		assert.False(t, names[p.Name], "duplicate name %s", p.Name)
		ids[p.ID] = true
		names[p.Name] = true
	}
	assert.Len(t, Pairs, 43)
}

func TestLookup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"9", "EURUSD", true},
		{"EURUSD", "EURUSD", true},
		{"eur_usd", "EURUSD", true},
		{"EUR/USD", "EURUSD", true},
		{"cl1!", "CL1!", true},
		{"NAS100", "NAS100", true},
		{"BTCUSD", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, ok := Lookup(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, p.Name)
		})
	}
}

func TestName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "SPX", Name("31"))
	assert.Equal(t, "999", Name("999"))
}
