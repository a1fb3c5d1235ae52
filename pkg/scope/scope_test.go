package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boristopalov/lockstep/pkg/core"
)

func TestFromCounts(t *testing.T) {
	table, err := FromCounts([]int{10, 10, 10})
	require.NoError(t, err)
	assert.Equal(t, Table{{0, 10}, {10, 20}, {20, 30}}, table)
	assert.NoError(t, table.Validate(30))
	assert.Equal(t, []int{10, 10, 10}, table.Counts())

	_, err = FromCounts([]int{5, 0})
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestEven(t *testing.T) {
	table, err := Even(11, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3, 5}, table.Counts())
	assert.NoError(t, table.Validate(11))

	_, err = Even(2, 3)
	assert.ErrorIs(t, err, core.ErrConfiguration)
	_, err = Even(2, 0)
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name  string
		table Table
		batch int
		ok    bool
	}{
		{"exact tiling", Table{{0, 4}, {4, 9}}, 9, true},
		{"single scope", Table{{0, 9}}, 9, true},
		{"gap", Table{{0, 4}, {5, 9}}, 9, false},
		{"overlap", Table{{0, 5}, {4, 9}}, 9, false},
		{"short of batch", Table{{0, 4}, {4, 8}}, 9, false},
		{"past batch", Table{{0, 4}, {4, 10}}, 9, false},
		{"empty scope", Table{{0, 0}, {0, 9}}, 9, false},
		{"not starting at zero", Table{{1, 9}}, 9, false},
		{"out of order", Table{{4, 9}, {0, 4}}, 9, false},
		{"empty table", Table{}, 9, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.table.Validate(tc.batch)
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			var cfgErr *core.ConfigurationError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

// Every valid table's ranges are pairwise disjoint and their union is the batch.
func TestValidTablesPartitionTheBatch(t *testing.T) {
	for batch := 1; batch <= 24; batch++ {
		for n := 1; n <= batch && n <= 6; n++ {
			table, err := Even(batch, n)
			require.NoError(t, err)
			require.NoError(t, table.Validate(batch))

			seen := make([]int, batch)
			for _, s := range table {
				for i := s.Start; i < s.End; i++ {
					seen[i]++
				}
			}
			for i, c := range seen {
				assert.Equalf(t, 1, c, "batch=%d n=%d env=%d", batch, n, i)
			}
		}
	}
}
