package infer

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dolex/internal/core"
)

func TestColumnTypeIDDetection(t *testing.T) {
	assert.Equal(t, core.TypeID, ColumnType("id", []string{"1", "2", "3"}, 100, 100))
	assert.Equal(t, core.TypeID, ColumnType("customer_id", []string{"c1"}, 3, 100))
	assert.Equal(t, core.TypeID, ColumnType("orderid", []string{"o1"}, 80, 100))
	// "id" suffix with low uniqueness stays non-id.
	assert.NotEqual(t, core.TypeID, ColumnType("paid", []string{"yes", "no"}, 2, 100))
}

func TestColumnTypeDateDetection(t *testing.T) {
	assert.Equal(t, core.TypeDate, ColumnType("order_date", []string{"x"}, 1, 1))
	assert.Equal(t, core.TypeDate, ColumnType("created_timestamp", nil, 0, 0))
	assert.Equal(t, core.TypeDate, ColumnType("v", []string{"2024-01-02", "2024-02-03"}, 2, 2))
	assert.Equal(t, core.TypeDate, ColumnType("v", []string{"2024-Q1", "2024-Q2"}, 2, 2))
	assert.Equal(t, core.TypeDate, ColumnType("v", []string{"2024-W01"}, 1, 1))
	assert.NotEqual(t, core.TypeDate, ColumnType("v", []string{"2024-01-02", "banana"}, 2, 2))
}

func TestColumnTypeYearLikePrefersDate(t *testing.T) {
	assert.Equal(t, core.TypeDate, ColumnType("fiscal_year", []string{"2019", "2020", "2021"}, 3, 30))
	assert.Equal(t, core.TypeDate, ColumnType("cohort", []string{"1999", "2005"}, 2, 50))
	// Values outside the calendar range are plain numerics.
	assert.Equal(t, core.TypeNumeric, ColumnType("cohort_size", []string{"120", "4500"}, 2, 50))
}

func TestColumnTypeNumericThreshold(t *testing.T) {
	// More than 70% numeric samples wins.
	assert.Equal(t, core.TypeNumeric, ColumnType("v", []string{"1", "2", "3", "x"}, 4, 4))
	assert.Equal(t, core.TypeCategorical, ColumnType("v", []string{"1", "x", "y"}, 3, 3))
}

func TestColumnTypeTextDetection(t *testing.T) {
	long := make([]string, 3)
	for i := range long {
		long[i] = fmt.Sprintf("note %d: %s", i, strings.Repeat("lorem ipsum ", 20))
	}
	assert.Equal(t, core.TypeText, ColumnType("notes", long, 3, 3))
}

func TestProfileNumericStats(t *testing.T) {
	col := Profile("value", []string{"10", "20", "30", "40", ""})
	assert.Equal(t, core.TypeNumeric, col.Type)
	assert.Equal(t, 5, col.TotalCount)
	assert.Equal(t, 1, col.NullCount)
	assert.Equal(t, 4, col.UniqueCount)

	require.NotNil(t, col.Stats)
	assert.Equal(t, 10.0, col.Stats.Min)
	assert.Equal(t, 40.0, col.Stats.Max)
	assert.Equal(t, 25.0, col.Stats.Mean)
	assert.Equal(t, 25.0, col.Stats.Median)
	assert.InDelta(t, 17.5, col.Stats.P25, 1e-9)
	assert.InDelta(t, 32.5, col.Stats.P75, 1e-9)
	assert.InDelta(t, 12.909, col.Stats.StdDev, 1e-3)
}

func TestProfileCategoricalTopValues(t *testing.T) {
	col := Profile("region", []string{"N", "S", "N", "N", "E", "S"})
	assert.Equal(t, core.TypeCategorical, col.Type)
	require.NotEmpty(t, col.TopValues)
	assert.Equal(t, "N", col.TopValues[0].Value)
	assert.Equal(t, 3, col.TopValues[0].Count)
}

func TestFromRowsInfersEachKey(t *testing.T) {
	rows := []core.Row{
		{"region": "north", "sales": 100.0, "order_date": "2024-01-05"},
		{"region": "south", "sales": 200.0, "order_date": "2024-01-06"},
	}
	cols := FromRows(rows)
	byName := make(map[string]core.SemanticType)
	for _, c := range cols {
		byName[c.Name] = c.Type
	}
	assert.Equal(t, core.TypeCategorical, byName["region"])
	assert.Equal(t, core.TypeNumeric, byName["sales"])
	assert.Equal(t, core.TypeDate, byName["order_date"])

	assert.Nil(t, FromRows(nil))
}
