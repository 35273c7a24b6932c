package drift

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatchFromRecords(t *testing.T) {
	batch := BatchFromRecords([]map[string]interface{}{
		{"symbol": "BTC", "price": 1.0},
		{"symbol": "ETH"},
		{"symbol": nil, "price": 2.0, "rank": 3},
	})

	assert.Equal(t, 3, batch.Rows())
	assert.Equal(t, []string{"price", "rank", "symbol"}, batch.Columns())

	// Missing cells count as nulls alongside explicit nils.
	assert.Equal(t, 1, batch.NullCount("symbol"))
	assert.Equal(t, 1, batch.NullCount("price"))
	assert.Equal(t, 2, batch.NullCount("rank"))
	assert.InDelta(t, 2.0/3.0, batch.NullRatio("rank"), 1e-9)

	first, ok := batch.FirstValue("price")
	assert.True(t, ok)
	assert.Equal(t, 1.0, first)

	assert.True(t, batch.HasColumn("rank"))
	assert.False(t, batch.HasColumn("volume"))
}

func TestBatchEmpty(t *testing.T) {
	batch := BatchFromRecords(nil)

	assert.Zero(t, batch.Rows())
	assert.Empty(t, batch.Columns())
	assert.Zero(t, batch.NullRatio("anything"))
}
