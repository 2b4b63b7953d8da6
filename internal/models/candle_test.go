package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandleUnmarshalNumbers(t *testing.T) {
	var c Candle
	err := json.Unmarshal([]byte(`{
		"timestamp": 1717000000000,
		"symbol": "BTCUSDT",
		"interval": "1m",
		"open": 64000.5,
		"high": 64100,
		"low": 63950.25,
		"close": 64050,
		"volume": 12.345,
		"is_closed": true
	}`), &c)
	require.NoError(t, err)

	assert.Equal(t, int64(1717000000000), c.Timestamp)
	assert.Equal(t, "BTCUSDT", c.Symbol)
	assert.Equal(t, "1m", c.Interval)
	assert.Equal(t, 64000.5, c.Open)
	assert.Equal(t, 64100.0, c.High)
	assert.Equal(t, 63950.25, c.Low)
	assert.Equal(t, 64050.0, c.Close)
	assert.Equal(t, 12.345, c.Volume)
	assert.True(t, c.IsClosed)
}

func TestCandleUnmarshalQuotedNumbers(t *testing.T) {
	var c Candle
	err := json.Unmarshal([]byte(`{
		"timestamp": "1717000000000",
		"symbol": "BTCUSDT",
		"open": "64000.5",
		"high": "64100",
		"low": "63950.25",
		"close": "64050",
		"volume": "12.345",
		"is_closed": false
	}`), &c)
	require.NoError(t, err)

	assert.Equal(t, int64(1717000000000), c.Timestamp)
	assert.Equal(t, 64000.5, c.Open)
	assert.Equal(t, 64050.0, c.Close)
	assert.Equal(t, 12.345, c.Volume)
	assert.False(t, c.IsClosed)
}

func TestCandleUnmarshalNullAndMissingFields(t *testing.T) {
	var c Candle
	err := json.Unmarshal([]byte(`{"symbol":"BTCUSDT","close":null,"volume":""}`), &c)
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", c.Symbol)
	assert.Zero(t, c.Close)
	assert.Zero(t, c.Volume)
	assert.Zero(t, c.Open)
}

func TestCandleUnmarshalRejectsNonNumeric(t *testing.T) {
	var c Candle
	err := json.Unmarshal([]byte(`{"symbol":"BTCUSDT","close":"not-a-price"}`), &c)
	assert.Error(t, err)
}
