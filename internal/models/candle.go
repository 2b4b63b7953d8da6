package models

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Candle is one OHLCV interval from the market data server. The data server
// is not consistent about numeric types (some feeds send prices as strings),
// so unmarshalling coerces every numeric field to float64.
type Candle struct {
	Timestamp int64   `json:"timestamp"`
	Symbol    string  `json:"symbol"`
	Interval  string  `json:"interval"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	IsClosed  bool    `json:"is_closed"`
}

// looseFloat accepts a JSON number, a quoted number, or null.
type looseFloat float64

func (f *looseFloat) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(bytes.TrimSpace(data), `"`)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*f = looseFloat(v)
	return nil
}

func (c *Candle) UnmarshalJSON(data []byte) error {
	var raw struct {
		Timestamp looseFloat `json:"timestamp"`
		Symbol    string     `json:"symbol"`
		Interval  string     `json:"interval"`
		Open      looseFloat `json:"open"`
		High      looseFloat `json:"high"`
		Low       looseFloat `json:"low"`
		Close     looseFloat `json:"close"`
		Volume    looseFloat `json:"volume"`
		IsClosed  bool       `json:"is_closed"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Candle{
		Timestamp: int64(raw.Timestamp),
		Symbol:    raw.Symbol,
		Interval:  raw.Interval,
		Open:      float64(raw.Open),
		High:      float64(raw.High),
		Low:       float64(raw.Low),
		Close:     float64(raw.Close),
		Volume:    float64(raw.Volume),
		IsClosed:  raw.IsClosed,
	}
	return nil
}
