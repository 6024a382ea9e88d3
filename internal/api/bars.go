package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/venuelink/venuelink/internal/model"
)

// barPayload mirrors the venue's bucketed trade JSON.
type barPayload struct {
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

// binSizeFor maps a bar type onto one of the venue's fixed bucket sizes.
func binSizeFor(bt model.BarType) (string, error) {
	switch {
	case bt.Step == 1 && bt.Aggregation == model.AggregationMinute:
		return "1m", nil
	case bt.Step == 5 && bt.Aggregation == model.AggregationMinute:
		return "5m", nil
	case bt.Step == 1 && bt.Aggregation == model.AggregationHour:
		return "1h", nil
	case bt.Step == 1 && bt.Aggregation == model.AggregationDay:
		return "1d", nil
	default:
		return "", fmt.Errorf("unsupported bar type %s", bt)
	}
}

// GetBars fetches historical bars for a bar type, oldest first. Only the
// venue's native bucket sizes are supported.
func (c *Client) GetBars(ctx context.Context, bt model.BarType, limit int, start, end time.Time) ([]model.Bar, error) {
	binSize, err := binSizeFor(bt)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("symbol", bt.InstrumentID.Symbol)
	query.Set("binSize", binSize)
	if limit > 0 {
		query.Set("count", strconv.Itoa(limit))
	}
	if !start.IsZero() {
		query.Set("startTime", start.UTC().Format(time.RFC3339))
	}
	if !end.IsZero() {
		query.Set("endTime", end.UTC().Format(time.RFC3339))
	}

	var payloads []barPayload
	if err := c.get(ctx, "/api/v1/trade/bucketed", query, &payloads); err != nil {
		return nil, err
	}

	now := time.Now().UnixNano()
	bars := make([]model.Bar, 0, len(payloads))
	for _, p := range payloads {
		bars = append(bars, model.Bar{
			BarType: bt,
			Open:    formatDecimal(p.Open),
			High:    formatDecimal(p.High),
			Low:     formatDecimal(p.Low),
			Close:   formatDecimal(p.Close),
			Volume:  strconv.FormatInt(p.Volume, 10),
			TsEvent: p.Timestamp.UnixNano(),
			TsInit:  now,
		})
	}
	return bars, nil
}
