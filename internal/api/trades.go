package api

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/venuelink/venuelink/internal/model"
)

// tradePayload mirrors the venue's trade JSON.
type tradePayload struct {
	Timestamp  time.Time `json:"timestamp"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Size       int64     `json:"size"`
	Price      float64   `json:"price"`
	TrdMatchID string    `json:"trdMatchID"`
}

// GetTrades fetches historical trades for a symbol, oldest first. A zero
// start or end leaves the corresponding bound open; limit caps the count.
func (c *Client) GetTrades(ctx context.Context, symbol string, limit int, start, end time.Time) ([]model.Trade, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	if limit > 0 {
		query.Set("count", strconv.Itoa(limit))
	}
	if !start.IsZero() {
		query.Set("startTime", start.UTC().Format(time.RFC3339))
	}
	if !end.IsZero() {
		query.Set("endTime", end.UTC().Format(time.RFC3339))
	}

	var payloads []tradePayload
	if err := c.get(ctx, "/api/v1/trade", query, &payloads); err != nil {
		return nil, err
	}

	now := time.Now().UnixNano()
	trades := make([]model.Trade, 0, len(payloads))
	for _, p := range payloads {
		trades = append(trades, model.Trade{
			InstrumentID: model.InstrumentID{Symbol: p.Symbol, Venue: c.venue},
			TradeID:      p.TrdMatchID,
			Price:        formatDecimal(p.Price),
			Size:         strconv.FormatInt(p.Size, 10),
			AggressorBuy: p.Side == "Buy",
			TsEvent:      p.Timestamp.UnixNano(),
			TsInit:       now,
		})
	}
	return trades, nil
}
