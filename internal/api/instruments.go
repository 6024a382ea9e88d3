package api

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/venuelink/venuelink/internal/model"
)

// instrumentPayload mirrors the venue's instrument JSON.
type instrumentPayload struct {
	Symbol        string    `json:"symbol"`
	State         string    `json:"state"`
	Underlying    string    `json:"underlying"`
	QuoteCurrency string    `json:"quoteCurrency"`
	TickSize      float64   `json:"tickSize"`
	LotSize       float64   `json:"lotSize"`
	MakerFee      float64   `json:"makerFee"`
	TakerFee      float64   `json:"takerFee"`
	Timestamp     time.Time `json:"timestamp"`
}

func (p instrumentPayload) toModel(venue model.Venue, now time.Time) model.Instrument {
	return model.Instrument{
		ID:            model.InstrumentID{Symbol: p.Symbol, Venue: venue},
		RawSymbol:     p.Symbol,
		BaseCurrency:  p.Underlying,
		QuoteCurrency: p.QuoteCurrency,
		TickSize:      formatDecimal(p.TickSize),
		LotSize:       formatDecimal(p.LotSize),
		MakerFee:      formatDecimal(p.MakerFee),
		TakerFee:      formatDecimal(p.TakerFee),
		IsActive:      p.State == "Open",
		TsEvent:       p.Timestamp.UnixNano(),
		TsInit:        now.UnixNano(),
	}
}

// GetActiveInstruments fetches every instrument currently open for
// trading, sorted by instrument id, and refreshes the cache.
func (c *Client) GetActiveInstruments(ctx context.Context) ([]model.Instrument, error) {
	return c.GetInstruments(ctx, true)
}

// GetInstruments fetches instrument definitions, sorted by instrument id,
// and refreshes the cache. With activeOnly false, delisted and unlisted
// instruments are included.
func (c *Client) GetInstruments(ctx context.Context, activeOnly bool) ([]model.Instrument, error) {
	path := "/api/v1/instrument"
	if activeOnly {
		path = "/api/v1/instrument/active"
	}

	var payloads []instrumentPayload
	if err := c.get(ctx, path, nil, &payloads); err != nil {
		return nil, err
	}

	now := time.Now()
	instruments := make([]model.Instrument, 0, len(payloads))
	for _, p := range payloads {
		instruments = append(instruments, p.toModel(c.venue, now))
	}
	sort.Slice(instruments, func(i, j int) bool {
		return instruments[i].ID.Symbol < instruments[j].ID.Symbol
	})

	c.SetInstruments(instruments)
	return instruments, nil
}

// GetInstrument fetches a single instrument definition by venue symbol
// and updates its cache entry.
func (c *Client) GetInstrument(ctx context.Context, symbol string) (model.Instrument, error) {
	query := url.Values{}
	query.Set("symbol", symbol)

	var payloads []instrumentPayload
	if err := c.get(ctx, "/api/v1/instrument", query, &payloads); err != nil {
		return model.Instrument{}, err
	}
	if len(payloads) == 0 {
		return model.Instrument{}, &APIError{StatusCode: 404, Message: "instrument not found"}
	}

	inst := payloads[0].toModel(c.venue, time.Now())

	c.mu.Lock()
	c.instruments[inst.RawSymbol] = inst
	c.mu.Unlock()

	return inst, nil
}

func formatDecimal(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
