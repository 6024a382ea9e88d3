// Package adapter glues a venue's HTTP and WebSocket surfaces to the
// engine's data bus: lifecycle, subscriptions with replay-on-reconnect,
// point-in-time requests, and the stream forwarder.
package adapter

import (
	"time"

	"github.com/google/uuid"

	"github.com/venuelink/venuelink/internal/model"
)

// SubscribeTrades subscribes to the trade stream for one instrument.
type SubscribeTrades struct {
	ClientID     string
	InstrumentID model.InstrumentID
}

// UnsubscribeTrades removes a trade subscription.
type UnsubscribeTrades struct {
	ClientID     string
	InstrumentID model.InstrumentID
}

// SubscribeQuotes subscribes to top-of-book quotes for one instrument.
type SubscribeQuotes struct {
	ClientID     string
	InstrumentID model.InstrumentID
}

// UnsubscribeQuotes removes a quote subscription.
type UnsubscribeQuotes struct {
	ClientID     string
	InstrumentID model.InstrumentID
}

// SubscribeBook subscribes to order book updates. The venue topic is
// selected from the book type and depth; unsupported combinations fail
// synchronously.
type SubscribeBook struct {
	ClientID     string
	InstrumentID model.InstrumentID
	BookType     model.BookType
	Depth        int
}

// UnsubscribeBook removes a book subscription using the topic recorded at
// subscribe time.
type UnsubscribeBook struct {
	ClientID     string
	InstrumentID model.InstrumentID
}

// SubscribeBars subscribes to aggregated bars.
type SubscribeBars struct {
	ClientID string
	BarType  model.BarType
}

// UnsubscribeBars removes a bar subscription.
type UnsubscribeBars struct {
	ClientID string
	BarType  model.BarType
}

// RequestInstruments asks for the current instrument definitions.
type RequestInstruments struct {
	ClientID  string
	RequestID uuid.UUID
}

// RequestTrades asks for historical trades.
type RequestTrades struct {
	ClientID     string
	RequestID    uuid.UUID
	InstrumentID model.InstrumentID
	Limit        int
	Start        time.Time
	End          time.Time
}

// RequestBars asks for historical bars.
type RequestBars struct {
	ClientID  string
	RequestID uuid.UUID
	BarType   model.BarType
	Limit     int
	Start     time.Time
	End       time.Time
}

// DataResponse answers a Request* command; RequestID echoes the request.
type DataResponse struct {
	ClientID  string
	RequestID uuid.UUID
	Venue     model.Venue
	Data      any
	TsServer  int64
}

// Message is one item emitted on the data queue. Exactly one field is
// set.
type Message struct {
	Trade      *model.Trade
	Quote      *model.Quote
	Bar        *model.Bar
	Book       *model.BookUpdate
	Instrument *model.Instrument
	Response   *DataResponse
}
