package adapter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/venuelink/venuelink/internal/model"
)

// Venue book topics.
const (
	channelBookL2    = "orderBookL2"
	channelBookL2_25 = "orderBookL2_25"
	channelBook10    = "orderBook10"
)

// bookChannelFor selects the venue topic for a book subscription. Full L2
// at depth 0, the 25-level variant for shallow depths, and the 10-level
// snapshot feed for depth 10. Market-by-order and top-of-book types have
// no book topic.
func bookChannelFor(bookType model.BookType, depth int) (string, error) {
	if bookType != model.BookTypeL2 {
		return "", fmt.Errorf("unsupported book type %s", bookType)
	}
	switch depth {
	case 0:
		return channelBookL2, nil
	case 10:
		return channelBook10, nil
	case 25:
		return channelBookL2_25, nil
	default:
		return "", fmt.Errorf("unsupported book depth %d", depth)
	}
}

// barChannelFor maps a bar type onto a venue bin topic.
func barChannelFor(bt model.BarType) (string, error) {
	switch {
	case bt.Step == 1 && bt.Aggregation == model.AggregationMinute:
		return "tradeBin1m", nil
	case bt.Step == 5 && bt.Aggregation == model.AggregationMinute:
		return "tradeBin5m", nil
	case bt.Step == 1 && bt.Aggregation == model.AggregationHour:
		return "tradeBin1h", nil
	case bt.Step == 1 && bt.Aggregation == model.AggregationDay:
		return "tradeBin1d", nil
	default:
		return "", fmt.Errorf("unsupported bar type %s", bt)
	}
}

func barTypeForChannel(channel string, id model.InstrumentID) (model.BarType, bool) {
	bt := model.BarType{InstrumentID: id}
	switch channel {
	case "tradeBin1m":
		bt.Step, bt.Aggregation = 1, model.AggregationMinute
	case "tradeBin5m":
		bt.Step, bt.Aggregation = 5, model.AggregationMinute
	case "tradeBin1h":
		bt.Step, bt.Aggregation = 1, model.AggregationHour
	case "tradeBin1d":
		bt.Step, bt.Aggregation = 1, model.AggregationDay
	default:
		return model.BarType{}, false
	}
	return bt, true
}

func subscribeFrame(topic string) []byte {
	frame, _ := json.Marshal(map[string]any{"op": "subscribe", "args": []string{topic}})
	return frame
}

func unsubscribeFrame(topic string) []byte {
	frame, _ := json.Marshal(map[string]any{"op": "unsubscribe", "args": []string{topic}})
	return frame
}

// wsEnvelope is the venue's push message frame.
type wsEnvelope struct {
	Table  string          `json:"table"`
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

type wsTrade struct {
	Timestamp  time.Time `json:"timestamp"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Size       int64     `json:"size"`
	Price      float64   `json:"price"`
	TrdMatchID string    `json:"trdMatchID"`
}

func (t wsTrade) toModel(venue model.Venue, now int64) model.Trade {
	return model.Trade{
		InstrumentID: model.InstrumentID{Symbol: t.Symbol, Venue: venue},
		TradeID:      t.TrdMatchID,
		Price:        formatDecimal(t.Price),
		Size:         strconv.FormatInt(t.Size, 10),
		AggressorBuy: t.Side == "Buy",
		TsEvent:      t.Timestamp.UnixNano(),
		TsInit:       now,
	}
}

type wsQuote struct {
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol"`
	BidPrice  float64   `json:"bidPrice"`
	BidSize   int64     `json:"bidSize"`
	AskPrice  float64   `json:"askPrice"`
	AskSize   int64     `json:"askSize"`
}

func (q wsQuote) toModel(venue model.Venue, now int64) model.Quote {
	return model.Quote{
		InstrumentID: model.InstrumentID{Symbol: q.Symbol, Venue: venue},
		BidPrice:     formatDecimal(q.BidPrice),
		BidSize:      strconv.FormatInt(q.BidSize, 10),
		AskPrice:     formatDecimal(q.AskPrice),
		AskSize:      strconv.FormatInt(q.AskSize, 10),
		TsEvent:      q.Timestamp.UnixNano(),
		TsInit:       now,
	}
}

type wsBookLevel struct {
	Symbol string  `json:"symbol"`
	Side   string  `json:"side"`
	Size   int64   `json:"size"`
	Price  float64 `json:"price"`
}

type wsBook10 struct {
	Timestamp time.Time    `json:"timestamp"`
	Symbol    string       `json:"symbol"`
	Bids      [][2]float64 `json:"bids"`
	Asks      [][2]float64 `json:"asks"`
}

type wsBar struct {
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

func bookActionFor(action string) model.BookAction {
	switch action {
	case "partial":
		return model.BookActionSnapshot
	case "insert":
		return model.BookActionInsert
	case "delete":
		return model.BookActionDelete
	default:
		return model.BookActionUpdate
	}
}

func formatDecimal(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
