package model

import "fmt"

// -----------------------------------------------------------------------------
// Identifiers
// -----------------------------------------------------------------------------

// Venue identifies a trading venue (e.g., "BITMEX").
type Venue string

// InstrumentID qualifies a symbol with its venue.
type InstrumentID struct {
	Symbol string // Venue-native symbol (e.g., "XBTUSD")
	Venue  Venue  // Owning venue
}

// String returns the canonical "SYMBOL.VENUE" form.
func (id InstrumentID) String() string {
	return fmt.Sprintf("%s.%s", id.Symbol, id.Venue)
}

// BarAggregation is the bar interval unit.
type BarAggregation string

const (
	AggregationMinute BarAggregation = "MINUTE"
	AggregationHour   BarAggregation = "HOUR"
	AggregationDay    BarAggregation = "DAY"
)

// BarType identifies a bar stream for one instrument.
type BarType struct {
	InstrumentID InstrumentID   // Underlying instrument
	Step         int            // Interval length in aggregation units
	Aggregation  BarAggregation // Interval unit
}

// String returns the canonical "SYMBOL.VENUE-STEP-AGGREGATION" form.
func (bt BarType) String() string {
	return fmt.Sprintf("%s-%d-%s", bt.InstrumentID, bt.Step, bt.Aggregation)
}

// BookType selects the order book representation for a subscription.
type BookType string

const (
	// BookTypeL2 is a price-level aggregated book.
	BookTypeL2 BookType = "L2_MBP"

	// BookTypeL1 is top-of-book only.
	BookTypeL1 BookType = "L1_MBP"

	// BookTypeL3 is order-level market-by-order, unsupported by most
	// venues.
	BookTypeL3 BookType = "L3_MBO"
)

// -----------------------------------------------------------------------------
// Reference Data
// -----------------------------------------------------------------------------

// Instrument is a tradeable contract definition.
type Instrument struct {
	ID            InstrumentID // Venue-qualified identifier
	RawSymbol     string       // Symbol exactly as the venue reports it
	BaseCurrency  string       // Base asset (e.g., "XBT")
	QuoteCurrency string       // Quote asset (e.g., "USD")
	TickSize      string       // Minimum price increment
	LotSize       string       // Minimum size increment
	MakerFee      string       // Maker fee rate
	TakerFee      string       // Taker fee rate
	IsActive      bool         // Open for trading
	TsEvent       int64        // Venue listing/update time (ns since epoch)
	TsInit        int64        // Local ingest time (ns since epoch)
}

// -----------------------------------------------------------------------------
// Market Data
// -----------------------------------------------------------------------------

// Trade is one executed trade.
type Trade struct {
	InstrumentID InstrumentID // Traded instrument
	TradeID      string       // Venue trade identifier
	Price        string       // Execution price
	Size         string       // Execution size
	AggressorBuy bool         // true = buyer was the aggressor
	TsEvent      int64        // Venue timestamp (ns since epoch)
	TsInit       int64        // Local receive timestamp (ns since epoch)
}

// Quote is a top-of-book update.
type Quote struct {
	InstrumentID InstrumentID // Quoted instrument
	BidPrice     string       // Best bid price
	BidSize      string       // Best bid size
	AskPrice     string       // Best ask price
	AskSize      string       // Best ask size
	TsEvent      int64        // Venue timestamp (ns since epoch)
	TsInit       int64        // Local receive timestamp (ns since epoch)
}

// Bar is one aggregated OHLCV interval.
type Bar struct {
	BarType BarType // Stream identity
	Open    string  // Opening price
	High    string  // Highest price
	Low     string  // Lowest price
	Close   string  // Closing price
	Volume  string  // Traded volume
	TsEvent int64   // Interval close time (ns since epoch)
	TsInit  int64   // Local receive timestamp (ns since epoch)
}

// BookAction describes how a level update applies.
type BookAction string

const (
	BookActionSnapshot BookAction = "snapshot"
	BookActionInsert   BookAction = "insert"
	BookActionUpdate   BookAction = "update"
	BookActionDelete   BookAction = "delete"
)

// BookLevel is one price level in an order book update.
type BookLevel struct {
	Price string // Price level
	Size  string // Quantity at this price
	IsBid bool   // true = bid side, false = ask side
}

// BookUpdate is one order book change or snapshot.
type BookUpdate struct {
	InstrumentID InstrumentID // Updated instrument
	Action       BookAction   // How the levels apply
	Levels       []BookLevel  // Affected levels
	TsEvent      int64        // Venue timestamp (ns since epoch)
	TsInit       int64        // Local receive timestamp (ns since epoch)
}
