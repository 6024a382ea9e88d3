package model

import "testing"

func TestInstrumentID_String(t *testing.T) {
	id := InstrumentID{Symbol: "XBTUSD", Venue: "BITMEX"}
	if got := id.String(); got != "XBTUSD.BITMEX" {
		t.Errorf("String = %q, want %q", got, "XBTUSD.BITMEX")
	}
}

func TestBarType_String(t *testing.T) {
	bt := BarType{
		InstrumentID: InstrumentID{Symbol: "XBTUSD", Venue: "BITMEX"},
		Step:         1,
		Aggregation:  AggregationMinute,
	}
	if got := bt.String(); got != "XBTUSD.BITMEX-1-MINUTE" {
		t.Errorf("String = %q, want %q", got, "XBTUSD.BITMEX-1-MINUTE")
	}
}
