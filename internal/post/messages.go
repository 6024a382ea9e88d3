// Package post implements request/response correlation and batch
// scheduling for venues that multiplex RPC-style calls over a single
// WebSocket connection. Requests carry a router-minted id; the venue
// echoes it on the response.
package post

import (
	"encoding/json"
	"sync/atomic"
)

// Request types.
const (
	RequestTypeInfo   = "info"
	RequestTypeAction = "action"
)

// WsRequest is the post envelope written to the venue socket.
type WsRequest struct {
	Method  string  `json:"method"`
	ID      uint64  `json:"id"`
	Request Request `json:"request"`
}

// Request is one post body, either an unsigned info query or a signed
// action. The payload is opaque to the scheduler.
type Request struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Response is a venue reply correlated by id.
type Response struct {
	ID       uint64          `json:"id"`
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
}

// Action types.
const (
	ActionOrder         = "order"
	ActionCancel        = "cancel"
	ActionCancelByCloid = "cancelByCloid"
	ActionModify        = "modify"
)

// Action is the typed body of an action request, used for lane
// classification before serialization.
type Action struct {
	Type     string          `json:"type"`
	Orders   []OrderRequest  `json:"orders,omitempty"`
	Grouping string          `json:"grouping,omitempty"`
	Cancels  []CancelRequest `json:"cancels,omitempty"`
	Modifies []ModifyRequest `json:"modifies,omitempty"`
}

// OrderRequest uses the venue's compact field names.
type OrderRequest struct {
	Asset      uint32    `json:"a"`
	IsBuy      bool      `json:"b"`
	Price      string    `json:"p"`
	Size       string    `json:"s"`
	ReduceOnly bool      `json:"r"`
	Type       OrderType `json:"t"`
	Cloid      string    `json:"c,omitempty"`
}

// OrderType is a tagged union: exactly one member is set.
type OrderType struct {
	Limit   *LimitType   `json:"limit,omitempty"`
	Trigger *TriggerType `json:"trigger,omitempty"`
}

// LimitType parameterizes a limit order.
type LimitType struct {
	Tif TimeInForce `json:"tif"`
}

// TriggerType parameterizes a stop or take-profit order.
type TriggerType struct {
	IsMarket  bool   `json:"isMarket"`
	TriggerPx string `json:"triggerPx"`
	TpSl      string `json:"tpsl"`
}

// TimeInForce values in the venue's request format.
type TimeInForce string

const (
	TifAlo TimeInForce = "Alo"
	TifIoc TimeInForce = "Ioc"
	TifGtc TimeInForce = "Gtc"
)

// CancelRequest cancels one order by venue order id.
type CancelRequest struct {
	Asset   uint32 `json:"a"`
	OrderID uint64 `json:"o"`
}

// ModifyRequest replaces one resting order.
type ModifyRequest struct {
	OrderID uint64       `json:"oid"`
	Order   OrderRequest `json:"order"`
}

// IDs mints monotonically increasing post ids.
type IDs struct {
	n atomic.Uint64
}

// NewIDs returns a generator whose first Next returns start.
func NewIDs(start uint64) *IDs {
	ids := &IDs{}
	ids.n.Store(start)
	return ids
}

// Next returns the next id.
func (i *IDs) Next() uint64 {
	return i.n.Add(1) - 1
}
