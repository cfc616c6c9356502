package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/mwheeler/gexstream/internal/model"
)

// Upstream producers are inconsistent about trade message shape: short
// field names vs long, seconds vs nanoseconds. Everything is normalized
// here, once, into a model.Trade; downstream logic never sees the raw
// shape.

// DecodeError describes why a raw trade message was rejected. Each decode
// failure drops exactly one message; it is never fatal.
type DecodeError struct {
	Field  string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode trade: %s %s", e.Field, e.Reason)
}

// tradeWire accepts both field-name dialects.
type tradeWire struct {
	Sym    string   `json:"sym"`
	Symbol string   `json:"symbol"`
	P      *float64 `json:"p"`
	Price  *float64 `json:"price"`
	S      *int64   `json:"s"`
	Size   *int64   `json:"size"`
	T      *int64   `json:"t"`
	TS     *int64   `json:"timestamp"`
	ID     string   `json:"i"`
}

// Timestamps above this magnitude are nanoseconds since epoch; below,
// seconds. (1e10 seconds is the year 2286.)
const nanoCutoff = int64(1e10)

func decodeTrade(raw RawMessage) (model.Trade, error) {
	var wire tradeWire
	if err := json.Unmarshal(raw.Data, &wire); err != nil {
		return model.Trade{}, &DecodeError{Field: "message", Reason: "not valid JSON"}
	}

	symbol := wire.Sym
	if symbol == "" {
		symbol = wire.Symbol
	}
	if symbol == "" {
		return model.Trade{}, &DecodeError{Field: "sym", Reason: "missing"}
	}

	price := wire.P
	if price == nil {
		price = wire.Price
	}
	if price == nil {
		return model.Trade{}, &DecodeError{Field: "p", Reason: "missing"}
	}
	if math.IsNaN(*price) || math.IsInf(*price, 0) || *price <= 0 {
		return model.Trade{}, &DecodeError{Field: "p", Reason: "not a positive finite number"}
	}

	size := wire.S
	if size == nil {
		size = wire.Size
	}
	if size == nil {
		return model.Trade{}, &DecodeError{Field: "s", Reason: "missing"}
	}
	if *size <= 0 {
		return model.Trade{}, &DecodeError{Field: "s", Reason: "not positive"}
	}

	ts := wire.T
	if ts == nil {
		ts = wire.TS
	}
	if ts == nil {
		return model.Trade{}, &DecodeError{Field: "t", Reason: "missing"}
	}
	if *ts <= 0 {
		return model.Trade{}, &DecodeError{Field: "t", Reason: "not positive"}
	}

	var when time.Time
	if *ts > nanoCutoff {
		when = time.Unix(0, *ts)
	} else {
		when = time.Unix(*ts, 0)
	}

	id, err := uuid.Parse(wire.ID)
	if err != nil {
		id = uuid.New()
	}

	return model.Trade{
		ID:         id,
		Symbol:     symbol,
		Price:      *price,
		Size:       *size,
		Time:       when.UTC(),
		ReceivedAt: raw.ReceivedAt,
	}, nil
}
