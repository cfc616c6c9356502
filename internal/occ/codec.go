// Package occ parses OCC-style fixed-width option symbols as delivered by
// the market-data vendor: root + 6-digit yymmdd date + C/P + 8-digit strike
// in thousandths of a dollar, optionally prefixed with "O:".
//
// Example: "O:SPXW250530C05900000" = SPXW 2025-05-30 5900 call.
package occ

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mwheeler/gexstream/internal/model"
)

// ErrInvalidSymbol is returned for any symbol that does not match the
// vendor encoding. Garbled symbols are rejected outright rather than
// parsed best-effort.
var ErrInvalidSymbol = errors.New("invalid option symbol")

const (
	prefix = "O:"

	// Fixed-width tail: yymmdd (6) + right (1) + strike thousandths (8).
	dateLen   = 6
	strikeLen = 8
	tailLen   = dateLen + 1 + strikeLen
)

// Parse decodes an option symbol string. Pure function, no side effects.
func Parse(s string) (model.OptionSymbol, error) {
	raw := s
	if len(s) >= len(prefix) && s[:len(prefix)] == prefix {
		s = s[len(prefix):]
	}

	if len(s) <= tailLen {
		return model.OptionSymbol{}, fmt.Errorf("%w: %q too short", ErrInvalidSymbol, raw)
	}

	root := s[:len(s)-tailLen]
	tail := s[len(s)-tailLen:]

	expiry, err := time.ParseInLocation("060102", tail[:dateLen], time.UTC)
	if err != nil {
		return model.OptionSymbol{}, fmt.Errorf("%w: %q bad expiry date", ErrInvalidSymbol, raw)
	}

	var call bool
	switch tail[dateLen] {
	case 'C':
		call = true
	case 'P':
		call = false
	default:
		return model.OptionSymbol{}, fmt.Errorf("%w: %q bad right %q", ErrInvalidSymbol, raw, tail[dateLen])
	}

	strikeStr := tail[dateLen+1:]
	for _, c := range strikeStr {
		if c < '0' || c > '9' {
			return model.OptionSymbol{}, fmt.Errorf("%w: %q bad strike", ErrInvalidSymbol, raw)
		}
	}
	milli, err := strconv.Atoi(strikeStr)
	if err != nil {
		return model.OptionSymbol{}, fmt.Errorf("%w: %q bad strike", ErrInvalidSymbol, raw)
	}
	if milli <= 0 {
		return model.OptionSymbol{}, fmt.Errorf("%w: %q non-positive strike", ErrInvalidSymbol, raw)
	}
	// The ledger keys by whole-dollar strike; sub-dollar strikes do not
	// occur on the index chains this engine covers.
	if milli%1000 != 0 {
		return model.OptionSymbol{}, fmt.Errorf("%w: %q fractional strike unsupported", ErrInvalidSymbol, raw)
	}

	return model.OptionSymbol{
		Root:   root,
		Expiry: expiry,
		Strike: milli / 1000,
		Call:   call,
	}, nil
}
