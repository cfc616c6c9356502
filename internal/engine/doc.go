// Package engine implements the streaming dealer-gamma aggregation loop.
//
// One logical consumer pulls raw trade messages off the inbound queue and
// runs each through: normalization, symbol parsing, NBBO-based aggressor
// classification, volatility lookup/refresh, Black-Scholes gamma, and a
// strike ledger update. On a fixed cadence it hands the aggregate dealer
// gamma to an external snapshot sink.
//
// The loop is designed to run indefinitely against a noisy, partially
// available upstream: malformed trades, missing quotes, expired options,
// and numerical failures each drop a single trade and nothing more.
package engine
