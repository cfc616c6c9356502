// Package model defines shared data types used across the gamma exposure engine.
//
// Conventions:
//   - Prices: float64 dollars (option premiums and index levels)
//   - Strikes: integer whole dollars (ledger key granularity)
//   - Timestamps: time.Time, normalized at the ingress boundary
//   - IDs: uuid.UUID for trades, assigned at decode when the vendor omits one
package model
