// Package greeks implements closed-form Black-Scholes pricing, Greeks, and
// a bracketed implied-volatility solver.
//
// All functions take continuously-compounded rate r and dividend yield q,
// time to expiry tau in ACT/365 years, and are NaN-safe: a NaN or
// non-positive sigma yields NaN rather than a panic, so callers can apply
// their own fallback.
package greeks

import (
	"errors"
	"math"
)

// MinTau is the floor applied to time-to-expiry. Same-day options approach
// tau = 0 intraday; flooring keeps d1/d2 and gamma finite.
const MinTau = 1.0 / 365.0

// Implied-vol bracket. Prices outside the no-arbitrage band for this
// volatility range fail with ErrNoConvergence.
const (
	volLo = 1e-4
	volHi = 3.0
)

// ErrNoConvergence is returned when the implied-vol bracket does not
// contain a root for the target price.
var ErrNoConvergence = errors.New("implied vol solve did not converge")

func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}

func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

// FloorTau clamps tau to [MinTau, inf).
func FloorTau(tau float64) float64 {
	if tau < MinTau || math.IsNaN(tau) {
		return MinTau
	}
	return tau
}

func badInputs(spot, strike, sigma float64) bool {
	return math.IsNaN(sigma) || sigma <= 0 ||
		math.IsNaN(spot) || spot <= 0 ||
		math.IsNaN(strike) || strike <= 0
}

func d1d2(spot, strike, sigma, tau, r, q float64) (float64, float64) {
	sqrtTau := math.Sqrt(tau)
	d1 := (math.Log(spot/strike) + (r-q+0.5*sigma*sigma)*tau) / (sigma * sqrtTau)
	return d1, d1 - sigma*sqrtTau
}

// Price returns the Black-Scholes option premium.
func Price(spot, strike, sigma, tau, r, q float64, call bool) float64 {
	if badInputs(spot, strike, sigma) {
		return math.NaN()
	}
	tau = FloorTau(tau)

	d1, d2 := d1d2(spot, strike, sigma, tau, r, q)
	dfR := math.Exp(-r * tau)
	dfQ := math.Exp(-q * tau)

	if call {
		return spot*dfQ*normCDF(d1) - strike*dfR*normCDF(d2)
	}
	return strike*dfR*normCDF(-d2) - spot*dfQ*normCDF(-d1)
}

// Delta returns the option delta.
func Delta(spot, strike, sigma, tau, r, q float64, call bool) float64 {
	if badInputs(spot, strike, sigma) {
		return math.NaN()
	}
	tau = FloorTau(tau)

	d1, _ := d1d2(spot, strike, sigma, tau, r, q)
	dfQ := math.Exp(-q * tau)

	if call {
		return dfQ * normCDF(d1)
	}
	return dfQ * (normCDF(d1) - 1)
}

// Gamma returns the option gamma per unit of underlying. Identical for
// calls and puts at the same strike; the right is accepted for interface
// symmetry with the other Greeks.
func Gamma(spot, strike, sigma, tau, r, q float64, call bool) float64 {
	_ = call
	if badInputs(spot, strike, sigma) {
		return math.NaN()
	}
	tau = FloorTau(tau)

	d1, _ := d1d2(spot, strike, sigma, tau, r, q)
	return math.Exp(-q*tau) * normPDF(d1) / (spot * sigma * math.Sqrt(tau))
}

// Vega returns the option vega per unit (not percent) of volatility.
func Vega(spot, strike, sigma, tau, r, q float64) float64 {
	if badInputs(spot, strike, sigma) {
		return math.NaN()
	}
	tau = FloorTau(tau)

	d1, _ := d1d2(spot, strike, sigma, tau, r, q)
	return spot * math.Exp(-q*tau) * normPDF(d1) * math.Sqrt(tau)
}

// Theta returns the option theta per year.
func Theta(spot, strike, sigma, tau, r, q float64, call bool) float64 {
	if badInputs(spot, strike, sigma) {
		return math.NaN()
	}
	tau = FloorTau(tau)

	d1, d2 := d1d2(spot, strike, sigma, tau, r, q)
	dfR := math.Exp(-r * tau)
	dfQ := math.Exp(-q * tau)
	decay := -spot * dfQ * normPDF(d1) * sigma / (2 * math.Sqrt(tau))

	if call {
		return decay - r*strike*dfR*normCDF(d2) + q*spot*dfQ*normCDF(d1)
	}
	return decay + r*strike*dfR*normCDF(-d2) - q*spot*dfQ*normCDF(-d1)
}

// ImpliedVol solves for the volatility that reprices the option at price,
// using bisection over [volLo, volHi]. Black-Scholes price is monotone in
// sigma, so a sign change across the bracket guarantees a root; without
// one the solve fails rather than returning a wrong answer.
func ImpliedVol(price, spot, strike, tau, r, q float64, call bool) (float64, error) {
	if math.IsNaN(price) || price <= 0 || spot <= 0 || strike <= 0 {
		return 0, ErrNoConvergence
	}
	tau = FloorTau(tau)

	f := func(sigma float64) float64 {
		return Price(spot, strike, sigma, tau, r, q, call) - price
	}

	lo, hi := volLo, volHi
	fLo, fHi := f(lo), f(hi)
	if math.IsNaN(fLo) || math.IsNaN(fHi) || fLo*fHi > 0 {
		return 0, ErrNoConvergence
	}

	const (
		maxIter  = 128
		priceTol = 1e-10
	)

	for i := 0; i < maxIter; i++ {
		mid := 0.5 * (lo + hi)
		fMid := f(mid)

		if math.Abs(fMid) < priceTol || hi-lo < 1e-9 {
			return mid, nil
		}
		if fLo*fMid < 0 {
			hi = mid
		} else {
			lo, fLo = mid, fMid
		}
	}

	return 0.5 * (lo + hi), nil
}
