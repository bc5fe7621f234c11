package budget

import (
	"fmt"
	"math"
)

// Micros is an amount in millionths of a US dollar. All governor arithmetic
// happens in Micros so repeated settlements cannot drift.
type Micros int64

const microsPerUSD = 1_000_000

// FromUSD converts dollars to Micros, rounding to the nearest micro-dollar.
func FromUSD(usd float64) Micros {
	return Micros(math.Round(usd * microsPerUSD))
}

// USD converts back to dollars.
func (m Micros) USD() float64 {
	return float64(m) / microsPerUSD
}

func (m Micros) String() string {
	return fmt.Sprintf("$%.6f", m.USD())
}
