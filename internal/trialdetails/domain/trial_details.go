package domain

import (
	"github.com/shopspring/decimal"
)

// TrialDetails is the host snapshot returned by GET /trialDetails.
// It is built fresh per request and never stored.
type TrialDetails struct {
	OSName                  string  `json:"osName"`
	OSArchitecture          string  `json:"osArchitecture"`
	OSVersion               string  `json:"osVersion"`
	SystemCPULoad           Decimal `json:"systemCpuLoad"`
	FreePhysicalMemorySize  Decimal `json:"freePhysicalMemorySize"`
	TotalPhysicalMemorySize Decimal `json:"totalPhysicalMemorySize"`
}

// Decimal is an arbitrary-precision number that encodes as a bare JSON number.
// shopspring/decimal quotes by default; clients of this API expect numbers.
type Decimal struct {
	decimal.Decimal
}

// NewDecimalFromFloat wraps f.
func NewDecimalFromFloat(f float64) Decimal {
	return Decimal{decimal.NewFromFloat(f)}
}

// NewDecimalFromUint wraps n.
func NewDecimalFromUint(n uint64) Decimal {
	return Decimal{decimal.NewFromUint64(n)}
}

// MarshalJSON encodes d without quotes.
func (d Decimal) MarshalJSON() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalJSON accepts both quoted and bare numbers.
func (d *Decimal) UnmarshalJSON(b []byte) error {
	return d.Decimal.UnmarshalJSON(b)
}
