// README: Delivery fee bands and quote breakdown.
package pricing

import "giftwave/internal/types"

type Band string

const (
    BandSameProvince  Band = "same_province"
    BandInterProvince Band = "inter_province"
)

// Rate is the fee range for a band in whole currency units.
type Rate struct {
    Band     Band
    MinFee   int64
    MaxFee   int64
    Currency string
}

func (r Rate) Midpoint() int64 {
    return (r.MinFee + r.MaxFee) / 2
}

var defaultRates = map[Band]Rate{
    BandSameProvince:  {Band: BandSameProvince, MinFee: 300, MaxFee: 800, Currency: types.DefaultCurrency},
    BandInterProvince: {Band: BandInterProvince, MinFee: 800, MaxFee: 2000, Currency: types.DefaultCurrency},
}

// cityMultipliers are applied by destination city, in percent.
var cityMultipliers = map[string]int64{
    "lahore":     120,
    "karachi":    120,
    "islamabad":  110,
    "rawalpindi": 110,
}

type Quote struct {
    Fee           types.Money      `json:"fee"`
    Band          Band             `json:"band"`
    MultiplierPct int64            `json:"multiplierPct"`
    Breakdown     map[string]int64 `json:"breakdown,omitempty"`
}
