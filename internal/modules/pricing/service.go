// README: Pricing service quotes delivery fees from province bands.
package pricing

import (
    "context"

    "giftwave/internal/apperr"
    "giftwave/internal/modules/location"
    "giftwave/internal/types"
)

// RateSource overrides the built-in bands. A band it does not know falls back
// to the default.
type RateSource interface {
    GetRate(ctx context.Context, band Band) (Rate, bool, error)
}

type Service struct {
    rates RateSource
}

func NewService(rates RateSource) *Service {
    return &Service{rates: rates}
}

// DeliveryFee quotes the fee for carrying a gift from origin to dest city.
func (s *Service) DeliveryFee(ctx context.Context, origin, dest string) (types.Money, error) {
    q, err := s.Quote(ctx, origin, dest)
    if err != nil {
        return types.Money{}, err
    }
    return q.Fee, nil
}

// Quote is deterministic: the band midpoint scaled by the destination city
// multiplier. Cities outside the gazetteer are priced as inter-province.
func (s *Service) Quote(ctx context.Context, origin, dest string) (Quote, error) {
    band := bandFor(origin, dest)
    rate, err := s.rateFor(ctx, band)
    if err != nil {
        return Quote{}, err
    }
    mult := int64(100)
    if m, ok := cityMultipliers[location.NormalizeCity(dest)]; ok {
        mult = m
    }
    base := rate.Midpoint()
    fee := (base*mult + 50) / 100
    return Quote{
        Fee:           types.Money{Amount: fee, Currency: rate.Currency},
        Band:          band,
        MultiplierPct: mult,
        Breakdown: map[string]int64{
            "band_min":       rate.MinFee,
            "band_max":       rate.MaxFee,
            "base":           base,
            "multiplier_pct": mult,
            "total":          fee,
        },
    }, nil
}

func (s *Service) rateFor(ctx context.Context, band Band) (Rate, error) {
    def := defaultRates[band]
    if s.rates == nil {
        return def, nil
    }
    r, ok, err := s.rates.GetRate(ctx, band)
    if err != nil {
        return Rate{}, apperr.Unavailable("pricing rate", err)
    }
    if !ok {
        return def, nil
    }
    if r.Currency == "" {
        r.Currency = def.Currency
    }
    return r, nil
}

func bandFor(origin, dest string) Band {
    op, ok1 := location.ProvinceOf(origin)
    dp, ok2 := location.ProvinceOf(dest)
    if ok1 && ok2 && op == dp {
        return BandSameProvince
    }
    if location.SameCity(origin, dest) && origin != "" {
        return BandSameProvince
    }
    return BandInterProvince
}
