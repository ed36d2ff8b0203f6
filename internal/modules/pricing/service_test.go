package pricing

import (
	"context"
	"errors"
	"testing"

	"giftwave/internal/apperr"
)

type fakeRates struct {
	rates map[Band]Rate
	err   error
}

func (f *fakeRates) GetRate(_ context.Context, band Band) (Rate, bool, error) {
	if f.err != nil {
		return Rate{}, false, f.err
	}
	r, ok := f.rates[band]
	return r, ok, nil
}

func TestService_DeliveryFee(t *testing.T) {
	svc := NewService(nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		origin   string
		dest     string
		wantFee  int64
		wantBand Band
	}{
		{"same province plain city", "Lahore", "Multan", 550, BandSameProvince},
		{"same province major city", "Multan", "Lahore", 660, BandSameProvince},
		{"same city", "Karachi", "karachi", 660, BandSameProvince},
		{"inter province", "Karachi", "Peshawar", 1400, BandInterProvince},
		{"inter province capital", "Karachi", "Islamabad", 1540, BandInterProvince},
		{"unknown origin", "Atlantis", "Multan", 1400, BandInterProvince},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := svc.Quote(ctx, tt.origin, tt.dest)
			if err != nil {
				t.Fatalf("quote: %v", err)
			}
			if q.Fee.Amount != tt.wantFee || q.Band != tt.wantBand {
				t.Errorf("Quote(%s, %s) = %d/%s, want %d/%s", tt.origin, tt.dest, q.Fee.Amount, q.Band, tt.wantFee, tt.wantBand)
			}
			if q.Fee.Currency != "PKR" {
				t.Errorf("unexpected currency %q", q.Fee.Currency)
			}
			again, _ := svc.DeliveryFee(ctx, tt.origin, tt.dest)
			if again != q.Fee {
				t.Errorf("fee is not deterministic: %v vs %v", again, q.Fee)
			}
		})
	}
}

func TestService_RateOverride(t *testing.T) {
	src := &fakeRates{rates: map[Band]Rate{
		BandSameProvince: {Band: BandSameProvince, MinFee: 200, MaxFee: 400},
	}}
	svc := NewService(src)
	fee, err := svc.DeliveryFee(context.Background(), "Sialkot", "Multan")
	if err != nil {
		t.Fatalf("fee: %v", err)
	}
	if fee.Amount != 300 || fee.Currency != "PKR" {
		t.Fatalf("expected overridden 300 PKR, got %v", fee)
	}
	fee, _ = svc.DeliveryFee(context.Background(), "Quetta", "Multan")
	if fee.Amount != 1400 {
		t.Fatalf("expected default inter-province fee, got %v", fee)
	}
}

func TestService_RateSourceFailure(t *testing.T) {
	svc := NewService(&fakeRates{err: errors.New("connection reset")})
	_, err := svc.DeliveryFee(context.Background(), "Lahore", "Multan")
	if !errors.Is(err, apperr.ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}
