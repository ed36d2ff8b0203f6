// README: Pricing store backed by PostgreSQL.
package pricing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// GetRate returns the operator override for band, if one is configured.
func (s *Store) GetRate(ctx context.Context, band Band) (Rate, bool, error) {
	var r Rate
	err := s.db.QueryRow(ctx, `
		SELECT band, min_fee, max_fee, currency
		FROM delivery_rates
		WHERE band = $1`, string(band),
	).Scan(&r.Band, &r.MinFee, &r.MaxFee, &r.Currency)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rate{}, false, nil
	}
	if err != nil {
		return Rate{}, false, err
	}
	return r, true, nil
}

func (s *Store) PutRate(ctx context.Context, r Rate) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO delivery_rates (band, min_fee, max_fee, currency)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (band) DO UPDATE
		SET min_fee = EXCLUDED.min_fee, max_fee = EXCLUDED.max_fee, currency = EXCLUDED.currency`,
		string(r.Band), r.MinFee, r.MaxFee, r.Currency,
	)
	return err
}
