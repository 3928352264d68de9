package dispatch

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Orurh/courier-dispatch/internal/domain"
	"github.com/Orurh/courier-dispatch/internal/geo"
	"github.com/Orurh/courier-dispatch/internal/ports/dispatchtx"
)

// filterAvailable keeps dispatchable couriers below the stacking limit and
// ranks them by distance from ref. Couriers without a position are dropped.
func filterAvailable(ref geo.Point, couriers []domain.Courier, counts map[int64]int, limit int) []domain.AvailableCourier {
	under := make([]domain.Courier, 0, len(couriers))
	for _, c := range couriers {
		if !c.Dispatchable() || counts[c.ID] >= limit {
			continue
		}
		under = append(under, c)
	}

	ranked := geo.Rank(ref, under, func(c domain.Courier) *geo.Point { return c.Location })
	out := make([]domain.AvailableCourier, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, domain.AvailableCourier{
			Courier:     r.Item,
			DistanceKm:  r.DistanceKm,
			ActiveCount: counts[r.Item.ID],
		})
	}
	return out
}

func (s *Service) eligible(ctx context.Context, tx dispatchtx.Repository, ref geo.Point) ([]domain.AvailableCourier, error) {
	couriers, err := tx.ListDispatchableCouriers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list couriers: %w", err)
	}
	ids := make([]int64, 0, len(couriers))
	for _, c := range couriers {
		ids = append(ids, c.ID)
	}
	counts, err := tx.ActiveCounts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("active counts: %w", err)
	}
	return filterAvailable(ref, couriers, counts, s.policy.StackingLimit), nil
}

// FindAvailableDrivers lists eligible couriers nearest first. A non-positive
// radius disables the distance cut.
func (s *Service) FindAvailableDrivers(ctx context.Context, lat, lon, radiusKm float64) (_ []domain.AvailableCourier, err error) {
	ref := geo.Point{Lat: lat, Lon: lon}
	if !ref.Valid() {
		return nil, ErrInvalidLocation
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ctx, span := s.startSpan(ctx, "dispatch.FindAvailableDrivers",
		attribute.Float64("geo.lat", lat),
		attribute.Float64("geo.lon", lon),
		attribute.Float64("radius_km", radiusKm),
	)
	defer func() { endSpan(span, err) }()

	var found []domain.AvailableCourier
	err = s.store.WithTx(ctx, func(tx dispatchtx.Repository) error {
		all, err := s.eligible(ctx, tx, ref)
		if err != nil {
			return err
		}
		for _, c := range all {
			if radiusKm > 0 && c.DistanceKm > radiusKm {
				break
			}
			found = append(found, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}
