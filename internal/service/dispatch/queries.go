package dispatch

import (
	"context"
	"fmt"

	"github.com/Orurh/courier-dispatch/internal/domain"
)

// ActiveAssignments returns the courier's assignments that are not finished yet.
func (s *Service) ActiveAssignments(ctx context.Context, driverID int64) ([]domain.Assignment, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	out, err := s.store.ActiveAssignments(ctx, driverID)
	if err != nil {
		return nil, fmt.Errorf("active assignments: %w", err)
	}
	return out, nil
}

// Assignment returns one assignment by id.
func (s *Service) Assignment(ctx context.Context, id int64) (*domain.Assignment, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	a, err := s.store.GetAssignment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	if a == nil {
		return nil, ErrAssignmentNotFound
	}
	return a, nil
}

// DriverHistory returns all assignments of a courier, newest first.
func (s *Service) DriverHistory(ctx context.Context, driverID int64) ([]domain.Assignment, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	out, err := s.store.DriverHistory(ctx, driverID)
	if err != nil {
		return nil, fmt.Errorf("driver history: %w", err)
	}
	return out, nil
}

// CustomerHistory returns assignments of the customer's orders, newest first.
func (s *Service) CustomerHistory(ctx context.Context, customerID int64) ([]domain.Assignment, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	out, err := s.store.CustomerHistory(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("customer history: %w", err)
	}
	return out, nil
}

// DriverAnalytics counts delivered and failed assignments of a courier.
func (s *Service) DriverAnalytics(ctx context.Context, driverID int64) (domain.DriverAnalytics, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	out, err := s.store.DriverAnalytics(ctx, driverID)
	if err != nil {
		return domain.DriverAnalytics{}, fmt.Errorf("driver analytics: %w", err)
	}
	return out, nil
}
