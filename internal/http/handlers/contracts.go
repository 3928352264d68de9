package handlers

import (
	"context"

	"github.com/Orurh/courier-dispatch/internal/domain"
	"github.com/Orurh/courier-dispatch/internal/service/dispatch"
)

type dispatchUsecase interface {
	FindAvailableDrivers(ctx context.Context, lat, lon, radiusKm float64) ([]domain.AvailableCourier, error)
	AssignOrder(ctx context.Context, orderID string, driverID *int64) (dispatch.Result, error)
	AcceptBroadcast(ctx context.Context, broadcastID, driverID int64) (*domain.Assignment, error)
	AcceptAssignment(ctx context.Context, assignmentID, driverID int64) (*domain.Assignment, error)
	Decline(ctx context.Context, assignmentID int64) (*domain.Assignment, error)
	UpdateStatus(ctx context.Context, assignmentID, driverID int64, status domain.AssignmentStatus) (*domain.Assignment, error)
	Assignment(ctx context.Context, id int64) (*domain.Assignment, error)
	ActiveAssignments(ctx context.Context, driverID int64) ([]domain.Assignment, error)
	DriverHistory(ctx context.Context, driverID int64) ([]domain.Assignment, error)
	CustomerHistory(ctx context.Context, customerID int64) ([]domain.Assignment, error)
	DriverAnalytics(ctx context.Context, driverID int64) (domain.DriverAnalytics, error)
}

// NewDispatchUsecase wires a dispatch.Service into a dispatchUsecase.
func NewDispatchUsecase(svc *dispatch.Service) dispatchUsecase {
	return svc
}
