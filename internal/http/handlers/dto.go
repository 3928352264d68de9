package handlers

import (
	"time"

	"github.com/Orurh/courier-dispatch/internal/domain"
)

type availableDriverDTO struct {
	DriverID   int64                `json:"driver_id"`
	CourierID  int64                `json:"courier_id"`
	Name       string               `json:"name"`
	Status     domain.CourierStatus `json:"status"`
	Lat        float64              `json:"lat"`
	Lon        float64              `json:"lon"`
	DistanceKm float64              `json:"distance_km"`
	ActiveJobs int                  `json:"active_jobs"`
}

type dispatchOrderRequest struct {
	DriverID *int64 `json:"driver_id,omitempty"`
}

type driverRequest struct {
	DriverID int64 `json:"driver_id"`
}

type updateStatusRequest struct {
	DriverID int64  `json:"driver_id"`
	Status   string `json:"status"`
}

type assignmentDTO struct {
	ID             int64                   `json:"id"`
	OrderID        string                  `json:"order_id"`
	CourierID      int64                   `json:"courier_id"`
	DriverID       int64                   `json:"driver_id"`
	Status         domain.AssignmentStatus `json:"status"`
	AcceptedAt     *time.Time              `json:"accepted_at,omitempty"`
	TimeoutSeconds int                     `json:"timeout_seconds"`
	Attempts       int                     `json:"attempts"`
	BatchID        *string                 `json:"batch_id,omitempty"`
	DistanceKm     float64                 `json:"distance_km,omitempty"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
}

type broadcastDTO struct {
	ID               int64                  `json:"id"`
	OrderID          string                 `json:"order_id"`
	DriverIDs        []int64                `json:"driver_ids"`
	Status           domain.BroadcastStatus `json:"status"`
	ExpiresAt        time.Time              `json:"expires_at"`
	AcceptedDriverID *int64                 `json:"accepted_driver_id,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
}

type dispatchResponse struct {
	Mode       string         `json:"mode"`
	Assignment *assignmentDTO `json:"assignment,omitempty"`
	Broadcast  *broadcastDTO  `json:"broadcast,omitempty"`
}

type analyticsDTO struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}
