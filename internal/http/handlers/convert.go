package handlers

import (
	"github.com/Orurh/courier-dispatch/internal/domain"
	"github.com/Orurh/courier-dispatch/internal/geo"
	"github.com/Orurh/courier-dispatch/internal/service/dispatch"
)

func availableToResponse(list []domain.AvailableCourier) []availableDriverDTO {
	out := make([]availableDriverDTO, 0, len(list))
	for _, c := range list {
		dto := availableDriverDTO{
			DriverID:   c.UserID,
			CourierID:  c.ID,
			Name:       c.Name,
			Status:     c.Status,
			DistanceKm: geo.Round2(c.DistanceKm),
			ActiveJobs: c.ActiveCount,
		}
		if c.Location != nil {
			dto.Lat, dto.Lon = c.Location.Lat, c.Location.Lon
		}
		out = append(out, dto)
	}
	return out
}

func assignmentToResponse(a domain.Assignment) assignmentDTO {
	dto := assignmentDTO{
		ID:             a.ID,
		OrderID:        a.OrderID,
		CourierID:      a.CourierID,
		DriverID:       a.CourierUserID,
		Status:         a.Status,
		AcceptedAt:     a.AcceptedAt,
		TimeoutSeconds: a.TimeoutSeconds,
		Attempts:       a.Attempts,
		DistanceKm:     geo.Round2(a.DistanceKm),
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
	if a.BatchID != nil {
		s := a.BatchID.String()
		dto.BatchID = &s
	}
	return dto
}

func assignmentsToResponse(list []domain.Assignment) []assignmentDTO {
	out := make([]assignmentDTO, 0, len(list))
	for _, a := range list {
		out = append(out, assignmentToResponse(a))
	}
	return out
}

func broadcastToResponse(b domain.Broadcast) broadcastDTO {
	return broadcastDTO{
		ID:               b.ID,
		OrderID:          b.OrderID,
		DriverIDs:        b.DriverIDs,
		Status:           b.Status,
		ExpiresAt:        b.ExpiresAt,
		AcceptedDriverID: b.AcceptedDriverID,
		CreatedAt:        b.CreatedAt,
	}
}

func resultToResponse(res dispatch.Result) dispatchResponse {
	out := dispatchResponse{Mode: string(res.Mode)}
	if res.Assignment != nil {
		a := assignmentToResponse(*res.Assignment)
		out.Assignment = &a
	}
	if res.Broadcast != nil {
		b := broadcastToResponse(*res.Broadcast)
		out.Broadcast = &b
	}
	return out
}
