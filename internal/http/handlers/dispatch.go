package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Orurh/courier-dispatch/internal/domain"
	"github.com/Orurh/courier-dispatch/internal/logx"
)

// DispatchHandler handles HTTP requests for dispatch resources.
type DispatchHandler struct {
	usecase dispatchUsecase
	logger  logx.Logger
}

// NewDispatchHandler creates a new DispatchHandler.
func NewDispatchHandler(logger logx.Logger, uc dispatchUsecase) *DispatchHandler {
	if logger == nil {
		logger = logx.Nop()
	}
	return &DispatchHandler{usecase: uc, logger: logger}
}

// AvailableDrivers handles GET /drivers/available.
// @Summary Доступные курьеры
// @Description Курьеры рядом с точкой, ближайшие первыми
// @Tags drivers
// @Produce json
// @Param lat query number true "latitude"
// @Param lon query number true "longitude"
// @Param radius_km query number false "search radius, 0 = unlimited"
// @Success 200 {array} availableDriverDTO
// @Failure 400 {object} ErrorResponse "invalid coordinates"
// @Router /drivers/available [get]
func (h *DispatchHandler) AvailableDrivers(w http.ResponseWriter, r *http.Request) {
	lat, err := floatQuery(r, "lat", true)
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, err.Error())
		return
	}
	lon, err := floatQuery(r, "lon", true)
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, err.Error())
		return
	}
	radius, err := floatQuery(r, "radius_km", false)
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, err.Error())
		return
	}

	list, err := h.usecase.FindAvailableDrivers(r.Context(), lat, lon, radius)
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, availableToResponse(list))
}

// DispatchOrder handles POST /orders/{orderID}/dispatch.
// @Summary Назначить или разослать заказ
// @Description С driver_id назначает курьера напрямую, без него рассылает заказ ближайшим
// @Tags orders
// @Accept json
// @Produce json
// @Param orderID path string true "order id"
// @Param request body dispatchOrderRequest false "manual driver"
// @Success 201 {object} dispatchResponse
// @Failure 409 {object} ErrorResponse "no drivers or already assigned"
// @Failure 422 {object} ErrorResponse "vendor location missing"
// @Router /orders/{orderID}/dispatch [post]
func (h *DispatchHandler) DispatchOrder(w http.ResponseWriter, r *http.Request) {
	var req dispatchOrderRequest
	if hasBody(r) {
		if ok := decodeJSON(h.logger, w, r, &req); !ok {
			return
		}
	}

	res, err := h.usecase.AssignOrder(r.Context(), chi.URLParam(r, "orderID"), req.DriverID)
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusCreated, resultToResponse(res))
}

// AcceptBroadcast handles POST /broadcasts/{broadcastID}/accept.
// @Summary Принять рассылку
// @Tags broadcasts
// @Accept json
// @Produce json
// @Param broadcastID path int true "broadcast id"
// @Param request body driverRequest true "accepting driver"
// @Success 200 {object} assignmentDTO
// @Failure 403 {object} ErrorResponse "driver was not offered"
// @Failure 409 {object} ErrorResponse "already resolved"
// @Router /broadcasts/{broadcastID}/accept [post]
func (h *DispatchHandler) AcceptBroadcast(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "broadcastID")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req driverRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}

	a, err := h.usecase.AcceptBroadcast(r.Context(), id, req.DriverID)
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, assignmentToResponse(*a))
}

// AcceptAssignment handles POST /assignments/{assignmentID}/accept.
func (h *DispatchHandler) AcceptAssignment(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "assignmentID")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req driverRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}

	a, err := h.usecase.AcceptAssignment(r.Context(), id, req.DriverID)
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, assignmentToResponse(*a))
}

// Decline handles POST /assignments/{assignmentID}/decline.
func (h *DispatchHandler) Decline(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "assignmentID")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, err.Error())
		return
	}

	a, err := h.usecase.Decline(r.Context(), id)
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, assignmentToResponse(*a))
}

// UpdateStatus handles PATCH /assignments/{assignmentID}/status.
// @Summary Сменить статус назначения
// @Tags assignments
// @Accept json
// @Produce json
// @Param assignmentID path int true "assignment id"
// @Param request body updateStatusRequest true "driver and new status"
// @Success 200 {object} assignmentDTO
// @Failure 400 {object} ErrorResponse "unknown status"
// @Failure 403 {object} ErrorResponse "not owner"
// @Failure 409 {object} ErrorResponse "transition not allowed"
// @Router /assignments/{assignmentID}/status [patch]
func (h *DispatchHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "assignmentID")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req updateStatusRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}
	status := domain.AssignmentStatus(strings.ToUpper(strings.TrimSpace(req.Status)))

	a, err := h.usecase.UpdateStatus(r.Context(), id, req.DriverID, status)
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, assignmentToResponse(*a))
}

// Assignment handles GET /assignments/{assignmentID}.
func (h *DispatchHandler) Assignment(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "assignmentID")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, err.Error())
		return
	}

	a, err := h.usecase.Assignment(r.Context(), id)
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, assignmentToResponse(*a))
}

// ActiveAssignments handles GET /drivers/{driverID}/assignments/active.
func (h *DispatchHandler) ActiveAssignments(w http.ResponseWriter, r *http.Request) {
	h.listByID(w, r, "driverID", h.usecase.ActiveAssignments)
}

// DriverHistory handles GET /drivers/{driverID}/assignments.
func (h *DispatchHandler) DriverHistory(w http.ResponseWriter, r *http.Request) {
	h.listByID(w, r, "driverID", h.usecase.DriverHistory)
}

// CustomerHistory handles GET /customers/{customerID}/assignments.
func (h *DispatchHandler) CustomerHistory(w http.ResponseWriter, r *http.Request) {
	h.listByID(w, r, "customerID", h.usecase.CustomerHistory)
}

// DriverAnalytics handles GET /drivers/{driverID}/analytics.
func (h *DispatchHandler) DriverAnalytics(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "driverID")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.usecase.DriverAnalytics(r.Context(), id)
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, analyticsDTO{Completed: res.Completed, Failed: res.Failed})
}

func (h *DispatchHandler) listByID(
	w http.ResponseWriter,
	r *http.Request,
	param string,
	list func(context.Context, int64) ([]domain.Assignment, error),
) {
	id, err := idFromURL(r, param)
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, err := list(r.Context(), id)
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, assignmentsToResponse(res))
}
