package dispatch

import "github.com/Orurh/courier-dispatch/internal/apperr"

// Errors returned by the dispatch service. Each one matches its apperr kind.
var (
	ErrVendorLocationMissing         = apperr.New(apperr.ErrUnprocessable, "vendor location missing")
	ErrNoDriversAvailable            = apperr.New(apperr.ErrConflict, "no drivers available")
	ErrCourierUnavailableOrOverStack = apperr.New(apperr.ErrConflict, "courier unavailable or over stacking limit")
	ErrBroadcastNotFound             = apperr.New(apperr.ErrNotFound, "broadcast not found")
	ErrBroadcastAlreadyResolved      = apperr.New(apperr.ErrConflict, "broadcast already resolved")
	ErrCourierNotOffered             = apperr.New(apperr.ErrForbidden, "courier was not offered this broadcast")
	ErrCourierProfileMissing         = apperr.New(apperr.ErrNotFound, "courier profile missing")
	ErrAssignmentNotOwned            = apperr.New(apperr.ErrForbidden, "assignment belongs to another courier")
	ErrAssignmentNotFound            = apperr.New(apperr.ErrNotFound, "assignment not found")
	ErrOrderNotFound                 = apperr.New(apperr.ErrNotFound, "order not found")
	ErrOrderAlreadyAssigned          = apperr.New(apperr.ErrConflict, "order already has an active assignment")
	ErrInvalidTransition             = apperr.New(apperr.ErrConflict, "status transition not allowed")
	ErrInvalidStatus                 = apperr.New(apperr.ErrInvalid, "unknown assignment status")
	ErrInvalidLocation               = apperr.New(apperr.ErrInvalid, "invalid coordinates")
	ErrInvalidOrderID                = apperr.New(apperr.ErrInvalid, "order id is required")
)
