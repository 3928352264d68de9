package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Orurh/courier-dispatch/internal/apperr"
	"github.com/Orurh/courier-dispatch/internal/logx"
)

func reqID(ctx context.Context) string {
	if id := middleware.GetReqID(ctx); id != "" {
		return id
	}
	return "-"
}

func writeJSON(logger logx.Logger, w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		logger.Error("json encode error",
			logx.String("req_id", reqID(r.Context())),
			logx.Err(err),
		)
	}
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeError(logger logx.Logger, w http.ResponseWriter, r *http.Request, status int, msg string) {
	logger.Warn("http error",
		logx.String("req_id", reqID(r.Context())),
		logx.Int("status", status),
		logx.String("msg", msg),
	)
	writeJSON(logger, w, r, status, ErrorResponse{Error: msg})
}

var kindStatus = map[error]int{
	apperr.ErrInvalid:       http.StatusBadRequest,
	apperr.ErrForbidden:     http.StatusForbidden,
	apperr.ErrNotFound:      http.StatusNotFound,
	apperr.ErrConflict:      http.StatusConflict,
	apperr.ErrUnprocessable: http.StatusUnprocessableEntity,
}

// writeServiceError maps a service error to its status by kind. Errors without
// a kind are reported as 500 and their text is not exposed.
func writeServiceError(logger logx.Logger, w http.ResponseWriter, r *http.Request, err error) {
	if status, ok := kindStatus[apperr.Kind(err)]; ok {
		writeError(logger, w, r, status, err.Error())
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		writeError(logger, w, r, http.StatusGatewayTimeout, "timeout")
		return
	}
	logger.Error("request failed",
		logx.String("req_id", reqID(r.Context())),
		logx.String("path", r.URL.Path),
		logx.Err(err),
	)
	writeError(logger, w, r, http.StatusInternalServerError, "internal error")
}

const (
	bodyLimit = 1 << 20
)

func decodeJSON[T any](logger logx.Logger, w http.ResponseWriter, r *http.Request, dst *T) bool {
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		writeError(logger, w, r, http.StatusBadRequest, "invalid json")
		return false
	}
	if err := dec.Decode(new(struct{})); err != io.EOF {
		writeError(logger, w, r, http.StatusBadRequest, "invalid json: trailing data")
		return false
	}
	return true
}

// hasBody reports whether the request carries a payload to decode.
func hasBody(r *http.Request) bool {
	return r.Body != nil && r.Body != http.NoBody && r.ContentLength != 0
}

func idFromURL(r *http.Request, name string) (int64, error) {
	idStr := chi.URLParam(r, name)
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func floatQuery(r *http.Request, name string, required bool) (float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		if required {
			return 0, errors.New(name + " is required")
		}
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.New("invalid " + name)
	}
	return v, nil
}
