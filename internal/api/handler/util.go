package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ayo6706/ledger-gate/internal/api/problem"
	"github.com/ayo6706/ledger-gate/internal/domain"
	"github.com/ayo6706/ledger-gate/internal/models"
	"go.uber.org/zap"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

// respondServiceError maps core errors onto problem responses: validation 400,
// not found 404, duplicate ledger id or reused transfer id 409, everything
// else 500.
func respondServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var de *models.DomainError
	switch {
	case errors.Is(err, models.ErrDuplicateLedgerID):
		RespondError(w, r, http.StatusConflict, "ledger/duplicate-id", err.Error())
	case errors.As(err, &de) && de.Kind == models.KindValidation:
		detail := de.Message
		if de.Field != "" {
			detail = de.Field + ": " + de.Message
		}
		RespondError(w, r, http.StatusBadRequest, "request/validation", detail)
	case errors.As(err, &de) && de.Kind == models.KindConflict:
		RespondError(w, r, http.StatusConflict, "transfer/id-reused", de.Err.Error()+": "+de.Message)
	case errors.As(err, &de) && de.Kind == models.KindNotFound:
		detail := de.Message
		if de.Err != nil {
			detail = de.Err.Error() + ": " + de.Message
		}
		RespondError(w, r, http.StatusNotFound, "resource/not-found", detail)
	default:
		zap.L().Error(op+" failed", zap.Error(err), zap.String("path", r.URL.Path))
		RespondError(w, r, http.StatusInternalServerError, "internal-server-error", op+" failed")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return false
	}
	return true
}

// parseTimeParam accepts RFC3339 or a calendar date in loc. A bare date used
// as an upper bound covers the whole day.
func parseTimeParam(value string, loc *time.Location, endOfDay bool) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	d, err := time.ParseInLocation(domain.DateLayout, value, loc)
	if err != nil {
		return time.Time{}, errors.New("expected RFC3339 timestamp or YYYY-MM-DD date")
	}
	if endOfDay {
		return d.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
	}
	return d, nil
}

func parseTimeRange(w http.ResponseWriter, r *http.Request, loc *time.Location) (time.Time, time.Time, bool) {
	from, err := parseTimeParam(r.URL.Query().Get("from"), loc, false)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-from", "from: "+err.Error())
		return time.Time{}, time.Time{}, false
	}
	to, err := parseTimeParam(r.URL.Query().Get("to"), loc, true)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-to", "to: "+err.Error())
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func intParam(r *http.Request, name string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(name))
	return n
}
