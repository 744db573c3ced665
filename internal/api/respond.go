package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/clinagenda/turnos/internal/agenda"
	"github.com/clinagenda/turnos/internal/turno"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// handleTurnoError maps the core error taxonomy onto stable HTTP codes.
// Conflicts carry structured detail for confirmation flows; nothing leaks a
// stack trace.
func handleTurnoError(w http.ResponseWriter, err error) {
	var (
		validation *turno.ValidationError
		conflict   *turno.ConflictError
		invalid    *turno.InvalidTransitionError
	)

	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, "validation_failed", validation.Error())
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:     "booking_conflict",
			Details:   conflict.Error(),
			Conflicts: conflict.Conflicts,
		})
	case errors.Is(err, turno.ErrAlreadyCancelled):
		writeError(w, http.StatusConflict, "already_cancelled", err.Error())
	case errors.As(err, &invalid):
		writeError(w, http.StatusConflict, "invalid_transition", invalid.Error())
	case errors.Is(err, turno.ErrNotYetElapsed):
		writeError(w, http.StatusConflict, "not_yet_elapsed", err.Error())
	case errors.Is(err, turno.ErrSlotBeingBooked):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, turno.ErrNotFound):
		writeError(w, http.StatusNotFound, "turno_not_found", err.Error())
	case errors.Is(err, agenda.ErrTemplateNotFound):
		writeError(w, http.StatusNotFound, "template_not_found", err.Error())
	case errors.Is(err, agenda.ErrExceptionNotFound):
		writeError(w, http.StatusNotFound, "exception_not_found", err.Error())
	case errors.Is(err, turno.ErrAuditWrite):
		writeError(w, http.StatusInternalServerError, "audit_write_failed", "mutation rolled back: audit trail unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
