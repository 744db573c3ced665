package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinagenda/turnos/internal/actor"
	"github.com/clinagenda/turnos/internal/turno"
)

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func TestHandleTurnoErrorStatusCodes(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "validation",
			err:        &turno.ValidationError{Field: "fecha", Msg: "required"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "validation_failed",
		},
		{
			name:       "already cancelled",
			err:        turno.ErrAlreadyCancelled,
			wantStatus: http.StatusConflict,
			wantCode:   "already_cancelled",
		},
		{
			name:       "invalid transition",
			err:        &turno.InvalidTransitionError{From: turno.EstadoCompleto, Op: turno.OpConfirmar},
			wantStatus: http.StatusConflict,
			wantCode:   "invalid_transition",
		},
		{
			name:       "not yet elapsed",
			err:        turno.ErrNotYetElapsed,
			wantStatus: http.StatusConflict,
			wantCode:   "not_yet_elapsed",
		},
		{
			name:       "slot being booked",
			err:        turno.ErrSlotBeingBooked,
			wantStatus: http.StatusConflict,
			wantCode:   "slot_being_booked",
		},
		{
			name:       "not found",
			err:        turno.ErrNotFound,
			wantStatus: http.StatusNotFound,
			wantCode:   "turno_not_found",
		},
		{
			name:       "audit write failure",
			err:        turno.ErrAuditWrite,
			wantStatus: http.StatusInternalServerError,
			wantCode:   "audit_write_failed",
		},
		{
			name:       "unclassified",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "internal_error",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			handleTurnoError(rr, tc.err)

			assert.Equal(t, tc.wantStatus, rr.Code)
			assert.Equal(t, tc.wantCode, decodeError(t, rr).Error)
		})
	}
}

func TestHandleTurnoErrorConflictPayload(t *testing.T) {
	ref := turno.Ref{ID: uuid.New(), Estado: turno.EstadoProgramado}
	err := &turno.ConflictError{Reason: "conflicto", Conflicts: []turno.Ref{ref}}

	rr := httptest.NewRecorder()
	handleTurnoError(rr, err)

	assert.Equal(t, http.StatusConflict, rr.Code)
	resp := decodeError(t, rr)
	assert.Equal(t, "booking_conflict", resp.Error)
	require.Len(t, resp.Conflicts, 1)
	assert.Equal(t, ref.ID, resp.Conflicts[0].ID)
}

func TestActorMiddleware(t *testing.T) {
	var got string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = actor.OrUnknown(r.Context())
	})

	t.Run("header present", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Actor-Id", "dr.garcia")
		ActorMiddleware(next).ServeHTTP(httptest.NewRecorder(), req)
		assert.Equal(t, "dr.garcia", got)
	})

	t.Run("header absent", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		ActorMiddleware(next).ServeHTTP(httptest.NewRecorder(), req)
		assert.Equal(t, actor.UnknownActor, got)
	})
}

func TestRequestIDMiddleware(t *testing.T) {
	var got string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetRequestID(r.Context())
	})

	t.Run("generates when missing", func(t *testing.T) {
		rr := httptest.NewRecorder()
		RequestIDMiddleware(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.NotEmpty(t, got)
		assert.Equal(t, got, rr.Header().Get("X-Request-ID"))
	})

	t.Run("propagates caller id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "req-123")
		RequestIDMiddleware(next).ServeHTTP(httptest.NewRecorder(), req)

		assert.Equal(t, "req-123", got)
	})
}
