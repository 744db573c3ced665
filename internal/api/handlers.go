package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinagenda/turnos/internal/actor"
	"github.com/clinagenda/turnos/internal/agenda"
	"github.com/clinagenda/turnos/internal/audit"
	"github.com/clinagenda/turnos/internal/turno"
)

// Parsing helpers

func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

func queryUUID(r *http.Request, key string) (*uuid.UUID, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func queryInt(r *http.Request, key, def string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		v = def
	}
	return strconv.Atoi(v)
}

// Slots

func listSlotsHandler(gen *agenda.Generator, defaultHorizon int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := agenda.Filters{}
		var err error
		if f.CenterID, err = queryUUID(r, "center_id"); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_center_id", "center_id must be a valid UUID")
			return
		}
		if f.SpecialtyID, err = queryUUID(r, "specialty_id"); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_specialty_id", "specialty_id must be a valid UUID")
			return
		}
		if f.StaffID, err = queryUUID(r, "staff_id"); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_staff_id", "staff_id must be a valid UUID")
			return
		}
		if f.ExcludeStaffID, err = queryUUID(r, "exclude_staff_id"); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_exclude_staff_id", "exclude_staff_id must be a valid UUID")
			return
		}

		horizon, err := queryInt(r, "horizon_weeks", strconv.Itoa(defaultHorizon))
		if err != nil || horizon <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_horizon", "horizon_weeks must be a positive integer")
			return
		}

		limit, err := queryInt(r, "limit", "500")
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		offset, err := queryInt(r, "offset", "0")
		if err != nil || offset < 0 {
			writeError(w, http.StatusBadRequest, "invalid_offset", "offset must be a non-negative integer")
			return
		}

		seq, err := gen.Generate(r.Context(), f, horizon, time.Now().UTC())
		if err != nil {
			handleTurnoError(w, err)
			return
		}

		// The sequence is restartable, so paginated consumption costs no
		// extra queries.
		slots := make([]SlotResponse, 0, limit)
		i := 0
		for s := range seq {
			if i < offset {
				i++
				continue
			}
			if len(slots) == limit {
				break
			}
			slots = append(slots, toSlotResponse(s))
			i++
		}

		writeJSON(w, http.StatusOK, slots)
	}
}

// Availability

func validateAvailabilityHandler(v *turno.Validator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date, err := parseDate(r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		start, err := agenda.ParseMinuteOfDay(r.URL.Query().Get("start"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start", "start must be HH:MM")
			return
		}
		roomID, err := queryUUID(r, "room_id")
		if err != nil || roomID == nil {
			writeError(w, http.StatusBadRequest, "invalid_room_id", "room_id is required and must be a valid UUID")
			return
		}
		staffID, err := queryUUID(r, "staff_id")
		if err != nil || staffID == nil {
			writeError(w, http.StatusBadRequest, "invalid_staff_id", "staff_id is required and must be a valid UUID")
			return
		}
		centerID, err := queryUUID(r, "center_id")
		if err != nil || centerID == nil {
			writeError(w, http.StatusBadRequest, "invalid_center_id", "center_id is required and must be a valid UUID")
			return
		}

		res, err := v.Validate(r.Context(), time.Now().UTC(), turno.SlotRequest{
			Date:     date,
			Start:    start,
			RoomID:   *roomID,
			StaffID:  *staffID,
			CenterID: *centerID,
		})
		if err != nil {
			handleTurnoError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, ValidationResponse{
			Accepted:  res.Accepted,
			Reason:    res.Reason,
			Conflicts: res.Conflicts,
		})
	}
}

// Turnos

func bookTurnoHandler(svc *turno.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookTurnoRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		booking, err := toBookingRequest(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		created, err := svc.Book(r.Context(), booking, actor.OrUnknown(r.Context()))
		if err != nil {
			handleTurnoError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toTurnoResponse(created))
	}
}

func toBookingRequest(req BookTurnoRequest) (turno.BookingRequest, error) {
	var out turno.BookingRequest
	var err error

	if out.Date, err = parseDate(req.Date); err != nil {
		return out, err
	}
	if out.Start, err = agenda.ParseMinuteOfDay(req.Start); err != nil {
		return out, err
	}
	if out.End, err = agenda.ParseMinuteOfDay(req.End); err != nil {
		return out, err
	}
	ids := []struct {
		raw  string
		dest *uuid.UUID
	}{
		{req.PatientID, &out.PatientID},
		{req.StaffID, &out.StaffID},
		{req.PhysicianID, &out.PhysicianID},
		{req.RoomID, &out.RoomID},
		{req.SpecialtyID, &out.SpecialtyID},
		{req.CenterID, &out.CenterID},
	}
	for _, id := range ids {
		if id.raw == "" {
			continue // let the service report the missing field
		}
		if *id.dest, err = uuid.Parse(id.raw); err != nil {
			return out, err
		}
	}
	out.Observations = req.Observations
	return out, nil
}

func getTurnoHandler(svc *turno.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_turno_id", "id must be a valid UUID")
			return
		}

		t, err := svc.Get(r.Context(), id)
		if err != nil {
			handleTurnoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toTurnoResponse(t))
	}
}

func listTurnosHandler(svc *turno.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		from, err := parseDate(r.URL.Query().Get("from"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "from must be YYYY-MM-DD")
			return
		}
		to, err := parseDate(r.URL.Query().Get("to"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", "to must be YYYY-MM-DD")
			return
		}

		turnos, err := svc.ListByDateRange(r.Context(), from, to)
		if err != nil {
			handleTurnoError(w, err)
			return
		}

		out := make([]TurnoResponse, 0, len(turnos))
		for i := range turnos {
			out = append(out, toTurnoResponse(&turnos[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// transitionHandler wraps the single-id state machine operations.
func transitionHandler(fn func(r *http.Request, id uuid.UUID, performedBy string) (*turno.Turno, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_turno_id", "id must be a valid UUID")
			return
		}

		t, err := fn(r, id, actor.OrUnknown(r.Context()))
		if err != nil {
			handleTurnoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toTurnoResponse(t))
	}
}

func confirmTurnoHandler(svc *turno.Service) http.HandlerFunc {
	return transitionHandler(func(r *http.Request, id uuid.UUID, performedBy string) (*turno.Turno, error) {
		return svc.Confirm(r.Context(), id, performedBy)
	})
}

func cancelTurnoHandler(svc *turno.Service) http.HandlerFunc {
	return transitionHandler(func(r *http.Request, id uuid.UUID, performedBy string) (*turno.Turno, error) {
		var req CancelTurnoRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		return svc.Cancel(r.Context(), id, req.Reason, performedBy)
	})
}

func completeTurnoHandler(svc *turno.Service) http.HandlerFunc {
	return transitionHandler(func(r *http.Request, id uuid.UUID, performedBy string) (*turno.Turno, error) {
		return svc.Complete(r.Context(), id, performedBy)
	})
}

func markAbsentHandler(svc *turno.Service) http.HandlerFunc {
	return transitionHandler(func(r *http.Request, id uuid.UUID, performedBy string) (*turno.Turno, error) {
		return svc.MarkAbsent(r.Context(), id, performedBy)
	})
}

func rescheduleTurnoHandler(svc *turno.Service) http.HandlerFunc {
	return transitionHandler(func(r *http.Request, id uuid.UUID, performedBy string) (*turno.Turno, error) {
		var req RescheduleTurnoRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, &turno.ValidationError{Field: "body", Msg: "could not parse JSON"}
		}
		date, err := parseDate(req.Date)
		if err != nil {
			return nil, &turno.ValidationError{Field: "date", Msg: "must be YYYY-MM-DD"}
		}
		start, err := agenda.ParseMinuteOfDay(req.Start)
		if err != nil {
			return nil, &turno.ValidationError{Field: "start", Msg: "must be HH:MM"}
		}
		end, err := agenda.ParseMinuteOfDay(req.End)
		if err != nil {
			return nil, &turno.ValidationError{Field: "end", Msg: "must be HH:MM"}
		}
		return svc.Reschedule(r.Context(), id, date, start, end, req.Reason, performedBy)
	})
}

func deleteTurnoHandler(svc *turno.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_turno_id", "id must be a valid UUID")
			return
		}

		var req CancelTurnoRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		if err := svc.AdminDelete(r.Context(), id, req.Reason, actor.OrUnknown(r.Context())); err != nil {
			handleTurnoError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// Audit

func queryAuditHandler(store *audit.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := audit.Filter{
			EntityType:  r.URL.Query().Get("entity_type"),
			PerformedBy: r.URL.Query().Get("actor"),
			Action:      r.URL.Query().Get("action"),
		}
		if id, err := queryUUID(r, "entity_id"); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_entity_id", "entity_id must be a valid UUID")
			return
		} else if id != nil {
			f.EntityID = *id
		}
		if v := r.URL.Query().Get("from"); v != "" {
			from, err := parseDate(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_from", "from must be YYYY-MM-DD")
				return
			}
			f.From = from
		}
		if v := r.URL.Query().Get("to"); v != "" {
			to, err := parseDate(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_to", "to must be YYYY-MM-DD")
				return
			}
			f.To = to
		}
		f.Limit, _ = queryInt(r, "limit", "100")
		f.Offset, _ = queryInt(r, "offset", "0")

		records, err := store.Query(r.Context(), f)
		if err != nil {
			handleTurnoError(w, err)
			return
		}
		if records == nil {
			records = []audit.Record{}
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func auditCountsHandler(store *audit.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		from, err := parseDate(r.URL.Query().Get("from"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "from must be YYYY-MM-DD")
			return
		}
		to, err := parseDate(r.URL.Query().Get("to"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", "to must be YYYY-MM-DD")
			return
		}

		counts, err := store.CountByAction(r.Context(), from, to)
		if err != nil {
			handleTurnoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, counts)
	}
}

// Configuration (templates + exceptional days)

func listTemplatesHandler(store agenda.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := agenda.Filters{}
		var err error
		if f.CenterID, err = queryUUID(r, "center_id"); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_center_id", "center_id must be a valid UUID")
			return
		}
		if f.StaffID, err = queryUUID(r, "staff_id"); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_staff_id", "staff_id must be a valid UUID")
			return
		}

		templates, err := store.ListTemplates(r.Context(), f)
		if err != nil {
			handleTurnoError(w, err)
			return
		}
		if templates == nil {
			templates = []agenda.ScheduleTemplate{}
		}
		writeJSON(w, http.StatusOK, templates)
	}
}

func createTemplateHandler(store agenda.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateTemplateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		tpl := agenda.ScheduleTemplate{
			Weekday:     time.Weekday(req.Weekday),
			SlotMinutes: req.SlotMinutes,
		}
		var err error
		if tpl.StaffID, err = uuid.Parse(req.StaffID); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_staff_id", "staff_id must be a valid UUID")
			return
		}
		if tpl.PhysicianID, err = uuid.Parse(req.PhysicianID); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_physician_id", "physician_id must be a valid UUID")
			return
		}
		if tpl.SpecialtyID, err = uuid.Parse(req.SpecialtyID); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_specialty_id", "specialty_id must be a valid UUID")
			return
		}
		if tpl.RoomID, err = uuid.Parse(req.RoomID); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_room_id", "room_id must be a valid UUID")
			return
		}
		if tpl.CenterID, err = uuid.Parse(req.CenterID); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_center_id", "center_id must be a valid UUID")
			return
		}
		if tpl.Start, err = agenda.ParseMinuteOfDay(req.Start); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start", "start must be HH:MM")
			return
		}
		if tpl.End, err = agenda.ParseMinuteOfDay(req.End); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end", "end must be HH:MM")
			return
		}
		if req.Weekday < 0 || req.Weekday > 6 {
			writeError(w, http.StatusBadRequest, "invalid_weekday", "weekday must be 0 (Sunday) through 6 (Saturday)")
			return
		}
		if tpl.End <= tpl.Start || tpl.SlotMinutes <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_window", "end must be after start and slot_minutes positive")
			return
		}

		if err := store.CreateTemplate(r.Context(), &tpl, actor.OrUnknown(r.Context())); err != nil {
			handleTurnoError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, tpl)
	}
}

func createExceptionHandler(store agenda.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateExceptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		scope := agenda.ExceptionScope(req.Scope)
		switch scope {
		case agenda.ScopeHoliday, agenda.ScopeMaintenance, agenda.ScopeSpecialAttention:
		default:
			writeError(w, http.StatusBadRequest, "invalid_scope", "scope must be HOLIDAY, MAINTENANCE or SPECIAL_ATTENTION")
			return
		}

		ex := agenda.ExceptionalDay{
			Scope:           scope,
			DurationMinutes: req.DurationMinutes,
			Description:     req.Description,
		}
		date, err := parseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		ex.Date = date
		if ex.CenterID, err = uuid.Parse(req.CenterID); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_center_id", "center_id must be a valid UUID")
			return
		}
		if req.RoomID != nil {
			id, err := uuid.Parse(*req.RoomID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_room_id", "room_id must be a valid UUID")
				return
			}
			ex.RoomID = &id
		}
		if req.TemplateID != nil {
			id, err := uuid.Parse(*req.TemplateID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_template_id", "template_id must be a valid UUID")
				return
			}
			ex.TemplateID = &id
		}
		if req.Start != nil {
			m, err := agenda.ParseMinuteOfDay(*req.Start)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_start", "start must be HH:MM")
				return
			}
			ex.Start = &m
		}
		if req.End != nil {
			m, err := agenda.ParseMinuteOfDay(*req.End)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_end", "end must be HH:MM")
				return
			}
			ex.End = &m
		}

		if err := store.UpsertException(r.Context(), &ex, actor.OrUnknown(r.Context())); err != nil {
			handleTurnoError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, ex)
	}
}

func deleteExceptionHandler(store agenda.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_exception_id", "id must be a valid UUID")
			return
		}

		if err := store.DeleteException(r.Context(), id, actor.OrUnknown(r.Context())); err != nil {
			handleTurnoError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
