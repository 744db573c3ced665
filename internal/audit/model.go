// Package audit owns the append-only trail of every mutation performed on
// appointments and configuration entities. Records are written in the same
// database transaction as the mutation they describe and are never updated;
// the only delete path is the explicit retention purge.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EntityTurno         = "TURNO"
	EntityConfiguracion = "CONFIGURACION"
)

// Actions recorded against appointments.
const (
	ActionCrear         = "CREAR"
	ActionConfirmar     = "CONFIRMAR"
	ActionCancelar      = "CANCELAR"
	ActionCompletar     = "COMPLETAR"
	ActionMarcarAusente = "MARCAR_AUSENTE"
	ActionReagendar     = "REAGENDAR"
	ActionEliminar      = "ELIMINAR"
)

// Record is one immutable audit entry. StateBefore/StateAfter are full JSON
// snapshots of the entity around the mutation; PerformedBy is never empty
// (SYSTEM/UNKNOWN sentinels stand in for missing identity).
type Record struct {
	ID          uuid.UUID       `json:"id"`
	EntityType  string          `json:"entity_type"`
	EntityID    uuid.UUID       `json:"entity_id"`
	Action      string          `json:"action"`
	PerformedBy string          `json:"performed_by"`
	PerformedAt time.Time       `json:"performed_at"`
	StateBefore json.RawMessage `json:"state_before,omitempty"`
	StateAfter  json.RawMessage `json:"state_after,omitempty"`
	Reason      string          `json:"reason,omitempty"`
}

// Filter selects records for the reporting queries. Zero values are ignored.
type Filter struct {
	EntityType  string
	EntityID    uuid.UUID
	PerformedBy string
	Action      string
	From        time.Time
	To          time.Time
	Limit       int
	Offset      int
}
