package turno

// Operation is a named state-machine move.
type Operation string

const (
	OpConfirmar     Operation = "confirmar"
	OpCancelar      Operation = "cancelar"
	OpCompletar     Operation = "completar"
	OpMarcarAusente Operation = "marcar_ausente"
	OpReagendar     Operation = "reagendar"
)

// transitions holds every legal non-cancel move. Cancellation is handled
// separately so repeat cancels surface the idempotency guard instead of a
// generic transition error.
var transitions = map[Estado]map[Operation]Estado{
	EstadoProgramado: {
		OpConfirmar: EstadoConfirmado,
		OpReagendar: EstadoReagendado,
	},
	EstadoConfirmado: {
		OpCompletar:     EstadoCompleto,
		OpMarcarAusente: EstadoAusente,
		OpReagendar:     EstadoReagendado,
	},
}

// Transition resolves (current, op) to the next state. The table is total:
// any pair not explicitly legal fails, never silently succeeds. Cancelling
// is legal from every state except CANCELADO itself, which returns
// ErrAlreadyCancelled so callers can treat it as a no-op.
func Transition(current Estado, op Operation) (Estado, error) {
	if op == OpCancelar {
		if current == EstadoCancelado {
			return "", ErrAlreadyCancelled
		}
		return EstadoCancelado, nil
	}

	next, ok := transitions[current][op]
	if !ok {
		return "", &InvalidTransitionError{From: current, Op: op}
	}
	return next, nil
}

// operationAction maps state-machine operations to audit actions.
func operationAction(op Operation) string {
	switch op {
	case OpConfirmar:
		return "CONFIRMAR"
	case OpCancelar:
		return "CANCELAR"
	case OpCompletar:
		return "COMPLETAR"
	case OpMarcarAusente:
		return "MARCAR_AUSENTE"
	case OpReagendar:
		return "REAGENDAR"
	}
	return string(op)
}
