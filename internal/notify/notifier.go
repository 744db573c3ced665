// Package notify dispatches patient-facing notifications for appointment
// events. Delivery is fire-and-forget: the scheduling core never lets a
// notification failure affect a transaction outcome.
package notify

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinagenda/turnos/pkg/logging"
)

// Appointment event types handed to the dispatcher.
const (
	EventTurnoCreado     = "TURNO_CREADO"
	EventTurnoConfirmado = "TURNO_CONFIRMADO"
	EventTurnoCancelado  = "TURNO_CANCELADO"
	EventTurnoReagendado = "TURNO_REAGENDADO"
)

// Notifier is implemented by the delivery collaborator (email, SMS, queue).
type Notifier interface {
	Notify(ctx context.Context, turnoID uuid.UUID, eventType string) error
}

// LogNotifier is the default dispatcher: it records the event and relies on
// an external consumer to pick it up. Deployments wire a real transport here.
type LogNotifier struct {
	logger *logging.Logger
}

func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, turnoID uuid.UUID, eventType string) error {
	n.logger.Info("notification dispatched", "turno_id", turnoID, "event", eventType)
	return nil
}
