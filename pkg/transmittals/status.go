package transmittals

import (
	"fmt"

	"github.com/phase-edms/phase/pkg/models"
)

var transitions = map[models.TransmittalStatus][]models.TransmittalStatus{
	models.TransmittalStatusNew: {
		models.TransmittalStatusProcessing,
		models.TransmittalStatusInvalid,
	},
	models.TransmittalStatusProcessing: {
		models.TransmittalStatusDone,
		models.TransmittalStatusAccepted,
		models.TransmittalStatusRejected,
	},
}

// CanTransition reports whether a transmittal may move from one status to
// another.
func CanTransition(from, to models.TransmittalStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsFinal reports whether no transition leaves the status.
func IsFinal(s models.TransmittalStatus) bool {
	return len(transitions[s]) == 0
}

func checkTransition(t *models.Transmittal, to models.TransmittalStatus) error {
	if !CanTransition(t.Status, to) {
		return fmt.Errorf("%w: %s from %s to %s", ErrInvalidTransition, t.TransmittalKey, t.Status, to)
	}
	return nil
}
