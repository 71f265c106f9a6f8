package domain

import "fmt"

// AnomalyKind classifies a record the projection could not apply cleanly.
type AnomalyKind string

const (
	AnomalyUnknownEntity    AnomalyKind = "unknown_entity"
	AnomalyWrongStage       AnomalyKind = "wrong_stage"
	AnomalyDuplicateEntity  AnomalyKind = "duplicate_entity"
	AnomalyMalformedPayload AnomalyKind = "malformed_payload"
)

// Anomaly is a non-fatal inconsistency found while normalizing or reducing.
type Anomaly struct {
	Kind   AnomalyKind `json:"kind"`
	Event  EventKey    `json:"event"`
	Reason string      `json:"reason"`
}

func (a Anomaly) String() string {
	return fmt.Sprintf("%s: %s %s@%d/%d: %s",
		a.Kind, a.Event.Kind, a.Event.EntityID, a.Event.BlockNumber, a.Event.LogIndex, a.Reason)
}
