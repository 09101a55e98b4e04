package models

import (
	"fmt"
	"time"
)

type PaymentState string

const (
	PaymentPending   PaymentState = "pending"
	PaymentPaid      PaymentState = "paid"
	PaymentCancelled PaymentState = "cancelled"
)

// ParkingSession is one check-in-to-payment parking episode for a vehicle.
// ExitedAt is nil while the vehicle is still on the lot.
type ParkingSession struct {
	SessionId       string       `json:"session_id" bson:"session_id"`
	SubjectId       string       `json:"subject_id" bson:"subject_id"`
	VehicleTag      string       `json:"vehicle_tag" bson:"vehicle_tag"`
	EnteredAt       time.Time    `json:"entered_at" bson:"entered_at"`
	ExitedAt        *time.Time   `json:"exited_at" bson:"exited_at"`
	AmountDue       int          `json:"amount_due" bson:"amount_due"`
	DurationMinutes *int         `json:"duration_minutes" bson:"duration_minutes"`
	PaymentState    PaymentState `json:"payment_state" bson:"payment_state"`

	// VehicleDescription is filled best-effort from the directory on reads,
	// never persisted with the session.
	VehicleDescription string `json:"vehicle_description,omitempty" bson:"-"`
}

func NewParkingSession(subjectId, vehicleTag string, baseRate int, enteredAt time.Time) *ParkingSession {
	return &ParkingSession{
		SessionId:    fmt.Sprintf("PARK_%d", enteredAt.UnixMilli()),
		SubjectId:    subjectId,
		VehicleTag:   vehicleTag,
		EnteredAt:    enteredAt,
		ExitedAt:     nil,
		AmountDue:    baseRate,
		PaymentState: PaymentPending,
	}
}

func (s *ParkingSession) IsActive() bool {
	return s.ExitedAt == nil
}
