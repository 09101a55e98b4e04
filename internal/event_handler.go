package internal

import "time"

type EventHandler interface {
	OnCheckIn(event *EventMessage)
	OnCheckOut(event *EventMessage)
	OnPayment(event *EventMessage)
	OnTopUp(event *EventMessage)
}

type EventMessage struct {
	Type       string    `json:"type" bson:"type"`
	SessionId  string    `json:"session_id" bson:"session_id"`
	VehicleTag string    `json:"vehicle_tag" bson:"vehicle_tag"`
	SubjectId  string    `json:"subject_id" bson:"subject_id"`
	Username   string    `json:"username" bson:"username"`
	Time       time.Time `json:"time" bson:"time"`
	Amount     int       `json:"amount" bson:"amount"`
	Info       string    `json:"info" bson:"info"`
}
