package server

import (
	"parklot/internal"
	"parklot/metrics/counters"
)

// EventRouter fans lifecycle events out to every registered handler and
// keeps the operation counters current.
type EventRouter struct {
	handlers []internal.EventHandler
}

func NewEventRouter() *EventRouter {
	return &EventRouter{}
}

func (r *EventRouter) AddHandler(handler internal.EventHandler) {
	if handler == nil {
		return
	}
	r.handlers = append(r.handlers, handler)
}

func (r *EventRouter) OnCheckIn(event *internal.EventMessage) {
	counters.CountCheckIn()
	for _, h := range r.handlers {
		h.OnCheckIn(event)
	}
}

func (r *EventRouter) OnCheckOut(event *internal.EventMessage) {
	counters.CountCheckOut()
	for _, h := range r.handlers {
		h.OnCheckOut(event)
	}
}

func (r *EventRouter) OnPayment(event *internal.EventMessage) {
	counters.CountPayment(event.Amount)
	for _, h := range r.handlers {
		h.OnPayment(event)
	}
}

func (r *EventRouter) OnTopUp(event *internal.EventMessage) {
	counters.CountTopUp(event.Amount)
	for _, h := range r.handlers {
		h.OnTopUp(event)
	}
}
