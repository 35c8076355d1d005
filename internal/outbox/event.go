package outbox

import (
	"encoding/json"
	"time"

	"github.com/glowbook-hq/glowbook/internal/model"
)

// Topic names equal the event type, one event per topic.
const (
	TopicAppointmentBooked    = "scheduling.appointment.booked.v1"
	TopicAppointmentCancelled = "scheduling.appointment.cancelled.v1"
)

// Event is the domain event envelope written to the outbox table.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

type appointmentPayload struct {
	AppointmentID   string     `json:"appointment_id"`
	ServiceID       string     `json:"service_id"`
	StaffID         string     `json:"staff_id,omitempty"`
	StaffRequested  bool       `json:"staff_requested"`
	CustomerName    string     `json:"customer_name"`
	CustomerEmail   string     `json:"customer_email,omitempty"`
	CustomerPhone   string     `json:"customer_phone,omitempty"`
	StartAt         time.Time  `json:"start_at"`
	DurationMinutes int        `json:"duration_minutes"`
	Status          string     `json:"status"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	CancelReason    string     `json:"cancel_reason,omitempty"`
}

// AppointmentBooked builds the event emitted when an appointment is created.
func AppointmentBooked(appt model.Appointment) Event {
	return appointmentEvent(TopicAppointmentBooked, appt)
}

// AppointmentCancelled builds the event emitted when an appointment is
// cancelled and its slot released.
func AppointmentCancelled(appt model.Appointment) Event {
	return appointmentEvent(TopicAppointmentCancelled, appt)
}

func appointmentEvent(eventType string, appt model.Appointment) Event {
	payload, _ := json.Marshal(appointmentPayload{
		AppointmentID:   appt.ID,
		ServiceID:       appt.ServiceID,
		StaffID:         appt.StaffID,
		StaffRequested:  appt.StaffRequested,
		CustomerName:    appt.CustomerName,
		CustomerEmail:   appt.CustomerEmail,
		CustomerPhone:   appt.CustomerPhone,
		StartAt:         appt.StartAt,
		DurationMinutes: appt.DurationMinutes,
		Status:          string(appt.Status),
		CancelledAt:     appt.CancelledAt,
		CancelReason:    appt.CancelReason,
	})
	return Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     eventType,
		Payload:       payload,
	}
}
