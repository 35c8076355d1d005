package crm

import (
	"context"
	"time"
)

// Contact is the customer profile handed to the CRM after a booking.
type Contact struct {
	Name          string
	Email         string
	Phone         string
	ServiceID     string
	AppointmentID string
	AppointmentAt time.Time
}

// Provider pushes contact profiles to the CRM system. Implementations must be
// safe for concurrent use.
type Provider interface {
	PushContact(ctx context.Context, c Contact) error
}

// NoopProvider discards contacts. Used when no CRM endpoint is configured.
type NoopProvider struct{}

func (NoopProvider) PushContact(context.Context, Contact) error { return nil }
