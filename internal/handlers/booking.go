// Package handlers exposes the scheduler over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/glowbook-hq/glowbook/internal/model"
	"github.com/glowbook-hq/glowbook/internal/scheduler"
)

// Scheduler is the slice of the scheduling service the HTTP surface needs.
type Scheduler interface {
	AvailableSlots(ctx context.Context, req scheduler.SlotsRequest) ([]scheduler.Slot, error)
	BookAppointment(ctx context.Context, req scheduler.BookRequest) (model.Appointment, error)
	CancelAppointment(ctx context.Context, id, reason string) (model.Appointment, error)
	ListAppointments(ctx context.Context, day time.Time) ([]model.Appointment, error)
}

type BookingHandler struct {
	svc    Scheduler
	logger *slog.Logger
}

func NewBookingHandler(svc Scheduler, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, logger: logger}
}

func (h *BookingHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/public/slots", h.Slots)
	mux.HandleFunc("/api/v1/public/book", h.Book)
	mux.HandleFunc("/api/v1/appointments/cancel", h.Cancel)
	mux.HandleFunc("/api/v1/appointments", h.List)
}

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

type slotsResponse struct {
	Date  string           `json:"date"`
	Slots []scheduler.Slot `json:"slots"`
}

type bookRequest struct {
	ServiceID     string `json:"service_id"`
	StaffID       string `json:"staff_id"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
	Date          string `json:"date"`
	Time          string `json:"time"`
}

type cancelRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

type appointmentResponse struct {
	AppointmentID   string `json:"appointment_id"`
	ServiceID       string `json:"service_id"`
	StaffID         string `json:"staff_id,omitempty"`
	StaffRequested  bool   `json:"staff_requested"`
	CustomerName    string `json:"customer_name"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"duration_minutes"`
	Status          string `json:"status"`
	CancelledAt     string `json:"cancelled_at,omitempty"`
	CreatedAt       string `json:"created_at"`
}

func toAppointmentResponse(appt model.Appointment) appointmentResponse {
	resp := appointmentResponse{
		AppointmentID:   appt.ID,
		ServiceID:       appt.ServiceID,
		StaffID:         appt.StaffID,
		StaffRequested:  appt.StaffRequested,
		CustomerName:    appt.CustomerName,
		Date:            appt.Day.Format(dateLayout),
		Time:            appt.StartAt.Format(timeLayout),
		DurationMinutes: appt.DurationMinutes,
		Status:          string(appt.Status),
		CreatedAt:       appt.CreatedAt.Format(time.RFC3339),
	}
	if appt.CancelledAt != nil {
		resp.CancelledAt = appt.CancelledAt.Format(time.RFC3339)
	}
	return resp
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	serviceID := strings.TrimSpace(q.Get("service_id"))
	if serviceID == "" {
		http.Error(w, "service_id required", http.StatusBadRequest)
		return
	}
	day, err := time.ParseInLocation(dateLayout, q.Get("date"), time.UTC)
	if err != nil {
		http.Error(w, "invalid date (want YYYY-MM-DD)", http.StatusBadRequest)
		return
	}

	slots, err := h.svc.AvailableSlots(r.Context(), scheduler.SlotsRequest{
		ServiceID: serviceID,
		StaffID:   strings.TrimSpace(q.Get("staff_id")),
		Day:       day,
	})
	if err != nil {
		h.writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, slotsResponse{Date: day.Format(dateLayout), Slots: slots})
}

func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	day, err := time.ParseInLocation(dateLayout, req.Date, time.UTC)
	if err != nil {
		http.Error(w, "invalid date (want YYYY-MM-DD)", http.StatusBadRequest)
		return
	}
	clock, err := time.Parse(timeLayout, req.Time)
	if err != nil {
		http.Error(w, "invalid time (want HH:MM)", http.StatusBadRequest)
		return
	}
	startAt := day.Add(time.Duration(clock.Hour())*time.Hour + time.Duration(clock.Minute())*time.Minute)

	appt, err := h.svc.BookAppointment(r.Context(), scheduler.BookRequest{
		ServiceID:      strings.TrimSpace(req.ServiceID),
		StaffID:        strings.TrimSpace(req.StaffID),
		CustomerName:   req.CustomerName,
		CustomerEmail:  req.CustomerEmail,
		CustomerPhone:  req.CustomerPhone,
		StartAt:        startAt,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		h.writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	appt, err := h.svc.CancelAppointment(r.Context(), strings.TrimSpace(req.AppointmentID), strings.TrimSpace(req.Reason))
	if err != nil {
		h.writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	day, err := time.ParseInLocation(dateLayout, r.URL.Query().Get("date"), time.UTC)
	if err != nil {
		http.Error(w, "invalid date (want YYYY-MM-DD)", http.StatusBadRequest)
		return
	}

	appts, err := h.svc.ListAppointments(r.Context(), day)
	if err != nil {
		h.writeSchedulerError(w, err)
		return
	}
	out := make([]appointmentResponse, 0, len(appts))
	for _, appt := range appts {
		out = append(out, toAppointmentResponse(appt))
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": day.Format(dateLayout), "appointments": out})
}

func (h *BookingHandler) writeSchedulerError(w http.ResponseWriter, err error) {
	var ve *scheduler.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": ve.Message, "code": ve.Code})
		return
	}
	if scheduler.IsConflict(err) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error(), "code": "slot_conflict"})
		return
	}
	h.logger.Error("scheduler request failed", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
