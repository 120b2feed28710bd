package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-slot-booking/internal/appointment"
	"github.com/hackgods/doctor-slot-booking/internal/availability"
	"github.com/hackgods/doctor-slot-booking/internal/payment"
)

type BookRequest struct {
	PatientID string `json:"patient_id"`
	DoctorID  string `json:"doctor_id"`
	Date      string `json:"date"` // YYYY-MM-DD
	Time      string `json:"time"` // HH:MM
}

type RescheduleRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type PaymentSessionRequest struct {
	Method string `json:"method"`
}

// ConfirmPaymentRequest carries what the gateway redirect or webhook handed
// back. Empty fields fall back to the session recorded on the appointment.
type ConfirmPaymentRequest struct {
	Method    string `json:"method,omitempty"`
	Reference string `json:"reference,omitempty"`
	PaymentID string `json:"payment_id,omitempty"`
	Signature string `json:"signature,omitempty"`
}

type FeedbackRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

type DaySlots struct {
	Date  string   `json:"date"`
	Times []string `json:"times"`
}

type SlotsResponse struct {
	DoctorID uuid.UUID  `json:"doctor_id"`
	Days     []DaySlots `json:"days"`
}

type TransitionResponse struct {
	From  string    `json:"from,omitempty"`
	To    string    `json:"to"`
	Actor string    `json:"actor"`
	At    time.Time `json:"at"`
	Note  string    `json:"note,omitempty"`
}

type FeedbackResponse struct {
	Rating      int       `json:"rating"`
	Comment     string    `json:"comment,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type AppointmentResponse struct {
	ID               uuid.UUID            `json:"id"`
	PatientID        uuid.UUID            `json:"patient_id"`
	DoctorID         uuid.UUID            `json:"doctor_id"`
	Date             string               `json:"date"`
	Time             string               `json:"time"`
	Status           string               `json:"status"`
	PaymentStatus    string               `json:"payment_status"`
	PaymentMethod    string               `json:"payment_method,omitempty"`
	PaymentReference string               `json:"payment_reference,omitempty"`
	Amount           string               `json:"amount"`
	Currency         string               `json:"currency"`
	CancelledBy      string               `json:"cancelled_by,omitempty"`
	Feedback         *FeedbackResponse    `json:"feedback,omitempty"`
	History          []TransitionResponse `json:"history"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

type PaymentSessionResponse struct {
	Method      string `json:"method"`
	Reference   string `json:"reference"`
	CheckoutURL string `json:"checkout_url,omitempty"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	resp := AppointmentResponse{
		ID:               a.ID,
		PatientID:        a.PatientID,
		DoctorID:         a.DoctorID,
		Date:             a.Date.String(),
		Time:             a.Time.String(),
		Status:           string(a.Status),
		PaymentStatus:    string(a.PaymentStatus),
		PaymentMethod:    string(a.PaymentMethod),
		PaymentReference: a.PaymentReference,
		Amount:           a.Amount.StringFixed(2),
		Currency:         a.Currency,
		CancelledBy:      string(a.CancelledBy),
		History:          make([]TransitionResponse, 0, len(a.History)),
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
	for _, t := range a.History {
		resp.History = append(resp.History, TransitionResponse{
			From:  string(t.From),
			To:    string(t.To),
			Actor: string(t.Actor),
			At:    t.At,
			Note:  t.Note,
		})
	}
	if a.Feedback != nil {
		resp.Feedback = &FeedbackResponse{
			Rating:      a.Feedback.Rating,
			Comment:     a.Feedback.Comment,
			SubmittedAt: a.Feedback.SubmittedAt,
		}
	}
	return resp
}

func toAppointmentList(items []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(items))
	for i := range items {
		out = append(out, toAppointmentResponse(&items[i]))
	}
	return out
}

func toSlotsResponse(doctorID uuid.UUID, days []availability.Day) SlotsResponse {
	resp := SlotsResponse{DoctorID: doctorID, Days: make([]DaySlots, 0, len(days))}
	for _, d := range days {
		times := make([]string, 0, len(d.Times))
		for _, t := range d.Times {
			times = append(times, t.String())
		}
		resp.Days = append(resp.Days, DaySlots{Date: d.Date.String(), Times: times})
	}
	return resp
}

func toPaymentSessionResponse(s *payment.Session) PaymentSessionResponse {
	return PaymentSessionResponse{
		Method:      string(s.Method),
		Reference:   s.Reference,
		CheckoutURL: s.CheckoutURL,
		Amount:      s.Amount.StringFixed(2),
		Currency:    s.Currency,
	}
}
