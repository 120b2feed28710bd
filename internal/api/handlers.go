package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/doctor-slot-booking/internal/appointment"
	"github.com/hackgods/doctor-slot-booking/internal/payment"
	"github.com/hackgods/doctor-slot-booking/internal/slot"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

// uuidParam parses the URL parameter param; field names it in the error.
func uuidParam(w http.ResponseWriter, r *http.Request, param, field string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+field, field+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseSlot(w http.ResponseWriter, rawDate, rawTime string) (slot.Date, slot.Clock, bool) {
	date, err := slot.ParseDate(rawDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
		return "", 0, false
	}
	at, err := slot.ParseClock(rawTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_time", err.Error())
		return "", 0, false
	}
	return date, at, true
}

func listSlotsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "doctorID", "doctor_id")
		if !ok {
			return
		}

		days, err := svc.ListAvailableSlots(r.Context(), doctorID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotsResponse(doctorID, days))
	}
}

func bookHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookRequest
		if !decodeBody(w, r, &req) {
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		date, at, ok := parseSlot(w, req.Date, req.Time)
		if !ok {
			return
		}

		appt, err := svc.Book(r.Context(), actorFrom(r.Context()), patientID, doctorID, date, at)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))
		actor := actorFrom(r.Context())

		var (
			items []appointment.Appointment
			err   error
		)

		switch {
		case q.Get("patient_id") != "":
			patientID, perr := uuid.Parse(q.Get("patient_id"))
			if perr != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			items, err = svc.ListAppointmentsByPatient(r.Context(), actor, patientID, limit, offset)
		case q.Get("doctor_id") != "":
			doctorID, perr := uuid.Parse(q.Get("doctor_id"))
			if perr != nil {
				writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
				return
			}
			items, err = svc.ListAppointmentsByDoctor(r.Context(), actor, doctorID, limit, offset)
		default:
			writeError(w, http.StatusBadRequest, "missing_filter", "patient_id or doctor_id is required")
			return
		}

		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentList(items))
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "appointment_id")
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id, actorFrom(r.Context()))
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func paymentSessionHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "appointment_id")
		if !ok {
			return
		}

		var req PaymentSessionRequest
		if !decodeBody(w, r, &req) {
			return
		}

		method, err := payment.ParseMethod(req.Method)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		sess, err := svc.CreatePaymentSession(r.Context(), id, actorFrom(r.Context()), method)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toPaymentSessionResponse(sess))
	}
}

// confirmPaymentHandler serves gateway redirects and webhooks. The body is
// untrusted; the provider is asked before anything changes.
func confirmPaymentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "appointment_id")
		if !ok {
			return
		}

		// an empty body means "check the session recorded on the appointment"
		var req ConfirmPaymentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		proof := payment.Proof{
			Reference: req.Reference,
			PaymentID: req.PaymentID,
			Signature: req.Signature,
		}
		if req.Method != "" {
			method, err := payment.ParseMethod(req.Method)
			if err != nil {
				handleServiceError(w, err)
				return
			}
			proof.Method = method
		}

		appt, err := svc.ConfirmPayment(r.Context(), id, proof)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "appointment_id")
		if !ok {
			return
		}

		appt, err := svc.Cancel(r.Context(), id, actorFrom(r.Context()))
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func rescheduleHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "appointment_id")
		if !ok {
			return
		}

		var req RescheduleRequest
		if !decodeBody(w, r, &req) {
			return
		}

		date, at, ok := parseSlot(w, req.Date, req.Time)
		if !ok {
			return
		}

		appt, err := svc.Reschedule(r.Context(), id, actorFrom(r.Context()), date, at)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func completeHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "appointment_id")
		if !ok {
			return
		}

		appt, err := svc.Complete(r.Context(), id, actorFrom(r.Context()))
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func feedbackHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "appointment_id")
		if !ok {
			return
		}

		var req FeedbackRequest
		if !decodeBody(w, r, &req) {
			return
		}

		appt, err := svc.AttachFeedback(r.Context(), id, actorFrom(r.Context()), req.Rating, req.Comment)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, appointment.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrInvalidSlot):
		writeError(w, http.StatusUnprocessableEntity, "invalid_slot", err.Error())
	case errors.Is(err, appointment.ErrSlotConflict):
		writeError(w, http.StatusConflict, "slot_conflict", err.Error())
	case errors.Is(err, appointment.ErrAppointmentBusy):
		writeError(w, http.StatusConflict, "appointment_busy", err.Error())
	case errors.Is(err, appointment.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, appointment.ErrFeedbackAlreadySubmitted):
		writeError(w, http.StatusConflict, "feedback_already_submitted", err.Error())
	case errors.Is(err, appointment.ErrPaymentVerificationFailed):
		writeError(w, http.StatusPaymentRequired, "payment_verification_failed", err.Error())
	case errors.Is(err, appointment.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, appointment.ErrInvalidRating),
		errors.Is(err, payment.ErrUnknownMethod):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, payment.ErrProviderNotEnabled):
		writeError(w, http.StatusUnprocessableEntity, "payment_method_unavailable", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
