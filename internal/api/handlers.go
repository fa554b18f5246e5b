package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/coffeechat/scheduler/internal/gcal"
	redisclient "github.com/coffeechat/scheduler/internal/redis"
	"github.com/coffeechat/scheduler/internal/scheduling"
)

func publicSlotsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}

		profile, err := svc.GetProfile(r.Context(), userID)
		if err != nil {
			handleError(w, err)
			return
		}

		slots, err := svc.ActiveSlots(r.Context(), userID)
		if err != nil {
			handleError(w, err)
			return
		}

		// Public view: owner's timezone, no quiet-hours filtering.
		view := scheduling.ToLocalView(slots, profile.Timezone, false)
		writeJSON(w, http.StatusOK, SlotsResponse{
			Timezone: profile.Timezone,
			Slots:    toSlotViews(view, true),
		})
	}
}

func ownSlotsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := parseUserIDQuery(w, r)
		if !ok {
			return
		}

		profile, err := svc.GetProfile(r.Context(), userID)
		if err != nil {
			handleError(w, err)
			return
		}

		// Empty active set falls back to a synchronous reconcile, so a new
		// user sees slots on first load.
		slots, err := svc.ListActiveSlots(r.Context(), userID, time.Now().UTC())
		if err != nil {
			handleError(w, err)
			return
		}

		view := scheduling.ToLocalView(slots, profile.Timezone, profile.BlockEarlyHours)
		writeJSON(w, http.StatusOK, SlotsResponse{
			Timezone: profile.Timezone,
			Slots:    toSlotViews(view, false),
		})
	}
}

func saveSlotsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := parseUserIDQuery(w, r)
		if !ok {
			return
		}

		var req SaveSlotsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		kept := make([]scheduling.Interval, 0, len(req.Slots))
		for _, s := range req.Slots {
			kept = append(kept, scheduling.Interval{Start: s.Start.UTC(), End: s.End.UTC()})
		}

		if err := svc.SaveUserEdits(r.Context(), userID, kept, time.Now().UTC()); err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]string{"status": "saved"})
	}
}

func reconcileHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := parseUserIDQuery(w, r)
		if !ok {
			return
		}

		if err := svc.Reconcile(r.Context(), userID, time.Now().UTC()); err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "reconciled"})
	}
}

func calendarSyncHandler(cal *gcal.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cal == nil {
			writeError(w, http.StatusServiceUnavailable, "calendar_not_configured", "google calendar integration is not configured")
			return
		}

		userID, ok := parseUserIDQuery(w, r)
		if !ok {
			return
		}

		count, err := cal.ImportBusyIntervals(r.Context(), userID, time.Now().UTC())
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"imported": count})
	}
}

func bookHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		slotID, err := uuid.Parse(req.SlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
			return
		}
		bookerID, err := uuid.Parse(req.BookerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_booker_id", "booker_id must be a valid UUID")
			return
		}
		receiverID, err := uuid.Parse(req.ReceiverID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_receiver_id", "receiver_id must be a valid UUID")
			return
		}

		appt, err := svc.Book(r.Context(), bookerID, receiverID, slotID, time.Now().UTC())
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, AppointmentResponse{
			ID:          appt.ID,
			SlotID:      appt.SlotID,
			BookerID:    appt.BookerID,
			ReceiverID:  appt.ReceiverID,
			Status:      string(appt.Status),
			MeetingLink: appt.MeetingLink,
		})
	}
}

func listAppointmentsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := parseUserIDQuery(w, r)
		if !ok {
			return
		}

		sent, received, err := svc.ListAppointments(r.Context(), userID)
		if err != nil {
			handleError(w, err)
			return
		}

		profile, err := svc.GetProfile(r.Context(), userID)
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, AppointmentListResponse{
			Sent:     toAppointmentItems(sent, profile.Timezone, true),
			Received: toAppointmentItems(received, profile.Timezone, false),
		})
	}
}

func confirmAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return appointmentActionHandler(svc, func(r *http.Request, svc *scheduling.Service, apptID, actorID uuid.UUID) error {
		return svc.Confirm(r.Context(), apptID, actorID, time.Now().UTC())
	}, "confirmed")
}

func cancelAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return appointmentActionHandler(svc, func(r *http.Request, svc *scheduling.Service, apptID, actorID uuid.UUID) error {
		return svc.Cancel(r.Context(), apptID, actorID, time.Now().UTC())
	}, "cancelled")
}

func appointmentActionHandler(svc *scheduling.Service, action func(*http.Request, *scheduling.Service, uuid.UUID, uuid.UUID) error, done string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apptID, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}

		var req ActionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		actorID, err := uuid.Parse(req.UserID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_user_id", "user_id must be a valid UUID")
			return
		}

		if err := action(r, svc, apptID, actorID); err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": done})
	}
}

// Helpers

func parseUUIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseUserIDQuery(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_user_id", "user_id query parameter must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func toSlotViews(view []scheduling.LocalSlot, withIDs bool) []SlotView {
	out := make([]SlotView, 0, len(view))
	for _, s := range view {
		sv := SlotView{
			Start: s.Start.Format(time.RFC3339),
			End:   s.End.Format(time.RFC3339),
		}
		if withIDs {
			sv.SlotID = s.ID
		}
		out = append(out, sv)
	}
	return out
}

func toAppointmentItems(details []scheduling.AppointmentDetail, timezone string, sent bool) []AppointmentListItem {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}

	out := make([]AppointmentListItem, 0, len(details))
	for _, d := range details {
		item := AppointmentListItem{
			AppointmentID: d.ID,
			Status:        string(d.Status),
			MeetingLink:   d.MeetingLink,
		}

		if sent {
			item.CounterpartName = d.Receiver.Name
		} else {
			item.CounterpartName = d.Booker.Name
		}

		if d.Slot != nil {
			start := d.Slot.StartTime.In(loc)
			item.Date = start.Format("2006.01.02")
			item.StartTime = start.Format("15:04")
			item.DurationMinutes = d.Slot.DurationMinutes
		}

		out = append(out, item)
	}
	return out
}

func handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduling.ErrUserNotFound),
		errors.Is(err, scheduling.ErrProfileNotFound):
		writeError(w, http.StatusNotFound, "user_not_found", err.Error())
	case errors.Is(err, scheduling.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, scheduling.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, scheduling.ErrSelfBooking):
		writeError(w, http.StatusBadRequest, "self_booking", err.Error())
	case errors.Is(err, scheduling.ErrSlotAlreadyBooked):
		writeError(w, http.StatusConflict, "slot_already_booked", err.Error())
	case errors.Is(err, scheduling.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, scheduling.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, "not_authorized", err.Error())
	case errors.Is(err, scheduling.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, scheduling.ErrInvalidDuration),
		errors.Is(err, scheduling.ErrInvalidTimezone):
		writeError(w, http.StatusUnprocessableEntity, "invalid_profile", err.Error())
	case errors.Is(err, scheduling.ErrBusyUserRetry),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "schedule_busy", "schedule is being updated, please retry shortly")
	case errors.Is(err, gcal.ErrNotConnected):
		writeError(w, http.StatusConflict, "calendar_not_connected", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
