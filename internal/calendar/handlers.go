// ABOUTME: HTTP handlers for calendar events and the daily report.
// ABOUTME: Event CRUD under /calendar/v1 and report resolution under /reports/daily.

package calendar

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/2389/fieldops/internal/auth"
	apierrors "github.com/2389/fieldops/internal/errors"
	"github.com/2389/fieldops/internal/report"
	"github.com/2389/fieldops/internal/store"
	"github.com/2389/fieldops/internal/tzclock"
)

type Handlers struct {
	store    *store.Store
	resolver *report.Resolver
}

func NewHandlers(s *store.Store, resolver *report.Resolver) *Handlers {
	return &Handlers{store: s, resolver: resolver}
}

func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/calendar/v1/calendars/{calendarId}/events", func(r chi.Router) {
		r.Get("/", h.listEvents)
		r.With(auth.RequireOperator).Post("/", h.createEvent)
		r.Get("/{eventId}", h.getEvent)
		r.With(auth.RequireOperator).Put("/{eventId}", h.updateEvent)
		r.With(auth.RequireOperator).Delete("/{eventId}", h.deleteEvent)
	})
	r.Get("/reports/daily/{date}", h.dailyReport)
}

func (h *Handlers) listEvents(w http.ResponseWriter, r *http.Request) {
	q := store.ListQuery{
		CalendarID: chi.URLParam(r, "calendarId"),
		Search:     r.URL.Query().Get("q"),
		PageToken:  r.URL.Query().Get("pageToken"),
	}
	if mr := r.URL.Query().Get("maxResults"); mr != "" {
		v, err := strconv.Atoi(mr)
		if err != nil || v <= 0 {
			apierrors.WriteErrorWithField(w, http.StatusBadRequest, apierrors.ErrValidationFailed,
				"maxResults must be a positive integer", "maxResults")
			return
		}
		q.MaxResults = v
	}

	var err error
	if q.TimeMin, err = h.parseQueryTime(r, "timeMin"); err != nil {
		apierrors.WriteErrorWithField(w, http.StatusBadRequest, apierrors.ErrValidationFailed, err.Error(), "timeMin")
		return
	}
	if q.TimeMax, err = h.parseQueryTime(r, "timeMax"); err != nil {
		apierrors.WriteErrorWithField(w, http.StatusBadRequest, apierrors.ErrValidationFailed, err.Error(), "timeMax")
		return
	}

	events, nextToken, err := h.store.ListEvents(r.Context(), q)
	if errors.Is(err, store.ErrInvalidPageToken) {
		apierrors.WriteErrorWithField(w, http.StatusBadRequest, apierrors.ErrInvalidPageToken, "pageToken is not valid", "pageToken")
		return
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}

	items := make([]eventResource, len(events))
	for i := range events {
		items[i] = h.toResource(&events[i])
	}

	writeJSON(w, http.StatusOK, eventList{Items: items, NextPageToken: nextToken})
}

func (h *Handlers) getEvent(w http.ResponseWriter, r *http.Request) {
	evt, err := h.store.GetEvent(r.Context(), chi.URLParam(r, "calendarId"), chi.URLParam(r, "eventId"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toResource(evt))
}

func (h *Handlers) createEvent(w http.ResponseWriter, r *http.Request) {
	calendarID := chi.URLParam(r, "calendarId")

	evt, ok := h.decodeEvent(w, r)
	if !ok {
		return
	}
	evt.CalendarID = calendarID

	if err := h.store.EnsureCalendar(r.Context(), calendarID, calendarID); err != nil {
		writeStoreError(w, err)
		return
	}
	created, err := h.store.CreateEvent(r.Context(), evt)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toResource(created))
}

func (h *Handlers) updateEvent(w http.ResponseWriter, r *http.Request) {
	evt, ok := h.decodeEvent(w, r)
	if !ok {
		return
	}
	evt.CalendarID = chi.URLParam(r, "calendarId")
	evt.ID = chi.URLParam(r, "eventId")

	updated, err := h.store.UpdateEvent(r.Context(), evt)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toResource(updated))
}

func (h *Handlers) deleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteEvent(r.Context(), chi.URLParam(r, "calendarId"), chi.URLParam(r, "eventId")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) dailyReport(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")

	var snap *report.Snapshot
	var err error
	if raw := r.URL.Query().Get("mode"); raw != "" {
		mode, perr := report.ParseMode(raw)
		if perr != nil {
			apierrors.WriteErrorWithField(w, http.StatusBadRequest, apierrors.ErrInvalidReportMode,
				"mode must be INTERSECT or CLAMP", "mode")
			return
		}
		snap, err = h.resolver.GetEventsForDayWithMode(r.Context(), date, mode)
	} else {
		snap, err = h.resolver.GetEventsForDay(r.Context(), date)
	}
	if err != nil {
		writeReportError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snap.Document())
}

func (h *Handlers) decodeEvent(w http.ResponseWriter, r *http.Request) (*store.Event, bool) {
	var in eventResource
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		apierrors.WriteError(w, http.StatusBadRequest, apierrors.ErrInvalidBody, "request body is not valid JSON")
		return nil, false
	}
	if in.Title == "" {
		apierrors.WriteErrorWithField(w, http.StatusBadRequest, apierrors.ErrMissingField, "title is required", "title")
		return nil, false
	}

	evt := &store.Event{Title: in.Title, Description: in.Description, Location: in.Location}

	if in.Start.Date != "" {
		first, err := tzclock.ParseDate(in.Start.Date)
		if err != nil {
			apierrors.WriteErrorWithField(w, http.StatusBadRequest, apierrors.ErrValidationFailed, err.Error(), "start.date")
			return nil, false
		}
		last := tzclock.AddCalendarDays(first, 1)
		if in.End.Date != "" {
			if last, err = tzclock.ParseDate(in.End.Date); err != nil {
				apierrors.WriteErrorWithField(w, http.StatusBadRequest, apierrors.ErrValidationFailed, err.Error(), "end.date")
				return nil, false
			}
		}
		evt.AllDay = true
		evt.StartsAt = tzclock.LocalMidnightUTC(first, h.store.Location())
		evt.EndsAt = tzclock.LocalMidnightUTC(last, h.store.Location())
		return evt, true
	}

	var err error
	if evt.StartsAt, err = h.parseTime(in.Start.DateTime); err != nil {
		apierrors.WriteErrorWithField(w, http.StatusBadRequest, apierrors.ErrValidationFailed, err.Error(), "start.dateTime")
		return nil, false
	}
	if evt.EndsAt, err = h.parseTime(in.End.DateTime); err != nil {
		apierrors.WriteErrorWithField(w, http.StatusBadRequest, apierrors.ErrValidationFailed, err.Error(), "end.dateTime")
		return nil, false
	}
	return evt, true
}

// parseTime accepts RFC 3339, or a bare wall-clock time read in the store's
// zone.
func (h *Handlers) parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("a date or dateTime is required")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	label, err := tzclock.ParseLabel(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is not a valid dateTime", raw)
	}
	return tzclock.FromWallClock(label, h.store.Location()).UTC(), nil
}

func (h *Handlers) parseQueryTime(r *http.Request, key string) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}, nil
	}
	return h.parseTime(raw)
}

func (h *Handlers) toResource(e *store.Event) eventResource {
	res := eventResource{
		ID:          e.ID,
		CalendarID:  e.CalendarID,
		Title:       e.Title,
		Description: e.Description,
		Location:    e.Location,
		AllDay:      e.AllDay,
	}
	if e.AllDay {
		loc := h.store.Location()
		res.Start.Date = tzclock.LocalDateOf(e.StartsAt, loc).String()
		res.End.Date = tzclock.LocalDateOf(e.EndsAt, loc).String()
	} else {
		res.Start.DateTime = e.StartsAt.UTC().Format(time.RFC3339)
		res.End.DateTime = e.EndsAt.UTC().Format(time.RFC3339)
	}
	if !e.UpdatedAt.IsZero() {
		res.Updated = e.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return res
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		apierrors.WriteError(w, http.StatusNotFound, apierrors.ErrNotFound, "event not found")
	case errors.Is(err, store.ErrInvalidEventRange):
		apierrors.WriteErrorWithField(w, http.StatusBadRequest, apierrors.ErrInvalidEventRange, err.Error(), "end")
	default:
		apierrors.WriteErrorWithDetails(w, http.StatusInternalServerError, apierrors.ErrDatabaseError,
			"failed to access events", err.Error())
	}
}

func writeReportError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, report.ErrInvalidReportDate):
		apierrors.WriteErrorWithField(w, http.StatusBadRequest, apierrors.ErrInvalidReportDate,
			"date must be a calendar date in YYYY-MM-DD form", "date")
	case errors.Is(err, report.ErrUnknownMode), errors.Is(err, report.ErrUndetectableStorage):
		apierrors.WriteErrorWithDetails(w, http.StatusInternalServerError, apierrors.ErrConfiguration,
			"report is misconfigured", err.Error())
	default:
		apierrors.WriteErrorWithDetails(w, http.StatusInternalServerError, apierrors.ErrDatabaseError,
			"failed to load events", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
