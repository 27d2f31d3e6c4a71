package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	httpmiddleware "github.com/wolfman30/medspa-booking-wizard/internal/http/middleware"
	"github.com/wolfman30/medspa-booking-wizard/internal/practice"
	"github.com/wolfman30/medspa-booking-wizard/internal/session"
	"github.com/wolfman30/medspa-booking-wizard/internal/wizard"
	"github.com/wolfman30/medspa-booking-wizard/pkg/logging"
)

const maxBodyBytes = 64 << 10

// WizardSessions creates and looks up per-session controllers.
type WizardSessions interface {
	Create(ctx context.Context) (*wizard.Controller, error)
	Get(ctx context.Context, id string) (*wizard.Controller, error)
	End(ctx context.Context, id string) error
}

type WizardHandlerConfig struct {
	Sessions WizardSessions
	Cookies  *httpmiddleware.SessionCookies
	Logger   *logging.Logger
}

// WizardHandler serves the booking wizard. Every route except CreateSession
// expects RequireSession to have resolved the session id.
type WizardHandler struct {
	sessions WizardSessions
	cookies  *httpmiddleware.SessionCookies
	logger   *logging.Logger
}

func NewWizardHandler(cfg WizardHandlerConfig) *WizardHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &WizardHandler{sessions: cfg.Sessions, cookies: cfg.Cookies, logger: cfg.Logger}
}

type createSessionResponse struct {
	SessionToken string    `json:"sessionToken"`
	State        stateView `json:"state"`
}

// CreateSession bootstraps practice credentials and starts a wizard session.
// Route: POST /wizard/sessions
func (h *WizardHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	c, err := h.sessions.Create(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	token, err := h.cookies.Set(w, c.Session().ID)
	if err != nil {
		h.logger.Error("failed to encode session cookie", "error", err)
		writeErrorJSON(w, http.StatusInternalServerError, "Unable to start a booking session.")
		return
	}
	h.logger.Info("wizard session started", "session_id", c.Session().ID)
	writeJSON(w, http.StatusCreated, createSessionResponse{SessionToken: token, State: newStateView(c.Snapshot())})
}

// EndSession purges the session and clears the cookie.
// Route: DELETE /wizard/sessions
func (h *WizardHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	id := httpmiddleware.SessionIDFromContext(r.Context())
	if err := h.sessions.End(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.cookies.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

// State returns the current step and masked draft.
// Route: GET /wizard/state
func (h *WizardHandler) State(w http.ResponseWriter, r *http.Request) {
	h.with(w, r, func(c *wizard.Controller) (int, any, error) {
		return http.StatusOK, newStateView(c.Snapshot()), nil
	})
}

// Back moves to the previous step.
// Route: POST /wizard/back
func (h *WizardHandler) Back(w http.ResponseWriter, r *http.Request) {
	h.with(w, r, func(c *wizard.Controller) (int, any, error) {
		c.Back(r.Context())
		return http.StatusOK, newStateView(c.Snapshot()), nil
	})
}

// PersonalInfo records identity fields and advances.
// Route: POST /wizard/personal-info
func (h *WizardHandler) PersonalInfo(w http.ResponseWriter, r *http.Request) {
	var body wizard.Identity
	if !decodeBody(w, r, &body) {
		return
	}
	h.with(w, r, func(c *wizard.Controller) (int, any, error) {
		if _, err := c.SubmitPersonalInfo(r.Context(), body); err != nil {
			return 0, nil, err
		}
		return http.StatusOK, newStateView(c.Snapshot()), nil
	})
}

// SendOTP asks the practice to send a verification code.
// Route: POST /wizard/otp/send
func (h *WizardHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	h.with(w, r, func(c *wizard.Controller) (int, any, error) {
		if err := c.SendOTP(r.Context()); err != nil {
			return 0, nil, err
		}
		return http.StatusAccepted, map[string]string{"status": "sent"}, nil
	})
}

type verifyOTPRequest struct {
	Code string `json:"code"`
}

// VerifyOTP checks the code and advances.
// Route: POST /wizard/otp/verify
func (h *WizardHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var body verifyOTPRequest
	if !decodeBody(w, r, &body) {
		return
	}
	h.with(w, r, func(c *wizard.Controller) (int, any, error) {
		if _, err := c.VerifyOTP(r.Context(), body.Code); err != nil {
			return 0, nil, err
		}
		return http.StatusOK, newStateView(c.Snapshot()), nil
	})
}

// Locations lists practice locations.
// Route: GET /wizard/locations
func (h *WizardHandler) Locations(w http.ResponseWriter, r *http.Request) {
	h.with(w, r, func(c *wizard.Controller) (int, any, error) {
		locations, err := c.Locations(r.Context())
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, map[string]any{"locations": locationOptions(locations)}, nil
	})
}

// Reasons lists appointment reasons.
// Route: GET /wizard/reasons
func (h *WizardHandler) Reasons(w http.ResponseWriter, r *http.Request) {
	h.with(w, r, func(c *wizard.Controller) (int, any, error) {
		reasons, err := c.Reasons(r.Context())
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, map[string]any{"reasons": reasonOptions(reasons)}, nil
	})
}

// Providers lists providers at location_id, or at the selected location.
// Route: GET /wizard/providers?location_id=
func (h *WizardHandler) Providers(w http.ResponseWriter, r *http.Request) {
	locationID := strings.TrimSpace(r.URL.Query().Get("location_id"))
	h.with(w, r, func(c *wizard.Controller) (int, any, error) {
		providers, err := c.Providers(r.Context(), locationID)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, map[string]any{"providers": providerOptions(providers)}, nil
	})
}

type selectLocationRequest struct {
	Location     string `json:"location"`
	LocationName string `json:"locationName"`
}

// SelectLocation records a location choice, clearing the provider when it
// changes, and returns that location's providers.
// Route: POST /wizard/location
func (h *WizardHandler) SelectLocation(w http.ResponseWriter, r *http.Request) {
	var body selectLocationRequest
	if !decodeBody(w, r, &body) {
		return
	}
	h.with(w, r, func(c *wizard.Controller) (int, any, error) {
		c.SelectLocation(r.Context(), body.Location, body.LocationName)
		providers, err := c.Providers(r.Context(), "")
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, map[string]any{
			"state":     newStateView(c.Snapshot()),
			"providers": providerOptions(providers),
		}, nil
	})
}

// AppointmentType records location, provider and reason, loads bookable
// dates and advances.
// Route: POST /wizard/appointment-type
func (h *WizardHandler) AppointmentType(w http.ResponseWriter, r *http.Request) {
	var body wizard.AppointmentSelection
	if !decodeBody(w, r, &body) {
		return
	}
	h.with(w, r, func(c *wizard.Controller) (int, any, error) {
		if _, err := c.SelectAppointmentType(r.Context(), body); err != nil {
			return 0, nil, err
		}
		return http.StatusOK, map[string]any{
			"state":    newStateView(c.Snapshot()),
			"calendar": newCalendarView(c.Calendar()),
		}, nil
	})
}

// Calendar returns the displayed month.
// Route: GET /wizard/calendar
func (h *WizardHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	h.with(w, r, func(c *wizard.Controller) (int, any, error) {
		return http.StatusOK, newCalendarView(c.Calendar()), nil
	})
}

// PrevMonth shows the previous month.
// Route: POST /wizard/calendar/prev
func (h *WizardHandler) PrevMonth(w http.ResponseWriter, r *http.Request) {
	h.with(w, r, func(c *wizard.Controller) (int, any, error) {
		return http.StatusOK, newCalendarView(c.PrevMonth()), nil
	})
}

// NextMonth shows the next month.
// Route: POST /wizard/calendar/next
func (h *WizardHandler) NextMonth(w http.ResponseWriter, r *http.Request) {
	h.with(w, r, func(c *wizard.Controller) (int, any, error) {
		return http.StatusOK, newCalendarView(c.NextMonth()), nil
	})
}

type clickRequest struct {
	Date string `json:"date"`
}

type clickResponse struct {
	Ignored    bool         `json:"ignored"`
	OutOfRange bool         `json:"outOfRange"`
	Notice     string       `json:"notice,omitempty"`
	Calendar   calendarView `json:"calendar"`
}

// ClickDate feeds a calendar click to the range selector.
// Route: POST /wizard/calendar/click
func (h *WizardHandler) ClickDate(w http.ResponseWriter, r *http.Request) {
	var body clickRequest
	if !decodeBody(w, r, &body) {
		return
	}
	day, err := practice.ParseDate(body.Date)
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	h.with(w, r, func(c *wizard.Controller) (int, any, error) {
		res, err := c.ClickDate(r.Context(), day)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, clickResponse{
			Ignored:    res.Ignored,
			OutOfRange: res.OutOfRange,
			Notice:     res.Notice,
			Calendar:   newCalendarView(c.Calendar()),
		}, nil
	})
}

// ConfirmDateRange loads open slots for the range and advances.
// Route: POST /wizard/date-range
func (h *WizardHandler) ConfirmDateRange(w http.ResponseWriter, r *http.Request) {
	h.with(w, r, func(c *wizard.Controller) (int, any, error) {
		if _, err := c.ConfirmDateRange(r.Context()); err != nil {
			return 0, nil, err
		}
		days, err := c.SlotDays()
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, map[string]any{
			"state": newStateView(c.Snapshot()),
			"days":  newDaySlotsViews(days),
		}, nil
	})
}

// Slots returns open slots. With date and bucket it returns that bucket,
// otherwise every loaded day grouped by bucket.
// Route: GET /wizard/slots?date=&bucket=
func (h *WizardHandler) Slots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dateParam, bucketParam := strings.TrimSpace(q.Get("date")), strings.TrimSpace(q.Get("bucket"))
	if dateParam == "" && bucketParam == "" {
		h.with(w, r, func(c *wizard.Controller) (int, any, error) {
			days, err := c.SlotDays()
			if err != nil {
				return 0, nil, err
			}
			return http.StatusOK, map[string]any{"days": newDaySlotsViews(days)}, nil
		})
		return
	}
	date, err := practice.ParseDate(dateParam)
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	bucket, err := wizard.ParseBucket(bucketParam)
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "bucket must be Morning, Afternoon or Evening")
		return
	}
	h.with(w, r, func(c *wizard.Controller) (int, any, error) {
		slots, err := c.Slots(date, bucket)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, map[string]any{
			"date":   date.Format(practice.DateLayout),
			"bucket": string(bucket),
			"slots":  newSlotViews(slots),
		}, nil
	})
}

type selectSlotRequest struct {
	Date   string `json:"date"`
	SlotID string `json:"slot_id"`
}

// SelectSlot records the chosen slot.
// Route: POST /wizard/slot
func (h *WizardHandler) SelectSlot(w http.ResponseWriter, r *http.Request) {
	var body selectSlotRequest
	if !decodeBody(w, r, &body) {
		return
	}
	var date time.Time
	if strings.TrimSpace(body.Date) != "" {
		d, err := practice.ParseDate(body.Date)
		if err != nil {
			writeErrorJSON(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		date = d
	}
	h.with(w, r, func(c *wizard.Controller) (int, any, error) {
		if err := c.SelectSlot(r.Context(), date, body.SlotID); err != nil {
			return 0, nil, err
		}
		return http.StatusOK, newStateView(c.Snapshot()), nil
	})
}

type finishResponse struct {
	Message     string    `json:"message"`
	SlotID      string    `json:"slotId"`
	Date        string    `json:"date"`
	DisplayTime string    `json:"displayTime,omitempty"`
	State       stateView `json:"state"`
}

// Finish submits the booking.
// Route: POST /wizard/finish
func (h *WizardHandler) Finish(w http.ResponseWriter, r *http.Request) {
	h.with(w, r, func(c *wizard.Controller) (int, any, error) {
		conf, err := c.Finish(r.Context())
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, finishResponse{
			Message:     conf.Message,
			SlotID:      conf.SlotID,
			Date:        conf.Date.Format(practice.DateLayout),
			DisplayTime: conf.DisplayTime,
			State:       newStateView(c.Snapshot()),
		}, nil
	})
}

// Appointment returns the practice's appointment record for a patient.
// Route: GET /wizard/appointments/{patientID}
func (h *WizardHandler) Appointment(w http.ResponseWriter, r *http.Request) {
	patientID := strings.TrimSpace(chi.URLParam(r, "patientID"))
	h.with(w, r, func(c *wizard.Controller) (int, any, error) {
		raw, err := c.PatientAppointment(r.Context(), patientID)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, raw, nil
	})
}

// with resolves the session controller, runs fn and writes its result.
func (h *WizardHandler) with(w http.ResponseWriter, r *http.Request, fn func(c *wizard.Controller) (int, any, error)) {
	id := httpmiddleware.SessionIDFromContext(r.Context())
	if id == "" {
		writeErrorJSON(w, http.StatusUnauthorized, "Your booking session has expired. Please start again.")
		return
	}
	c, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			h.cookies.Clear(w)
		}
		h.writeError(w, r, err)
		return
	}
	status, payload, err := fn(c)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, status, payload)
}

type errorBody struct {
	Error string `json:"error"`
	Step  string `json:"step,omitempty"`
	Field string `json:"field,omitempty"`
}

func (h *WizardHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classifyError(err)
	logger := h.logger.WithSession(httpmiddleware.SessionIDFromContext(r.Context()))
	route := r.URL.Path
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		route = rctx.RoutePattern()
	}
	if status >= http.StatusInternalServerError {
		logger.Error("wizard request failed", "route", route, "status", status, "error", err)
	} else {
		logger.Warn("wizard request rejected", "route", route, "status", status, "error", err)
	}
	writeJSON(w, status, body)
}

// classifyError maps the wizard error taxonomy onto HTTP statuses.
func classifyError(err error) (int, errorBody) {
	var (
		validation *wizard.ValidationError
		bootstrap  *wizard.BootstrapError
		booking    *wizard.BookingFailure
		remoteErr  *wizard.RemoteCallError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity, errorBody{Error: validation.Message, Step: validation.Step.String(), Field: string(validation.Field)}
	case errors.As(err, &bootstrap):
		return http.StatusServiceUnavailable, errorBody{Error: "Online booking is temporarily unavailable. Please try again later."}
	case errors.As(err, &booking):
		return http.StatusConflict, errorBody{Error: booking.Message}
	case errors.Is(err, wizard.ErrWrongStep):
		return http.StatusConflict, errorBody{Error: "That action is not available on the current step."}
	case errors.Is(err, wizard.ErrStaleResponse):
		return http.StatusConflict, errorBody{Error: "Your selection changed. Please try again."}
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, errorBody{Error: "Your booking session has expired. Please start again."}
	case practice.IsBreakerOpen(err):
		return http.StatusServiceUnavailable, errorBody{Error: "The scheduling service is busy. Please try again shortly."}
	case errors.As(err, &remoteErr):
		return http.StatusBadGateway, errorBody{Error: "We could not reach the scheduling service. Please try again."}
	default:
		return http.StatusInternalServerError, errorBody{Error: "Something went wrong."}
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func writeErrorJSON(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
