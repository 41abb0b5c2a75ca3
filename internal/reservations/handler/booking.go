package handler

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"wheelshare/internal/reservations/service"
	"wheelshare/internal/reservations/validator"
	apperrors "wheelshare/pkg/errors"
	httpx "wheelshare/pkg/http"
	"wheelshare/pkg/logger"
	"wheelshare/pkg/model"
)

// ActorHeader identifies the authenticated actor. The gateway in front of
// this service verifies the token and forwards the user ID here.
const ActorHeader = "X-Actor-ID"

type BookingHandler struct {
	service service.ReservationService
	log     *logger.Logger
}

func NewBookingHandler(svc service.ReservationService, log *logger.Logger) *BookingHandler {
	return &BookingHandler{
		service: svc,
		log:     log,
	}
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.HandlerFunc(http.MethodPost, "/api/v1/bookings", h.CreateBooking)
	router.GET("/api/v1/bookings/id/:id", h.GetBooking)
	router.POST("/api/v1/bookings/id/:id/decision", h.RespondToBooking)
	router.HandlerFunc(http.MethodGet, "/api/v1/bookings", h.ListBookings)
}

func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req model.BookingRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := validator.ValidateBookingRequest(&req); err != nil {
		h.writeError(w, r, err)
		return
	}

	booking, err := h.service.RequestBooking(r.Context(), actorID, &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := httpx.WriteCreated(w, booking); err != nil {
		h.log.Error("Failed to write response", "error", err, "path", r.URL.Path)
	}
}

func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	booking, err := h.service.Get(r.Context(), ps.ByName("id"), actorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := httpx.WriteSuccess(w, booking); err != nil {
		h.log.Error("Failed to write response", "error", err, "path", r.URL.Path)
	}
}

func (h *BookingHandler) RespondToBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req model.DecisionRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := validator.ValidateDecisionRequest(&req); err != nil {
		h.writeError(w, r, err)
		return
	}

	booking, err := h.service.Respond(r.Context(), ps.ByName("id"), actorID, req.Decision)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := httpx.WriteSuccess(w, booking); err != nil {
		h.log.Error("Failed to write response", "error", err, "path", r.URL.Path)
	}
}

func (h *BookingHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.actor(w, r); !ok {
		return
	}

	q := r.URL.Query()
	query := service.ListQuery{
		RenterID:        q.Get("renter_id"),
		OwnerID:         q.Get("owner_id"),
		PendingForOwner: q.Get("pending_for_owner"),
	}

	bookings, err := h.service.List(r.Context(), query)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := httpx.WriteSuccess(w, bookings); err != nil {
		h.log.Error("Failed to write response", "error", err, "path", r.URL.Path)
	}
}

// actor extracts the acting user from the gateway header, failing the
// request when it is missing.
func (h *BookingHandler) actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actorID := r.Header.Get(ActorHeader)
	if actorID == "" {
		h.writeError(w, r, apperrors.InvalidInput("X-Actor-ID header is required"))
		return "", false
	}
	return actorID, true
}

func (h *BookingHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		h.writeError(w, r, apperrors.InvalidInput("invalid JSON request body"))
		return false
	}
	return true
}

func (h *BookingHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperrors.AsAppError(err)
	if appErr.Code == apperrors.CodeInternal {
		h.log.Error("Request failed", "error", err, "path", r.URL.Path, "method", r.Method)
	}
	if writeErr := httpx.WriteError(w, err); writeErr != nil {
		h.log.Error("Failed to write error response", "error", writeErr, "path", r.URL.Path)
	}
}
