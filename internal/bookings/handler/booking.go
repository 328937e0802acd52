package handler

import (
	"net/http"

	"itinera/internal/bookings/service"
	httputil "itinera/pkg/http"
	"itinera/pkg/logger"
	"itinera/pkg/model"
	"itinera/pkg/sanitizer"

	"github.com/julienschmidt/httprouter"
)

type BookingHandler struct {
	service service.BookingService
	log     *logger.Logger
}

func NewBookingHandler(service service.BookingService, log *logger.Logger) *BookingHandler {
	return &BookingHandler{
		service: service,
		log:     log,
	}
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req service.CreateBookingRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "Create", err)
		return
	}

	booking, err := h.service.Create(r.Context(), &req)
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}

	if err := httputil.WriteCreated(w, booking); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *BookingHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	detail, err := h.service.GetByID(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, detail); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) GetAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "GetAll", err)
		return
	}

	query := r.URL.Query()
	filter := model.BookingFilter{
		Status: sanitizer.NormalizeStatus(query.Get("status")),
		UserID: sanitizer.NormalizeUserID(query.Get("user_id")),
		Limit:  limit,
		Offset: offset,
	}

	bookings, totalCount, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, "GetAll", err)
		return
	}

	if err := httputil.WritePaginated(w, bookings, totalCount, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "GetAll", "operation", "WritePaginated", "error", err)
	}
}

func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req service.ConfirmBookingRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "Confirm", err)
		return
	}

	booking, err := h.service.Confirm(r.Context(), ps.ByName("id"), &req)
	if err != nil {
		h.writeError(w, "Confirm", err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "Confirm", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	cancellation, err := h.service.Cancel(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "Cancel", err)
		return
	}

	if err := httputil.WriteSuccess(w, cancellation); err != nil {
		h.log.Error("failed to write success response", "handler", "Cancel", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/bookings", h.Create)
	router.GET("/api/bookings", h.GetAll)
	router.GET("/api/bookings/:id", h.GetByID)
	router.POST("/api/bookings/:id/confirm", h.Confirm)
	router.DELETE("/api/bookings/:id", h.Cancel)
}
