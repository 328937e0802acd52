package handler

import (
	"errors"
	"net/http"
	"strings"

	"itinera/internal/inventory"
	apperrors "itinera/pkg/errors"
	httputil "itinera/pkg/http"
	"itinera/pkg/logger"
	"itinera/pkg/model"

	"github.com/go-playground/validator/v10"
	"github.com/julienschmidt/httprouter"
)

type InventoryHandler struct {
	manager  inventory.Manager
	validate *validator.Validate
	log      *logger.Logger
}

func NewInventoryHandler(manager inventory.Manager, log *logger.Logger) *InventoryHandler {
	return &InventoryHandler{
		manager:  manager,
		validate: validator.New(),
		log:      log,
	}
}

func (h *InventoryHandler) GetSnapshot(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	key := model.InventoryKey{
		Origin:      strings.ToUpper(ps.ByName("origin")),
		Destination: strings.ToUpper(ps.ByName("destination")),
		Provider:    ps.ByName("provider"),
		TravelDate:  ps.ByName("date"),
	}
	if err := h.validate.Struct(key); err != nil {
		if writeErr := httputil.WriteError(w, apperrors.InvalidInput("Invalid inventory key; travel date must be YYYY-MM-DD")); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetSnapshot", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	snap, err := h.manager.Snapshot(r.Context(), key)
	if err != nil {
		if errors.Is(err, inventory.ErrUnknownInventory) {
			err = apperrors.NotFound("Inventory")
		}
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetSnapshot", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, snap); err != nil {
		h.log.Error("failed to write success response", "handler", "GetSnapshot", "operation", "WriteSuccess", "error", err)
	}
}

func (h *InventoryHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/inventory/:origin/:destination/:provider/:date", h.GetSnapshot)
}
