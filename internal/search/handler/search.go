package handler

import (
	"net/http"

	"itinera/internal/search/service"
	httputil "itinera/pkg/http"
	"itinera/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

type SearchHandler struct {
	service service.SearchService
	log     *logger.Logger
}

func NewSearchHandler(service service.SearchService, log *logger.Logger) *SearchHandler {
	return &SearchHandler{
		service: service,
		log:     log,
	}
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req service.SearchRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Search", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	resp, err := h.service.Search(r.Context(), &req)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Search", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, resp); err != nil {
		h.log.Error("failed to write success response", "handler", "Search", "operation", "WriteSuccess", "error", err)
	}
}

func (h *SearchHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/search", h.Search)
}
