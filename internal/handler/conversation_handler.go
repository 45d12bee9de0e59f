package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"baria-go/internal/service"
)

// ConversationHandler exposes a patient's conversation record to operators.
type ConversationHandler struct {
	service service.ConversationService
}

func NewConversationHandler(service service.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// GetPatientRecord answers GET /api/v1/patients/:user_id?limit=N.
func (h *ConversationHandler) GetPatientRecord(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	rec, err := h.service.GetPatientRecord(c.Request.Context(), c.Param("user_id"), limit)
	if err != nil {
		respondError(c, "ConversationHandler", err)
		return
	}
	respondData(c, http.StatusOK, rec)
}
