package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"baria-go/internal/model"
	"baria-go/internal/service"
	apperrors "baria-go/pkg/errors"
	"baria-go/pkg/log"
)

// SearchHandler serves POST /search.
type SearchHandler struct {
	retrievalService service.RetrievalService
	defaultTopK      int
	defaultMinScore  *float64
}

func NewSearchHandler(retrievalService service.RetrievalService, defaultTopK int, defaultMinScore *float64) *SearchHandler {
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &SearchHandler{retrievalService: retrievalService, defaultTopK: defaultTopK, defaultMinScore: defaultMinScore}
}

type searchRequest struct {
	Query    string   `json:"query"`
	TopK     *int     `json:"top_k"`
	MinScore *float64 `json:"min_score"`
}

// Search answers with a bare JSON array. A dependency failure degrades to an
// empty array so callers keep working.
func (h *SearchHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, "SearchHandler", apperrors.Invalidf("malformed body: %v", err))
		return
	}
	topK := h.defaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}
	minScore := h.defaultMinScore
	if req.MinScore != nil {
		minScore = req.MinScore
	}

	results, err := h.retrievalService.Search(c.Request.Context(), req.Query, topK, minScore)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrInvalidInput) {
			respondError(c, "SearchHandler", err)
			return
		}
		log.Errorf("[SearchHandler] search degraded to empty result: %v", err)
		results = []model.QueryResult{}
	}
	c.JSON(http.StatusOK, results)
}
