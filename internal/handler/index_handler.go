package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"baria-go/internal/model"
	"baria-go/internal/service"
	apperrors "baria-go/pkg/errors"
	"baria-go/pkg/log"
)

// IndexHandler serves POST /index.
type IndexHandler struct {
	retrievalService service.RetrievalService
}

func NewIndexHandler(retrievalService service.RetrievalService) *IndexHandler {
	return &IndexHandler{retrievalService: retrievalService}
}

// Index accepts either a bare array of chunks or {"chunks": [...]}.
func (h *IndexHandler) Index(c *gin.Context) {
	chunks, err := decodeChunks(c.Request.Body)
	if err != nil {
		respondError(c, "IndexHandler", err)
		return
	}
	inserted, err := h.retrievalService.Index(c.Request.Context(), chunks)
	if err != nil {
		respondError(c, "IndexHandler", err)
		return
	}
	log.Infof("[IndexHandler] %d of %d chunks inserted", inserted, len(chunks))
	c.JSON(http.StatusOK, gin.H{"inserted": inserted})
}

func decodeChunks(body io.Reader) ([]model.IndexChunk, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, apperrors.Invalidf("read body: %v", err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, apperrors.Invalidf("request body is empty")
	}
	var chunks []model.IndexChunk
	if raw[0] == '[' {
		err = json.Unmarshal(raw, &chunks)
	} else {
		var wrapped struct {
			Chunks []model.IndexChunk `json:"chunks"`
		}
		err = json.Unmarshal(raw, &wrapped)
		chunks = wrapped.Chunks
	}
	if err != nil {
		return nil, apperrors.Invalidf("malformed body: %v", err)
	}
	return chunks, nil
}
