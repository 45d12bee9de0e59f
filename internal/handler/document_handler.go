package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"baria-go/internal/service"
	apperrors "baria-go/pkg/errors"
	"baria-go/pkg/log"
)

// DocumentHandler serves the admin document routes.
type DocumentHandler struct {
	ingestService    service.IngestService
	retrievalService service.RetrievalService
	maxUploadBytes   int64
}

func NewDocumentHandler(ingestService service.IngestService, retrievalService service.RetrievalService, maxUploadBytes int64) *DocumentHandler {
	return &DocumentHandler{ingestService: ingestService, retrievalService: retrievalService, maxUploadBytes: maxUploadBytes}
}

// Upload takes a multipart form with file, document_id and optional source.
func (h *DocumentHandler) Upload(c *gin.Context) {
	idStr := strings.TrimSpace(c.PostForm("document_id"))
	documentID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		respondError(c, "DocumentHandler", apperrors.Invalidf("document_id must be an integer, got %q", idStr))
		return
	}
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		respondError(c, "DocumentHandler", apperrors.Invalidf("file is required: %v", err))
		return
	}
	defer file.Close()
	if h.maxUploadBytes > 0 && header.Size > h.maxUploadBytes {
		respondError(c, "DocumentHandler", apperrors.Invalidf("file exceeds %d bytes", h.maxUploadBytes))
		return
	}

	res, err := h.ingestService.Upload(c.Request.Context(), service.UploadRequest{
		DocumentID:  documentID,
		Source:      c.PostForm("source"),
		FileName:    header.Filename,
		Body:        file,
		Size:        header.Size,
		ContentType: header.Header.Get("Content-Type"),
	})
	if err != nil {
		respondError(c, "DocumentHandler", err)
		return
	}
	status := http.StatusOK
	if res.Queued {
		status = http.StatusAccepted
	}
	log.Infof("[DocumentHandler] accepted %s for document %d (queued=%t)", header.Filename, documentID, res.Queued)
	respondData(c, status, res)
}

func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.retrievalService.ListDocuments(c.Request.Context())
	if err != nil {
		respondError(c, "DocumentHandler", err)
		return
	}
	respondData(c, http.StatusOK, docs)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	documentID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || documentID < 0 {
		respondError(c, "DocumentHandler", apperrors.Invalidf("invalid document id %q", c.Param("id")))
		return
	}
	removed, err := h.ingestService.DeleteDocument(c.Request.Context(), documentID)
	if err != nil {
		respondError(c, "DocumentHandler", err)
		return
	}
	respondData(c, http.StatusOK, gin.H{"document_id": documentID, "chunks_removed": removed})
}
