package handler

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"hrassist/internal/app"
	"hrassist/internal/pkg/pdfextract"
	"hrassist/internal/transport/http/response"
)

const maxUploadBytes = 10 << 20

type DocumentHandler struct {
	docService *app.DocumentService
}

func NewDocumentHandler(docService *app.DocumentService) *DocumentHandler {
	return &DocumentHandler{docService: docService}
}

type CreateDocumentRequest struct {
	Title      string `json:"title" binding:"max=255"`
	Content    string `json:"content" binding:"required"`
	Visibility string `json:"visibility" binding:"omitempty,oneof=public internal private"`
}

func (h *DocumentHandler) Create(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	doc, err := h.docService.CreateDocument(c.Request.Context(), app.CreateDocumentInput{
		Namespace:  identity.Namespace,
		Title:      req.Title,
		Content:    req.Content,
		SourceType: "text",
		Visibility: req.Visibility,
	})
	if err != nil {
		writeDocumentError(c, err, "create document failed")
		return
	}

	response.OK(c, doc)
}

// UploadPDF accepts a multipart PDF, extracts its text, and files it as a
// document like any other.
func (h *DocumentHandler) UploadPDF(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file field")
		return
	}
	if fileHeader.Size > maxUploadBytes {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file exceeds 10MB limit")
		return
	}
	if !strings.EqualFold(filepath.Ext(fileHeader.Filename), ".pdf") {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "only .pdf files are accepted")
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "open upload failed")
		return
	}
	defer f.Close()

	text, err := pdfextract.ExtractText(f)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "pdf text extraction failed")
		return
	}
	if strings.TrimSpace(text) == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "pdf contains no extractable text")
		return
	}

	title := strings.TrimSuffix(fileHeader.Filename, filepath.Ext(fileHeader.Filename))
	doc, err := h.docService.CreateDocument(c.Request.Context(), app.CreateDocumentInput{
		Namespace:  identity.Namespace,
		Title:      title,
		Content:    text,
		SourceType: "pdf",
		Visibility: c.PostForm("visibility"),
	})
	if err != nil {
		writeDocumentError(c, err, "create document failed")
		return
	}

	response.OK(c, doc)
}

func (h *DocumentHandler) List(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	docs, err := h.docService.ListDocuments(identity.Namespace)
	if err != nil {
		writeDocumentError(c, err, "list documents failed")
		return
	}

	response.OK(c, docs)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	docID, ok := parseIDParam(c, "id")
	if !ok {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid document id")
		return
	}

	if err := h.docService.DeleteDocument(c.Request.Context(), identity.Namespace, docID); err != nil {
		writeDocumentError(c, err, "delete document failed")
		return
	}

	response.OK(c, gin.H{"deleted_document_id": docID})
}

// Reindex runs the ingestion pipeline for one document synchronously and
// returns the result, including any failed batches left for a later retry.
func (h *DocumentHandler) Reindex(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	docID, ok := parseIDParam(c, "id")
	if !ok {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid document id")
		return
	}

	result, err := h.docService.IngestDocument(c.Request.Context(), identity.Namespace, docID)
	if err != nil {
		writeDocumentError(c, err, "reindex failed")
		return
	}

	response.OK(c, result)
}

func writeDocumentError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidRequest):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrDocumentNotFound):
		response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}
