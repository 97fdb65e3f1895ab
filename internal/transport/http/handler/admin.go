package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"hrassist/internal/access"
	"hrassist/internal/index"
	"hrassist/internal/transport/http/response"
	"hrassist/internal/vectorstore"
)

// AdminHandler exposes index maintenance for the caller's namespace. All
// routes require the hr or admin role.
type AdminHandler struct {
	manager *index.Manager
}

func NewAdminHandler(manager *index.Manager) *AdminHandler {
	return &AdminHandler{manager: manager}
}

func (h *AdminHandler) IndexStats(c *gin.Context) {
	identity, ok := h.requireAdmin(c)
	if !ok {
		return
	}

	stats, err := h.manager.Stats(c.Request.Context(), identity.Namespace)
	if err != nil {
		if errors.Is(err, vectorstore.ErrIndexNotFound) {
			response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, "index not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "describe index failed")
		return
	}

	response.OK(c, gin.H{
		"index":        h.manager.IndexName(identity.Namespace),
		"dimension":    stats.Dimension,
		"metric":       stats.Metric,
		"vector_count": stats.VectorCount,
	})
}

// ResetIndex drops and recreates the namespace's index. Documents stay in
// MySQL; reindex them afterwards to repopulate.
func (h *AdminHandler) ResetIndex(c *gin.Context) {
	identity, ok := h.requireAdmin(c)
	if !ok {
		return
	}

	if err := h.manager.ResetIndex(c.Request.Context(), identity.Namespace); err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "reset index failed")
		return
	}

	response.OK(c, gin.H{"index": h.manager.IndexName(identity.Namespace), "reset": true})
}

func (h *AdminHandler) requireAdmin(c *gin.Context) (identity, bool) {
	id, ok := identityFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return identity{}, false
	}
	if id.Role != access.RoleHR && id.Role != access.RoleAdmin {
		response.Error(c, http.StatusForbidden, response.CodeForbidden, "insufficient role")
		return identity{}, false
	}
	return id, true
}
