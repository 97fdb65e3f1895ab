package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"hrassist/internal/access"
	"hrassist/internal/ai"
	"hrassist/internal/app"
	"hrassist/internal/transport/http/middleware"
	"hrassist/internal/transport/http/response"
)

type ChatHandler struct {
	chatService *app.ChatService
}

func NewChatHandler(chatService *app.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

type CreateSessionRequest struct {
	Title string `json:"title" binding:"max=128"`
}

type AskRequest struct {
	Question string           `json:"question" binding:"required"`
	History  []HistoryMessage `json:"history" binding:"max=50"`
	TopK     int              `json:"top_k" binding:"omitempty,gt=0,lte=20"`
}

type HistoryMessage struct {
	Role    string `json:"role" binding:"required,oneof=user assistant"`
	Content string `json:"content" binding:"required"`
}

type SessionAskRequest struct {
	Question string `json:"question" binding:"required"`
	TopK     int    `json:"top_k" binding:"omitempty,gt=0,lte=20"`
}

// Ask answers a standalone question against the caller's namespace. The
// caller supplies any prior turns; nothing is persisted.
func (h *ChatHandler) Ask(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.chatService.Answer(c.Request.Context(), app.AnswerInput{
		Namespace: identity.Namespace,
		Question:  req.Question,
		History:   toChatMessages(req.History),
		TopK:      req.TopK,
		Gate:      identity.gate(),
	})
	if err != nil {
		writeAnswerError(c, err)
		return
	}

	response.OK(c, result)
}

// AskStream is Ask with the answer streamed as server-sent events.
func (h *ChatHandler) AskStream(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	flusher, ok := beginSSE(c)
	if !ok {
		return
	}

	result, err := h.chatService.StreamAnswer(c.Request.Context(), app.AnswerInput{
		Namespace: identity.Namespace,
		Question:  req.Question,
		History:   toChatMessages(req.History),
		TopK:      req.TopK,
		Gate:      identity.gate(),
	}, sseChunkWriter(c, flusher))
	if err != nil {
		writeSSEError(c, flusher, err)
		return
	}

	writeSSEDone(c, flusher, result.Answer)
}

func (h *ChatHandler) CreateSession(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	session, err := h.chatService.CreateSession(app.CreateSessionInput{
		UserID:    identity.UserID,
		Namespace: identity.Namespace,
		Title:     req.Title,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidRequest):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "create session failed")
		}
		return
	}

	response.OK(c, session)
}

func (h *ChatHandler) ListSessions(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	sessions, err := h.chatService.ListSessions(identity.UserID)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidRequest):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list sessions failed")
		}
		return
	}

	response.OK(c, sessions)
}

func (h *ChatHandler) DeleteSession(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	sessionID, ok := parseIDParam(c, "id")
	if !ok {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid session id")
		return
	}

	if err := h.chatService.DeleteSession(c.Request.Context(), identity.UserID, sessionID); err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidRequest):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrSessionNotFound):
			response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "delete session failed")
		}
		return
	}

	response.OK(c, gin.H{"deleted_session_id": sessionID})
}

// SessionAsk answers within a session: recent turns feed the prompt and both
// new turns go to the async persistence queue.
func (h *ChatHandler) SessionAsk(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	sessionID, ok := parseIDParam(c, "id")
	if !ok {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid session id")
		return
	}

	var req SessionAskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.chatService.AnswerSession(c.Request.Context(), app.SessionAnswerInput{
		UserID:    identity.UserID,
		SessionID: sessionID,
		Namespace: identity.Namespace,
		Question:  req.Question,
		TopK:      req.TopK,
		Gate:      identity.gate(),
	})
	if err != nil {
		writeAnswerError(c, err)
		return
	}

	response.OK(c, result)
}

func (h *ChatHandler) SessionAskStream(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	sessionID, ok := parseIDParam(c, "id")
	if !ok {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid session id")
		return
	}

	var req SessionAskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	flusher, ok := beginSSE(c)
	if !ok {
		return
	}

	result, err := h.chatService.StreamAnswerSession(c.Request.Context(), app.SessionAnswerInput{
		UserID:    identity.UserID,
		SessionID: sessionID,
		Namespace: identity.Namespace,
		Question:  req.Question,
		TopK:      req.TopK,
		Gate:      identity.gate(),
	}, sseChunkWriter(c, flusher))
	if err != nil {
		writeSSEError(c, flusher, err)
		return
	}

	writeSSEDone(c, flusher, result.Answer)
}

func (h *ChatHandler) GetHistory(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	sessionID64, err := strconv.ParseUint(c.Query("session_id"), 10, 64)
	if err != nil || sessionID64 == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid session_id")
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, parseErr := strconv.Atoi(raw); parseErr == nil {
			limit = parsed
		}
	}

	history, err := h.chatService.GetHistory(c.Request.Context(), identity.UserID, uint(sessionID64), limit)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidRequest):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrSessionNotFound):
			response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get history failed")
		}
		return
	}

	response.OK(c, history)
}

type identity struct {
	UserID    uint
	Namespace string
	Role      string
}

func (id identity) gate() access.Gate {
	return access.RoleGate{Namespace: id.Namespace, Role: id.Role}
}

func identityFromContext(c *gin.Context) (identity, bool) {
	userIDAny, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return identity{}, false
	}
	userID, ok := userIDAny.(uint)
	if !ok || userID == 0 {
		return identity{}, false
	}
	namespace, _ := c.Get(middleware.ContextNamespaceKey)
	ns, ok := namespace.(string)
	if !ok || ns == "" {
		return identity{}, false
	}
	role, _ := c.Get(middleware.ContextRoleKey)
	roleStr, _ := role.(string)
	return identity{UserID: userID, Namespace: ns, Role: roleStr}, true
}

func toChatMessages(history []HistoryMessage) []ai.ChatMessage {
	if len(history) == 0 {
		return nil
	}
	out := make([]ai.ChatMessage, 0, len(history))
	for _, m := range history {
		out = append(out, ai.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func writeAnswerError(c *gin.Context, err error) {
	var genErr *app.GenerationError
	switch {
	case errors.Is(err, app.ErrInvalidRequest):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrSessionNotFound):
		response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, err.Error())
	case errors.Is(err, app.ErrMessageEnqueue):
		response.Error(c, http.StatusServiceUnavailable, response.CodeInternalServer, err.Error())
	case errors.As(err, &genErr):
		response.Error(c, http.StatusBadGateway, response.CodeGenerationFailed, genErr.UserMessage())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "answer failed")
	}
}

func beginSSE(c *gin.Context) (http.Flusher, bool) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return nil, false
	}
	return flusher, true
}

func sseChunkWriter(c *gin.Context, flusher http.Flusher) func(string) error {
	return func(chunk string) error {
		if _, writeErr := c.Writer.Write([]byte("data: " + sanitizeSSE(chunk) + "\n\n")); writeErr != nil {
			return writeErr
		}
		flusher.Flush()
		return nil
	}
}

func writeSSEError(c *gin.Context, flusher http.Flusher, err error) {
	msg := err.Error()
	var genErr *app.GenerationError
	if errors.As(err, &genErr) {
		msg = genErr.UserMessage()
	}
	if _, writeErr := c.Writer.Write([]byte(fmt.Sprintf("event: error\ndata: %s\n\n", sanitizeSSE(msg)))); writeErr == nil {
		flusher.Flush()
	}
}

func writeSSEDone(c *gin.Context, flusher http.Flusher, full string) {
	if _, writeErr := c.Writer.Write([]byte("event: done\ndata: " + sanitizeSSE(full) + "\n\n")); writeErr == nil {
		flusher.Flush()
	}
}

func parseIDParam(c *gin.Context, name string) (uint, bool) {
	id64, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id64 == 0 {
		return 0, false
	}
	return uint(id64), true
}

func sanitizeSSE(input string) string {
	replaced := strings.ReplaceAll(input, "\r\n", "\\n")
	replaced = strings.ReplaceAll(replaced, "\n", "\\n")
	return replaced
}
