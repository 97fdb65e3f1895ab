package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"hrassist/internal/access"
	"hrassist/internal/ai"
	"hrassist/internal/model"
	"hrassist/internal/prompt"
	"hrassist/internal/repository"
	"hrassist/internal/retrieve"
)

// phase tracks where a chat request is in its lifecycle; it tags log lines
// and lets a failure report which step broke.
type phase string

const (
	phaseReceived   phase = "received"
	phaseRetrieving phase = "retrieving"
	phaseAssembling phase = "assembling"
	phaseGenerating phase = "generating"
	phaseDone       phase = "done"
	phaseFailed     phase = "failed"
)

// Retriever is the slice of the retrieval component the orchestrator needs.
type Retriever interface {
	Retrieve(ctx context.Context, namespace, question string, topK int, gate access.Gate) ([]retrieve.Passage, error)
}

// Generator is the slice of the chat model client the orchestrator needs.
type Generator interface {
	Complete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage) (string, error)
	StreamComplete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage, onChunk func(string) error) (string, error)
}

type AsyncMessagePublisher interface {
	Publish(ctx context.Context, msg model.Message) error
}

type HistoryCache interface {
	GetHistory(ctx context.Context, sessionID uint) ([]model.Message, bool, error)
	SetHistory(ctx context.Context, sessionID uint, messages []model.Message) error
	DeleteHistory(ctx context.Context, sessionID uint) error
	MarkDirty(ctx context.Context, sessionID uint) error
	IsDirty(ctx context.Context, sessionID uint) (bool, error)
}

// ChatService is the public entry point of the conversational retrieval
// pipeline. It never mutates the caller's history; the produced answer is
// returned (and, in session mode, published for async persistence).
type ChatService struct {
	retriever  Retriever
	assembler  *prompt.Assembler
	llm        Generator
	chatCfg    ai.ChatConfig
	genTimeout time.Duration

	sessionRepo  *repository.SessionRepository
	messageRepo  *repository.MessageRepository
	publisher    AsyncMessagePublisher
	historyCache HistoryCache
	maxHistory   int
}

func NewChatService(
	retriever Retriever,
	assembler *prompt.Assembler,
	llm Generator,
	chatCfg ai.ChatConfig,
	genTimeout time.Duration,
	sessionRepo *repository.SessionRepository,
	messageRepo *repository.MessageRepository,
	publisher AsyncMessagePublisher,
	historyCache HistoryCache,
	maxHistory int,
) *ChatService {
	if genTimeout <= 0 {
		genTimeout = 90 * time.Second
	}
	if maxHistory <= 0 {
		maxHistory = 20
	}
	return &ChatService{
		retriever:    retriever,
		assembler:    assembler,
		llm:          llm,
		chatCfg:      chatCfg,
		genTimeout:   genTimeout,
		sessionRepo:  sessionRepo,
		messageRepo:  messageRepo,
		publisher:    publisher,
		historyCache: historyCache,
		maxHistory:   maxHistory,
	}
}

type AnswerInput struct {
	Namespace string
	Question  string
	History   []ai.ChatMessage
	TopK      int
	Gate      access.Gate
}

type AnswerResult struct {
	Answer   string             `json:"answer"`
	Passages []retrieve.Passage `json:"passages"`
}

// Answer runs the full pipeline and returns the complete answer.
func (s *ChatService) Answer(ctx context.Context, input AnswerInput) (*AnswerResult, error) {
	messages, passages, err := s.prepare(ctx, input)
	if err != nil {
		return nil, err
	}

	genCtx, cancel := context.WithTimeout(ctx, s.genTimeout)
	defer cancel()

	answer, err := s.llm.Complete(genCtx, s.chatCfg, messages)
	if err != nil {
		log.Printf("chat %s: generation failed: %v", phaseFailed, err)
		return nil, &GenerationError{Err: err}
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		answer = "The model returned an empty response."
	}

	log.Printf("chat %s: namespace=%s passages=%d", phaseDone, input.Namespace, len(passages))
	return &AnswerResult{Answer: answer, Passages: passages}, nil
}

// StreamAnswer runs the pipeline and streams the answer through onChunk.
// Cancelling ctx (client disconnect) aborts the upstream model call.
func (s *ChatService) StreamAnswer(ctx context.Context, input AnswerInput, onChunk func(string) error) (*AnswerResult, error) {
	messages, passages, err := s.prepare(ctx, input)
	if err != nil {
		return nil, err
	}

	genCtx, cancel := context.WithTimeout(ctx, s.genTimeout)
	defer cancel()

	full, err := s.llm.StreamComplete(genCtx, s.chatCfg, messages, onChunk)
	if err != nil {
		log.Printf("chat %s: stream generation failed: %v", phaseFailed, err)
		return nil, &GenerationError{Err: err}
	}
	full = strings.TrimSpace(full)
	if full == "" {
		full = "The model returned an empty response."
	}

	log.Printf("chat %s: namespace=%s passages=%d", phaseDone, input.Namespace, len(passages))
	return &AnswerResult{Answer: full, Passages: passages}, nil
}

// prepare walks received -> retrieving -> assembling. An empty question
// fails before any model or index call is made.
func (s *ChatService) prepare(ctx context.Context, input AnswerInput) ([]ai.ChatMessage, []retrieve.Passage, error) {
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, nil, ErrInvalidRequest
	}
	if strings.TrimSpace(input.Namespace) == "" {
		return nil, nil, ErrInvalidRequest
	}
	log.Printf("chat %s: namespace=%s", phaseReceived, input.Namespace)

	log.Printf("chat %s: namespace=%s", phaseRetrieving, input.Namespace)
	passages, err := s.retriever.Retrieve(ctx, input.Namespace, question, input.TopK, input.Gate)
	if err != nil {
		log.Printf("chat %s: retrieval failed: %v", phaseFailed, err)
		return nil, nil, err
	}

	log.Printf("chat %s: namespace=%s passages=%d", phaseAssembling, input.Namespace, len(passages))
	history := input.History
	if len(history) > s.maxHistory {
		history = history[len(history)-s.maxHistory:]
	}
	messages := s.assembler.Assemble(passages, history, question)
	return messages, passages, nil
}

type CreateSessionInput struct {
	UserID    uint
	Namespace string
	Title     string
}

func (s *ChatService) CreateSession(input CreateSessionInput) (*model.Session, error) {
	if input.UserID == 0 || input.Namespace == "" {
		return nil, ErrInvalidRequest
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = "New Chat"
	}
	session := &model.Session{
		UserID:    input.UserID,
		Namespace: input.Namespace,
		Title:     title,
	}
	if err := s.sessionRepo.Create(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *ChatService) ListSessions(userID uint) ([]model.Session, error) {
	if userID == 0 {
		return nil, ErrInvalidRequest
	}
	return s.sessionRepo.ListByUserID(userID)
}

func (s *ChatService) DeleteSession(ctx context.Context, userID, sessionID uint) error {
	if userID == 0 || sessionID == 0 {
		return ErrInvalidRequest
	}
	session, err := s.sessionRepo.GetByIDAndUserID(sessionID, userID)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionNotFound
	}
	if err := s.messageRepo.DeleteBySessionID(sessionID); err != nil {
		return err
	}
	if err := s.sessionRepo.DeleteByIDAndUserID(sessionID, userID); err != nil {
		return err
	}
	if s.historyCache != nil {
		_ = s.historyCache.DeleteHistory(ctx, sessionID)
	}
	return nil
}

// GetHistory returns a session's messages, served from the Redis cache when
// it is warm and not marked dirty by an in-flight write.
func (s *ChatService) GetHistory(ctx context.Context, userID, sessionID uint, limit int) ([]model.Message, error) {
	if userID == 0 || sessionID == 0 {
		return nil, ErrInvalidRequest
	}
	session, err := s.sessionRepo.GetByIDAndUserID(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	if s.historyCache != nil {
		dirty, err := s.historyCache.IsDirty(ctx, sessionID)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, sessionID); cacheErr == nil && hit {
				return trimMessages(cached, limit), nil
			}
		}
	}

	messages, err := s.messageRepo.ListBySessionID(sessionID, limit)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if dirty, dirtyErr := s.historyCache.IsDirty(ctx, sessionID); dirtyErr == nil && !dirty {
			_ = s.historyCache.SetHistory(ctx, sessionID, messages)
		}
	}
	return messages, nil
}

type SessionAnswerInput struct {
	UserID    uint
	SessionID uint
	Namespace string
	Question  string
	TopK      int
	Gate      access.Gate
}

// AnswerSession loads the session's recent history, answers, and hands both
// turns to the async persistence queue.
func (s *ChatService) AnswerSession(ctx context.Context, input SessionAnswerInput) (*AnswerResult, error) {
	history, err := s.beginSessionTurn(ctx, input)
	if err != nil {
		return nil, err
	}

	result, err := s.Answer(ctx, AnswerInput{
		Namespace: input.Namespace,
		Question:  input.Question,
		History:   history,
		TopK:      input.TopK,
		Gate:      input.Gate,
	})
	if err != nil {
		return nil, err
	}

	if err := s.publishTurns(ctx, input, result.Answer); err != nil {
		return nil, err
	}
	return result, nil
}

// StreamAnswerSession is AnswerSession with a streamed answer.
func (s *ChatService) StreamAnswerSession(ctx context.Context, input SessionAnswerInput, onChunk func(string) error) (*AnswerResult, error) {
	history, err := s.beginSessionTurn(ctx, input)
	if err != nil {
		return nil, err
	}

	result, err := s.StreamAnswer(ctx, AnswerInput{
		Namespace: input.Namespace,
		Question:  input.Question,
		History:   history,
		TopK:      input.TopK,
		Gate:      input.Gate,
	}, onChunk)
	if err != nil {
		return nil, err
	}

	if err := s.publishTurns(ctx, input, result.Answer); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *ChatService) beginSessionTurn(ctx context.Context, input SessionAnswerInput) ([]ai.ChatMessage, error) {
	if input.UserID == 0 || input.SessionID == 0 {
		return nil, ErrInvalidRequest
	}
	session, err := s.sessionRepo.GetByIDAndUserID(input.SessionID, input.UserID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	recent, err := s.messageRepo.ListRecentBySessionID(input.SessionID, s.maxHistory)
	if err != nil {
		return nil, err
	}
	history := make([]ai.ChatMessage, 0, len(recent))
	for _, m := range recent {
		role := m.Role
		if role == "" {
			role = "user"
		}
		history = append(history, ai.ChatMessage{Role: role, Content: m.Content})
	}

	if s.historyCache != nil {
		_ = s.historyCache.MarkDirty(ctx, input.SessionID)
		_ = s.historyCache.DeleteHistory(ctx, input.SessionID)
	}
	return history, nil
}

func (s *ChatService) publishTurns(ctx context.Context, input SessionAnswerInput, answer string) error {
	if s.publisher == nil {
		return ErrMessageEnqueue
	}
	now := time.Now()
	userMsg := model.Message{
		SessionID: input.SessionID,
		UserID:    input.UserID,
		Role:      "user",
		Content:   strings.TrimSpace(input.Question),
		CreatedAt: now,
	}
	assistantMsg := model.Message{
		SessionID: input.SessionID,
		UserID:    input.UserID,
		Role:      "assistant",
		Content:   answer,
		CreatedAt: now.Add(time.Millisecond),
	}
	if err := s.publisher.Publish(ctx, userMsg); err != nil {
		log.Printf("chat %s: enqueue user turn failed: %v", phaseFailed, err)
		return fmt.Errorf("%w: %v", ErrMessageEnqueue, err)
	}
	if err := s.publisher.Publish(ctx, assistantMsg); err != nil {
		log.Printf("chat %s: enqueue assistant turn failed: %v", phaseFailed, err)
		return fmt.Errorf("%w: %v", ErrMessageEnqueue, err)
	}
	return nil
}

func trimMessages(messages []model.Message, limit int) []model.Message {
	if limit <= 0 || limit >= len(messages) {
		return messages
	}
	return messages[len(messages)-limit:]
}
