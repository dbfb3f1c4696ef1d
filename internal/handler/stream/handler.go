package stream

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	chatmodel "github.com/zhouzirui/pymind/backend/internal/model/chat"
	chatService "github.com/zhouzirui/pymind/backend/internal/service/chat"
	"github.com/zhouzirui/pymind/backend/pkg/utils"
)

// Handler relays controller output to the browser via Server-Sent Events.
type Handler struct {
	chatSvc *chatService.Service
}

// New creates a new stream handler
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册流式接口
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleStream)
}

// StreamEvent is the payload of one SSE frame.
type StreamEvent struct {
	ID        string              `json:"id,omitempty"`
	SessionID string              `json:"sessionId"`
	Content   string              `json:"content,omitempty"`
	Author    string              `json:"author,omitempty"`
	Elements  []chatmodel.Element `json:"elements,omitempty"`
	Error     string              `json:"error,omitempty"`
	Finished  bool                `json:"finished,omitempty"`
	Time      string              `json:"time"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	userMessage := r.URL.Query().Get("message")
	if userMessage == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	if _, err := h.chatSvc.LoadTranscript(r.Context(), sessionID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, chatService.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		utils.RespondError(w, status, err.Error())
		return
	}

	if err := h.HandleStreamRequest(r.Context(), w, sessionID, userMessage); err != nil {
		log.Printf("[stream] session=%s request ended with error: %v", sessionID, err)
	}
}

// HandleStreamRequest runs one message through the controller, streaming
// every reply as it is produced.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, sessionID, userMessage string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return fmt.Errorf("streaming unsupported")
	}

	utils.SetupSSEHeaders(w)

	out := &sseOutput{w: w, flusher: flusher, sessionID: sessionID}
	err := h.chatSvc.HandleMessage(ctx, sessionID, chatmodel.Inbound{Text: userMessage}, out)

	end := StreamEvent{SessionID: sessionID, Finished: true, Time: now()}
	if err != nil {
		end.Error = err.Error()
	}
	if sendErr := utils.SendSSEEvent(w, flusher, "end", end); sendErr != nil {
		log.Printf("[stream] session=%s failed to send end event: %v", sessionID, sendErr)
	}

	log.Printf("[stream] completed response for session=%s", sessionID)
	return err
}

// sseOutput implements the controller output over an SSE response.
type sseOutput struct {
	w         http.ResponseWriter
	flusher   http.Flusher
	sessionID string
}

func (o *sseOutput) Send(_ context.Context, reply chatmodel.Reply) error {
	_, err := o.emit(reply)
	return err
}

func (o *sseOutput) SendTransient(_ context.Context, reply chatmodel.Reply) (chatService.Removable, error) {
	id, err := o.emit(reply)
	if err != nil {
		return nil, err
	}
	return sseRemoval{o: o, id: id}, nil
}

func (o *sseOutput) emit(reply chatmodel.Reply) (string, error) {
	id := uuid.NewString()
	return id, utils.SendSSEEvent(o.w, o.flusher, "message", StreamEvent{
		ID:        id,
		SessionID: o.sessionID,
		Content:   reply.Content,
		Author:    reply.Author,
		Elements:  reply.Elements,
		Time:      now(),
	})
}

type sseRemoval struct {
	o  *sseOutput
	id string
}

func (r sseRemoval) Remove(context.Context) error {
	return utils.SendSSEEvent(r.o.w, r.o.flusher, "remove", StreamEvent{
		ID:        r.id,
		SessionID: r.o.sessionID,
		Time:      now(),
	})
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
