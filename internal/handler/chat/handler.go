package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	chatmodel "github.com/zhouzirui/pymind/backend/internal/model/chat"
	chatService "github.com/zhouzirui/pymind/backend/internal/service/chat"
	"github.com/zhouzirui/pymind/backend/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Get("/session/{sessionID}/history", h.handleHistory)
	r.Post("/session/{sessionID}/messages", h.handleMessage)
}

type messageRequest struct {
	Text        string                 `json:"text"`
	Attachments []chatmodel.InlineFile `json:"attachments"`
}

type repliesResponse struct {
	SessionID string           `json:"sessionId"`
	Replies   []collectedReply `json:"replies"`
	Error     string           `json:"error,omitempty"`
}

// handleCreateSession 创建会话并返回欢迎语
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	out := &collector{}
	session, err := h.chatSvc.CreateSession(r.Context(), out)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, struct {
		chatmodel.Session
		Replies []collectedReply `json:"replies"`
	}{Session: session, Replies: out.Replies()})
}

// handleHistory 返回会话的完整记录
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	transcript, err := h.chatSvc.LoadTranscript(r.Context(), sessionID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, chatService.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		utils.RespondError(w, status, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, chatmodel.Record{ID: sessionID, History: transcript})
}

// handleMessage 处理一条用户消息并返回所有可见回复
func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var payload messageRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
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

	out := &collector{}
	in := chatmodel.Inbound{Text: payload.Text, Attachments: chatmodel.Attachments(payload.Attachments)}
	err := h.chatSvc.HandleMessage(r.Context(), sessionID, in, out)

	resp := repliesResponse{SessionID: sessionID, Replies: out.Replies()}
	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		if errors.Is(err, chatService.ErrSessionBusy) {
			status = http.StatusConflict
		}
	}
	utils.RespondJSON(w, status, resp)
}
