package ws

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	chatmodel "github.com/zhouzirui/pymind/backend/internal/model/chat"
	chatService "github.com/zhouzirui/pymind/backend/internal/service/chat"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Handler WebSocket聊天处理器
type Handler struct {
	chatSvc  *chatService.Service
	upgrader websocket.Upgrader
}

// New 创建WebSocket处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

// Frame types.
const (
	TypeMessage = "message"
	TypeRemove  = "remove"
	TypeError   = "error"
	TypeSession = "session"
)

type inboundMessage struct {
	Type        string                 `json:"type"`
	Text        string                 `json:"text"`
	Attachments []chatmodel.InlineFile `json:"attachments,omitempty"`
}

type outgoingMessage struct {
	Type      string           `json:"type"`
	ID        string           `json:"id,omitempty"`
	SessionID string           `json:"sessionId,omitempty"`
	Data      *chatmodel.Reply `json:"data,omitempty"`
	Timestamp int64            `json:"timestamp"`
}

// handleWebSocket 处理WebSocket连接；每个连接对应一个会话
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := &connOutput{conn: conn, sessionID: sessionID}
	log.Printf("[websocket] new connection for session: %s", sessionID)

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go out.pingLoop(ctx)

	if err := out.write(outgoingMessage{Type: TypeSession, SessionID: sessionID}); err != nil {
		return
	}
	if err := h.chatSvc.StartSession(ctx, sessionID, out); err != nil {
		log.Printf("[websocket] failed to start session %s: %v", sessionID, err)
		out.sendError(err.Error())
		return
	}

	for {
		// The deadline is renewed here because a model call may outlast it.
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}

		if msg.Type != TypeMessage {
			out.sendError("unsupported message type: " + msg.Type)
			continue
		}

		in := chatmodel.Inbound{Text: msg.Text, Attachments: chatmodel.Attachments(msg.Attachments)}
		// Failures are already reported on the connection by the controller.
		_ = h.chatSvc.HandleMessage(ctx, sessionID, in, out)
	}
}

// connOutput implements the controller output on one connection. gorilla
// connections allow a single concurrent writer, hence the mutex.
type connOutput struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	sessionID string
}

func (o *connOutput) Send(_ context.Context, reply chatmodel.Reply) error {
	_, err := o.sendReply(reply)
	return err
}

func (o *connOutput) SendTransient(_ context.Context, reply chatmodel.Reply) (chatService.Removable, error) {
	id, err := o.sendReply(reply)
	if err != nil {
		return nil, err
	}
	return removal{o: o, id: id}, nil
}

func (o *connOutput) sendReply(reply chatmodel.Reply) (string, error) {
	id := uuid.NewString()
	return id, o.write(outgoingMessage{Type: TypeMessage, ID: id, SessionID: o.sessionID, Data: &reply})
}

func (o *connOutput) sendError(message string) {
	err := o.write(outgoingMessage{
		Type:      TypeError,
		SessionID: o.sessionID,
		Data:      &chatmodel.Reply{Content: message},
	})
	if err != nil {
		log.Printf("[websocket] write error failed: %v", err)
	}
}

func (o *connOutput) write(msg outgoingMessage) error {
	msg.Timestamp = time.Now().Unix()

	o.mu.Lock()
	defer o.mu.Unlock()
	_ = o.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return o.conn.WriteJSON(msg)
}

// pingLoop 定期发送ping消息
func (o *connOutput) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.mu.Lock()
			err := o.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			o.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

type removal struct {
	o  *connOutput
	id string
}

func (r removal) Remove(context.Context) error {
	return r.o.write(outgoingMessage{Type: TypeRemove, ID: r.id, SessionID: r.o.sessionID})
}
