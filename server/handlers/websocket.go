package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/Danvdl/SecureStudio/server/models"
	"github.com/Danvdl/SecureStudio/server/pipeline"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type WebSocketHandler struct {
	processor *pipeline.Processor
	logger    *zap.Logger
	upgrader  websocket.Upgrader
}

type ClientMessage struct {
	Type      string `json:"type"`
	Data      string `json:"data"`
	Timestamp int64  `json:"timestamp"`
	Debug     bool   `json:"debug,omitempty"`
}

type ServerMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// wsSession serializes writes; the redaction reply and the keepalive
// ping goroutine share one connection.
type wsSession struct {
	id    string
	conn  *websocket.Conn
	mutex sync.Mutex
}

func (s *wsSession) writeJSON(v any) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *wsSession) ping() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteMessage(websocket.PingMessage, nil)
}

func NewWebSocketHandler(processor *pipeline.Processor, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		processor: processor,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade websocket connection", zap.Error(err))
		return
	}
	defer conn.Close()

	session := &wsSession{
		id:   uuid.New().String(),
		conn: conn,
	}

	h.logger.Info("WebSocket client connected",
		zap.String("session_id", session.id),
		zap.String("client_ip", c.ClientIP()))

	conn.SetReadLimit(10 * 1024 * 1024)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	done := make(chan struct{})
	go h.pingRoutine(session, done)
	defer close(done)

	for {
		var message ClientMessage
		if err := conn.ReadJSON(&message); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read error",
					zap.String("session_id", session.id),
					zap.Error(err))
			}
			return
		}
		h.handleMessage(c.Request.Context(), session, &message)
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, session *wsSession, message *ClientMessage) {
	switch message.Type {
	case "frame":
		h.processVideoFrame(ctx, session, message)
	case "config":
		h.handleConfigUpdate(session, message)
	case "reset":
		h.processor.Reset()
		h.sendMessage(session, "reset_done", map[string]any{"timestamp": time.Now().UnixMilli()})
	case "ping":
		h.sendMessage(session, "pong", map[string]any{"timestamp": time.Now().UnixMilli()})
	default:
		h.logger.Warn("unknown message type",
			zap.String("session_id", session.id),
			zap.String("type", message.Type))
		h.sendError(session, "unknown message type: "+message.Type)
	}
}

func (h *WebSocketHandler) processVideoFrame(ctx context.Context, session *wsSession, message *ClientMessage) {
	imageData, err := extractImageData(message.Data)
	if err != nil {
		h.sendError(session, "invalid image data format")
		return
	}

	img, err := decodeFrame(imageData)
	if err != nil {
		h.sendError(session, "unsupported frame encoding")
		return
	}

	frame := &pipeline.Frame{
		Image:   img,
		Encoded: imageData,
	}
	if message.Timestamp > 0 {
		frame.Timestamp = time.UnixMilli(message.Timestamp)
	}

	result, err := h.processor.ProcessFrame(ctx, frame)
	if err != nil {
		h.logger.Error("frame processing failed",
			zap.String("session_id", session.id),
			zap.Error(err))
		h.sendError(session, "frame processing failed")
		return
	}

	response, err := buildRedactionResult(result, message.Debug)
	if err != nil {
		h.logger.Error("failed to encode redacted frame", zap.Error(err))
		h.sendError(session, "failed to encode redacted frame")
		return
	}

	h.sendMessage(session, "redacted", response)
}

func (h *WebSocketHandler) handleConfigUpdate(session *wsSession, message *ClientMessage) {
	var update models.ConfigUpdate
	if err := json.Unmarshal([]byte(message.Data), &update); err != nil {
		h.sendError(session, "invalid configuration format")
		return
	}

	next := update.Apply(h.processor.EngineConfig())
	if err := h.processor.UpdateConfig(next); err != nil {
		h.sendError(session, err.Error())
		return
	}

	h.logger.Info("engine config updated over websocket",
		zap.String("session_id", session.id))
	h.sendMessage(session, "config_updated", next)
}

func (h *WebSocketHandler) sendMessage(session *wsSession, messageType string, data any) {
	message := ServerMessage{
		Type: messageType,
		Data: data,
	}
	if err := session.writeJSON(message); err != nil {
		h.logger.Error("failed to send websocket message",
			zap.String("session_id", session.id),
			zap.Error(err))
	}
}

func (h *WebSocketHandler) sendError(session *wsSession, errorMsg string) {
	h.sendMessage(session, "error", map[string]any{
		"message":   errorMsg,
		"timestamp": time.Now().UnixMilli(),
	})
}

func (h *WebSocketHandler) pingRoutine(session *wsSession, done chan struct{}) {
	ticker := time.NewTicker(54 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := session.ping(); err != nil {
				h.logger.Debug("ping failed, closing connection",
					zap.String("session_id", session.id))
				session.conn.Close()
				return
			}
		case <-done:
			return
		}
	}
}
