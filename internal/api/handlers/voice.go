package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/troikatech/voice-core/internal/voice/session"
	"github.com/troikatech/voice-core/pkg/env"
	"github.com/troikatech/voice-core/pkg/logger"
)

const readTimeout = 60 * time.Second

func createWebSocketUpgrader(cfg *env.Config) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")

			// Telephony gateways connect without an Origin header.
			if origin == "" || cfg.AppEnv == "development" {
				return true
			}

			if cfg.VoiceBaseURL != "" && origin == cfg.VoiceBaseURL {
				return true
			}

			logger.Log.Warn("WebSocket connection rejected - invalid origin",
				zap.String("origin", origin),
				zap.String("remote_addr", r.RemoteAddr),
			)
			return false
		},
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		EnableCompression: true,
	}
}

// VoiceWebSocket is the duplex audio endpoint for one call. Binary
// frames carry caller audio in; control and audio frames flow out.
// call_sid and conversation_id are required; a missing one closes the
// channel with an explicit reason. voice_id and sample-rate are
// optional per-call overrides.
func (h *Handler) VoiceWebSocket(c *gin.Context) {
	callSID := c.Query("call_sid")
	conversationID := c.Query("conversation_id")
	voiceID := c.Query("voice_id")
	sampleRate, _ := strconv.Atoi(c.Query("sample-rate"))

	upgrader := createWebSocketUpgrader(h.cfg)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.String("call_sid", callSID), zap.Error(err))
		return
	}

	s := h.container.NewSession(callSID, conversationID, voiceID, sampleRate, session.NewWSTransport(conn))
	if err := s.Open(c.Request.Context()); err != nil {
		h.logger.Warn("session rejected",
			zap.String("call_sid", callSID),
			zap.String("reason", err.Error()),
		)
		return
	}

	h.logger.Info("voice session established",
		zap.String("call_sid", callSID),
		zap.String("conversation_id", conversationID),
	)

	h.container.Sessions.Add(s)
	defer func() {
		h.container.Sessions.Remove(s.CallSID)
		s.Close("normal")
	}()

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("websocket read failed",
					zap.String("call_sid", callSID), zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		switch msgType {
		case websocket.BinaryMessage:
			s.OnInboundAudio(data)
		case websocket.TextMessage:
			s.OnControlMessage(data)
		}
	}
}
