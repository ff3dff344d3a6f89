package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/deepgram/readme-relay/internal/connections"
	"github.com/deepgram/readme-relay/internal/domain/profile/models"
	"github.com/deepgram/readme-relay/internal/metrics"
	"github.com/deepgram/readme-relay/internal/services/relay"
	"github.com/deepgram/readme-relay/pkg/httpext"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Message types sent to WebSocket clients
const (
	MessageTypeChunk = "chunk"
	MessageTypeDone  = "done"
	MessageTypeError = "error"
)

// StreamMessage is a single frame of the WebSocket generate protocol
type StreamMessage struct {
	Type      string               `json:"type"`
	RequestID string               `json:"request_id,omitempty"`
	Content   string               `json:"content,omitempty"`
	Status    string               `json:"status,omitempty"`
	Reason    string               `json:"reason,omitempty"`
	Error     string               `json:"error,omitempty"`
	Fields    []httpext.FieldError `json:"fields,omitempty"`
}

// NewUpgrader accepts any origin when allowedOrigins is empty.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}

	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			if _, ok := allowed["*"]; ok {
				return true
			}
			_, ok := allowed[r.Header.Get("Origin")]
			return ok
		},
	}
}

// HandleGenerateWebSocket reads one ProfileRequest from the client and relays
// the generated fragments back as chunk messages, ending with a done message.
func HandleGenerateWebSocket(relayService *relay.Relay, conns *connections.Manager, upgrader *websocket.Upgrader, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}
	defer conn.Close()

	timeouts := conns.GetTimeouts()
	requestID := uuid.NewString()

	conn.SetReadLimit(maxRequestBody)
	_ = conn.SetReadDeadline(time.Now().Add(timeouts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(timeouts.PongWait))
	})

	_, data, err := conn.ReadMessage()
	if err != nil {
		log.Debug().Err(err).Str("request_id", requestID).Msg("Client left before sending a request")
		return
	}

	var req models.ProfileRequest
	if err := json.Unmarshal(data, &req); err != nil {
		log.Error().Err(err).Str("request_id", requestID).Msg("Failed to decode generate request")
		metrics.RecordRequest("websocket", "bad_request")
		writeFinal(conn, timeouts, StreamMessage{Type: MessageTypeError, RequestID: requestID, Error: "Invalid request format"})
		return
	}
	if err := req.Validate(); err != nil {
		log.Error().Err(err).Str("request_id", requestID).Msg("Invalid generate request")
		metrics.RecordRequest("websocket", "bad_request")
		writeFinal(conn, timeouts, StreamMessage{Type: MessageTypeError, RequestID: requestID, Error: "Invalid request", Fields: httpext.FieldErrors(err)})
		return
	}

	// A hijacked connection does not cancel r.Context(), so the read pump
	// below is what notices the client going away.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	stream, err := relayService.Open(ctx, requestID, &req)
	if err != nil {
		metrics.RecordRequest("websocket", "upstream_unavailable")
		writeFinal(conn, timeouts, StreamMessage{Type: MessageTypeError, RequestID: requestID, Error: "Failed to generate profile"})
		return
	}

	conns.Add(stream.ID(), stream)
	defer conns.Remove(stream.ID())

	_ = conn.SetReadDeadline(time.Now().Add(timeouts.PongWait))
	done := make(chan struct{})
	defer close(done)
	go readPump(conn, cancel)
	go pingPump(conn, timeouts, done)

	result := stream.Forward(func(chunk []byte) error {
		_ = conn.SetWriteDeadline(time.Now().Add(timeouts.WriteWait))
		return conn.WriteJSON(StreamMessage{Type: MessageTypeChunk, Content: string(chunk)})
	})

	metrics.RecordRequest("websocket", result.State.String())
	log.Debug().Str("request_id", stream.ID()).Str("state", result.State.String()).Msg("WebSocket relay finished")
	if result.Reason == relay.ReasonClientGone {
		return
	}

	writeFinal(conn, timeouts, StreamMessage{
		Type:      MessageTypeDone,
		RequestID: stream.ID(),
		Status:    result.State.String(),
		Reason:    result.Reason,
	})
}

// readPump drains control frames and cancels the relay once the client is gone.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("Unexpected WebSocket closure")
			}
			return
		}
	}
}

func pingPump(conn *websocket.Conn, timeouts connections.TimeoutConfig, done <-chan struct{}) {
	ticker := time.NewTicker(timeouts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeouts.WriteWait)); err != nil {
				return
			}
		}
	}
}

// writeFinal sends the last message and a normal close frame.
func writeFinal(conn *websocket.Conn, timeouts connections.TimeoutConfig, msg StreamMessage) {
	_ = conn.SetWriteDeadline(time.Now().Add(timeouts.WriteWait))
	if err := conn.WriteJSON(msg); err != nil {
		log.Debug().Err(err).Str("request_id", msg.RequestID).Msg("Failed to write final message")
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(timeouts.WriteWait))
}
