package push

import (
	"encoding/json"
	"time"

	"github.com/matheus3301/detox/internal/domain"
)

// Frame types sent to clients.
const (
	TypeWelcome    = "welcome"
	TypeAck        = "ack"
	TypeError      = "error"
	TypeNewMessage = "new_message"
)

const (
	welcomeText = "Conexión WebSocket establecida correctamente"
	errorText   = "Error al procesar mensaje"
)

// Frame is a server-to-client message. Only the fields relevant to Type are set.
type Frame struct {
	Type      string `json:"type"`
	Message   any    `json:"message,omitempty"`
	MessageID any    `json:"messageId,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

func welcomeFrame() Frame {
	return Frame{Type: TypeWelcome, Message: welcomeText}
}

func errorFrame() Frame {
	return Frame{Type: TypeError, Message: errorText}
}

func newMessageFrame(m domain.Message) Frame {
	return Frame{Type: TypeNewMessage, Message: m}
}

// ackFrame acknowledges a client frame, echoing its id field when present.
func ackFrame(raw []byte, now time.Time) (Frame, bool) {
	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		return errorFrame(), false
	}
	var id any = "unknown"
	if obj, ok := body.(map[string]any); ok {
		if v, ok := obj["id"]; ok && truthy(v) {
			id = v
		}
	}
	return Frame{Type: TypeAck, MessageID: id, Timestamp: now.UTC().Format(time.RFC3339Nano)}, true
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	}
	return true
}
