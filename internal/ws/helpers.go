package ws

import (
	"encoding/json"

	"group-chat-service/internal/apperr"
	"group-chat-service/internal/models"
)

const (
	frameSendMessage      = "send_message"
	frameAckRead          = "ack_read"
	frameModerationAction = "moderation_action"
	frameReply            = "reply"
)

// inboundFrame is any request a client sends over the socket. Fields unused by a frame type
// are ignored.
type inboundFrame struct {
	Type         string                  `json:"type"`
	Ref          string                  `json:"ref"`
	GroupID      int64                   `json:"group_id"`
	MessageID    int64                   `json:"message_id"`
	Payload      models.Payload          `json:"payload"`
	TargetUserID string                  `json:"target_user_id"`
	Action       models.ModerationAction `json:"action"`
}

type replyError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type replyFrame struct {
	Type   string      `json:"type"`
	Ref    string      `json:"ref,omitempty"`
	OK     bool        `json:"ok"`
	Result any         `json:"result,omitempty"`
	Error  *replyError `json:"error,omitempty"`
}

func okReply(ref string, result any) replyFrame {
	return replyFrame{Type: frameReply, Ref: ref, OK: true, Result: result}
}

func errorReply(ref string, err error) replyFrame {
	return replyFrame{Type: frameReply, Ref: ref, Error: &replyError{Code: apperr.Code(err), Message: err.Error()}}
}

func decodeFrame(data []byte) (inboundFrame, error) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return inboundFrame{}, err
	}
	return frame, nil
}
