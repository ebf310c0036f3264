package event

import "encoding/json"

// Client to Server
const (
	EventUserConnected = "user_connected"
	EventGetUserStatus = "get_user_status"
	EventTypingStart   = "typing_start"
	EventTypingStop    = "typing_stop"
	EventAddReactions  = "add_reactions"
	EventMessageRead   = "message_read"
)

// Server to Client
const (
	EventUserStatus          = "user_status"
	EventUserTyping          = "user_typing"
	EventNewMessage          = "new_message"
	EventMessageDeleted      = "message_deleted"
	EventMessageStatusUpdate = "message_status_update"
	EventReactionUpdate      = "reaction_update"
	EventNewUpdate           = "new_update"
	EventUpdateViewed        = "update_viewed"
	EventUpdateDeleted       = "update_deleted"
	EventError               = "error"
)

// WsEvent is the envelope for every frame on the socket in both directions.
type WsEvent struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// New marshals payload into an envelope named name.
func New(name string, payload any) (WsEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return WsEvent{}, err
	}
	return WsEvent{Event: name, Payload: raw}, nil
}

// Decode unmarshals the payload into target.
func (ev WsEvent) Decode(target any) error {
	return json.Unmarshal(ev.Payload, target)
}
