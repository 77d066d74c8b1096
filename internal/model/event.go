package model

// Real-time event names.
const (
	EventConnectionSuccess   = "connection:success"
	EventUserOnline          = "user:online"
	EventUserOffline         = "user:offline"
	EventCategoryJoined      = "category:joined"
	EventMomentCreated       = "moment:created"
	EventMomentUpdated       = "moment:updated"
	EventMomentDeleted       = "moment:deleted"
	EventMomentStatusChanged = "moment:status:changed"
	EventHeartUpdated        = "moment:heart:updated"
	EventCallInitiated       = "call:initiated"
	EventCallStatusUpdated   = "call:status:updated"
)

type ConnectionSuccessPayload struct {
	IdentityID string `json:"identityId"`
	IsGuest    bool   `json:"isGuest"`
	SessionID  string `json:"sessionId"`
}

type PresencePayload struct {
	IdentityID string `json:"identityId"`
}

type RoomJoinedPayload struct {
	Room string `json:"category"`
}

type MomentStatusPayload struct {
	MomentID string       `json:"momentId"`
	Category Category     `json:"category"`
	Status   MomentStatus `json:"status,omitempty"`
}

type HeartPayload struct {
	MomentID   string `json:"momentId"`
	HeartCount int    `json:"heartCount"`
}

type CallInitiatedPayload struct {
	Call    *Call   `json:"call"`
	Moment  *Moment `json:"moment"`
	Channel string  `json:"channel"`
}

type CallStatusPayload struct {
	CallID string     `json:"callId"`
	Status CallStatus `json:"status"`
}
