package messaging

import "github.com/google/uuid"

// Event names on the wire. Clients key their handlers off these.
const (
	EventGameInvite          = "game_invite"
	EventGameInviteAccepted  = "game_invite_accepted"
	EventGameInviteDeclined  = "game_invite_declined"
	EventGameInviteExpired   = "game_invite_expired"
	EventGameInviteAbandoned = "game_invite_abandoned"
	EventInviteError         = "invite_error"

	EventGameSessionUpdate   = "game_session_update"
	EventGameSessionEnd      = "game_session_end"
	EventGameProgressUpdate  = "game_progress_update"
	EventGameEndNotification = "game_end_notification"
)

// Publisher is the room-addressable fan-out the orchestrator broadcasts
// through. Delivery is best effort - a slow or absent subscriber never
// blocks a session operation.
type Publisher interface {
	Publish(room string, event string, payload interface{})
}

// UserRoom is the private room every connected user is subscribed to.
func UserRoom(userID uuid.UUID) string {
	return "user_" + userID.String()
}
