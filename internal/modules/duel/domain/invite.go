package domain

import (
	"time"

	"github.com/google/uuid"
)

type InviteStatus string

const (
	InviteStatusPending  InviteStatus = "pending"
	InviteStatusAccepted InviteStatus = "accepted"
	InviteStatusDeclined InviteStatus = "declined"
	InviteStatusExpired  InviteStatus = "expired"
)

// GameInvite is a time-limited duel proposal. Invites are volatile - they
// live only in the registry; the chat message carrying the invite artifact
// is the sole durable trace.
type GameInvite struct {
	ID              uuid.UUID    `json:"id"`
	FromUserID      uuid.UUID    `json:"fromUserId"`
	FromDisplayName string       `json:"fromUsername"`
	FromAvatar      *string      `json:"fromAvatar"`
	ToUserID        uuid.UUID    `json:"toUserId"`
	ToDisplayName   string       `json:"toUsername"`
	ToAvatar        *string      `json:"toAvatar"`
	ChatID          string       `json:"chatId"`
	CreatedAt       time.Time    `json:"createdAt"`
	Status          InviteStatus `json:"status"`
}
