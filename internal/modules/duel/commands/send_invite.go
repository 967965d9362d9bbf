package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/eskrenkovic/code-duel-go/internal/modules/core"
	"github.com/eskrenkovic/code-duel-go/internal/modules/duel/domain"
	"github.com/eskrenkovic/code-duel-go/internal/modules/identity"
	"github.com/eskrenkovic/code-duel-go/internal/modules/messaging"

	"github.com/eskrenkovic/mediator-go"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SendInviteCommand struct {
	FromUserID uuid.UUID `json:"-"`
	ToUserID   uuid.UUID `json:"toUserId"`
	ChatID     string    `json:"chatId"`
}

func (c SendInviteCommand) Validate() error {
	if c.FromUserID == uuid.Nil {
		return fmt.Errorf("invalid FromUserID - '%s'", c.FromUserID)
	}

	if c.ToUserID == uuid.Nil {
		return fmt.Errorf("invalid ToUserID - '%s'", c.ToUserID)
	}

	if c.FromUserID == c.ToUserID {
		return fmt.Errorf("cannot invite yourself - '%s'", c.FromUserID)
	}

	if c.ChatID == "" {
		return fmt.Errorf("invalid ChatID - '%s'", c.ChatID)
	}

	return nil
}

type SendInviteResponse struct {
	Invite domain.GameInvite `json:"invite"`
}

func HandleSendInvite(w http.ResponseWriter, r *http.Request) {
	command, err := core.RequestBody[SendInviteCommand](r)
	if err != nil {
		core.WriteBadRequest(w, r, err)
		return
	}
	command.FromUserID = core.Identity(r.Context()).UserID

	response, err := mediator.Send[SendInviteCommand, SendInviteResponse](r.Context(), command)
	if err != nil {
		core.WriteCommandError(w, r, err)
		return
	}

	core.WriteOK(w, r, response)
}

type SendInviteCommandHandler struct {
	invites   *domain.InviteRegistry
	sessions  *domain.SessionRegistry
	directory *identity.Directory
	chat      *messaging.ChatAnnotator
	publisher messaging.Publisher
	inviteTTL time.Duration
	logger    *zap.Logger
}

func NewSendInviteCommandHandler(
	invites *domain.InviteRegistry,
	sessions *domain.SessionRegistry,
	directory *identity.Directory,
	chat *messaging.ChatAnnotator,
	publisher messaging.Publisher,
	inviteTTL time.Duration,
	logger *zap.Logger,
) *SendInviteCommandHandler {
	return &SendInviteCommandHandler{
		invites:   invites,
		sessions:  sessions,
		directory: directory,
		chat:      chat,
		publisher: publisher,
		inviteTTL: inviteTTL,
		logger:    logger,
	}
}

func (h *SendInviteCommandHandler) Handle(
	ctx context.Context,
	request SendInviteCommand,
) (SendInviteResponse, error) {
	if h.sessions.ActiveForPlayers(request.FromUserID, request.ToUserID) {
		err := fmt.Errorf("a participant is already in an active game")
		h.publisher.Publish(messaging.UserRoom(request.FromUserID), messaging.EventInviteError, inviteErrorPayload{
			Message: err.Error(),
		})
		return SendInviteResponse{}, core.NewCommandError(409, err)
	}

	// A newer invite for the same pair supersedes any pending one.
	for _, superseded := range h.invites.TakePendingFrom(request.FromUserID, request.ToUserID) {
		h.expireInvite(ctx, superseded)
	}

	fromUser, err := h.directory.GetUser(ctx, request.FromUserID)
	if err != nil {
		return SendInviteResponse{}, core.NewCommandError(500, err, core.WithReason("failed to resolve inviter"))
	}

	toUser, err := h.directory.GetUser(ctx, request.ToUserID)
	if err != nil {
		return SendInviteResponse{}, core.NewCommandError(404, err, core.WithReason("recipient not found"))
	}

	invite := &domain.GameInvite{
		ID:              uuid.New(),
		FromUserID:      fromUser.ID,
		FromDisplayName: fromUser.Login,
		FromAvatar:      fromUser.Avatar,
		ToUserID:        toUser.ID,
		ToDisplayName:   toUser.Login,
		ToAvatar:        toUser.Avatar,
		ChatID:          request.ChatID,
		CreatedAt:       time.Now().UTC(),
		Status:          domain.InviteStatusPending,
	}

	h.invites.Put(invite)

	// The chat artifact is best effort - a missing transcript entry never
	// blocks the invite itself.
	if err := h.chat.RecordInviteMessage(ctx, *invite); err != nil {
		h.logger.Warn(
			"failed to record invite chat message",
			zap.String("invite_id", invite.ID.String()),
			zap.Error(err),
		)
	}

	h.publisher.Publish(messaging.UserRoom(invite.ToUserID), messaging.EventGameInvite, invite)

	inviteID := invite.ID
	time.AfterFunc(h.inviteTTL, func() {
		expired, ok := h.invites.Take(inviteID)
		if !ok {
			return
		}

		h.expireInvite(context.Background(), expired)
	})

	return SendInviteResponse{Invite: *invite}, nil
}

func (h *SendInviteCommandHandler) expireInvite(ctx context.Context, invite domain.GameInvite) {
	if err := h.chat.SetInviteStatus(ctx, invite.ID, domain.InviteStatusExpired); err != nil {
		h.logger.Warn(
			"failed to mark invite artifact expired",
			zap.String("invite_id", invite.ID.String()),
			zap.Error(err),
		)
	}

	payload := struct {
		InviteID uuid.UUID `json:"inviteId"`
	}{InviteID: invite.ID}

	h.publisher.Publish(messaging.UserRoom(invite.FromUserID), messaging.EventGameInviteExpired, payload)
	h.publisher.Publish(messaging.UserRoom(invite.ToUserID), messaging.EventGameInviteExpired, payload)
}

type inviteErrorPayload struct {
	Message string `json:"message"`
}
