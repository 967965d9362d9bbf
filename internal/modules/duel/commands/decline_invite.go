package commands

import (
	"context"
	"fmt"
	"net/http"

	"github.com/eskrenkovic/code-duel-go/internal/modules/core"
	"github.com/eskrenkovic/code-duel-go/internal/modules/duel/domain"
	"github.com/eskrenkovic/code-duel-go/internal/modules/messaging"

	"github.com/eskrenkovic/mediator-go"
	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type DeclineInviteCommand struct {
	InviteID uuid.UUID
	UserID   uuid.UUID
}

func (c DeclineInviteCommand) Validate() error {
	if c.InviteID == uuid.Nil {
		return fmt.Errorf("invalid InviteID - '%s'", c.InviteID)
	}

	if c.UserID == uuid.Nil {
		return fmt.Errorf("invalid UserID - '%s'", c.UserID)
	}

	return nil
}

func HandleDeclineInvite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	inviteID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		core.WriteBadRequest(w, r, err)
		return
	}

	command := DeclineInviteCommand{
		InviteID: inviteID,
		UserID:   core.Identity(ctx).UserID,
	}

	_, err = mediator.Send[DeclineInviteCommand, core.Unit](ctx, command)
	if err != nil {
		core.WriteCommandError(w, r, err)
		return
	}

	core.WriteOK(w, r, nil)
}

type DeclineInviteCommandHandler struct {
	invites   *domain.InviteRegistry
	chat      *messaging.ChatAnnotator
	publisher messaging.Publisher
	logger    *zap.Logger
}

func NewDeclineInviteCommandHandler(
	invites *domain.InviteRegistry,
	chat *messaging.ChatAnnotator,
	publisher messaging.Publisher,
	logger *zap.Logger,
) *DeclineInviteCommandHandler {
	return &DeclineInviteCommandHandler{
		invites:   invites,
		chat:      chat,
		publisher: publisher,
		logger:    logger,
	}
}

func (h *DeclineInviteCommandHandler) Handle(
	ctx context.Context,
	request DeclineInviteCommand,
) (core.Unit, error) {
	invite, ok := h.invites.Get(request.InviteID)
	if !ok {
		err := fmt.Errorf("invite '%s' not found or expired", request.InviteID)
		return core.Unit{}, core.NewCommandError(404, err)
	}

	if invite.ToUserID != request.UserID {
		err := fmt.Errorf("user '%s' is not the invite recipient", request.UserID)
		return core.Unit{}, core.NewCommandError(403, err)
	}

	// An accept or TTL expiry that won the race leaves nothing to decline.
	invite, ok = h.invites.Take(request.InviteID)
	if !ok {
		err := fmt.Errorf("invite '%s' not found or expired", request.InviteID)
		return core.Unit{}, core.NewCommandError(404, err)
	}

	if err := h.chat.SetInviteStatus(ctx, invite.ID, domain.InviteStatusDeclined); err != nil {
		h.logger.Warn(
			"failed to mark invite artifact declined",
			zap.String("invite_id", invite.ID.String()),
			zap.Error(err),
		)
	}

	payload := struct {
		InviteID uuid.UUID `json:"inviteId"`
	}{InviteID: invite.ID}

	h.publisher.Publish(messaging.UserRoom(invite.FromUserID), messaging.EventGameInviteDeclined, payload)
	h.publisher.Publish(messaging.UserRoom(invite.ToUserID), messaging.EventGameInviteDeclined, payload)

	return core.Unit{}, nil
}
